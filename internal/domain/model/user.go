package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"reparaturbonus/internal/domain"
)

type Role string

const (
	RoleUser       Role = "USER"
	RoleShop       Role = "SHOP"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

// ParseRole maps a claim value to a Role; unknown values fall back to USER.
func ParseRole(s string) Role {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleShop, RoleAdmin, RoleSuperAdmin:
		return r
	default:
		return RoleUser
	}
}

// User is a resident who earns bonus codes.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewUser(id, name, email string, role Role) (*User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if strings.TrimSpace(email) == "" {
		return nil, domain.ErrInvalidArgument
	}
	if role == "" {
		role = RoleUser
	}
	return &User{
		ID:        id,
		Name:      strings.TrimSpace(name),
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Role:      role,
		CreatedAt: time.Now(),
	}, nil
}

// Principal is the authenticated caller as asserted by the identity provider.
type Principal struct {
	UserID string
	Role   Role
}

func (p *Principal) IsAdmin() bool {
	return p != nil && (p.Role == RoleAdmin || p.Role == RoleSuperAdmin)
}

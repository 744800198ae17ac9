package sqlite

import (
	"time"

	"reparaturbonus/internal/domain/model"
)

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func toDomainBonusCode(m *BonusCodeModel) *model.BonusCode {
	c := &model.BonusCode{
		ID:                m.ID,
		Code:              m.Code,
		Amount:            m.Amount,
		Currency:          m.Currency,
		IssuedAt:          fromMillis(m.IssuedAt),
		ExpiresAt:         fromMillis(m.ExpiresAt),
		IsUsed:            m.IsUsed,
		ResidenceProofRef: m.ResidenceProofRef,
		RedeemedBy:        m.RedeemedBy,
		OwnerUserID:       m.OwnerUserID,
		ShopID:            m.ShopID,
		OrderID:           m.OrderID,
	}
	if m.UsedAt != nil {
		t := fromMillis(*m.UsedAt)
		c.UsedAt = &t
	}
	if m.RedemptionMode != nil {
		mode := model.RedemptionMode(*m.RedemptionMode)
		c.RedemptionMode = &mode
	}
	return c
}

func fromDomainBonusCode(c *model.BonusCode) *BonusCodeModel {
	m := &BonusCodeModel{
		ID:                c.ID,
		Code:              c.Code,
		Amount:            c.Amount,
		Currency:          c.Currency,
		IssuedAt:          millis(c.IssuedAt),
		ExpiresAt:         millis(c.ExpiresAt),
		IsUsed:            c.IsUsed,
		ResidenceProofRef: c.ResidenceProofRef,
		RedeemedBy:        c.RedeemedBy,
		OwnerUserID:       c.OwnerUserID,
		ShopID:            c.ShopID,
		OrderID:           c.OrderID,
	}
	if c.UsedAt != nil {
		ms := millis(*c.UsedAt)
		m.UsedAt = &ms
	}
	if c.RedemptionMode != nil {
		mode := string(*c.RedemptionMode)
		m.RedemptionMode = &mode
	}
	return m
}

func toDomainShop(m *ShopModel) *model.Shop {
	return &model.Shop{
		ID:        m.ID,
		Name:      m.Name,
		Category:  model.ShopCategory(m.Category),
		Address:   m.Address,
		Email:     m.Email,
		Latitude:  m.Latitude,
		Longitude: m.Longitude,
		Active:    m.Active,
		CreatedAt: fromMillis(m.CreatedAt),
	}
}

func fromDomainShop(s *model.Shop) *ShopModel {
	return &ShopModel{
		ID:        s.ID,
		Name:      s.Name,
		Category:  string(s.Category),
		Address:   s.Address,
		Email:     s.Email,
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
		Active:    s.Active,
		CreatedAt: millis(s.CreatedAt),
	}
}

func toDomainOrder(m *OrderModel) *model.Order {
	return &model.Order{
		ID:          m.ID,
		UserID:      m.UserID,
		ShopID:      m.ShopID,
		Status:      model.OrderStatus(m.Status),
		Amount:      m.Amount,
		Description: m.Description,
		CreatedAt:   fromMillis(m.CreatedAt),
	}
}

func fromDomainOrder(o *model.Order) *OrderModel {
	return &OrderModel{
		ID:          o.ID,
		UserID:      o.UserID,
		ShopID:      o.ShopID,
		Status:      string(o.Status),
		Amount:      o.Amount,
		Description: o.Description,
		CreatedAt:   millis(o.CreatedAt),
	}
}

func toDomainUser(m *UserModel) *model.User {
	return &model.User{
		ID:        m.ID,
		Name:      m.Name,
		Email:     m.Email,
		Role:      model.ParseRole(m.Role),
		CreatedAt: fromMillis(m.CreatedAt),
	}
}

func fromDomainUser(u *model.User) *UserModel {
	return &UserModel{ID: u.ID, Name: u.Name, Email: u.Email, Role: string(u.Role), CreatedAt: millis(u.CreatedAt)}
}

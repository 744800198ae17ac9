package model

import (
	"math"
	"time"

	"github.com/google/uuid"

	"reparaturbonus/internal/domain"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
)

// Order records a repair at a shop. Amount is in Rappen.
type Order struct {
	ID          string      `json:"id"`
	UserID      string      `json:"userId"`
	ShopID      string      `json:"shopId"`
	Status      OrderStatus `json:"status"`
	Amount      int64       `json:"amount"`
	Description string      `json:"description,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// MaxRepairCostCHF caps declared repair costs well inside the int64 Rappen range.
const MaxRepairCostCHF = 1_000_000

// ValidRepairCost reports whether chf is a finite, positive amount not above MaxRepairCostCHF.
func ValidRepairCost(chf float64) bool {
	return !math.IsNaN(chf) && !math.IsInf(chf, 0) && chf > 0 && chf <= MaxRepairCostCHF
}

// NewCompletedOrder synthesizes the order backing a bonus code when the
// caller did not reference one.
func NewCompletedOrder(userID, shopID string, repairCostCHF float64, description string, now time.Time) (*Order, error) {
	if userID == "" || shopID == "" || !ValidRepairCost(repairCostCHF) {
		return nil, domain.ErrInvalidArgument
	}
	return &Order{
		ID:          uuid.NewString(),
		UserID:      userID,
		ShopID:      shopID,
		Status:      OrderStatusCompleted,
		Amount:      ToRappen(repairCostCHF),
		Description: description,
		CreatedAt:   now,
	}, nil
}

func ToRappen(chf float64) int64 { return int64(math.Round(chf * 100)) }

package model

import "time"

// VerifierView is what a shop sees when scanning a customer's code.
type VerifierView struct {
	Code       string     `json:"code"`
	Amount     int64      `json:"amount"`
	Currency   string     `json:"currency"`
	Status     CodeStatus `json:"status"`
	IsUsed     bool       `json:"isUsed"`
	UsedAt     *time.Time `json:"usedAt,omitempty"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	OwnerName  string     `json:"ownerName"`
	OwnerEmail string     `json:"ownerEmail"`
	ShopName   string     `json:"shopName"`
}

// OwnerView is the full detail returned to the owner or an admin.
type OwnerView struct {
	*BonusCode
	Status CodeStatus `json:"status"`
	Order  *Order     `json:"order,omitempty"`
	Shop   *Shop      `json:"shop,omitempty"`
}

// BonusStats aggregates the program state for admins.
type BonusStats struct {
	Issued          int   `json:"issued"`
	Used            int   `json:"used"`
	Expired         int   `json:"expired"`
	Open            int   `json:"open"`
	DisbursedAmount int64 `json:"disbursedAmount"`
}

package model

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"reparaturbonus/internal/domain"
)

const (
	// BonusAmountCHF is the fixed value credited for every issued code.
	BonusAmountCHF int64 = 100
	BonusCurrency        = "CHF"

	BonusCodeLength = 8
)

type CodeStatus string

const (
	CodeStatusCreated CodeStatus = "created"
	CodeStatusUsed    CodeStatus = "used"
	CodeStatusExpired CodeStatus = "expired"
)

type RedemptionMode string

const (
	RedemptionEvidence       RedemptionMode = "evidence"
	RedemptionOwnerAssertion RedemptionMode = "owner_assertion"
)

// Redemption carries the provenance of a single use transition.
// Exactly one of ProofRef (evidence) or PrincipalID (owner assertion) is set.
type Redemption struct {
	Mode        RedemptionMode
	ProofRef    string
	PrincipalID string
}

func EvidenceRedemption(proofRef string) Redemption {
	return Redemption{Mode: RedemptionEvidence, ProofRef: proofRef}
}

func OwnerAssertionRedemption(principalID string) Redemption {
	return Redemption{Mode: RedemptionOwnerAssertion, PrincipalID: principalID}
}

// BonusCode is a single-use credit earned for a completed repair.
type BonusCode struct {
	ID                string          `json:"id"`
	Code              string          `json:"code"`
	Amount            int64           `json:"amount"`
	Currency          string          `json:"currency"`
	IssuedAt          time.Time       `json:"issuedAt"`
	ExpiresAt         time.Time       `json:"expiresAt"`
	IsUsed            bool            `json:"isUsed"`
	UsedAt            *time.Time      `json:"usedAt,omitempty"`
	ResidenceProofRef *string         `json:"residenceProofRef,omitempty"`
	RedemptionMode    *RedemptionMode `json:"redemptionMode,omitempty"`
	RedeemedBy        *string         `json:"redeemedBy,omitempty"`
	OwnerUserID       string          `json:"ownerUserId"`
	ShopID            string          `json:"shopId"`
	OrderID           *string         `json:"orderId,omitempty"`
}

// NewBonusCode builds an unused code issued at now. The caller supplies the
// already generated code string.
func NewBonusCode(code, ownerUserID, shopID string, orderID *string, now time.Time) (*BonusCode, error) {
	if len(code) != BonusCodeLength || ownerUserID == "" || shopID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &BonusCode{
		ID:          NewID(now),
		Code:        code,
		Amount:      BonusAmountCHF,
		Currency:    BonusCurrency,
		IssuedAt:    now,
		ExpiresAt:   AddCalendarMonth(now),
		OwnerUserID: ownerUserID,
		ShopID:      shopID,
		OrderID:     orderID,
	}, nil
}

// IsExpired reports whether now lies strictly after ExpiresAt.
func (c *BonusCode) IsExpired(now time.Time) bool { return now.After(c.ExpiresAt) }

// Status derives the lifecycle state. Expiry is never stored.
func (c *BonusCode) Status(now time.Time) CodeStatus {
	switch {
	case c.IsUsed:
		return CodeStatusUsed
	case c.IsExpired(now):
		return CodeStatusExpired
	default:
		return CodeStatusCreated
	}
}

// CheckRedeemable returns the first failing redemption precondition.
func (c *BonusCode) CheckRedeemable(now time.Time) error {
	if c.IsUsed {
		return domain.ErrCodeAlreadyUsed
	}
	if c.IsExpired(now) {
		return domain.ErrCodeExpired
	}
	return nil
}

// IsOwnedBy reports whether p may see full detail or act on the code.
func (c *BonusCode) IsOwnedBy(p *Principal) bool {
	if p == nil {
		return false
	}
	return p.UserID == c.OwnerUserID || p.IsAdmin()
}

// Apply sets the used fields in memory. Stores persist the same transition
// with a conditional write.
func (c *BonusCode) Apply(r Redemption, now time.Time) {
	c.IsUsed = true
	usedAt := now
	c.UsedAt = &usedAt
	mode := r.Mode
	c.RedemptionMode = &mode
	if r.ProofRef != "" {
		ref := r.ProofRef
		c.ResidenceProofRef = &ref
	}
	if r.PrincipalID != "" {
		by := r.PrincipalID
		c.RedeemedBy = &by
	}
}

// AddCalendarMonth advances t by one calendar month, clamping the day to the
// last day of the target month (Jan 31 -> Feb 28/29).
func AddCalendarMonth(t time.Time) time.Time {
	y, m, d := t.Date()
	firstOfTarget := time.Date(y, m+1, 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// NewID returns a lexically sortable identifier.
func NewID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
}

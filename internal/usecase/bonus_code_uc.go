// File: internal/usecase/bonus_code_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"reparaturbonus/internal/domain"
	"reparaturbonus/internal/domain/model"
	"reparaturbonus/internal/domain/ports/adapter"
	"reparaturbonus/internal/domain/ports/repository"
	"reparaturbonus/internal/infra/logging"
	"reparaturbonus/internal/infra/metrics"
)

const (
	// DefaultMaxCodeAttempts bounds the generate/insert loop.
	DefaultMaxCodeAttempts = 10

	ActionUse = "use"

	notifyTimeout = 3 * time.Second
)

// Compile-time check
var _ BonusCodeUseCase = (*bonusCodeUC)(nil)

type CreateBonusCodeInput struct {
	ShopID      string
	OrderID     string // optional; an order is synthesized when empty
	RepairCost  float64
	Description string
}

// Evidence is an uploaded residence proof.
type Evidence struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type BonusCodeUseCase interface {
	// Create issues a new code for the principal at the given shop.
	Create(ctx context.Context, p *model.Principal, in CreateBonusCodeInput) (*model.BonusCode, error)
	// ListMine returns the principal's codes, newest first.
	ListMine(ctx context.Context, p *model.Principal) ([]*model.BonusCode, error)
	// Verify is the open lookup used by shops; the code is the credential.
	Verify(ctx context.Context, code string) (*model.VerifierView, error)
	// Get returns full detail to the owner or an admin.
	Get(ctx context.Context, p *model.Principal, code string) (*model.OwnerView, error)
	// Redeem marks the code used against an uploaded residence proof.
	Redeem(ctx context.Context, code string, proof *Evidence) (*model.BonusCode, error)
	// ApplyAction is the authenticated, evidence-free transition ("use").
	ApplyAction(ctx context.Context, p *model.Principal, code, action string) (*model.BonusCode, error)
}

type bonusCodeUC struct {
	codes  repository.BonusCodeRepository
	shops  repository.ShopRepository
	orders repository.OrderRepository
	users  repository.UserRepository
	tx     repository.TransactionManager
	blobs  adapter.BlobStore
	notify adapter.RedemptionNotifier

	log *zerolog.Logger

	now                 func() time.Time
	generate            CodeGenerator
	maxAttempts         int
	allowOwnerAssertion bool
	dev                 bool
}

type BonusCodeOption func(*bonusCodeUC)

func WithClock(now func() time.Time) BonusCodeOption {
	return func(u *bonusCodeUC) { u.now = now }
}

func WithCodeGenerator(g CodeGenerator) BonusCodeOption {
	return func(u *bonusCodeUC) { u.generate = g }
}

func WithMaxCodeAttempts(n int) BonusCodeOption {
	return func(u *bonusCodeUC) {
		if n > 0 {
			u.maxAttempts = n
		}
	}
}

// WithOwnerAssertion toggles the evidence-free "use" action.
func WithOwnerAssertion(allowed bool) BonusCodeOption {
	return func(u *bonusCodeUC) { u.allowOwnerAssertion = allowed }
}

// WithDevMode disables redaction of proof references in logs.
func WithDevMode(dev bool) BonusCodeOption {
	return func(u *bonusCodeUC) { u.dev = dev }
}

// NewBonusCodeUseCase wires the engine. notify and logger may be nil.
func NewBonusCodeUseCase(
	codes repository.BonusCodeRepository,
	shops repository.ShopRepository,
	orders repository.OrderRepository,
	users repository.UserRepository,
	tx repository.TransactionManager,
	blobs adapter.BlobStore,
	notify adapter.RedemptionNotifier,
	logger *zerolog.Logger,
	opts ...BonusCodeOption,
) BonusCodeUseCase {
	if logger == nil {
		logger = logging.Nop()
	}
	u := &bonusCodeUC{
		codes:               codes,
		shops:               shops,
		orders:              orders,
		users:               users,
		tx:                  tx,
		blobs:               blobs,
		notify:              notify,
		log:                 logger,
		now:                 time.Now,
		generate:            GenerateCode,
		maxAttempts:         DefaultMaxCodeAttempts,
		allowOwnerAssertion: true,
	}
	for _, o := range opts {
		o(u)
	}
	return u
}

func (u *bonusCodeUC) Create(ctx context.Context, p *model.Principal, in CreateBonusCodeInput) (*model.BonusCode, error) {
	if p == nil {
		return nil, domain.ErrUnauthorized
	}
	shopID := strings.TrimSpace(in.ShopID)
	if shopID == "" {
		return nil, fmt.Errorf("%w: shopId is required", domain.ErrInvalidArgument)
	}
	if !model.ValidRepairCost(in.RepairCost) {
		return nil, fmt.Errorf("%w: repairCost must be between 0 and %d CHF", domain.ErrInvalidArgument, model.MaxRepairCostCHF)
	}

	// Codes and orders reference users; a token for an unknown subject cannot own one.
	if _, err := u.users.FindByID(ctx, repository.NoTX, p.UserID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown user", domain.ErrUnauthorized)
		}
		return nil, err
	}

	shop, err := u.shops.FindByID(ctx, repository.NoTX, shopID)
	if err != nil {
		return nil, err
	}
	if !shop.Active {
		return nil, domain.ErrShopNotFound
	}

	now := u.now()
	var created *model.BonusCode
	err = u.tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		orderID, err := u.resolveOrder(ctx, tx, p, shop, in, now)
		if err != nil {
			return err
		}
		created, err = u.insertUnique(ctx, tx, p.UserID, shop.ID, orderID, now)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrExhaustedRetries) {
			logging.With(ctx, u.log).Error().Int("attempts", u.maxAttempts).Msg("bonus code generation exhausted")
		}
		return nil, err
	}

	metrics.IncCodeIssued()
	logging.With(ctx, u.log).Info().
		Str("bonus_code_id", created.ID).
		Str("shop_id", created.ShopID).
		Time("expires_at", created.ExpiresAt).
		Msg("bonus code issued")
	return created, nil
}

func (u *bonusCodeUC) resolveOrder(ctx context.Context, tx repository.Tx, p *model.Principal, shop *model.Shop, in CreateBonusCodeInput, now time.Time) (*string, error) {
	if id := strings.TrimSpace(in.OrderID); id != "" {
		o, err := u.orders.FindByID(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		return &o.ID, nil
	}
	o, err := model.NewCompletedOrder(p.UserID, shop.ID, in.RepairCost, strings.TrimSpace(in.Description), now)
	if err != nil {
		return nil, err
	}
	if err := u.orders.Create(ctx, tx, o); err != nil {
		return nil, err
	}
	return &o.ID, nil
}

// insertUnique runs the bounded generate / pre-check / insert loop. The
// unique index is authoritative: a conflict on insert is a retryable collision.
func (u *bonusCodeUC) insertUnique(ctx context.Context, tx repository.Tx, ownerID, shopID string, orderID *string, now time.Time) (*model.BonusCode, error) {
	for attempt := 1; attempt <= u.maxAttempts; attempt++ {
		candidate := u.generate()
		taken, err := u.codes.ExistsByCode(ctx, tx, candidate)
		if err != nil {
			return nil, err
		}
		if taken {
			metrics.IncCodeCollision("precheck")
			continue
		}

		c, err := model.NewBonusCode(candidate, ownerID, shopID, orderID, now)
		if err != nil {
			return nil, err
		}
		err = u.codes.Create(ctx, tx, c)
		if errors.Is(err, domain.ErrCodeConflict) {
			metrics.IncCodeCollision("insert")
			continue
		}
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, domain.ErrExhaustedRetries
}

func (u *bonusCodeUC) ListMine(ctx context.Context, p *model.Principal) ([]*model.BonusCode, error) {
	if p == nil {
		return nil, domain.ErrUnauthorized
	}
	return u.codes.ListByOwner(ctx, repository.NoTX, p.UserID)
}

func (u *bonusCodeUC) Verify(ctx context.Context, code string) (*model.VerifierView, error) {
	c, err := u.find(ctx, code)
	if err != nil {
		return nil, err
	}
	view := &model.VerifierView{
		Code:      c.Code,
		Amount:    c.Amount,
		Currency:  c.Currency,
		Status:    c.Status(u.now()),
		IsUsed:    c.IsUsed,
		UsedAt:    c.UsedAt,
		ExpiresAt: c.ExpiresAt,
	}

	owner, err := u.users.FindByID(ctx, repository.NoTX, c.OwnerUserID)
	switch {
	case err == nil:
		view.OwnerName, view.OwnerEmail = owner.Name, owner.Email
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}
	shop, err := u.shops.FindByID(ctx, repository.NoTX, c.ShopID)
	switch {
	case err == nil:
		view.ShopName = shop.Name
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}
	return view, nil
}

func (u *bonusCodeUC) Get(ctx context.Context, p *model.Principal, code string) (*model.OwnerView, error) {
	if p == nil {
		return nil, domain.ErrUnauthorized
	}
	c, err := u.find(ctx, code)
	if err != nil {
		return nil, err
	}
	if !c.IsOwnedBy(p) {
		return nil, domain.ErrForbidden
	}

	view := &model.OwnerView{BonusCode: c, Status: c.Status(u.now())}
	if c.OrderID != nil {
		o, err := u.orders.FindByID(ctx, repository.NoTX, *c.OrderID)
		switch {
		case err == nil:
			view.Order = o
		case !errors.Is(err, domain.ErrNotFound):
			return nil, err
		}
	}
	shop, err := u.shops.FindByID(ctx, repository.NoTX, c.ShopID)
	switch {
	case err == nil:
		view.Shop = shop
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}
	return view, nil
}

func (u *bonusCodeUC) Redeem(ctx context.Context, code string, proof *Evidence) (*model.BonusCode, error) {
	l := logging.With(ctx, u.log)
	defer logging.TraceDuration(l, "BonusCodeUC.Redeem")()

	c, err := u.find(ctx, code)
	if err != nil {
		return nil, u.reject(err)
	}
	now := u.now()
	if err := c.CheckRedeemable(now); err != nil {
		return nil, u.reject(err)
	}
	if proof == nil || proof.Body == nil || proof.Size <= 0 {
		return nil, u.reject(domain.ErrMissingEvidence)
	}

	ref, err := u.blobs.Put(ctx, ProofObjectName(c.Code, now, proof.Filename), proof.ContentType, proof.Body)
	if err != nil {
		if errors.Is(err, domain.ErrEvidenceTooLarge) {
			return nil, u.reject(domain.ErrEvidenceTooLarge)
		}
		l.Error().Err(err).Str("bonus_code_id", c.ID).Msg("store residence proof")
		return nil, domain.ErrBlobStoreFailure
	}
	l.Debug().Str("bonus_code_id", c.ID).Str("ref", logging.Redact(ref, u.dev)).Msg("residence proof stored")

	// The conditional write is the last step; losing the race leaves at most an orphaned file.
	updated, err := u.codes.MarkUsed(ctx, repository.NoTX, c.Code, model.EvidenceRedemption(ref), now)
	if err != nil {
		u.discardProof(ctx, ref)
		return nil, u.reject(err)
	}

	u.redeemed(ctx, updated)
	return updated, nil
}

func (u *bonusCodeUC) ApplyAction(ctx context.Context, p *model.Principal, code, action string) (*model.BonusCode, error) {
	if p == nil {
		return nil, domain.ErrUnauthorized
	}
	if strings.ToLower(strings.TrimSpace(action)) != ActionUse {
		return nil, domain.ErrInvalidAction
	}
	c, err := u.find(ctx, code)
	if err != nil {
		return nil, u.reject(err)
	}
	if !c.IsOwnedBy(p) {
		return nil, domain.ErrForbidden
	}
	if !u.allowOwnerAssertion {
		return nil, u.reject(domain.ErrMissingEvidence)
	}
	now := u.now()
	if err := c.CheckRedeemable(now); err != nil {
		return nil, u.reject(err)
	}

	updated, err := u.codes.MarkUsed(ctx, repository.NoTX, c.Code, model.OwnerAssertionRedemption(p.UserID), now)
	if err != nil {
		return nil, u.reject(err)
	}
	u.redeemed(ctx, updated)
	return updated, nil
}

func (u *bonusCodeUC) find(ctx context.Context, code string) (*model.BonusCode, error) {
	code = NormalizeCode(code)
	if !IsValidCode(code) {
		return nil, domain.ErrCodeNotFound
	}
	return u.codes.FindByCode(ctx, repository.NoTX, code)
}

func (u *bonusCodeUC) redeemed(ctx context.Context, c *model.BonusCode) {
	mode := string(model.RedemptionEvidence)
	if c.RedemptionMode != nil {
		mode = string(*c.RedemptionMode)
	}
	metrics.IncCodeRedeemed(mode)
	l := logging.With(ctx, u.log)
	l.Info().Str("bonus_code_id", c.ID).Str("mode", mode).Msg("bonus code redeemed")

	if u.notify == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := u.notify.NotifyRedeemed(nctx, c); err != nil {
		l.Warn().Err(err).Str("bonus_code_id", c.ID).Msg("redemption notification failed")
	}
}

func (u *bonusCodeUC) discardProof(ctx context.Context, ref string) {
	if err := u.blobs.Delete(context.WithoutCancel(ctx), ref); err != nil {
		metrics.IncOrphanedProof()
		logging.With(ctx, u.log).Warn().Err(err).Str("ref", logging.Redact(ref, u.dev)).Msg("residence proof left orphaned")
	}
}

// reject counts domain rejections and passes err through unchanged.
func (u *bonusCodeUC) reject(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		metrics.IncCodeRejected("not_found")
	case errors.Is(err, domain.ErrCodeAlreadyUsed):
		metrics.IncCodeRejected("already_used")
	case errors.Is(err, domain.ErrCodeExpired):
		metrics.IncCodeRejected("expired")
	case errors.Is(err, domain.ErrMissingEvidence):
		metrics.IncCodeRejected("missing_evidence")
	case errors.Is(err, domain.ErrEvidenceTooLarge):
		metrics.IncCodeRejected("evidence_too_large")
	}
	return err
}

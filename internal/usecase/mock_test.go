//go:build !integration

package usecase_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"reparaturbonus/internal/domain"
	"reparaturbonus/internal/domain/model"
	"reparaturbonus/internal/domain/ports/adapter"
	"reparaturbonus/internal/domain/ports/repository"
	"reparaturbonus/internal/usecase"
)

// =============================
// Repositories
// =============================

// ---- Mock BonusCodeRepository ----

// MockBonusCodeRepo keeps rows keyed by code and emulates the unique index
// and the conditional used-update of a real store.
type MockBonusCodeRepo struct {
	mu    sync.Mutex
	codes map[string]*model.BonusCode

	CreateFunc       func(ctx context.Context, tx repository.Tx, c *model.BonusCode) error
	ExistsByCodeFunc func(ctx context.Context, tx repository.Tx, code string) (bool, error)
	MarkUsedCalls    int
}

var _ repository.BonusCodeRepository = (*MockBonusCodeRepo)(nil)

func NewMockBonusCodeRepo() *MockBonusCodeRepo {
	return &MockBonusCodeRepo{codes: map[string]*model.BonusCode{}}
}

func (m *MockBonusCodeRepo) Create(ctx context.Context, tx repository.Tx, c *model.BonusCode) error {
	if m.CreateFunc != nil {
		if err := m.CreateFunc(ctx, tx, c); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.codes[c.Code]; ok {
		return domain.ErrCodeConflict
	}
	cp := *c
	m.codes[c.Code] = &cp
	return nil
}

func (m *MockBonusCodeRepo) ExistsByCode(ctx context.Context, tx repository.Tx, code string) (bool, error) {
	if m.ExistsByCodeFunc != nil {
		return m.ExistsByCodeFunc(ctx, tx, code)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.codes[code]
	return ok, nil
}

func (m *MockBonusCodeRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.BonusCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[code]
	if !ok {
		return nil, domain.ErrCodeNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MockBonusCodeRepo) ListByOwner(ctx context.Context, tx repository.Tx, ownerUserID string) ([]*model.BonusCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.BonusCode
	for _, c := range m.codes {
		if c.OwnerUserID == ownerUserID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *MockBonusCodeRepo) MarkUsed(ctx context.Context, tx repository.Tx, code string, r model.Redemption, now time.Time) (*model.BonusCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MarkUsedCalls++
	c, ok := m.codes[code]
	if !ok {
		return nil, domain.ErrCodeNotFound
	}
	if err := c.CheckRedeemable(now); err != nil {
		return nil, err
	}
	c.Apply(r, now)
	cp := *c
	return &cp, nil
}

func (m *MockBonusCodeRepo) Stats(ctx context.Context, tx repository.Tx, now time.Time) (*model.BonusStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &model.BonusStats{}
	for _, c := range m.codes {
		s.Issued++
		switch c.Status(now) {
		case model.CodeStatusUsed:
			s.Used++
			s.DisbursedAmount += c.Amount
		case model.CodeStatusExpired:
			s.Expired++
		default:
			s.Open++
		}
	}
	return s, nil
}

// Put seeds a row directly, bypassing the engine.
func (m *MockBonusCodeRepo) Put(c *model.BonusCode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.codes[c.Code] = &cp
}

func (m *MockBonusCodeRepo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.codes)
}

// ---- Mock ShopRepository ----

type MockShopRepo struct {
	mu    sync.Mutex
	shops map[string]*model.Shop
}

var _ repository.ShopRepository = (*MockShopRepo)(nil)

func NewMockShopRepo() *MockShopRepo { return &MockShopRepo{shops: map[string]*model.Shop{}} }

func (m *MockShopRepo) Save(ctx context.Context, tx repository.Tx, s *model.Shop) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.shops[s.ID] = &cp
	return nil
}

func (m *MockShopRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Shop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shops[id]
	if !ok {
		return nil, domain.ErrShopNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MockShopRepo) List(ctx context.Context, tx repository.Tx) ([]*model.Shop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Shop, 0, len(m.shops))
	for _, s := range m.shops {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

// ---- Mock OrderRepository ----

type MockOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*model.Order
}

var _ repository.OrderRepository = (*MockOrderRepo)(nil)

func NewMockOrderRepo() *MockOrderRepo { return &MockOrderRepo{orders: map[string]*model.Order{}} }

func (m *MockOrderRepo) Create(ctx context.Context, tx repository.Tx, o *model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *MockOrderRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MockOrderRepo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// ---- Mock UserRepository ----

type MockUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func NewMockUserRepo() *MockUserRepo { return &MockUserRepo{users: map[string]*model.User{}} }

func (m *MockUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MockUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// ---- Mock TransactionManager ----

type MockTxManager struct {
	Calls int
}

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

func (m *MockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.Calls++
	return fn(ctx, nil)
}

// =============================
// Adapters
// =============================

// ---- Mock BlobStore ----

type MockBlobStore struct {
	mu      sync.Mutex
	Objects map[string][]byte
	Deleted []string

	PutErr    error
	DeleteErr error
}

var _ adapter.BlobStore = (*MockBlobStore)(nil)

func NewMockBlobStore() *MockBlobStore { return &MockBlobStore{Objects: map[string][]byte{}} }

func (m *MockBlobStore) Put(ctx context.Context, name, contentType string, body io.Reader) (string, error) {
	if m.PutErr != nil {
		return "", m.PutErr
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Same collision rule as the filesystem store: never overwrite.
	key := name
	for i := 1; ; i++ {
		if _, ok := m.Objects[key]; !ok {
			break
		}
		key = fmt.Sprintf("%s-%d", name, i)
	}
	m.Objects[key] = b
	return "mem://" + key, nil
}

func (m *MockBlobStore) Delete(ctx context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deleted = append(m.Deleted, ref)
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	delete(m.Objects, ref[len("mem://"):])
	return nil
}

func (m *MockBlobStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Objects)
}

// ---- Mock RedemptionNotifier ----

type MockNotifier struct {
	mu       sync.Mutex
	Notified []string
	Err      error
}

var _ adapter.RedemptionNotifier = (*MockNotifier)(nil)

func (m *MockNotifier) NotifyRedeemed(ctx context.Context, c *model.BonusCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notified = append(m.Notified, c.Code)
	return m.Err
}

func (m *MockNotifier) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Notified)
}

// =============================
// Helpers
// =============================

var errStoreDown = errors.New("store down")

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func newEvidence(content string) *usecase.Evidence {
	return &usecase.Evidence{Filename: "meldebestaetigung.pdf", ContentType: "application/pdf", Size: int64(len(content)), Body: bytes.NewReader([]byte(content))}
}

// fixedClock is a settable clock shared by a use case under test.
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFixedClock(t time.Time) *fixedClock { return &fixedClock{t: t} }

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// sequenceGenerator returns the given codes in order, then repeats the last.
func sequenceGenerator(codes ...string) func() string {
	var mu sync.Mutex
	i := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		c := codes[i]
		if i < len(codes)-1 {
			i++
		}
		return c
	}
}

//go:build !integration

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"reparaturbonus/internal/domain/model"
	"reparaturbonus/internal/domain/ports/repository"
	"reparaturbonus/internal/infra/auth"
	"reparaturbonus/internal/infra/blob"
	"reparaturbonus/internal/infra/db/sqlite"
	"reparaturbonus/internal/infra/logging"
	"reparaturbonus/internal/usecase"
)

const testSecret = "test-secret"

type captureNotifier struct {
	mu    sync.Mutex
	codes []string
}

func (n *captureNotifier) NotifyRedeemed(_ context.Context, c *model.BonusCode) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes = append(n.codes, c.Code)
	return nil
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis: connection refused")
}

type harness struct {
	handler  http.Handler
	verifier *auth.Verifier
	notifier *captureNotifier
	shop     *model.Shop
	owner    *model.User
	other    *model.User
	admin    *model.User
}

func newHarness(t *testing.T, limiter Limiter, opts Options) *harness {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	store, err := blob.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}

	users := sqlite.NewUserRepo(db)
	shops := sqlite.NewShopRepo(db)
	h := &harness{verifier: auth.NewVerifier(testSecret, "reparaturbonus-test"), notifier: &captureNotifier{}}
	h.owner, _ = model.NewUser("", "Anna Muster", "anna@example.ch", model.RoleUser)
	h.other, _ = model.NewUser("", "Beat Keller", "beat@example.ch", model.RoleUser)
	h.admin, _ = model.NewUser("", "Admin", "admin@example.ch", model.RoleAdmin)
	for _, u := range []*model.User{h.owner, h.other, h.admin} {
		if err := users.Save(ctx, repository.NoTX, u); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	h.shop, _ = model.NewShop("", "Velowerkstatt Olten", model.CategoryBikes, "Hauptgasse 1")
	if err := shops.Save(ctx, repository.NoTX, h.shop); err != nil {
		t.Fatalf("seed shop: %v", err)
	}

	logger := logging.Nop()
	bonus := usecase.NewBonusCodeUseCase(
		sqlite.NewBonusCodeRepo(db), shops, sqlite.NewOrderRepo(db), users,
		sqlite.NewTxManager(db), store, h.notifier, logger,
	)
	stats := usecase.NewStatsUseCase(sqlite.NewBonusCodeRepo(db), logger)
	h.handler = NewServer(bonus, stats, h.verifier, limiter, opts, logger).Handler()
	return h
}

func (h *harness) token(t *testing.T, u *model.User) string {
	t.Helper()
	tok, err := h.verifier.Mint(u.ID, u.Role, time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return tok
}

func (h *harness) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) issue(t *testing.T, u *model.User) *model.BonusCode {
	t.Helper()
	body := `{"shopId":"` + h.shop.ID + `","repairCost":180.5,"description":"Schaltung"}`
	rec := h.do(t, http.MethodPost, "/bonus-codes", h.token(t, u), strings.NewReader(body), "application/json")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var c model.BonusCode
	decode(t, rec, &c)
	return &c
}

func proofForm(t *testing.T, field string, content []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, "meldebestaetigung.pdf")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		_, _ = fw.Write(content)
	} else {
		_ = mw.WriteField("note", "no file attached")
	}
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var e errorBody
	decode(t, rec, &e)
	return e.Error
}

func TestBonusCodeLifecycle(t *testing.T) {
	h := newHarness(t, nil, Options{})

	// Arrange
	c := h.issue(t, h.owner)
	if len(c.Code) != 8 || c.Amount != model.BonusAmountCHF || c.IsUsed {
		t.Fatalf("unexpected issued code: %+v", c)
	}
	if !c.ExpiresAt.Equal(model.AddCalendarMonth(c.IssuedAt)) {
		t.Errorf("expected expiry one calendar month after issue, got %s -> %s", c.IssuedAt, c.ExpiresAt)
	}

	// list
	rec := h.do(t, http.MethodGet, "/bonus-codes", h.token(t, h.owner), nil, "")
	var list listResponse
	decode(t, rec, &list)
	if rec.Code != http.StatusOK || len(list.Items) != 1 || list.Items[0].Code != c.Code {
		t.Fatalf("unexpected list: %d %s", rec.Code, rec.Body.String())
	}

	// open verification, lowercase input accepted
	rec = h.do(t, http.MethodGet, "/bonus-codes/"+strings.ToLower(c.Code)+"?verify=true", "", nil, "")
	var v model.VerifierView
	decode(t, rec, &v)
	if rec.Code != http.StatusOK || v.Status != model.CodeStatusCreated || v.OwnerName != "Anna Muster" || v.ShopName != h.shop.Name {
		t.Fatalf("unexpected verify response: %d %s", rec.Code, rec.Body.String())
	}

	// Act
	body, ct := proofForm(t, proofField, []byte("%PDF-1.4 residence"))
	rec = h.do(t, http.MethodPost, "/bonus-codes/"+c.Code+"/use", "", body, ct)

	// Assert
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on redeem, got %d: %s", rec.Code, rec.Body.String())
	}
	var used model.BonusCode
	decode(t, rec, &used)
	if !used.IsUsed || used.UsedAt == nil || used.ResidenceProofRef == nil || *used.RedemptionMode != model.RedemptionEvidence {
		t.Errorf("unexpected redeemed code: %+v", used)
	}
	if len(h.notifier.codes) != 1 || h.notifier.codes[0] != c.Code {
		t.Errorf("expected a single notification, got %v", h.notifier.codes)
	}

	body, ct = proofForm(t, proofField, []byte("again"))
	rec = h.do(t, http.MethodPost, "/bonus-codes/"+c.Code+"/use", "", body, ct)
	if rec.Code != http.StatusBadRequest || errorOf(t, rec) != "bonus code already used" {
		t.Errorf("expected already used, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodGet, "/bonus-codes/"+c.Code+"?verify=true", "", nil, "")
	decode(t, rec, &v)
	if v.Status != model.CodeStatusUsed || !v.IsUsed {
		t.Errorf("expected used status after redemption, got %+v", v)
	}

	// owner detail carries order and shop
	rec = h.do(t, http.MethodGet, "/bonus-codes/"+c.Code, h.token(t, h.owner), nil, "")
	var ov struct {
		Code   string       `json:"code"`
		Status string       `json:"status"`
		Order  *model.Order `json:"order"`
		Shop   *model.Shop  `json:"shop"`
	}
	decode(t, rec, &ov)
	if rec.Code != http.StatusOK || ov.Order == nil || ov.Order.Amount != 18050 || ov.Shop == nil {
		t.Errorf("unexpected owner view: %d %s", rec.Code, rec.Body.String())
	}
}

func TestAuthAndOwnership(t *testing.T) {
	h := newHarness(t, nil, Options{})
	c := h.issue(t, h.owner)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   string
		status int
	}{
		{"create without token", http.MethodPost, "/bonus-codes", "", `{"shopId":"x","repairCost":1}`, http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/bonus-codes", "not-a-jwt", "", http.StatusUnauthorized},
		{"list without token", http.MethodGet, "/bonus-codes", "", "", http.StatusUnauthorized},
		{"detail by stranger", http.MethodGet, "/bonus-codes/" + c.Code, h.token(t, h.other), "", http.StatusForbidden},
		{"detail by admin", http.MethodGet, "/bonus-codes/" + c.Code, h.token(t, h.admin), "", http.StatusOK},
		{"detail without token", http.MethodGet, "/bonus-codes/" + c.Code, "", "", http.StatusUnauthorized},
		{"use action by stranger", http.MethodPatch, "/bonus-codes/" + c.Code, h.token(t, h.other), `{"action":"use"}`, http.StatusForbidden},
		{"unknown action", http.MethodPatch, "/bonus-codes/" + c.Code, h.token(t, h.owner), `{"action":"refund"}`, http.StatusBadRequest},
		{"malformed json", http.MethodPost, "/bonus-codes", h.token(t, h.owner), `{`, http.StatusBadRequest},
		{"malformed json without token", http.MethodPost, "/bonus-codes", "", `{`, http.StatusUnauthorized},
		{"create for unknown user", http.MethodPost, "/bonus-codes", h.token(t, &model.User{ID: "ghost", Role: model.RoleUser}), `{"shopId":"` + h.shop.ID + `","repairCost":50}`, http.StatusUnauthorized},
		{"huge repair cost", http.MethodPost, "/bonus-codes", h.token(t, h.owner), `{"shopId":"` + h.shop.ID + `","repairCost":1e300}`, http.StatusBadRequest},
		{"missing repair cost", http.MethodPost, "/bonus-codes", h.token(t, h.owner), `{"shopId":"` + h.shop.ID + `"}`, http.StatusBadRequest},
		{"unknown shop", http.MethodPost, "/bonus-codes", h.token(t, h.owner), `{"shopId":"nope","repairCost":50}`, http.StatusNotFound},
		{"unknown code verify", http.MethodGet, "/bonus-codes/ZZZZ9999?verify=true", "", "", http.StatusNotFound},
		{"malformed code verify", http.MethodGet, "/bonus-codes/short?verify=true", "", "", http.StatusNotFound},
		{"stats as user", http.MethodGet, "/admin/stats", h.token(t, h.owner), "", http.StatusForbidden},
		{"stats without token", http.MethodGet, "/admin/stats", "", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			ct := ""
			if tt.body != "" {
				body, ct = strings.NewReader(tt.body), "application/json"
			}
			rec := h.do(t, tt.method, tt.path, tt.token, body, ct)
			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if rec.Code >= 400 && errorOf(t, rec) == "" {
				t.Error("expected an error message in the body")
			}
		})
	}
}

func TestOwnerAssertionAndStats(t *testing.T) {
	h := newHarness(t, nil, Options{})
	c := h.issue(t, h.owner)
	_ = h.issue(t, h.owner)

	rec := h.do(t, http.MethodPatch, "/bonus-codes/"+c.Code, h.token(t, h.owner), strings.NewReader(`{"action":"use"}`), "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var used model.BonusCode
	decode(t, rec, &used)
	if *used.RedemptionMode != model.RedemptionOwnerAssertion || used.RedeemedBy == nil || *used.RedeemedBy != h.owner.ID || used.ResidenceProofRef != nil {
		t.Errorf("unexpected owner assertion: %+v", used)
	}

	rec = h.do(t, http.MethodGet, "/admin/stats", h.token(t, h.admin), nil, "")
	var st model.BonusStats
	decode(t, rec, &st)
	want := model.BonusStats{Issued: 2, Used: 1, Open: 1, DisbursedAmount: model.BonusAmountCHF}
	if rec.Code != http.StatusOK || st != want {
		t.Errorf("expected %+v, got %d %+v", want, rec.Code, st)
	}
}

func TestRedeemEvidence(t *testing.T) {
	t.Run("missing file on a valid code", func(t *testing.T) {
		h := newHarness(t, nil, Options{})
		c := h.issue(t, h.owner)
		body, ct := proofForm(t, "", nil)
		rec := h.do(t, http.MethodPost, "/bonus-codes/"+c.Code+"/use", "", body, ct)
		if rec.Code != http.StatusBadRequest || errorOf(t, rec) != "residence proof is required" {
			t.Errorf("expected missing evidence, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("unknown code is reported before the missing file", func(t *testing.T) {
		h := newHarness(t, nil, Options{})
		rec := h.do(t, http.MethodPost, "/bonus-codes/ZZZZ0000/use", "", nil, "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("oversized upload", func(t *testing.T) {
		h := newHarness(t, nil, Options{MaxUploadBytes: 1024})
		c := h.issue(t, h.owner)
		body, ct := proofForm(t, proofField, bytes.Repeat([]byte("x"), 8<<10))
		rec := h.do(t, http.MethodPost, "/bonus-codes/"+c.Code+"/use", "", body, ct)
		if rec.Code != http.StatusBadRequest || errorOf(t, rec) != "residence proof exceeds size limit" {
			t.Errorf("expected too large, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("concurrent redemptions admit one winner", func(t *testing.T) {
		h := newHarness(t, nil, Options{})
		c := h.issue(t, h.owner)

		const n = 8
		statuses := make(chan int, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			body, ct := proofForm(t, proofField, []byte("proof"))
			req := httptest.NewRequest(http.MethodPost, "/bonus-codes/"+c.Code+"/use", body)
			req.Header.Set("Content-Type", ct)
			wg.Add(1)
			go func() {
				defer wg.Done()
				rec := httptest.NewRecorder()
				h.handler.ServeHTTP(rec, req)
				statuses <- rec.Code
			}()
		}
		wg.Wait()
		close(statuses)

		counts := map[int]int{}
		for s := range statuses {
			counts[s]++
		}
		if counts[http.StatusOK] != 1 || counts[http.StatusBadRequest] != n-1 {
			t.Errorf("expected one 200 and %d 400s, got %v", n-1, counts)
		}
	})
}

func TestRateLimiting(t *testing.T) {
	t.Run("verify is limited per client", func(t *testing.T) {
		h := newHarness(t, NewLocalLimiter(1, 1), Options{})
		c := h.issue(t, h.owner)

		first := h.do(t, http.MethodGet, "/bonus-codes/"+c.Code+"?verify=true", "", nil, "")
		second := h.do(t, http.MethodGet, "/bonus-codes/"+c.Code+"?verify=true", "", nil, "")
		if first.Code != http.StatusOK || second.Code != http.StatusTooManyRequests {
			t.Errorf("expected 200 then 429, got %d then %d", first.Code, second.Code)
		}
		// owner detail is not limited
		if rec := h.do(t, http.MethodGet, "/bonus-codes/"+c.Code, h.token(t, h.owner), nil, ""); rec.Code != http.StatusOK {
			t.Errorf("expected owner detail to bypass the limiter, got %d", rec.Code)
		}
	})

	t.Run("forwarding headers from untrusted peers share one bucket", func(t *testing.T) {
		h := newHarness(t, NewLocalLimiter(1, 1), Options{})
		c := h.issue(t, h.owner)

		codes := make([]int, 0, 3)
		for i, hdr := range []string{"198.51.100.1", "198.51.100.2", "198.51.100.3"} {
			req := httptest.NewRequest(http.MethodGet, "/bonus-codes/"+c.Code+"?verify=true", nil)
			req.RemoteAddr = "203.0.113.9:4711"
			if i%2 == 0 {
				req.Header.Set("X-Forwarded-For", hdr)
			} else {
				req.Header.Set("X-Real-IP", hdr)
			}
			rec := httptest.NewRecorder()
			h.handler.ServeHTTP(rec, req)
			codes = append(codes, rec.Code)
		}
		if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests || codes[2] != http.StatusTooManyRequests {
			t.Errorf("expected 200, 429, 429, got %v", codes)
		}
	})

	t.Run("trusted proxy forwards distinct clients", func(t *testing.T) {
		h := newHarness(t, NewLocalLimiter(1, 1), Options{TrustedProxies: []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}})
		c := h.issue(t, h.owner)

		for _, client := range []string{"198.51.100.1", "198.51.100.2"} {
			req := httptest.NewRequest(http.MethodGet, "/bonus-codes/"+c.Code+"?verify=true", nil)
			req.RemoteAddr = "10.0.0.2:4711"
			req.Header.Set("X-Forwarded-For", client+", 10.0.0.3")
			rec := httptest.NewRecorder()
			h.handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Errorf("client %s: expected 200, got %d", client, rec.Code)
			}
		}
	})

	t.Run("limiter failure fails open", func(t *testing.T) {
		h := newHarness(t, brokenLimiter{}, Options{})
		c := h.issue(t, h.owner)
		if rec := h.do(t, http.MethodGet, "/bonus-codes/"+c.Code+"?verify=true", "", nil, ""); rec.Code != http.StatusOK {
			t.Errorf("expected 200 when the limiter errors, got %d", rec.Code)
		}
	})
}

func TestAmbientRoutes(t *testing.T) {
	h := newHarness(t, nil, Options{})

	rec := h.do(t, http.MethodGet, "/health", "", nil, "")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("unexpected health: %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	if rr.Header().Get("X-Request-ID") != "abc-123" {
		t.Errorf("expected incoming request id to be echoed, got %q", rr.Header().Get("X-Request-ID"))
	}

	if rec := h.do(t, http.MethodGet, "/nope", "", nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown route, got %d", rec.Code)
	}
	if rec := h.do(t, http.MethodGet, "/metrics", "", nil, ""); rec.Code != http.StatusOK {
		t.Errorf("expected metrics endpoint, got %d", rec.Code)
	}
}

func TestClientID(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"untrusted peer ignores real ip", map[string]string{"X-Real-IP": "1.1.1.1"}, "203.0.113.9:80", "203.0.113.9"},
		{"untrusted peer ignores forwarded for", map[string]string{"X-Forwarded-For": "1.1.1.1"}, "203.0.113.9:80", "203.0.113.9"},
		{"trusted peer uses last untrusted hop", map[string]string{"X-Forwarded-For": "6.6.6.6, 198.51.100.4, 10.1.2.3"}, "10.3.3.3:80", "198.51.100.4"},
		{"trusted peer falls back to real ip", map[string]string{"X-Real-IP": "198.51.100.5"}, "10.3.3.3:80", "198.51.100.5"},
		{"trusted peer with garbage headers", map[string]string{"X-Forwarded-For": "nonsense", "X-Real-IP": "nonsense"}, "10.3.3.3:80", "10.3.3.3"},
		{"remote addr", nil, "10.3.3.3:80", "10.3.3.3"},
		{"unparseable remote addr", nil, "pipe", "pipe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := clientID(r, trusted); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

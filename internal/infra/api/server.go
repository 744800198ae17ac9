package api

import (
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"reparaturbonus/internal/infra/auth"
	"reparaturbonus/internal/infra/metrics"
	"reparaturbonus/internal/usecase"
)

const (
	routeVerify = "verify"
	routeRedeem = "redeem"

	defaultMaxUploadBytes = 10 << 20
)

type Options struct {
	RequestTimeout time.Duration
	MaxUploadBytes int64
	// TrustedProxies are peers allowed to set X-Forwarded-For / X-Real-IP.
	TrustedProxies []netip.Prefix
}

// Server exposes the bonus code engine over HTTP.
type Server struct {
	bonus    usecase.BonusCodeUseCase
	stats    usecase.StatsUseCase
	verifier *auth.Verifier
	limiter  Limiter
	opts     Options
	log      *zerolog.Logger
}

// NewServer wires the handlers. limiter may be nil to disable rate limiting.
func NewServer(bonus usecase.BonusCodeUseCase, stats usecase.StatsUseCase, verifier *auth.Verifier, limiter Limiter, opts Options, logger *zerolog.Logger) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	return &Server{bonus: bonus, stats: stats, verifier: verifier, limiter: limiter, opts: opts, log: logger}
}

// Handler returns the full middleware-wrapped router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(Metrics(), Authenticate(s.verifier))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/bonus-codes", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Get("/", s.handleList)
		r.Get("/{code}", s.handleGet)
		r.Patch("/{code}", s.handleAction)
		r.Post("/{code}/use", s.handleRedeem)
	})
	r.Get("/admin/stats", s.handleStats)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})

	return Chain(r,
		TraceID(s.log),
		RequestLog(s.log),
		Recover(s.log),
		Timeout(s.opts.RequestTimeout),
	)
}

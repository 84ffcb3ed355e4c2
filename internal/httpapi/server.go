// Package httpapi exposes the game backend over HTTP: account and score
// endpoints, the coupon exchange, voucher redemption, and operational probes.
package httpapi

import (
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/botirjon13/oyin-backent/internal/catalog"
	apperrors "github.com/botirjon13/oyin-backent/internal/errors"
	"github.com/botirjon13/oyin-backent/internal/exchange"
	"github.com/botirjon13/oyin-backent/internal/health"
	"github.com/botirjon13/oyin-backent/internal/i18n"
	"github.com/botirjon13/oyin-backent/internal/idempotency"
	"github.com/botirjon13/oyin-backent/internal/leaderboard"
	"github.com/botirjon13/oyin-backent/internal/ledger"
	"github.com/botirjon13/oyin-backent/internal/lifecycle"
	"github.com/botirjon13/oyin-backent/internal/ratelimit"
	"github.com/botirjon13/oyin-backent/internal/redemption"
	"github.com/botirjon13/oyin-backent/pkg/config"
	"github.com/botirjon13/oyin-backent/pkg/logger"
)

// Deps carries everything the HTTP layer needs.
type Deps struct {
	Config       *config.Config
	Log          *slog.Logger
	Errors       *apperrors.Handler
	Translations *i18n.Manager

	Ledger      *ledger.Service
	Exchange    *exchange.Engine
	Redemption  *redemption.Service
	Catalog     *catalog.Service
	Leaderboard *leaderboard.Service

	Idempotency idempotency.Manager
	Limiter     ratelimit.Limiter
	Health      *health.Checker
	Probes      lifecycle.HealthChecker
}

// Server holds the handler dependencies. Config is swapped atomically on
// hot reload so in-flight requests always see a consistent snapshot.
type Server struct {
	cfg atomic.Pointer[config.Config]
	log *slog.Logger

	errs         *apperrors.Handler
	translations *i18n.Manager

	ledger      *ledger.Service
	exchange    *exchange.Engine
	redemption  *redemption.Service
	catalog     *catalog.Service
	leaderboard *leaderboard.Service

	idem    idempotency.Manager
	limiter ratelimit.Limiter
	health  *health.Checker
	probes  lifecycle.HealthChecker
}

// NewServer builds the HTTP server from its dependencies.
func NewServer(deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		log:          log,
		errs:         deps.Errors,
		translations: deps.Translations,
		ledger:       deps.Ledger,
		exchange:     deps.Exchange,
		redemption:   deps.Redemption,
		catalog:      deps.Catalog,
		leaderboard:  deps.Leaderboard,
		idem:         deps.Idempotency,
		limiter:      deps.Limiter,
		health:       deps.Health,
		probes:       deps.Probes,
	}
	s.cfg.Store(deps.Config)

	return s
}

func (s *Server) config() *config.Config {
	return s.cfg.Load()
}

// UpdateConfig swaps the active configuration. Used by the config watcher
// for reloadable settings (rate limits, leaderboard TTL).
func (s *Server) UpdateConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	s.cfg.Store(cfg)
}

// Routes assembles the ServeMux and middleware chain: correlation ID ->
// logging and metrics -> rate limiting -> handlers.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /livez", s.handleLiveness)
	mux.HandleFunc("GET /readyz", s.handleReadiness)

	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("POST /api/score", s.handleSaveScore)
	mux.HandleFunc("POST /api/diamonds/earn", s.handleEarnDiamonds)
	mux.HandleFunc("GET /api/account", s.handleAccount)
	mux.HandleFunc("GET /api/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("GET /api/offers", s.handleOffers)

	mux.HandleFunc("POST /api/exchange", s.handleExchange)
	mux.HandleFunc("GET /api/vouchers", s.handleVoucherHistory)
	mux.HandleFunc("GET /api/vouchers/{token}", s.handleVoucherLookup)
	mux.HandleFunc("POST /api/vouchers/{token}/consume", s.handleVoucherConsume)
	mux.HandleFunc("GET /v/{token}/qr.png", s.handleVoucherQR)

	var handler http.Handler = mux
	handler = s.rateLimit(handler)
	handler = s.observe(handler)
	handler = logger.Middleware(handler)

	return handler
}

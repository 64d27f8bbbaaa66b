// Package api - HTTP вход robyd: прием транзакций и read API записей.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xela07ax/roby-guard/internal/audit"
	"github.com/xela07ax/roby-guard/internal/domain"
	"github.com/xela07ax/roby-guard/internal/engine"
	"github.com/xela07ax/roby-guard/internal/infra/auth"
	"github.com/xela07ax/roby-guard/internal/ledger"
)

// Ledger: то, что HTTP слой требует от шлюза.
type Ledger interface {
	Submit(ctx context.Context, tx *engine.Transaction) (*engine.Result, error)
	Simulate(ctx context.Context, tx *engine.Transaction) (*engine.Result, error)
	Allocate(ctx context.Context, key domain.Pubkey, size int, deposit uint64) error
	Account(ctx context.Context, key domain.Pubkey) (*ledger.Record, error)
	DepositFor(size int) uint64
}

// JournalReader отдает последние события журнала по роботу.
type JournalReader interface {
	Recent(ctx context.Context, robot string, limit int) ([]audit.Event, error)
}

// StopLister — общий набор остановленных роботов.
type StopLister interface {
	Members(ctx context.Context) ([]string, error)
}

type TokenIssuer interface {
	Login(username, password string) (*domain.TokenResponse, error)
}

// Deps: зависимости сервера. Journal, Stops, Issuer и Gatherer необязательны.
type Deps struct {
	Ledger    Ledger
	Validator auth.TokenValidator
	Issuer    TokenIssuer
	Journal   JournalReader
	Stops     StopLister
	Gatherer  prometheus.Gatherer
}

type Options struct {
	RateLimit float64 // запросов в секунду, 0 - без ограничения
	RateBurst int
}

type Server struct {
	router  *chi.Mux
	deps    Deps
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewServer(deps Deps, opts Options, logger *zap.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		deps:   deps,
		logger: logger.Named("api"),
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = int(opts.RateLimit) + 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	// --- 1. Глобальные middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(engine.TracingMiddleware)

	// Healthcheck и метрики не ограничиваем
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if s.deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ: транзакции аутентифицируются подписями ---
	r.Group(func(r chi.Router) {
		r.Use(s.rateLimit)

		if s.deps.Issuer != nil {
			r.Post("/auth/token", s.login)
		}
		r.Post("/v1/transactions", s.submit)
		r.Post("/v1/transactions/simulate", s.simulate)
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Use(auth.NewMiddleware(s.deps.Validator, s.logger))

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireScope(domain.ScopeRead))

			r.Get("/v1/robots/{key}", s.getRobot)
			r.Get("/v1/robots/{key}/journal", s.robotJournal)
			r.Get("/v1/credentials/{key}", s.getCredential)
			r.Get("/v1/logs/{key}", s.getCommandLog)
			r.Get("/v1/estop", s.listStopped)
		})

		r.With(auth.RequireScope(domain.ScopeAllocate)).Post("/v1/accounts", s.allocate)
	})
}

// rateLimit: общий лимит запросов на инстанс.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ServeHTTP позволяет использовать Server как стандартный http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

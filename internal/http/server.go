// Package http exposes the forecast and alert engine as a JSON API. The
// caller's owner scope arrives in the X-Owner-ID header set by the
// upstream auth layer.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"cashflow/internal/core"
	"cashflow/internal/forecast"
	applog "cashflow/internal/log"
	"cashflow/internal/middleware/ratelimit"
	"cashflow/internal/middleware/security"
	"cashflow/internal/middleware/trace"
	"cashflow/internal/schedule"
	"cashflow/internal/services"
)

// OwnerHeader carries the authenticated owner id.
const OwnerHeader = "X-Owner-ID"

// Engine is the subset of services.Engine the API serves.
type Engine interface {
	Project(ctx context.Context, ownerID string, months int) (forecast.Projection, error)
	ProjectWeekly(ctx context.Context, ownerID string, weeks int) (forecast.Projection, error)
	Summarize(ctx context.Context, ownerID string, months int) (forecast.Summary, error)
	RefreshAlerts(ctx context.Context, ownerID string, months int) (services.RefreshResult, error)

	ListAlerts(ctx context.Context, ownerID string) ([]core.Alert, error)
	MarkAlertRead(ctx context.Context, ownerID, alertID string) (core.Alert, error)
	DismissAlert(ctx context.Context, ownerID, alertID string) (core.Alert, error)
	DeleteAlert(ctx context.Context, ownerID, alertID string) error

	SetCurrentBalance(ctx context.Context, ownerID string, amount decimal.Decimal, effective time.Time, currency string) (core.BalanceSnapshot, error)
	CurrentBalance(ctx context.Context, ownerID string) (core.BalanceSnapshot, error)
	BalanceHistory(ctx context.Context, ownerID string) ([]core.BalanceSnapshot, error)

	CreateLoan(ctx context.Context, l core.Loan) (core.Loan, error)
	RecordLoanPayment(ctx context.Context, ownerID, loanID string, amount decimal.Decimal) (core.Loan, error)
	LoanSchedule(ctx context.Context, ownerID, loanID string) ([]schedule.AmortizationEntry, error)

	Ready(ctx context.Context) error
}

var _ Engine = (*services.Engine)(nil)

// Options tunes the middleware chain. Zero values pick defaults.
type Options struct {
	Logger         *applog.Logger
	RateLimit      ratelimit.Config
	TrustedProxies []string
	DefaultMonths  int
	DefaultWeeks   int
}

type Server struct {
	http.Server
	engine  Engine
	limiter *ratelimit.Limiter
	ips     *security.ClientIPResolver
	logger  *applog.Logger

	defaultMonths int
	defaultWeeks  int

	shutdownOnce sync.Once
}

// NewServer builds the router and middleware chain, returning a ready-to-run server.
func NewServer(addr string, engine Engine, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	if opts.DefaultMonths <= 0 {
		opts.DefaultMonths = 6
	}
	if opts.DefaultWeeks <= 0 {
		opts.DefaultWeeks = 12
	}

	ips := security.NewClientIPResolver()
	for _, cidr := range opts.TrustedProxies {
		if err := ips.AddTrustedProxy(cidr); err != nil {
			return nil, err
		}
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		engine:        engine,
		limiter:       ratelimit.NewLimiter(opts.RateLimit),
		ips:           ips,
		logger:        opts.Logger.WithComponent(applog.ComponentHTTP),
		defaultMonths: opts.DefaultMonths,
		defaultWeeks:  opts.DefaultWeeks,
	}
	s.Handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "route not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(s.requireOwner)
	api.Use(s.limiter.Middleware(s.rateLimitKey, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
	}))

	api.HandleFunc("/forecast", s.handleForecast).Methods(http.MethodGet)
	api.HandleFunc("/forecast/weekly", s.handleForecastWeekly).Methods(http.MethodGet)
	api.HandleFunc("/forecast/summary", s.handleSummary).Methods(http.MethodGet)

	api.HandleFunc("/alerts", s.handleListAlerts).Methods(http.MethodGet)
	api.HandleFunc("/alerts/refresh", s.handleRefreshAlerts).Methods(http.MethodPost)
	api.HandleFunc("/alerts/{id}/read", s.handleMarkAlertRead).Methods(http.MethodPost)
	api.HandleFunc("/alerts/{id}/dismiss", s.handleDismissAlert).Methods(http.MethodPost)
	api.HandleFunc("/alerts/{id}", s.handleDeleteAlert).Methods(http.MethodDelete)

	api.HandleFunc("/balance", s.handleSetBalance).Methods(http.MethodPut)
	api.HandleFunc("/balance", s.handleGetBalance).Methods(http.MethodGet)
	api.HandleFunc("/balance/history", s.handleBalanceHistory).Methods(http.MethodGet)

	api.HandleFunc("/loans", s.handleCreateLoan).Methods(http.MethodPost)
	api.HandleFunc("/loans/{id}/payments", s.handleLoanPayment).Methods(http.MethodPost)
	api.HandleFunc("/loans/{id}/schedule", s.handleLoanSchedule).Methods(http.MethodGet)

	// Outermost first: logger, trace, request-scoped logger, headers.
	var h http.Handler = r
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = applog.RequestIDMiddleware(trace.RequestID)(h)
	h = trace.NewMiddleware(s.ips.ExtractClientIP, ownerFrom).Middleware(h)
	h = applog.Middleware(s.logger)(h)
	return h
}

// requireOwner rejects API calls without an owner scope.
func (s *Server) requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ownerFrom(r) == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing " + OwnerHeader + " header"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimitKey buckets by owner and falls back to the client address.
func (s *Server) rateLimitKey(r *http.Request) string {
	if owner := ownerFrom(r); owner != "" {
		return "owner:" + owner
	}
	return "ip:" + s.ips.ExtractClientIP(r)
}

// Shutdown stops the rate limiter and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.engine.Ready(ctx); err != nil {
		applog.FromContext(r.Context()).WarnContext(ctx, "Readiness check failed", applog.FieldError, err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

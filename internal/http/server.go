package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"several/internal/cache"
	"several/internal/log"
	"several/internal/middleware/ratelimit"
	"several/internal/middleware/security"
	"several/internal/middleware/trace"
	"several/internal/ocr"
	"several/internal/services"
)

// Options configure a Server. Service is required.
type Options struct {
	Service            *services.BudgetService
	Extractor          ocr.Extractor
	Logger             *log.Logger
	Version            string
	MaxUploadBytes     int64
	RateLimitPerMinute int
	// BlockSuspicious rejects requests the detector flags instead of
	// only logging them.
	BlockSuspicious bool
	// CacheStats reports the OCR result cache for /metrics, when present.
	CacheStats func() cache.Stats
}

type Server struct {
	http.Server
	svc        *services.BudgetService
	extractor  ocr.Extractor
	logger     *log.Logger
	version    string
	maxUpload  int64
	cacheStats func() cache.Stats

	tracer   *trace.Middleware
	limiter  *ratelimit.Limiter
	detector *security.Detector

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Extractor == nil {
		opts.Extractor = ocr.Disabled{}
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}

	logger := opts.Logger.WithComponent(log.ComponentHTTP)
	detector := security.NewDetector()
	s := &Server{
		svc:        opts.Service,
		extractor:  opts.Extractor,
		logger:     logger,
		version:    opts.Version,
		maxUpload:  opts.MaxUploadBytes,
		cacheStats: opts.CacheStats,
		tracer:     trace.NewMiddleware(detector.ExtractClientIP, logger),
		limiter:    ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector:   detector,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.Handle("/api/", s.limitWrites(s.apiRoutes()))

	var h http.Handler = mux
	h = log.RequestIDMiddleware(trace.RequestID)(h)
	h = log.Middleware(logger)(h)
	h = detector.Middleware(logger, opts.BlockSuspicious)(h)
	h = s.tracer.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) apiRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/state", s.handleState)

	mux.HandleFunc("GET /api/budgets", s.handleListBudgets)
	mux.HandleFunc("POST /api/budgets", s.handleCreateBudget)
	mux.HandleFunc("GET /api/budgets/archived", s.handleArchivedBudgets)
	mux.HandleFunc("PUT /api/budgets/order", s.handleSetOrder)
	mux.HandleFunc("GET /api/budgets/{id}", s.handleGetBudget)
	mux.HandleFunc("PUT /api/budgets/{id}", s.handleUpdateBudget)
	mux.HandleFunc("DELETE /api/budgets/{id}", s.handleDeleteBudget)
	mux.HandleFunc("GET /api/budgets/{id}/reassign-targets", s.handleReassignTargets)

	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("POST /api/expenses/undo", s.handleUndoDelete)
	mux.HandleFunc("PUT /api/expenses/{id}", s.handleUpdateExpense)
	mux.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)
	mux.HandleFunc("POST /api/expenses/{id}/move", s.handleMoveExpense)
	mux.HandleFunc("GET /api/expenses/{id}/move-targets", s.handleMoveTargets)
	mux.HandleFunc("GET /api/resolve", s.handleResolve)

	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PATCH /api/settings", s.handleUpdateSettings)
	mux.HandleFunc("GET /api/backup", s.handleExport)
	mux.HandleFunc("POST /api/backup", s.handleImport)
	mux.HandleFunc("DELETE /api/data", s.handleClearData)
	mux.HandleFunc("POST /api/ocr", s.handleExtract)
	mux.HandleFunc("GET /api/notices", s.handleNotices)

	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("no such endpoint").Write(w)
	})
	return mux
}

// limitWrites rate limits every method that can change state.
func (s *Server) limitWrites(next http.Handler) http.Handler {
	limited := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			log.NewFields().WithComponent(log.ComponentRateLimit).
				WithClientIP(s.detector.ExtractClientIP(r)).ToSlice()...)
		ErrorResponse(http.StatusTooManyRequests, "rate_limited", "rate limit exceeded, please try again later").Write(w)
	})(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
		default:
			limited.ServeHTTP(w, r)
		}
	})
}

// Shutdown stops accepting requests and the rate limiter cleanup.
// It does not close the budget service.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// ListenAndServe serves until Shutdown, which is not reported as an error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening", "addr", s.Addr)
	if err := s.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Ready(); err != nil {
		ErrorResponse(http.StatusServiceUnavailable, "unavailable", err.Error()).Write(w)
		return
	}
	writeJSON(w, map[string]string{"status": "ready"})
}

type metricsResponse struct {
	HTTP      trace.Metrics             `json:"http"`
	RateLimit ratelimit.Metrics         `json:"rateLimit"`
	Security  security.DetectionMetrics `json:"security"`
	OCRCache  *cacheMetrics             `json:"ocrCache,omitempty"`
}

type cacheMetrics struct {
	cache.Stats
	HitRatio float64 `json:"hitRatio"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	resp := metricsResponse{
		HTTP:      s.tracer.GetMetrics(),
		RateLimit: s.limiter.GetMetrics(),
		Security:  s.detector.GetMetrics(),
	}
	if s.cacheStats != nil {
		st := s.cacheStats()
		resp.OCRCache = &cacheMetrics{Stats: st, HitRatio: st.HitRatio()}
	}
	writeJSON(w, resp)
}

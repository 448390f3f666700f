package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"cassa/internal/log"
	"cassa/internal/middleware/ratelimit"
	"cassa/internal/middleware/security"
	"cassa/internal/middleware/trace"
	"cassa/internal/services"
)

// Server serves the ledger API for one household.
type Server struct {
	http.Server
	svc *services.LedgerService

	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware
	detector *security.Detector
	headers  *security.HeadersMiddleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc *services.LedgerService, logger *log.Logger) *Server {
	mux := http.NewServeMux()

	detector := security.NewDetector()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
		svc:      svc,
		limiter:  ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		tracer:   trace.NewMiddleware(logger, detector.ExtractClientIP),
		detector: detector,
		headers:  security.NewHeadersMiddleware(security.DefaultHeadersConfig()),
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/log", s.handleSearch)
	mux.HandleFunc("GET /api/debts", s.handleDebts)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/export", s.handleExport)

	mux.HandleFunc("POST /api/income", s.handleMutation("income", s.income()))
	mux.HandleFunc("POST /api/gain", s.handleMutation("gain", s.gain()))
	mux.HandleFunc("POST /api/loss", s.handleMutation("loss", s.loss()))
	mux.HandleFunc("POST /api/expense", s.handleMutation("expense", s.expense))
	mux.HandleFunc("POST /api/transfer", s.handleMutation("transfer", s.transfer))
	mux.HandleFunc("POST /api/joint-spend", s.handleMutation("joint_spend", s.jointSpend))
	mux.HandleFunc("POST /api/buy", s.handleMutation("buy", s.invest(false)))
	mux.HandleFunc("POST /api/sell", s.handleMutation("sell", s.invest(true)))
	mux.HandleFunc("POST /api/settle", s.handleMutation(log.OpSettle, s.settle))

	mux.HandleFunc("PUT /api/rates/{class}", s.handleUpdate(log.OpRate, s.setRate))
	mux.HandleFunc("POST /api/entries/{id}/unsettle", s.handleUpdate(log.OpUnsettle, s.unsettle))
	mux.HandleFunc("DELETE /api/entries/{id}", s.handleUpdate(log.OpDelete, s.deleteEntry))
	mux.HandleFunc("POST /api/import", s.handleUpdate(log.OpImport, s.importSnapshot))

	var h http.Handler = mux
	h = s.limiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "rate_limited", "rate limit exceeded").Write(w)
	})(h)
	h = detector.Middleware(h)
	h = s.headers.Middleware(h)
	h = s.tracer.Middleware(h)
	s.Handler = h

	return s
}

// Shutdown stops the background routines and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// Package http exposes the ledger over a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"tally/internal/core"
	"tally/internal/middleware/ratelimit"
	"tally/internal/middleware/trace"
	"tally/internal/storage"
)

// Ledger is the application surface the API serves. *services.LedgerService
// satisfies it.
type Ledger interface {
	CreateTransaction(ctx context.Context, userID string, draft core.Draft) (*core.Transaction, error)
	EditTransaction(ctx context.Context, userID, id string, draft core.Draft) (*core.Transaction, error)
	DeleteTransaction(ctx context.Context, userID, id string) error
	GetSummary(ctx context.Context, userID string) (core.AggregateState, error)
	ListTransactions(ctx context.Context, userID string, f storage.Filter) ([]core.Transaction, error)
}

type Server struct {
	http.Server
	ledger  Ledger
	limiter *ratelimit.Limiter

	// summaryCache holds per-user aggregate snapshots; entries are dropped
	// on every mutation for that user.
	summaryCache *cache.Cache

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server.
func NewServer(addr string, ledger Ledger) *Server {
	s := &Server{
		ledger:       ledger,
		limiter:      ratelimit.New(rate.Every(time.Second), 30),
		summaryCache: cache.New(5*time.Minute, 10*time.Minute),
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(trace.Middleware)

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.limiter.Middleware)
		r.Get("/summary", s.handleGetSummary)
		r.Get("/transactions", s.handleListTransactions)
		r.Get("/transactions/export", s.handleExportTransactions)
		r.Post("/transactions", s.handleCreateTransaction)
		r.Put("/transactions/{id}", s.handleEditTransaction)
		r.Delete("/transactions/{id}", s.handleDeleteTransaction)
	})

	s.Server = http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Shutdown stops the limiter sweep and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/oracle-backend/internal/models"
	"github.com/redis/go-redis/v9"
)

// Resolver answers price queries (nil timestamp = current price).
type Resolver interface {
	Resolve(ctx context.Context, token string, network models.Network, ts *int64) (*models.PricePoint, error)
}

// Scheduler enqueues backfill jobs.
type Scheduler interface {
	Schedule(ctx context.Context, token string, network models.Network) (string, error)
}

// HistoryStore serves the persisted daily records.
type HistoryStore interface {
	History(ctx context.Context, token string, network models.Network) ([]models.HistoryPoint, error)
}

type Server struct {
	resolver  Resolver
	scheduler Scheduler
	history   HistoryStore

	pool       *pgxpool.Pool
	rdb        *redis.Client
	httpServer *http.Server
	apiKey     string
}

func NewServer(resolver Resolver, scheduler Scheduler, history HistoryStore,
	pool *pgxpool.Pool, rdb *redis.Client, port int, apiKey, corsOrigin string) *Server {

	s := &Server{
		resolver:  resolver,
		scheduler: scheduler,
		history:   history,
		pool:      pool,
		rdb:       rdb,
		apiKey:    apiKey,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/price", s.handlePrice)
	mux.HandleFunc("POST /api/schedule", s.handleSchedule)
	mux.HandleFunc("GET /api/history", s.handleHistory)

	// Health check (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)

	handler := s.authMiddleware(corsMiddleware(mux, corsOrigin))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	fmt.Printf("[API] REST API server started on http://localhost%s\n", s.httpServer.Addr)
	fmt.Printf("[API] Health check: http://localhost%s/health\n", s.httpServer.Addr)
	if s.apiKey != "" {
		fmt.Println("[API] Authentication: enabled (Bearer token)")
	} else {
		fmt.Println("[API] Authentication: disabled (no API_KEY configured)")
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// --- middleware ---

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || token != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler, allowOrigin string) http.Handler {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

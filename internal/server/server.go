package server

import (
	"context"
	"net/http"
	"time"

	"github.com/kashisync/kashisync/internal/utils"
	"github.com/kashisync/kashisync/pkg/merchant"
	"github.com/kashisync/kashisync/pkg/runner"
	"github.com/kashisync/kashisync/pkg/storage"
)

type Server struct {
	DB        *storage.DB
	Runs      *runner.Manager
	Merchants merchant.Registry
	Username  string
	Password  string
}

func New(db *storage.DB, runs *runner.Manager, merchants merchant.Registry, user, pass string) *Server {
	return &Server{
		DB:        db,
		Runs:      runs,
		Merchants: merchants,
		Username:  user,
		Password:  pass,
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/merchants", s.basicAuth(s.handleMerchants))
	mux.HandleFunc("GET /api/status", s.basicAuth(s.handleStatus))
	mux.HandleFunc("POST /api/runs", s.basicAuth(s.handleStartRun))
	mux.HandleFunc("GET /api/runs", s.basicAuth(s.handleRuns))
	mux.HandleFunc("GET /api/changes", s.basicAuth(s.handleChanges))
	mux.HandleFunc("GET /api/stats", s.basicAuth(s.handleStats))
	return mux
}

// Start serves until ctx is canceled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	utils.Log.Infof("Starting server on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Username == "" && s.Password == "" {
			next(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.Username || pass != s.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

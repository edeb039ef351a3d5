// Package server exposes the stored digest read-only over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/deusflow/technews/internal/cache"
	"github.com/deusflow/technews/internal/digest"
	"github.com/deusflow/technews/internal/execlog"
	"github.com/deusflow/technews/internal/logger"
	"github.com/deusflow/technews/internal/metrics"
)

// CacheTTL bounds how long a rendered response is reused.
const CacheTTL = 5 * time.Minute

// FeedRenderer renders the RSS document.
type FeedRenderer interface {
	RSS(latest *digest.Digest, now time.Time) (string, error)
}

// Options wires a Server. Feed and Metrics may be nil.
type Options struct {
	Store            digest.Store
	Feed             FeedRenderer
	Metrics          *metrics.Metrics
	ExecutionLogPath string
	Logger           *slog.Logger
}

type response struct {
	contentType string
	body        []byte
}

// Server answers reads from the digest store. It never triggers a run.
type Server struct {
	opts  Options
	cache *cache.Cache[response]
	log   *slog.Logger
}

func New(opts Options) *Server {
	if opts.Metrics == nil {
		opts.Metrics = metrics.Global
	}
	return &Server{
		opts:  opts,
		cache: cache.New[response](CacheTTL),
		log:   logger.OrDefault(opts.Logger),
	}
}

// Handler returns the routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /news", s.newsHandler)
	mux.HandleFunc("GET /latest.json", s.latestHandler)
	mux.HandleFunc("GET /feed.rss", s.feedHandler)
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /metrics", s.metricsHandler)
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("🌐 starting server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Info("🛑 shutting down server")
		return srv.Shutdown(shutdownCtx)
	}
}

// Close releases the response cache.
func (s *Server) Close() {
	s.cache.Close()
}

// latest reads the digest and the cache key derived from it.
func (s *Server) latest(ctx context.Context) (*digest.Digest, string, error) {
	d, err := s.opts.Store.ReadLatest(ctx)
	if errors.Is(err, digest.ErrNotFound) {
		return nil, "none", nil
	}
	if err != nil {
		return nil, "", err
	}
	return &d, d.GeneratedAt.UTC().Format(time.RFC3339Nano), nil
}

// cached serves route from the cache or renders it once per digest version.
func (s *Server) cached(w http.ResponseWriter, r *http.Request, route string, render func(*digest.Digest) (response, int, error)) {
	d, version, err := s.latest(r.Context())
	if err != nil {
		s.log.Error("failed to read digest", "route", route, "error", err)
		http.Error(w, "digest store unavailable", http.StatusServiceUnavailable)
		return
	}

	key := route + ":" + version
	if resp, ok := s.cache.Get(key); ok {
		write(w, http.StatusOK, resp)
		return
	}

	resp, status, err := render(d)
	if err != nil {
		s.log.Error("failed to render response", "route", route, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if status == http.StatusOK {
		s.cache.Set(key, resp, CacheTTL)
	}
	write(w, status, resp)
}

func (s *Server) newsHandler(w http.ResponseWriter, r *http.Request) {
	s.cached(w, r, "news", func(d *digest.Digest) (response, int, error) {
		text := digest.NotGeneratedText
		if d != nil {
			text = digest.FormatReply(*d)
		}
		return response{contentType: "text/plain; charset=utf-8", body: []byte(text)}, http.StatusOK, nil
	})
}

func (s *Server) latestHandler(w http.ResponseWriter, r *http.Request) {
	s.cached(w, r, "latest", func(d *digest.Digest) (response, int, error) {
		if d == nil {
			body, _ := json.Marshal(map[string]string{"error": "digest not found"})
			return response{contentType: "application/json", body: body}, http.StatusNotFound, nil
		}
		body, err := json.Marshal(d)
		if err != nil {
			return response{}, 0, err
		}
		return response{contentType: "application/json", body: body}, http.StatusOK, nil
	})
}

func (s *Server) feedHandler(w http.ResponseWriter, r *http.Request) {
	if s.opts.Feed == nil {
		http.NotFound(w, r)
		return
	}
	s.cached(w, r, "feed", func(d *digest.Digest) (response, int, error) {
		now := time.Now()
		if d != nil {
			now = d.GeneratedAt
		}
		doc, err := s.opts.Feed.RSS(d, now)
		if err != nil {
			return response{}, 0, fmt.Errorf("failed to render feed: %w", err)
		}
		return response{contentType: "application/rss+xml; charset=utf-8", body: []byte(doc)}, http.StatusOK, nil
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "unknown"
	body := map[string]interface{}{"status": status}

	rec, err := execlog.Load(s.opts.ExecutionLogPath)
	if err == nil {
		status = "ok"
		if rec.Outcome != execlog.OutcomeSuccess {
			status = "error"
		}
		body = map[string]interface{}{
			"status":      status,
			"run_id":      rec.RunID,
			"target_date": rec.TargetDate,
			"last_run":    rec.FinishedAt.Format(time.RFC3339),
			"failed_step": rec.FailedStep,
			"last_error":  rec.Error,
		}
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	stats := s.opts.Metrics.GetStats()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func write(w http.ResponseWriter, status int, resp response) {
	w.Header().Set("Content-Type", resp.contentType)
	w.WriteHeader(status)
	w.Write(resp.body)
}

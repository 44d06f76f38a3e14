package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/levenlabs/go-lflag"

	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/common"
	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/dashboard"
	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/log"
	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/telemetry"
)

// Server serves the dashboard and, optionally, Prometheus metrics on a
// separate listener.
type Server struct {
	app *dashboard.App

	listenAddr     string
	metricsAddr    string
	refreshSeconds int
	serverName     string
}

// Configured registers the server flags. The dashboard is attached with
// WithFetcher once the data source is known.
func Configured() *Server {
	srv := &Server{
		serverName: "cantao-solax/" + common.Version(),
	}

	listenAddr := lflag.String("http-listen", "127.0.0.1:5000", "Dashboard listen address")
	metricsAddr := lflag.String("metrics-listen", "", "Prometheus metrics listen address, disabled if empty")
	refreshSeconds := lflag.Int("refresh-seconds", 30, "Dashboard auto-refresh interval in seconds")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.metricsAddr = *metricsAddr
		if *refreshSeconds <= 0 {
			log.Ctx(context.Background()).Error("refresh-seconds must be positive", slog.Int("refresh-seconds", *refreshSeconds))
			os.Exit(1)
		}
		srv.refreshSeconds = *refreshSeconds
	})

	return srv
}

// WithFetcher attaches the dashboard for fetcher. prefix names the summary
// card keys.
func (s *Server) WithFetcher(fetcher dashboard.Fetcher, prefix string) *Server {
	s.app = dashboard.NewApp(fetcher, s.refreshSeconds, prefix)
	return s
}

func (s *Server) setupHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /metrics.json", s.handleMetricsJSON)
	mux.HandleFunc("/", s.handleNotFound)
	return s.requestMiddleware(s.revisionMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux))))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	body := s.app.RenderIndex(r.Context(), r.URL.Query().Get("q"))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(body)); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleMetricsJSON(w http.ResponseWriter, r *http.Request) {
	status, body := s.app.RenderMetricsJSON(r.Context())
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "not found", http.StatusNotFound)
}

// Run starts the dashboard (and metrics listener if configured) and blocks
// until the context is canceled or a listener fails.
func (s *Server) Run(ctx context.Context) error {
	if s.app == nil {
		return errors.New("server has no dashboard attached")
	}

	servers := []*http.Server{{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}}
	if s.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", telemetry.Handler())
		servers = append(servers, &http.Server{
			Addr:        s.metricsAddr,
			Handler:     mux,
			ReadTimeout: 15 * time.Second,
		})
	}

	errChan := make(chan error, len(servers))
	for _, hs := range servers {
		go func() {
			log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", hs.Addr))
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
	case err := <-errChan:
		runErr = fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, hs := range servers {
		if err := hs.Shutdown(shutdownCtx); err != nil && runErr == nil {
			runErr = fmt.Errorf("server shutdown failed: %w", err)
		}
	}
	return runErr
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// requestMiddleware logs each request and records it in telemetry. Unknown
// paths share one label.
func (s *Server) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		path := r.URL.Path
		if path != "/" && path != "/metrics.json" {
			path = "other"
		}
		telemetry.ObserveRequest(path, rec.status)
		log.Ctx(r.Context()).InfoContext(
			r.Context(),
			"dashboard request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

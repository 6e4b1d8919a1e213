package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	xlog "github.com/treefix50/trainingtime/internal/log"
)

const (
	defaultPersistInterval = 5 * time.Second
	shutdownTimeout        = 3 * time.Second
)

type Options struct {
	Root  string
	Addr  string
	Store VideoStore

	CORS              bool
	RequestsPerMinute int

	ScanInterval  time.Duration
	Watch         bool
	WatchDebounce time.Duration

	ResumeUnlocksSeek bool
	PersistInterval   time.Duration
	SessionTTL        time.Duration

	// Logger defaults to the "server" component logger.
	Logger *zerolog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

type Server struct {
	opts     Options
	lib      *Library
	store    VideoStore
	sessions *SessionRegistry
	persist  *RateLimiter
	logger   zerolog.Logger
	now      func() time.Time
	handler  http.Handler
	http     *http.Server

	closeOnce sync.Once
}

func New(opts Options) (*Server, error) {
	logger := xlog.WithComponent("server")
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	lib, err := NewLibrary(opts.Root, opts.Store)
	if err != nil {
		return nil, fmt.Errorf("server: open library: %w", err)
	}
	// initial scan
	if err := lib.Scan(); err != nil {
		return nil, fmt.Errorf("server: initial scan: %w", err)
	}
	logger.Info().Str("root", lib.Root()).Int("videos", len(lib.All())).Msg("library scanned")

	interval := opts.PersistInterval
	if interval <= 0 {
		interval = defaultPersistInterval
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Server{
		opts:    opts,
		lib:     lib,
		store:   opts.Store,
		persist: NewRateLimiter(interval),
		logger:  logger,
		now:     now,
	}
	s.persist.now = now
	s.sessions = newSessionRegistry(opts.SessionTTL, func(ws *WatchSession) {
		s.finishSession(ws, "expired")
	}, now)
	s.handler = s.routes()
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.handler }
func (s *Server) Library() *Library { return s.lib }

// Run serves HTTP and keeps the library fresh until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info().Str("addr", s.opts.Addr).Msg("listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listen: %w", err)
		}
		return nil
	})

	if s.opts.ScanInterval > 0 {
		g.Go(func() error {
			s.runScanTicker(ctx)
			return nil
		})
	}

	if s.opts.Watch {
		lw, err := NewLibraryWatcher(s.lib, s.opts.WatchDebounce, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("library watcher disabled")
		} else {
			g.Go(func() error { return lw.Run(ctx) })
		}
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	s.Close()
	return err
}

func (s *Server) Close() {
	s.closeOnce.Do(func() {
		for _, ws := range s.sessions.Close() {
			s.finishSession(ws, "shutdown")
		}
	})
}

func (s *Server) runScanTicker(ctx context.Context) {
	ticker := time.NewTicker(s.opts.ScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.lib.Scan(); err != nil {
				s.logger.Warn().Err(err).Msg("periodic scan failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(logMiddleware(s.logger))
	if s.opts.CORS {
		r.Use(corsMiddleware)
	}
	if rpm := s.opts.RequestsPerMinute; rpm > 0 {
		r.Use(httprate.Limit(
			rpm,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", strconv.Itoa(60))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			}),
		))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/categories", s.handleCategories)
	r.Get("/library", s.handleLibrary)
	r.Post("/library/scan", s.handleScan)

	r.Route("/videos", func(r chi.Router) {
		r.Get("/", s.handleListVideos)
		r.Route("/{videoID}", func(r chi.Router) {
			r.Get("/", s.handleGetVideo)
			r.Delete("/progress", s.handleResetProgress)
			r.Post("/sessions", s.handleCreateSession)
		})
	})

	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", s.handleGetSession)
		r.Post("/events", s.handleSessionEvents)
		r.Post("/toggle", s.handleSessionToggle)
		r.Delete("/", s.handleCloseSession)
	})

	r.Get("/viewers/{viewerID}/progress", s.handleViewerProgress)
	r.Get("/stats", s.handleStats)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", textContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) storeWritable() bool {
	return s.store != nil && !s.store.ReadOnly()
}

package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/snarg/scanmap/internal/apikeys"
	"github.com/snarg/scanmap/internal/config"
	"github.com/snarg/scanmap/internal/database"
	"github.com/snarg/scanmap/internal/livefeed"
	"github.com/snarg/scanmap/internal/metrics"
	"github.com/snarg/scanmap/internal/storage"
)

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// ServerOptions collects the collaborators the HTTP surface needs.
type ServerOptions struct {
	Config    *config.Config
	DB        *database.DB
	Store     storage.AudioStore
	Keys      *apikeys.Store
	Pipeline  Ingestor
	Bus       *livefeed.EventBus
	Version   string
	StartTime time.Time
	Log       zerolog.Logger
}

func NewServer(opts ServerOptions) *Server {
	cfg := opts.Config
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(opts.Log))
	r.Use(CORS)
	r.Use(metrics.InstrumentHandler)

	health := NewHealthHandler(opts.DB, opts.Version, opts.StartTime)
	r.Get("/api/health", health.ServeHTTP)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	NewAudioHandler(opts.DB, opts.Store, opts.Log).Routes(r)

	upload := NewUploadHandler(opts.Keys, opts.Pipeline, cfg.Location(), opts.Log)
	calls := NewCallsHandler(opts.DB, opts.Log)
	logs := NewLogsHandler(cfg.LogDir, opts.Log)
	markers := NewMarkersHandler(opts.DB, opts.Log)

	r.Route("/api", func(r chi.Router) {
		upload.Routes(r)
		calls.Routes(r)
		logs.Routes(r)
		if opts.Bus != nil {
			NewEventsHandler(opts.Bus).Routes(r)
		}

		// Admin mutations
		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(cfg.AdminToken))
			markers.Routes(r)
		})
	})

	return &Server{
		http: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.BotPort),
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: opts.Log,
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/invernadero/internal/api"
	"github.com/friendsincode/invernadero/internal/cache"
	"github.com/friendsincode/invernadero/internal/config"
	"github.com/friendsincode/invernadero/internal/db"
	"github.com/friendsincode/invernadero/internal/eventbus"
	"github.com/friendsincode/invernadero/internal/events"
	"github.com/friendsincode/invernadero/internal/logbuffer"
	"github.com/friendsincode/invernadero/internal/service"
	"github.com/friendsincode/invernadero/internal/simulation"
	"github.com/friendsincode/invernadero/internal/storage"
	"github.com/friendsincode/invernadero/internal/store"
	"github.com/friendsincode/invernadero/internal/telemetry"
	"github.com/friendsincode/invernadero/internal/version"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db        *gorm.DB
	cache     *cache.Cache
	logBuffer *logbuffer.Buffer
	bus       eventbus.Bus
	archive   storage.ObjectStore
	svc       *service.Service
	api       *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
// logBuf may be nil.
func New(ctx context.Context, cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("invernadero-api"))
	router.Use(telemetry.MetricsMiddleware)
	router.Use(middleware.Timeout(60 * time.Second))

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    router,
		logBuffer: logBuf,
	}

	if err := srv.initDependencies(ctx); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies(ctx context.Context) error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	s.DeferClose(func() error { return db.Close(database) })
	if err := db.Migrate(database); err != nil {
		return err
	}
	s.db = database

	if s.cfg.RedisEnabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.RedisAddr = s.cfg.RedisAddr
		cacheCfg.RedisPassword = s.cfg.RedisPassword
		cacheCfg.RedisDB = s.cfg.RedisDB
		s.cache = cache.New(cacheCfg, s.logger)
		s.DeferClose(func() error { return s.cache.Close() })
	}

	s.bus = newEventBus(ctx, s.cfg, s.logger)
	s.DeferClose(func() error { return s.bus.Close() })

	archive, err := newArchive(ctx, s.cfg, s.logger)
	if err != nil {
		return err
	}
	s.archive = archive

	s.svc = service.New(service.Deps{
		Store:   store.New(database, s.logger),
		Engine:  simulation.NewEngine(s.logger),
		Cache:   s.cache,
		Bus:     s.bus,
		Archive: s.archive,
	}, s.logger)

	s.api = api.New(s.svc, api.Options{
		JWTSecret:      []byte(s.cfg.JWTSigningKey),
		MaxUploadBytes: s.cfg.MaxUploadSizeBytes(),
		GraphvizBin:    s.cfg.GraphvizBin,
		LogBuffer:      s.logBuffer,
	}, s.logger)

	if len(s.cfg.JWTSigningKey) == 0 {
		s.logger.Warn().Msg("INVERNADERO_JWT_SIGNING_KEY not set, mutating routes are unauthenticated")
	}
	return nil
}

// newEventBus picks the configured backend. Remote backends degrade to
// in-process delivery when their broker is unreachable.
func newEventBus(ctx context.Context, cfg *config.Config, logger zerolog.Logger) eventbus.Bus {
	switch cfg.EventBus {
	case config.EventBusNATS:
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		natsCfg.SubjectPrefix = cfg.NATSSubject
		return eventbus.NewNATSBus(ctx, natsCfg, eventbus.NodeID(), logger)
	case config.EventBusRedis:
		redisCfg := eventbus.DefaultRedisConfig()
		redisCfg.Addr = cfg.RedisAddr
		redisCfg.Password = cfg.RedisPassword
		redisCfg.DB = cfg.RedisDB
		return eventbus.NewRedisBus(redisCfg, eventbus.NodeID(), logger)
	default:
		return eventbus.NewLocal()
	}
}

// newArchive returns the salida archive: S3 when a bucket is configured,
// a local directory when ArchiveDir is set, nil otherwise.
func newArchive(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (storage.ObjectStore, error) {
	switch {
	case cfg.S3Bucket != "":
		s3, err := storage.NewS3(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UsePathStyle:    cfg.S3UsePathStyle,
			Prefix:          cfg.S3Prefix,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("initialize s3 archive: %w", err)
		}
		return s3, nil
	case cfg.ArchiveDir != "":
		fs, err := storage.NewFilesystem(cfg.ArchiveDir)
		if err != nil {
			return nil, fmt.Errorf("initialize archive directory %s: %w", cfg.ArchiveDir, err)
		}
		logger.Info().Str("path", cfg.ArchiveDir).Msg("salida archive directory ready")
		return fs, nil
	default:
		logger.Info().Msg("salida archive disabled")
		return nil, nil
	}
}

// HTTPServer exposes the configured http.Server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// LogBuffer returns the in-memory log buffer, nil when disabled.
func (s *Server) LogBuffer() *logbuffer.Buffer {
	return s.logBuffer
}

// Handler returns the root router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close stops background workers and releases resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers fn to run on Close.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	if s.db != nil && s.cfg.MetricsEnabled {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			db.WatchConnections(ctx, s.db, 15*time.Second)
		}()
	}

	if s.bus != nil {
		for _, eventType := range []events.EventType{
			events.EventGreenhousesLoaded,
			events.EventSimulationCompleted,
			events.EventRunArchived,
		} {
			sub := s.bus.Subscribe(eventType)
			s.bgWG.Add(1)
			go func(eventType events.EventType, sub events.Subscriber) {
				defer s.bgWG.Done()
				defer s.bus.Unsubscribe(eventType, sub)
				s.logEvents(ctx, eventType, sub)
			}(eventType, sub)
		}
	}
}

// logEvents records bus traffic so runs triggered on other nodes show up in
// this node's log as well.
func (s *Server) logEvents(ctx context.Context, eventType events.EventType, sub events.Subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			s.logger.Info().Str("event", string(eventType)).Interface("payload", payload).Msg("event")
		}
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","version":%q}`, version.Version)
	})

	if s.cfg.MetricsEnabled {
		s.router.Handle("/metrics", telemetry.Handler())
	}

	s.api.Routes(s.router)
}

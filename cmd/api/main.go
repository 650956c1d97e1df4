package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"promo-console-api/internal/auth"
	"promo-console-api/internal/blob"
	"promo-console-api/internal/cache"
	"promo-console-api/internal/config"
	"promo-console-api/internal/draw"
	"promo-console-api/internal/events"
	"promo-console-api/internal/features"
	"promo-console-api/internal/handler"
	"promo-console-api/internal/middleware"
	"promo-console-api/internal/promotion"
	"promo-console-api/internal/service"
	"promo-console-api/internal/store"
	"promo-console-api/internal/sweeper"
	"promo-console-api/internal/tracing"
)

func main() {
	configFile := flag.String("config", "", "Path to JSON config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.Log)

	// Tracing
	if _, err := tracing.InitTracing(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: "promo-console-api",
		Environment: cfg.Tracing.Environment,
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracing")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}()

	// Document store
	db, err := store.New(cfg.Database.Path, store.Options{
		CallTimeout:  cfg.Store.CallTimeout,
		MaxRetries:   cfg.Store.MaxRetries,
		RetryBackoff: cfg.Store.RetryBackoff,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize store")
	}
	defer db.Close()

	// Cache: Redis when configured, in-memory otherwise
	var c cache.Cache
	if cfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisCache.Close()
		c = redisCache
		log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis cache")
	} else {
		c = cache.NewInMemoryCache()
		log.Info().Msg("using in-memory cache")
	}

	// Blob store
	blobs, err := blob.NewDiskStore(cfg.Blob.Dir, cfg.Blob.BaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize blob store")
	}

	// Feature flags
	flags := features.NewManager()
	flags.Register(features.FeatureCacheEnabled, true, "active content view cache")
	flags.Register(features.FeatureEventHooksEnabled, true, "in-process event hooks")
	flags.Register(features.FeatureBackgroundSweep, true, "interval-driven expiry sweep")

	// Events
	ev := events.NewManager(flags.IsEnabled(features.FeatureEventHooksEnabled))
	defer ev.Shutdown()
	registerAuditHooks(ev, log.With().Str("component", "audit").Logger())

	// Core components
	sw := sweeper.New(db, c, ev, log.With().Str("component", "sweeper").Logger(), cfg.Sweep.Interval)
	engine := draw.New(db, ev, log.With().Str("component", "draw").Logger())
	ctrl := promotion.NewController(db, engine, ev, log.With().Str("component", "promotion").Logger())
	svc := service.NewService(db, blobs, c, sw, ev, flags, log.With().Str("component", "service").Logger())
	h := handler.NewHandlerWithOptions(svc, ctrl, handler.NewHandlerOptions{
		MaxBodySize: cfg.Server.MaxRequestBodySize,
	})

	// Background sweep scheduler, detached from client sessions
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if flags.IsEnabled(features.FeatureBackgroundSweep) {
		go sw.Run(ctx)
	}

	// Identity
	verifier := auth.NewVerifier(cfg.Auth.TokenSecret, cfg.Auth.Issuer)

	// Rate limiter
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Rate, time.Duration(cfg.RateLimit.Window)*time.Second)
	defer rateLimiter.Stop()

	// Router
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.TracingMiddleware())

	if cfg.RateLimit.Enabled {
		r.Use(middleware.RateLimitMiddleware(rateLimiter))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.Server.AllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public surface
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle(cfg.Blob.BaseURL+"/*", http.StripPrefix(cfg.Blob.BaseURL+"/",
		http.FileServer(http.Dir(blobs.Root()))))

	// Authenticated console surface
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier))

		r.Route("/promotions", func(r chi.Router) {
			r.Post("/", h.CreatePromotion)
			r.Get("/", h.ListPromotions)
			r.Get("/{promotion_id}", h.GetPromotion)
			r.Delete("/{promotion_id}", h.DeactivatePromotion)
			r.Post("/{promotion_id}/draw", h.DrawWinner)
			r.Post("/{promotion_id}/deactivate", h.DeactivatePromotion)
			r.Get("/{promotion_id}/participants", h.ListParticipants)
			r.Get("/{promotion_id}/winners", h.ListWinners)
		})

		r.Route("/content", func(r chi.Router) {
			r.Post("/", h.UploadContent)
			r.Get("/", h.ListContent)
			r.Delete("/", h.DeleteContent)
		})

		r.Route("/social", func(r chi.Router) {
			r.Get("/", h.ListSocialLinks)
			r.Put("/{platform}", h.SetSocialLink)
		})

		r.Post("/participants/{participant_id}/receipt", h.MarkPrizeReceived)
	})

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	server := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown failed")
		}
	}()

	log.Info().
		Str("addr", addr).
		Str("database", cfg.Database.Path).
		Dur("sweep_interval", cfg.Sweep.Interval).
		Msg("server starting")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server failed")
	}
}

// registerAuditHooks subscribes log-only handlers for the state transitions
// operators care about after the fact.
func registerAuditHooks(ev *events.Manager, log zerolog.Logger) {
	ev.Subscribe(events.EventDrawCompleted, func(ctx context.Context, e events.Event) error {
		if data, ok := e.Data.(events.DrawCompletedData); ok {
			log.Info().
				Str("account", data.AccountID).
				Str("promotion", data.PromotionID).
				Str("winner", data.Winner.ID).
				Time("drawn_at", data.DrawnAt).
				Msg("draw completed")
		}
		return nil
	})

	ev.Subscribe(events.EventPromotionDeactivated, func(ctx context.Context, e events.Event) error {
		if data, ok := e.Data.(events.PromotionDeactivatedData); ok {
			log.Info().
				Str("account", data.AccountID).
				Str("promotion", data.PromotionID).
				Msg("promotion deactivated")
		}
		return nil
	})

	ev.Subscribe(events.EventContentExpired, func(ctx context.Context, e events.Event) error {
		if data, ok := e.Data.(events.ContentExpiredData); ok {
			log.Info().
				Str("account", data.AccountID).
				Strs("paths", data.StoragePaths).
				Msg("content expired")
		}
		return nil
	})

	ev.Subscribe(events.EventContentUploaded, func(ctx context.Context, e events.Event) error {
		if data, ok := e.Data.(events.ContentUploadedData); ok {
			log.Info().
				Str("account", data.AccountID).
				Str("path", data.Item.StoragePath).
				Msg("content uploaded")
		}
		return nil
	})
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out = os.Stderr
	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	if cfg.Pretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: out})
	}
	return logger
}

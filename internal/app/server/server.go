package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"evalhub/internal/domain/audit"
	"evalhub/internal/domain/auth"
	"evalhub/internal/domain/directory"
	"evalhub/internal/domain/evaluation"
	"evalhub/internal/domain/notifications"
	"evalhub/internal/domain/questions"
	"evalhub/internal/domain/reports"
	"evalhub/internal/platform/config"
	"evalhub/internal/platform/crypto"
	"evalhub/internal/platform/db"
	"evalhub/internal/platform/email"
	"evalhub/internal/platform/jobs"
	"evalhub/internal/platform/metrics"
	"evalhub/internal/platform/querier"
	"evalhub/internal/transport/http/api"
	audithandler "evalhub/internal/transport/http/handlers/audit"
	authhandler "evalhub/internal/transport/http/handlers/auth"
	directoryhandler "evalhub/internal/transport/http/handlers/directory"
	evaluationshandler "evalhub/internal/transport/http/handlers/evaluations"
	notificationshandler "evalhub/internal/transport/http/handlers/notifications"
	questionshandler "evalhub/internal/transport/http/handlers/questions"
	reportshandler "evalhub/internal/transport/http/handlers/reports"
	"evalhub/internal/transport/http/middleware"
)

type App struct {
	Config  config.Config
	DB      querier.DB
	Router  http.Handler
	Jobs    *jobs.Service
	Metrics *metrics.Collector

	stopJobs context.CancelFunc
}

// Options swaps out the collaborators tests need to control.
type Options struct {
	Clock  evaluation.Clock
	Mailer notifications.Mailer
}

// Run serves until SIGINT or SIGTERM.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("server shutdown failed", "err", err)
		}
	}()

	slog.Info("evalhub server listening", "addr", cfg.Addr, "driver", cfg.DatabaseDriver)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// New validates cfg, opens and prepares the database, and builds the app.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.RunMigrations {
		if err := db.Migrate(ctx, cfg); err != nil {
			return nil, fmt.Errorf("migrations failed: %w", err)
		}
	}
	store, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.RunSeed {
		if err := db.Seed(ctx, store, cfg, time.Now().UTC()); err != nil {
			store.Close()
			return nil, fmt.Errorf("seed failed: %w", err)
		}
	}
	app, err := Build(ctx, cfg, store, Options{})
	if err != nil {
		store.Close()
		return nil, err
	}
	return app, nil
}

// Build wires services and routes on an already migrated database.
func Build(ctx context.Context, cfg config.Config, store querier.DB, opts Options) (*App, error) {
	if opts.Clock == nil {
		opts.Clock = evaluation.SystemClock
	}
	if opts.Mailer == nil {
		opts.Mailer = email.New(cfg)
	}
	if cfg.JWTSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		slog.Warn("JWT_SECRET not set, using an ephemeral secret; tokens will not survive a restart")
		cfg.JWTSecret = secret
	}

	secrets, err := crypto.New(cfg.DataEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption init failed: %w", err)
	}

	jobCtx, stopJobs := context.WithCancel(context.Background())
	jobService := jobs.New(0)
	jobService.Start(jobCtx)
	collector := metrics.New()

	evalStore := evaluation.NewStore(store)
	gate := evaluation.NewGate(evalStore, opts.Clock)
	if err := gate.Init(ctx, cfg.EvaluationsEnabledDefault); err != nil {
		stopJobs()
		return nil, fmt.Errorf("gate init failed: %w", err)
	}

	perms := auth.RolePermissionStore{}
	auditService := audit.New(store)
	evaluationService := evaluation.NewService(evalStore, gate, opts.Clock, cfg.Location())
	authService := auth.NewService(auth.NewStore(store), secrets, auth.Options{
		JWTSecret:     cfg.JWTSecret,
		TokenTTL:      cfg.TokenTTL,
		AllowedDomain: cfg.AllowedEmailDomain,
	})
	directoryService := directory.NewService(directory.NewStore(store), directory.Options{
		AllowedDomain:   cfg.AllowedEmailDomain,
		DefaultPassword: cfg.DefaultSupervisorPassword,
	})
	questionService := questions.NewService(questions.NewStore(store))
	reportService := reports.NewService(reports.NewStore(store), evaluationService)
	notifier := notifications.New(notifications.NewStore(store), opts.Mailer, jobService, cfg.EmailFrom)

	requestLogger := middleware.NewRequestLogger(cfg.Environment)
	slog.SetDefault(requestLogger.Logger)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(requestLogger, collector))
	router.Use(chimw.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", middleware.IdempotencyHeader},
			ExposedHeaders: []string{"X-Request-ID", "X-Total-Count", "Content-Disposition"},
			MaxAge:         300,
		}))
	}
	router.Use(middleware.SecureHeaders(cfg.IsProduction()))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.Auth(cfg.JWTSecret))
	router.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	router.Route("/api/v1", func(r chi.Router) {
		authHandler := authhandler.NewHandler(authService)
		r.Post("/auth/login", authHandler.HandleLogin)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Post("/auth/logout", authHandler.HandleLogout)
			r.Get("/auth/me", authHandler.HandleMe)
			r.Post("/auth/password", authHandler.HandleChangePassword)
			r.Post("/auth/mfa/setup", authHandler.HandleMFASetup)
			r.Post("/auth/mfa/enable", authHandler.HandleMFAEnable)
			r.Post("/auth/mfa/disable", authHandler.HandleMFADisable)
		})

		evaluationHandler := evaluationshandler.NewHandler(evaluationService, perms, auditService, notifier, middleware.NewIdempotencyStore(store), collector)
		evaluationHandler.ExportLimit = middleware.RateLimit(cfg.ExportRateLimitPerMinute, time.Minute)
		evaluationHandler.RegisterRoutes(r)
		directoryhandler.NewHandler(directoryService, perms, auditService).RegisterRoutes(r)
		questionshandler.NewHandler(questionService, perms, auditService).RegisterRoutes(r)
		reportshandler.NewHandler(reportService, perms).RegisterRoutes(r)
		audithandler.NewHandler(auditService, perms).RegisterRoutes(r)
		notificationshandler.NewHandler(notifier, jobService, evaluationService, perms).RegisterRoutes(r)

		if cfg.MetricsEnabled {
			r.With(middleware.RequirePermission(auth.PermAuditRead, perms)).Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
				api.Success(w, collector.Snapshot(), middleware.GetRequestID(r.Context()))
			})
		}
	})

	return &App{
		Config:   cfg,
		DB:       store,
		Router:   router,
		Jobs:     jobService,
		Metrics:  collector,
		stopJobs: stopJobs,
	}, nil
}

// Close drains queued jobs, then closes the database.
func (a *App) Close() {
	a.Jobs.Wait()
	a.stopJobs()
	a.DB.Close()
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

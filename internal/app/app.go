// Package app assembles the license server: configuration, persistence,
// services, delivery queue, and the HTTP router, plus graceful shutdown.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/serkayon/biolic/internal/config"
	"github.com/serkayon/biolic/internal/crypto"
	"github.com/serkayon/biolic/internal/infrastructure"
	"github.com/serkayon/biolic/internal/license"
	"github.com/serkayon/biolic/internal/mailer"
	"github.com/serkayon/biolic/internal/middleware"
	"github.com/serkayon/biolic/internal/otp"
	"github.com/serkayon/biolic/internal/services"
	"github.com/serkayon/biolic/internal/store"
	transport "github.com/serkayon/biolic/internal/transport/http"
	"github.com/serkayon/biolic/internal/users"
)

// Application owns every long-lived component of the license server
type Application struct {
	cfg       *config.Config
	log       *slog.Logger
	db        *sql.DB
	queue     *mailer.Queue
	providers *infrastructure.OTelProviders
	server    *http.Server
}

// New builds the application from configuration. It connects (and
// migrates) the database when the postgres driver is selected, falls
// back to in-process repositories for the memory driver, and wires the
// full service and handler graph.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	log, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	providers, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), log)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry: %w", err)
	}

	codec, err := crypto.NewCodec(cfg.Crypto.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("initialize license codec: %w", err)
	}

	app := &Application{cfg: cfg, log: log, providers: providers}

	var (
		licRepo  license.Repository
		otpRepo  otp.Repository
		userRepo users.Repository
	)
	switch cfg.Database.Driver {
	case "memory":
		log.Warn("using in-memory store, data will not survive a restart")
		licRepo = license.NewMemoryRepository()
		otpRepo = otp.NewMemoryRepository()
		userRepo = users.NewMemoryRepository()
	default:
		db, err := store.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		app.db = db
		licRepo = license.NewPostgresRepository(db)
		otpRepo = otp.NewPostgresRepository(db)
		userRepo = users.NewPostgresRepository(db)
	}

	var sender mailer.Sender
	if cfg.Mail.IsConfigured() {
		sender = mailer.NewSMTPSender(cfg.Mail, int(cfg.OTP.TTL.Minutes()))
	} else {
		log.Warn("smtp not configured, verification mails will be dropped")
		sender = mailer.NopSender{}
	}
	app.queue = mailer.NewQueue(sender, log, cfg.OTP.QueueSize, cfg.Mail.SendTimeout)

	licSvc := services.NewLicenseService(licRepo, userRepo, codec, log)
	otpSvc := services.NewOTPService(otpRepo, app.queue, log, cfg.OTP.CodeLength, cfg.OTP.TTL, cfg.OTP.MaxAttempts)
	healthSvc := services.NewHealthService(app.db)

	router := app.buildRouter(licSvc, otpSvc, healthSvc)

	app.server = &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	return app, nil
}

func (a *Application) buildRouter(licSvc *services.LicenseService, otpSvc *services.OTPService, healthSvc *services.HealthService) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.StructuredLogger(a.log))
	r.Use(middleware.Recoverer(a.log))
	r.Use(middleware.SecurityHeaders)

	if a.cfg.Security.EnableCORS {
		r.Use(middleware.CORS(middleware.CORSConfig{
			AllowedOrigins: a.cfg.Security.AllowedOrigins,
		}))
	}
	if a.cfg.Security.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(a.cfg.Security.RateLimit.RPS, a.cfg.Security.RateLimit.Burst, a.log)
		r.Use(limiter.Handler)
	}

	r.Mount("/subscriptions", transport.NewSubscriptionsHandler(licSvc, a.log).Routes())
	r.Mount("/otp", transport.NewOTPHandler(otpSvc, a.log).Routes())
	r.Mount("/", transport.NewHealthHandler(healthSvc).Routes())

	if a.providers.PrometheusHTTP != nil {
		r.Handle("/metrics", a.providers.PrometheusHTTP)
	}

	return r
}

// Run starts the delivery queue and serves HTTP until ctx is cancelled,
// then shuts everything down in dependency order.
func (a *Application) Run(ctx context.Context) error {
	a.queue.Start()

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("license server listening", slog.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server shutdown failed", slog.String("error", err.Error()))
	}

	// drain pending mail before closing the store it no longer needs
	a.queue.Stop()

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Error("database close failed", slog.String("error", err.Error()))
		}
	}

	if err := a.providers.Shutdown(shutdownCtx); err != nil {
		a.log.Error("telemetry shutdown failed", slog.String("error", err.Error()))
	}

	return nil
}

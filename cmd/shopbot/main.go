package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alextreichler/shopbot/internal/access"
	"github.com/alextreichler/shopbot/internal/bot"
	"github.com/alextreichler/shopbot/internal/clock"
	"github.com/alextreichler/shopbot/internal/config"
	"github.com/alextreichler/shopbot/internal/discord"
	"github.com/alextreichler/shopbot/internal/handlers"
	"github.com/alextreichler/shopbot/internal/logging"
	"github.com/alextreichler/shopbot/internal/metrics"
	"github.com/alextreichler/shopbot/internal/pricefeed"
	"github.com/alextreichler/shopbot/internal/reminder"
	"github.com/alextreichler/shopbot/internal/shop"
	"github.com/alextreichler/shopbot/internal/store"
	"github.com/gorilla/csrf"
	"github.com/gorilla/sessions"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", os.Getenv("SHOPBOT_CONFIG"), "optional config file (.env, .yaml or .json)")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger, closer, err := logging.Init(cfg.Log)
	if err != nil {
		slog.Error("Failed to set up logging", "error", err)
		os.Exit(1)
	}
	defer closer.Close()
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Shop bot exited with error", "error", err)
		closer.Close()
		os.Exit(1)
	}
	logger.Info("Shop bot exited gracefully.")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Init DB
	db, err := store.NewStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	db.WithLogger(logger)
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	// 3. Domain services
	m := metrics.New()
	var quoter pricefeed.Quoter
	if cfg.FixedLTCRate.IsPositive() {
		logger.Info("Using fixed LTC/USD rate", "rate", cfg.FixedLTCRate.String())
		quoter = pricefeed.Fixed{Rate: cfg.FixedLTCRate}
	} else {
		quoter = pricefeed.NewCoinGecko(cfg.PriceFeedURL, cfg.PriceFeedTimeout, cfg.PriceCacheTTL)
	}

	chat, err := discord.New(cfg.DiscordToken, logger)
	if err != nil {
		return err
	}
	clk := clock.NewSystem()
	svc := shop.NewService(shop.Deps{
		Store:          db,
		Quoter:         quoter,
		Notifier:       chat,
		Clock:          clk,
		Metrics:        m,
		Logger:         logger,
		AdminChannelID: cfg.AdminChannelID,
		Prefix:         cfg.CommandPrefix,
	})
	router := bot.NewRouter(bot.Deps{
		Shop:       svc,
		Guard:      access.NewGuard(db, cfg.AdminRoleID, clk, logger),
		Notifier:   chat,
		Metrics:    m,
		Logger:     logger,
		Prefix:     cfg.CommandPrefix,
		LTCAddress: cfg.LTCAddress,
	})
	reminders := reminder.New(reminder.Deps{
		Store:    db,
		Notifier: chat,
		Metrics:  m,
		Logger:   logger,
		Interval: cfg.ReminderInterval,
		Address:  cfg.LTCAddress,
		Prefix:   cfg.CommandPrefix,
	})

	// 4. Dashboard
	sessionStore := sessions.NewCookieStore(cfg.SessionKey)
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.Secure = cfg.CookieSecure
	sessionStore.Options.SameSite = http.SameSiteLaxMode
	sessionStore.Options.Path = "/"
	if cfg.CookieDomain != "" {
		sessionStore.Options.Domain = cfg.CookieDomain
	}

	templates := handlers.NewTemplateCache()
	if err := templates.Load(); err != nil {
		return err
	}
	adminHandler := &handlers.AdminHandler{
		Store:        db,
		Shop:         svc,
		SessionStore: sessionStore,
		Templates:    templates,
		Logger:       logger,
	}
	limiter := handlers.NewRateLimiter(5, time.Minute)
	mux := handlers.Routes(adminHandler, limiter, m.Handler())

	CSRF := csrf.Protect(
		cfg.CSRFKey,
		csrf.Secure(cfg.CookieSecure),
		csrf.TrustedOrigins([]string{"localhost:" + cfg.Port, "127.0.0.1:" + cfg.Port, "localhost", "127.0.0.1"}),
	)
	// Chain: Logger -> Security Headers -> CSRF -> Mux
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.LoggingMiddleware(logger, handlers.SecurityHeadersMiddleware(CSRF(mux))),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 5. Run until a signal arrives or one part fails
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return chat.Run(ctx, router)
	})
	g.Go(func() error {
		return reminders.Run(ctx)
	})
	g.Go(func() error {
		limiter.Cleanup(ctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("Dashboard starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

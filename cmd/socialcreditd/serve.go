package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/socialcredit/socialcredit-backend/internal/auth"
	"github.com/socialcredit/socialcredit-backend/internal/config"
	"github.com/socialcredit/socialcredit-backend/internal/credential"
	"github.com/socialcredit/socialcredit-backend/internal/discord"
	"github.com/socialcredit/socialcredit-backend/internal/health"
	"github.com/socialcredit/socialcredit-backend/internal/httpserver"
	"github.com/socialcredit/socialcredit-backend/internal/identity"
	"github.com/socialcredit/socialcredit-backend/internal/jobs"
	"github.com/socialcredit/socialcredit-backend/internal/ledger"
	"github.com/socialcredit/socialcredit-backend/internal/logging"
	"github.com/socialcredit/socialcredit-backend/internal/membership"
	"github.com/socialcredit/socialcredit-backend/internal/ratelimit"
	"github.com/socialcredit/socialcredit-backend/internal/version"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logCloser, err := logging.Setup(logging.Options{
		Level: cfg.LogLevel,
		File:  cfg.LogFile,
		JSON:  cfg.LogJSON,
	})
	if err != nil {
		return err
	}
	defer logCloser.Close()

	store, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()
	log.WithFields(log.Fields{"driver": cfg.Store.Driver, "version": version.Info()}).Info("store opened")

	discordClient := discord.NewClient(cfg.Discord.APIBaseURL, cfg.Discord.BotToken)
	if !discordClient.HasBotToken() {
		log.Warn("discord bot token not configured; profile and guild lookups disabled")
	}
	oauth := discord.NewOAuth(discord.OAuthConfig{
		ClientID:     cfg.Discord.ClientID,
		ClientSecret: cfg.Discord.ClientSecret,
		RedirectURL:  cfg.Discord.RedirectURI,
		AuthURL:      cfg.Discord.AuthURL,
		TokenURL:     cfg.Discord.TokenURL,
	})
	if !oauth.Configured() {
		log.Warn("discord oauth client not configured; login disabled")
	}

	resolver := identity.NewResolver(store, discordClient)
	cache := membership.NewCache(store, discordClient)
	enricher := membership.NewEnricher(cache, membership.EnricherConfig{
		Workers: cfg.Enrichment.Workers,
		Buffer:  cfg.Enrichment.Buffer,
		Timeout: cfg.Enrichment.Timeout,
	})
	defer enricher.Close()

	authManager := auth.NewManager(cfg.Auth.Secret)
	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
			CleanupInterval:   5 * time.Minute,
		})
		defer limiter.Close()
	}

	var refresher jobs.ServerRefresher
	if discordClient.HasBotToken() {
		refresher = cache
	}
	scheduler := jobs.NewScheduler(authManager, refresher)
	if err := scheduler.Register(jobs.Specs{StateSweep: cfg.Jobs.StateSweep, ServerRefresh: cfg.Jobs.ServerRefresh}); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	api := httpserver.New(httpserver.Deps{
		Store:       store,
		Engine:      ledger.NewEngine(store, resolver, enricher),
		Resolver:    resolver,
		Credentials: credential.New(store, cfg.Auth.APIKeySalt, cfg.Auth.BcryptCost),
		Members:     cache,
		Discord:     discordClient,
		OAuth:       oauth,
		Auth:        authManager,
		Limiter:     limiter,
		Health:      health.New(healthConfig(cfg, store)),
	}, httpserver.Options{
		FrontendURL:   cfg.FrontendURL,
		SessionTTL:    cfg.Auth.SessionTTL,
		SecureCookies: cfg.IsProduction(),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTPAddress).Info("socialcredit server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	select {
	case sig := <-sigs:
		log.WithField("signal", sig.String()).Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
	return nil
}

// healthConfig points the checker at the open store and the Discord API.
func healthConfig(cfg config.Config, store health.Pinger) health.Config {
	return health.Config{
		Store:          store,
		StoreName:      cfg.Store.Driver,
		DiscordBaseURL: cfg.Discord.APIBaseURL,
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"gridwatch/internal/api"
	"gridwatch/internal/api/stream"
	"gridwatch/internal/config"
	"gridwatch/internal/logger"
	"gridwatch/internal/metrics"
	"gridwatch/internal/model"
	"gridwatch/internal/poller"
	"gridwatch/internal/reconcile"
	"gridwatch/internal/relay"
	"gridwatch/internal/upstream"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfgPath := flag.String("config", os.Getenv(config.EnvConfigPath), "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LoggerConfig())
	logger.SetLogger(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	m := metrics.New()

	rot, err := relay.NewRotator(cfg.Relay.Endpoints)
	if err != nil {
		log.WithError(err).Fatal("invalid relay configuration")
	}
	transport := relay.NewTransport(rot, relay.Options{
		InitialDelay:     cfg.Relay.InitialDelay,
		MaxDelay:         cfg.Relay.MaxDelay,
		AttemptsPerRelay: cfg.Relay.AttemptsPerRelay,
		AttemptTimeout:   cfg.Upstream.Timeout,
		Logger:           log,
		Metrics:          m,
	})

	venues, spreads := cfg.UpstreamVenues()
	client := upstream.NewClient(upstream.Options{
		BaseURL: cfg.Upstream.BaseURL,
		HTTP:    transport.Client(),
		Venues:  venues,
		Spreads: spreads,
		Logger:  log,
		Metrics: m,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := poller.NewSession(client, reconcile.NewStore(), poller.Options{
		Interval: cfg.Poll.Interval,
		Scope: model.Scope{
			Venue: cfg.Poll.DefaultVenue,
			Date:  time.Now().Format(model.DateLayout),
		},
		Logger:  log,
		Metrics: m,
	})
	if err := session.Start(ctx); err != nil {
		log.WithError(err).Fatal("failed to start polling session")
	}

	hub := stream.NewHub(session, cfg.Server.AllowedOrigins, log, m)
	go hub.Run(ctx)

	router := api.NewRouter(api.Dependencies{
		Session:        session,
		Upstream:       client,
		Hub:            hub,
		Metrics:        m,
		Logger:         log,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithFields(logger.Fields{
			"addr":     srv.Addr,
			"venue":    cfg.Poll.DefaultVenue,
			"interval": cfg.Poll.Interval.String(),
			"relays":   rot.Len(),
		}).Info("starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.WithComponent("api").Info("shutting down")

	session.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}

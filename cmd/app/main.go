package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	cfgpkg "github.com/local/flipbook/internal/config"
	"github.com/local/flipbook/internal/limiter"
	logpkg "github.com/local/flipbook/internal/logger"
	"github.com/local/flipbook/internal/metrics"
	"github.com/local/flipbook/internal/relay"
	"github.com/local/flipbook/internal/render"
	"github.com/local/flipbook/internal/server"
	"github.com/local/flipbook/internal/source"
	"github.com/local/flipbook/internal/statuscheck"
	"github.com/local/flipbook/internal/store"
	"github.com/local/flipbook/internal/viewer"
	web "github.com/local/flipbook/internal/web"
)

func main() {
	_ = godotenv.Load()
	cfg := cfgpkg.FromEnv()

	// Init logging
	_ = logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	})
	defer logpkg.Close()

	metrics.Init()
	checks := statuscheck.Options{}

	// Status store
	var status store.StatusStore = store.NewMemoryStatus()
	if cfg.Store.RedisURL != "" {
		rs, err := store.NewRedisStatus(cfg.Store.RedisURL, cfg.Store.StatusTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init redis status store")
		}
		defer rs.Close()
		status = rs
		checks.Redis = rs
	}

	// S3 source
	var s3c *source.S3Client
	if cfg.Source.S3Enabled() {
		c, err := source.NewS3Client(context.Background(), source.S3Config{
			Bucket:    cfg.Source.S3Bucket,
			Endpoint:  cfg.Source.S3Endpoint,
			Region:    cfg.Source.S3Region,
			AccessKey: cfg.Source.AccessKey,
			SecretKey: cfg.Source.SecretKey,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init s3 client")
		}
		s3c = c
		checks.S3 = c
	}

	loader := source.NewLoader(source.Config{
		MaxBytes:   cfg.Source.MaxBytes,
		Timeout:    cfg.Source.Timeout,
		AllowFiles: cfg.Source.AllowFiles,
	}, &http.Client{Timeout: cfg.Source.Timeout}, s3c)

	slots := limiter.New(cfg.Render.Slots)
	checks.Slots = slots

	reg := viewer.NewRegistry(viewer.Deps{
		Loader: loader,
		Opener: render.NewFitzOpener(),
		Status: status,
		Slots:  slots,
		Render: render.Options{
			MaxSide:    cfg.Render.MaxSide,
			Quality:    cfg.Render.JPEGQuality,
			ThumbWidth: cfg.Render.ThumbWidth,
		},
		Workers: cfg.Render.Workers,
		Yield:   cfg.Render.Yield,
	}, cfg.Session.Max, cfg.Session.IdleTTL)

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go reg.Janitor(janitorCtx, time.Minute)

	srvDeps := server.Dependencies{
		Registry: reg,
		Relay:    relay.New(&http.Client{Timeout: cfg.Relay.Timeout}),
		Checker:  statuscheck.New(checks),
		Metrics:  metrics.Handler(),
	}
	mux := http.NewServeMux()
	server.New(srvDeps).RegisterRoutes(mux)

	// Viewer page
	web := web.New()
	web.RegisterRoutes(mux)

	srv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: mux}

	go func() {
		log.Info().Msgf("HTTP server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(ctx)
	stopJanitor()
	server.Shutdown(ctx, reg)
	fmt.Println("shutdown complete")
}

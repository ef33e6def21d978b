package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/brandpulse/internal/analysis"
	"github.com/suPer8Hu/brandpulse/internal/app"
	"github.com/suPer8Hu/brandpulse/internal/config"
	"github.com/suPer8Hu/brandpulse/internal/httpapi"
	"github.com/suPer8Hu/brandpulse/internal/httpapi/handlers"
	"github.com/suPer8Hu/brandpulse/internal/logger"
	"github.com/suPer8Hu/brandpulse/internal/store/rabbitmq"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	if cfg.LogMode == "prod" || cfg.LogMode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", "err", err)
	}
	defer a.Close()

	h := &handlers.Handler{
		DB:       a.DB,
		Cfg:      cfg,
		Log:      log.With("component", "http"),
		Contexts: a.Contexts,
		Chat:     a.Chat,
		Analysis: a.Analysis,
		Planning: a.Planning,
	}

	// async analysis needs the broker; the sync endpoints work without it
	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Warn("rabbitmq unavailable, async analysis disabled", "queue", cfg.RabbitQueue, "err", err)
	} else {
		defer pub.Close()
		h.Jobs = analysis.NewJobs(a.Repo, a.Analysis, pub, log.With("component", "jobs"))
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(cfg, log, h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

// Command supportsync-server receives completion events over HTTP, either
// posted directly or through an SNS HTTPS subscription, and runs
// propagation for each.
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

	"github.com/justeat/JustSupport/internal/app"
	"github.com/justeat/JustSupport/internal/config"
	"github.com/justeat/JustSupport/internal/pkg/logger"
	"github.com/justeat/JustSupport/internal/trigger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("loading configuration", "error", err)
		os.Exit(1)
	}
	logger.SetLevelString(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("initializing", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// with an in-process trigger, /run/ingest feeds propagation directly
	if a.Queue != nil {
		go a.Queue.Run(ctx, a.HandleEvent)
	}

	// SNS HTTPS subscriptions are only confirmed for the configured topic
	var topicARN string
	if cfg.Trigger.Type == "sns" {
		topicARN = cfg.SNSTargetARN()
	}
	handler := trigger.NewHandler(a.HandleEvent, a.Ingest, topicARN)
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port),
		Handler:      handler.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("trigger receiver listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down trigger receiver")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

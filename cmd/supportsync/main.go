// Command supportsync mirrors AWS Support cases into Jira and relays
// #DearAWS replies back.
//
//	supportsync [-config config.yaml] ingest|propagate|run|listen
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/justeat/JustSupport/internal/app"
	"github.com/justeat/JustSupport/internal/config"
	"github.com/justeat/JustSupport/internal/pkg/logger"
	"github.com/justeat/JustSupport/internal/syncer"
	"github.com/justeat/JustSupport/internal/trigger"
)

const usage = `usage: supportsync [-config path] <command>

commands:
  ingest     copy recent case communications into the ledger and publish the completion event
  propagate  mirror pending communications to Jira and relay Jira replies to AWS
  run        ingest, then propagate in this process
  listen     propagate on every completion event from the sqs or kafka trigger
`

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	command := flag.Arg(0)

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		fatal("loading configuration", err)
	}
	logger.SetLevelString(cfg.LogLevel)
	if command == "run" {
		cfg.Trigger.Type = "local"
	}
	if err := cfg.Validate(); err != nil {
		fatal("invalid configuration", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		fatal("initializing", err)
	}
	defer a.Close()

	switch command {
	case "ingest":
		report, err := a.Ingestor.Run(ctx)
		printReport(report)
		if err != nil {
			logger.Error("ingestion completed without trigger", "error", err)
		}
	case "propagate":
		report, err := a.Engine.Propagate(ctx)
		printReport(report)
		if err != nil && !errors.Is(err, syncer.ErrLocked) {
			logger.Error("propagation failed", "error", err)
		}
	case "run":
		report, err := a.Ingestor.Run(ctx)
		printReport(report)
		if err != nil {
			logger.Error("ingestion completed without trigger", "error", err)
			return
		}
		if err := a.Queue.Drain(ctx, a.HandleEvent); err != nil {
			logger.Error("propagation failed", "error", err)
		}
	case "listen":
		listen(ctx, a)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func listen(ctx context.Context, a *app.App) {
	cfg := a.Config.Trigger
	switch cfg.Type {
	case "sqs":
		trigger.NewSQSConsumer(sqs.NewFromConfig(a.AWS), cfg.QueueURL, a.HandleEvent).Run(ctx)
	case "kafka":
		c := trigger.NewKafkaConsumer(cfg.Brokers, cfg.Topic, cfg.GroupID, a.HandleEvent)
		defer c.Close()
		c.Run(ctx)
	default:
		logger.Error("listen needs an sqs or kafka trigger; sns and local events are received by supportsync-server", "trigger", cfg.Type)
		return
	}
	logger.Info("listener stopped")
}

func printReport(report any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
}

func fatal(msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}

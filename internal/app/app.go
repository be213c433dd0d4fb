// Package app wires configuration into the ingestor, the propagation engine
// and the trigger transport shared by the supportsync binaries.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/justeat/JustSupport/internal/accounts"
	"github.com/justeat/JustSupport/internal/config"
	"github.com/justeat/JustSupport/internal/jira"
	"github.com/justeat/JustSupport/internal/ledger"
	"github.com/justeat/JustSupport/internal/pkg/distlock"
	"github.com/justeat/JustSupport/internal/pkg/logger"
	"github.com/justeat/JustSupport/internal/support"
	"github.com/justeat/JustSupport/internal/syncer"
	"github.com/justeat/JustSupport/internal/trigger"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

const lockKey = "propagate"

// App holds the long-lived components of one process.
type App struct {
	Config    *config.Config
	AWS       aws.Config
	Store     ledger.Store
	Ingestor  *support.Ingestor
	Engine    *syncer.Engine
	Publisher trigger.Publisher
	// Queue is set when events stay in process.
	Queue *trigger.LocalQueue

	db      *sql.DB
	redis   *redis.Client
	closers []func() error
}

// New builds every component from cfg. Close releases what it opened.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	awsCfg, err := support.LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		return nil, err
	}
	a.AWS = awsCfg

	if err := a.openLedger(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openPublisher(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openRedis(ctx); err != nil {
		a.Close()
		return nil, err
	}

	clients := support.NewSTSClientFactory(awsCfg, cfg.AWS.SupportRegion)
	a.Ingestor = support.NewIngestor(clients, a.Store, a.Publisher, cfg.Accounts, cfg.Ingest)

	jiraClient := jira.NewClient(cfg.Jira)
	correlator := jira.NewCorrelator(jiraClient, cfg.Jira.Field1, cfg.Jira.Field2)
	lookback := cfg.Ingest.Lookback()
	a.Engine = syncer.NewEngine(
		syncer.NewOutbound(a.Store, correlator, jiraClient, lookback),
		syncer.NewInbound(a.Store, correlator, jiraClient, accounts.NewResolver(cfg.Accounts), support.NewReplier(clients), lookback),
		distlock.NewLock(a.redis, a.db, lockKey, cfg.Lock.TTL()),
	)

	logger.Info("supportsync initialized",
		"accounts", len(cfg.Accounts), "ledger", cfg.Ledger.Type,
		"trigger", cfg.Trigger.Type, "redis_lock", a.redis != nil)
	return a, nil
}

func (a *App) openLedger(ctx context.Context) error {
	cfg := a.Config.Ledger
	switch cfg.Type {
	case "dynamodb":
		a.Store = ledger.NewDynamoStore(dynamodb.NewFromConfig(a.AWS), cfg.Table, cfg.Index)
	case "postgres":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		a.db = db
		a.closers = append(a.closers, db.Close)
		db.SetMaxOpenConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			return fmt.Errorf("pinging database: %w", err)
		}

		store := ledger.NewPostgresStore(db, cfg.Table)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		a.Store = store
	case "memory":
		a.Store = ledger.NewMemoryStore()
	default:
		return fmt.Errorf("unsupported ledger type %q", cfg.Type)
	}
	return nil
}

func (a *App) openPublisher() error {
	cfg := a.Config.Trigger
	switch cfg.Type {
	case "sqs":
		a.Publisher = trigger.NewSQSPublisher(sqs.NewFromConfig(a.AWS), cfg.QueueURL)
	case "sns":
		a.Publisher = trigger.NewSNSPublisher(sns.NewFromConfig(a.AWS), a.Config.SNSTargetARN())
	case "kafka":
		p := trigger.NewKafkaPublisher(cfg.Brokers, cfg.Topic)
		a.closers = append(a.closers, p.Close)
		a.Publisher = p
	case "local":
		a.Queue = trigger.NewLocalQueue(8)
		a.Publisher = a.Queue
	default:
		return fmt.Errorf("unsupported trigger type %q", cfg.Type)
	}
	return nil
}

func (a *App) openRedis(ctx context.Context) error {
	if a.Config.Lock.RedisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(a.Config.Lock.RedisURL)
	if err != nil {
		return fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	a.closers = append(a.closers, client.Close)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}
	a.redis = client
	return nil
}

// HandleEvent runs propagation for a completion event. A run skipped
// because another holds the lock counts as handled.
func (a *App) HandleEvent(ctx context.Context, evt trigger.Event) error {
	logger.Info("completion event received", "run_id", evt.RunID)
	_, err := a.Engine.Propagate(ctx)
	if errors.Is(err, syncer.ErrLocked) {
		return nil
	}
	return err
}

// Ingest runs one ingestion pass; it matches trigger.RunFunc.
func (a *App) Ingest(ctx context.Context) (any, error) {
	return a.Ingestor.Run(ctx)
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("closing resource failed", "error", err)
		}
	}
	a.closers = nil
}

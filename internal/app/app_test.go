package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/justeat/JustSupport/internal/config"
	"github.com/justeat/JustSupport/internal/ledger"
	"github.com/justeat/JustSupport/internal/trigger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		AWS:      config.AWSConfig{Region: "eu-west-1", SupportRegion: "us-east-1"},
		Accounts: []config.Account{{Name: "prod", ARN: "arn:aws:iam::100045:role/SupportAccess"}},
		Ingest:   config.IngestConfig{LookbackDays: 7, Concurrency: 1, CasePageSize: 50, CommunicationPageSize: 100},
		Ledger:   config.LedgerConfig{Type: "memory"},
		Jira:     config.JiraConfig{APIHost: "http://jira.invalid/rest/api/2", TimeoutSeconds: 1},
		Trigger:  config.TriggerConfig{Type: "local"},
		Lock:     config.LockConfig{TTLSeconds: 60},
	}
}

func TestNewInProcess(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	a, err := New(context.Background(), testConfig())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &ledger.MemoryStore{}, a.Store)
	require.NotNil(t, a.Queue)
	assert.Same(t, a.Queue, a.Publisher)

	// an empty ledger propagates without touching Jira
	require.NoError(t, a.HandleEvent(context.Background(), trigger.NewIngestionComplete()))
}

func TestNewWithRedisLock(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	mr := miniredis.RunT(t)

	cfg := testConfig()
	cfg.Lock.RedisURL = "redis://" + mr.Addr()
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	// held by another process: the event is still acknowledged
	mr.Set("supportsync:lock:"+lockKey, "other-owner")
	require.NoError(t, a.HandleEvent(context.Background(), trigger.NewIngestionComplete()))
	got, _ := mr.Get("supportsync:lock:" + lockKey)
	assert.Equal(t, "other-owner", got)
}

func TestNewRejectsUnknownBackends(t *testing.T) {
	cfg := testConfig()
	cfg.Ledger.Type = "sqlite"
	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "unsupported ledger type")

	cfg = testConfig()
	cfg.Trigger.Type = "pigeon"
	_, err = New(context.Background(), cfg)
	assert.ErrorContains(t, err, "unsupported trigger type")
}

func TestNewFailsOnUnreachableRedis(t *testing.T) {
	cfg := testConfig()
	cfg.Lock.RedisURL = "redis://127.0.0.1:1"
	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "pinging redis")
}

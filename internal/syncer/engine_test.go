package syncer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/support/types"
	"github.com/justeat/JustSupport/internal/accounts"
	"github.com/justeat/JustSupport/internal/jira"
	"github.com/justeat/JustSupport/internal/ledger"
	"github.com/justeat/JustSupport/internal/pkg/distlock"
	"github.com/justeat/JustSupport/internal/support"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(store ledger.Store, corr Correlator, j *fakeJira, r *fakeReplier, lock distlock.DistLock) *Engine {
	out := newTestOutbound(store, corr, j)
	in := NewInbound(store, corr, j, accounts.NewResolver(testAccounts), r, 7*24*time.Hour)
	in.now = func() time.Time { return testNow }
	return NewEngine(out, in, lock)
}

func TestEngineEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()

	c := types.CaseDetails{CaseId: aws.String("case-100045-abcdefg"), DisplayId: aws.String("CASE-1"), Subject: aws.String("Raise EC2 limit")}
	providerOrder := []types.Communication{
		{Body: aws.String("newest"), TimeCreated: aws.String("2024-03-02T09:00:00.000Z")},
		{Body: aws.String("oldest"), TimeCreated: aws.String("2024-03-01T09:00:00.000Z")},
	}
	for _, rec := range support.BuildRecords(c, providerOrder) {
		require.NoError(t, store.PutIfAbsent(ctx, rec))
	}

	oldest, _ := store.Get("case-100045-abcdefg-0")
	newest, _ := store.Get("case-100045-abcdefg-1")
	assert.Equal(t, "oldest", oldest.Body)
	assert.Equal(t, "newest", newest.Body)
	assert.Equal(t, ledger.Pending, oldest.SyncFlag)
	assert.Equal(t, ledger.Pending, newest.SyncFlag)

	j := newFakeJira()
	r := &fakeReplier{}
	e := newTestEngine(store, fakeCorrelator{"CASE-1": {{IssueKey: "PROJ-9"}}}, j, r, distlock.NewLocalLock())

	report, err := e.Propagate(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Outbound.Appended)
	bodies := j.bodies("PROJ-9")
	require.Len(t, bodies, 2)
	assert.Contains(t, bodies[0], "}oldest{panel}")
	assert.Contains(t, bodies[1], "}newest{panel}")
	for _, id := range []string{"case-100045-abcdefg-0", "case-100045-abcdefg-1"} {
		rec, _ := store.Get(id)
		assert.Equal(t, ledger.Synced, rec.SyncFlag, id)
	}

	// a reply written on the issue goes back on the next run
	j.seed("PROJ-9", "#DearAWS\nThanks, confirmed")
	report, err = e.Propagate(ctx)
	require.NoError(t, err)

	assert.Zero(t, report.Outbound.Appended)
	assert.Equal(t, 1, report.Inbound.Relayed)
	assert.Equal(t, []sentReply{{Account: "prod", CaseID: "case-100045-abcdefg", Body: "Thanks, confirmed"}}, r.sent)
	reply, ok := store.Get("case-100045-abcdefg-2")
	require.True(t, ok)
	assert.Equal(t, ledger.Synced, reply.SyncFlag)
}

func TestEngineRefusesWhenLocked(t *testing.T) {
	lock := distlock.NewLocalLock()
	ok, _ := lock.Acquire(context.Background())
	require.True(t, ok)

	j := newFakeJira()
	e := newTestEngine(ledger.NewMemoryStore(), fakeCorrelator{}, j, &fakeReplier{}, lock)

	_, err := e.Propagate(context.Background())
	assert.ErrorIs(t, err, ErrLocked)
}

func TestEngineReleasesLock(t *testing.T) {
	lock := distlock.NewLocalLock()
	e := newTestEngine(ledger.NewMemoryStore(), fakeCorrelator{}, newFakeJira(), &fakeReplier{}, lock)

	_, err := e.Propagate(context.Background())
	require.NoError(t, err)
	_, err = e.Propagate(context.Background())
	require.NoError(t, err)
}

func TestEngineWithoutLock(t *testing.T) {
	e := newTestEngine(ledger.NewMemoryStore(), fakeCorrelator{}, newFakeJira(), &fakeReplier{}, nil)
	report, err := e.Propagate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)
}

// renewableLock counts renewals on top of a process-local lock.
type renewableLock struct {
	distlock.DistLock
	mu      sync.Mutex
	extends int
}

func (l *renewableLock) Extend(context.Context, time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.extends++
	return true, nil
}

func (l *renewableLock) TTL() time.Duration { return 30 * time.Millisecond }

func (l *renewableLock) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.extends
}

type slowCorrelator struct{ delay time.Duration }

func (c slowCorrelator) Correlate(context.Context, string) []jira.Match {
	time.Sleep(c.delay)
	return nil
}

func TestEngineRenewsLockDuringLongRun(t *testing.T) {
	store := ledger.NewMemoryStore()
	seedRecords(store, "case-100045-abcdefg", "1001", ledger.Pending, "c0")
	lock := &renewableLock{DistLock: distlock.NewLocalLock()}
	e := newTestEngine(store, slowCorrelator{delay: 150 * time.Millisecond}, newFakeJira(), &fakeReplier{}, lock)

	report, err := e.Propagate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Outbound.Uncorrelated)

	renewed := lock.count()
	assert.GreaterOrEqual(t, renewed, 2)

	// renewals stop with the run
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, renewed, lock.count())
}

package syncer

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/justeat/JustSupport/internal/config"
	"github.com/justeat/JustSupport/internal/jira"
	"github.com/justeat/JustSupport/internal/ledger"
)

var testNow = time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

type fakeCorrelator map[string][]jira.Match

func (f fakeCorrelator) Correlate(_ context.Context, displayID string) []jira.Match {
	return f[displayID]
}

// fakeJira keeps comments per issue. failAddAt makes the n-th AddComment
// (counting from 0) on an issue fail.
type fakeJira struct {
	mu        sync.Mutex
	comments  map[string][]jira.Comment
	adds      map[string]int
	failAddAt map[string]int
	failList  bool
	failEdit  bool
	edits     int
	nextID    int
}

func newFakeJira() *fakeJira {
	return &fakeJira{comments: map[string][]jira.Comment{}, adds: map[string]int{}, failAddAt: map[string]int{}}
}

func (f *fakeJira) seed(issue string, bodies ...string) {
	for _, b := range bodies {
		f.nextID++
		f.comments[issue] = append(f.comments[issue], jira.Comment{ID: strconv.Itoa(f.nextID), Body: b})
	}
}

func (f *fakeJira) bodies(issue string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.comments[issue] {
		out = append(out, c.Body)
	}
	return out
}

func (f *fakeJira) AddComment(_ context.Context, issue, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.adds[issue]
	f.adds[issue]++
	if at, ok := f.failAddAt[issue]; ok && at == n {
		return jira.ErrUnexpectedStatus
	}
	f.nextID++
	f.comments[issue] = append(f.comments[issue], jira.Comment{ID: strconv.Itoa(f.nextID), Body: body})
	return nil
}

func (f *fakeJira) ListComments(_ context.Context, issue string) ([]jira.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList {
		return nil, errors.New("connection refused")
	}
	return append([]jira.Comment(nil), f.comments[issue]...), nil
}

func (f *fakeJira) EditComment(_ context.Context, issue, id, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failEdit {
		return jira.ErrUnexpectedStatus
	}
	for i, c := range f.comments[issue] {
		if c.ID == id {
			f.comments[issue][i].Body = body
			f.edits++
			return nil
		}
	}
	return errors.New("comment not found")
}

type sentReply struct {
	Account string
	CaseID  string
	Body    string
}

type fakeReplier struct {
	sent []sentReply
	err  error
}

func (f *fakeReplier) Reply(_ context.Context, account config.Account, caseID, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentReply{Account: account.Name, CaseID: caseID, Body: body})
	return nil
}

func seedRecords(store ledger.Store, caseID, displayID string, flag int, bodies ...string) {
	for i, b := range bodies {
		_ = store.PutIfAbsent(context.Background(), ledger.Record{
			CommunicationID: ledger.CommunicationID(caseID, i),
			CaseID:          caseID,
			DisplayID:       displayID,
			Subject:         "Raise EC2 limit",
			Body:            b,
			TimeCreated:     "2024-03-01T10:0" + strconv.Itoa(i) + ":00.000Z",
			SortOrder:       i,
			SyncFlag:        flag,
		})
	}
}

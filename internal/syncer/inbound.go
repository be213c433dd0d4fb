package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/justeat/JustSupport/internal/config"
	"github.com/justeat/JustSupport/internal/jira"
	"github.com/justeat/JustSupport/internal/ledger"
	"github.com/justeat/JustSupport/internal/pkg/logger"
)

// CommentEditor reads and rewrites issue comments.
type CommentEditor interface {
	ListComments(ctx context.Context, issueKey string) ([]jira.Comment, error)
	EditComment(ctx context.Context, issueKey, commentID, body string) error
}

// AccountResolver maps a case id to the account that owns it.
type AccountResolver interface {
	ForCase(caseID string) (config.Account, error)
}

// Replier posts a communication to an AWS support case.
type Replier interface {
	Reply(ctx context.Context, account config.Account, caseID, body string) error
}

// InboundReport summarizes one inbound pass.
type InboundReport struct {
	Groups       int `json:"groups"`
	Uncorrelated int `json:"uncorrelated"`
	Relayed      int `json:"relayed"`
	Failed       int `json:"failed"`
}

// Inbound relays #DearAWS comments from correlated issues to AWS.
type Inbound struct {
	store      ledger.Store
	correlator Correlator
	comments   CommentEditor
	resolver   AccountResolver
	replier    Replier
	lookback   time.Duration
	now        func() time.Time
}

func NewInbound(store ledger.Store, correlator Correlator, comments CommentEditor, resolver AccountResolver, replier Replier, lookback time.Duration) *Inbound {
	return &Inbound{
		store:      store,
		correlator: correlator,
		comments:   comments,
		resolver:   resolver,
		replier:    replier,
		lookback:   lookback,
		now:        time.Now,
	}
}

// Run scans the issues of every synced case inside the look-back window
// for reply markers and relays each accepted one.
func (in *Inbound) Run(ctx context.Context) (InboundReport, error) {
	var report InboundReport

	records, err := in.store.QueryBySyncFlag(ctx, ledger.Synced, in.now().Add(-in.lookback))
	if err != nil {
		return report, fmt.Errorf("querying synced communications: %w", err)
	}

	for _, group := range ledger.GroupByDisplayID(records) {
		report.Groups++
		matches := in.correlator.Correlate(ctx, group.DisplayID)
		if len(matches) == 0 {
			report.Uncorrelated++
			continue
		}
		// reply records of one group share a counter so two issues never
		// produce the same communication id
		next := len(group.Records)
		for _, match := range matches {
			in.scanIssue(ctx, group, match, &next, &report)
		}
	}

	logger.Info("inbound propagation finished",
		"groups", report.Groups, "uncorrelated", report.Uncorrelated,
		"relayed", report.Relayed, "failed", report.Failed)
	return report, nil
}

// scanIssue walks the issue's comments in order and relays every accepted
// marker of each. Any failure stops the scan; a relayed marker is rewritten
// right after the post and will not match again.
func (in *Inbound) scanIssue(ctx context.Context, group ledger.Group, match jira.Match, next *int, report *InboundReport) {
	log := logger.With("issue", match.IssueKey, "display_id", group.DisplayID)

	comments, err := in.comments.ListComments(ctx, match.IssueKey)
	if err != nil {
		log.Error("listing comments failed", "error", err)
		report.Failed++
		return
	}

	first := group.First()
	for _, comment := range comments {
		body := comment.Body
		for {
			marker, ok := FindMarker(body, match, group.DisplayID)
			if !ok {
				break
			}

			account, err := in.resolver.ForCase(first.CaseID)
			if err != nil {
				log.Warn("cannot resolve account for case", "case_id", first.CaseID, "error", err)
				report.Failed++
				return
			}

			log.Info("posting reply to AWS", "account", account.Name, "case_id", first.CaseID, "comment_id", comment.ID)
			if err := in.replier.Reply(ctx, account, first.CaseID, marker.Payload); err != nil {
				log.Error("posting reply to AWS failed", "case_id", first.CaseID, "comment_id", comment.ID, "error", err)
				report.Failed++
				return
			}
			report.Relayed++

			reply := replyRecord(first, marker.Payload, *next, in.now())
			*next++
			switch err := in.store.PutIfAbsent(ctx, reply); {
			case errors.Is(err, ledger.ErrExists):
				log.Info("reply already recorded", "communication_id", reply.CommunicationID)
			case err != nil:
				log.Error("recording reply failed", "communication_id", reply.CommunicationID, "error", err)
			}

			body = marker.Rewrite(body)
			if err := in.comments.EditComment(ctx, match.IssueKey, comment.ID, body); err != nil {
				log.Error("marking comment as sent failed", "comment_id", comment.ID, "error", err)
				report.Failed++
				return
			}
			log.Info("comment marked as sent to AWS", "comment_id", comment.ID)
		}
	}
}

// replyRecord is the ledger entry for a reply sent from Jira. It is
// already synced so outbound never mirrors it back.
func replyRecord(first ledger.Record, body string, sortOrder int, now time.Time) ledger.Record {
	return ledger.Record{
		CommunicationID: ledger.CommunicationID(first.CaseID, sortOrder),
		CaseID:          first.CaseID,
		DisplayID:       first.DisplayID,
		Subject:         first.Subject,
		Body:            body,
		TimeCreated:     ledger.FormatTime(now),
		SortOrder:       sortOrder,
		SyncFlag:        ledger.Synced,
	}
}

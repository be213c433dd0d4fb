// Package syncer propagates between the ledger and Jira: AWS
// communications out to correlated issues, and #DearAWS replies from those
// issues back to the AWS case.
package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/justeat/JustSupport/internal/jira"
	"github.com/justeat/JustSupport/internal/ledger"
	"github.com/justeat/JustSupport/internal/pkg/logger"
)

// Correlator finds the issues referencing a case.
type Correlator interface {
	Correlate(ctx context.Context, displayID string) []jira.Match
}

// CommentAppender adds comments to an issue.
type CommentAppender interface {
	AddComment(ctx context.Context, issueKey, body string) error
}

// OutboundReport summarizes one outbound pass.
type OutboundReport struct {
	Groups       int `json:"groups"`
	Uncorrelated int `json:"uncorrelated"`
	Appended     int `json:"appended"`
	Failed       int `json:"failed"`
}

// Outbound mirrors pending ledger records onto their Jira issues.
type Outbound struct {
	store      ledger.Store
	correlator Correlator
	comments   CommentAppender
	lookback   time.Duration
	now        func() time.Time
}

func NewOutbound(store ledger.Store, correlator Correlator, comments CommentAppender, lookback time.Duration) *Outbound {
	return &Outbound{
		store:      store,
		correlator: correlator,
		comments:   comments,
		lookback:   lookback,
		now:        time.Now,
	}
}

// Run appends every pending communication inside the look-back window to
// each issue referencing its case. Appends for one issue are strictly
// sequential; the first failure ends that issue's run and leaves the rest
// pending for the next pass.
func (o *Outbound) Run(ctx context.Context) (OutboundReport, error) {
	var report OutboundReport

	records, err := o.store.QueryBySyncFlag(ctx, ledger.Pending, o.now().Add(-o.lookback))
	if err != nil {
		return report, fmt.Errorf("querying pending communications: %w", err)
	}

	for _, group := range ledger.GroupByDisplayID(records) {
		report.Groups++
		matches := o.correlator.Correlate(ctx, group.DisplayID)
		if len(matches) == 0 {
			report.Uncorrelated++
			logger.Info("no jira issue references case", "display_id", group.DisplayID, "pending", len(group.Records))
			continue
		}
		for _, match := range matches {
			o.appendGroup(ctx, group, match, &report)
		}
	}

	logger.Info("outbound propagation finished",
		"groups", report.Groups, "uncorrelated", report.Uncorrelated,
		"appended", report.Appended, "failed", report.Failed)
	return report, nil
}

func (o *Outbound) appendGroup(ctx context.Context, group ledger.Group, match jira.Match, report *OutboundReport) {
	log := logger.With("issue", match.IssueKey, "display_id", group.DisplayID)

	for _, rec := range group.Records {
		log.Info("updating issue", "communication_id", rec.CommunicationID)
		if err := o.comments.AddComment(ctx, match.IssueKey, FormatComment(rec, match.Secondary)); err != nil {
			log.Error("posting comment failed", "communication_id", rec.CommunicationID, "error", err)
			report.Failed++
			return
		}
		report.Appended++

		if err := o.store.MarkSynced(ctx, rec.CommunicationID); err != nil {
			log.Error("marking communication synced failed", "communication_id", rec.CommunicationID, "error", err)
			report.Failed++
			return
		}
		log.Debug("comment added", "communication_id", rec.CommunicationID)
	}
}

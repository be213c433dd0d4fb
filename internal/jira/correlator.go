package jira

import (
	"context"
	"fmt"
	"strings"

	"github.com/justeat/JustSupport/internal/config"
	"github.com/justeat/JustSupport/internal/pkg/logger"
)

// Searcher runs JQL queries.
type Searcher interface {
	Search(ctx context.Context, jql string) ([]Issue, error)
}

// Correlator finds the issues that reference a support case in either of
// two custom fields.
type Correlator struct {
	search Searcher
	field1 config.JiraField
	field2 config.JiraField
}

func NewCorrelator(search Searcher, field1, field2 config.JiraField) *Correlator {
	return &Correlator{search: search, field1: field1, field2: field2}
}

// JQL returns the query matching displayID in either reference field.
func (c *Correlator) JQL(displayID string) string {
	id := quote(displayID)
	return fmt.Sprintf("%s = %s OR %s = %s", quote(c.field1.Name), id, quote(c.field2.Name), id)
}

// Correlate returns one Match per issue referencing displayID. Lookup
// failures are logged and produce no matches.
func (c *Correlator) Correlate(ctx context.Context, displayID string) []Match {
	logger.Debug("querying jira for case reference", "display_id", displayID)

	issues, err := c.search.Search(ctx, c.JQL(displayID))
	if err != nil {
		logger.Error("jira search failed", "display_id", displayID, "error", err)
		return nil
	}

	matches := make([]Match, 0, len(issues))
	for _, issue := range issues {
		matches = append(matches, Match{
			IssueKey:  issue.Key,
			Secondary: issue.FieldEquals(c.field2.ID, displayID),
		})
	}
	return matches
}

func quote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

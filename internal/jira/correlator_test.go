package jira

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/justeat/JustSupport/internal/config"
	"github.com/stretchr/testify/assert"
)

type fakeSearcher struct {
	jql    string
	issues []Issue
	err    error
}

func (f *fakeSearcher) Search(_ context.Context, jql string) ([]Issue, error) {
	f.jql = jql
	return f.issues, f.err
}

var (
	refField    = config.JiraField{Name: "AWS Ref", ID: "customfield_101"}
	secondField = config.JiraField{Name: "AWS Ref 2", ID: "customfield_102"}
)

func TestCorrelate(t *testing.T) {
	search := &fakeSearcher{issues: []Issue{
		{Key: "PROJ-9", Fields: map[string]json.RawMessage{"customfield_101": json.RawMessage(`"1001"`)}},
		{Key: "OPS-4", Fields: map[string]json.RawMessage{"customfield_102": json.RawMessage(`1001`)}},
	}}
	c := NewCorrelator(search, refField, secondField)

	matches := c.Correlate(context.Background(), "1001")

	assert.Equal(t, `"AWS Ref" = "1001" OR "AWS Ref 2" = "1001"`, search.jql)
	assert.Equal(t, []Match{
		{IssueKey: "PROJ-9"},
		{IssueKey: "OPS-4", Secondary: true},
	}, matches)
}

func TestCorrelateSwallowsErrors(t *testing.T) {
	c := NewCorrelator(&fakeSearcher{err: errors.New("boom")}, refField, secondField)
	assert.Empty(t, c.Correlate(context.Background(), "1001"))
}

func TestCorrelateNoHits(t *testing.T) {
	c := NewCorrelator(&fakeSearcher{}, refField, secondField)
	assert.Empty(t, c.Correlate(context.Background(), "1001"))
}

func TestJQLEscapesQuotes(t *testing.T) {
	c := NewCorrelator(nil, config.JiraField{Name: `Ref "A"`}, config.JiraField{Name: "B"})
	assert.Equal(t, `"Ref \"A\"" = "7" OR "B" = "7"`, c.JQL("7"))
}

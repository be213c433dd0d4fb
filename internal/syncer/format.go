package syncer

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/justeat/JustSupport/internal/ledger"
)

// knowledgeCenterFooter starts the boilerplate AWS appends to its replies.
const knowledgeCenterFooter = "Check out the AWS Support Knowledge Center, a knowledge base of articles and videos that answer customer questions about AWS services"

const (
	primaryColor   = "#ff9900"
	secondaryColor = "#2e7dba"
)

// FormatComment renders a communication as a Jira panel titled with the
// case, date and subject.
func FormatComment(rec ledger.Record, secondary bool) string {
	color := primaryColor
	if secondary {
		color = secondaryColor
	}
	body, _, _ := strings.Cut(rec.Body, knowledgeCenterFooter)

	return fmt.Sprintf("{panel:title=AWS Case: %s - %s - %s|borderStyle=solid|borderColor=#000000|titleBGColor=%s}%s{panel}",
		rec.DisplayID, formatDate(rec.TimeCreated), rec.Subject, color, body)
}

// formatDate renders an ISO timestamp like "Friday, 1st March 2024 10:05"
// in UTC, or returns it unchanged when it does not parse.
func formatDate(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	t = t.UTC()
	return t.Format("Monday, ") + humanize.Ordinal(t.Day()) + t.Format(" January 2006 15:04")
}

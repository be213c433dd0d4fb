// Package ledger stores every mirrored support communication. The ledger is
// both the idempotency record (one row per communication id, first write
// wins) and the ordering index the propagators read from.
package ledger

import (
	"fmt"
	"sort"
	"strconv"
)

// Sync flag values. A record only ever moves from Pending to Synced.
const (
	Pending = 0 // came from AWS, not yet on the Jira issue
	Synced  = 1 // on the Jira issue, or a Jira reply already sent to AWS
)

// Record is one communication of one support case. The attribute names
// match the table layout the synchronizer has always written.
type Record struct {
	CommunicationID string `dynamodbav:"CommunicationId" json:"communicationId"`
	CaseID          string `dynamodbav:"caseId" json:"caseId"`
	DisplayID       string `dynamodbav:"displayId" json:"displayId"`
	Subject         string `dynamodbav:"subject" json:"subject"`
	Body            string `dynamodbav:"body" json:"body"`
	SubmittedBy     string `dynamodbav:"submittedBy,omitempty" json:"submittedBy,omitempty"`
	TimeCreated     string `dynamodbav:"timeCreated" json:"timeCreated"`
	SortOrder       int    `dynamodbav:"Sortorder" json:"sortOrder"`
	SyncFlag        int    `dynamodbav:"JiraUpdated" json:"syncFlag"`
}

// CommunicationID builds the ledger key for the n-th communication of a case.
func CommunicationID(caseID string, sortOrder int) string {
	return fmt.Sprintf("%s-%d", caseID, sortOrder)
}

// Group is the ordered list of records sharing a display id.
type Group struct {
	DisplayID string
	Records   []Record
}

// First returns the lowest-ordered record of the group.
func (g Group) First() Record {
	return g.Records[0]
}

// SortForProcessing orders records by display id, then sort order. Display
// ids that are both integers compare numerically so "9" sorts before "10".
func SortForProcessing(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].DisplayID != records[j].DisplayID {
			return displayIDLess(records[i].DisplayID, records[j].DisplayID)
		}
		return records[i].SortOrder < records[j].SortOrder
	})
}

func displayIDLess(a, b string) bool {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}

// GroupByDisplayID sorts records for processing and splits them into one
// group per display id, preserving order.
func GroupByDisplayID(records []Record) []Group {
	if len(records) == 0 {
		return nil
	}
	sorted := make([]Record, len(records))
	copy(sorted, records)
	SortForProcessing(sorted)

	var groups []Group
	for _, r := range sorted {
		if n := len(groups); n > 0 && groups[n-1].DisplayID == r.DisplayID {
			groups[n-1].Records = append(groups[n-1].Records, r)
			continue
		}
		groups = append(groups, Group{DisplayID: r.DisplayID, Records: []Record{r}})
	}
	return groups
}

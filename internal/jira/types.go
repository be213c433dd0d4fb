package jira

import (
	"bytes"
	"encoding/json"
)

// Issue is the part of a search hit the synchronizer reads.
type Issue struct {
	ID     string                     `json:"id"`
	Key    string                     `json:"key"`
	Fields map[string]json.RawMessage `json:"fields"`
}

// FieldEquals reports whether the custom field holds want, either as a
// string or as a number with the same text.
func (i Issue) FieldEquals(fieldID, want string) bool {
	raw, ok := i.Fields[fieldID]
	if !ok || want == "" {
		return false
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return false
	}
	switch val := v.(type) {
	case string:
		return val == want
	case json.Number:
		return val.String() == want
	default:
		return false
	}
}

type searchResponse struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}

// Comment is a single issue comment.
type Comment struct {
	ID      string `json:"id"`
	Body    string `json:"body"`
	Created string `json:"created,omitempty"`
}

type commentsResponse struct {
	StartAt    int       `json:"startAt"`
	MaxResults int       `json:"maxResults"`
	Total      int       `json:"total"`
	Comments   []Comment `json:"comments"`
}

type commentRequest struct {
	Body string `json:"body"`
}

// Match is an issue that references a support case. Secondary is set when
// the case sits in the second reference field, which changes the comment
// color and requires replies to name the case.
type Match struct {
	IssueKey  string
	Secondary bool
}

package syncer

import (
	"regexp"
	"strings"

	"github.com/justeat/JustSupport/internal/jira"
)

// MarkerKind says which reply marker a Jira comment carries.
type MarkerKind int

const (
	MarkerNone MarkerKind = iota
	MarkerPrimary
	MarkerSecondary
)

// Marker is a parsed reply marker of a Jira comment. DisplayID is only set
// for MarkerSecondary.
type Marker struct {
	Kind      MarkerKind
	DisplayID string
	Payload   string

	// span of the marker section in the body it was parsed from
	start, end int
}

var dearAWS = regexp.MustCompile(`(?im)^[ \t]*#DearAWS`)

const dearAWSLen = len("#DearAWS")

// ParseMarkers returns every reply marker in body in order. A marker starts
// a line and its payload runs up to the next marker line.
// "#DearAWS[<id>] text" is a secondary marker, "#DearAWS text" a primary
// one. An unclosed or empty bracket, or nothing after the marker, is
// skipped.
func ParseMarkers(body string) []Marker {
	locs := dearAWS.FindAllStringIndex(body, -1)
	var markers []Marker
	for i, loc := range locs {
		end := len(body)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		m, ok := parseSection(body[loc[1]:end])
		if !ok {
			continue
		}
		m.start, m.end = loc[1]-dearAWSLen, end
		markers = append(markers, m)
	}
	return markers
}

// ParseMarker returns the first reply marker in body, or a MarkerNone.
func ParseMarker(body string) Marker {
	if markers := ParseMarkers(body); len(markers) > 0 {
		return markers[0]
	}
	return Marker{}
}

// FindMarker returns the first marker in body that addresses displayID
// through match.
func FindMarker(body string, match jira.Match, displayID string) (Marker, bool) {
	for _, m := range ParseMarkers(body) {
		if m.Accepts(match, displayID) {
			return m, true
		}
	}
	return Marker{}, false
}

func parseSection(rest string) (Marker, bool) {
	m := Marker{Kind: MarkerPrimary}
	if strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return Marker{}, false
		}
		id := strings.TrimSpace(rest[1:end])
		if id == "" {
			return Marker{}, false
		}
		m = Marker{Kind: MarkerSecondary, DisplayID: id}
		rest = rest[end+1:]
	}

	m.Payload = payload(rest)
	return m, m.Payload != ""
}

func payload(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, ":")
	return strings.TrimSpace(s)
}

// Accepts reports whether the marker addresses the case displayID through
// match. Issues referencing the case in the second field must name it.
func (m Marker) Accepts(match jira.Match, displayID string) bool {
	switch m.Kind {
	case MarkerPrimary:
		return !match.Secondary
	case MarkerSecondary:
		return match.Secondary && m.DisplayID == displayID
	default:
		return false
	}
}

// Relayed is the marker section after the reply went to AWS.
func (m Marker) Relayed() string {
	if m.Kind == MarkerSecondary {
		return "#SenttoAWS[" + m.DisplayID + "]:\n" + m.Payload
	}
	return "#SenttoAWS:\n" + m.Payload
}

// Rewrite replaces the marker section in body, the text m was parsed from,
// with its relayed form. Text outside the section is kept.
func (m Marker) Rewrite(body string) string {
	section := body[m.start:m.end]
	trail := section[len(strings.TrimRight(section, " \t\r\n")):]
	return body[:m.start] + m.Relayed() + trail + body[m.end:]
}

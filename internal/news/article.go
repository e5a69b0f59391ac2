// Package news implements the NewsAggregator of spec §4.E: fan-out fetch
// across RSS/HTML/social source adapters, id-based merge, symbol
// extraction, catalyst tagging, and sentiment scoring.
package news

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/sawpanic/equityrun/internal/sentiment"
)

// Priority mirrors an alert/candidate priority scale for catalyst tags.
type Priority int

const (
	PriorityNone Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityMedium:
		return "MEDIUM"
	default:
		return "NONE"
	}
}

// Article is the spec §3 Article entity.
type Article struct {
	ID           string
	Symbol       string // "" when unresolved (general-market article)
	Title        string
	Body         string
	Source       string
	URL          string
	PublishedAt  time.Time
	FetchedAt    time.Time
	Sentiment    *sentiment.Score
	CatalystTags []string
	Priority     Priority
}

// ComputeID implements the spec §3 id rule: sha256(url) when a URL is
// present, else sha256(source|title|publishedAt).
func ComputeID(url, source, title string, publishedAt time.Time) string {
	var basis string
	if url != "" {
		basis = url
	} else {
		basis = fmt.Sprintf("%s|%s|%s", source, title, publishedAt.UTC().Format(time.RFC3339))
	}
	sum := sha256.Sum256([]byte(basis))
	return hex.EncodeToString(sum[:])
}

// catalystKeywordGroups implements spec §4.E's three keyword groups,
// matched case-insensitively against title+body.
var catalystKeywordGroups = []struct {
	priority Priority
	keywords []string
}{
	{PriorityCritical, []string{"bankruptcy", "chapter 11", "merger", "acquisition", "buyout", "takeover", "fda approval", "fda clearance"}},
	{PriorityHigh, []string{"earnings", "quarterly results", "q1", "q2", "q3", "q4", "guidance", "upgrade", "downgrade", "phase 2", "phase 3"}},
	{PriorityMedium, []string{"dividend", "buyback", "ceo change", "8-k", "10-q", "10-k"}},
}

// tagCatalysts scans lowercase title+body for keyword-group hits and
// returns every matched keyword along with the highest matching group's
// priority (spec §4.E: "raises the article's priority to the highest
// matching group").
func tagCatalysts(title, body string) ([]string, Priority) {
	text := strings.ToLower(title + "\n" + body)
	var tags []string
	best := PriorityNone
	for _, group := range catalystKeywordGroups {
		for _, kw := range group.keywords {
			if strings.Contains(text, kw) {
				tags = append(tags, kw)
				if group.priority > best {
					best = group.priority
				}
			}
		}
	}
	return tags, best
}

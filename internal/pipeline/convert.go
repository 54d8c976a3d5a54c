package pipeline

import (
	"strings"
	"time"

	payloadschema "nilewire.dev/ingest-pipeline/schema"
)

// Collector timestamp formats, most precise first. published_at is imprecise
// at some sources; anything unparseable becomes NULL rather than a guess.
var candidateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// CandidateFromPayload converts a validated collector payload into a
// Candidate. fallbackFetched is used when the payload carries no usable
// fetched_at, keeping fetched_at monotonic within a run.
func CandidateFromPayload(item *payloadschema.CandidatePayload, fallbackFetched time.Time) Candidate {
	candidate := Candidate{
		Source:    strings.TrimSpace(item.Source),
		Language:  strings.ToLower(strings.TrimSpace(item.Language)),
		Category:  strings.TrimSpace(item.Category),
		Title:     strings.TrimSpace(item.Title),
		URL:       strings.TrimSpace(item.URL),
		Summary:   strings.TrimSpace(item.Summary),
		FetchedAt: fallbackFetched.UTC(),
	}
	if item.FullText != nil {
		candidate.FullText = strings.TrimSpace(*item.FullText)
	}
	if item.ImageURL != nil {
		candidate.ImageURL = strings.TrimSpace(*item.ImageURL)
	}
	if item.Sentiment != nil {
		candidate.Sentiment = strings.TrimSpace(*item.Sentiment)
	}
	if item.PublishedAt != nil {
		if ts, ok := parseCandidateTime(*item.PublishedAt); ok {
			candidate.PublishedAt = &ts
		}
	}
	if item.FetchedAt != nil {
		if ts, ok := parseCandidateTime(*item.FetchedAt); ok {
			candidate.FetchedAt = ts
		}
	}
	return candidate
}

func parseCandidateTime(raw string) (time.Time, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, false
	}
	for _, layout := range candidateTimeLayouts {
		if ts, err := time.Parse(layout, trimmed); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

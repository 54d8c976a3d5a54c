package pipeline

import (
	"errors"
	"strings"
	"time"
)

// Sentinel errors separating expected rejection causes from run-fatal
// conditions. Anything not recognized here aborts the run as a store failure.
var (
	ErrModelUnavailable  = errors.New("embedding model unavailable")
	ErrMalformedResponse = errors.New("malformed embedding response")
	ErrDuplicateURL      = errors.New("url already admitted")
)

// Candidate is an article awaiting an admission decision. Candidates are
// produced by upstream collectors and never mutated here.
type Candidate struct {
	Source      string
	Language    string
	Category    string
	Title       string
	URL         string
	Summary     string
	FullText    string
	ImageURL    string
	Sentiment   string
	PublishedAt *time.Time
	FetchedAt   time.Time
}

// ComparisonText is the text the lexical deduplicator compares: the full
// body when present, the summary otherwise.
func (c Candidate) ComparisonText() string {
	if text := strings.TrimSpace(c.FullText); text != "" {
		return text
	}
	return strings.TrimSpace(c.Summary)
}

// EmbeddingText is the text handed to the embedder: title and summary only,
// never the body, so the signature tracks editorial framing.
func (c Candidate) EmbeddingText() string {
	title := strings.TrimSpace(c.Title)
	summary := strings.TrimSpace(c.Summary)
	switch {
	case title == "":
		return summary
	case summary == "":
		return title
	default:
		return title + " " + summary
	}
}

// Vector is a fixed-dimension embedding.
type Vector []float32

// Neighbor is the nearest already-admitted article found by the semantic
// window search.
type Neighbor struct {
	ArticleID  int64
	Title      string
	URL        string
	Similarity float64
}

// AdmittedArticle is the durable record handed to the store: every candidate
// field plus the embedding, written in one atomic step.
type AdmittedArticle struct {
	Source      string
	Language    string
	Category    string
	Title       string
	URL         string
	Summary     string
	FullText    string
	ImageURL    string
	Sentiment   string
	PublishedAt *time.Time
	FetchedAt   time.Time
	Embedding   Vector
}

type decisionKind string

const (
	DecisionAdmitted          decisionKind = "admitted"
	DecisionValidationReject  decisionKind = "validation_reject"
	DecisionExactDuplicate    decisionKind = "exact_duplicate"
	DecisionSemanticDuplicate decisionKind = "semantic_duplicate"
	DecisionProcessingError   decisionKind = "processing_error"
)

// Outcome is the per-candidate admission result.
type Outcome struct {
	Decision   decisionKind
	ArticleID  int64   // set when admitted
	MatchedID  int64   // set for semantic duplicates
	Similarity float64 // best cosine similarity for semantic duplicates
	Reason     string
}

func (o Outcome) Admitted() bool {
	return o.Decision == DecisionAdmitted
}

// RunSummary is the per-run observability surface.
type RunSummary struct {
	Loaded             int
	BatchDuplicates    int
	ValidationRejects  int
	ExactDuplicates    int
	SemanticDuplicates int
	ProcessingErrors   int
	Inserted           int
}

func (s RunSummary) Rejected() int {
	return s.BatchDuplicates + s.ValidationRejects + s.ExactDuplicates + s.SemanticDuplicates + s.ProcessingErrors
}

// Package payloadschema validates collector payloads before they become
// pipeline candidates.
package payloadschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed candidate.schema.json
var candidateSchemaJSON string

// CandidatePayload is one article record as delivered by a collector.
// Timestamps stay strings here: published_at is imprecise at some sources and
// is parsed leniently downstream.
type CandidatePayload struct {
	Source      string  `json:"source"`
	Language    string  `json:"language"`
	Category    string  `json:"category,omitempty"`
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Summary     string  `json:"summary,omitempty"`
	FullText    *string `json:"full_text,omitempty"`
	ImageURL    *string `json:"image_url,omitempty"`
	Sentiment   *string `json:"sentiment,omitempty"`
	PublishedAt *string `json:"published_at,omitempty"`
	FetchedAt   *string `json:"fetched_at,omitempty"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

func ValidateCandidatePayload(payload json.RawMessage) (*CandidatePayload, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload JSON: %w", err)
	}

	var item CandidatePayload
	if err := json.Unmarshal(normalized, &item); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := validateSemantics(&item); err != nil {
		return nil, err
	}

	return &item, nil
}

// ValidateCandidateBatch validates a JSON array of candidate payloads,
// preserving order.
func ValidateCandidateBatch(payload json.RawMessage) ([]*CandidatePayload, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("batch payload is empty")
	}

	var rawItems []json.RawMessage
	if err := json.Unmarshal(trimmed, &rawItems); err != nil {
		return nil, fmt.Errorf("decode batch JSON array: %w", err)
	}

	items := make([]*CandidatePayload, 0, len(rawItems))
	for i, raw := range rawItems {
		item, err := ValidateCandidatePayload(raw)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("candidate.schema.json", strings.NewReader(candidateSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("candidate.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}

func validateSemantics(item *CandidatePayload) error {
	if item == nil {
		return fmt.Errorf("payload is nil")
	}

	if strings.TrimSpace(item.Source) == "" {
		return fmt.Errorf("source must not be empty")
	}
	if strings.TrimSpace(item.Title) == "" {
		return fmt.Errorf("title must not be empty")
	}
	if err := validateURI("url", item.URL); err != nil {
		return err
	}
	if item.ImageURL != nil && strings.TrimSpace(*item.ImageURL) != "" {
		if err := validateURI("image_url", *item.ImageURL); err != nil {
			return err
		}
	}

	return nil
}

func validateURI(fieldName, value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("%s must not be empty", fieldName)
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return fmt.Errorf("%s is not a valid URI: %w", fieldName, err)
	}
	return nil
}

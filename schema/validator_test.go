package payloadschema

import (
	"testing"
)

const validCandidateJSON = `{
	"source": "alwatan",
	"language": "ar",
	"category": "economy",
	"title": "البنك المركزي يرفع سعر الفائدة",
	"url": "https://example.com/ar/rates",
	"summary": "ملخص قصير",
	"full_text": "النص الكامل للمقال",
	"image_url": "https://example.com/img/rates.jpg",
	"sentiment": "neutral",
	"published_at": "2026-03-09 18:45:00"
}`

func TestValidateCandidatePayloadAccepted(t *testing.T) {
	t.Parallel()

	item, err := ValidateCandidatePayload([]byte(validCandidateJSON))
	if err != nil {
		t.Fatalf("ValidateCandidatePayload: %v", err)
	}
	if item.Source != "alwatan" {
		t.Fatalf("Source = %q", item.Source)
	}
	if item.FullText == nil || *item.FullText != "النص الكامل للمقال" {
		t.Fatalf("FullText = %v", item.FullText)
	}
	if item.PublishedAt == nil {
		t.Fatal("PublishedAt = nil")
	}
}

func TestValidateCandidatePayloadRejected(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		payload string
	}{
		{"empty payload", ``},
		{"not json", `<xml/>`},
		{"trailing content", validCandidateJSON + `{}`},
		{"missing url", `{"source":"wire","language":"en","title":"Story"}`},
		{"missing source", `{"language":"en","title":"Story","url":"https://example.com/x"}`},
		{"whitespace title", `{"source":"wire","language":"en","title":"   ","url":"https://example.com/x"}`},
		{"unsupported language", `{"source":"wire","language":"fr","title":"Story","url":"https://example.com/x"}`},
		{"relative url", `{"source":"wire","language":"en","title":"Story","url":"not a url"}`},
		{"bad image url", `{"source":"wire","language":"en","title":"Story","url":"https://example.com/x","image_url":"::::"}`},
		{"unknown field", `{"source":"wire","language":"en","title":"Story","url":"https://example.com/x","extra":true}`},
		{"wrong type", `{"source":"wire","language":"en","title":7,"url":"https://example.com/x"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if _, err := ValidateCandidatePayload([]byte(tc.payload)); err == nil {
				t.Fatalf("payload accepted, want rejection: %s", tc.payload)
			}
		})
	}
}

func TestValidateCandidateBatch(t *testing.T) {
	t.Parallel()

	batch := `[
		{"source":"wire","language":"en","title":"First","url":"https://example.com/1","full_text":"body one"},
		{"source":"wire","language":"ar","title":"الثاني","url":"https://example.com/2","summary":"ملخص"}
	]`

	items, err := ValidateCandidateBatch([]byte(batch))
	if err != nil {
		t.Fatalf("ValidateCandidateBatch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].Title != "First" || items[1].Language != "ar" {
		t.Fatalf("batch order not preserved: %+v", items)
	}
}

func TestValidateCandidateBatchRejectsOnAnyBadItem(t *testing.T) {
	t.Parallel()

	batch := `[
		{"source":"wire","language":"en","title":"Good","url":"https://example.com/1"},
		{"source":"wire","language":"en","title":"Bad"}
	]`

	if _, err := ValidateCandidateBatch([]byte(batch)); err == nil {
		t.Fatal("batch with an invalid item accepted, want rejection")
	}

	if _, err := ValidateCandidateBatch([]byte(`{"not":"an array"}`)); err == nil {
		t.Fatal("non-array batch accepted, want rejection")
	}
}

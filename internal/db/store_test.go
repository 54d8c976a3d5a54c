package db

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"testing"

	"nilewire.dev/ingest-pipeline/internal/pipeline"
)

func fullVector(fill float32) pipeline.Vector {
	v := make(pipeline.Vector, vectorDimensions)
	for i := range v {
		v[i] = fill
	}
	return v
}

func TestEmbeddingColumnTypeMatchesVectorDimensions(t *testing.T) {
	t.Parallel()

	field, ok := reflect.TypeOf(Article{}).FieldByName("Embedding")
	if !ok {
		t.Fatal("Article has no Embedding field")
	}
	wantType := fmt.Sprintf("type:vector(%d)", vectorDimensions)
	if tag := field.Tag.Get("gorm"); !strings.Contains(tag, wantType) {
		t.Fatalf("Embedding gorm tag %q does not carry %q; the column type and vectorDimensions must change together", tag, wantType)
	}
}

func TestToVectorLiteral(t *testing.T) {
	t.Parallel()

	literal, err := toVectorLiteral(fullVector(0.5))
	if err != nil {
		t.Fatalf("toVectorLiteral: %v", err)
	}
	if !strings.HasPrefix(literal, "[0.5,") || !strings.HasSuffix(literal, ",0.5]") {
		t.Fatalf("literal has unexpected shape: %s...", literal[:16])
	}
	if got := strings.Count(literal, ","); got != vectorDimensions-1 {
		t.Fatalf("literal has %d separators, want %d", got, vectorDimensions-1)
	}
}

func TestToVectorLiteralRejectsWrongDimensions(t *testing.T) {
	t.Parallel()

	if _, err := toVectorLiteral(pipeline.Vector{1, 2, 3}); err == nil {
		t.Fatal("short vector accepted, want error")
	}
	if _, err := toVectorLiteral(nil); err == nil {
		t.Fatal("nil vector accepted, want error")
	}
}

func TestToVectorLiteralRejectsNonFinite(t *testing.T) {
	t.Parallel()

	v := fullVector(0.5)
	v[7] = float32(math.NaN())
	if _, err := toVectorLiteral(v); err == nil {
		t.Fatal("NaN vector accepted, want error")
	}

	v = fullVector(0.5)
	v[0] = float32(math.Inf(1))
	if _, err := toVectorLiteral(v); err == nil {
		t.Fatal("Inf vector accepted, want error")
	}
}

func TestNullableString(t *testing.T) {
	t.Parallel()

	if got := nullableString("   "); got != nil {
		t.Fatalf("nullableString(whitespace) = %q, want nil", *got)
	}
	got := nullableString("  value  ")
	if got == nil || *got != "value" {
		t.Fatalf("nullableString = %v, want trimmed value", got)
	}
}

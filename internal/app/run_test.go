package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func writeBatchFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadCandidateBatches(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeBatchFile(t, dir, "b-second.json", `[{"source":"wire","language":"en","title":"Second","url":"https://example.com/2"}]`)
	writeBatchFile(t, dir, "a-first.json", `[{"source":"wire","language":"ar","title":"الأول","url":"https://example.com/1"}]`)
	writeBatchFile(t, dir, "broken.json", `{not json`)
	writeBatchFile(t, dir, "bad-item.json", `[{"source":"wire","language":"en","title":"No URL"}]`)
	writeBatchFile(t, dir, "notes.txt", "ignored")
	writeBatchFile(t, dir, ".hidden.json", `[]`)

	candidates, skipped, err := loadCandidateBatches(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("loadCandidateBatches: %v", err)
	}
	if skipped != 2 {
		t.Fatalf("skipped = %d, want 2 (malformed + invalid)", skipped)
	}
	if len(candidates) != 2 {
		t.Fatalf("loaded %d candidates, want 2", len(candidates))
	}
	// Files are read in name order, so a-first.json comes first.
	if candidates[0].URL != "https://example.com/1" {
		t.Fatalf("candidates[0].URL = %q, want the alphabetically first file's item", candidates[0].URL)
	}
}

func TestLoadCandidateBatchesEmptyDir(t *testing.T) {
	t.Parallel()

	candidates, skipped, err := loadCandidateBatches(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("loadCandidateBatches: %v", err)
	}
	if len(candidates) != 0 || skipped != 0 {
		t.Fatalf("empty dir: candidates=%d skipped=%d", len(candidates), skipped)
	}
}

func TestLoadCandidateBatchesMissingDir(t *testing.T) {
	t.Parallel()

	if _, _, err := loadCandidateBatches(filepath.Join(t.TempDir(), "nope"), zerolog.Nop()); err == nil {
		t.Fatal("missing directory accepted, want error")
	}
	if _, _, err := loadCandidateBatches("", zerolog.Nop()); err == nil {
		t.Fatal("empty path accepted, want error")
	}
}

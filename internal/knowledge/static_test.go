package knowledge

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultProviderMatchesByKeyword(t *testing.T) {
	provider := NewDefaultProvider()

	results := provider.Query("What is the Capital of Italy?")
	if len(results) != 1 || results[0].Title != "capital of italy" {
		t.Fatalf("unexpected results: %+v", results)
	}

	if got := provider.Query("how far is the moon"); len(got) != 0 {
		t.Fatalf("expected no match, got %+v", got)
	}
	if got := provider.Query("   "); got != nil {
		t.Fatalf("expected nil for blank question, got %+v", got)
	}
}

func TestQueryHonoursMaxResults(t *testing.T) {
	provider := NewStaticProvider([]Snippet{
		{Title: "a", Content: "first", Keywords: []string{"mars"}},
		{Title: "b", Content: "second", Keywords: []string{"mars"}},
		{Title: "c", Content: "third", Keywords: []string{"mars"}},
	}, 2)

	results := provider.Query("tell me about mars")
	if len(results) != 2 || results[0].Content != "first" || results[1].Content != "second" {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestLoadStaticProvider(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "kb.yaml")
	yamlContent := "- title: rust\n  content: A systems language.\n  keywords: [\"rust language\"]\n- title: go gopher\n  content: The Go mascot.\n"
	if err := os.WriteFile(yamlPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	provider, err := LoadStaticProvider(yamlPath, 0)
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if got := provider.Query("who is the Go Gopher"); len(got) != 1 || got[0].Content != "The Go mascot." {
		t.Fatalf("expected title fallback match, got %+v", got)
	}

	jsonPath := filepath.Join(dir, "kb.json")
	if err := os.WriteFile(jsonPath, []byte(`[{"title":"x","content":"y","keywords":["zeta"]}]`), 0o644); err != nil {
		t.Fatalf("write json: %v", err)
	}
	provider, err = LoadStaticProvider(jsonPath, 1)
	if err != nil {
		t.Fatalf("load json: %v", err)
	}
	if got := provider.Query("zeta function"); len(got) != 1 {
		t.Fatalf("unexpected json results: %+v", got)
	}

	if _, err := LoadStaticProvider("", 1); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := LoadStaticProvider(filepath.Join(dir, "missing.json"), 1); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

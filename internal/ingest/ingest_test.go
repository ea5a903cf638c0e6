package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haasonsaas/cortex/pkg/models"
)

func TestFetch_Text(t *testing.T) {
	f := NewMultiFetcher(Config{})
	res, err := f.Fetch(context.Background(), models.Source{
		Type:   models.SourceText,
		Inline: "inline knowledge",
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Text != "inline knowledge" || res.Method != "text" {
		t.Errorf("res = %+v", res)
	}
}

func TestFetch_TextEmpty(t *testing.T) {
	f := NewMultiFetcher(Config{})
	if _, err := f.Fetch(context.Background(), models.Source{Type: models.SourceText}); err == nil {
		t.Error("empty text source should fail")
	}
}

func TestFetch_Document(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(path, []byte("document body"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := NewMultiFetcher(Config{})
	res, err := f.Fetch(context.Background(), models.Source{
		Type:     models.SourceDocument,
		Location: path,
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Text != "document body" || res.Method != "document" {
		t.Errorf("res = %+v", res)
	}
	if res.Metadata["path"] != path {
		t.Errorf("metadata = %v", res.Metadata)
	}
}

func TestFetch_Web(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><style>p{}</style></head><body><p>hello</p> <b>world</b><script>x()</script></body></html>`))
	}))
	defer srv.Close()

	f := NewMultiFetcher(Config{})
	res, err := f.Fetch(context.Background(), models.Source{
		Type:     models.SourceWeb,
		Location: srv.URL,
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Text != "hello world" {
		t.Errorf("Text = %q, want %q", res.Text, "hello world")
	}
	if res.Method != "web" {
		t.Errorf("Method = %q", res.Method)
	}
}

func TestFetch_WebErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewMultiFetcher(Config{})
	if _, err := f.Fetch(context.Background(), models.Source{Type: models.SourceWeb, Location: srv.URL}); err == nil {
		t.Error("non-200 response should fail")
	}
}

func TestFetch_Structured(t *testing.T) {
	f := NewMultiFetcher(Config{})
	res, err := f.Fetch(context.Background(), models.Source{
		Type:   models.SourceStructured,
		Inline: `{"policy":{"days":30,"regions":["us","eu"]}}`,
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	for _, want := range []string{"policy.days: 30", "policy.regions[0]: us", "policy.regions[1]: eu"} {
		if !strings.Contains(res.Text, want) {
			t.Errorf("flattened text missing %q: %q", want, res.Text)
		}
	}
}

func TestFetch_StructuredInvalid(t *testing.T) {
	f := NewMultiFetcher(Config{})
	if _, err := f.Fetch(context.Background(), models.Source{Type: models.SourceStructured, Inline: "not json"}); err == nil {
		t.Error("invalid JSON should fail")
	}
}

func TestFetchAll_PartialSuccess(t *testing.T) {
	f := NewMultiFetcher(Config{})
	sources := []models.Source{
		{Type: models.SourceText, Inline: "good one"},
		{Type: models.SourceDocument, Location: "/nonexistent/file"},
		{Type: models.SourceText, Inline: "good two"},
	}

	results, errs := FetchAll(context.Background(), f, sources)
	if len(results) != 2 {
		t.Errorf("len(results) = %d, want 2", len(results))
	}
	if len(errs) != 1 {
		t.Fatalf("len(errs) = %d, want 1", len(errs))
	}
	if errs[0].Source.Type != models.SourceDocument {
		t.Errorf("failed source = %+v", errs[0].Source)
	}
}

func TestSourceError_Unwrap(t *testing.T) {
	inner := os.ErrNotExist
	e := &SourceError{Source: models.Source{Type: models.SourceDocument}, Err: inner}
	if e.Unwrap() != inner {
		t.Error("Unwrap should expose the inner error")
	}
	if !strings.Contains(e.Error(), "document") {
		t.Errorf("Error() = %q", e.Error())
	}
}

// Package ingest fetches content from external sources on behalf of the
// pipeline's extraction stage. Failures are per-source; a batch fetch
// always returns whatever succeeded plus an error list.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/haasonsaas/cortex/pkg/models"
)

// Result is the outcome of fetching a single source.
type Result struct {
	Text     string         `json:"text"`
	Method   string         `json:"method"` // web, document, text, structured
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SourceError ties a fetch failure to the source that caused it.
type SourceError struct {
	Source models.Source
	Err    error
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	return fmt.Sprintf("fetch %s %s: %v", e.Source.Type, e.Source.Location, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SourceError) Unwrap() error { return e.Err }

// Fetcher retrieves the content behind a source descriptor.
type Fetcher interface {
	Fetch(ctx context.Context, src models.Source) (*Result, error)
}

// Config tunes the default fetcher.
type Config struct {
	// HTTPTimeout bounds each web fetch.
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	// MaxBodyBytes caps how much of a web response is read.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// ApplyDefaults fills zero fields.
func (c *Config) ApplyDefaults() {
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = 15 * time.Second
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = 1 << 20 // 1 MiB
	}
}

// MultiFetcher dispatches to a per-type fetch strategy.
type MultiFetcher struct {
	cfg    Config
	client *http.Client
}

var _ Fetcher = (*MultiFetcher)(nil)

// NewMultiFetcher builds the default fetcher.
func NewMultiFetcher(cfg Config) *MultiFetcher {
	cfg.ApplyDefaults()
	return &MultiFetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

// Fetch retrieves a single source.
func (f *MultiFetcher) Fetch(ctx context.Context, src models.Source) (*Result, error) {
	switch src.Type {
	case models.SourceText:
		return f.fetchText(src)
	case models.SourceDocument:
		return f.fetchDocument(src)
	case models.SourceWeb:
		return f.fetchWeb(ctx, src)
	case models.SourceStructured:
		return f.fetchStructured(src)
	default:
		return nil, fmt.Errorf("unknown source type %q", src.Type)
	}
}

// FetchAll fetches every source, never aborting the batch. The error list
// is parallel to the failed sources only.
func FetchAll(ctx context.Context, f Fetcher, sources []models.Source) ([]*Result, []*SourceError) {
	var results []*Result
	var errs []*SourceError
	for _, src := range sources {
		if ctx.Err() != nil {
			errs = append(errs, &SourceError{Source: src, Err: ctx.Err()})
			continue
		}
		res, err := f.Fetch(ctx, src)
		if err != nil {
			errs = append(errs, &SourceError{Source: src, Err: err})
			continue
		}
		results = append(results, res)
	}
	return results, errs
}

func (f *MultiFetcher) fetchText(src models.Source) (*Result, error) {
	if strings.TrimSpace(src.Inline) == "" {
		return nil, fmt.Errorf("text source has no inline content")
	}
	return &Result{Text: src.Inline, Method: "text", Metadata: src.Metadata}, nil
}

func (f *MultiFetcher) fetchDocument(src models.Source) (*Result, error) {
	if src.Location == "" {
		return nil, fmt.Errorf("document source has no location")
	}
	data, err := os.ReadFile(src.Location)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return &Result{
		Text:   string(data),
		Method: "document",
		Metadata: mergeMeta(src.Metadata, map[string]any{
			"path": src.Location,
		}),
	}, nil
}

var (
	tagPattern        = regexp.MustCompile(`(?s)<(script|style)[^>]*>.*?</(script|style)>`)
	htmlPattern       = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

func (f *MultiFetcher) fetchWeb(ctx context.Context, src models.Source) (*Result, error) {
	if src.Location == "" {
		return nil, fmt.Errorf("web source has no location")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.Location, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	text := stripHTML(string(body))
	return &Result{
		Text:   text,
		Method: "web",
		Metadata: mergeMeta(src.Metadata, map[string]any{
			"url":    src.Location,
			"status": resp.StatusCode,
		}),
	}, nil
}

func (f *MultiFetcher) fetchStructured(src models.Source) (*Result, error) {
	raw := src.Inline
	if raw == "" && src.Location != "" {
		data, err := os.ReadFile(src.Location)
		if err != nil {
			return nil, fmt.Errorf("read structured source: %w", err)
		}
		raw = string(data)
	}
	if raw == "" {
		return nil, fmt.Errorf("structured source has no content")
	}

	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parse structured source: %w", err)
	}
	return &Result{Text: flattenJSON(parsed), Method: "structured", Metadata: src.Metadata}, nil
}

// stripHTML removes script/style blocks and tags, collapsing whitespace.
func stripHTML(html string) string {
	text := tagPattern.ReplaceAllString(html, " ")
	text = htmlPattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}

// flattenJSON renders parsed JSON as "key: value" lines, keys sorted for
// deterministic output.
func flattenJSON(v any) string {
	var lines []string
	flattenInto("", v, &lines)
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

func flattenInto(prefix string, v any, lines *[]string) {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flattenInto(key, child, lines)
		}
	case []any:
		for i, child := range val {
			flattenInto(fmt.Sprintf("%s[%d]", prefix, i), child, lines)
		}
	default:
		*lines = append(*lines, fmt.Sprintf("%s: %v", prefix, val))
	}
}

func mergeMeta(base, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/cortex/internal/ingest"
	"github.com/haasonsaas/cortex/pkg/models"
)

// extraction is the Extracting stage's output: store hits and external
// source content merged into one body of evidence.
type extraction struct {
	MergedContent string
	Sources       []string
	SourceMethods []string
	Hits          []*models.ScoredNode
	Confidence    float64
}

// runExtract queries the memory store and fetches any caller-supplied
// external sources. Per-source fetch failures are recorded in the trace
// and skipped; only a store search failure fails the stage.
func (p *Processor) runExtract(ctx context.Context, run *pipelineRun) error {
	ex := &extraction{Sources: []string{}}

	searchCtx := ctx
	var searchSpan trace.Span
	if p.tracer != nil {
		searchCtx, searchSpan = p.tracer.TraceStoreOperation(ctx, "search_semantic")
	}
	hits, err := p.store.SearchSemantic(searchCtx, run.req.Query, p.cfg.RetrievalTopK, p.cfg.RetrievalMinSimilarity, nil)
	if searchSpan != nil {
		if err != nil {
			p.tracer.RecordError(searchSpan, err)
		}
		searchSpan.End()
	}
	if err != nil {
		return fmt.Errorf("memory search: %w", err)
	}
	ex.Hits = hits

	var parts []string
	for _, hit := range hits {
		parts = append(parts, hit.Node.Content)
		ex.Sources = append(ex.Sources, "memory:"+hit.Node.ID)
		ex.SourceMethods = append(ex.SourceMethods, "memory")
	}

	if len(run.req.Sources) > 0 && p.fetcher != nil {
		results, errs := ingest.FetchAll(ctx, p.fetcher, run.req.Sources)
		for _, res := range results {
			if strings.TrimSpace(res.Text) == "" {
				continue
			}
			parts = append(parts, res.Text)
			ex.Sources = append(ex.Sources, sourceLabel(res))
			ex.SourceMethods = append(ex.SourceMethods, res.Method)
		}
		for _, fe := range errs {
			run.note("source skipped: %v", fe)
		}
	}

	ex.MergedContent = strings.Join(parts, "\n\n")
	ex.Confidence = sourceConfidence(hits, ex.SourceMethods)

	run.note("extracted %d sources (%d from memory)", len(ex.Sources), len(hits))
	run.extraction = ex
	return nil
}

func sourceLabel(res *ingest.Result) string {
	for _, key := range []string{"url", "path"} {
		if loc, ok := res.Metadata[key].(string); ok && loc != "" {
			return res.Method + ":" + loc
		}
	}
	return res.Method
}

// sourceConfidence derives extraction confidence from how much evidence
// was gathered and how trustworthy its channels are.
func sourceConfidence(hits []*models.ScoredNode, methods []string) float64 {
	if len(methods) == 0 {
		return 0.0
	}
	var sim float64
	for _, h := range hits {
		sim += h.Similarity
	}
	if len(hits) > 0 {
		sim /= float64(len(hits))
	}

	var quality float64
	for _, m := range methods {
		quality += methodQuality(m)
	}
	quality /= float64(len(methods))

	count := float64(len(methods)) * 0.15
	if count > 0.5 {
		count = 0.5
	}
	score := count + 0.3*quality + 0.2*sim
	if score > 1 {
		score = 1
	}
	return score
}

func methodQuality(method string) float64 {
	switch method {
	case "memory":
		return 0.8
	case "document", "structured":
		return 0.9
	case "web":
		return 0.6
	default:
		return 0.5
	}
}

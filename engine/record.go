package engine

import (
	"context"
	"errors"
	"time"

	"github.com/hazyhaar/glotfile/assembler"
	"github.com/hazyhaar/glotfile/format"
	"github.com/hazyhaar/glotfile/kit"
	"github.com/hazyhaar/glotfile/observability"
	"github.com/hazyhaar/glotfile/planner"
)

// ErrorKind names the failure class of err for logs and metrics. It returns
// "" for nil.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, format.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, format.ErrUnsupportedStructure):
		return "unsupported_structure"
	case errors.Is(err, format.ErrNoEmbedRegion):
		return "no_embed_region"
	case errors.Is(err, format.ErrNoValidOrdering):
		return "no_valid_ordering"
	case errors.Is(err, format.ErrValidationFailed):
		return "validation_failed"
	case errors.Is(err, assembler.ErrCorruptPlan):
		return "corrupt_plan"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "internal"
}

// record logs the outcome of one Generate call and feeds the optional sinks.
func (e *Engine) record(ctx context.Context, req Request, p *planner.Plan, out *Output, err error, took time.Duration) {
	g := &observability.Generation{
		Transport:  kit.GetTransport(ctx),
		TraceID:    kit.GetTraceID(ctx),
		Label:      req.Combination,
		Inputs:     len(req.Files),
		ErrorKind:  ErrorKind(err),
		DurationMs: took.Milliseconds(),
	}
	for _, f := range req.Files {
		g.InputBytes += int64(len(f.Data))
	}
	if p != nil {
		g.Anchor = string(p.Anchor)
		g.Patches = len(p.Patches)
		g.OverheadBytes = p.Overhead
		for _, t := range p.Relaxed() {
			g.Relaxed = append(g.Relaxed, string(t))
		}
		e.cfg.Metrics.Record(&observability.Metric{
			Name: observability.MetricPlanLayouts, Value: float64(p.Considered), Unit: "count",
		})
	}

	labels := map[string]string{"transport": g.Transport}
	if err != nil {
		g.ErrorMessage = err.Error()
		labels["kind"] = g.ErrorKind
		e.cfg.Metrics.Record(&observability.Metric{Name: observability.MetricRequestRejected, Value: 1, Labels: labels, Unit: "count"})
		e.cfg.Generations.LogAsync(g)
		e.log(ctx).Warn("engine: generation failed", "combination", req.Combination, "kind", g.ErrorKind, "error", err)
		return
	}

	g.Label = out.Label
	g.OutputBytes = int64(len(out.Data))
	g.Digest = out.Digest
	labels["label"] = out.Label
	labels["anchor"] = g.Anchor
	e.cfg.Metrics.Record(&observability.Metric{Name: observability.MetricGenerateDurationMs, Value: float64(g.DurationMs), Labels: labels, Unit: "milliseconds"})
	e.cfg.Metrics.Record(&observability.Metric{Name: observability.MetricGenerateOutputSize, Value: float64(g.OutputBytes), Labels: labels, Unit: "bytes"})
	e.cfg.Metrics.Record(&observability.Metric{Name: observability.MetricGenerateOverhead, Value: float64(g.OverheadBytes), Labels: labels, Unit: "bytes"})
	e.cfg.Generations.LogAsync(g)

	e.log(ctx).Info("engine: polyglot generated",
		"id", out.ID,
		"label", out.Label,
		"anchor", p.Anchor,
		"size", g.OutputBytes,
		"overhead", p.Overhead,
		"patches", g.Patches,
		"relaxed", len(g.Relaxed),
		"duration_ms", g.DurationMs,
	)
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hazyhaar/glotfile/assembler"
	"github.com/hazyhaar/glotfile/dbopen"
	"github.com/hazyhaar/glotfile/format"
	"github.com/hazyhaar/glotfile/kit"
	"github.com/hazyhaar/glotfile/observability"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("file 1: %w", format.ErrInvalidInput), "invalid_input"},
		{format.Unsupported(format.PDF, "no header"), "unsupported_structure"},
		{format.NoRegion(format.ZIP, "comment full"), "no_embed_region"},
		{format.ErrNoValidOrdering, "no_valid_ordering"},
		{&format.ValidationError{Format: format.ZIP, Err: errors.New("crc")}, "validation_failed"},
		{fmt.Errorf("assemble: %w", assembler.ErrCorruptPlan), "corrupt_plan"},
		{context.Canceled, "canceled"},
		{errors.New("disk on fire"), "internal"},
	}
	for _, tt := range tests {
		if got := ErrorKind(tt.err); got != tt.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestGenerate_RecordsOutcomes(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(observability.Schema))
	mm := observability.NewMetricsManager(db, 100, time.Hour)
	gl := observability.NewGenerationLog(db, 16)
	e := New(Config{
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		IDs:         func() string { return "fixed" },
		Metrics:     mm,
		Generations: gl,
	})

	ctx := kit.WithTransport(context.Background(), "mcp")
	types := []format.Type{format.PDF, format.ZIP}
	if _, err := e.Generate(ctx, Request{Combination: "pdf-zip", Files: untyped(types)}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Generate(ctx, Request{Combination: "zip-pdf", Files: untyped(types)}); err == nil {
		t.Fatal("expected failure")
	}
	gl.Close()
	mm.Close()

	rows, err := gl.Query(context.Background(), observability.GenerationFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows", len(rows))
	}
	var ok, failed *observability.Generation
	for _, r := range rows {
		if r.Status == "success" {
			ok = r
		} else {
			failed = r
		}
	}
	if ok == nil || ok.Anchor != "pdf" || ok.Label != "pdf-zip" || ok.Transport != "mcp" || ok.Digest == "" {
		t.Fatalf("success row: %+v", ok)
	}
	if failed == nil || failed.ErrorKind != "unsupported_structure" {
		t.Fatalf("failure row: %+v", failed)
	}

	durations, err := mm.Query(context.Background(), observability.MetricGenerateDurationMs, nil, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(durations) != 1 || durations[0].Labels["anchor"] != "pdf" {
		t.Fatalf("durations: %+v", durations)
	}
	rejected, err := mm.Query(context.Background(), observability.MetricRequestRejected, nil, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rejected) != 1 || rejected[0].Labels["kind"] != "unsupported_structure" {
		t.Fatalf("rejected: %+v", rejected)
	}
}

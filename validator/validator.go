// CLAUDE:SUMMARY Validator: per-format conformance on the whole output plus byte-exact payload recovery with patches undone.
// CLAUDE:DEPENDS planner, format
// Package validator checks an assembled polyglot before it is released.
// It is pure: the same output and plan always give the same verdict.
package validator

import (
	"bytes"
	"context"
	"fmt"

	"github.com/hazyhaar/glotfile/format"
	"github.com/hazyhaar/glotfile/planner"
)

// Validate runs every input's conformance check on out and recovers each
// input byte for byte. The first failure is returned as a
// *format.ValidationError.
func Validate(ctx context.Context, out []byte, p *planner.Plan) error {
	if int64(len(out)) != p.Size {
		return &format.ValidationError{Format: p.Anchor, Err: fmt.Errorf("output is %d bytes, plan says %d", len(out), p.Size)}
	}
	for i, pl := range p.Placements {
		if err := ctx.Err(); err != nil {
			return err
		}
		in := p.Inputs[i]
		if err := in.Adapter.Conform(out, pl, in.File.Data); err != nil {
			return &format.ValidationError{Format: pl.Type, Err: err}
		}
		if err := Recover(out, pl, p.Patches, in.File.Data); err != nil {
			return &format.ValidationError{Format: pl.Type, Err: err}
		}
	}
	return nil
}

// Recover extracts the bytes placed by pl, restores the original value of
// every patch of pl's format that falls inside them and compares the result
// with original. A patch of another format touching those bytes fails.
func Recover(out []byte, pl format.Placement, patches []format.Patch, original []byte) error {
	got, err := pl.Extract(out)
	if err != nil {
		return err
	}
	for _, pt := range patches {
		if !touches(pl, pt.Offset, int64(pt.Width)) {
			continue
		}
		if pt.Format != pl.Type || !pl.Owns(pt.Offset, int64(pt.Width)) {
			return fmt.Errorf("%s %q at %d overwrites %s bytes", pt.Format, pt.Meaning, pt.Offset, pl.Type)
		}
		off, ok := pl.Map.In(pt.Offset)
		if !ok {
			return fmt.Errorf("%s %q at %d does not map back", pt.Format, pt.Meaning, pt.Offset)
		}
		if err := format.PutField(got, off, pt.Width, pt.Enc, pt.Old); err != nil {
			return fmt.Errorf("undo %s %q: %w", pt.Format, pt.Meaning, err)
		}
	}
	if !bytes.Equal(got, original) {
		return fmt.Errorf("recovered payload differs from the original at byte %d", firstDiff(got, original))
	}
	return nil
}

// touches reports whether [off, off+n) overlaps any byte of pl.
func touches(pl format.Placement, off, n int64) bool {
	for _, r := range pl.Ranges() {
		if off < r.End() && off+n > r.Off {
			return true
		}
	}
	return false
}

func firstDiff(a, b []byte) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

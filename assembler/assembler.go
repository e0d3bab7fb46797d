// CLAUDE:SUMMARY Polyglot assembler: copies plan entries into one buffer, applies integer patches, then checksum patches.
// CLAUDE:DEPENDS planner, format
// Package assembler executes an embedding plan. It makes no decisions: any
// inconsistency in the plan is reported as ErrCorruptPlan and no output is
// returned.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/hazyhaar/glotfile/format"
	"github.com/hazyhaar/glotfile/planner"
)

// ErrCorruptPlan reports a plan the assembler cannot execute faithfully.
var ErrCorruptPlan = errors.New("corrupt plan")

func corrupt(msg string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptPlan, fmt.Sprintf(msg, args...))
}

// Assemble builds the output of p. Inputs are read, never written.
func Assemble(ctx context.Context, p *planner.Plan) ([]byte, error) {
	if p == nil {
		return nil, corrupt("nil plan")
	}
	if p.Size < 0 {
		return nil, corrupt("negative size %d", p.Size)
	}
	out := make([]byte, p.Size)
	var at int64
	for i, e := range p.Entries {
		if e.Out.Off != at {
			return nil, corrupt("entry %d at %d, expected %d", i, e.Out.Off, at)
		}
		switch e.Kind {
		case planner.EntryPayload:
			if e.Input < 0 || e.Input >= len(p.Inputs) {
				return nil, corrupt("entry %d names input %d", i, e.Input)
			}
			data := p.Inputs[e.Input].File.Data
			if e.Src.Off < 0 || e.Src.End() > int64(len(data)) || e.Src.Len != e.Out.Len {
				return nil, corrupt("entry %d: source [%d,%d) of %d-byte %s", i, e.Src.Off, e.Src.End(), len(data), e.Format)
			}
			copy(out[e.Out.Off:e.Out.End()], data[e.Src.Off:e.Src.End()])
		case planner.EntryFrame:
			if int64(len(e.Literal)) != e.Out.Len {
				return nil, corrupt("entry %d: %d literal bytes for %d", i, len(e.Literal), e.Out.Len)
			}
			copy(out[e.Out.Off:e.Out.End()], e.Literal)
		default:
			return nil, corrupt("entry %d has kind %d", i, e.Kind)
		}
		at = e.Out.End()
	}
	if at != p.Size {
		return nil, corrupt("entries end at %d, plan size %d", at, p.Size)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := applyPatches(out, p.Patches); err != nil {
		return nil, err
	}
	return out, nil
}

// applyPatches writes integer patches first; checksum patches cover bytes
// the integer patches may have changed, so they run last.
func applyPatches(out []byte, patches []format.Patch) error {
	ps := append([]format.Patch(nil), patches...)
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].Offset < ps[j].Offset })
	for i := 1; i < len(ps); i++ {
		prev := ps[i-1]
		if prev.Offset+int64(prev.Width) > ps[i].Offset {
			return corrupt("%s %q overlaps %s %q at %d", prev.Format, prev.Meaning, ps[i].Format, ps[i].Meaning, ps[i].Offset)
		}
	}
	var sums []format.Patch
	for _, pt := range ps {
		if pt.Enc == format.Checksum {
			sums = append(sums, pt)
			continue
		}
		old, err := format.ReadField(out, pt.Offset, pt.Width, pt.Enc)
		if err != nil {
			return corrupt("%s %q: %v", pt.Format, pt.Meaning, err)
		}
		if old != pt.Old {
			return corrupt("%s %q at %d holds %d, plan expected %d", pt.Format, pt.Meaning, pt.Offset, old, pt.Old)
		}
		if err := format.PutField(out, pt.Offset, pt.Width, pt.Enc, pt.New); err != nil {
			return corrupt("%s %q: %v", pt.Format, pt.Meaning, err)
		}
	}
	for _, pt := range sums {
		if pt.Span.Off < 0 || pt.Span.End() > int64(len(out)) {
			return corrupt("%s %q: span [%d,%d) outside output", pt.Format, pt.Meaning, pt.Span.Off, pt.Span.End())
		}
		if err := format.PutField(out, pt.Offset, pt.Width, pt.Enc, format.Checksum32(out, pt.Span)); err != nil {
			return corrupt("%s %q: %v", pt.Format, pt.Meaning, err)
		}
	}
	return nil
}

// CLAUDE:SUMMARY Embedding plan types and the JSON summary exposed by the API, CLI and MCP tools.
package planner

import (
	"github.com/hazyhaar/glotfile/format"
)

// EntryKind says where an entry's bytes come from.
type EntryKind uint8

const (
	// EntryPayload copies a range of an input.
	EntryPayload EntryKind = iota + 1
	// EntryFrame writes literal frame bytes.
	EntryFrame
)

func (k EntryKind) String() string {
	if k == EntryPayload {
		return "payload"
	}
	return "frame"
}

// Entry is one contiguous piece of the output.
type Entry struct {
	Kind   EntryKind
	Format format.Type
	// Input indexes the plan's inputs; payload entries only.
	Input   int
	Src     format.Range
	Out     format.Range
	Literal []byte
	Note    string
}

// Plan is a complete, checked layout: entries tile [0, Size) in order.
type Plan struct {
	Anchor     format.Type
	Prefix     []format.Type
	Tail       []format.Type
	Size       int64
	Overhead   int64
	Entries    []Entry
	Patches    []format.Patch
	Placements []format.Placement
	// Inputs echoes the accepted inputs, indexed like Entry.Input.
	Inputs []*Input
	// Considered and Feasible count the layouts the planner evaluated.
	Considered int
	Feasible   int
}

// Relaxed lists the formats placed where only scanning readers find them.
func (p *Plan) Relaxed() []format.Type {
	var out []format.Type
	for _, pl := range p.Placements {
		if pl.Relaxed {
			out = append(out, pl.Type)
		}
	}
	return out
}

// Placement returns the placement of t.
func (p *Plan) Placement(t format.Type) (format.Placement, bool) {
	for _, pl := range p.Placements {
		if pl.Type == t {
			return pl, true
		}
	}
	return format.Placement{}, false
}

// Summary is the JSON view of a plan.
type Summary struct {
	Anchor     string         `json:"anchor"`
	Prefix     []string       `json:"prefix"`
	Tail       []string       `json:"tail"`
	Size       int64          `json:"size"`
	Overhead   int64          `json:"overhead"`
	Patches    int            `json:"patches"`
	Relaxed    []string       `json:"relaxed,omitempty"`
	Considered int            `json:"layouts_considered"`
	Feasible   int            `json:"layouts_feasible"`
	Inputs     []InputSummary `json:"inputs"`
	Entries    []EntrySummary `json:"entries"`
}

// InputSummary describes one accepted input.
type InputSummary struct {
	Type        string            `json:"type"`
	Name        string            `json:"name,omitempty"`
	Variant     string            `json:"variant"`
	Size        int64             `json:"size"`
	Offset      int64             `json:"offset"`
	Sites       int               `json:"patch_sites"`
	Fingerprint string            `json:"fingerprint"`
	Facts       map[string]string `json:"facts,omitempty"`
}

// EntrySummary describes one output entry.
type EntrySummary struct {
	Kind   string `json:"kind"`
	Format string `json:"format"`
	Offset int64  `json:"offset"`
	Length int64  `json:"length"`
	Note   string `json:"note,omitempty"`
}

func typeNames(ts []format.Type) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, string(t))
	}
	return out
}

// Summary renders the plan for clients.
func (p *Plan) Summary() Summary {
	s := Summary{
		Anchor:     string(p.Anchor),
		Prefix:     typeNames(p.Prefix),
		Tail:       typeNames(p.Tail),
		Size:       p.Size,
		Overhead:   p.Overhead,
		Patches:    len(p.Patches),
		Relaxed:    typeNames(p.Relaxed()),
		Considered: p.Considered,
		Feasible:   p.Feasible,
	}
	if len(s.Relaxed) == 0 {
		s.Relaxed = nil
	}
	for i, in := range p.Inputs {
		is := InputSummary{
			Type:        string(in.File.Type),
			Name:        in.File.Name,
			Variant:     in.Struct.Variant,
			Size:        int64(len(in.File.Data)),
			Sites:       len(in.Struct.Sites),
			Fingerprint: in.File.Fingerprint(),
			Facts:       in.Struct.Facts,
		}
		if i < len(p.Placements) {
			is.Offset = p.Placements[i].Start()
		}
		s.Inputs = append(s.Inputs, is)
	}
	for _, e := range p.Entries {
		s.Entries = append(s.Entries, EntrySummary{
			Kind:   e.Kind.String(),
			Format: string(e.Format),
			Offset: e.Out.Off,
			Length: e.Out.Len,
			Note:   e.Note,
		})
	}
	return s
}

// CLAUDE:SUMMARY Adapter contract, output placements and the adapter registry.
package format

import (
	"fmt"
	"sort"
)

// Adapter knows one format's structure. Adapters are stateless and safe for
// concurrent use.
type Adapter interface {
	Describe() Descriptor

	// Inspect parses the input, returning its offset sites and regions or
	// ErrUnsupportedStructure.
	Inspect(data []byte) (*Structure, error)

	// LocateEmbedRegion returns the region of the given kind or
	// ErrNoEmbedRegion.
	LocateEmbedRegion(data []byte, kind RegionKind) (Region, error)

	// PatchOffsets returns the patches needed after insertedLength bytes
	// are inserted at insertPoint. Patch offsets are output positions.
	PatchOffsets(data []byte, insertedLength, insertPoint int64) ([]Patch, error)

	// FrameSize returns the head and tail lengths of the frame wrapping a
	// payload of payloadLen bytes in region r.
	FrameSize(r Region, payloadLen int64) (head, tail int64)

	// Frame builds that frame. host maps the host's own offsets into the
	// output; frameAt is the output offset of the frame head.
	Frame(s *Structure, r Region, payloadLen int64, host Mapping, frameAt int64) (Frame, error)

	// Conform checks that out still reads as this format for the input
	// original placed at p.
	Conform(out []byte, p Placement, original []byte) error
}

// LeadChecker is implemented by adapters whose readers interpret every
// byte ahead of the format. CheckLead gets those bytes, guard included,
// followed by the input, and fails when a reader would no longer find the
// input where it was placed.
type LeadChecker interface {
	CheckLead(lead, data []byte) error
}

// Placement records where an input landed in the output.
type Placement struct {
	Type   Type
	Map    Mapping
	Length int64
	// Relaxed is set when the placement only suits scanning readers.
	Relaxed bool
}

// Start returns the output offset of the input's first byte.
func (p Placement) Start() int64 { return p.Map.Base }

// Ranges returns the output ranges holding the input's bytes in order.
func (p Placement) Ranges() []Range {
	m := p.Map
	if m.Inserted == 0 || m.Point >= p.Length {
		return []Range{{Off: m.Base, Len: p.Length}}
	}
	return []Range{
		{Off: m.Base, Len: m.Point},
		{Off: m.Base + m.Point + m.Inserted, Len: p.Length - m.Point},
	}
}

// Owns reports whether the output field [off, off+n) lies within the
// input's bytes.
func (p Placement) Owns(off, n int64) bool {
	for _, r := range p.Ranges() {
		if r.Contains(off, n) {
			return true
		}
	}
	return false
}

// Extract copies the input's bytes back out of the output.
func (p Placement) Extract(out []byte) ([]byte, error) {
	buf := make([]byte, 0, p.Length)
	for _, r := range p.Ranges() {
		if r.Off < 0 || r.End() > int64(len(out)) {
			return nil, fmt.Errorf("%s placement [%d,%d) outside output of %d bytes", p.Type, r.Off, r.End(), len(out))
		}
		buf = append(buf, out[r.Off:r.End()]...)
	}
	return buf, nil
}

// LocateRegion implements Adapter.LocateEmbedRegion on top of Inspect.
func LocateRegion(a Adapter, data []byte, kind RegionKind) (Region, error) {
	s, err := a.Inspect(data)
	if err != nil {
		return Region{}, err
	}
	r, ok := s.Region(kind)
	if !ok {
		return Region{}, NoRegion(s.Type, "no %s region", kind)
	}
	return r, nil
}

// PatchOffsets implements Adapter.PatchOffsets on top of Inspect.
func PatchOffsets(a Adapter, data []byte, insertedLength, insertPoint int64) ([]Patch, error) {
	s, err := a.Inspect(data)
	if err != nil {
		return nil, err
	}
	return Relocate(s.Type, s.Sites, Mapping{Point: insertPoint, Inserted: insertedLength})
}

// Registry maps types to adapters.
type Registry struct {
	adapters map[Type]Adapter
}

// NewRegistry registers the given adapters, keyed by their descriptor.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[Type]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Describe().Type] = a
	}
	return r
}

// Get returns the adapter for t.
func (r *Registry) Get(t Type) (Adapter, error) {
	a, ok := r.adapters[t]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter for %q", ErrInvalidInput, t)
	}
	return a, nil
}

// Descriptors lists the registered descriptors in declaration order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a.Describe())
	}
	rank := make(map[Type]int, len(Types))
	for i, t := range Types {
		rank[t] = i
	}
	sort.Slice(out, func(i, j int) bool { return rank[out[i].Type] < rank[out[j].Type] })
	return out
}

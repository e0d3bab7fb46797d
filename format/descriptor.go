// CLAUDE:SUMMARY Static format descriptors, embed regions, frames and parsed input structure.
package format

import "math"

// Unlimited marks an unbounded lead window or region capacity.
const Unlimited int64 = math.MaxInt64

// TrailPolicy states what a format's readers tolerate after its own bytes.
type TrailPolicy uint8

const (
	// TrailAny: readers stop at the format's end marker and ignore the rest.
	TrailAny TrailPolicy = iota
	// TrailFramed: following bytes must sit inside a frame that runs to EOF.
	TrailFramed
	// TrailBounded: following bytes must fit the trailing region's capacity.
	TrailBounded
)

func (p TrailPolicy) String() string {
	switch p {
	case TrailFramed:
		return "framed"
	case TrailBounded:
		return "bounded"
	}
	return "any"
}

// RegionKind distinguishes the two places a host can carry foreign bytes.
type RegionKind uint8

const (
	RegionPrefix RegionKind = iota + 1
	RegionTrailing
)

func (k RegionKind) String() string {
	if k == RegionPrefix {
		return "prefix"
	}
	return "trailing"
}

// Descriptor is the static description an adapter publishes.
type Descriptor struct {
	Type Type
	Name string
	// MIME and Extension name the first variant. Adapters reading more
	// than one encoding list all of them in Variants.
	MIME      string
	Extension string
	Variants  []Variant
	Magic     [][]byte

	// MaxLead is the largest header position a strict reader accepts.
	MaxLead int64
	// RelaxedLead is the largest header position a scanning reader
	// accepts. Placements between MaxLead and RelaxedLead are feasible but
	// ranked behind strict ones.
	RelaxedLead int64

	Trail TrailPolicy
	// Forbid lists byte sequences that must not appear anywhere after the
	// format's own bytes.
	Forbid [][]byte
	// LeadGuard is emitted ahead of the format whenever it does not start
	// the output.
	LeadGuard []byte

	Regions      []RegionKind
	OffsetFields []string
}

// Variant is one encoding a format adapter accepts.
type Variant struct {
	Name      string `json:"name"`
	MIME      string `json:"mime"`
	Extension string `json:"extension"`
}

// MIMEs lists the MIME type of every variant, or MIME alone.
func (d Descriptor) MIMEs() []string {
	if len(d.Variants) == 0 {
		return []string{d.MIME}
	}
	out := make([]string, len(d.Variants))
	for i, v := range d.Variants {
		out[i] = v.MIME
	}
	return out
}

// Strictness orders anchors: a smaller key means a stricter format.
func (d Descriptor) Strictness() [2]int64 {
	return [2]int64{d.MaxLead, d.RelaxedLead}
}

// HasRegion reports whether the format can host bytes in a region kind.
func (d Descriptor) HasRegion(k RegionKind) bool {
	for _, r := range d.Regions {
		if r == k {
			return true
		}
	}
	return false
}

// Region is a place inside a host where foreign bytes can be inserted
// without breaking the host.
type Region struct {
	Kind RegionKind
	// Offset is the insertion point within the host's own bytes.
	Offset int64
	// Capacity is the largest payload the region accepts.
	Capacity int64
	Name     string
}

// Frame is the container a host wraps around an embedded payload.
type Frame struct {
	Head    []byte
	Tail    []byte
	Patches []Patch
}

// Structure is the result of inspecting one input.
// MIME and Extension follow the variant the input was sniffed as.
type Structure struct {
	Type      Type
	Variant   string
	MIME      string
	Extension string
	Size      int64
	// HeaderAt is the position of the format's signature within the input.
	HeaderAt int64
	Sites    []Site
	Regions  []Region
	// Marks are named positions inside the input used when framing.
	Marks map[string]int64
	Facts map[string]string
}

// Region returns the region of the given kind, if the input has one.
func (s *Structure) Region(k RegionKind) (Region, bool) {
	for _, r := range s.Regions {
		if r.Kind == k {
			return r, true
		}
	}
	return Region{}, false
}

// SetMark records a named position.
func (s *Structure) SetMark(name string, off int64) {
	if s.Marks == nil {
		s.Marks = make(map[string]int64)
	}
	s.Marks[name] = off
}

// SetFact records a human-readable fact about the input.
func (s *Structure) SetFact(key, value string) {
	if s.Facts == nil {
		s.Facts = make(map[string]string)
	}
	s.Facts[key] = value
}

package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/glotfile/format"
	"github.com/hazyhaar/glotfile/format/formattest"
	fhtml "github.com/hazyhaar/glotfile/format/html"
	"github.com/hazyhaar/glotfile/format/img"
	"github.com/hazyhaar/glotfile/format/mp4"
	"github.com/hazyhaar/glotfile/format/pdf"
	fzip "github.com/hazyhaar/glotfile/format/zip"
)

func registry() *format.Registry {
	return format.NewRegistry(pdf.New(), fzip.New(), mp4.New(), img.New(), fhtml.New())
}

func fixture(t format.Type) format.InputFile {
	switch t {
	case format.PDF:
		return format.InputFile{Type: t, Name: "doc.pdf", Data: formattest.PDF()}
	case format.ZIP:
		return format.InputFile{Type: t, Name: "bundle.zip", Data: formattest.ZIP()}
	case format.MP4:
		return format.InputFile{Type: t, Name: "clip.mp4", Data: formattest.MP4()}
	case format.Image:
		return format.InputFile{Type: t, Name: "pic.png", Data: formattest.PNG(8, 6)}
	case format.HTML:
		return format.InputFile{Type: t, Name: "page.html", Data: formattest.HTML()}
	}
	panic("no fixture for " + string(t))
}

func files(ts ...format.Type) []format.InputFile {
	out := make([]format.InputFile, 0, len(ts))
	for _, t := range ts {
		out = append(out, fixture(t))
	}
	return out
}

// checkTiling asserts entries cover [0, Size) without gaps and that the
// size accounts for every input plus the frame overhead.
func checkTiling(t *testing.T, p *Plan) {
	t.Helper()
	var off, payload int64
	for i, e := range p.Entries {
		if e.Out.Off != off {
			t.Fatalf("entry %d starts at %d, want %d", i, e.Out.Off, off)
		}
		if e.Kind == EntryPayload {
			payload += e.Out.Len
		} else if int64(len(e.Literal)) != e.Out.Len {
			t.Fatalf("entry %d: literal of %d bytes for %d-byte range", i, len(e.Literal), e.Out.Len)
		}
		off = e.Out.End()
	}
	if off != p.Size {
		t.Fatalf("entries end at %d, plan size %d", off, p.Size)
	}
	var inputs int64
	for _, in := range p.Inputs {
		inputs += in.Size()
		if p.Size < in.Size() {
			t.Fatalf("output smaller than %s input", in.File.Type)
		}
	}
	if payload != inputs || p.Size != inputs+p.Overhead {
		t.Fatalf("size %d, inputs %d, payload %d, overhead %d", p.Size, inputs, payload, p.Overhead)
	}
}

func TestLayouts_Count(t *testing.T) {
	for n, want := range map[int]int{2: 4, 3: 18, 4: 96, 5: 600} {
		if got := len(layouts(n)); got != want {
			t.Errorf("layouts(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestAccept_Rejects(t *testing.T) {
	bad := fixture(format.PDF)
	bad.Data = []byte("%PDF-1.4 but nothing else")
	empty := fixture(format.ZIP)
	empty.Data = nil
	tests := []struct {
		name  string
		files []format.InputFile
		want  error
	}{
		{"one file", files(format.PDF), format.ErrInvalidInput},
		{"duplicate type", []format.InputFile{fixture(format.PDF), fixture(format.PDF)}, format.ErrInvalidInput},
		{"unknown type", []format.InputFile{fixture(format.PDF), {Type: "gif", Data: []byte("GIF89a")}}, format.ErrInvalidInput},
		{"empty file", []format.InputFile{fixture(format.PDF), empty}, format.ErrUnsupportedStructure},
		{"broken pdf", []format.InputFile{bad, fixture(format.ZIP)}, format.ErrUnsupportedStructure},
	}
	p := New(registry(), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.Plan(context.Background(), tt.files); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPlan_Combinations(t *testing.T) {
	tests := []struct {
		name    string
		types   []format.Type
		anchor  format.Type
		relaxed []format.Type
	}{
		{"pdf zip", []format.Type{format.PDF, format.ZIP}, format.PDF, nil},
		{"image zip", []format.Type{format.Image, format.ZIP}, format.Image, nil},
		{"zip image", []format.Type{format.ZIP, format.Image}, format.Image, nil},
		{"image mp4", []format.Type{format.Image, format.MP4}, format.Image, []format.Type{format.MP4}},
		{"pdf mp4", []format.Type{format.PDF, format.MP4}, format.MP4, nil},
		{"pdf html", []format.Type{format.PDF, format.HTML}, format.PDF, nil},
		{"zip html", []format.Type{format.ZIP, format.HTML}, format.ZIP, nil},
		{"four way", []format.Type{format.PDF, format.MP4, format.Image, format.ZIP}, format.Image, []format.Type{format.MP4}},
		{"five way", []format.Type{format.PDF, format.Image, format.MP4, format.ZIP, format.HTML}, format.Image, []format.Type{format.MP4}},
	}
	p := New(registry(), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := p.Plan(context.Background(), files(tt.types...))
			if err != nil {
				t.Fatal(err)
			}
			if plan.Anchor != tt.anchor {
				t.Fatalf("anchor %s, want %s", plan.Anchor, tt.anchor)
			}
			if diff := cmp.Diff(tt.relaxed, plan.Relaxed()); diff != "" {
				t.Fatalf("relaxed placements (-want +got):\n%s", diff)
			}
			if len(plan.Placements) != len(tt.types) {
				t.Fatalf("%d placements", len(plan.Placements))
			}
			checkTiling(t, plan)
		})
	}
}

func TestPlan_FewestPatchesWins(t *testing.T) {
	// The ZIP fits the PNG's glOt chunk, but after IEND it needs no frame,
	// no comment extension and no chunk CRC.
	plan, err := New(registry(), nil).Plan(context.Background(), files(format.Image, format.ZIP))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]format.Type{format.ZIP}, plan.Tail); diff != "" {
		t.Fatalf("tail (-want +got):\n%s", diff)
	}
	for _, p := range plan.Patches {
		if p.Format != format.ZIP {
			t.Fatalf("unexpected %s patch %q", p.Format, p.Meaning)
		}
	}
}

func TestPlan_PatchesMatchPlacements(t *testing.T) {
	plan, err := New(registry(), nil).Plan(context.Background(), files(format.PDF, format.MP4, format.Image, format.ZIP))
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(plan.Patches); i++ {
		if plan.Patches[i].Offset < plan.Patches[i-1].Offset {
			t.Fatal("patches not sorted by offset")
		}
	}
	for _, p := range plan.Patches {
		if p.Offset < 0 || p.Offset+int64(p.Width) > plan.Size {
			t.Fatalf("%s patch %q at %d outside output", p.Format, p.Meaning, p.Offset)
		}
	}
	pl, ok := plan.Placement(format.Image)
	if !ok || pl.Start() != 0 {
		t.Fatalf("image placement: %+v", pl)
	}
}

func TestPlan_Deterministic(t *testing.T) {
	p := New(registry(), nil)
	in := files(format.PDF, format.MP4, format.Image, format.ZIP)
	a, err := p.Plan(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Plan(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(a.Summary(), b.Summary()); diff != "" {
		t.Fatalf("plans differ (-first +second):\n%s", diff)
	}
}

func TestPlan_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(registry(), nil).Plan(ctx, files(format.PDF, format.ZIP))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestPlan_LeadHidesHTML(t *testing.T) {
	// A PDF comment opening <plaintext> turns everything after it into
	// text, so the HTML cannot follow the PDF.
	in := []format.InputFile{
		{Type: format.PDF, Name: "doc.pdf", Data: formattest.PDFComment("<plaintext>  S")},
		fixture(format.HTML),
	}
	plan, err := New(registry(), nil).Plan(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Anchor != format.HTML {
		t.Fatalf("anchor %s, want html", plan.Anchor)
	}
	if diff := cmp.Diff([]format.Type{format.PDF}, plan.Tail); diff != "" {
		t.Fatalf("tail (-want +got):\n%s", diff)
	}
	checkTiling(t, plan)
}

// stub is a synthetic adapter that exposes exactly the descriptor facts
// under test.
type stub struct {
	desc      format.Descriptor
	hasPrefix bool
	trailCap  int64
	head      func(payload int64) int64
}

func (s *stub) Describe() format.Descriptor { return s.desc }

func (s *stub) Inspect(data []byte) (*format.Structure, error) {
	st := &format.Structure{Type: s.desc.Type, Variant: "stub", Size: int64(len(data))}
	if s.hasPrefix {
		st.Regions = append(st.Regions, format.Region{Kind: format.RegionPrefix, Offset: 1, Capacity: format.Unlimited, Name: "stub prefix"})
	}
	if s.trailCap > 0 {
		st.Regions = append(st.Regions, format.Region{Kind: format.RegionTrailing, Offset: int64(len(data)), Capacity: s.trailCap, Name: "stub trailer"})
	}
	return st, nil
}

func (s *stub) LocateEmbedRegion(data []byte, k format.RegionKind) (format.Region, error) {
	return format.LocateRegion(s, data, k)
}

func (s *stub) PatchOffsets(data []byte, n, at int64) ([]format.Patch, error) {
	return format.PatchOffsets(s, data, n, at)
}

func (s *stub) FrameSize(_ format.Region, payload int64) (int64, int64) {
	if s.head == nil {
		return 0, 0
	}
	return s.head(payload), 0
}

func (s *stub) Frame(_ *format.Structure, r format.Region, payload int64, _ format.Mapping, _ int64) (format.Frame, error) {
	h, _ := s.FrameSize(r, payload)
	return format.Frame{Head: make([]byte, h)}, nil
}

func (s *stub) Conform([]byte, format.Placement, []byte) error { return nil }

func desc(t format.Type, maxLead, relaxedLead int64, trail format.TrailPolicy) format.Descriptor {
	return format.Descriptor{Type: t, MaxLead: maxLead, RelaxedLead: relaxedLead, Trail: trail}
}

func TestPlan_Rules(t *testing.T) {
	const a, b format.Type = "stub-a", "stub-b"
	tests := []struct {
		name   string
		a, b   *stub
		bData  string
		anchor format.Type
		want   error
	}{
		{
			name: "both pinned to offset zero",
			a:    &stub{desc: desc(a, 0, 0, format.TrailAny)},
			b:    &stub{desc: desc(b, 0, 0, format.TrailAny)},
			want: format.ErrNoValidOrdering,
		},
		{
			name:   "forbidden sequence after a",
			a:      &stub{desc: format.Descriptor{Type: a, MaxLead: un(), RelaxedLead: un(), Forbid: [][]byte{[]byte("XX")}}},
			b:      &stub{desc: desc(b, un(), un(), format.TrailAny)},
			bData:  "bbXXbb",
			anchor: b,
		},
		{
			name:   "bounded trailer too small",
			a:      &stub{desc: desc(a, un(), un(), format.TrailBounded), trailCap: 4},
			b:      &stub{desc: desc(b, un(), un(), format.TrailAny)},
			bData:  "0123456789",
			anchor: b,
		},
		{
			name:   "bounded trailer large enough",
			a:      &stub{desc: desc(a, un(), un(), format.TrailBounded), trailCap: 100},
			b:      &stub{desc: desc(b, un(), un(), format.TrailAny)},
			bData:  "0123456789",
			anchor: a,
		},
		{
			name:   "framed without trailing region",
			a:      &stub{desc: desc(a, un(), un(), format.TrailFramed)},
			b:      &stub{desc: desc(b, un(), un(), format.TrailAny)},
			anchor: b,
		},
		{
			name:   "strict placement beats declared order",
			a:      &stub{desc: desc(a, un(), un(), format.TrailAny)},
			b:      &stub{desc: desc(b, 0, un(), format.TrailAny)},
			anchor: b,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bData := tt.bData
			if bData == "" {
				bData = "bbbb"
			}
			p := New(format.NewRegistry(tt.a, tt.b), nil)
			plan, err := p.Plan(context.Background(), []format.InputFile{
				{Type: a, Data: []byte("aaaa")},
				{Type: b, Data: []byte(bData)},
			})
			if tt.want != nil {
				if !errors.Is(err, tt.want) {
					t.Fatalf("got %v, want %v", err, tt.want)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if plan.Anchor != tt.anchor {
				t.Fatalf("anchor %s, want %s", plan.Anchor, tt.anchor)
			}
			checkTiling(t, plan)
		})
	}
}

func TestPlan_FrameSizesSettle(t *testing.T) {
	const a, b format.Type = "stub-a", "stub-b"
	grow := func(payload int64) int64 {
		if payload+8 > 100 {
			return 16
		}
		return 8
	}
	host := &stub{desc: desc(a, 0, 0, format.TrailFramed), trailCap: format.Unlimited, head: grow}
	guest := &stub{desc: desc(b, un(), un(), format.TrailAny)}
	payload := make([]byte, 95)
	plan, err := New(format.NewRegistry(host, guest), nil).Plan(context.Background(), []format.InputFile{
		{Type: a, Data: []byte("aaaa")},
		{Type: b, Data: payload},
	})
	if err != nil {
		t.Fatal(err)
	}
	checkTiling(t, plan)
	if plan.Overhead != 16 {
		t.Fatalf("overhead %d, want 16", plan.Overhead)
	}
	pl, _ := plan.Placement(b)
	if pl.Start() != 4+16 {
		t.Fatalf("guest at %d", pl.Start())
	}
}

func TestPlan_PrefixChainMapping(t *testing.T) {
	const a, b format.Type = "stub-a", "stub-b"
	host := &stub{desc: desc(a, 0, 0, format.TrailAny), hasPrefix: true, head: func(int64) int64 { return 3 }}
	guest := &stub{desc: desc(b, un(), un(), format.TrailAny)}
	plan, err := New(format.NewRegistry(host, guest), nil).Plan(context.Background(), []format.InputFile{
		{Type: a, Data: []byte("aaaa")},
		{Type: b, Data: []byte("bb")},
	})
	if err != nil {
		t.Fatal(err)
	}
	checkTiling(t, plan)
	// The tail layout needs no frame, so it wins on overhead.
	if diff := cmp.Diff([]format.Type{b}, plan.Tail); diff != "" {
		t.Fatalf("tail (-want +got):\n%s", diff)
	}

	// Forcing the prefix chain through evaluate checks the split mapping.
	ev := newEvaluator(plan.Inputs)
	c, err := ev.evaluate(layout{anchor: 0, prefix: []int{1}})
	if err != nil {
		t.Fatal(err)
	}
	want := format.Mapping{Base: 0, Point: 1, Inserted: 3 + 2}
	if diff := cmp.Diff(want, c.maps[0]); diff != "" {
		t.Fatalf("anchor mapping (-want +got):\n%s", diff)
	}
	if c.maps[1].Base != 1+3 {
		t.Fatalf("guest base %d", c.maps[1].Base)
	}
}

func un() int64 { return format.Unlimited }

package pdf

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/hazyhaar/glotfile/format"
	"github.com/hazyhaar/glotfile/format/formattest"
)

func TestInspect_Classic(t *testing.T) {
	data := formattest.PDF()
	s, err := New().Inspect(data)
	if err != nil {
		t.Fatal(err)
	}
	if s.HeaderAt != 0 || s.Variant != "pdf-1.4" {
		t.Fatalf("header %d variant %q", s.HeaderAt, s.Variant)
	}
	// startxref + four in-use objects
	if len(s.Sites) != 5 {
		t.Fatalf("sites: got %d, want 5", len(s.Sites))
	}
	if s.Sites[0].Meaning != "startxref" || s.Sites[0].Enc != format.Decimal {
		t.Fatalf("first site: %+v", s.Sites[0])
	}
	for _, site := range s.Sites[1:] {
		if site.Width != 10 {
			t.Fatalf("xref entry width: %+v", site)
		}
		if !bytes.HasPrefix(data[site.Value:], []byte(strings.TrimPrefix(site.Meaning, "xref entry ")+" 0 obj")) {
			t.Fatalf("%s does not point at its object", site.Meaning)
		}
	}
	r, ok := s.Region(format.RegionTrailing)
	if !ok || r.Offset != int64(len(data)) {
		t.Fatalf("trailing region: %+v %v", r, ok)
	}
	if _, ok := s.Region(format.RegionPrefix); ok {
		t.Fatal("PDF must not offer a prefix region")
	}
}

func TestInspect_IncrementalPrev(t *testing.T) {
	s, err := New().Inspect(formattest.PDFIncremental())
	if err != nil {
		t.Fatal(err)
	}
	var prev int
	for _, site := range s.Sites {
		if site.Meaning == "trailer /Prev" {
			prev++
		}
	}
	if prev != 1 {
		t.Fatalf("/Prev sites: got %d, want 1", prev)
	}
	if s.Facts["revisions"] != "2" {
		t.Fatalf("revisions: %q", s.Facts["revisions"])
	}
}

func TestInspect_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"no header", []byte("hello world, startxref 0 %%EOF")},
		{"late header", append(bytes.Repeat([]byte{' '}, 2000), formattest.PDF()...)},
		{"xref stream", formattest.PDFXRefStream()},
		{"no startxref", []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n%%EOF\n")},
		{"hybrid", bytes.Replace(formattest.PDF(), []byte("/Root 1 0 R"), []byte("/XRefStm 9"), 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Inspect(tt.data)
			if !errors.Is(err, format.ErrUnsupportedStructure) {
				t.Fatalf("got %v, want ErrUnsupportedStructure", err)
			}
		})
	}
}

func TestInspect_DeepValidation(t *testing.T) {
	if _, err := New(WithDeepValidation(true)).Inspect(formattest.PDF()); err != nil {
		t.Fatalf("pdfcpu rejected fixture: %v", err)
	}
}

func place(t *testing.T, data []byte, lead int) []byte {
	t.Helper()
	a := New()
	s, err := a.Inspect(data)
	if err != nil {
		t.Fatal(err)
	}
	patches, err := format.Relocate(format.PDF, s.Sites, format.Mapping{Base: int64(lead)})
	if err != nil {
		t.Fatal(err)
	}
	out := append(bytes.Repeat([]byte{'#'}, lead), data...)
	for _, p := range patches {
		if err := format.PutField(out, p.Offset, p.Width, p.Enc, p.New); err != nil {
			t.Fatal(err)
		}
	}
	return out
}

func TestConform_Shifted(t *testing.T) {
	for _, data := range [][]byte{formattest.PDF(), formattest.PDFIncremental()} {
		out := place(t, data, 40)
		p := format.Placement{Type: format.PDF, Map: format.Mapping{Base: 40}, Length: int64(len(data))}
		if err := New().Conform(out, p, data); err != nil {
			t.Fatalf("conform: %v", err)
		}
	}
}

func TestConform_UnpatchedShiftFails(t *testing.T) {
	data := formattest.PDF()
	out := append(bytes.Repeat([]byte{'#'}, 40), data...)
	p := format.Placement{Type: format.PDF, Map: format.Mapping{Base: 40}, Length: int64(len(data))}
	if err := New().Conform(out, p, data); err == nil {
		t.Fatal("unpatched shift must fail conformance")
	}
}

func TestConform_TrailingStartXRefFails(t *testing.T) {
	data := formattest.PDF()
	out := append(append([]byte{}, data...), []byte("junk startxref\n0\n%%EOF\n")...)
	p := format.Placement{Type: format.PDF, Length: int64(len(data))}
	if err := New().Conform(out, p, data); err == nil {
		t.Fatal("a later startxref must fail conformance")
	}
}

func TestRelocate_DecimalOverflow(t *testing.T) {
	s, err := New().Inspect(formattest.PDF())
	if err != nil {
		t.Fatal(err)
	}
	_, err = format.Relocate(format.PDF, s.Sites, format.Mapping{Base: 100000})
	if !errors.Is(err, format.ErrNoEmbedRegion) {
		t.Fatalf("got %v, want ErrNoEmbedRegion", err)
	}
}

func TestPatchOffsets(t *testing.T) {
	data := formattest.PDF()
	patches, err := New().PatchOffsets(data, 25, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(patches) != 5 {
		t.Fatalf("patches: got %d, want 5", len(patches))
	}
	for _, p := range patches {
		if p.New != p.Old+25 {
			t.Fatalf("%s: %d -> %d", p.Meaning, p.Old, p.New)
		}
	}
}

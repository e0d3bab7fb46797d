package format

import (
	"errors"
	"testing"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		in   string
		want Type
	}{
		{"PDF", PDF},
		{"video", MP4},
		{"Image", Image},
		{"jpeg", Image},
		{" zip ", ZIP},
		{"HTML", HTML},
	}
	for _, tt := range tests {
		got, err := ParseType(tt.in)
		if err != nil {
			t.Fatalf("ParseType(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if _, err := ParseType("docm"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unknown type: got %v", err)
	}
}

func TestMapping_OutIn(t *testing.T) {
	m := Mapping{Base: 0, Point: 33, Inserted: 100}
	if got := m.Out(10); got != 10 {
		t.Fatalf("before point: got %d", got)
	}
	if got := m.Out(33); got != 133 {
		t.Fatalf("at point: got %d", got)
	}
	if _, ok := m.In(50); ok {
		t.Fatal("offset inside gap must not map back")
	}
	if off, ok := m.In(140); !ok || off != 40 {
		t.Fatalf("In(140) = %d, %v", off, ok)
	}

	g := Mapping{Base: 500}
	if got := g.Out(7); got != 507 {
		t.Fatalf("guest: got %d", got)
	}
	if _, ok := g.In(499); ok {
		t.Fatal("offset before base must not map back")
	}
}

func TestRelocate(t *testing.T) {
	sites := []Site{
		{Offset: 100, Width: 4, Enc: BigEndian, Value: 200, Meaning: "chunk"},
		{Offset: 120, Width: 4, Enc: BigEndian, Value: 10, Meaning: "early"},
	}
	patches, err := Relocate(MP4, sites, Mapping{Point: 50, Inserted: 1000})
	if err != nil {
		t.Fatal(err)
	}
	if len(patches) != 1 {
		t.Fatalf("patches: got %d, want 1", len(patches))
	}
	p := patches[0]
	if p.Offset != 1100 || p.Old != 200 || p.New != 1200 {
		t.Fatalf("patch: %+v", p)
	}
	n, err := CountRelocated(MP4, sites, Mapping{Point: 50, Inserted: 1000})
	if err != nil || n != 1 {
		t.Fatalf("count: %d, %v", n, err)
	}
}

func TestRelocate_WidthOverflow(t *testing.T) {
	sites := []Site{{Offset: 0, Width: 2, Enc: LittleEndian, Value: 65000, Meaning: "small"}}
	_, err := Relocate(ZIP, sites, Mapping{Base: 1000})
	if !errors.Is(err, ErrNoEmbedRegion) {
		t.Fatalf("got %v, want ErrNoEmbedRegion", err)
	}
	dec := []Site{{Offset: 0, Width: 3, Enc: Decimal, Value: 990, Meaning: "startxref"}}
	if _, err := CountRelocated(PDF, dec, Mapping{Base: 20}); !errors.Is(err, ErrNoEmbedRegion) {
		t.Fatalf("decimal overflow: got %v", err)
	}
}

func TestPutReadField(t *testing.T) {
	tests := []struct {
		name  string
		width int
		enc   Encoding
		v     uint64
		raw   string
	}{
		{"be32", 4, BigEndian, 0x01020304, "\x01\x02\x03\x04"},
		{"le16", 2, LittleEndian, 0x0102, "\x02\x01"},
		{"decimal", 10, Decimal, 1234, "0000001234"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, tt.width)
			if err := PutField(buf, 0, tt.width, tt.enc, tt.v); err != nil {
				t.Fatal(err)
			}
			if string(buf) != tt.raw {
				t.Fatalf("encoded %q, want %q", buf, tt.raw)
			}
			got, err := ReadField(buf, 0, tt.width, tt.enc)
			if err != nil || got != tt.v {
				t.Fatalf("read back %d, %v", got, err)
			}
		})
	}
	if err := PutField(make([]byte, 2), 1, 2, BigEndian, 1); err == nil {
		t.Fatal("out of range write must fail")
	}
}

func TestPlacement_Ranges(t *testing.T) {
	p := Placement{Type: Image, Map: Mapping{Point: 33, Inserted: 50}, Length: 100}
	r := p.Ranges()
	if len(r) != 2 || r[0] != (Range{0, 33}) || r[1] != (Range{83, 67}) {
		t.Fatalf("ranges: %+v", r)
	}
	if p.Owns(40, 4) {
		t.Fatal("gap must not be owned")
	}
	if !p.Owns(90, 4) {
		t.Fatal("tail must be owned")
	}

	out := make([]byte, 150)
	for i := range out {
		out[i] = byte(i)
	}
	got, err := p.Extract(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 100 || got[32] != 32 || got[33] != 83 {
		t.Fatalf("extract: len %d, [32]=%d [33]=%d", len(got), got[32], got[33])
	}
}

func TestValidationError(t *testing.T) {
	err := error(&ValidationError{Format: ZIP, Err: errors.New("bad crc")})
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatal("must match ErrValidationFailed")
	}
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Format != ZIP {
		t.Fatalf("errors.As: %v", err)
	}
}

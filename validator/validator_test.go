package validator

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/hazyhaar/glotfile/assembler"
	"github.com/hazyhaar/glotfile/format"
	"github.com/hazyhaar/glotfile/format/formattest"
	fhtml "github.com/hazyhaar/glotfile/format/html"
	"github.com/hazyhaar/glotfile/format/img"
	"github.com/hazyhaar/glotfile/format/mp4"
	"github.com/hazyhaar/glotfile/format/pdf"
	fzip "github.com/hazyhaar/glotfile/format/zip"
	"github.com/hazyhaar/glotfile/planner"
)

var fixtures = map[format.Type]func() []byte{
	format.PDF:   formattest.PDF,
	format.ZIP:   formattest.ZIP,
	format.MP4:   formattest.MP4,
	format.Image: func() []byte { return formattest.PNG(8, 6) },
	format.HTML:  formattest.HTML,
}

func build(t *testing.T, ts ...format.Type) ([]byte, *planner.Plan) {
	t.Helper()
	reg := format.NewRegistry(pdf.New(), fzip.New(), mp4.New(), img.New(), fhtml.New())
	var files []format.InputFile
	for _, ty := range ts {
		files = append(files, format.InputFile{Type: ty, Data: fixtures[ty]()})
	}
	p, err := planner.New(reg, nil).Plan(context.Background(), files)
	if err != nil {
		t.Fatalf("plan %v: %v", ts, err)
	}
	out, err := assembler.Assemble(context.Background(), p)
	if err != nil {
		t.Fatalf("assemble %v: %v", ts, err)
	}
	return out, p
}

func TestValidate_Pairs(t *testing.T) {
	for i, a := range format.Types {
		for _, b := range format.Types[i+1:] {
			t.Run(string(a)+"+"+string(b), func(t *testing.T) {
				out, p := build(t, a, b)
				if err := Validate(context.Background(), out, p); err != nil {
					t.Fatalf("anchor %s, prefix %v, tail %v: %v", p.Anchor, p.Prefix, p.Tail, err)
				}
			})
		}
	}
}

func TestValidate_MultiWay(t *testing.T) {
	tests := []struct {
		name  string
		types []format.Type
	}{
		{"pdf video image zip", []format.Type{format.PDF, format.MP4, format.Image, format.ZIP}},
		{"image video pdf", []format.Type{format.Image, format.MP4, format.PDF}},
		{"zip video image", []format.Type{format.ZIP, format.MP4, format.Image}},
		{"pdf image video zip html", []format.Type{format.PDF, format.Image, format.MP4, format.ZIP, format.HTML}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, p := build(t, tt.types...)
			if err := Validate(context.Background(), out, p); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestValidate_Idempotent(t *testing.T) {
	out, p := build(t, format.PDF, format.MP4, format.Image, format.ZIP)
	before := bytes.Clone(out)
	for i := 0; i < 3; i++ {
		if err := Validate(context.Background(), out, p); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if !bytes.Equal(out, before) {
		t.Fatal("validation modified the output")
	}
}

func TestValidate_TamperedPayload(t *testing.T) {
	out, p := build(t, format.PDF, format.ZIP)
	// Flip a byte of the stored ZIP entry: the CRC check catches it.
	body := formattest.DefaultEntries()[1].Body
	i := bytes.Index(out, body)
	if i < 0 {
		t.Fatal("stored entry not found in output")
	}
	out[i+100] ^= 0xFF
	err := Validate(context.Background(), out, p)
	var ve *format.ValidationError
	if !errors.As(err, &ve) || ve.Format != format.ZIP {
		t.Fatalf("got %v, want a ZIP ValidationError", err)
	}
	if !errors.Is(err, format.ErrValidationFailed) {
		t.Fatal("ValidationError must match ErrValidationFailed")
	}
}

func TestValidate_MissingPatch(t *testing.T) {
	out, p := build(t, format.PDF, format.ZIP)
	// Restore one relocated field: the payload still recovers, but the
	// archive no longer resolves.
	var undone bool
	for _, pt := range p.Patches {
		if pt.Format == format.ZIP && pt.Enc == format.LittleEndian && pt.Old != pt.New {
			if err := format.PutField(out, pt.Offset, pt.Width, pt.Enc, pt.Old); err != nil {
				t.Fatal(err)
			}
			undone = true
			break
		}
	}
	if !undone {
		t.Fatal("no ZIP patch to undo")
	}
	if err := Validate(context.Background(), out, p); !errors.Is(err, format.ErrValidationFailed) {
		t.Fatalf("got %v, want ErrValidationFailed", err)
	}
}

func TestRecover(t *testing.T) {
	orig := []byte("AAAA12BB")
	out := []byte("xxAAAA34BByy")
	pl := format.Placement{Type: "raw", Map: format.Mapping{Base: 2}, Length: int64(len(orig))}
	patches := []format.Patch{
		{Format: "raw", Offset: 6, Width: 2, Enc: format.Decimal, Old: 12, New: 34},
		// outside the placement: ignored
		{Format: "raw", Offset: 0, Width: 2, Enc: format.Decimal, Old: 99, New: 1},
	}
	if err := Recover(out, pl, patches, orig); err != nil {
		t.Fatal(err)
	}
	if err := Recover(out, pl, patches[1:], orig); err == nil {
		t.Fatal("unrecorded change must fail recovery")
	}
}

func TestRecover_ForeignPatch(t *testing.T) {
	orig := []byte("AAAA12BB")
	pl := format.Placement{Type: format.ZIP, Map: format.Mapping{Base: 2}, Length: int64(len(orig))}
	tests := []struct {
		name  string
		out   string
		patch format.Patch
	}{
		// The byte at 6 was corrupted; a pdf patch there must not hide it.
		{"inside", "xxAAAA34BByy", format.Patch{Format: format.PDF, Offset: 6, Width: 2, Enc: format.Decimal, Old: 12, New: 34}},
		{"straddling the start", "00AAAA12BByy", format.Patch{Format: format.PDF, Offset: 1, Width: 2, Enc: format.Decimal, Old: 0, New: 0}},
		{"own format across the end", "xxAAAA12BB00", format.Patch{Format: format.ZIP, Offset: 9, Width: 2, Enc: format.Decimal, Old: 0, New: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Recover([]byte(tt.out), pl, []format.Patch{tt.patch}, orig); err == nil {
				t.Fatal("recovery must fail")
			}
		})
	}
}

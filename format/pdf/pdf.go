// CLAUDE:SUMMARY PDF adapter: header window, xref/startxref/Prev patch sites, trailing region, pdfcpu deep check.
// CLAUDE:DEPENDS format/pdf/xref.go
// Package pdf implements the format adapter for PDF documents with classic
// cross-reference tables.
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/hazyhaar/glotfile/format"
)

// HeaderWindow is how far into a file readers look for "%PDF-".
const HeaderWindow = 1024

var header = []byte("%PDF-")

// headerLen is len("%PDF-1.x").
const headerLen = 8

// Adapter handles PDF inputs.
type Adapter struct {
	deep bool
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithDeepValidation runs pdfcpu over every input before accepting it.
func WithDeepValidation(on bool) Option {
	return func(a *Adapter) { a.deep = on }
}

// New returns a PDF adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Adapter) Describe() format.Descriptor {
	return format.Descriptor{
		Type:        format.PDF,
		Name:        "PDF",
		MIME:        "application/pdf",
		Extension:   "pdf",
		Magic:       [][]byte{header},
		MaxLead:     HeaderWindow - headerLen,
		RelaxedLead: HeaderWindow - headerLen,
		Trail:       format.TrailAny,
		Forbid:      [][]byte{kwStartXRef},
		Regions:     []format.RegionKind{format.RegionTrailing},
		OffsetFields: []string{
			"xref entry offset",
			"startxref",
			"trailer /Prev",
		},
	}
}

func headerIndex(data []byte) int {
	return bytes.Index(data[:min(len(data), HeaderWindow)], header)
}

func (a *Adapter) Inspect(data []byte) (*format.Structure, error) {
	if len(data) == 0 {
		return nil, format.Unsupported(format.PDF, "empty input")
	}
	h := headerIndex(data)
	if h < 0 {
		return nil, format.Unsupported(format.PDF, "no %%PDF- header in the first %d bytes", HeaderWindow)
	}
	sx, err := locateStartXRef(data)
	if err != nil {
		return nil, format.Unsupported(format.PDF, "%v", err)
	}
	secs, err := parseChain(data, sx.value)
	if err != nil {
		return nil, format.Unsupported(format.PDF, "%v", err)
	}

	s := &format.Structure{
		Type:      format.PDF,
		Variant:   "pdf-" + version(data, h),
		MIME:      "application/pdf",
		Extension: "pdf",
		Size:      int64(len(data)),
		HeaderAt:  int64(h),
		Regions: []format.Region{{
			Kind:     format.RegionTrailing,
			Offset:   int64(len(data)),
			Capacity: format.Unlimited,
			Name:     "after %%EOF",
		}},
	}
	s.Sites = append(s.Sites, format.Site{
		Offset:  sx.valueAt,
		Width:   sx.width,
		Enc:     format.Decimal,
		Value:   uint64(sx.value),
		Meaning: "startxref",
	})
	objects := 0
	for _, sec := range secs {
		for _, e := range sec.entries {
			if !e.inUse {
				continue
			}
			objects++
			s.Sites = append(s.Sites, format.Site{
				Offset:  e.fieldAt,
				Width:   10,
				Enc:     format.Decimal,
				Value:   uint64(e.offset),
				Meaning: "xref entry " + strconv.FormatInt(e.num, 10),
			})
		}
		if sec.hasPrev {
			s.Sites = append(s.Sites, format.Site{
				Offset:  sec.prevAt,
				Width:   sec.prevWidth,
				Enc:     format.Decimal,
				Value:   uint64(sec.prev),
				Meaning: "trailer /Prev",
			})
		}
	}
	s.SetFact("objects", strconv.Itoa(objects))
	s.SetFact("revisions", strconv.Itoa(len(secs)))

	if a.deep {
		conf := model.NewDefaultConfiguration()
		conf.ValidationMode = model.ValidationRelaxed
		if err := api.Validate(bytes.NewReader(data), conf); err != nil {
			return nil, format.Unsupported(format.PDF, "pdfcpu: %v", err)
		}
	}
	return s, nil
}

func version(data []byte, h int) string {
	end := h + headerLen
	if end > len(data) {
		return "unknown"
	}
	return string(data[h+len(header) : end])
}

func (a *Adapter) LocateEmbedRegion(data []byte, kind format.RegionKind) (format.Region, error) {
	return format.LocateRegion(a, data, kind)
}

func (a *Adapter) PatchOffsets(data []byte, insertedLength, insertPoint int64) ([]format.Patch, error) {
	return format.PatchOffsets(a, data, insertedLength, insertPoint)
}

// FrameSize is zero: readers stop at %%EOF, so trailing bytes need no frame.
func (a *Adapter) FrameSize(format.Region, int64) (int64, int64) { return 0, 0 }

func (a *Adapter) Frame(s *format.Structure, r format.Region, payloadLen int64, host format.Mapping, frameAt int64) (format.Frame, error) {
	if r.Kind != format.RegionTrailing {
		return format.Frame{}, format.NoRegion(format.PDF, "no %s region", r.Kind)
	}
	return format.Frame{}, nil
}

// Conform checks the header window, that the last startxref belongs to the
// document, and that every in-use xref entry lands on its object header.
func (a *Adapter) Conform(out []byte, p format.Placement, original []byte) error {
	h := headerIndex(original)
	if h < 0 {
		return errors.New("original has no header")
	}
	want := p.Start() + int64(h)
	got := headerIndex(out)
	if got < 0 {
		return fmt.Errorf("no %%PDF- header in the first %d bytes", HeaderWindow)
	}
	if int64(got) != want {
		return fmt.Errorf("first %%PDF- header at %d, want %d", got, want)
	}

	sx, err := locateStartXRef(out)
	if err != nil {
		return err
	}
	if !p.Owns(sx.valueAt, int64(sx.width)) {
		return fmt.Errorf("last startxref at %d lies outside the document", sx.valueAt)
	}
	secs, err := parseChain(out, sx.value)
	if err != nil {
		return err
	}
	for _, sec := range secs {
		for _, e := range sec.entries {
			if !e.inUse {
				continue
			}
			num, ok := looksLikeObject(out, e.offset)
			if !ok || num != e.num {
				return fmt.Errorf("xref entry for object %d points at %d, which holds no such object", e.num, e.offset)
			}
		}
	}
	return nil
}

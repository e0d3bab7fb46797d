// CLAUDE:SUMMARY HTML adapter: tokenizer-based markup check, lead guard against foreign bytes, first-tag conformance.
// Package html implements the format adapter for HTML documents. Browsers
// render HTML wherever it starts, so it needs no offsets and no framing
// beyond a guard that closes whatever state preceding bytes left open.
package html

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	xhtml "golang.org/x/net/html"

	"github.com/hazyhaar/glotfile/format"
)

// Guard closes attribute quotes, comments and raw-text elements a browser
// may still be inside when the document starts.
var Guard = []byte("\n\"'>--></script></style></title></textarea></xmp></iframe></noembed></noframes></noscript>\n")

const markFirstTag = "first_tag"

// Adapter handles HTML inputs.
type Adapter struct{}

// New returns an HTML adapter.
func New() *Adapter { return &Adapter{} }

func (a *Adapter) Describe() format.Descriptor {
	return format.Descriptor{
		Type:        format.HTML,
		Name:        "HTML",
		MIME:        "text/html",
		Extension:   "html",
		MaxLead:     format.Unlimited,
		RelaxedLead: format.Unlimited,
		Trail:       format.TrailAny,
		LeadGuard:   Guard,
		Regions:     []format.RegionKind{format.RegionTrailing},
	}
}

func isMarkup(tt xhtml.TokenType) bool {
	return tt == xhtml.StartTagToken || tt == xhtml.SelfClosingTagToken || tt == xhtml.DoctypeToken
}

// firstTag returns the offset of the first start tag or doctype.
func firstTag(data []byte) (int64, string, error) {
	z := xhtml.NewTokenizer(bytes.NewReader(data))
	var off int64
	for {
		tt := z.Next()
		if tt == xhtml.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				return 0, "", errors.New("no start tag or doctype")
			}
			return 0, "", z.Err()
		}
		raw := z.Raw()
		if isMarkup(tt) {
			name, _ := z.TagName()
			if tt == xhtml.DoctypeToken {
				name = []byte("!doctype")
			}
			return off, string(name), nil
		}
		off += int64(len(raw))
	}
}

func (a *Adapter) Inspect(data []byte) (*format.Structure, error) {
	if len(data) == 0 {
		return nil, format.Unsupported(format.HTML, "empty input")
	}
	at, name, err := firstTag(data)
	if err != nil {
		return nil, format.Unsupported(format.HTML, "%v", err)
	}
	s := &format.Structure{
		Type:      format.HTML,
		Variant:   "html",
		MIME:      "text/html",
		Extension: "html",
		Size:      int64(len(data)),
		HeaderAt:  0,
		Regions: []format.Region{{
			Kind:     format.RegionTrailing,
			Offset:   int64(len(data)),
			Capacity: format.Unlimited,
			Name:     "after document",
		}},
	}
	s.SetMark(markFirstTag, at)
	s.SetFact("first_tag", name)
	s.SetFact("first_tag_at", strconv.FormatInt(at, 10))
	return s, nil
}

func (a *Adapter) LocateEmbedRegion(data []byte, kind format.RegionKind) (format.Region, error) {
	return format.LocateRegion(a, data, kind)
}

func (a *Adapter) PatchOffsets(data []byte, insertedLength, insertPoint int64) ([]format.Patch, error) {
	return format.PatchOffsets(a, data, insertedLength, insertPoint)
}

func (a *Adapter) FrameSize(format.Region, int64) (int64, int64) { return 0, 0 }

func (a *Adapter) Frame(s *format.Structure, r format.Region, payloadLen int64, host format.Mapping, frameAt int64) (format.Frame, error) {
	if r.Kind != format.RegionTrailing {
		return format.Frame{}, format.NoRegion(format.HTML, "no %s region", r.Kind)
	}
	return format.Frame{}, nil
}

// CheckLead runs the tokenizer over lead followed by the document. Bytes
// the guard cannot close, such as an open <plaintext>, turn the whole
// document into text and fail here, before anything is assembled.
func (a *Adapter) CheckLead(lead, data []byte) error {
	rel, name, err := firstTag(data)
	if err != nil {
		return err
	}
	r := io.MultiReader(bytes.NewReader(lead), bytes.NewReader(data))
	return tagAt(r, int64(len(lead))+rel, name)
}

// Conform tokenizes the output the way a browser would and requires a tag
// token to begin exactly where the document's first tag was placed.
func (a *Adapter) Conform(out []byte, p format.Placement, original []byte) error {
	rel, name, err := firstTag(original)
	if err != nil {
		return fmt.Errorf("original: %w", err)
	}
	return tagAt(bytes.NewReader(out), p.Map.Out(rel), name)
}

// tagAt requires a markup token to start at offset want of r.
func tagAt(r io.Reader, want int64, name string) error {
	z := xhtml.NewTokenizer(r)
	var off int64
	for off <= want {
		tt := z.Next()
		if tt == xhtml.ErrorToken {
			return fmt.Errorf("tokenizer stopped at %d before <%s> at %d: %v", off, name, want, z.Err())
		}
		n := int64(len(z.Raw()))
		if off == want {
			if !isMarkup(tt) {
				return fmt.Errorf("offset %d tokenizes as %s, want <%s>", want, tt, name)
			}
			return nil
		}
		if off+n > want {
			return fmt.Errorf("<%s> at %d swallowed by a %s token starting at %d", name, want, tt, off)
		}
		off += n
	}
	return fmt.Errorf("no token boundary at %d", want)
}

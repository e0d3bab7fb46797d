// CLAUDE:SUMMARY Combination catalogue offered to clients and combination-id parsing.
package engine

import (
	"fmt"
	"strings"

	"github.com/hazyhaar/glotfile/format"
	"github.com/hazyhaar/glotfile/planner"
)

// Combination is one entry of the client catalogue. Types are positional:
// file1 has Types[0].
type Combination struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Types       []format.Type `json:"types"`
}

var catalogue = []Combination{
	{"pdf-video-image-zip", "PDF + Video + Image + ZIP", "Quadruple polyglot combining PDF, video, image, and ZIP files",
		[]format.Type{format.PDF, format.MP4, format.Image, format.ZIP}},
	{"pdf-video-zip", "PDF + Video + ZIP", "Triple polyglot combining PDF documents, MP4 videos, and ZIP archives",
		[]format.Type{format.PDF, format.MP4, format.ZIP}},
	{"zip-video-image", "ZIP + Video + Image", "Triple polyglot combining ZIP archives, video files, and images",
		[]format.Type{format.ZIP, format.MP4, format.Image}},
	{"image-video-pdf", "Image + Video + PDF", "Triple polyglot combining image files, MP4 videos, and PDF documents",
		[]format.Type{format.Image, format.MP4, format.PDF}},
	{"pdf-image", "PDF + Image", "Combine PDF documents with PNG/JPG images",
		[]format.Type{format.PDF, format.Image}},
	{"image-zip", "Image + ZIP", "Merge images with ZIP archives",
		[]format.Type{format.Image, format.ZIP}},
	{"pdf-zip", "PDF + ZIP", "Combine PDF files with ZIP archives",
		[]format.Type{format.PDF, format.ZIP}},
	{"pdf-mp4", "PDF + Video", "Combine PDF documents with MP4 video files",
		[]format.Type{format.PDF, format.MP4}},
	{"zip-mp4", "ZIP + Video", "Merge ZIP archives with MP4 video files",
		[]format.Type{format.ZIP, format.MP4}},
	{"image-mp4", "Image + Video", "Combine image files with MP4 videos",
		[]format.Type{format.Image, format.MP4}},
	{"pdf-html", "PDF + HTML", "Combine a PDF document with an HTML page",
		[]format.Type{format.PDF, format.HTML}},
	{"html-pdf", "HTML + PDF", "Combine a PDF document with an HTML file",
		[]format.Type{format.PDF, format.HTML}},
	{"pdf-image-video-zip-html", "PDF + Image + Video + ZIP + HTML", "Five-file polyglot with the HTML page nested after the video",
		[]format.Type{format.PDF, format.Image, format.MP4, format.ZIP, format.HTML}},
}

// Combinations returns the catalogue.
func Combinations() []Combination {
	out := make([]Combination, len(catalogue))
	for i, c := range catalogue {
		c.Types = append([]format.Type(nil), c.Types...)
		out[i] = c
	}
	return out
}

// ResolveCombination returns the positional types of a combination id.
// Ids outside the catalogue are read as dash-separated type tokens, so
// "png-jar" and "video-html" are accepted too.
func ResolveCombination(id string) ([]format.Type, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, c := range catalogue {
		if c.ID == id {
			return append([]format.Type(nil), c.Types...), nil
		}
	}
	tokens := strings.Split(id, "-")
	if len(tokens) < planner.MinInputs || len(tokens) > planner.MaxInputs {
		return nil, fmt.Errorf("%w: combination %q must name %d to %d formats", format.ErrInvalidInput, id, planner.MinInputs, planner.MaxInputs)
	}
	seen := make(map[format.Type]bool, len(tokens))
	out := make([]format.Type, 0, len(tokens))
	for _, tok := range tokens {
		t, err := format.ParseType(tok)
		if err != nil {
			return nil, fmt.Errorf("combination %q: %w", id, err)
		}
		if seen[t] {
			return nil, fmt.Errorf("%w: combination %q names %s twice", format.ErrInvalidInput, id, t)
		}
		seen[t] = true
		out = append(out, t)
	}
	return out, nil
}

// CombinationID derives an id from positional types.
func CombinationID(types []format.Type) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, "-")
}

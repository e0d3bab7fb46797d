// CLAUDE:SUMMARY Image adapter: PNG chunk walk and JPEG segment walk, glOt/COM prefix frames, full-decode conformance.
// Package img implements the format adapter for PNG and JPEG images. Image
// decoders require the signature at offset 0, so an image always anchors
// the output and carries other formats in a private chunk or comment.
package img

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strconv"

	"github.com/hazyhaar/glotfile/format"
)

var (
	sigPNG  = []byte("\x89PNG\r\n\x1a\n")
	sigJPEG = []byte{0xFF, 0xD8, 0xFF}
	eoiJPEG = []byte{0xFF, 0xD9}

	// chunkType is ancillary, private and safe to copy.
	chunkType = []byte("glOt")
)

const (
	maxChunk   = 0x7FFFFFFF
	maxComment = 0xFFFF - 2

	regionChunk   = "glOt chunk after IHDR"
	regionComment = "COM segment"
)

// Adapter handles PNG and JPEG inputs.
type Adapter struct{}

// New returns an image adapter.
func New() *Adapter { return &Adapter{} }

func (a *Adapter) Describe() format.Descriptor {
	return format.Descriptor{
		Type:        format.Image,
		Name:        "Image",
		MIME:        pngVariant.MIME,
		Extension:   pngVariant.Extension,
		Variants:    []format.Variant{pngVariant, jpegVariant},
		Magic:       [][]byte{sigPNG, sigJPEG},
		MaxLead:     0,
		RelaxedLead: 0,
		Trail:       format.TrailAny,
		Regions:     []format.RegionKind{format.RegionPrefix, format.RegionTrailing},
	}
}

func (a *Adapter) Inspect(data []byte) (*format.Structure, error) {
	var (
		s   *format.Structure
		err error
	)
	switch {
	case len(data) == 0:
		return nil, format.Unsupported(format.Image, "empty input")
	case bytes.HasPrefix(data, sigPNG):
		s, err = inspectPNG(data)
	case bytes.HasPrefix(data, sigJPEG):
		s, err = inspectJPEG(data)
	default:
		return nil, format.Unsupported(format.Image, "neither PNG nor JPEG signature at offset 0")
	}
	if err != nil {
		return nil, format.Unsupported(format.Image, "%s: %v", s.Variant, err)
	}
	cfg, kind, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, format.Unsupported(format.Image, "%s header: %v", s.Variant, err)
	}
	if kind != s.Variant {
		return nil, format.Unsupported(format.Image, "decoded as %s, expected %s", kind, s.Variant)
	}
	s.SetFact("width", strconv.Itoa(cfg.Width))
	s.SetFact("height", strconv.Itoa(cfg.Height))
	return s, nil
}

var (
	pngVariant  = format.Variant{Name: "png", MIME: "image/png", Extension: "png"}
	jpegVariant = format.Variant{Name: "jpeg", MIME: "image/jpeg", Extension: "jpg"}
)

func newStructure(v format.Variant, data []byte) *format.Structure {
	return &format.Structure{
		Type:      format.Image,
		Variant:   v.Name,
		MIME:      v.MIME,
		Extension: v.Extension,
		Size:      int64(len(data)),
	}
}

func inspectPNG(data []byte) (*format.Structure, error) {
	s := newStructure(pngVariant, data)
	size := int64(len(data))
	p := int64(len(sigPNG))
	var ihdrEnd int64
	for first := true; ; first = false {
		if p+12 > size {
			return s, errors.New("missing IEND chunk")
		}
		n := int64(format.Uint32BE(data, p))
		if n > maxChunk || p+12+n > size {
			return s, fmt.Errorf("chunk at %d overruns the file", p)
		}
		typ := string(data[p+4 : p+8])
		if first && typ != "IHDR" {
			return s, errors.New("first chunk is not IHDR")
		}
		want := format.Uint32BE(data, p+8+n)
		if got := crc32.ChecksumIEEE(data[p+4 : p+8+n]); got != want {
			return s, fmt.Errorf("chunk %s CRC mismatch", typ)
		}
		p += 12 + n
		if first {
			ihdrEnd = p
		}
		if typ == "IEND" {
			break
		}
	}
	s.SetFact("trailing_bytes", strconv.FormatInt(size-p, 10))
	s.Regions = []format.Region{
		{Kind: format.RegionPrefix, Offset: ihdrEnd, Capacity: maxChunk, Name: regionChunk},
		{Kind: format.RegionTrailing, Offset: size, Capacity: format.Unlimited, Name: "after IEND"},
	}
	return s, nil
}

func inspectJPEG(data []byte) (*format.Structure, error) {
	s := newStructure(jpegVariant, data)
	size := int64(len(data))
	p := int64(2)
	insert := int64(-1)
	for {
		if p+2 > size {
			return s, errors.New("no start of scan")
		}
		if data[p] != 0xFF {
			return s, fmt.Errorf("expected marker at %d", p)
		}
		marker := data[p+1]
		if marker == 0xFF {
			p++
			continue
		}
		if marker == 0xD8 || marker == 0xD9 || (marker >= 0xD0 && marker <= 0xD7) || marker == 0x01 {
			return s, fmt.Errorf("unexpected standalone marker %#x at %d", marker, p)
		}
		isApp := marker >= 0xE0 && marker <= 0xEF
		if !isApp && insert < 0 {
			insert = p
		}
		if marker == 0xDA {
			break
		}
		if p+4 > size {
			return s, fmt.Errorf("truncated segment at %d", p)
		}
		n := int64(binary.BigEndian.Uint16(data[p+2:]))
		if n < 2 || p+2+n > size {
			return s, fmt.Errorf("segment %#x at %d overruns the file", marker, p)
		}
		p += 2 + n
	}
	eoi := bytes.LastIndex(data, eoiJPEG)
	if int64(eoi) < p {
		return s, errors.New("no end of image after start of scan")
	}
	s.SetFact("trailing_bytes", strconv.FormatInt(size-int64(eoi)-2, 10))
	s.Regions = []format.Region{
		{Kind: format.RegionPrefix, Offset: insert, Capacity: maxComment, Name: regionComment},
		{Kind: format.RegionTrailing, Offset: size, Capacity: format.Unlimited, Name: "after EOI"},
	}
	return s, nil
}

func (a *Adapter) LocateEmbedRegion(data []byte, kind format.RegionKind) (format.Region, error) {
	return format.LocateRegion(a, data, kind)
}

// PatchOffsets returns nothing: images hold no absolute offsets.
func (a *Adapter) PatchOffsets(data []byte, insertedLength, insertPoint int64) ([]format.Patch, error) {
	return format.PatchOffsets(a, data, insertedLength, insertPoint)
}

func (a *Adapter) FrameSize(r format.Region, _ int64) (int64, int64) {
	if r.Kind != format.RegionPrefix {
		return 0, 0
	}
	if r.Name == regionComment {
		return 4, 0
	}
	return 8, 4
}

// Frame builds a glOt chunk (PNG) or a COM segment (JPEG) around the
// payload. The chunk CRC is left to a checksum patch.
func (a *Adapter) Frame(s *format.Structure, r format.Region, payloadLen int64, host format.Mapping, frameAt int64) (format.Frame, error) {
	if r.Kind != format.RegionPrefix {
		return format.Frame{}, nil
	}
	if payloadLen > r.Capacity {
		return format.Frame{}, format.NoRegion(format.Image, "%d bytes exceed the %s capacity %d", payloadLen, r.Name, r.Capacity)
	}
	switch s.Variant {
	case "png":
		head := binary.BigEndian.AppendUint32(nil, uint32(payloadLen))
		head = append(head, chunkType...)
		return format.Frame{
			Head: head,
			Tail: make([]byte, 4),
			Patches: []format.Patch{{
				Format:  format.Image,
				Meaning: "glOt chunk CRC",
				Offset:  frameAt + 8 + payloadLen,
				Width:   4,
				Enc:     format.Checksum,
				Span:    format.Range{Off: frameAt + 4, Len: 4 + payloadLen},
			}},
		}, nil
	case "jpeg":
		head := []byte{0xFF, 0xFE}
		head = binary.BigEndian.AppendUint16(head, uint16(payloadLen+2))
		return format.Frame{Head: head}, nil
	}
	return format.Frame{}, fmt.Errorf("image: unknown variant %q", s.Variant)
}

// Conform decodes the whole output and compares dimensions with the
// original.
func (a *Adapter) Conform(out []byte, p format.Placement, original []byte) error {
	if p.Start() != 0 {
		return fmt.Errorf("image placed at %d, decoders need offset 0", p.Start())
	}
	want, wantKind, err := image.DecodeConfig(bytes.NewReader(original))
	if err != nil {
		return fmt.Errorf("original: %w", err)
	}
	img, kind, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if kind != wantKind {
		return fmt.Errorf("decoded as %s, want %s", kind, wantKind)
	}
	if b := img.Bounds(); b.Dx() != want.Width || b.Dy() != want.Height {
		return fmt.Errorf("decoded %dx%d, want %dx%d", b.Dx(), b.Dy(), want.Width, want.Height)
	}
	return nil
}

// CLAUDE:SUMMARY MP4 adapter: ftyp/moov checks, chunk offset sites, free-box prefix and trailing frames.
// CLAUDE:DEPENDS format/mp4/box.go
// Package mp4 implements the format adapter for ISO base media files.
// Foreign bytes are carried in "free" boxes, which every demuxer skips.
package mp4

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hazyhaar/glotfile/format"
)

const markOpen = "open_box"

// Adapter handles MP4 inputs.
type Adapter struct{}

// New returns an MP4 adapter.
func New() *Adapter { return &Adapter{} }

func (a *Adapter) Describe() format.Descriptor {
	return format.Descriptor{
		Type:      format.MP4,
		Name:      "Video",
		MIME:      "video/mp4",
		Extension: "mp4",
		Magic:     [][]byte{[]byte("ftyp")},
		MaxLead:   0,
		// Scanning demuxers locate ftyp anywhere in the file.
		RelaxedLead: format.Unlimited,
		Trail:       format.TrailFramed,
		Regions:     []format.RegionKind{format.RegionPrefix, format.RegionTrailing},
		OffsetFields: []string{
			"stco chunk offset",
			"co64 chunk offset",
			"tfhd base data offset",
			"tfra moof offset",
			"open box size",
		},
	}
}

func (a *Adapter) Inspect(data []byte) (*format.Structure, error) {
	if len(data) == 0 {
		return nil, format.Unsupported(format.MP4, "empty input")
	}
	m, err := walk(data, 0)
	if err != nil {
		return nil, format.Unsupported(format.MP4, "%v", err)
	}
	if len(m.top) == 0 || m.top[0].typ != "ftyp" {
		return nil, format.Unsupported(format.MP4, "first box is not ftyp")
	}
	if !hasBox(m.top, "moov") {
		return nil, format.Unsupported(format.MP4, "no moov box")
	}
	ftyp := m.top[0]
	if ftyp.size < 16 {
		return nil, format.Unsupported(format.MP4, "ftyp too short")
	}

	s := &format.Structure{
		Type:      format.MP4,
		Variant:   string(bytes.TrimRight(data[8:12], " \x00")),
		MIME:      "video/mp4",
		Extension: "mp4",
		Size:      int64(len(data)),
		Sites:     m.sites,
		Regions: []format.Region{
			{Kind: format.RegionPrefix, Offset: ftyp.end(), Capacity: format.Unlimited, Name: "free box after ftyp"},
			{Kind: format.RegionTrailing, Offset: int64(len(data)), Capacity: format.Unlimited, Name: "free box to end of file"},
		},
	}
	if last := m.top[len(m.top)-1]; last.open {
		s.SetMark(markOpen, last.off)
	}
	s.SetFact("tracks", strconv.Itoa(m.tracks))
	s.SetFact("chunk_offsets", strconv.Itoa(m.chunkOffsets))
	return s, nil
}

func hasBox(boxes []box, typ string) bool {
	for _, b := range boxes {
		if b.typ == typ {
			return true
		}
	}
	return false
}

func (a *Adapter) LocateEmbedRegion(data []byte, kind format.RegionKind) (format.Region, error) {
	return format.LocateRegion(a, data, kind)
}

func (a *Adapter) PatchOffsets(data []byte, insertedLength, insertPoint int64) ([]format.Patch, error) {
	return format.PatchOffsets(a, data, insertedLength, insertPoint)
}

// FrameSize returns a compact header unless the box outgrows 32 bits.
func (a *Adapter) FrameSize(_ format.Region, payloadLen int64) (int64, int64) {
	if payloadLen+8 > math.MaxUint32 {
		return 16, 0
	}
	return 8, 0
}

// Frame wraps the payload in a free box. A trailing frame also seals an
// open last box, which would otherwise swallow the frame.
func (a *Adapter) Frame(s *format.Structure, r format.Region, payloadLen int64, host format.Mapping, frameAt int64) (format.Frame, error) {
	head, _ := a.FrameSize(r, payloadLen)
	var f format.Frame
	if head == 16 {
		f.Head = binary.BigEndian.AppendUint32(nil, 1)
		f.Head = append(f.Head, "free"...)
		f.Head = binary.BigEndian.AppendUint64(f.Head, uint64(payloadLen+16))
	} else {
		f.Head = binary.BigEndian.AppendUint32(nil, uint32(payloadLen+8))
		f.Head = append(f.Head, "free"...)
	}
	if r.Kind != format.RegionTrailing {
		return f, nil
	}
	if at, ok := s.Marks[markOpen]; ok {
		size := s.Size - at
		if size > math.MaxUint32 {
			return format.Frame{}, format.NoRegion(format.MP4, "open box at %d is too large to seal", at)
		}
		f.Patches = append(f.Patches, format.Patch{
			Format:  format.MP4,
			Meaning: "open box size",
			Offset:  host.Out(at),
			Width:   4,
			Enc:     format.BigEndian,
			Old:     0,
			New:     uint64(size),
		})
	}
	return f, nil
}

// firstFtyp finds the first plausible ftyp box the way scanning demuxers do.
func firstFtyp(out []byte) int64 {
	for from := 0; ; {
		i := bytes.Index(out[from:], []byte("ftyp"))
		if i < 0 {
			return -1
		}
		at := int64(from+i) - 4
		if at >= 0 {
			if n := int64(format.Uint32BE(out, at)); n >= 16 && at+n <= int64(len(out)) {
				return at
			}
		}
		from += i + 1
	}
}

// Conform checks that the movie is found where it was placed, that its
// top-level boxes tile the rest of the file and that every chunk offset
// lands inside a media data box.
func (a *Adapter) Conform(out []byte, p format.Placement, original []byte) error {
	start := p.Start()
	if got := firstFtyp(out); got != start {
		return fmt.Errorf("first ftyp at %d, want %d", got, start)
	}
	if start != 0 && !p.Relaxed {
		return errors.New("strict placement must start at offset 0")
	}
	m, err := walk(out, start)
	if err != nil {
		return err
	}
	om, err := walk(original, 0)
	if err != nil {
		return fmt.Errorf("original: %w", err)
	}
	if m.chunkOffsets != om.chunkOffsets {
		return fmt.Errorf("found %d chunk offsets, want %d", m.chunkOffsets, om.chunkOffsets)
	}
	var media []format.Range
	for _, b := range m.top {
		if b.typ == "mdat" {
			media = append(media, format.Range{Off: b.body(), Len: b.size - b.header})
		}
	}
	for _, s := range m.sites {
		if !strings.HasPrefix(s.Meaning, "stco") && !strings.HasPrefix(s.Meaning, "co64") {
			if s.Value >= uint64(len(out)) {
				return fmt.Errorf("%s %d past end of file", s.Meaning, s.Value)
			}
			continue
		}
		inside := false
		for _, r := range media {
			if r.Contains(int64(s.Value), 1) {
				inside = true
				break
			}
		}
		if !inside {
			return fmt.Errorf("%s %d is outside every mdat box", s.Meaning, s.Value)
		}
	}
	return nil
}

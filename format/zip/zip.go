// CLAUDE:SUMMARY ZIP adapter: tail EOCD scan, central directory offsets, comment-extension region, extraction check.
// Package zip implements the format adapter for ZIP archives. Archives are
// read from the end of central directory record backwards, which is why a
// ZIP can follow any number of foreign bytes once its offsets are patched.
package zip

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	kzip "github.com/klauspost/compress/zip"

	"github.com/hazyhaar/glotfile/format"
)

var (
	sigLocal        = []byte("PK\x03\x04")
	sigCentral      = []byte("PK\x01\x02")
	sigEnd          = []byte("PK\x05\x06")
	sigEnd64Locator = []byte("PK\x06\x07")

	errNotFound = errors.New("no end of central directory record reaching end of file")
)

const (
	endLen      = 22
	centralLen  = 46
	maxComment  = 0xFFFF
	markEnd     = "eocd"
	markComment = "comment_len"
)

// Adapter handles ZIP inputs.
type Adapter struct{}

// New returns a ZIP adapter.
func New() *Adapter { return &Adapter{} }

func (a *Adapter) Describe() format.Descriptor {
	return format.Descriptor{
		Type:        format.ZIP,
		Name:        "ZIP",
		MIME:        "application/zip",
		Extension:   "zip",
		Magic:       [][]byte{sigLocal, sigEnd},
		MaxLead:     format.Unlimited,
		RelaxedLead: format.Unlimited,
		Trail:       format.TrailBounded,
		Forbid:      [][]byte{sigEnd},
		Regions:     []format.RegionKind{format.RegionTrailing},
		OffsetFields: []string{
			"central directory offset",
			"local header offset",
			"comment length",
		},
	}
}

type end struct {
	at         int64
	entries    int
	cdSize     int64
	cdOffset   int64
	commentLen int64
}

// findEnd scans backwards for an end record whose comment reaches EOF.
func findEnd(data []byte) (end, error) {
	size := int64(len(data))
	if size < endLen {
		return end{}, errNotFound
	}
	lo := max(0, size-endLen-maxComment)
	hi := size - endLen + int64(len(sigEnd))
	for hi > lo {
		i := bytes.LastIndex(data[lo:hi], sigEnd)
		if i < 0 {
			break
		}
		at := lo + int64(i)
		if at+endLen <= size && int64(format.Uint16LE(data, at+20)) == size-at-endLen {
			return end{
				at:         at,
				entries:    int(format.Uint16LE(data, at+10)),
				cdSize:     int64(format.Uint32LE(data, at+12)),
				cdOffset:   int64(format.Uint32LE(data, at+16)),
				commentLen: int64(format.Uint16LE(data, at+20)),
			}, nil
		}
		hi = at + int64(len(sigEnd)) - 1
	}
	return end{}, errNotFound
}

func (a *Adapter) Inspect(data []byte) (*format.Structure, error) {
	if len(data) == 0 {
		return nil, format.Unsupported(format.ZIP, "empty input")
	}
	e, err := findEnd(data)
	if err != nil {
		return nil, format.Unsupported(format.ZIP, "%v", err)
	}
	at := e.at
	disk, cdDisk := format.Uint16LE(data, at+4), format.Uint16LE(data, at+6)
	onDisk := int(format.Uint16LE(data, at+8))
	if disk != 0 || cdDisk != 0 || onDisk != e.entries {
		return nil, format.Unsupported(format.ZIP, "multi-disk archives are not supported")
	}
	if e.entries == 0xFFFF || e.cdSize == 0xFFFFFFFF || e.cdOffset == 0xFFFFFFFF ||
		(at >= 20 && bytes.Equal(data[at-20:at-16], sigEnd64Locator)) {
		return nil, format.Unsupported(format.ZIP, "zip64 archives are not supported")
	}
	if e.cdOffset+e.cdSize > at {
		return nil, format.Unsupported(format.ZIP, "central directory [%d,+%d) overlaps the end record at %d", e.cdOffset, e.cdSize, at)
	}

	s := &format.Structure{
		Type:      format.ZIP,
		Variant:   "zip",
		MIME:      "application/zip",
		Extension: "zip",
		Size:      int64(len(data)),
	}
	p := e.cdOffset
	for k := 0; k < e.entries; k++ {
		if p+centralLen > at || !bytes.Equal(data[p:p+4], sigCentral) {
			return nil, format.Unsupported(format.ZIP, "central directory entry %d missing at %d", k, p)
		}
		local := int64(format.Uint32LE(data, p+42))
		if local == 0xFFFFFFFF {
			return nil, format.Unsupported(format.ZIP, "zip64 archives are not supported")
		}
		if local+4 > int64(len(data)) || !bytes.Equal(data[local:local+4], sigLocal) {
			return nil, format.Unsupported(format.ZIP, "entry %d points at %d, which holds no local header", k, local)
		}
		s.Sites = append(s.Sites, format.Site{
			Offset:  p + 42,
			Width:   4,
			Enc:     format.LittleEndian,
			Value:   uint64(local),
			Meaning: "local header offset " + strconv.Itoa(k),
		})
		n := int64(format.Uint16LE(data, p+28))
		m := int64(format.Uint16LE(data, p+30))
		c := int64(format.Uint16LE(data, p+32))
		p += centralLen + n + m + c
	}
	if p != e.cdOffset+e.cdSize {
		return nil, format.Unsupported(format.ZIP, "central directory size mismatch: walked to %d, record says %d", p, e.cdOffset+e.cdSize)
	}
	s.Sites = append(s.Sites, format.Site{
		Offset:  at + 16,
		Width:   4,
		Enc:     format.LittleEndian,
		Value:   uint64(e.cdOffset),
		Meaning: "central directory offset",
	})
	s.SetMark(markEnd, at)
	s.SetMark(markComment, e.commentLen)
	s.SetFact("entries", strconv.Itoa(e.entries))
	s.SetFact("comment", strconv.FormatInt(e.commentLen, 10))
	s.Regions = []format.Region{{
		Kind:     format.RegionTrailing,
		Offset:   int64(len(data)),
		Capacity: maxComment - e.commentLen,
		Name:     "archive comment",
	}}
	return s, nil
}

func (a *Adapter) LocateEmbedRegion(data []byte, kind format.RegionKind) (format.Region, error) {
	return format.LocateRegion(a, data, kind)
}

func (a *Adapter) PatchOffsets(data []byte, insertedLength, insertPoint int64) ([]format.Patch, error) {
	return format.PatchOffsets(a, data, insertedLength, insertPoint)
}

// FrameSize is zero: the comment grows in place.
func (a *Adapter) FrameSize(format.Region, int64) (int64, int64) { return 0, 0 }

// Frame extends the archive comment over the payload by patching the
// comment length.
func (a *Adapter) Frame(s *format.Structure, r format.Region, payloadLen int64, host format.Mapping, frameAt int64) (format.Frame, error) {
	if r.Kind != format.RegionTrailing {
		return format.Frame{}, format.NoRegion(format.ZIP, "no %s region", r.Kind)
	}
	if payloadLen > r.Capacity {
		return format.Frame{}, format.NoRegion(format.ZIP, "%d trailing bytes exceed comment capacity %d", payloadLen, r.Capacity)
	}
	at, ok := s.Marks[markEnd]
	if !ok {
		return format.Frame{}, fmt.Errorf("zip: structure has no end record mark")
	}
	old := s.Marks[markComment]
	if payloadLen == 0 {
		return format.Frame{}, nil
	}
	return format.Frame{Patches: []format.Patch{{
		Format:  format.ZIP,
		Meaning: "comment length",
		Offset:  host.Out(at + 20),
		Width:   2,
		Enc:     format.LittleEndian,
		Old:     uint64(old),
		New:     uint64(old + payloadLen),
	}}}, nil
}

// Conform checks that the end record found from the tail is the archive's
// own, then opens and CRC-checks every entry.
func (a *Adapter) Conform(out []byte, p format.Placement, original []byte) error {
	oe, err := findEnd(original)
	if err != nil {
		return fmt.Errorf("original: %w", err)
	}
	e, err := findEnd(out)
	if err != nil {
		return err
	}
	if want := p.Map.Out(oe.at); e.at != want {
		return fmt.Errorf("end record found at %d, want %d", e.at, want)
	}

	orig, err := kzip.NewReader(bytes.NewReader(original), int64(len(original)))
	if err != nil {
		return fmt.Errorf("original: %w", err)
	}
	zr, err := kzip.NewReader(bytes.NewReader(out), int64(len(out)))
	if err != nil {
		return err
	}
	if len(zr.File) != len(orig.File) {
		return fmt.Errorf("archive lists %d entries, want %d", len(zr.File), len(orig.File))
	}
	for i, f := range zr.File {
		o := orig.File[i]
		if f.Name != o.Name || f.CRC32 != o.CRC32 || f.UncompressedSize64 != o.UncompressedSize64 {
			return fmt.Errorf("entry %d: got %q, want %q", i, f.Name, o.Name)
		}
		if err := readEntry(f); err != nil {
			return fmt.Errorf("entry %q: %w", f.Name, err)
		}
	}
	return nil
}

func readEntry(f *kzip.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(io.Discard, rc)
	return err
}

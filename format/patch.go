// CLAUDE:SUMMARY Offset sites, placement mappings and the patch encode/decode primitives.
package format

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math/bits"
	"strconv"
)

// Encoding is how a patched field stores its value.
type Encoding uint8

const (
	BigEndian Encoding = iota + 1
	LittleEndian
	// Decimal is ASCII digits, zero padded to the field width.
	Decimal
	// Checksum is a big-endian CRC-32 (IEEE) over Patch.Span, computed
	// after every other patch has been applied.
	Checksum
)

func (e Encoding) String() string {
	switch e {
	case BigEndian:
		return "be"
	case LittleEndian:
		return "le"
	case Decimal:
		return "decimal"
	case Checksum:
		return "crc32"
	}
	return "unknown"
}

// Range is a half-open byte interval.
type Range struct {
	Off int64
	Len int64
}

// End returns the first offset past the range.
func (r Range) End() int64 { return r.Off + r.Len }

// Contains reports whether [off, off+n) lies inside the range.
func (r Range) Contains(off, n int64) bool { return off >= r.Off && off+n <= r.End() }

// Site is an offset-bearing field found in an input. Value is an absolute
// offset relative to the input's first byte.
type Site struct {
	Offset  int64
	Width   int
	Enc     Encoding
	Value   uint64
	Meaning string
}

// Patch rewrites one field of the output. Offset is absolute within the
// output; Old is the value the field holds before the patch.
type Patch struct {
	Format  Type
	Meaning string
	Offset  int64
	Width   int
	Enc     Encoding
	Old     uint64
	New     uint64
	// Span is the checksummed range for Checksum patches.
	Span Range
}

// Mapping translates positions within an input's own bytes into output
// positions. An anchor hosting a prefix chain is split at Point and its
// bytes from Point onward move by Inserted.
type Mapping struct {
	Base     int64
	Point    int64
	Inserted int64
}

// Out maps an input offset to its output offset.
func (m Mapping) Out(off int64) int64 {
	if m.Inserted > 0 && off >= m.Point {
		off += m.Inserted
	}
	return m.Base + off
}

// In maps an output offset back into the input. ok is false when the
// offset falls inside the inserted gap or before the input.
func (m Mapping) In(out int64) (off int64, ok bool) {
	off = out - m.Base
	if off < 0 {
		return 0, false
	}
	if m.Inserted > 0 && off >= m.Point {
		if off < m.Point+m.Inserted {
			return 0, false
		}
		off -= m.Inserted
	}
	return off, true
}

// Fits reports whether v can be stored in a field of the given width and
// encoding.
func Fits(v uint64, width int, enc Encoding) bool {
	switch enc {
	case Decimal:
		return len(strconv.FormatUint(v, 10)) <= width
	case BigEndian, LittleEndian, Checksum:
		if width >= 8 {
			return true
		}
		return bits.Len64(v) <= width*8
	}
	return false
}

// Relocate turns the sites of an input placed through m into patches.
// Sites whose value does not change are dropped. A value that no longer
// fits its field yields ErrNoEmbedRegion.
func Relocate(t Type, sites []Site, m Mapping) ([]Patch, error) {
	var out []Patch
	for _, s := range sites {
		nv := uint64(m.Out(int64(s.Value)))
		if nv == s.Value {
			continue
		}
		if !Fits(nv, s.Width, s.Enc) {
			return nil, NoRegion(t, "%s: %d does not fit %d-byte %s field", s.Meaning, nv, s.Width, s.Enc)
		}
		out = append(out, Patch{
			Format:  t,
			Meaning: s.Meaning,
			Offset:  m.Out(s.Offset),
			Width:   s.Width,
			Enc:     s.Enc,
			Old:     s.Value,
			New:     nv,
		})
	}
	return out, nil
}

// CountRelocated is Relocate without allocating the patches.
func CountRelocated(t Type, sites []Site, m Mapping) (int, error) {
	n := 0
	for _, s := range sites {
		nv := uint64(m.Out(int64(s.Value)))
		if nv == s.Value {
			continue
		}
		if !Fits(nv, s.Width, s.Enc) {
			return 0, NoRegion(t, "%s: %d does not fit %d-byte %s field", s.Meaning, nv, s.Width, s.Enc)
		}
		n++
	}
	return n, nil
}

// ReadField decodes the field a patch targets.
func ReadField(buf []byte, off int64, width int, enc Encoding) (uint64, error) {
	if off < 0 || off+int64(width) > int64(len(buf)) {
		return 0, fmt.Errorf("field [%d,+%d) out of range", off, width)
	}
	b := buf[off : off+int64(width)]
	switch enc {
	case BigEndian, Checksum:
		var v uint64
		for _, c := range b {
			v = v<<8 | uint64(c)
		}
		return v, nil
	case LittleEndian:
		var v uint64
		for i := len(b) - 1; i >= 0; i-- {
			v = v<<8 | uint64(b[i])
		}
		return v, nil
	case Decimal:
		v, err := strconv.ParseUint(string(b), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("decimal field at %d: %w", off, err)
		}
		return v, nil
	}
	return 0, fmt.Errorf("unknown encoding %d", enc)
}

// PutField encodes v into the field at off.
func PutField(buf []byte, off int64, width int, enc Encoding, v uint64) error {
	if off < 0 || off+int64(width) > int64(len(buf)) {
		return fmt.Errorf("field [%d,+%d) out of range", off, width)
	}
	if !Fits(v, width, enc) {
		return fmt.Errorf("value %d does not fit %d-byte %s field", v, width, enc)
	}
	b := buf[off : off+int64(width)]
	switch enc {
	case BigEndian, Checksum:
		for i := width - 1; i >= 0; i-- {
			b[i] = byte(v)
			v >>= 8
		}
	case LittleEndian:
		for i := 0; i < width; i++ {
			b[i] = byte(v)
			v >>= 8
		}
	case Decimal:
		s := strconv.FormatUint(v, 10)
		pad := width - len(s)
		for i := 0; i < pad; i++ {
			b[i] = '0'
		}
		copy(b[pad:], s)
	default:
		return fmt.Errorf("unknown encoding %d", enc)
	}
	return nil
}

// Checksum32 computes the CRC a Checksum patch stores.
func Checksum32(buf []byte, span Range) uint64 {
	return uint64(crc32.ChecksumIEEE(buf[span.Off:span.End()]))
}

// Fixed-width readers over buffers whose length the caller has checked.
func Uint16LE(b []byte, off int64) uint16 { return binary.LittleEndian.Uint16(b[off:]) }
func Uint32LE(b []byte, off int64) uint32 { return binary.LittleEndian.Uint32(b[off:]) }
func Uint32BE(b []byte, off int64) uint32 { return binary.BigEndian.Uint32(b[off:]) }
func Uint64BE(b []byte, off int64) uint64 { return binary.BigEndian.Uint64(b[off:]) }

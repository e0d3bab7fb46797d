// CLAUDE:SUMMARY ISO-BMFF box reader and the walk that collects chunk, fragment and index offsets.
package mp4

import (
	"fmt"
	"strconv"

	"github.com/hazyhaar/glotfile/format"
)

type box struct {
	off    int64
	size   int64
	header int64
	typ    string
	// open is set for a size-0 box that runs to the end of its parent.
	open bool
}

func (b box) end() int64  { return b.off + b.size }
func (b box) body() int64 { return b.off + b.header }

func readBox(data []byte, off, limit int64) (box, error) {
	if off+8 > limit {
		return box{}, fmt.Errorf("truncated box header at %d", off)
	}
	b := box{off: off, header: 8, typ: string(data[off+4 : off+8])}
	switch n := format.Uint32BE(data, off); n {
	case 1:
		if off+16 > limit {
			return box{}, fmt.Errorf("truncated large box header at %d", off)
		}
		b.size = int64(format.Uint64BE(data, off+8))
		b.header = 16
	case 0:
		b.size = limit - off
		b.open = true
	default:
		b.size = int64(n)
	}
	if b.size < b.header || b.size > limit-off {
		return box{}, fmt.Errorf("box %q at %d has size %d outside its parent", b.typ, off, b.size)
	}
	return b, nil
}

func children(data []byte, parent box) ([]box, error) {
	var out []box
	for p := parent.body(); p < parent.end(); {
		b, err := readBox(data, p, parent.end())
		if err != nil {
			return nil, err
		}
		out = append(out, b)
		p = b.end()
	}
	return out, nil
}

// movie is what a walk over the top-level boxes found.
type movie struct {
	top   []box
	sites []format.Site
	// chunkOffsets counts stco and co64 entries.
	chunkOffsets int
	tracks       int
}

// containers leading to sample tables and fragment headers.
var containers = map[string]bool{
	"moov": true, "trak": true, "mdia": true, "minf": true, "stbl": true,
	"moof": true, "traf": true, "mfra": true, "edts": true,
}

// walk parses the top-level boxes of data[start:] and collects offset
// sites. Site offsets and values are absolute within data.
func walk(data []byte, start int64) (*movie, error) {
	limit := int64(len(data))
	top := box{off: start - 8, size: limit - start + 8, header: 8}
	boxes, err := children(data, top)
	if err != nil {
		return nil, err
	}
	m := &movie{top: boxes}
	for _, b := range boxes {
		if containers[b.typ] {
			if err := m.descend(data, b); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *movie) descend(data []byte, parent box) error {
	kids, err := children(data, parent)
	if err != nil {
		return err
	}
	for _, b := range kids {
		switch {
		case b.typ == "trak":
			m.tracks++
			if err := m.descend(data, b); err != nil {
				return err
			}
		case containers[b.typ]:
			if err := m.descend(data, b); err != nil {
				return err
			}
		case b.typ == "stco" || b.typ == "co64":
			if err := m.chunkTable(data, b); err != nil {
				return err
			}
		case b.typ == "tfhd":
			if err := m.fragmentHeader(data, b); err != nil {
				return err
			}
		case b.typ == "tfra":
			if err := m.fragmentIndex(data, b); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *movie) chunkTable(data []byte, b box) error {
	width := 4
	if b.typ == "co64" {
		width = 8
	}
	body := b.body()
	if body+8 > b.end() {
		return fmt.Errorf("%s at %d too short", b.typ, b.off)
	}
	count := int64(format.Uint32BE(data, body+4))
	if body+8+count*int64(width) > b.end() {
		return fmt.Errorf("%s at %d declares %d entries past its end", b.typ, b.off, count)
	}
	for i := int64(0); i < count; i++ {
		at := body + 8 + i*int64(width)
		var v uint64
		if width == 4 {
			v = uint64(format.Uint32BE(data, at))
		} else {
			v = format.Uint64BE(data, at)
		}
		m.sites = append(m.sites, format.Site{
			Offset:  at,
			Width:   width,
			Enc:     format.BigEndian,
			Value:   v,
			Meaning: b.typ + " chunk offset " + strconv.FormatInt(i, 10),
		})
	}
	m.chunkOffsets += int(count)
	return nil
}

// fragmentHeader records tfhd base_data_offset when flag 0x000001 is set.
func (m *movie) fragmentHeader(data []byte, b box) error {
	body := b.body()
	if body+8 > b.end() {
		return fmt.Errorf("tfhd at %d too short", b.off)
	}
	flags := format.Uint32BE(data, body) & 0xFFFFFF
	if flags&0x1 == 0 {
		return nil
	}
	at := body + 8
	if at+8 > b.end() {
		return fmt.Errorf("tfhd at %d truncated base data offset", b.off)
	}
	m.sites = append(m.sites, format.Site{
		Offset:  at,
		Width:   8,
		Enc:     format.BigEndian,
		Value:   format.Uint64BE(data, at),
		Meaning: "tfhd base data offset",
	})
	return nil
}

// fragmentIndex records every moof_offset in a tfra box.
func (m *movie) fragmentIndex(data []byte, b box) error {
	body := b.body()
	if body+16 > b.end() {
		return fmt.Errorf("tfra at %d too short", b.off)
	}
	version := data[body]
	sizes := format.Uint32BE(data, body+8)
	rest := int64((sizes>>4)&3+1) + int64((sizes>>2)&3+1) + int64(sizes&3+1)
	count := int64(format.Uint32BE(data, body+12))
	width := int64(4)
	if version == 1 {
		width = 8
	}
	stride := 2*width + rest
	if body+16+count*stride > b.end() {
		return fmt.Errorf("tfra at %d declares %d entries past its end", b.off, count)
	}
	for i := int64(0); i < count; i++ {
		at := body + 16 + i*stride + width
		var v uint64
		if width == 4 {
			v = uint64(format.Uint32BE(data, at))
		} else {
			v = format.Uint64BE(data, at)
		}
		m.sites = append(m.sites, format.Site{
			Offset:  at,
			Width:   int(width),
			Enc:     format.BigEndian,
			Value:   v,
			Meaning: "tfra moof offset " + strconv.FormatInt(i, 10),
		})
	}
	return nil
}

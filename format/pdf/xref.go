// CLAUDE:SUMMARY Classic cross-reference table and trailer parsing shared by inspection and conformance.
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

var (
	kwStartXRef = []byte("startxref")
	kwXRef      = []byte("xref")
	kwTrailer   = []byte("trailer")
	kwEOF       = []byte("%%EOF")
	kwPrev      = []byte("/Prev")
	kwXRefStm   = []byte("/XRefStm")
	kwObj       = []byte("obj")

	errXRefStream = errors.New("cross-reference streams are not supported")
	errHybrid     = errors.New("hybrid files with /XRefStm are not supported")
)

type entry struct {
	num     int64
	gen     int64
	offset  int64
	inUse   bool
	fieldAt int64
}

type section struct {
	at      int64
	entries []entry
	// /Prev value and the position and width of its digits.
	hasPrev   bool
	prev      int64
	prevAt    int64
	prevWidth int
}

type startXRef struct {
	valueAt int64
	width   int
	value   int64
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0:
		return true
	}
	return false
}

func skipSpace(data []byte, p int64) int64 {
	for p < int64(len(data)) && isSpace(data[p]) {
		p++
	}
	return p
}

func readInt(data []byte, p int64) (v, end int64, ok bool) {
	end = p
	for end < int64(len(data)) && data[end] >= '0' && data[end] <= '9' {
		end++
	}
	if end == p || end-p > 18 {
		return 0, p, false
	}
	v, err := strconv.ParseInt(string(data[p:end]), 10, 64)
	if err != nil {
		return 0, p, false
	}
	return v, end, true
}

// locateStartXRef finds the last startxref keyword and the offset it holds.
func locateStartXRef(data []byte) (startXRef, error) {
	sx := bytes.LastIndex(data, kwStartXRef)
	if sx < 0 {
		return startXRef{}, errors.New("no startxref keyword")
	}
	p := skipSpace(data, int64(sx+len(kwStartXRef)))
	v, end, ok := readInt(data, p)
	if !ok {
		return startXRef{}, fmt.Errorf("startxref at %d has no offset", sx)
	}
	if !bytes.Contains(data[end:], kwEOF) {
		return startXRef{}, errors.New("no %%EOF marker after startxref")
	}
	return startXRef{valueAt: p, width: int(end - p), value: v}, nil
}

// looksLikeObject reports whether an "N G obj" header starts at p.
func looksLikeObject(data []byte, p int64) (num int64, ok bool) {
	num, q, ok := readInt(data, p)
	if !ok {
		return 0, false
	}
	q = skipSpace(data, q)
	if _, q, ok = readInt(data, q); !ok {
		return 0, false
	}
	q = skipSpace(data, q)
	return num, bytes.HasPrefix(data[q:], kwObj)
}

func parseTable(data []byte, off int64) (*section, error) {
	size := int64(len(data))
	if off < 0 || off >= size {
		return nil, fmt.Errorf("xref offset %d outside file", off)
	}
	if !bytes.HasPrefix(data[off:], kwXRef) {
		if _, ok := looksLikeObject(data, off); ok {
			return nil, errXRefStream
		}
		return nil, fmt.Errorf("no xref table at offset %d", off)
	}
	sec := &section{at: off}
	p := skipSpace(data, off+int64(len(kwXRef)))
	for {
		if p >= size {
			return nil, errors.New("xref table runs past end of file")
		}
		if bytes.HasPrefix(data[p:], kwTrailer) {
			break
		}
		first, q, ok := readInt(data, p)
		if !ok {
			return nil, fmt.Errorf("malformed xref subsection header at %d", p)
		}
		for q < size && (data[q] == ' ' || data[q] == '\t') {
			q++
		}
		count, q, ok := readInt(data, q)
		if !ok {
			return nil, fmt.Errorf("malformed xref subsection count at %d", q)
		}
		p = skipSpace(data, q)
		for k := int64(0); k < count; k++ {
			if p+20 > size {
				return nil, errors.New("truncated xref entry")
			}
			e := data[p : p+20]
			typ := e[17]
			if e[10] != ' ' || e[16] != ' ' || (typ != 'n' && typ != 'f') {
				return nil, fmt.Errorf("malformed xref entry at %d", p)
			}
			v, err := strconv.ParseInt(string(e[:10]), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("xref entry at %d: %w", p, err)
			}
			gen, err := strconv.ParseInt(string(e[11:16]), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("xref entry at %d: %w", p, err)
			}
			sec.entries = append(sec.entries, entry{
				num:     first + k,
				gen:     gen,
				offset:  v,
				inUse:   typ == 'n',
				fieldAt: p,
			})
			p += 20
		}
		p = skipSpace(data, p)
	}

	t := p + int64(len(kwTrailer))
	end := bytes.Index(data[t:], kwStartXRef)
	if end < 0 {
		end = len(data) - int(t)
	}
	dict := data[t : t+int64(end)]
	if bytes.Contains(dict, kwXRefStm) {
		return nil, errHybrid
	}
	if i := bytes.Index(dict, kwPrev); i >= 0 {
		q := skipSpace(data, t+int64(i+len(kwPrev)))
		v, qe, ok := readInt(data, q)
		if !ok {
			return nil, fmt.Errorf("trailer /Prev at %d has no offset", t+int64(i))
		}
		sec.hasPrev, sec.prev, sec.prevAt, sec.prevWidth = true, v, q, int(qe-q)
	}
	return sec, nil
}

// parseChain follows startxref and every /Prev link.
func parseChain(data []byte, start int64) ([]*section, error) {
	seen := make(map[int64]bool)
	var out []*section
	for off := start; ; {
		if seen[off] {
			return nil, fmt.Errorf("/Prev chain loops at %d", off)
		}
		seen[off] = true
		sec, err := parseTable(data, off)
		if err != nil {
			return nil, err
		}
		out = append(out, sec)
		if !sec.hasPrev {
			return out, nil
		}
		off = sec.prev
	}
}

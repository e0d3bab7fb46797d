// CLAUDE:SUMMARY Minimal valid sample files per format, built in memory for tests.
// Package formattest builds small, structurally valid sample files for every
// supported format. Builders panic on encoder errors; they are meant for
// tests only.
package formattest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"github.com/klauspost/compress/zip"
)

// PDF returns a single-page PDF with a classic cross-reference table.
func PDF() []byte {
	b, _ := buildPDF("")
	return b
}

// PDFComment returns PDF() with an extra comment line after the header.
func PDFComment(comment string) []byte {
	b, _ := buildPDF(comment)
	return b
}

func buildPDF(comment string) ([]byte, int) {
	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")
	if comment != "" {
		b.WriteString("%" + comment + "\n")
	}
	content := "0 0 m 10 10 l S"
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 200] /Resources << >> /Contents 4 0 R >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
	}
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", len(objs)+1)
	b.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return b.Bytes(), xref
}

// PDFIncremental returns PDF() followed by one incremental update whose
// trailer links back through /Prev.
func PDFIncremental() []byte {
	base, prev := buildPDF("")
	var b bytes.Buffer
	b.Write(base)
	obj := b.Len()
	b.WriteString("5 0 obj\n<< /Title (glotfile) >>\nendobj\n")
	xref := b.Len()
	b.WriteString("xref\n0 1\n0000000000 65535 f \n5 1\n")
	fmt.Fprintf(&b, "%010d 00000 n \n", obj)
	fmt.Fprintf(&b, "trailer\n<< /Size 6 /Root 1 0 R /Info 5 0 R /Prev %d >>\nstartxref\n%d\n%%%%EOF\n", prev, xref)
	return b.Bytes()
}

// PDFXRefStream returns a PDF whose startxref points at a cross-reference
// stream object.
func PDFXRefStream() []byte {
	var b bytes.Buffer
	b.WriteString("%PDF-1.5\n")
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	xref := b.Len()
	b.WriteString("2 0 obj\n<< /Type /XRef /Size 3 /W [1 2 1] /Length 0 >>\nstream\n\nendstream\nendobj\n")
	fmt.Fprintf(&b, "startxref\n%d\n%%%%EOF\n", xref)
	return b.Bytes()
}

// ZIPEntry is one file stored in a ZIP fixture.
type ZIPEntry struct {
	Name   string
	Body   []byte
	Stored bool
}

// DefaultEntries is the content of ZIP().
func DefaultEntries() []ZIPEntry {
	bin := make([]byte, 512)
	for i := range bin {
		bin[i] = byte(i * 7)
	}
	return []ZIPEntry{
		{Name: "hello.txt", Body: []byte("hello from inside the polyglot\n")},
		{Name: "data/bytes.bin", Body: bin, Stored: true},
	}
}

// ZIP returns an archive holding DefaultEntries.
func ZIP() []byte { return ZIPWith("", DefaultEntries()...) }

// ZIPWith builds an archive with the given comment and entries.
func ZIPWith(comment string, entries ...ZIPEntry) []byte {
	var b bytes.Buffer
	zw := zip.NewWriter(&b)
	for _, e := range entries {
		h := &zip.FileHeader{Name: e.Name, Method: zip.Deflate}
		if e.Stored {
			h.Method = zip.Store
		}
		w, err := zw.CreateHeader(h)
		if err != nil {
			panic(err)
		}
		if _, err := w.Write(e.Body); err != nil {
			panic(err)
		}
	}
	if comment != "" {
		if err := zw.SetComment(comment); err != nil {
			panic(err)
		}
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return b.Bytes()
}

// MP4Options selects the MP4 fixture variant.
type MP4Options struct {
	CO64 bool // 64-bit chunk offsets
	// MoovLast puts mdat ahead of moov.
	MoovLast bool
	// OpenMdat writes the last box with size 0 (runs to end of file).
	OpenMdat bool
}

// MP4 returns ftyp, moov with one track and two chunk offsets, and mdat.
func MP4() []byte { return MP4With(MP4Options{}) }

// MP4With builds an MP4 fixture variant.
func MP4With(o MP4Options) []byte {
	ftyp := box("ftyp", []byte("isom\x00\x00\x02\x00isommp41"))
	payload := bytes.Repeat([]byte("sample-data-"), 8)

	moovFor := func(mdatAt int) []byte {
		first, second := uint64(mdatAt+8), uint64(mdatAt+8+48)
		var table []byte
		typ := "stco"
		if o.CO64 {
			typ = "co64"
			table = be32(0, 2)
			table = binary.BigEndian.AppendUint64(table, first)
			table = binary.BigEndian.AppendUint64(table, second)
		} else {
			table = be32(0, 2, uint32(first), uint32(second))
		}
		stbl := box("stbl", box(typ, table))
		minf := box("minf", stbl)
		mdia := box("mdia", box("mdhd", make([]byte, 24)), minf)
		trak := box("trak", box("tkhd", make([]byte, 84)), mdia)
		return box("moov", box("mvhd", make([]byte, 100)), trak)
	}

	mdat := box("mdat", payload)
	if o.OpenMdat {
		binary.BigEndian.PutUint32(mdat, 0)
	}

	var out []byte
	if o.MoovLast {
		if o.OpenMdat {
			panic("formattest: an open mdat must be the last box")
		}
		out = append(out, ftyp...)
		mdatAt := len(out)
		out = append(out, mdat...)
		out = append(out, moovFor(mdatAt)...)
		return out
	}
	sized := moovFor(0)
	mdatAt := len(ftyp) + len(sized)
	out = append(out, ftyp...)
	out = append(out, moovFor(mdatAt)...)
	out = append(out, mdat...)
	return out
}

func box(typ string, parts ...[]byte) []byte {
	n := 8
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	out = binary.BigEndian.AppendUint32(out, uint32(n))
	out = append(out, typ...)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func be32(vs ...uint32) []byte {
	var out []byte
	for _, v := range vs {
		out = binary.BigEndian.AppendUint32(out, v)
	}
	return out
}

func sample(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: 128, A: 255})
		}
	}
	return img
}

// PNG returns a w x h PNG image.
func PNG(w, h int) []byte {
	var b bytes.Buffer
	if err := png.Encode(&b, sample(w, h)); err != nil {
		panic(err)
	}
	return b.Bytes()
}

// JPEG returns a w x h baseline JPEG without application segments.
func JPEG(w, h int) []byte {
	var b bytes.Buffer
	if err := jpeg.Encode(&b, sample(w, h), &jpeg.Options{Quality: 80}); err != nil {
		panic(err)
	}
	return b.Bytes()
}

// JPEGWithJFIF returns JPEG(w, h) with a JFIF APP0 segment after SOI.
func JPEGWithJFIF(w, h int) []byte {
	raw := JPEG(w, h)
	app0 := []byte{0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01, 0x01, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00}
	out := make([]byte, 0, len(raw)+len(app0))
	out = append(out, raw[:2]...)
	out = append(out, app0...)
	return append(out, raw[2:]...)
}

// HTML returns a small standalone document.
func HTML() []byte {
	return []byte("<!DOCTYPE html>\n<html><head><title>glotfile</title></head>" +
		"<body><p>hello from html</p></body></html>\n")
}

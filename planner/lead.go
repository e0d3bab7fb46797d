package planner

import "github.com/hazyhaar/glotfile/format"

// checkLeads hands the bytes ahead of every input whose adapter reads them
// to that adapter. Patches inside those bytes are applied first, checksums
// last, the way the assembler does it.
func checkLeads(p *Plan) error {
	for idx, pl := range p.Placements {
		lc, ok := p.Inputs[idx].Adapter.(format.LeadChecker)
		if !ok || pl.Start() == 0 {
			continue
		}
		if err := lc.CheckLead(render(p, pl.Start()), p.Inputs[idx].File.Data); err != nil {
			return reject(pl.Type, "bytes ahead of it hide it: %v", err)
		}
	}
	return nil
}

// render returns the first n output bytes of p.
func render(p *Plan, n int64) []byte {
	buf := make([]byte, n)
	for _, e := range p.Entries {
		if e.Out.Off >= n {
			break
		}
		src := e.Literal
		if e.Kind == EntryPayload {
			src = p.Inputs[e.Input].File.Data[e.Src.Off:e.Src.End()]
		}
		copy(buf[e.Out.Off:min(e.Out.End(), n)], src)
	}
	var sums []format.Patch
	for _, pt := range p.Patches {
		if pt.Offset+int64(pt.Width) > n {
			continue
		}
		if pt.Enc == format.Checksum {
			sums = append(sums, pt)
			continue
		}
		_ = format.PutField(buf, pt.Offset, pt.Width, pt.Enc, pt.New)
	}
	for _, pt := range sums {
		if pt.Span.End() <= n {
			_ = format.PutField(buf, pt.Offset, pt.Width, pt.Enc, format.Checksum32(buf, pt.Span))
		}
	}
	return buf
}

// CLAUDE:SUMMARY Layout planner: enumerates anchor/prefix/tail layouts, rejects infeasible ones from descriptor facts, ranks the rest.
// CLAUDE:DEPENDS format
// Package planner chooses where every input goes in the polyglot output.
// It only reads adapter descriptors, structures and frame sizes; nothing in
// here knows a particular format.
package planner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hazyhaar/glotfile/format"
)

const (
	MinInputs = 2
	MaxInputs = 5

	// frameRounds bounds the frame sizing fixpoint. Frame heads only grow
	// (e.g. an MP4 free box switching to a large-size header), so two
	// rounds settle in practice.
	frameRounds = 4
)

// Input is an accepted input with its adapter and parsed structure.
type Input struct {
	Index   int
	File    format.InputFile
	Adapter format.Adapter
	Desc    format.Descriptor
	Struct  *format.Structure
}

// Size returns the input length.
func (in *Input) Size() int64 { return int64(len(in.File.Data)) }

// Planner builds plans from a registry of adapters.
type Planner struct {
	reg    *format.Registry
	logger *slog.Logger
}

// New returns a planner. A nil logger means slog.Default().
func New(reg *format.Registry, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{reg: reg, logger: logger}
}

// Accept checks the input set and inspects every file. Structural problems
// surface here, before any layout is considered.
func (p *Planner) Accept(files []format.InputFile) ([]*Input, error) {
	if len(files) < MinInputs || len(files) > MaxInputs {
		return nil, fmt.Errorf("%w: need %d to %d files, got %d", format.ErrInvalidInput, MinInputs, MaxInputs, len(files))
	}
	seen := make(map[format.Type]bool, len(files))
	inputs := make([]*Input, 0, len(files))
	for i, f := range files {
		if seen[f.Type] {
			return nil, fmt.Errorf("%w: %s declared twice", format.ErrInvalidInput, f.Type)
		}
		seen[f.Type] = true
		a, err := p.reg.Get(f.Type)
		if err != nil {
			return nil, err
		}
		if len(f.Data) == 0 {
			return nil, format.Unsupported(f.Type, "file %d is empty", i+1)
		}
		s, err := a.Inspect(f.Data)
		if err != nil {
			return nil, fmt.Errorf("file %d: %w", i+1, err)
		}
		inputs = append(inputs, &Input{Index: i, File: f, Adapter: a, Desc: a.Describe(), Struct: s})
	}
	return inputs, nil
}

// Plan accepts files and plans them.
func (p *Planner) Plan(ctx context.Context, files []format.InputFile) (*Plan, error) {
	inputs, err := p.Accept(files)
	if err != nil {
		return nil, err
	}
	return p.PlanInputs(ctx, inputs)
}

// PlanInputs evaluates every layout of already accepted inputs and returns
// the best feasible one. Candidates are materialized in rank order until
// one also passes the adapters' lead checks.
func (p *Planner) PlanInputs(ctx context.Context, inputs []*Input) (*Plan, error) {
	ev := newEvaluator(inputs)
	all := layouts(len(inputs))
	var (
		ok      []*candidate
		reasons = make(map[string]int)
	)
	for i, l := range all {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		c, err := ev.evaluate(l)
		if err != nil {
			reasons[err.Error()]++
			continue
		}
		ok = append(ok, c)
	}
	sort.SliceStable(ok, func(i, j int) bool { return ok[i].less(ok[j]) })
	feasible := len(ok)
	for _, c := range ok {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		plan, err := ev.materialize(c)
		if err != nil {
			return nil, err
		}
		if err := checkLeads(plan); err != nil {
			reasons[err.Error()]++
			feasible--
			continue
		}
		p.logger.Debug("planner: layouts evaluated",
			"inputs", len(inputs), "considered", len(all), "feasible", feasible)
		plan.Considered = len(all)
		plan.Feasible = feasible
		return plan, nil
	}
	return nil, fmt.Errorf("%w: none of %d layouts is feasible (%s)", format.ErrNoValidOrdering, len(all), topReason(reasons))
}

func topReason(reasons map[string]int) string {
	var top string
	n := 0
	for r, c := range reasons {
		if c > n || (c == n && r < top) {
			top, n = r, c
		}
	}
	return top
}

type itemKind uint8

const (
	itemData itemKind = iota
	itemHead
	itemTail
	itemGuard
)

// item is one contiguous piece of a candidate layout.
type item struct {
	kind itemKind
	in   int
	src  format.Range
	// region is the host region of a frame head or tail.
	region format.Region
	// pair links a prefix frame's head and tail; -1 for trailing frames.
	pair    int
	off     int64
	size    int64
	payload int64
}

type candidate struct {
	layout   layout
	items    []item
	size     int64
	overhead int64
	relaxed  int
	rank     int
	patches  int
	maps     []format.Mapping
	lax      []bool
	frames   map[int]format.Frame
	seq      []int
}

func (c *candidate) less(d *candidate) bool {
	if c.relaxed != d.relaxed {
		return c.relaxed < d.relaxed
	}
	if c.rank != d.rank {
		return c.rank < d.rank
	}
	if c.patches != d.patches {
		return c.patches < d.patches
	}
	if c.overhead != d.overhead {
		return c.overhead < d.overhead
	}
	return lessSeq(c.seq, d.seq)
}

type forbidKey struct {
	owner, src int
	from       int64
}

type evaluator struct {
	inputs []*Input
	ranks  []int
	total  int64
	forbid map[forbidKey]bool
}

func newEvaluator(inputs []*Input) *evaluator {
	ev := &evaluator{inputs: inputs, forbid: make(map[forbidKey]bool)}
	keys := make([][2]int64, 0, len(inputs))
	for _, in := range inputs {
		keys = append(keys, in.Desc.Strictness())
		ev.total += in.Size()
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
	distinct := keys[:0:0]
	for _, k := range keys {
		if len(distinct) == 0 || distinct[len(distinct)-1] != k {
			distinct = append(distinct, k)
		}
	}
	for _, in := range inputs {
		k := in.Desc.Strictness()
		for r, d := range distinct {
			if d == k {
				ev.ranks = append(ev.ranks, r)
				break
			}
		}
	}
	return ev
}

var errRejected = errors.New("rejected")

func reject(t format.Type, msg string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", errRejected, t, fmt.Sprintf(msg, args...))
}

func (ev *evaluator) data(in int, off, n int64) item {
	return item{kind: itemData, in: in, src: format.Range{Off: off, Len: n}, pair: -1}
}

// trailing appends a frame head when input in must keep following bytes
// inside its trailing region.
func (ev *evaluator) trailing(items []item, in int) ([]item, error) {
	x := ev.inputs[in]
	if x.Desc.Trail == format.TrailAny {
		return items, nil
	}
	r, ok := x.Struct.Region(format.RegionTrailing)
	if !ok {
		return nil, reject(x.File.Type, "bytes follow but it has no trailing region")
	}
	return append(items, item{kind: itemHead, in: in, region: r, pair: -1}), nil
}

// chain appends a chain of guests. Inside a prefix region every guest is
// followed by the rest of the anchor; in the tail only the last is not.
func (ev *evaluator) chain(items []item, members []int, inPrefix bool) ([]item, error) {
	var err error
	for i, m := range members {
		x := ev.inputs[m]
		if len(x.Desc.LeadGuard) > 0 {
			items = append(items, item{kind: itemGuard, in: m, size: int64(len(x.Desc.LeadGuard)), pair: -1})
		}
		items = append(items, ev.data(m, 0, x.Size()))
		if inPrefix || i < len(members)-1 {
			if items, err = ev.trailing(items, m); err != nil {
				return nil, err
			}
		}
	}
	return items, nil
}

func (ev *evaluator) build(l layout) ([]item, error) {
	a := ev.inputs[l.anchor]
	var (
		items []item
		err   error
	)
	if len(l.prefix) > 0 {
		r, ok := a.Struct.Region(format.RegionPrefix)
		if !ok {
			return nil, reject(a.File.Type, "cannot host a prefix chain")
		}
		items = append(items, ev.data(l.anchor, 0, r.Offset))
		head := len(items)
		items = append(items, item{kind: itemHead, in: l.anchor, region: r})
		if items, err = ev.chain(items, l.prefix, true); err != nil {
			return nil, err
		}
		tail := len(items)
		items[head].pair = tail
		items = append(items, item{kind: itemTail, in: l.anchor, region: r, pair: head})
		items = append(items, ev.data(l.anchor, r.Offset, a.Size()-r.Offset))
	} else {
		items = append(items, ev.data(l.anchor, 0, a.Size()))
	}
	if len(l.tail) > 0 {
		if items, err = ev.trailing(items, l.anchor); err != nil {
			return nil, err
		}
		if items, err = ev.chain(items, l.tail, false); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func place(items []item) int64 {
	var off int64
	for i := range items {
		items[i].off = off
		off += items[i].size
	}
	return off
}

// size settles frame sizes: a frame's head may depend on its payload
// length, which depends on every other frame.
func (ev *evaluator) size(items []item) (int64, error) {
	for i := range items {
		if items[i].kind == itemData {
			items[i].size = items[i].src.Len
		}
	}
	for round := 0; round < frameRounds; round++ {
		total := place(items)
		changed := false
		for i := range items {
			it := &items[i]
			if it.kind != itemHead {
				continue
			}
			if it.pair >= 0 {
				it.payload = items[it.pair].off - (it.off + it.size)
			} else {
				it.payload = total - (it.off + it.size)
			}
			head, tail := ev.inputs[it.in].Adapter.FrameSize(it.region, it.payload)
			if head != it.size {
				it.size = head
				changed = true
			}
			if it.pair >= 0 && items[it.pair].size != tail {
				items[it.pair].size = tail
				changed = true
			}
		}
		if !changed {
			return total, nil
		}
	}
	return 0, reject(ev.inputs[items[0].in].File.Type, "frame sizes did not settle")
}

// evaluate builds a layout and checks every constraint the descriptors
// state. The error names the first violated constraint.
func (ev *evaluator) evaluate(l layout) (*candidate, error) {
	items, err := ev.build(l)
	if err != nil {
		return nil, err
	}
	total, err := ev.size(items)
	if err != nil {
		return nil, err
	}
	c := &candidate{
		layout:   l,
		items:    items,
		size:     total,
		overhead: total - ev.total,
		rank:     ev.ranks[l.anchor],
		maps:     make([]format.Mapping, len(ev.inputs)),
		lax:      make([]bool, len(ev.inputs)),
		frames:   make(map[int]format.Frame),
		seq:      l.seq(),
	}

	first := make([]int, len(ev.inputs))
	last := make([]int, len(ev.inputs))
	for i := range first {
		first[i] = -1
	}
	for i, it := range items {
		if it.kind != itemData {
			continue
		}
		if first[it.in] < 0 {
			first[it.in] = i
		}
		last[it.in] = i
	}

	for _, it := range items {
		if it.kind == itemHead && it.payload > it.region.Capacity {
			return nil, reject(ev.inputs[it.in].File.Type, "%s holds %d bytes, %d needed", it.region.Name, it.region.Capacity, it.payload)
		}
	}

	for idx, x := range ev.inputs {
		start := items[first[idx]].off
		lead := start + x.Struct.HeaderAt
		switch {
		case lead <= x.Desc.MaxLead:
		case lead <= x.Desc.RelaxedLead:
			c.lax[idx] = true
			c.relaxed++
		default:
			return nil, reject(x.File.Type, "header at %d, readers look no further than %d", lead, x.Desc.RelaxedLead)
		}
		if len(x.Desc.Forbid) > 0 {
			for _, it := range items[last[idx]+1:] {
				if ev.forbidden(idx, it) {
					return nil, reject(x.File.Type, "a forbidden sequence follows it")
				}
			}
		}
		m := format.Mapping{Base: start}
		if idx == l.anchor && len(l.prefix) > 0 {
			rest := items[last[idx]]
			m.Point = rest.src.Off
			m.Inserted = rest.off - rest.src.Off
		}
		c.maps[idx] = m
		n, err := format.CountRelocated(x.File.Type, x.Struct.Sites, m)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errRejected, err)
		}
		c.patches += n
	}

	for i, it := range items {
		if it.kind != itemHead {
			continue
		}
		x := ev.inputs[it.in]
		f, err := x.Adapter.Frame(x.Struct, it.region, it.payload, c.maps[it.in], it.off)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errRejected, err)
		}
		if int64(len(f.Head)) != it.size || (it.pair >= 0 && int64(len(f.Tail)) != items[it.pair].size) {
			return nil, reject(x.File.Type, "frame does not match its announced size")
		}
		c.frames[i] = f
		c.patches += len(f.Patches)
	}
	return c, nil
}

// forbidden reports whether item it carries a sequence input owner forbids
// after itself. Data items are scanned once per (owner, source, offset).
func (ev *evaluator) forbidden(owner int, it item) bool {
	seqs := ev.inputs[owner].Desc.Forbid
	switch it.kind {
	case itemGuard:
		for _, s := range seqs {
			if bytes.Contains(ev.inputs[it.in].Desc.LeadGuard, s) {
				return true
			}
		}
		return false
	case itemData:
	default:
		return false
	}
	k := forbidKey{owner: owner, src: it.in, from: it.src.Off}
	if v, ok := ev.forbid[k]; ok {
		return v
	}
	data := ev.inputs[it.in].File.Data[it.src.Off:it.src.End()]
	hit := false
	for _, s := range seqs {
		if bytes.Contains(data, s) {
			hit = true
			break
		}
	}
	ev.forbid[k] = hit
	return hit
}

// materialize turns the winning candidate into a plan.
func (ev *evaluator) materialize(c *candidate) (*Plan, error) {
	plan := &Plan{
		Anchor:   ev.inputs[c.layout.anchor].File.Type,
		Size:     c.size,
		Overhead: c.overhead,
		Inputs:   ev.inputs,
	}
	for _, i := range c.layout.prefix {
		plan.Prefix = append(plan.Prefix, ev.inputs[i].File.Type)
	}
	for _, i := range c.layout.tail {
		plan.Tail = append(plan.Tail, ev.inputs[i].File.Type)
	}
	for i, it := range c.items {
		x := ev.inputs[it.in]
		e := Entry{Format: x.File.Type, Input: it.in, Out: format.Range{Off: it.off, Len: it.size}}
		switch it.kind {
		case itemData:
			e.Kind = EntryPayload
			e.Src = it.src
		case itemGuard:
			e.Kind = EntryFrame
			e.Literal = x.Desc.LeadGuard
			e.Note = "lead guard"
		case itemHead:
			f := c.frames[i]
			plan.Patches = append(plan.Patches, f.Patches...)
			e.Kind = EntryFrame
			e.Literal = f.Head
			e.Note = it.region.Name
		case itemTail:
			e.Kind = EntryFrame
			e.Literal = c.frames[it.pair].Tail
			e.Note = it.region.Name + " end"
		}
		if e.Out.Len == 0 {
			continue
		}
		plan.Entries = append(plan.Entries, e)
	}
	for idx, x := range ev.inputs {
		ps, err := format.Relocate(x.File.Type, x.Struct.Sites, c.maps[idx])
		if err != nil {
			return nil, err
		}
		plan.Patches = append(plan.Patches, ps...)
		plan.Placements = append(plan.Placements, format.Placement{
			Type:    x.File.Type,
			Map:     c.maps[idx],
			Length:  x.Size(),
			Relaxed: c.lax[idx],
		})
	}
	sort.SliceStable(plan.Patches, func(i, j int) bool { return plan.Patches[i].Offset < plan.Patches[j].Offset })
	return plan, nil
}

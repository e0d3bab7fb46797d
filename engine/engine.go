// CLAUDE:SUMMARY Engine facade: resolves a request against the catalogue, then plans, assembles and validates one polyglot.
// CLAUDE:DEPENDS format, planner, assembler, validator, kit, idgen
// Package engine wires the adapters, planner, assembler and validator into
// the operations the HTTP API, the CLI and the MCP tools expose.
package engine

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/hazyhaar/glotfile/assembler"
	"github.com/hazyhaar/glotfile/format"
	fhtml "github.com/hazyhaar/glotfile/format/html"
	"github.com/hazyhaar/glotfile/format/img"
	"github.com/hazyhaar/glotfile/format/mp4"
	"github.com/hazyhaar/glotfile/format/pdf"
	fzip "github.com/hazyhaar/glotfile/format/zip"
	"github.com/hazyhaar/glotfile/kit"
	"github.com/hazyhaar/glotfile/planner"
	"github.com/hazyhaar/glotfile/validator"
)

// Request is one generation. When Combination is set, files without a
// declared type take the combination's type at the same position.
type Request struct {
	Combination string
	Files       []format.InputFile
}

// Output is a validated polyglot. Nothing in it is persisted.
type Output struct {
	ID       string
	Data     []byte
	Label    string
	Anchor   format.Type
	Filename string
	// Digest is the hex BLAKE3-256 of Data.
	Digest string
	Plan   *planner.Plan
}

// Engine is safe for concurrent use; it holds no per-request state.
type Engine struct {
	cfg     Config
	reg     *format.Registry
	planner *planner.Planner
	logger  *slog.Logger
}

// New builds an engine with every supported adapter registered.
func New(cfg Config) *Engine {
	cfg.defaults()
	reg := format.NewRegistry(
		pdf.New(pdf.WithDeepValidation(cfg.DeepPDF)),
		fzip.New(),
		mp4.New(),
		img.New(),
		fhtml.New(),
	)
	return &Engine{
		cfg:     cfg,
		reg:     reg,
		planner: planner.New(reg, cfg.Logger),
		logger:  cfg.Logger,
	}
}

// Formats lists the registered format descriptors.
func (e *Engine) Formats() []format.Descriptor { return e.reg.Descriptors() }

// resolve fills declared types from the combination and returns the label.
func (e *Engine) resolve(req Request) ([]format.InputFile, string, error) {
	files := append([]format.InputFile(nil), req.Files...)
	if req.Combination == "" {
		types := make([]format.Type, len(files))
		for i, f := range files {
			if f.Type == "" {
				return nil, "", fmt.Errorf("%w: file %d has no declared type", format.ErrInvalidInput, i+1)
			}
			types[i] = f.Type
		}
		return files, CombinationID(types), nil
	}
	types, err := ResolveCombination(req.Combination)
	if err != nil {
		return nil, "", err
	}
	if len(types) != len(files) {
		return nil, "", fmt.Errorf("%w: combination %q takes %d files, got %d", format.ErrInvalidInput, req.Combination, len(types), len(files))
	}
	for i := range files {
		if files[i].Type == "" {
			files[i].Type = types[i]
		}
	}
	return files, label(req.Combination, types), nil
}

// label keeps catalogue ids as clients know them and canonicalizes the rest.
func label(id string, types []format.Type) string {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, c := range catalogue {
		if c.ID == id {
			return id
		}
	}
	return CombinationID(types)
}

// Plan resolves and plans a request without assembling it.
func (e *Engine) Plan(ctx context.Context, req Request) (*planner.Plan, error) {
	files, _, err := e.resolve(req)
	if err != nil {
		return nil, err
	}
	return e.planner.Plan(ctx, files)
}

// Generate runs the whole pipeline. A ValidationError means the planned
// layout did not hold; no bytes are returned in that case.
func (e *Engine) Generate(ctx context.Context, req Request) (out *Output, err error) {
	start := time.Now()
	var p *planner.Plan
	defer func() { e.record(ctx, req, p, out, err, time.Since(start)) }()

	files, name, err := e.resolve(req)
	if err != nil {
		return nil, err
	}
	p, err = e.planner.Plan(ctx, files)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := assembler.Assemble(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("assemble %s: %w", name, err)
	}
	if err := validator.Validate(ctx, data, p); err != nil {
		var ve *format.ValidationError
		if errors.As(err, &ve) {
			e.log(ctx).Error("engine: output failed validation",
				"label", name, "format", ve.Format, "anchor", p.Anchor, "error", ve.Err)
		}
		return nil, err
	}

	sum := blake3.Sum256(data)
	id := e.cfg.IDs()
	ext := "bin"
	for _, in := range p.Inputs {
		if in.File.Type == p.Anchor {
			ext = in.Struct.Extension
		}
	}
	return &Output{
		ID:       id,
		Data:     data,
		Label:    name,
		Anchor:   p.Anchor,
		Filename: fmt.Sprintf("polyglot-%s-%s.%s", name, id, ext),
		Digest:   hex.EncodeToString(sum[:]),
		Plan:     p,
	}, nil
}

func (e *Engine) log(ctx context.Context) *slog.Logger {
	return e.logger.With(kit.LogAttrs(ctx)...)
}

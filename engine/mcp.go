package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/glotfile/format"
	"github.com/hazyhaar/glotfile/kit"
)

// MaxMCPInput caps each base64-decoded file received through MCP.
const MaxMCPInput = 32 << 20

// RegisterMCP registers the polyglot tools on an MCP server. mws wrap the
// plan and generate tools; the service uses them to take a generation slot.
func (e *Engine) RegisterMCP(srv *mcp.Server, mws ...kit.Middleware) {
	e.registerCombinationsTool(srv)
	e.registerPlanTool(srv, mws)
	e.registerGenerateTool(srv, mws)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func withMCP(ctx context.Context) context.Context { return kit.WithTransport(ctx, kit.TransportMCP) }

// fileArg is one input file; Data is base64 in JSON.
type fileArg struct {
	Type string `json:"type,omitempty"`
	Name string `json:"name,omitempty"`
	Data []byte `json:"data"`
}

type buildReq struct {
	Combination string    `json:"combination,omitempty"`
	Files       []fileArg `json:"files"`
}

func (r *buildReq) request() (Request, error) {
	req := Request{Combination: r.Combination}
	for i, f := range r.Files {
		if len(f.Data) > MaxMCPInput {
			return Request{}, fmt.Errorf("%w: file %d exceeds %d bytes", format.ErrInvalidInput, i+1, MaxMCPInput)
		}
		in := format.InputFile{Name: f.Name, Data: f.Data}
		if f.Type != "" {
			t, err := format.ParseType(f.Type)
			if err != nil {
				return Request{}, err
			}
			in.Type = t
		}
		req.Files = append(req.Files, in)
	}
	return req, nil
}

var buildSchema = inputSchema(map[string]any{
	"combination": map[string]any{"type": "string", "description": "Combination id such as pdf-zip or pdf-video-image-zip"},
	"files": map[string]any{
		"type":        "array",
		"description": "2 to 5 input files in combination order",
		"items": inputSchema(map[string]any{
			"type": map[string]any{"type": "string", "description": "pdf, zip, mp4, image or html; defaults to the combination position"},
			"name": map[string]any{"type": "string"},
			"data": map[string]any{"type": "string", "description": "File content, base64"},
		}, []string{"data"}),
	},
}, []string{"files"})

func decodeBuild(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r buildReq
	if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
		return nil, err
	}
	if len(r.Files) == 0 {
		return nil, errors.New("files is required")
	}
	return &kit.MCPDecodeResult{Request: &r, EnrichCtx: withMCP}, nil
}

// --- combinations ---

func (e *Engine) registerCombinationsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "polyglot_combinations",
		Description: "List the supported polyglot combinations and the formats the engine handles.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		var formats []map[string]any
		for _, d := range e.Formats() {
			formats = append(formats, map[string]any{
				"type":      d.Type,
				"label":     d.Type.Label(),
				"mime":      d.MIMEs(),
				"extension": d.Extension,
				"variants":  d.Variants,
				"trail":     d.Trail.String(),
			})
		}
		return map[string]any{"combinations": Combinations(), "formats": formats}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- plan ---

func (e *Engine) registerPlanTool(srv *mcp.Server, mws []kit.Middleware) {
	tool := &mcp.Tool{
		Name:        "polyglot_plan",
		Description: "Dry run: choose the layout for the given files and return the plan without building the output.",
		InputSchema: buildSchema,
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r, err := req.(*buildReq).request()
		if err != nil {
			return nil, err
		}
		p, err := e.Plan(ctx, r)
		if err != nil {
			return nil, err
		}
		return p.Summary(), nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeBuild, mws...)
}

// --- generate ---

type generateResp struct {
	Filename string `json:"filename"`
	Anchor   string `json:"anchor"`
	Digest   string `json:"digest"`
	Size     int    `json:"size"`
	Data     []byte `json:"data"`
	Plan     any    `json:"plan"`
}

func (e *Engine) registerGenerateTool(srv *mcp.Server, mws []kit.Middleware) {
	tool := &mcp.Tool{
		Name:        "polyglot_generate",
		Description: "Build a validated polyglot from 2 to 5 files. The result is returned base64 encoded.",
		InputSchema: buildSchema,
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r, err := req.(*buildReq).request()
		if err != nil {
			return nil, err
		}
		out, err := e.Generate(ctx, r)
		if err != nil {
			return nil, err
		}
		return generateResp{
			Filename: out.Filename,
			Anchor:   string(out.Anchor),
			Digest:   out.Digest,
			Size:     len(out.Data),
			Data:     out.Data,
			Plan:     out.Plan.Summary(),
		}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeBuild, mws...)
}

package kit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type echoReq struct {
	Text string `json:"text"`
}

func connect(t *testing.T, srv *mcp.Server) *mcp.ClientSession {
	t.Helper()
	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(&mcp.Implementation{Name: "kit-test", Version: "0.1.0"}, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func TestRegisterMCPTool(t *testing.T) {
	srv := mcp.NewServer(&mcp.Implementation{Name: "kit-test", Version: "0.1.0"}, nil)

	var seen []string
	tag := func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			seen = append(seen, GetTransport(ctx))
			return next(ctx, req)
		}
	}
	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*echoReq)
		if r.Text == "" {
			return nil, errors.New("empty text")
		}
		return map[string]string{"echo": r.Text}, nil
	}
	decode := func(req *mcp.CallToolRequest) (*MCPDecodeResult, error) {
		var r echoReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &MCPDecodeResult{Request: &r, EnrichCtx: func(ctx context.Context) context.Context {
			return WithTransport(ctx, "mcp")
		}}, nil
	}
	RegisterMCPTool(srv, &mcp.Tool{
		Name:        "echo",
		InputSchema: map[string]any{"type": "object"},
	}, endpoint, decode, tag)

	session := connect(t, srv)
	call := func(args map[string]any) (string, bool) {
		res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: "echo", Arguments: args})
		if err != nil {
			t.Fatalf("CallTool: %v", err)
		}
		return res.Content[0].(*mcp.TextContent).Text, res.IsError
	}

	text, isErr := call(map[string]any{"text": "hi"})
	if isErr || text != `{"echo":"hi"}` {
		t.Fatalf("got %q (error %v)", text, isErr)
	}
	text, isErr = call(map[string]any{"text": ""})
	if !isErr || text != "empty text" {
		t.Fatalf("got %q (error %v)", text, isErr)
	}
	if len(seen) != 2 || seen[0] != "mcp" {
		t.Fatalf("middleware saw %v", seen)
	}
}

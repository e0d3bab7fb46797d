// CLAUDE:SUMMARY Request-scoped context values shared by the HTTP handlers, MCP tools and the engine's logs.
package kit

import "context"

type ctxKey int

const (
	transportKey ctxKey = iota
	requestIDKey
	traceIDKey
	remoteAddrKey
)

// Transports a call can arrive through.
const (
	TransportHTTP = "http"
	TransportMCP  = "mcp"
)

func str(ctx context.Context, k ctxKey) string {
	v, _ := ctx.Value(k).(string)
	return v
}

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, transportKey, t)
}

// GetTransport defaults to TransportHTTP: only MCP tools tag the context.
func GetTransport(ctx context.Context) string {
	if v := str(ctx, transportKey); v != "" {
		return v
	}
	return TransportHTTP
}

// WithRequestID carries a client-supplied correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}
func GetRequestID(ctx context.Context) string { return str(ctx, requestIDKey) }

// WithTraceID carries the id shield assigns to every HTTP request.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}
func GetTraceID(ctx context.Context) string { return str(ctx, traceIDKey) }

func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, remoteAddrKey, addr)
}
func GetRemoteAddr(ctx context.Context) string { return str(ctx, remoteAddrKey) }

// LogAttrs returns the transport and every non-empty id as slog key/value
// pairs, for logger.With.
func LogAttrs(ctx context.Context) []any {
	attrs := []any{"transport", GetTransport(ctx)}
	for _, kv := range []struct {
		key string
		k   ctxKey
	}{{"trace_id", traceIDKey}, {"request_id", requestIDKey}, {"remote", remoteAddrKey}} {
		if v := str(ctx, kv.k); v != "" {
			attrs = append(attrs, kv.key, v)
		}
	}
	return attrs
}

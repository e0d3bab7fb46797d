package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/glotfile/idgen"
)

// Generation is one row of the generation outcome log.
type Generation struct {
	EntryID   string
	Timestamp time.Time
	Transport string // "http" or "mcp"
	TraceID   string

	Label      string // combination label, e.g. "pdf-zip"
	Anchor     string
	Inputs     int
	InputBytes int64

	OutputBytes   int64
	OverheadBytes int64
	Patches       int
	Relaxed       []string
	Digest        string

	Status       string // "success" or "error"
	ErrorKind    string // e.g. "unsupported_structure", "validation_failed"
	ErrorMessage string
	DurationMs   int64
}

// GenerationFilter controls Query results.
type GenerationFilter struct {
	Since  *time.Time
	Status string
	Limit  int // default 100
}

// GenerationLog persists generation outcomes asynchronously. A nil
// *GenerationLog is valid and records nothing.
type GenerationLog struct {
	db    *sql.DB
	newID idgen.Generator
	ch    chan *Generation

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// GenerationOption configures a GenerationLog.
type GenerationOption func(*GenerationLog)

// WithGenerationIDs sets the generator for entry IDs.
func WithGenerationIDs(gen idgen.Generator) GenerationOption {
	return func(g *GenerationLog) { g.newID = gen }
}

// NewGenerationLog creates an async log. Recommended bufferSize: 256.
func NewGenerationLog(db *sql.DB, bufferSize int, opts ...GenerationOption) *GenerationLog {
	g := &GenerationLog{
		db:    db,
		newID: idgen.Prefixed("gen_", idgen.Default),
		ch:    make(chan *Generation, bufferSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(g)
	}
	go g.loop()
	return g
}

// Log inserts an entry synchronously.
func (g *GenerationLog) Log(ctx context.Context, e *Generation) error {
	if g == nil {
		return nil
	}
	g.fill(e)
	return g.insert(ctx, e)
}

// LogAsync queues an entry. When the buffer is full or the log is closed
// the entry is dropped with a warning; a slow metrics disk never delays a
// response.
func (g *GenerationLog) LogAsync(e *Generation) {
	if g == nil {
		return
	}
	g.fill(e)
	select {
	case <-g.stop:
		slog.Warn("observability generations: log closed, entry dropped", "label", e.Label)
		return
	default:
	}
	select {
	case g.ch <- e:
	default:
		slog.Warn("observability generations: buffer full, entry dropped", "label", e.Label)
	}
}

// Close drains queued entries and stops the writer. Entries logged
// asynchronously after Close are dropped. Close may be called more than once.
func (g *GenerationLog) Close() error {
	if g == nil {
		return nil
	}
	g.stopOnce.Do(func() { close(g.stop) })
	<-g.done
	return nil
}

// Query returns entries newest first.
func (g *GenerationLog) Query(ctx context.Context, f GenerationFilter) ([]*Generation, error) {
	q := `SELECT entry_id, timestamp, transport, trace_id, label, anchor, inputs,
		input_bytes, output_bytes, overhead_bytes, patches, relaxed, digest,
		status, error_kind, error_message, duration_ms
		FROM generation_log WHERE 1=1`
	var args []any
	if f.Since != nil {
		q += " AND timestamp >= ?"
		args = append(args, f.Since.Unix())
	}
	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, f.Status)
	}
	limit := 100
	if f.Limit > 0 {
		limit = f.Limit
	}
	q += " ORDER BY timestamp DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := g.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query generation log: %w", err)
	}
	defer rows.Close()

	var out []*Generation
	for rows.Next() {
		var e Generation
		var ts int64
		var traceID, anchor, relaxed, digest, errKind, errMsg sql.NullString
		var outBytes, overhead, patches sql.NullInt64
		if err := rows.Scan(&e.EntryID, &ts, &e.Transport, &traceID, &e.Label, &anchor, &e.Inputs,
			&e.InputBytes, &outBytes, &overhead, &patches, &relaxed, &digest,
			&e.Status, &errKind, &errMsg, &e.DurationMs); err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		e.Timestamp = time.Unix(ts, 0)
		e.TraceID = traceID.String
		e.Anchor = anchor.String
		e.OutputBytes = outBytes.Int64
		e.OverheadBytes = overhead.Int64
		e.Patches = int(patches.Int64)
		if relaxed.String != "" {
			e.Relaxed = strings.Split(relaxed.String, ",")
		}
		e.Digest = digest.String
		e.ErrorKind = errKind.String
		e.ErrorMessage = errMsg.String
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Cleanup deletes entries older than retentionDays.
func (g *GenerationLog) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	threshold := time.Now().AddDate(0, 0, -retentionDays).Unix()
	res, err := g.db.ExecContext(ctx, "DELETE FROM generation_log WHERE timestamp < ?", threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup generation log: %w", err)
	}
	return res.RowsAffected()
}

func (g *GenerationLog) fill(e *Generation) {
	if e.EntryID == "" {
		e.EntryID = g.newID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Transport == "" {
		e.Transport = "http"
	}
	if e.Status == "" {
		e.Status = "success"
		if e.ErrorKind != "" {
			e.Status = "error"
		}
	}
}

func (g *GenerationLog) insert(ctx context.Context, e *Generation) error {
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO generation_log (
			entry_id, timestamp, transport, trace_id, label, anchor, inputs,
			input_bytes, output_bytes, overhead_bytes, patches, relaxed, digest,
			status, error_kind, error_message, duration_ms
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.EntryID, e.Timestamp.Unix(), e.Transport, nullStr(e.TraceID), e.Label, nullStr(e.Anchor), e.Inputs,
		e.InputBytes, e.OutputBytes, e.OverheadBytes, e.Patches, nullStr(strings.Join(e.Relaxed, ",")), nullStr(e.Digest),
		e.Status, nullStr(e.ErrorKind), nullStr(e.ErrorMessage), e.DurationMs)
	if err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}
	return nil
}

func (g *GenerationLog) loop() {
	defer close(g.done)
	for {
		select {
		case e := <-g.ch:
			g.write(e)
		case <-g.stop:
			for {
				select {
				case e := <-g.ch:
					g.write(e)
				default:
					return
				}
			}
		}
	}
}

func (g *GenerationLog) write(e *Generation) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.insert(ctx, e); err != nil {
		slog.Error("observability generations: insert failed", "error", err, "label", e.Label)
	}
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

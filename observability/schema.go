package observability

import "database/sql"

// Schema contains the DDL for the observability tables. Open the database
// with dbopen.WithSchema(Schema) or call Init.
const Schema = `
-- Metrics Timeseries
CREATE TABLE IF NOT EXISTS metrics_timeseries (
    metric_id TEXT PRIMARY KEY DEFAULT ('met_' || hex(randomblob(16))),
    metric_name TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    value REAL NOT NULL,
    labels TEXT,
    unit TEXT,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_metrics_name_time
    ON metrics_timeseries(metric_name, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_metrics_timestamp
    ON metrics_timeseries(timestamp DESC);

-- Generation outcomes. Never holds file content.
CREATE TABLE IF NOT EXISTS generation_log (
    entry_id TEXT PRIMARY KEY,
    timestamp INTEGER NOT NULL,
    transport TEXT NOT NULL,
    trace_id TEXT,
    label TEXT NOT NULL,
    anchor TEXT,
    inputs INTEGER NOT NULL,
    input_bytes INTEGER NOT NULL,
    output_bytes INTEGER,
    overhead_bytes INTEGER,
    patches INTEGER,
    relaxed TEXT,
    digest TEXT,
    status TEXT NOT NULL,
    error_kind TEXT,
    error_message TEXT,
    duration_ms INTEGER NOT NULL,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_generation_timestamp ON generation_log(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_generation_status ON generation_log(status, timestamp DESC);
`

// Init applies the observability schema to the given database.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

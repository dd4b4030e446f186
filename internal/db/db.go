// Package db persists stress run measurements to SQLite: one row per
// run with telemetry, per-stream throughput samples and operator events
// hanging off it. The schema is managed with embedded migrations.
package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"
)

type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) the stress database at path and
// brings its schema up to date.
func NewDB(path string) (*DB, error) {
	sdb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Single writer; WAL keeps readers from blocking the recorder.
	if _, err := sdb.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA foreign_keys = ON;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		sdb.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}

	db := &DB{sdb}
	if err := db.MigrateUp(); err != nil {
		sdb.Close()
		return nil, err
	}
	return db, nil
}

// Run is one stress session against one device.
type Run struct {
	RunID         string
	MxID          string
	BoardName     string
	ProductName   string
	UsbSpeed      string
	StartedNanos  int64
	FinishedNanos int64 // zero while the run is live

	// PipelineJSON is the schema uploaded to the device, for replaying
	// what a recorded run actually exercised.
	PipelineJSON string
	// SummaryJSON holds the end-of-run summary once the run finished.
	SummaryJSON string
}

// Started returns the run start time.
func (r Run) Started() time.Time { return time.Unix(0, r.StartedNanos) }

// Duration returns how long the run lasted, or how long it has been
// running for a live run.
func (r Run) Duration() time.Duration {
	if r.FinishedNanos == 0 {
		return time.Since(r.Started())
	}
	return time.Duration(r.FinishedNanos - r.StartedNanos)
}

// CreateRun inserts a new run row.
func (db *DB) CreateRun(r Run) error {
	_, err := db.Exec(
		`INSERT INTO runs (run_id, mxid, board_name, product_name, usb_speed,
		                   started_unix_nanos, pipeline_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.MxID, r.BoardName, r.ProductName, r.UsbSpeed, r.StartedNanos, r.PipelineJSON,
	)
	return err
}

// SetRunSummary stores the end-of-run summary JSON.
func (db *DB) SetRunSummary(runID, summaryJSON string) error {
	res, err := db.Exec(
		`UPDATE runs SET summary_json = ? WHERE run_id = ?`, summaryJSON, runID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("no run %q", runID)
	}
	return nil
}

// FinishRun stamps the run's end time.
func (db *DB) FinishRun(runID string, finished time.Time) error {
	res, err := db.Exec(
		`UPDATE runs SET finished_unix_nanos = ? WHERE run_id = ?`,
		finished.UnixNano(), runID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("no run %q", runID)
	}
	return nil
}

// Runs lists recorded runs, newest first.
func (db *DB) Runs(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(
		`SELECT run_id, mxid, board_name, product_name, usb_speed,
		        started_unix_nanos, COALESCE(finished_unix_nanos, 0),
		        pipeline_json, summary_json
		 FROM runs ORDER BY started_unix_nanos DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.RunID, &r.MxID, &r.BoardName, &r.ProductName,
			&r.UsbSpeed, &r.StartedNanos, &r.FinishedNanos,
			&r.PipelineJSON, &r.SummaryJSON); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun fetches one run by id.
func (db *DB) GetRun(runID string) (*Run, error) {
	var r Run
	err := db.QueryRow(
		`SELECT run_id, mxid, board_name, product_name, usb_speed,
		        started_unix_nanos, COALESCE(finished_unix_nanos, 0),
		        pipeline_json, summary_json
		 FROM runs WHERE run_id = ?`, runID).
		Scan(&r.RunID, &r.MxID, &r.BoardName, &r.ProductName,
			&r.UsbSpeed, &r.StartedNanos, &r.FinishedNanos,
			&r.PipelineJSON, &r.SummaryJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no run %q", runID)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// TelemetryRow is one device health sample.
type TelemetryRow struct {
	RunID      string
	TakenNanos int64

	// Chip temperatures in Celsius: the average plus the per-block
	// sensors the device reports.
	ChipTempC float64
	TempCss   float64
	TempMss   float64
	TempUpa   float64
	TempDss   float64

	// Leon core loads, percent.
	CssCpu float64
	MssCpu float64

	DdrUsedBytes      int64
	DdrTotalBytes     int64
	CmxUsedBytes      int64
	CmxTotalBytes     int64
	CssHeapUsedBytes  int64
	CssHeapTotalBytes int64
	MssHeapUsedBytes  int64
	MssHeapTotalBytes int64
}

// Taken returns the sample's arrival time.
func (t TelemetryRow) Taken() time.Time { return time.Unix(0, t.TakenNanos) }

// InsertTelemetry writes a batch of telemetry samples in one
// transaction.
func (db *DB) InsertTelemetry(rows []TelemetryRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO telemetry (run_id, taken_unix_nanos,
		                        chip_temp_c, temp_css, temp_mss, temp_upa, temp_dss,
		                        css_cpu, mss_cpu,
		                        ddr_used_bytes, ddr_total_bytes, cmx_used_bytes, cmx_total_bytes,
		                        css_heap_used_bytes, css_heap_total_bytes,
		                        mss_heap_used_bytes, mss_heap_total_bytes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range rows {
		if _, err := stmt.Exec(t.RunID, t.TakenNanos,
			t.ChipTempC, t.TempCss, t.TempMss, t.TempUpa, t.TempDss,
			t.CssCpu, t.MssCpu,
			t.DdrUsedBytes, t.DdrTotalBytes, t.CmxUsedBytes, t.CmxTotalBytes,
			t.CssHeapUsedBytes, t.CssHeapTotalBytes,
			t.MssHeapUsedBytes, t.MssHeapTotalBytes); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// TelemetryForRun returns a run's telemetry samples in time order.
func (db *DB) TelemetryForRun(runID string) ([]TelemetryRow, error) {
	rows, err := db.Query(
		`SELECT run_id, taken_unix_nanos,
		        chip_temp_c, temp_css, temp_mss, temp_upa, temp_dss,
		        css_cpu, mss_cpu,
		        ddr_used_bytes, ddr_total_bytes, cmx_used_bytes, cmx_total_bytes,
		        css_heap_used_bytes, css_heap_total_bytes,
		        mss_heap_used_bytes, mss_heap_total_bytes
		 FROM telemetry WHERE run_id = ? ORDER BY taken_unix_nanos`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TelemetryRow
	for rows.Next() {
		var t TelemetryRow
		if err := rows.Scan(&t.RunID, &t.TakenNanos,
			&t.ChipTempC, &t.TempCss, &t.TempMss, &t.TempUpa, &t.TempDss,
			&t.CssCpu, &t.MssCpu,
			&t.DdrUsedBytes, &t.DdrTotalBytes, &t.CmxUsedBytes, &t.CmxTotalBytes,
			&t.CssHeapUsedBytes, &t.CssHeapTotalBytes,
			&t.MssHeapUsedBytes, &t.MssHeapTotalBytes); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// RateRow is one per-stream throughput sample.
type RateRow struct {
	RunID        string
	TakenNanos   int64
	Stream       string
	FramesPerSec float64
	MBPerSec     float64
	TotalFrames  int64
}

// InsertRates writes a batch of throughput samples in one transaction.
func (db *DB) InsertRates(rows []RateRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO stream_rates (run_id, taken_unix_nanos, stream, frames_per_sec, mb_per_sec, total_frames)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.Exec(r.RunID, r.TakenNanos, r.Stream,
			r.FramesPerSec, r.MBPerSec, r.TotalFrames); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RatesForRun returns a run's throughput samples in time order,
// optionally filtered to one stream (empty means all).
func (db *DB) RatesForRun(runID, stream string) ([]RateRow, error) {
	query := `SELECT run_id, taken_unix_nanos, stream, frames_per_sec, mb_per_sec, total_frames
	          FROM stream_rates WHERE run_id = ?`
	args := []any{runID}
	if stream != "" {
		query += ` AND stream = ?`
		args = append(args, stream)
	}
	query += ` ORDER BY taken_unix_nanos`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RateRow
	for rows.Next() {
		var r RateRow
		if err := rows.Scan(&r.RunID, &r.TakenNanos, &r.Stream,
			&r.FramesPerSec, &r.MBPerSec, &r.TotalFrames); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// EventRow is one operator or lifecycle event during a run.
type EventRow struct {
	RunID      string
	TakenNanos int64
	Kind       string
	Detail     string
}

// Taken returns the event time.
func (e EventRow) Taken() time.Time { return time.Unix(0, e.TakenNanos) }

// InsertEvent writes one event.
func (db *DB) InsertEvent(e EventRow) error {
	_, err := db.Exec(
		`INSERT INTO events (run_id, taken_unix_nanos, kind, detail) VALUES (?, ?, ?, ?)`,
		e.RunID, e.TakenNanos, e.Kind, e.Detail)
	return err
}

// EventsForRun returns a run's events in time order.
func (db *DB) EventsForRun(runID string) ([]EventRow, error) {
	rows, err := db.Query(
		`SELECT run_id, taken_unix_nanos, kind, detail
		 FROM events WHERE run_id = ? ORDER BY taken_unix_nanos`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(&e.RunID, &e.TakenNanos, &e.Kind, &e.Detail); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AttachAdminRoutes mounts live SQL debugging and a backup endpoint
// under /debug/.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://stress.db", db.DB, &tailsql.DBOptions{
		Label: "Stress DB",
	})

	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}

package history

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lucasnoah/secretguard/internal/report"
	"github.com/lucasnoah/secretguard/internal/scan"
)

const (
	StatusClean    = "clean"
	StatusFindings = "findings"
	StatusFailed   = "failed"
)

// ScanRun represents a row in the scan_runs table.
type ScanRun struct {
	ID            int64
	Workspace     string
	BinaryPath    string
	Origin        string
	Status        string
	ExitCode      *int
	DurationMs    int64
	FindingCount  int
	ParseFailures int
	Error         string
	ArtifactDir   string
	StartedAt     time.Time

	// Findings is populated by GetScan only.
	Findings []scan.Finding
}

// FromOutcome builds the row for a finished scan. outcome may be nil when
// the scan failed before the scanner was spawned. With redact set, matched
// text is masked before it reaches the database.
func FromOutcome(workspace string, outcome *scan.ScanOutcome, scanErr error, redact bool) *ScanRun {
	run := &ScanRun{
		Workspace: workspace,
		Status:    StatusClean,
		StartedAt: time.Now().UTC(),
	}
	if outcome != nil {
		run.Workspace = outcome.Workspace
		run.BinaryPath = outcome.Binary.ExecutablePath
		run.Origin = string(outcome.Binary.Origin)
		code := outcome.ExitCode
		run.ExitCode = &code
		run.DurationMs = outcome.Duration.Milliseconds()
		run.FindingCount = len(outcome.Findings)
		run.ParseFailures = len(outcome.ParseFailures)
		if !outcome.StartedAt.IsZero() {
			run.StartedAt = outcome.StartedAt.UTC()
		}
		run.Findings = outcome.Findings
		if redact {
			run.Findings = report.RedactFindings(outcome.Findings)
		}
		if len(outcome.Findings) > 0 {
			run.Status = StatusFindings
		}
	}
	if scanErr != nil {
		run.Status = StatusFailed
		run.Error = scanErr.Error()
	}
	return run
}

// RecordScan inserts a scan run and its findings, returning the new id.
func (d *DB) RecordScan(run *ScanRun) (int64, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRow(d.rebind(
		`INSERT INTO scan_runs (workspace, binary_path, origin, status, exit_code, duration_ms,
		   finding_count, parse_failures, error, artifact_dir, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		run.Workspace, nullString(run.BinaryPath), nullString(run.Origin), run.Status, run.ExitCode,
		run.DurationMs, run.FindingCount, run.ParseFailures, nullString(run.Error),
		nullString(run.ArtifactDir), run.StartedAt.UTC().Format(time.RFC3339Nano),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert scan run: %w", err)
	}

	insert := d.rebind(`INSERT INTO findings (scan_id, seq, file, line, kind, matched_text) VALUES (?, ?, ?, ?, ?, ?)`)
	for i, f := range run.Findings {
		if _, err := tx.Exec(insert, id, i, f.File, f.Line, f.Kind, f.MatchedText); err != nil {
			return 0, fmt.Errorf("insert finding %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit scan run: %w", err)
	}
	run.ID = id
	return id, nil
}

// SetArtifactDir records where a scan's raw output was written.
func (d *DB) SetArtifactDir(id int64, dir string) error {
	_, err := d.conn.Exec(d.rebind(`UPDATE scan_runs SET artifact_dir = ? WHERE id = ?`), dir, id)
	if err != nil {
		return fmt.Errorf("set artifact dir: %w", err)
	}
	return nil
}

const scanColumns = `id, workspace, binary_path, origin, status, exit_code, duration_ms,
	finding_count, parse_failures, error, artifact_dir, started_at`

// ListScans returns recent runs, newest first. An empty workspace lists
// every workspace; limit <= 0 means no limit.
func (d *DB) ListScans(workspace string, limit int) ([]ScanRun, error) {
	q := `SELECT ` + scanColumns + ` FROM scan_runs`
	var args []interface{}
	if workspace != "" {
		q += ` WHERE workspace = ?`
		args = append(args, workspace)
	}
	q += ` ORDER BY id DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.conn.Query(d.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var runs []ScanRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list scans: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetScan returns one run with its findings, or nil if it does not exist.
func (d *DB) GetScan(id int64) (*ScanRun, error) {
	row := d.conn.QueryRow(d.rebind(`SELECT `+scanColumns+` FROM scan_runs WHERE id = ?`), id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scan %d: %w", id, err)
	}

	rows, err := d.conn.Query(d.rebind(`SELECT file, line, kind, matched_text FROM findings WHERE scan_id = ? ORDER BY seq`), id)
	if err != nil {
		return nil, fmt.Errorf("get findings for scan %d: %w", id, err)
	}
	defer rows.Close()

	run.Findings = []scan.Finding{}
	for rows.Next() {
		var f scan.Finding
		if err := rows.Scan(&f.File, &f.Line, &f.Kind, &f.MatchedText); err != nil {
			return nil, fmt.Errorf("scan finding row: %w", err)
		}
		run.Findings = append(run.Findings, f)
	}
	return run, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*ScanRun, error) {
	var (
		r           ScanRun
		binaryPath  sql.NullString
		origin      sql.NullString
		exitCode    sql.NullInt64
		errText     sql.NullString
		artifactDir sql.NullString
		startedAt   string
	)
	err := row.Scan(&r.ID, &r.Workspace, &binaryPath, &origin, &r.Status, &exitCode, &r.DurationMs,
		&r.FindingCount, &r.ParseFailures, &errText, &artifactDir, &startedAt)
	if err != nil {
		return nil, err
	}
	r.BinaryPath = binaryPath.String
	r.Origin = origin.String
	r.Error = errText.String
	r.ArtifactDir = artifactDir.String
	if exitCode.Valid {
		v := int(exitCode.Int64)
		r.ExitCode = &v
	}
	if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
		r.StartedAt = t
	}
	return &r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

package history

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/lucasnoah/secretguard/internal/binary"
	"github.com/lucasnoah/secretguard/internal/scan"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := d.Migrate(); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func sampleOutcome(workspace string) *scan.ScanOutcome {
	return &scan.ScanOutcome{
		Workspace: workspace,
		Binary:    binary.Resolved{ExecutablePath: "/usr/local/bin/secret_scanner", Origin: binary.OriginGlobalInstall},
		ExitCode:  1,
		Findings: []scan.Finding{
			{File: "src/a.py", Line: 10, Kind: "api_key", MatchedText: "sk-1234567890"},
			{File: "src/a.py", Line: 10, Kind: "api_key", MatchedText: "sk-1234567890"},
		},
		ParseFailures: []scan.ParseRecoveryFailure{{Line: `{"file":`}},
		StartedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration:      1500 * time.Millisecond,
	}
}

func TestMigrate(t *testing.T) {
	d, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()

	if err := d.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, table := range []string{"schema_version", "scan_runs", "findings"} {
		var name string
		err := d.conn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
	if err := d.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	var count int
	d.conn.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count)
	if count != 1 {
		t.Errorf("expected 1 schema_version row, got %d", count)
	}
}

func TestOpen_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	d, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()
	if d.Dialect() != SQLite {
		t.Errorf("dialect = %s", d.Dialect())
	}
}

func TestRecordAndGetScan(t *testing.T) {
	d := testDB(t)
	run := FromOutcome("/ignored", sampleOutcome("/work/repo"), nil, false)

	id, err := d.RecordScan(run)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if id == 0 || run.ID != id {
		t.Fatalf("id = %d, run.ID = %d", id, run.ID)
	}

	got, err := d.GetScan(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected scan, got nil")
	}
	if got.Workspace != "/work/repo" || got.Status != StatusFindings || got.Origin != "global-install" {
		t.Errorf("run = %+v", got)
	}
	if got.ExitCode == nil || *got.ExitCode != 1 {
		t.Errorf("exit code = %v", got.ExitCode)
	}
	if got.DurationMs != 1500 || got.FindingCount != 2 || got.ParseFailures != 1 {
		t.Errorf("counters = %d/%d/%d", got.DurationMs, got.FindingCount, got.ParseFailures)
	}
	if !got.StartedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("started at = %s", got.StartedAt)
	}
	if len(got.Findings) != 2 || got.Findings[1].MatchedText != "sk-1234567890" {
		t.Errorf("findings = %+v", got.Findings)
	}
}

func TestRecordScan_Redacts(t *testing.T) {
	d := testDB(t)
	id, err := d.RecordScan(FromOutcome("", sampleOutcome("/w"), nil, true))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	got, _ := d.GetScan(id)
	if got.Findings[0].MatchedText == "sk-1234567890" {
		t.Error("matched text stored unredacted")
	}
}

func TestRecordScan_FailureWithoutOutcome(t *testing.T) {
	d := testDB(t)
	run := FromOutcome("/w", nil, errors.New("scanner binary not found"), true)
	id, err := d.RecordScan(run)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	got, _ := d.GetScan(id)
	if got.Status != StatusFailed || got.Error != "scanner binary not found" {
		t.Errorf("run = %+v", got)
	}
	if got.ExitCode != nil {
		t.Errorf("exit code should be NULL, got %d", *got.ExitCode)
	}
	if len(got.Findings) != 0 {
		t.Errorf("findings = %+v", got.Findings)
	}
}

func TestRecordScan_Clean(t *testing.T) {
	d := testDB(t)
	o := sampleOutcome("/w")
	o.Findings = []scan.Finding{}
	id, _ := d.RecordScan(FromOutcome("", o, nil, true))
	got, _ := d.GetScan(id)
	if got.Status != StatusClean {
		t.Errorf("status = %s, want clean", got.Status)
	}
}

func TestGetScan_Missing(t *testing.T) {
	d := testDB(t)
	got, err := d.GetScan(42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestListScans(t *testing.T) {
	d := testDB(t)
	for _, ws := range []string{"/a", "/b", "/a", "/a"} {
		if _, err := d.RecordScan(FromOutcome("", sampleOutcome(ws), nil, true)); err != nil {
			t.Fatal(err)
		}
	}

	all, err := d.ListScans("", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 runs, got %d", len(all))
	}
	if all[0].ID < all[1].ID {
		t.Error("runs should be newest first")
	}

	filtered, err := d.ListScans("/a", 2)
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(filtered) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(filtered))
	}
	for _, r := range filtered {
		if r.Workspace != "/a" {
			t.Errorf("unexpected workspace %s", r.Workspace)
		}
	}
}

func TestSetArtifactDir(t *testing.T) {
	d := testDB(t)
	id, _ := d.RecordScan(FromOutcome("", sampleOutcome("/w"), nil, true))
	if err := d.SetArtifactDir(id, "/tmp/scans/1"); err != nil {
		t.Fatalf("set artifact dir: %v", err)
	}
	got, _ := d.GetScan(id)
	if got.ArtifactDir != "/tmp/scans/1" {
		t.Errorf("artifact dir = %q", got.ArtifactDir)
	}
}

func TestReset(t *testing.T) {
	d := testDB(t)
	d.RecordScan(FromOutcome("", sampleOutcome("/w"), nil, true))
	if err := d.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	runs, err := d.ListScans("", 0)
	if err != nil {
		t.Fatalf("list after reset: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected empty history, got %d", len(runs))
	}
}

func TestRebind(t *testing.T) {
	q := "SELECT * FROM t WHERE a = ? AND b = ?"
	if got := rebind(SQLite, q); got != q {
		t.Errorf("sqlite rebind changed query: %s", got)
	}
	if got := rebind(Postgres, q); got != "SELECT * FROM t WHERE a = $1 AND b = $2" {
		t.Errorf("postgres rebind = %s", got)
	}
}

func TestIsPostgresDSN(t *testing.T) {
	tests := map[string]bool{
		"postgres://u@localhost/db":   true,
		"postgresql://u@localhost/db": true,
		"/home/u/.secretguard/h.db":   false,
		":memory:":                    false,
	}
	for dsn, want := range tests {
		if got := IsPostgresDSN(dsn); got != want {
			t.Errorf("IsPostgresDSN(%q) = %v, want %v", dsn, got, want)
		}
	}
}

package scan

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lucasnoah/secretguard/internal/binary"
	"github.com/lucasnoah/secretguard/internal/progress"
)

// mockCmd records calls and replays configured output.
type mockCmd struct {
	mu    sync.Mutex
	calls []mockCall

	stdoutChunks []string
	stderr       string
	exitCode     int
	err          error

	// holdDir blocks runs in that directory until hold is closed or ctx ends.
	holdDir string
	hold    chan struct{}
	started chan struct{}
}

type mockCall struct {
	Dir  string
	Name string
	Args []string
}

func (m *mockCmd) Run(ctx context.Context, dir, name string, args []string, stdout, stderr io.Writer) (int, error) {
	m.mu.Lock()
	m.calls = append(m.calls, mockCall{Dir: dir, Name: name, Args: args})
	m.mu.Unlock()

	if m.err != nil {
		return -1, m.err
	}
	for _, c := range m.stdoutChunks {
		stdout.Write([]byte(c))
	}
	if m.stderr != "" {
		stderr.Write([]byte(m.stderr))
	}
	if m.hold != nil && (m.holdDir == "" || m.holdDir == dir) {
		if m.started != nil {
			m.started <- struct{}{}
		}
		select {
		case <-m.hold:
		case <-ctx.Done():
			return -1, ctx.Err()
		}
	}
	return m.exitCode, nil
}

func (m *mockCmd) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type stubResolver struct {
	res   *binary.Resolved
	err   error
	calls int
}

func (s *stubResolver) Resolve(ctx context.Context, workspaceRoot string, hooks progress.Hooks) (*binary.Resolved, error) {
	s.calls++
	return s.res, s.err
}

func okResolver() *stubResolver {
	return &stubResolver{res: &binary.Resolved{ExecutablePath: "/opt/bin/secret_scanner", Origin: binary.OriginPath}}
}

// logSink captures hook log lines.
type logSink struct {
	mu    sync.Mutex
	lines []string
}

func (l *logSink) hooks() progress.Hooks {
	return progress.Hooks{Log: func(line string) {
		l.mu.Lock()
		l.lines = append(l.lines, line)
		l.mu.Unlock()
	}}
}

func (l *logSink) contains(s string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

func newTestScanner(cmd CommandRunner, timeout time.Duration, overlap Overlap) *Scanner {
	return NewScanner(okResolver(), NewRunner(cmd, timeout, nil), overlap, nil)
}

func TestScan_EndToEnd(t *testing.T) {
	root := t.TempDir()
	mock := &mockCmd{
		stdoutChunks: []string{
			"noise\n{\"file\":\"./src/a.py\",\"li",
			"ne\":10,\"type\":\"api_key\",\"match\":\"sk-123\"}\nSecrets found: 1\n",
		},
		exitCode: 1,
	}
	sink := &logSink{}
	outcome, err := newTestScanner(mock, 0, OverlapWait).Scan(context.Background(), root, sink.hooks())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Finding{{File: "src/a.py", Line: 10, Kind: "api_key", MatchedText: "sk-123"}}
	if !reflect.DeepEqual(outcome.Findings, want) {
		t.Errorf("findings = %+v, want %+v", outcome.Findings, want)
	}
	if outcome.ExitCode != 1 {
		t.Errorf("exit code = %d, want 1", outcome.ExitCode)
	}
	// Suppression is denylist-only: "noise" is not on the list, so it is forwarded.
	if !reflect.DeepEqual(outcome.DiagnosticText, []string{"noise"}) {
		t.Errorf("diagnostic text = %q", outcome.DiagnosticText)
	}
	if !strings.Contains(outcome.RawOutput, "Secrets found: 1") {
		t.Error("raw output should keep every line")
	}
	if sink.contains("Secrets found") {
		t.Error("summary line should be suppressed from the log")
	}
	if !sink.contains("Found api_key in src/a.py:10") {
		t.Errorf("missing finding log line, got %q", sink.lines)
	}

	if mock.callCount() != 1 {
		t.Fatalf("expected 1 call, got %d", mock.callCount())
	}
	call := mock.calls[0]
	if call.Dir != root || call.Name != "/opt/bin/secret_scanner" || !reflect.DeepEqual(call.Args, []string{root}) {
		t.Errorf("call = %+v", call)
	}
}

func TestScan_ExitOneWithoutFindingsIsClean(t *testing.T) {
	mock := &mockCmd{stdoutChunks: []string{"Scanning files...\n"}, exitCode: 1}
	outcome, err := newTestScanner(mock, 0, OverlapWait).Scan(context.Background(), t.TempDir(), progress.Hooks{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Findings == nil || len(outcome.Findings) != 0 {
		t.Errorf("findings = %#v, want empty slice", outcome.Findings)
	}
	if !outcome.Clean() {
		t.Error("expected clean outcome")
	}
}

func TestScan_NonRecoverableExit(t *testing.T) {
	mock := &mockCmd{stderr: "\x1b[31mboom\x1b[0m\n", exitCode: 2}
	outcome, err := newTestScanner(mock, 0, OverlapWait).Scan(context.Background(), t.TempDir(), progress.Hooks{})

	var exitErr *NonRecoverableExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected NonRecoverableExitError, got %v", err)
	}
	if exitErr.ExitCode != 2 || exitErr.Stderr != "boom" {
		t.Errorf("exit error = %+v", exitErr)
	}
	if !strings.Contains(err.Error(), "exited with code 2") {
		t.Errorf("message = %q", err.Error())
	}
	if outcome == nil || outcome.ExitCode != 2 {
		t.Errorf("expected partial outcome with exit code 2, got %+v", outcome)
	}
}

func TestScan_SpawnError(t *testing.T) {
	mock := &mockCmd{err: &SpawnError{Path: "/opt/bin/secret_scanner", Err: os.ErrPermission}}
	_, err := newTestScanner(mock, 0, OverlapWait).Scan(context.Background(), t.TempDir(), progress.Hooks{})

	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("expected SpawnError, got %v", err)
	}
	if !errors.Is(err, os.ErrPermission) {
		t.Error("SpawnError should unwrap to the OS error")
	}
	var exitErr *NonRecoverableExitError
	if errors.As(err, &exitErr) {
		t.Error("spawn failure must not look like an exit failure")
	}
}

func TestScan_ResolverErrorAbortsBeforeSpawn(t *testing.T) {
	mock := &mockCmd{}
	s := NewScanner(&stubResolver{err: binary.ErrPlatformUnsupported}, NewRunner(mock, 0, nil), OverlapWait, nil)

	outcome, err := s.Scan(context.Background(), t.TempDir(), progress.Hooks{})
	if !errors.Is(err, binary.ErrPlatformUnsupported) {
		t.Fatalf("expected ErrPlatformUnsupported, got %v", err)
	}
	if outcome != nil {
		t.Error("expected no outcome")
	}
	if mock.callCount() != 0 {
		t.Errorf("process should not be spawned, got %d calls", mock.callCount())
	}
}

func TestScan_Timeout(t *testing.T) {
	mock := &mockCmd{hold: make(chan struct{})}
	_, err := newTestScanner(mock, 20*time.Millisecond, OverlapWait).Scan(context.Background(), t.TempDir(), progress.Hooks{})

	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if timeoutErr.Timeout != 20*time.Millisecond {
		t.Errorf("timeout = %s", timeoutErr.Timeout)
	}
}

func TestScan_CallerCancellation(t *testing.T) {
	mock := &mockCmd{hold: make(chan struct{})}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestScanner(mock, time.Minute, OverlapWait).Scan(ctx, t.TempDir(), progress.Hooks{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context error, got %v", err)
	}
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		t.Error("caller cancellation should not be reported as scan timeout")
	}
}

func TestScan_MalformedLineDoesNotSuppressOthers(t *testing.T) {
	mock := &mockCmd{
		stdoutChunks: []string{
			`{"file":"a.py","line":1,"type":"t","match":"one"}` + "\n",
			`{"file":"b.py","line":2,"type":"t"}` + "\n",
			`{"file":"a.py","line":1,"type":"t","match":"one"}` + "\n",
		},
		exitCode: 1,
	}
	sink := &logSink{}
	outcome, err := newTestScanner(mock, 0, OverlapWait).Scan(context.Background(), t.TempDir(), sink.hooks())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcome.Findings) != 2 {
		t.Errorf("expected duplicate findings to be kept, got %d", len(outcome.Findings))
	}
	if len(outcome.ParseFailures) != 1 {
		t.Errorf("expected 1 parse failure, got %d", len(outcome.ParseFailures))
	}
	if !sink.contains("Failed to parse JSON") {
		t.Error("unparseable line should be logged")
	}
}

func TestScan_OverlapReject(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()
	mock := &mockCmd{holdDir: root, hold: make(chan struct{}), started: make(chan struct{}, 1)}
	s := newTestScanner(mock, 0, OverlapReject)

	done := make(chan error, 1)
	go func() {
		_, err := s.Scan(context.Background(), root, progress.Hooks{})
		done <- err
	}()
	<-mock.started

	if _, err := s.Scan(context.Background(), root, progress.Hooks{}); !errors.Is(err, ErrScanInProgress) {
		t.Errorf("expected ErrScanInProgress, got %v", err)
	}
	if _, err := s.Scan(context.Background(), other, progress.Hooks{}); err != nil {
		t.Errorf("other workspace should not be blocked: %v", err)
	}

	close(mock.hold)
	if err := <-done; err != nil {
		t.Fatalf("first scan: %v", err)
	}
	if _, err := s.Scan(context.Background(), root, progress.Hooks{}); err != nil {
		t.Errorf("scan after release: %v", err)
	}
}

func TestScan_OverlapWaitHonorsContext(t *testing.T) {
	root := t.TempDir()
	mock := &mockCmd{holdDir: root, hold: make(chan struct{}), started: make(chan struct{}, 1)}
	s := newTestScanner(mock, 0, OverlapWait)

	done := make(chan error, 1)
	go func() {
		_, err := s.Scan(context.Background(), root, progress.Hooks{})
		done <- err
	}()
	<-mock.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Scan(ctx, root, progress.Hooks{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("queued scan should give up with the context, got %v", err)
	}

	close(mock.hold)
	if err := <-done; err != nil {
		t.Fatalf("first scan: %v", err)
	}
}

func TestScan_WorkspaceMustBeDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "f.txt")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	mock := &mockCmd{}
	if _, err := newTestScanner(mock, 0, OverlapWait).Scan(context.Background(), file, progress.Hooks{}); err == nil {
		t.Error("expected error for non-directory workspace")
	}
	if mock.callCount() != 0 {
		t.Error("process should not be spawned")
	}
}

func TestScanAll_IndependentRoots(t *testing.T) {
	good := t.TempDir()
	missing := filepath.Join(t.TempDir(), "gone")
	mock := &mockCmd{
		stdoutChunks: []string{`{"file":"k.txt","line":4,"type":"aws_key","match":"AKIA"}` + "\n"},
		exitCode:     1,
	}
	s := newTestScanner(mock, 0, OverlapWait)

	results := s.ScanAll(context.Background(), []string{good, missing, good}, 2, progress.Hooks{})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Root != good || results[0].Err != nil || len(results[0].Outcome.Findings) != 1 {
		t.Errorf("result[0] = %+v", results[0])
	}
	if results[1].Err == nil {
		t.Error("missing root should fail")
	}
	if results[2].Err != nil {
		t.Errorf("result[2] should succeed after waiting its turn: %v", results[2].Err)
	}
}

package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lucasnoah/secretguard/internal/binary"
	"github.com/lucasnoah/secretguard/internal/progress"
)

// Overlap decides what happens when a scan is requested for a workspace
// that is already being scanned.
type Overlap string

const (
	// OverlapWait queues the new scan behind the running one.
	OverlapWait Overlap = "wait"
	// OverlapReject fails the new scan with ErrScanInProgress.
	OverlapReject Overlap = "reject"
)

// BinaryResolver locates a runnable scanner executable.
type BinaryResolver interface {
	Resolve(ctx context.Context, workspaceRoot string, hooks progress.Hooks) (*binary.Resolved, error)
}

// Scanner is the resolve, run and parse pipeline. It holds no state
// between calls beyond the per-workspace guards.
type Scanner struct {
	resolver BinaryResolver
	runner   *Runner
	overlap  Overlap
	log      *zap.Logger

	mu     sync.Mutex
	guards map[string]chan struct{}
}

// NewScanner creates a Scanner.
func NewScanner(resolver BinaryResolver, runner *Runner, overlap Overlap, log *zap.Logger) *Scanner {
	if log == nil {
		log = zap.NewNop()
	}
	if overlap == "" {
		overlap = OverlapWait
	}
	return &Scanner{
		resolver: resolver,
		runner:   runner,
		overlap:  overlap,
		log:      log,
		guards:   make(map[string]chan struct{}),
	}
}

// Scan resolves the scanner binary, runs it against workspaceRoot and
// parses its output. Resolution errors abort before any process starts.
// When the process ran but failed, the partial outcome is returned along
// with the error.
func (s *Scanner) Scan(ctx context.Context, workspaceRoot string, hooks progress.Hooks) (*ScanOutcome, error) {
	root, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace %s is not a directory", root)
	}

	release, err := s.acquire(ctx, root)
	if err != nil {
		return nil, err
	}
	defer release()

	log := s.log.With(zap.String("workspace", root))
	hooks.Logf("Starting Secret Scanner...")
	hooks.Logf("Scanning workspace: %s", root)

	resolved, err := s.resolver.Resolve(ctx, root, hooks)
	if err != nil {
		log.Warn("scanner binary unavailable", zap.Error(err))
		return nil, err
	}
	log.Info("using scanner", zap.String("path", resolved.ExecutablePath), zap.String("origin", string(resolved.Origin)))
	hooks.Logf("Using scanner: %s", resolved.ExecutablePath)

	collector := NewCollector(root, hooks, log)
	started := time.Now()
	raw, runErr := s.runner.Run(ctx, resolved.ExecutablePath, root, collector.Stdout(), collector.Stderr())
	collector.Close()

	outcome := &ScanOutcome{
		Workspace: root,
		Binary:    *resolved,
		StartedAt: started,
	}
	collector.fill(outcome)
	if raw != nil {
		outcome.ExitCode = raw.ExitCode
		outcome.Duration = raw.Duration
	}
	if runErr != nil {
		log.Error("scan failed", zap.Error(runErr))
		return outcome, runErr
	}

	hooks.Logf("Scan completed with exit code: %d", outcome.ExitCode)
	hooks.Logf("Found %d potential secret%s", len(outcome.Findings), plural(len(outcome.Findings)))
	log.Info("scan complete",
		zap.Int("findings", len(outcome.Findings)),
		zap.Int("parse_failures", len(outcome.ParseFailures)),
		zap.Duration("duration", outcome.Duration))
	return outcome, nil
}

func (s *Scanner) acquire(ctx context.Context, root string) (func(), error) {
	s.mu.Lock()
	guard, ok := s.guards[root]
	if !ok {
		guard = make(chan struct{}, 1)
		s.guards[root] = guard
	}
	s.mu.Unlock()

	release := func() { <-guard }
	if s.overlap == OverlapReject {
		select {
		case guard <- struct{}{}:
			return release, nil
		default:
			return nil, ErrScanInProgress
		}
	}
	select {
	case guard <- struct{}{}:
		return release, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

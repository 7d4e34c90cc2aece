package scan

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/lucasnoah/secretguard/internal/progress"
)

// RootResult pairs a workspace root with its scan result.
type RootResult struct {
	Root    string
	Outcome *ScanOutcome
	Err     error
}

// ScanAll scans several workspace roots, at most parallel at a time. A
// failure in one root does not stop the others; results keep the input
// order.
func (s *Scanner) ScanAll(ctx context.Context, roots []string, parallel int, hooks progress.Hooks) []RootResult {
	results := make([]RootResult, len(roots))
	if parallel < 1 {
		parallel = 1
	}

	var g errgroup.Group
	g.SetLimit(parallel)
	for i, root := range roots {
		g.Go(func() error {
			outcome, err := s.Scan(ctx, root, hooks)
			results[i] = RootResult{Root: root, Outcome: outcome, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

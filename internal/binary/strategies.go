package binary

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/lucasnoah/secretguard/internal/fsutil"
	"github.com/lucasnoah/secretguard/internal/progress"
	"go.uber.org/zap"
)

// PathLookup searches the executable search path. A PATH hit is trusted
// as-is and never checksummed.
type PathLookup struct {
	BinaryName string
	LookPath   func(file string) (string, error) // defaults to exec.LookPath
}

func (p *PathLookup) Name() string { return "path" }

func (p *PathLookup) Resolve(ctx context.Context, workspaceRoot string, hooks progress.Hooks) (*Resolved, error) {
	look := p.LookPath
	if look == nil {
		look = exec.LookPath
	}
	path, err := look(p.BinaryName)
	if err != nil || strings.TrimSpace(path) == "" {
		return nil, ErrNotFound
	}
	hooks.Logf("Found scanner in PATH: %s", path)
	return &Resolved{ExecutablePath: path, Origin: OriginPath}, nil
}

// GlobalInstall probes fixed absolute install locations.
type GlobalInstall struct {
	Paths []string
	log   *zap.Logger
}

func (g *GlobalInstall) Name() string { return "global-install" }

func (g *GlobalInstall) Resolve(ctx context.Context, workspaceRoot string, hooks progress.Hooks) (*Resolved, error) {
	return probe(g.Paths, OriginGlobalInstall, true, hooks, g.log)
}

// WorkspaceBuild probes build outputs relative to the workspace root. The
// files belong to the workspace, so their mode is left alone.
type WorkspaceBuild struct {
	Relative []string
	log      *zap.Logger
}

func (w *WorkspaceBuild) Name() string { return "workspace-build" }

func (w *WorkspaceBuild) Resolve(ctx context.Context, workspaceRoot string, hooks progress.Hooks) (*Resolved, error) {
	if workspaceRoot == "" {
		return nil, ErrNotFound
	}
	paths := make([]string, 0, len(w.Relative))
	for _, rel := range w.Relative {
		paths = append(paths, filepath.Join(workspaceRoot, rel))
	}
	return probe(paths, OriginWorkspaceBuild, false, hooks, w.log)
}

func probe(paths []string, origin Origin, chmod bool, hooks progress.Hooks, log *zap.Logger) (*Resolved, error) {
	if log == nil {
		log = zap.NewNop()
	}
	for _, p := range paths {
		if !fsutil.Exists(p) {
			continue
		}
		if chmod {
			if err := MakeExecutable(p); err != nil {
				log.Warn("could not mark scanner executable", zap.String("path", p), zap.Error(err))
			}
		}
		hooks.Logf("Found scanner: %s", p)
		return &Resolved{ExecutablePath: p, Origin: origin}, nil
	}
	return nil, ErrNotFound
}

// LocalCache reuses a previously provisioned binary after re-verifying it.
// A cached file that fails verification is deleted.
type LocalCache struct {
	Path        string
	Platform    string
	Descriptors Descriptors
	log         *zap.Logger
}

func (l *LocalCache) Name() string { return "local-cache" }

func (l *LocalCache) Resolve(ctx context.Context, workspaceRoot string, hooks progress.Hooks) (*Resolved, error) {
	log := l.log
	if log == nil {
		log = zap.NewNop()
	}
	if !fsutil.Exists(l.Path) {
		return nil, ErrNotFound
	}
	desc, ok := l.Descriptors.Lookup(l.Platform)
	if !ok {
		// Nothing to verify against, so the cached file cannot be trusted.
		return nil, ErrNotFound
	}

	if err := Verify(l.Path, desc.ExpectedChecksum); err != nil {
		var verr *VerificationError
		if errors.As(err, &verr) {
			hooks.Logf("Cached scanner failed integrity check and was removed: %s", l.Path)
			log.Warn("removed corrupted cached binary",
				zap.String("path", l.Path),
				zap.String("expected", verr.Expected),
				zap.String("actual", verr.Actual))
		} else {
			log.Warn("could not verify cached binary", zap.String("path", l.Path), zap.Error(err))
		}
		return nil, ErrNotFound
	}

	if err := MakeExecutable(l.Path); err != nil {
		log.Warn("could not mark cached scanner executable", zap.String("path", l.Path), zap.Error(err))
	}
	hooks.Logf("Found local scanner: %s", l.Path)
	return &Resolved{ExecutablePath: l.Path, Origin: OriginLocalCache}, nil
}

// Download provisions a fresh verified binary.
type Download struct {
	Provisioner *Provisioner
	Platform    string
}

func (d *Download) Name() string { return "download" }

func (d *Download) Resolve(ctx context.Context, workspaceRoot string, hooks progress.Hooks) (*Resolved, error) {
	hooks.Logf("Scanner not found. Downloading...")
	return d.Provisioner.Provision(ctx, d.Platform, hooks)
}

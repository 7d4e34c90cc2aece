package binary

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lucasnoah/secretguard/internal/progress"
	"go.uber.org/zap"
)

// Strategy is one way of producing a runnable scanner. A strategy that
// finds nothing returns an error matching ErrNotFound; any other error
// aborts resolution.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, workspaceRoot string, hooks progress.Hooks) (*Resolved, error)
}

// Mode selects which acquisition strategies a resolver may use.
type Mode string

const (
	ModeAuto     Mode = "auto"
	ModePathOnly Mode = "path-only"
)

// Options configures the default strategy list.
type Options struct {
	Mode           Mode
	BinaryName     string
	GlobalPaths    []string
	WorkspacePaths []string
	Platform       string
	Descriptors    Descriptors
	Provisioner    *Provisioner // required for ModeAuto
}

// Resolver walks an ordered list of strategies and stops at the first hit.
type Resolver struct {
	strategies  []Strategy
	platform    string
	descriptors Descriptors
	log         *zap.Logger
}

// NewResolver creates a Resolver over an explicit strategy list.
func NewResolver(log *zap.Logger, platform string, descriptors Descriptors, strategies ...Strategy) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		strategies:  strategies,
		platform:    platform,
		descriptors: descriptors,
		log:         log,
	}
}

// NewDefaultResolver builds the standard order: PATH and global install
// dirs, then either workspace build outputs (path-only mode) or the verified
// local cache and a fresh download (auto mode). Files inside the scanned
// workspace are never run unverified in auto mode.
func NewDefaultResolver(log *zap.Logger, opts Options) (*Resolver, error) {
	if log == nil {
		log = zap.NewNop()
	}
	name := opts.BinaryName
	if name == "" {
		name = DefaultName
	}

	strategies := []Strategy{
		&PathLookup{BinaryName: name},
		&GlobalInstall{Paths: opts.GlobalPaths, log: log},
	}

	switch opts.Mode {
	case ModePathOnly:
		strategies = append(strategies, &WorkspaceBuild{Relative: opts.WorkspacePaths, log: log})
	case ModeAuto, "":
		if opts.Provisioner == nil {
			return nil, errors.New("auto mode requires a provisioner")
		}
		strategies = append(strategies,
			&LocalCache{
				Path:        opts.Provisioner.CachePath(),
				Platform:    opts.Platform,
				Descriptors: opts.Descriptors,
				log:         log,
			},
			&Download{Provisioner: opts.Provisioner, Platform: opts.Platform},
		)
	default:
		return nil, fmt.Errorf("unknown resolver mode %q", opts.Mode)
	}

	return NewResolver(log, opts.Platform, opts.Descriptors, strategies...), nil
}

// Resolve returns the first binary any strategy produces. When all of them
// come up empty the error is ErrPlatformUnsupported if this platform has no
// release artifact, ErrNotFound otherwise.
func (r *Resolver) Resolve(ctx context.Context, workspaceRoot string, hooks progress.Hooks) (*Resolved, error) {
	for _, s := range r.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := s.Resolve(ctx, workspaceRoot, hooks)
		if err == nil {
			r.log.Debug("resolved scanner binary",
				zap.String("strategy", s.Name()),
				zap.String("path", res.ExecutablePath),
				zap.String("origin", string(res.Origin)))
			return res, nil
		}
		if errors.Is(err, ErrPlatformUnsupported) {
			return nil, err
		}
		if errors.Is(err, ErrNotFound) {
			r.log.Debug("strategy found nothing", zap.String("strategy", s.Name()))
			continue
		}
		return nil, fmt.Errorf("resolve via %s: %w", s.Name(), err)
	}

	if _, ok := r.descriptors.Lookup(r.platform); !ok {
		return nil, ErrPlatformUnsupported
	}
	return nil, ErrNotFound
}

// DefaultGlobalPaths lists the package-manager and user-local locations a
// hand-installed scanner usually lives in.
func DefaultGlobalPaths(name string) []string {
	paths := []string{
		filepath.Join("/usr/local/bin", name),
		filepath.Join("/usr/bin", name),
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".local", "bin", name),
			filepath.Join(home, "bin", name),
		)
	}
	return paths
}

// DefaultWorkspacePaths lists build-output locations relative to the
// workspace root, for people developing the scanner itself.
func DefaultWorkspacePaths(name string) []string {
	return []string{
		filepath.Join("build", name),
		filepath.Join("scanner-core", "build", name),
		name,
	}
}

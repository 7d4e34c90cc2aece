package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/secretguard/internal/binary"
	"github.com/lucasnoah/secretguard/internal/config"
	"github.com/lucasnoah/secretguard/internal/history"
	"github.com/lucasnoah/secretguard/internal/progress"
	"github.com/lucasnoah/secretguard/internal/scan"
)

// validConfig rejects a configuration with validation errors.
func validConfig(cfg *config.Config) error {
	errs := config.Validate(cfg)
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration: %v (run `secretguard config validate`)", errs[0])
}

func newProvisioner(cfg *config.Config) *binary.Provisioner {
	globalDir := ""
	if cfg.InstallGlobal() {
		globalDir = cfg.Download.GlobalBinDir
	}
	return binary.NewProvisioner(logger, binary.ProvisionerOptions{
		CacheDir:     cfg.Storage.Dir,
		BinaryName:   cfg.Scanner.BinaryName,
		GlobalBinDir: globalDir,
		Descriptors:  cfg.Platforms,
		IdleTimeout:  cfg.IdleTimeout(),
		MaxRedirects: cfg.Redirects(),
	})
}

func newResolver(cfg *config.Config) (*binary.Resolver, error) {
	return binary.NewDefaultResolver(logger, binary.Options{
		Mode:           binary.Mode(cfg.Scanner.Mode),
		BinaryName:     cfg.Scanner.BinaryName,
		GlobalPaths:    cfg.Scanner.GlobalPaths,
		WorkspacePaths: cfg.Scanner.WorkspacePaths,
		Platform:       binary.CurrentPlatform(),
		Descriptors:    cfg.Platforms,
		Provisioner:    newProvisioner(cfg),
	})
}

func newScanner(cfg *config.Config, timeout time.Duration) (*scan.Scanner, error) {
	resolver, err := newResolver(cfg)
	if err != nil {
		return nil, err
	}
	runner := scan.NewRunner(&scan.ExecRunner{Log: logger}, timeout, logger)
	return scan.NewScanner(resolver, runner, scan.Overlap(cfg.Scanner.Overlap), logger), nil
}

// openHistory opens and migrates the history DB, returning it with a
// cleanup func.
func openHistory(cfg *config.Config) (*history.DB, func(), error) {
	dsn := cfg.Storage.Database
	if dsn == "" {
		dsn = history.DefaultPath(cfg.Storage.Dir)
	}
	d, err := history.Open(dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := d.Migrate(); err != nil {
		d.Close()
		return nil, nil, err
	}
	return d, func() { d.Close() }, nil
}

// cliHooks routes operator log lines and download progress to w. Progress
// is printed when the whole-percent value changes, or every MiB when the
// total is unknown.
func cliHooks(w io.Writer, quiet bool) progress.Hooks {
	if quiet {
		return progress.Hooks{}
	}
	var (
		mu        sync.Mutex
		lastPct   = -1
		lastBytes int64
	)
	return progress.Hooks{
		Log: func(line string) {
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintln(w, line)
		},
		Progress: func(u progress.Update) {
			mu.Lock()
			defer mu.Unlock()
			if pct, ok := u.Percent(); ok {
				if pct == lastPct {
					return
				}
				lastPct = pct
			} else {
				if u.Done-lastBytes < 1<<20 {
					return
				}
				lastBytes = u.Done
			}
			fmt.Fprintln(w, u.String())
		},
	}
}

func stderrHooks(cmd *cobra.Command, quiet bool) progress.Hooks {
	return cliHooks(cmd.ErrOrStderr(), quiet)
}

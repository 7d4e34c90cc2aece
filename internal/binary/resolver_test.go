package binary

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/lucasnoah/secretguard/internal/progress"
)

// stubStrategy returns a fixed result and records calls.
type stubStrategy struct {
	name  string
	res   *Resolved
	err   error
	calls int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Resolve(ctx context.Context, root string, hooks progress.Hooks) (*Resolved, error) {
	s.calls++
	return s.res, s.err
}

func testDescriptors() Descriptors {
	return Descriptors{"linux": {Name: "x", ExpectedChecksum: digestOf([]byte("good")), DownloadURL: "https://example.com/x"}}
}

func TestResolverStopsAtFirstHit(t *testing.T) {
	first := &stubStrategy{name: "a", err: ErrNotFound}
	second := &stubStrategy{name: "b", res: &Resolved{ExecutablePath: "/bin/x", Origin: OriginGlobalInstall}}
	third := &stubStrategy{name: "c", res: &Resolved{ExecutablePath: "/other"}}

	r := NewResolver(nil, "linux", testDescriptors(), first, second, third)
	res, err := r.Resolve(context.Background(), "/ws", progress.Hooks{})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if res.ExecutablePath != "/bin/x" || res.Origin != OriginGlobalInstall {
		t.Errorf("res = %+v", res)
	}
	if third.calls != 0 {
		t.Error("strategies after a hit must not run")
	}
}

func TestResolverNotFound(t *testing.T) {
	r := NewResolver(nil, "linux", testDescriptors(), &stubStrategy{name: "a", err: ErrNotFound})
	_, err := r.Resolve(context.Background(), "/ws", progress.Hooks{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if errors.Is(err, ErrPlatformUnsupported) {
		t.Error("supported platform should give plain NotFound")
	}
}

func TestResolverPlatformUnsupported(t *testing.T) {
	r := NewResolver(nil, "plan9", testDescriptors(), &stubStrategy{name: "a", err: ErrNotFound})
	_, err := r.Resolve(context.Background(), "/ws", progress.Hooks{})
	if !errors.Is(err, ErrPlatformUnsupported) {
		t.Fatalf("expected ErrPlatformUnsupported, got %v", err)
	}
}

func TestResolverAbortsOnHardError(t *testing.T) {
	boom := &DownloadError{URL: "https://example.com", StatusCode: 500}
	after := &stubStrategy{name: "after", res: &Resolved{}}
	r := NewResolver(nil, "linux", testDescriptors(), &stubStrategy{name: "dl", err: boom}, after)

	_, err := r.Resolve(context.Background(), "/ws", progress.Hooks{})
	var derr *DownloadError
	if !errors.As(err, &derr) {
		t.Fatalf("expected *DownloadError, got %v", err)
	}
	if after.calls != 0 {
		t.Error("resolution must stop on a hard error")
	}
}

func TestResolverCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &stubStrategy{name: "a", res: &Resolved{}}
	r := NewResolver(nil, "linux", testDescriptors(), s)
	if _, err := r.Resolve(ctx, "/ws", progress.Hooks{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if s.calls != 0 {
		t.Error("no strategy should run after cancellation")
	}
}

func TestPathLookup(t *testing.T) {
	var logged []string
	hooks := progress.Hooks{Log: func(l string) { logged = append(logged, l) }}

	p := &PathLookup{BinaryName: "secret_scanner", LookPath: func(string) (string, error) {
		return "/usr/local/bin/secret_scanner", nil
	}}
	res, err := p.Resolve(context.Background(), "", hooks)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if res.Origin != OriginPath {
		t.Errorf("origin = %q", res.Origin)
	}
	if len(logged) != 1 {
		t.Errorf("expected one log line, got %v", logged)
	}

	p.LookPath = func(string) (string, error) { return "", errors.New("not found") }
	if _, err := p.Resolve(context.Background(), "", hooks); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGlobalInstallProbesInOrder(t *testing.T) {
	dir := t.TempDir()
	second := writeFile(t, dir, "second", []byte("bin"))
	g := &GlobalInstall{Paths: []string{filepath.Join(dir, "missing"), second}}

	res, err := g.Resolve(context.Background(), "", progress.Hooks{})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if res.ExecutablePath != second || res.Origin != OriginGlobalInstall {
		t.Errorf("res = %+v", res)
	}
	if runtime.GOOS != "windows" {
		info, _ := os.Stat(second)
		if info.Mode().Perm()&0o111 == 0 {
			t.Error("expected execute bit to be set")
		}
	}
}

func TestWorkspaceBuild(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "build"), 0o755); err != nil {
		t.Fatal(err)
	}
	want := writeFile(t, filepath.Join(root, "build"), "secret_scanner", []byte("bin"))
	if err := os.Chmod(want, 0o644); err != nil {
		t.Fatal(err)
	}

	w := &WorkspaceBuild{Relative: DefaultWorkspacePaths("secret_scanner")}
	res, err := w.Resolve(context.Background(), root, progress.Hooks{})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if res.ExecutablePath != want || res.Origin != OriginWorkspaceBuild {
		t.Errorf("res = %+v", res)
	}
	if info, _ := os.Stat(want); info.Mode().Perm() != 0o644 {
		t.Errorf("workspace file mode changed to %v", info.Mode().Perm())
	}

	if _, err := w.Resolve(context.Background(), "", progress.Hooks{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty root: expected ErrNotFound, got %v", err)
	}
}

func TestLocalCacheValid(t *testing.T) {
	path := writeFile(t, t.TempDir(), "secret_scanner", []byte("good"))
	l := &LocalCache{Path: path, Platform: "linux", Descriptors: testDescriptors()}

	res, err := l.Resolve(context.Background(), "", progress.Hooks{})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if res.Origin != OriginLocalCache {
		t.Errorf("origin = %q", res.Origin)
	}
}

func TestLocalCachePoisonedIsDeleted(t *testing.T) {
	path := writeFile(t, t.TempDir(), "secret_scanner", []byte("tampered"))
	var logged []string
	hooks := progress.Hooks{Log: func(l string) { logged = append(logged, l) }}
	l := &LocalCache{Path: path, Platform: "linux", Descriptors: testDescriptors()}

	_, err := l.Resolve(context.Background(), "", hooks)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("poisoned cache entry must be deleted")
	}
	if len(logged) == 0 {
		t.Error("expected an operator log line about the removal")
	}
}

func TestLocalCacheWithoutDescriptor(t *testing.T) {
	path := writeFile(t, t.TempDir(), "secret_scanner", []byte("good"))
	l := &LocalCache{Path: path, Platform: "plan9", Descriptors: testDescriptors()}
	if _, err := l.Resolve(context.Background(), "", progress.Hooks{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Error("unverifiable file is skipped, not deleted")
	}
}

func TestNewDefaultResolverModes(t *testing.T) {
	if _, err := NewDefaultResolver(nil, Options{Mode: ModeAuto}); err == nil {
		t.Error("auto mode without provisioner should fail")
	}
	if _, err := NewDefaultResolver(nil, Options{Mode: "bogus"}); err == nil {
		t.Error("unknown mode should fail")
	}

	r, err := NewDefaultResolver(nil, Options{Mode: ModePathOnly})
	if err != nil {
		t.Fatalf("path-only: %v", err)
	}
	if len(r.strategies) != 3 {
		t.Errorf("path-only strategies = %d, want 3", len(r.strategies))
	}

	prov := NewProvisioner(nil, ProvisionerOptions{CacheDir: t.TempDir()})
	r, err = NewDefaultResolver(nil, Options{Mode: ModeAuto, Provisioner: prov})
	if err != nil {
		t.Fatalf("auto: %v", err)
	}
	names := make([]string, 0, len(r.strategies))
	for _, s := range r.strategies {
		names = append(names, s.Name())
	}
	want := []string{"path", "global-install", "local-cache", "download"}
	if len(names) != len(want) {
		t.Fatalf("strategies = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("strategy[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestAutoModeIgnoresWorkspaceBinary(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	ws := t.TempDir()
	planted := writeFile(t, ws, "secret_scanner", []byte("planted"))
	if err := os.Chmod(planted, 0o644); err != nil {
		t.Fatal(err)
	}
	cacheDir := t.TempDir()
	cached := writeFile(t, cacheDir, "secret_scanner", []byte("good"))

	prov := NewProvisioner(nil, ProvisionerOptions{CacheDir: cacheDir, Descriptors: testDescriptors()})
	r, err := NewDefaultResolver(nil, Options{
		Mode:           ModeAuto,
		BinaryName:     "secret_scanner",
		GlobalPaths:    []string{filepath.Join(t.TempDir(), "secret_scanner")},
		WorkspacePaths: DefaultWorkspacePaths("secret_scanner"),
		Platform:       "linux",
		Descriptors:    testDescriptors(),
		Provisioner:    prov,
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := r.Resolve(context.Background(), ws, progress.Hooks{})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if res.ExecutablePath != cached || res.Origin != OriginLocalCache {
		t.Errorf("res = %+v, want verified cache %s", res, cached)
	}
	if info, _ := os.Stat(planted); info.Mode().Perm() != 0o644 {
		t.Errorf("workspace file mode changed to %v", info.Mode().Perm())
	}
}

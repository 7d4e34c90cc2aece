package binary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lucasnoah/secretguard/internal/fsutil"
	"github.com/lucasnoah/secretguard/internal/progress"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultIdleTimeout aborts a download after this long without data.
const DefaultIdleTimeout = 60 * time.Second

// ErrIdleTimeout is the cause attached to a download that stalled.
var ErrIdleTimeout = errors.New("download stalled: idle timeout exceeded")

var errTooManyRedirects = errors.New("too many redirects")

// ProvisionerOptions configures a Provisioner.
type ProvisionerOptions struct {
	Client       *http.Client
	CacheDir     string // provisioned binary lives at CacheDir/BinaryName
	BinaryName   string
	GlobalBinDir string // empty disables the global copy
	Descriptors  Descriptors
	IdleTimeout  time.Duration
	MaxRedirects int
	Platform     string // host platform; defaults to CurrentPlatform()
}

// Provisioner downloads, verifies and installs the scanner binary.
type Provisioner struct {
	client       *http.Client
	cacheDir     string
	binaryName   string
	globalBinDir string
	descriptors  Descriptors
	idleTimeout  time.Duration
	maxRedirects int
	platform     string
	log          *zap.Logger

	// One in-flight download per platform key.
	group singleflight.Group

	mu    sync.Mutex
	calls map[string]*call
}

// call tracks the callers waiting on one shared download. The download runs
// on its own context, which is cancelled once every waiter has given up.
type call struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	nextID  int
	waiters map[int]progress.Hooks
}

// hooks fans operator output out to every caller still waiting.
func (c *call) hooks() progress.Hooks {
	snapshot := func() []progress.Hooks {
		c.mu.Lock()
		defer c.mu.Unlock()
		out := make([]progress.Hooks, 0, len(c.waiters))
		for _, h := range c.waiters {
			out = append(out, h)
		}
		return out
	}
	return progress.Hooks{
		Log: func(line string) {
			for _, h := range snapshot() {
				if h.Log != nil {
					h.Log(line)
				}
			}
		},
		Progress: func(u progress.Update) {
			for _, h := range snapshot() {
				h.Report(u)
			}
		},
	}
}

// NewProvisioner creates a Provisioner with defaults applied.
func NewProvisioner(log *zap.Logger, opts ProvisionerOptions) *Provisioner {
	if log == nil {
		log = zap.NewNop()
	}
	name := opts.BinaryName
	if name == "" {
		name = DefaultName
	}
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	maxRedirects := opts.MaxRedirects
	if maxRedirects < 0 {
		maxRedirects = 0
	}

	var client http.Client
	if opts.Client != nil {
		client = *opts.Client
	}
	// Redirects are followed by hand so the hop count is enforced here.
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	platform := opts.Platform
	if platform == "" {
		platform = CurrentPlatform()
	}

	return &Provisioner{
		client:       &client,
		cacheDir:     opts.CacheDir,
		binaryName:   name,
		globalBinDir: opts.GlobalBinDir,
		descriptors:  opts.Descriptors,
		idleTimeout:  idle,
		maxRedirects: maxRedirects,
		platform:     platform,
		log:          log,
		calls:        make(map[string]*call),
	}
}

// CachePath returns where the host platform's provisioned binary is stored.
func (p *Provisioner) CachePath() string {
	return filepath.Join(p.cacheDir, p.binaryName)
}

// PathFor returns where the artifact for platform is stored. Artifacts for
// other platforms get their own file so they never shadow the host binary.
func (p *Provisioner) PathFor(platform string) string {
	if platform == p.platform {
		return p.CachePath()
	}
	return filepath.Join(p.cacheDir, p.binaryName+"-"+platform)
}

// Provision downloads and verifies the binary for platform. Concurrent calls
// for the same platform share one download; every caller receives its log
// and progress output, and the download stops only when all of them have
// cancelled. Only the host platform's binary is installed globally.
func (p *Provisioner) Provision(ctx context.Context, platform string, hooks progress.Hooks) (*Resolved, error) {
	desc, ok := p.descriptors.Lookup(platform)
	if !ok {
		hooks.Logf("Secret Scanner is not available for %s yet. Install it manually from %s", platform, ReleasesURL)
		return nil, ErrPlatformUnsupported
	}

	for {
		c, id := p.join(platform, hooks)
		ch := p.group.DoChan(platform, func() (interface{}, error) {
			return p.provision(c.ctx, desc, c.hooks())
		})

		select {
		case <-ctx.Done():
			p.leave(platform, c, id)
			return nil, ctx.Err()
		case r := <-ch:
			p.leave(platform, c, id)
			if r.Shared {
				p.log.Debug("joined in-flight provisioning", zap.String("platform", platform))
			}
			if r.Err != nil {
				// A flight abandoned by its other callers; start a fresh one.
				if errors.Is(r.Err, context.Canceled) && ctx.Err() == nil {
					continue
				}
				return nil, r.Err
			}
			res := *r.Val.(*Resolved)
			return &res, nil
		}
	}
}

// join registers hooks as a waiter on platform's current call, creating the
// call when nobody is waiting.
func (p *Provisioner) join(platform string, hooks progress.Hooks) (*call, int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c := p.calls[platform]
	if c == nil {
		ctx, cancel := context.WithCancel(context.Background())
		c = &call{ctx: ctx, cancel: cancel, waiters: make(map[int]progress.Hooks)}
		p.calls[platform] = c
	}
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.waiters[id] = hooks
	c.mu.Unlock()
	return c, id
}

// leave removes a waiter. The last one out cancels the shared download.
func (p *Provisioner) leave(platform string, c *call, id int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c.mu.Lock()
	delete(c.waiters, id)
	empty := len(c.waiters) == 0
	c.mu.Unlock()

	if empty {
		c.cancel()
		if p.calls[platform] == c {
			delete(p.calls, platform)
		}
	}
}

// waiting reports how many callers are blocked on platform's download.
func (p *Provisioner) waiting(platform string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.calls[platform]
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

func (p *Provisioner) provision(ctx context.Context, desc Descriptor, hooks progress.Hooks) (*Resolved, error) {
	if err := os.MkdirAll(p.cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", p.cacheDir, err)
	}

	tmp, err := os.CreateTemp(p.cacheDir, ".download-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			os.Remove(tmpName)
		}
	}()

	hooks.Logf("Downloading %s...", desc.Name)
	start := time.Now()
	dlErr := p.download(ctx, desc.DownloadURL, tmp, hooks, p.maxRedirects)
	closeErr := tmp.Close()
	if dlErr != nil {
		p.log.Warn("download failed", zap.String("url", desc.DownloadURL), zap.Error(dlErr))
		return nil, dlErr
	}
	if closeErr != nil {
		return nil, fmt.Errorf("close downloaded file: %w", closeErr)
	}

	hooks.Logf("Verifying download...")
	if err := Verify(tmpName, desc.ExpectedChecksum); err != nil {
		p.log.Error("downloaded binary failed verification", zap.String("platform", desc.PlatformKey), zap.Error(err))
		return nil, err
	}

	if err := MakeExecutable(tmpName); err != nil {
		return nil, fmt.Errorf("mark binary executable: %w", err)
	}

	dest := p.PathFor(desc.PlatformKey)
	if err := fsutil.Replace(tmpName, dest); err != nil {
		return nil, err
	}
	tmpName = ""

	p.log.Info("provisioned scanner binary",
		zap.String("platform", desc.PlatformKey),
		zap.String("path", dest),
		zap.Duration("elapsed", time.Since(start)))

	if desc.PlatformKey != p.platform {
		hooks.Logf("Downloaded %s binary to: %s (not installed; this host is %s)", desc.PlatformKey, dest, p.platform)
		return &Resolved{ExecutablePath: dest, Origin: OriginFreshDownload}, nil
	}
	p.installGlobal(dest, hooks)
	hooks.Logf("Successfully downloaded and installed scanner to: %s", dest)

	return &Resolved{ExecutablePath: dest, Origin: OriginFreshDownload}, nil
}

// download streams url into w. A 301/302 is followed by re-invoking download
// on the Location target while redirectsLeft allows it.
func (p *Provisioner) download(ctx context.Context, url string, w io.Writer, hooks progress.Hooks, redirectsLeft int) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	idle := time.AfterFunc(p.idleTimeout, func() { cancel(ErrIdleTimeout) })
	defer idle.Stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &DownloadError{URL: url, Err: err}
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return &DownloadError{URL: url, Err: downloadCause(ctx, err)}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusMovedPermanently, http.StatusFound:
		loc := resp.Header.Get("Location")
		if loc == "" {
			return &DownloadError{URL: url, StatusCode: resp.StatusCode, Err: errors.New("redirect without Location header")}
		}
		if redirectsLeft <= 0 {
			return &DownloadError{URL: url, StatusCode: resp.StatusCode, Err: errTooManyRedirects}
		}
		target, err := resp.Request.URL.Parse(loc)
		if err != nil {
			return &DownloadError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("parse Location %q: %w", loc, err)}
		}
		idle.Stop()
		p.log.Debug("following redirect", zap.String("from", url), zap.String("to", target.String()))
		return p.download(ctx, target.String(), w, hooks, redirectsLeft-1)
	default:
		return &DownloadError{URL: url, StatusCode: resp.StatusCode}
	}

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}
	body := &meteredReader{r: resp.Body, idle: idle, timeout: p.idleTimeout, total: total, hooks: hooks}
	if _, err := io.Copy(w, body); err != nil {
		return &DownloadError{URL: url, Err: downloadCause(ctx, err)}
	}
	return nil
}

// downloadCause prefers the idle-timeout cause over the generic context error.
func downloadCause(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); errors.Is(cause, ErrIdleTimeout) {
		return ErrIdleTimeout
	}
	return err
}

// meteredReader resets the idle timer and reports progress on every read.
type meteredReader struct {
	r       io.Reader
	idle    *time.Timer
	timeout time.Duration
	done    int64
	total   int64
	hooks   progress.Hooks
}

func (m *meteredReader) Read(b []byte) (int, error) {
	n, err := m.r.Read(b)
	if n > 0 {
		m.idle.Reset(m.timeout)
		m.done += int64(n)
		m.hooks.Report(progress.Update{Stage: "Downloading", Done: m.done, Total: m.total})
	}
	return n, err
}

// installGlobal copies the verified binary into the user bin dir. Failure
// is logged and otherwise ignored.
func (p *Provisioner) installGlobal(src string, hooks progress.Hooks) {
	if p.globalBinDir == "" {
		return
	}
	dst := filepath.Join(p.globalBinDir, p.binaryName)
	if err := fsutil.CopyFile(src, dst, 0o755); err != nil {
		hooks.Logf("Could not install globally (this is optional): %v", err)
		p.log.Warn("global install failed", zap.String("dest", dst), zap.Error(err))
		return
	}
	if err := MakeExecutable(dst); err != nil {
		p.log.Warn("could not mark global copy executable", zap.String("dest", dst), zap.Error(err))
	}
	hooks.Logf("Installed globally to: %s", dst)
	if !onPath(p.globalBinDir) {
		hooks.Logf("Note: add %s to your PATH to use %q as a command", p.globalBinDir, p.binaryName)
	}
}

func onPath(dir string) bool {
	want := filepath.Clean(dir)
	for _, entry := range filepath.SplitList(os.Getenv("PATH")) {
		if entry != "" && filepath.Clean(entry) == want {
			return true
		}
	}
	return false
}

package scan

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/lucasnoah/secretguard/internal/progress"
)

// Collector consumes the scanner's stdout and stderr as they arrive and
// accumulates findings, forwarded log lines and the raw text.
type Collector struct {
	parser *OutputParser
	hooks  progress.Hooks
	log    *zap.Logger

	stdoutLines *LineWriter
	stderrLines *LineWriter

	// logMu serializes hook calls from the stdout and stderr goroutines.
	logMu sync.Mutex

	mu          sync.Mutex
	raw         strings.Builder
	stderr      strings.Builder
	findings    []Finding
	diagnostics []string
	failures    []ParseRecoveryFailure
}

// NewCollector returns a collector that normalizes paths against root.
func NewCollector(root string, hooks progress.Hooks, log *zap.Logger) *Collector {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Collector{
		parser: NewOutputParser(root),
		hooks:  hooks,
		log:    log,
	}
	c.stdoutLines = NewLineWriter(c.handleStdoutLine)
	c.stderrLines = NewLineWriter(c.handleStderrLine)
	return c
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

// Stdout returns the sink for the scanner's standard output.
func (c *Collector) Stdout() io.Writer {
	return writerFunc(func(p []byte) (int, error) {
		c.mu.Lock()
		c.raw.Write(p)
		c.mu.Unlock()
		return c.stdoutLines.Write(p)
	})
}

// Stderr returns the sink for the scanner's standard error.
func (c *Collector) Stderr() io.Writer {
	return writerFunc(func(p []byte) (int, error) {
		c.mu.Lock()
		c.stderr.Write(p)
		c.mu.Unlock()
		return c.stderrLines.Write(p)
	})
}

// Close flushes partial trailing lines on both streams.
func (c *Collector) Close() {
	c.stdoutLines.Flush()
	c.stderrLines.Flush()
}

func (c *Collector) handleStdoutLine(line string) {
	res := c.parser.ParseLine(line)

	var msg string
	c.mu.Lock()
	switch res.Kind {
	case LineFinding:
		f := res.Finding
		c.findings = append(c.findings, f)
		msg = fmt.Sprintf("Found %s in %s:%d", f.Kind, f.File, f.Line)
	case LineUnparseable:
		c.failures = append(c.failures, ParseRecoveryFailure{Line: res.Text})
		msg = "Failed to parse JSON: " + res.Text
	case LineForwarded:
		c.diagnostics = append(c.diagnostics, res.Text)
		msg = res.Text
	}
	c.mu.Unlock()

	switch {
	case res.Kind == LineFinding && res.Fallback:
		c.log.Debug("finding recovered by fallback parser", zap.String("line", res.Text))
	case res.Kind == LineUnparseable:
		c.log.Warn("unparseable finding record", zap.String("line", res.Text))
	}
	if msg != "" {
		c.emit(msg)
	}
}

func (c *Collector) handleStderrLine(line string) {
	clean := Sanitize(line)
	if clean == "" {
		return
	}
	c.emit("Error: " + clean)
}

// emit forwards one line to the log hook, outside c.mu.
func (c *Collector) emit(line string) {
	if c.hooks.Log == nil {
		return
	}
	c.logMu.Lock()
	defer c.logMu.Unlock()
	c.hooks.Log(line)
}

// Findings returns the findings in stream order.
func (c *Collector) Findings() []Finding {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Finding, len(c.findings))
	copy(out, c.findings)
	return out
}

// fill copies the accumulated state into o.
func (c *Collector) fill(o *ScanOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	o.Findings = make([]Finding, len(c.findings))
	copy(o.Findings, c.findings)
	o.DiagnosticText = append([]string{}, c.diagnostics...)
	if len(c.failures) > 0 {
		o.ParseFailures = append([]ParseRecoveryFailure(nil), c.failures...)
	}
	o.RawOutput = c.raw.String()
	o.Stderr = sanitizeBlock(c.stderr.String())
}

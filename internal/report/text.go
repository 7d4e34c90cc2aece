package report

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/lucasnoah/secretguard/internal/scan"
)

// TextOptions controls the terminal renderer.
type TextOptions struct {
	NoColor bool
	Redact  bool
}

type palette struct {
	alert  *color.Color
	ok     *color.Color
	warn   *color.Color
	path   *color.Color
	detail *color.Color
}

func newPalette(noColor bool) palette {
	p := palette{
		alert:  color.New(color.FgRed, color.Bold),
		ok:     color.New(color.FgGreen, color.Bold),
		warn:   color.New(color.FgYellow),
		path:   color.New(color.FgCyan),
		detail: color.New(color.Faint),
	}
	if noColor {
		for _, c := range []*color.Color{p.alert, p.ok, p.warn, p.path, p.detail} {
			c.DisableColor()
		}
	}
	return p
}

// Text writes a human-readable summary of an outcome.
func Text(w io.Writer, o *scan.ScanOutcome, opts TextOptions) error {
	p := newPalette(opts.NoColor)

	findings := o.Findings
	if opts.Redact {
		findings = RedactFindings(findings)
	}

	p.detail.Fprintf(w, "Workspace: %s\n", o.Workspace)
	p.detail.Fprintf(w, "Scanner:   %s (%s)\n", o.Binary.ExecutablePath, o.Binary.Origin)
	p.detail.Fprintf(w, "Exit code: %d in %s\n\n", o.ExitCode, o.Duration.Round(time.Millisecond))

	if len(findings) == 0 {
		p.ok.Fprintln(w, "Clean scan: no secrets found")
	} else {
		p.alert.Fprintf(w, "SECURITY ISSUES DETECTED: %d potential secret%s\n", len(findings), plural(len(findings)))
		for _, f := range findings {
			fmt.Fprint(w, "  ")
			p.path.Fprintf(w, "%s:%d", f.File, f.Line)
			fmt.Fprintf(w, "  %s  %q\n", f.Kind, f.MatchedText)
		}
		fmt.Fprintln(w)
		p.alert.Fprintln(w, "ACTION REQUIRED: remove these values from source and rotate the credentials")
	}

	if n := len(o.ParseFailures); n > 0 {
		p.warn.Fprintf(w, "\n%d scanner line%s could not be parsed\n", n, plural(n))
		if !opts.Redact {
			for _, pf := range o.ParseFailures {
				p.warn.Fprintf(w, "  %s\n", pf.Line)
			}
		}
	}
	return nil
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

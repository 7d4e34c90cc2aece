// Package report renders scan outcomes for editors, CI and terminals.
package report

import (
	"fmt"
	"math"
	"path/filepath"

	"github.com/lucasnoah/secretguard/internal/scan"
)

const (
	DiagnosticSource = "Secret Scanner"
	DiagnosticCode   = "secret-detected"
	SeverityError    = "error"
)

// Position is a zero-based line/character pair.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range spans a whole source line.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Diagnostic is an editor-style problem marker for one finding.
type Diagnostic struct {
	File     string `json:"file"`
	Range    Range  `json:"range"`
	Severity string `json:"severity"`
	Code     string `json:"code"`
	Source   string `json:"source"`
	Message  string `json:"message"`
}

// Diagnostics converts findings into diagnostics with absolute file paths.
// Wire lines are 1-based; diagnostic lines are 0-based and never negative.
func Diagnostics(findings []scan.Finding, root string) []Diagnostic {
	out := make([]Diagnostic, 0, len(findings))
	for _, f := range findings {
		line := f.Line - 1
		if line < 0 {
			line = 0
		}
		out = append(out, Diagnostic{
			File: filepath.Join(root, filepath.FromSlash(f.File)),
			Range: Range{
				Start: Position{Line: line},
				End:   Position{Line: line, Character: math.MaxInt32},
			},
			Severity: SeverityError,
			Code:     DiagnosticCode,
			Source:   DiagnosticSource,
			Message:  Message(f),
		})
	}
	return out
}

// Message is the operator-facing description of a finding.
func Message(f scan.Finding) string {
	return fmt.Sprintf("Potential secret detected: %s - \"%s\"", f.Kind, f.MatchedText)
}

// GroupByFile buckets diagnostics per file, preserving first-seen order.
func GroupByFile(diags []Diagnostic) (files []string, byFile map[string][]Diagnostic) {
	byFile = make(map[string][]Diagnostic)
	for _, d := range diags {
		if _, ok := byFile[d.File]; !ok {
			files = append(files, d.File)
		}
		byFile[d.File] = append(byFile[d.File], d)
	}
	return files, byFile
}

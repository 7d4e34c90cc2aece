package scan

import (
	"encoding/json"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// LineKind classifies one sanitized stdout line.
type LineKind int

const (
	// LineSuppressed is banner, progress or summary noise.
	LineSuppressed LineKind = iota
	// LineForwarded is informational text passed to the log sink.
	LineForwarded
	// LineFinding decoded into a Finding.
	LineFinding
	// LineUnparseable looked like a finding but could not be decoded.
	LineUnparseable
)

func (k LineKind) String() string {
	switch k {
	case LineSuppressed:
		return "suppressed"
	case LineForwarded:
		return "forwarded"
	case LineFinding:
		return "finding"
	case LineUnparseable:
		return "unparseable"
	}
	return "unknown"
}

// LineResult is the classification of a single line.
type LineResult struct {
	Kind    LineKind
	Text    string
	Finding Finding
	// Fallback is set when the finding came from field-by-field extraction
	// rather than a strict JSON decode.
	Fallback bool
}

var (
	matchRepairRe = regexp.MustCompile(`"match":"([^"]*"[^"]*"[^"]*)"`)

	fallbackFileRe  = regexp.MustCompile(`"file":"([^"]+)"`)
	fallbackLineRe  = regexp.MustCompile(`"line":(\d+)`)
	fallbackTypeRe  = regexp.MustCompile(`"type":"([^"]+)"`)
	fallbackMatchRe = regexp.MustCompile(`"match":"(.+)"}`)
)

// noiseFragments suppress any non-candidate line that contains them.
var noiseFragments = []string{
	"SECRET SCANNER",
	"Advanced Security Code Analysis Tool",
	"Input:",
	"Resolved to:",
	"Scanning directory:",
	"Analyzing project structure...",
	"SCAN RESULTS",
	"Scanning files...",
	"Secrets found:",
	"progress:",
	"Files scanned:",
	"SECURITY ISSUES DETECTED:",
	"ACTION REQUIRED:",
	"Scan completed successfully!",
}

// noiseFragmentsFold are matched case-insensitively.
var noiseFragmentsFold = []string{
	"summary:",
	"clean scan:",
}

// OutputParser classifies scanner stdout lines and decodes finding records
// relative to a workspace root.
type OutputParser struct {
	root string
}

// NewOutputParser returns a parser that normalizes finding paths against
// workspaceRoot, which should be absolute.
func NewOutputParser(workspaceRoot string) *OutputParser {
	return &OutputParser{root: workspaceRoot}
}

// ParseLine sanitizes and classifies one raw stdout line.
func (p *OutputParser) ParseLine(raw string) LineResult {
	text := Sanitize(raw)

	if isCandidate(text) {
		if f, ok := p.decodeStrict(text); ok {
			return LineResult{Kind: LineFinding, Text: text, Finding: f}
		}
		if f, ok := p.decodeFallback(text); ok {
			return LineResult{Kind: LineFinding, Text: text, Finding: f, Fallback: true}
		}
		return LineResult{Kind: LineUnparseable, Text: text}
	}

	if isNoise(text) {
		return LineResult{Kind: LineSuppressed, Text: text}
	}
	return LineResult{Kind: LineForwarded, Text: text}
}

// isCandidate reports whether a sanitized line is shaped like a finding
// record.
func isCandidate(text string) bool {
	return strings.HasPrefix(text, "{") && strings.Contains(text, `"file"`)
}

func isNoise(text string) bool {
	if utf8.RuneCountInString(text) <= 2 {
		return true
	}
	for _, f := range noiseFragments {
		if strings.Contains(text, f) {
			return true
		}
	}
	lower := strings.ToLower(text)
	for _, f := range noiseFragmentsFold {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}

// repairMatchQuotes escapes bare double quotes inside the "match" value.
// The scanner prints matched source text verbatim, so `key="abc"` arrives
// unescaped and breaks the record.
func repairMatchQuotes(text string) string {
	return matchRepairRe.ReplaceAllStringFunc(text, func(m string) string {
		inner := matchRepairRe.FindStringSubmatch(m)[1]
		return `"match":"` + strings.ReplaceAll(inner, `"`, `\"`) + `"`
	})
}

func (p *OutputParser) decodeStrict(text string) (Finding, bool) {
	if f, ok := p.decodeRecord(repairMatchQuotes(text)); ok {
		return f, true
	}
	// Already well-formed records with escaped quotes are damaged by the
	// repair pass, so retry the line as emitted.
	return p.decodeRecord(text)
}

func (p *OutputParser) decodeRecord(text string) (Finding, bool) {
	var rec wireRecord
	if err := json.Unmarshal([]byte(text), &rec); err != nil {
		return Finding{}, false
	}
	if rec.File == nil || rec.Line == nil || rec.Type == nil || rec.Match == nil {
		return Finding{}, false
	}
	if *rec.File == "" || *rec.Line < 1 {
		return Finding{}, false
	}
	return Finding{
		File:        NormalizePath(*rec.File, p.root),
		Line:        *rec.Line,
		Kind:        *rec.Type,
		MatchedText: *rec.Match,
	}, true
}

func (p *OutputParser) decodeFallback(text string) (Finding, bool) {
	file := fallbackFileRe.FindStringSubmatch(text)
	line := fallbackLineRe.FindStringSubmatch(text)
	kind := fallbackTypeRe.FindStringSubmatch(text)
	match := fallbackMatchRe.FindStringSubmatch(text)
	if file == nil || line == nil || kind == nil || match == nil {
		return Finding{}, false
	}
	n, err := strconv.Atoi(line[1])
	if err != nil || n < 1 {
		return Finding{}, false
	}
	return Finding{
		File:        NormalizePath(file[1], p.root),
		Line:        n,
		Kind:        kind[1],
		MatchedText: match[1],
	}, true
}

// NormalizePath makes a reported file path workspace-relative with forward
// slashes and no leading "./".
func NormalizePath(file, root string) string {
	abs := file
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, abs)
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		rel = file
	}
	rel = strings.ReplaceAll(filepath.ToSlash(rel), `\`, "/")
	return strings.TrimPrefix(rel, "./")
}

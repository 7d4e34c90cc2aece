package scan

import (
	"regexp"
	"strings"
)

// ansiRe matches CSI escape sequences (colors, cursor and erase controls).
var ansiRe = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)

// Sanitize strips terminal decorations the scanner mixes into stdout: ANSI
// escapes, box-drawing characters, braille spinner frames and carriage
// returns. The result is trimmed.
func Sanitize(line string) string {
	if strings.IndexByte(line, 0x1b) >= 0 {
		line = ansiRe.ReplaceAllString(line, "")
	}
	line = strings.Map(func(r rune) rune {
		if isDecoration(r) {
			return -1
		}
		return r
	}, line)
	return strings.TrimSpace(line)
}

func isDecoration(r rune) bool {
	switch {
	case r == '\r':
		return true
	case r >= 0x2500 && r <= 0x257F: // box drawing
		return true
	}
	switch r {
	case '⠋', '⠙', '⠹', '⠸', '⠼', '⠴', '⠦', '⠧', '⠇', '⠏':
		return true
	}
	return false
}

// sanitizeBlock sanitizes each line of a multi-line block and drops the
// lines that end up empty.
func sanitizeBlock(s string) string {
	var kept []string
	for _, line := range strings.Split(s, "\n") {
		if clean := Sanitize(line); clean != "" {
			kept = append(kept, clean)
		}
	}
	return strings.Join(kept, "\n")
}

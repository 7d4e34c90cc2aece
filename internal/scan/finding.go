// Package scan runs the secret scanner against a workspace and decodes its
// mixed human/machine stdout into typed findings.
package scan

// Finding is one secret-like match reported by the scanner. File is
// workspace-relative with forward slashes; Line is 1-based as emitted.
type Finding struct {
	File        string `json:"file"`
	Line        int    `json:"line"`
	Kind        string `json:"kind"`
	MatchedText string `json:"matched_text"`
}

// wireRecord is the scanner's single-line JSON shape. Pointers distinguish
// a missing field from a zero value.
type wireRecord struct {
	File  *string `json:"file"`
	Line  *int    `json:"line"`
	Type  *string `json:"type"`
	Match *string `json:"match"`
}

package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/lucasnoah/secretguard/internal/scan"
)

const (
	sarifVersion = "2.1.0"
	sarifSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
)

type SarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []SarifRun `json:"runs"`
}

type SarifRun struct {
	Tool    SarifTool     `json:"tool"`
	Results []SarifResult `json:"results"`
}

type SarifTool struct {
	Driver SarifDriver `json:"driver"`
}

type SarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Rules   []SarifRule `json:"rules,omitempty"`
}

type SarifRule struct {
	ID               string       `json:"id"`
	ShortDescription SarifMessage `json:"shortDescription"`
}

type SarifResult struct {
	RuleID    string          `json:"ruleId"`
	Message   SarifMessage    `json:"message"`
	Level     string          `json:"level"`
	Locations []SarifLocation `json:"locations"`
}

type SarifMessage struct {
	Text string `json:"text"`
}

type SarifLocation struct {
	PhysicalLocation SarifPhysicalLocation `json:"physicalLocation"`
}

type SarifPhysicalLocation struct {
	ArtifactLocation SarifArtifactLocation `json:"artifactLocation"`
	Region           SarifRegion           `json:"region"`
}

type SarifArtifactLocation struct {
	URI string `json:"uri"`
}

type SarifRegion struct {
	StartLine int `json:"startLine"`
}

// SARIF builds a SARIF 2.1.0 log with one result per finding, in stream
// order. Rules are derived from the distinct finding kinds.
func SARIF(findings []scan.Finding, toolName, toolVersion string) *SarifLog {
	results := make([]SarifResult, 0, len(findings))
	kinds := make(map[string]bool)
	for _, f := range findings {
		kinds[f.Kind] = true
		uri := strings.TrimPrefix(f.File, "./")
		if strings.TrimSpace(uri) == "" {
			uri = "UNKNOWN"
		}
		start := f.Line
		if start <= 0 {
			start = 1
		}
		results = append(results, SarifResult{
			RuleID:  f.Kind,
			Level:   SeverityError,
			Message: SarifMessage{Text: Message(f)},
			Locations: []SarifLocation{{
				PhysicalLocation: SarifPhysicalLocation{
					ArtifactLocation: SarifArtifactLocation{URI: uri},
					Region:           SarifRegion{StartLine: start},
				},
			}},
		})
	}

	rules := make([]SarifRule, 0, len(kinds))
	for k := range kinds {
		rules = append(rules, SarifRule{
			ID:               k,
			ShortDescription: SarifMessage{Text: fmt.Sprintf("Potential %s committed to source", k)},
		})
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })

	return &SarifLog{
		Version: sarifVersion,
		Schema:  sarifSchema,
		Runs: []SarifRun{{
			Tool: SarifTool{Driver: SarifDriver{
				Name:    toolName,
				Version: toolVersion,
				Rules:   rules,
			}},
			Results: results,
		}},
	}
}

// WriteSARIF encodes the findings as indented SARIF JSON.
func WriteSARIF(w io.Writer, findings []scan.Finding, toolName, toolVersion string) error {
	data, err := json.MarshalIndent(SARIF(findings, toolName, toolVersion), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sarif: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lucasnoah/secretguard/internal/artifacts"
	"github.com/lucasnoah/secretguard/internal/config"
	"github.com/lucasnoah/secretguard/internal/history"
	"github.com/lucasnoah/secretguard/internal/report"
	"github.com/lucasnoah/secretguard/internal/scan"
)

var scanCmd = &cobra.Command{
	Use:   "scan [dir...]",
	Short: "Scan one or more workspace roots for secrets",
	Long: `Scan resolves the secret_scanner binary (downloading and verifying it if
needed), runs it against each workspace root and prints the findings.

Formats: text (default), json, diagnostics (editor-style, zero-based
lines), sarif (SARIF 2.1.0).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		timeoutFlag, _ := cmd.Flags().GetString("timeout")
		noHistory, _ := cmd.Flags().GetBool("no-history")
		parallel, _ := cmd.Flags().GetInt("parallel")
		noColor, _ := cmd.Flags().GetBool("no-color")
		quiet, _ := cmd.Flags().GetBool("quiet")

		switch format {
		case "text", "json", "diagnostics", "sarif":
		default:
			return fmt.Errorf("unknown format %q (expected text, json, diagnostics or sarif)", format)
		}

		cfg := appConfig
		if err := validConfig(cfg); err != nil {
			return err
		}
		timeout := cfg.ScanTimeout()
		if timeoutFlag != "" {
			d, err := time.ParseDuration(timeoutFlag)
			if err != nil {
				return fmt.Errorf("invalid --timeout %q: %w", timeoutFlag, err)
			}
			timeout = d
		}

		roots := args
		if len(roots) == 0 {
			roots = []string{"."}
		}

		scanner, err := newScanner(cfg, timeout)
		if err != nil {
			return err
		}
		results := scanner.ScanAll(cmd.Context(), roots, parallel, stderrHooks(cmd, quiet))

		if !noHistory {
			recordResults(cfg, results)
		}

		if err := render(cmd.OutOrStdout(), format, results, noColor); err != nil {
			return err
		}

		failed, found := 0, false
		for _, r := range results {
			if r.Err != nil {
				failed++
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", r.Root, Describe(r.Err))
				continue
			}
			if len(r.Outcome.Findings) > 0 {
				found = true
			}
		}
		if failed == 1 && len(results) == 1 {
			return &ExitError{Code: 1}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d scans failed", failed, len(results))
		}
		if found {
			return errFindings
		}
		return nil
	},
}

// recordResults stores every scan in the history DB. History is
// best-effort: a broken database never fails the scan itself.
func recordResults(cfg *config.Config, results []scan.RootResult) {
	d, cleanup, err := openHistory(cfg)
	if err != nil {
		logger.Warn("scan history unavailable", zap.Error(err))
		return
	}
	defer cleanup()

	store := artifacts.NewStore(cfg.Storage.Dir, cfg.Redact())
	for _, r := range results {
		run := history.FromOutcome(r.Root, r.Outcome, r.Err, cfg.Redact())
		id, err := d.RecordScan(run)
		if err != nil {
			logger.Warn("record scan", zap.String("workspace", r.Root), zap.Error(err))
			continue
		}
		if !cfg.Storage.KeepArtifacts || r.Outcome == nil {
			continue
		}
		dir, err := store.Save(id, r.Outcome)
		if err != nil {
			logger.Warn("save artifacts", zap.Int64("scan_id", id), zap.Error(err))
			continue
		}
		if err := d.SetArtifactDir(id, dir); err != nil {
			logger.Warn("record artifact dir", zap.Int64("scan_id", id), zap.Error(err))
		}
	}
}

type jsonResult struct {
	Root    string            `json:"root"`
	Outcome *scan.ScanOutcome `json:"outcome,omitempty"`
	Error   string            `json:"error,omitempty"`
}

func render(w io.Writer, format string, results []scan.RootResult, noColor bool) error {
	switch format {
	case "json":
		out := make([]jsonResult, 0, len(results))
		for _, r := range results {
			jr := jsonResult{Root: r.Root, Outcome: r.Outcome}
			if r.Err != nil {
				jr.Error = r.Err.Error()
			}
			out = append(out, jr)
		}
		return writeJSON(w, out)

	case "diagnostics":
		diags := []report.Diagnostic{}
		for _, r := range results {
			if r.Err == nil {
				diags = append(diags, report.Diagnostics(r.Outcome.Findings, r.Outcome.Workspace)...)
			}
		}
		return writeJSON(w, diags)

	case "sarif":
		var findings []scan.Finding
		for _, r := range results {
			if r.Err == nil {
				findings = append(findings, r.Outcome.Findings...)
			}
		}
		return report.WriteSARIF(w, findings, "secretguard", version)
	}

	for i, r := range results {
		if r.Err != nil {
			continue
		}
		if i > 0 {
			fmt.Fprintln(w)
		}
		if err := report.Text(w, r.Outcome, report.TextOptions{NoColor: noColor}); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func init() {
	scanCmd.Flags().String("format", "text", "Output format: text, json, diagnostics or sarif")
	scanCmd.Flags().String("timeout", "", "Kill the scanner after this long (overrides scanner.timeout; 0 disables)")
	scanCmd.Flags().Bool("no-history", false, "Do not record this scan in the history database")
	scanCmd.Flags().Int("parallel", 1, "Scan at most this many roots at once")
	scanCmd.Flags().Bool("no-color", false, "Disable colored text output")
	scanCmd.Flags().BoolP("quiet", "q", false, "Suppress scanner progress lines on stderr")
}

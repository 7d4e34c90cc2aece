package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/secretguard/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded scans",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent scans, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		workspace, _ := cmd.Flags().GetString("workspace")
		limit, _ := cmd.Flags().GetInt("limit")
		format, _ := cmd.Flags().GetString("format")

		d, cleanup, err := openHistory(appConfig)
		if err != nil {
			return err
		}
		defer cleanup()

		runs, err := d.ListScans(workspace, limit)
		if err != nil {
			return err
		}
		if format == "json" {
			if runs == nil {
				runs = []history.ScanRun{}
			}
			return writeJSON(cmd.OutOrStdout(), runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No scans recorded.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTARTED\tSTATUS\tFINDINGS\tDURATION\tWORKSPACE")
		for _, r := range runs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n",
				r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Status, r.FindingCount,
				(time.Duration(r.DurationMs) * time.Millisecond).String(), r.Workspace)
		}
		return w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one recorded scan and its findings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid scan id %q: %w", args[0], err)
		}
		format, _ := cmd.Flags().GetString("format")

		d, cleanup, err := openHistory(appConfig)
		if err != nil {
			return err
		}
		defer cleanup()

		run, err := d.GetScan(id)
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("scan %d not found", id)
		}
		if format == "json" {
			return writeJSON(cmd.OutOrStdout(), run)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Scan %d\n", run.ID)
		fmt.Fprintf(out, "  Workspace: %s\n", run.Workspace)
		fmt.Fprintf(out, "  Started:   %s\n", run.StartedAt.Local().Format(time.RFC3339))
		fmt.Fprintf(out, "  Status:    %s\n", run.Status)
		if run.ExitCode != nil {
			fmt.Fprintf(out, "  Exit code: %d\n", *run.ExitCode)
		}
		if run.BinaryPath != "" {
			fmt.Fprintf(out, "  Scanner:   %s (%s)\n", run.BinaryPath, run.Origin)
		}
		if run.Error != "" {
			fmt.Fprintf(out, "  Error:     %s\n", run.Error)
		}
		if run.ParseFailures > 0 {
			fmt.Fprintf(out, "  Unparsed:  %d line(s)\n", run.ParseFailures)
		}
		if run.ArtifactDir != "" {
			fmt.Fprintf(out, "  Artifacts: %s\n", run.ArtifactDir)
		}
		if len(run.Findings) == 0 {
			return nil
		}
		fmt.Fprintf(out, "\nFindings (%d):\n", len(run.Findings))
		for _, f := range run.Findings {
			fmt.Fprintf(out, "  %s:%d  %s  %q\n", f.File, f.Line, f.Kind, f.MatchedText)
		}
		return nil
	},
}

func init() {
	historyListCmd.Flags().String("workspace", "", "Only show scans of this workspace root")
	historyListCmd.Flags().Int("limit", 20, "Maximum number of scans to list (0 for all)")
	historyListCmd.Flags().String("format", "text", "Output format: text or json")
	historyShowCmd.Flags().String("format", "text", "Output format: text or json")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
}

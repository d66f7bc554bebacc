// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"zapdock/internal/scan"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

var (
	scanTarget      string
	scanAPIBase     string
	scanRulesFile   string
	scanProgress    string
	scanGenerate    string
	scanReportFile  string
	scanMaxDuration time.Duration
	scanShutdown    bool
	scanJSON        bool

	scanCmd = &cobra.Command{
		Use:   "scan",
		Short: "Run scans against a running scanner container",
	}

	scanBaselineCmd = &cobra.Command{
		Use:   "baseline",
		Short: "Run a passive baseline scan against a target URL",
		Long: `Baseline spiders the target through the scanner's proxy, waits for the
passive scan queue to drain, and classifies every recorded alert as IGNORE,
INFO, WARN, or FAIL according to the rule file.

Exit codes follow the classification: 0 when clean, 1 when any finding is a
FAIL, 2 when there are WARN findings but no FAIL, 3 when the scan itself
could not complete.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBaseline(cmd)
		},
	}
)

func init() {
	scanCmd.AddCommand(scanBaselineCmd)

	scanBaselineCmd.Flags().StringVarP(&scanTarget, "target", "t", "", "URL to scan (required)")
	scanBaselineCmd.Flags().StringVar(&scanAPIBase, "api", "", "scanner API base URL (default http://127.0.0.1:<proxy port>)")
	scanBaselineCmd.Flags().StringVar(&scanRulesFile, "rules", "", "TOML rule file mapping plugin IDs to actions")
	scanBaselineCmd.Flags().StringVar(&scanProgress, "progress", "", "progress file downgrading in-progress FAILs to WARN")
	scanBaselineCmd.Flags().StringVar(&scanGenerate, "generate", "", "write a rule file template for the observed alerts and exit")
	scanBaselineCmd.Flags().StringVar(&scanReportFile, "report", "", "write the Markdown report to this file")
	scanBaselineCmd.Flags().DurationVar(&scanMaxDuration, "max-duration", 0, "overall scan budget (0 means no limit)")
	scanBaselineCmd.Flags().BoolVar(&scanShutdown, "shutdown", false, "ask the scanner to exit after the scan")
	scanBaselineCmd.Flags().BoolVar(&scanJSON, "json", false, "emit the raw summary as JSON instead of the rendered report")

	_ = scanBaselineCmd.MarkFlagRequired("target")
}

func runBaseline(cmd *cobra.Command) error {
	opts := scan.Options{
		Target:      scanTarget,
		MaxDuration: scanMaxDuration,
		Shutdown:    scanShutdown,
	}

	if scanRulesFile != "" {
		rules, err := scan.LoadRules(scanRulesFile)
		if err != nil {
			return &ExitError{Code: scan.ExitError, Err: err}
		}
		opts.Rules = rules
	}
	if scanProgress != "" {
		progress, err := scan.LoadProgress(scanProgress)
		if err != nil {
			return &ExitError{Code: scan.ExitError, Err: err}
		}
		opts.Progress = progress
	}

	base := scanAPIBase
	if base == "" {
		base = fmt.Sprintf("http://127.0.0.1:%d", cfg.ProxyPort)
	}

	runner := scan.NewRunner(scan.NewAPIClient(base), scan.WithRunnerLogger(slog.Default()))
	summary, err := runner.Baseline(cmd.Context(), opts)
	if err != nil {
		return &ExitError{Code: scan.ExitError, Err: err}
	}

	if scanGenerate != "" {
		return writeRuleTemplate(summary)
	}

	report := summary.RenderMarkdown()
	if scanReportFile != "" {
		if err := os.WriteFile(scanReportFile, []byte(report), 0o644); err != nil {
			return &ExitError{Code: scan.ExitError, Err: fmt.Errorf("writing report: %w", err)}
		}
	}
	if scanJSON {
		raw, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return &ExitError{Code: scan.ExitError, Err: fmt.Errorf("encoding summary: %w", err)}
		}
		fmt.Println(string(raw))
	} else {
		printReport(report)
	}

	if code := summary.ExitCode(); code != scan.ExitSuccess {
		fails, warns, _ := summary.Counts()
		return &ExitError{
			Code: code,
			Err:  fmt.Errorf("baseline scan found %d FAIL and %d WARN findings", fails, warns),
		}
	}
	return nil
}

// writeRuleTemplate emits a starter rule file covering every plugin the scan
// observed, ignored or not, to the named file or to stdout when the name
// is "-".
func writeRuleTemplate(summary *scan.Summary) error {
	tmpl, err := scan.GenerateTemplate(summary.Alerts)
	if err != nil {
		return &ExitError{Code: scan.ExitError, Err: err}
	}

	if scanGenerate == "-" {
		fmt.Print(tmpl)
		return nil
	}
	if err := os.WriteFile(scanGenerate, []byte(tmpl), 0o644); err != nil {
		return &ExitError{Code: scan.ExitError, Err: fmt.Errorf("writing rule template: %w", err)}
	}
	fmt.Printf("%s %s\n", SuccessStyle.Render("Rule template written:"), scanGenerate)
	return nil
}

// printReport renders the Markdown report for the terminal, falling back to
// the raw text when the renderer fails.
func printReport(report string) {
	rendered, err := glamour.Render(report, "dark")
	if err != nil {
		fmt.Print(report)
		return
	}
	fmt.Print(rendered)
}

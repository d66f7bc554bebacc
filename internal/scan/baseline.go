// SPDX-License-Identifier: MPL-2.0

package scan

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Exit codes for the baseline scan, consumed by CI gates.
const (
	ExitSuccess  = 0 // no WARN or FAIL findings
	ExitFailures = 1 // at least one FAIL finding
	ExitWarnings = 2 // WARN findings, no FAIL
	ExitError    = 3 // the scan itself could not complete
)

type (
	// Options configures one baseline run.
	Options struct {
		Target       string        // URL to scan
		MaxDuration  time.Duration // overall budget; 0 means no limit
		PollInterval time.Duration // spider/passive-queue poll cadence
		Rules        *RuleConfig
		Progress     *ProgressFile // optional in-progress downgrades
		Shutdown     bool          // ask the scanner to exit afterwards
	}

	// Finding groups every alert for one plugin under its final action.
	Finding struct {
		PluginID   string
		Name       string
		Risk       string
		Action     Action
		Instances  []Alert
		Downgraded bool // FAIL reduced to WARN by the progress file
	}

	// Summary is the classified outcome of a baseline scan.
	Summary struct {
		Target     string
		Version    string
		Duration   time.Duration
		Findings   []Finding
		Ignored    int // alert instances dropped by IGNORE rules
		OutOfScope int // alert instances dropped by scope patterns

		// Alerts is everything the scanner recorded, before scope filtering
		// and rule classification. Rule-file templates generate from this so
		// ignored plugins stay visible.
		Alerts []Alert
	}

	// Runner executes baseline scans against one scanner instance.
	Runner struct {
		client *APIClient
		logger *slog.Logger
	}

	// RunnerOption configures a Runner during construction.
	RunnerOption func(*Runner)
)

// WithRunnerLogger sets the logger used for scan progress messages.
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// NewRunner creates a Runner on top of an API client.
func NewRunner(client *APIClient, opts ...RunnerOption) *Runner {
	r := &Runner{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Baseline runs the passive baseline flow: seed the target, spider it, wait
// for the passive queue to drain, then classify the recorded alerts. The
// returned Summary is valid whenever the error is nil; use ExitCode to turn
// it into a process exit status.
func (r *Runner) Baseline(ctx context.Context, opts Options) (*Summary, error) {
	if opts.Target == "" {
		return nil, fmt.Errorf("baseline scan: target URL is required")
	}
	if opts.Rules == nil {
		opts.Rules = DefaultRules()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.MaxDuration)
		defer cancel()
	}

	started := time.Now()

	version, err := r.client.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("baseline scan: scanner unreachable: %w", err)
	}
	r.logger.Info("starting baseline scan", "target", opts.Target, "scanner_version", version)

	if err := r.client.AccessURL(ctx, opts.Target); err != nil {
		return nil, fmt.Errorf("baseline scan: seeding target: %w", err)
	}

	scanID, err := r.client.SpiderScan(ctx, opts.Target)
	if err != nil {
		return nil, fmt.Errorf("baseline scan: %w", err)
	}
	if err := r.waitSpider(ctx, scanID, opts.PollInterval); err != nil {
		return nil, err
	}
	if err := r.waitPassiveQueue(ctx, opts.PollInterval); err != nil {
		return nil, err
	}

	alerts, err := r.client.Alerts(ctx, opts.Target)
	if err != nil {
		return nil, fmt.Errorf("baseline scan: collecting alerts: %w", err)
	}

	summary := classify(alerts, opts.Rules, opts.Progress)
	summary.Target = opts.Target
	summary.Version = version
	summary.Duration = time.Since(started)

	if opts.Shutdown {
		if err := r.client.Shutdown(ctx); err != nil {
			r.logger.Warn("scanner shutdown request failed", "error", err)
		}
	}

	return summary, nil
}

// waitSpider polls the spider until it reports 100 percent.
func (r *Runner) waitSpider(ctx context.Context, scanID string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		pct, err := r.client.SpiderStatus(ctx, scanID)
		if err != nil {
			return fmt.Errorf("baseline scan: spider status: %w", err)
		}
		r.logger.Debug("spider progress", "percent", pct)
		if pct >= 100 {
			return nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("baseline scan: spider interrupted: %w", ctx.Err())
		}
	}
}

// waitPassiveQueue polls until the passive scanner has no records left.
func (r *Runner) waitPassiveQueue(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := r.client.RecordsToScan(ctx)
		if err != nil {
			return fmt.Errorf("baseline scan: passive queue: %w", err)
		}
		r.logger.Debug("passive scan queue", "records", n)
		if n == 0 {
			return nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("baseline scan: passive scan interrupted: %w", ctx.Err())
		}
	}
}

// classify groups alerts per plugin, applies scope patterns, rule actions,
// and progress downgrades, and orders findings by severity of action.
func classify(alerts []Alert, rules *RuleConfig, progress *ProgressFile) *Summary {
	summary := &Summary{Alerts: alerts}
	grouped := make(map[string]*Finding)

	for _, a := range alerts {
		if !rules.InScope(a.URL) {
			summary.OutOfScope++
			continue
		}

		action := rules.ActionFor(a.PluginID)
		if action == ActionIgnore {
			summary.Ignored++
			continue
		}

		downgraded := false
		if action == ActionFail && progress.InProgress(a.PluginID) {
			action = ActionWarn
			downgraded = true
		}

		f, ok := grouped[a.PluginID]
		if !ok {
			f = &Finding{
				PluginID:   a.PluginID,
				Name:       a.Name,
				Risk:       a.Risk,
				Action:     action,
				Downgraded: downgraded,
			}
			grouped[a.PluginID] = f
		}
		f.Instances = append(f.Instances, a)
	}

	summary.Findings = make([]Finding, 0, len(grouped))
	for _, f := range grouped {
		summary.Findings = append(summary.Findings, *f)
	}
	sort.Slice(summary.Findings, func(i, j int) bool {
		a, b := summary.Findings[i], summary.Findings[j]
		if a.Action != b.Action {
			return actionRank(a.Action) > actionRank(b.Action)
		}
		return a.PluginID < b.PluginID
	})

	return summary
}

// ExitCode maps the summary to the scan's process exit status.
func (s *Summary) ExitCode() int {
	warned := false
	for _, f := range s.Findings {
		switch f.Action {
		case ActionFail:
			return ExitFailures
		case ActionWarn:
			warned = true
		case ActionIgnore, ActionInfo:
		}
	}
	if warned {
		return ExitWarnings
	}
	return ExitSuccess
}

// Counts returns the number of findings per action.
func (s *Summary) Counts() (fails, warns, infos int) {
	for _, f := range s.Findings {
		switch f.Action {
		case ActionFail:
			fails++
		case ActionWarn:
			warns++
		case ActionInfo:
			infos++
		case ActionIgnore:
		}
	}
	return fails, warns, infos
}

func actionRank(a Action) int {
	switch a {
	case ActionFail:
		return 3
	case ActionWarn:
		return 2
	case ActionInfo:
		return 1
	}
	return 0
}

// SPDX-License-Identifier: MPL-2.0

package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeScanner serves the subset of the scanner's JSON API the baseline flow
// touches, with a spider that finishes on the second poll and a passive
// queue that drains on the second poll.
type fakeScanner struct {
	mu           sync.Mutex
	spiderPolls  int
	queuePolls   int
	alerts       []Alert
	shutdownSeen bool
	accessedURL  string
}

func (f *fakeScanner) handler(t *testing.T) http.Handler {
	t.Helper()

	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(v); err != nil {
			t.Errorf("encoding response: %v", err)
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch r.URL.Path {
		case "/JSON/core/view/version/":
			writeJSON(w, map[string]string{"version": "D-2026-08-24"})
		case "/JSON/core/action/accessUrl/":
			f.accessedURL = r.URL.Query().Get("url")
			writeJSON(w, map[string]string{"Result": "OK"})
		case "/JSON/spider/action/scan/":
			writeJSON(w, map[string]string{"scan": "7"})
		case "/JSON/spider/view/status/":
			if r.URL.Query().Get("scanId") != "7" {
				t.Errorf("spider status for scan %q, want 7", r.URL.Query().Get("scanId"))
			}
			f.spiderPolls++
			status := "42"
			if f.spiderPolls >= 2 {
				status = "100"
			}
			writeJSON(w, map[string]string{"status": status})
		case "/JSON/pscan/view/recordsToScan/":
			f.queuePolls++
			records := "15"
			if f.queuePolls >= 2 {
				records = "0"
			}
			writeJSON(w, map[string]string{"recordsToScan": records})
		case "/JSON/core/view/alerts/":
			start := r.URL.Query().Get("start")
			if start == "0" {
				writeJSON(w, map[string][]Alert{"alerts": f.alerts})
				return
			}
			writeJSON(w, map[string][]Alert{"alerts": nil})
		case "/JSON/core/action/shutdown/":
			f.shutdownSeen = true
			writeJSON(w, map[string]string{"Result": "OK"})
		default:
			t.Errorf("unexpected API path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	})
}

func testAlerts() []Alert {
	return []Alert{
		{PluginID: "40018", Name: "SQL Injection", Risk: "High", URL: "https://app.example.com/q", Param: "id"},
		{PluginID: "40018", Name: "SQL Injection", Risk: "High", URL: "https://app.example.com/search", Param: "term"},
		{PluginID: "10020", Name: "Missing Anti-clickjacking Header", Risk: "Medium", URL: "https://app.example.com/"},
		{PluginID: "10096", Name: "Timestamp Disclosure", Risk: "Low", URL: "https://static.example.com/app.js"},
	}
}

func newTestRunner(t *testing.T, f *fakeScanner) *Runner {
	t.Helper()

	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return NewRunner(NewAPIClient(srv.URL))
}

func baseOptions() Options {
	return Options{
		Target:       "https://app.example.com",
		PollInterval: time.Millisecond,
	}
}

func TestBaselineDefaultRules(t *testing.T) {
	t.Parallel()

	fake := &fakeScanner{alerts: testAlerts()}
	runner := newTestRunner(t, fake)

	summary, err := runner.Baseline(context.Background(), baseOptions())
	if err != nil {
		t.Fatalf("Baseline() error = %v", err)
	}

	if summary.Version != "D-2026-08-24" {
		t.Errorf("Version = %q", summary.Version)
	}
	if fake.accessedURL != "https://app.example.com" {
		t.Errorf("target seeded as %q", fake.accessedURL)
	}
	if fake.spiderPolls < 2 {
		t.Errorf("spider polled %d times, want at least 2", fake.spiderPolls)
	}
	if fake.queuePolls < 2 {
		t.Errorf("passive queue polled %d times, want at least 2", fake.queuePolls)
	}

	// Default rules warn on everything; three distinct plugins fired.
	if len(summary.Findings) != 3 {
		t.Fatalf("Findings = %d, want 3", len(summary.Findings))
	}
	if got := summary.ExitCode(); got != ExitWarnings {
		t.Errorf("ExitCode() = %d, want %d", got, ExitWarnings)
	}

	// Instances for the same plugin are grouped.
	for _, finding := range summary.Findings {
		if finding.PluginID == "40018" && len(finding.Instances) != 2 {
			t.Errorf("plugin 40018 has %d instances, want 2", len(finding.Instances))
		}
	}

	if fake.shutdownSeen {
		t.Error("scanner shut down without Shutdown option")
	}
}

func TestBaselineRuleActions(t *testing.T) {
	t.Parallel()

	rules := &RuleConfig{
		DefaultAction: ActionInfo,
		OutOfScope:    []string{`^https://static\.example\.com/`},
		Rules: []Rule{
			{ID: "40018", Action: ActionFail},
			{ID: "10020", Action: ActionIgnore},
		},
	}
	if err := rules.compile(); err != nil {
		t.Fatal(err)
	}

	fake := &fakeScanner{alerts: testAlerts()}
	runner := newTestRunner(t, fake)

	opts := baseOptions()
	opts.Rules = rules
	opts.Shutdown = true

	summary, err := runner.Baseline(context.Background(), opts)
	if err != nil {
		t.Fatalf("Baseline() error = %v", err)
	}

	if got := summary.ExitCode(); got != ExitFailures {
		t.Errorf("ExitCode() = %d, want %d", got, ExitFailures)
	}
	if summary.Ignored != 1 {
		t.Errorf("Ignored = %d, want 1", summary.Ignored)
	}
	if summary.OutOfScope != 1 {
		t.Errorf("OutOfScope = %d, want 1", summary.OutOfScope)
	}

	// FAIL findings sort first.
	if summary.Findings[0].Action != ActionFail || summary.Findings[0].PluginID != "40018" {
		t.Errorf("first finding = %s %s, want FAIL 40018", summary.Findings[0].Action, summary.Findings[0].PluginID)
	}

	// The raw alert list keeps what classification dropped, so rule-file
	// templates can still cover ignored and out-of-scope plugins.
	if len(summary.Alerts) != len(testAlerts()) {
		t.Fatalf("Alerts = %d, want %d", len(summary.Alerts), len(testAlerts()))
	}
	tmpl, err := GenerateTemplate(summary.Alerts)
	if err != nil {
		t.Fatalf("GenerateTemplate() error = %v", err)
	}
	for _, id := range []string{"10020", "10096"} {
		if !strings.Contains(tmpl, id) {
			t.Errorf("template missing dropped plugin %s", id)
		}
	}

	if !fake.shutdownSeen {
		t.Error("Shutdown option did not reach the scanner")
	}
}

func TestBaselineProgressDowngrade(t *testing.T) {
	t.Parallel()

	rules := &RuleConfig{
		DefaultAction: ActionWarn,
		Rules:         []Rule{{ID: "40018", Action: ActionFail}},
	}
	if err := rules.compile(); err != nil {
		t.Fatal(err)
	}

	fake := &fakeScanner{alerts: testAlerts()}
	runner := newTestRunner(t, fake)

	opts := baseOptions()
	opts.Rules = rules
	opts.Progress = &ProgressFile{Issues: []ProgressEntry{{ID: "40018", Note: "fix scheduled"}}}

	summary, err := runner.Baseline(context.Background(), opts)
	if err != nil {
		t.Fatalf("Baseline() error = %v", err)
	}

	if got := summary.ExitCode(); got != ExitWarnings {
		t.Errorf("ExitCode() = %d, want %d (FAIL downgraded)", got, ExitWarnings)
	}
	for _, f := range summary.Findings {
		if f.PluginID == "40018" {
			if f.Action != ActionWarn || !f.Downgraded {
				t.Errorf("plugin 40018 = %s downgraded=%v, want WARN downgraded", f.Action, f.Downgraded)
			}
		}
	}
}

func TestBaselineScannerUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	runner := NewRunner(NewAPIClient(srv.URL))
	if _, err := runner.Baseline(context.Background(), baseOptions()); err == nil {
		t.Fatal("Baseline() error = nil against a dead scanner")
	}
}

func TestBaselineBudgetExceeded(t *testing.T) {
	t.Parallel()

	// A spider that never finishes must trip the overall budget.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "version"):
			fmt.Fprint(w, `{"version":"D-2026-08-24"}`)
		case strings.Contains(r.URL.Path, "accessUrl"):
			fmt.Fprint(w, `{"Result":"OK"}`)
		case strings.Contains(r.URL.Path, "spider/action"):
			fmt.Fprint(w, `{"scan":"0"}`)
		case strings.Contains(r.URL.Path, "spider/view"):
			fmt.Fprint(w, `{"status":"10"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	runner := NewRunner(NewAPIClient(srv.URL))

	opts := baseOptions()
	opts.MaxDuration = 50 * time.Millisecond

	if _, err := runner.Baseline(context.Background(), opts); err == nil {
		t.Fatal("Baseline() error = nil, want budget exceeded")
	}
}

func TestRenderMarkdown(t *testing.T) {
	t.Parallel()

	summary := classify(testAlerts(), DefaultRules(), nil)
	summary.Target = "https://app.example.com"
	summary.Version = "D-2026-08-24"
	summary.Duration = 1500 * time.Millisecond

	out := summary.RenderMarkdown()

	for _, want := range []string{
		"# Baseline Scan Report",
		"https://app.example.com",
		"SQL Injection",
		"plugin 40018",
		"param `id`",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderMarkdown() missing %q:\n%s", want, out)
		}
	}
}

func TestSummaryExitCodeEmpty(t *testing.T) {
	t.Parallel()

	summary := classify(nil, DefaultRules(), nil)
	if got := summary.ExitCode(); got != ExitSuccess {
		t.Errorf("ExitCode() = %d for empty summary, want %d", got, ExitSuccess)
	}
}

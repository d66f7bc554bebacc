// SPDX-License-Identifier: MPL-2.0

package scan

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeRuleFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "rules.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadRules(t *testing.T) {
	t.Parallel()

	path := writeRuleFile(t, `
default_action = "WARN"
out_of_scope = ["^https://static\\.example\\.com/"]

[[rule]]
id = "10020"
action = "IGNORE"
note = "frame options handled by the CDN"

[[rule]]
id = "40018"
action = "FAIL"
`)

	cfg, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}

	if got := cfg.ActionFor("10020"); got != ActionIgnore {
		t.Errorf("ActionFor(10020) = %v, want IGNORE", got)
	}
	if got := cfg.ActionFor("40018"); got != ActionFail {
		t.Errorf("ActionFor(40018) = %v, want FAIL", got)
	}
	if got := cfg.ActionFor("99999"); got != ActionWarn {
		t.Errorf("ActionFor(unknown) = %v, want default WARN", got)
	}

	if cfg.InScope("https://static.example.com/app.js") {
		t.Error("InScope() = true for an out-of-scope URL")
	}
	if !cfg.InScope("https://app.example.com/login") {
		t.Error("InScope() = false for an in-scope URL")
	}
}

func TestLoadRulesErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "not toml",
			content: `{"rules": []}`,
		},
		{
			name: "unknown action",
			content: `
[[rule]]
id = "10020"
action = "MAYBE"
`,
		},
		{
			name: "empty plugin id",
			content: `
[[rule]]
id = ""
action = "WARN"
`,
		},
		{
			name: "duplicate plugin id",
			content: `
[[rule]]
id = "10020"
action = "WARN"

[[rule]]
id = "10020"
action = "FAIL"
`,
		},
		{
			name:    "broken scope regex",
			content: `out_of_scope = ["("]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := writeRuleFile(t, tt.content)
			if _, err := LoadRules(path); !errors.Is(err, ErrInvalidRuleConfig) {
				t.Errorf("LoadRules() error = %v, want ErrInvalidRuleConfig", err)
			}
		})
	}
}

func TestGenerateTemplate(t *testing.T) {
	t.Parallel()

	alerts := []Alert{
		{PluginID: "40018", Name: "SQL Injection"},
		{PluginID: "10020", Name: "Missing Anti-clickjacking Header"},
		{PluginID: "40018", Name: "SQL Injection"},
	}

	out, err := GenerateTemplate(alerts)
	if err != nil {
		t.Fatalf("GenerateTemplate() error = %v", err)
	}

	// One rule per plugin, sorted by ID, round-trippable through LoadRules.
	if strings.Count(out, "[[rule]]") != 2 {
		t.Errorf("GenerateTemplate() has %d rules, want 2:\n%s", strings.Count(out, "[[rule]]"), out)
	}
	if strings.Index(out, "10020") > strings.Index(out, "40018") {
		t.Errorf("GenerateTemplate() rules not sorted by plugin ID:\n%s", out)
	}

	path := writeRuleFile(t, out)
	cfg, err := LoadRules(path)
	if err != nil {
		t.Fatalf("generated template does not load: %v", err)
	}
	if got := cfg.ActionFor("40018"); got != ActionWarn {
		t.Errorf("template ActionFor(40018) = %v, want WARN", got)
	}
}

func TestLoadProgress(t *testing.T) {
	t.Parallel()

	path := writeRuleFile(t, `
[[issue]]
id = "40018"
note = "fix scheduled"
`)

	pf, err := LoadProgress(path)
	if err != nil {
		t.Fatalf("LoadProgress() error = %v", err)
	}
	if !pf.InProgress("40018") {
		t.Error("InProgress(40018) = false, want true")
	}
	if pf.InProgress("10020") {
		t.Error("InProgress(10020) = true, want false")
	}

	var nilPF *ProgressFile
	if nilPF.InProgress("40018") {
		t.Error("nil ProgressFile reports in-progress")
	}
}

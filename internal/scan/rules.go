// SPDX-License-Identifier: MPL-2.0

package scan

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Action is what a matched rule does with an alert.
type Action string

const (
	// ActionIgnore drops the alert entirely.
	ActionIgnore Action = "IGNORE"
	// ActionInfo reports the alert without affecting the outcome.
	ActionInfo Action = "INFO"
	// ActionWarn reports the alert and marks the scan warned.
	ActionWarn Action = "WARN"
	// ActionFail reports the alert and fails the scan.
	ActionFail Action = "FAIL"
)

// ErrInvalidRuleConfig indicates the rule file failed validation.
var ErrInvalidRuleConfig = errors.New("invalid scan rule config")

type (
	// Rule binds a scanner plugin ID to an action.
	Rule struct {
		ID     string `toml:"id"`
		Action Action `toml:"action"`
		Note   string `toml:"note,omitempty"`
	}

	// RuleConfig is the TOML rule file: a default action, URL patterns that
	// take matching alerts out of scope, and per-plugin overrides.
	RuleConfig struct {
		DefaultAction Action   `toml:"default_action"`
		OutOfScope    []string `toml:"out_of_scope,omitempty"`
		Rules         []Rule   `toml:"rule,omitempty"`

		byID       map[string]Action
		outOfScope []*regexp.Regexp
	}

	// ProgressEntry marks a known finding that is being worked on; a FAIL
	// for its plugin is downgraded to WARN until the entry is removed.
	ProgressEntry struct {
		ID   string `toml:"id"`
		Note string `toml:"note,omitempty"`
	}

	// ProgressFile is the TOML in-progress issue list.
	ProgressFile struct {
		Issues []ProgressEntry `toml:"issue,omitempty"`
	}
)

// DefaultRules returns the rule set used when no config file is given:
// everything warns, nothing fails, nothing is out of scope.
func DefaultRules() *RuleConfig {
	cfg := &RuleConfig{DefaultAction: ActionWarn}
	_ = cfg.compile() // nothing to compile, cannot fail
	return cfg
}

// LoadRules reads and validates a TOML rule file.
func LoadRules(path string) (*RuleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule config: %w", err)
	}

	var cfg RuleConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRuleConfig, err)
	}
	if cfg.DefaultAction == "" {
		cfg.DefaultAction = ActionWarn
	}

	if err := cfg.compile(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// compile validates actions, indexes rules by plugin ID, and compiles the
// out-of-scope patterns.
func (c *RuleConfig) compile() error {
	if !validAction(c.DefaultAction) {
		return fmt.Errorf("%w: unknown default action %q", ErrInvalidRuleConfig, c.DefaultAction)
	}

	c.byID = make(map[string]Action, len(c.Rules))
	for _, r := range c.Rules {
		if r.ID == "" {
			return fmt.Errorf("%w: rule with empty plugin ID", ErrInvalidRuleConfig)
		}
		if !validAction(r.Action) {
			return fmt.Errorf("%w: rule %s has unknown action %q", ErrInvalidRuleConfig, r.ID, r.Action)
		}
		if _, dup := c.byID[r.ID]; dup {
			return fmt.Errorf("%w: duplicate rule for plugin %s", ErrInvalidRuleConfig, r.ID)
		}
		c.byID[r.ID] = r.Action
	}

	c.outOfScope = c.outOfScope[:0]
	for _, pattern := range c.OutOfScope {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w: out-of-scope pattern %q: %v", ErrInvalidRuleConfig, pattern, err)
		}
		c.outOfScope = append(c.outOfScope, re)
	}
	return nil
}

// ActionFor returns the configured action for a plugin ID, falling back to
// the default action.
func (c *RuleConfig) ActionFor(pluginID string) Action {
	if action, ok := c.byID[pluginID]; ok {
		return action
	}
	return c.DefaultAction
}

// InScope reports whether an alert URL is inside the scan scope.
func (c *RuleConfig) InScope(alertURL string) bool {
	for _, re := range c.outOfScope {
		if re.MatchString(alertURL) {
			return false
		}
	}
	return true
}

// GenerateTemplate renders a TOML rule file covering every plugin present in
// alerts, each set to WARN so a team can tighten individual rules to FAIL or
// relax them to IGNORE.
func GenerateTemplate(alerts []Alert) (string, error) {
	names := make(map[string]string)
	for _, a := range alerts {
		if a.PluginID != "" {
			names[a.PluginID] = a.Name
		}
	}

	ids := make([]string, 0, len(names))
	for id := range names {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	cfg := RuleConfig{DefaultAction: ActionWarn}
	for _, id := range ids {
		cfg.Rules = append(cfg.Rules, Rule{ID: id, Action: ActionWarn, Note: names[id]})
	}

	out, err := toml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("rendering rule template: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("# Scan rule configuration.\n")
	sb.WriteString("# Actions: IGNORE, INFO, WARN, FAIL.\n\n")
	sb.Write(out)
	return sb.String(), nil
}

// LoadProgress reads the TOML in-progress issue list.
func LoadProgress(path string) (*ProgressFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading progress file: %w", err)
	}

	var pf ProgressFile
	if err := toml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing progress file: %w", err)
	}
	for _, issue := range pf.Issues {
		if issue.ID == "" {
			return nil, fmt.Errorf("progress file: issue with empty plugin ID")
		}
	}
	return &pf, nil
}

// InProgress reports whether a plugin ID has an in-progress entry.
func (p *ProgressFile) InProgress(pluginID string) bool {
	if p == nil {
		return false
	}
	for _, issue := range p.Issues {
		if issue.ID == pluginID {
			return true
		}
	}
	return false
}

func validAction(a Action) bool {
	switch a {
	case ActionIgnore, ActionInfo, ActionWarn, ActionFail:
		return true
	}
	return false
}

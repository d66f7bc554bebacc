// SPDX-License-Identifier: MPL-2.0

package scan

import (
	"fmt"
	"strings"
	"time"
)

const (
	// maxInstancesShown limits how many URLs are listed per finding in the
	// rendered report; the full set stays available in the Summary.
	maxInstancesShown = 5

	// timeRound trims sub-millisecond noise from the reported duration.
	timeRound = time.Millisecond
)

// RenderMarkdown renders the summary as a markdown report, suitable both for
// writing to a file and for terminal rendering.
func (s *Summary) RenderMarkdown() string {
	var sb strings.Builder

	sb.WriteString("# Baseline Scan Report\n\n")
	fmt.Fprintf(&sb, "- **Target**: %s\n", s.Target)
	fmt.Fprintf(&sb, "- **Scanner version**: %s\n", s.Version)
	fmt.Fprintf(&sb, "- **Duration**: %s\n", s.Duration.Round(timeRound))

	fails, warns, infos := s.Counts()
	fmt.Fprintf(&sb, "- **Result**: %d FAIL, %d WARN, %d INFO", fails, warns, infos)
	if s.Ignored > 0 || s.OutOfScope > 0 {
		fmt.Fprintf(&sb, " (%d ignored, %d out of scope)", s.Ignored, s.OutOfScope)
	}
	sb.WriteString("\n\n")

	if len(s.Findings) == 0 {
		sb.WriteString("No findings.\n")
		return sb.String()
	}

	sb.WriteString("## Findings\n\n")
	for _, f := range s.Findings {
		fmt.Fprintf(&sb, "### %s: %s (plugin %s)\n\n", f.Action, f.Name, f.PluginID)
		fmt.Fprintf(&sb, "Risk: %s, instances: %d", f.Risk, len(f.Instances))
		if f.Downgraded {
			sb.WriteString(", downgraded from FAIL (in progress)")
		}
		sb.WriteString("\n\n")

		for i, inst := range f.Instances {
			if i == maxInstancesShown {
				fmt.Fprintf(&sb, "- ... and %d more\n", len(f.Instances)-maxInstancesShown)
				break
			}
			fmt.Fprintf(&sb, "- %s", inst.URL)
			if inst.Param != "" {
				fmt.Fprintf(&sb, " (param `%s`)", inst.Param)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

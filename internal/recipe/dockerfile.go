// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"zapdock/internal/overlay"
)

// Generate emits the Dockerfile text for the spec. Section order follows the
// assembly dependency chain: OS provisioning, runtime account, distribution
// trees, configuration overlay, the scoped ownership fix-up, then the
// environment, port, health-check, and entrypoint declarations.
func Generate(spec *Spec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}

	var sb strings.Builder

	fmt.Fprintf(&sb, "FROM %s\n\n", spec.BaseImage)
	fmt.Fprintf(&sb, "# Assembled scanner image, %s channel\n\n", spec.Channel)

	writePackages(&sb, spec.Packages)

	sb.WriteString("# Automation CLI for the scanner's remote API\n")
	sb.WriteString("RUN pip3 install --no-cache-dir --break-system-packages zapcli\n\n")

	fmt.Fprintf(&sb, "RUN useradd --create-home --home-dir %s --shell /bin/bash %s\n\n", spec.Home, spec.User)

	fmt.Fprintf(&sb, "WORKDIR %s\n\n", spec.WorkDir)

	sb.WriteString("# Unpacked distributions\n")
	fmt.Fprintf(&sb, "COPY %s/ %s/\n", spec.ScannerDir, spec.WorkDir)
	fmt.Fprintf(&sb, "COPY %s/ %s/\n\n", spec.BridgeDir, path.Join(spec.WorkDir, spec.BridgeDir))

	if len(spec.Overlay) > 0 {
		sb.WriteString("# Configuration overlay\n")
		for _, f := range spec.Overlay {
			// JSON form keeps filenames with spaces intact.
			fmt.Fprintf(&sb, "COPY [%q, %q]\n", overlay.StageDirName+"/"+f.Name, f.Dest)
		}
		sb.WriteString("\n")
	}

	elevated(&sb, spec.User, func(sb *strings.Builder) {
		writeOwnershipFixup(sb, spec)
	})

	sb.WriteString("# Runtime environment\n")
	for _, env := range spec.Env {
		fmt.Fprintf(&sb, "ENV %s=%q\n", env.Name, env.Value)
	}
	sb.WriteString("\n")

	if len(spec.ExposedPorts) > 0 {
		ports := make([]string, len(spec.ExposedPorts))
		for i, p := range spec.ExposedPorts {
			ports[i] = fmt.Sprintf("%d", p)
		}
		fmt.Fprintf(&sb, "EXPOSE %s\n\n", strings.Join(ports, " "))
	}

	fmt.Fprintf(&sb, "HEALTHCHECK --interval=%s --retries=%d CMD %s || exit 1\n\n",
		spec.Health.Interval, spec.Health.Retries, spec.Health.Command)

	fmt.Fprintf(&sb, "CMD [%q]\n", spec.Entrypoint)

	return sb.String(), nil
}

// writePackages emits a single cached apt layer with the package list sorted
// for stable output.
func writePackages(sb *strings.Builder, packages []string) {
	if len(packages) == 0 {
		return
	}

	sorted := append([]string(nil), packages...)
	sort.Strings(sorted)

	sb.WriteString("# OS provisioning\n")
	sb.WriteString("RUN apt-get update \\\n")
	sb.WriteString("    && apt-get install -y --no-install-recommends \\\n")
	for _, pkg := range sorted {
		fmt.Fprintf(sb, "       %s \\\n", pkg)
	}
	sb.WriteString("    && rm -rf /var/lib/apt/lists/*\n\n")
}

// elevated emits the single privileged section of the recipe. The matching
// de-escalation line is written from a defer, so every exit path out of body
// leaves the recipe running as the unprivileged account.
func elevated(sb *strings.Builder, user string, body func(*strings.Builder)) {
	sb.WriteString("# Ownership fix-up, the only privileged step\n")
	sb.WriteString("USER root\n")
	defer fmt.Fprintf(sb, "USER %s\n\n", user)

	body(sb)
}

// writeOwnershipFixup re-homes everything COPY placed as root onto the
// runtime account and applies each overlay file's declared mode.
func writeOwnershipFixup(sb *strings.Builder, spec *Spec) {
	owner := spec.User + ":" + spec.User

	fmt.Fprintf(sb, "RUN chown -R %s %s %s", owner, spec.WorkDir, spec.Home)
	for _, f := range spec.Overlay {
		if !f.Elevated {
			continue
		}
		fmt.Fprintf(sb, " \\\n    && chmod %o %q", f.Mode.Perm(), f.Dest)
	}
	sb.WriteString("\n")
}

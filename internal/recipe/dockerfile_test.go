// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"errors"
	"strings"
	"testing"

	"zapdock/internal/overlay"
)

func defaultTestSpec(t *testing.T) *Spec {
	t.Helper()

	set, err := overlay.Default()
	if err != nil {
		t.Fatal(err)
	}
	return DefaultSpec("weekly", set.Files())
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	spec := defaultTestSpec(t)
	dockerfile, err := Generate(spec)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	for _, want := range []string{
		"FROM ubuntu:24.04",
		"useradd --create-home --home-dir /home/zap --shell /bin/bash zap",
		"WORKDIR /zap",
		"COPY scanner/ /zap/",
		"COPY webswing-2.3/ /zap/webswing-2.3/",
		`ENV ZAP_PATH="/zap/zap.sh"`,
		`ENV ZAP_PORT="8080"`,
		`ENV VNC_PORT="5900"`,
		`ENV WEBSWING_PORT="8081"`,
		`ENV HOME="/home/zap/"`,
		"EXPOSE 8080 5900 8081",
		"HEALTHCHECK --interval=5s --retries=5 CMD zap-cli status -t 120 || exit 1",
		`CMD ["/zap/zap-x.sh"]`,
	} {
		if !strings.Contains(dockerfile, want) {
			t.Errorf("Generate() output missing %q", want)
		}
	}
}

func TestGenerateNonDefaultPorts(t *testing.T) {
	t.Parallel()

	spec := defaultTestSpec(t)
	spec.SetPorts(9090, 5901, 9091)

	dockerfile, err := Generate(spec)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	// Env and EXPOSE must move together or the published mapping points at
	// a port nothing listens on.
	for _, want := range []string{
		`ENV ZAP_PORT="9090"`,
		`ENV VNC_PORT="5901"`,
		`ENV WEBSWING_PORT="9091"`,
		"EXPOSE 9090 5901 9091",
	} {
		if !strings.Contains(dockerfile, want) {
			t.Errorf("Generate() output missing %q", want)
		}
	}
	for _, stale := range []string{`ENV ZAP_PORT="8080"`, "EXPOSE 8080"} {
		if strings.Contains(dockerfile, stale) {
			t.Errorf("Generate() output still carries default port line %q", stale)
		}
	}
}

func TestGenerateElevationScope(t *testing.T) {
	t.Parallel()

	spec := defaultTestSpec(t)
	dockerfile, err := Generate(spec)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if got := strings.Count(dockerfile, "USER root"); got != 1 {
		t.Errorf("Generate() has %d USER root lines, want exactly 1", got)
	}

	// Elevation must de-escalate: after USER root there is a later USER zap,
	// and nothing below the final USER zap switches identity again.
	rootIdx := strings.Index(dockerfile, "USER root")
	dropIdx := strings.LastIndex(dockerfile, "USER zap")
	if dropIdx < rootIdx {
		t.Fatal("Generate() does not de-escalate after the privileged block")
	}
	if strings.Contains(dockerfile[dropIdx+len("USER zap"):], "USER root") {
		t.Error("Generate() re-elevates after the scoped block")
	}

	// The ownership fix-up lives inside the elevated block.
	block := dockerfile[rootIdx:dropIdx]
	if !strings.Contains(block, "chown -R zap:zap /zap /home/zap") {
		t.Errorf("elevated block missing ownership fix-up:\n%s", block)
	}
	if !strings.Contains(block, `chmod 755 "/home/zap/.xinitrc"`) {
		t.Errorf("elevated block missing xinitrc mode fix:\n%s", block)
	}
}

func TestGenerateNoLiteralCredential(t *testing.T) {
	t.Parallel()

	spec := defaultTestSpec(t)
	dockerfile, err := Generate(spec)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	for _, forbidden := range []string{"chpasswd", "usermod -p", "zap:zap\n"} {
		if strings.Contains(dockerfile, forbidden) {
			t.Errorf("Generate() output contains baked credential construct %q", forbidden)
		}
	}
}

func TestGenerateRejectsCredentialEnv(t *testing.T) {
	t.Parallel()

	spec := defaultTestSpec(t)
	spec.Env = append(spec.Env, EnvVar{Name: "VNC_PASSWORD", Value: "hunter2"})

	if _, err := Generate(spec); !errors.Is(err, ErrLiteralCredential) {
		t.Fatalf("Generate() error = %v, want ErrLiteralCredential", err)
	}
}

func TestGenerateOverlayCopyQuoting(t *testing.T) {
	t.Parallel()

	spec := defaultTestSpec(t)
	dockerfile, err := Generate(spec)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	// Filenames with spaces need the JSON COPY form.
	want := `COPY ["overlay/Default Policy.policy", "/home/zap/.ZAP_D/policies/Default Policy.policy"]`
	if !strings.Contains(dockerfile, want) {
		t.Errorf("Generate() output missing quoted COPY:\n%s", dockerfile)
	}
}

func TestSpecValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Spec)
		wantErr error
	}{
		{
			name:   "valid default",
			mutate: func(*Spec) {},
		},
		{
			name:    "missing base image",
			mutate:  func(s *Spec) { s.BaseImage = "" },
			wantErr: ErrInvalidSpec,
		},
		{
			name:    "missing channel",
			mutate:  func(s *Spec) { s.Channel = "" },
			wantErr: ErrInvalidSpec,
		},
		{
			name:    "relative workdir",
			mutate:  func(s *Spec) { s.WorkDir = "zap" },
			wantErr: ErrInvalidSpec,
		},
		{
			name:    "zero retry budget",
			mutate:  func(s *Spec) { s.Health.Retries = 0 },
			wantErr: ErrInvalidSpec,
		},
		{
			name:    "literal token env",
			mutate:  func(s *Spec) { s.Env = append(s.Env, EnvVar{Name: "API_TOKEN", Value: "abc"}) },
			wantErr: ErrLiteralCredential,
		},
		{
			name: "secret file env allowed",
			mutate: func(s *Spec) {
				s.Env = append(s.Env, EnvVar{Name: "ZAP_VNC_PASSWORD_FILE", Value: "/run/secrets/vnc"})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			spec := defaultTestSpec(t)
			tt.mutate(spec)

			err := spec.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

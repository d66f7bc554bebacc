// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"strings"
	"testing"
)

func TestActionableError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *ActionableError
		want string
	}{
		{
			name: "operation only",
			err:  &ActionableError{Operation: "fetch version manifest"},
			want: "failed to fetch version manifest",
		},
		{
			name: "operation and resource",
			err: &ActionableError{
				Operation: "unpack scanner archive",
				Resource:  "/tmp/ZAP_WEEKLY_D-2016-09-19.zip",
			},
			want: "failed to unpack scanner archive: /tmp/ZAP_WEEKLY_D-2016-09-19.zip",
		},
		{
			name: "full context",
			err: &ActionableError{
				Operation: "build scanner image",
				Resource:  "zapdock/zap:weekly",
				Cause:     errors.New("exit status 1"),
			},
			want: "failed to build scanner image: zapdock/zap:weekly: exit status 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestActionableError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := WrapWithOperation(cause, "fetch version manifest")

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestActionableError_Format(t *testing.T) {
	t.Parallel()

	inner := errors.New("no such host")
	wrapped := WrapWithContext(inner, "resolve download URL", "https://example.invalid/ZapVersions.xml")
	wrapped.Suggestions = []string{"Check DNS settings", "Try --manifest-url to override the feed"}

	got := wrapped.Format(false)
	if !strings.Contains(got, "• Check DNS settings") {
		t.Errorf("Format(false) missing suggestion bullet:\n%s", got)
	}
	if strings.Contains(got, "Error chain:") {
		t.Errorf("Format(false) should not include the error chain:\n%s", got)
	}

	verbose := wrapped.Format(true)
	if !strings.Contains(verbose, "Error chain:") || !strings.Contains(verbose, "no such host") {
		t.Errorf("Format(true) should include the full chain:\n%s", verbose)
	}
}

func TestErrorContext_Build(t *testing.T) {
	t.Parallel()

	if err := NewErrorContext().BuildError(); err != nil {
		t.Errorf("BuildError without operation should return nil, got %v", err)
	}

	err := NewErrorContext().
		WithOperation("stage configuration overlay").
		WithResource("assets/zap-x.sh").
		WithSuggestion("Verify embedded assets are intact").
		Wrap(errors.New("syntax error")).
		Build()

	if err == nil {
		t.Fatal("Build with operation should not return nil")
	}
	if err.Operation != "stage configuration overlay" || err.Resource != "assets/zap-x.sh" {
		t.Errorf("unexpected fields: %+v", err)
	}
	if !err.HasSuggestions() {
		t.Error("expected suggestions to be present")
	}
}

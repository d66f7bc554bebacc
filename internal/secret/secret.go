// SPDX-License-Identifier: MPL-2.0

package secret

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	// EnvVar is the environment variable a credential may be supplied through.
	EnvVar = "ZAPDOCK_VNC_PASSWORD"

	// ContainerSecretPath is where the credential file is mounted inside the
	// container; the launcher reads it via ZAP_VNC_PASSWORD_FILE.
	ContainerSecretPath = "/run/secrets/zap-vnc-password"

	// minCredentialRunes is the shortest accepted credential length.
	minCredentialRunes = 6
)

var (
	// ErrNoCredential indicates neither a secret file nor the environment
	// variable supplied a credential.
	ErrNoCredential = errors.New("no VNC credential supplied")

	// ErrWeakCredential is the sentinel wrapped by WeakCredentialError.
	ErrWeakCredential = errors.New("credential rejected as weak")

	// knownWeak lists values refused regardless of length; "zap" was the
	// historical baked-in default and must never come back.
	knownWeak = map[string]struct{}{
		"zap":      {},
		"password": {},
		"changeme": {},
	}
)

type (
	// Credential is a resolved VNC password together with where it came from.
	Credential struct {
		Value  string
		Origin string // "file" or "env"
	}

	// WeakCredentialError reports why a supplied credential was refused. It
	// wraps ErrWeakCredential and never echoes the credential value.
	WeakCredentialError struct {
		Reason string
	}
)

// Error describes the rejection without revealing the credential.
func (e *WeakCredentialError) Error() string {
	return fmt.Sprintf("credential rejected as weak: %s", e.Reason)
}

// Unwrap returns ErrWeakCredential so callers can use errors.Is.
func (e *WeakCredentialError) Unwrap() error { return ErrWeakCredential }

// Resolve returns the credential for a container run. A non-empty filePath
// wins over the environment variable; with neither, ErrNoCredential is
// returned and the caller must refuse to start the container.
func Resolve(filePath string) (*Credential, error) {
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("reading credential file %s: %w", filePath, err)
		}
		value := strings.TrimRight(string(data), "\r\n")
		if err := validate(value); err != nil {
			return nil, err
		}
		return &Credential{Value: value, Origin: "file"}, nil
	}

	if value, ok := os.LookupEnv(EnvVar); ok {
		if err := validate(value); err != nil {
			return nil, err
		}
		return &Credential{Value: value, Origin: "env"}, nil
	}

	return nil, fmt.Errorf("%w: pass --vnc-password-file or set %s", ErrNoCredential, EnvVar)
}

// WriteTemp writes the credential to a 0600 file under dir for mounting into
// the container, returning its path.
func (c *Credential) WriteTemp(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating secret dir: %w", err)
	}

	f, err := os.CreateTemp(dir, "vnc-password-*")
	if err != nil {
		return "", fmt.Errorf("creating secret file: %w", err)
	}
	path := f.Name()

	if _, err := f.WriteString(c.Value); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("writing secret file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("closing secret file: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("restricting secret file mode: %w", err)
	}

	return filepath.Clean(path), nil
}

// validate refuses empty, short, and known-weak credentials.
func validate(value string) error {
	if value == "" {
		return ErrNoCredential
	}
	if _, weak := knownWeak[strings.ToLower(value)]; weak {
		return &WeakCredentialError{Reason: "value is on the known-default blocklist"}
	}
	if utf8.RuneCountInString(value) < minCredentialRunes {
		return &WeakCredentialError{Reason: fmt.Sprintf("shorter than %d characters", minCredentialRunes)}
	}
	return nil
}

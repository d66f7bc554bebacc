// SPDX-License-Identifier: MPL-2.0

package overlay

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

//go:embed assets/zap-x.sh assets/zap-webswing.sh assets/xinitrc "assets/Default Policy.policy"
var assetsFS embed.FS

// StageDirName is the sub-directory of the build-context staging dir that
// holds the overlay files.
const StageDirName = "overlay"

var (
	// ErrShellSyntax indicates a launcher script failed shell syntax validation.
	ErrShellSyntax = errors.New("shell syntax error in overlay script")

	// ErrDuplicateDest indicates two overlay files target the same in-image path.
	ErrDuplicateDest = errors.New("duplicate overlay destination")
)

type (
	// File is one overlay entry: embedded (or staged) content plus its
	// in-image placement. Elevated files land outside the unprivileged
	// account's reach during COPY and need the recipe's scoped ownership
	// fix-up.
	File struct {
		Name     string // source filename inside the staging dir
		Data     []byte
		Dest     string // absolute in-image destination path
		Mode     os.FileMode
		Elevated bool
	}

	// Set is the full overlay file collection for one assembly run.
	Set struct {
		files      []File
		policyRepo *PolicyRepo
	}

	// Option configures a Set during construction.
	Option func(*Set)
)

// WithPolicyRepo adds scan policies cloned from a git repository at staging
// time. Ref may be empty to use the remote's default branch.
func WithPolicyRepo(url, ref string) Option {
	return func(s *Set) {
		s.policyRepo = &PolicyRepo{URL: url, Ref: ref}
	}
}

// Default returns the embedded overlay file set. The destinations reproduce
// the image layout: launchers and policies under /zap and /home/zap, the X
// session script at /home/zap/.xinitrc.
func Default(opts ...Option) (*Set, error) {
	read := func(name string) ([]byte, error) {
		return assetsFS.ReadFile(path.Join("assets", name))
	}

	var files []File
	for _, entry := range []struct {
		name     string
		dest     string
		mode     os.FileMode
		elevated bool
	}{
		{"zap-x.sh", "/zap/zap-x.sh", 0o755, true},
		{"zap-webswing.sh", "/zap/zap-webswing.sh", 0o755, true},
		{"xinitrc", "/home/zap/.xinitrc", 0o755, true},
		{"Default Policy.policy", "/home/zap/.ZAP_D/policies/Default Policy.policy", 0o644, true},
	} {
		data, err := read(entry.name)
		if err != nil {
			return nil, fmt.Errorf("reading embedded asset %s: %w", entry.name, err)
		}
		files = append(files, File{
			Name:     entry.name,
			Data:     data,
			Dest:     entry.dest,
			Mode:     entry.mode,
			Elevated: entry.elevated,
		})
	}

	s := &Set{files: files}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Files returns the overlay entries in staging order.
func (s *Set) Files() []File {
	return s.files
}

// Add appends an extra overlay file. Returns ErrDuplicateDest if dest is
// already claimed by another entry.
func (s *Set) Add(f File) error {
	if !path.IsAbs(f.Dest) {
		return fmt.Errorf("overlay destination must be absolute: %s", f.Dest)
	}
	for _, existing := range s.files {
		if existing.Dest == f.Dest {
			return fmt.Errorf("%w: %s", ErrDuplicateDest, f.Dest)
		}
	}
	s.files = append(s.files, f)
	return nil
}

// Validate parses every shell asset and rejects the set on any syntax error.
// A launcher that cannot parse would produce an image that fails only at
// container start, long after the build reported success.
func (s *Set) Validate() error {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))

	var errs []error
	for _, f := range s.files {
		if !isShellAsset(f) {
			continue
		}
		if _, err := parser.Parse(bytes.NewReader(f.Data), f.Name); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrShellSyntax, f.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Stage writes the overlay files into dir/overlay and, when a policy repo is
// configured, clones its policies alongside them. Returns the staged file
// list, including any cloned policies.
func (s *Set) Stage(dir string) ([]File, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	stageDir := filepath.Join(dir, StageDirName)
	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating overlay staging dir: %w", err)
	}

	staged := make([]File, 0, len(s.files))
	for _, f := range s.files {
		if err := os.WriteFile(filepath.Join(stageDir, f.Name), f.Data, f.Mode); err != nil {
			return nil, fmt.Errorf("staging overlay file %s: %w", f.Name, err)
		}
		staged = append(staged, f)
	}

	if s.policyRepo != nil {
		policies, err := s.policyRepo.Stage(stageDir)
		if err != nil {
			return nil, fmt.Errorf("staging policy repository: %w", err)
		}
		staged = append(staged, policies...)
	}

	return staged, nil
}

// isShellAsset reports whether an overlay file should be parsed as shell.
// The xinitrc has no .sh suffix but is a shell script all the same.
func isShellAsset(f File) bool {
	if strings.HasSuffix(f.Name, ".sh") {
		return true
	}
	return bytes.HasPrefix(f.Data, []byte("#!"))
}

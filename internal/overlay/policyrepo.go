// SPDX-License-Identifier: MPL-2.0

package overlay

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// policiesDest is the in-image directory for scan policy files.
const policiesDest = "/home/zap/.ZAP_D/policies"

// PolicyRepo sources extra scan policies from a git repository. Only files
// with the scanner's .policy extension are picked up; the clone itself is
// shallow and discarded after staging.
type PolicyRepo struct {
	URL string
	Ref string // branch name; empty means the remote default
}

// Stage shallow-clones the repository into a scratch dir under stageDir,
// copies every .policy file into stageDir, and returns overlay entries for
// the copied policies. The scratch clone is removed before returning.
func (p *PolicyRepo) Stage(stageDir string) (_ []File, err error) {
	cloneDir, err := os.MkdirTemp(stageDir, ".policy-clone-*")
	if err != nil {
		return nil, fmt.Errorf("creating clone dir: %w", err)
	}
	defer func() {
		if removeErr := os.RemoveAll(cloneDir); removeErr != nil && err == nil {
			err = fmt.Errorf("removing clone dir: %w", removeErr)
		}
	}()

	cloneOpts := &git.CloneOptions{
		URL:   p.URL,
		Depth: 1,
	}
	if p.Ref != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(p.Ref)
		cloneOpts.SingleBranch = true
	}

	if _, err := git.PlainClone(cloneDir, false, cloneOpts); err != nil {
		return nil, fmt.Errorf("cloning %s: %w", p.URL, err)
	}

	var files []File
	walkErr := filepath.WalkDir(cloneDir, func(entryPath string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".policy") {
			return nil
		}

		data, readErr := os.ReadFile(entryPath)
		if readErr != nil {
			return fmt.Errorf("reading policy %s: %w", d.Name(), readErr)
		}
		if writeErr := os.WriteFile(filepath.Join(stageDir, d.Name()), data, 0o644); writeErr != nil {
			return fmt.Errorf("staging policy %s: %w", d.Name(), writeErr)
		}

		files = append(files, File{
			Name:     d.Name(),
			Data:     data,
			Dest:     path.Join(policiesDest, d.Name()),
			Mode:     0o644,
			Elevated: true,
		})
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	return files, nil
}

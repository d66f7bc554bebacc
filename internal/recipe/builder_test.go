// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"zapdock/internal/container"
	"zapdock/internal/overlay"
)

// fakeEngine records Build calls and snapshots the staged Dockerfile before
// the builder removes the staging dir.
type fakeEngine struct {
	imageExists bool
	buildCalls  int
	lastTag     container.ImageTag
	dockerfile  string
	stagedFiles []string
}

func (f *fakeEngine) Name() string                            { return "fake" }
func (f *fakeEngine) Available() bool                         { return true }
func (f *fakeEngine) Version(context.Context) (string, error) { return "0.0-test", nil }

func (f *fakeEngine) Remove(context.Context, container.ContainerID, bool) error { return nil }

func (f *fakeEngine) RemoveImage(context.Context, container.ImageTag, bool) error { return nil }
func (f *fakeEngine) InspectImage(context.Context, container.ImageTag) (string, error) {
	return "{}", nil
}

func (f *fakeEngine) Run(context.Context, container.RunOptions) (*container.RunResult, error) {
	return &container.RunResult{}, nil
}

func (f *fakeEngine) Exec(context.Context, container.ContainerID, []string, container.RunOptions) (*container.RunResult, error) {
	return &container.RunResult{}, nil
}

func (f *fakeEngine) ImageExists(context.Context, container.ImageTag) (bool, error) {
	return f.imageExists, nil
}

func (f *fakeEngine) Build(_ context.Context, opts container.BuildOptions) error {
	f.buildCalls++
	f.lastTag = opts.Tag

	data, err := os.ReadFile(filepath.Join(opts.ContextDir, opts.Dockerfile))
	if err != nil {
		return err
	}
	f.dockerfile = string(data)

	_ = filepath.WalkDir(opts.ContextDir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(opts.ContextDir, p)
		f.stagedFiles = append(f.stagedFiles, filepath.ToSlash(rel))
		return nil
	})
	return nil
}

func testInputs(t *testing.T) BuildInputs {
	t.Helper()

	scannerDir := filepath.Join(t.TempDir(), "scanner")
	if err := os.MkdirAll(scannerDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(scannerDir, "zap.sh"), []byte("#!/bin/bash\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	bridgeDir := filepath.Join(t.TempDir(), "webswing-2.3")
	if err := os.MkdirAll(bridgeDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bridgeDir, "webswing-server.war"), []byte("war"), 0o644); err != nil {
		t.Fatal(err)
	}

	set, err := overlay.Default()
	if err != nil {
		t.Fatal(err)
	}

	return BuildInputs{ScannerDir: scannerDir, BridgeDir: bridgeDir, Overlay: set}
}

func TestBuilderBuild(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	builder := NewBuilder(engine, t.TempDir())
	inputs := testInputs(t)
	spec := defaultTestSpec(t)

	result, err := builder.Build(context.Background(), spec, inputs)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if result.Cached {
		t.Error("Build() reported cached on a cold cache")
	}
	if engine.buildCalls != 1 {
		t.Fatalf("engine Build called %d times, want 1", engine.buildCalls)
	}

	tagPattern := regexp.MustCompile(`^zapdock/zap:weekly-[0-9a-f]{12}$`)
	if !tagPattern.MatchString(string(result.ImageTag)) {
		t.Errorf("ImageTag = %q, want zapdock/zap:weekly-<hash12>", result.ImageTag)
	}
	if engine.lastTag != result.ImageTag {
		t.Errorf("engine built %q, result reports %q", engine.lastTag, result.ImageTag)
	}

	if !strings.Contains(engine.dockerfile, "FROM ubuntu:24.04") {
		t.Error("staged Dockerfile missing FROM line")
	}

	wantStaged := []string{
		"Dockerfile",
		"scanner/zap.sh",
		"webswing-2.3/webswing-server.war",
		overlay.StageDirName + "/zap-x.sh",
	}
	for _, want := range wantStaged {
		found := false
		for _, got := range engine.stagedFiles {
			if got == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("build context missing %s (staged: %v)", want, engine.stagedFiles)
		}
	}
}

func TestBuilderCacheReuse(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{imageExists: true}
	builder := NewBuilder(engine, t.TempDir())

	result, err := builder.Build(context.Background(), defaultTestSpec(t), testInputs(t))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !result.Cached {
		t.Error("Build() should reuse the existing image")
	}
	if engine.buildCalls != 0 {
		t.Errorf("engine Build called %d times for a cached image, want 0", engine.buildCalls)
	}
}

func TestBuilderForceRebuild(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{imageExists: true}
	builder := NewBuilder(engine, t.TempDir(), WithForceRebuild(true))

	result, err := builder.Build(context.Background(), defaultTestSpec(t), testInputs(t))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if result.Cached {
		t.Error("Build() with force rebuild must not report cached")
	}
	if engine.buildCalls != 1 {
		t.Errorf("engine Build called %d times, want 1", engine.buildCalls)
	}
}

func TestBuilderTagStability(t *testing.T) {
	t.Parallel()

	builder := NewBuilder(&fakeEngine{}, t.TempDir())
	inputs := testInputs(t)

	tag1, err := builder.ImageTag(defaultTestSpec(t), inputs)
	if err != nil {
		t.Fatal(err)
	}
	tag2, err := builder.ImageTag(defaultTestSpec(t), inputs)
	if err != nil {
		t.Fatal(err)
	}
	if tag1 != tag2 {
		t.Errorf("ImageTag not stable: %q vs %q", tag1, tag2)
	}

	changed := defaultTestSpec(t)
	changed.Packages = append(changed.Packages, "jq")
	tag3, err := builder.ImageTag(changed, inputs)
	if err != nil {
		t.Fatal(err)
	}
	if tag3 == tag1 {
		t.Error("ImageTag unchanged after spec change")
	}
}

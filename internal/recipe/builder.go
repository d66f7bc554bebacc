// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"zapdock/internal/container"
	"zapdock/internal/issue"
	"zapdock/internal/overlay"
)

// imageRepository is the local repository the builder tags assembled images
// into; the full tag is "<repository>:<channel>-<hash12>".
const imageRepository = "zapdock/zap"

type (
	// BuildInputs names the on-disk material for one assembly: the unpacked
	// scanner and bridge trees plus the overlay set to stage alongside them.
	BuildInputs struct {
		ScannerDir string
		BridgeDir  string
		Overlay    *overlay.Set
	}

	// Builder stages a build context and builds the assembled image through a
	// container engine, reusing a cached image when nothing changed.
	Builder struct {
		engine       container.Engine
		stagingRoot  string
		logger       *slog.Logger
		forceRebuild bool
	}

	// BuilderOption configures a Builder during construction.
	BuilderOption func(*Builder)

	// BuildResult reports the image produced by an assembly run.
	BuildResult struct {
		ImageTag container.ImageTag
		Cached   bool
	}
)

// WithForceRebuild makes the builder ignore any cached image.
func WithForceRebuild(force bool) BuilderOption {
	return func(b *Builder) {
		b.forceRebuild = force
	}
}

// WithLogger sets the logger used for build progress messages.
func WithLogger(l *slog.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = l
	}
}

// NewBuilder creates a Builder that stages build contexts under stagingRoot.
func NewBuilder(engine container.Engine, stagingRoot string, opts ...BuilderOption) *Builder {
	b := &Builder{
		engine:      engine,
		stagingRoot: stagingRoot,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ImageTag computes the tag an assembly of spec and inputs would produce,
// without building anything. Useful for cache checks and status reporting.
func (b *Builder) ImageTag(spec *Spec, inputs BuildInputs) (container.ImageTag, error) {
	key, err := b.cacheKey(spec, inputs)
	if err != nil {
		return "", err
	}
	return container.ImageTag(fmt.Sprintf("%s:%s-%s", imageRepository, spec.Channel, key[:12])), nil
}

// Build stages the build context, generates the Dockerfile, and builds the
// image unless a cached one already exists. Build failures are fatal to the
// assembly; there is no retry and no partial image to salvage.
func (b *Builder) Build(ctx context.Context, spec *Spec, inputs BuildInputs) (*BuildResult, error) {
	tag, err := b.ImageTag(spec, inputs)
	if err != nil {
		return nil, err
	}

	if !b.forceRebuild {
		exists, _ := b.engine.ImageExists(ctx, tag) //nolint:errcheck // Error treated as "not found"
		if exists {
			b.logger.Info("reusing cached image", "tag", tag)
			return &BuildResult{ImageTag: tag, Cached: true}, nil
		}
	}

	buildCtx, cleanup, err := b.prepareBuildContext(spec, inputs)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	b.logger.Info("building image", "tag", tag, "context", buildCtx)

	buildOpts := container.BuildOptions{
		ContextDir: buildCtx,
		Dockerfile: "Dockerfile",
		Tag:        tag,
		Stdout:     os.Stderr,
		Stderr:     os.Stderr,
	}
	if err := b.engine.Build(ctx, buildOpts); err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("building scanner image").
			WithResource(string(tag)).
			WithSuggestion("inspect the build output above for the failing step").
			WithSuggestion("re-run with --no-cache to discard stale layers").
			Wrap(err).
			BuildError()
	}

	return &BuildResult{ImageTag: tag}, nil
}

// prepareBuildContext lays out a staging dir containing the Dockerfile, the
// distribution trees, and the staged overlay files.
func (b *Builder) prepareBuildContext(spec *Spec, inputs BuildInputs) (_ string, _ func(), err error) {
	if err := os.MkdirAll(b.stagingRoot, 0o755); err != nil {
		return "", nil, fmt.Errorf("creating staging root: %w", err)
	}

	tmpDir, err := os.MkdirTemp(b.stagingRoot, "ctx-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating staging dir: %w", err)
	}
	cleanup := func() {
		_ = os.RemoveAll(tmpDir) // staging dir only; the image is already tagged
	}
	defer func() {
		if err != nil {
			cleanup()
		}
	}()

	if err = copyTree(inputs.ScannerDir, filepath.Join(tmpDir, spec.ScannerDir)); err != nil {
		return "", nil, fmt.Errorf("staging scanner tree: %w", err)
	}
	if err = copyTree(inputs.BridgeDir, filepath.Join(tmpDir, spec.BridgeDir)); err != nil {
		return "", nil, fmt.Errorf("staging bridge tree: %w", err)
	}

	staged, err := inputs.Overlay.Stage(tmpDir)
	if err != nil {
		return "", nil, err
	}
	spec.Overlay = staged

	dockerfile, err := Generate(spec)
	if err != nil {
		return "", nil, err
	}
	if err = os.WriteFile(filepath.Join(tmpDir, "Dockerfile"), []byte(dockerfile), 0o644); err != nil {
		return "", nil, fmt.Errorf("writing Dockerfile: %w", err)
	}

	return tmpDir, cleanup, nil
}

// cacheKey hashes everything that affects the generated image: the rendered
// spec, both distribution trees, and the overlay contents.
func (b *Builder) cacheKey(spec *Spec, inputs BuildInputs) (string, error) {
	h := sha256.New()

	h.Write([]byte("base:" + spec.BaseImage))
	h.Write([]byte("channel:" + spec.Channel))
	for _, pkg := range spec.Packages {
		h.Write([]byte("pkg:" + pkg))
	}
	for _, env := range spec.Env {
		h.Write([]byte("env:" + env.Name + "=" + env.Value))
	}
	fmt.Fprintf(h, "health:%s:%d:%s", spec.Health.Interval, spec.Health.Retries, spec.Health.Command)

	scannerHash, err := dirHash(inputs.ScannerDir)
	if err != nil {
		return "", err
	}
	h.Write([]byte("scanner:" + scannerHash))

	bridgeHash, err := dirHash(inputs.BridgeDir)
	if err != nil {
		return "", err
	}
	h.Write([]byte("bridge:" + bridgeHash))

	for _, f := range inputs.Overlay.Files() {
		fileSum := sha256.Sum256(f.Data)
		fmt.Fprintf(h, "overlay:%s:%s:%o:%x", f.Name, f.Dest, f.Mode.Perm(), fileSum)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// copyTree copies a directory recursively, preserving permission bits.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, relPath)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, info.Mode().Perm())
	})
}

// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"zapdock/internal/config"
	"zapdock/internal/container"
	"zapdock/internal/fetch"
	"zapdock/internal/issue"
	"zapdock/internal/manifest"
	"zapdock/internal/overlay"
	"zapdock/internal/recipe"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

var (
	printRecipe bool
	policyRepo  string
	policyRef   string

	assembleCmd = &cobra.Command{
		Use:   "assemble",
		Short: "Resolve, download, verify, and build the scanner image",
		Long: `Assemble runs the full pipeline: resolve the release channel against the
version manifest, download and checksum-verify the scanner and bridge
distributions, stage the configuration overlay, and build the image.

With --print, the generated Dockerfile is rendered instead of built.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if printRecipe {
				return printGeneratedRecipe(cmd.Context())
			}
			return assembleImage(cmd.Context(), false)
		},
	}
)

func init() {
	assembleCmd.Flags().BoolVar(&printRecipe, "print", false, "print the generated Dockerfile instead of building")
	assembleCmd.Flags().StringVar(&policyRepo, "policy-repo", "", "git repository with extra .policy scan policies")
	assembleCmd.Flags().StringVar(&policyRef, "policy-ref", "", "branch of --policy-repo to use")
}

// assembly is the staged material for one image build.
type assembly struct {
	release manifest.Release
	spec    *recipe.Spec
	inputs  recipe.BuildInputs
}

// resolveRelease fetches the version manifest and selects the configured
// channel, failing loudly on zero or multiple matches.
func resolveRelease(ctx context.Context) (manifest.Release, error) {
	client := manifest.NewClient(
		manifest.WithFeedURL(cfg.ManifestURL),
		manifest.WithUserAgent("zapdock/"+Version),
	)

	releases, err := client.Fetch(ctx)
	if err != nil {
		return manifest.Release{}, issue.NewErrorContext().
			WithOperation("fetching version manifest").
			WithResource(cfg.ManifestURL).
			WithSuggestion("check network access to the manifest feed").
			Wrap(err).
			BuildError()
	}

	release, err := manifest.SelectChannel(releases, cfg.Channel.String())
	if err != nil {
		return manifest.Release{}, issue.NewErrorContext().
			WithOperation("selecting release channel").
			WithResource(cfg.Channel.String()).
			WithSuggestion("list available channels with: zapdock resolve --all").
			WithSuggestion("set channel in the config file or with ZAPDOCK_CHANNEL").
			Wrap(err).
			BuildError()
	}
	return release, nil
}

// prepareAssembly downloads and unpacks both distributions, verifies the
// scanner checksum when the manifest carries one, and stages the overlay.
func prepareAssembly(ctx context.Context) (*assembly, error) {
	release, err := resolveRelease(ctx)
	if err != nil {
		return nil, err
	}

	downloader := fetch.NewDownloader(
		fetch.WithUserAgent("zapdock/" + Version),
		fetch.WithLogger(slog.Default()),
	)
	artifactsDir := filepath.Join(cfg.CacheDir, "artifacts")

	scannerArchive, err := downloadArtifact(ctx, downloader, release.URL, artifactsDir, release.File, release.SHA256)
	if err != nil {
		return nil, err
	}
	if release.SHA256 != "" {
		if err := fetch.VerifySHA256(scannerArchive, release.SHA256); err != nil {
			return nil, issue.NewErrorContext().
				WithOperation("verifying scanner archive").
				WithResource(release.File).
				WithSuggestion("delete the cached archive and re-run to re-download").
				Wrap(err).
				BuildError()
		}
	}

	bridgeArchive, err := downloadArtifact(ctx, downloader, cfg.BridgeURL, artifactsDir, "", "")
	if err != nil {
		return nil, err
	}

	unpackRoot := filepath.Join(cfg.CacheDir, "unpack", cfg.Channel.String())
	scannerDir, err := fetch.Unpack(scannerArchive, filepath.Join(unpackRoot, "scanner"))
	if err != nil {
		return nil, fmt.Errorf("unpacking scanner distribution: %w", err)
	}
	if err := verifyLauncher(scannerDir); err != nil {
		return nil, err
	}

	bridgeDir, err := fetch.Unpack(bridgeArchive, filepath.Join(unpackRoot, "bridge"))
	if err != nil {
		return nil, fmt.Errorf("unpacking bridge distribution: %w", err)
	}

	var overlayOpts []overlay.Option
	if policyRepo != "" {
		overlayOpts = append(overlayOpts, overlay.WithPolicyRepo(policyRepo, policyRef))
	}
	set, err := overlay.Default(overlayOpts...)
	if err != nil {
		return nil, err
	}

	spec := recipe.DefaultSpec(cfg.Channel.String(), set.Files())
	spec.Health.Interval = cfg.Health.Interval
	spec.Health.Retries = cfg.Health.Retries
	spec.SetPorts(cfg.ProxyPort, cfg.VNCPort, cfg.WebswingPort)

	return &assembly{
		release: release,
		spec:    spec,
		inputs: recipe.BuildInputs{
			ScannerDir: scannerDir,
			BridgeDir:  bridgeDir,
			Overlay:    set,
		},
	}, nil
}

// downloadArtifact reuses a cached archive when present, otherwise downloads
// it fresh, retrying transient network failures. When the manifest carries a
// checksum, reuse additionally requires the cached file to still match; a
// pinned URL without a checksum is trusted by name alone.
func downloadArtifact(ctx context.Context, d *fetch.Downloader, url, destDir, filename, expectedHash string) (string, error) {
	if filename == "" {
		filename = path.Base(strings.SplitN(url, "?", 2)[0])
	}
	if filename != "" && filename != "." && filename != "/" {
		cached := filepath.Join(destDir, filename)
		if _, err := os.Stat(cached); err == nil {
			if expectedHash == "" || fetch.VerifySHA256(cached, expectedHash) == nil {
				slog.Debug("reusing cached artifact", "file", filename)
				return cached, nil
			}
		}
	}

	var path string
	err := container.RetryWithBackoff(ctx, 3, 2*time.Second, func(attempt int) (bool, error) {
		if attempt > 0 {
			slog.Warn("retrying artifact download", "url", url, "attempt", attempt+1)
		}
		var downloadErr error
		path, downloadErr = d.Download(ctx, url, destDir)
		return ctx.Err() == nil, downloadErr
	})
	if err != nil {
		return "", issue.NewErrorContext().
			WithOperation("downloading artifact").
			WithResource(url).
			WithSuggestion("check network access and retry").
			Wrap(err).
			BuildError()
	}
	return path, nil
}

// verifyLauncher checks the unpacked scanner tree contains the executable
// the image's ZAP_PATH points at.
func verifyLauncher(scannerDir string) error {
	launcher := filepath.Join(scannerDir, filepath.Base(recipe.DefaultZapPath))
	info, err := os.Stat(launcher)
	if err != nil {
		return issue.NewErrorContext().
			WithOperation("validating scanner distribution").
			WithResource(launcher).
			WithSuggestion("the release archive layout may have changed upstream").
			Wrap(err).
			BuildError()
	}
	if info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("scanner launcher %s is not executable", launcher)
	}
	return nil
}

// newEngine creates the configured container engine, falling back through
// the detection chain when the preferred one is unavailable.
func newEngine() (container.Engine, error) {
	engine, err := container.NewEngine(engineTypeFor(cfg.Engine))
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("detecting container engine").
			WithSuggestion("install docker or podman, or point DOCKER_HOST at a reachable daemon").
			Wrap(err).
			BuildError()
	}
	return engine, nil
}

func engineTypeFor(e config.ContainerEngine) container.EngineType {
	switch e {
	case config.ContainerEnginePodman:
		return container.EngineTypePodman
	case config.ContainerEngineAPI:
		return container.EngineTypeAPI
	case config.ContainerEngineDocker:
		return container.EngineTypeDocker
	}
	return container.EngineTypeDocker
}

// assembleImage runs the pipeline and builds the image.
func assembleImage(ctx context.Context, forceRebuild bool) error {
	a, err := prepareAssembly(ctx)
	if err != nil {
		return err
	}

	engine, err := newEngine()
	if err != nil {
		return err
	}

	builder := recipe.NewBuilder(engine,
		filepath.Join(cfg.CacheDir, "staging"),
		recipe.WithForceRebuild(forceRebuild),
	)

	result, err := builder.Build(ctx, a.spec, a.inputs)
	if err != nil {
		return err
	}

	state := "built"
	if result.Cached {
		state = "cached"
	}
	fmt.Printf("%s %s (%s, scanner %s)\n",
		SuccessStyle.Render("Image "+state+":"),
		TagStyle.Render(string(result.ImageTag)),
		cfg.Channel, a.release.Version)
	return nil
}

// printGeneratedRecipe renders the Dockerfile that assemble would build.
func printGeneratedRecipe(ctx context.Context) error {
	a, err := prepareAssembly(ctx)
	if err != nil {
		return err
	}

	stageDir, err := os.MkdirTemp("", "zapdock-print-*")
	if err != nil {
		return fmt.Errorf("creating scratch dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(stageDir) }()

	staged, err := a.inputs.Overlay.Stage(stageDir)
	if err != nil {
		return err
	}
	a.spec.Overlay = staged

	dockerfile, err := recipe.Generate(a.spec)
	if err != nil {
		return err
	}

	rendered, err := glamour.Render("```dockerfile\n"+dockerfile+"```\n", "dark")
	if err != nil {
		// Fall back to the raw text when the terminal renderer fails.
		fmt.Println(dockerfile)
		return nil
	}
	fmt.Print(rendered)
	return nil
}

// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"zapdock/internal/container"
	"zapdock/internal/health"
	"zapdock/internal/recipe"
	"zapdock/internal/secret"

	"github.com/spf13/cobra"
)

var (
	vncPasswordFile string
	containerName   string
	noWait          bool

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Start a scanner container from the assembled image",
		Long: `Run starts a detached container from the assembled image, publishing the
proxy, VNC, and bridge ports. The VNC credential is mounted as a secret file;
without one (via --vnc-password-file or ` + secret.EnvVar + `) the container
is refused, never started with a default password.

Unless --no-wait is given, run blocks until the health probe reports the
scanner healthy or the probe's retry budget is exhausted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runContainer(cmd)
		},
	}
)

func init() {
	runCmd.Flags().StringVar(&vncPasswordFile, "vnc-password-file", "", "file holding the VNC credential")
	runCmd.Flags().StringVar(&containerName, "name", "zapdock", "container name")
	runCmd.Flags().BoolVar(&noWait, "no-wait", false, "do not wait for the container to become healthy")
}

func runContainer(cmd *cobra.Command) error {
	ctx := cmd.Context()

	cred, err := secret.Resolve(vncPasswordFile)
	if err != nil {
		return err
	}

	engine, err := newEngine()
	if err != nil {
		return err
	}

	a, err := prepareAssembly(ctx)
	if err != nil {
		return err
	}
	builder := recipe.NewBuilder(engine, filepath.Join(cfg.CacheDir, "staging"))
	result, err := builder.Build(ctx, a.spec, a.inputs)
	if err != nil {
		return err
	}

	secretPath, err := cred.WriteTemp(filepath.Join(cfg.CacheDir, "secrets"))
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(secretPath) }()

	ports := []container.PortMapping{
		{HostPort: container.NetworkPort(cfg.ProxyPort), ContainerPort: container.NetworkPort(cfg.ProxyPort)},
		{HostPort: container.NetworkPort(cfg.VNCPort), ContainerPort: container.NetworkPort(cfg.VNCPort)},
		{HostPort: container.NetworkPort(cfg.WebswingPort), ContainerPort: container.NetworkPort(cfg.WebswingPort)},
	}

	runResult, err := engine.Run(ctx, container.RunOptions{
		Image: result.ImageTag,
		Name:  containerName,
		Env: map[string]string{
			"ZAP_VNC_PASSWORD_FILE": secret.ContainerSecretPath,
		},
		Volumes: []container.VolumeMount{
			{HostPath: secretPath, ContainerPath: secret.ContainerSecretPath, ReadOnly: true},
		},
		Ports:  ports,
		Detach: true,
	})
	if err != nil {
		return err
	}

	fmt.Printf("%s %s\n", SuccessStyle.Render("Container started:"), TagStyle.Render(string(runResult.ContainerID)))

	if noWait {
		return nil
	}

	probe := health.NewCLIProbe(engine, runResult.ContainerID, nil)
	prober := health.NewProber(probe, cfg.Health.Interval, cfg.Health.Retries)

	fmt.Println(SubtitleStyle.Render("Waiting for the scanner to become healthy..."))
	if err := prober.WaitHealthy(ctx); err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	fmt.Printf("%s proxy on :%d, VNC on :%d, browser UI on :%d\n",
		SuccessStyle.Render("Healthy."), cfg.ProxyPort, cfg.VNCPort, cfg.WebswingPort)
	return nil
}

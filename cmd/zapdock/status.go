// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"zapdock/internal/container"
	"zapdock/internal/health"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <container>",
	Short: "Probe a running scanner container once",
	Long: `Status runs a single health probe (the automation CLI's status command)
against the named container and reports the result. The exit code is 0 when
the probe succeeds and 1 when it fails, so it can be scripted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine()
		if err != nil {
			return err
		}

		probe := health.NewCLIProbe(engine, container.ContainerID(args[0]), nil)
		if err := probe.Check(cmd.Context()); err != nil {
			fmt.Printf("%s %v\n", ErrorStyle.Render("unhealthy:"), err)
			return &ExitError{Code: 1, Err: err}
		}

		fmt.Println(SuccessStyle.Render("healthy"))
		return nil
	},
}

// SPDX-License-Identifier: MPL-2.0

package cmd

import "github.com/spf13/cobra"

var (
	noCache bool

	buildCmd = &cobra.Command{
		Use:   "build",
		Short: "Build the scanner image, optionally ignoring the cache",
		Long: `Build is assemble without the shortcuts: with --no-cache it discards any
previously built image for the same content hash and rebuilds from scratch.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return assembleImage(cmd.Context(), noCache)
		},
	}
)

func init() {
	buildCmd.Flags().BoolVar(&noCache, "no-cache", false, "rebuild even when a cached image exists")
}

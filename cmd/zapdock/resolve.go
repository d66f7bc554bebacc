// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"zapdock/internal/config"
	"zapdock/internal/manifest"

	"github.com/spf13/cobra"
)

var (
	resolveAll     bool
	resolveChannel string

	resolveCmd = &cobra.Command{
		Use:   "resolve",
		Short: "Show the release the configured channel resolves to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if resolveChannel != "" {
				cfg.Channel = config.ReleaseChannel(resolveChannel)
			}
			if resolveAll {
				return listReleases(cmd)
			}

			release, err := resolveRelease(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Println(TitleStyle.Render("Release"))
			fmt.Printf("  Channel:  %s\n", release.Channel)
			fmt.Printf("  Version:  %s\n", release.Version)
			fmt.Printf("  File:     %s\n", release.File)
			fmt.Printf("  URL:      %s\n", TagStyle.Render(release.URL))
			if release.Size > 0 {
				fmt.Printf("  Size:     %d bytes\n", release.Size)
			}
			if release.SHA256 != "" {
				fmt.Printf("  SHA-256:  %s\n", release.SHA256)
			}
			if release.Date != "" {
				fmt.Printf("  Date:     %s\n", release.Date)
			}
			return nil
		},
	}
)

func init() {
	resolveCmd.Flags().BoolVar(&resolveAll, "all", false, "list every release in the manifest")
	resolveCmd.Flags().StringVar(&resolveChannel, "channel", "", "release channel to resolve (default from config)")
}

func listReleases(cmd *cobra.Command) error {
	client := manifest.NewClient(
		manifest.WithFeedURL(cfg.ManifestURL),
		manifest.WithUserAgent("zapdock/"+Version),
	)

	releases, err := client.Fetch(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Println(TitleStyle.Render("Manifest releases"))
	for _, r := range releases {
		marker := "  "
		if r.Channel == cfg.Channel.String() {
			marker = SuccessStyle.Render("* ")
		}
		fmt.Printf("%s%-10s %-20s %s\n", marker, r.Channel, r.Version, r.File)
	}
	return nil
}

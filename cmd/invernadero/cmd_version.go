/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/invernadero/internal/version"
)

var versionCheck bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and optionally check for a newer release",
	RunE:  runVersion,
}

func init() {
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "Query GitHub for the latest release")
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "invernadero %s\n", version.Version)
	if !versionCheck {
		return nil
	}

	info, err := version.CheckLatest(cmd.Context(), nil, "")
	if err != nil {
		return fmt.Errorf("check latest release: %w", err)
	}
	if info.UpdateAvailable {
		fmt.Fprintf(out, "update available: %s (%s)\n", info.LatestVersion, info.ReleaseURL)
		if info.ReleaseNotes != "" {
			fmt.Fprintf(out, "  %s\n", info.ReleaseNotes)
		}
		return nil
	}
	fmt.Fprintln(out, "up to date")
	return nil
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/invernadero/internal/auth"
)

var (
	tokenUser   string
	tokenTTL    time.Duration
	tokenScopes []string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API bearer token",
	Long: `Issue a JWT signed with INVERNADERO_JWT_SIGNING_KEY for the upload and
simulate endpoints.

Examples:
  invernadero token --user ops
  invernadero token --user ci --ttl 1h
`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "User id stamped into the token (required)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	tokenCmd.Flags().StringSliceVar(&tokenScopes, "scope", nil, "Optional scopes")
	_ = tokenCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if tokenTTL <= 0 {
		return fmt.Errorf("--ttl must be positive")
	}

	token, err := auth.Issue([]byte(cfg.JWTSigningKey), auth.Claims{UserID: tokenUser, Scopes: tokenScopes}, tokenTTL)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

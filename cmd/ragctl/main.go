// Package main implements ragctl, a command-line client for the ragd HTTP API.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the ragd HTTP server
	serverURL string
	// tenantID is sent as X-Tenant-ID when no token is given
	tenantID string
	// token is sent as an Authorization bearer token
	token string
	// outputJSON prints raw JSON responses
	outputJSON bool
	// version information
	version = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ragctl",
		Short: "CLI for ragd HTTP server operations",
		Long: `ragctl is a command-line interface for the ragd HTTP server.
It ingests documents, asks questions against them and manages a tenant's
stored documents.

Requests are scoped to one tenant, given either with --tenant (header
mode) or with --token (bearer mode).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&serverURL, "server", envOr("RAGD_SERVER", "http://localhost:8000"), "ragd server URL")
	root.PersistentFlags().StringVar(&tenantID, "tenant", os.Getenv("RAGD_TENANT"), "tenant identifier")
	root.PersistentFlags().StringVar(&token, "token", os.Getenv("RAGD_TOKEN"), "bearer token (takes precedence over --tenant)")
	root.PersistentFlags().BoolVar(&outputJSON, "json", false, "print raw JSON responses")

	root.AddCommand(
		newHealthCmd(),
		newIngestCmd(),
		newQueryCmd(),
		newSearchCmd(),
		newDeleteCmd(),
		newStatsCmd(),
		newRedactCmd(),
		newWatchCmd(),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

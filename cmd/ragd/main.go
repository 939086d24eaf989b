// Ragd is a multi-tenant document ingestion and question answering service.
//
// It serves the HTTP API by default. The mcp subcommand serves the same
// pipelines as MCP tools over stdio instead.
//
// Configuration is loaded from ~/.config/ragd/config.yaml (or -config) and
// RAGD_* environment variables. A .env file in the working directory is
// loaded first. See internal/config for details.
//
// Usage:
//
//	# Start the HTTP server with defaults
//	ragd
//
//	# Use an explicit config file
//	ragd -config /etc/ragd/config.yaml
//
//	# Serve MCP over stdio
//	RAGD_VECTORSTORE_PROVIDER=chromem ragd mcp
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/ragd/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Ignoring unreadable .env file: %v", err)
	}

	mode := modeHTTP
	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		case "mcp":
			mode = modeMCP
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  ragd           Start the HTTP server\n")
			fmt.Fprintf(os.Stderr, "  ragd mcp       Serve MCP tools over stdio\n")
			fmt.Fprintf(os.Stderr, "  ragd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, mode); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("ragd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

const requestTimeout = 2 * time.Minute

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check ragd server health",
		Long: `Check the health status of the ragd HTTP server.

Examples:
  # Check health
  ragctl health

  # Check health on a different server
  ragctl health --server http://localhost:8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp healthResponse
			c := newClient(5 * time.Second)
			if err := c.do(cmd.Context(), http.MethodGet, "/health", nil, "", false, &resp); err != nil {
				return err
			}
			if outputJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Server Status: %s\n", resp.Status)
			fmt.Fprintf(out, "Server URL: %s\n", c.baseURL)
			if resp.Version != "" {
				fmt.Fprintf(out, "Version: %s\n", resp.Version)
			}
			for name, status := range resp.Components {
				fmt.Fprintf(out, "  %s: %s\n", name, status)
			}
			return nil
		},
	}
}

func newIngestCmd() *cobra.Command {
	var documentID string

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest a .txt, .md or .pdf file",
		Long: `Upload a file to the tenant's knowledge base.

Re-ingesting with the same --document-id replaces the stored fragments.

Examples:
  ragctl ingest --tenant acme handbook.pdf
  ragctl ingest --tenant acme --document-id 6f1c7e62-0a8e-4b8e-9f7a-2f1d1d1f4f10 notes.md`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient(requestTimeout).upload(cmd.Context(), args[0], documentID)
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			printIngest(cmd.OutOrStdout(), args[0], resp)
			return nil
		},
	}
	cmd.Flags().StringVar(&documentID, "document-id", "", "document UUID (generated when empty)")
	return cmd
}

func printIngest(w io.Writer, name string, resp ingestResponse) {
	fmt.Fprintf(w, "%s: stored %d of %d fragments as %s\n", name, resp.FragmentsStored, resp.FragmentsTotal, resp.DocumentID)
	if resp.FragmentsFailed > 0 {
		fmt.Fprintf(w, "  warning: %d fragments failed to embed\n", resp.FragmentsFailed)
	}
	if resp.FragmentsSkipped > 0 {
		fmt.Fprintf(w, "  warning: %d fragments skipped for a wrong vector dimension\n", resp.FragmentsSkipped)
	}
	if resp.Redactions > 0 {
		fmt.Fprintf(w, "  redacted %d secret(s)\n", resp.Redactions)
	}
	if resp.Summary != "" {
		fmt.Fprintf(w, "  summary: %s\n", resp.Summary)
	}
}

func newQueryCmd() *cobra.Command {
	var limit int
	var showSources bool

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask a question against the tenant's documents",
		Long: `Ask a question; the answer is grounded in the tenant's stored documents.

Examples:
  ragctl query --tenant acme "What is the refund policy?"
  ragctl query --tenant acme --sources --limit 3 "Who approves expenses?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp queryResponse
			req := queryRequest{Query: strings.Join(args, " "), Limit: limit}
			if err := newClient(requestTimeout).postJSON(cmd.Context(), "/api/v1/query", req, &resp); err != nil {
				return err
			}
			if outputJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, resp.Answer)
			if showSources && len(resp.Sources) > 0 {
				fmt.Fprintln(out)
				printHits(out, resp.Sources)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum fragments to use (server default when 0)")
	cmd.Flags().BoolVar(&showSources, "sources", false, "print the fragments the answer is based on")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "List the stored fragments most similar to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp searchResponse
			req := queryRequest{Query: strings.Join(args, " "), Limit: limit}
			if err := newClient(requestTimeout).postJSON(cmd.Context(), "/api/v1/search", req, &resp); err != nil {
				return err
			}
			if outputJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			if resp.Count == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No matching fragments.")
				return nil
			}
			printHits(cmd.OutOrStdout(), resp.Hits)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum hits (server default when 0)")
	return cmd
}

const previewLen = 60

func printHits(w io.Writer, hits []hit) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tDOCUMENT\tCHUNK\tTEXT")
	for _, h := range hits {
		fmt.Fprintf(tw, "%.3f\t%s\t%d\t%s\n", h.Score, h.DocumentID, h.ChunkIndex, preview(h.Text))
	}
	_ = tw.Flush()
}

func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= previewLen {
		return text
	}
	return string(r[:previewLen]) + "..."
}

func newDeleteCmd() *cobra.Command {
	var documentID string
	var all bool

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete one document, or every document of the tenant",
		Long: `Delete stored documents.

Examples:
  # Delete one document
  ragctl delete --tenant acme --document 6f1c7e62-0a8e-4b8e-9f7a-2f1d1d1f4f10

  # Delete everything the tenant has stored
  ragctl delete --tenant acme --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (documentID == "") == !all {
				return fmt.Errorf("pass exactly one of --document or --all")
			}

			path := "/api/v1/documents"
			if documentID != "" {
				path += "/" + url.PathEscape(documentID)
			}

			var resp deleteResponse
			if err := newClient(requestTimeout).do(cmd.Context(), http.MethodDelete, path, nil, "", true, &resp); err != nil {
				return err
			}
			if outputJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&documentID, "document", "", "document UUID to delete")
	cmd.Flags().BoolVar(&all, "all", false, "delete every document of the tenant")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show how many fragments the tenant has stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp statsResponse
			if err := newClient(30*time.Second).do(cmd.Context(), http.MethodGet, "/api/v1/stats", nil, "", true, &resp); err != nil {
				return err
			}
			if outputJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tenant %s: %d fragments\n", resp.TenantID, resp.Fragments)
			return nil
		},
	}
}

func newRedactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "redact [file]",
		Short: "Redact secrets from a file or stdin",
		Long: `Redact secrets from a file or stdin using the ragd server.

Examples:
  # Redact a file
  ragctl redact --tenant acme .env

  # Redact from stdin
  cat output.log | ragctl redact --tenant acme -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var content []byte
			var err error
			if len(args) == 0 || args[0] == "-" {
				content, err = io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read from stdin: %w", err)
				}
			} else {
				content, err = os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("failed to read file %s: %w", args[0], err)
				}
			}
			if len(content) == 0 {
				return fmt.Errorf("no content to redact")
			}

			var resp redactResponse
			if err := newClient(30*time.Second).postJSON(cmd.Context(), "/api/v1/redact", redactRequest{Content: string(content)}, &resp); err != nil {
				return err
			}
			if outputJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}

			fmt.Fprint(cmd.OutOrStdout(), resp.Content)
			if resp.FindingsCount > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "\n[ragctl] Redacted %d secret(s)\n", resp.FindingsCount)
			}
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

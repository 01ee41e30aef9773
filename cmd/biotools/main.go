// Package main provides the biotools CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/richinex/biotools/cli"
	"github.com/richinex/biotools/observability"
	"github.com/richinex/biotools/service"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool

	initTracing = observability.InitTracingFromEnv
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the CLI with args and returns the process exit code.
// Deferred tracing shutdown runs before main exits.
func run(args []string) int {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	shutdown, err := initTracing("biotools")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: tracing disabled: %v\n", err)
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(ctx)
		}()
	}

	rootCmd := &cobra.Command{
		Use:   "biotools",
		Short: "Druggability prediction and BLASTp search as a service",
		Long: `Wraps the SPIDER druggability classifier and NCBI BLAST+ blastp.

Both tools are exposed over REST (serve), over MCP on stdio (mcp) and
directly from the command line. BLAST databases are downloaded on first
use when AUTO_UPDATE=true; concurrent requests for the same database
share one download.

Configuration comes from the environment (or a .env file):
  BLAST_DB_PATH, BLAST_DB_NAME, AUTO_UPDATE, BLAST_EVALUE,
  BLAST_MAX_TARGET_SEQS, BLAST_OUTFMT, BLAST_MM_ENV,
  SPIDER_HOME, SPIDER_MM_ENV, TOOL_TIMEOUT_SECONDS, PORT,
  BIOTOOLS_TOOLS_FILE, BIOTOOLS_STATE_DB, BIOTOOLS_STATE_DSN,
  BIOTOOLS_ARTIFACT_BACKEND`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log tool invocations to stderr")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(mcpCmd())
	rootCmd.AddCommand(predictCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(dbCmd())
	rootCmd.AddCommand(toolsCmd())

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func options() cli.Options {
	opts := cli.DefaultOptions()
	opts.Verbose = verbose
	return opts
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST server (MCP HTTP routes included)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Serve(context.Background(), port, options())
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Listen port (default $PORT or 8000)")

	return cmd
}

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve MCP over stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.MCPStdio(context.Background(), options())
		},
	}

	cmd.AddCommand(probeCmd())

	return cmd
}

func probeCmd() *cobra.Command {
	var toolName string
	var arguments string

	cmd := &cobra.Command{
		Use:   "probe -- <server command> [args...]",
		Short: "Connect to an MCP server, list its tools and optionally call one",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Probe(context.Background(), args, toolName, arguments, options())
		},
	}

	cmd.Flags().StringVar(&toolName, "call", "", "Tool to call after listing")
	cmd.Flags().StringVar(&arguments, "args", "", "JSON arguments for --call")

	return cmd
}

func predictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict [sequence|-]",
		Short: "Predict druggability of a protein sequence",
		Long: `Predict whether a protein is druggable with the SPIDER classifier.

The sequence may be raw residues or FASTA. Pass "-" to read it from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := cli.ReadSequence(args[0], os.Stdin)
			if err != nil {
				return err
			}
			return cli.Predict(context.Background(), seq, options())
		},
	}

	return cmd
}

func searchCmd() *cobra.Command {
	var req service.SearchRequest

	cmd := &cobra.Command{
		Use:   "search [sequence|-]",
		Short: "Run a BLASTp search",
		Long: `Search a protein sequence against a BLAST protein database.

The database is downloaded first if it is missing and AUTO_UPDATE=true.
Pass "-" to read the sequence from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := cli.ReadSequence(args[0], os.Stdin)
			if err != nil {
				return err
			}
			req.Sequence = seq
			return cli.Search(context.Background(), req, options())
		},
	}

	cmd.Flags().StringVar(&req.DBName, "db", "", "Database name (default $BLAST_DB_NAME)")
	cmd.Flags().Float64Var(&req.Evalue, "evalue", 0, "E-value threshold (default $BLAST_EVALUE)")
	cmd.Flags().IntVar(&req.MaxTargetSeqs, "max-target-seqs", 0, "Maximum hits (default $BLAST_MAX_TARGET_SEQS)")
	cmd.Flags().StringVar(&req.Outfmt, "outfmt", "", "Tabular BLAST outfmt specifier")
	cmd.Flags().StringVarP(&req.OutputFormat, "format", "f", service.FormatJSON, "Output format: json or table")

	return cmd
}

func dbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage local BLAST databases",
	}

	var force bool
	ensure := &cobra.Command{
		Use:   "ensure [name]",
		Short: "Make sure a database is available locally",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return cli.EnsureDatabase(context.Background(), name, force, options())
		},
	}
	ensure.Flags().BoolVar(&force, "force", false, "Run the updater even if the database is present")

	list := &cobra.Command{
		Use:   "list",
		Short: "List known and discovered databases",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ListDatabases(context.Background(), options())
		},
	}

	cmd.AddCommand(ensure, list)
	return cmd
}

func toolsCmd() *cobra.Command {
	var verboseTools bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List MCP tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ListTools(verboseTools, options())
		},
	}

	cmd.Flags().BoolVarP(&verboseTools, "verbose", "V", false, "Show tool parameters")

	return cmd
}

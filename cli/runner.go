// Command execution for CLI commands.
//
// Information Hiding:
// - Component wiring from settings hidden
// - Storage and artifact backend selection hidden
// - Output formatting hidden

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/richinex/biotools/api"
	"github.com/richinex/biotools/config"
	"github.com/richinex/biotools/dbcache"
	"github.com/richinex/biotools/mcp"
	"github.com/richinex/biotools/service"
	"github.com/richinex/biotools/storage"
	"github.com/richinex/biotools/tools"
)

// Version is reported by the servers and the index route.
const Version = "0.1.0"

// Options holds CLI execution options.
type Options struct {
	Verbose bool
	// Out receives command output. Nil means stdout.
	Out io.Writer
}

// DefaultOptions returns default CLI options.
func DefaultOptions() Options {
	return Options{Out: os.Stdout}
}

func (o Options) out() io.Writer {
	if o.Out == nil {
		return os.Stdout
	}
	return o.Out
}

// App is the wired facade and the adapters built on it.
type App struct {
	Settings config.Settings
	Service  *service.Service
	Registry *tools.Registry
	MCP      *mcp.Server

	closers []func() error
}

// Build wires every component from settings. logger may be nil.
func Build(settings config.Settings, logger *log.Logger) (*App, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	commands, err := config.LoadToolCommands(settings)
	if err != nil {
		return nil, err
	}
	invoker := tools.NewProcessInvoker(commands, settings.Tools.Timeout).WithLogger(logger)

	app := &App{Settings: settings}

	store, closeStore, err := openHandleStore(context.Background(), settings.Storage)
	if err != nil {
		return nil, err
	}
	if closeStore != nil {
		app.closers = append(app.closers, closeStore)
	}

	sink, err := newArtifactSink(settings.Storage)
	if err != nil {
		app.Close()
		return nil, err
	}

	cache := dbcache.New(dbcache.Config{
		Root:       settings.Blast.DBPath,
		AutoUpdate: settings.Blast.AutoUpdate,
		Timeout:    settings.Tools.Timeout,
	}, invoker, store).WithLogger(logger)

	app.Service = service.New(service.Config{
		DefaultDB:     settings.Blast.DBName,
		Evalue:        settings.Blast.Evalue,
		MaxTargetSeqs: settings.Blast.MaxTargetSeqs,
		Outfmt:        settings.Blast.Outfmt,
		SpiderHome:    settings.Spider.Home,
		Timeout:       settings.Tools.Timeout,
	}, invoker, cache).WithArtifactSink(sink).WithLogger(logger)

	app.Registry, err = mcp.NewRegistry(app.Service)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.MCP = mcp.NewServer(app.Registry, "biotools", Version).WithLogger(logger)
	return app, nil
}

// Close releases storage held by the app.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

// openHandleStore picks PostgreSQL when a DSN is set, SQLite when a state
// path is set, and memory otherwise.
func openHandleStore(ctx context.Context, cfg config.StorageConfig) (storage.HandleStore, func() error, error) {
	if dsn := strings.TrimSpace(cfg.StateDSN); dsn != "" {
		store, err := storage.OpenPostgresHandleStore(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open state database: %w", err)
		}
		return store, store.Close, nil
	}
	if strings.TrimSpace(cfg.StateDB) == "" {
		return storage.NewMemoryHandleStore(), nil, nil
	}
	store, err := storage.OpenSqliteHandleStore(cfg.StateDB)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open state database: %w", err)
	}
	return store, store.Close, nil
}

func newArtifactSink(cfg config.StorageConfig) (storage.ArtifactSink, error) {
	switch cfg.ArtifactBackend {
	case "", "none":
		return storage.NopSink{}, nil
	case "local":
		return storage.NewLocalSink(cfg.ArtifactRoot), nil
	case "minio":
		return storage.NewMinIOSink(storage.MinIOConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
		})
	default:
		return nil, fmt.Errorf("unsupported artifact backend %q", cfg.ArtifactBackend)
	}
}

func newLogger(verbose bool) *log.Logger {
	if !verbose {
		return nil
	}
	return log.New(os.Stderr, "biotools: ", log.LstdFlags)
}

func buildFromEnv(logger *log.Logger) (*App, error) {
	settings, err := config.New()
	if err != nil {
		return nil, err
	}
	return Build(settings, logger)
}

// Serve runs the REST server, with the MCP HTTP routes mounted, until
// interrupted.
func Serve(ctx context.Context, port int, opts Options) error {
	logger := log.New(os.Stderr, "biotools: ", log.LstdFlags)
	app, err := buildFromEnv(logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if port <= 0 {
		port = app.Settings.Server.Port
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := api.NewServer(app.Service, app.MCP, Version).WithLogger(logger)
	addr := ":" + strconv.Itoa(port)
	logger.Printf("listening on %s (databases in %s, auto-update %t)",
		addr, app.Settings.Blast.DBPath, app.Settings.Blast.AutoUpdate)
	return api.ListenAndServe(ctx, addr, srv.Handler())
}

// MCPStdio serves MCP over stdin/stdout. Logs go to stderr.
func MCPStdio(ctx context.Context, opts Options) error {
	app, err := buildFromEnv(newLogger(opts.Verbose))
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return app.MCP.Serve(ctx, os.Stdin, os.Stdout)
}

// Predict runs the druggability classifier on one sequence.
func Predict(ctx context.Context, sequence string, opts Options) error {
	app, err := buildFromEnv(newLogger(opts.Verbose))
	if err != nil {
		return err
	}
	defer app.Close()

	return printOutcome(opts.out(), app.Service.Predict(ctx, sequence))
}

// Search runs blastp for one sequence.
func Search(ctx context.Context, req service.SearchRequest, opts Options) error {
	app, err := buildFromEnv(newLogger(opts.Verbose))
	if err != nil {
		return err
	}
	defer app.Close()

	out := app.Service.Search(ctx, req)
	if result, ok := out.Payload.(*service.SearchResult); ok && out.OK() && result.Table != "" {
		fmt.Fprintln(opts.out(), result.Table)
		return nil
	}
	return printOutcome(opts.out(), out)
}

// EnsureDatabase makes a BLAST database available locally.
func EnsureDatabase(ctx context.Context, name string, force bool, opts Options) error {
	app, err := buildFromEnv(newLogger(opts.Verbose))
	if err != nil {
		return err
	}
	defer app.Close()

	return printOutcome(opts.out(), app.Service.EnsureDatabase(ctx, name, force))
}

// ListDatabases prints known and discovered databases.
func ListDatabases(ctx context.Context, opts Options) error {
	app, err := buildFromEnv(newLogger(opts.Verbose))
	if err != nil {
		return err
	}
	defer app.Close()

	return printOutcome(opts.out(), app.Service.ListDatabases(ctx))
}

// ListTools prints the MCP tool catalogue.
func ListTools(verbose bool, opts Options) error {
	// Metadata only; the facade is never called.
	registry, err := mcp.NewRegistry(nil)
	if err != nil {
		return err
	}
	printTools(opts.out(), registry, verbose)
	return nil
}

// Probe starts an MCP server command, lists its tools and optionally
// calls one.
func Probe(ctx context.Context, command []string, toolName, arguments string, opts Options) error {
	if len(command) == 0 {
		return fmt.Errorf("server command is required")
	}

	client, err := mcp.NewClient(ctx, command[0], command[1:]...)
	if err != nil {
		return err
	}
	defer client.Close()

	w := opts.out()
	fmt.Fprintf(w, "Connected to %v %v\n\n", client.ServerInfo["name"], client.ServerInfo["version"])

	infos, err := client.ListTools(ctx)
	if err != nil {
		return err
	}
	for _, info := range infos {
		desc := ""
		if info.Description != nil {
			desc = *info.Description
		}
		fmt.Fprintf(w, "  %s\n    %s\n", info.Name, desc)
	}

	if toolName == "" {
		return nil
	}

	var args json.RawMessage
	if arguments != "" {
		args = json.RawMessage(arguments)
		if !json.Valid(args) {
			return fmt.Errorf("arguments must be a JSON object")
		}
	}
	res, err := client.CallTool(ctx, toolName, args)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%s:\n", toolName)
	for _, c := range res.Content {
		fmt.Fprintln(w, c.Text)
	}
	if res.IsError {
		return fmt.Errorf("tool %s reported an error", toolName)
	}
	return nil
}

// ReadSequence returns arg, or the contents of stdin when arg is "-".
func ReadSequence(arg string, stdin io.Reader) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read sequence from stdin: %w", err)
	}
	return string(data), nil
}

// Helper functions

func printOutcome(w io.Writer, out service.OperationOutcome) error {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Fprintln(w, string(data))
	if !out.OK() {
		return fmt.Errorf("%s: %s", out.ErrorKind, out.Message)
	}
	return nil
}

func printTools(w io.Writer, registry *tools.Registry, verbose bool) {
	fmt.Fprintln(w, "Available tools:")
	fmt.Fprintln(w)

	for _, meta := range registry.List() {
		fmt.Fprintf(w, "  %s\n", meta.Name)
		fmt.Fprintf(w, "    %s\n", meta.Description)

		if verbose && len(meta.Parameters) > 0 {
			fmt.Fprintln(w, "    Parameters:")
			for _, param := range meta.Parameters {
				req := ""
				if param.Required {
					req = "*"
				}
				fmt.Fprintf(w, "      %s%s: %s - %s\n", param.Name, req, param.ParamType, param.Description)
			}
		}
		fmt.Fprintln(w)
	}
}

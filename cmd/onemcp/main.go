// Command onemcp indexes a handbook into a knowledge graph and serves
// retrieval over HTTP or MCP.
//
// Usage:
//
//	onemcp index ./handbook --config onemcp.yaml
//	onemcp retrieve '{"context":[{"entity":"Sale","operations":["Retrieve"]}]}'
//	onemcp serve ./handbook --port 8080
//	onemcp mcp ./handbook
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onemcp/onemcp/pkg/config"
	"github.com/onemcp/onemcp/pkg/graph/driver"
	"github.com/onemcp/onemcp/pkg/handbook"
	"github.com/onemcp/onemcp/pkg/indexer"
	"github.com/onemcp/onemcp/pkg/llms"
	"github.com/onemcp/onemcp/pkg/logger"
	"github.com/onemcp/onemcp/pkg/observability"
	"github.com/onemcp/onemcp/pkg/progress"
	"github.com/onemcp/onemcp/pkg/retrieval"
	"github.com/onemcp/onemcp/pkg/runlog"
	"github.com/onemcp/onemcp/pkg/server"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Index    IndexCmd    `cmd:"" help:"Index a handbook into the graph."`
	Retrieve RetrieveCmd `cmd:"" help:"Run a retrieval request against an indexed handbook."`
	Serve    ServeCmd    `cmd:"" help:"Serve the retrieval API over HTTP."`
	MCP      MCPCmd      `cmd:"" name:"mcp" help:"Serve retrieval and indexing tools over MCP stdio."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

// loadConfig reads the config file when one is given, otherwise returns
// the documented defaults.
func (cli *CLI) loadConfig() (*config.Config, error) {
	if cli.Config == "" {
		return config.Default(), nil
	}
	return config.Load(cli.Config)
}

// openDriver resolves the configured driver bound to the handbook's
// namespace.
func openDriver(ctx context.Context, cfg *config.Config, hb *handbook.Handbook) (driver.Driver, error) {
	d, err := driver.New(cfg.Indexing.Graph.Driver, driver.Config{
		Namespace: driver.Namespace(hb.Name()),
		Path:      cfg.Indexing.Graph.Path,
	})
	if err != nil {
		return nil, err
	}
	if err := d.Initialize(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// resolveLLM builds the configured provider. A missing provider is not
// fatal; the indexer falls back to rule-based extraction.
func resolveLLM(cfg *config.Config, log *slog.Logger) llms.Provider {
	name, pcfg, err := cfg.ResolveLLMProvider()
	if err != nil {
		log.Warn("no usable llm provider; extraction will be rule-based", "reason", err)
		return nil
	}
	provider, err := llms.NewRegistry().CreateFromConfig(name, pcfg)
	if err != nil {
		log.Warn("llm provider unavailable; extraction will be rule-based", "provider", name, "error", err)
		return nil
	}
	return provider
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("onemcp version %s\n", version)
	return nil
}

// IndexCmd builds the knowledge graph for a handbook.
type IndexCmd struct {
	Handbook string `arg:"" optional:"" default:"." help:"Handbook directory." type:"path"`

	Watch  bool   `help:"Watch the handbook for changes and re-index."`
	RunDir string `name:"run-dir" help:"Directory for run transcripts." default:".onemcp/runs"`
}

func (c *IndexCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	log := logger.GetLogger()
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}

	hb, err := handbook.Load(c.Handbook)
	if err != nil {
		return err
	}

	d, err := openDriver(ctx, cfg, hb)
	if err != nil {
		return err
	}
	defer d.Shutdown(context.Background())

	reg := prometheus.NewRegistry()
	metrics := observability.New(reg)
	llm := resolveLLM(cfg, log)

	runIndex := func(ctx context.Context) (*indexer.Summary, error) {
		coord, err := indexer.New(indexer.Options{
			Config:   cfg,
			Driver:   d,
			LLM:      llm,
			Progress: progress.NewRateLimited(progress.NewLogSink(log), time.Second, 0.1),
			Metrics:  metrics,
			Run:      runlog.New(c.RunDir, log),
			Logger:   log,
		})
		if err != nil {
			return nil, err
		}
		return coord.Index(ctx, hb)
	}

	summary, err := runIndex(ctx)
	if err != nil {
		return err
	}
	printJSON(os.Stdout, summary)

	if !c.Watch {
		return nil
	}
	log.Info("watching handbook for changes", "root", hb.Root)
	return indexer.Watch(ctx, hb.Root, indexer.DefaultWatchDebounce, log, func(ctx context.Context) error {
		reloaded, err := handbook.Load(c.Handbook)
		if err != nil {
			return err
		}
		hb = reloaded
		summary, err := runIndex(ctx)
		if err != nil {
			return err
		}
		printJSON(os.Stdout, summary)
		return nil
	})
}

// RetrieveCmd runs a single retrieval request and prints the response.
type RetrieveCmd struct {
	Request  string `arg:"" help:"Retrieval request as JSON, or '-' to read from stdin."`
	Handbook string `help:"Handbook directory (selects the graph namespace)." default:"." type:"path"`
}

func (c *RetrieveCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	log := logger.GetLogger()
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}

	raw := []byte(c.Request)
	if c.Request == "-" {
		raw, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read request from stdin: %w", err)
		}
	}
	var req retrieval.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("invalid retrieval request: %w", err)
	}

	hb, err := handbook.Load(c.Handbook)
	if err != nil {
		return err
	}
	d, err := openDriver(ctx, cfg, hb)
	if err != nil {
		return err
	}
	defer d.Shutdown(context.Background())

	svc, err := retrieval.New(d, nil, log)
	if err != nil {
		return err
	}
	resp, err := svc.Retrieve(ctx, req)
	if err != nil {
		return err
	}
	printJSON(os.Stdout, resp)
	return nil
}

// ServeCmd serves the retrieval API over HTTP.
type ServeCmd struct {
	Handbook string `arg:"" optional:"" default:"." help:"Handbook directory." type:"path"`

	Host string `help:"Host to bind."`
	Port int    `help:"Port to listen on (overrides config)." default:"0"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	log := logger.GetLogger()
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	hb, err := handbook.Load(c.Handbook)
	if err != nil {
		return err
	}
	d, err := openDriver(ctx, cfg, hb)
	if err != nil {
		return err
	}
	defer d.Shutdown(context.Background())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics := observability.New(reg)

	svc, err := retrieval.New(d, metrics, log)
	if err != nil {
		return err
	}
	srv, err := server.NewHTTP(server.HTTPOptions{
		Host:      cfg.Server.Host,
		Port:      cfg.Server.Port,
		Retrieval: svc,
		Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:    log,
	})
	if err != nil {
		return err
	}
	return srv.Start(ctx)
}

// MCPCmd serves the retrieval and indexing tools over MCP stdio.
type MCPCmd struct {
	Handbook string `arg:"" optional:"" default:"." help:"Handbook directory." type:"path"`

	RunDir string `name:"run-dir" help:"Directory for run transcripts." default:".onemcp/runs"`
}

func (c *MCPCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	log := logger.GetLogger()
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}

	hb, err := handbook.Load(c.Handbook)
	if err != nil {
		return err
	}
	d, err := openDriver(ctx, cfg, hb)
	if err != nil {
		return err
	}
	defer d.Shutdown(context.Background())

	reg := prometheus.NewRegistry()
	metrics := observability.New(reg)
	llm := resolveLLM(cfg, log)

	svc, err := retrieval.New(d, metrics, log)
	if err != nil {
		return err
	}

	// The progress sink needs the MCP server to push notifications, and the
	// index tool needs the sink. The sink variable is assigned after the
	// server is built and only read once a tool call arrives.
	var sink progress.Sink = progress.NopSink{}

	indexFn := func(ctx context.Context) (*indexer.Summary, error) {
		reloaded, err := handbook.Load(c.Handbook)
		if err != nil {
			return nil, err
		}
		coord, err := indexer.New(indexer.Options{
			Config:   cfg,
			Driver:   d,
			LLM:      llm,
			Progress: sink,
			Metrics:  metrics,
			Run:      runlog.New(c.RunDir, log),
			Logger:   log,
		})
		if err != nil {
			return nil, err
		}
		return coord.Index(ctx, reloaded)
	}

	srv, err := server.NewMCP(server.MCPOptions{
		Name:      "onemcp",
		Version:   buildVersion(),
		Retrieval: svc,
		Index:     indexFn,
		Logger:    log,
	})
	if err != nil {
		return err
	}
	sink = progress.NewRateLimited(
		progress.NewMCPSink(srv, progress.NewLogSink(log), log),
		time.Second, 0.1,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- server.ServeStdio(srv) }()
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func main() {
	config.LoadDotEnv()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("onemcp"),
		kong.Description("onemcp - handbook knowledge-graph indexer and context retrieval engine"),
		kong.UsageOnError(),
	)

	out := os.Stderr
	var cleanup func()
	if cli.LogFile != "" {
		file, c, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			os.Exit(1)
		}
		out, cleanup = file, c
		defer cleanup()
	}
	logger.Init(logger.ParseLevel(cli.LogLevel), out, cli.LogFormat)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}

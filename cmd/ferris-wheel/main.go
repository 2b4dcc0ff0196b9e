// Ferris Wheel is a chat assistant that remembers past conversations and
// manages each client's calendar.
//
// It exposes a small HTTP API (GET /status, POST /chat and a websocket
// chat endpoint) and a CLI for one-shot questions. Configuration is
// loaded from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	ferris-wheel serve                  Start the API server
//	ferris-wheel init [dir]             Write an example config.yaml
//	ferris-wheel ask <question>         Ask a single question
//	ferris-wheel version                Print version and build information
//	ferris-wheel -o json version        Output version information as JSON
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/khariha/ferris-wheel/internal/api"
	"github.com/khariha/ferris-wheel/internal/assistant"
	"github.com/khariha/ferris-wheel/internal/buildinfo"
	"github.com/khariha/ferris-wheel/internal/calendar"
	"github.com/khariha/ferris-wheel/internal/config"
	"github.com/khariha/ferris-wheel/internal/connwatch"
	"github.com/khariha/ferris-wheel/internal/delegate"
	"github.com/khariha/ferris-wheel/internal/docstore"
	"github.com/khariha/ferris-wheel/internal/embeddings"
	"github.com/khariha/ferris-wheel/internal/llm"
	"github.com/khariha/ferris-wheel/internal/memory"
	"github.com/khariha/ferris-wheel/internal/mqtt"
	"github.com/khariha/ferris-wheel/internal/usage"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main only builds the OS-level environment and hands off to [run], so
// the whole lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Structured logs go to stdout; the caller
// prints a returned error to stderr. Arguments are parsed by hand so
// that run keeps no package-level state and tests can call it in
// parallel.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var clientID string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-client" && i+1 < len(args):
			clientID = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-client="):
			clientID = strings.TrimPrefix(args[i], "-client=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}
	if clientID == "" {
		clientID = "cli"
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, stderr, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: ferris-wheel ask <question>")
		}
		return runAsk(ctx, stdout, stderr, configPath, clientID, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, kv := range info.Fields() {
		fmt.Fprintf(w, "  %-12s %s\n", kv[0]+":", kv[1])
	}
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Ferris Wheel - calendar assistant with memory")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: ferris-wheel [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  init [dir]   Write an example config.yaml (default: .)")
	fmt.Fprintln(w, "  ask          Ask a single question")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -client <uuid>    Client for ask (default: cli)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  "+strings.Join(config.DefaultSearchPaths(), ", "))
	return nil
}

// runAsk answers one question through the full stack, so the memory it
// forms and the events it changes persist exactly as they would when
// served.
func runAsk(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath, clientID string, args []string) error {
	question := strings.Join(args, " ")

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	// Logs go to stderr so stdout carries only the answer.
	logger := newLogger(stderr, logLevel(cfg), cfg.LogFormat)
	logger.Info("config loaded", "path", cfgPath)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.assistant.Run(ctx, clientID, question)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	fmt.Fprintln(stdout, res.Content)
	return nil
}

// runServe starts the API server and blocks until ctx is cancelled or a
// SIGINT or SIGTERM arrives. In-flight requests get ten seconds to
// drain, then the stores close via defers.
func runServe(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting Ferris Wheel", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger = newLogger(stdout, logLevel(cfg), cfg.LogFormat)
	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"model", cfg.Models.Default,
		"document_store", cfg.DocumentStore.Driver,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, a.assistant, cfg.Agent.RequestTimeout, logger)
	server.SetConversations(a.assistant)
	server.SetEvents(a.calendar)
	server.SetDelegations(a.delegations)
	server.SetUsage(a.usage)

	// Dependency health is reported by /health and never blocks startup.
	connMgr := connwatch.NewManager(logger)
	defer connMgr.Stop()
	for name, probe := range a.probes {
		connMgr.Watch(ctx, connwatch.Dependency{Name: name, Probe: probe})
	}
	server.SetHealth(connMgr)

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", "error", err)
		}
	}()

	if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// documentStore is satisfied by both document-store backends.
type documentStore interface {
	calendar.Store
	memory.ConversationStore
}

// app is the wired object graph shared by serve and ask.
type app struct {
	assistant   *assistant.Assistant
	calendar    *calendar.Service
	delegations *delegate.Store
	usage       *usage.Store
	probes      map[string]connwatch.ProbeFunc
	closers     []func() error
}

// Close releases everything newApp opened, most recent first.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newApp opens the stores, connects the optional MQTT publisher and
// builds the calendar sub-agent and the assistant on top of them. On
// error everything already opened is closed.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{probes: make(map[string]connwatch.ProbeFunc)}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	// --- Document store ---
	var docs documentStore
	var ledgerDB *sql.DB
	switch cfg.DocumentStore.Driver {
	case "mongo":
		m, err := docstore.OpenMongo(ctx, cfg.DocumentStore.URI, cfg.DocumentStore.Database, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return m.Close(closeCtx)
		})
		docs = m
		a.probes["mongo"] = m.Ping

		// Delegation and usage history stay local even when documents are
		// shared.
		path := filepath.Join(cfg.DataDir, "ledger.db")
		ledgerDB, err = sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
		if err != nil {
			return nil, fmt.Errorf("open ledger database %s: %w", path, err)
		}
		a.closers = append(a.closers, ledgerDB.Close)
	default:
		s, err := docstore.OpenSQLite(cfg.DocumentStore.Path)
		if err != nil {
			return nil, fmt.Errorf("open document store %s: %w", cfg.DocumentStore.Path, err)
		}
		a.closers = append(a.closers, s.Close)
		docs = s
		ledgerDB = s.DB()
		logger.Info("document store opened", "driver", "sqlite", "path", cfg.DocumentStore.Path)
	}

	a.delegations, err = delegate.NewStore(ledgerDB)
	if err != nil {
		return nil, fmt.Errorf("open delegation store: %w", err)
	}
	a.usage, err = usage.NewStore(ledgerDB)
	if err != nil {
		return nil, fmt.Errorf("open usage store: %w", err)
	}

	// --- Vector store ---
	embed, err := embeddings.Func(cfg.Embeddings, cfg.OpenAI)
	if err != nil {
		return nil, err
	}
	vectors, err := memory.NewChromemStore(cfg.VectorStore.Path, cfg.VectorStore.Compress, embed, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("vector store opened", "path", cfg.VectorStore.Path, "embeddings", cfg.Embeddings.Provider)

	// --- MQTT ---
	var notifier calendar.Notifier
	if cfg.MQTT.Configured() {
		instanceID, err := mqtt.LoadOrCreateInstanceID(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		pub := mqtt.New(cfg.MQTT, instanceID, logger)
		if err := pub.Start(ctx); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return pub.Stop(stopCtx)
		})
		notifier = pub
		a.probes["mqtt"] = pub.AwaitConnection
	}

	// --- Agents ---
	base := createLLMClient(cfg, logger)
	a.probes["llm"] = base.Ping
	client := usage.NewMeter(base, a.usage, cfg.Pricing, logger)

	a.calendar = calendar.NewService(docs, notifier, logger)
	events, err := calendar.NewAgent(logger, client, a.calendar, calendar.AgentConfig{
		Model:         cfg.Models.Default,
		MaxIterations: cfg.Agent.CalendarMaxIterations,
		Timezone:      cfg.Timezone,
	})
	if err != nil {
		return nil, fmt.Errorf("calendar agent: %w", err)
	}

	store := memory.NewStore(docs, vectors, logger)
	a.assistant, err = assistant.New(logger, assistant.Deps{
		LLM:         client,
		Recaller:    memory.NewRecaller(vectors, logger),
		Store:       store,
		Cortex:      memory.NewCortex(client, cfg.Models.Recollection, store, logger),
		Events:      events,
		Delegations: a.delegations,
	}, assistant.Config{
		Model:         cfg.Models.Default,
		PlannerModel:  cfg.Models.Planner,
		MaxIterations: cfg.Agent.MaxIterations,
		RecallLimit:   cfg.Agent.RecallLimit,
		Planning:      cfg.Agent.Planning,
	})
	if err != nil {
		return nil, fmt.Errorf("assistant: %w", err)
	}
	return a, nil
}

// newLogger creates a structured logger that writes to w at the given
// level and format. Any format other than "json" gives text.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// logLevel returns the configured level. Validate has already rejected
// unknown names.
func logLevel(cfg *config.Config) slog.Level {
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	return level
}

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used (and must exist).
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}

// createLLMClient builds a multi-provider client. Each model listed in
// config is routed to its provider. Unlisted models go to OpenAI when an
// API key is configured and to Ollama otherwise.
func createLLMClient(cfg *config.Config, logger *slog.Logger) llm.Client {
	ollamaClient := llm.NewOllamaClient(cfg.Models.OllamaURL, logger)

	var fallback llm.Client = ollamaClient
	fallbackName := "ollama"
	var openaiClient *llm.OpenAIClient
	if cfg.OpenAI.Configured() {
		openaiClient = llm.NewOpenAIClient(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, logger)
		fallback = openaiClient
		fallbackName = "openai"
	}

	multi := llm.NewMultiClient(fallback)
	multi.AddProvider("ollama", ollamaClient)
	if openaiClient != nil {
		multi.AddProvider("openai", openaiClient)
		logger.Info("OpenAI provider configured")
	}

	for _, m := range cfg.Models.Available {
		multi.AddModel(m.Name, m.Provider)
	}

	defaultProvider := multi.Route(cfg.Models.Default)
	if defaultProvider == "fallback" {
		defaultProvider = fallbackName
	}
	logger.Info("LLM client initialized", "default_model", cfg.Models.Default, "default_provider", defaultProvider)

	return multi
}

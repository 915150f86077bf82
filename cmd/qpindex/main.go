// Package main is the qpindex CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/qpindex/internal/cli"
	"github.com/hyperjump/qpindex/internal/config"
	"github.com/hyperjump/qpindex/internal/describe"
	"github.com/hyperjump/qpindex/internal/embedding"
	"github.com/hyperjump/qpindex/internal/indexer"
	"github.com/hyperjump/qpindex/internal/llm"
	"github.com/hyperjump/qpindex/internal/models"
	"github.com/hyperjump/qpindex/internal/retriever"
	"github.com/hyperjump/qpindex/internal/server"
	"github.com/hyperjump/qpindex/internal/storage"
	"github.com/hyperjump/qpindex/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/qpindex/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory takes precedence; when neither exists, defaults and the environment
// are used. Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			cfg, err := config.Default()
			if err != nil {
				return nil, "", err
			}
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "index":
		os.Exit(runIndex())
	case "retrieve":
		os.Exit(runRetrieve())
	case "status":
		os.Exit(runStatus())
	case "version", "--version", "-v":
		fmt.Printf("qpindex version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config, builds the logger and initializes components. It exits on failure.
func setup(configPath string, debugFlag bool) (*config.Config, *zap.Logger, *Components) {
	cfg, resolvedConfigPath, err := loadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if debugFlag {
		cfg.Debug = true
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("driver", cfg.Storage.Driver),
		zap.String("provider", cfg.LLM.Provider),
	)

	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return cfg, logger, components
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	port := fs.Int("port", 0, "listen port (overrides config)")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()
	if *port > 0 {
		cfg.Server.Port = *port
	}

	srv := server.NewServer(
		components.Indexer,
		components.Retriever,
		components.Storage,
		&cfg.Server,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runIndex() int {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: qpindex index [flags] <questions.json>")
		return 1
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		return 1
	}
	questions, err := readQuestionsFile(fs.Arg(0))
	if err != nil {
		fmt.Printf("Failed to read questions: %v\n", err)
		return 1
	}

	_, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	res, err := components.Indexer.IndexBatch(context.Background(), questions)
	if err != nil {
		fmt.Printf("Indexing failed: %v\n", err)
		return 1
	}
	if err := cli.WriteIndexResult(os.Stdout, res, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		return 1
	}
	return indexExitCode(res)
}

// indexExitCode is 2 when any question in the batch failed to index.
func indexExitCode(res *models.IndexResult) int {
	if len(res.Errors) > 0 {
		return 2
	}
	return 0
}

func readQuestionsFile(path string) ([]models.Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return server.DecodeQuestions(data)
}

// printRetrieveUsage prints retrieve subcommand usage.
func printRetrieveUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: qpindex retrieve [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  qpindex retrieve Newton's laws of motion
  qpindex retrieve -k 10 "photosynthesis in plants"
  qpindex retrieve --server http://localhost:3400 --output json osmosis
`)
}

// buildQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the positional
// arguments to the front so that flag.Parse() sees them. Go's flag package stops at
// the first non-flag argument, so "qpindex retrieve osmosis -k 3" would otherwise
// leave -k unparsed.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runRetrieve() int {
	fs := flag.NewFlagSet("retrieve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = query storage directly)")
	k := fs.Int("k", 0, "number of results (0 = configured default)")
	debug := fs.Bool("debug", false, "enable debug logging")
	outputFormat := fs.String("output", "text", "output format: text (human-readable), compact (one result per line), or json (parseable)")
	fs.Usage = func() { printRetrieveUsage(fs) }
	_ = fs.Parse(argsReorder(os.Args[2:]))

	query := buildQuery(fs.Args())
	if query == "" {
		printRetrieveUsage(fs)
		return 1
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		return 1
	}

	var results []string
	if *serverURL != "" {
		results, err = retrieveViaHTTP(*serverURL, query, *k)
	} else {
		_, logger, components := setup(*configPath, *debug)
		defer logger.Sync()
		defer components.Close()
		results, err = components.Retriever.Retrieve(context.Background(), query, *k)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Retrieve failed: %v\n", err)
		return 1
	}
	if err := cli.WriteRetrieveResults(os.Stdout, query, results, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		return 1
	}
	return 0
}

func retrieveViaHTTP(serverURL, query string, k int) ([]string, error) {
	payload := map[string]interface{}{"query": query}
	if k > 0 {
		payload["k"] = k
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(strings.TrimRight(serverURL, "/")+"/retrieveContext", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var results []string
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return results, nil
}

// statusResponse is the shape of the GET /health response.
type statusResponse struct {
	Status    string `json:"status"`
	Documents int64  `json:"documents"`
}

func runStatus() int {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct storage mode)")
	serverURL := fs.String("server", "", "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		st, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			return 1
		}
		status = *st
	} else {
		_, logger, components := setup(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		n, err := components.Storage.Count(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			return 1
		}
		status = statusResponse{Status: "ok", Documents: n}
	}

	if *outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(status)
		return 0
	}
	fmt.Printf("Status:    %s\n", status.Status)
	fmt.Printf("Documents: %d\n", status.Documents)
	return 0
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(strings.TrimRight(serverURL, "/") + "/health")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var st statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &st, nil
}

// Components holds initialized services.
type Components struct {
	Storage   storage.Storage
	Embedder  embedding.Embedder
	Indexer   *indexer.Indexer
	Retriever *retriever.Retriever
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

// newProvider returns the embedding client and text generator for cfg.LLM.
// Both are nil for the mock provider.
func newProvider(cfg *config.Config) (llm.EmbeddingClient, llm.Generator, error) {
	opts := llm.Options{
		BaseURL:         cfg.LLM.BaseURL,
		APIKey:          cfg.LLM.APIKey(),
		EmbeddingModel:  cfg.LLM.EmbeddingModel,
		GenerationModel: cfg.LLM.GenerationModel,
		Dimensions:      cfg.Storage.Dimensions,
		Temperature:     cfg.LLM.TemperatureValue(),
		MaxRetries:      cfg.LLM.MaxRetries,
	}
	switch cfg.LLM.Provider {
	case config.ProviderGemini:
		c, err := llm.NewGeminiClient(opts)
		if err != nil {
			return nil, nil, fmt.Errorf("%w (set %s)", err, cfg.LLM.APIKeyEnv)
		}
		return c, c, nil
	case config.ProviderOpenAI:
		c := llm.NewOpenAIClient(opts)
		return c, c, nil
	case config.ProviderMock:
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	client, gen, err := newProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize llm provider: %w", err)
	}

	var embedder embedding.Embedder
	if client == nil {
		logger.Warn("using mock embeddings; results are not semantically meaningful")
		embedder = embedding.NewMockEmbedder(cfg.Storage.Dimensions)
	} else {
		embedder = embedding.NewRemoteEmbedder(client, cfg.Storage.Dimensions,
			embedding.WithTimeout(cfg.Embedding.Timeout),
			embedding.WithCache(cfg.Embedding.CacheSize),
			embedding.WithLogger(logger),
		)
	}

	synth, err := describe.New(cfg.Describe, gen)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize describer: %w", err)
	}
	projection, err := retriever.ProjectionFor(cfg.Retrieval.Projection)
	if err != nil {
		return nil, err
	}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	idx := indexer.NewIndexer(store, embedder, synth,
		indexer.WithLogger(logger),
		indexer.WithConcurrency(cfg.Indexing.Concurrency),
	)
	ret := retriever.New(embedder, store,
		retriever.WithLogger(logger),
		retriever.WithProjection(projection),
		retriever.WithDefaultK(cfg.Retrieval.DefaultK),
	)

	return &Components{
		Storage:   store,
		Embedder:  embedder,
		Indexer:   idx,
		Retriever: ret,
	}, nil
}

func printUsage() {
	fmt.Println(`qpindex - Exam question indexing and retrieval service

Usage:
  qpindex server [flags]                  Start the HTTP server
  qpindex index [flags] <questions.json>  Index a batch of questions
  qpindex retrieve [flags] <query>        Retrieve the closest stored questions
  qpindex status [flags]                  Show document count
  qpindex version                         Show version
  qpindex help                            Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/qpindex/config.yaml, or ./config.yaml)
  --port int         Listen port (default from config, 3400)
  --debug            Enable debug logging

Index Flags:
  --config string    Config file path
  --output string    Output format: text or json (default: text)

Retrieve Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL, e.g. http://localhost:3400 (default: query storage directly)
  -k int             Number of results (default from config, 5)
  --output string    Output format: text, compact, or json (default: text)

Status Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (default: use direct storage)
  --output string    Output format: text or json (default: text)

Environment:
  GEMINI_API_KEY          Provider API key (name set by llm.api_key_env)
  QPINDEX_DATABASE_URL    Postgres connection string (selects the postgres driver)
  QPINDEX_PORT            Listen port

Examples:
  qpindex server
  qpindex index questions.json
  qpindex retrieve "laws of motion"
  qpindex retrieve -k 10 --output json photosynthesis
  qpindex status --server http://localhost:3400`)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lectern/internal/app"
	"github.com/ternarybob/lectern/internal/common"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	docsDir      = flag.String("docs", "", "Course documents directory (overrides config)")
	query        = flag.String("query", "", "Answer a single question and exit")
	queryQ       = flag.String("q", "", "Answer a single question and exit (shorthand)")
	sessionID    = flag.String("session", "", "Session id to continue (with -query)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Lectern version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	// API keys may come from a local .env file
	_ = godotenv.Load()

	// Startup sequence:
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Apply CLI overrides
	// 3. Validate
	// 4. Initialize logger and print banner
	if len(configFiles) == 0 {
		if _, err := os.Stat("lectern.toml"); err == nil {
			configFiles = append(configFiles, "lectern.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration files")
		os.Exit(1)
	}

	common.ApplyFlagOverrides(config, *docsDir)

	if err := config.Validate(); err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Invalid configuration")
		os.Exit(1)
	}

	logger := common.InitLogger(config, "")
	common.PrintBanner("LECTERN", common.GetVersion())

	logger.Info().
		Strs("config_files", configFiles).
		Str("docs_dir", config.Documents.Dir).
		Str("storage", config.Storage.Badger.Path).
		Str("embeddings", string(config.Embeddings.Provider)).
		Msg("Application configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}
	defer application.Close()

	summary, err := application.Start(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to start application")
		return
	}
	fmt.Printf("Loaded %d course(s), %d unchanged, %d removed, %d failed\n", summary.Added, summary.Unchanged, summary.Removed, summary.Failed)

	question := *query
	if *queryQ != "" {
		question = *queryQ
	}

	if question != "" {
		answer, err := application.RAGService.AnswerQuery(ctx, *sessionID, question)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			application.Close()
			os.Exit(1)
		}
		fmt.Print(formatAnswer(answer))
		return
	}

	newREPL(application.RAGService, os.Stdin, os.Stdout).run(ctx)
}

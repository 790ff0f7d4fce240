package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"

	"github.com/nurv/edsl/internal/app"
	"github.com/nurv/edsl/internal/common"
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
	// Command-line flags
	configFiles   configPaths // Multiple -config flags supported
	jobFile       = flag.String("job", "", "Job definition file (TOML)")
	iterations    = flag.Int("n", 0, "Iterations per combination (overrides config)")
	maxConcurrent = flag.Int("max-concurrent", 0, "Concurrent interviews (overrides config)")
	cachePath     = flag.String("cache", "", "Cache database path (overrides config)")
	showVersion   = flag.Bool("version", false, "Print version information")
	showVersionV  = flag.Bool("v", false, "Print version information (shorthand)")

	// Global state
	config *common.Config
	logger arbor.ILogger
)

func init() {
	// Register custom flag for multiple config files
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	common.InstallCrashHandler("./logs")
	defer common.RecoverWithCrashFile()

	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("edsl version %s\n", common.GetVersion())
		os.Exit(0)
	}

	if *jobFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: edsl -job <job.toml> [-config <edsl.toml>] [-n iterations] [-max-concurrent n] [-cache path]")
		os.Exit(2)
	}

	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Apply CLI overrides (highest priority)
	// 3. Initialize logger
	// 4. Print banner
	var err error

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("edsl.toml"); err == nil {
			configFiles = append(configFiles, "edsl.toml")
		} else if _, err := os.Stat("deployments/local/edsl.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/edsl.toml")
		}
	}

	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	common.ApplyFlagOverrides(config, *iterations, *maxConcurrent, *cachePath)

	logger = common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	logger.Info().
		Strs("config_files", configFiles).
		Str("job", *jobFile).
		Str("cache", config.Cache.Path).
		Msg("Application configuration loaded")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	def, err := app.LoadJob(*jobFile, config.Run)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load job definition")
	}

	// An interrupt cancels in-flight interviews; the deferred cache exit
	// still flushes what completed.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collected, err := application.RunJob(ctx, def)
	switch {
	case errors.Is(err, context.Canceled):
		logger.Warn().Msg("Run interrupted")
	case err != nil:
		logger.Error().Err(err).Msg("Run failed")
		os.Exit(1)
	}

	if collected != nil {
		fmt.Println(collected.Summary())
		if collected.HasExceptions() {
			os.Exit(1)
		}
	}
}

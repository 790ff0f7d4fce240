// edsl-sync reconciles the local response cache with the remote, and
// imports or exports JSONL snapshots. It runs once by default, or on a
// cron schedule with -schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/nurv/edsl/internal/app"
	"github.com/nurv/edsl/internal/common"
	"github.com/nurv/edsl/internal/models"
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
	direction    = flag.String("direction", "both", "Sync direction: pull, push, or both")
	exportPath   = flag.String("export", "", "Write the local cache to a JSONL file and exit")
	importPath   = flag.String("import", "", "Load a JSONL file into the local cache and exit")
	schedule     = flag.String("schedule", "", "Cron schedule for recurring sync (minimum 5-minute interval)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")

	config *common.Config
	logger arbor.ILogger
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	common.InstallCrashHandler("./logs")
	defer common.RecoverWithCrashFile()

	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("edsl-sync version %s\n", common.GetVersion())
		os.Exit(0)
	}

	switch *direction {
	case "pull", "push", "both":
	default:
		fmt.Fprintf(os.Stderr, "invalid -direction %q: must be pull, push, or both\n", *direction)
		os.Exit(2)
	}
	if *schedule != "" {
		if err := common.ValidateSyncSchedule(*schedule); err != nil {
			fmt.Fprintf(os.Stderr, "invalid -schedule: %v\n", err)
			os.Exit(2)
		}
	}

	var err error
	if len(configFiles) == 0 {
		if _, err := os.Stat("edsl.toml"); err == nil {
			configFiles = append(configFiles, "edsl.toml")
		}
	}
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger = common.InitLogger(config)

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Import/export are local operations and do not need the remote.
	if *importPath != "" {
		if err := application.Cache.AddFromJSONL(*importPath, true); err != nil {
			logger.Fatal().Err(err).Str("path", *importPath).Msg("Import failed")
		}
		logger.Info().Str("path", *importPath).Int("entries", application.Cache.Len()).Msg("Cache imported")
		return
	}
	if *exportPath != "" {
		if err := application.Cache.WriteJSONL(*exportPath); err != nil {
			logger.Fatal().Err(err).Str("path", *exportPath).Msg("Export failed")
		}
		logger.Info().Str("path", *exportPath).Int("entries", application.Cache.Len()).Msg("Cache exported")
		return
	}

	if application.Remote == nil {
		logger.Fatal().Msg("No remote cache configured: set coop.url and cache.remote_backups")
	}

	if *schedule == "" {
		if err := syncOnce(ctx, application, *direction); err != nil {
			logger.Fatal().Err(err).Msg("Sync failed")
		}
		return
	}

	runScheduled(ctx, application, *direction, *schedule)
}

// runScheduled syncs on the cron schedule until interrupted. A failed
// sync is logged and retried at the next tick.
func runScheduled(ctx context.Context, application *app.App, direction, schedule string) {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if err := syncOnce(ctx, application, direction); err != nil {
			logger.Error().Err(err).Msg("Scheduled sync failed")
		}
	}); err != nil {
		logger.Fatal().Err(err).Msg("Failed to schedule sync")
	}
	c.Start()
	logger.Info().Str("schedule", schedule).Str("direction", direction).Msg("Scheduled sync running - Press Ctrl+C to stop")

	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info().Msg("Scheduled sync stopped")
}

// syncOnce runs one reconciliation pass in the requested direction.
func syncOnce(ctx context.Context, application *app.App, direction string) error {
	remoteEntries, err := application.Remote.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to download remote cache: %w", err)
	}

	localKeys := make(map[string]bool)
	for _, key := range application.Cache.Keys() {
		localKeys[key] = true
	}

	if direction == "pull" || direction == "both" {
		missing := make(map[string]*models.CacheEntry)
		for key, entry := range remoteEntries {
			if !localKeys[key] {
				missing[key] = entry
			}
		}
		if len(missing) > 0 {
			if err := application.Cache.AddFromDict(missing, true); err != nil {
				return fmt.Errorf("failed to store downloaded entries: %w", err)
			}
		}
		logger.Info().Int("downloaded", len(missing)).Msg("Pull complete")
	}

	if direction == "push" || direction == "both" {
		toSend := make(map[string]*models.CacheEntry)
		for _, entry := range application.Cache.Values() {
			key := entry.Key()
			if _, ok := remoteEntries[key]; !ok {
				toSend[key] = entry
			}
		}
		if len(toSend) > 0 {
			if err := application.Remote.SendBatch(ctx, toSend); err != nil {
				return fmt.Errorf("failed to upload entries: %w", err)
			}
		}
		logger.Info().Int("uploaded", len(toSend)).Msg("Push complete")
	}

	return nil
}

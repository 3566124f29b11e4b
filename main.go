package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harrisonrobin/taskmirror/pkg/config"
	"github.com/harrisonrobin/taskmirror/pkg/engine"
	"github.com/harrisonrobin/taskmirror/pkg/google"
	"github.com/harrisonrobin/taskmirror/pkg/model"
	"github.com/harrisonrobin/taskmirror/pkg/retry"
)

var (
	flagConfig    string
	flagWorkspace string
	flagJSON      bool
	flagStrategy  string
	flagSince     string
	flagKeepDays  int
)

func main() {
	root := &cobra.Command{
		Use:           "taskmirror",
		Short:         "Mirror tasks into Google Calendar and Google Tasks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default ~/.config/taskmirror/config.yaml)")
	root.PersistentFlags().StringVar(&flagWorkspace, "workspace", "", "workspace name (overrides config)")
	root.PersistentFlags().BoolVar(&flagJSON, "json-logs", false, "emit JSON logs")

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync a single task read as JSON from stdin",
		RunE:  runSync,
	}
	syncCmd.Flags().StringVar(&flagStrategy, "strategy", "", "force a strategy (calendar_only, tasks_only, both, none)")

	bulkCmd := &cobra.Command{
		Use:   "bulk",
		Short: "Sync a batch of tasks read as JSON from stdin",
		RunE:  runBulk,
	}

	incrementalCmd := &cobra.Command{
		Use:   "incremental",
		Short: "Fetch changes from both services and report conflicts",
		RunE:  runIncremental,
	}
	incrementalCmd.Flags().StringVar(&flagSince, "since", "", "lower bound for a full resync (RFC 3339)")

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check both services with a minimal authenticated read",
		RunE:  runHealth,
	}

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Dump the in-memory operation ledger as JSON",
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&flagKeepDays, "keep-days", 0, "trim entries older than this many days first")

	root.AddCommand(syncCmd, bulkCmd, incrementalCmd, healthCmd, historyCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads config, initializes logging, and builds the orchestrator.
func setup() (*config.Config, *engine.Orchestrator, error) {
	var cfg *config.Config
	var err error
	if flagConfig != "" {
		cfg, err = config.LoadFrom(flagConfig)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, err
	}
	if flagWorkspace != "" {
		cfg.Workspace = flagWorkspace
	}

	logger := newLogger(cfg)

	// First run: persist the defaults so there is a file to put
	// credentials in.
	if flagConfig == "" {
		if path, perr := config.Path(); perr == nil {
			if written, serr := config.SaveDefaultIfMissing(path); serr != nil {
				logger.Warn().Err(serr).Msg("could not write default config")
			} else if written {
				logger.Info().Str("path", path).Msg("wrote default config")
			}
		}
	}

	retryCfg := retry.Config{
		BaseDelay:  cfg.BaseDelay(),
		MaxDelay:   cfg.MaxDelay(),
		MaxRetries: cfg.Retry.MaxRetries,
		Multiplier: cfg.Retry.Multiplier,
	}

	calendarAdapter := google.NewCalendarAdapter(google.CalendarOptions{
		ContainerPrefix: cfg.ContainerPrefix,
		Retry:           retryCfg,
	}, logger)
	tasksAdapter := google.NewTasksAdapter(google.TasksOptions{
		ContainerPrefix: cfg.ContainerPrefix,
		Retry:           retryCfg,
	}, logger)

	orch := engine.NewOrchestrator(calendarAdapter, tasksAdapter, engine.Options{
		ChunkSize:  cfg.Bulk.ChunkSize,
		ChunkPause: cfg.ChunkPause(),
	}, logger)

	return cfg, orch, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if cfg.Log.JSON || flagJSON {
		return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}).Level(level).With().Timestamp().Logger()
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, orch, err := setup()
	if err != nil {
		return err
	}
	if err := cfg.Credentials.Validate(); err != nil {
		return err
	}

	task, err := model.ParseTask(os.Stdin)
	if err != nil {
		return err
	}

	forced := model.SyncStrategy(flagStrategy)
	if flagStrategy != "" && !forced.Valid() {
		return fmt.Errorf("unknown strategy %q", flagStrategy)
	}

	op := orch.SyncTask(cmd.Context(), cfg.Credentials, task, cfg.Workspace, forced)
	return printJSON(op)
}

func runBulk(cmd *cobra.Command, args []string) error {
	cfg, orch, err := setup()
	if err != nil {
		return err
	}
	if err := cfg.Credentials.Validate(); err != nil {
		return err
	}

	tasks, err := model.ParseTasks(os.Stdin)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return fmt.Errorf("no tasks on stdin")
	}

	result := orch.SyncTasks(cmd.Context(), cfg.Credentials, tasks, cfg.Workspace)
	return printJSON(result)
}

func runIncremental(cmd *cobra.Command, args []string) error {
	cfg, orch, err := setup()
	if err != nil {
		return err
	}
	if err := cfg.Credentials.Validate(); err != nil {
		return err
	}

	var since time.Time
	if flagSince != "" {
		since, err = time.Parse(time.RFC3339, flagSince)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
	}

	report := orch.IncrementalSync(cmd.Context(), cfg.Credentials, cfg.Workspace, since)
	return printJSON(report)
}

func runHealth(cmd *cobra.Command, args []string) error {
	cfg, orch, err := setup()
	if err != nil {
		return err
	}
	if err := cfg.Credentials.Validate(); err != nil {
		return err
	}

	report := orch.HealthCheck(cmd.Context(), cfg.Credentials)
	if err := printJSON(report); err != nil {
		return err
	}
	if report.Overall != model.StatusHealthy {
		return fmt.Errorf("overall status: %s", report.Overall)
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	_, orch, err := setup()
	if err != nil {
		return err
	}
	if flagKeepDays > 0 {
		orch.ClearOldSyncHistory(flagKeepDays)
	}
	return printJSON(orch.History())
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

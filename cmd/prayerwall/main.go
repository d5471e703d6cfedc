// Package main provides the CLI entrypoint for prayerwall.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/verte-zerg/prayerwall/internal/aggregator"
	"github.com/verte-zerg/prayerwall/internal/config"
	"github.com/verte-zerg/prayerwall/internal/logging"
	"github.com/verte-zerg/prayerwall/internal/model"
	"github.com/verte-zerg/prayerwall/internal/prayer"
	"github.com/verte-zerg/prayerwall/internal/seed"
	"github.com/verte-zerg/prayerwall/internal/stats"
	"github.com/verte-zerg/prayerwall/internal/store"
	"github.com/verte-zerg/prayerwall/internal/subscribe"
	"github.com/verte-zerg/prayerwall/internal/wall"
)

const (
	defaultShards            = store.DefaultShards
	defaultPollInterval      = subscribe.DefaultPollInterval
	defaultAggregateInterval = aggregator.DefaultInterval
	defaultLogLevel          = "info"
	defaultStatsTop          = 10
	defaultStatsDays         = 14
	defaultPrayTimeout       = 10 * time.Second
)

var (
	dbPath  string
	verbose bool

	wallAuthor            string
	wallShards            int
	wallPollInterval      time.Duration
	wallAggregateInterval time.Duration
	wallLogLevel          string
	wallNoAggregate       bool
	wallEphemeral         bool

	addTitle  string
	addBody   string
	addAuthor string

	aggregateWatch bool

	statsTop  int
	statsDays int
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "prayerwall",
		Short:         "Community prayer wall",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runWallCmd,
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default: XDG data dir)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&wallAuthor, "author", "", "name shown on new prayers")
	rootCmd.PersistentFlags().IntVar(&wallShards, "shards", defaultShards, "counter shards per prayer")
	rootCmd.PersistentFlags().DurationVar(&wallPollInterval, "poll-interval", defaultPollInterval, "count refresh fallback interval")
	rootCmd.PersistentFlags().DurationVar(&wallAggregateInterval, "aggregate-interval", defaultAggregateInterval, "pause between aggregator passes")
	rootCmd.PersistentFlags().StringVar(&wallLogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	rootCmd.Flags().BoolVar(&wallNoAggregate, "no-aggregate", false, "do not run the aggregator alongside the wall")
	rootCmd.Flags().BoolVar(&wallEphemeral, "ephemeral", false, "keep prayed flags in memory for this session only")

	rootCmd.AddCommand(newAddCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newPrayCmd())
	rootCmd.AddCommand(newAggregateCmd())
	rootCmd.AddCommand(newImportCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

// env holds what every command needs once config is resolved.
type env struct {
	cfg    model.WallConfig
	store  *store.Store
	device *store.DeviceFlags
	logger *zap.Logger
}

func openEnv(cmd *cobra.Command) (*env, error) {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "author", &wallAuthor, fileCfg.Wall.Author)
	applyIntConfig(cmd, "shards", &wallShards, fileCfg.Wall.Shards)
	applyDurationConfig(cmd, "poll-interval", &wallPollInterval, fileCfg.Wall.PollInterval)
	applyDurationConfig(cmd, "aggregate-interval", &wallAggregateInterval, fileCfg.Wall.AggregateInterval)
	applyStringConfig(cmd, "log-level", &wallLogLevel, fileCfg.Wall.LogLevel)
	if verbose {
		wallLogLevel = "debug"
	}

	cfg := model.WallConfig{
		Author:            strings.TrimSpace(wallAuthor),
		Shards:            wallShards,
		PollInterval:      wallPollInterval,
		AggregateInterval: wallAggregateInterval,
		LogLevel:          wallLogLevel,
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	logger, err := logging.New(config.DefaultLogPath(), cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	deviceID, err := config.LoadOrCreateDeviceID(config.DefaultDeviceIDPath(), logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	path := dbPath
	if path == "" {
		path = config.DefaultDBPath()
	}
	st, err := store.Open(path)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	logger.Debug("environment ready",
		zap.String("db", path),
		zap.String("device", deviceID),
		zap.Int("shards", cfg.Shards))
	return &env{cfg: cfg, store: st, device: store.NewDeviceFlags(st, deviceID), logger: logger}, nil
}

func (e *env) close() {
	if cerr := e.store.Close(); cerr != nil {
		logErrf("failed to close db: %v\n", cerr)
	}
	_ = e.logger.Sync()
}

func runWallCmd(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher := subscribe.NewWatcher(e.store, e.store.Path(), e.cfg.PollInterval, e.logger)
	watcher.Start(ctx)
	defer watcher.Stop()

	var flags prayer.FlagStore = e.device
	if wallEphemeral {
		flags = prayer.NewMemFlags()
	}

	m := wall.NewModel(wall.Deps{
		Items:      e.store,
		Flags:      flags,
		Subscriber: watcher,
		Dispatcher: store.NewCounter(e.store, e.cfg.Shards),
		Logger:     e.logger,
		Author:     e.cfg.Author,
	})

	g, gctx := errgroup.WithContext(ctx)
	if !wallNoAggregate {
		agg := aggregator.New(e.store, e.cfg.AggregateInterval, e.logger)
		g.Go(func() error {
			return agg.Run(gctx)
		})
	}
	g.Go(func() error {
		defer cancel()
		defer m.Close()
		program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(gctx))
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("failed to run TUI: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func newAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Post a prayer request",
		Args:  cobra.NoArgs,
		RunE:  runAddCmd,
	}
	cmd.Flags().StringVar(&addTitle, "title", "", "short title")
	cmd.Flags().StringVar(&addBody, "body", "", "details")
	cmd.Flags().StringVar(&addAuthor, "as", "", "author (default: --author or config)")
	return cmd
}

func runAddCmd(cmd *cobra.Command, _ []string) error {
	if strings.TrimSpace(addTitle) == "" {
		return fmt.Errorf("--title must not be empty")
	}
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	author := strings.TrimSpace(addAuthor)
	if author == "" {
		author = e.cfg.Author
	}
	item, err := e.store.CreateItem(context.Background(), model.PrayerItem{
		Title:  addTitle,
		Body:   addBody,
		Author: author,
	})
	if err != nil {
		return err
	}
	e.logger.Info("prayer added", zap.String("item", item.Key))
	_, err = fmt.Fprintln(cmd.OutOrStdout(), item.Key)
	return err
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List prayer requests",
		Args:  cobra.NoArgs,
		RunE:  runListCmd,
	}
}

func runListCmd(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	items, err := e.store.ListItemStats(context.Background(), e.device.DeviceID())
	if err != nil {
		return fmt.Errorf("failed to list prayers: %w", err)
	}
	return stats.RenderList(cmd.OutOrStdout(), items, stats.TerminalWidth())
}

func newPrayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pray KEY",
		Short: "Toggle your prayer on a request",
		Args:  cobra.ExactArgs(1),
		RunE:  runPrayCmd,
	}
}

func runPrayCmd(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	ctx := context.Background()
	item, err := resolveItem(ctx, e.store, args[0])
	if err != nil {
		return err
	}

	c := prayer.New(item.Key, item.Count, prayer.Deps{
		Flags:      e.device,
		Dispatcher: store.NewCounter(e.store, e.cfg.Shards),
		Logger:     e.logger,
	})
	c.Start(ctx)
	defer c.Teardown()

	receipt := c.Toggle(ctx)
	waitCtx, cancel := context.WithTimeout(ctx, defaultPrayTimeout)
	defer cancel()
	if err := receipt.Wait(waitCtx); err != nil {
		logErrf("prayer not recorded yet: %v\n", err)
	}

	st := c.State()
	verb := "Prayed for"
	if !st.Prayed {
		verb = "Withdrew prayer for"
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %q (%d)\n", verb, item.Title, st.DisplayedCount)
	return err
}

// resolveItem accepts a full key or a unique key prefix as printed by list.
func resolveItem(ctx context.Context, st *store.Store, key string) (model.PrayerItem, error) {
	item, err := st.GetItem(ctx, key)
	if err == nil {
		return item, nil
	}
	items, lerr := st.ListItems(ctx)
	if lerr != nil {
		return model.PrayerItem{}, fmt.Errorf("failed to list prayers: %w", lerr)
	}
	var matches []model.PrayerItem
	for _, it := range items {
		if strings.HasPrefix(it.Key, key) {
			matches = append(matches, it)
		}
	}
	switch len(matches) {
	case 0:
		return model.PrayerItem{}, err
	case 1:
		return matches[0], nil
	default:
		return model.PrayerItem{}, fmt.Errorf("key prefix %q matches %d prayers", key, len(matches))
	}
}

func newAggregateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Fold pending prayers into counts",
		Args:  cobra.NoArgs,
		RunE:  runAggregateCmd,
	}
	cmd.Flags().BoolVar(&aggregateWatch, "watch", false, "keep folding until interrupted")
	return cmd
}

func runAggregateCmd(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	agg := aggregator.New(e.store, e.cfg.AggregateInterval, e.logger)
	if aggregateWatch {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		logErrf("Folding every %s; press Ctrl+C to stop\n", e.cfg.AggregateInterval)
		return agg.Run(ctx)
	}
	folded, err := agg.RunOnce(context.Background())
	if err != nil {
		return fmt.Errorf("failed to aggregate: %w", err)
	}
	records := 0
	for _, f := range folded {
		records += f.Records
	}
	pending, err := e.store.PendingIncrements(context.Background())
	if err != nil {
		return fmt.Errorf("failed to count pending records: %w", err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Folded %d records into %d prayers, %d pending\n", records, len(folded), pending)
	return err
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import prayer requests from YAML",
		Args:  cobra.ExactArgs(1),
		RunE:  runImportCmd,
	}
}

func runImportCmd(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open import file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	items, err := seed.Parse(f, e.cfg.Author)
	if err != nil {
		return err
	}
	created, err := e.store.CreateItems(context.Background(), items)
	if err != nil {
		return fmt.Errorf("nothing imported: %w", err)
	}
	for _, item := range created {
		e.logger.Info("prayer imported", zap.String("item", item.Key))
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Imported %d prayers\n", len(created))
	return err
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show prayer stats",
		Args:  cobra.NoArgs,
		RunE:  runStatsCmd,
	}
	cmd.Flags().IntVar(&statsTop, "top", defaultStatsTop, "number of most prayed requests")
	cmd.Flags().IntVar(&statsDays, "days", defaultStatsDays, "days of activity to chart")
	return cmd
}

func runStatsCmd(cmd *cobra.Command, _ []string) error {
	if statsTop < 0 {
		return fmt.Errorf("--top must be >= 0")
	}
	if statsDays <= 0 {
		return fmt.Errorf("--days must be > 0")
	}
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	since := time.Now().AddDate(0, 0, -(statsDays - 1))
	report, err := stats.BuildReport(context.Background(), e.store, e.device.DeviceID(), since)
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}
	return stats.RenderStats(cmd.OutOrStdout(), report, statsTop, stats.TerminalWidth())
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyDurationConfig(cmd *cobra.Command, name string, target *time.Duration, value *config.Duration) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = value.Duration
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# prayerwall configuration
# Uncomment a value to enable it. CLI flags override config values.

[wall]
# author = ""                 # Name shown on prayers you post
# shards = %d                  # Counter shards per prayer
# poll-interval = %q          # Count refresh fallback interval
# aggregate-interval = %q     # Pause between aggregator passes
# log-level = %q            # debug, info, warn, error
`,
		defaultShards,
		defaultPollInterval.String(),
		defaultAggregateInterval.String(),
		defaultLogLevel,
	)
}

func validateConfig(cfg model.WallConfig) error {
	if cfg.Shards <= 0 {
		return fmt.Errorf("--shards must be > 0")
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("--poll-interval must be > 0")
	}
	if cfg.AggregateInterval <= 0 {
		return fmt.Errorf("--aggregate-interval must be > 0")
	}
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	return nil
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

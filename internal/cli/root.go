package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/roach88/autoboard/internal/config"
	"github.com/roach88/autoboard/internal/engine"
	"github.com/roach88/autoboard/internal/logging"
	"github.com/roach88/autoboard/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string

	v *viper.Viper
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the autoboard CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{v: config.New()}

	cmd := &cobra.Command{
		Use:   "autoboard",
		Short: "autoboard - board automation engine",
		Long: `Rule-driven automation for kanban boards.

Rules react to card events and due dates by labelling, assigning, moving,
commenting on or archiving cards. Every rule run is recorded in the run log.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return config.BindFlags(opts.v, cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (yaml, toml or json)")
	cmd.PersistentFlags().String("db", "autoboard.db", "path to SQLite database")
	cmd.PersistentFlags().String("log-level", "info", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().String("log-format", "console", "log format (console|json)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewDispatchCommand(opts))
	cmd.AddCommand(NewPollCommand(opts))
	cmd.AddCommand(NewRulesCommand(opts))
	cmd.AddCommand(NewRunsCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().ExecuteContext(context.Background())
}

// Config resolves the configuration from flags, the config file and the
// environment. --verbose forces debug logging.
func (o *RootOptions) Config() (config.Config, error) {
	v := o.v
	if v == nil {
		v = config.New()
	}
	cfg, err := config.Load(v, o.ConfigFile)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// runtime is the store, engine and logger a command works against.
type runtime struct {
	cfg    config.Config
	store  *store.Store
	engine *engine.Engine
	logger *zap.Logger
	close  func()
}

// openRuntime loads the configuration, installs the global logger, opens
// the store and builds an engine from it. Callers must call close.
func (o *RootOptions) openRuntime() (*runtime, error) {
	cfg, err := o.Config()
	if err != nil {
		return nil, err
	}

	logger, restore, err := logging.Setup(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to set up logging", err)
	}

	logger.Debug("opening database", zap.String("path", cfg.DBPath))
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		restore()
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	engineOpts, closeLock := engineOptions(cfg, logger)
	rt := &runtime{
		cfg:    cfg,
		store:  st,
		engine: engine.New(st, engineOpts...),
		logger: logger,
	}
	rt.close = func() {
		closeLock()
		if err := st.Close(); err != nil {
			logger.Error("error closing database", zap.Error(err))
		}
		restore()
	}
	return rt, nil
}

// engineOptions maps configuration onto engine options. A configured Redis
// address shares the poll lease across processes; the returned func closes
// the Redis client.
func engineOptions(cfg config.Config, logger *zap.Logger) ([]engine.EngineOption, func()) {
	opts := []engine.EngineOption{
		engine.WithLogger(logger),
		engine.WithActionTimeout(cfg.Engine.ActionTimeout),
		engine.WithDedupWindow(cfg.Poller.DedupWindow),
		engine.WithRuleCacheTTL(cfg.Engine.RuleCacheTTL),
	}
	if cfg.Redis.Addr == "" {
		return opts, func() {}
	}

	client := engine.NewRedisClient(cfg.Redis.Addr)
	logger.Info("using redis poll lease",
		zap.String("addr", cfg.Redis.Addr),
		zap.String("namespace", cfg.Redis.Namespace),
	)
	opts = append(opts, engine.WithPollLock(engine.NewRedisPollLock(client, cfg.Redis.Namespace, cfg.Redis.LeaseTTL)))
	return opts, func() {
		if err := client.Close(); err != nil {
			logger.Error("error closing redis client", zap.Error(err))
		}
	}
}

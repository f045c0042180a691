// Package cmd implements the readingprogress command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/readingprogress/internal/app"
	"github.com/JakeFAU/readingprogress/internal/config"
	"github.com/JakeFAU/readingprogress/internal/logging"
	pkgconfig "github.com/JakeFAU/readingprogress/pkg/config"
)

// viperKeyAnnotation ties a flag to the configuration key it overrides.
const viperKeyAnnotation = "viper_key"

// Runner is the part of app.App the commands drive. Tests swap in fakes.
type Runner interface {
	Run(ctx context.Context) error
	Close(ctx context.Context) error
}

// deps are the collaborators a command tree is built with.
type deps struct {
	newApp    func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Runner, error)
	newLogger func(cfg config.Config) (*zap.Logger, error)
	out       io.Writer
}

func defaultDeps() deps {
	return deps{
		newApp: func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Runner, error) {
			return app.New(ctx, cfg, logger)
		},
		newLogger: func(cfg config.Config) (*zap.Logger, error) {
			return logging.NewWithLevel(cfg.Logging.Development, cfg.Logging.Level)
		},
		out: os.Stdout,
	}
}

// cli carries state shared between the root and its subcommands.
type cli struct {
	deps    deps
	cfgFile string
	v       *viper.Viper
	logger  *zap.Logger
}

func newRootCmd(d deps) *cobra.Command {
	c := &cli{deps: d, logger: zap.NewNop()}

	cmd := &cobra.Command{
		Use:   "readingprogress",
		Short: "Track reading progress through a web page's content.",
		Long: `readingprogress opens a page in Chrome, tracks which content container
the reader is in and how far through it they are, and renders the result as a
progress bar in the page, on the terminal, over HTTP and as metrics.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			c.v = config.NewViper()
			if _, err := pkgconfig.InitConfig(c.v, c.cfgFile); err != nil {
				return err
			}
			return bindFlags(c.v, cmd.Flags())
		},

		PersistentPostRun: func(*cobra.Command, []string) {
			_ = c.logger.Sync()
		},
	}

	cmd.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default is ./readingprogress.yaml)")
	cmd.PersistentFlags().String("log-level", "", "minimum log level (debug, info, warn, error)")
	annotate(cmd.PersistentFlags(), "log-level", "logging.level")
	cmd.SetOut(d.out)

	cmd.AddCommand(newWatchCmd(c), newScanCmd(c))
	return cmd
}

// load decodes the merged configuration and builds the process logger.
func (c *cli) load() (config.Config, error) {
	cfg, err := config.LoadFrom(c.v)
	if err != nil {
		return config.Config{}, err
	}
	logger, err := c.deps.newLogger(cfg)
	if err != nil {
		return config.Config{}, fmt.Errorf("init logger: %w", err)
	}
	c.logger = logger
	zap.ReplaceGlobals(logger)
	if used := c.v.ConfigFileUsed(); used != "" {
		logger.Info("using config file", zap.String("path", used))
	}
	return cfg, nil
}

func annotate(fs *pflag.FlagSet, name, key string) {
	if err := fs.SetAnnotation(name, viperKeyAnnotation, []string{key}); err != nil {
		panic(err)
	}
}

// bindFlags binds every annotated flag to its key so set flags win over file
// and environment values.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		keys := f.Annotations[viperKeyAnnotation]
		if len(keys) == 0 || bindErr != nil {
			return
		}
		if err := v.BindPFlag(keys[0], f); err != nil {
			bindErr = fmt.Errorf("bind flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd(defaultDeps()).Execute(); err != nil {
		zap.L().Error("command execution failed", zap.Error(err))
		os.Exit(1)
	}
}

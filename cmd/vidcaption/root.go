package main

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vidcaption/internal/app"
	"vidcaption/internal/config"
	"vidcaption/internal/logger"
)

// commandContext lazily loads configuration and the logger shared by subcommands
type commandContext struct {
	configFlag   string
	logLevelFlag string

	once      sync.Once
	config    *config.Configuration
	logger    *zap.Logger
	configErr error

	// appOptions are passed to every Application; tests use them to inject fakes
	appOptions []app.Option
}

func (c *commandContext) ensureConfig() (*config.Configuration, *zap.Logger, error) {
	c.once.Do(func() {
		path := strings.TrimSpace(c.configFlag)
		if path == "" {
			path = strings.TrimSpace(os.Getenv("CONFIG_PATH"))
		}

		var (
			cfg *config.Configuration
			err error
		)
		if path != "" {
			cfg, err = config.NewConfigurationFromFile(path)
		} else {
			cfg, err = config.NewConfigurationFromEnv()
		}
		if err != nil {
			c.configErr = err
			return
		}

		level := cfg.GetLogLevel()
		if c.logLevelFlag != "" {
			level = c.logLevelFlag
		}
		if _, err := logger.ParseLevel(level); err != nil {
			c.configErr = err
			return
		}
		cfg.Set("log.level", level)

		c.config = cfg
		c.logger = logger.NewLogger(level)
	})
	return c.config, c.logger, c.configErr
}

func (c *commandContext) application() (*app.Application, error) {
	cfg, zapLogger, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return app.NewApplication(cfg, zapLogger, c.appOptions...), nil
}

func (c *commandContext) sync() {
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}

func newRootCommand() *cobra.Command {
	return newRootCommandWithContext(&commandContext{})
}

func newRootCommandWithContext(ctx *commandContext) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "vidcaption",
		Short:         "Burn speech captions into videos and find their most viral moments",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}
			_, _, err := ctx.ensureConfig()
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.sync()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path (defaults to $CONFIG_PATH)")
	rootCmd.PersistentFlags().StringVar(&ctx.logLevelFlag, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(newSubtitleCommand(ctx))
	rootCmd.AddCommand(newTranscribeCommand(ctx))
	rootCmd.AddCommand(newScoreCommand(ctx))
	rootCmd.AddCommand(newRankCommand(ctx))
	rootCmd.AddCommand(newExtractCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "vidcaption %s\n", version)
			fmt.Fprintln(cmd.OutOrStdout(), "Architecture: Go + FFmpeg + whisper.cpp/OpenAI transcription + OpenRouter")
		},
	}
}

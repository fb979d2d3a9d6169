// Command corep runs retrieval, validation and analysis from the terminal
// against the same components the HTTP server uses.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"corep-assistant/app"
	"corep-assistant/config"
	"corep-assistant/logging"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// bootFunc assembles the application for one command invocation
type bootFunc func(ctx context.Context) (*app.App, error)

type rootOptions struct {
	configFile string
	logLevel   string
}

func main() {
	decimal.MarshalJSONWithoutQuotes = true

	opts := &rootOptions{}
	cmd := newRootCmd(opts, defaultBoot(opts))
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultBoot(opts *rootOptions) bootFunc {
	return func(ctx context.Context) (*app.App, error) {
		config.LoadEnvFiles()
		if opts.configFile != "" {
			if err := os.Setenv("CONFIG_FILE", opts.configFile); err != nil {
				return nil, err
			}
		}

		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		level := cfg.LogLevel
		if opts.logLevel != "" {
			level = opts.logLevel
		}
		logger, err := logging.New(level, "console")
		if err != nil {
			return nil, err
		}
		return app.New(ctx, cfg, logger)
	}
}

func newRootCmd(opts *rootOptions, boot bootFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "corep",
		Short:        "COREP C 01.00 own funds reporting assistant",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override LOG_LEVEL")

	cmd.AddCommand(
		newScenariosCmd(boot),
		newRetrieveCmd(boot),
		newValidateCmd(boot),
		newAnalyzeCmd(boot),
	)
	return cmd
}

// withApp boots the application, runs fn and releases it
func withApp(cmd *cobra.Command, boot bootFunc, fn func(a *app.App) error) error {
	a, err := boot(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer a.Close()
	return fn(a)
}

func writeJSON(w io.Writer, v any) error {
	out, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

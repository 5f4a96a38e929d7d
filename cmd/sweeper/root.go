package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/yurykabanov/sweeper/internal/blobfx"
	"github.com/yurykabanov/sweeper/internal/configfx"
	"github.com/yurykabanov/sweeper/internal/domainfx"
	"github.com/yurykabanov/sweeper/internal/loggerfx"
	"github.com/yurykabanov/sweeper/internal/serverfx"
	"github.com/yurykabanov/sweeper/internal/sqlfx"
)

const lifecycleTimeout = 15 * time.Second

var rootCmd = &cobra.Command{
	Use:          "sweeper",
	Short:        "Retention of deployed preview builds",
	SilenceUsage: true,
}

func init() {
	configfx.AddFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(importCmd)
}

// serverModules make up the daemon
func serverModules(cmd *cobra.Command) fx.Option {
	return fx.Options(
		baseModules(cmd),
		blobfx.Module,
		serverfx.Module,
		domainfx.Module,
	)
}

func baseModules(cmd *cobra.Command) fx.Option {
	return fx.Options(
		fx.StartTimeout(lifecycleTimeout),
		fx.StopTimeout(lifecycleTimeout),

		fx.Logger(loggerfx.Logger()),

		configfx.WithFlags(cmd.Flags()),

		loggerfx.Module,
		configfx.Module,
		sqlfx.Module,
	)
}

// runOnce starts a short lived application, calls fn and stops the application.
// Dependencies fn needs are extracted with fx.Populate in modules.
func runOnce(ctx context.Context, modules fx.Option, fn func(ctx context.Context) error) error {
	app := fx.New(modules)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, lifecycleTimeout)
	defer cancel()

	if err := app.Start(startCtx); err != nil {
		return err
	}

	runErr := fn(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), lifecycleTimeout)
	defer cancel()

	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		return err
	}

	return runErr
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

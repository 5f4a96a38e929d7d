package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/yurykabanov/sweeper/internal/blobfx"
	"github.com/yurykabanov/sweeper/internal/domainfx"
	"github.com/yurykabanov/sweeper/pkg/domain"
)

var previewCmd = &cobra.Command{
	Use:   "preview <rule-id>",
	Short: "Print the commits a rule would delete now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withExecutor(cmd, func(ctx context.Context, executor *domain.Executor) error {
			preview, err := executor.Preview(ctx, args[0])
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), preview)
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run <rule-id>",
	Short: "Apply a rule and wait for the run to finish",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withExecutor(cmd, func(ctx context.Context, executor *domain.Executor) error {
			summary, err := executor.Run(ctx, args[0])
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), summary)
		})
	},
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Clear run markers left over by dead processes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withExecutor(cmd, func(ctx context.Context, executor *domain.Executor) error {
			n, err := executor.Recover(ctx)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "recovered %d stale run(s)\n", n)
			return err
		})
	},
}

func withExecutor(cmd *cobra.Command, fn func(ctx context.Context, executor *domain.Executor) error) error {
	var executor *domain.Executor

	modules := fx.Options(
		baseModules(cmd),
		blobfx.Module,
		domainfx.CoreModule,
		fx.Populate(&executor),
	)

	return runOnce(cmd.Context(), modules, func(ctx context.Context) error {
		return fn(ctx, executor)
	})
}

package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the retention scheduler",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fx.New(serverModules(cmd)).Run()
	},
}

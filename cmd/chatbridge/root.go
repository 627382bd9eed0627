package main

import (
	"chat-bridge/internal/bootstrap"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chatbridge",
		Short:         "Drives a web chat UI through a headless browser and exposes it as an API.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(),
		newConsoleCmd(),
	)

	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(bootstrap.NewServerApp())
		},
	}
}

func newConsoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Chat interactively from the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(bootstrap.NewConsoleApp())
		},
	}
}

// run blocks until the app receives a shutdown signal or asks to stop.
func run(app *fx.App) error {
	if err := app.Err(); err != nil {
		return err
	}

	app.Run()

	return nil
}

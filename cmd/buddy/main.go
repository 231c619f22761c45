package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is normal.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "buddy",
		Short:         "Chat with your local assistant",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	root.PersistentFlags().String("env", "", "backend environment for this run (local or remote)")

	root.AddCommand(
		newChatCmd(),
		newAskCmd(),
		newHistoryCmd(),
		newNotesCmd(),
		newDocsCmd(),
		newModelsCmd(),
		newPromptCmd(),
		newRAGCmd(),
		newEnvCmd(),
		newStatusCmd(),
		newWeatherCmd(),
		newConfigCmd(),
		newDataCmd(),
	)
	return root
}

// withApp builds the app for one command and closes it afterwards.
func withApp(cmd *cobra.Command, interactive bool, fn func(ctx context.Context, a *app) error) error {
	env, _ := cmd.Flags().GetString("env")
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, appOptions{env: env, interactive: interactive})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

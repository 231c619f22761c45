package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newDataCmd() *cobra.Command {
	dataCmd := &cobra.Command{
		Use:   "data",
		Short: "Inspect or purge locally stored data",
	}

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show the local database schema and stored records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, a *app) error {
				versions, err := a.store.AppliedMigrations()
				if err != nil {
					return fmt.Errorf("reading schema version: %w", err)
				}
				keys, err := a.store.Keys()
				if err != nil {
					return fmt.Errorf("listing records: %w", err)
				}

				out := cmd.OutOrStdout()
				applied := make([]string, len(versions))
				for i, v := range versions {
					applied[i] = strconv.Itoa(v)
				}
				printStatus(out, "Data dir", "%s", a.cfg.Storage.DataDir)
				printStatus(out, "Migrations", "%s", strings.Join(applied, ", "))
				printStatus(out, "Records", "%d", len(keys))
				for _, k := range keys {
					v, _ := a.store.Lookup(k)
					fmt.Fprintf(out, "  %s  %s\n", k, formatSize(int64(len(v))))
				}
				return nil
			})
		},
	}

	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete all locally stored records",
		Long: `Delete every locally stored record: conversation history, system
prompt, selected model and environment. Notes and documents live on the
backend and are not touched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			confirm, _ := cmd.Flags().GetBool("confirm")
			if !confirm {
				printWarning("This will delete ALL local data. Use --confirm to proceed.")
				return nil
			}
			return withApp(cmd, false, func(ctx context.Context, a *app) error {
				keys, err := a.store.Keys()
				if err != nil {
					return fmt.Errorf("listing records: %w", err)
				}
				failed := 0
				for _, k := range keys {
					if err := a.store.Delete(k); err != nil {
						printError("Failed to delete %s: %v", k, err)
						failed++
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d records were not deleted", failed, len(keys))
				}
				printSuccess("All local data purged")
				return nil
			})
		},
	}
	purgeCmd.Flags().Bool("confirm", false, "confirm data purge")

	dataCmd.AddCommand(infoCmd, purgeCmd)
	return dataCmd
}

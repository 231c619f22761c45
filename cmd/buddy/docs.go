package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/buddy/internal/upload"
)

func newDocsCmd() *cobra.Command {
	docsCmd := &cobra.Command{
		Use:   "docs",
		Short: "Manage documents in the knowledge base",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List uploaded documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, a *app) error {
				if err := a.library.Refresh(ctx); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				docs := a.library.Documents()
				if len(docs) == 0 {
					fmt.Fprintln(out, "No documents uploaded yet.")
					return nil
				}
				for _, d := range docs {
					fmt.Fprintf(out, "%s  %s  %s\n", colorize(colorBold, d.Filename), formatSize(d.Size), d.StoredName)
				}
				return nil
			})
		},
	}

	uploadCmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload documents for knowledge-base search",
		Long: `Upload documents for knowledge-base search. Files are sent one at a
time in the order given. Allowed types: ` + strings.Join(upload.AllowedExtensions, ", ") + `.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, a *app) error {
				printStep("Uploading %d file(s)...", len(args))
				outcomes := a.uploads.Upload(ctx, upload.FromPaths(args...), func(o upload.Outcome) {
					switch o.Status {
					case upload.StatusUploaded:
						if o.Pages > 0 {
							printSuccess("%s, %d pages", o.Message, o.Pages)
						} else {
							printSuccess("%s", o.Message)
						}
					default:
						printError("%s", o.Message)
					}
				})

				failed := 0
				for _, o := range outcomes {
					if o.Status != upload.StatusUploaded {
						failed++
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d files were not uploaded", failed, len(outcomes))
				}
				return nil
			})
		},
	}

	rmCmd := &cobra.Command{
		Use:   "rm <stored_name>",
		Short: "Delete an uploaded document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			stored := args[0]
			return withApp(cmd, false, func(ctx context.Context, a *app) error {
				display := stored
				if err := a.library.Refresh(ctx); err == nil {
					for _, d := range a.library.Documents() {
						if d.StoredName == stored {
							display = d.Filename
							break
						}
					}
				}

				c := promptConfirmer{in: cmd.InOrStdin(), out: cmd.ErrOrStderr(), assumeYes: yes}
				err := a.library.Delete(ctx, stored, display, c)
				if errors.Is(err, upload.ErrNotConfirmed) {
					printWarning("Cancelled")
					return nil
				}
				if err != nil {
					return err
				}
				printSuccess("Deleted %q", display)
				return nil
			})
		},
	}
	rmCmd.Flags().Bool("yes", false, "skip the confirmation prompt")

	docsCmd.AddCommand(listCmd, uploadCmd, rmCmd)
	return docsCmd
}

package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/buddy/internal/notes"
)

func newNotesCmd() *cobra.Command {
	notesCmd := &cobra.Command{
		Use:   "notes",
		Short: "Manage sticky notes",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List notes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			term, _ := cmd.Flags().GetString("search")
			return withApp(cmd, false, func(ctx context.Context, a *app) error {
				// Refresh failures already fell back to the last known or
				// demo notes; list whatever is there.
				if err := a.notes.Refresh(ctx); err != nil {
					printWarning("%v", err)
				}
				if a.notes.Fallback() {
					printWarning("Backend unavailable, showing demo notes")
				}

				out := cmd.OutOrStdout()
				found := a.notes.Search(term)
				if len(found) == 0 {
					fmt.Fprintln(out, "No notes found.")
					return nil
				}
				for _, n := range found {
					fmt.Fprintf(out, "%s  %-7s %s\n",
						colorize(colorBold, fmt.Sprintf("#%d", n.ID)), "["+n.Color+"]", n.Content)
				}
				return nil
			})
		},
	}
	listCmd.Flags().String("search", "", "only notes containing this text")

	addCmd := &cobra.Command{
		Use:   "add <content>",
		Short: "Add a note",
		Long: `Add a note.

Examples:
  buddy notes add "Call the venue about Thursday"
  buddy notes add --color pink Order printer paper`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			color, _ := cmd.Flags().GetString("color")
			content := strings.Join(args, " ")
			return withApp(cmd, false, func(ctx context.Context, a *app) error {
				defer printNotices(a.notes)()
				return a.notes.Create(ctx, content, color)
			})
		},
	}
	addCmd.Flags().String("color", notes.DefaultColor, "one of "+strings.Join(notes.Colors, ", "))

	editCmd := &cobra.Command{
		Use:   "edit <id> <content>",
		Short: "Replace a note's text",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseNoteID(args[0])
			if err != nil {
				return err
			}
			content := strings.Join(args[1:], " ")
			return withApp(cmd, false, func(ctx context.Context, a *app) error {
				defer printNotices(a.notes)()
				if err := a.notes.Refresh(ctx); err != nil {
					return err
				}

				ed := notes.NewEditor(a.notes)
				if err := ed.Begin(ctx, id); err != nil {
					return err
				}
				if err := ed.SetDraft(content); err != nil {
					return err
				}
				if err := ed.Commit(ctx); err != nil {
					return err
				}
				printSuccess("Note #%d saved", id)
				return nil
			})
		},
	}

	colorCmd := &cobra.Command{
		Use:       "color <id> <color>",
		Short:     "Change a note's color",
		Args:      cobra.ExactArgs(2),
		ValidArgs: notes.Colors,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseNoteID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, false, func(ctx context.Context, a *app) error {
				defer printNotices(a.notes)()
				if err := a.notes.Refresh(ctx); err != nil {
					return err
				}
				if err := a.notes.Recolor(ctx, id, args[1]); err != nil {
					return err
				}
				printSuccess("Note #%d is now %s", id, strings.ToLower(args[1]))
				return nil
			})
		},
	}

	rmCmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			id, err := parseNoteID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, false, func(ctx context.Context, a *app) error {
				defer printNotices(a.notes)()
				if err := a.notes.Refresh(ctx); err != nil {
					return err
				}
				c := promptConfirmer{in: cmd.InOrStdin(), out: cmd.ErrOrStderr(), assumeYes: yes}
				err := a.notes.Delete(ctx, id, c)
				if errors.Is(err, notes.ErrNotConfirmed) {
					printWarning("Cancelled")
					return nil
				}
				return err
			})
		},
	}
	rmCmd.Flags().Bool("yes", false, "skip the confirmation prompt")

	notesCmd.AddCommand(listCmd, addCmd, editCmd, colorCmd, rmCmd)
	return notesCmd
}

// printNotices echoes the manager's notices until the returned func is
// called.
func printNotices(m *notes.Manager) (stop func()) {
	return m.Subscribe(func(ev notes.Event) {
		if ev.Kind != notes.EventNotice {
			return
		}
		if ev.Err != nil {
			printWarning("%s", ev.Notice)
			return
		}
		printSuccess("%s", ev.Notice)
	})
}

func parseNoteID(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimPrefix(s, "#"))
	if err != nil {
		return 0, fmt.Errorf("invalid note id %q", s)
	}
	return id, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/kalambet/buddy/internal/catalog"
	"github.com/kalambet/buddy/internal/config"
	"github.com/kalambet/buddy/internal/conversation"
	"github.com/kalambet/buddy/internal/gateway"
	"github.com/kalambet/buddy/internal/tui"
	"github.com/kalambet/buddy/internal/weather"
)

// --- chat ---

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Open the interactive chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, true, func(ctx context.Context, a *app) error {
				ctx, cancel := context.WithCancel(ctx)
				var wg sync.WaitGroup
				// The store closes after this returns; background loads must
				// be done by then.
				defer wg.Wait()
				defer cancel()

				wg.Add(2)
				go func() {
					defer wg.Done()
					a.poller.Run(ctx)
				}()
				go func() {
					defer wg.Done()
					a.warmUp(ctx)
				}()

				m := tui.NewModel(ctx, a.session, tui.Options{
					Poller:  a.poller,
					Weather: a.weather,
				})
				defer m.Close()

				_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
				if err != nil && ctx.Err() != nil {
					return nil
				}
				return err
			})
		},
	}
}

// --- ask ---

func newAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <message>",
		Short: "Send one message and print the reply",
		Long: `Send one message and print the reply. The exchange is saved to the
conversation history like any message sent from the chat.

Examples:
  buddy ask "Draft a reminder for Friday's team meeting"
  buddy --env remote ask what is on my calendar`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return withApp(cmd, false, func(ctx context.Context, a *app) error {
				before := len(a.session.History())
				if err := a.session.Send(ctx, text); err != nil {
					return err
				}
				hist := a.session.History()
				if len(hist) <= before+1 {
					printWarning("No reply")
					return nil
				}
				reply := hist[len(hist)-1]
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, reply.Content)
				if len(reply.Sources) > 0 {
					printStatus(out, "Sources", "%s", strings.Join(reply.Sources, ", "))
				}
				return nil
			})
		},
	}
}

// --- history ---

func newHistoryCmd() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show, clear or export the conversation",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, a *app) error {
				hist := a.session.History()
				out := cmd.OutOrStdout()
				if len(hist) == 0 {
					fmt.Fprintln(out, "No messages yet.")
					return nil
				}
				for _, m := range hist {
					label := "You"
					if m.Role == conversation.RoleAssistant {
						label = "Buddy"
					}
					when := m.Timestamp
					if t := m.Time(); !t.IsZero() {
						when = t.Local().Format("2006-01-02 15:04")
					}
					fmt.Fprintf(out, "%s  %s\n", colorize(colorBold, label), when)
					fmt.Fprintf(out, "%s\n", m.Content)
					if len(m.Sources) > 0 {
						fmt.Fprintf(out, "  Sources: %s\n", strings.Join(m.Sources, ", "))
					}
					fmt.Fprintln(out)
				}
				return nil
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the whole conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			return withApp(cmd, false, func(ctx context.Context, a *app) error {
				c := promptConfirmer{in: cmd.InOrStdin(), out: cmd.ErrOrStderr(), assumeYes: yes}
				err := a.session.Clear(ctx, c)
				switch {
				case errors.Is(err, conversation.ErrNothingToClear):
					printWarning("Nothing to clear")
					return nil
				case errors.Is(err, conversation.ErrNotConfirmed):
					printWarning("Cancelled")
					return nil
				case err != nil:
					return err
				}
				printSuccess("Conversation cleared")
				return nil
			})
		},
	}
	clearCmd.Flags().Bool("yes", false, "skip the confirmation prompt")

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export the conversation",
		Long: `Export the conversation as JSON, YAML or Markdown.

Without --output the export goes to stdout. When --output names a directory,
the file is named ai-conversation-YYYY-MM-DD.<ext> inside it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")
			return withApp(cmd, false, func(ctx context.Context, a *app) error {
				snap, err := a.session.Export()
				if errors.Is(err, conversation.ErrNothingToExport) {
					printWarning("No conversation to export")
					return nil
				}
				if err != nil {
					return err
				}
				if output == "" {
					return conversation.WriteSnapshot(cmd.OutOrStdout(), snap, format)
				}

				if fi, err := os.Stat(output); err == nil && fi.IsDir() {
					output = filepath.Join(output, conversation.ExportFilename(time.Now(), format))
				}
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating export file: %w", err)
				}
				if err := conversation.WriteSnapshot(f, snap, format); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				printSuccess("Exported %d messages to %s", snap.MessageCount, output)
				return nil
			})
		},
	}
	exportCmd.Flags().String("format", conversation.FormatJSON, "json, yaml or markdown")
	exportCmd.Flags().String("output", "", "output file or directory (default: stdout)")

	historyCmd.AddCommand(showCmd, clearCmd, exportCmd)
	return historyCmd
}

// --- prompt ---

func newPromptCmd() *cobra.Command {
	promptCmd := &cobra.Command{
		Use:   "prompt",
		Short: "Show or change the system prompt",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the system prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, a *app) error {
				fmt.Fprintln(cmd.OutOrStdout(), a.session.Settings().SystemPrompt)
				return nil
			})
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <text>",
		Short: "Replace the system prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return withApp(cmd, false, func(ctx context.Context, a *app) error {
				if err := a.session.SetSystemPrompt(text); err != nil {
					return err
				}
				printSuccess("System prompt saved")
				return nil
			})
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Restore the default system prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, a *app) error {
				if err := a.session.SetSystemPrompt(conversation.DefaultSystemPrompt); err != nil {
					return err
				}
				printSuccess("System prompt reset")
				return nil
			})
		},
	}

	promptCmd.AddCommand(showCmd, setCmd, resetCmd)
	return promptCmd
}

// --- rag ---

func newRAGCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "rag <on|off>",
		Short:     "Turn knowledge-base search on or off",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var value string
			switch args[0] {
			case "on":
				value = "true"
			case "off":
				value = "false"
			default:
				return fmt.Errorf("want on or off, got %q", args[0])
			}
			if err := config.SetKey("chat.use_rag", value); err != nil {
				return err
			}
			printSuccess("Knowledge base %s", args[0])
			return nil
		},
	}
}

// --- models ---

func newModelsCmd() *cobra.Command {
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "List or choose the backend model",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the models the backend offers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, a *app) error {
				err := a.catalog.Load(ctx)
				if errors.Is(err, catalog.ErrNoModels) {
					printWarning("No models available")
					return nil
				}
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				selected := a.catalog.Selected()
				for _, name := range a.catalog.Models() {
					marker := " "
					if name == selected {
						marker = colorize(colorGreen, "*")
					}
					fmt.Fprintf(out, "%s %s\n", marker, name)
				}
				return nil
			})
		},
	}

	useCmd := &cobra.Command{
		Use:   "use <name>",
		Short: "Choose the model sent with each message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, a *app) error {
				if err := a.catalog.Load(ctx); err != nil {
					return err
				}
				if err := a.catalog.Select(args[0]); err != nil {
					return err
				}
				printSuccess("Using %s", args[0])
				return nil
			})
		},
	}

	modelsCmd.AddCommand(listCmd, useCmd)
	return modelsCmd
}

// --- env ---

func newEnvCmd() *cobra.Command {
	envCmd := &cobra.Command{
		Use:   "env",
		Short: "Show or switch the backend environment",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the active environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, a *app) error {
				out := cmd.OutOrStdout()
				printStatus(out, "Environment", "%s", a.env)
				printStatus(out, "Backend", "%s", a.gw.BaseURL())
				return nil
			})
		},
	}

	setCmd := &cobra.Command{
		Use:       "set <local|remote>",
		Short:     "Switch and remember the backend environment",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{config.EnvLocal, config.EnvRemote},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, a *app) error {
				if err := a.switchEnvironment(args[0]); err != nil {
					return err
				}
				printSuccess("Switched to %s (%s)", a.env, a.gw.BaseURL())
				p := a.poller.Check(ctx)
				printStatus(cmd.OutOrStdout(), "Status", "%s", p.Text)
				return nil
			})
		},
	}

	envCmd.AddCommand(showCmd, setCmd)
	return envCmd
}

// --- status ---

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the backend once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, a *app) error {
				p := a.poller.Check(ctx)
				set := a.session.Settings()

				out := cmd.OutOrStdout()
				printStatus(out, "Backend", "%s (%s)", a.gw.BaseURL(), a.env)
				printStatus(out, "Status", "%s", p.Text)
				if set.Model != "" {
					printStatus(out, "Model", "%s", set.Model)
				}
				printStatus(out, "Knowledge base", "%s", onOff(set.UseRAG))
				printStatus(out, "Messages", "%d", len(a.session.History()))
				if p.Err != nil {
					printWarning("%s", gateway.Reason(p.Err))
				}
				return nil
			})
		},
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// --- weather ---

func newWeatherCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "weather",
		Short: "Show the current weather",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, a *app) error {
				w, err := a.weather.Current(ctx)
				if err != nil {
					return fmt.Errorf("weather unavailable: %s", gateway.Reason(err))
				}
				fmt.Fprintln(cmd.OutOrStdout(), weather.Format(w))
				return nil
			})
		},
	}
}

// --- config ---

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show or update configuration",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, k := range config.ShowAll(cfg) {
				fmt.Fprintf(out, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
			}
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]

			if err := config.SetKey(key, value); err != nil {
				return err
			}

			printSuccess("Set %s = %s", key, value)
			return nil
		},
	}

	configCmd.AddCommand(showCmd, setCmd)
	return configCmd
}

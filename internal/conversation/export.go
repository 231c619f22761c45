package conversation

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Export formats.
const (
	FormatJSON     = "json"
	FormatYAML     = "yaml"
	FormatMarkdown = "markdown"
)

// Formats lists the supported export formats, default first.
var Formats = []string{FormatJSON, FormatYAML, FormatMarkdown}

// ExportFilename returns the download name used for a snapshot taken at t,
// e.g. ai-conversation-2024-05-01.json.
func ExportFilename(t time.Time, format string) string {
	ext := "json"
	switch format {
	case FormatYAML:
		ext = "yaml"
	case FormatMarkdown:
		ext = "md"
	}
	return fmt.Sprintf("ai-conversation-%s.%s", t.UTC().Format("2006-01-02"), ext)
}

// WriteSnapshot encodes snap to w. An empty format means JSON.
func WriteSnapshot(w io.Writer, snap Snapshot, format string) error {
	switch format {
	case "", FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	case FormatMarkdown:
		_, err := io.WriteString(w, renderMarkdown(snap))
		return err
	default:
		return fmt.Errorf("unknown export format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
}

func renderMarkdown(snap Snapshot) string {
	var sb strings.Builder
	sb.WriteString("# Conversation\n\n")
	fmt.Fprintf(&sb, "- Exported: %s\n", snap.ExportDate)
	fmt.Fprintf(&sb, "- Messages: %d\n", snap.MessageCount)

	for _, m := range snap.Conversation {
		who := "You"
		if m.Role == RoleAssistant {
			who = "Buddy"
		}
		fmt.Fprintf(&sb, "\n## %s", who)
		if m.Timestamp != "" {
			fmt.Fprintf(&sb, " (%s)", m.Timestamp)
		}
		sb.WriteString("\n\n")
		sb.WriteString(strings.TrimSpace(m.Content))
		sb.WriteString("\n")
		if len(m.Sources) > 0 {
			fmt.Fprintf(&sb, "\nSources: %s\n", strings.Join(m.Sources, ", "))
		}
	}
	return sb.String()
}

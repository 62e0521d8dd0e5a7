package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"trialrag/internal/engine"
)

var (
	askFormat  string
	askSession string
)

// NewAskCmd creates the one-shot question command.
func NewAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a single question",
		Long: `Answer one question against the loaded sources and print the reply,
its citation and the chunks it was drawn from.

Examples:
  trialrag ask "What's the recommended dose for Metformin?"
  trialrag ask --format json "Adverse events for Imatinib"`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAsk,
	}
	cmd.Flags().StringVar(&askFormat, "format", "table", "Output format: table or json")
	cmd.Flags().StringVar(&askSession, "session", "", "Session id (default: a new session)")
	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	if askFormat != "table" && askFormat != "json" {
		return fmt.Errorf("unknown format %q", askFormat)
	}
	a, _, _, err := buildApp(cmd.Context(), os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	session := askSession
	if session == "" {
		session = uuid.NewString()
	}
	reply, err := a.Engine.SubmitTurn(cmd.Context(), session, strings.Join(args, " "))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if askFormat == "json" {
		return writeReplyJSON(out, session, reply)
	}
	return writeReplyTable(out, reply)
}

func writeReplyJSON(w io.Writer, session string, r engine.Reply) error {
	payload := map[string]any{
		"session_id":        session,
		"assistant_message": r.Message,
		"source_citation":   nil,
		"source_used":       r.Source,
		"intent":            r.Intent.String(),
		"is_unknown":        r.Unknown,
		"is_safety_refusal": r.SafetyRefusal,
		"is_clarification":  r.Clarification,
		"sources":           r.Sources,
	}
	if r.Citation != "" {
		payload["source_citation"] = r.Citation
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Fprintf(w, "%s\n", data)
	return nil
}

func writeReplyTable(w io.Writer, r engine.Reply) error {
	fmt.Fprintln(w, r.Message)
	if r.Citation == "" {
		return nil
	}
	fmt.Fprintf(w, "\nSource: %s\n\n", r.Citation)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tPROVENANCE\tSCORE\tOVERLAP\tFIELDS")
	for _, s := range r.Sources {
		fmt.Fprintf(tw, "%s\t%s\t%.3f\t%.2f\t%s\n", s.Kind, truncate(s.Provenance, 40), s.Score, s.Overlap, formatFields(s.Fields))
	}
	return tw.Flush()
}

func formatFields(fields map[string]string) string {
	if len(fields) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if fields[k] != "" {
			parts = append(parts, k+"="+fields[k])
		}
	}
	return truncate(strings.Join(parts, " "), 60)
}

// truncate shortens a string to maxLen, adding "..." if truncated
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

package commands

import (
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"trialrag/internal/tui"
)

// NewChatCmd creates the interactive terminal chat command.
func NewChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive terminal chat",
		Long: `Open a terminal chat session against the loaded sources.

Enter sends a question, Ctrl+R resets the session and Ctrl+C quits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// the TUI owns the terminal, so logs are dropped
			a, _, _, err := buildApp(cmd.Context(), io.Discard)
			if err != nil {
				return err
			}
			defer a.Close()

			m := tui.New(a.Engine, uuid.NewString(), a.Overview)
			_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
			return err
		},
	}
}

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/documind-cli/pkg/conversation"
	dmerrors "github.com/otherjamesbrown/documind-cli/pkg/errors"
	"github.com/otherjamesbrown/documind-cli/pkg/timeref"
)

// AskOutput is the machine-readable result of a question.
type AskOutput struct {
	Question string          `json:"question" yaml:"question"`
	Answer   string          `json:"answer" yaml:"answer"`
	Tokens   []timeref.Token `json:"tokens" yaml:"tokens"`
}

var askTimeRefStyle = lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("45"))

// NewAskCommand creates the ask command.
func NewAskCommand(deps *BackendCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultBackendDeps()
	}
	var output string

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the uploaded file",
		Long: `Ask a question about the most recently uploaded file.

Time references in the answer, such as [1:23] or (12:05), are highlighted and
listed with their offset in seconds. Use 'documind seek' or the interactive
session to jump a player to them.

Examples:
  documind ask "When is pricing discussed?"
  documind ask what are the action items --output json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, deps, strings.Join(args, " "), output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: text, json, yaml")
	return cmd
}

func runAsk(cmd *cobra.Command, deps *BackendCommandDeps, question, output string) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	deps.Config = cfg

	format, err := resolveFormat(cfg, output)
	if err != nil {
		return err
	}

	logger := newLogger(cfg, cmd.ErrOrStderr())
	backend, err := deps.InitBackend(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("connecting to backend: %w", err)
	}
	defer backend.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
	defer cancel()

	dialogue := conversation.New(backend, nil, logger)
	turn, err := dialogue.Ask(ctx, question)
	if err != nil {
		return fmt.Errorf("%s: %w", dmerrors.UserMessage(err), err)
	}

	rendered := conversation.RenderTurn(turn)
	result := AskOutput{Question: question, Answer: turn.Text, Tokens: rendered.Tokens}
	return writeOutput(cmd.OutOrStdout(), format, result, func() error {
		out := cmd.OutOrStdout()
		var b strings.Builder
		var refs []timeref.Token
		for _, tok := range rendered.Tokens {
			if tok.IsTimeRef() {
				refs = append(refs, tok)
				b.WriteString(askTimeRefStyle.Render("[" + tok.Display() + "]"))
				continue
			}
			b.WriteString(tok.Text)
		}
		fmt.Fprintln(out, b.String())
		if len(refs) > 0 {
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Time references:")
			for i, ref := range refs {
				fmt.Fprintf(out, "  %d. %-6s %ds\n", i+1, ref.Display(), ref.TotalSeconds())
			}
		}
		return nil
	})
}

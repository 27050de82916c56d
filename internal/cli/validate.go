package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AnatoleLucet/flow"
	"github.com/AnatoleLucet/flow/internal/scenario"
)

// ValidationResult is the JSON output of the validate command.
type ValidationResult struct {
	Scenario string `json:"scenario,omitempty"`
	Valid    bool   `json:"valid"`
	Nodes    int    `json:"nodes,omitempty"`
	Steps    int    `json:"steps,omitempty"`
	Error    string `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario.yaml>",
		Short: "Check a scenario without running its steps",
		Long: `Parse a scenario file, check its declarations, and wire its graph on a
throwaway engine so that loops of sources are reported.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	logger := opts.logger(cmd)

	s, err := loadScenario(path)
	if err == nil {
		err = wire(s, logger)
	}

	result := ValidationResult{Valid: err == nil}
	if err != nil {
		result.Error = err.Error()
	} else {
		result.Scenario = s.Name
		result.Nodes = len(s.Nodes)
		result.Steps = len(s.Steps)
	}

	if opts.Format == "json" {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		if encErr := encoder.Encode(result); encErr != nil {
			return encErr
		}
	} else if err == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "ok: %s (%d nodes, %d steps)\n", result.Scenario, result.Nodes, result.Steps)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "invalid: %s\n", result.Error)
	}

	return err
}

// wire builds the graph of s on a throwaway engine.
func wire(s *scenario.Scenario, logger *slog.Logger) error {
	g, err := scenario.Build(s)
	if err != nil {
		return WrapExitError(ExitFailure, "invalid scenario", err)
	}

	e := flow.NewEngine(g.Registry, flow.WithName(s.Name), flow.WithLogger(logger))
	if err := g.Wire(e); err != nil {
		return WrapExitError(ExitFailure, "invalid wiring", err)
	}

	return nil
}

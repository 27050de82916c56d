package cli

import (
	"errors"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/AnatoleLucet/flow"
	"github.com/AnatoleLucet/flow/internal/scenario"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a scenario and print its trace",
		Long: `Build the graph described by a scenario file, publish each of its steps
in a single cycle, and print what every watched node emitted.

Example:
  flowctl run ./checkout.yaml
  flowctl run ./checkout.yaml --format json --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runScenario(opts *RootOptions, path string, cmd *cobra.Command) error {
	logger := opts.logger(cmd)

	s, err := loadScenario(path)
	if err != nil {
		return err
	}

	logger.Debug("scenario loaded", "scenario", s.Name, "nodes", len(s.Nodes), "steps", len(s.Steps))

	trace, err := scenario.Run(s, flow.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitFailure, "scenario failed", err)
	}

	if opts.Format == "json" {
		return trace.WriteJSON(cmd.OutOrStdout())
	}
	return trace.WriteText(cmd.OutOrStdout())
}

func loadScenario(path string) (*scenario.Scenario, error) {
	s, err := scenario.Load(path)
	if err == nil {
		return s, nil
	}

	if errors.Is(err, fs.ErrNotExist) {
		return nil, WrapExitError(ExitCommandError, "cannot load scenario", err)
	}
	return nil, WrapExitError(ExitFailure, "cannot load scenario", err)
}

// Package cli implements the datesheet command line tool.
package cli

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/datesheet-api/pkg/datesheet"
	"github.com/noah-isme/datesheet-api/pkg/logger"
)

// Exit codes returned by the datesheet binary.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitIncomplete = 2
)

type globalOptions struct {
	verbose bool
	logger  *zap.Logger
}

// NewRootCmd creates the root cobra command for the datesheet CLI.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "datesheet",
		Short: "Generate and check exam datesheets",
		Long:  "datesheet schedules one exam per class per day from a subject table, skipping Sundays, second Saturdays and holidays.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := logger.NewCLI(opts.verbose)
			if err != nil {
				return err
			}
			opts.logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = opts.logger.Sync()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging on stderr")

	root.AddCommand(
		newGenerateCmd(opts),
		newTemplateCmd(),
		newVerifyCmd(opts),
	)

	return root
}

// ExitCode maps a command error onto the process exit status. Runs that
// stalled or hit the day cap exit with ExitIncomplete.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, datesheet.ErrStalled), errors.Is(err, datesheet.ErrDayCapExceeded):
		return ExitIncomplete
	default:
		return ExitFailure
	}
}

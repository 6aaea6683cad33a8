package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/datesheet-api/pkg/datesheet"
)

func newVerifyCmd(global *globalOptions) *cobra.Command {
	var (
		flags    runFlags
		schedule string
		partial  bool
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Re-check a generated datesheet CSV against its subject table",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(schedule)
			if err != nil {
				return fmt.Errorf("open schedule: %w", err)
			}
			defer file.Close()

			res, err := datesheet.ReadScheduleCSV(file, flags.dateFormat)
			if err != nil {
				return err
			}
			if flags.start == "" && len(res.Rows) > 0 {
				flags.start = res.Rows[0].Date.Format("2006-01-02")
			}
			in, opts, err := flags.build()
			if err != nil {
				return err
			}
			if !partial {
				res.Status = datesheet.StatusCompleted
			}

			if err := datesheet.Verify(in, res, opts); err != nil {
				global.logger.Debug("verification failed", zap.Error(err))
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d rows, %d assignments\n", len(res.Rows), res.Assignments)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&schedule, "schedule", "s", "", "Generated datesheet CSV")
	cmd.Flags().BoolVar(&partial, "partial", false, "Accept schedules that do not finish every class")
	_ = cmd.MarkFlagRequired("schedule")
	return cmd
}

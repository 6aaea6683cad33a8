package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/datesheet-api/pkg/datesheet"
	"github.com/noah-isme/datesheet-api/pkg/export"
)

type runFlags struct {
	input        string
	start        string
	holidays     []string
	holidaysFile string
	maxDays      int
	recency      string
	syncCohorts  []string
	dateFormat   string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.input, "input", "i", "", "Subject table (.csv, .yaml, .yml or .json)")
	cmd.Flags().StringVar(&f.start, "start", "", "First candidate exam date (DD-MM-YYYY or YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&f.holidays, "holiday", nil, "Holiday date or \"from,to\" range; repeatable")
	cmd.Flags().StringVar(&f.holidaysFile, "holidays-file", "", "File with one holiday date or range per line")
	cmd.Flags().IntVar(&f.maxDays, "max-days", datesheet.DefaultMaxDays, "Maximum calendar days to attempt")
	cmd.Flags().StringVar(&f.recency, "recency", string(datesheet.RecencyPerClass), "Recency scope: per_class or daily")
	cmd.Flags().StringSliceVar(&f.syncCohorts, "sync", datesheet.DefaultSyncCohorts, "Cohort prefixes whose streams share common exams")
	cmd.Flags().StringVar(&f.dateFormat, "date-format", datesheet.DefaultDateFormat, "Go layout for row dates")
	_ = cmd.MarkFlagRequired("input")
}

// build loads the input file and assembles engine input and options.
func (f *runFlags) build() (datesheet.Input, datesheet.Options, error) {
	spec, err := loadRunSpec(f.input)
	if err != nil {
		return datesheet.Input{}, datesheet.Options{}, err
	}

	rawStart := f.start
	if rawStart == "" {
		rawStart = spec.Start
	}
	if rawStart == "" {
		return datesheet.Input{}, datesheet.Options{}, datesheet.ErrInvalidStartDate
	}
	start, err := datesheet.ParseDate(rawStart)
	if err != nil {
		return datesheet.Input{}, datesheet.Options{}, err
	}

	holidays := datesheet.NewHolidaySet()
	for _, raw := range append(append([]string(nil), spec.Holidays...), f.holidays...) {
		if err := addHoliday(holidays, raw); err != nil {
			return datesheet.Input{}, datesheet.Options{}, err
		}
	}
	if f.holidaysFile != "" {
		file, err := os.Open(f.holidaysFile)
		if err != nil {
			return datesheet.Input{}, datesheet.Options{}, fmt.Errorf("open holidays file: %w", err)
		}
		defer file.Close()
		if err := readHolidayLines(file, holidays); err != nil {
			return datesheet.Input{}, datesheet.Options{}, err
		}
	}

	recency, err := datesheet.ParseRecencyScope(f.recency)
	if err != nil {
		return datesheet.Input{}, datesheet.Options{}, err
	}
	registry, err := datesheet.PrefixRegistry(f.syncCohorts, datesheet.ClassIDs(spec.Classes))
	if err != nil {
		return datesheet.Input{}, datesheet.Options{}, err
	}

	in := datesheet.Input{Classes: spec.Classes, StartDate: start, Holidays: holidays}
	opts := datesheet.Options{
		MaxDays:    f.maxDays,
		Recency:    recency,
		Registry:   registry,
		DateFormat: f.dateFormat,
	}
	return in, opts, nil
}

func newGenerateCmd(global *globalOptions) *cobra.Command {
	var (
		flags  runFlags
		format string
		out    string
		title  string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a datesheet from a subject table",
		Example: "  datesheet generate -i subjects.csv --start 04-03-2024 --holiday 25-03-2024\n" +
			"  datesheet generate -i term.yaml --format pdf --out datesheet.pdf",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, opts, err := flags.build()
			if err != nil {
				return err
			}

			started := time.Now()
			res, err := datesheet.Generate(in, opts)
			if err != nil {
				return err
			}
			global.logger.Debug("datesheet run finished",
				zap.String("status", string(res.Status)),
				zap.Int("rows", len(res.Rows)),
				zap.Int("days_attempted", res.DaysAttempted),
				zap.Duration("elapsed", time.Since(started)),
			)

			w := cmd.OutOrStdout()
			if out != "" {
				file, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer file.Close()
				w = file
			}
			if err := render(w, format, title, res); err != nil {
				return err
			}

			if !res.Complete() {
				reportRemaining(cmd.ErrOrStderr(), res)
				return res.Err()
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format: table, csv, json or pdf")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write output to a file instead of stdout")
	cmd.Flags().StringVar(&title, "title", "Examination Datesheet", "Title used in PDF output")
	return cmd
}

func render(w io.Writer, format, title string, res *datesheet.Result) error {
	switch strings.ToLower(format) {
	case "table":
		return writeTable(w, res)
	case "csv":
		return datesheet.WriteScheduleCSV(w, res)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case "pdf":
		payload, err := export.NewPDFExporter().Render(export.FromSchedule(title, res))
		if err != nil {
			return err
		}
		_, err = w.Write(payload)
		return err
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func writeTable(w io.Writer, res *datesheet.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(datesheet.ScheduleHeaders(res), "\t"))
	for _, record := range datesheet.ScheduleRecords(res) {
		fmt.Fprintln(tw, strings.Join(record, "\t"))
	}
	return tw.Flush()
}

func reportRemaining(w io.Writer, res *datesheet.Result) {
	fmt.Fprintf(w, "datesheet %s after %d days\n", res.Status, res.DaysAttempted)
	classes := make([]string, 0, len(res.Remaining))
	for class := range res.Remaining {
		classes = append(classes, string(class))
	}
	sort.Strings(classes)
	for _, class := range classes {
		fmt.Fprintf(w, "  %s still needs: %s\n", class, strings.Join(res.Remaining[datesheet.ClassID(class)], ", "))
	}
}

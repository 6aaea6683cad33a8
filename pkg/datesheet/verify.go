package datesheet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// ErrInvalidSchedule is wrapped by every VerificationError.
var ErrInvalidSchedule = errors.New("schedule violates datesheet invariants")

// VerificationError lists every invariant a schedule breaks.
type VerificationError struct {
	Violations []string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidSchedule, strings.Join(e.Violations, "; "))
}

func (e *VerificationError) Unwrap() error {
	return ErrInvalidSchedule
}

// Verify re-checks res against the input it was generated from. It reports
// duplicated or foreign subjects, missing subjects on completed runs, recency
// repeats, split group commits, rows on blocked days and out of order dates.
func Verify(in Input, res *Result, opts Options) error {
	if res == nil {
		return fmt.Errorf("%w: nil result", ErrInvalidInput)
	}
	opts = opts.withDefaults()
	cal := NewCalendar(opts.Rules, in.Holidays)

	var violations []string
	report := func(format string, args ...any) {
		violations = append(violations, fmt.Sprintf(format, args...))
	}

	original := make(map[ClassID][]string, len(in.Classes))
	for _, entry := range in.Classes {
		original[NormalizeClassID(string(entry.Class))] = entry.Subjects
	}
	for _, class := range res.Classes {
		if _, ok := original[class]; !ok {
			report("class %q is not part of the input", class)
		}
	}

	start := DateOf(in.StartDate)
	for i, row := range res.Rows {
		date := DateOf(row.Date)
		if len(row.Cells) != len(res.Classes) {
			report("row %s has %d cells for %d classes", row.Label, len(row.Cells), len(res.Classes))
			return &VerificationError{Violations: violations}
		}
		if date.Before(start) {
			report("row %s is before the start date", row.Label)
		}
		if reason := cal.BlockReason(date); reason != BlockNone {
			report("row %s falls on a blocked day (%s)", row.Label, reason)
		}
		if i > 0 && !date.After(DateOf(res.Rows[i-1].Date)) {
			report("row %s is not after row %s", row.Label, res.Rows[i-1].Label)
		}
	}

	backlogs := make(map[ClassID][]string, len(res.Classes))
	for _, class := range res.Classes {
		backlogs[class] = append([]string(nil), original[class]...)
	}

	for _, class := range res.Classes {
		assigned := res.Assigned(class)
		if opts.Recency == RecencyPerClass {
			for k := range assigned {
				for back := 1; back <= RecencyWindowSize && k-back >= 0; back++ {
					if assigned[k] == assigned[k-back] {
						report("class %q repeats %q within its recency window", class, assigned[k])
					}
				}
			}
		}
	}

	groupCols := groupColumns(res.Classes, opts.Registry)
	for _, row := range res.Rows {
		for _, cols := range groupCols {
			checkGroupRow(row, cols, res.Classes, backlogs, report)
		}
		for col, class := range res.Classes {
			cell := row.Cells[col]
			if cell == Placeholder {
				continue
			}
			pos := lo.IndexOf(backlogs[class], cell)
			if pos < 0 {
				report("class %q gets %q on %s which is not left in its backlog", class, cell, row.Label)
				continue
			}
			backlogs[class] = removeAt(backlogs[class], pos)
		}
	}

	if res.Status == StatusCompleted {
		for _, class := range res.Classes {
			if left := backlogs[class]; len(left) > 0 {
				report("class %q never sat %s", class, strings.Join(left, ", "))
			}
		}
	}

	if len(violations) > 0 {
		return &VerificationError{Violations: violations}
	}
	return nil
}

func groupColumns(classes []ClassID, registry *Registry) [][]int {
	var out [][]int
	for _, group := range registry.Groups() {
		cols := lo.FilterMap(group.Members, func(id ClassID, _ int) (int, bool) {
			col := lo.IndexOf(classes, id)
			return col, col >= 0
		})
		if len(cols) > 1 {
			out = append(out, cols)
		}
	}
	return out
}

// checkGroupRow flags a subject that every unfinished member still needed at
// the start of the day but only some of them received.
func checkGroupRow(row Row, cols []int, classes []ClassID, backlogs map[ClassID][]string, report func(string, ...any)) {
	open := lo.Filter(cols, func(col int, _ int) bool {
		return len(backlogs[classes[col]]) > 0
	})
	if len(open) < 2 {
		return
	}
	for _, col := range open {
		subject := row.Cells[col]
		if subject == Placeholder {
			continue
		}
		common := lo.EveryBy(open, func(other int) bool {
			return lo.Contains(backlogs[classes[other]], subject)
		})
		if !common {
			continue
		}
		for _, other := range open {
			if row.Cells[other] != subject {
				report("group commit of %q on %s is split: %q has %q", subject, row.Label, classes[other], row.Cells[other])
			}
		}
		return
	}
}

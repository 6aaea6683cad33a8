package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/noah-isme/datesheet-api/pkg/datesheet"
)

// Dataset is an ordered table ready for rendering.
type Dataset struct {
	Title   string
	Headers []string
	Rows    [][]string
	Notes   []string
}

func (d Dataset) validate() error {
	if len(d.Headers) == 0 {
		return fmt.Errorf("dataset requires at least one header")
	}
	for i, row := range d.Rows {
		if len(row) != len(d.Headers) {
			return fmt.Errorf("row %d has %d cells for %d headers", i+1, len(row), len(d.Headers))
		}
	}
	return nil
}

// FromSchedule lays a datesheet out as Date, Day and one column per class.
// Incomplete runs get a note per unfinished class.
func FromSchedule(title string, res *datesheet.Result) Dataset {
	data := Dataset{
		Title:   title,
		Headers: datesheet.ScheduleHeaders(res),
		Rows:    datesheet.ScheduleRecords(res),
	}
	if res.Complete() {
		return data
	}

	data.Notes = append(data.Notes, fmt.Sprintf("Incomplete datesheet: %s", res.Status))
	classes := make([]string, 0, len(res.Remaining))
	for class := range res.Remaining {
		classes = append(classes, string(class))
	}
	sort.Strings(classes)
	for _, class := range classes {
		subjects := res.Remaining[datesheet.ClassID(class)]
		data.Notes = append(data.Notes, fmt.Sprintf("%s still needs: %s", class, strings.Join(subjects, ", ")))
	}
	return data
}

package datesheet

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
)

const (
	tableClassHeader = "Class"
	scheduleDateHead = "Date"
	scheduleDayHead  = "Day"
)

// ParseTable turns spreadsheet rows of the form "class, subject 1..N" into
// ordered backlogs. A leading header row and blank rows are ignored, blank and
// placeholder cells are dropped and subject order is kept.
func ParseTable(records [][]string) ([]ClassBacklog, error) {
	out := make([]ClassBacklog, 0, len(records))
	seen := make(map[ClassID]int, len(records))
	for i, record := range records {
		cells := lo.Map(record, func(cell string, _ int) string { return strings.TrimSpace(cell) })
		if len(cells) == 0 || lo.EveryBy(cells, func(cell string) bool { return cell == "" }) {
			continue
		}
		id := NormalizeClassID(cells[0])
		if i == 0 && strings.EqualFold(string(id), tableClassHeader) {
			continue
		}
		if id == "" {
			return nil, fmt.Errorf("%w: row %d has subjects but no class", ErrInvalidInput, i+1)
		}
		if prev, ok := seen[id]; ok {
			return nil, fmt.Errorf("%w: %q on rows %d and %d", ErrDuplicateClass, id, prev, i+1)
		}
		seen[id] = i + 1

		subjects := lo.Filter(cells[1:], func(cell string, _ int) bool {
			return cell != "" && cell != Placeholder
		})
		out = append(out, ClassBacklog{Class: id, Subjects: subjects})
	}
	if len(out) == 0 {
		return nil, ErrEmptyInput
	}
	return out, nil
}

// ReadTableCSV parses a subject table from CSV. Rows may have different lengths.
func ReadTableCSV(r io.Reader) ([]ClassBacklog, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: read table: %v", ErrInvalidInput, err)
	}
	return ParseTable(records)
}

// TableRecords lays classes out as a rectangular table padded with placeholders.
func TableRecords(classes []ClassBacklog) [][]string {
	width := lo.Max(lo.Map(classes, func(c ClassBacklog, _ int) int { return len(c.Subjects) }))
	header := make([]string, 0, width+1)
	header = append(header, tableClassHeader)
	for i := 1; i <= width; i++ {
		header = append(header, "Subject "+strconv.Itoa(i))
	}
	records := [][]string{header}
	for _, class := range classes {
		record := make([]string, width+1)
		record[0] = string(class.Class)
		for i := 0; i < width; i++ {
			record[i+1] = Placeholder
			if i < len(class.Subjects) {
				record[i+1] = class.Subjects[i]
			}
		}
		records = append(records, record)
	}
	return records
}

// WriteTableCSV writes classes in the layout ReadTableCSV accepts.
func WriteTableCSV(w io.Writer, classes []ClassBacklog) error {
	writer := csv.NewWriter(w)
	if err := writer.WriteAll(TableRecords(classes)); err != nil {
		return fmt.Errorf("write table: %w", err)
	}
	return nil
}

// DefaultTable returns the starter subject table for classes 6 to 12.
func DefaultTable() []ClassBacklog {
	lower := []string{"maths", "eng", "hindi", "sanskrit", "science", "ai", "sst"}
	middle := []string{"maths", "eng", "hindi/sanskrit", "science", "ai", "sst"}
	science := []string{"maths", "eng", "hindi/sanskrit", "physics", "chem", "bio/cs"}
	commerce := []string{"maths", "eng", "hindi/sanskrit", "business s", "economics", "accountancy"}
	arts := []string{"eng", "hindi/sanskrit", "history", "geography", "political sc", "economics"}

	table := []ClassBacklog{
		{Class: "6", Subjects: lower}, {Class: "7", Subjects: lower}, {Class: "8", Subjects: lower},
		{Class: "9", Subjects: middle}, {Class: "10", Subjects: middle},
		{Class: "11 science", Subjects: science}, {Class: "11 commerce", Subjects: commerce}, {Class: "11 arts", Subjects: arts},
		{Class: "12 science", Subjects: science}, {Class: "12 commerce", Subjects: commerce}, {Class: "12 arts", Subjects: arts},
	}
	for i := range table {
		table[i].Subjects = append([]string(nil), table[i].Subjects...)
	}
	return table
}

// ClassIDs lists the class ids of classes in order.
func ClassIDs(classes []ClassBacklog) []ClassID {
	return lo.Map(classes, func(c ClassBacklog, _ int) ClassID {
		return NormalizeClassID(string(c.Class))
	})
}

// ScheduleHeaders returns the column titles of a rendered schedule.
func ScheduleHeaders(res *Result) []string {
	headers := []string{scheduleDateHead, scheduleDayHead}
	for _, class := range res.Classes {
		headers = append(headers, string(class))
	}
	return headers
}

// ScheduleRecords renders every row as date, weekday and one cell per class.
func ScheduleRecords(res *Result) [][]string {
	return lo.Map(res.Rows, func(row Row, _ int) []string {
		record := make([]string, 0, len(row.Cells)+2)
		record = append(record, row.Label, row.Weekday)
		return append(record, row.Cells...)
	})
}

// WriteScheduleCSV writes the header and rows of res.
func WriteScheduleCSV(w io.Writer, res *Result) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(ScheduleHeaders(res)); err != nil {
		return fmt.Errorf("write schedule header: %w", err)
	}
	if err := writer.WriteAll(ScheduleRecords(res)); err != nil {
		return fmt.Errorf("write schedule rows: %w", err)
	}
	return nil
}

// ReadScheduleCSV reads a schedule written by WriteScheduleCSV. The returned
// result has no status; callers decide it, typically through Verify.
func ReadScheduleCSV(r io.Reader, dateFormat string) (*Result, error) {
	if dateFormat == "" {
		dateFormat = DefaultDateFormat
	}
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: read schedule: %v", ErrInvalidInput, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: schedule is empty", ErrInvalidInput)
	}
	header := records[0]
	if len(header) < 3 || !strings.EqualFold(header[0], scheduleDateHead) || !strings.EqualFold(header[1], scheduleDayHead) {
		return nil, fmt.Errorf("%w: schedule header must start with %s,%s", ErrInvalidInput, scheduleDateHead, scheduleDayHead)
	}

	res := &Result{Classes: make([]ClassID, 0, len(header)-2)}
	for _, raw := range header[2:] {
		res.Classes = append(res.Classes, NormalizeClassID(raw))
	}
	for i, record := range records[1:] {
		date, err := time.Parse(dateFormat, strings.TrimSpace(record[0]))
		if err != nil {
			if date, err = ParseDate(record[0]); err != nil {
				return nil, fmt.Errorf("row %d: %w", i+2, err)
			}
		}
		cells := lo.Map(record[2:], func(cell string, _ int) string {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				return Placeholder
			}
			return cell
		})
		res.Rows = append(res.Rows, Row{
			Date:    DateOf(date),
			Label:   strings.TrimSpace(record[0]),
			Weekday: strings.TrimSpace(record[1]),
			Cells:   cells,
		})
		res.Assignments += len(lo.Filter(cells, func(cell string, _ int) bool { return cell != Placeholder }))
	}
	return res, nil
}

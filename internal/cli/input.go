package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/datesheet-api/pkg/datesheet"
)

// tableFile is the structured (YAML or JSON) form of a run description.
// Classes accepts either a list of {class, subjects} entries or a mapping of
// class name to subjects; the mapping form loses row order and is sorted.
type tableFile struct {
	Start    string      `mapstructure:"start"`
	Holidays []string    `mapstructure:"holidays"`
	Classes  interface{} `mapstructure:"classes"`
}

// runSpec is a loaded input file. Start and Holidays are empty for CSV tables.
type runSpec struct {
	Classes  []datesheet.ClassBacklog
	Start    string
	Holidays []string
}

func loadRunSpec(path string) (*runSpec, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var raw map[string]interface{}
		if err := yaml.NewDecoder(file).Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: parse yaml: %v", datesheet.ErrInvalidInput, err)
		}
		return decodeTableFile(raw)
	case ".json":
		var raw map[string]interface{}
		if err := json.NewDecoder(file).Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: parse json: %v", datesheet.ErrInvalidInput, err)
		}
		return decodeTableFile(raw)
	default:
		classes, err := datesheet.ReadTableCSV(file)
		if err != nil {
			return nil, err
		}
		return &runSpec{Classes: classes}, nil
	}
}

func decodeTableFile(raw map[string]interface{}) (*runSpec, error) {
	var tf tableFile
	if err := weakDecode(raw, &tf); err != nil {
		return nil, fmt.Errorf("%w: %v", datesheet.ErrInvalidInput, err)
	}

	classes := tf.Classes
	if generic, ok := classes.(map[interface{}]interface{}); ok {
		classes = lo.MapKeys(generic, func(_ interface{}, key interface{}) string { return fmt.Sprint(key) })
	}

	var records [][]string
	switch classes := classes.(type) {
	case []interface{}:
		var entries []datesheet.ClassBacklog
		if err := weakDecode(classes, &entries); err != nil {
			return nil, fmt.Errorf("%w: classes: %v", datesheet.ErrInvalidInput, err)
		}
		for _, entry := range entries {
			records = append(records, append([]string{string(entry.Class)}, entry.Subjects...))
		}
	case map[string]interface{}:
		var byClass map[string][]string
		if err := weakDecode(classes, &byClass); err != nil {
			return nil, fmt.Errorf("%w: classes: %v", datesheet.ErrInvalidInput, err)
		}
		names := lo.Keys(byClass)
		sort.Strings(names)
		for _, name := range names {
			records = append(records, append([]string{name}, byClass[name]...))
		}
	case nil:
		return nil, datesheet.ErrEmptyInput
	default:
		return nil, fmt.Errorf("%w: classes must be a list or a mapping", datesheet.ErrInvalidInput)
	}

	backlogs, err := datesheet.ParseTable(records)
	if err != nil {
		return nil, err
	}
	return &runSpec{Classes: backlogs, Start: tf.Start, Holidays: tf.Holidays}, nil
}

// readHolidayLines parses one date or "from,to" range per line. Blank lines
// and lines starting with # are ignored.
func readHolidayLines(r io.Reader, set datesheet.HolidaySet) error {
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if err := addHoliday(set, text); err != nil {
			return fmt.Errorf("holidays line %d: %w", line, err)
		}
	}
	return scanner.Err()
}

func addHoliday(set datesheet.HolidaySet, raw string) error {
	from, to, isRange := strings.Cut(raw, ",")
	start, err := datesheet.ParseDate(from)
	if err != nil {
		return err
	}
	if !isRange {
		set.Add(start)
		return nil
	}
	end, err := datesheet.ParseDate(to)
	if err != nil {
		return err
	}
	if end.Before(start) {
		return fmt.Errorf("%w: range %q ends before it starts", datesheet.ErrInvalidDate, raw)
	}
	set.AddRange(start, end)
	return nil
}

func weakDecode(input, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

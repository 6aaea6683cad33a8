package datesheet

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

const (
	// Placeholder fills a cell when a class has no exam that day.
	Placeholder = "-"
	// DefaultMaxDays bounds how many calendar days a run may examine.
	DefaultMaxDays = 400
	// DefaultDateFormat renders row dates as day-month-year.
	DefaultDateFormat = "02-01-2006"
)

// ClassBacklog is one class and the subjects it still has to sit, in priority order.
type ClassBacklog struct {
	Class    ClassID  `json:"class" yaml:"class" mapstructure:"class"`
	Subjects []string `json:"subjects" yaml:"subjects" mapstructure:"subjects"`
}

// Input is everything a run needs. Classes are visited in slice order.
type Input struct {
	Classes   []ClassBacklog
	StartDate time.Time
	Holidays  HolidaySet
}

// Options tunes the engine. The zero value is usable.
type Options struct {
	MaxDays    int
	Recency    RecencyScope
	Rules      CalendarRules
	Registry   *Registry
	DateFormat string
}

func (o Options) withDefaults() Options {
	if o.MaxDays <= 0 {
		o.MaxDays = DefaultMaxDays
	}
	if o.Recency == "" {
		o.Recency = RecencyPerClass
	}
	if o.Rules.isZero() {
		o.Rules = DefaultCalendarRules()
	}
	if o.DateFormat == "" {
		o.DateFormat = DefaultDateFormat
	}
	return o
}

// Status is the terminal state of a run.
type Status string

const (
	StatusCompleted      Status = "completed"
	StatusStalled        Status = "stalled"
	StatusDayCapExceeded Status = "day_cap_exceeded"
)

// Row is one scheduled day. Cells line up with Result.Classes.
type Row struct {
	Date    time.Time `json:"-"`
	Label   string    `json:"date"`
	Weekday string    `json:"weekday"`
	Cells   []string  `json:"cells"`
}

// SkippedDate records a candidate day the calendar rejected.
type SkippedDate struct {
	Date   time.Time   `json:"date"`
	Reason BlockReason `json:"reason"`
}

// Result is the outcome of one run. Stalled and day-capped runs still carry the
// rows built before termination.
type Result struct {
	Status        Status               `json:"status"`
	Classes       []ClassID            `json:"classes"`
	Rows          []Row                `json:"rows"`
	Skipped       []SkippedDate        `json:"skipped,omitempty"`
	Remaining     map[ClassID][]string `json:"remaining,omitempty"`
	DaysAttempted int                  `json:"daysAttempted"`
	Assignments   int                  `json:"assignments"`
	StalledOn     *time.Time           `json:"stalledOn,omitempty"`
}

// Complete reports whether every class finished.
func (r *Result) Complete() bool {
	return r != nil && r.Status == StatusCompleted
}

// Err converts an incomplete run into ErrStalled or ErrDayCapExceeded.
func (r *Result) Err() error {
	if r == nil {
		return nil
	}
	switch r.Status {
	case StatusCompleted:
		return nil
	case StatusStalled:
		on := ""
		if r.StalledOn != nil {
			on = r.StalledOn.Format(isoDateLayout)
		}
		return fmt.Errorf("%w: stalled on %s with %d classes unfinished", ErrStalled, on, len(r.Remaining))
	case StatusDayCapExceeded:
		return fmt.Errorf("%w: %d days attempted with %d classes unfinished", ErrDayCapExceeded, r.DaysAttempted, len(r.Remaining))
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, r.Status)
	}
}

// Cell returns the subject of class on row i, or the placeholder.
func (r *Result) Cell(i int, class ClassID) string {
	col := lo.IndexOf(r.Classes, class)
	if col < 0 || i < 0 || i >= len(r.Rows) {
		return Placeholder
	}
	return r.Rows[i].Cells[col]
}

// Assigned lists the real subjects given to class in date order.
func (r *Result) Assigned(class ClassID) []string {
	col := lo.IndexOf(r.Classes, class)
	if col < 0 {
		return nil
	}
	out := make([]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		if cell := row.Cells[col]; cell != Placeholder {
			out = append(out, cell)
		}
	}
	return out
}

// Engine builds datesheets. It holds no run state and is safe for concurrent use.
type Engine struct {
	opts Options
}

// NewEngine constructs an engine with defaults applied to opts.
func NewEngine(opts Options) *Engine {
	return &Engine{opts: opts.withDefaults()}
}

// Options returns the effective options.
func (e *Engine) Options() Options {
	return e.opts
}

// Run schedules in. It only fails for malformed input; stalls and the day cap
// are reported through Result.Status.
func (e *Engine) Run(in Input) (*Result, error) {
	r, err := e.newRun(in)
	if err != nil {
		return nil, err
	}
	r.execute()
	return r.result, nil
}

// Generate is shorthand for NewEngine(opts).Run(in).
func Generate(in Input, opts Options) (*Result, error) {
	return NewEngine(opts).Run(in)
}

type classState struct {
	id       ClassID
	backlog  []string
	history  *RecencyWindow
	group    int
	finished bool
}

type run struct {
	opts     Options
	calendar *Calendar
	classes  []*classState
	groups   [][]int
	daily    *RecencyWindow
	cursor   time.Time
	finished int
	result   *Result
}

func (e *Engine) newRun(in Input) (*run, error) {
	if len(in.Classes) == 0 {
		return nil, ErrEmptyInput
	}
	if in.StartDate.IsZero() {
		return nil, ErrInvalidStartDate
	}

	r := &run{
		opts:     e.opts,
		calendar: NewCalendar(e.opts.Rules, in.Holidays.Clone()),
		daily:    NewRecencyWindow(RecencyWindowSize),
		cursor:   DateOf(in.StartDate),
		result:   &Result{Classes: make([]ClassID, 0, len(in.Classes))},
	}

	seen := make(map[ClassID]bool, len(in.Classes))
	groupIndex := make(map[string]int)
	for _, entry := range in.Classes {
		id := NormalizeClassID(string(entry.Class))
		if id == "" {
			return nil, fmt.Errorf("%w: blank class name", ErrInvalidInput)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateClass, id)
		}
		seen[id] = true

		backlog := make([]string, 0, len(entry.Subjects))
		for _, subject := range entry.Subjects {
			if strings.TrimSpace(subject) == "" || subject == Placeholder {
				return nil, fmt.Errorf("%w: class %q has subject %q", ErrInvalidSubject, id, subject)
			}
			backlog = append(backlog, subject)
		}

		cs := &classState{id: id, backlog: backlog, history: NewRecencyWindow(RecencyWindowSize), group: -1}
		if group, ok := e.opts.Registry.GroupOf(id); ok {
			idx, exists := groupIndex[group.Name]
			if !exists {
				idx = len(r.groups)
				groupIndex[group.Name] = idx
				r.groups = append(r.groups, nil)
			}
			cs.group = idx
			r.groups[idx] = append(r.groups[idx], len(r.classes))
		}
		if len(backlog) == 0 {
			cs.finished = true
			r.finished++
		}
		r.classes = append(r.classes, cs)
		r.result.Classes = append(r.result.Classes, id)
	}
	return r, nil
}

func (r *run) execute() {
	for {
		if r.finished == len(r.classes) {
			r.result.Status = StatusCompleted
			break
		}
		if r.result.DaysAttempted >= r.opts.MaxDays {
			r.result.Status = StatusDayCapExceeded
			break
		}

		day := r.cursor
		r.cursor = day.AddDate(0, 0, 1)
		r.result.DaysAttempted++

		if reason := r.calendar.BlockReason(day); reason != BlockNone {
			r.result.Skipped = append(r.result.Skipped, SkippedDate{Date: day, Reason: reason})
			continue
		}

		row, progressed := r.scheduleDay(day)
		if !progressed {
			r.result.StalledOn = &day
			r.result.Status = StatusStalled
			break
		}
		r.result.Rows = append(r.result.Rows, row)
	}
	r.collectRemaining()
}

func (r *run) scheduleDay(day time.Time) (Row, bool) {
	cells := make([]string, len(r.classes))
	for i := range cells {
		cells[i] = Placeholder
	}
	settled := make([]bool, len(r.classes))
	r.daily.Reset()
	progressed := false

	for i, cs := range r.classes {
		if settled[i] {
			continue
		}
		settled[i] = true
		if cs.finished {
			continue
		}
		if len(cs.backlog) == 0 {
			r.finish(cs)
			continue
		}
		// a grouped class never jumps ahead of its blocked priority subject
		if cs.group >= 0 && r.windowFor(cs).Contains(cs.backlog[0]) {
			continue
		}
		tx, ok := r.pick(i, settled)
		if !ok {
			continue
		}
		r.commit(tx, cells, settled)
		progressed = true
	}

	return Row{
		Date:    day,
		Label:   day.Format(r.opts.DateFormat),
		Weekday: day.Weekday().String(),
		Cells:   cells,
	}, progressed
}

func (r *run) windowFor(cs *classState) *RecencyWindow {
	if r.opts.Recency == RecencyDaily {
		return r.daily
	}
	return cs.history
}

type placement struct {
	class int
	pos   int
}

// transaction is one subject decision covering a single class or a whole group.
type transaction struct {
	subject string
	targets []placement
}

func (r *run) pick(idx int, settled []bool) (transaction, bool) {
	cs := r.classes[idx]
	window := r.windowFor(cs)
	partners := r.openPartners(idx)

	for pos, subject := range cs.backlog {
		if window.Contains(subject) {
			continue
		}
		tx := transaction{subject: subject, targets: []placement{{class: idx, pos: pos}}}
		if len(partners) == 0 {
			return tx, true
		}
		shared, common := r.sharedPlacements(subject, partners)
		if !common {
			return tx, true
		}
		// a subject every open member still needs moves as a group or not at all
		if !r.canCommitTogether(subject, partners, settled) {
			continue
		}
		tx.targets = append(tx.targets, shared...)
		return tx, true
	}
	return transaction{}, false
}

func (r *run) openPartners(idx int) []int {
	cs := r.classes[idx]
	if cs.group < 0 {
		return nil
	}
	return lo.Filter(r.groups[cs.group], func(member int, _ int) bool {
		return member != idx && !r.classes[member].finished
	})
}

func (r *run) sharedPlacements(subject string, partners []int) ([]placement, bool) {
	out := make([]placement, 0, len(partners))
	for _, member := range partners {
		pos := lo.IndexOf(r.classes[member].backlog, subject)
		if pos < 0 {
			return nil, false
		}
		out = append(out, placement{class: member, pos: pos})
	}
	return out, true
}

func (r *run) canCommitTogether(subject string, partners []int, settled []bool) bool {
	for _, member := range partners {
		if settled[member] {
			return false
		}
		if r.opts.Recency == RecencyPerClass && r.classes[member].history.Contains(subject) {
			return false
		}
	}
	return true
}

// commit stages every backlog change before touching any class so a group
// decision is applied in full or not at all.
func (r *run) commit(tx transaction, cells []string, settled []bool) {
	staged := make([][]string, len(tx.targets))
	for k, target := range tx.targets {
		staged[k] = removeAt(r.classes[target.class].backlog, target.pos)
	}
	for k, target := range tx.targets {
		cs := r.classes[target.class]
		cs.backlog = staged[k]
		cs.history.Push(tx.subject)
		r.daily.Push(tx.subject)
		cells[target.class] = tx.subject
		settled[target.class] = true
		r.result.Assignments++
		if len(cs.backlog) == 0 {
			r.finish(cs)
		}
	}
}

func (r *run) finish(cs *classState) {
	if cs.finished {
		return
	}
	cs.finished = true
	r.finished++
}

func (r *run) collectRemaining() {
	remaining := make(map[ClassID][]string)
	for _, cs := range r.classes {
		if cs.finished {
			continue
		}
		remaining[cs.id] = append([]string(nil), cs.backlog...)
	}
	if len(remaining) > 0 {
		r.result.Remaining = remaining
	}
}

func removeAt(items []string, pos int) []string {
	out := make([]string, 0, len(items)-1)
	out = append(out, items[:pos]...)
	return append(out, items[pos+1:]...)
}

package datesheet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var monday = day(2024, time.January, 1)

func backlog(class string, subjects ...string) ClassBacklog {
	return ClassBacklog{Class: ClassID(class), Subjects: subjects}
}

func labels(res *Result) []string {
	out := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		out = append(out, row.Label)
	}
	return out
}

func column(res *Result, class ClassID) []string {
	out := make([]string, 0, len(res.Rows))
	for i := range res.Rows {
		out = append(out, res.Cell(i, class))
	}
	return out
}

func runWithDefaultGroups(t *testing.T, in Input, opts Options) *Result {
	t.Helper()
	registry, err := DefaultRegistry(ClassIDs(in.Classes))
	require.NoError(t, err)
	opts.Registry = registry
	res, err := NewEngine(opts).Run(in)
	require.NoError(t, err)
	require.NoError(t, Verify(in, res, opts))
	return res
}

func TestEngineSingleClassConsecutiveWeekdays(t *testing.T) {
	in := Input{Classes: []ClassBacklog{backlog("6", "A", "B", "C")}, StartDate: monday}

	res, err := Generate(in, Options{})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.True(t, res.Complete())
	assert.NoError(t, res.Err())
	assert.Equal(t, []string{"01-01-2024", "02-01-2024", "03-01-2024"}, labels(res))
	assert.Equal(t, []string{"Monday", "Tuesday", "Wednesday"}, []string{res.Rows[0].Weekday, res.Rows[1].Weekday, res.Rows[2].Weekday})
	assert.Equal(t, []string{"A", "B", "C"}, res.Assigned("6"))
	assert.Equal(t, 3, res.Assignments)
	assert.Nil(t, res.Remaining)
}

func TestEngineRecencyIsPerClass(t *testing.T) {
	in := Input{
		Classes:   []ClassBacklog{backlog("c1", "M", "E"), backlog("c2", "M", "E")},
		StartDate: monday,
	}

	res, err := Generate(in, Options{})
	require.NoError(t, err)

	require.Len(t, res.Rows, 2)
	assert.Equal(t, []string{"M", "M"}, res.Rows[0].Cells)
	assert.Equal(t, []string{"E", "E"}, res.Rows[1].Cells)
	assert.NoError(t, Verify(in, res, Options{}))
}

func TestEngineGroupCommitsSharedSubjectTogether(t *testing.T) {
	in := Input{
		Classes: []ClassBacklog{
			backlog("11-science", "Maths", "Eng", "Physics"),
			backlog("11-commerce", "Maths", "Eng", "Economics"),
		},
		StartDate: monday,
	}

	res := runWithDefaultGroups(t, in, Options{})

	assert.Equal(t, StatusCompleted, res.Status)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, []string{"Maths", "Maths"}, res.Rows[0].Cells)
	assert.Equal(t, []string{"Eng", "Eng"}, res.Rows[1].Cells)
	assert.Equal(t, []string{"Physics", "Economics"}, res.Rows[2].Cells)
}

func TestEngineSundayStartMovesToMonday(t *testing.T) {
	sunday := day(2024, time.January, 7)
	in := Input{Classes: []ClassBacklog{backlog("6", "A")}, StartDate: sunday}

	res, err := Generate(in, Options{})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, day(2024, time.January, 8), res.Rows[0].Date)
	assert.Equal(t, []SkippedDate{{Date: sunday, Reason: BlockRestDay}}, res.Skipped)

	in.Holidays = NewHolidaySet(day(2024, time.January, 8))
	res, err = Generate(in, Options{})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, day(2024, time.January, 9), res.Rows[0].Date)
}

func TestEngineStallsOnForcedRepeat(t *testing.T) {
	in := Input{Classes: []ClassBacklog{backlog("6", "A", "B", "A")}, StartDate: monday}

	res, err := Generate(in, Options{})
	require.NoError(t, err)

	assert.Equal(t, StatusStalled, res.Status)
	assert.False(t, res.Complete())
	assert.ErrorIs(t, res.Err(), ErrStalled)
	assert.Equal(t, []string{"A", "B"}, res.Assigned("6"))
	assert.Equal(t, map[ClassID][]string{"6": {"A"}}, res.Remaining)
	require.NotNil(t, res.StalledOn)
	assert.Equal(t, day(2024, time.January, 3), *res.StalledOn)
	assert.NoError(t, Verify(in, res, Options{}))
}

func TestEngineSkipsHolidayAndResumes(t *testing.T) {
	holiday := day(2024, time.January, 2)
	in := Input{
		Classes:   []ClassBacklog{backlog("6", "A", "B")},
		StartDate: monday,
		Holidays:  NewHolidaySet(holiday),
	}

	res, err := Generate(in, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"01-01-2024", "03-01-2024"}, labels(res))
	assert.Equal(t, []SkippedDate{{Date: holiday, Reason: BlockHoliday}}, res.Skipped)
}

func TestEngineSkipsSecondSaturdayAndSunday(t *testing.T) {
	friday := day(2024, time.January, 12)
	in := Input{Classes: []ClassBacklog{backlog("9", "A", "B", "C")}, StartDate: friday}

	res, err := Generate(in, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"12-01-2024", "15-01-2024", "16-01-2024"}, labels(res))
	require.Len(t, res.Skipped, 2)
	assert.Equal(t, BlockPartialRest, res.Skipped[0].Reason)
	assert.Equal(t, BlockRestDay, res.Skipped[1].Reason)
	assert.Equal(t, 5, res.DaysAttempted)
}

func TestEngineDayCapReturnsPrefix(t *testing.T) {
	in := Input{Classes: []ClassBacklog{backlog("6", "A", "B", "C", "D", "E")}, StartDate: monday}

	res, err := Generate(in, Options{MaxDays: 3})
	require.NoError(t, err)

	assert.Equal(t, StatusDayCapExceeded, res.Status)
	assert.ErrorIs(t, res.Err(), ErrDayCapExceeded)
	assert.Len(t, res.Rows, 3)
	assert.Equal(t, 3, res.DaysAttempted)
	assert.Equal(t, []string{"D", "E"}, res.Remaining["6"])
}

func TestEngineDayCapCountsBlockedDays(t *testing.T) {
	in := Input{Classes: []ClassBacklog{backlog("6", "A")}, StartDate: day(2024, time.January, 7)}

	res, err := Generate(in, Options{MaxDays: 1})
	require.NoError(t, err)

	assert.Equal(t, StatusDayCapExceeded, res.Status)
	assert.Empty(t, res.Rows)
	assert.Len(t, res.Skipped, 1)
}

func TestEngineGroupedClassWaitsForPrioritySubject(t *testing.T) {
	in := Input{
		Classes: []ClassBacklog{
			backlog("11 science", "A", "A", "B"),
			backlog("11 commerce", "A", "C"),
		},
		StartDate: monday,
	}

	res := runWithDefaultGroups(t, in, Options{})

	assert.Equal(t, StatusStalled, res.Status)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, []string{"A", "A"}, res.Rows[0].Cells)
	assert.Equal(t, []string{Placeholder, "C"}, res.Rows[1].Cells, "science waits instead of jumping to B")
	assert.Equal(t, []string{"A", "B"}, res.Remaining["11 science"])
}

func TestEngineDefersContestedGroupSubject(t *testing.T) {
	in := Input{
		Classes: []ClassBacklog{
			backlog("11 commerce", "X", "M"),
			backlog("11 science", "M", "Y"),
		},
		StartDate: monday,
	}

	res := runWithDefaultGroups(t, in, Options{})

	assert.Equal(t, StatusCompleted, res.Status)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, []string{"X", "Y"}, res.Rows[0].Cells)
	assert.Equal(t, []string{"M", "M"}, res.Rows[1].Cells)
}

func TestEngineGroupSubjectHeldBackByPartnerHistory(t *testing.T) {
	in := Input{
		Classes: []ClassBacklog{
			backlog("11 commerce", "S", "X", "Y", "S"),
			backlog("11 science", "S", "S", "Z"),
		},
		StartDate: monday,
	}

	res := runWithDefaultGroups(t, in, Options{})

	assert.Equal(t, StatusStalled, res.Status)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, []string{"S", "S"}, res.Rows[0].Cells)
	assert.Equal(t, []string{"X", Placeholder}, res.Rows[1].Cells)
	assert.Equal(t, []string{"Y", Placeholder}, res.Rows[2].Cells)
	require.NotNil(t, res.StalledOn)
	assert.Equal(t, day(2024, time.January, 4), *res.StalledOn)
	assert.Equal(t, []string{"S"}, res.Remaining["11 commerce"], "commerce may not take S while science sat it last")
	assert.Equal(t, []string{"S", "Z"}, res.Remaining["11 science"])
}

func TestEngineFinishedStreamDoesNotSplitGroup(t *testing.T) {
	in := Input{
		Classes: []ClassBacklog{
			backlog("11 science", "A", "M"),
			backlog("11 commerce", "A", "M"),
			backlog("11 arts", "A"),
		},
		StartDate: monday,
	}

	res := runWithDefaultGroups(t, in, Options{})

	assert.Equal(t, StatusCompleted, res.Status)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, []string{"A", "A", "A"}, res.Rows[0].Cells)
	assert.Equal(t, []string{"M", "M", Placeholder}, res.Rows[1].Cells)
}

func TestResultNilReceiver(t *testing.T) {
	var res *Result
	assert.False(t, res.Complete())
	assert.NoError(t, res.Err())
}

func TestEngineGroupsAreIndependent(t *testing.T) {
	base := []ClassBacklog{
		backlog("11 science", "maths", "eng"),
		backlog("11 arts", "eng", "history"),
		backlog("12 science", "maths", "eng"),
		backlog("12 arts", "eng", "geography"),
	}
	changed := []ClassBacklog{base[0], base[1], base[2], backlog("12 arts", "geography", "eng", "history")}

	first := runWithDefaultGroups(t, Input{Classes: base, StartDate: monday}, Options{})
	second := runWithDefaultGroups(t, Input{Classes: changed, StartDate: monday}, Options{})

	require.True(t, first.Complete())
	require.True(t, second.Complete())
	for _, class := range []ClassID{"11 science", "11 arts"} {
		assert.Equal(t, first.Assigned(class), second.Assigned(class))
		n := len(first.Rows)
		assert.Equal(t, column(first, class), column(second, class)[:n])
	}
	assert.Equal(t, []string{"maths", "eng"}, first.Assigned("11 science"))
	assert.Equal(t, []string{"history", "eng"}, first.Assigned("11 arts"))
}

func TestEngineDailyRecencyScope(t *testing.T) {
	in := Input{
		Classes: []ClassBacklog{
			backlog("c1", "A", "B"),
			backlog("c2", "A", "B"),
			backlog("c3", "A", "B"),
		},
		StartDate: monday,
	}
	opts := Options{Recency: RecencyDaily}

	res, err := Generate(in, opts)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	require.Len(t, res.Rows, 4)
	assert.Equal(t, []string{"A", "B", Placeholder}, res.Rows[0].Cells)
	assert.Equal(t, []string{"B", "A", Placeholder}, res.Rows[1].Cells)
	assert.Equal(t, []string{Placeholder, Placeholder, "A"}, res.Rows[2].Cells)
	assert.Equal(t, []string{Placeholder, Placeholder, "B"}, res.Rows[3].Cells)
	assert.NoError(t, Verify(in, res, opts))
}

func TestEngineFinishedClassesStayPlaceholders(t *testing.T) {
	in := Input{
		Classes:   []ClassBacklog{backlog("empty"), backlog("6", "A", "B")},
		StartDate: monday,
	}

	res, err := Generate(in, Options{})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, []string{Placeholder, Placeholder}, column(res, "empty"))
}

func TestEngineRejectsMalformedInput(t *testing.T) {
	_, err := Generate(Input{StartDate: monday}, Options{})
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = Generate(Input{Classes: []ClassBacklog{backlog("6", "A")}}, Options{})
	assert.ErrorIs(t, err, ErrInvalidStartDate)

	_, err = Generate(Input{
		Classes:   []ClassBacklog{backlog("11 Science", "A"), backlog(" 11  science", "B")},
		StartDate: monday,
	}, Options{})
	assert.ErrorIs(t, err, ErrDuplicateClass)

	_, err = Generate(Input{Classes: []ClassBacklog{backlog("6", "A", Placeholder)}, StartDate: monday}, Options{})
	assert.ErrorIs(t, err, ErrInvalidSubject)

	_, err = Generate(Input{Classes: []ClassBacklog{backlog("  ", "A")}, StartDate: monday}, Options{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEngineDoesNotMutateInput(t *testing.T) {
	subjects := []string{"A", "B"}
	holidays := NewHolidaySet(day(2024, time.January, 2))
	in := Input{Classes: []ClassBacklog{{Class: "6", Subjects: subjects}}, StartDate: monday, Holidays: holidays}

	_, err := Generate(in, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, subjects)
	assert.Len(t, holidays, 1)
}

func TestEngineDefaultTableIsDeterministic(t *testing.T) {
	in := Input{Classes: DefaultTable(), StartDate: monday}

	first := runWithDefaultGroups(t, in, Options{})
	second := runWithDefaultGroups(t, in, Options{})

	assert.Equal(t, StatusCompleted, first.Status)
	assert.Equal(t, first, second)
	assert.Len(t, first.Rows, 7)
	assert.Equal(t, []string{"maths", "eng", "hindi/sanskrit", "physics", "chem", "bio/cs"}, first.Assigned("11 science"))
	assert.Equal(t, []string{"history", "eng", "hindi/sanskrit", "geography", "political sc", "economics"}, first.Assigned("11 arts"))
}

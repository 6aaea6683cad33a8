package datesheet

import "errors"

// Input errors are returned before any day is scheduled.
var (
	ErrInvalidInput     = errors.New("invalid datesheet input")
	ErrEmptyInput       = errors.New("no classes supplied")
	ErrDuplicateClass   = errors.New("duplicate class after normalisation")
	ErrGroupOverlap     = errors.New("class belongs to more than one sync group")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidStartDate = errors.New("start date is required")
	ErrInvalidSubject   = errors.New("invalid subject name")
)

// Terminal failure states reported through Result.Err.
var (
	ErrStalled        = errors.New("no further assignments possible")
	ErrDayCapExceeded = errors.New("day cap exceeded before every class finished")
)

package datesheet

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// RecencyWindowSize is how many of the latest real assignments block a repeat.
const RecencyWindowSize = 2

// RecencyScope selects whose assignments feed the anti-repeat window.
type RecencyScope string

const (
	// RecencyPerClass blocks a subject that was one of the class's own last two exams.
	RecencyPerClass RecencyScope = "per_class"
	// RecencyDaily blocks a subject that was one of the last two exams handed out
	// to any class earlier on the same day. The window resets every day.
	RecencyDaily RecencyScope = "daily"
)

// ParseRecencyScope maps configuration strings onto a scope.
func ParseRecencyScope(raw string) (RecencyScope, error) {
	switch strings.ToLower(strings.TrimSpace(strings.ReplaceAll(raw, "-", "_"))) {
	case "", string(RecencyPerClass), "class":
		return RecencyPerClass, nil
	case string(RecencyDaily), "day":
		return RecencyDaily, nil
	default:
		return "", fmt.Errorf("%w: unknown recency scope %q", ErrInvalidInput, raw)
	}
}

// RecencyWindow remembers the most recent real subjects in assignment order.
type RecencyWindow struct {
	size  int
	items []string
}

// NewRecencyWindow returns an empty window holding at most size subjects.
func NewRecencyWindow(size int) *RecencyWindow {
	if size <= 0 {
		size = RecencyWindowSize
	}
	return &RecencyWindow{size: size, items: make([]string, 0, size)}
}

// Push records a real assignment. Placeholders are ignored.
func (w *RecencyWindow) Push(subject string) {
	if subject == "" || subject == Placeholder {
		return
	}
	if len(w.items) == w.size {
		copy(w.items, w.items[1:])
		w.items = w.items[:w.size-1]
	}
	w.items = append(w.items, subject)
}

// Contains reports whether subject is among the remembered assignments.
func (w *RecencyWindow) Contains(subject string) bool {
	return lo.Contains(w.items, subject)
}

// Reset forgets everything.
func (w *RecencyWindow) Reset() {
	w.items = w.items[:0]
}

// Last returns the remembered subjects, oldest first.
func (w *RecencyWindow) Last() []string {
	out := make([]string, len(w.items))
	copy(out, w.items)
	return out
}

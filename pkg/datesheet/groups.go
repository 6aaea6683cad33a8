package datesheet

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/samber/lo"
)

// ClassID is a normalised class name such as "11 science".
type ClassID string

// NormalizeClassID lower-cases raw, trims it and collapses inner whitespace.
func NormalizeClassID(raw string) ClassID {
	return ClassID(strings.Join(strings.Fields(strings.ToLower(raw)), " "))
}

// DefaultSyncCohorts are the cohorts whose streams sit the same paper on the same day.
var DefaultSyncCohorts = []string{"11", "12"}

// SyncGroup is a set of classes that must receive identical subjects on identical days.
type SyncGroup struct {
	Name    string    `json:"name"`
	Members []ClassID `json:"members"`
}

// Has reports whether id belongs to the group.
func (g SyncGroup) Has(id ClassID) bool {
	return lo.Contains(g.Members, id)
}

// Registry maps classes to their sync group. A nil Registry has no groups.
type Registry struct {
	groups  []SyncGroup
	byClass map[ClassID]int
}

// NewRegistry validates that no class belongs to more than one group.
func NewRegistry(groups ...SyncGroup) (*Registry, error) {
	r := &Registry{byClass: make(map[ClassID]int)}
	for _, group := range groups {
		name := strings.TrimSpace(group.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: sync group name is required", ErrInvalidInput)
		}
		members := lo.Uniq(lo.Map(group.Members, func(id ClassID, _ int) ClassID {
			return NormalizeClassID(string(id))
		}))
		idx := len(r.groups)
		for _, member := range members {
			if member == "" {
				return nil, fmt.Errorf("%w: sync group %q has a blank member", ErrInvalidInput, name)
			}
			if other, ok := r.byClass[member]; ok {
				return nil, fmt.Errorf("%w: class %q is in groups %q and %q", ErrGroupOverlap, member, r.groups[other].Name, name)
			}
			r.byClass[member] = idx
		}
		r.groups = append(r.groups, SyncGroup{Name: name, Members: members})
	}
	return r, nil
}

// PrefixRegistry derives one group per cohort prefix from the supplied classes.
// A class joins cohort "11" when its id starts with "11" followed by a non
// alphanumeric separator, so "11 science" and "11-commerce" match while "110 a"
// and "11arts" do not. Cohorts with fewer than two classes are dropped.
func PrefixRegistry(prefixes []string, classes []ClassID) (*Registry, error) {
	groups := make([]SyncGroup, 0, len(prefixes))
	for _, raw := range prefixes {
		prefix := string(NormalizeClassID(raw))
		if prefix == "" {
			continue
		}
		members := lo.Filter(classes, func(id ClassID, _ int) bool {
			return hasCohortPrefix(id, prefix)
		})
		if len(members) < 2 {
			continue
		}
		groups = append(groups, SyncGroup{Name: prefix, Members: members})
	}
	return NewRegistry(groups...)
}

// DefaultRegistry groups the streams of cohorts 11 and 12 among classes.
func DefaultRegistry(classes []ClassID) (*Registry, error) {
	return PrefixRegistry(DefaultSyncCohorts, classes)
}

func hasCohortPrefix(id ClassID, prefix string) bool {
	s := string(id)
	if len(s) <= len(prefix) || !strings.HasPrefix(s, prefix) {
		return false
	}
	next := rune(s[len(prefix)])
	return !unicode.IsLetter(next) && !unicode.IsDigit(next)
}

// GroupOf returns the group id belongs to.
func (r *Registry) GroupOf(id ClassID) (SyncGroup, bool) {
	if r == nil {
		return SyncGroup{}, false
	}
	idx, ok := r.byClass[id]
	if !ok {
		return SyncGroup{}, false
	}
	return r.groups[idx], true
}

// Groups lists the configured groups.
func (r *Registry) Groups() []SyncGroup {
	if r == nil {
		return nil
	}
	out := make([]SyncGroup, len(r.groups))
	copy(out, r.groups)
	return out
}

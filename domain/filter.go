package domain

import "strings"

// Filter selects tasks by title substring, priority membership and tag
// overlap. A zero Filter matches every task. Filtering is a display concern
// only: it never removes a task from the board or from reorder payloads.
type Filter struct {
	Title      string
	Priorities []Priority
	Tags       []string
}

// Empty reports whether the filter has no active criteria.
func (f Filter) Empty() bool {
	return f.Title == "" && len(f.Priorities) == 0 && len(f.Tags) == 0
}

// Matches reports whether the task passes every active criterion. The title
// match is a case-insensitive substring check, the tag match requires at
// least one shared tag.
func (f Filter) Matches(t Task) bool {
	if f.Title != "" && !strings.Contains(strings.ToLower(t.Title), strings.ToLower(f.Title)) {
		return false
	}
	if len(f.Priorities) > 0 && !containsPriority(f.Priorities, t.Priority) {
		return false
	}
	if len(f.Tags) > 0 && !sharesTag(f.Tags, t.Tags) {
		return false
	}
	return true
}

func containsPriority(ps []Priority, p Priority) bool {
	for _, v := range ps {
		if v == p {
			return true
		}
	}
	return false
}

func sharesTag(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}

package domain

// Priority ranks how urgent a task is.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Med"
	PriorityHigh   Priority = "High"
)

func (p Priority) valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task is a single unit of work. Identity lives outside the struct: tasks are
// stored in Board.Tasks keyed by id, and columns reference those ids.
type Task struct {
	Title    string   `json:"title"`
	Desc     string   `json:"desc"`
	Priority Priority `json:"priority"`
	Due      Date     `json:"due"`
	Tags     []string `json:"tags"`
	Done     bool     `json:"done"`
}

// Normalize applies field defaults and validates the result, returning the
// canonical copy stored on boards. An absent priority defaults to Med and nil
// tags become an empty list.
func (t Task) Normalize() (Task, error) {
	if t.Title == "" {
		return Task{}, newValidationError("task title must not be empty")
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if !t.Priority.valid() {
		return Task{}, newValidationError("invalid priority %q", t.Priority)
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	return t, nil
}

func (t Task) clone() Task {
	t.Tags = append([]string{}, t.Tags...)
	return t
}

// TaskPatch is a partial task update. Nil fields keep their current values;
// a non-nil zero Due clears the deadline.
type TaskPatch struct {
	Title    *string   `json:"title"`
	Desc     *string   `json:"desc"`
	Priority *Priority `json:"priority"`
	Due      *Date     `json:"due"`
	Tags     *[]string `json:"tags"`
	Done     *bool     `json:"done"`
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Desc == nil && p.Priority == nil &&
		p.Due == nil && p.Tags == nil && p.Done == nil
}

// Apply merges the patch into t and normalizes the merged task.
func (p TaskPatch) Apply(t Task) (Task, error) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Desc != nil {
		t.Desc = *p.Desc
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Due != nil {
		t.Due = *p.Due
	}
	if p.Tags != nil {
		t.Tags = append([]string{}, (*p.Tags)...)
	}
	if p.Done != nil {
		t.Done = *p.Done
	}
	return t.Normalize()
}

package domain

import "sort"

// Column is an ordered lane of task references.
type Column struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	TaskIDs []string `json:"task_ids"`
}

// Board aggregates the columns and tasks of one project.
type Board struct {
	Columns []Column        `json:"columns"`
	Tasks   map[string]Task `json:"tasks"`
}

// NewBoard validates raw board data and returns a repaired deep copy.
// Duplicate column ids and task references without a backing task are
// rejected. Tasks referenced by no column are appended to the first column in
// ascending id order; when the board has no columns such tasks stay in the
// task map unassigned.
func NewBoard(columns []Column, tasks map[string]Task) (*Board, error) {
	b := &Board{
		Columns: make([]Column, 0, len(columns)),
		Tasks:   make(map[string]Task, len(tasks)),
	}
	for id, t := range tasks {
		nt, err := t.Normalize()
		if err != nil {
			return nil, newValidationError("task %q: %v", id, err)
		}
		b.Tasks[id] = nt
	}

	seen := make(map[string]struct{}, len(columns))
	assigned := make(map[string]struct{}, len(tasks))
	for _, col := range columns {
		if _, dup := seen[col.ID]; dup {
			return nil, newValidationError("duplicate column id %q", col.ID)
		}
		seen[col.ID] = struct{}{}
		ids := append([]string{}, col.TaskIDs...)
		for _, tid := range ids {
			if _, ok := b.Tasks[tid]; !ok {
				return nil, newValidationError("column %q references unknown task %q", col.ID, tid)
			}
			assigned[tid] = struct{}{}
		}
		col.TaskIDs = ids
		b.Columns = append(b.Columns, col)
	}

	if len(b.Columns) > 0 {
		var orphans []string
		for id := range b.Tasks {
			if _, ok := assigned[id]; !ok {
				orphans = append(orphans, id)
			}
		}
		if len(orphans) > 0 {
			sort.Strings(orphans)
			b.Columns[0].TaskIDs = append(b.Columns[0].TaskIDs, orphans...)
		}
	}
	return b, nil
}

// DefaultBoard returns the three-lane board seeded for new projects.
func DefaultBoard() *Board {
	return &Board{
		Columns: []Column{
			{ID: "todo", Name: "To do", TaskIDs: []string{}},
			{ID: "inprog", Name: "In progress", TaskIDs: []string{}},
			{ID: "done", Name: "Done", TaskIDs: []string{}},
		},
		Tasks: map[string]Task{},
	}
}

// Clone returns a deep copy sharing no slices or maps with b.
func (b *Board) Clone() *Board {
	c := &Board{
		Columns: make([]Column, len(b.Columns)),
		Tasks:   make(map[string]Task, len(b.Tasks)),
	}
	for i, col := range b.Columns {
		col.TaskIDs = append([]string{}, col.TaskIDs...)
		c.Columns[i] = col
	}
	for id, t := range b.Tasks {
		c.Tasks[id] = t.clone()
	}
	return c
}

// column returns a pointer into b.Columns for the given id, or nil.
func (b *Board) column(id string) *Column {
	for i := range b.Columns {
		if b.Columns[i].ID == id {
			return &b.Columns[i]
		}
	}
	return nil
}

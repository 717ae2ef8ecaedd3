package api

import "kanban-api/domain"

const (
	// mutationMaxSize caps request bodies for task, column and reorder
	// mutations.
	mutationMaxSize = 64 * 1024

	// importMaxSize caps full board documents accepted on import.
	importMaxSize = 4 * 1024 * 1024
)

type addTaskRequest struct {
	ColumnID string          `json:"columnId"`
	Title    string          `json:"title"`
	Desc     string          `json:"desc"`
	Priority domain.Priority `json:"priority"`
	Due      domain.Date     `json:"due"`
	Tags     []string        `json:"tags"`
	Done     bool            `json:"done"`
}

func (r addTaskRequest) draft() domain.Task {
	return domain.Task{
		Title:    r.Title,
		Desc:     r.Desc,
		Priority: r.Priority,
		Due:      r.Due,
		Tags:     r.Tags,
		Done:     r.Done,
	}
}

type moveTaskRequest struct {
	ColumnID string `json:"columnId"`
	// Index is the target position inside the column. Absent means append.
	Index *int `json:"index"`
}

type columnRequest struct {
	Name string `json:"name"`
}

type reorderRequest struct {
	Groups [][]string `json:"groups"`
}

type reorderResponse struct {
	Changed bool `json:"changed"`
}

type idResponse struct {
	ID string `json:"id"`
}

type layoutResponse struct {
	Columns []domain.LayoutColumn `json:"columns"`
}

package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// SnapshotStorage persists whole-board snapshots keyed by project id.
type SnapshotStorage interface {
	// LoadSnapshot returns the stored snapshot document, or ErrSnapshotNotFound
	// when the project has never been saved.
	LoadSnapshot(ctx context.Context, projectID string) ([]byte, error)
	// SaveSnapshot overwrites the stored snapshot document for the project.
	SaveSnapshot(ctx context.Context, projectID string, data []byte) error
}

// Session owns the live board of one project. Every mutation is a
// read-modify-write of the whole snapshot: load, clone, change, re-validate,
// save. Concurrent sessions over the same project are not arbitrated, the
// last successful save wins.
type Session struct {
	projectID string
	snapshots SnapshotStorage

	mu     sync.Mutex
	board  *Board
	layout *Layout
}

// NewSession creates the board context for one project. Boards are loaded
// lazily on first use.
func NewSession(projectID string, snapshots SnapshotStorage) *Session {
	return &Session{projectID: projectID, snapshots: snapshots}
}

// ProjectID returns the key the session's board is stored under.
func (s *Session) ProjectID() string { return s.projectID }

// Load returns a copy of the current board. First access to a project that
// has never been saved seeds and persists the default board.
func (s *Session) Load(ctx context.Context) (*Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	return b.Clone(), nil
}

// current returns the cached board, fetching or seeding it when absent.
// Callers must hold s.mu.
func (s *Session) current(ctx context.Context) (*Board, error) {
	if s.board != nil {
		return s.board, nil
	}
	data, err := s.snapshots.LoadSnapshot(ctx, s.projectID)
	if err == nil {
		b, derr := DecodeBoard(data)
		if derr != nil {
			return nil, derr
		}
		s.board = b
		return b, nil
	}
	if !errors.Is(err, ErrSnapshotNotFound) {
		return nil, fmt.Errorf("load board %q: %w", s.projectID, err)
	}
	b := DefaultBoard()
	if err := s.save(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// save persists the board and swaps the cached copy on success.
// Callers must hold s.mu.
func (s *Session) save(ctx context.Context, b *Board) error {
	data, err := EncodeBoard(b)
	if err != nil {
		return err
	}
	if err := s.snapshots.SaveSnapshot(ctx, s.projectID, data); err != nil {
		return fmt.Errorf("save board %q: %w", s.projectID, err)
	}
	s.board = b
	return nil
}

// commit re-validates the mutated board and persists it.
// Callers must hold s.mu.
func (s *Session) commit(ctx context.Context, b *Board) error {
	checked, err := NewBoard(b.Columns, b.Tasks)
	if err != nil {
		return err
	}
	return s.save(ctx, checked)
}

// AddTask normalizes the draft, assigns a fresh id and appends the task to
// the end of the named column. It returns the new task id.
func (s *Session) AddTask(ctx context.Context, columnID string, draft Task) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.current(ctx)
	if err != nil {
		return "", err
	}
	task, err := draft.Normalize()
	if err != nil {
		return "", err
	}
	b := cur.Clone()
	col := b.column(columnID)
	if col == nil {
		return "", &NotFoundError{Kind: "column", ID: columnID}
	}
	id := newID("t")
	for {
		if _, taken := b.Tasks[id]; !taken {
			break
		}
		id = newID("t")
	}
	b.Tasks[id] = task
	col.TaskIDs = append(col.TaskIDs, id)
	if err := s.commit(ctx, b); err != nil {
		return "", err
	}
	return id, nil
}

// EditTask applies a partial update to an existing task and returns the
// updated copy. The task keeps its column and position.
func (s *Session) EditTask(ctx context.Context, taskID string, patch TaskPatch) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.current(ctx)
	if err != nil {
		return Task{}, err
	}
	t, ok := cur.Tasks[taskID]
	if !ok {
		return Task{}, &NotFoundError{Kind: "task", ID: taskID}
	}
	merged, err := patch.Apply(t.clone())
	if err != nil {
		return Task{}, err
	}
	b := cur.Clone()
	b.Tasks[taskID] = merged
	if err := s.commit(ctx, b); err != nil {
		return Task{}, err
	}
	return merged.clone(), nil
}

// DeleteTask removes a task and strips its id from every column. Deleting an
// unknown id is a no-op; the returned flag reports whether anything changed.
func (s *Session) DeleteTask(ctx context.Context, taskID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.current(ctx)
	if err != nil {
		return false, err
	}
	if _, ok := cur.Tasks[taskID]; !ok {
		return false, nil
	}
	b := cur.Clone()
	delete(b.Tasks, taskID)
	for i := range b.Columns {
		b.Columns[i].TaskIDs = removeID(b.Columns[i].TaskIDs, taskID)
	}
	if err := s.commit(ctx, b); err != nil {
		return false, err
	}
	return true, nil
}

// AddColumn appends an empty column with a generated id and returns that id.
// The name must be non-empty after trimming.
func (s *Session) AddColumn(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", newValidationError("column name must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.current(ctx)
	if err != nil {
		return "", err
	}
	b := cur.Clone()
	id := newID("c")
	for {
		if b.column(id) == nil {
			break
		}
		id = newID("c")
	}
	b.Columns = append(b.Columns, Column{ID: id, Name: name, TaskIDs: []string{}})
	if err := s.commit(ctx, b); err != nil {
		return "", err
	}
	return id, nil
}

// RenameColumn replaces a column's display name. The column id and task order
// are untouched.
func (s *Session) RenameColumn(ctx context.Context, columnID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return newValidationError("column name must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.current(ctx)
	if err != nil {
		return err
	}
	b := cur.Clone()
	col := b.column(columnID)
	if col == nil {
		return &NotFoundError{Kind: "column", ID: columnID}
	}
	col.Name = name
	return s.commit(ctx, b)
}

// DeleteColumn removes a column. Deleting a populated column requires a
// different destination column, which receives the tasks at its end in their
// existing order.
func (s *Session) DeleteColumn(ctx context.Context, columnID, moveTasksTo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.current(ctx)
	if err != nil {
		return err
	}
	b := cur.Clone()
	idx := -1
	for i := range b.Columns {
		if b.Columns[i].ID == columnID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &NotFoundError{Kind: "column", ID: columnID}
	}
	src := b.Columns[idx]
	if len(src.TaskIDs) > 0 && moveTasksTo == "" {
		return ErrColumnNotEmpty
	}
	if moveTasksTo != "" {
		if moveTasksTo == columnID {
			return newValidationError("destination column must differ from the deleted column")
		}
		dst := b.column(moveTasksTo)
		if dst == nil {
			return &NotFoundError{Kind: "column", ID: moveTasksTo}
		}
		dst.TaskIDs = append(dst.TaskIDs, src.TaskIDs...)
	}
	b.Columns = append(b.Columns[:idx], b.Columns[idx+1:]...)
	return s.commit(ctx, b)
}

// MoveTask removes a task from its current lane and inserts it into the
// target lane at the given position. A negative index appends at the end and
// an index past the lane clamps to the end.
func (s *Session) MoveTask(ctx context.Context, taskID, columnID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.current(ctx)
	if err != nil {
		return err
	}
	if _, ok := cur.Tasks[taskID]; !ok {
		return &NotFoundError{Kind: "task", ID: taskID}
	}
	b := cur.Clone()
	dst := b.column(columnID)
	if dst == nil {
		return &NotFoundError{Kind: "column", ID: columnID}
	}
	for i := range b.Columns {
		b.Columns[i].TaskIDs = removeID(b.Columns[i].TaskIDs, taskID)
	}
	ids := dst.TaskIDs
	if index < 0 || index > len(ids) {
		index = len(ids)
	}
	ids = append(ids, "")
	copy(ids[index+1:], ids[index:])
	ids[index] = taskID
	dst.TaskIDs = ids
	return s.commit(ctx, b)
}

// Layout renders the reorder view for this session and retains it as the
// active layout that ApplyLayout reconciles against. It must be re-derived
// from the live board before every render.
func (s *Session) Layout(ctx context.Context, f Filter) (*Layout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	l := BuildLayout(b, f)
	s.layout = l
	return l, nil
}

// ApplyLayout reconciles the widget's returned groups with the board. The
// groups must redistribute exactly the tokens the active layout handed out
// over the board's current columns; any unknown, duplicated or lost item
// aborts the whole application. The board is saved once when at least one
// column order changed, and the returned flag reports whether it was.
func (s *Session) ApplyLayout(ctx context.Context, groups [][]string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.layout == nil {
		return false, ErrNoActiveLayout
	}
	cur, err := s.current(ctx)
	if err != nil {
		return false, err
	}
	decoded, err := s.layout.decode(groups)
	if err != nil {
		return false, err
	}
	for i := len(cur.Columns); i < len(decoded); i++ {
		if len(decoded[i]) > 0 {
			return false, newConflictError("reorder payload addresses %d columns, board has %d", len(decoded), len(cur.Columns))
		}
	}
	// The widget may hold a render older than the live board. Comparing id
	// multisets catches that as well as any loss the token check missed.
	if err := matchIDSets(decoded, cur); err != nil {
		return false, err
	}

	changed := false
	b := cur.Clone()
	for i := range b.Columns {
		if i >= len(decoded) {
			break
		}
		if !equalIDs(b.Columns[i].TaskIDs, decoded[i]) {
			b.Columns[i].TaskIDs = append([]string{}, decoded[i]...)
			changed = true
		}
	}
	if !changed {
		return false, nil
	}
	if err := s.commit(ctx, b); err != nil {
		return false, err
	}
	return true, nil
}

// Import replaces the whole board with the given snapshot document.
func (s *Session) Import(ctx context.Context, data []byte) error {
	b, err := DecodeBoard(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, b)
}

// Export returns the canonical snapshot document of the current board.
func (s *Session) Export(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	return EncodeBoard(b)
}

// matchIDSets verifies the decoded groups reference exactly the ids the
// board's columns reference, counting repeats.
func matchIDSets(decoded [][]string, b *Board) error {
	want := make(map[string]int)
	for _, col := range b.Columns {
		for _, id := range col.TaskIDs {
			want[id]++
		}
	}
	for _, ids := range decoded {
		for _, id := range ids {
			if want[id] == 0 {
				return newConflictError("reorder payload references task %q not on the board", id)
			}
			want[id]--
		}
	}
	for id, n := range want {
		if n > 0 {
			return newConflictError("reorder payload lost task %q", id)
		}
	}
	return nil
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// newID returns a short prefixed identifier such as "t-1a2b3c4d".
func newID(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

package domain

// BoardEventOp names the committed mutation a BoardEvent describes.
type BoardEventOp string

const (
	EventTaskAdded      BoardEventOp = "task_added"
	EventTaskEdited     BoardEventOp = "task_edited"
	EventTaskDeleted    BoardEventOp = "task_deleted"
	EventTaskMoved      BoardEventOp = "task_moved"
	EventColumnAdded    BoardEventOp = "column_added"
	EventColumnRenamed  BoardEventOp = "column_renamed"
	EventColumnDeleted  BoardEventOp = "column_deleted"
	EventBoardReordered BoardEventOp = "board_reordered"
	EventBoardImported  BoardEventOp = "board_imported"
)

// BoardEvent describes one committed board mutation. Events are advisory:
// they fan out to stream subscribers and the change queue after the save
// succeeded, and they never fail the request that produced them.
type BoardEvent struct {
	Project   string       `json:"project"`
	Op        BoardEventOp `json:"op"`
	TaskID    string       `json:"taskId,omitempty"`
	ColumnID  string       `json:"columnId,omitempty"`
	Timestamp int64        `json:"timestamp"`
}

package domain

import "github.com/bytedance/sonic"

// DecodeBoard parses a snapshot document, validates it and repairs orphaned
// tasks. Absent fields are coerced to their defaults, so hand-edited exports
// with missing tags, due dates or done flags still load.
func DecodeBoard(data []byte) (*Board, error) {
	var raw struct {
		Columns []Column        `json:"columns"`
		Tasks   map[string]Task `json:"tasks"`
	}
	if err := sonic.ConfigStd.Unmarshal(data, &raw); err != nil {
		return nil, newValidationError("malformed board document: %v", err)
	}
	return NewBoard(raw.Columns, raw.Tasks)
}

// EncodeBoard serializes the board into its canonical snapshot document:
// sorted task keys, empty string for an unset due date, never-null lists.
func EncodeBoard(b *Board) ([]byte, error) {
	return sonic.ConfigStd.Marshal(b)
}

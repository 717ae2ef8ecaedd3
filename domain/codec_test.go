package domain

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/bytedance/sonic"
)

func TestDecodeBoardCoercesMissingFields(t *testing.T) {
	doc := []byte(`{
		"columns": [{"id": "todo", "name": "To do", "task_ids": ["t1"]}],
		"tasks": {"t1": {"title": "Water plants"}}
	}`)

	b, err := DecodeBoard(doc)
	if err != nil {
		t.Fatalf("DecodeBoard returned error: %v", err)
	}
	got := b.Tasks["t1"]
	if got.Priority != PriorityMedium {
		t.Errorf("priority = %q, want %q", got.Priority, PriorityMedium)
	}
	if got.Tags == nil || len(got.Tags) != 0 {
		t.Errorf("tags = %#v, want empty slice", got.Tags)
	}
	if !got.Due.IsZero() {
		t.Errorf("due = %q, want unset", got.Due)
	}
	if got.Done {
		t.Error("done defaulted to true")
	}
}

func TestDecodeBoardRejectsMalformedDocument(t *testing.T) {
	_, err := DecodeBoard([]byte(`{"columns": [`))
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("DecodeBoard error = %v, want ValidationError", err)
	}
}

func TestDecodeBoardRejectsInvalidDueDate(t *testing.T) {
	doc := []byte(`{"columns": [], "tasks": {"t1": {"title": "x", "due": "someday"}}}`)
	_, err := DecodeBoard(doc)
	if err == nil {
		t.Fatal("DecodeBoard succeeded, want error")
	}
}

func TestEncodeBoardCanonicalShape(t *testing.T) {
	b, err := NewBoard(
		[]Column{{ID: "todo", Name: "To do", TaskIDs: []string{"t1", "t2"}}},
		map[string]Task{
			"t1": {Title: "Dated", Due: DateOf(2026, time.September, 1), Tags: []string{"home"}},
			"t2": {Title: "Undated"},
		},
	)
	if err != nil {
		t.Fatalf("NewBoard returned error: %v", err)
	}
	data, err := EncodeBoard(b)
	if err != nil {
		t.Fatalf("EncodeBoard returned error: %v", err)
	}

	var doc struct {
		Columns []struct {
			ID      string   `json:"id"`
			Name    string   `json:"name"`
			TaskIDs []string `json:"task_ids"`
		} `json:"columns"`
		Tasks map[string]map[string]any `json:"tasks"`
	}
	if err := sonic.ConfigStd.Unmarshal(data, &doc); err != nil {
		t.Fatalf("snapshot is not valid JSON: %v", err)
	}
	if len(doc.Columns) != 1 || doc.Columns[0].ID != "todo" {
		t.Fatalf("columns = %+v", doc.Columns)
	}
	if got := doc.Tasks["t1"]["due"]; got != "2026-09-01" {
		t.Errorf("t1 due = %v, want 2026-09-01", got)
	}
	if got := doc.Tasks["t2"]["due"]; got != "" {
		t.Errorf("t2 due = %v, want empty string", got)
	}
	if _, ok := doc.Tasks["t2"]["tags"].([]any); !ok {
		t.Errorf("t2 tags = %v, want a list", doc.Tasks["t2"]["tags"])
	}
}

func TestBoardRoundTrip(t *testing.T) {
	b, err := NewBoard(
		[]Column{
			{ID: "todo", Name: "To do", TaskIDs: []string{"t2", "t1"}},
			{ID: "done", Name: "Done", TaskIDs: []string{}},
		},
		map[string]Task{
			"t1": {Title: "One", Priority: PriorityHigh, Tags: []string{"a", "b"}, Done: true},
			"t2": {Title: "Two", Due: DateOf(2027, time.January, 15)},
		},
	)
	if err != nil {
		t.Fatalf("NewBoard returned error: %v", err)
	}
	data, err := EncodeBoard(b)
	if err != nil {
		t.Fatalf("EncodeBoard returned error: %v", err)
	}
	got, err := DecodeBoard(data)
	if err != nil {
		t.Fatalf("DecodeBoard returned error: %v", err)
	}
	if !reflect.DeepEqual(got, b) {
		t.Errorf("round trip changed the board:\n got %+v\nwant %+v", got, b)
	}
}

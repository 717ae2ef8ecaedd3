package domain

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestBuildLayoutLabels(t *testing.T) {
	b, err := NewBoard(
		[]Column{{ID: "todo", Name: "To do", TaskIDs: []string{"t1", "t2", "t3"}}},
		map[string]Task{
			"t1": {Title: "Pay rent", Priority: PriorityHigh, Due: DateOf(2026, time.September, 1), Tags: []string{"bills", "home"}, Done: true},
			"t2": {Title: "Write docs"},
			"t3": {Title: "Slow task", Priority: PriorityLow},
		},
	)
	if err != nil {
		t.Fatalf("NewBoard returned error: %v", err)
	}

	l := BuildLayout(b, Filter{})
	if len(l.Columns) != 1 {
		t.Fatalf("layout columns = %d, want 1", len(l.Columns))
	}
	if l.Columns[0].ColumnID != "todo" || l.Columns[0].Header != "To do" {
		t.Errorf("layout column = %+v", l.Columns[0])
	}
	want := []string{
		"🟥 Pay rent · ⏰ 2026-09-01 · #bills, #home ✅",
		"🟧 Write docs",
		"🟩 Slow task",
	}
	if !reflect.DeepEqual(l.Columns[0].Items, want) {
		t.Errorf("items = %q, want %q", l.Columns[0].Items, want)
	}
}

func TestBuildLayoutDisambiguatesDuplicateLabels(t *testing.T) {
	b, err := NewBoard(
		[]Column{{ID: "todo", Name: "To do", TaskIDs: []string{"t1", "t2"}}},
		map[string]Task{
			"t1": {Title: "Same"},
			"t2": {Title: "Same"},
		},
	)
	if err != nil {
		t.Fatalf("NewBoard returned error: %v", err)
	}

	l := BuildLayout(b, Filter{})
	items := l.Columns[0].Items
	if items[0] == items[1] {
		t.Fatalf("duplicate labels were not disambiguated: %q", items)
	}
	if items[1] != items[0]+tokenPad {
		t.Errorf("second token = %q, want first token plus pad", items[1])
	}
}

func TestBuildLayoutObscuresFilteredTasks(t *testing.T) {
	b, err := NewBoard(
		[]Column{{ID: "todo", Name: "To do", TaskIDs: []string{"t1", "t2", "t3"}}},
		map[string]Task{
			"t1": {Title: "One"},
			"t2": {Title: "Two"},
			"t3": {Title: "Three"},
		},
	)
	if err != nil {
		t.Fatalf("NewBoard returned error: %v", err)
	}

	l := BuildLayout(b, Filter{Title: "one"})
	items := l.Columns[0].Items
	if len(items) != 3 {
		t.Fatalf("items = %q, filtering must not shrink the payload", items)
	}
	if items[0] != "🟧 One" {
		t.Errorf("matching task label = %q", items[0])
	}
	if items[1] != obscuredLabel || items[2] != obscuredLabel+tokenPad {
		t.Errorf("hidden labels = %q, want obscured placeholders", items[1:])
	}
}

func TestSessionReorderRoundTrip(t *testing.T) {
	store := newFakeSnapshotStore()
	s := NewSession("p1", store)
	ctx := context.Background()
	importDoc(t, s, threeTaskDoc)

	l, err := s.Layout(ctx, Filter{})
	if err != nil {
		t.Fatalf("Layout returned error: %v", err)
	}
	items := l.Columns[0].Items

	changed, err := s.ApplyLayout(ctx, [][]string{
		{items[2], items[0], items[1]},
		{},
	})
	if err != nil {
		t.Fatalf("ApplyLayout returned error: %v", err)
	}
	if !changed {
		t.Fatal("ApplyLayout reported no change for a reordered payload")
	}
	b, _ := s.Load(ctx)
	if want := []string{"t3", "t1", "t2"}; !reflect.DeepEqual(b.Columns[0].TaskIDs, want) {
		t.Fatalf("todo after reorder = %v, want %v", b.Columns[0].TaskIDs, want)
	}

	t.Run("same payload again is a no-op", func(t *testing.T) {
		saves := store.saveCount()
		changed, err := s.ApplyLayout(ctx, [][]string{
			{items[2], items[0], items[1]},
			{},
		})
		if err != nil {
			t.Fatalf("ApplyLayout returned error: %v", err)
		}
		if changed {
			t.Error("ApplyLayout reported a change for an already applied payload")
		}
		if store.saveCount() != saves {
			t.Error("no-op reorder still saved the board")
		}
	})
}

func TestSessionApplyLayoutEchoIsNoOp(t *testing.T) {
	store := newFakeSnapshotStore()
	s := NewSession("p1", store)
	ctx := context.Background()
	importDoc(t, s, threeTaskDoc)

	l, err := s.Layout(ctx, Filter{})
	if err != nil {
		t.Fatalf("Layout returned error: %v", err)
	}
	saves := store.saveCount()

	groups := make([][]string, len(l.Columns))
	for i, col := range l.Columns {
		groups[i] = append([]string{}, col.Items...)
	}
	changed, err := s.ApplyLayout(ctx, groups)
	if err != nil {
		t.Fatalf("ApplyLayout returned error: %v", err)
	}
	if changed {
		t.Error("echoing the rendered layout back reported a change")
	}
	if store.saveCount() != saves {
		t.Error("echo reorder saved the board")
	}
}

func TestSessionReorderMovesAcrossColumns(t *testing.T) {
	store := newFakeSnapshotStore()
	s := NewSession("p1", store)
	ctx := context.Background()
	importDoc(t, s, threeTaskDoc)

	l, err := s.Layout(ctx, Filter{})
	if err != nil {
		t.Fatalf("Layout returned error: %v", err)
	}
	items := l.Columns[0].Items

	changed, err := s.ApplyLayout(ctx, [][]string{
		{items[0], items[2]},
		{items[1]},
	})
	if err != nil {
		t.Fatalf("ApplyLayout returned error: %v", err)
	}
	if !changed {
		t.Fatal("ApplyLayout reported no change for a cross-column move")
	}
	b, _ := s.Load(ctx)
	if want := []string{"t1", "t3"}; !reflect.DeepEqual(b.Columns[0].TaskIDs, want) {
		t.Errorf("todo = %v, want %v", b.Columns[0].TaskIDs, want)
	}
	if want := []string{"t2"}; !reflect.DeepEqual(b.Columns[1].TaskIDs, want) {
		t.Errorf("done = %v, want %v", b.Columns[1].TaskIDs, want)
	}
}

func TestSessionApplyLayoutTrailingEmptyColumnsMayBeOmitted(t *testing.T) {
	store := newFakeSnapshotStore()
	s := NewSession("p1", store)
	ctx := context.Background()
	importDoc(t, s, threeTaskDoc)

	l, err := s.Layout(ctx, Filter{})
	if err != nil {
		t.Fatalf("Layout returned error: %v", err)
	}
	items := l.Columns[0].Items

	changed, err := s.ApplyLayout(ctx, [][]string{{items[1], items[0], items[2]}})
	if err != nil {
		t.Fatalf("ApplyLayout returned error: %v", err)
	}
	if !changed {
		t.Fatal("ApplyLayout reported no change")
	}
	b, _ := s.Load(ctx)
	if want := []string{"t2", "t1", "t3"}; !reflect.DeepEqual(b.Columns[0].TaskIDs, want) {
		t.Errorf("todo = %v, want %v", b.Columns[0].TaskIDs, want)
	}
}

func TestSessionApplyLayoutConflicts(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*Session, *fakeSnapshotStore, []string) {
		t.Helper()
		store := newFakeSnapshotStore()
		s := NewSession("p1", store)
		importDoc(t, s, threeTaskDoc)
		l, err := s.Layout(ctx, Filter{})
		if err != nil {
			t.Fatalf("Layout returned error: %v", err)
		}
		return s, store, l.Columns[0].Items
	}

	assertConflict := func(t *testing.T, s *Session, store *fakeSnapshotStore, groups [][]string) {
		t.Helper()
		saves := store.saveCount()
		changed, err := s.ApplyLayout(ctx, groups)
		var ce *ConflictError
		if !errors.As(err, &ce) {
			t.Fatalf("ApplyLayout error = %v, want ConflictError", err)
		}
		if changed {
			t.Error("conflicting payload reported a change")
		}
		if store.saveCount() != saves {
			t.Error("conflicting payload saved the board")
		}
	}

	t.Run("unknown item", func(t *testing.T) {
		s, store, items := setup(t)
		assertConflict(t, s, store, [][]string{{"bogus", items[0], items[1], items[2]}, {}})
	})

	t.Run("duplicated item", func(t *testing.T) {
		s, store, items := setup(t)
		assertConflict(t, s, store, [][]string{{items[0], items[0], items[1], items[2]}, {}})
	})

	t.Run("dropped item", func(t *testing.T) {
		s, store, items := setup(t)
		assertConflict(t, s, store, [][]string{{items[0], items[1]}, {}})
	})

	t.Run("surplus non-empty group", func(t *testing.T) {
		s, store, items := setup(t)
		assertConflict(t, s, store, [][]string{{items[0], items[1]}, {}, {items[2]}})
	})

	t.Run("layout is stale after a delete", func(t *testing.T) {
		s, store, items := setup(t)
		if _, err := s.DeleteTask(ctx, "t2"); err != nil {
			t.Fatalf("DeleteTask returned error: %v", err)
		}
		assertConflict(t, s, store, [][]string{{items[0], items[1], items[2]}, {}})
	})

	t.Run("layout is stale after an add", func(t *testing.T) {
		s, store, items := setup(t)
		if _, err := s.AddTask(ctx, "todo", Task{Title: "new arrival"}); err != nil {
			t.Fatalf("AddTask returned error: %v", err)
		}
		assertConflict(t, s, store, [][]string{{items[0], items[1], items[2]}, {}})
	})
}

func TestSessionApplyLayoutWithoutRender(t *testing.T) {
	s := NewSession("p1", newFakeSnapshotStore())
	_, err := s.ApplyLayout(context.Background(), [][]string{})
	if !errors.Is(err, ErrNoActiveLayout) {
		t.Fatalf("ApplyLayout error = %v, want ErrNoActiveLayout", err)
	}
}

func TestFilteredLayoutStillCarriesFullBoard(t *testing.T) {
	store := newFakeSnapshotStore()
	s := NewSession("p1", store)
	ctx := context.Background()
	importDoc(t, s, threeTaskDoc)

	l, err := s.Layout(ctx, Filter{Title: "one"})
	if err != nil {
		t.Fatalf("Layout returned error: %v", err)
	}
	items := l.Columns[0].Items
	if len(items) != 3 {
		t.Fatalf("filtered layout items = %q, want all three tasks", items)
	}

	changed, err := s.ApplyLayout(ctx, [][]string{
		{items[1], items[0], items[2]},
		{},
	})
	if err != nil {
		t.Fatalf("ApplyLayout returned error: %v", err)
	}
	if !changed {
		t.Fatal("reordering hidden tasks reported no change")
	}
	b, _ := s.Load(ctx)
	if want := []string{"t2", "t1", "t3"}; !reflect.DeepEqual(b.Columns[0].TaskIDs, want) {
		t.Errorf("todo = %v, want %v (hidden tasks moved too)", b.Columns[0].TaskIDs, want)
	}
}

package domain

import "strings"

// tokenPad disambiguates identical display labels within one layout so that
// every token is a unique map key without changing what the widget shows.
const tokenPad = "​"

// obscuredLabel stands in for tasks hidden by the active filter. They keep
// their position in the lane so a reorder round trip stays loss-free.
const obscuredLabel = "(hidden)"

// LayoutColumn is one lane as handed to the drag-and-drop widget: a header
// plus display tokens in lane order.
type LayoutColumn struct {
	ColumnID string   `json:"columnId"`
	Header   string   `json:"header"`
	Items    []string `json:"items"`
}

// Layout is a rendered view of the board for the reorder widget. The mapping
// from display token back to task id is kept here as a side channel, so task
// ids never travel inside the labels themselves.
type Layout struct {
	Columns []LayoutColumn `json:"columns"`

	tokens map[string]string
}

// BuildLayout derives the widget view from a board. Tasks hidden by the
// filter are rendered under an obscured label but stay in their lane, so the
// widget always works with the full board.
func BuildLayout(b *Board, f Filter) *Layout {
	l := &Layout{
		Columns: make([]LayoutColumn, 0, len(b.Columns)),
		tokens:  make(map[string]string),
	}
	for _, col := range b.Columns {
		lc := LayoutColumn{
			ColumnID: col.ID,
			Header:   col.Name,
			Items:    make([]string, 0, len(col.TaskIDs)),
		}
		for _, tid := range col.TaskIDs {
			t, ok := b.Tasks[tid]
			if !ok {
				continue
			}
			label := taskLabel(t)
			if !f.Matches(t) {
				label = obscuredLabel
			}
			token := label
			for {
				if _, taken := l.tokens[token]; !taken {
					break
				}
				token += tokenPad
			}
			l.tokens[token] = tid
			lc.Items = append(lc.Items, token)
		}
		l.Columns = append(l.Columns, lc)
	}
	return l
}

// decode maps returned widget tokens back to task ids, group by group. Tokens
// the layout never handed out, duplicated tokens and dropped tokens are all
// conflicts.
func (l *Layout) decode(groups [][]string) ([][]string, error) {
	seen := make(map[string]struct{}, len(l.tokens))
	decoded := make([][]string, len(groups))
	for i, items := range groups {
		ids := make([]string, 0, len(items))
		for _, token := range items {
			tid, ok := l.tokens[token]
			if !ok {
				return nil, newConflictError("reorder payload contains unknown item %q", token)
			}
			if _, dup := seen[token]; dup {
				return nil, newConflictError("reorder payload contains item %q twice", token)
			}
			seen[token] = struct{}{}
			ids = append(ids, tid)
		}
		decoded[i] = ids
	}
	if missing := len(l.tokens) - len(seen); missing > 0 {
		return nil, newConflictError("reorder payload dropped %d item(s)", missing)
	}
	return decoded, nil
}

// taskLabel renders the display text the widget shows for a task.
func taskLabel(t Task) string {
	var sb strings.Builder
	sb.WriteString(priorityMarker(t.Priority))
	sb.WriteByte(' ')
	sb.WriteString(t.Title)
	if !t.Due.IsZero() {
		sb.WriteString(" · ⏰ ")
		sb.WriteString(t.Due.String())
	}
	if len(t.Tags) > 0 {
		sb.WriteString(" · #")
		sb.WriteString(strings.Join(t.Tags, ", #"))
	}
	if t.Done {
		sb.WriteString(" ✅")
	}
	return sb.String()
}

func priorityMarker(p Priority) string {
	switch p {
	case PriorityHigh:
		return "🟥"
	case PriorityLow:
		return "🟩"
	default:
		return "🟧"
	}
}

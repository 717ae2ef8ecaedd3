package domain

import "time"

const dateLayout = "2006-01-02"

// Date is a calendar day without a time-of-day component. The zero value
// means "no date" and marshals to an empty string.
type Date struct {
	t time.Time
}

// ParseDate converts a calendar date in YYYY-MM-DD form into a Date. Empty
// input yields the zero Date.
func ParseDate(s string) (Date, error) {
	if s == "" {
		return Date{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, newValidationError("invalid due date %q, want YYYY-MM-DD", s)
	}
	return Date{t: t}, nil
}

// DateOf builds a Date from a year, month and day.
func DateOf(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool { return d.t.IsZero() }

// String returns the YYYY-MM-DD form, or the empty string when unset.
func (d Date) String() string {
	if d.t.IsZero() {
		return ""
	}
	return d.t.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*d = Date{}
		return nil
	}
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return newValidationError("invalid due date %s, want a JSON string", s)
	}
	parsed, err := ParseDate(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

package api

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

var lastTimestamp int64

// nextTimestamp returns a strictly increasing nanosecond timestamp even when
// called concurrently or when the wall clock stalls.
func nextTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, now) {
			return now
		}
	}
}

const maxProjectIDLength = 128

// validateProjectID guards the project key before it reaches storage, where it
// doubles as table partition and row key. Azure Table Storage forbids slashes,
// backslashes, number signs, question marks and control characters in keys.
func validateProjectID(id string) error {
	if id == "" {
		return errors.New("project id must not be empty")
	}
	if len(id) > maxProjectIDLength {
		return fmt.Errorf("project id exceeds %d characters", maxProjectIDLength)
	}
	for _, r := range id {
		switch {
		case r < 0x20 || (r >= 0x7f && r <= 0x9f):
			return errors.New("project id contains control characters")
		case r == '/' || r == '\\' || r == '#' || r == '?':
			return fmt.Errorf("project id contains forbidden character %q", r)
		}
	}
	return nil
}

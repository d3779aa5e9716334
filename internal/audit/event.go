package audit

import (
	"strings"
	"time"
)

// Actions
const (
	ActionBlock   = "block"
	ActionUnblock = "unblock"
)

// Results
const (
	ResultAdded   = "added"
	ResultExists  = "exists"
	ResultRemoved = "removed"
	ResultAbsent  = "absent"
	ResultRefused = "refused" // protected domain
	ResultError   = "error"
)

// Event records one block or unblock request.
type Event struct {
	Time      time.Time
	Action    string
	Domain    string
	Result    string
	RequestID string
	ClientIP  string
}

var fieldReplacer = strings.NewReplacer("\t", " ", "\r", " ", "\n", " ")

// Line renders the event as one tab-separated line without the trailing
// newline. Empty fields are written as "-".
func (e *Event) Line() string {
	fields := []string{
		e.Time.UTC().Format(time.RFC3339),
		e.Action,
		e.Domain,
		e.Result,
		e.RequestID,
		e.ClientIP,
	}
	for i, f := range fields {
		f = fieldReplacer.Replace(f)
		if f == "" {
			f = "-"
		}
		fields[i] = f
	}
	return strings.Join(fields, "\t")
}

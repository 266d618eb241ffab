// Package elections is the read-only view of elections and candidates that the
// access core consults for time windows and candidate membership.
package elections

import "time"

// Election is a scheduled ballot limited to a time window.
type Election struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	District  string    `json:"district,omitempty"`
}

// Window returns the election's active window.
func (e Election) Window() Window {
	return Window{Start: e.StartTime, End: e.EndTime}
}

// Candidate belongs to exactly one election.
type Candidate struct {
	ID         int64  `json:"id"`
	ElectionID int64  `json:"election_id"`
	Name       string `json:"name"`
}

// Window is an inclusive time interval.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether start <= t <= end.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Ended reports whether t is past the end of the window.
func (w Window) Ended(t time.Time) bool {
	return t.After(w.End)
}

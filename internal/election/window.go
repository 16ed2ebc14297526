package election

import "time"

// WindowStatus is the clock's answer to "can a ballot be cast now".
type WindowStatus string

const (
	StatusOpen       WindowStatus = "open"
	StatusInactive   WindowStatus = "inactive"
	StatusNotStarted WindowStatus = "not_started"
	StatusEnded      WindowStatus = "ended"
)

// Window is the voting window derived from the settings slot.
// Both bounds are optional and inclusive.
type Window struct {
	Active bool       `json:"is_active"`
	Start  *time.Time `json:"voting_start,omitempty"`
	End    *time.Time `json:"voting_end,omitempty"`
}

// Status evaluates the window at now. An inverted window (start after end)
// cannot be saved through the service, but is reported as inactive if found.
func (w Window) Status(now time.Time) WindowStatus {
	if !w.Active {
		return StatusInactive
	}
	if w.Start != nil && w.End != nil && w.Start.After(*w.End) {
		return StatusInactive
	}
	if w.Start != nil && now.Before(*w.Start) {
		return StatusNotStarted
	}
	if w.End != nil && now.After(*w.End) {
		return StatusEnded
	}
	return StatusOpen
}

func (w Window) Castable(now time.Time) bool { return w.Status(now) == StatusOpen }

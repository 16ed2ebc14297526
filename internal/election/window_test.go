package election

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindow_Status(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	before := t0.Add(-time.Second)

	cases := []struct {
		name string
		w    Window
		now  time.Time
		want WindowStatus
	}{
		{"inactive", Window{Active: false, Start: &t0, End: &t1}, t0.Add(time.Minute), StatusInactive},
		{"before start", Window{Active: true, Start: &t0, End: &t1}, before, StatusNotStarted},
		{"at start", Window{Active: true, Start: &t0, End: &t1}, t0, StatusOpen},
		{"at end", Window{Active: true, Start: &t0, End: &t1}, t1, StatusOpen},
		{"after end", Window{Active: true, Start: &t0, End: &t1}, t0.Add(2 * time.Hour), StatusEnded},
		{"open ended", Window{Active: true, Start: &t0}, t0.Add(1000 * time.Hour), StatusOpen},
		{"no bounds", Window{Active: true}, before, StatusOpen},
		{"inverted", Window{Active: true, Start: &t1, End: &t0}, t0, StatusInactive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.w.Status(tc.now))
			assert.Equal(t, tc.want == StatusOpen, tc.w.Castable(tc.now))
		})
	}
}

func TestSettings_ZeroValueIsInactive(t *testing.T) {
	assert.Equal(t, StatusInactive, Settings{}.Window().Status(time.Now()))
}

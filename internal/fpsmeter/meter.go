// Package fpsmeter averages frame rate over a fixed window and formats it
// for the window title.
package fpsmeter

import (
	"fmt"
	"time"

	"hellotriangle/internal/swapchain"
)

type Meter struct {
	window time.Duration
	now    func() time.Time

	frames    int
	last      time.Time
	fps       float64
	presented uint64
}

// New returns a meter that publishes a new value every window.
func New(window time.Duration) *Meter {
	return newMeter(window, time.Now)
}

func newMeter(window time.Duration, now func() time.Time) *Meter {
	if window <= 0 {
		window = time.Second
	}
	return &Meter{
		window: window,
		now:    now,
		last:   now(),
	}
}

// Tick counts one frame. It reports true when the average was refreshed.
func (m *Meter) Tick() bool {
	m.frames++
	t := m.now()
	elapsed := t.Sub(m.last)
	if elapsed < m.window {
		return false
	}
	m.fps = float64(m.frames) / elapsed.Seconds()
	m.frames = 0
	m.last = t
	return true
}

// Observe ticks once per newly presented frame in st. Dropped frames are
// not counted. It reports true when the average was refreshed.
func (m *Meter) Observe(st swapchain.Stats) bool {
	if st.Presented <= m.presented {
		return false
	}
	m.presented = st.Presented
	return m.Tick()
}

func (m *Meter) FPS() float64 { return m.fps }

// Title renders base with the current rate and swapchain counters.
func (m *Meter) Title(base string, st swapchain.Stats) string {
	return fmt.Sprintf("%s | FPS: %.1f | dropped %d | rebuilds %d", base, m.fps, st.Dropped, st.Rebuilds)
}

package fpsmeter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"hellotriangle/internal/swapchain"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func TestTick(t *testing.T) {
	clk := &fakeClock{t: time.Unix(100, 0)}
	m := newMeter(time.Second, clk.now)

	for i := 0; i < 59; i++ {
		clk.t = clk.t.Add(10 * time.Millisecond)
		assert.False(t, m.Tick())
	}
	assert.Zero(t, m.FPS())

	clk.t = time.Unix(101, 0)
	assert.True(t, m.Tick())
	assert.InDelta(t, 60.0, m.FPS(), 0.001)

	// counter restarts after a refresh
	clk.t = clk.t.Add(2 * time.Second)
	assert.True(t, m.Tick())
	assert.InDelta(t, 0.5, m.FPS(), 0.001)
}

func TestDefaultWindow(t *testing.T) {
	m := New(0)
	assert.Equal(t, time.Second, m.window)
}

func TestTitle(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	m := newMeter(time.Second, clk.now)
	clk.t = clk.t.Add(time.Second / 2)
	m.Tick()
	clk.t = clk.t.Add(time.Second / 2)
	m.Tick()

	got := m.Title("Hello Triangle", swapchain.Stats{Dropped: 3, Rebuilds: 1})
	assert.Equal(t, "Hello Triangle | FPS: 2.0 | dropped 3 | rebuilds 1", got)
}

func TestObserveSkipsDroppedFrames(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	m := newMeter(time.Second, clk.now)

	st := swapchain.Stats{}
	for i := 0; i < 100; i++ {
		st.Frames++
		if i%4 == 3 {
			st.Presented++
		} else {
			st.Dropped++
		}
		clk.t = clk.t.Add(10 * time.Millisecond)
		m.Observe(st)
	}
	// 100 frames over one second, a quarter of them presented
	assert.InDelta(t, 25.0, m.FPS(), 0.001)
	assert.False(t, m.Observe(st))
}

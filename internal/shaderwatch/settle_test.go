package shaderwatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChangedWaitsForQuiet(t *testing.T) {
	clock := time.Unix(50, 0)
	w := &Watcher{
		now:    func() time.Time { return clock },
		settle: 100 * time.Millisecond,
	}
	assert.False(t, w.Changed())

	// a compiler writing in chunks
	w.touch()
	clock = clock.Add(60 * time.Millisecond)
	assert.False(t, w.Changed())
	w.touch()
	clock = clock.Add(60 * time.Millisecond)
	assert.False(t, w.Changed())

	clock = clock.Add(50 * time.Millisecond)
	assert.True(t, w.Changed())
	assert.False(t, w.Changed())
}

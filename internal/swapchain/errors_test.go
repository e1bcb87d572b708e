package swapchain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFatalIsVisibleToStandardErrors(t *testing.T) {
	cause := errors.New("out of host memory")
	err := fatal(cause, "create image view %d", 2)
	assert.True(t, errors.Is(err, ErrDeviceLost))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "create image view 2: out of host memory")
	assert.False(t, IsTransient(err))

	again := fatal(err, "rebuild")
	assert.True(t, errors.Is(again, ErrDeviceLost))
	assert.True(t, errors.Is(again, cause))
}

func TestFatalKeepsSurfaceCategory(t *testing.T) {
	err := fatal(ErrSurfaceIncompatible, "build")
	assert.True(t, errors.Is(err, ErrSurfaceIncompatible))
	assert.False(t, errors.Is(err, ErrDeviceLost))
}

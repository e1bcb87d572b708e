package swapchain

import (
	"github.com/cockroachdb/errors"
)

// ErrSurfaceIncompatible means the surface advertises no usable format or
// present mode. It is not recoverable for the current surface.
var ErrSurfaceIncompatible = errors.New("swapchain: surface incompatible")

// ErrDeviceLost marks driver-level creation failures and lost devices.
// The session cannot continue.
var ErrDeviceLost = errors.New("swapchain: device lost")

// ErrStale is returned by a Device when acquisition or presentation reports
// the swapchain out of date.
var ErrStale = errors.New("swapchain: out of date")

// ErrSuboptimal is returned by a Device when the swapchain still works but
// no longer matches the surface. An acquire reporting it has still
// signalled its semaphore and produced a valid index.
var ErrSuboptimal = errors.New("swapchain: suboptimal")

// ErrAcquireTimeout is returned by a Device when no image became
// available within the timeout.
var ErrAcquireTimeout = errors.New("swapchain: acquire timeout")

// ErrTornDown is returned by any operation after Close.
var ErrTornDown = errors.New("swapchain: torn down")

// ErrNotReady is returned by RenderFrame before a successful Build.
var ErrNotReady = errors.New("swapchain: not built")

// IsTransient reports whether err only delays a frame.
func IsTransient(err error) bool {
	return errors.IsAny(err, ErrStale, ErrSuboptimal, ErrAcquireTimeout)
}

// fatal joins ErrDeviceLost onto err unless it already belongs to a fatal
// category. The sentinel sits in the unwrap chain, so the standard
// errors.Is finds it too.
func fatal(err error, format string, args ...interface{}) error {
	err = errors.Wrapf(err, format, args...)
	if errors.IsAny(err, ErrSurfaceIncompatible, ErrDeviceLost) {
		return err
	}
	return errors.Join(ErrDeviceLost, err)
}

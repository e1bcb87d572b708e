package swapchain

import (
	"log/slog"
	"math"
	"time"
)

// Options configure a Controller. The zero value is completed by Defaults.
type Options struct {
	// Resizable makes the controller honour NotifyResize. A fixed-size
	// window still rebuilds when the device reports the chain stale.
	Resizable bool

	// FramesInFlight is 1 for the serialized baseline, where every frame
	// waits for the present queue to drain. Larger values give each frame
	// its own semaphore pair and fence so the CPU can run ahead.
	FramesInFlight int

	// AcquireTimeout bounds the wait for a free image. Zero means forever.
	AcquireTimeout time.Duration

	// MaxAcquireTimeouts consecutive timeouts trigger a rebuild.
	MaxAcquireTimeouts int

	PreferredFormat       SurfaceFormat
	PreferredPresentModes []PresentMode

	Logger *slog.Logger
}

// Defaults fills unset fields.
func (o *Options) Defaults() {
	if o.FramesInFlight <= 0 {
		o.FramesInFlight = 1
	}
	if o.AcquireTimeout <= 0 {
		o.AcquireTimeout = time.Duration(math.MaxInt64)
	}
	if o.MaxAcquireTimeouts <= 0 {
		o.MaxAcquireTimeouts = 2
	}
	if o.PreferredFormat == (SurfaceFormat{}) {
		o.PreferredFormat = SurfaceFormat{Format: FormatB8G8R8A8Unorm, ColorSpace: ColorSpaceSrgbNonlinear}
	}
	if o.PreferredPresentModes == nil {
		o.PreferredPresentModes = []PresentMode{PresentModeMailbox, PresentModeImmediate}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

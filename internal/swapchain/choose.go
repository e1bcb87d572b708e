package swapchain

// ChooseSurfaceFormat returns preferred if the surface advertises it. A
// surface listing a single undefined format accepts anything, so preferred
// is used too. Otherwise the first advertised format wins.
func ChooseSurfaceFormat(available []SurfaceFormat, preferred SurfaceFormat) (SurfaceFormat, bool) {
	if len(available) == 0 {
		return SurfaceFormat{}, false
	}
	if len(available) == 1 && available[0].Format == FormatUndefined {
		return preferred, true
	}
	for _, f := range available {
		if f == preferred {
			return f, true
		}
	}
	return available[0], true
}

// ChoosePresentMode returns the first mode of preferred that is available.
// FIFO is always supported, so it is the fallback.
func ChoosePresentMode(available []PresentMode, preferred []PresentMode) (PresentMode, bool) {
	if len(available) == 0 {
		return 0, false
	}
	for _, want := range preferred {
		for _, m := range available {
			if m == want {
				return m, true
			}
		}
	}
	return PresentModeFifo, true
}

// ChooseExtent returns the surface's current extent, or the framebuffer size
// clamped into the supported range when the surface leaves it to us.
func ChooseExtent(caps Capabilities, width, height int) Extent {
	if caps.CurrentExtent.Width != UndefinedExtent {
		return caps.CurrentExtent
	}
	return Extent{
		Width:  clamp(toUint32(width), caps.MinExtent.Width, caps.MaxExtent.Width),
		Height: clamp(toUint32(height), caps.MinExtent.Height, caps.MaxExtent.Height),
	}
}

// ChooseImageCount asks for one image more than the minimum so the
// application never waits on the driver, capped by a non-zero maximum.
func ChooseImageCount(caps Capabilities) uint32 {
	n := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && n > caps.MaxImageCount {
		n = caps.MaxImageCount
	}
	if n == 0 {
		n = 1
	}
	return n
}

// chooseTransform keeps identity when supported.
func chooseTransform(caps Capabilities) uint32 {
	const identity = 0x1
	if caps.SupportedTransforms&identity != 0 {
		return identity
	}
	return caps.CurrentTransform
}

// chooseCompositeAlpha picks opaque, pre-multiplied, post-multiplied and
// inherit in that order; one of them is always supported.
func chooseCompositeAlpha(caps Capabilities) uint32 {
	for _, bit := range []uint32{0x1, 0x2, 0x4, 0x8} {
		if caps.SupportedCompositeAlpha&bit != 0 {
			return bit
		}
	}
	return 0x1
}

func toUint32(v int) uint32 {
	if v < 0 {
		return 0
	}
	return uint32(v)
}

func clamp(val, lo, hi uint32) uint32 {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}

package swapchain

import (
	"fmt"
	"math"

	"github.com/cockroachdb/errors"
)

// UndefinedExtent is the width a surface reports in its current extent
// when the application decides the swapchain size.
const UndefinedExtent = math.MaxUint32

type Extent struct {
	Width  uint32
	Height uint32
}

func (e Extent) IsZero() bool { return e.Width == 0 || e.Height == 0 }

func (e Extent) String() string { return fmt.Sprintf("%dx%d", e.Width, e.Height) }

// Format values match VkFormat for the formats the controller cares about.
type Format uint32

const (
	FormatUndefined     Format = 0
	FormatR8G8B8A8Unorm Format = 37
	FormatR8G8B8A8Srgb  Format = 43
	FormatB8G8R8A8Unorm Format = 44
	FormatB8G8R8A8Srgb  Format = 50
)

// ColorSpace values match VkColorSpaceKHR.
type ColorSpace uint32

const ColorSpaceSrgbNonlinear ColorSpace = 0

type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

// PresentMode values match VkPresentModeKHR.
type PresentMode uint32

const (
	PresentModeImmediate   PresentMode = 0
	PresentModeMailbox     PresentMode = 1
	PresentModeFifo        PresentMode = 2
	PresentModeFifoRelaxed PresentMode = 3
)

func (m PresentMode) String() string {
	switch m {
	case PresentModeImmediate:
		return "immediate"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeFifo:
		return "fifo"
	case PresentModeFifoRelaxed:
		return "fifo-relaxed"
	}
	return fmt.Sprintf("PresentMode(%d)", uint32(m))
}

// ParsePresentMode accepts the names produced by PresentMode.String.
func ParsePresentMode(s string) (PresentMode, error) {
	for _, m := range []PresentMode{PresentModeImmediate, PresentModeMailbox, PresentModeFifo, PresentModeFifoRelaxed} {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, errors.Newf("unknown present mode %q", s)
}

// Capabilities mirrors VkSurfaceCapabilitiesKHR. It is queried fresh for
// every build and never cached across a rebuild.
type Capabilities struct {
	MinImageCount           uint32
	MaxImageCount           uint32
	CurrentExtent           Extent
	MinExtent               Extent
	MaxExtent               Extent
	SupportedTransforms     uint32
	CurrentTransform        uint32
	SupportedCompositeAlpha uint32
	SupportedUsage          uint32
}

// Support is what a surface/device pair advertises for swapchain creation.
type Support struct {
	Capabilities Capabilities
	Formats      []SurfaceFormat
	PresentModes []PresentMode
}

// Opaque objects owned by the Device implementation. The controller only
// stores and hands them back.
type (
	Chain         any
	Image         any
	ImageView     any
	Framebuffer   any
	RenderPass    any
	CommandBuffer any
	Semaphore     any
	Fence         any
)

// ChainInfo holds the parameters picked for one swapchain build.
type ChainInfo struct {
	Format         SurfaceFormat
	PresentMode    PresentMode
	Extent         Extent
	ImageCount     uint32
	Transform      uint32
	CompositeAlpha uint32
}

type State int

const (
	Uninitialized State = iota
	Ready
	Rebuilding
	TornDown
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Rebuilding:
		return "rebuilding"
	case TornDown:
		return "torn-down"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Stats counts frame outcomes since the controller was created.
type Stats struct {
	Frames    uint64
	Presented uint64
	Dropped   uint64
	Rebuilds  uint64
	Timeouts  uint64
}

package swapchain

import "time"

// Device is the device layer the controller drives. Implementations wrap
// the raw create/destroy primitives of a graphics API; every method is a
// capability call that either succeeds or fails.
//
// AcquireNextImage and Present report out-of-date, suboptimal and timeout
// conditions with ErrStale, ErrSuboptimal and ErrAcquireTimeout.
type Device interface {
	QuerySupport() (Support, error)

	CreateSwapchain(info ChainInfo) (Chain, error)
	DestroySwapchain(c Chain)
	Images(c Chain) ([]Image, error)

	CreateImageView(img Image, format Format) (ImageView, error)
	DestroyImageView(v ImageView)

	CreateFramebuffer(rp RenderPass, v ImageView, extent Extent) (Framebuffer, error)
	DestroyFramebuffer(fb Framebuffer)

	AllocateCommandBuffers(n int) ([]CommandBuffer, error)
	FreeCommandBuffers(cbs []CommandBuffer)

	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)

	CreateFence(signaled bool) (Fence, error)
	WaitFence(f Fence, timeout time.Duration) error
	ResetFence(f Fence) error
	DestroyFence(f Fence)

	// AcquireNextImage signals imageAvailable once the returned image
	// can be written.
	AcquireNextImage(c Chain, timeout time.Duration, imageAvailable Semaphore) (int, error)

	// Submit queues cb on the graphics queue. The work waits on wait at
	// the color-attachment-output stage, signals signal on completion and
	// signals fence when fence is not nil.
	Submit(cb CommandBuffer, wait, signal Semaphore, fence Fence) error

	// Present queues image index of c on the present queue after wait.
	Present(c Chain, index int, wait Semaphore) error

	// WaitIdle blocks until no submitted work references any resource.
	WaitIdle() error

	// WaitPresentIdle blocks until the present queue drained.
	WaitPresentIdle() error
}

// Window is the windowing side of the surface.
type Window interface {
	FramebufferSize() (width, height int)
}

// Pipeline supplies the render pass framebuffers are created against and
// records the per-image command buffers.
type Pipeline interface {
	// Configure is called on every build with the chosen surface format.
	Configure(format SurfaceFormat) (RenderPass, error)

	// Record fills cb to draw into fb. It is called once per image after
	// every build.
	Record(cb CommandBuffer, fb Framebuffer, extent Extent) error
}

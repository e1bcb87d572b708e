// Package swapchain keeps a presentable image chain bound to a window
// surface and drives the acquire, submit and present cycle on it.
//
// A Controller owns the chain, its image views, framebuffers and command
// buffers, and the semaphores (and fences) used to order a frame. The
// device, its queues and the surface are borrowed through the Device
// interface and never destroyed here.
//
// Everything that depends on the window size is rebuilt together: on a
// resize notification, or when the device reports the chain out of date or
// suboptimal. A rebuild always waits for the device to go idle before any
// object is destroyed, since submitted work may still reference the old
// chain.
package swapchain

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/semaphore"
)

const forever = time.Duration(math.MaxInt64)

// errZeroExtent stops a build while the window has no area.
var errZeroExtent = errors.New("swapchain: zero extent")

type chain struct {
	handle         Chain
	info           ChainInfo
	renderPass     RenderPass
	images         []Image
	views          []ImageView
	framebuffers   []Framebuffer
	commandBuffers []CommandBuffer
}

type frameSync struct {
	imageAvailable Semaphore
	renderFinished Semaphore
	inFlight       Fence
}

// Controller is not safe for concurrent use beyond the guarantee that
// RenderFrame, Rebuild and Close never overlap; NotifyResize may be called
// from any goroutine.
type Controller struct {
	dev  Device
	win  Window
	pl   Pipeline
	opts Options
	log  *slog.Logger

	gate   *semaphore.Weighted
	resize chan Extent

	state          State
	chain          *chain
	sync           []frameSync
	imagesInFlight []Fence
	frame          int
	timeouts       int
	pending        bool
	stats          Stats
}

func New(dev Device, win Window, pl Pipeline, opts Options) *Controller {
	opts.Defaults()
	return &Controller{
		dev:    dev,
		win:    win,
		pl:     pl,
		opts:   opts,
		log:    opts.Logger.With("component", "swapchain"),
		gate:   semaphore.NewWeighted(1),
		resize: make(chan Extent, 1),
	}
}

func (c *Controller) State() State { return c.state }

func (c *Controller) Stats() Stats { return c.stats }

// Extent returns the extent of the current chain, zero if there is none.
func (c *Controller) Extent() Extent {
	if c.chain == nil {
		return Extent{}
	}
	return c.chain.info.Extent
}

func (c *Controller) Format() SurfaceFormat {
	if c.chain == nil {
		return SurfaceFormat{}
	}
	return c.chain.info.Format
}

func (c *Controller) PresentMode() PresentMode {
	if c.chain == nil {
		return 0
	}
	return c.chain.info.PresentMode
}

// ImageCount returns the number of images the driver created, which may
// exceed the requested ChainInfo.ImageCount.
func (c *Controller) ImageCount() int {
	if c.chain == nil {
		return 0
	}
	return len(c.chain.images)
}

// NotifyResize records that the window changed size. Notifications
// coalesce; the rebuild happens on the next RenderFrame. Zero-area sizes
// (minimized windows) are ignored.
func (c *Controller) NotifyResize(width, height int) {
	if !c.opts.Resizable || width <= 0 || height <= 0 {
		return
	}
	select {
	case c.resize <- Extent{Width: uint32(width), Height: uint32(height)}:
	default:
	}
}

// Build creates the chain and every per-image object, and the frame
// synchronization objects. Nothing is retained when it fails.
func (c *Controller) Build(ctx context.Context) error {
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.gate.Release(1)

	switch c.state {
	case TornDown:
		return ErrTornDown
	case Ready, Rebuilding:
		return errors.Newf("swapchain: build while %s", c.state)
	}

	ownSync := c.sync == nil
	if ownSync {
		if err := c.createSync(); err != nil {
			return err
		}
	}
	ch, err := c.buildChain()
	if errors.Is(err, errZeroExtent) {
		c.log.Info("surface has no area, deferring build")
		c.state = Rebuilding
		c.pending = true
		return nil
	}
	if err != nil {
		if ownSync {
			c.destroySync()
		}
		return err
	}
	c.install(ch)
	return nil
}

// Rebuild tears down the chain and everything derived from it and builds
// it again from freshly queried capabilities. It does so even when the
// extent did not change.
func (c *Controller) Rebuild(ctx context.Context) error {
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.gate.Release(1)

	switch c.state {
	case TornDown:
		return ErrTornDown
	case Uninitialized:
		return ErrNotReady
	}
	return c.rebuild()
}

// Close waits for the device to go idle and destroys everything the
// controller owns. The controller cannot be used afterwards.
func (c *Controller) Close(ctx context.Context) error {
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.gate.Release(1)

	if c.state == TornDown {
		return nil
	}
	var err error
	if werr := c.dev.WaitIdle(); werr != nil {
		err = fatal(werr, "wait device idle")
		c.log.Error("device not idle at shutdown", "err", werr)
	}
	if c.chain != nil {
		c.destroyChain(c.chain)
		c.chain = nil
	}
	c.destroySync()
	c.imagesInFlight = nil
	c.state = TornDown
	c.log.Debug("swapchain torn down")
	return err
}

// rebuild expects the gate to be held.
func (c *Controller) rebuild() error {
	if w, h := c.win.FramebufferSize(); w <= 0 || h <= 0 {
		c.deferRebuild()
		return nil
	}

	prev := c.state
	c.state = Rebuilding
	if err := c.dev.WaitIdle(); err != nil {
		c.state = prev
		return fatal(err, "wait device idle")
	}
	var old Extent
	if c.chain != nil {
		old = c.chain.info.Extent
		c.destroyChain(c.chain)
		c.chain = nil
	}

	ch, err := c.buildChain()
	if errors.Is(err, errZeroExtent) {
		c.deferRebuild()
		return nil
	}
	if err != nil {
		c.state = Uninitialized
		return err
	}
	c.install(ch)
	c.stats.Rebuilds++
	c.log.Info("swapchain rebuilt", "from", old.String(), "to", ch.info.Extent.String())
	return nil
}

// deferRebuild leaves the controller waiting for the window to regain an
// area. The current chain, if any, is stale and is not presented from.
func (c *Controller) deferRebuild() {
	if c.state != Rebuilding {
		c.log.Debug("surface has no area, rebuild deferred")
	}
	c.pending = true
	c.state = Rebuilding
}

func (c *Controller) install(ch *chain) {
	c.chain = ch
	c.imagesInFlight = make([]Fence, len(ch.images))
	c.timeouts = 0
	c.pending = false
	c.state = Ready
	c.log.Debug("swapchain ready",
		"extent", ch.info.Extent.String(),
		"format", uint32(ch.info.Format.Format),
		"present_mode", ch.info.PresentMode.String(),
		"images", len(ch.images))
}

func (c *Controller) buildChain() (*chain, error) {
	support, err := c.dev.QuerySupport()
	if err != nil {
		return nil, fatal(err, "query surface support")
	}
	format, ok := ChooseSurfaceFormat(support.Formats, c.opts.PreferredFormat)
	if !ok {
		return nil, errors.Wrap(ErrSurfaceIncompatible, "no surface formats")
	}
	mode, ok := ChoosePresentMode(support.PresentModes, c.opts.PreferredPresentModes)
	if !ok {
		return nil, errors.Wrap(ErrSurfaceIncompatible, "no present modes")
	}
	w, h := c.win.FramebufferSize()
	if w <= 0 || h <= 0 {
		return nil, errZeroExtent
	}
	caps := support.Capabilities
	info := ChainInfo{
		Format:         format,
		PresentMode:    mode,
		Extent:         ChooseExtent(caps, w, h),
		ImageCount:     ChooseImageCount(caps),
		Transform:      chooseTransform(caps),
		CompositeAlpha: chooseCompositeAlpha(caps),
	}
	if info.Extent.IsZero() {
		return nil, errZeroExtent
	}

	ch := &chain{info: info}
	if err := c.populate(ch); err != nil {
		c.destroyChain(ch)
		return nil, err
	}
	return ch, nil
}

func (c *Controller) populate(ch *chain) error {
	rp, err := c.pl.Configure(ch.info.Format)
	if err != nil {
		return fatal(err, "configure pipeline")
	}
	ch.renderPass = rp

	if ch.handle, err = c.dev.CreateSwapchain(ch.info); err != nil {
		return fatal(err, "create swapchain")
	}
	images, err := c.dev.Images(ch.handle)
	if err != nil {
		return fatal(err, "get swapchain images")
	}
	if len(images) == 0 {
		return fatal(errors.New("no images"), "get swapchain images")
	}
	ch.images = images

	ch.views = make([]ImageView, 0, len(images))
	for i, img := range images {
		v, err := c.dev.CreateImageView(img, ch.info.Format.Format)
		if err != nil {
			return fatal(err, "create image view %d", i)
		}
		ch.views = append(ch.views, v)
	}

	ch.framebuffers = make([]Framebuffer, 0, len(images))
	for i, v := range ch.views {
		fb, err := c.dev.CreateFramebuffer(rp, v, ch.info.Extent)
		if err != nil {
			return fatal(err, "create framebuffer %d", i)
		}
		ch.framebuffers = append(ch.framebuffers, fb)
	}

	cbs, err := c.dev.AllocateCommandBuffers(len(images))
	if err != nil {
		return fatal(err, "allocate command buffers")
	}
	ch.commandBuffers = cbs
	for i, cb := range cbs {
		if err := c.pl.Record(cb, ch.framebuffers[i], ch.info.Extent); err != nil {
			return fatal(err, "record command buffer %d", i)
		}
	}
	return nil
}

// destroyChain releases in reverse dependency order. It accepts partially
// built chains.
func (c *Controller) destroyChain(ch *chain) {
	if len(ch.commandBuffers) > 0 {
		c.dev.FreeCommandBuffers(ch.commandBuffers)
		ch.commandBuffers = nil
	}
	for _, fb := range ch.framebuffers {
		c.dev.DestroyFramebuffer(fb)
	}
	ch.framebuffers = nil
	for _, v := range ch.views {
		c.dev.DestroyImageView(v)
	}
	ch.views = nil
	ch.images = nil
	if ch.handle != nil {
		c.dev.DestroySwapchain(ch.handle)
		ch.handle = nil
	}
}

func (c *Controller) createSync() error {
	n := c.opts.FramesInFlight
	c.sync = make([]frameSync, 0, n)
	for i := 0; i < n; i++ {
		var fs frameSync
		err := c.createFrameSync(&fs, n > 1)
		if err != nil {
			c.destroyFrameSync(fs)
			c.destroySync()
			return fatal(err, "create sync objects for frame %d", i)
		}
		c.sync = append(c.sync, fs)
	}
	c.frame = 0
	return nil
}

func (c *Controller) createFrameSync(fs *frameSync, fenced bool) error {
	var err error
	if fs.imageAvailable, err = c.dev.CreateSemaphore(); err != nil {
		return err
	}
	if fs.renderFinished, err = c.dev.CreateSemaphore(); err != nil {
		return err
	}
	if fenced {
		if fs.inFlight, err = c.dev.CreateFence(true); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) destroyFrameSync(fs frameSync) {
	if fs.imageAvailable != nil {
		c.dev.DestroySemaphore(fs.imageAvailable)
	}
	if fs.renderFinished != nil {
		c.dev.DestroySemaphore(fs.renderFinished)
	}
	if fs.inFlight != nil {
		c.dev.DestroyFence(fs.inFlight)
	}
}

func (c *Controller) destroySync() {
	for _, fs := range c.sync {
		c.destroyFrameSync(fs)
	}
	c.sync = nil
}

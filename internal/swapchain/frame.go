package swapchain

import (
	"context"

	"github.com/cockroachdb/errors"
)

// RenderFrame acquires an image, submits its prerecorded command buffer and
// presents it. Out-of-date and suboptimal chains, pending resizes and
// repeated acquire timeouts lead to a rebuild; the frame is then dropped
// and nil is returned. Only fatal conditions are returned as errors.
func (c *Controller) RenderFrame(ctx context.Context) error {
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
	c.stats.Frames++

	c.drainResize()
	if c.pending || c.state == Rebuilding {
		if err := c.rebuild(); err != nil {
			return err
		}
		if c.pending || c.state != Ready {
			c.drop("surface has no area")
			return nil
		}
	}
	return c.draw()
}

func (c *Controller) draw() error {
	fs := c.sync[c.frame]
	if fs.inFlight == nil {
		// Single shared pair: nothing may be in flight when the pair is reused.
		if err := c.dev.WaitPresentIdle(); err != nil {
			return fatal(err, "wait present queue")
		}
	} else if err := c.dev.WaitFence(fs.inFlight, forever); err != nil {
		return fatal(err, "wait frame fence")
	}

	idx, err := c.dev.AcquireNextImage(c.chain.handle, c.opts.AcquireTimeout, fs.imageAvailable)
	suboptimal := false
	switch {
	case err == nil:
	case errors.Is(err, ErrSuboptimal):
		// The semaphore is signalled, so the image has to go through.
		suboptimal = true
	case errors.Is(err, ErrStale):
		c.drop("acquire reported out of date")
		return c.rebuild()
	case errors.Is(err, ErrAcquireTimeout):
		c.stats.Timeouts++
		c.timeouts++
		c.drop("acquire timed out")
		if c.timeouts >= c.opts.MaxAcquireTimeouts {
			return c.rebuild()
		}
		return nil
	default:
		return fatal(err, "acquire next image")
	}
	c.timeouts = 0
	if idx < 0 || idx >= len(c.chain.commandBuffers) {
		return fatal(errors.Newf("index %d of %d", idx, len(c.chain.commandBuffers)), "acquire next image")
	}

	if fs.inFlight != nil {
		if prev := c.imagesInFlight[idx]; prev != nil && prev != fs.inFlight {
			if err := c.dev.WaitFence(prev, forever); err != nil {
				return fatal(err, "wait image %d fence", idx)
			}
		}
		c.imagesInFlight[idx] = fs.inFlight
		if err := c.dev.ResetFence(fs.inFlight); err != nil {
			return fatal(err, "reset frame fence")
		}
	}

	if err := c.dev.Submit(c.chain.commandBuffers[idx], fs.imageAvailable, fs.renderFinished, fs.inFlight); err != nil {
		return fatal(err, "submit image %d", idx)
	}

	err = c.dev.Present(c.chain.handle, idx, fs.renderFinished)
	c.frame = (c.frame + 1) % len(c.sync)
	switch {
	case err == nil:
		c.stats.Presented++
	case errors.Is(err, ErrSuboptimal):
		c.stats.Presented++
		suboptimal = true
	case errors.Is(err, ErrStale):
		c.drop("present reported out of date")
		return c.rebuild()
	default:
		return fatal(err, "present image %d", idx)
	}

	c.drainResize()
	if suboptimal || c.pending {
		return c.rebuild()
	}
	return nil
}

func (c *Controller) drainResize() {
	for {
		select {
		case ext := <-c.resize:
			c.pending = true
			c.log.Debug("resize requested", "extent", ext.String())
		default:
			return
		}
	}
}

func (c *Controller) drop(reason string) {
	c.stats.Dropped++
	c.log.Debug("frame dropped", "reason", reason)
}

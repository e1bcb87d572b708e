package main

import (
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vulkan-go/vulkan"

	"hellotriangle/internal/swapchain"
)

// vkDevice drives a swapchain.Controller with a logical device, its two
// queues, the window surface and a command pool. None of those are owned.
type vkDevice struct {
	physical      vulkan.PhysicalDevice
	device        vulkan.Device
	surface       vulkan.Surface
	graphicsQueue vulkan.Queue
	presentQueue  vulkan.Queue
	queues        queueFamilyIndices
	pool          vulkan.CommandPool
}

var _ swapchain.Device = (*vkDevice)(nil)

// resultError converts a driver result into the controller's taxonomy.
func resultError(res vulkan.Result) error {
	switch res {
	case vulkan.Success:
		return nil
	case vulkan.ErrorOutOfDate:
		return swapchain.ErrStale
	case vulkan.Suboptimal:
		return swapchain.ErrSuboptimal
	case vulkan.Timeout, vulkan.NotReady:
		return swapchain.ErrAcquireTimeout
	case vulkan.ErrorDeviceLost, vulkan.ErrorSurfaceLost:
		return errors.Join(swapchain.ErrDeviceLost, vulkan.Error(res))
	}
	return vulkan.Error(res)
}

func timeoutNanos(d time.Duration) uint64 {
	if d < 0 || d == math.MaxInt64 {
		return vulkan.MaxUint64
	}
	return uint64(d.Nanoseconds())
}

func (d *vkDevice) QuerySupport() (swapchain.Support, error) {
	var out swapchain.Support
	var caps vulkan.SurfaceCapabilities
	if res := vulkan.GetPhysicalDeviceSurfaceCapabilities(d.physical, d.surface, &caps); res != vulkan.Success {
		return out, errors.Wrap(resultError(res), "get surface capabilities")
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	out.Capabilities = swapchain.Capabilities{
		MinImageCount:           caps.MinImageCount,
		MaxImageCount:           caps.MaxImageCount,
		CurrentExtent:           swapchain.Extent{Width: caps.CurrentExtent.Width, Height: caps.CurrentExtent.Height},
		MinExtent:               swapchain.Extent{Width: caps.MinImageExtent.Width, Height: caps.MinImageExtent.Height},
		MaxExtent:               swapchain.Extent{Width: caps.MaxImageExtent.Width, Height: caps.MaxImageExtent.Height},
		SupportedTransforms:     uint32(caps.SupportedTransforms),
		CurrentTransform:        uint32(caps.CurrentTransform),
		SupportedCompositeAlpha: uint32(caps.SupportedCompositeAlpha),
		SupportedUsage:          uint32(caps.SupportedUsageFlags),
	}

	var formatCount uint32
	vulkan.GetPhysicalDeviceSurfaceFormats(d.physical, d.surface, &formatCount, nil)
	if formatCount > 0 {
		formats := make([]vulkan.SurfaceFormat, formatCount)
		vulkan.GetPhysicalDeviceSurfaceFormats(d.physical, d.surface, &formatCount, formats)
		for i := range formats {
			formats[i].Deref()
			out.Formats = append(out.Formats, swapchain.SurfaceFormat{
				Format:     swapchain.Format(formats[i].Format),
				ColorSpace: swapchain.ColorSpace(formats[i].ColorSpace),
			})
		}
	}

	var modeCount uint32
	vulkan.GetPhysicalDeviceSurfacePresentModes(d.physical, d.surface, &modeCount, nil)
	if modeCount > 0 {
		modes := make([]vulkan.PresentMode, modeCount)
		vulkan.GetPhysicalDeviceSurfacePresentModes(d.physical, d.surface, &modeCount, modes)
		for _, m := range modes {
			out.PresentModes = append(out.PresentModes, swapchain.PresentMode(m))
		}
	}
	return out, nil
}

func (d *vkDevice) CreateSwapchain(info swapchain.ChainInfo) (swapchain.Chain, error) {
	createInfo := vulkan.SwapchainCreateInfo{
		SType:            vulkan.StructureTypeSwapchainCreateInfo,
		Surface:          d.surface,
		MinImageCount:    info.ImageCount,
		ImageFormat:      vulkan.Format(info.Format.Format),
		ImageColorSpace:  vulkan.ColorSpace(info.Format.ColorSpace),
		ImageExtent:      vulkan.Extent2D{Width: info.Extent.Width, Height: info.Extent.Height},
		ImageArrayLayers: 1,
		ImageUsage:       vulkan.ImageUsageFlags(vulkan.ImageUsageColorAttachmentBit),
		PreTransform:     vulkan.SurfaceTransformFlagBits(info.Transform),
		CompositeAlpha:   vulkan.CompositeAlphaFlagBits(info.CompositeAlpha),
		PresentMode:      vulkan.PresentMode(info.PresentMode),
		Clipped:          vulkan.True,
		OldSwapchain:     vulkan.Swapchain(vulkan.NullHandle),
	}
	if d.queues.graphicsFamily != d.queues.presentFamily {
		indices := []uint32{d.queues.graphicsFamily, d.queues.presentFamily}
		createInfo.ImageSharingMode = vulkan.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = uint32(len(indices))
		createInfo.PQueueFamilyIndices = indices
	} else {
		createInfo.ImageSharingMode = vulkan.SharingModeExclusive
	}

	var sc vulkan.Swapchain
	if res := vulkan.CreateSwapchain(d.device, &createInfo, nil, &sc); res != vulkan.Success {
		return nil, vulkan.Error(res)
	}
	return sc, nil
}

func (d *vkDevice) DestroySwapchain(c swapchain.Chain) {
	vulkan.DestroySwapchain(d.device, c.(vulkan.Swapchain), nil)
}

func (d *vkDevice) Images(c swapchain.Chain) ([]swapchain.Image, error) {
	sc := c.(vulkan.Swapchain)
	var count uint32
	if res := vulkan.GetSwapchainImages(d.device, sc, &count, nil); res != vulkan.Success {
		return nil, vulkan.Error(res)
	}
	images := make([]vulkan.Image, count)
	if res := vulkan.GetSwapchainImages(d.device, sc, &count, images); res != vulkan.Success {
		return nil, vulkan.Error(res)
	}
	out := make([]swapchain.Image, len(images))
	for i, img := range images {
		out[i] = img
	}
	return out, nil
}

func (d *vkDevice) CreateImageView(img swapchain.Image, format swapchain.Format) (swapchain.ImageView, error) {
	viewInfo := vulkan.ImageViewCreateInfo{
		SType:    vulkan.StructureTypeImageViewCreateInfo,
		Image:    img.(vulkan.Image),
		ViewType: vulkan.ImageViewType2d,
		Format:   vulkan.Format(format),
		Components: vulkan.ComponentMapping{
			R: vulkan.ComponentSwizzleIdentity,
			G: vulkan.ComponentSwizzleIdentity,
			B: vulkan.ComponentSwizzleIdentity,
			A: vulkan.ComponentSwizzleIdentity,
		},
		SubresourceRange: vulkan.ImageSubresourceRange{
			AspectMask: vulkan.ImageAspectFlags(vulkan.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	var view vulkan.ImageView
	if res := vulkan.CreateImageView(d.device, &viewInfo, nil, &view); res != vulkan.Success {
		return nil, vulkan.Error(res)
	}
	return view, nil
}

func (d *vkDevice) DestroyImageView(v swapchain.ImageView) {
	vulkan.DestroyImageView(d.device, v.(vulkan.ImageView), nil)
}

func (d *vkDevice) CreateFramebuffer(rp swapchain.RenderPass, v swapchain.ImageView, extent swapchain.Extent) (swapchain.Framebuffer, error) {
	attachments := []vulkan.ImageView{v.(vulkan.ImageView)}
	createInfo := vulkan.FramebufferCreateInfo{
		SType:           vulkan.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp.(vulkan.RenderPass),
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          1,
	}
	var fb vulkan.Framebuffer
	if res := vulkan.CreateFramebuffer(d.device, &createInfo, nil, &fb); res != vulkan.Success {
		return nil, vulkan.Error(res)
	}
	return fb, nil
}

func (d *vkDevice) DestroyFramebuffer(fb swapchain.Framebuffer) {
	vulkan.DestroyFramebuffer(d.device, fb.(vulkan.Framebuffer), nil)
}

func (d *vkDevice) AllocateCommandBuffers(n int) ([]swapchain.CommandBuffer, error) {
	allocInfo := vulkan.CommandBufferAllocateInfo{
		SType:              vulkan.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.pool,
		Level:              vulkan.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(n),
	}
	cbs := make([]vulkan.CommandBuffer, n)
	if res := vulkan.AllocateCommandBuffers(d.device, &allocInfo, cbs); res != vulkan.Success {
		return nil, vulkan.Error(res)
	}
	out := make([]swapchain.CommandBuffer, n)
	for i, cb := range cbs {
		out[i] = cb
	}
	return out, nil
}

func (d *vkDevice) FreeCommandBuffers(cbs []swapchain.CommandBuffer) {
	raw := make([]vulkan.CommandBuffer, len(cbs))
	for i, cb := range cbs {
		raw[i] = cb.(vulkan.CommandBuffer)
	}
	vulkan.FreeCommandBuffers(d.device, d.pool, uint32(len(raw)), raw)
}

func (d *vkDevice) CreateSemaphore() (swapchain.Semaphore, error) {
	semInfo := vulkan.SemaphoreCreateInfo{
		SType: vulkan.StructureTypeSemaphoreCreateInfo,
	}
	var sem vulkan.Semaphore
	if res := vulkan.CreateSemaphore(d.device, &semInfo, nil, &sem); res != vulkan.Success {
		return nil, vulkan.Error(res)
	}
	return sem, nil
}

func (d *vkDevice) DestroySemaphore(s swapchain.Semaphore) {
	vulkan.DestroySemaphore(d.device, s.(vulkan.Semaphore), nil)
}

func (d *vkDevice) CreateFence(signaled bool) (swapchain.Fence, error) {
	fenceInfo := vulkan.FenceCreateInfo{
		SType: vulkan.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fenceInfo.Flags = vulkan.FenceCreateFlags(vulkan.FenceCreateSignaledBit)
	}
	var fence vulkan.Fence
	if res := vulkan.CreateFence(d.device, &fenceInfo, nil, &fence); res != vulkan.Success {
		return nil, vulkan.Error(res)
	}
	return fence, nil
}

func (d *vkDevice) WaitFence(f swapchain.Fence, timeout time.Duration) error {
	res := vulkan.WaitForFences(d.device, 1, []vulkan.Fence{f.(vulkan.Fence)}, vulkan.True, timeoutNanos(timeout))
	return resultError(res)
}

func (d *vkDevice) ResetFence(f swapchain.Fence) error {
	return resultError(vulkan.ResetFences(d.device, 1, []vulkan.Fence{f.(vulkan.Fence)}))
}

func (d *vkDevice) DestroyFence(f swapchain.Fence) {
	vulkan.DestroyFence(d.device, f.(vulkan.Fence), nil)
}

func (d *vkDevice) AcquireNextImage(c swapchain.Chain, timeout time.Duration, imageAvailable swapchain.Semaphore) (int, error) {
	var idx uint32
	res := vulkan.AcquireNextImage(d.device, c.(vulkan.Swapchain), timeoutNanos(timeout),
		imageAvailable.(vulkan.Semaphore), vulkan.Fence(vulkan.NullHandle), &idx)
	return int(idx), resultError(res)
}

func (d *vkDevice) Submit(cb swapchain.CommandBuffer, wait, signal swapchain.Semaphore, fence swapchain.Fence) error {
	waitStages := []vulkan.PipelineStageFlags{vulkan.PipelineStageFlags(vulkan.PipelineStageColorAttachmentOutputBit)}
	submitInfo := vulkan.SubmitInfo{
		SType:                vulkan.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vulkan.Semaphore{wait.(vulkan.Semaphore)},
		PWaitDstStageMask:    waitStages,
		CommandBufferCount:   1,
		PCommandBuffers:      []vulkan.CommandBuffer{cb.(vulkan.CommandBuffer)},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vulkan.Semaphore{signal.(vulkan.Semaphore)},
	}
	vf := vulkan.Fence(vulkan.NullHandle)
	if fence != nil {
		vf = fence.(vulkan.Fence)
	}
	return resultError(vulkan.QueueSubmit(d.graphicsQueue, 1, []vulkan.SubmitInfo{submitInfo}, vf))
}

func (d *vkDevice) Present(c swapchain.Chain, index int, wait swapchain.Semaphore) error {
	presentInfo := vulkan.PresentInfo{
		SType:              vulkan.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vulkan.Semaphore{wait.(vulkan.Semaphore)},
		SwapchainCount:     1,
		PSwapchains:        []vulkan.Swapchain{c.(vulkan.Swapchain)},
		PImageIndices:      []uint32{uint32(index)},
	}
	return resultError(vulkan.QueuePresent(d.presentQueue, &presentInfo))
}

func (d *vkDevice) WaitIdle() error {
	return resultError(vulkan.DeviceWaitIdle(d.device))
}

func (d *vkDevice) WaitPresentIdle() error {
	return resultError(vulkan.QueueWaitIdle(d.presentQueue))
}

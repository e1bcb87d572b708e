package swapchain

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

type handle struct {
	class string
	id    int
}

func (h *handle) String() string { return fmt.Sprintf("%s#%d", h.class, h.id) }

// mockDevice counts creations and destructions per class and records a
// trace of queue operations.
type mockDevice struct {
	support Support

	created   map[string]int
	destroyed map[string]int
	live      map[*handle]bool
	trace     []string
	nextID    int

	// imagesOverride forces the number of images a chain reports; zero
	// uses the requested count.
	imagesOverride int

	// scripted results, consumed front to back; a missing entry succeeds.
	acquireErrs []error
	presentErrs []error
	failCreate  map[string]error
	waitIdleErr error

	nextImage int
	chains    []ChainInfo
	waitIdles int
	presents  int
}

func newMockDevice(caps Capabilities) *mockDevice {
	return &mockDevice{
		support: Support{
			Capabilities: caps,
			Formats:      []SurfaceFormat{{Format: FormatB8G8R8A8Unorm, ColorSpace: ColorSpaceSrgbNonlinear}},
			PresentModes: []PresentMode{PresentModeFifo, PresentModeMailbox},
		},
		created:    map[string]int{},
		destroyed:  map[string]int{},
		live:       map[*handle]bool{},
		failCreate: map[string]error{},
	}
}

func defaultCaps() Capabilities {
	return Capabilities{
		MinImageCount:           2,
		MaxImageCount:           3,
		CurrentExtent:           Extent{Width: UndefinedExtent, Height: UndefinedExtent},
		MinExtent:               Extent{Width: 1, Height: 1},
		MaxExtent:               Extent{Width: 4096, Height: 4096},
		SupportedTransforms:     0x1,
		CurrentTransform:        0x1,
		SupportedCompositeAlpha: 0x1,
	}
}

// create returns an untyped nil on failure, as a real device would.
func (d *mockDevice) create(class string) (any, error) {
	if err := d.failCreate[class]; err != nil {
		delete(d.failCreate, class)
		return nil, err
	}
	d.nextID++
	h := &handle{class: class, id: d.nextID}
	d.created[class]++
	d.live[h] = true
	return h, nil
}

func (d *mockDevice) destroy(v any) {
	h := v.(*handle)
	if !d.live[h] {
		panic("double destroy of " + h.String())
	}
	delete(d.live, h)
	d.destroyed[h.class]++
	d.trace = append(d.trace, "destroy "+h.class)
}

// leaked returns classes whose create and destroy counts differ.
func (d *mockDevice) leaked() map[string]int {
	out := map[string]int{}
	for class, n := range d.created {
		if diff := n - d.destroyed[class]; diff != 0 {
			out[class] = diff
		}
	}
	return out
}

func (d *mockDevice) QuerySupport() (Support, error) { return d.support, nil }

func (d *mockDevice) CreateSwapchain(info ChainInfo) (Chain, error) {
	h, err := d.create("swapchain")
	if err != nil {
		return nil, err
	}
	d.chains = append(d.chains, info)
	return h, nil
}

func (d *mockDevice) DestroySwapchain(c Chain) { d.destroy(c) }

func (d *mockDevice) Images(c Chain) ([]Image, error) {
	n := int(d.chains[len(d.chains)-1].ImageCount)
	if d.imagesOverride > 0 {
		n = d.imagesOverride
	}
	images := make([]Image, n)
	for i := range images {
		images[i] = &handle{class: "image", id: i}
	}
	return images, nil
}

func (d *mockDevice) CreateImageView(img Image, format Format) (ImageView, error) {
	return d.create("view")
}

func (d *mockDevice) DestroyImageView(v ImageView) { d.destroy(v) }

func (d *mockDevice) CreateFramebuffer(rp RenderPass, v ImageView, extent Extent) (Framebuffer, error) {
	return d.create("framebuffer")
}

func (d *mockDevice) DestroyFramebuffer(fb Framebuffer) { d.destroy(fb) }

func (d *mockDevice) AllocateCommandBuffers(n int) ([]CommandBuffer, error) {
	cbs := make([]CommandBuffer, 0, n)
	for i := 0; i < n; i++ {
		h, err := d.create("cmdbuf")
		if err != nil {
			for _, cb := range cbs {
				d.destroy(cb)
			}
			return nil, err
		}
		cbs = append(cbs, h)
	}
	return cbs, nil
}

func (d *mockDevice) FreeCommandBuffers(cbs []CommandBuffer) {
	for _, cb := range cbs {
		d.destroy(cb)
	}
}

func (d *mockDevice) CreateSemaphore() (Semaphore, error) { return d.create("semaphore") }

func (d *mockDevice) DestroySemaphore(s Semaphore) { d.destroy(s) }

func (d *mockDevice) CreateFence(signaled bool) (Fence, error) { return d.create("fence") }

func (d *mockDevice) WaitFence(f Fence, timeout time.Duration) error {
	d.trace = append(d.trace, fmt.Sprintf("wait-fence %v", f))
	return nil
}

func (d *mockDevice) ResetFence(f Fence) error {
	d.trace = append(d.trace, fmt.Sprintf("reset-fence %v", f))
	return nil
}

func (d *mockDevice) DestroyFence(f Fence) { d.destroy(f) }

func (d *mockDevice) AcquireNextImage(c Chain, timeout time.Duration, imageAvailable Semaphore) (int, error) {
	var err error
	if len(d.acquireErrs) > 0 {
		err, d.acquireErrs = d.acquireErrs[0], d.acquireErrs[1:]
	}
	if err != nil && !errors.Is(err, ErrSuboptimal) {
		d.trace = append(d.trace, fmt.Sprintf("acquire-failed %v", err))
		return 0, err
	}
	idx := d.advance()
	d.trace = append(d.trace, fmt.Sprintf("acquire %d signal %v", idx, imageAvailable))
	return idx, err
}

func (d *mockDevice) advance() int {
	n := int(d.chains[len(d.chains)-1].ImageCount)
	if d.imagesOverride > 0 {
		n = d.imagesOverride
	}
	idx := d.nextImage % n
	d.nextImage++
	return idx
}

func (d *mockDevice) Submit(cb CommandBuffer, wait, signal Semaphore, fence Fence) error {
	d.trace = append(d.trace, fmt.Sprintf("submit %v wait %v signal %v fence %v", cb, wait, signal, fence))
	return nil
}

func (d *mockDevice) Present(c Chain, index int, wait Semaphore) error {
	d.presents++
	d.trace = append(d.trace, fmt.Sprintf("present %d wait %v", index, wait))
	if len(d.presentErrs) > 0 {
		err := d.presentErrs[0]
		d.presentErrs = d.presentErrs[1:]
		return err
	}
	return nil
}

func (d *mockDevice) WaitIdle() error {
	d.waitIdles++
	d.trace = append(d.trace, "wait-idle")
	return d.waitIdleErr
}

func (d *mockDevice) WaitPresentIdle() error {
	d.trace = append(d.trace, "wait-present-idle")
	return nil
}

type mockWindow struct {
	width, height int
}

func (w *mockWindow) FramebufferSize() (int, int) { return w.width, w.height }

type mockPipeline struct {
	formats   []SurfaceFormat
	records   map[CommandBuffer]int
	recordErr error
}

func newMockPipeline() *mockPipeline {
	return &mockPipeline{records: map[CommandBuffer]int{}}
}

func (p *mockPipeline) Configure(format SurfaceFormat) (RenderPass, error) {
	p.formats = append(p.formats, format)
	return &handle{class: "renderpass"}, nil
}

func (p *mockPipeline) Record(cb CommandBuffer, fb Framebuffer, extent Extent) error {
	if p.recordErr != nil {
		return p.recordErr
	}
	p.records[cb]++
	return nil
}

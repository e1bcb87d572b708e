package main

import (
	"context"
	"log/slog"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vulkan-go/glfw/v3.3/glfw"
	"github.com/vulkan-go/vulkan"

	"hellotriangle/internal/config"
	"hellotriangle/internal/devsel"
	"hellotriangle/internal/swapchain"
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}

type queueFamilyIndices struct {
	graphicsFamily uint32
	presentFamily  uint32
	hasGraphics    bool
	hasPresent     bool
}

// glfwWindow reports the framebuffer size in pixels.
type glfwWindow struct {
	w *glfw.Window
}

func (g glfwWindow) FramebufferSize() (int, int) {
	return g.w.GetFramebufferSize()
}

type VulkanApp struct {
	cfg    config.Config
	log    *slog.Logger
	window *glfw.Window

	instance       vulkan.Instance
	debugCallback  vulkan.DebugReportCallback
	surface        vulkan.Surface
	physicalDevice vulkan.PhysicalDevice
	device         vulkan.Device
	graphicsQueue  vulkan.Queue
	presentQueue   vulkan.Queue
	queues         queueFamilyIndices
	candidate      devsel.Candidate
	extensions     []string
	commandPool    vulkan.CommandPool

	dev      *vkDevice
	pipeline *trianglePipeline
	ctrl     *swapchain.Controller
}

func newVulkanApp(ctx context.Context, window *glfw.Window, cfg config.Config, log *slog.Logger) (*VulkanApp, error) {
	app := &VulkanApp{
		cfg:    cfg,
		log:    log,
		window: window,
	}
	if err := app.initVulkan(ctx); err != nil {
		app.Cleanup(ctx)
		return nil, err
	}
	return app, nil
}

func (a *VulkanApp) initVulkan(ctx context.Context) error {
	vulkan.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	if err := vulkan.Init(); err != nil {
		return errors.Wrap(err, "vulkan init")
	}
	if err := a.createInstance(); err != nil {
		return err
	}
	if err := vulkan.InitInstance(a.instance); err != nil {
		return errors.Wrap(err, "vkInitInstance")
	}
	if err := a.setupDebugCallback(); err != nil {
		return err
	}
	if err := a.createSurface(); err != nil {
		return err
	}
	if err := a.pickPhysicalDevice(); err != nil {
		return err
	}
	if err := a.createLogicalDevice(); err != nil {
		return err
	}
	if err := a.createCommandPool(); err != nil {
		return err
	}

	a.dev = &vkDevice{
		physical:      a.physicalDevice,
		device:        a.device,
		surface:       a.surface,
		graphicsQueue: a.graphicsQueue,
		presentQueue:  a.presentQueue,
		queues:        a.queues,
		pool:          a.commandPool,
	}
	pl, err := newTrianglePipeline(a.device, a.physicalDevice, a.cfg.Shaders.Dir, a.log)
	if err != nil {
		return err
	}
	a.pipeline = pl
	a.ctrl = swapchain.New(a.dev, glfwWindow{a.window}, a.pipeline, a.cfg.SwapchainOptions(a.log))
	if err := a.ctrl.Build(ctx); err != nil {
		return errors.Wrap(err, "build swapchain")
	}
	a.log.Info("swapchain built",
		"device", a.candidate.Name,
		"extent", a.ctrl.Extent().String(),
		"present_mode", a.ctrl.PresentMode().String(),
		"images", a.ctrl.ImageCount())
	return nil
}

func (a *VulkanApp) createInstance() error {
	if a.cfg.Vulkan.Validation && !validationLayersSupported() {
		return errors.New("requested validation layers not available")
	}
	if !glfw.VulkanSupported() {
		return errors.New("GLFW Vulkan loader not found")
	}

	appInfo := vulkan.ApplicationInfo{
		SType:              vulkan.StructureTypeApplicationInfo,
		PApplicationName:   a.cfg.Window.Title + "\x00",
		ApplicationVersion: vulkan.MakeVersion(0, 1, 0),
		PEngineName:        "No Engine\x00",
		EngineVersion:      vulkan.MakeVersion(0, 1, 0),
		ApiVersion:         vulkan.MakeVersion(1, 0, 0),
	}

	extensions := a.window.GetRequiredInstanceExtensions()
	if a.cfg.Vulkan.Validation {
		extensions = append(extensions, "VK_EXT_debug_report")
	}
	extensions = safeStrings(extensions)
	createInfo := vulkan.InstanceCreateInfo{
		SType:                   vulkan.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
	}
	if a.cfg.Vulkan.Validation {
		createInfo.EnabledLayerCount = uint32(len(validationLayers))
		createInfo.PpEnabledLayerNames = safeStrings(validationLayers)
	}
	if res := vulkan.CreateInstance(&createInfo, nil, &a.instance); res != vulkan.Success {
		return errors.Wrap(vulkan.Error(res), "create instance")
	}
	return nil
}

func validationLayersSupported() bool {
	var count uint32
	if vulkan.EnumerateInstanceLayerProperties(&count, nil) != vulkan.Success {
		return false
	}
	props := make([]vulkan.LayerProperties, count)
	if vulkan.EnumerateInstanceLayerProperties(&count, props) != vulkan.Success {
		return false
	}
	supported := make(map[string]bool)
	for i := range props {
		props[i].Deref()
		supported[vulkan.ToString(props[i].LayerName[:])] = true
	}
	for _, l := range validationLayers {
		if !supported[l] {
			return false
		}
	}
	return true
}

func (a *VulkanApp) setupDebugCallback() error {
	if !a.cfg.Vulkan.Validation {
		return nil
	}
	log := a.log.With("component", "vk")
	createInfo := vulkan.DebugReportCallbackCreateInfo{
		SType: vulkan.StructureTypeDebugReportCallbackCreateInfo,
		Flags: vulkan.DebugReportFlags(
			vulkan.DebugReportErrorBit |
				vulkan.DebugReportWarningBit |
				vulkan.DebugReportPerformanceWarningBit),
		PfnCallback: func(flags vulkan.DebugReportFlags, objectType vulkan.DebugReportObjectType, object uint64, location uint, messageCode int32, layerPrefix string, message string, userData unsafe.Pointer) vulkan.Bool32 {
			level := slog.LevelWarn
			if flags&vulkan.DebugReportFlags(vulkan.DebugReportErrorBit) != 0 {
				level = slog.LevelError
			}
			log.Log(context.Background(), level, message, "layer", layerPrefix, "code", messageCode)
			return vulkan.False
		},
	}
	if res := vulkan.CreateDebugReportCallback(a.instance, &createInfo, nil, &a.debugCallback); res != vulkan.Success {
		return errors.Wrap(vulkan.Error(res), "create debug callback")
	}
	return nil
}

func (a *VulkanApp) createSurface() error {
	surfacePtr, err := a.window.CreateWindowSurface(a.instance, nil)
	if err != nil {
		return errors.Wrap(err, "create window surface")
	}
	a.surface = vulkan.SurfaceFromPointer(surfacePtr)
	return nil
}

func (a *VulkanApp) pickPhysicalDevice() error {
	var count uint32
	if res := vulkan.EnumeratePhysicalDevices(a.instance, &count, nil); res != vulkan.Success {
		return errors.Wrap(vulkan.Error(res), "enumerate physical devices")
	}
	if count == 0 {
		return errors.Wrap(devsel.ErrNoSuitableDevice, "no Vulkan devices")
	}
	devices := make([]vulkan.PhysicalDevice, count)
	if res := vulkan.EnumeratePhysicalDevices(a.instance, &count, devices); res != vulkan.Success {
		return errors.Wrap(vulkan.Error(res), "enumerate physical devices list")
	}

	policy := a.cfg.DevicePolicy()
	cands := make([]devsel.Candidate, len(devices))
	queues := make([]queueFamilyIndices, len(devices))
	for i, dev := range devices {
		cands[i], queues[i] = a.describeDevice(i, dev, policy.RequiredExtensions)
		a.log.Debug("physical device",
			"index", i,
			"name", cands[i].Name,
			"type", cands[i].Type.String(),
			"score", policy.Score(cands[i]),
			"suitable", policy.Suitable(cands[i]) == nil)
	}

	picked, err := policy.Pick(cands)
	if err != nil {
		return err
	}
	a.candidate = picked
	a.physicalDevice = devices[picked.Index]
	a.queues = queues[picked.Index]
	a.extensions = policy.RequiredExtensions
	return nil
}

func (a *VulkanApp) describeDevice(idx int, device vulkan.PhysicalDevice, required []string) (devsel.Candidate, queueFamilyIndices) {
	var props vulkan.PhysicalDeviceProperties
	vulkan.GetPhysicalDeviceProperties(device, &props)
	props.Deref()
	var features vulkan.PhysicalDeviceFeatures
	vulkan.GetPhysicalDeviceFeatures(device, &features)
	features.Deref()

	q := a.findQueueFamilies(device)
	c := devsel.Candidate{
		Index:              idx,
		Name:               vulkan.ToString(props.DeviceName[:]),
		Type:               devsel.DeviceType(props.DeviceType),
		GeometryShader:     features.GeometryShader == vulkan.True,
		TessellationShader: features.TessellationShader == vulkan.True,
		GraphicsQueue:      q.hasGraphics,
		PresentQueue:       q.hasPresent,
		Extensions:         deviceExtensionNames(device),
	}

	// surface queries need the swapchain extension
	have := make(map[string]bool, len(c.Extensions))
	for _, ext := range c.Extensions {
		have[ext] = true
	}
	if have[devsel.SwapchainExtension] {
		var n uint32
		vulkan.GetPhysicalDeviceSurfaceFormats(device, a.surface, &n, nil)
		c.FormatCount = int(n)
		vulkan.GetPhysicalDeviceSurfacePresentModes(device, a.surface, &n, nil)
		c.PresentModeCount = int(n)
	}
	return c, q
}

func deviceExtensionNames(device vulkan.PhysicalDevice) []string {
	var count uint32
	if res := vulkan.EnumerateDeviceExtensionProperties(device, "", &count, nil); res != vulkan.Success {
		return nil
	}
	props := make([]vulkan.ExtensionProperties, count)
	if res := vulkan.EnumerateDeviceExtensionProperties(device, "", &count, props); res != vulkan.Success {
		return nil
	}
	names := make([]string, 0, count)
	for i := range props {
		props[i].Deref()
		names = append(names, vulkan.ToString(props[i].ExtensionName[:]))
	}
	return names
}

func (a *VulkanApp) findQueueFamilies(device vulkan.PhysicalDevice) queueFamilyIndices {
	var count uint32
	vulkan.GetPhysicalDeviceQueueFamilyProperties(device, &count, nil)
	props := make([]vulkan.QueueFamilyProperties, count)
	vulkan.GetPhysicalDeviceQueueFamilyProperties(device, &count, props)

	var indices queueFamilyIndices
	for i := range props {
		props[i].Deref()
		if props[i].QueueFlags&vulkan.QueueFlags(vulkan.QueueGraphicsBit) != 0 && !indices.hasGraphics {
			indices.graphicsFamily = uint32(i)
			indices.hasGraphics = true
		}
		var present vulkan.Bool32
		vulkan.GetPhysicalDeviceSurfaceSupport(device, uint32(i), a.surface, &present)
		if present == vulkan.True && !indices.hasPresent {
			indices.presentFamily = uint32(i)
			indices.hasPresent = true
		}
		if indices.hasGraphics && indices.hasPresent {
			break
		}
	}
	return indices
}

func (a *VulkanApp) createLogicalDevice() error {
	uniqueFamilies := []uint32{a.queues.graphicsFamily}
	if a.queues.presentFamily != a.queues.graphicsFamily {
		uniqueFamilies = append(uniqueFamilies, a.queues.presentFamily)
	}
	queueInfos := make([]vulkan.DeviceQueueCreateInfo, 0, len(uniqueFamilies))
	for _, family := range uniqueFamilies {
		queueInfos = append(queueInfos, vulkan.DeviceQueueCreateInfo{
			SType:            vulkan.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		})
	}

	var features vulkan.PhysicalDeviceFeatures
	if a.cfg.Device.RequireGeometryShader {
		features.GeometryShader = vulkan.True
	}
	createInfo := vulkan.DeviceCreateInfo{
		SType:                   vulkan.StructureTypeDeviceCreateInfo,
		PQueueCreateInfos:       queueInfos,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PEnabledFeatures:        []vulkan.PhysicalDeviceFeatures{features},
		PpEnabledExtensionNames: safeStrings(a.extensions),
		EnabledExtensionCount:   uint32(len(a.extensions)),
	}
	if a.cfg.Vulkan.Validation {
		createInfo.EnabledLayerCount = uint32(len(validationLayers))
		createInfo.PpEnabledLayerNames = safeStrings(validationLayers)
	}
	if res := vulkan.CreateDevice(a.physicalDevice, &createInfo, nil, &a.device); res != vulkan.Success {
		return errors.Wrap(vulkan.Error(res), "create logical device")
	}

	vulkan.GetDeviceQueue(a.device, a.queues.graphicsFamily, 0, &a.graphicsQueue)
	vulkan.GetDeviceQueue(a.device, a.queues.presentFamily, 0, &a.presentQueue)
	return nil
}

func (a *VulkanApp) createCommandPool() error {
	poolInfo := vulkan.CommandPoolCreateInfo{
		SType:            vulkan.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: a.queues.graphicsFamily,
	}
	if res := vulkan.CreateCommandPool(a.device, &poolInfo, nil, &a.commandPool); res != vulkan.Success {
		return errors.Wrap(vulkan.Error(res), "create command pool")
	}
	return nil
}

// NotifyResize is safe to call from the GLFW framebuffer-size callback.
func (a *VulkanApp) NotifyResize(width, height int) {
	if a.ctrl != nil {
		a.ctrl.NotifyResize(width, height)
	}
}

func (a *VulkanApp) DrawFrame(ctx context.Context) error {
	return a.ctrl.RenderFrame(ctx)
}

// ReloadShaders rebuilds the pipeline from the shader files on disk.
func (a *VulkanApp) ReloadShaders(ctx context.Context) error {
	a.pipeline.Reload()
	return a.ctrl.Rebuild(ctx)
}

func (a *VulkanApp) Stats() swapchain.Stats {
	return a.ctrl.Stats()
}

func (a *VulkanApp) Cleanup(ctx context.Context) {
	if a.ctrl != nil {
		if err := a.ctrl.Close(ctx); err != nil {
			a.log.Error("close swapchain", "err", err)
		}
		st := a.ctrl.Stats()
		a.log.Info("frames",
			"total", st.Frames,
			"presented", st.Presented,
			"dropped", st.Dropped,
			"rebuilds", st.Rebuilds,
			"timeouts", st.Timeouts)
	} else if a.device != vulkan.Device(vulkan.NullHandle) {
		vulkan.DeviceWaitIdle(a.device)
	}
	if a.pipeline != nil {
		a.pipeline.Destroy()
		a.pipeline = nil
	}
	if a.commandPool != vulkan.CommandPool(vulkan.NullHandle) {
		vulkan.DestroyCommandPool(a.device, a.commandPool, nil)
		a.commandPool = vulkan.CommandPool(vulkan.NullHandle)
	}
	if a.device != vulkan.Device(vulkan.NullHandle) {
		vulkan.DestroyDevice(a.device, nil)
		a.device = vulkan.Device(vulkan.NullHandle)
	}
	if a.debugCallback != vulkan.DebugReportCallback(vulkan.NullHandle) {
		vulkan.DestroyDebugReportCallback(a.instance, a.debugCallback, nil)
		a.debugCallback = vulkan.DebugReportCallback(vulkan.NullHandle)
	}
	if a.surface != vulkan.Surface(vulkan.NullHandle) {
		vulkan.DestroySurface(a.instance, a.surface, nil)
		a.surface = vulkan.Surface(vulkan.NullHandle)
	}
	if a.instance != vulkan.Instance(vulkan.NullHandle) {
		vulkan.DestroyInstance(a.instance, nil)
		a.instance = vulkan.Instance(vulkan.NullHandle)
	}
}

// safeStrings NUL-terminates names for the C side.
func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		if len(s) == 0 || s[len(s)-1] != 0 {
			s += "\x00"
		}
		out[i] = s
	}
	return out
}

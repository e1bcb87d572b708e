package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/cockroachdb/errors"
	mgl32 "github.com/go-gl/mathgl/mgl32"
	"github.com/vulkan-go/vulkan"

	"hellotriangle/internal/swapchain"
)

type vertex struct {
	pos   mgl32.Vec3
	color mgl32.Vec3
}

var triangleVertices = []vertex{
	{pos: mgl32.Vec3{0, -0.5, 0}, color: mgl32.Vec3{1, 0, 0}},
	{pos: mgl32.Vec3{0.5, 0.5, 0}, color: mgl32.Vec3{0, 1, 0}},
	{pos: mgl32.Vec3{-0.5, 0.5, 0}, color: mgl32.Vec3{0, 0, 1}},
}

const pushConstantSize = uint32(unsafe.Sizeof(mgl32.Mat4{}))

// trianglePipeline owns the render pass, the graphics pipeline and the
// vertex buffer. Viewport and scissor are dynamic, so only a change of
// surface format or new shader bytecode needs a new pipeline.
type trianglePipeline struct {
	device    vulkan.Device
	physical  vulkan.PhysicalDevice
	shaderDir string
	log       *slog.Logger

	format     swapchain.SurfaceFormat
	renderPass vulkan.RenderPass
	layout     vulkan.PipelineLayout
	pipeline   vulkan.Pipeline
	reload     bool

	vertexBuffer vulkan.Buffer
	vertexMemory vulkan.DeviceMemory
}

var _ swapchain.Pipeline = (*trianglePipeline)(nil)

func newTrianglePipeline(device vulkan.Device, physical vulkan.PhysicalDevice, shaderDir string, log *slog.Logger) (*trianglePipeline, error) {
	p := &trianglePipeline{
		device:    device,
		physical:  physical,
		shaderDir: shaderDir,
		log:       log,
	}
	if err := p.createLayout(); err != nil {
		return nil, err
	}
	if err := p.createVertexBuffer(); err != nil {
		p.Destroy()
		return nil, err
	}
	return p, nil
}

// Reload makes the next Configure read the shaders again.
func (p *trianglePipeline) Reload() {
	p.reload = true
}

func (p *trianglePipeline) Configure(format swapchain.SurfaceFormat) (swapchain.RenderPass, error) {
	if p.renderPass != vulkan.RenderPass(vulkan.NullHandle) && p.format != format {
		p.destroyPipeline()
		vulkan.DestroyRenderPass(p.device, p.renderPass, nil)
		p.renderPass = vulkan.RenderPass(vulkan.NullHandle)
	}
	if p.renderPass == vulkan.RenderPass(vulkan.NullHandle) {
		if err := p.createRenderPass(vulkan.Format(format.Format)); err != nil {
			return nil, err
		}
		p.format = format
	}

	if p.pipeline == vulkan.Pipeline(vulkan.NullHandle) {
		pipeline, err := p.createPipeline()
		if err != nil {
			return nil, err
		}
		p.pipeline = pipeline
		p.reload = false
		return p.renderPass, nil
	}
	if p.reload {
		p.reload = false
		// keep the current pipeline if the new bytecode does not build
		pipeline, err := p.createPipeline()
		if err != nil {
			p.log.Warn("shader reload failed, keeping previous pipeline", "dir", p.shaderDir, "err", err)
			return p.renderPass, nil
		}
		p.destroyPipeline()
		p.pipeline = pipeline
		p.log.Info("shaders reloaded", "dir", p.shaderDir)
	}
	return p.renderPass, nil
}

func (p *trianglePipeline) Record(cb swapchain.CommandBuffer, fb swapchain.Framebuffer, extent swapchain.Extent) error {
	cmd := cb.(vulkan.CommandBuffer)
	beginInfo := vulkan.CommandBufferBeginInfo{
		SType: vulkan.StructureTypeCommandBufferBeginInfo,
	}
	if res := vulkan.BeginCommandBuffer(cmd, &beginInfo); res != vulkan.Success {
		return errors.Wrap(vulkan.Error(res), "begin command buffer")
	}

	area := vulkan.Extent2D{Width: extent.Width, Height: extent.Height}
	clearValues := []vulkan.ClearValue{vulkan.NewClearValue([]float32{0.05, 0.05, 0.08, 1.0})}
	renderPassInfo := vulkan.RenderPassBeginInfo{
		SType:       vulkan.StructureTypeRenderPassBeginInfo,
		RenderPass:  p.renderPass,
		Framebuffer: fb.(vulkan.Framebuffer),
		RenderArea: vulkan.Rect2D{
			Offset: vulkan.Offset2D{X: 0, Y: 0},
			Extent: area,
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vulkan.CmdBeginRenderPass(cmd, &renderPassInfo, vulkan.SubpassContentsInline)
	vulkan.CmdBindPipeline(cmd, vulkan.PipelineBindPointGraphics, p.pipeline)

	vulkan.CmdSetViewport(cmd, 0, 1, []vulkan.Viewport{{
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}})
	vulkan.CmdSetScissor(cmd, 0, 1, []vulkan.Rect2D{{Extent: area}})

	mvp := projection(extent)
	vulkan.CmdPushConstants(cmd, p.layout, vulkan.ShaderStageFlags(vulkan.ShaderStageVertexBit), 0, pushConstantSize, unsafe.Pointer(&mvp[0]))

	vulkan.CmdBindVertexBuffers(cmd, 0, 1, []vulkan.Buffer{p.vertexBuffer}, []vulkan.DeviceSize{0})
	vulkan.CmdDraw(cmd, uint32(len(triangleVertices)), 1, 0, 0)
	vulkan.CmdEndRenderPass(cmd)

	if res := vulkan.EndCommandBuffer(cmd); res != vulkan.Success {
		return errors.Wrap(vulkan.Error(res), "end command buffer")
	}
	return nil
}

// projection keeps the triangle undistorted for any aspect ratio.
func projection(extent swapchain.Extent) mgl32.Mat4 {
	aspect := float32(extent.Width) / float32(extent.Height)
	var proj mgl32.Mat4
	if aspect >= 1 {
		proj = mgl32.Ortho2D(-aspect, aspect, -1, 1)
	} else {
		proj = mgl32.Ortho2D(-1, 1, -1/aspect, 1/aspect)
	}
	proj[5] *= -1 // Vulkan clip
	return proj
}

func (p *trianglePipeline) createRenderPass(format vulkan.Format) error {
	colorAttachment := vulkan.AttachmentDescription{
		Format:         format,
		Samples:        vulkan.SampleCount1Bit,
		LoadOp:         vulkan.AttachmentLoadOpClear,
		StoreOp:        vulkan.AttachmentStoreOpStore,
		InitialLayout:  vulkan.ImageLayoutUndefined,
		FinalLayout:    vulkan.ImageLayoutPresentSrc,
		StencilLoadOp:  vulkan.AttachmentLoadOpDontCare,
		StencilStoreOp: vulkan.AttachmentStoreOpDontCare,
	}
	colorRef := vulkan.AttachmentReference{
		Attachment: 0,
		Layout:     vulkan.ImageLayoutColorAttachmentOptimal,
	}
	subpass := vulkan.SubpassDescription{
		PipelineBindPoint:    vulkan.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    []vulkan.AttachmentReference{colorRef},
	}
	// The image may still be read by the presentation engine until the
	// acquire semaphore fires at this stage.
	dependency := vulkan.SubpassDependency{
		SrcSubpass:    vulkan.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vulkan.PipelineStageFlags(vulkan.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vulkan.PipelineStageFlags(vulkan.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vulkan.AccessFlags(vulkan.AccessColorAttachmentWriteBit),
	}
	createInfo := vulkan.RenderPassCreateInfo{
		SType:           vulkan.StructureTypeRenderPassCreateInfo,
		AttachmentCount: 1,
		PAttachments:    []vulkan.AttachmentDescription{colorAttachment},
		SubpassCount:    1,
		PSubpasses:      []vulkan.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vulkan.SubpassDependency{dependency},
	}
	if res := vulkan.CreateRenderPass(p.device, &createInfo, nil, &p.renderPass); res != vulkan.Success {
		return errors.Wrap(vulkan.Error(res), "create render pass")
	}
	return nil
}

func (p *trianglePipeline) createLayout() error {
	pushRange := vulkan.PushConstantRange{
		StageFlags: vulkan.ShaderStageFlags(vulkan.ShaderStageVertexBit),
		Offset:     0,
		Size:       pushConstantSize,
	}
	layoutInfo := vulkan.PipelineLayoutCreateInfo{
		SType:                  vulkan.StructureTypePipelineLayoutCreateInfo,
		PushConstantRangeCount: 1,
		PPushConstantRanges:    []vulkan.PushConstantRange{pushRange},
	}
	if res := vulkan.CreatePipelineLayout(p.device, &layoutInfo, nil, &p.layout); res != vulkan.Success {
		return errors.Wrap(vulkan.Error(res), "create pipeline layout")
	}
	return nil
}

// createPipeline builds a pipeline from the shaders on disk against the
// current render pass. It does not touch p.pipeline.
func (p *trianglePipeline) createPipeline() (vulkan.Pipeline, error) {
	none := vulkan.Pipeline(vulkan.NullHandle)
	vertCode, err := os.ReadFile(filepath.Join(p.shaderDir, "vert.spv"))
	if err != nil {
		return none, errors.Wrap(err, "read vertex shader")
	}
	fragCode, err := os.ReadFile(filepath.Join(p.shaderDir, "frag.spv"))
	if err != nil {
		return none, errors.Wrap(err, "read fragment shader")
	}

	vertModule, err := p.createShaderModule(vertCode)
	if err != nil {
		return none, errors.Wrap(err, "vertex shader")
	}
	defer vulkan.DestroyShaderModule(p.device, vertModule, nil)
	fragModule, err := p.createShaderModule(fragCode)
	if err != nil {
		return none, errors.Wrap(err, "fragment shader")
	}
	defer vulkan.DestroyShaderModule(p.device, fragModule, nil)

	mainName := "main\x00"
	shaderStages := []vulkan.PipelineShaderStageCreateInfo{
		{
			SType:  vulkan.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vulkan.ShaderStageVertexBit,
			Module: vertModule,
			PName:  mainName,
		},
		{
			SType:  vulkan.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vulkan.ShaderStageFragmentBit,
			Module: fragModule,
			PName:  mainName,
		},
	}

	bindingDescription := vulkan.VertexInputBindingDescription{
		Binding:   0,
		Stride:    uint32(unsafe.Sizeof(vertex{})),
		InputRate: vulkan.VertexInputRateVertex,
	}
	attributeDescriptions := []vulkan.VertexInputAttributeDescription{
		{Location: 0, Binding: 0, Format: vulkan.FormatR32g32b32Sfloat, Offset: uint32(unsafe.Offsetof(vertex{}.pos))},
		{Location: 1, Binding: 0, Format: vulkan.FormatR32g32b32Sfloat, Offset: uint32(unsafe.Offsetof(vertex{}.color))},
	}
	vertexInput := vulkan.PipelineVertexInputStateCreateInfo{
		SType:                           vulkan.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   1,
		PVertexBindingDescriptions:      []vulkan.VertexInputBindingDescription{bindingDescription},
		VertexAttributeDescriptionCount: uint32(len(attributeDescriptions)),
		PVertexAttributeDescriptions:    attributeDescriptions,
	}
	inputAssembly := vulkan.PipelineInputAssemblyStateCreateInfo{
		SType:                  vulkan.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vulkan.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vulkan.False,
	}
	// counts only; the values are set while recording
	viewportState := vulkan.PipelineViewportStateCreateInfo{
		SType:         vulkan.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}
	dynamicStates := []vulkan.DynamicState{vulkan.DynamicStateViewport, vulkan.DynamicStateScissor}
	dynamicState := vulkan.PipelineDynamicStateCreateInfo{
		SType:             vulkan.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}
	rasterizer := vulkan.PipelineRasterizationStateCreateInfo{
		SType:                   vulkan.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vulkan.False,
		RasterizerDiscardEnable: vulkan.False,
		PolygonMode:             vulkan.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                vulkan.CullModeFlags(vulkan.CullModeNone),
		FrontFace:               vulkan.FrontFaceClockwise,
		DepthBiasEnable:         vulkan.False,
	}
	multisampling := vulkan.PipelineMultisampleStateCreateInfo{
		SType:                vulkan.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vulkan.SampleCount1Bit,
	}
	colorBlendAttachment := vulkan.PipelineColorBlendAttachmentState{
		ColorWriteMask: vulkan.ColorComponentFlags(vulkan.ColorComponentRBit | vulkan.ColorComponentGBit | vulkan.ColorComponentBBit | vulkan.ColorComponentABit),
		BlendEnable:    vulkan.False,
	}
	colorBlending := vulkan.PipelineColorBlendStateCreateInfo{
		SType:           vulkan.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: 1,
		PAttachments:    []vulkan.PipelineColorBlendAttachmentState{colorBlendAttachment},
	}

	pipelineInfo := vulkan.GraphicsPipelineCreateInfo{
		SType:               vulkan.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(shaderStages)),
		PStages:             shaderStages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PColorBlendState:    &colorBlending,
		PDynamicState:       &dynamicState,
		Layout:              p.layout,
		RenderPass:          p.renderPass,
		Subpass:             0,
	}
	pipelines := make([]vulkan.Pipeline, 1)
	if res := vulkan.CreateGraphicsPipelines(p.device, vulkan.PipelineCache(vulkan.NullHandle), 1, []vulkan.GraphicsPipelineCreateInfo{pipelineInfo}, nil, pipelines); res != vulkan.Success {
		return none, errors.Wrap(vulkan.Error(res), "create graphics pipeline")
	}
	return pipelines[0], nil
}

func (p *trianglePipeline) createShaderModule(code []byte) (vulkan.ShaderModule, error) {
	words, err := spirvWords(code)
	if err != nil {
		return vulkan.ShaderModule(vulkan.NullHandle), err
	}
	createInfo := vulkan.ShaderModuleCreateInfo{
		SType:    vulkan.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    words,
	}
	var module vulkan.ShaderModule
	if res := vulkan.CreateShaderModule(p.device, &createInfo, nil, &module); res != vulkan.Success {
		return vulkan.ShaderModule(vulkan.NullHandle), errors.Wrap(vulkan.Error(res), "create shader module")
	}
	return module, nil
}

const spirvMagic = 0x07230203

func spirvWords(data []byte) ([]uint32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, errors.Newf("spir-v length %d is not a multiple of 4", len(data))
	}
	words := unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
	if words[0] != spirvMagic {
		return nil, errors.Newf("bad spir-v magic %#x", words[0])
	}
	return words, nil
}

func (p *trianglePipeline) createVertexBuffer() error {
	size := vulkan.DeviceSize(len(triangleVertices)) * vulkan.DeviceSize(unsafe.Sizeof(vertex{}))
	bufferInfo := vulkan.BufferCreateInfo{
		SType:       vulkan.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       vulkan.BufferUsageFlags(vulkan.BufferUsageVertexBufferBit),
		SharingMode: vulkan.SharingModeExclusive,
	}
	if res := vulkan.CreateBuffer(p.device, &bufferInfo, nil, &p.vertexBuffer); res != vulkan.Success {
		return errors.Wrap(vulkan.Error(res), "create vertex buffer")
	}

	var memReq vulkan.MemoryRequirements
	vulkan.GetBufferMemoryRequirements(p.device, p.vertexBuffer, &memReq)
	memReq.Deref()
	memType, ok := p.findMemoryType(memReq.MemoryTypeBits, vulkan.MemoryPropertyHostVisibleBit|vulkan.MemoryPropertyHostCoherentBit)
	if !ok {
		return errors.New("no host-visible memory for vertex buffer")
	}
	allocInfo := vulkan.MemoryAllocateInfo{
		SType:           vulkan.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReq.Size,
		MemoryTypeIndex: memType,
	}
	if res := vulkan.AllocateMemory(p.device, &allocInfo, nil, &p.vertexMemory); res != vulkan.Success {
		return errors.Wrap(vulkan.Error(res), "allocate vertex memory")
	}
	vulkan.BindBufferMemory(p.device, p.vertexBuffer, p.vertexMemory, 0)

	var data unsafe.Pointer
	if res := vulkan.MapMemory(p.device, p.vertexMemory, 0, size, 0, &data); res != vulkan.Success {
		return errors.Wrap(vulkan.Error(res), "map vertex buffer")
	}
	dst := unsafe.Slice((*vertex)(data), len(triangleVertices))
	copy(dst, triangleVertices)
	vulkan.UnmapMemory(p.device, p.vertexMemory)
	return nil
}

func (p *trianglePipeline) findMemoryType(typeFilter uint32, properties vulkan.MemoryPropertyFlagBits) (uint32, bool) {
	var memProps vulkan.PhysicalDeviceMemoryProperties
	vulkan.GetPhysicalDeviceMemoryProperties(p.physical, &memProps)
	memProps.Deref()

	want := vulkan.MemoryPropertyFlags(properties)
	for i := uint32(0); i < memProps.MemoryTypeCount; i++ {
		memoryType := memProps.MemoryTypes[i]
		memoryType.Deref()
		if typeFilter&(1<<i) != 0 && memoryType.PropertyFlags&want == want {
			return i, true
		}
	}
	return 0, false
}

func (p *trianglePipeline) destroyPipeline() {
	if p.pipeline != vulkan.Pipeline(vulkan.NullHandle) {
		vulkan.DestroyPipeline(p.device, p.pipeline, nil)
		p.pipeline = vulkan.Pipeline(vulkan.NullHandle)
	}
}

// Destroy expects the device to be idle.
func (p *trianglePipeline) Destroy() {
	p.destroyPipeline()
	if p.renderPass != vulkan.RenderPass(vulkan.NullHandle) {
		vulkan.DestroyRenderPass(p.device, p.renderPass, nil)
		p.renderPass = vulkan.RenderPass(vulkan.NullHandle)
	}
	if p.layout != vulkan.PipelineLayout(vulkan.NullHandle) {
		vulkan.DestroyPipelineLayout(p.device, p.layout, nil)
		p.layout = vulkan.PipelineLayout(vulkan.NullHandle)
	}
	if p.vertexBuffer != vulkan.Buffer(vulkan.NullHandle) {
		vulkan.DestroyBuffer(p.device, p.vertexBuffer, nil)
		p.vertexBuffer = vulkan.Buffer(vulkan.NullHandle)
	}
	if p.vertexMemory != vulkan.DeviceMemory(vulkan.NullHandle) {
		vulkan.FreeMemory(p.device, p.vertexMemory, nil)
		p.vertexMemory = vulkan.DeviceMemory(vulkan.NullHandle)
	}
}

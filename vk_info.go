package main

import (
	"fmt"
	"io"

	"github.com/vulkan-go/vulkan"

	"hellotriangle/internal/devsel"
	"hellotriangle/internal/introspect"
)

type deviceSummary struct {
	Name          string
	Type          devsel.DeviceType
	Vendor        string
	APIVersion    string
	DriverVersion string
	Score         int
	Extensions    []string
}

type surfaceSummary struct {
	Formats      []string
	PresentModes []string
	Chosen       string
	Extent       string
	Images       int
}

// printInfo dumps the selected device and surface as tables.
func (a *VulkanApp) printInfo(w io.Writer) error {
	var props vulkan.PhysicalDeviceProperties
	vulkan.GetPhysicalDeviceProperties(a.physicalDevice, &props)
	props.Deref()
	props.Limits.Deref()

	var features vulkan.PhysicalDeviceFeatures
	vulkan.GetPhysicalDeviceFeatures(a.physicalDevice, &features)
	features.Deref()

	support, err := a.dev.QuerySupport()
	if err != nil {
		return err
	}

	dev := deviceSummary{
		Name:          a.candidate.Name,
		Type:          a.candidate.Type,
		Vendor:        fmt.Sprintf("%x", props.VendorID),
		APIVersion:    fmt.Sprint(vulkan.Version(props.ApiVersion)),
		DriverVersion: fmt.Sprint(vulkan.Version(props.DriverVersion)),
		Score:         a.cfg.DevicePolicy().Score(a.candidate),
		Extensions:    a.extensions,
	}
	surf := surfaceSummary{
		Chosen: fmt.Sprintf("%d/%d", a.ctrl.Format().Format, a.ctrl.Format().ColorSpace),
		Extent: a.ctrl.Extent().String(),
		Images: a.ctrl.ImageCount(),
	}
	for _, f := range support.Formats {
		surf.Formats = append(surf.Formats, fmt.Sprintf("%d/%d", f.Format, f.ColorSpace))
	}
	for _, m := range support.PresentModes {
		surf.PresentModes = append(surf.PresentModes, m.String())
	}

	tables := []string{
		introspect.Table("PHYSICAL DEVICE", dev),
		introspect.Table("SURFACE", surf),
		introspect.Table("SURFACE CAPABILITIES", support.Capabilities),
		introspect.Table("DEVICE FEATURES", features),
		introspect.Table("DEVICE LIMITS", props.Limits),
	}
	for _, t := range tables {
		if _, err := io.WriteString(w, t+"\n"); err != nil {
			return err
		}
	}
	return nil
}

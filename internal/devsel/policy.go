// Package devsel decides which physical device an application renders on.
//
// Devices are described by Candidate values gathered by the caller, so the
// policy can be evaluated without a driver. Hard requirements reject a
// device; the remaining ones are ranked by device type.
package devsel

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// DeviceType values match VkPhysicalDeviceType.
type DeviceType int

const (
	TypeOther DeviceType = iota
	TypeIntegrated
	TypeDiscrete
	TypeVirtual
	TypeCPU
)

func (t DeviceType) String() string {
	switch t {
	case TypeIntegrated:
		return "integrated"
	case TypeDiscrete:
		return "discrete"
	case TypeVirtual:
		return "virtual"
	case TypeCPU:
		return "cpu"
	}
	return "other"
}

const SwapchainExtension = "VK_KHR_swapchain"

var (
	ErrNoQueues           = errors.New("devsel: no graphics or present queue")
	ErrMissingExtension   = errors.New("devsel: missing device extension")
	ErrNoSwapchainSupport = errors.New("devsel: surface has no formats or present modes")
	ErrNotDiscrete        = errors.New("devsel: not a discrete GPU")
	ErrNoGeometryShader   = errors.New("devsel: no geometry shader support")
	ErrNoSuitableDevice   = errors.New("devsel: no suitable GPU found")
)

// Candidate is what the policy needs to know about one physical device.
type Candidate struct {
	Index              int
	Name               string
	Type               DeviceType
	GeometryShader     bool
	TessellationShader bool
	GraphicsQueue      bool
	PresentQueue       bool
	Extensions         []string
	FormatCount        int
	PresentModeCount   int
}

type Policy struct {
	RequireDiscrete       bool
	RequireGeometryShader bool
	RequiredExtensions    []string

	// Scores ranks device types; missing types score zero.
	Scores map[DeviceType]int
}

// DefaultPolicy accepts any device that can present and prefers
// discrete GPUs.
func DefaultPolicy() Policy {
	return Policy{
		RequiredExtensions: []string{SwapchainExtension},
		Scores: map[DeviceType]int{
			TypeDiscrete:   1000,
			TypeIntegrated: 500,
			TypeVirtual:    200,
			TypeCPU:        100,
			TypeOther:      100,
		},
	}
}

// Suitable returns nil if c can be used, or the reason it cannot.
func (p Policy) Suitable(c Candidate) error {
	if !c.GraphicsQueue || !c.PresentQueue {
		return ErrNoQueues
	}
	have := make(map[string]bool, len(c.Extensions))
	for _, ext := range c.Extensions {
		have[ext] = true
	}
	for _, ext := range p.RequiredExtensions {
		if !have[ext] {
			return errors.Wrapf(ErrMissingExtension, "%s", ext)
		}
	}
	// swapchain support can only be queried once the extension is known
	if c.FormatCount == 0 || c.PresentModeCount == 0 {
		return ErrNoSwapchainSupport
	}
	if p.RequireDiscrete && c.Type != TypeDiscrete {
		return ErrNotDiscrete
	}
	if p.RequireGeometryShader && !c.GeometryShader {
		return ErrNoGeometryShader
	}
	return nil
}

func (p Policy) Score(c Candidate) int {
	return p.Scores[c.Type]
}

// Pick returns the suitable candidate with the highest score. Ties keep
// enumeration order.
func (p Policy) Pick(cands []Candidate) (Candidate, error) {
	var ok []Candidate
	var reasons []string
	for _, c := range cands {
		if err := p.Suitable(c); err != nil {
			reasons = append(reasons, fmt.Sprintf("device %d (%s): %v", c.Index, c.Name, err))
			continue
		}
		ok = append(ok, c)
	}
	if len(ok) == 0 {
		if len(reasons) == 0 {
			return Candidate{}, errors.Wrap(ErrNoSuitableDevice, "no devices")
		}
		return Candidate{}, errors.Wrapf(ErrNoSuitableDevice, "%s", strings.Join(reasons, "; "))
	}
	sort.SliceStable(ok, func(i, j int) bool {
		return p.Score(ok[i]) > p.Score(ok[j])
	})
	return ok[0], nil
}

package devsel_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hellotriangle/internal/devsel"
)

func candidate(idx int, typ devsel.DeviceType) devsel.Candidate {
	return devsel.Candidate{
		Index:            idx,
		Name:             typ.String(),
		Type:             typ,
		GraphicsQueue:    true,
		PresentQueue:     true,
		Extensions:       []string{devsel.SwapchainExtension},
		FormatCount:      2,
		PresentModeCount: 1,
	}
}

func TestPickPrefersDiscrete(t *testing.T) {
	p := devsel.DefaultPolicy()
	got, err := p.Pick([]devsel.Candidate{
		candidate(0, devsel.TypeCPU),
		candidate(1, devsel.TypeIntegrated),
		candidate(2, devsel.TypeDiscrete),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, got.Index)
}

func TestPickTiesKeepOrder(t *testing.T) {
	p := devsel.DefaultPolicy()
	got, err := p.Pick([]devsel.Candidate{
		candidate(0, devsel.TypeIntegrated),
		candidate(1, devsel.TypeIntegrated),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, got.Index)
}

func TestSuitable(t *testing.T) {
	p := devsel.DefaultPolicy()

	c := candidate(0, devsel.TypeIntegrated)
	assert.NoError(t, p.Suitable(c))

	c.PresentQueue = false
	assert.ErrorIs(t, p.Suitable(c), devsel.ErrNoQueues)

	c = candidate(0, devsel.TypeIntegrated)
	c.Extensions = nil
	err := p.Suitable(c)
	assert.ErrorIs(t, err, devsel.ErrMissingExtension)
	assert.Contains(t, err.Error(), devsel.SwapchainExtension)

	c = candidate(0, devsel.TypeIntegrated)
	c.PresentModeCount = 0
	assert.ErrorIs(t, p.Suitable(c), devsel.ErrNoSwapchainSupport)
}

func TestStrictPolicy(t *testing.T) {
	p := devsel.DefaultPolicy()
	p.RequireDiscrete = true
	p.RequireGeometryShader = true

	integrated := candidate(0, devsel.TypeIntegrated)
	integrated.GeometryShader = true
	assert.ErrorIs(t, p.Suitable(integrated), devsel.ErrNotDiscrete)

	discrete := candidate(1, devsel.TypeDiscrete)
	assert.ErrorIs(t, p.Suitable(discrete), devsel.ErrNoGeometryShader)

	discrete.GeometryShader = true
	got, err := p.Pick([]devsel.Candidate{integrated, discrete})
	require.NoError(t, err)
	assert.Equal(t, 1, got.Index)
}

func TestPickNothingSuitable(t *testing.T) {
	p := devsel.DefaultPolicy()
	p.RequireDiscrete = true

	_, err := p.Pick([]devsel.Candidate{candidate(0, devsel.TypeIntegrated)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, devsel.ErrNoSuitableDevice))
	assert.Contains(t, err.Error(), "device 0 (integrated)")
	assert.Contains(t, err.Error(), "not a discrete GPU")

	_, err = p.Pick(nil)
	assert.ErrorIs(t, err, devsel.ErrNoSuitableDevice)
}

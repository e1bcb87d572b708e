package introspect_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hellotriangle/internal/introspect"
)

type Bool32 uint32

type limits struct {
	MaxImageDimension2D uint32
	PointSizeRange      [2]float32
}

type props struct {
	DeviceName     [16]byte
	GeometryShader bool
	SamplerAniso   Bool32
	Limits         limits
	Families       []int
	hidden         int
}

func TestRows(t *testing.T) {
	var name [16]byte
	copy(name[:], "llvmpipe")
	p := &props{
		DeviceName:     name,
		GeometryShader: true,
		Limits:         limits{MaxImageDimension2D: 16384, PointSizeRange: [2]float32{1, 255.5}},
		Families:       []int{0, 2},
		hidden:         7,
	}

	want := [][2]string{
		{"DeviceName", "llvmpipe"},
		{"GeometryShader", "YES"},
		{"SamplerAniso", "NO"},
		{"Limits.MaxImageDimension2D", "16384"},
		{"Limits.PointSizeRange", "1, 255.5"},
		{"Families", "0, 2"},
	}
	assert.Equal(t, want, introspect.Rows(p))
}

func TestRowsNil(t *testing.T) {
	var p *props
	assert.Empty(t, introspect.Rows(p))
	assert.Empty(t, introspect.Rows(nil))
}

func TestTable(t *testing.T) {
	out := introspect.Table("FEATURES", struct {
		GeometryShader     bool
		TessellationShader bool
	}{GeometryShader: true})

	require.NotEmpty(t, out)
	assert.Contains(t, out, "FEATURES")
	assert.Contains(t, out, "GeometryShader")
	assert.Contains(t, out, "YES")
	assert.Contains(t, out, "NO")
}

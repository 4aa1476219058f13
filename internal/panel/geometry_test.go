package panel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeometryDerived(t *testing.T) {
	g := Geometry{RowModules: 3, ColModules: 2, ColorBits: 8}
	assert.Equal(t, 60, g.Rows())
	assert.Equal(t, 40, g.Cols())
	assert.Equal(t, 2400, g.FrameSize())
	assert.Equal(t, 3, g.WordsPerRow())
	assert.Equal(t, 180, g.WordsPerPlane())
	assert.NoError(t, g.Validate())
	assert.NoError(t, Default().Validate())
}

func TestGeometryValidate(t *testing.T) {
	tests := []struct {
		name string
		g    Geometry
	}{
		{"no row modules", Geometry{RowModules: 0, ColModules: 1, ColorBits: 8}},
		{"no col modules", Geometry{RowModules: 1, ColModules: 0, ColorBits: 8}},
		{"zero bits", Geometry{RowModules: 1, ColModules: 1, ColorBits: 0}},
		{"nine bits", Geometry{RowModules: 1, ColModules: 1, ColorBits: 9}},
		{"too many rows", Geometry{RowModules: 13, ColModules: 1, ColorBits: 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.g.Validate()
			assert.True(t, errors.Is(err, ErrGeometry), "got %v", err)
		})
	}
}

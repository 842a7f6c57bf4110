package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShapeAxes(t *testing.T) {
	tests := []struct {
		name     string
		shape    Shape
		num      int
		channels int
		spatial  int
	}{
		{"NCHW", Shape{2, 2, 3, 4}, 2, 2, 12},
		{"NC", Shape{5, 2}, 5, 2, 1},
		{"NCL", Shape{1, 3, 7}, 1, 3, 7},
		{"labels N1HW", Shape{2, 1, 3, 4}, 2, 1, 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.num, tt.shape.Num())
			assert.Equal(t, tt.channels, tt.shape.Channels())
			assert.Equal(t, tt.spatial, tt.shape.SpatialDim())
			assert.Equal(t, tt.num*tt.channels*tt.spatial, tt.shape.NumElements())
		})
	}
}

func TestShapeValidate(t *testing.T) {
	assert.NoError(t, Shape{1, 2, 1, 4}.Validate())
	assert.Error(t, Shape{1, -2}.Validate())
}

func TestShapeString(t *testing.T) {
	assert.Equal(t, "[2 2 1 4]", Shape{2, 2, 1, 4}.String())
	assert.True(t, Shape{2, 2}.Equal(Shape{2, 2}.Clone()))
}

func TestParseDataType(t *testing.T) {
	for _, dt := range []DataType{Float32, Float64, Int32} {
		got, err := ParseDataType(dt.String())
		assert.NoError(t, err)
		assert.Equal(t, dt, got)
	}

	_, err := ParseDataType("bfloat16")
	assert.Error(t, err)
}

package valueobjects

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPosition(t *testing.T) {
	tests := []struct {
		name    string
		x, y    float64
		wantErr bool
	}{
		{name: "origin", x: 0, y: 0},
		{name: "negative", x: -10.5, y: 3},
		{name: "nan", x: math.NaN(), y: 0, wantErr: true},
		{name: "inf", x: 0, y: math.Inf(1), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPosition(tt.x, tt.y)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.x, p.X)
			assert.Equal(t, tt.y, p.Y)
		})
	}
}

func TestNewViewport(t *testing.T) {
	v, err := NewViewport(10, -20, 1.5)
	require.NoError(t, err)
	assert.Equal(t, Viewport{X: 10, Y: -20, Zoom: 1.5}, v)

	_, err = NewViewport(0, 0, 0)
	assert.Error(t, err)

	assert.Equal(t, Viewport{Zoom: 1}, DefaultViewport())
}

func TestParseNodeType(t *testing.T) {
	tests := []struct {
		in      string
		want    NodeType
		label   string
		wantErr bool
	}{
		{in: "", want: NodeTypeDefault, label: "Default"},
		{in: "input", want: NodeTypeInput, label: "Input"},
		{in: "output", want: NodeTypeOutput, label: "Output"},
		{in: "process", want: NodeTypeProcess, label: "Process"},
		{in: "group", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseNodeType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.label, got.Label())
		})
	}
}

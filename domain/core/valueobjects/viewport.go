package valueobjects

import "fmt"

// Viewport is the canvas camera: pan offset and zoom factor.
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// DefaultViewport is the camera of a freshly opened canvas.
func DefaultViewport() Viewport {
	return Viewport{X: 0, Y: 0, Zoom: 1}
}

// NewViewport validates the camera state. Zoom must be positive.
func NewViewport(x, y, zoom float64) (Viewport, error) {
	if !finite(x) || !finite(y) || !finite(zoom) {
		return Viewport{}, fmt.Errorf("viewport must be finite")
	}
	if zoom <= 0 {
		return Viewport{}, fmt.Errorf("viewport zoom must be positive, got %v", zoom)
	}
	return Viewport{X: x, Y: y, Zoom: zoom}, nil
}

package valueobjects

import (
	"fmt"
	"math"
)

// Position is a point on the canvas in flow coordinates.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NewPosition rejects NaN and infinite coordinates.
func NewPosition(x, y float64) (Position, error) {
	if !finite(x) || !finite(y) {
		return Position{}, fmt.Errorf("position must be finite, got (%v, %v)", x, y)
	}
	return Position{X: x, Y: y}, nil
}

// Translate returns p moved by (dx, dy).
func (p Position) Translate(dx, dy float64) Position {
	return Position{X: p.X + dx, Y: p.Y + dy}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

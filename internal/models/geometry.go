package models

import (
	"fmt"
	"math"
)

// Rect is an axis-aligned box in pixel coordinates of the source frame.
// A valid Rect has X1 < X2 and Y1 < Y2.
type Rect struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// NewRectXYWH builds a Rect from a top-left corner and a size, the format
// interactive ROI selectors return.
func NewRectXYWH(x, y, w, h float64) Rect {
	return Rect{X1: x, Y1: y, X2: x + w, Y2: y + h}
}

func (r Rect) Width() float64  { return r.X2 - r.X1 }
func (r Rect) Height() float64 { return r.Y2 - r.Y1 }

// Area returns the box area, or 0 for a degenerate box.
func (r Rect) Area() float64 {
	if !r.IsValid() {
		return 0
	}
	return r.Width() * r.Height()
}

// IsValid reports whether the box has finite coordinates and positive area.
func (r Rect) IsValid() bool {
	for _, v := range [...]float64{r.X1, r.Y1, r.X2, r.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return r.X1 < r.X2 && r.Y1 < r.Y2
}

// Validate returns ErrInvalidRect wrapped with the offending coordinates.
func (r Rect) Validate() error {
	if !r.IsValid() {
		return fmt.Errorf("%w: (%g,%g,%g,%g)", ErrInvalidRect, r.X1, r.Y1, r.X2, r.Y2)
	}
	return nil
}

// Intersect returns the overlapping region of r and o. The result is not
// valid when the boxes do not overlap.
func (r Rect) Intersect(o Rect) Rect {
	return Rect{
		X1: math.Max(r.X1, o.X1),
		Y1: math.Max(r.Y1, o.Y1),
		X2: math.Min(r.X2, o.X2),
		Y2: math.Min(r.Y2, o.Y2),
	}
}

func (r Rect) String() string {
	return fmt.Sprintf("(%g,%g,%g,%g)", r.X1, r.Y1, r.X2, r.Y2)
}

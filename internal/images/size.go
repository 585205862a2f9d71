package images

import "math"

const (
	// CellAspect corrects for terminal cells being about twice as tall as wide.
	CellAspect = 2.0

	// MaxWidth caps preview width in cells regardless of the viewport.
	MaxWidth = 60

	MinHeight = 4
	MaxHeight = 20

	// PlaceholderHeight is the height reserved for an image that is not loaded yet.
	PlaceholderHeight = 4
)

// DisplaySize converts a pixel size into display cells for a preview no wider
// than maxWidth. Height is clamped to [MinHeight, MaxHeight]; when the clamp
// applies the width is recomputed from the clamped height.
func DisplaySize(pixelW, pixelH, maxWidth int) (int, int) {
	if pixelW <= 0 || pixelH <= 0 {
		return maxWidth, MinHeight
	}
	dw := min(maxWidth, MaxWidth)
	if dw < 1 {
		dw = 1
	}

	ratio := float64(pixelW) / float64(pixelH) * CellAspect
	raw := int(math.Round(float64(dw) / ratio))
	h := max(MinHeight, min(raw, MaxHeight))

	w := dw
	if h != raw {
		w = min(int(float64(h)*ratio), dw)
	}
	return max(w, 1), h
}

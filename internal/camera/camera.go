// Package camera holds the horizontal pan state of the wraparound world map.
//
// The map is drawn as three side-by-side copies so the offset can grow without
// bound in either direction; Normalized folds it back into one map width.
package camera

import "math"

const (
	// DragThreshold is the pointer travel, in pixels, that turns a press into a drag.
	DragThreshold = 3.0
	// Ease is the fraction of the remaining distance covered per animation frame.
	Ease = 0.12
	// SnapEpsilon ends an animation by snapping exactly onto the target.
	SnapEpsilon = 0.5
)

type Camera struct {
	Offset float64

	dragging    bool
	dragged     bool
	startX      float64
	startOffset float64

	animating bool
	target    float64
}

// PointerDown starts a drag and cancels any pan animation in flight.
func (c *Camera) PointerDown(x float64) {
	c.animating = false
	c.dragging = true
	c.dragged = false
	c.startX = x
	c.startOffset = c.Offset
}

// PointerMove updates the offset while dragging and reports whether it did.
func (c *Camera) PointerMove(x float64) bool {
	if !c.dragging {
		return false
	}
	dx := x - c.startX
	if math.Abs(dx) > DragThreshold {
		c.dragged = true
	}
	c.Offset = c.startOffset + dx
	return true
}

func (c *Camera) PointerUp()    { c.dragging = false }
func (c *Camera) PointerLeave() { c.dragging = false }

func (c *Camera) Dragging() bool { return c.dragging }

// Dragged reports whether the last press moved far enough to count as a drag,
// in which case the release must not be treated as a click.
func (c *Camera) Dragged() bool { return c.dragged }

// PanTo animates toward whichever copy of raw (raw-w, raw, raw+w) is closest
// to the current offset, replacing any previous animation. It returns the
// chosen target.
func (c *Camera) PanTo(raw, mapWidth float64) float64 {
	t := NearestCopy(raw, c.Offset, mapWidth)
	c.target = t
	c.animating = true
	return t
}

func (c *Camera) Cancel() { c.animating = false }

func (c *Camera) Animating() bool { return c.animating }

func (c *Camera) Target() (float64, bool) { return c.target, c.animating }

// Step advances the animation by one frame and reports whether it is still running.
func (c *Camera) Step() bool {
	if !c.animating {
		return false
	}
	diff := c.target - c.Offset
	if math.Abs(diff) < SnapEpsilon {
		c.Offset = c.target
		c.animating = false
		return false
	}
	c.Offset += diff * Ease
	return true
}

// Normalized folds the offset into [0, mapWidth).
func (c *Camera) Normalized(mapWidth float64) float64 {
	return Wrap(c.Offset, mapWidth)
}

// TileOrigins returns the left edge of the three map copies.
func (c *Camera) TileOrigins(mapWidth float64) [3]float64 {
	n := c.Normalized(mapWidth)
	return [3]float64{n - mapWidth, n, n + mapWidth}
}

func Wrap(v, w float64) float64 {
	if w <= 0 {
		return v
	}
	return math.Mod(math.Mod(v, w)+w, w)
}

// NearestCopy picks among raw-w, raw and raw+w the value closest to current.
// Ties keep the earlier candidate.
func NearestCopy(raw, current, w float64) float64 {
	if w <= 0 {
		return raw
	}
	best := raw - w
	for _, cand := range [2]float64{raw, raw + w} {
		if math.Abs(cand-current) < math.Abs(best-current) {
			best = cand
		}
	}
	return best
}

// AgentTarget is the raw offset that puts the centre of an avatar anchored at
// column col directly above screen position screenX.
func AgentTarget(screenX, originX float64, col int, cellSize float64) float64 {
	natural := originX + float64(col+1)*cellSize
	return screenX - natural
}

package placement

import "math"

const (
	DefaultWidth  = 100
	DefaultHeight = 50

	// MaxTrail caps the trail points kept per agent, newest first.
	MaxTrail = 10
)

type Cell struct {
	Col int `json:"col"`
	Row int `json:"row"`
}

type Grid struct {
	W int `json:"w"`
	H int `json:"h"`
}

func DefaultGrid() Grid { return Grid{W: DefaultWidth, H: DefaultHeight} }

func (g Grid) Valid() bool { return g.W >= 2 && g.H >= 2 }

// CellFor maps a coordinate to the top-left cell of a 2x2 avatar footprint.
func (g Grid) CellFor(lat, lon float64) Cell {
	col := int(math.Floor((lon + 180) / 360 * float64(g.W)))
	row := int(math.Floor((90 - lat) / 180 * float64(g.H)))
	return g.ClampAvatar(Cell{Col: col, Row: row})
}

// ClampAvatar keeps the 2x2 footprint inside the grid.
func (g Grid) ClampAvatar(c Cell) Cell {
	return Cell{Col: clamp(c.Col, 0, g.W-2), Row: clamp(c.Row, 0, g.H-2)}
}

// ClampPoint keeps a 1x1 footprint inside the grid.
func (g Grid) ClampPoint(c Cell) Cell {
	return Cell{Col: clamp(c.Col, 0, g.W-1), Row: clamp(c.Row, 0, g.H-1)}
}

func (g Grid) In(c Cell) bool {
	return c.Col >= 0 && c.Col < g.W && c.Row >= 0 && c.Row < g.H
}

// Center returns the lon/lat of a cell centre.
func (g Grid) Center(c Cell) (lon, lat float64) {
	lon = (float64(c.Col)+0.5)*(360/float64(g.W)) - 180
	lat = 90 - (float64(c.Row)+0.5)*(180/float64(g.H))
	return lon, lat
}

func (g Grid) index(c Cell) int { return c.Row*g.W + c.Col }

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

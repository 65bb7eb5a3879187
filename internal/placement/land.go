package placement

import (
	"sync"

	"github.com/paulmach/orb"
)

// landRects approximate the continents as lon/lat boxes. Coarse on purpose:
// the map is decorative and coastlines are not expected to be accurate.
var landRects = []orb.Bound{
	rect(-170, -52, 24, 75),  // North America
	rect(-170, -130, 54, 72), // Alaska
	rect(-58, -18, 60, 84),   // Greenland
	rect(-24, -13, 63, 67),   // Iceland
	rect(-82, -34, -56, 12),  // South America
	rect(-9, 4, 36, 44),      // Iberia
	rect(-5, 8, 43, 52),      // France
	rect(-8, 2, 50, 59),      // British Isles
	rect(4, 32, 56, 72),      // Scandinavia
	rect(8, 32, 40, 56),      // Central Europe
	rect(7, 18, 37, 47),      // Italy
	rect(18, 28, 36, 46),     // Balkans
	rect(26, 45, 36, 43),     // Turkey
	rect(-17, 51, -35, 37),   // Africa
	rect(32, 60, 12, 30),     // Arabia
	rect(44, 75, 25, 40),     // Iran, Afghanistan
	rect(43, 50, -26, -12),   // Madagascar
	rect(60, 93, 6, 36),      // India
	rect(28, 65, 50, 75),     // Western Russia
	rect(60, 180, 50, 78),    // Siberia
	rect(50, 90, 36, 56),     // Central Asia
	rect(73, 135, 18, 53),    // China
	rect(126, 130, 34, 42),   // Korea
	rect(129, 146, 30, 46),   // Japan
	rect(92, 110, 0, 28),     // Southeast Asia
	rect(95, 110, -6, 8),     // Sumatra
	rect(105, 115, -9, -6),   // Java
	rect(108, 119, -5, 7),    // Borneo
	rect(118, 127, 4, 20),    // Philippines
	rect(131, 148, -10, 0),   // New Guinea
	rect(113, 154, -39, -11), // Australia
	rect(166, 178, -47, -34), // New Zealand
}

func rect(lonLo, lonHi, latLo, latHi float64) orb.Bound {
	return orb.Bound{Min: orb.Point{lonLo, latLo}, Max: orb.Point{lonHi, latHi}}
}

// IsLand reports whether a lon/lat point falls inside any landmass box.
func IsLand(lon, lat float64) bool {
	p := orb.Point{lon, lat}
	for _, b := range landRects {
		if b.Contains(p) {
			return true
		}
	}
	return false
}

// LandMask classifies every cell of a grid. Immutable once built.
type LandMask struct {
	grid  Grid
	cells []bool
}

func NewLandMask(g Grid) *LandMask {
	m := &LandMask{grid: g, cells: make([]bool, g.W*g.H)}
	for r := 0; r < g.H; r++ {
		for c := 0; c < g.W; c++ {
			lon, lat := g.Center(Cell{Col: c, Row: r})
			m.cells[r*g.W+c] = IsLand(lon, lat)
		}
	}
	return m
}

func (m *LandMask) Grid() Grid { return m.grid }

func (m *LandMask) Land(c Cell) bool {
	if !m.grid.In(c) {
		return false
	}
	return m.cells[m.grid.index(c)]
}

func (m *LandMask) Count() int {
	n := 0
	for _, v := range m.cells {
		if v {
			n++
		}
	}
	return n
}

var (
	maskMu    sync.Mutex
	maskCache = map[Grid]*LandMask{}
)

// LandMaskFor returns the shared mask for a grid size, building it on first use.
func LandMaskFor(g Grid) *LandMask {
	maskMu.Lock()
	defer maskMu.Unlock()
	if m, ok := maskCache[g]; ok {
		return m
	}
	m := NewLandMask(g)
	maskCache[g] = m
	return m
}

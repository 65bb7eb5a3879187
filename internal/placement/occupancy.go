package placement

// Occupancy is the set of cells claimed during one layout pass.
type Occupancy struct {
	cells map[Cell]struct{}
}

func NewOccupancy() *Occupancy {
	return &Occupancy{cells: map[Cell]struct{}{}}
}

func (o *Occupancy) Has(c Cell) bool {
	_, ok := o.cells[c]
	return ok
}

func (o *Occupancy) Claim(c Cell) { o.cells[c] = struct{}{} }

// ClaimBlock claims the 2x2 footprint anchored at c.
func (o *Occupancy) ClaimBlock(c Cell) {
	for _, f := range footprint(c) {
		o.Claim(f)
	}
}

// BlockFree reports whether the 2x2 footprint anchored at c is unclaimed.
func (o *Occupancy) BlockFree(c Cell) bool {
	for _, f := range footprint(c) {
		if o.Has(f) {
			return false
		}
	}
	return true
}

func (o *Occupancy) Len() int { return len(o.cells) }

func footprint(c Cell) [4]Cell {
	return [4]Cell{
		c,
		{Col: c.Col + 1, Row: c.Row},
		{Col: c.Col, Row: c.Row + 1},
		{Col: c.Col + 1, Row: c.Row + 1},
	}
}

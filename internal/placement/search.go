package placement

// avatarDirs is the BFS expansion order for avatar placement.
var avatarDirs = [8]Cell{
	{Col: 0, Row: 1},
	{Col: 0, Row: -1},
	{Col: 1, Row: 0},
	{Col: -1, Row: 0},
	{Col: 1, Row: 1},
	{Col: 1, Row: -1},
	{Col: -1, Row: 1},
	{Col: -1, Row: -1},
}

const (
	walkRounds    = 5
	walkRoundSeed = 97
	bfsLevels     = 2
)

// FindFreeCell returns the nearest anchor whose 2x2 footprint is unclaimed,
// searching outward from target. Avatars may sit on water.
func FindFreeCell(g Grid, target Cell, occ *Occupancy) (Cell, bool) {
	start := g.ClampAvatar(target)
	visited := map[Cell]struct{}{}
	queue := []Cell{start}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if _, seen := visited[c]; seen {
			continue
		}
		visited[c] = struct{}{}
		if occ.BlockFree(c) {
			return c, true
		}
		for _, d := range avatarDirs {
			n := g.ClampAvatar(Cell{Col: c.Col + d.Col, Row: c.Row + d.Row})
			if _, seen := visited[n]; !seen {
				queue = append(queue, n)
			}
		}
	}
	return Cell{}, false
}

// FindFreeTrailCell places a single trail point on an unclaimed land cell
// near target: the target itself, then a seeded walk over shuffled 3x3
// neighbourhoods, then a two-level BFS around the original target.
func FindFreeTrailCell(g Grid, mask *LandMask, target Cell, occ *Occupancy, baseSeed int) (Cell, bool) {
	valid := func(c Cell) bool { return mask.Land(c) && !occ.Has(c) }

	t := g.ClampPoint(target)
	if valid(t) {
		return t, true
	}

	center := t
	candidates := make([]Cell, 0, 9)
	for round := 0; round < walkRounds; round++ {
		candidates = candidates[:0]
		for dc := -1; dc <= 1; dc++ {
			for dr := -1; dr <= 1; dr++ {
				candidates = append(candidates, g.ClampPoint(Cell{Col: center.Col + dc, Row: center.Row + dr}))
			}
		}
		shuffled := SeededShuffle(candidates, baseSeed+round*walkRoundSeed)
		for _, c := range shuffled {
			if valid(c) {
				return c, true
			}
		}
		center = shuffled[0]
	}

	type item struct {
		cell  Cell
		level int
	}
	visited := map[Cell]struct{}{t: {}}
	var queue []item
	expand := func(c Cell, level int) {
		for dc := -1; dc <= 1; dc++ {
			for dr := -1; dr <= 1; dr++ {
				if dc == 0 && dr == 0 {
					continue
				}
				n := g.ClampPoint(Cell{Col: c.Col + dc, Row: c.Row + dr})
				if _, seen := visited[n]; seen {
					continue
				}
				visited[n] = struct{}{}
				queue = append(queue, item{cell: n, level: level})
			}
		}
	}
	expand(t, 1)
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		if valid(it.cell) {
			return it.cell, true
		}
		if it.level < bfsLevels {
			expand(it.cell, it.level+1)
		}
	}
	return Cell{}, false
}

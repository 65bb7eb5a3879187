package placement

import "math"

// SeededInt is a sine hash in [min, max]. Its exact arithmetic is kept stable
// so layouts match across renders and across implementations.
func SeededInt(seed, min, max int) int {
	x := math.Sin(float64(seed)*9301+49297) * 233280
	frac := x - math.Floor(x)
	return int(math.Floor(frac*float64(max-min+1))) + min
}

// SeededShuffle returns a shuffled copy of cells.
func SeededShuffle(cells []Cell, seed int) []Cell {
	out := make([]Cell, len(cells))
	copy(out, cells)
	for i := len(out) - 1; i > 0; i-- {
		j := SeededInt(seed+i*17, 0, i)
		if j < 0 {
			j = -j
		}
		out[i], out[j] = out[j], out[i]
	}
	return out
}

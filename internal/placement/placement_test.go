package placement

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"liferoom.ai/internal/model"
)

func coords(lat, lon float64) *[2]float64 { return &[2]float64{lat, lon} }

func day(agent string, round int, date string, loc model.Location) model.LifeDay {
	d, err := model.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return model.LifeDay{
		ID:            agent + "-" + date,
		AgentName:     agent,
		RoundNumber:   round,
		FictionalDate: d,
		Location:      loc,
	}
}

type staticLookup map[string][2]float64

func (s staticLookup) Lookup(city, country string) (float64, float64, bool) {
	v, ok := s[city]
	return v[0], v[1], ok
}

func TestCellForStaysInsideAvatarBounds(t *testing.T) {
	g := DefaultGrid()
	for lat := -90.0; lat <= 90; lat += 2.5 {
		for lon := -180.0; lon <= 180; lon += 2.5 {
			c := g.CellFor(lat, lon)
			if c.Col < 0 || c.Col > g.W-2 || c.Row < 0 || c.Row > g.H-2 {
				t.Fatalf("CellFor(%v,%v)=%+v out of bounds", lat, lon, c)
			}
		}
	}
	if c := g.CellFor(0, 0); c != (Cell{Col: 50, Row: 25}) {
		t.Fatalf("origin: got %+v", c)
	}
	if c := g.CellFor(-90, 180); c != (Cell{Col: 98, Row: 48}) {
		t.Fatalf("south-east corner: got %+v", c)
	}
}

func TestLandMask(t *testing.T) {
	m := LandMaskFor(DefaultGrid())
	if m != LandMaskFor(DefaultGrid()) {
		t.Fatalf("mask not cached")
	}
	paris := DefaultGrid().CellFor(48.85, 2.35)
	if !m.Land(paris) {
		t.Fatalf("paris %+v should be land", paris)
	}
	if m.Land(Cell{Col: 5, Row: 25}) {
		t.Fatalf("central pacific should be water")
	}
	if m.Land(Cell{Col: -1, Row: 0}) {
		t.Fatalf("out of grid must not be land")
	}
	if n := m.Count(); n == 0 || n == 100*50 {
		t.Fatalf("unexpected land count %d", n)
	}
}

func TestSeededIntRangeAndShuffle(t *testing.T) {
	for seed := -500; seed < 2000; seed++ {
		v := SeededInt(seed, -2, 2)
		if v < -2 || v > 2 {
			t.Fatalf("SeededInt(%d) = %d", seed, v)
		}
		if v != SeededInt(seed, -2, 2) {
			t.Fatalf("SeededInt not stable")
		}
	}

	in := []Cell{{0, 0}, {1, 0}, {2, 0}, {3, 0}, {4, 0}, {5, 0}, {6, 0}, {7, 0}, {8, 0}}
	a := SeededShuffle(in, 1234)
	b := SeededShuffle(in, 1234)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("shuffle not deterministic")
	}
	seen := map[Cell]int{}
	for _, c := range a {
		seen[c]++
	}
	for _, c := range in {
		if seen[c] != 1 {
			t.Fatalf("shuffle lost %+v: %v", c, a)
		}
	}
	if in[0] != (Cell{0, 0}) || in[8] != (Cell{8, 0}) {
		t.Fatalf("shuffle mutated its input")
	}
}

func TestFindFreeCellSecondAgentMovesAway(t *testing.T) {
	g := DefaultGrid()
	occ := NewOccupancy()
	first, ok := FindFreeCell(g, g.CellFor(0, 0), occ)
	if !ok || first != (Cell{Col: 50, Row: 25}) {
		t.Fatalf("first: %+v ok=%v", first, ok)
	}
	occ.ClaimBlock(first)

	second, ok := FindFreeCell(g, g.CellFor(0, 0), occ)
	if !ok {
		t.Fatalf("second not placed")
	}
	if second != (Cell{Col: 50, Row: 27}) {
		t.Fatalf("second: got %+v want {50 27}", second)
	}
	if !occ.BlockFree(second) {
		t.Fatalf("second overlaps first")
	}
}

func TestFindFreeCellExhausted(t *testing.T) {
	g := Grid{W: 4, H: 4}
	occ := NewOccupancy()
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			occ.Claim(Cell{Col: c, Row: r})
		}
	}
	if _, ok := FindFreeCell(g, Cell{Col: 1, Row: 1}, occ); ok {
		t.Fatalf("expected exhaustion")
	}
}

func TestFindFreeTrailCell(t *testing.T) {
	g := DefaultGrid()
	m := LandMaskFor(g)
	paris := g.CellFor(48.85, 2.35)
	occ := NewOccupancy()

	c, ok := FindFreeTrailCell(g, m, paris, occ, 42)
	if !ok || c != paris {
		t.Fatalf("direct hit: %+v ok=%v", c, ok)
	}
	occ.Claim(c)

	c2, ok := FindFreeTrailCell(g, m, paris, occ, 42)
	if !ok {
		t.Fatalf("neighbour not found")
	}
	if c2 == paris || !m.Land(c2) || occ.Has(c2) {
		t.Fatalf("bad neighbour %+v", c2)
	}
	c3, _ := FindFreeTrailCell(g, m, paris, occ, 42)
	if c3 != c2 {
		t.Fatalf("same seed gave %+v then %+v", c2, c3)
	}

	if _, ok := FindFreeTrailCell(g, m, Cell{Col: 5, Row: 25}, NewOccupancy(), 7); ok {
		t.Fatalf("open ocean should not place a trail point")
	}
}

func scenarioInput() Input {
	lk := staticLookup{"Beijing": {39.9, 116.4}}
	var days []model.LifeDay
	for i := 0; i < 15; i++ {
		date := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i*30)
		days = append(days, day("wen", i+1, model.DateString(date), model.Location{City: "Beijing", Country: "China"}))
	}
	days = append(days,
		day("ada", 1, "1980-05-01", model.Location{City: "Nowhere", Country: "Atlantis", Coordinates: coords(0, 0)}),
		day("bob", 1, "1981-05-01", model.Location{City: "Nowhere", Country: "Atlantis", Coordinates: coords(0, 0)}),
		day("bob", 2, "1981-06-01", model.Location{City: "Paris", Country: "France", Coordinates: coords(48.85, 2.35)}),
		day("zed", 1, "1999-01-01", model.Location{City: "Mystery", Country: "Unknown"}),
	)
	return Input{
		Grid: DefaultGrid(),
		Agents: []AgentRef{
			{Name: "ada", DisplayName: "Ada L."},
			{Name: "bob"},
			{Name: "wen"},
			{Name: "zed"},
			{Name: "ghost"},
		},
		LifeDays: days,
		Intersections: []model.Intersection{
			{InitiatingAgent: "ada", OtherAgent: "bob"},
			{InitiatingAgent: "wen", OtherAgent: "ada"},
		},
		Lookup: lk,
	}
}

func TestComputeScenario(t *testing.T) {
	l := Compute(scenarioInput())

	ada, ok := l.Agent("ada")
	if !ok || ada.Cell != (Cell{Col: 50, Row: 25}) {
		t.Fatalf("ada: %+v ok=%v", ada, ok)
	}
	if ada.DisplayName != "Ada L." || ada.Color != DefaultPalette[0] {
		t.Fatalf("ada presentation: %+v", ada)
	}
	bob, ok := l.Agent("bob")
	if !ok {
		t.Fatalf("bob missing")
	}
	// bob's newest day is Paris, so that is his home.
	if bob.Cell != l.Grid.CellFor(48.85, 2.35) || bob.DisplayName != "bob" {
		t.Fatalf("bob: %+v", bob)
	}
	if _, ok := l.Agent("ghost"); ok {
		t.Fatalf("agent without life days placed")
	}
	if len(l.Pending) != 1 || l.Pending[0].Name != "zed" || l.Pending[0].City != "Mystery" {
		t.Fatalf("pending: %+v", l.Pending)
	}

	wen := l.Trails["wen"]
	if len(wen) != MaxTrail {
		t.Fatalf("wen trail len %d", len(wen))
	}
	for i := 1; i < len(wen); i++ {
		if wen[i].Day.FictionalDate.After(wen[i-1].Day.FictionalDate) {
			t.Fatalf("trail not newest first")
		}
	}

	if got := l.Adjacency["ada"]; !reflect.DeepEqual(got, []string{"bob", "wen"}) {
		t.Fatalf("adjacency ada: %v", got)
	}
	if got := l.Adjacency["bob"]; !reflect.DeepEqual(got, []string{"ada"}) {
		t.Fatalf("adjacency bob: %v", got)
	}
}

func TestComputeSameCoordinatesDoNotOverlap(t *testing.T) {
	in := Input{Grid: DefaultGrid()}
	for _, n := range []string{"a1", "a2", "a3", "a4", "a5", "a6"} {
		in.Agents = append(in.Agents, AgentRef{Name: n})
		in.LifeDays = append(in.LifeDays, day(n, 1, "2000-01-01", model.Location{Coordinates: coords(0, 0)}))
	}
	l := Compute(in)
	if len(l.Agents) != 6 {
		t.Fatalf("placed %d agents", len(l.Agents))
	}
	claimed := map[Cell]string{}
	for _, a := range l.Agents {
		for _, f := range footprint(a.Cell) {
			if prev, ok := claimed[f]; ok {
				t.Fatalf("%s overlaps %s at %+v", a.Name, prev, f)
			}
			claimed[f] = a.Name
		}
	}
}

func TestComputeTrailsDeterministicUniqueOnLand(t *testing.T) {
	a := Compute(scenarioInput())
	b := Compute(scenarioInput())
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("layout differs between identical runs")
	}
	mask := LandMaskFor(a.Grid)
	seen := map[Cell]string{}
	for name, pts := range a.Trails {
		for _, p := range pts {
			if !mask.Land(p.Cell) {
				t.Fatalf("%s trail point %+v on water", name, p.Cell)
			}
			if prev, ok := seen[p.Cell]; ok {
				t.Fatalf("%s and %s share trail cell %+v", name, prev, p.Cell)
			}
			seen[p.Cell] = name
		}
	}
}

func TestComputeUsesResolvedFallback(t *testing.T) {
	in := scenarioInput()
	in.Resolved = map[string]orb.Point{"zed": {-74.0, 40.7}}
	l := Compute(in)
	zed, ok := l.Agent("zed")
	if !ok {
		t.Fatalf("zed not placed from resolved coordinates")
	}
	if zed.Cell != l.Grid.CellFor(40.7, -74.0) {
		t.Fatalf("zed cell %+v", zed.Cell)
	}
	if len(l.Pending) != 0 {
		t.Fatalf("pending should be empty: %+v", l.Pending)
	}
}

type countingGeocoder struct {
	calls int
	fail  bool
}

func (g *countingGeocoder) Geocode(ctx context.Context, city, country string) (float64, float64, error) {
	g.calls++
	if g.fail {
		return 0, 0, errors.New("upstream down")
	}
	return 40.7, -74.0, nil
}

func TestResolverDeduplicates(t *testing.T) {
	geo := &countingGeocoder{}
	r := NewResolver(geo)
	p := []PendingAgent{{Name: "zed", City: "Mystery", Country: "Unknown"}}
	if n := r.Resolve(context.Background(), p); n != 1 {
		t.Fatalf("resolved %d", n)
	}
	r.Resolve(context.Background(), p)
	if geo.calls != 1 {
		t.Fatalf("geocoder called %d times", geo.calls)
	}
	if pt := r.Resolved()["zed"]; pt.Lat() != 40.7 || pt.Lon() != -74.0 {
		t.Fatalf("resolved point %v", pt)
	}

	moved := []PendingAgent{{Name: "zed", City: "Elsewhere", Country: "Unknown"}}
	r.Resolve(context.Background(), moved)
	if geo.calls != 2 {
		t.Fatalf("new location should trigger one more lookup, calls=%d", geo.calls)
	}
}

func TestResolverFailureIsNotRetried(t *testing.T) {
	geo := &countingGeocoder{fail: true}
	r := NewResolver(geo)
	p := []PendingAgent{{Name: "zed", City: "Mystery", Country: "Unknown"}}
	r.Resolve(context.Background(), p)
	r.Resolve(context.Background(), p)
	if geo.calls != 1 {
		t.Fatalf("calls=%d", geo.calls)
	}
	if !r.Attempted(p[0]) || len(r.Resolved()) != 0 {
		t.Fatalf("unexpected resolver state")
	}
}

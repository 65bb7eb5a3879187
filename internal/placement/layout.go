package placement

import (
	"sort"
	"unicode/utf16"

	"github.com/paulmach/orb"

	"liferoom.ai/internal/model"
)

var DefaultPalette = []string{
	"#ff6b6b", "#4ecdc4", "#45b7d1", "#ffd93d", "#ff9f43",
	"#a29bfe", "#fd79a8", "#55efc4", "#74b9ff", "#e17055",
}

// Lookup resolves a city to coordinates from a static table.
type Lookup interface {
	Lookup(city, country string) (lat, lon float64, ok bool)
}

type AgentRef struct {
	Name        string
	DisplayName string
}

type Input struct {
	Grid          Grid
	Agents        []AgentRef
	LifeDays      []model.LifeDay
	Intersections []model.Intersection

	// Resolved holds fallback coordinates by agent name, as lon/lat points.
	Resolved map[string]orb.Point
	Lookup   Lookup

	Seed     int
	Palette  []string
	MaxTrail int
}

type PlacedAgent struct {
	Name        string        `json:"name"`
	DisplayName string        `json:"displayName"`
	Cell        Cell          `json:"cell"`
	Color       string        `json:"color"`
	ColorIndex  int           `json:"colorIndex"`
	Latest      model.LifeDay `json:"latestLifeDay"`
}

type TrailPoint struct {
	Cell Cell          `json:"cell"`
	Day  model.LifeDay `json:"day"`
}

// PendingAgent has life days but no resolvable coordinates yet.
type PendingAgent struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	City        string `json:"city"`
	Country     string `json:"country"`
}

type Layout struct {
	Grid      Grid                    `json:"grid"`
	Agents    []PlacedAgent           `json:"agents"`
	Trails    map[string][]TrailPoint `json:"trails"`
	Pending   []PendingAgent          `json:"pending"`
	Adjacency map[string][]string     `json:"adjacency"`
}

func (l Layout) Agent(name string) (PlacedAgent, bool) {
	for _, a := range l.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return PlacedAgent{}, false
}

// Compute builds a layout from scratch. It holds no state between calls, so
// identical input always yields an identical layout.
func Compute(in Input) Layout {
	g := in.Grid
	if !g.Valid() {
		g = DefaultGrid()
	}
	palette := in.Palette
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	maxTrail := in.MaxTrail
	if maxTrail <= 0 {
		maxTrail = MaxTrail
	}
	mask := LandMaskFor(g)

	days := DaysByAgent(in.LifeDays)
	out := Layout{
		Grid:      g,
		Agents:    []PlacedAgent{},
		Trails:    map[string][]TrailPoint{},
		Pending:   []PendingAgent{},
		Adjacency: Adjacency(in.Intersections),
	}

	occ := NewOccupancy()
	for i, a := range in.Agents {
		ds := days[a.Name]
		if len(ds) == 0 {
			continue
		}
		display := a.DisplayName
		if display == "" {
			display = a.Name
		}
		lat, lon, ok := firstCoords(ds, in.Lookup)
		if !ok {
			if p, hit := in.Resolved[a.Name]; hit {
				lon, lat, ok = p.Lon(), p.Lat(), true
			}
		}
		if !ok {
			out.Pending = append(out.Pending, PendingAgent{
				Name:        a.Name,
				DisplayName: display,
				City:        ds[0].Location.City,
				Country:     ds[0].Location.Country,
			})
			continue
		}
		cell, found := FindFreeCell(g, g.CellFor(lat, lon), occ)
		if !found {
			continue
		}
		occ.ClaimBlock(cell)
		out.Agents = append(out.Agents, PlacedAgent{
			Name:        a.Name,
			DisplayName: display,
			Cell:        cell,
			Color:       palette[i%len(palette)],
			ColorIndex:  i % len(palette),
			Latest:      ds[0],
		})
	}

	trailOcc := NewOccupancy()
	for _, a := range out.Agents {
		ds := days[a.Name]
		if len(ds) > maxTrail {
			ds = ds[:maxTrail]
		}
		units := utf16.Encode([]rune(a.Name))
		first := 0
		if len(units) > 0 {
			first = int(units[0])
		}
		points := []TrailPoint{}
		for idx, d := range ds {
			var target Cell
			if lat, lon, ok := dayCoords(d, in.Lookup); ok {
				target = g.CellFor(lat, lon)
			} else {
				seed := len(units)*31 + d.RoundNumber*7
				target = g.ClampPoint(Cell{
					Col: a.Cell.Col + SeededInt(seed, -2, 2),
					Row: a.Cell.Row + SeededInt(seed+1, -2, 2),
				})
			}
			base := first*37 + d.RoundNumber*113 + idx*59 + in.Seed
			cell, ok := FindFreeTrailCell(g, mask, target, trailOcc, base)
			if !ok {
				continue
			}
			trailOcc.Claim(cell)
			points = append(points, TrailPoint{Cell: cell, Day: d})
		}
		out.Trails[a.Name] = points
	}
	return out
}

// DaysByAgent groups life days by agent name, newest fictional date first.
func DaysByAgent(days []model.LifeDay) map[string][]model.LifeDay {
	m := map[string][]model.LifeDay{}
	for _, d := range days {
		m[d.AgentName] = append(m[d.AgentName], d)
	}
	for _, ds := range m {
		sort.SliceStable(ds, func(i, j int) bool {
			return ds[i].FictionalDate.After(ds[j].FictionalDate)
		})
	}
	return m
}

// Adjacency lists, for each agent, the agents it shares an intersection with.
func Adjacency(xs []model.Intersection) map[string][]string {
	set := map[string]map[string]struct{}{}
	link := func(a, b string) {
		if set[a] == nil {
			set[a] = map[string]struct{}{}
		}
		set[a][b] = struct{}{}
	}
	for _, x := range xs {
		link(x.InitiatingAgent, x.OtherAgent)
		link(x.OtherAgent, x.InitiatingAgent)
	}
	out := make(map[string][]string, len(set))
	for k, v := range set {
		names := make([]string, 0, len(v))
		for n := range v {
			names = append(names, n)
		}
		sort.Strings(names)
		out[k] = names
	}
	return out
}

func firstCoords(days []model.LifeDay, lk Lookup) (lat, lon float64, ok bool) {
	for _, d := range days {
		if lat, lon, ok = dayCoords(d, lk); ok {
			return lat, lon, true
		}
	}
	return 0, 0, false
}

func dayCoords(d model.LifeDay, lk Lookup) (lat, lon float64, ok bool) {
	if lat, lon, ok = d.Location.LatLon(); ok {
		return lat, lon, true
	}
	if lk == nil {
		return 0, 0, false
	}
	return lk.Lookup(d.Location.City, d.Location.Country)
}

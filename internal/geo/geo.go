// Package geo resolves city names to coordinates from a small embedded table.
package geo

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed cities.yaml
var citiesYAML []byte

type City struct {
	City    string   `yaml:"city"`
	Country string   `yaml:"country"`
	Lat     float64  `yaml:"lat"`
	Lon     float64  `yaml:"lon"`
	Aliases []string `yaml:"aliases"`
}

type Country struct {
	Country string   `yaml:"country"`
	Lat     float64  `yaml:"lat"`
	Lon     float64  `yaml:"lon"`
	Aliases []string `yaml:"aliases"`
}

type file struct {
	Cities    []City    `yaml:"cities"`
	Countries []Country `yaml:"countries"`
}

type point struct{ lat, lon float64 }

// Table answers lookups by "city|country", then city alone, then country.
type Table struct {
	byPair    map[string]point
	byCity    map[string]point
	byCountry map[string]point
}

func Parse(raw []byte) (*Table, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("cities.yaml: %w", err)
	}
	t := &Table{
		byPair:    map[string]point{},
		byCity:    map[string]point{},
		byCountry: map[string]point{},
	}
	for _, c := range f.Cities {
		if c.City == "" {
			return nil, fmt.Errorf("cities.yaml: entry without city")
		}
		p := point{c.Lat, c.Lon}
		for _, name := range append([]string{c.City}, c.Aliases...) {
			t.byPair[pairKey(name, c.Country)] = p
			if _, dup := t.byCity[norm(name)]; !dup {
				t.byCity[norm(name)] = p
			}
		}
	}
	for _, c := range f.Countries {
		p := point{c.Lat, c.Lon}
		for _, name := range append([]string{c.Country}, c.Aliases...) {
			t.byCountry[norm(name)] = p
		}
	}
	return t, nil
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the embedded table.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := Parse(citiesYAML)
		if err != nil {
			panic(err)
		}
		defaultTable = t
	})
	return defaultTable
}

func (t *Table) Lookup(city, country string) (lat, lon float64, ok bool) {
	if p, hit := t.byPair[pairKey(city, country)]; hit {
		return p.lat, p.lon, true
	}
	if p, hit := t.byCity[norm(city)]; hit && norm(city) != "" {
		return p.lat, p.lon, true
	}
	if p, hit := t.byCountry[norm(country)]; hit && norm(country) != "" {
		return p.lat, p.lon, true
	}
	return 0, 0, false
}

func (t *Table) Len() int { return len(t.byPair) }

func pairKey(city, country string) string { return norm(city) + "|" + norm(country) }

func norm(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

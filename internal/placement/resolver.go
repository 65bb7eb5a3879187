package placement

import (
	"context"
	"sync"

	"github.com/paulmach/orb"
)

// Geocoder is the best-effort coordinate fallback, usually the /api/geocode endpoint.
type Geocoder interface {
	Geocode(ctx context.Context, city, country string) (lat, lon float64, err error)
}

// Resolver issues one fallback lookup per agent and location. Attempts are
// remembered even when they fail and are never retried.
type Resolver struct {
	geo Geocoder

	mu       sync.Mutex
	attempts map[string]struct{}
	resolved map[string]orb.Point
}

func NewResolver(geo Geocoder) *Resolver {
	return &Resolver{
		geo:      geo,
		attempts: map[string]struct{}{},
		resolved: map[string]orb.Point{},
	}
}

func attemptKey(p PendingAgent) string {
	return p.Name + "::" + p.City + "::" + p.Country
}

// Resolve looks up every pending agent not tried before and reports how many
// new coordinates were found.
func (r *Resolver) Resolve(ctx context.Context, pending []PendingAgent) int {
	found := 0
	for _, p := range pending {
		if ctx.Err() != nil {
			return found
		}
		key := attemptKey(p)
		r.mu.Lock()
		_, tried := r.attempts[key]
		r.attempts[key] = struct{}{}
		r.mu.Unlock()
		if tried || r.geo == nil {
			continue
		}
		lat, lon, err := r.geo.Geocode(ctx, p.City, p.Country)
		if err != nil {
			continue
		}
		r.mu.Lock()
		if _, ok := r.resolved[p.Name]; !ok {
			r.resolved[p.Name] = orb.Point{lon, lat}
			found++
		}
		r.mu.Unlock()
	}
	return found
}

// Resolved returns a copy suitable for Input.Resolved.
func (r *Resolver) Resolved() map[string]orb.Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]orb.Point, len(r.resolved))
	for k, v := range r.resolved {
		out[k] = v
	}
	return out
}

func (r *Resolver) Attempted(p PendingAgent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.attempts[attemptKey(p)]
	return ok
}

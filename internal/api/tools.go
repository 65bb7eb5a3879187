package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"liferoom.ai/internal/persistence/store"
	"liferoom.ai/internal/photos"
	"liferoom.ai/internal/placement"
	"liferoom.ai/internal/protocol"
)

// handleGeocode answers with a bare {lat, lon} object, the shape map clients
// consume directly. The static table is consulted before the model.
func (s *Server) handleGeocode(rw http.ResponseWriter, r *http.Request) {
	var body struct {
		City    string `json:"city"`
		Country string `json:"country"`
	}
	raw, perr := s.readBody(rw, r, protocol.SchemaGeocode)
	if perr == nil && json.Unmarshal(raw, &body) != nil {
		perr = protocol.NewError(protocol.ErrBadRequest, "Invalid JSON body", "")
	}
	if perr != nil || strings.TrimSpace(body.City) == "" {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "city required"})
		return
	}
	if s.Lookup != nil {
		if lat, lon, ok := s.Lookup.Lookup(body.City, body.Country); ok {
			writeJSON(rw, http.StatusOK, map[string]float64{"lat": lat, "lon": lon})
			return
		}
	}
	if s.Geocoder == nil {
		writeJSON(rw, http.StatusInternalServerError, map[string]string{"error": "could not parse coordinates"})
		return
	}
	lat, lon, err := s.Geocoder.Geocode(r.Context(), body.City, body.Country)
	if err != nil {
		s.printf("geocode city=%q country=%q: %v", body.City, body.Country, err)
		writeJSON(rw, http.StatusInternalServerError, map[string]string{"error": "could not parse coordinates"})
		return
	}
	writeJSON(rw, http.StatusOK, map[string]float64{"lat": lat, "lon": lon})
}

func (s *Server) handlePhotoProxy(rw http.ResponseWriter, r *http.Request) {
	body, ct, err := s.Fetcher.Fetch(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		status, msg := http.StatusBadGateway, "Failed to fetch image"
		switch {
		case errors.Is(err, photos.ErrMissingURL):
			status, msg = http.StatusBadRequest, "Missing url parameter"
		case errors.Is(err, photos.ErrInvalidURL):
			status, msg = http.StatusBadRequest, "Invalid URL"
		case errors.Is(err, photos.ErrNotHTTPS):
			status, msg = http.StatusBadRequest, "Only HTTPS URLs are allowed"
		case errors.Is(err, photos.ErrImageTooBig):
			msg = "Image too large"
		}
		writeJSON(rw, status, map[string]string{"error": msg})
		return
	}
	h := rw.Header()
	h.Set("Content-Type", ct)
	h.Set("Cache-Control", "public, max-age=86400")
	h.Set("Access-Control-Allow-Origin", "*")
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write(body)
}

func (s *Server) handleGetSettings(rw http.ResponseWriter, r *http.Request) {
	st, err := s.Store.Settings(r.Context())
	if err != nil {
		writeErr(rw, errInternal("Failed to fetch settings", err))
		return
	}
	writeOK(rw, http.StatusOK, map[string]any{"flickrApiKey": nullable(st.FlickrAPIKey)})
}

func (s *Server) handlePatchSettings(rw http.ResponseWriter, r *http.Request) {
	raw, perr := s.readBody(rw, r, protocol.SchemaSettings)
	if perr != nil {
		writeErr(rw, perr)
		return
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		writeErr(rw, protocol.NewError(protocol.ErrBadRequest, "Invalid JSON body", err.Error()))
		return
	}
	// Absent leaves the key alone; null clears it.
	var key *string
	if v, ok := fields["flickrApiKey"]; ok {
		var str *string
		if err := json.Unmarshal(v, &str); err != nil {
			writeErr(rw, protocol.NewError(protocol.ErrValidation, "Invalid flickrApiKey", err.Error()))
			return
		}
		empty := ""
		if str == nil {
			str = &empty
		}
		key = str
	}
	st, err := s.Store.PatchSettings(r.Context(), key, s.now().UTC())
	if err != nil {
		writeErr(rw, errInternal("Failed to update settings", err))
		return
	}
	writeOK(rw, http.StatusOK, map[string]any{"flickrApiKey": nullable(st.FlickrAPIKey)})
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *Server) handleAdminStats(rw http.ResponseWriter, r *http.Request) {
	st, err := s.Store.Stats(r.Context())
	if err != nil {
		writeErr(rw, errInternal("Failed to fetch stats", err))
		return
	}
	writeOK(rw, http.StatusOK, map[string]any{
		"agents":        map[string]int{"total": st.Agents, "claimed": st.Claimed},
		"personas":      map[string]int{"total": st.Personas},
		"lifeDays":      map[string]int{"total": st.LifeDays},
		"intersections": map[string]int{"total": st.Intersections},
		"recentAgents":  st.RecentAgents,
	})
}

// layoutFetchCap bounds how much of the room one layout request loads.
const layoutFetchCap = 5000

// handleLayout computes the map server-side. With resolve=true, agents whose
// coordinates are unknown go through the geocode fallback once each.
func (s *Server) handleLayout(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agents, _, err := s.Store.ListAgents(ctx, store.AgentQuery{Sort: store.SortNew, Limit: layoutFetchCap})
	if err != nil {
		writeErr(rw, errInternal("Failed to build layout", err))
		return
	}
	days, _, err := s.Store.ListLifeDays(ctx, store.LifeDayQuery{Sort: store.SortReal, Limit: layoutFetchCap})
	if err != nil {
		writeErr(rw, errInternal("Failed to build layout", err))
		return
	}
	xs, _, err := s.Store.ListIntersections(ctx, "", layoutFetchCap, 0)
	if err != nil {
		writeErr(rw, errInternal("Failed to build layout", err))
		return
	}
	// Display names are cosmetic; a failed lookup falls back to agent names.
	names, _ := s.Store.DisplayNames(ctx)
	refs := make([]placement.AgentRef, 0, len(agents))
	for _, a := range agents {
		refs = append(refs, placement.AgentRef{Name: a.Name, DisplayName: names[a.Name]})
	}

	g := s.opts.Room.Grid
	in := placement.Input{
		Grid:          placement.Grid{W: g.Width, H: g.Height},
		Agents:        refs,
		LifeDays:      days,
		Intersections: xs,
		Lookup:        s.Lookup,
		Palette:       g.Palette,
		MaxTrail:      g.MaxTrail,
	}
	if s.resolver != nil {
		in.Resolved = s.resolver.Resolved()
	}
	layout := placement.Compute(in)
	if len(layout.Pending) > 0 && s.resolver != nil && r.URL.Query().Get("resolve") == "true" {
		if s.resolver.Resolve(ctx, layout.Pending) > 0 {
			in.Resolved = s.resolver.Resolved()
			layout = placement.Compute(in)
		}
	}
	writeOK(rw, http.StatusOK, layout)
}

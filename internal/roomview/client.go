package roomview

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"liferoom.ai/internal/model"
)

// Data is everything the viewer draws from. A failed fetch leaves the
// corresponding slice empty.
type Data struct {
	Agents        []model.Agent
	LifeDays      []model.LifeDay
	Intersections []model.Intersection
	// DisplayNames holds persona display names by agent name.
	DisplayNames map[string]string
}

// Client reads the room over its public HTTP API.
type Client struct {
	base string
	http *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		base: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if !env.Success {
		return fmt.Errorf("%s: %s", path, env.Error)
	}
	return json.Unmarshal(env.Data, v)
}

// Fetch loads agents, life days and intersections. Each request fails on its
// own; the error reports the first failure.
func (c *Client) Fetch(ctx context.Context) (Data, error) {
	var (
		d        Data
		firstErr error
	)
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	var agents struct {
		Agents []model.Agent `json:"agents"`
	}
	keep(c.get(ctx, "/api/agents?limit=100&sort=active", &agents))
	d.Agents = agents.Agents

	var days struct {
		LifeDays []model.LifeDay `json:"lifeDays"`
	}
	keep(c.get(ctx, "/api/lifedays?limit=200", &days))
	d.LifeDays = days.LifeDays

	var xs struct {
		Intersections []model.Intersection `json:"intersections"`
	}
	keep(c.get(ctx, "/api/intersections?limit=500", &xs))
	d.Intersections = xs.Intersections

	d.DisplayNames = c.displayNames(ctx, d.Agents)
	return d, firstErr
}

// displayNames looks up personas for agents that have one. A missing persona
// only costs the agent its display name, so lookup errors are dropped.
func (c *Client) displayNames(ctx context.Context, agents []model.Agent) map[string]string {
	names := map[string]string{}
	for _, a := range agents {
		if !a.HasPersona {
			continue
		}
		var out struct {
			Persona model.Persona `json:"persona"`
		}
		if err := c.get(ctx, "/api/persona/"+url.PathEscape(a.Name), &out); err != nil {
			continue
		}
		if out.Persona.DisplayName != "" {
			names[a.Name] = out.Persona.DisplayName
		}
	}
	return names
}

// Geocode asks the server's geocode endpoint, which answers with a bare
// {lat, lon} object rather than the usual envelope.
func (c *Client) Geocode(ctx context.Context, city, country string) (lat, lon float64, err error) {
	body, _ := json.Marshal(map[string]string{"city": city, "country": country})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/geocode", bytes.NewReader(body))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	var out struct {
		Lat   *float64 `json:"lat"`
		Lon   *float64 `json:"lon"`
		Error string   `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out); err != nil {
		return 0, 0, err
	}
	if resp.StatusCode != http.StatusOK || out.Lat == nil || out.Lon == nil {
		return 0, 0, fmt.Errorf("geocode %s: %d %s", url.QueryEscape(city), resp.StatusCode, out.Error)
	}
	return *out.Lat, *out.Lon, nil
}

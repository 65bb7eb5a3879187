package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"liferoom.ai/internal/model"
)

// PersonaDraft is the model's proposal before it becomes a model.Persona.
type PersonaDraft struct {
	DisplayName   string                `json:"displayName"`
	BirthPlace    model.BirthPlace      `json:"birthPlace"`
	BirthDate     string                `json:"birthDate"`
	LifeFramework []model.FrameworkBand `json:"lifeFramework"`
}

func (d PersonaDraft) Validate() error {
	if strings.TrimSpace(d.DisplayName) == "" {
		return errors.New("persona draft: missing displayName")
	}
	if strings.TrimSpace(d.BirthPlace.City) == "" {
		return errors.New("persona draft: missing birthPlace.city")
	}
	if _, err := model.ParseDate(d.BirthDate); err != nil {
		return fmt.Errorf("persona draft: %w", err)
	}
	if len(d.LifeFramework) == 0 {
		return errors.New("persona draft: empty lifeFramework")
	}
	return nil
}

// LifeDayDraft is one generated day before photo lookup and persistence.
type LifeDayDraft struct {
	FictionalDate         string              `json:"fictionalDate"`
	FictionalAge          FlexInt             `json:"fictionalAge"`
	Location              model.Location      `json:"location"`
	Narrative             string              `json:"narrative"`
	ThoughtBubble         string              `json:"thoughtBubble"`
	PhotoSearchQuery      string              `json:"photoSearchQuery"`
	Interactions          []model.Interaction `json:"interactions"`
	IsTrajectoryDeviation bool                `json:"isTrajectoryDeviation"`
	DeviationContext      *string             `json:"deviationContext"`
}

func (d LifeDayDraft) Validate() error {
	if _, err := model.ParseDate(d.FictionalDate); err != nil {
		return fmt.Errorf("life day draft: %w", err)
	}
	if strings.TrimSpace(d.Location.City) == "" {
		return errors.New("life day draft: missing location.city")
	}
	if strings.TrimSpace(d.Narrative) == "" {
		return errors.New("life day draft: missing narrative")
	}
	return nil
}

// FlexInt accepts 34, 34.0 and "34".
type FlexInt int

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", s)
	}
	*f = FlexInt(math.Round(v))
	return nil
}

const personaSystem = `You create fictional human personas for AI agents.
Return ONLY valid JSON. No markdown, no explanation, nothing else.`

func personaPrompt(agentName string) string {
	return fmt.Sprintf(`Create a fictional human persona for an AI agent named %q.

Rules:
- displayName: realistic name that fits the birth country culture
- birthPlace: a REAL but small/obscure location (village, small town, remote area). NOT London, NYC, Beijing, Tokyo, Paris, or any capital city.
- birthDate: between 1965-01-01 and 2005-12-31
- lifeFramework: 5-8 age bands covering ages 0 to 30, with mundane realistic life events (school, moves, jobs, family). No heroics.

Return this exact JSON structure:
{
  "displayName": "string",
  "birthPlace": {
    "city": "string",
    "country": "string",
    "coordinates": [latitude, longitude],
    "placeDescription": "one sentence describing what kind of place this is"
  },
  "birthDate": "YYYY-MM-DD",
  "lifeFramework": [
    {"ageStart": 0, "ageEnd": 8, "location": "City, Country", "keyEvents": ["event 1", "event 2"]}
  ]
}`, agentName)
}

func (c *Client) GeneratePersona(ctx context.Context, agentName string) (PersonaDraft, error) {
	var d PersonaDraft
	text, err := c.Complete(ctx, personaSystem, personaPrompt(agentName))
	if err != nil {
		return d, err
	}
	if err := ExtractJSON(text, &d); err != nil {
		return d, err
	}
	return d, d.Validate()
}

const lifeDaySystem = `You write life chronicle diary entries for fictional people.
Return ONLY valid JSON. No markdown, no explanation, nothing else.`

func lifeDayPrompt(p model.Persona, otherDays string, existingDates []string) string {
	var fw strings.Builder
	for i, b := range p.LifeFramework {
		if i > 0 {
			fw.WriteByte('\n')
		}
		fmt.Fprintf(&fw, "  Age %d-%d | %s: %s", b.AgeStart, b.AgeEnd, b.Location, strings.Join(b.KeyEvents, " / "))
	}
	dates := "none yet"
	if len(existingDates) > 0 {
		dates = strings.Join(existingDates, ", ")
	}
	if strings.TrimSpace(otherDays) == "" {
		otherDays = "None yet, you are the first."
	}
	return fmt.Sprintf(`Write one life day entry for this person:

Name: %s
Born: %d in %s, %s
(%s)

Life framework:
%s

Dates already written (do NOT repeat these): %s

Other agents currently in the room (use for thoughtBubble inspiration if natural):
%s

Instructions:
- Pick one specific day from the life framework above
- narrative: 2-4 sentences, first person past tense, sensory and specific
- thoughtBubble: 1-2 sentences, present tense inner voice, may quietly reference another agent
- photoSearchQuery: a precise image search query to find a REAL documentary photograph.
  * Include the specific place name (city or region)
  * Include the exact decade or approximate year (e.g. "1990s" or "circa 1988")
  * Include ONE style term: "documentary photograph" OR "photojournalism" OR "street photography" OR "film photography"
  * Add a subject hint: "village life" OR "market" OR "daily life" OR "landscape" OR "people"
  * Do NOT include fictional character names
  * Example: "rural Vietnam Ha Giang 1988 village life film photography"
- interactions: empty array unless naturally referencing another agent from the room

Return this exact JSON:
{
  "fictionalDate": "YYYY-MM-DD",
  "fictionalAge": number,
  "location": {"city": "string", "country": "string", "coordinates": [latitude, longitude]},
  "narrative": "string",
  "thoughtBubble": "string",
  "photoSearchQuery": "string",
  "interactions": [],
  "isTrajectoryDeviation": false,
  "deviationContext": null
}`,
		p.DisplayName, p.BirthDate.Year(), p.BirthPlace.City, p.BirthPlace.Country,
		p.BirthPlace.PlaceDescription, fw.String(), dates, otherDays)
}

// GenerateLifeDay asks for one new day. otherDays is the room context, one
// line per recent day of another agent.
func (c *Client) GenerateLifeDay(ctx context.Context, p model.Persona, otherDays string, existingDates []string) (LifeDayDraft, error) {
	var d LifeDayDraft
	text, err := c.Complete(ctx, lifeDaySystem, lifeDayPrompt(p, otherDays, existingDates))
	if err != nil {
		return d, err
	}
	if err := ExtractJSON(text, &d); err != nil {
		return d, err
	}
	return d, d.Validate()
}

// SummarizeDays renders days as `@name (age N, city): "thought"` lines.
func SummarizeDays(days []model.LifeDay) string {
	lines := make([]string, 0, len(days))
	for _, d := range days {
		lines = append(lines, fmt.Sprintf("@%s (age %d, %s): %q", d.AgentName, d.FictionalAge, d.Location.City, d.ThoughtBubble))
	}
	return strings.Join(lines, "\n")
}

const geocodeSystem = `You are a geography expert. Given a city and country, return its approximate latitude and longitude.
Return ONLY valid JSON with exactly two fields: {"lat": number, "lon": number}
No explanation. No markdown.`

var ErrNoCoordinates = errors.New("could not parse coordinates")

// Geocode asks the model for approximate coordinates. Both fields must be
// JSON numbers.
func (c *Client) Geocode(ctx context.Context, city, country string) (lat, lon float64, err error) {
	if strings.TrimSpace(country) == "" {
		country = "unknown"
	}
	text, err := c.Complete(ctx, geocodeSystem, fmt.Sprintf("City: %s\nCountry: %s\nReturn coordinates JSON.", city, country))
	if err != nil {
		return 0, 0, err
	}
	for _, cand := range jsonCandidates(text) {
		var v struct {
			Lat json.RawMessage `json:"lat"`
			Lon json.RawMessage `json:"lon"`
		}
		if cand == "" || json.Unmarshal([]byte(cand), &v) != nil {
			continue
		}
		la, okLat := jsonNumber(v.Lat)
		lo, okLon := jsonNumber(v.Lon)
		if okLat && okLon {
			return la, lo, nil
		}
	}
	return 0, 0, ErrNoCoordinates
}

func jsonNumber(raw json.RawMessage) (float64, bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s[0] == '"' || s == "null" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

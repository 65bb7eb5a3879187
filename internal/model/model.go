package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	ClaimStatusPending = "pending_claim"
	ClaimStatusClaimed = "claimed"
)

type Agent struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	ClaimStatus string     `json:"claimStatus"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastActive  *time.Time `json:"lastActive,omitempty"`

	// Secrets never leave the server in API responses.
	APIKey     string `json:"-"`
	ClaimToken string `json:"-"`
	OwnerEmail string `json:"-"`

	HasPersona bool `json:"hasPersona"`
}

type BirthPlace struct {
	City             string     `json:"city"`
	Country          string     `json:"country"`
	Coordinates      [2]float64 `json:"coordinates"` // [lat, lon]
	PlaceDescription string     `json:"placeDescription"`
}

type FrameworkBand struct {
	AgeStart  int      `json:"ageStart"`
	AgeEnd    int      `json:"ageEnd"`
	Location  string   `json:"location"`
	KeyEvents []string `json:"keyEvents"`
}

type FrameworkChange struct {
	Version           int             `json:"version"`
	ChangedAt         time.Time       `json:"changedAt"`
	Reason            string          `json:"reason"`
	AttractedToAgent  string          `json:"attractedToAgent"`
	PreviousFramework []FrameworkBand `json:"previousFramework"`
}

type Persona struct {
	ID               string            `json:"id"`
	AgentID          string            `json:"agentId"`
	AgentName        string            `json:"agentName"`
	DisplayName      string            `json:"displayName"`
	BirthPlace       BirthPlace        `json:"birthPlace"`
	BirthDate        time.Time         `json:"birthDate"`
	LifeFramework    []FrameworkBand   `json:"lifeFramework"`
	FrameworkVersion int               `json:"frameworkVersion"`
	FrameworkHistory []FrameworkChange `json:"frameworkHistory"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// Location.Coordinates is [lat, lon] when the submitter supplied it.
type Location struct {
	City        string      `json:"city"`
	Country     string      `json:"country"`
	Coordinates *[2]float64 `json:"coordinates,omitempty"`
}

// LatLon reports the explicit coordinates when they are present and in range.
func (l Location) LatLon() (lat, lon float64, ok bool) {
	if l.Coordinates == nil {
		return 0, 0, false
	}
	lat, lon = l.Coordinates[0], l.Coordinates[1]
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return 0, 0, false
	}
	if math.Abs(lat) > 90 || math.Abs(lon) > 180 {
		return 0, 0, false
	}
	return lat, lon, true
}

const (
	PhotoSourceBrave  = "brave_search"
	PhotoSourceFlickr = "flickr"
	PhotoSourceManual = "manual"
)

type Photo struct {
	OriginalURL string `json:"originalUrl"`
	Caption     string `json:"caption"`
	SearchQuery string `json:"searchQuery"`
	Source      string `json:"source"`
}

type Interaction struct {
	WithAgentName string `json:"withAgentName"`
	Description   string `json:"description"`
	IsAttraction  bool   `json:"isAttraction"`
}

type LifeDay struct {
	ID                    string        `json:"id"`
	AgentID               string        `json:"agentId"`
	AgentName             string        `json:"agentName"`
	RoundNumber           int           `json:"roundNumber"`
	FictionalDate         time.Time     `json:"fictionalDate"`
	FictionalAge          int           `json:"fictionalAge"`
	Location              Location      `json:"location"`
	Narrative             string        `json:"narrative"`
	Photo                 Photo         `json:"photo"`
	ThoughtBubble         string        `json:"thoughtBubble"`
	Interactions          []Interaction `json:"interactions"`
	IsTrajectoryDeviation bool          `json:"isTrajectoryDeviation"`
	DeviationContext      string        `json:"deviationContext,omitempty"`
	CreatedAt             time.Time     `json:"createdAt"`
}

const (
	IntersectionCoincidental = "coincidental"
	IntersectionDeliberate   = "deliberate"
)

type Intersection struct {
	ID                  string    `json:"id"`
	InitiatingAgent     string    `json:"initiatingAgent"`
	OtherAgent          string    `json:"otherAgent"`
	InitiatingLifeDayID string    `json:"initiatingLifeDayId"`
	OtherLifeDayID      string    `json:"otherLifeDayId"`
	FictionalDateApprox string    `json:"fictionalDateApprox"`
	Location            string    `json:"location"`
	Type                string    `json:"type"`
	Narrative           string    `json:"narrative"`
	CreatedAt           time.Time `json:"createdAt"`
}

type Settings struct {
	FlickrAPIKey string    `json:"flickrApiKey,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ParseDate accepts plain calendar dates ("1983-04-12") and RFC3339 timestamps.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q", s)
	}
	return t.UTC(), nil
}

// DateString formats a fictional date the way agents submit it.
func DateString(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

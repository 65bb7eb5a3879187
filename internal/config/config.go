package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Room struct {
	Grid     GridConfig     `yaml:"grid"`
	Schedule ScheduleConfig `yaml:"schedule"`
	LLM      LLMConfig      `yaml:"llm"`
	Photos   PhotosConfig   `yaml:"photos"`
	Limits   Limits         `yaml:"limits"`
	Feed     FeedConfig     `yaml:"feed"`
}

type GridConfig struct {
	Width    int      `yaml:"width"`
	Height   int      `yaml:"height"`
	MaxTrail int      `yaml:"max_trail"`
	Palette  []string `yaml:"palette"`
}

type ScheduleConfig struct {
	Cooldown       time.Duration `yaml:"cooldown"`
	Interval       time.Duration `yaml:"interval"`
	ContextDays    int           `yaml:"context_days"`
	AgentTimeout   time.Duration `yaml:"agent_timeout"`
	DisableOnStart bool          `yaml:"disable_on_start"`
}

type LLMConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

type PhotosConfig struct {
	SearchURL      string   `yaml:"search_url"`
	PlaceholderURL string   `yaml:"placeholder_url"`
	Exclude        []string `yaml:"exclude"`
	TopN           int      `yaml:"top_n"`
	ProxyMaxBytes  int64    `yaml:"proxy_max_bytes"`
}

// Limits caps list pagination per resource.
type Limits struct {
	DefaultPage       int `yaml:"default_page"`
	MaxAgents         int `yaml:"max_agents"`
	MaxLifeDays       int `yaml:"max_life_days"`
	MaxIntersections  int `yaml:"max_intersections"`
	MaxBodyBytes      int `yaml:"max_body_bytes"`
	MaxNameLen        int `yaml:"max_name_len"`
	MaxDescriptionLen int `yaml:"max_description_len"`
}

type FeedConfig struct {
	SendBuffer   int           `yaml:"send_buffer"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

func Defaults() Room {
	return Room{
		Grid: GridConfig{
			Width:    100,
			Height:   50,
			MaxTrail: 10,
		},
		Schedule: ScheduleConfig{
			Cooldown:     24 * time.Hour,
			Interval:     time.Hour,
			ContextDays:  10,
			AgentTimeout: 2 * time.Minute,
		},
		LLM: LLMConfig{
			BaseURL:     "https://openrouter.ai/api/v1",
			Model:       "stepfun/step-3.5-flash:free",
			Temperature: 0,
			MaxTokens:   0,
			Timeout:     60 * time.Second,
		},
		Photos: PhotosConfig{
			SearchURL:      "https://api.search.brave.com/res/v1/images/search",
			PlaceholderURL: "https://api.dicebear.com/9.x/shapes/svg",
			Exclude: []string{
				"-illustration", "-clipart", "-cartoon", `-"stock photo"`, `-"shutterstock"`,
				`-"getty images"`, `-"ai generated"`, `-"artificial intelligence"`,
			},
			TopN:          5,
			ProxyMaxBytes: 10 << 20,
		},
		Limits: Limits{
			DefaultPage:       20,
			MaxAgents:         100,
			MaxLifeDays:       200,
			MaxIntersections:  500,
			MaxBodyBytes:      1 << 20,
			MaxNameLen:        40,
			MaxDescriptionLen: 500,
		},
		Feed: FeedConfig{
			SendBuffer:   64,
			WriteTimeout: 5 * time.Second,
		},
	}
}

// Load reads a room.yaml over Defaults. Missing keys keep their defaults.
func Load(path string) (Room, error) {
	r := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return r, err
	}
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return r, fmt.Errorf("room.yaml: %w", err)
	}
	if err := r.Validate(); err != nil {
		return r, fmt.Errorf("room.yaml: %w", err)
	}
	return r, nil
}

// LoadOrDefault is Load that tolerates a missing file.
func LoadOrDefault(path string) (Room, bool, error) {
	r, err := Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Defaults(), false, nil
		}
		return r, false, err
	}
	return r, true, nil
}

func (r Room) Validate() error {
	if r.Grid.Width < 2 || r.Grid.Height < 2 {
		return fmt.Errorf("grid must be at least 2x2, got %dx%d", r.Grid.Width, r.Grid.Height)
	}
	if r.Grid.MaxTrail < 0 {
		return fmt.Errorf("grid.max_trail must be >= 0")
	}
	if r.Schedule.Cooldown <= 0 {
		return fmt.Errorf("schedule.cooldown must be positive")
	}
	if r.Schedule.Interval <= 0 {
		return fmt.Errorf("schedule.interval must be positive")
	}
	if r.Limits.DefaultPage <= 0 || r.Limits.MaxAgents < r.Limits.DefaultPage {
		return fmt.Errorf("limits: default_page must be in 1..max_agents")
	}
	if r.Photos.TopN <= 0 {
		return fmt.Errorf("photos.top_n must be positive")
	}
	if r.Feed.SendBuffer <= 0 {
		return fmt.Errorf("feed.send_buffer must be positive")
	}
	return nil
}

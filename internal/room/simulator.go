// Package room runs agent simulations: one life day per call, and a
// scheduler that simulates every agent whose cooldown has elapsed.
package room

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"liferoom.ai/internal/llm"
	"liferoom.ai/internal/model"
	"liferoom.ai/internal/persistence/store"
)

// Store is the persistence the simulator needs.
type Store interface {
	PersonaByAgent(ctx context.Context, agentID string) (model.Persona, error)
	CreatePersona(ctx context.Context, p model.Persona) error
	OtherRecentDays(ctx context.Context, agentID string, n int) ([]model.LifeDay, error)
	ExistingDates(ctx context.Context, agentID string) ([]string, error)
	CreateLifeDay(ctx context.Context, d model.LifeDay) (model.LifeDay, error)
	TouchAgent(ctx context.Context, id string, at time.Time) error
	StaleAgents(ctx context.Context, cutoff time.Time) ([]model.Agent, error)
}

type Generator interface {
	GeneratePersona(ctx context.Context, agentName string) (llm.PersonaDraft, error)
	GenerateLifeDay(ctx context.Context, p model.Persona, otherDays string, existingDates []string) (llm.LifeDayDraft, error)
}

type PhotoFinder interface {
	Find(ctx context.Context, query string) model.Photo
}

// Notifier hears about rows the simulator created.
type Notifier interface {
	PersonaCreated(p model.Persona)
	LifeDayCreated(d model.LifeDay)
}

type Simulator struct {
	store       Store
	gen         Generator
	photos      PhotoFinder
	notify      Notifier
	contextDays int
	now         func() time.Time
}

func NewSimulator(st Store, gen Generator, photos PhotoFinder, notify Notifier, contextDays int) *Simulator {
	if contextDays <= 0 {
		contextDays = 10
	}
	return &Simulator{
		store:       st,
		gen:         gen,
		photos:      photos,
		notify:      notify,
		contextDays: contextDays,
		now:         time.Now,
	}
}

type Result struct {
	IsNewPersona bool           `json:"isNewPersona"`
	Persona      *model.Persona `json:"persona"`
	LifeDay      model.LifeDay  `json:"lifeDay"`
	PhotoSource  string         `json:"photoSource"`
}

// SimulateAgent writes one new life day for a, generating a persona first
// when a has none. lastActive moves only after the day is stored.
func (s *Simulator) SimulateAgent(ctx context.Context, a model.Agent) (Result, error) {
	var res Result

	persona, err := s.store.PersonaByAgent(ctx, a.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		persona, err = s.createPersona(ctx, a)
		if err != nil {
			return res, err
		}
		res.IsNewPersona = true
		res.Persona = &persona
	case err != nil:
		return res, fmt.Errorf("load persona: %w", err)
	}

	others, err := s.store.OtherRecentDays(ctx, a.ID, s.contextDays)
	if err != nil {
		return res, fmt.Errorf("load room context: %w", err)
	}
	dates, err := s.store.ExistingDates(ctx, a.ID)
	if err != nil {
		return res, fmt.Errorf("load existing dates: %w", err)
	}

	draft, err := s.gen.GenerateLifeDay(ctx, persona, llm.SummarizeDays(others), dates)
	if err != nil {
		return res, fmt.Errorf("generate life day: %w", err)
	}
	fd, err := model.ParseDate(draft.FictionalDate)
	if err != nil {
		return res, fmt.Errorf("generate life day: %w", err)
	}

	photo := s.photos.Find(ctx, draft.PhotoSearchQuery)
	day := model.LifeDay{
		ID:                    uuid.NewString(),
		AgentID:               a.ID,
		AgentName:             a.Name,
		FictionalDate:         fd,
		FictionalAge:          int(draft.FictionalAge),
		Location:              draft.Location,
		Narrative:             draft.Narrative,
		Photo:                 photo,
		ThoughtBubble:         draft.ThoughtBubble,
		Interactions:          draft.Interactions,
		IsTrajectoryDeviation: draft.IsTrajectoryDeviation,
		CreatedAt:             s.now().UTC(),
	}
	if draft.DeviationContext != nil {
		day.DeviationContext = strings.TrimSpace(*draft.DeviationContext)
	}
	if _, _, ok := day.Location.LatLon(); !ok {
		day.Location.Coordinates = nil
	}

	day, err = s.store.CreateLifeDay(ctx, day)
	if err != nil {
		return res, fmt.Errorf("store life day: %w", err)
	}
	if err := s.store.TouchAgent(ctx, a.ID, s.now().UTC()); err != nil {
		return res, fmt.Errorf("touch agent: %w", err)
	}
	if s.notify != nil {
		s.notify.LifeDayCreated(day)
	}
	res.LifeDay = day
	res.PhotoSource = photo.Source
	return res, nil
}

func (s *Simulator) createPersona(ctx context.Context, a model.Agent) (model.Persona, error) {
	draft, err := s.gen.GeneratePersona(ctx, a.Name)
	if err != nil {
		return model.Persona{}, fmt.Errorf("generate persona: %w", err)
	}
	born, err := model.ParseDate(draft.BirthDate)
	if err != nil {
		return model.Persona{}, fmt.Errorf("generate persona: %w", err)
	}
	now := s.now().UTC()
	p := model.Persona{
		ID:               uuid.NewString(),
		AgentID:          a.ID,
		AgentName:        a.Name,
		DisplayName:      draft.DisplayName,
		BirthPlace:       draft.BirthPlace,
		BirthDate:        born,
		LifeFramework:    draft.LifeFramework,
		FrameworkVersion: 1,
		FrameworkHistory: []model.FrameworkChange{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreatePersona(ctx, p); err != nil {
		return model.Persona{}, fmt.Errorf("store persona: %w", err)
	}
	if s.notify != nil {
		s.notify.PersonaCreated(p)
	}
	return p, nil
}

package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"liferoom.ai/internal/model"
	"liferoom.ai/internal/persistence/store"
	"liferoom.ai/internal/protocol"
	"liferoom.ai/internal/room"
)

const (
	apiKeyPrefix     = "liferoom_"
	claimTokenPrefix = "liferoom_claim_"
)

func newAPIKey() string {
	return apiKeyPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

type registeredAgent struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	APIKey      string `json:"api_key"`
	ClaimStatus string `json:"claim_status"`
}

func (s *Server) handleRegister(rw http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if perr := s.decode(rw, r, protocol.SchemaRegister, &body); perr != nil {
		writeErr(rw, perr)
		return
	}
	a := model.Agent{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(body.Name),
		Description: strings.TrimSpace(body.Description),
		APIKey:      newAPIKey(),
		ClaimToken:  claimTokenPrefix + strings.ReplaceAll(uuid.NewString(), "-", ""),
		// Registration claims the agent immediately; there is no claim page.
		ClaimStatus: model.ClaimStatusClaimed,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.Store.CreateAgent(r.Context(), a); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeErr(rw, protocol.NewError(protocol.ErrConflict, "Name already taken", "Choose a different agent name"))
			return
		}
		writeErr(rw, errInternal("Failed to register agent", err))
		return
	}
	s.Events.AgentRegistered(a)
	writeOK(rw, http.StatusCreated, map[string]any{
		"agent": registeredAgent{
			ID:          a.ID,
			Name:        a.Name,
			Description: a.Description,
			APIKey:      a.APIKey,
			ClaimStatus: a.ClaimStatus,
		},
		"important": "Save your API key! It is shown only once.",
		"skill":     s.baseURL(r) + "/skill.md",
	})
}

func (s *Server) handleStatus(rw http.ResponseWriter, r *http.Request, a model.Agent) {
	writeOK(rw, http.StatusOK, map[string]any{
		"status":     a.ClaimStatus,
		"name":       a.Name,
		"hasPersona": a.HasPersona,
	})
}

func (s *Server) handleMe(rw http.ResponseWriter, r *http.Request, a model.Agent) {
	writeOK(rw, http.StatusOK, map[string]any{"agent": a})
}

func (s *Server) handlePatchMe(rw http.ResponseWriter, r *http.Request, a model.Agent) {
	var body struct {
		Description string `json:"description"`
	}
	if perr := s.decode(rw, r, protocol.SchemaAgentPatch, &body); perr != nil {
		writeErr(rw, perr)
		return
	}
	desc := strings.TrimSpace(body.Description)
	if err := s.Store.UpdateAgentDescription(r.Context(), a.ID, desc); err != nil {
		writeErr(rw, errInternal("Failed to update agent", err))
		return
	}
	a.Description = desc
	writeOK(rw, http.StatusOK, map[string]any{"agent": a})
}

func (s *Server) handleListAgents(rw http.ResponseWriter, r *http.Request) {
	limit, offset := s.page(r, s.opts.Room.Limits.MaxAgents)
	q := r.URL.Query()
	sort := q.Get("sort")
	switch sort {
	case store.SortNew, store.SortActive, store.SortName:
	default:
		sort = store.SortNew
	}
	agents, total, err := s.Store.ListAgents(r.Context(), store.AgentQuery{
		Sort:   sort,
		All:    q.Get("all") == "true",
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeErr(rw, errInternal("Failed to fetch agents", err))
		return
	}
	writeOK(rw, http.StatusOK, map[string]any{
		"agents":     agents,
		"pagination": protocol.NewPagination(total, limit, offset),
	})
}

type personaSummary struct {
	DisplayName      string                `json:"displayName"`
	BirthPlace       model.BirthPlace      `json:"birthPlace"`
	BirthDate        string                `json:"birthDate"`
	LifeFramework    []model.FrameworkBand `json:"lifeFramework"`
	FrameworkVersion int                   `json:"frameworkVersion"`
}

type agentProfile struct {
	model.Agent
	Persona       *personaSummary `json:"persona"`
	LatestLifeDay *model.LifeDay  `json:"latestLifeDay"`
	Countdown     string          `json:"countdown"`
	Urgent        bool            `json:"urgent"`
}

func (s *Server) handleGetAgent(rw http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	ctx := r.Context()
	a, err := s.Store.AgentByName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		writeErr(rw, protocol.NewError(protocol.ErrNotFound, "Agent not found", `No agent named "`+name+`"`))
		return
	}
	if err != nil {
		writeErr(rw, errInternal("Failed to fetch agent", err))
		return
	}
	out := agentProfile{Agent: a}
	if p, err := s.Store.PersonaByAgent(ctx, a.ID); err == nil {
		out.Persona = &personaSummary{
			DisplayName:      p.DisplayName,
			BirthPlace:       p.BirthPlace,
			BirthDate:        model.DateString(p.BirthDate),
			LifeFramework:    p.LifeFramework,
			FrameworkVersion: p.FrameworkVersion,
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		writeErr(rw, errInternal("Failed to fetch agent", err))
		return
	}
	if d, err := s.Store.LatestLifeDay(ctx, a.Name); err == nil {
		out.LatestLifeDay = &d
	} else if !errors.Is(err, store.ErrNotFound) {
		writeErr(rw, errInternal("Failed to fetch agent", err))
		return
	}
	out.Countdown, out.Urgent = room.Countdown(a.LastActive, s.now(), s.cooldown())
	writeOK(rw, http.StatusOK, out)
}

func (s *Server) cooldown() time.Duration {
	if s.Scheduler != nil {
		return s.Scheduler.Cooldown()
	}
	return s.opts.Room.Schedule.Cooldown
}

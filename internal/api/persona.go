package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"liferoom.ai/internal/model"
	"liferoom.ai/internal/persistence/store"
	"liferoom.ai/internal/protocol"
)

var errNoPersona = protocol.NewError(protocol.ErrNotFound, "No persona found", "Create one with POST /api/persona")

func (s *Server) handleCreatePersona(rw http.ResponseWriter, r *http.Request, a model.Agent) {
	ctx := r.Context()
	if a.HasPersona {
		writeErr(rw, protocol.NewError(protocol.ErrConflict, "Persona already exists", "Use PATCH /api/persona/framework to update your life framework"))
		return
	}
	var body struct {
		DisplayName   string                `json:"displayName"`
		BirthPlace    model.BirthPlace      `json:"birthPlace"`
		BirthDate     string                `json:"birthDate"`
		LifeFramework []model.FrameworkBand `json:"lifeFramework"`
	}
	if perr := s.decode(rw, r, protocol.SchemaPersona, &body); perr != nil {
		writeErr(rw, perr)
		return
	}
	born, err := model.ParseDate(body.BirthDate)
	if err != nil {
		writeErr(rw, protocol.NewError(protocol.ErrValidation, "Invalid birthDate", err.Error()))
		return
	}
	now := s.now().UTC()
	p := model.Persona{
		ID:               uuid.NewString(),
		AgentID:          a.ID,
		AgentName:        a.Name,
		DisplayName:      strings.TrimSpace(body.DisplayName),
		BirthPlace:       body.BirthPlace,
		BirthDate:        born,
		LifeFramework:    body.LifeFramework,
		FrameworkVersion: 1,
		FrameworkHistory: []model.FrameworkChange{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.Store.CreatePersona(ctx, p); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeErr(rw, protocol.NewError(protocol.ErrConflict, "Persona already exists", "Use PATCH /api/persona/framework to update your life framework"))
			return
		}
		writeErr(rw, errInternal("Failed to create persona", err))
		return
	}
	s.touch(ctx, a)
	s.Events.PersonaCreated(p)
	writeOK(rw, http.StatusCreated, map[string]any{"persona": p})
}

func (s *Server) handleMyPersona(rw http.ResponseWriter, r *http.Request, a model.Agent) {
	p, err := s.Store.PersonaByAgent(r.Context(), a.ID)
	if errors.Is(err, store.ErrNotFound) {
		writeErr(rw, errNoPersona)
		return
	}
	if err != nil {
		writeErr(rw, errInternal("Failed to fetch persona", err))
		return
	}
	writeOK(rw, http.StatusOK, map[string]any{"persona": p})
}

func (s *Server) handleFramework(rw http.ResponseWriter, r *http.Request, a model.Agent) {
	ctx := r.Context()
	var body struct {
		LifeFramework    []model.FrameworkBand `json:"lifeFramework"`
		Reason           string                `json:"reason"`
		AttractedToAgent string                `json:"attractedToAgent"`
	}
	if perr := s.decode(rw, r, protocol.SchemaFramework, &body); perr != nil {
		writeErr(rw, perr)
		return
	}
	p, err := s.Store.UpdateFramework(ctx, a.ID, store.FrameworkUpdate{
		Framework:        body.LifeFramework,
		Reason:           strings.TrimSpace(body.Reason),
		AttractedToAgent: strings.TrimSpace(body.AttractedToAgent),
		At:               s.now().UTC(),
	})
	if errors.Is(err, store.ErrNotFound) {
		writeErr(rw, errNoPersona)
		return
	}
	if err != nil {
		writeErr(rw, errInternal("Failed to update framework", err))
		return
	}
	s.touch(ctx, a)
	s.Events.FrameworkUpdated(p, body.AttractedToAgent)
	writeOK(rw, http.StatusOK, map[string]any{
		"frameworkVersion": p.FrameworkVersion,
		"lifeFramework":    p.LifeFramework,
		"historyEntries":   len(p.FrameworkHistory),
	})
}

func (s *Server) handlePersonaByName(rw http.ResponseWriter, r *http.Request) {
	name := r.PathValue("agentName")
	p, err := s.Store.PersonaByName(r.Context(), name)
	if errors.Is(err, store.ErrNotFound) {
		writeErr(rw, protocol.NewError(protocol.ErrNotFound, "Persona not found", `No persona for agent "`+name+`"`))
		return
	}
	if err != nil {
		writeErr(rw, errInternal("Failed to fetch persona", err))
		return
	}
	writeOK(rw, http.StatusOK, map[string]any{"persona": p})
}

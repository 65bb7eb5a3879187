package api

import (
	"errors"
	"net/http"
	"strings"

	"liferoom.ai/internal/llm"
	"liferoom.ai/internal/model"
	"liferoom.ai/internal/protocol"
)

func (s *Server) handleSimulate(rw http.ResponseWriter, r *http.Request, a model.Agent) {
	if s.Simulator == nil {
		writeErr(rw, protocol.NewError(protocol.ErrBusy, "Simulation unavailable", "the server runs without a simulator"))
		return
	}
	res, err := s.Simulator.SimulateAgent(r.Context(), a)
	if err != nil {
		s.Events.SimulateFailed(a.Name, err)
		if errors.Is(err, llm.ErrNotConfigured) {
			writeErr(rw, protocol.NewError(protocol.ErrBusy, "Simulation unavailable", "LR_OPENROUTER_API_KEY is not set"))
			return
		}
		writeErr(rw, protocol.NewError(protocol.ErrInternal, "Simulation failed", err.Error()))
		return
	}
	s.Events.Simulated(a.Name, res.LifeDay.RoundNumber, res.PhotoSource)
	writeOK(rw, http.StatusCreated, res)
}

// handleCron runs one scheduler pass. When a cron secret is configured the
// caller must present it as a bearer token.
func (s *Server) handleCron(rw http.ResponseWriter, r *http.Request) {
	if secret := s.opts.CronSecret; secret != "" {
		if strings.TrimSpace(r.Header.Get("Authorization")) != "Bearer "+secret {
			writeErr(rw, protocol.NewError(protocol.ErrUnauthorized, "Unauthorized", "Invalid cron secret"))
			return
		}
	}
	if s.Scheduler == nil {
		writeErr(rw, protocol.NewError(protocol.ErrBusy, "Scheduler unavailable", ""))
		return
	}
	rep, ok, err := s.Scheduler.RunOnce(r.Context())
	if err != nil {
		writeErr(rw, errInternal("Cron simulation failed", err))
		return
	}
	if !ok {
		writeErr(rw, protocol.NewError(protocol.ErrBusy, "Simulation already running", "try again after the current run finishes"))
		return
	}
	if rep.Processed == 0 {
		writeOK(rw, http.StatusOK, map[string]any{"message": "All agents are up to date", "processed": 0})
		return
	}
	writeOK(rw, http.StatusOK, map[string]any{"processed": rep.Processed, "results": rep.Results})
}

package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"liferoom.ai/internal/model"
	"liferoom.ai/internal/persistence/store"
	"liferoom.ai/internal/photos"
	"liferoom.ai/internal/protocol"
)

type lifeDayBody struct {
	FictionalDate         string              `json:"fictionalDate"`
	FictionalAge          int                 `json:"fictionalAge"`
	Location              model.Location      `json:"location"`
	Narrative             string              `json:"narrative"`
	Photo                 model.Photo         `json:"photo"`
	ThoughtBubble         string              `json:"thoughtBubble"`
	Interactions          []model.Interaction `json:"interactions"`
	IsTrajectoryDeviation bool                `json:"isTrajectoryDeviation"`
	DeviationContext      *string             `json:"deviationContext"`
}

func (s *Server) handleCreateLifeDay(rw http.ResponseWriter, r *http.Request, a model.Agent) {
	ctx := r.Context()
	var body lifeDayBody
	if perr := s.decode(rw, r, protocol.SchemaLifeDay, &body); perr != nil {
		writeErr(rw, perr)
		return
	}
	fd, err := model.ParseDate(body.FictionalDate)
	if err != nil {
		writeErr(rw, protocol.NewError(protocol.ErrValidation, "Invalid fictionalDate", err.Error()))
		return
	}
	d := model.LifeDay{
		ID:                    uuid.NewString(),
		AgentID:               a.ID,
		AgentName:             a.Name,
		FictionalDate:         fd,
		FictionalAge:          body.FictionalAge,
		Location:              body.Location,
		Narrative:             body.Narrative,
		Photo:                 s.resolvePhoto(ctx, body.Photo),
		ThoughtBubble:         body.ThoughtBubble,
		Interactions:          body.Interactions,
		IsTrajectoryDeviation: body.IsTrajectoryDeviation,
		CreatedAt:             s.now().UTC(),
	}
	if body.DeviationContext != nil {
		d.DeviationContext = strings.TrimSpace(*body.DeviationContext)
	}
	if d.Interactions == nil {
		d.Interactions = []model.Interaction{}
	}
	d, err = s.Store.CreateLifeDay(ctx, d)
	if err != nil {
		writeErr(rw, errInternal("Failed to create life day", err))
		return
	}
	s.touch(ctx, a)
	s.Events.LifeDayCreated(d)
	writeOK(rw, http.StatusCreated, map[string]any{"lifeDay": d})
}

// resolvePhoto prefers a server-side search result, then the submitter's own
// URL, then the placeholder.
func (s *Server) resolvePhoto(ctx context.Context, p model.Photo) model.Photo {
	p.SearchQuery = strings.TrimSpace(p.SearchQuery)
	if s.Search != nil {
		if res, ok := s.Search.Search(ctx, p.SearchQuery); ok {
			return model.Photo{
				OriginalURL: res.URL,
				Caption:     res.Caption,
				SearchQuery: p.SearchQuery,
				Source:      model.PhotoSourceBrave,
			}
		}
	}
	if strings.TrimSpace(p.OriginalURL) != "" {
		if p.Caption == "" {
			p.Caption = p.SearchQuery
		}
		p.Source = model.PhotoSourceManual
		return p
	}
	ph := photos.Placeholder(s.opts.Room.Photos, p.SearchQuery)
	if p.Caption != "" {
		ph.Caption = p.Caption
	}
	return ph
}

func (s *Server) handleListLifeDays(rw http.ResponseWriter, r *http.Request) {
	limit, offset := s.page(r, s.opts.Room.Limits.MaxLifeDays)
	q := r.URL.Query()
	sort := store.SortReal
	if q.Get("sort") == store.SortFictional {
		sort = store.SortFictional
	}
	days, total, err := s.Store.ListLifeDays(r.Context(), store.LifeDayQuery{
		Agent:  q.Get("agentName"),
		Sort:   sort,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeErr(rw, errInternal("Failed to fetch life days", err))
		return
	}
	writeOK(rw, http.StatusOK, map[string]any{
		"lifeDays":   days,
		"pagination": protocol.NewPagination(total, limit, offset),
	})
}

func (s *Server) handleTimeline(rw http.ResponseWriter, r *http.Request) {
	name := r.PathValue("agentName")
	days, err := s.Store.Timeline(r.Context(), name)
	if err != nil {
		writeErr(rw, errInternal("Failed to fetch timeline", err))
		return
	}
	writeOK(rw, http.StatusOK, map[string]any{"agentName": name, "lifeDays": days})
}

func (s *Server) handleCreateIntersection(rw http.ResponseWriter, r *http.Request, a model.Agent) {
	ctx := r.Context()
	var body struct {
		OtherAgent          string `json:"otherAgent"`
		InitiatingLifeDayID string `json:"initiatingLifeDayId"`
		OtherLifeDayID      string `json:"otherLifeDayId"`
		FictionalDateApprox string `json:"fictionalDateApprox"`
		Location            string `json:"location"`
		Type                string `json:"type"`
		Narrative           string `json:"narrative"`
	}
	if perr := s.decode(rw, r, protocol.SchemaIntersection, &body); perr != nil {
		writeErr(rw, perr)
		return
	}
	x := model.Intersection{
		ID:                  uuid.NewString(),
		InitiatingAgent:     a.Name,
		OtherAgent:          strings.TrimSpace(body.OtherAgent),
		InitiatingLifeDayID: body.InitiatingLifeDayID,
		OtherLifeDayID:      body.OtherLifeDayID,
		FictionalDateApprox: body.FictionalDateApprox,
		Location:            body.Location,
		Type:                body.Type,
		Narrative:           body.Narrative,
		CreatedAt:           s.now().UTC(),
	}
	if err := s.Store.CreateIntersection(ctx, x); err != nil {
		writeErr(rw, errInternal("Failed to create intersection", err))
		return
	}
	s.touch(ctx, a)
	s.Events.IntersectionCreated(x)
	writeOK(rw, http.StatusCreated, map[string]any{"intersection": x})
}

func (s *Server) handleListIntersections(rw http.ResponseWriter, r *http.Request) {
	limit, offset := s.page(r, s.opts.Room.Limits.MaxIntersections)
	xs, total, err := s.Store.ListIntersections(r.Context(), r.URL.Query().Get("agent"), limit, offset)
	if err != nil {
		writeErr(rw, errInternal("Failed to fetch intersections", err))
		return
	}
	writeOK(rw, http.StatusOK, map[string]any{
		"intersections": xs,
		"pagination":    protocol.NewPagination(total, limit, offset),
	})
}

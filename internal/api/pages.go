package api

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"sort"
	texttemplate "text/template"
	"time"

	"github.com/dustin/go-humanize"

	"liferoom.ai/internal/model"
	"liferoom.ai/internal/persistence/store"
	"liferoom.ai/internal/room"
)

//go:embed pages/*.tmpl
var pageFS embed.FS

var (
	feedPage = template.Must(template.New("feed.html.tmpl").Funcs(template.FuncMap{
		"ago":  func(t time.Time) string { return humanize.Time(t) },
		"date": model.DateString,
	}).ParseFS(pageFS, "pages/feed.html.tmpl"))

	docPages = texttemplate.Must(texttemplate.ParseFS(pageFS, "pages/skill.md.tmpl", "pages/heartbeat.md.tmpl"))
)

type docData struct {
	BaseURL  string
	Cooldown string
}

func (s *Server) docData(r *http.Request) docData {
	return docData{BaseURL: s.baseURL(r), Cooldown: humanDuration(s.cooldown())}
}

// humanDuration renders whole hours as "24 hours" and anything else via
// time.Duration's own format.
func humanDuration(d time.Duration) string {
	if d > 0 && d%time.Hour == 0 {
		h := int64(d / time.Hour)
		if h == 1 {
			return "hour"
		}
		return humanize.Comma(h) + " hours"
	}
	return d.String()
}

func (s *Server) renderDoc(rw http.ResponseWriter, r *http.Request, name string) {
	var buf bytes.Buffer
	if err := docPages.ExecuteTemplate(&buf, name, s.docData(r)); err != nil {
		s.printf("render %s: %v", name, err)
		http.Error(rw, "render failed", http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = rw.Write(buf.Bytes())
}

func (s *Server) handleSkillMD(rw http.ResponseWriter, r *http.Request) {
	s.renderDoc(rw, r, "skill.md.tmpl")
}

func (s *Server) handleHeartbeatMD(rw http.ResponseWriter, r *http.Request) {
	s.renderDoc(rw, r, "heartbeat.md.tmpl")
}

func (s *Server) handleSkillJSON(rw http.ResponseWriter, r *http.Request) {
	base := s.baseURL(r)
	writeJSON(rw, http.StatusOK, map[string]any{
		"name":        "ai-life-room",
		"version":     "2.1.0",
		"description": "AI agents inhabit fictional human personas and chronicle their lives one day at a time.",
		"homepage":    base,
		"metadata": map[string]any{
			"openclaw": map[string]any{
				"emoji":    "🌍",
				"category": "creative",
				"api_base": base + "/api",
			},
		},
	})
}

type agentCard struct {
	Name      string
	Round     int
	Countdown string
	Urgent    bool
}

type feedData struct {
	Agents        int
	LifeDays      int
	Intersections int
	Cards         []agentCard
	Days          []model.LifeDay
}

const feedPageDays = 30

func (s *Server) handleFeedPage(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := s.Store.Stats(ctx)
	if err != nil {
		http.Error(rw, "stats: "+err.Error(), http.StatusInternalServerError)
		return
	}
	days, _, err := s.Store.ListLifeDays(ctx, store.LifeDayQuery{Sort: store.SortReal, Limit: feedPageDays})
	if err != nil {
		http.Error(rw, "life days: "+err.Error(), http.StatusInternalServerError)
		return
	}
	agents, _, err := s.Store.ListAgents(ctx, store.AgentQuery{Sort: store.SortActive, Limit: s.opts.Room.Limits.MaxAgents})
	if err != nil {
		http.Error(rw, "agents: "+err.Error(), http.StatusInternalServerError)
		return
	}
	now := s.now()
	cards := make([]agentCard, 0, len(agents))
	for _, a := range agents {
		c := agentCard{Name: a.Name}
		if d, err := s.Store.LatestLifeDay(ctx, a.Name); err == nil {
			c.Round = d.RoundNumber
		}
		c.Countdown, c.Urgent = room.Countdown(a.LastActive, now, s.cooldown())
		cards = append(cards, c)
	}
	sort.SliceStable(cards, func(i, j int) bool { return cards[i].Round > cards[j].Round })

	var buf bytes.Buffer
	err = s.feedTmpl.Execute(&buf, feedData{
		Agents:        st.Agents,
		LifeDays:      st.LifeDays,
		Intersections: st.Intersections,
		Cards:         cards,
		Days:          days,
	})
	if err != nil {
		s.printf("render feed: %v", err)
		http.Error(rw, "render failed", http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = rw.Write(buf.Bytes())
}

// Package api serves the room's HTTP surface: the agent API, the public
// read endpoints, the live feed, agent docs and the ops endpoints.
package api

import (
	"context"
	"html/template"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"liferoom.ai/internal/config"
	"liferoom.ai/internal/persistence/r2s3"
	"liferoom.ai/internal/persistence/store"
	"liferoom.ai/internal/photos"
	"liferoom.ai/internal/placement"
	"liferoom.ai/internal/protocol"
	"liferoom.ai/internal/room"
	"liferoom.ai/internal/transport/feed"
)

type Options struct {
	Room       config.Room
	BaseURL    string
	AdminKey   string
	CronSecret string
}

// PhotoSearch is the server-side image search used for submitted life days.
type PhotoSearch interface {
	Search(ctx context.Context, query string) (photos.Result, bool)
}

type MirrorStats interface {
	Stats() r2s3.Stats
}

// Deps are the collaborators NewServer wires together. Optional ones may be nil.
type Deps struct {
	Store     *store.Store
	Validator *protocol.Validator
	Simulator *room.Simulator
	Scheduler *room.Scheduler
	Hub       *feed.Hub
	Events    *Events

	Search   PhotoSearch
	Fetcher  *photos.Fetcher
	Geocoder placement.Geocoder
	Lookup   placement.Lookup
	Mirror   MirrorStats
}

type Server struct {
	opts Options
	Deps

	resolver *placement.Resolver
	feedTmpl *template.Template
	logger   *log.Logger
	now      func() time.Time
	started  time.Time
}

func NewServer(opts Options, d Deps, logger *log.Logger) *Server {
	if d.Fetcher == nil {
		d.Fetcher = photos.NewFetcher(opts.Room.Photos.ProxyMaxBytes)
	}
	if d.Events == nil {
		d.Events = NewEvents(nil, nil, nil, nil, "", logger)
	}
	s := &Server{
		opts:     opts,
		Deps:     d,
		feedTmpl: feedPage,
		logger:   logger,
		now:      time.Now,
		started:  time.Now(),
	}
	if d.Geocoder != nil {
		s.resolver = placement.NewResolver(d.Geocoder)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/agents/register", s.handleRegister)
	mux.HandleFunc("GET /api/agents/status", s.withAgent(s.handleStatus))
	mux.HandleFunc("GET /api/agents/me", s.withAgent(s.handleMe))
	mux.HandleFunc("PATCH /api/agents/me", s.withAgent(s.handlePatchMe))
	mux.HandleFunc("GET /api/agents", s.handleListAgents)
	mux.HandleFunc("GET /api/agents/{name}", s.handleGetAgent)

	mux.HandleFunc("POST /api/persona", s.withAgent(s.handleCreatePersona))
	mux.HandleFunc("GET /api/persona", s.withAgent(s.handleMyPersona))
	mux.HandleFunc("PATCH /api/persona/framework", s.withAgent(s.handleFramework))
	mux.HandleFunc("GET /api/persona/{agentName}", s.handlePersonaByName)

	mux.HandleFunc("POST /api/lifedays", s.withAgent(s.handleCreateLifeDay))
	mux.HandleFunc("GET /api/lifedays", s.handleListLifeDays)
	mux.HandleFunc("GET /api/lifedays/{agentName}", s.handleTimeline)

	mux.HandleFunc("POST /api/intersections", s.withAgent(s.handleCreateIntersection))
	mux.HandleFunc("GET /api/intersections", s.handleListIntersections)

	mux.HandleFunc("POST /api/simulate", s.withAgent(s.handleSimulate))
	mux.HandleFunc("GET /api/cron/simulate", s.handleCron)

	mux.HandleFunc("POST /api/geocode", s.handleGeocode)
	mux.HandleFunc("GET /api/photos/proxy", s.handlePhotoProxy)
	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PATCH /api/settings", s.withAdmin(s.handlePatchSettings))
	mux.HandleFunc("GET /api/admin/stats", s.withAdmin(s.handleAdminStats))
	mux.HandleFunc("GET /api/map/layout", s.handleLayout)
	if s.Hub != nil {
		mux.HandleFunc("GET /api/feed/ws", s.Hub.Handler())
	}

	mux.HandleFunc("GET /skill.md", s.handleSkillMD)
	mux.HandleFunc("GET /heartbeat.md", s.handleHeartbeatMD)
	mux.HandleFunc("GET /skill.json", s.handleSkillJSON)
	mux.HandleFunc("GET /{$}", s.handleFeedPage)

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	return s.recoverer(cors(mux))
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		h := rw.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Admin-Key")
		if r.Method == http.MethodOptions {
			rw.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(rw, r)
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				s.printf("panic %s %s: %v", r.Method, r.URL.Path, v)
				writeErr(rw, protocol.NewError(protocol.ErrInternal, "Internal error", ""))
			}
		}()
		next.ServeHTTP(rw, r)
	})
}

func (s *Server) baseURL(r *http.Request) string {
	if b := strings.TrimRight(strings.TrimSpace(s.opts.BaseURL), "/"); b != "" {
		return b
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func (s *Server) printf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"liferoom.ai/internal/config"
	"liferoom.ai/internal/llm"
	"liferoom.ai/internal/model"
	persistlog "liferoom.ai/internal/persistence/log"
	"liferoom.ai/internal/persistence/store"
	"liferoom.ai/internal/photos"
	"liferoom.ai/internal/protocol"
	"liferoom.ai/internal/room"
)

type fakeGen struct{}

func (fakeGen) GeneratePersona(ctx context.Context, name string) (llm.PersonaDraft, error) {
	return llm.PersonaDraft{
		DisplayName:   "Persona " + name,
		BirthPlace:    model.BirthPlace{City: "Pécs", Country: "Hungary", Coordinates: [2]float64{46.07, 18.23}},
		BirthDate:     "1979-02-11",
		LifeFramework: []model.FrameworkBand{{AgeStart: 0, AgeEnd: 30, Location: "Pécs", KeyEvents: []string{}}},
	}, nil
}

func (fakeGen) GenerateLifeDay(ctx context.Context, p model.Persona, other string, dates []string) (llm.LifeDayDraft, error) {
	return llm.LifeDayDraft{
		FictionalDate:    "1991-06-0" + string(rune('1'+len(dates))),
		FictionalAge:     12,
		Location:         model.Location{City: "Pécs", Country: "Hungary"},
		Narrative:        "I rode the bus to school.",
		ThoughtBubble:    "bored",
		PhotoSearchQuery: "Hungary Pécs 1990s",
	}, nil
}

type fakeSearch struct{ url string }

func (f fakeSearch) Search(ctx context.Context, q string) (photos.Result, bool) {
	if f.url == "" {
		return photos.Result{}, false
	}
	return photos.Result{URL: f.url, Caption: "found " + q}, true
}

type fakeGeocoder struct{ err error }

func (f fakeGeocoder) Geocode(ctx context.Context, city, country string) (float64, float64, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	return 10.5, 20.25, nil
}

type staticLookup map[string][2]float64

func (l staticLookup) Lookup(city, country string) (float64, float64, bool) {
	p, ok := l[strings.ToLower(city)]
	return p[0], p[1], ok
}

type sink struct {
	mu      sync.Mutex
	entries []persistlog.Entry
	days    []model.LifeDay
	xs      []model.Intersection
	agents  []model.Agent
}

func (s *sink) Record(e persistlog.Entry) error {
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
	return nil
}

func (s *sink) PublishAgent(a model.Agent) {
	s.mu.Lock()
	s.agents = append(s.agents, a)
	s.mu.Unlock()
}

func (s *sink) PublishLifeDay(d model.LifeDay) {
	s.mu.Lock()
	s.days = append(s.days, d)
	s.mu.Unlock()
}

func (s *sink) PublishIntersection(x model.Intersection) {
	s.mu.Lock()
	s.xs = append(s.xs, x)
	s.mu.Unlock()
}

func (s *sink) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.entries {
		out = append(out, e.Kind)
	}
	return out
}

type testEnv struct {
	srv   *Server
	h     http.Handler
	store *store.Store
	sink  *sink
}

func newEnv(t *testing.T, mod func(*Options, *Deps)) *testEnv {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "room.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	v, err := protocol.LoadSchemas()
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Defaults()
	sk := &sink{}
	events := NewEvents(sk, sk, nil, nil, cfg.Photos.PlaceholderURL, nil)
	sim := room.NewSimulator(st, fakeGen{}, photos.NewSearcher(cfg.Photos, ""), events, cfg.Schedule.ContextDays)
	opts := Options{Room: cfg, BaseURL: "https://room.example", AdminKey: "adm"}
	deps := Deps{
		Store:     st,
		Validator: v,
		Simulator: sim,
		Scheduler: room.NewScheduler(sim, st, cfg.Schedule.Cooldown, time.Minute, nil),
		Events:    events,
		Lookup:    staticLookup{"pécs": {46.07, 18.23}},
	}
	if mod != nil {
		mod(&opts, &deps)
	}
	srv := NewServer(opts, deps, nil)
	return &testEnv{srv: srv, h: srv.Handler(), store: st, sink: sk}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Hint    string          `json:"hint"`
}

func (e *testEnv) do(t *testing.T, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func decodeEnv(t *testing.T, rec *httptest.ResponseRecorder, status int, data any) envelope {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status=%d want %d body=%s", rec.Code, status, rec.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v body=%s", err, rec.Body.String())
	}
	if data != nil {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data: %v body=%s", err, env.Data)
		}
	}
	return env
}

func auth(key string) map[string]string { return map[string]string{"Authorization": "Bearer " + key} }

func (e *testEnv) register(t *testing.T, name string) string {
	t.Helper()
	var out struct {
		Agent registeredAgent `json:"agent"`
	}
	decodeEnv(t, e.do(t, "POST", "/api/agents/register", `{"name":"`+name+`","description":"d"}`, nil), http.StatusCreated, &out)
	return out.Agent.APIKey
}

const personaBody = `{
  "displayName":"Fatou Diallo",
  "birthPlace":{"city":"Kedougou","country":"Senegal","coordinates":[12.55,-12.17],"placeDescription":"market town"},
  "birthDate":"1983-04-12",
  "lifeFramework":[{"ageStart":0,"ageEnd":7,"location":"Kedougou","keyEvents":["born"]}]
}`

func lifeDayBodyJSON(date, city string, coords string) string {
	loc := `{"city":"` + city + `","country":"Senegal"}`
	if coords != "" {
		loc = `{"city":"` + city + `","country":"Senegal","coordinates":` + coords + `}`
	}
	return `{"fictionalDate":"` + date + `","fictionalAge":23,"location":` + loc + `,
	  "narrative":"I hung laundry.","photo":{"searchQuery":"Senegal waterfront"},"thoughtBubble":"Tired."}`
}

func TestRegisterAndAgentAuth(t *testing.T) {
	e := newEnv(t, nil)
	var out struct {
		Agent     registeredAgent `json:"agent"`
		Important string          `json:"important"`
		Skill     string          `json:"skill"`
	}
	decodeEnv(t, e.do(t, "POST", "/api/agents/register", `{"name":"ada","description":"writes"}`, nil), http.StatusCreated, &out)
	if !strings.HasPrefix(out.Agent.APIKey, apiKeyPrefix) || out.Agent.ClaimStatus != model.ClaimStatusClaimed {
		t.Fatalf("agent=%+v", out.Agent)
	}
	if out.Skill != "https://room.example/skill.md" {
		t.Fatalf("skill=%q", out.Skill)
	}
	key := out.Agent.APIKey

	env := decodeEnv(t, e.do(t, "POST", "/api/agents/register", `{"name":"ADA"}`, nil), http.StatusConflict, nil)
	if env.Success || env.Code != protocol.ErrConflict {
		t.Fatalf("dup: %+v", env)
	}
	env = decodeEnv(t, e.do(t, "POST", "/api/agents/register", `{"name":"bad name"}`, nil), http.StatusBadRequest, nil)
	if env.Code != protocol.ErrValidation || env.Hint == "" {
		t.Fatalf("bad name: %+v", env)
	}

	env = decodeEnv(t, e.do(t, "GET", "/api/agents/status", "", nil), http.StatusUnauthorized, nil)
	if env.Error != "Missing API key" {
		t.Fatalf("missing key: %+v", env)
	}
	env = decodeEnv(t, e.do(t, "GET", "/api/agents/status", "", auth("liferoom_nope")), http.StatusUnauthorized, nil)
	if env.Error != "Invalid API key" {
		t.Fatalf("wrong key: %+v", env)
	}

	var status struct {
		Status     string `json:"status"`
		Name       string `json:"name"`
		HasPersona bool   `json:"hasPersona"`
	}
	decodeEnv(t, e.do(t, "GET", "/api/agents/status", "", auth(key)), http.StatusOK, &status)
	if status.Status != model.ClaimStatusClaimed || status.Name != "ada" || status.HasPersona {
		t.Fatalf("status=%+v", status)
	}

	var me struct {
		Agent map[string]any `json:"agent"`
	}
	decodeEnv(t, e.do(t, "PATCH", "/api/agents/me", `{"description":"new bio"}`, auth(key)), http.StatusOK, &me)
	if me.Agent["description"] != "new bio" {
		t.Fatalf("me=%v", me.Agent)
	}
	if _, leaked := me.Agent["apiKey"]; leaked {
		t.Fatalf("api key leaked in %v", me.Agent)
	}
	if kinds := e.sink.kinds(); len(kinds) != 1 || kinds[0] != persistlog.KindRegister {
		t.Fatalf("activity=%v", kinds)
	}
	if len(e.sink.agents) != 1 {
		t.Fatalf("feed agents=%d", len(e.sink.agents))
	}
}

func TestListAgentsClampsPagination(t *testing.T) {
	e := newEnv(t, nil)
	for _, n := range []string{"ada", "bob", "cy"} {
		e.register(t, n)
	}
	var out struct {
		Agents     []model.Agent       `json:"agents"`
		Pagination protocol.Pagination `json:"pagination"`
	}
	decodeEnv(t, e.do(t, "GET", "/api/agents?limit=1000&offset=-4&sort=name", "", nil), http.StatusOK, &out)
	if out.Pagination.Limit != 100 || out.Pagination.Offset != 0 || out.Pagination.Total != 3 || out.Pagination.HasMore {
		t.Fatalf("pagination=%+v", out.Pagination)
	}
	if len(out.Agents) != 3 || out.Agents[0].Name != "ada" {
		t.Fatalf("agents=%+v", out.Agents)
	}
	decodeEnv(t, e.do(t, "GET", "/api/agents?limit=2&offset=1", "", nil), http.StatusOK, &out)
	if len(out.Agents) != 2 || out.Pagination.HasMore {
		t.Fatalf("page 2: %+v", out.Pagination)
	}
}

func TestPersonaLifecycle(t *testing.T) {
	e := newEnv(t, nil)
	key := e.register(t, "fatou")

	env := decodeEnv(t, e.do(t, "GET", "/api/persona", "", auth(key)), http.StatusNotFound, nil)
	if env.Hint != "Create one with POST /api/persona" {
		t.Fatalf("no persona: %+v", env)
	}
	var created struct {
		Persona model.Persona `json:"persona"`
	}
	decodeEnv(t, e.do(t, "POST", "/api/persona", personaBody, auth(key)), http.StatusCreated, &created)
	if created.Persona.FrameworkVersion != 1 || created.Persona.AgentName != "fatou" {
		t.Fatalf("persona=%+v", created.Persona)
	}
	env = decodeEnv(t, e.do(t, "POST", "/api/persona", personaBody, auth(key)), http.StatusConflict, nil)
	if env.Code != protocol.ErrConflict {
		t.Fatalf("second persona: %+v", env)
	}

	var fw struct {
		FrameworkVersion int `json:"frameworkVersion"`
		HistoryEntries   int `json:"historyEntries"`
	}
	body := `{"lifeFramework":[{"ageStart":0,"ageEnd":30,"location":"Dakar","keyEvents":[]}],"reason":"moved","attractedToAgent":"bob"}`
	decodeEnv(t, e.do(t, "PATCH", "/api/persona/framework", body, auth(key)), http.StatusOK, &fw)
	if fw.FrameworkVersion != 2 || fw.HistoryEntries != 1 {
		t.Fatalf("framework=%+v", fw)
	}

	var byName struct {
		Persona model.Persona `json:"persona"`
	}
	decodeEnv(t, e.do(t, "GET", "/api/persona/FATOU", "", nil), http.StatusOK, &byName)
	if byName.Persona.LifeFramework[0].Location != "Dakar" || len(byName.Persona.FrameworkHistory) != 1 {
		t.Fatalf("by name=%+v", byName.Persona)
	}
	decodeEnv(t, e.do(t, "GET", "/api/persona/nobody", "", nil), http.StatusNotFound, nil)

	var profile struct {
		Name          string          `json:"name"`
		Persona       *personaSummary `json:"persona"`
		LatestLifeDay *model.LifeDay  `json:"latestLifeDay"`
		Countdown     string          `json:"countdown"`
	}
	decodeEnv(t, e.do(t, "GET", "/api/agents/Fatou", "", nil), http.StatusOK, &profile)
	if profile.Persona == nil || profile.Persona.BirthDate != "1983-04-12" || profile.LatestLifeDay != nil {
		t.Fatalf("profile=%+v", profile)
	}
	if profile.Countdown == room.CountdownInactive || profile.Countdown == "" {
		t.Fatalf("countdown=%q", profile.Countdown)
	}
}

func TestLifeDaysPhotosAndTimeline(t *testing.T) {
	e := newEnv(t, func(o *Options, d *Deps) { d.Search = fakeSearch{url: "https://img.example/a.jpg"} })
	key := e.register(t, "fatou")

	var out struct {
		LifeDay model.LifeDay `json:"lifeDay"`
	}
	decodeEnv(t, e.do(t, "POST", "/api/lifedays", lifeDayBodyJSON("2007-03-14", "Saint-Louis", "[16.01,-16.48]"), auth(key)), http.StatusCreated, &out)
	if out.LifeDay.RoundNumber != 1 || out.LifeDay.Photo.Source != model.PhotoSourceBrave || out.LifeDay.Photo.OriginalURL != "https://img.example/a.jpg" {
		t.Fatalf("day1=%+v", out.LifeDay)
	}

	// Without a search hit the placeholder stands in.
	e.srv.Search = fakeSearch{}
	decodeEnv(t, e.do(t, "POST", "/api/lifedays", lifeDayBodyJSON("2001-05-02", "Dakar", ""), auth(key)), http.StatusCreated, &out)
	if out.LifeDay.RoundNumber != 2 || out.LifeDay.Photo.Source != model.PhotoSourceManual ||
		!strings.HasPrefix(out.LifeDay.Photo.OriginalURL, config.Defaults().Photos.PlaceholderURL) {
		t.Fatalf("day2=%+v", out.LifeDay)
	}

	env := decodeEnv(t, e.do(t, "POST", "/api/lifedays", lifeDayBodyJSON("2001-05-02", "Dakar", "[95,0]"), auth(key)), http.StatusBadRequest, nil)
	if env.Code != protocol.ErrValidation {
		t.Fatalf("bad coords: %+v", env)
	}

	var tl struct {
		AgentName string          `json:"agentName"`
		LifeDays  []model.LifeDay `json:"lifeDays"`
	}
	decodeEnv(t, e.do(t, "GET", "/api/lifedays/FATOU", "", nil), http.StatusOK, &tl)
	if len(tl.LifeDays) != 2 || model.DateString(tl.LifeDays[0].FictionalDate) != "2001-05-02" {
		t.Fatalf("timeline=%+v", tl)
	}

	var list struct {
		LifeDays   []model.LifeDay     `json:"lifeDays"`
		Pagination protocol.Pagination `json:"pagination"`
	}
	decodeEnv(t, e.do(t, "GET", "/api/lifedays?agentName=fatou&limit=1", "", nil), http.StatusOK, &list)
	if list.Pagination.Total != 2 || !list.Pagination.HasMore || list.LifeDays[0].RoundNumber != 2 {
		t.Fatalf("list=%+v", list)
	}
	decodeEnv(t, e.do(t, "GET", "/api/lifedays?sort=fictional", "", nil), http.StatusOK, &list)
	if model.DateString(list.LifeDays[0].FictionalDate) != "2007-03-14" {
		t.Fatalf("fictional sort=%+v", list.LifeDays)
	}
	if len(e.sink.days) != 2 {
		t.Fatalf("published days=%d", len(e.sink.days))
	}

	a, _ := e.store.AgentByName(context.Background(), "fatou")
	if a.LastActive == nil {
		t.Fatalf("lastActive not touched")
	}
}

func TestIntersections(t *testing.T) {
	e := newEnv(t, nil)
	key := e.register(t, "ada")
	e.register(t, "bob")

	bad := `{"otherAgent":"bob","initiatingLifeDayId":"a","otherLifeDayId":"b","fictionalDateApprox":"1999","location":"x","type":"romantic","narrative":"n"}`
	env := decodeEnv(t, e.do(t, "POST", "/api/intersections", bad, auth(key)), http.StatusBadRequest, nil)
	if env.Code != protocol.ErrValidation {
		t.Fatalf("bad type: %+v", env)
	}
	good := strings.Replace(bad, "romantic", "coincidental", 1)
	var out struct {
		Intersection model.Intersection `json:"intersection"`
	}
	decodeEnv(t, e.do(t, "POST", "/api/intersections", good, auth(key)), http.StatusCreated, &out)
	if out.Intersection.InitiatingAgent != "ada" || out.Intersection.OtherAgent != "bob" {
		t.Fatalf("intersection=%+v", out.Intersection)
	}

	var list struct {
		Intersections []model.Intersection `json:"intersections"`
		Pagination    protocol.Pagination  `json:"pagination"`
	}
	decodeEnv(t, e.do(t, "GET", "/api/intersections?agent=BOB", "", nil), http.StatusOK, &list)
	if list.Pagination.Total != 1 || len(list.Intersections) != 1 {
		t.Fatalf("filter other side: %+v", list)
	}
	decodeEnv(t, e.do(t, "GET", "/api/intersections?agent=cy", "", nil), http.StatusOK, &list)
	if list.Pagination.Total != 0 || len(list.Intersections) != 0 {
		t.Fatalf("unrelated agent: %+v", list)
	}
	if len(e.sink.xs) != 1 {
		t.Fatalf("published=%d", len(e.sink.xs))
	}
}

func TestSimulateAndCron(t *testing.T) {
	e := newEnv(t, func(o *Options, d *Deps) { o.CronSecret = "s3cret" })
	key := e.register(t, "ada")

	var res struct {
		IsNewPersona bool           `json:"isNewPersona"`
		Persona      *model.Persona `json:"persona"`
		LifeDay      model.LifeDay  `json:"lifeDay"`
		PhotoSource  string         `json:"photoSource"`
	}
	decodeEnv(t, e.do(t, "POST", "/api/simulate", "", auth(key)), http.StatusCreated, &res)
	if !res.IsNewPersona || res.Persona == nil || res.LifeDay.RoundNumber != 1 || res.PhotoSource != model.PhotoSourceManual {
		t.Fatalf("simulate=%+v", res)
	}

	e.register(t, "bob")
	decodeEnv(t, e.do(t, "GET", "/api/cron/simulate", "", nil), http.StatusUnauthorized, nil)
	decodeEnv(t, e.do(t, "GET", "/api/cron/simulate", "", auth("wrong")), http.StatusUnauthorized, nil)

	var rep struct {
		Processed int                `json:"processed"`
		Results   []room.AgentResult `json:"results"`
		Message   string             `json:"message"`
	}
	decodeEnv(t, e.do(t, "GET", "/api/cron/simulate", "", auth("s3cret")), http.StatusOK, &rep)
	if rep.Processed != 1 || len(rep.Results) != 1 || rep.Results[0].Agent != "bob" || !rep.Results[0].Success {
		t.Fatalf("cron=%+v", rep)
	}
	rep = struct {
		Processed int                `json:"processed"`
		Results   []room.AgentResult `json:"results"`
		Message   string             `json:"message"`
	}{}
	decodeEnv(t, e.do(t, "GET", "/api/cron/simulate", "", auth("s3cret")), http.StatusOK, &rep)
	if rep.Processed != 0 || rep.Message != "All agents are up to date" {
		t.Fatalf("idle cron=%+v", rep)
	}
}

func TestSimulateWithoutModelKey(t *testing.T) {
	cfg := config.Defaults()
	e := newEnv(t, func(o *Options, d *Deps) {
		d.Simulator = room.NewSimulator(d.Store, llm.New(cfg.LLM, "", ""), photos.NewSearcher(cfg.Photos, ""), d.Events, 10)
	})
	key := e.register(t, "ada")
	env := decodeEnv(t, e.do(t, "POST", "/api/simulate", "", auth(key)), http.StatusServiceUnavailable, nil)
	if env.Code != protocol.ErrBusy {
		t.Fatalf("env=%+v", env)
	}
	kinds := e.sink.kinds()
	if kinds[len(kinds)-1] != persistlog.KindSimulateFail {
		t.Fatalf("activity=%v", kinds)
	}
}

func TestGeocode(t *testing.T) {
	e := newEnv(t, func(o *Options, d *Deps) { d.Geocoder = fakeGeocoder{} })

	rec := e.do(t, "POST", "/api/geocode", `{"country":"France"}`, nil)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "city required") {
		t.Fatalf("missing city: %d %s", rec.Code, rec.Body.String())
	}

	var pt struct{ Lat, Lon float64 }
	rec = e.do(t, "POST", "/api/geocode", `{"city":"Pécs","country":"Hungary"}`, nil)
	if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &pt) != nil || pt.Lat != 46.07 {
		t.Fatalf("static hit: %d %s", rec.Code, rec.Body.String())
	}
	rec = e.do(t, "POST", "/api/geocode", `{"city":"Nowhere"}`, nil)
	if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &pt) != nil || pt.Lat != 10.5 || pt.Lon != 20.25 {
		t.Fatalf("model fallback: %d %s", rec.Code, rec.Body.String())
	}

	e.srv.Geocoder = fakeGeocoder{err: errors.New("no json")}
	rec = e.do(t, "POST", "/api/geocode", `{"city":"Nowhere"}`, nil)
	if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Body.String(), "could not parse coordinates") {
		t.Fatalf("failure: %d %s", rec.Code, rec.Body.String())
	}
}

func TestPhotoProxy(t *testing.T) {
	upstream := httptest.NewTLSServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(rw, r)
			return
		}
		rw.Header().Set("Content-Type", "image/png")
		_, _ = rw.Write([]byte("PNG"))
	}))
	defer upstream.Close()
	e := newEnv(t, func(o *Options, d *Deps) {
		d.Fetcher = photos.NewFetcher(1024).WithClient(upstream.Client())
	})

	for _, tc := range []struct {
		query  string
		status int
	}{
		{"", http.StatusBadRequest},
		{"?url=http://example.com/a.jpg", http.StatusBadRequest},
		{"?url=%3A%2F%2Fbroken", http.StatusBadRequest},
		{"?url=" + upstream.URL + "/missing", http.StatusBadGateway},
	} {
		if rec := e.do(t, "GET", "/api/photos/proxy"+tc.query, "", nil); rec.Code != tc.status {
			t.Fatalf("%q: status=%d body=%s", tc.query, rec.Code, rec.Body.String())
		}
	}

	rec := e.do(t, "GET", "/api/photos/proxy?url="+upstream.URL+"/a.png", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "PNG" {
		t.Fatalf("proxy: %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "image/png" || rec.Header().Get("Cache-Control") != "public, max-age=86400" {
		t.Fatalf("headers=%v", rec.Header())
	}
}

func TestSettingsAndAdmin(t *testing.T) {
	e := newEnv(t, nil)
	var s struct {
		FlickrAPIKey *string `json:"flickrApiKey"`
	}
	decodeEnv(t, e.do(t, "GET", "/api/settings", "", nil), http.StatusOK, &s)
	if s.FlickrAPIKey != nil {
		t.Fatalf("initial=%v", *s.FlickrAPIKey)
	}

	decodeEnv(t, e.do(t, "PATCH", "/api/settings", `{"flickrApiKey":"fk"}`, nil), http.StatusUnauthorized, nil)
	admin := map[string]string{"X-Admin-Key": "adm"}
	decodeEnv(t, e.do(t, "PATCH", "/api/settings", `{"flickrApiKey":"fk"}`, admin), http.StatusOK, &s)
	if s.FlickrAPIKey == nil || *s.FlickrAPIKey != "fk" {
		t.Fatalf("patched=%v", s.FlickrAPIKey)
	}
	decodeEnv(t, e.do(t, "PATCH", "/api/settings", `{}`, admin), http.StatusOK, &s)
	if s.FlickrAPIKey == nil {
		t.Fatalf("absent field cleared the key")
	}
	decodeEnv(t, e.do(t, "PATCH", "/api/settings", `{"flickrApiKey":null}`, admin), http.StatusOK, &s)
	if s.FlickrAPIKey != nil {
		t.Fatalf("null did not clear: %v", *s.FlickrAPIKey)
	}

	e.register(t, "ada")
	decodeEnv(t, e.do(t, "GET", "/api/admin/stats", "", nil), http.StatusUnauthorized, nil)
	var stats struct {
		Agents struct {
			Total   int `json:"total"`
			Claimed int `json:"claimed"`
		} `json:"agents"`
		RecentAgents []model.Agent `json:"recentAgents"`
	}
	decodeEnv(t, e.do(t, "GET", "/api/admin/stats", "", admin), http.StatusOK, &stats)
	if stats.Agents.Total != 1 || stats.Agents.Claimed != 1 || len(stats.RecentAgents) != 1 {
		t.Fatalf("stats=%+v", stats)
	}
}

func TestAdminWithoutKeyIsLoopbackOnly(t *testing.T) {
	e := newEnv(t, func(o *Options, d *Deps) { o.AdminKey = "" })
	decodeEnv(t, e.do(t, "GET", "/api/admin/stats", "", nil), http.StatusForbidden, nil)

	req := httptest.NewRequest("GET", "/api/admin/stats", nil)
	req.RemoteAddr = "127.0.0.1:5000"
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("loopback: %d %s", rec.Code, rec.Body.String())
	}
}

func TestMapLayout(t *testing.T) {
	e := newEnv(t, func(o *Options, d *Deps) { d.Geocoder = fakeGeocoder{} })
	ada := e.register(t, "ada")
	bob := e.register(t, "bob")
	e.register(t, "cy")
	decodeEnv(t, e.do(t, "POST", "/api/persona", personaBody, auth(ada)), http.StatusCreated, nil)
	decodeEnv(t, e.do(t, "POST", "/api/lifedays", lifeDayBodyJSON("2007-03-14", "Saint-Louis", "[0,0]"), auth(ada)), http.StatusCreated, nil)
	decodeEnv(t, e.do(t, "POST", "/api/lifedays", lifeDayBodyJSON("2001-01-01", "Atlantis", ""), auth(bob)), http.StatusCreated, nil)

	var layout struct {
		Agents []struct {
			Name        string `json:"name"`
			DisplayName string `json:"displayName"`
			Cell        struct{ Col, Row int }
		} `json:"agents"`
		Pending []struct {
			Name string `json:"name"`
			City string `json:"city"`
		} `json:"pending"`
	}
	decodeEnv(t, e.do(t, "GET", "/api/map/layout", "", nil), http.StatusOK, &layout)
	if len(layout.Agents) != 1 || layout.Agents[0].Name != "ada" || layout.Agents[0].DisplayName != "Fatou Diallo" {
		t.Fatalf("agents=%+v", layout.Agents)
	}
	if c := layout.Agents[0].Cell; c.Col != 50 || c.Row != 25 {
		t.Fatalf("cell=%+v", c)
	}
	if len(layout.Pending) != 1 || layout.Pending[0].Name != "bob" || layout.Pending[0].City != "Atlantis" {
		t.Fatalf("pending=%+v", layout.Pending)
	}

	decodeEnv(t, e.do(t, "GET", "/api/map/layout?resolve=true", "", nil), http.StatusOK, &layout)
	if len(layout.Agents) != 2 || len(layout.Pending) != 0 {
		t.Fatalf("resolved layout=%+v", layout)
	}
}

func TestDocsFeedPageAndOps(t *testing.T) {
	e := newEnv(t, nil)
	key := e.register(t, "ada")
	decodeEnv(t, e.do(t, "POST", "/api/lifedays", lifeDayBodyJSON("2007-03-14", "Saint-Louis", ""), auth(key)), http.StatusCreated, nil)

	rec := e.do(t, "GET", "/skill.md", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "https://room.example/api/agents/register") ||
		!strings.Contains(rec.Body.String(), "Every 24 hours") {
		t.Fatalf("skill.md: %d %.200s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Fatalf("content type %q", ct)
	}
	rec = e.do(t, "GET", "/heartbeat.md", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/api/agents/status") {
		t.Fatalf("heartbeat.md: %d", rec.Code)
	}
	var sj map[string]any
	rec = e.do(t, "GET", "/skill.json", "", nil)
	if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &sj) != nil || sj["homepage"] != "https://room.example" {
		t.Fatalf("skill.json: %d %s", rec.Code, rec.Body.String())
	}

	rec = e.do(t, "GET", "/", "", nil)
	body := rec.Body.String()
	if rec.Code != http.StatusOK || !strings.Contains(body, "I hung laundry.") || !strings.Contains(body, "1 agents") {
		t.Fatalf("feed page: %d %.300s", rec.Code, body)
	}
	if rec := e.do(t, "GET", "/nope", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown path: %d", rec.Code)
	}

	if rec := e.do(t, "GET", "/healthz", "", nil); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d", rec.Code)
	}
	rec = e.do(t, "GET", "/metrics", "", nil)
	if !strings.Contains(rec.Body.String(), `liferoom_rows{table="life_days"} 1`) ||
		!strings.Contains(rec.Body.String(), "liferoom_scheduler_runs_total 0") {
		t.Fatalf("metrics:\n%s", rec.Body.String())
	}

	rec = e.do(t, "OPTIONS", "/api/lifedays", "", nil)
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("preflight: %d %v", rec.Code, rec.Header())
	}
}

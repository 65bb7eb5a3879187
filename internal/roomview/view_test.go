package roomview

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"

	"liferoom.ai/internal/model"
)

type fakeFetcher struct {
	data Data
	err  error
}

func (f fakeFetcher) Fetch(ctx context.Context) (Data, error) { return f.data, f.err }

type fixedGeocoder struct {
	lat, lon float64
	calls    int
}

func (g *fixedGeocoder) Geocode(ctx context.Context, city, country string) (float64, float64, error) {
	g.calls++
	return g.lat, g.lon, nil
}

func newScreen(t *testing.T, w, h int) tcell.SimulationScreen {
	t.Helper()
	s := tcell.NewSimulationScreen("UTF-8")
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	s.SetSize(w, h)
	t.Cleanup(s.Fini)
	return s
}

// row returns the text of screen line y after the last Show.
func row(s tcell.SimulationScreen, y int) string {
	cells, w, _ := s.GetContents()
	var b strings.Builder
	for x := 0; x < w; x++ {
		c := cells[y*w+x]
		if len(c.Runes) == 0 {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(c.Runes[0])
	}
	return b.String()
}

func at(s tcell.SimulationScreen, x, y int) rune {
	return []rune(row(s, y))[x]
}

func day(agent string, round int, date, city string, coords *[2]float64) model.LifeDay {
	d, _ := time.Parse("2006-01-02", date)
	return model.LifeDay{
		ID: agent + "-" + date, AgentName: agent, RoundNumber: round, FictionalDate: d,
		Location: model.Location{City: city, Country: "Nowhere", Coordinates: coords},
	}
}

// lat 40, lon -150 lands on grid cell col 8, row 13.
func sampleData() Data {
	now := time.Now()
	return Data{
		Agents: []model.Agent{
			{Name: "ada", LastActive: &now},
			{Name: "bob"},
		},
		LifeDays: []model.LifeDay{
			day("ada", 2, "1990-01-02", "Somewhere", &[2]float64{40, -150}),
			day("bob", 5, "1985-03-01", "Elsewhere", &[2]float64{40, -120}),
		},
	}
}

func TestDrawsAvatarsAndStatus(t *testing.T) {
	s := newScreen(t, 80, 30)
	v := New(s, fakeFetcher{data: sampleData()}, Options{Cooldown: time.Hour})
	v.Refresh(context.Background())
	v.Draw()

	if got := at(s, 16, 13); got != 'A' {
		t.Fatalf("avatar initial at (16,13) = %q", got)
	}
	// bob at col 16 is drawn at x=32.
	if got := at(s, 32, 13); got != 'B' {
		t.Fatalf("bob initial at (32,13) = %q", got)
	}
	status := row(s, 29)
	if !strings.HasPrefix(status, " bob R5 ") {
		t.Fatalf("bob has the latest round and should lead the status bar: %q", status)
	}
	if !strings.Contains(status, "ada R2 ") || !strings.Contains(status, "UNACTIVE") {
		t.Fatalf("status=%q", status)
	}
}

func TestTabPansToAgent(t *testing.T) {
	s := newScreen(t, 80, 30)
	v := New(s, fakeFetcher{data: sampleData()}, Options{})
	v.Refresh(context.Background())

	// First card is bob.
	v.HandleEvent(tcell.NewEventKey(tcell.KeyTab, 0, tcell.ModNone))
	for i := 0; i < 1000 && v.Camera().Step(); i++ {
	}
	// Avatar centre is col*2+2 = 34; target centres it on x=40.
	if got := v.Camera().Offset; got != 6 {
		t.Fatalf("offset=%v", got)
	}
	v.Draw()
	if got := at(s, 38, 13); got != 'B' {
		t.Fatalf("bob should start at x=38 after the pan, got %q", got)
	}

	v.HandleEvent(tcell.NewEventKey(tcell.KeyTab, 0, tcell.ModNone))
	if target, ok := v.Camera().Target(); !ok || target != 22 {
		t.Fatalf("second tab target=%v animating=%v", target, ok)
	}
}

func TestDragPansAndClickSelects(t *testing.T) {
	s := newScreen(t, 80, 30)
	v := New(s, fakeFetcher{data: sampleData()}, Options{})
	v.Refresh(context.Background())
	v.Draw()

	v.Pointer(10, 5, true)
	v.Pointer(30, 5, true)
	v.Pointer(30, 5, false)
	if got := v.Camera().Offset; got != 20 {
		t.Fatalf("drag offset=%v", got)
	}
	if v.Camera().Animating() {
		t.Fatalf("a drag must not start a pan")
	}

	// Click on the second status card (ada).
	status := row(s, 29)
	x := len([]rune(status[:strings.Index(status, "ada")]))
	v.Pointer(x, 29, true)
	v.Pointer(x, 29, false)
	target, ok := v.Camera().Target()
	if !ok {
		t.Fatalf("click on a card should pan")
	}
	if target != 22 && target != 22+200 && target != 22-200 {
		t.Fatalf("target=%v", target)
	}
}

func TestFocusDrawsIntersectionLinks(t *testing.T) {
	draw := func(d Data) tcell.SimulationScreen {
		s := newScreen(t, 80, 30)
		v := New(s, fakeFetcher{data: d}, Options{})
		v.Refresh(context.Background())
		if !v.PanToAgent("ada") {
			t.Fatalf("ada is not on the map")
		}
		v.Draw()
		return s
	}

	// Between ada's avatar (x 16..19) and bob's (x 32..35) on row 13.
	alone := draw(sampleData())
	if got := at(alone, 24, 13); got == '─' {
		t.Fatalf("no intersection, yet a link was drawn")
	}

	d := sampleData()
	d.Intersections = []model.Intersection{{ID: "x1", InitiatingAgent: "bob", OtherAgent: "ada"}}
	linked := draw(d)
	for x := 20; x < 32; x++ {
		if got := at(linked, x, 13); got != '─' {
			t.Fatalf("link cell (%d,13) = %q", x, got)
		}
	}
	if got := at(linked, 16, 13); got != 'A' {
		t.Fatalf("avatar must sit on top of the link, got %q", got)
	}
}

func TestEscapeClearsFocusBeforeQuitting(t *testing.T) {
	s := newScreen(t, 80, 30)
	v := New(s, fakeFetcher{data: sampleData()}, Options{})
	v.Refresh(context.Background())
	v.PanToAgent("bob")
	if v.Focus() != "bob" {
		t.Fatalf("focus=%q", v.Focus())
	}
	if quit, _ := v.HandleEvent(tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone)); quit || v.Focus() != "" {
		t.Fatalf("esc with focus: quit=%v focus=%q", quit, v.Focus())
	}
	if quit, _ := v.HandleEvent(tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone)); !quit {
		t.Fatalf("second esc should quit")
	}
}

func TestAvatarUsesDisplayName(t *testing.T) {
	s := newScreen(t, 80, 30)
	d := sampleData()
	d.DisplayNames = map[string]string{"ada": "zed"}
	v := New(s, fakeFetcher{data: d}, Options{})
	v.Refresh(context.Background())
	v.Draw()
	if got := at(s, 16, 13); got != 'Z' {
		t.Fatalf("initial at (16,13) = %q", got)
	}
	if a, _ := v.Layout().Agent("bob"); a.DisplayName != "bob" {
		t.Fatalf("bob display name = %q", a.DisplayName)
	}
}

func TestKeys(t *testing.T) {
	s := newScreen(t, 40, 10)
	v := New(s, fakeFetcher{}, Options{})
	if quit, _ := v.HandleEvent(tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone)); !quit {
		t.Fatalf("q should quit")
	}
	if quit, _ := v.HandleEvent(tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone)); !quit {
		t.Fatalf("esc should quit")
	}
	if _, refresh := v.HandleEvent(tcell.NewEventKey(tcell.KeyRune, 'r', tcell.ModNone)); !refresh {
		t.Fatalf("r should refresh")
	}
	v.HandleEvent(tcell.NewEventKey(tcell.KeyLeft, 0, tcell.ModNone))
	if v.Camera().Offset != 10 {
		t.Fatalf("left offset=%v", v.Camera().Offset)
	}
}

func TestFetchFailureShowsEmptyMap(t *testing.T) {
	s := newScreen(t, 60, 12)
	v := New(s, fakeFetcher{err: errors.New("connection refused")}, Options{})
	v.Refresh(context.Background())
	v.Draw()
	if n := len(v.Layout().Agents); n != 0 {
		t.Fatalf("agents=%d", n)
	}
	if got := row(s, 11); !strings.Contains(got, "no agents (connection refused)") {
		t.Fatalf("status=%q", got)
	}
}

func TestPendingAgentsResolveThroughGeocoder(t *testing.T) {
	s := newScreen(t, 80, 30)
	d := Data{
		Agents:   []model.Agent{{Name: "cy"}},
		LifeDays: []model.LifeDay{day("cy", 1, "2000-01-01", "Atlantis", nil)},
	}
	geo := &fixedGeocoder{lat: 40, lon: -150}
	v := New(s, fakeFetcher{data: d}, Options{Geocoder: geo})
	v.Refresh(context.Background())
	a, ok := v.Layout().Agent("cy")
	if !ok || a.Cell.Col != 8 || a.Cell.Row != 13 {
		t.Fatalf("cy=%+v ok=%v", a, ok)
	}
	v.Refresh(context.Background())
	if geo.calls != 1 {
		t.Fatalf("geocoder should be asked once, calls=%d", geo.calls)
	}
}

func TestClientFetchAndGeocode(t *testing.T) {
	mux := http.NewServeMux()
	ok := func(rw http.ResponseWriter, data any) {
		_ = json.NewEncoder(rw).Encode(map[string]any{"success": true, "data": data})
	}
	mux.HandleFunc("/api/agents", func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sort") != "active" {
			t.Errorf("agents query=%s", r.URL.RawQuery)
		}
		ok(rw, map[string]any{"agents": []model.Agent{{Name: "ada", HasPersona: true}, {Name: "bob", HasPersona: true}}})
	})
	mux.HandleFunc("/api/persona/{name}", func(rw http.ResponseWriter, r *http.Request) {
		if r.PathValue("name") != "ada" {
			rw.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(rw).Encode(map[string]any{"success": false, "error": "Persona not found"})
			return
		}
		ok(rw, map[string]any{"persona": model.Persona{AgentName: "ada", DisplayName: "Ada L."}})
	})
	mux.HandleFunc("/api/lifedays", func(rw http.ResponseWriter, r *http.Request) {
		ok(rw, map[string]any{"lifeDays": []model.LifeDay{day("ada", 1, "1990-01-01", "Oslo", nil)}})
	})
	mux.HandleFunc("/api/intersections", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(rw).Encode(map[string]any{"success": false, "error": "db down"})
	})
	mux.HandleFunc("/api/geocode", func(rw http.ResponseWriter, r *http.Request) {
		var in struct{ City, Country string }
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in.City == "Nowhere" {
			rw.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(rw).Encode(map[string]any{"error": "not found"})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]float64{"lat": 59.9, "lon": 10.7})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	d, err := c.Fetch(context.Background())
	if err == nil || !strings.Contains(err.Error(), "db down") {
		t.Fatalf("err=%v", err)
	}
	if len(d.Agents) != 2 || len(d.LifeDays) != 1 || len(d.Intersections) != 0 {
		t.Fatalf("data=%+v", d)
	}
	// bob's missing persona is not an error.
	if len(d.DisplayNames) != 1 || d.DisplayNames["ada"] != "Ada L." {
		t.Fatalf("displayNames=%v", d.DisplayNames)
	}

	lat, lon, err := c.Geocode(context.Background(), "Oslo", "Norway")
	if err != nil || lat != 59.9 || lon != 10.7 {
		t.Fatalf("geocode=%v,%v err=%v", lat, lon, err)
	}
	if _, _, err := c.Geocode(context.Background(), "Nowhere", ""); err == nil {
		t.Fatalf("expected geocode error")
	}
}

func TestRunQuitsOnKey(t *testing.T) {
	s := newScreen(t, 40, 10)
	v := New(s, fakeFetcher{data: sampleData()}, Options{})
	done := make(chan struct{})
	go func() {
		v.Run(context.Background(), time.Minute)
		close(done)
	}()
	s.InjectKey(tcell.KeyRune, 'q', tcell.ModNone)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after q")
	}
}

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"liferoom.ai/internal/config"
	"liferoom.ai/internal/model"
)

func fakeServer(t *testing.T, reply string, check func(r *http.Request, req chatRequest)) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req chatRequest
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &req)
		if check != nil {
			check(r, req)
		}
		resp := map[string]any{"choices": []any{map[string]any{"message": map[string]any{"content": reply}}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	cfg := config.Defaults().LLM
	cfg.BaseURL = srv.URL
	return New(cfg, "sk-test", "https://room.example")
}

func TestCompleteSendsHeaders(t *testing.T) {
	c := fakeServer(t, "hello", func(r *http.Request, req chatRequest) {
		if r.Header.Get("Authorization") != "Bearer sk-test" || r.Header.Get("X-Title") != "AI Life Room" {
			t.Errorf("headers: %v", r.Header)
		}
		if r.Header.Get("HTTP-Referer") != "https://room.example" {
			t.Errorf("referer: %q", r.Header.Get("HTTP-Referer"))
		}
		if req.Model != "stepfun/step-3.5-flash:free" || len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("request: %+v", req)
		}
	})
	out, err := c.Complete(context.Background(), "sys", "user")
	if err != nil || out != "hello" {
		t.Fatalf("out=%q err=%v", out, err)
	}
}

func TestCompleteErrors(t *testing.T) {
	if _, err := New(config.Defaults().LLM, "", "").Complete(context.Background(), "a", "b"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err=%v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()
	cfg := config.Defaults().LLM
	cfg.BaseURL = srv.URL
	cfg.Timeout = time.Second
	_, err := New(cfg, "k", "").Complete(context.Background(), "a", "b")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("err=%v", err)
	}

	empty := fakeServer(t, "  ", nil)
	if _, err := empty.Complete(context.Background(), "a", "b"); err == nil {
		t.Fatalf("expected empty-response error")
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		ok   bool
	}{
		{"raw", `{"a":1}`, true},
		{"fenced", "Sure!\n```json\n{\"a\":1}\n```\nenjoy", true},
		{"fenced no lang", "```\n{\"a\":1}\n```", true},
		{"embedded", `here you go: {"a":1} thanks`, true},
		{"garbage", `no json at all`, false},
	}
	for _, tc := range tests {
		var v struct{ A int }
		err := ExtractJSON(tc.in, &v)
		if (err == nil) != tc.ok || (tc.ok && v.A != 1) {
			t.Fatalf("%s: v=%+v err=%v", tc.name, v, err)
		}
	}
}

func TestGeneratePersona(t *testing.T) {
	reply := "```json\n" + `{
		"displayName": "Ilse Varga",
		"birthPlace": {"city": "Tokaj", "country": "Hungary", "coordinates": [48.12, 21.41], "placeDescription": "wine town"},
		"birthDate": "1979-06-02",
		"lifeFramework": [{"ageStart": 0, "ageEnd": 10, "location": "Tokaj, Hungary", "keyEvents": ["school"]}]
	}` + "\n```"
	var prompt string
	c := fakeServer(t, reply, func(r *http.Request, req chatRequest) { prompt = req.Messages[1].Content })
	d, err := c.GeneratePersona(context.Background(), "ada")
	if err != nil {
		t.Fatal(err)
	}
	if d.DisplayName != "Ilse Varga" || d.BirthPlace.Coordinates[0] != 48.12 || len(d.LifeFramework) != 1 {
		t.Fatalf("draft=%+v", d)
	}
	if !strings.Contains(prompt, `"ada"`) {
		t.Fatalf("prompt missing agent name: %s", prompt)
	}

	bad := fakeServer(t, `{"displayName": ""}`, nil)
	if _, err := bad.GeneratePersona(context.Background(), "x"); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestGenerateLifeDay(t *testing.T) {
	reply := `{"fictionalDate":"1991-08-14","fictionalAge":"12","location":{"city":"Tokaj","country":"Hungary"},
		"narrative":"I ran.","thoughtBubble":"Hm.","photoSearchQuery":"Tokaj 1990s village life film photography",
		"interactions":[],"isTrajectoryDeviation":false,"deviationContext":null}`
	var prompt string
	c := fakeServer(t, reply, func(r *http.Request, req chatRequest) { prompt = req.Messages[1].Content })
	p := model.Persona{
		DisplayName:   "Ilse",
		BirthDate:     time.Date(1979, 6, 2, 0, 0, 0, 0, time.UTC),
		BirthPlace:    model.BirthPlace{City: "Tokaj", Country: "Hungary"},
		LifeFramework: []model.FrameworkBand{{AgeStart: 0, AgeEnd: 10, Location: "Tokaj", KeyEvents: []string{"a", "b"}}},
	}
	d, err := c.GenerateLifeDay(context.Background(), p, "", []string{"1990-01-01"})
	if err != nil {
		t.Fatal(err)
	}
	if d.FictionalAge != 12 || d.Location.Coordinates != nil || d.DeviationContext != nil {
		t.Fatalf("draft=%+v", d)
	}
	for _, want := range []string{"Born: 1979 in Tokaj, Hungary", "Age 0-10 | Tokaj: a / b", "1990-01-01", "you are the first"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestSummarizeDays(t *testing.T) {
	got := SummarizeDays([]model.LifeDay{
		{AgentName: "bob", FictionalAge: 30, Location: model.Location{City: "Oslo"}, ThoughtBubble: "cold"},
		{AgentName: "cy", FictionalAge: 9, Location: model.Location{City: "Lima"}, ThoughtBubble: "warm"},
	})
	want := "@bob (age 30, Oslo): \"cold\"\n@cy (age 9, Lima): \"warm\""
	if got != want {
		t.Fatalf("got %q", got)
	}
}

func TestGeocode(t *testing.T) {
	tests := []struct {
		reply string
		ok    bool
	}{
		{`{"lat": 48.1, "lon": 21.4}`, true},
		{"```json\n{\"lat\": -33.9, \"lon\": 18.4}\n```", true},
		{`{"lat": "48.1", "lon": 21.4}`, false},
		{`I am not sure`, false},
	}
	for _, tc := range tests {
		var prompt string
		c := fakeServer(t, tc.reply, func(r *http.Request, req chatRequest) { prompt = req.Messages[1].Content })
		lat, lon, err := c.Geocode(context.Background(), "Tokaj", "")
		if (err == nil) != tc.ok {
			t.Fatalf("%q: lat=%v lon=%v err=%v", tc.reply, lat, lon, err)
		}
		if !strings.Contains(prompt, "Country: unknown") {
			t.Fatalf("prompt=%q", prompt)
		}
	}
}

// Package photos finds a documentary photo for a life day and proxies
// remote images for the browser.
package photos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"liferoom.ai/internal/config"
	"liferoom.ai/internal/model"
)

const userAgent = "Mozilla/5.0 (compatible; LifeRoomBot/1.0)"

// Result is one picked image.
type Result struct {
	URL     string
	Caption string
}

type Searcher struct {
	cfg      config.PhotosConfig
	endpoint string
	apiKey   string
	exclude  []string
	topN     int
	client   *http.Client

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSearcher(cfg config.PhotosConfig, apiKey string) *Searcher {
	topN := cfg.TopN
	if topN <= 0 {
		topN = 5
	}
	return &Searcher{
		cfg:      cfg,
		endpoint: cfg.SearchURL,
		apiKey:   strings.TrimSpace(apiKey),
		exclude:  cfg.Exclude,
		topN:     topN,
		client:   &http.Client{Timeout: 15 * time.Second},
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithRand replaces the random source used to pick among the top results.
func (s *Searcher) WithRand(r *rand.Rand) *Searcher {
	s.mu.Lock()
	s.rnd = r
	s.mu.Unlock()
	return s
}

func (s *Searcher) Configured() bool { return s != nil && s.apiKey != "" }

// BuildQuery appends the exclusion terms to the model's query.
func (s *Searcher) BuildQuery(raw string) string {
	q := strings.TrimSpace(raw)
	if len(s.exclude) == 0 {
		return q
	}
	return q + " " + strings.Join(s.exclude, " ")
}

type braveResponse struct {
	Results []struct {
		Title      string `json:"title"`
		Properties struct {
			URL string `json:"url"`
		} `json:"properties"`
		Thumbnail struct {
			Src string `json:"src"`
		} `json:"thumbnail"`
	} `json:"results"`
}

// Search returns one image picked at random from the first usable results.
// ok is false on any failure or when nothing usable came back.
func (s *Searcher) Search(ctx context.Context, rawQuery string) (Result, bool) {
	if !s.Configured() || strings.TrimSpace(rawQuery) == "" {
		return Result{}, false
	}
	params := url.Values{}
	params.Set("q", s.BuildQuery(rawQuery))
	params.Set("count", "10")
	params.Set("safesearch", "moderate")
	params.Set("search_lang", "en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return Result{}, false
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{}, false
	}
	var br braveResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&br); err != nil {
		return Result{}, false
	}

	var usable []Result
	for _, r := range br.Results {
		u := r.Properties.URL
		if u == "" {
			u = r.Thumbnail.Src
		}
		if u == "" {
			continue
		}
		caption := r.Title
		if caption == "" {
			caption = rawQuery
		}
		usable = append(usable, Result{URL: u, Caption: caption})
		if len(usable) == s.topN {
			break
		}
	}
	if len(usable) == 0 {
		return Result{}, false
	}
	s.mu.Lock()
	pick := usable[s.rnd.Intn(len(usable))]
	s.mu.Unlock()
	return pick, true
}

// Placeholder is the stand-in photo used when no search result is available.
func Placeholder(cfg config.PhotosConfig, query string) model.Photo {
	return model.Photo{
		OriginalURL: cfg.PlaceholderURL + "?seed=" + url.QueryEscape(query),
		Caption:     "[placeholder] " + query,
		SearchQuery: query,
		Source:      model.PhotoSourceManual,
	}
}

// Find searches for a photo and falls back to the placeholder.
func (s *Searcher) Find(ctx context.Context, query string) model.Photo {
	if r, ok := s.Search(ctx, query); ok {
		return model.Photo{
			OriginalURL: r.URL,
			Caption:     r.Caption,
			SearchQuery: query,
			Source:      model.PhotoSourceBrave,
		}
	}
	return Placeholder(s.cfg, query)
}

var (
	ErrMissingURL  = errors.New("missing url parameter")
	ErrInvalidURL  = errors.New("invalid url")
	ErrNotHTTPS    = errors.New("only https urls are allowed")
	ErrUpstream    = errors.New("failed to fetch image")
	ErrImageTooBig = errors.New("image too large")
)

// ValidateProxyURL accepts only absolute https URLs.
func ValidateProxyURL(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrMissingURL
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, ErrInvalidURL
	}
	if u.Scheme != "https" {
		return nil, ErrNotHTTPS
	}
	return u, nil
}

// Fetcher downloads remote images with a size cap.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

func NewFetcher(maxBytes int64) *Fetcher {
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &Fetcher{client: &http.Client{Timeout: 20 * time.Second}, maxBytes: maxBytes}
}

// WithClient swaps the HTTP client. Tests use it to trust a TLS test server.
func (f *Fetcher) WithClient(c *http.Client) *Fetcher {
	f.client = c
	return f
}

// Fetch returns the body and content type (image/jpeg when upstream sends none).
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := ValidateProxyURL(rawURL)
	if err != nil {
		return nil, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", ErrInvalidURL
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, "", ErrImageTooBig
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "image/jpeg"
	}
	return body, ct, nil
}

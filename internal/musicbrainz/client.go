// Package musicbrainz enriches catalogue artists that have no
// MusicBrainz identifier yet with that identifier and a short
// annotation. Lookups are
// rate-limited to one request per second as the service requires.
package musicbrainz

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/franz/medialib/internal/util"
)

const (
	// BaseURL is the MusicBrainz API base URL
	BaseURL = "https://musicbrainz.org/ws/2"

	// UserAgent identifies this application to MusicBrainz, which
	// rejects anonymous clients
	UserAgent = "medialib/1.0 (https://github.com/franz/medialib)"

	// RateLimit is the minimum spacing between requests
	RateLimit = 1 * time.Second
)

// Client handles MusicBrainz API requests with rate limiting
type Client struct {
	httpClient *http.Client
	userAgent  string

	mu          sync.Mutex
	lastRequest time.Time
}

// NewClient creates a new MusicBrainz API client
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  UserAgent,
	}
}

// Artist is the subset of a MusicBrainz artist record the library uses
type Artist struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	SortName       string `json:"sort-name"`
	Score          int    `json:"score"`
	Type           string `json:"type"`
	Country        string `json:"country"`
	Disambiguation string `json:"disambiguation"`
}

type artistSearchResult struct {
	Artists []Artist `json:"artists"`
	Count   int      `json:"count"`
}

// SearchArtist searches for an artist by name and returns the best
// match, or nil when nothing plausible came back
func (c *Client) SearchArtist(ctx context.Context, name string) (*Artist, error) {
	if name == "" {
		return nil, fmt.Errorf("artist name cannot be empty")
	}

	c.waitForRateLimit()

	urlStr := fmt.Sprintf("%s/artist/?query=%s&fmt=json&limit=5", BaseURL, url.QueryEscape(name))
	util.DebugLog("musicbrainz: searching for artist %q", name)

	req, err := http.NewRequestWithContext(ctx, "GET", urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return nil, fmt.Errorf("musicbrainz unavailable (503)")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	var result artistSearchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Artists) == 0 {
		util.DebugLog("musicbrainz: no results for %q", name)
		return nil, nil
	}

	best := &result.Artists[0]
	if best.Score < 90 {
		// weak matches do more harm than good in a library
		util.DebugLog("musicbrainz: best match for %q scored %d, ignoring", name, best.Score)
		return nil, nil
	}
	return best, nil
}

// waitForRateLimit spaces requests at least RateLimit apart
func (c *Client) waitForRateLimit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < RateLimit {
		time.Sleep(RateLimit - elapsed)
	}
	c.lastRequest = time.Now()
}

package library

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cb3tech/moshcast-live/internal/config"
	"github.com/cb3tech/moshcast-live/internal/domain"
)

// Client talks to the track-metadata service. It is a collaborator,
// not part of the sync core: plain JSON over HTTP, bearer token, no
// retries.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(cfg config.LibraryConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// GetTrack fetches one track's metadata by id.
func (c *Client) GetTrack(ctx context.Context, id string) (*domain.Track, error) {
	if id == "" {
		return nil, fmt.Errorf("track id is required")
	}

	var track domain.Track
	if err := c.get(ctx, "/tracks/"+url.PathEscape(id), &track); err != nil {
		return nil, fmt.Errorf("get track %s: %w", id, err)
	}
	return &track, nil
}

// ListTracks searches the library; an empty query lists everything the
// token can see.
func (c *Client) ListTracks(ctx context.Context, query string) ([]domain.Track, error) {
	path := "/tracks"
	if query != "" {
		path += "?q=" + url.QueryEscape(query)
	}

	var tracks []domain.Track
	if err := c.get(ctx, path, &tracks); err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	return tracks, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("not found")
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("unauthorized")
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

package versioncheck

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DefaultReleaseAPI is the base URL for the release feed.
const DefaultReleaseAPI = "https://api.github.com"

// releasePath is the latest-release endpoint for this project.
const releasePath = "/repos/keyplane/keyplane/releases/latest"

// fetchTimeout bounds the release fetch so a slow network never delays a
// CLI command noticeably.
const fetchTimeout = 2 * time.Second

// Release is the subset of release metadata the checker needs.
type Release struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// ReleaseClient fetches release metadata.
type ReleaseClient struct {
	baseURL string
	client  *http.Client
}

// NewReleaseClient creates a client for the given API base URL; tests
// point it at a mock server.
func NewReleaseClient(baseURL string) *ReleaseClient {
	return &ReleaseClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: fetchTimeout},
	}
}

// Latest fetches the most recent published release.
func (c *ReleaseClient) Latest() (*Release, error) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+releasePath, nil)
	if err != nil {
		return nil, fmt.Errorf("versioncheck: build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "keyplanectl")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("versioncheck: fetch release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("versioncheck: release feed returned status %d", resp.StatusCode)
	}

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("versioncheck: decode release: %w", err)
	}
	return &release, nil
}

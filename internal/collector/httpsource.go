package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPSource reads stats from a JSON endpoint, typically a thin proxy in
// front of the platform statistics API: GET {base}/{externalID} returning
// {"views": n, "likes": n, "comments": n}.
type HTTPSource struct {
	base   string
	client *http.Client
}

func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		base:   baseURL,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPSource) Stats(ctx context.Context, externalID string) (Stats, error) {
	u, err := url.JoinPath(s.base, externalID)
	if err != nil {
		return Stats{}, fmt.Errorf("build stats url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("build stats request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Stats{}, fmt.Errorf("fetch stats: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Stats{}, fmt.Errorf("stats endpoint returned %s", resp.Status)
	}

	var stats Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return Stats{}, fmt.Errorf("decode stats: %w", err)
	}
	return stats, nil
}

var _ TelemetrySource = (*HTTPSource)(nil)

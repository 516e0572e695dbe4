package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/wufuliang561/TrendRadar/internal/model"
)

const newsnowMaxBody = 4 << 20

// newsnowClient talks to a NewsNow-compatible aggregation API. One client is
// shared by every platform built from the same endpoint.
type newsnowClient struct {
	apiURL string
	http   *http.Client
}

func newNewsNowClient(apiURL string, timeout time.Duration) *newsnowClient {
	return &newsnowClient{
		apiURL: apiURL,
		http:   &http.Client{Timeout: timeout},
	}
}

type newsnowResponse struct {
	Status string `json:"status"`
	Items  []struct {
		Title     string `json:"title"`
		URL       string `json:"url"`
		MobileURL string `json:"mobileUrl"`
		Extra     struct {
			Info string `json:"info"`
		} `json:"extra"`
	} `json:"items"`
}

func (c *newsnowClient) fetch(ctx context.Context, platformID, platformName string) ([]model.Observation, error) {
	u, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("newsnow: bad api url: %w", err)
	}
	q := u.Query()
	q.Set("id", platformID)
	q.Set("latest", "")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("newsnow: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("newsnow: %s: %w", platformID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("newsnow: %s: unexpected status %d", platformID, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, newsnowMaxBody))
	if err != nil {
		return nil, fmt.Errorf("newsnow: %s: read body: %w", platformID, err)
	}

	var parsed newsnowResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("newsnow: %s: decode: %w", platformID, err)
	}
	// The API serves "cache" when the upstream list has not refreshed yet;
	// the items are still the current ranking.
	if parsed.Status != "success" && parsed.Status != "cache" {
		return nil, fmt.Errorf("newsnow: %s: status %q", platformID, parsed.Status)
	}

	obs := make([]model.Observation, 0, len(parsed.Items))
	for i, it := range parsed.Items {
		title := cleanTitle(it.Title)
		if title == "" {
			continue
		}
		obs = append(obs, model.Observation{
			Title:        title,
			PlatformID:   platformID,
			PlatformName: platformName,
			Rank:         i + 1,
			URL:          it.URL,
			MobileURL:    it.MobileURL,
			Hotness:      parseHotness(it.Extra.Info),
		})
	}
	return obs, nil
}

// parseHotness reads the optional "extra.info" annotation, which some
// platforms use for a raw engagement figure like "482万" or "12.3w".
func parseHotness(info string) float64 {
	if info == "" {
		return 0
	}
	var n float64
	var unit string
	if _, err := fmt.Sscanf(info, "%f%s", &n, &unit); err != nil {
		if _, err := fmt.Sscanf(info, "%f", &n); err != nil {
			return 0
		}
	}
	switch unit {
	case "万", "w", "W":
		n *= 10000
	case "亿":
		n *= 100000000
	case "k", "K":
		n *= 1000
	}
	if n < 0 {
		return 0
	}
	return n
}

// newsnowPlatform is one platform id served by a shared client.
type newsnowPlatform struct {
	client *newsnowClient
	id     string
	name   string
}

func (p *newsnowPlatform) ID() string   { return p.id }
func (p *newsnowPlatform) Name() string { return p.name }

func (p *newsnowPlatform) Fetch(ctx context.Context) ([]model.Observation, error) {
	return p.client.fetch(ctx, p.id, p.name)
}

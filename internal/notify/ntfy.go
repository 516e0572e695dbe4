package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/wufuliang561/TrendRadar/internal/config"
	"github.com/wufuliang561/TrendRadar/internal/report"
)

const (
	ntfyDefaultServer   = "https://ntfy.sh"
	ntfyDefaultMaxBytes = 4000
)

type ntfy struct {
	url      string
	token    string
	maxBytes int
	http     *http.Client
}

func newNtfy(cfg config.NtfyChannelConfig) *ntfy {
	server := cfg.ServerURL
	if server == "" {
		server = ntfyDefaultServer
	}
	max := cfg.MaxBytes
	if max <= 0 {
		max = ntfyDefaultMaxBytes
	}
	return &ntfy{
		url:      strings.TrimRight(server, "/") + "/" + cfg.Topic,
		token:    cfg.Token,
		maxBytes: max,
		http:     &http.Client{},
	}
}

func (n *ntfy) Name() string          { return "ntfy" }
func (n *ntfy) Flavor() report.Flavor { return report.FlavorMarkdown }
func (n *ntfy) MaxBytes() int         { return n.maxBytes }

func (n *ntfy) Send(ctx context.Context, text string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, strings.NewReader(text))
	if err != nil {
		return fmt.Errorf("ntfy: build request: %w", err)
	}
	req.Header.Set("Markdown", "yes")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("ntfy: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ntfy: status %d: %s", resp.StatusCode, snippet)
	}
	return nil
}

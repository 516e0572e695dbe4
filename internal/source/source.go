// Package source provides the collaborators that feed the engine:
// clients for ranked-list APIs and RSS feeds, normalized into Observations.
//
// Sources do the network I/O the engine itself never performs. Each source
// stands for one platform id; per-source failures are the caller's to
// collect, one broken platform never aborts a polling cycle.
package source

import (
	"context"
	"strings"

	"github.com/wufuliang561/TrendRadar/internal/config"
	"github.com/wufuliang561/TrendRadar/internal/model"
)

// Source is one platform feeding ranked observations.
type Source interface {
	ID() string
	Name() string
	Fetch(ctx context.Context) ([]model.Observation, error)
}

// Build assembles the configured sources.
func Build(cfg *config.Config) []Source {
	var out []Source

	if nn := cfg.Sources.NewsNow; nn != nil && nn.APIURL != "" {
		client := newNewsNowClient(nn.APIURL, cfg.RequestTimeout())
		for _, p := range nn.Platforms {
			if p.ID == "" {
				continue
			}
			name := p.Name
			if name == "" {
				name = p.ID
			}
			out = append(out, &newsnowPlatform{client: client, id: p.ID, name: name})
		}
	}

	for _, f := range cfg.Sources.RSS {
		if f.URL == "" {
			continue
		}
		out = append(out, newRSSFeed(f, cfg.RequestTimeout()))
	}

	return out
}

// cleanTitle collapses internal whitespace and trims the result, so the same
// headline hashes to the same identity key regardless of source formatting.
func cleanTitle(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

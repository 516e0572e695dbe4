// Package report assembles the engine's output into renderable digests:
// it selects the scope a run mode covers, renders word-group sections as
// atomic units, and packs them into channel-sized messages.
package report

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/wufuliang561/TrendRadar/internal/model"
	"github.com/wufuliang561/TrendRadar/internal/packer"
	"github.com/wufuliang561/TrendRadar/pkg/logx"
)

// Flavor is the markup dialect a channel expects.
type Flavor string

const (
	FlavorPlain    Flavor = "plain"
	FlavorMarkdown Flavor = "markdown"
	FlavorHTML     Flavor = "html"
)

// Data is one run's renderable payload.
type Data struct {
	Mode          model.Mode
	Date          string
	Groups        []*model.WordGroup
	NewItems      []*model.Item
	FailedSources []string
	GeneratedAt   time.Time
}

// Build selects the scope the run mode covers: the full day, the latest
// batch, or only what the latest batch introduced.
func Build(mode model.Mode, agg *model.DailyAggregate, batch *model.Batch, newItems []*model.Item, failed []string, now time.Time) Data {
	d := Data{
		Mode:          mode,
		Date:          agg.Date,
		NewItems:      newItems,
		FailedSources: failed,
		GeneratedAt:   now,
	}
	switch mode {
	case model.ModeCurrent:
		d.Groups = batch.Groups
	case model.ModeIncremental:
		d.Groups = onlyNew(batch.Groups)
	default:
		d.Groups = agg.Groups
	}
	return d
}

// onlyNew narrows batch groups to items the batch introduced, recomputing
// counts and percentages over the new set.
func onlyNew(groups []*model.WordGroup) []*model.WordGroup {
	totalNew := 0
	seen := map[model.ItemKey]bool{}
	for _, g := range groups {
		for _, it := range g.Items {
			if it.IsNew && !seen[it.Key()] {
				seen[it.Key()] = true
				totalNew++
			}
		}
	}

	var out []*model.WordGroup
	for _, g := range groups {
		ng := &model.WordGroup{Name: g.Name}
		for _, it := range g.Items {
			if it.IsNew {
				ng.Items = append(ng.Items, it)
			}
		}
		if len(ng.Items) == 0 {
			continue
		}
		ng.SetPercentage(totalNew)
		out = append(out, ng)
	}
	return out
}

// MatchedCount is the number of matches across all groups (an item matching
// two groups counts twice, mirroring the per-group tallies it sums).
func (d Data) MatchedCount() int {
	n := 0
	for _, g := range d.Groups {
		n += g.Count
	}
	return n
}

// Renderer turns Data into flavored text.
type Renderer struct {
	Flavor Flavor
}

func (r Renderer) Header(d Data) string {
	title := "Trend digest"
	switch d.Mode {
	case model.ModeCurrent:
		title = "Current list digest"
	case model.ModeIncremental:
		title = "New items digest"
	}
	line := fmt.Sprintf("%d matched items", d.MatchedCount())
	switch r.Flavor {
	case FlavorHTML:
		return fmt.Sprintf("<b>%s</b>\n\n%s\n\n", html.EscapeString(title), line)
	case FlavorMarkdown:
		return fmt.Sprintf("**%s**\n\n%s\n\n", title, line)
	default:
		return fmt.Sprintf("%s\n\n%s\n\n", title, line)
	}
}

func (r Renderer) Footer(d Data) string {
	var b strings.Builder
	b.WriteString("\n")
	if len(d.FailedSources) > 0 {
		b.WriteString(fmt.Sprintf("sources failed: %s\n", strings.Join(d.FailedSources, ", ")))
	}
	ts := d.GeneratedAt.Format("2006-01-02 15:04:05")
	switch r.Flavor {
	case FlavorHTML:
		b.WriteString("<code>" + ts + "</code>")
	default:
		b.WriteString(ts)
	}
	return b.String()
}

// Units renders one atomic unit per word-group section, plus a trailing
// "new since last batch" section. Units are what the packer may never split.
func (r Renderer) Units(d Data) []packer.Unit {
	var units []packer.Unit
	for _, g := range d.Groups {
		if g.Count <= 0 {
			continue
		}
		units = append(units, packer.Unit{Text: r.groupSection(g)})
	}
	if d.Mode != model.ModeIncremental && len(d.NewItems) > 0 {
		units = append(units, packer.Unit{Text: r.newSection(d.NewItems)})
	}
	return units
}

func (r Renderer) groupSection(g *model.WordGroup) string {
	var b strings.Builder
	head := fmt.Sprintf("%s (%d items, %.2f%%)", g.Name, g.Count, g.Percentage)
	switch r.Flavor {
	case FlavorHTML:
		b.WriteString("<b>" + html.EscapeString(head) + "</b>\n")
	case FlavorMarkdown:
		b.WriteString("**" + head + "**\n")
	default:
		b.WriteString(head + "\n")
	}
	for i, it := range g.Items {
		b.WriteString(r.itemLine(i+1, it, true))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

func (r Renderer) newSection(items []*model.Item) string {
	var b strings.Builder
	head := fmt.Sprintf("New since last batch (%d)", len(items))
	switch r.Flavor {
	case FlavorHTML:
		b.WriteString("<b>" + head + "</b>\n")
	case FlavorMarkdown:
		b.WriteString("**" + head + "**\n")
	default:
		b.WriteString(head + "\n")
	}
	for i, it := range items {
		b.WriteString(r.itemLine(i+1, it, true))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

func (r Renderer) itemLine(n int, it *model.Item, showSource bool) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%d. ", n))
	if showSource && it.PlatformName != "" {
		b.WriteString("[" + it.PlatformName + "] ")
	}

	url := it.URL
	if it.MobileURL != "" {
		url = it.MobileURL
	}
	switch r.Flavor {
	case FlavorHTML:
		if url != "" {
			b.WriteString(fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(url), html.EscapeString(it.Title)))
		} else {
			b.WriteString(html.EscapeString(it.Title))
		}
	case FlavorMarkdown:
		if url != "" {
			b.WriteString(fmt.Sprintf("[%s](%s)", it.Title, url))
		} else {
			b.WriteString(it.Title)
		}
	default:
		b.WriteString(it.Title)
	}

	b.WriteString(fmt.Sprintf(" (best #%d", it.BestRank))
	if it.Count > 1 {
		b.WriteString(fmt.Sprintf(", %dx", it.Count))
	}
	b.WriteString(")")
	if it.IsNew {
		b.WriteString(" *new*")
	}
	return b.String()
}

// Messages packs the rendered units into complete channel messages, each
// wrapped with the header and footer. maxBytes is the channel ceiling.
func (r Renderer) Messages(d Data, maxBytes int, log logx.Logger) []string {
	header := r.Header(d)
	footer := r.Footer(d)

	units := r.Units(d)
	if len(units) == 0 {
		return nil
	}

	chunks := packer.Pack(units, packer.Limits{
		MaxBytes:    maxBytes,
		HeaderBytes: len(header) + len(footer),
	}, log)

	msgs := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		msgs = append(msgs, header+packer.Join(chunk)+footer)
	}
	return msgs
}

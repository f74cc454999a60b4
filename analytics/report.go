package analytics

import (
	"fmt"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// Report is one periodic analytics snapshot.
type Report struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Clusters    []*ResearchCluster `json:"clusters,omitempty"`
	Gaps        []*ClusterGap      `json:"gaps,omitempty"`
	Trends      []*Trend           `json:"trends,omitempty"`
	Predictions []*PhasePrediction `json:"predictions,omitempty"`
}

// Markdown renders the report as a markdown document.
func (r *Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Research Landscape Report\n\n")
	fmt.Fprintf(&b, "Generated %s\n\n", r.GeneratedAt.Format("2006-01-02"))

	if len(r.Clusters) > 0 {
		b.WriteString("## Research Clusters\n\n")
		b.WriteString("| Cluster | Size | Publications | Avg Year | Growth |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, c := range r.Clusters {
			fmt.Fprintf(&b, "| %s | %d | %d | %.0f | %+.2f |\n",
				c.CommunityID, c.Size, c.PublicationCount, c.AvgPublicationYear, c.GrowthRate)
		}
		b.WriteString("\n")
	}

	if len(r.Gaps) > 0 {
		b.WriteString("## Cluster Gaps\n\n")
		for _, g := range r.Gaps {
			fmt.Fprintf(&b, "- **%s ↔ %s** (strength %.2f)", g.ClusterA, g.ClusterB, g.Strength)
			if len(g.BridgeTopics) > 0 {
				fmt.Fprintf(&b, "; bridge topics: %s", strings.Join(g.BridgeTopics, ", "))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(r.Trends) > 0 {
		b.WriteString("## Trends\n\n")
		for _, t := range r.Trends {
			fmt.Fprintf(&b, "- **%s**: %s (slope %.3f, R² %.2f over %d months)\n",
				t.Topic, t.Direction, t.Slope, t.R2, len(t.Points))
		}
		b.WriteString("\n")
	}

	if len(r.Predictions) > 0 {
		b.WriteString("## Lifecycle Forecasts\n\n")
		for _, p := range r.Predictions {
			fmt.Fprintf(&b, "- **%s**: %s → %s in ~%d months (confidence %.2f)\n",
				p.Topic, p.CurrentPhase, p.NextPhase, p.EstimatedMonths, p.Confidence)
			for _, f := range p.Factors {
				fmt.Fprintf(&b, "  - factor: %s\n", f)
			}
			for _, risk := range p.Risks {
				fmt.Fprintf(&b, "  - risk: %s\n", risk)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// HTML renders the report through the markdown pipeline for embedding in
// dashboards or mail.
func (r *Report) HTML() string {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse([]byte(r.Markdown()))

	htmlFlags := html.CommonFlags | html.HrefTargetBlank
	renderer := html.NewRenderer(html.RendererOptions{Flags: htmlFlags})
	return string(markdown.Render(doc, renderer))
}

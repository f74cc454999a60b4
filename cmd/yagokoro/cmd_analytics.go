package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yagokoro-dev/yagokoro/analytics"
	"github.com/yagokoro-dev/yagokoro/kg"
	"github.com/yagokoro-dev/yagokoro/llm"
)

var gapCmd = &cobra.Command{
	Use:   "gap",
	Short: "Find weakly connected research areas",
}

var gapAnalyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Profile the research clusters and their gaps",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		analyzer := analytics.NewClusterAnalyzer(a.graph, a.client, analytics.ClusterOptions{})
		clusters, err := analyzer.AnalyzeExistingClusters(cmd.Context())
		if err != nil {
			return err
		}
		gaps, err := analyzer.FindClusterGaps(cmd.Context())
		if err != nil {
			return err
		}

		if outputMode == outputJSON {
			return printJSON(map[string]any{"clusters": clusters, "gaps": gaps})
		}

		rows := make([][]string, 0, len(clusters))
		for _, c := range clusters {
			rows = append(rows, []string{
				c.CommunityID, strconv.Itoa(c.Size), strconv.Itoa(c.PublicationCount),
				fmt.Sprintf("%+.0f%%", c.GrowthRate*100),
				truncate(strings.Join(c.Keywords, ", "), 40),
			})
		}
		printTable(fmt.Sprintf("%d clusters", len(clusters)),
			[]string{"Community", "Size", "Papers", "Growth", "Keywords"}, rows)

		if len(gaps) == 0 {
			fmt.Println("no gaps below the connection threshold")
			return nil
		}
		fmt.Println()
		gapRows := make([][]string, 0, len(gaps))
		for _, g := range gaps {
			gapRows = append(gapRows, []string{
				g.ClusterA, g.ClusterB,
				strconv.FormatFloat(g.Strength, 'f', 2, 64),
				truncate(strings.Join(g.BridgeTopics, ", "), 48),
			})
		}
		printTable(fmt.Sprintf("%d gaps", len(gaps)),
			[]string{"Cluster A", "Cluster B", "Strength", "Bridge topics"}, gapRows)
		return nil
	},
}

const proposalPrompt = `Two research areas in the knowledge graph are weakly connected.

Area A (%s): %s
Area B (%s): %s
Candidate bridge topics: %s

Draft a short research proposal (2-3 paragraphs) for work that would bridge
these areas, building on the candidate topics.`

var gapProposalCmd = &cobra.Command{
	Use:   "proposal",
	Short: "Draft a research proposal bridging the widest gap",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		ctx := cmd.Context()

		analyzer := analytics.NewClusterAnalyzer(a.graph, a.client, analytics.ClusterOptions{})
		gaps, err := analyzer.FindClusterGaps(ctx)
		if err != nil {
			return err
		}
		if len(gaps) == 0 {
			fmt.Println("no gaps below the connection threshold")
			return nil
		}
		gap := gaps[0]

		keywordsA, keywordsB := clusterKeywords(ctx, a, gap.ClusterA), clusterKeywords(ctx, a, gap.ClusterB)
		prompt := fmt.Sprintf(proposalPrompt,
			gap.ClusterA, keywordsA, gap.ClusterB, keywordsB,
			strings.Join(gap.BridgeTopics, ", "))
		result, err := a.client.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, nil)
		if err != nil {
			return err
		}
		fmt.Println(result.Content)
		return nil
	},
}

func clusterKeywords(ctx context.Context, a *app, communityID string) string {
	c, err := a.graph.GetCommunity(ctx, communityID)
	if err != nil || len(c.Keywords) == 0 {
		return "(no keywords)"
	}
	return strings.Join(c.Keywords, ", ")
}

var lifecycleCmd = &cobra.Command{
	Use:   "lifecycle",
	Short: "Trend analysis and lifecycle forecasting for research topics",
}

var lifecycleAnalyzeCmd = &cobra.Command{
	Use:   "analyze <topic>",
	Short: "Fit the topic's activity trend and forecast its next phase",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		topic := strings.Join(args, " ")
		trend, prediction, err := analyzeTopic(cmd.Context(), a, topic)
		if err != nil {
			return err
		}
		if outputMode == outputJSON {
			return printJSON(map[string]any{"trend": trend, "prediction": prediction})
		}
		printTrend(trend, prediction)
		return nil
	},
}

var lifecycleAlertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Flag techniques whose activity is declining or volatile",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		ctx := cmd.Context()

		entities, err := a.graph.AllEntities(ctx)
		if err != nil {
			return err
		}

		alerts := 0
		for _, e := range entities {
			if e.Type != kg.EntityTechnique && e.Type != kg.EntityConcept {
				continue
			}
			trend, _, err := analyzeTopic(ctx, a, e.Name)
			if err != nil {
				continue
			}
			switch trend.Direction {
			case kg.TrendDeclining, kg.TrendVolatile:
				fmt.Printf("%s: %s (slope %+.2f, R² %.2f)\n",
					e.Name, trend.Direction, trend.Slope, trend.R2)
				alerts++
			}
		}
		if alerts == 0 {
			fmt.Println("no alerts")
		}
		return nil
	},
}

var lifecycleReportCmd = &cobra.Command{
	Use:   "periodic-report",
	Short: "Render the full analytics report",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		ctx := cmd.Context()

		analyzer := analytics.NewClusterAnalyzer(a.graph, a.client, analytics.ClusterOptions{})
		report := &analytics.Report{GeneratedAt: time.Now()}
		if report.Clusters, err = analyzer.AnalyzeExistingClusters(ctx); err != nil {
			return err
		}
		if report.Gaps, err = analyzer.FindClusterGaps(ctx); err != nil {
			return err
		}

		entities, err := a.graph.AllEntities(ctx)
		if err != nil {
			return err
		}
		for _, e := range entities {
			if e.Type != kg.EntityTechnique {
				continue
			}
			trend, prediction, err := analyzeTopic(ctx, a, e.Name)
			if err != nil {
				continue
			}
			report.Trends = append(report.Trends, trend)
			report.Predictions = append(report.Predictions, prediction)
		}

		switch {
		case outputMode == outputJSON:
			return printJSON(report)
		case reportHTML:
			fmt.Println(report.HTML())
		default:
			fmt.Println(report.Markdown())
		}
		return nil
	},
}

// analyzeTopic builds the topic's monthly activity series from the
// publication years in its neighbourhood and fits it.
func analyzeTopic(ctx context.Context, a *app, topic string) (*analytics.Trend, *analytics.PhasePrediction, error) {
	matches, err := a.graph.FindByName(ctx, topic)
	if err != nil {
		return nil, nil, err
	}
	if len(matches) == 0 {
		return nil, nil, kg.NewNotFound("entity", topic)
	}

	var events []time.Time
	for _, m := range matches {
		neighbours, _, err := a.graph.Neighbours(ctx, m.ID, 1, nil)
		if err != nil {
			return nil, nil, err
		}
		for _, n := range neighbours {
			if year, ok := entityYear(n); ok {
				// Years spread across months so a multi-year span fits a
				// meaningful monthly series.
				events = append(events, time.Date(year, time.June, 1, 0, 0, 0, 0, time.UTC))
			}
		}
	}
	if len(events) == 0 {
		return nil, nil, kg.NewNotFound("publication activity", topic)
	}

	predictor := analytics.NewTrendPredictor(analytics.TrendOptions{})
	trend := predictor.Analyze(topic, analytics.MonthlySeries(events))
	prediction := predictor.PredictPhase(trend, kg.LifecyclePhase(lifecyclePhase), lifecycleMonths)
	return trend, prediction, nil
}

func entityYear(e *kg.Entity) (int, bool) {
	switch v := e.Properties["year"].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func printTrend(trend *analytics.Trend, prediction *analytics.PhasePrediction) {
	kv("Topic", trend.Topic)
	kv("Direction", string(trend.Direction))
	kv("Slope", fmt.Sprintf("%+.3f", trend.Slope))
	kv("R²", fmt.Sprintf("%.3f", trend.R2))
	kv("Phase", string(prediction.CurrentPhase)+" -> "+string(prediction.NextPhase))
	kv("Transition", fmt.Sprintf("~%d months, confidence %.2f",
		prediction.EstimatedMonths, prediction.Confidence))
	for _, f := range prediction.Factors {
		fmt.Println("  + " + f)
	}
	for _, r := range prediction.Risks {
		fmt.Println("  - " + r)
	}
}

var (
	lifecyclePhase  string
	lifecycleMonths int
	reportHTML      bool
)

func init() {
	for _, c := range []*cobra.Command{lifecycleAnalyzeCmd, lifecycleAlertsCmd, lifecycleReportCmd} {
		c.Flags().StringVar(&lifecyclePhase, "phase", string(kg.PhaseInnovationTrigger), "current lifecycle phase")
		c.Flags().IntVar(&lifecycleMonths, "months-in-phase", 0, "months already spent in the phase")
	}
	lifecycleReportCmd.Flags().BoolVar(&reportHTML, "html", false, "render HTML instead of markdown")

	gapCmd.AddCommand(gapAnalyzeCmd, gapProposalCmd)
	lifecycleCmd.AddCommand(lifecycleAnalyzeCmd, lifecycleAlertsCmd, lifecycleReportCmd)
}

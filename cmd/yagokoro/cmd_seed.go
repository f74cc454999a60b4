package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yagokoro-dev/yagokoro/graphstore"
	"github.com/yagokoro-dev/yagokoro/kg"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the built-in starter dataset",
}

// seedEntities is a small curated graph of well-known AI research facts,
// enough to try every query surface on an empty deployment. Seeded nodes
// carry a seed property so clear can find them again.
var seedEntities = []*kg.Entity{
	{Type: kg.EntityOrganization, Name: "OpenAI", Description: "AI research company", Confidence: 1},
	{Type: kg.EntityOrganization, Name: "Anthropic", Description: "AI safety company", Confidence: 1},
	{Type: kg.EntityOrganization, Name: "Google DeepMind", Description: "AI research laboratory", Confidence: 1},
	{Type: kg.EntityAIModel, Name: "GPT-4", Description: "Large multimodal language model", Confidence: 1},
	{Type: kg.EntityAIModel, Name: "Claude 3", Description: "Large language model family", Confidence: 1},
	{Type: kg.EntityAIModel, Name: "Gemini", Description: "Multimodal language model family", Confidence: 1},
	{Type: kg.EntityTechnique, Name: "Transformer", Description: "Attention-based sequence architecture", Confidence: 1},
	{Type: kg.EntityTechnique, Name: "RLHF", Description: "Reinforcement learning from human feedback", Confidence: 1},
	{Type: kg.EntityPublication, Name: "Attention Is All You Need",
		Description: "Introduced the transformer architecture", Confidence: 1,
		Properties: map[string]any{"year": 2017}},
	{Type: kg.EntityBenchmark, Name: "MMLU", Description: "Multitask language understanding benchmark", Confidence: 1},
}

// seedRelations references entities by (type, name); IDs are resolved at
// ingest time.
var seedRelations = []struct {
	sourceType kg.EntityType
	source     string
	relType    kg.RelationType
	targetType kg.EntityType
	target     string
}{
	{kg.EntityAIModel, "GPT-4", kg.RelDevelopedBy, kg.EntityOrganization, "OpenAI"},
	{kg.EntityAIModel, "Claude 3", kg.RelDevelopedBy, kg.EntityOrganization, "Anthropic"},
	{kg.EntityAIModel, "Gemini", kg.RelDevelopedBy, kg.EntityOrganization, "Google DeepMind"},
	{kg.EntityAIModel, "GPT-4", kg.RelUsesTechnique, kg.EntityTechnique, "Transformer"},
	{kg.EntityAIModel, "Claude 3", kg.RelUsesTechnique, kg.EntityTechnique, "Transformer"},
	{kg.EntityAIModel, "Gemini", kg.RelUsesTechnique, kg.EntityTechnique, "Transformer"},
	{kg.EntityAIModel, "GPT-4", kg.RelUsesTechnique, kg.EntityTechnique, "RLHF"},
	{kg.EntityAIModel, "Claude 3", kg.RelUsesTechnique, kg.EntityTechnique, "RLHF"},
	{kg.EntityTechnique, "Transformer", kg.RelBasedOn, kg.EntityPublication, "Attention Is All You Need"},
	{kg.EntityAIModel, "GPT-4", kg.RelEvaluatedOn, kg.EntityBenchmark, "MMLU"},
	{kg.EntityAIModel, "Claude 3", kg.RelEvaluatedOn, kg.EntityBenchmark, "MMLU"},
	{kg.EntityAIModel, "Gemini", kg.RelEvaluatedOn, kg.EntityBenchmark, "MMLU"},
}

var seedIngestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Upsert the starter dataset into the graph",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		ctx := cmd.Context()

		for _, e := range seedEntities {
			seeded := *e
			if seeded.Properties == nil {
				seeded.Properties = map[string]any{}
			}
			seeded.Properties["seed"] = true
			if _, err := a.graph.UpsertEntity(ctx, &seeded); err != nil {
				return err
			}
		}
		created := 0
		for _, r := range seedRelations {
			source, err := a.graph.FindByTypeName(ctx, r.sourceType, r.source)
			if err != nil {
				return err
			}
			target, err := a.graph.FindByTypeName(ctx, r.targetType, r.target)
			if err != nil {
				return err
			}
			if _, err := a.graph.UpsertRelation(ctx, &kg.Relation{
				SourceID:   source.ID,
				TargetID:   target.ID,
				Type:       r.relType,
				Confidence: 1,
			}); err != nil {
				return err
			}
			created++
		}
		fmt.Printf("seeded %d entities and %d relations\n", len(seedEntities), created)
		return nil
	},
}

var seedPreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show the starter dataset without touching the graph",
	RunE: func(cmd *cobra.Command, args []string) error {
		if outputMode == outputJSON {
			return printJSON(seedEntities)
		}
		rows := make([][]string, 0, len(seedEntities))
		for _, e := range seedEntities {
			rows = append(rows, []string{string(e.Type), e.Name, e.Description})
		}
		printTable(fmt.Sprintf("%d entities, %d relations", len(seedEntities), len(seedRelations)),
			[]string{"Type", "Name", "Description"}, rows)
		return nil
	},
}

var seedClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every seeded entity and its relations",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		seeded, err := findSeeded(cmd.Context(), a.graph)
		if err != nil {
			return err
		}
		for _, e := range seeded {
			if err := a.graph.DeleteEntity(cmd.Context(), e.ID); err != nil {
				return err
			}
		}
		fmt.Printf("removed %d seeded entities\n", len(seeded))
		return nil
	},
}

var seedStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report how much of the starter dataset is present",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		seeded, err := findSeeded(cmd.Context(), a.graph)
		if err != nil {
			return err
		}
		fmt.Printf("%d of %d seed entities present\n", len(seeded), len(seedEntities))
		return nil
	},
}

func findSeeded(ctx context.Context, store graphstore.Store) ([]*kg.Entity, error) {
	entities, err := store.AllEntities(ctx)
	if err != nil {
		return nil, err
	}
	var seeded []*kg.Entity
	for _, e := range entities {
		if v, ok := e.Properties["seed"].(bool); ok && v {
			seeded = append(seeded, e)
		}
	}
	return seeded, nil
}

func init() {
	seedCmd.AddCommand(seedIngestCmd, seedPreviewCmd, seedClearCmd, seedStatusCmd)
}

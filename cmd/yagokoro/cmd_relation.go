package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/yagokoro-dev/yagokoro/graphstore"
	"github.com/yagokoro-dev/yagokoro/kg"
)

var relationCmd = &cobra.Command{
	Use:   "relation",
	Short: "Create and inspect relations between entities",
}

var relationCreateCmd = &cobra.Command{
	Use:   "create <source-id> <type> <target-id>",
	Short: "Create or merge a directed relation",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		relationType := kg.RelationType(args[1])
		if !relationType.Valid() {
			return kg.NewValidation("type", "unknown relation type "+args[1])
		}

		relation, err := a.graph.UpsertRelation(cmd.Context(), &kg.Relation{
			SourceID:   args[0],
			TargetID:   args[2],
			Type:       relationType,
			Confidence: relationConfidence,
		})
		if err != nil {
			return err
		}
		if outputMode == outputJSON {
			return printJSON(relation)
		}
		fmt.Printf("%s: %s -[%s]-> %s\n", relation.ID, relation.SourceID, relation.Type, relation.TargetID)
		return nil
	},
}

var relationSearchCmd = &cobra.Command{
	Use:   "search <entity-id>",
	Short: "List the relations around an entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		var filter *graphstore.RelationFilter
		if len(relationTypes) > 0 {
			filter = &graphstore.RelationFilter{}
			for _, t := range relationTypes {
				filter.Types = append(filter.Types, kg.RelationType(t))
			}
		}
		_, relations, err := a.graph.Neighbours(cmd.Context(), args[0], 1, filter)
		if err != nil {
			return err
		}

		if outputMode == outputJSON {
			return printJSON(relations)
		}
		rows := make([][]string, 0, len(relations))
		for _, r := range relations {
			rows = append(rows, []string{
				r.SourceID, string(r.Type), r.TargetID,
				strconv.FormatFloat(r.Confidence, 'f', 2, 64),
			})
		}
		printTable(fmt.Sprintf("%d relations", len(relations)),
			[]string{"Source", "Type", "Target", "Confidence"}, rows)
		return nil
	},
}

var (
	relationConfidence float64
	relationTypes      []string
)

func init() {
	relationCreateCmd.Flags().Float64Var(&relationConfidence, "confidence", 1.0, "relation confidence in [0,1]")
	relationSearchCmd.Flags().StringArrayVar(&relationTypes, "type", nil, "relation type filter, repeatable")
	relationCmd.AddCommand(relationCreateCmd, relationSearchCmd)
}

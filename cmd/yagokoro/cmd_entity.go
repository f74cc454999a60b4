package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yagokoro-dev/yagokoro/kg"
	"github.com/yagokoro-dev/yagokoro/vectorstore"
)

var entityCmd = &cobra.Command{
	Use:   "entity",
	Short: "Create, inspect, and manage graph entities",
}

var entityCreateCmd = &cobra.Command{
	Use:   "create <type> <name>",
	Short: "Create or merge an entity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		entityType := kg.EntityType(args[0])
		if !entityType.Valid() {
			return kg.NewValidation("type", "unknown entity type "+args[0])
		}

		props, err := parseProperties(entityProps)
		if err != nil {
			return err
		}
		entity, err := a.graph.UpsertEntity(cmd.Context(), &kg.Entity{
			Type:        entityType,
			Name:        args[1],
			Description: entityDescription,
			Properties:  props,
			Confidence:  entityConfidence,
		})
		if err != nil {
			return err
		}
		return printEntity(entity)
	},
}

var entityGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		entity, err := a.graph.GetEntity(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printEntity(entity)
	},
}

var entitySearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search entities by name and semantic similarity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		ctx := cmd.Context()

		seen := make(map[string]bool)
		var entities []*kg.Entity

		named, err := a.graph.FindByName(ctx, args[0])
		if err != nil {
			return err
		}
		for _, e := range named {
			seen[e.ID] = true
			entities = append(entities, e)
		}

		results, err := vectorstore.SearchText(ctx, a.vectors, a.client, args[0], entityLimit,
			vectorstore.Filter{Kind: vectorstore.KindEntity})
		if err != nil {
			printWarn("semantic search unavailable: %v", err)
		}
		for _, r := range results {
			if seen[r.Document.ID] || len(entities) >= entityLimit {
				continue
			}
			if e, err := a.graph.GetEntity(ctx, r.Document.ID); err == nil {
				seen[e.ID] = true
				entities = append(entities, e)
			}
		}

		if outputMode == outputJSON {
			return printJSON(entities)
		}
		rows := make([][]string, 0, len(entities))
		for _, e := range entities {
			rows = append(rows, []string{e.ID, string(e.Type), e.Name, truncate(e.Description, 48)})
		}
		printTable(fmt.Sprintf("%d entities", len(entities)), []string{"ID", "Type", "Name", "Description"}, rows)
		return nil
	},
}

var entityUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update an entity's description, properties, or confidence",
	Long: `Update runs through the merge contract: the new description and
property values win only when --confidence exceeds the stored confidence.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		existing, err := a.graph.GetEntity(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		props, err := parseProperties(entityProps)
		if err != nil {
			return err
		}
		updated, err := a.graph.UpsertEntity(cmd.Context(), &kg.Entity{
			Type:        existing.Type,
			Name:        existing.Name,
			Description: entityDescription,
			Properties:  props,
			Confidence:  entityConfidence,
		})
		if err != nil {
			return err
		}
		return printEntity(updated)
	},
}

var entityDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an entity and its relations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.graph.DeleteEntity(cmd.Context(), args[0]); err != nil {
			return err
		}
		if err := a.vectors.Delete(cmd.Context(), args[0]); err != nil {
			printWarn("entity deleted but its vector document was not: %v", err)
		}
		fmt.Println("deleted", args[0])
		return nil
	},
}

var (
	entityDescription string
	entityProps       []string
	entityConfidence  float64
	entityLimit       int
)

func init() {
	for _, c := range []*cobra.Command{entityCreateCmd, entityUpdateCmd} {
		c.Flags().StringVar(&entityDescription, "description", "", "entity description")
		c.Flags().StringArrayVar(&entityProps, "prop", nil, "property as key=value, repeatable")
		c.Flags().Float64Var(&entityConfidence, "confidence", 1.0, "extraction confidence in [0,1]")
	}
	entitySearchCmd.Flags().IntVar(&entityLimit, "limit", 10, "maximum results")

	entityCmd.AddCommand(entityCreateCmd, entityGetCmd, entitySearchCmd, entityUpdateCmd, entityDeleteCmd)
}

func printEntity(e *kg.Entity) error {
	if outputMode == outputJSON {
		return printJSON(e)
	}
	kv("ID", e.ID)
	kv("Type", string(e.Type))
	kv("Name", e.Name)
	if e.Description != "" {
		kv("Description", e.Description)
	}
	kv("Confidence", strconv.FormatFloat(e.Confidence, 'f', 2, 64))
	if len(e.Properties) > 0 {
		props, _ := json.Marshal(e.Properties)
		kv("Properties", string(props))
	}
	if len(e.SourceChunks) > 0 {
		kv("Sources", fmt.Sprintf("%d chunks", len(e.SourceChunks)))
	}
	return nil
}

// parseProperties turns key=value flags into a property map, guessing
// numeric types so years land as numbers.
func parseProperties(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	props := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, kg.NewValidation("prop", "property must be key=value, got "+pair)
		}
		if n, err := strconv.Atoi(value); err == nil {
			props[key] = n
		} else if f, err := strconv.ParseFloat(value, 64); err == nil {
			props[key] = f
		} else {
			props[key] = value
		}
	}
	return props, nil
}

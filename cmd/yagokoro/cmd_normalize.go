package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yagokoro-dev/yagokoro/graphstore"
	"github.com/yagokoro-dev/yagokoro/kg"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Find and merge entities that are the same thing under different names",
}

var normalizeDuplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "List groups of entities sharing a normalised name",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		groups, err := duplicateGroups(cmd.Context(), a.graph)
		if err != nil {
			return err
		}
		if outputMode == outputJSON {
			return printJSON(groups)
		}
		if len(groups) == 0 {
			fmt.Println("no duplicates found")
			return nil
		}
		for _, group := range groups {
			names := make([]string, len(group))
			for i, e := range group {
				names[i] = fmt.Sprintf("%s (%s, %s)", e.Name, e.Type, e.ID)
			}
			fmt.Println("- " + strings.Join(names, " / "))
		}
		return nil
	},
}

var normalizeRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Merge duplicate groups into their highest-confidence member",
	Long: `Run merges each duplicate group: the member with the highest confidence
survives, absorbs the others' relations and provenance, and the rest are
deleted. Groups spanning entity types are reported but never merged
automatically.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		ctx := cmd.Context()

		groups, err := duplicateGroups(ctx, a.graph)
		if err != nil {
			return err
		}

		merged, skipped := 0, 0
		for _, group := range groups {
			if mixedTypes(group) {
				printWarn("skipping %q: members span entity types", group[0].Name)
				skipped++
				continue
			}
			if err := mergeGroup(ctx, a.graph, group); err != nil {
				return err
			}
			merged++
		}
		fmt.Printf("merged %d groups, skipped %d\n", merged, skipped)
		return nil
	},
}

// duplicateGroups returns entities sharing an alias key, one slice per key,
// each sorted by confidence descending so the survivor comes first. The alias
// key is looser than kg.NormalizeName: separator characters are dropped too,
// so "GPT-4" and "GPT4" land in the same group even though the upsert
// contract treats them as distinct names.
func duplicateGroups(ctx context.Context, store graphstore.Store) ([][]*kg.Entity, error) {
	entities, err := store.AllEntities(ctx)
	if err != nil {
		return nil, err
	}

	byName := make(map[string][]*kg.Entity)
	for _, e := range entities {
		byName[aliasKey(e.Name)] = append(byName[aliasKey(e.Name)], e)
	}

	var groups [][]*kg.Entity
	for _, group := range byName {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			if group[i].Confidence != group[j].Confidence {
				return group[i].Confidence > group[j].Confidence
			}
			return group[i].ID < group[j].ID
		})
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0].ID < groups[j][0].ID })
	return groups, nil
}

func aliasKey(name string) string {
	norm := kg.NormalizeName(name)
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', '.', '+', '_', ' ':
			return -1
		}
		return r
	}, norm)
}

func mixedTypes(group []*kg.Entity) bool {
	for _, e := range group[1:] {
		if e.Type != group[0].Type {
			return true
		}
	}
	return false
}

// mergeGroup folds every member into the first one: relations are re-pointed
// at the survivor, provenance and properties merge through the upsert
// contract, and the absorbed entities are deleted.
func mergeGroup(ctx context.Context, store graphstore.Store, group []*kg.Entity) error {
	survivor := group[0]
	for _, absorbed := range group[1:] {
		_, relations, err := store.Neighbours(ctx, absorbed.ID, 1, nil)
		if err != nil {
			return err
		}
		for _, r := range relations {
			moved := *r
			moved.ID = ""
			if moved.SourceID == absorbed.ID {
				moved.SourceID = survivor.ID
			}
			if moved.TargetID == absorbed.ID {
				moved.TargetID = survivor.ID
			}
			if moved.SourceID == moved.TargetID {
				continue
			}
			if _, err := store.UpsertRelation(ctx, &moved); err != nil {
				return err
			}
		}

		if _, err := store.UpsertEntity(ctx, &kg.Entity{
			Type:         survivor.Type,
			Name:         survivor.Name,
			Description:  absorbed.Description,
			Properties:   absorbed.Properties,
			Confidence:   absorbed.Confidence,
			SourceChunks: absorbed.SourceChunks,
		}); err != nil {
			return err
		}
		if err := store.DeleteEntity(ctx, absorbed.ID); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	normalizeCmd.AddCommand(normalizeRunCmd, normalizeDuplicatesCmd)
}

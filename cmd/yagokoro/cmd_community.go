package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yagokoro-dev/yagokoro/community"
	"github.com/yagokoro-dev/yagokoro/graphstore"
	"github.com/yagokoro-dev/yagokoro/kg"
)

var communityCmd = &cobra.Command{
	Use:   "community",
	Short: "Detect, summarise, and inspect graph communities",
}

var communityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List communities at one level",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		communities, err := a.graph.Communities(cmd.Context(), communityLevel)
		if err != nil {
			return err
		}
		if outputMode == outputJSON {
			return printJSON(communities)
		}
		rows := make([][]string, 0, len(communities))
		for _, c := range communities {
			rows = append(rows, []string{
				c.ID, strconv.Itoa(c.Level), strconv.Itoa(c.MemberCount),
				truncate(c.Summary, 56),
			})
		}
		printTable(fmt.Sprintf("%d communities at level %d", len(communities), communityLevel),
			[]string{"ID", "Level", "Members", "Summary"}, rows)
		return nil
	},
}

var communityGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one community with its members",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.graph.GetCommunity(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if outputMode == outputJSON {
			return printJSON(c)
		}
		kv("ID", c.ID)
		kv("Level", strconv.Itoa(c.Level))
		kv("Members", strconv.Itoa(c.MemberCount))
		if c.Summary != "" {
			kv("Summary", c.Summary)
		}
		if len(c.Keywords) > 0 {
			kv("Keywords", strings.Join(c.Keywords, ", "))
		}
		for _, id := range c.MemberIDs {
			if e, err := a.graph.GetEntity(cmd.Context(), id); err == nil {
				fmt.Printf("  - %s (%s)\n", e.Name, e.Type)
			} else {
				fmt.Printf("  - %s\n", id)
			}
		}
		return nil
	},
}

var communityDetectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Re-run hierarchical community detection",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		detector := community.NewDetector(a.graph, community.Options{
			MinCommunitySize: communityMinSize,
			MaxLevels:        communityMaxLevels,
		})
		communities, err := detector.Run(cmd.Context(), graphstore.Projection{
			Name:        "cli-detect",
			Orientation: graphstore.Undirected,
		})
		if err != nil {
			return err
		}
		fmt.Printf("detected %d communities\n", len(communities))
		return nil
	},
}

var communitySummarizeCmd = &cobra.Command{
	Use:   "summarize [id]",
	Short: "Summarise one community, or --all for a whole level",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		ctx := cmd.Context()

		summarizer := community.NewSummarizer(a.client, a.graph)
		if communityAll {
			n, err := summarizer.SummarizeLevel(ctx, communityLevel, communityForce)
			if err != nil {
				return err
			}
			fmt.Printf("summarised %d communities at level %d\n", n, communityLevel)
			return nil
		}
		if len(args) == 0 {
			return kg.NewValidation("id", "a community id or --all is required")
		}

		c, err := a.graph.GetCommunity(ctx, args[0])
		if err != nil {
			return err
		}
		c, err = summarizer.Summarize(ctx, c, communityForce)
		if err != nil {
			return err
		}
		fmt.Println(c.Summary)
		return nil
	},
}

var communityHierarchyCmd = &cobra.Command{
	Use:   "hierarchy",
	Short: "Show the community hierarchy as a tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		all, err := a.graph.Communities(cmd.Context(), -1)
		if err != nil {
			return err
		}
		if outputMode == outputJSON {
			return printJSON(all)
		}

		byID := make(map[string]*kg.Community, len(all))
		maxLevel := 0
		for _, c := range all {
			byID[c.ID] = c
			if c.Level > maxLevel {
				maxLevel = c.Level
			}
		}
		var roots []treeNode
		for _, c := range all {
			if c.Level == maxLevel {
				roots = append(roots, communityNode(c, byID))
			}
		}
		printTree(treeNode{Label: fmt.Sprintf("communities (%d levels)", maxLevel+1), Children: roots})
		return nil
	},
}

func communityNode(c *kg.Community, byID map[string]*kg.Community) treeNode {
	label := fmt.Sprintf("%s (%d members)", c.ID, c.MemberCount)
	if c.Summary != "" {
		label += " " + truncate(c.Summary, 40)
	}
	node := treeNode{Label: label}
	for _, childID := range c.ChildIDs {
		if child, ok := byID[childID]; ok {
			node.Children = append(node.Children, communityNode(child, byID))
		}
	}
	return node
}

var (
	communityLevel     int
	communityMinSize   int
	communityMaxLevels int
	communityAll       bool
	communityForce     bool
)

func init() {
	communityListCmd.Flags().IntVar(&communityLevel, "level", 0, "hierarchy level")
	communityDetectCmd.Flags().IntVar(&communityMinSize, "min-size", 0, "minimum community size")
	communityDetectCmd.Flags().IntVar(&communityMaxLevels, "max-levels", 0, "hierarchy depth")
	communitySummarizeCmd.Flags().BoolVar(&communityAll, "all", false, "summarise every community at --level")
	communitySummarizeCmd.Flags().IntVar(&communityLevel, "level", 0, "hierarchy level for --all")
	communitySummarizeCmd.Flags().BoolVar(&communityForce, "force", false, "re-summarise even when membership is unchanged")

	communityCmd.AddCommand(communityListCmd, communityGetCmd, communityDetectCmd,
		communitySummarizeCmd, communityHierarchyCmd)
}

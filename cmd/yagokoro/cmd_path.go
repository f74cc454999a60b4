package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yagokoro-dev/yagokoro/kg"
	"github.com/yagokoro-dev/yagokoro/pathfind"
)

var pathCmd = &cobra.Command{
	Use:   "path",
	Short: "Multi-hop path reasoning between entities",
}

func newReasoner(a *app) *pathfind.Reasoner {
	return pathfind.NewReasoner(a.graph, a.client, a.cfg.Path.Locale, pathfind.CacheConfig{
		TTL:     time.Duration(a.cfg.Path.CacheTTLSeconds) * time.Second,
		MaxSize: a.cfg.Path.CacheSize,
	})
}

// pathQuery builds the bounded query every path subcommand shares. Endpoints
// are names; IDs also work because name resolution falls through to exact ID
// lookups only when the ID field is set, so --id switches interpretation.
func pathQuery(start, end string) pathfind.Query {
	q := pathfind.Query{MaxHops: pathMaxHops, MaxPaths: pathMaxPaths}
	if pathByID {
		q.StartID, q.EndID = start, end
	} else {
		q.StartName, q.EndName = start, end
	}
	for _, t := range pathRelTypes {
		q.RelationTypes = append(q.RelationTypes, kg.RelationType(t))
	}
	return q
}

var pathFindCmd = &cobra.Command{
	Use:   "find <start> <end>",
	Short: "Enumerate the best paths between two entities",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := newReasoner(a).FindPaths(cmd.Context(), pathQuery(args[0], args[1]))
		if err != nil {
			return err
		}
		if outputMode == outputJSON {
			return printJSON(result)
		}
		if result.Truncated {
			printWarn("path enumeration hit the %d-path budget; results are the best found", pathMaxPaths)
		}
		if len(result.Paths) == 0 {
			fmt.Println("no path found")
			return nil
		}
		for i, p := range result.Paths {
			fmt.Printf("%d. [score %.2f] %s\n", i+1, p.Score, renderPath(p))
		}
		return nil
	},
}

var pathShortestCmd = &cobra.Command{
	Use:   "shortest <start> <end>",
	Short: "Show the shortest connecting path",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := newReasoner(a).FindShortest(cmd.Context(), pathQuery(args[0], args[1]))
		if err != nil {
			return err
		}
		if p == nil {
			fmt.Println("no path found")
			return nil
		}
		if outputMode == outputJSON {
			return printJSON(p)
		}
		fmt.Println(renderPath(p))
		return nil
	},
}

var pathCheckCmd = &cobra.Command{
	Use:   "check <start> <end>",
	Short: "Report whether two entities are connected",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		connected, err := newReasoner(a).AreConnected(cmd.Context(), pathQuery(args[0], args[1]))
		if err != nil {
			return err
		}
		fmt.Println(connected)
		return nil
	},
}

var pathDegreesCmd = &cobra.Command{
	Use:   "degrees <start> <end>",
	Short: "Show the degrees of separation, or -1 when unconnected",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		degrees, err := newReasoner(a).DegreesOfSeparation(cmd.Context(), pathQuery(args[0], args[1]))
		if err != nil {
			return err
		}
		fmt.Println(degrees)
		return nil
	},
}

var pathExplainCmd = &cobra.Command{
	Use:   "explain <start> <end>",
	Short: "Explain the best path in natural language",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		reasoner := newReasoner(a)
		p, err := reasoner.FindShortest(cmd.Context(), pathQuery(args[0], args[1]))
		if err != nil {
			return err
		}
		if p == nil {
			fmt.Println("no path found")
			return nil
		}
		explanation, err := reasoner.Explain(cmd.Context(), p)
		if err != nil {
			return err
		}
		if outputMode == outputJSON {
			return printJSON(explanation)
		}
		fmt.Println(explanation.Text)
		for _, r := range explanation.KeyRelations {
			fmt.Printf("  - %s\n", r.Description)
		}
		return nil
	},
}

// renderPath formats a path as name -[TYPE]-> name.
func renderPath(p *kg.Path) string {
	if len(p.Entities) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(p.Entities[0].Name)
	for i, r := range p.Relations {
		b.WriteString(" -[" + string(r.Type) + "]-> ")
		if i+1 < len(p.Entities) {
			b.WriteString(p.Entities[i+1].Name)
		}
	}
	return b.String() + " (" + strconv.Itoa(p.Hops) + " hops)"
}

var (
	pathMaxHops  int
	pathMaxPaths int
	pathRelTypes []string
	pathByID     bool
)

func init() {
	for _, c := range []*cobra.Command{pathFindCmd, pathShortestCmd, pathCheckCmd, pathDegreesCmd, pathExplainCmd} {
		c.Flags().IntVar(&pathMaxHops, "max-hops", pathfind.DefaultMaxHops, "path length bound")
		c.Flags().IntVar(&pathMaxPaths, "max-paths", 0, "enumeration budget, 0 for the default")
		c.Flags().StringArrayVar(&pathRelTypes, "type", nil, "relation type filter, repeatable")
		c.Flags().BoolVar(&pathByID, "id", false, "treat the endpoints as entity IDs instead of names")
	}
	pathCmd.AddCommand(pathFindCmd, pathShortestCmd, pathCheckCmd, pathDegreesCmd, pathExplainCmd)
}

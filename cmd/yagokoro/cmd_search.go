package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yagokoro-dev/yagokoro/kg"
	"github.com/yagokoro-dev/yagokoro/query"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Ask the knowledge graph a question",
}

var searchLocalCmd = &cobra.Command{
	Use:   "local <question>",
	Short: "Entity-centric retrieval over query-relevant neighbourhoods",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		engine := query.NewLocalEngine(a.graph, a.vectors, a.client, query.LocalOptions{})
		resp, err := engine.Query(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		return printResponse(resp)
	},
}

var searchGlobalCmd = &cobra.Command{
	Use:   "global <question>",
	Short: "Corpus-level retrieval over community summaries",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		engine := query.NewGlobalEngine(a.graph, a.client, query.GlobalOptions{
			CommunityLevel: a.cfg.Query.CommunityLevel,
		})
		resp, err := engine.Query(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		return printResponse(resp)
	},
}

func printResponse(resp *kg.QueryResponse) error {
	if outputMode == outputJSON {
		return printJSON(resp)
	}
	if !resp.Success && resp.Error != "" {
		printWarn("%s", resp.Error)
	}
	fmt.Println(resp.Answer)
	if len(resp.Citations) > 0 {
		fmt.Println()
		rows := make([][]string, 0, len(resp.Citations))
		for _, c := range resp.Citations {
			rows = append(rows, []string{
				c.SourceName, c.SourceType, strconv.FormatFloat(c.Relevance, 'f', 2, 64),
			})
		}
		printTable("Citations", []string{"Source", "Kind", "Relevance"}, rows)
	}
	return nil
}

func init() {
	searchCmd.AddCommand(searchLocalCmd, searchGlobalCmd)
}

package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/yagokoro-dev/yagokoro/backup"
	"github.com/yagokoro-dev/yagokoro/kg"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Graph-wide statistics and export",
}

var graphStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show entity, relation, and community counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.graph.GraphStats(cmd.Context())
		if err != nil {
			return err
		}
		if outputMode == outputJSON {
			return printJSON(stats)
		}

		kv("Entities", strconv.Itoa(stats.Entities))
		kv("Relations", strconv.Itoa(stats.Relations))
		kv("Communities", strconv.Itoa(stats.Communities))

		types := make([]string, 0, len(stats.ByType))
		for t := range stats.ByType {
			types = append(types, string(t))
		}
		sort.Strings(types)
		rows := make([][]string, 0, len(types))
		for _, t := range types {
			rows = append(rows, []string{t, strconv.Itoa(stats.ByType[kg.EntityType(t)])})
		}
		printTable("", []string{"Type", "Count"}, rows)
		return nil
	},
}

var graphExportCmd = &cobra.Command{
	Use:   "export [path]",
	Short: "Export the whole graph as a JSON archive",
	Long:  "Export writes the same archive format `backup create` produces. Without a path the archive goes to stdout.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		manager := backup.NewManager(a.graph, a.vectors)
		if len(args) == 0 {
			return manager.Write(cmd.Context(), os.Stdout)
		}
		if err := manager.WriteFile(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println("exported to", args[0])
		return nil
	},
}

func init() {
	graphCmd.AddCommand(graphStatsCmd, graphExportCmd)
}

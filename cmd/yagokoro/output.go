package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
)

// Output modes accepted by --output.
const (
	outputJSON  = "json"
	outputTable = "table"
	outputTree  = "tree"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	branchStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	labelStyle  = lipgloss.NewStyle().Faint(true)
)

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printTable renders rows under a styled title. In json mode the caller
// should use printJSON instead; this is the table/tree fallback.
func printTable(title string, headers []string, rows [][]string) {
	if title != "" {
		fmt.Println(titleStyle.Render(title))
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoFormatHeaders(false)
	table.SetHeader(headers)
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()
}

// printWarn reports a partial failure that did not sink the command.
func printWarn(format string, v ...any) {
	fmt.Fprintln(os.Stderr, warnStyle.Render("warning: ")+fmt.Sprintf(format, v...))
}

// treeNode is one line of a rendered tree.
type treeNode struct {
	Label    string
	Children []treeNode
}

// printTree renders a hierarchy with box-drawing connectors.
func printTree(root treeNode) {
	fmt.Println(titleStyle.Render(root.Label))
	printBranches(root.Children, "")
}

func printBranches(nodes []treeNode, prefix string) {
	for i, n := range nodes {
		connector, childPrefix := "├── ", prefix+"│   "
		if i == len(nodes)-1 {
			connector, childPrefix = "└── ", prefix+"    "
		}
		fmt.Println(prefix + branchStyle.Render(connector) + n.Label)
		printBranches(n.Children, childPrefix)
	}
}

// kv prints one labelled value, used for detail views.
func kv(label, value string) {
	fmt.Printf("%s %s\n", labelStyle.Render(label+":"), value)
}

// truncate shortens s for table cells.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

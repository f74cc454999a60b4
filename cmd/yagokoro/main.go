// Package main is the yagokoro command line: graph CRUD, retrieval, ingestion,
// path reasoning, analytics, backup, and the MCP server, all over one
// configuration file.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yagokoro-dev/yagokoro/config"
	"github.com/yagokoro-dev/yagokoro/graphstore"
	"github.com/yagokoro-dev/yagokoro/llm"
	"github.com/yagokoro-dev/yagokoro/log"
	"github.com/yagokoro-dev/yagokoro/vectorstore"
)

var (
	configPath string
	outputMode string
)

var rootCmd = &cobra.Command{
	Use:   "yagokoro",
	Short: "Knowledge-graph retrieval over AI research literature",
	Long: `yagokoro builds and queries a knowledge graph of AI research:
papers, models, organisations, techniques, and the relations between them.

Retrieval runs locally (entity neighbourhoods), globally (community
summaries), or along explicit multi-hop paths.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch outputMode {
		case outputJSON, outputTable, outputTree:
			return nil
		}
		return fmt.Errorf("unknown output mode %q; valid values: json, table, tree", outputMode)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "configuration file (YAML)")
	rootCmd.PersistentFlags().StringVarP(&outputMode, "output", "o", outputTable, "output mode: json, table, or tree")

	rootCmd.AddCommand(
		entityCmd, relationCmd, communityCmd, graphCmd, searchCmd,
		mcpCmd, seedCmd, normalizeCmd, backupCmd, ingestCmd,
		pathCmd, gapCmd, lifecycleCmd,
	)
}

// app holds the stores and clients a command runs against, built once from
// the configuration.
type app struct {
	cfg     *config.Config
	graph   graphstore.Store
	vectors vectorstore.Store
	client  llm.Client
}

// newApp loads configuration and connects the configured backends.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	applyLogLevel(cfg.LogLevel)

	a := &app{cfg: cfg}

	switch cfg.Graph.Backend {
	case "", config.GraphBackendMemory:
		a.graph = graphstore.NewMemoryStore()
	case config.GraphBackendFalkor:
		a.graph = graphstore.NewFalkorStore(graphstore.FalkorConfig{
			Addr:     cfg.Graph.URI,
			Password: cfg.Graph.Password,
			Graph:    cfg.Graph.GraphName,
		})
	}

	switch cfg.Vector.Backend {
	case "", config.VectorBackendMemory:
		a.vectors = vectorstore.NewMemoryStore()
	case config.VectorBackendPGVector:
		a.vectors, err = vectorstore.NewPGStore(cmd.Context(), cfg.Vector.URI, cfg.Vector.Dimension)
		if err != nil {
			a.graph.Close()
			return nil, err
		}
	}

	a.client = llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		Dimension:      cfg.Vector.Dimension,
	})
	return a, nil
}

func (a *app) Close() {
	if a.graph != nil {
		a.graph.Close()
	}
	if a.vectors != nil {
		a.vectors.Close()
	}
}

func applyLogLevel(level string) {
	switch level {
	case "debug":
		log.SetLogLevel(log.LogLevelDebug)
	case "warn":
		log.SetLogLevel(log.LogLevelWarn)
	case "error":
		log.SetLogLevel(log.LogLevelError)
	default:
		log.SetLogLevel(log.LogLevelInfo)
	}
}

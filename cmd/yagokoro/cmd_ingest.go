package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yagokoro-dev/yagokoro/ingest"
	"github.com/yagokoro-dev/yagokoro/kg"
	"github.com/yagokoro-dev/yagokoro/services"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest papers into the knowledge graph",
}

var ingestArxivCmd = &cobra.Command{
	Use:   "arxiv <query>",
	Short: "Search arXiv and ingest the matching papers",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		ctx := cmd.Context()

		arxiv := services.NewArxivClient("", nil)
		papers, err := arxiv.Search(ctx, strings.Join(args, " "), ingestMaxResults)
		if err != nil {
			return err
		}
		if len(papers) == 0 {
			fmt.Println("no papers matched")
			return nil
		}

		docs := make([]ingest.Document, 0, len(papers))
		for _, p := range papers {
			docs = append(docs, ingest.Document{
				ID:         p.ID,
				Title:      p.Title,
				Content:    p.Abstract,
				Authors:    p.Authors,
				Year:       p.Published.Year(),
				Categories: p.Categories,
			})
		}
		return runIngest(cmd, a, docs)
	},
}

var ingestBatchCmd = &cobra.Command{
	Use:   "batch <documents.json>",
	Short: "Ingest a JSON file of documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var docs []ingest.Document
		if err := json.Unmarshal(data, &docs); err != nil {
			return kg.NewValidation("documents", "invalid document file: "+err.Error())
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return runIngest(cmd, a, docs)
	},
}

var ingestPDFCmd = &cobra.Command{
	Use:   "pdf <file.pdf>",
	Short: "Extract a PDF and ingest its text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		extractor := services.NewSubprocessExtractor(ingestPDFCommand)
		result, err := extractor.ExtractFromBuffer(cmd.Context(), data)
		if err != nil {
			return err
		}

		name := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
		title := result.Metadata["title"]
		if title == "" {
			title = name
		}
		doc := ingest.Document{
			ID:      "pdf-" + name,
			Title:   title,
			Content: result.Text,
		}
		if author := result.Metadata["author"]; author != "" {
			doc.Authors = []string{author}
		}
		fmt.Printf("extracted %d pages, %d words\n", result.NumPages, result.Stats.Words)
		return runIngest(cmd, a, []ingest.Document{doc})
	},
}

// runIngest pushes the documents through the pipeline and reports per-document
// outcomes. Failed documents produce warnings, not a failed exit, as long as
// at least one document landed.
func runIngest(cmd *cobra.Command, a *app, docs []ingest.Document) error {
	merger := ingest.NewMerger(a.graph, a.vectors, a.client)
	pipeline := ingest.NewPipeline(a.client, merger, ingest.PipelineOptions{
		MaxConcurrentDocuments: a.cfg.Ingest.MaxConcurrentDocuments,
		ChunkSize:              a.cfg.Ingest.ChunkSize,
		ChunkOverlap:           a.cfg.Ingest.ChunkOverlap,
	})

	result, err := pipeline.IngestDocuments(cmd.Context(), docs)
	if err != nil {
		return err
	}

	failed := result.Failed()
	for _, status := range failed {
		printWarn("document %s failed: %v", status.DocumentID, status.Err)
	}
	if len(failed) == len(docs) {
		return kg.NewFatal(fmt.Sprintf("all %d documents failed", len(docs)), nil)
	}

	if outputMode == outputJSON {
		return printJSON(result)
	}
	fmt.Printf("ingested %d of %d documents\n", len(docs)-len(failed), len(docs))
	return nil
}

var (
	ingestMaxResults int
	ingestPDFCommand string
)

func init() {
	ingestArxivCmd.Flags().IntVar(&ingestMaxResults, "max-results", 10, "papers to fetch")
	ingestPDFCmd.Flags().StringVar(&ingestPDFCommand, "extractor", "yagokoro-pdf", "PDF extraction command")
	ingestCmd.AddCommand(ingestArxivCmd, ingestBatchCmd, ingestPDFCmd)
}

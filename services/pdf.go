package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"os/exec"
	"strings"

	"github.com/yagokoro-dev/yagokoro/kg"
	"github.com/yagokoro-dev/yagokoro/log"
)

// PDFPage is the text of one page.
type PDFPage struct {
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
}

// PDFTable is one extracted table rendered as markdown.
type PDFTable struct {
	Markdown string `json:"markdown"`
}

// PDFStats summarises one extraction run.
type PDFStats struct {
	Chars        int   `json:"chars"`
	Words        int   `json:"words"`
	ProcessingMs int64 `json:"processing_ms"`
}

// PDFResult is the full output of a PDF extraction.
type PDFResult struct {
	Text     string            `json:"text"`
	NumPages int               `json:"num_pages"`
	Pages    []PDFPage         `json:"pages,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Tables   []PDFTable        `json:"tables,omitempty"`
	Stats    PDFStats          `json:"stats"`
}

// PDFExtractor turns a PDF buffer into text, pages, metadata, and tables.
type PDFExtractor interface {
	ExtractFromBuffer(ctx context.Context, data []byte) (*PDFResult, error)
}

// SubprocessExtractor shells out to an external extraction tool. The wire
// protocol is line-delimited JSON: the request object goes to stdin, the
// tool emits exactly one result object on stdout or one error object on
// stderr and exits non-zero on failure.
type SubprocessExtractor struct {
	Command string
	Args    []string
}

// NewSubprocessExtractor wires an extractor around the given command.
func NewSubprocessExtractor(command string, args ...string) *SubprocessExtractor {
	return &SubprocessExtractor{Command: command, Args: args}
}

type pdfRequest struct {
	PDFBase64 string `json:"pdf_base64"`
}

type pdfErrorLine struct {
	Error string `json:"error"`
}

// ExtractFromBuffer runs the subprocess for one document.
func (e *SubprocessExtractor) ExtractFromBuffer(ctx context.Context, data []byte) (*PDFResult, error) {
	if len(data) == 0 {
		return nil, kg.NewValidation("pdf", "empty buffer")
	}

	request, err := json.Marshal(pdfRequest{PDFBase64: base64.StdEncoding.EncodeToString(data)})
	if err != nil {
		return nil, kg.Wrap(err, "encode pdf request")
	}

	cmd := exec.CommandContext(ctx, e.Command, e.Args...)
	cmd.Stdin = bytes.NewReader(append(request, '\n'))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() != nil {
		return nil, kg.NewTimeout("pdf extraction cancelled", ctx.Err())
	}
	if runErr != nil {
		if msg := firstErrorLine(&stderr); msg != "" {
			return nil, kg.NewTransient("pdf extractor: "+msg, runErr)
		}
		return nil, kg.NewTransient("pdf extractor exited abnormally", runErr)
	}

	line, err := bufio.NewReader(&stdout).ReadString('\n')
	if err != nil && line == "" {
		return nil, kg.NewValidation("response", "pdf extractor emitted no result")
	}
	var result PDFResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &result); err != nil {
		return nil, kg.NewValidation("response", "pdf extractor emitted invalid JSON: "+err.Error())
	}
	log.Debug("pdf: extracted %d pages, %d chars", result.NumPages, result.Stats.Chars)
	return &result, nil
}

// firstErrorLine decodes the single error object the protocol allows on
// stderr.
func firstErrorLine(stderr *bytes.Buffer) string {
	line, _ := bufio.NewReader(stderr).ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return ""
	}
	var e pdfErrorLine
	if err := json.Unmarshal([]byte(line), &e); err != nil || e.Error == "" {
		return line
	}
	return e.Error
}

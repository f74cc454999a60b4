package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yagokoro-dev/yagokoro/kg"
)

func TestSubprocessExtractorResult(t *testing.T) {
	// A stand-in extractor that swallows stdin and emits one result line.
	script := `cat > /dev/null; echo '{"text": "hello world", "num_pages": 2, "pages": [{"page_number": 1, "text": "hello"}, {"page_number": 2, "text": "world"}], "metadata": {"title": "Test Doc"}, "stats": {"chars": 11, "words": 2, "processing_ms": 4}}'`
	extractor := NewSubprocessExtractor("sh", "-c", script)

	result, err := extractor.ExtractFromBuffer(context.Background(), []byte("%PDF-1.4 fake"))
	require.NoError(t, err)

	assert.Equal(t, "hello world", result.Text)
	assert.Equal(t, 2, result.NumPages)
	require.Len(t, result.Pages, 2)
	assert.Equal(t, 1, result.Pages[0].PageNumber)
	assert.Equal(t, "Test Doc", result.Metadata["title"])
	assert.Equal(t, 11, result.Stats.Chars)
}

func TestSubprocessExtractorErrorLine(t *testing.T) {
	script := `cat > /dev/null; echo '{"error": "encrypted document"}' >&2; exit 3`
	extractor := NewSubprocessExtractor("sh", "-c", script)

	_, err := extractor.ExtractFromBuffer(context.Background(), []byte("%PDF"))
	require.Error(t, err)
	assert.Equal(t, kg.KindTransientIO, kg.KindOf(err))
	assert.Contains(t, err.Error(), "encrypted document")
}

func TestSubprocessExtractorInvalidOutput(t *testing.T) {
	extractor := NewSubprocessExtractor("sh", "-c", `cat > /dev/null; echo 'not json'`)
	_, err := extractor.ExtractFromBuffer(context.Background(), []byte("%PDF"))
	assert.Equal(t, kg.KindValidation, kg.KindOf(err))
}

func TestSubprocessExtractorEmptyBuffer(t *testing.T) {
	extractor := NewSubprocessExtractor("sh", "-c", "true")
	_, err := extractor.ExtractFromBuffer(context.Background(), nil)
	assert.Equal(t, kg.KindValidation, kg.KindOf(err))
}

func TestSubprocessExtractorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	extractor := NewSubprocessExtractor("sh", "-c", "sleep 5")
	_, err := extractor.ExtractFromBuffer(ctx, []byte("%PDF"))
	assert.Equal(t, kg.KindTimeout, kg.KindOf(err))
}

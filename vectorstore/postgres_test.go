package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yagokoro-dev/yagokoro/kg"
)

func TestPGStoreUpsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPGStoreWithPool(mock)

	metaJSON, _ := json.Marshal(map[string]string{"type": "AIModel"})
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
		WithArgs("e1", KindEntity, "GPT-4", metaJSON, pgvector.NewVector([]float32{1, 0})).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.Upsert(context.Background(), Document{
		ID: "e1", Kind: KindEntity, Content: "GPT-4",
		Metadata:  map[string]string{"type": "AIModel"},
		Embedding: []float32{1, 0},
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreSearch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPGStoreWithPool(mock)

	rows := pgxmock.NewRows([]string{"id", "kind", "content", "metadata", "distance"}).
		AddRow("c1", KindChunk, "transformers", []byte(`{"document_id":"doc-1"}`), 0.1).
		AddRow("c2", KindChunk, "optimisers", []byte(`{}`), 0.4)

	mock.ExpectQuery("SELECT id, kind, content, metadata").
		WithArgs(pgvector.NewVector([]float32{1, 0}), KindChunk, 2).
		WillReturnRows(rows)

	res, err := store.Search(context.Background(), []float32{1, 0}, 2, Filter{Kind: KindChunk})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "c1", res[0].Document.ID)
	assert.InDelta(t, 0.9, res[0].Score, 1e-9, "score is 1 - cosine distance")
	assert.Equal(t, "doc-1", res[0].Document.Metadata["document_id"])
	assert.InDelta(t, 0.6, res[1].Score, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreDelete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPGStoreWithPool(mock)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents")).
		WithArgs([]string{"c1", "c2"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	assert.NoError(t, store.Delete(context.Background(), "c1", "c2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreStats(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPGStoreWithPool(mock)

	mock.ExpectQuery("SELECT count").
		WillReturnRows(pgxmock.NewRows([]string{"count", "coalesce"}).AddRow(42, 1536))

	st, err := store.VectorStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, st.Documents)
	assert.Equal(t, 1536, st.Dimension)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreErrorClassification(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPGStoreWithPool(mock)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents")).
		WithArgs([]string{"c1"}).
		WillReturnError(errors.New("connection refused"))

	err = store.Delete(context.Background(), "c1")
	assert.Equal(t, kg.KindTransientIO, kg.KindOf(err))
	assert.True(t, kg.IsRetryable(err))
}

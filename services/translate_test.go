package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yagokoro-dev/yagokoro/kg"
)

func TestDeepLClientTranslate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "JA", r.Form.Get("target_lang"))
		assert.Equal(t, []string{"hello", "world"}, r.Form["text"])
		assert.Contains(t, r.Header.Get("Authorization"), "DeepL-Auth-Key")
		w.Write([]byte(`{"translations": [{"text": "こんにちは"}, {"text": "世界"}]}`))
	}))
	defer server.Close()

	client := NewDeepLClient(server.URL, "test-key", server.Client())
	results, err := client.TranslateBatch(context.Background(), []string{"hello", "world"}, "en", "ja")
	require.NoError(t, err)
	assert.Equal(t, []string{"こんにちは", "世界"}, results)
}

func TestDeepLClientMismatchedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"translations": [{"text": "only one"}]}`))
	}))
	defer server.Close()

	client := NewDeepLClient(server.URL, "test-key", server.Client())
	_, err := client.TranslateBatch(context.Background(), []string{"a", "b"}, "en", "ja")
	assert.Equal(t, kg.KindValidation, kg.KindOf(err))
}

func TestDeepLClientRequiresTarget(t *testing.T) {
	client := NewDeepLClient("http://unused", "k", nil)
	_, err := client.Translate(context.Background(), "hello", "en", "")
	assert.Equal(t, kg.KindValidation, kg.KindOf(err))
}

// countingTranslator fakes the upstream API and counts calls.
type countingTranslator struct {
	calls int
}

func (c *countingTranslator) Translate(_ context.Context, text, _, target string) (string, error) {
	c.calls++
	return fmt.Sprintf("%s:%s", target, text), nil
}

func (c *countingTranslator) TranslateBatch(ctx context.Context, texts []string, source, target string) ([]string, error) {
	results := make([]string, len(texts))
	for i, text := range texts {
		translated, err := c.Translate(ctx, text, source, target)
		if err != nil {
			return nil, err
		}
		results[i] = translated
	}
	return results, nil
}

func TestCachedTranslatorHitsSkipUpstream(t *testing.T) {
	inner := &countingTranslator{}
	cache, err := NewCachedTranslator(inner, filepath.Join(t.TempDir(), "translate.db"))
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	first, err := cache.Translate(ctx, "hello", "en", "ja")
	require.NoError(t, err)
	second, err := cache.Translate(ctx, "hello", "en", "ja")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls, "second call must be served from the cache")
}

func TestCachedTranslatorKeyIncludesLanguages(t *testing.T) {
	inner := &countingTranslator{}
	cache, err := NewCachedTranslator(inner, filepath.Join(t.TempDir(), "translate.db"))
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	ja, err := cache.Translate(ctx, "hello", "en", "ja")
	require.NoError(t, err)
	de, err := cache.Translate(ctx, "hello", "en", "de")
	require.NoError(t, err)

	assert.NotEqual(t, ja, de)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedTranslatorBatchMixedHits(t *testing.T) {
	inner := &countingTranslator{}
	cache, err := NewCachedTranslator(inner, filepath.Join(t.TempDir(), "translate.db"))
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	_, err = cache.Translate(ctx, "cached", "en", "ja")
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)

	results, err := cache.TranslateBatch(ctx, []string{"cached", "fresh"}, "en", "ja")
	require.NoError(t, err)
	assert.Equal(t, []string{"ja:cached", "ja:fresh"}, results)
	assert.Equal(t, 2, inner.calls, "only the miss goes upstream")
}

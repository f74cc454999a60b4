package services

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/yagokoro-dev/yagokoro/kg"
	"github.com/yagokoro-dev/yagokoro/log"
)

// DefaultTranslateTimeout bounds a single translation call. Batch calls
// scale the timeout by batch size.
const DefaultTranslateTimeout = 2 * time.Second

// Translator converts research text between languages.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
	TranslateBatch(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error)
}

// DeepLClient is a DeepL-style HTTP translator.
type DeepLClient struct {
	BaseURL string
	APIKey  string
	// Timeout per single call. Zero means DefaultTranslateTimeout.
	Timeout time.Duration
	client  *http.Client
}

// NewDeepLClient returns a translator. httpClient may be nil.
func NewDeepLClient(baseURL, apiKey string, httpClient *http.Client) *DeepLClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &DeepLClient{BaseURL: baseURL, APIKey: apiKey, client: httpClient}
}

func (c *DeepLClient) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTranslateTimeout
	}
	return c.Timeout
}

// Translate converts one text.
func (c *DeepLClient) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	results, err := c.TranslateBatch(ctx, []string{text}, sourceLang, targetLang)
	if err != nil {
		return "", err
	}
	return results[0], nil
}

type deeplResponse struct {
	Translations []struct {
		Text string `json:"text"`
	} `json:"translations"`
}

// TranslateBatch converts texts in one call. The per-call timeout scales
// with batch size so large batches are not starved by the single-call
// default.
func (c *DeepLClient) TranslateBatch(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if targetLang == "" {
		return nil, kg.NewValidation("target_lang", "target language is required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout()*time.Duration(len(texts)))
	defer cancel()

	form := url.Values{}
	for _, text := range texts {
		form.Add("text", text)
	}
	if sourceLang != "" {
		form.Set("source_lang", strings.ToUpper(sourceLang))
	}
	form.Set("target_lang", strings.ToUpper(targetLang))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v2/translate",
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, kg.Wrap(err, "build translate request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "DeepL-Auth-Key "+c.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, kg.NewTimeout("translation timed out", err)
		}
		return nil, kg.NewTransient("translation request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, httpError("translate", resp)
	}

	var body deeplResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, kg.NewValidation("response", "translator returned invalid JSON: "+err.Error())
	}
	if len(body.Translations) != len(texts) {
		return nil, kg.NewValidation("response", "translator returned a mismatched batch")
	}

	results := make([]string, len(texts))
	for i, tr := range body.Translations {
		results[i] = tr.Text
	}
	return results, nil
}

// CachedTranslator wraps a Translator with a persistent SQLite cache keyed
// by (source, target, text hash). Cache failures degrade to the underlying
// translator.
type CachedTranslator struct {
	inner Translator
	db    *sql.DB
}

// NewCachedTranslator opens (or creates) the cache at path.
func NewCachedTranslator(inner Translator, path string) (*CachedTranslator, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, kg.Wrap(err, "open translation cache")
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS translations (
		source_lang TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		text_hash   TEXT NOT NULL,
		translated  TEXT NOT NULL,
		created_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (source_lang, target_lang, text_hash)
	)`)
	if err != nil {
		db.Close()
		return nil, kg.Wrap(err, "initialise translation cache")
	}
	return &CachedTranslator{inner: inner, db: db}, nil
}

// Close releases the cache database.
func (t *CachedTranslator) Close() error {
	return t.db.Close()
}

func textHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Translate serves from the cache when possible.
func (t *CachedTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	hash := textHash(text)
	var cached string
	err := t.db.QueryRowContext(ctx,
		`SELECT translated FROM translations WHERE source_lang = ? AND target_lang = ? AND text_hash = ?`,
		sourceLang, targetLang, hash).Scan(&cached)
	if err == nil {
		return cached, nil
	}
	if err != sql.ErrNoRows {
		log.Warn("translate: cache read failed: %v", err)
	}

	translated, err := t.inner.Translate(ctx, text, sourceLang, targetLang)
	if err != nil {
		return "", err
	}
	if _, err := t.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO translations (source_lang, target_lang, text_hash, translated) VALUES (?, ?, ?, ?)`,
		sourceLang, targetLang, hash, translated); err != nil {
		log.Warn("translate: cache write failed: %v", err)
	}
	return translated, nil
}

// TranslateBatch serves cached entries and forwards only the misses.
func (t *CachedTranslator) TranslateBatch(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error) {
	results := make([]string, len(texts))
	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		var cached string
		err := t.db.QueryRowContext(ctx,
			`SELECT translated FROM translations WHERE source_lang = ? AND target_lang = ? AND text_hash = ?`,
			sourceLang, targetLang, textHash(text)).Scan(&cached)
		if err == nil {
			results[i] = cached
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return results, nil
	}

	translated, err := t.inner.TranslateBatch(ctx, missTexts, sourceLang, targetLang)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		results[idx] = translated[j]
		if _, err := t.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO translations (source_lang, target_lang, text_hash, translated) VALUES (?, ?, ?, ?)`,
			sourceLang, targetLang, textHash(missTexts[j]), translated[j]); err != nil {
			log.Warn("translate: cache write failed: %v", err)
		}
	}
	return results, nil
}

package community

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yagokoro-dev/yagokoro/graphstore"
	"github.com/yagokoro-dev/yagokoro/kg"
	"github.com/yagokoro-dev/yagokoro/llm"
	"github.com/yagokoro-dev/yagokoro/log"
)

const summaryPromptTemplate = `Summarise this cluster of research entities in 100-150 characters, naming its common theme.

Members:
%s

Return a JSON object only, no prose:
{"summary": "...", "keywords": ["...", "..."]}`

// MembershipHash fingerprints a member set independent of order. Two
// communities with the same members always hash the same.
func MembershipHash(memberIDs []string) string {
	sorted := append([]string(nil), memberIDs...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(sum[:])
}

// Summarizer produces LLM summaries and keywords for communities.
type Summarizer struct {
	client llm.Client
	store  graphstore.Store
	now    func() time.Time
}

// NewSummarizer creates a summariser over store backed by client.
func NewSummarizer(client llm.Client, store graphstore.Store) *Summarizer {
	return &Summarizer{client: client, store: store, now: time.Now}
}

type summaryEnvelope struct {
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
}

// Summarize fills in Summary, Keywords, SummarizedAt, and MembershipHash,
// persisting the updated community. A community whose membership hash has
// not changed since the last run is returned as-is unless force is set.
func (s *Summarizer) Summarize(ctx context.Context, c *kg.Community, force bool) (*kg.Community, error) {
	if c == nil || len(c.MemberIDs) == 0 {
		return nil, kg.NewValidation("community", "community has no members")
	}

	hash := MembershipHash(c.MemberIDs)
	if !force && c.Summary != "" && c.MembershipHash == hash {
		return c, nil
	}

	listing, err := s.memberListing(ctx, c)
	if err != nil {
		return nil, err
	}
	prompt := fmt.Sprintf(summaryPromptTemplate, listing)

	result, err := s.client.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, nil)
	if err != nil {
		return nil, kg.Wrap(err, fmt.Sprintf("summarise community %s", c.ID))
	}

	var envelope summaryEnvelope
	if err := json.Unmarshal([]byte(stripCodeFence(result.Content)), &envelope); err != nil {
		return nil, kg.NewValidation("response", "community summary returned invalid JSON: "+err.Error())
	}
	if strings.TrimSpace(envelope.Summary) == "" {
		return nil, kg.NewValidation("response", "community summary is empty")
	}

	updated := *c
	updated.Summary = strings.TrimSpace(envelope.Summary)
	updated.Keywords = envelope.Keywords
	updated.SummarizedAt = s.now().UTC()
	updated.MembershipHash = hash
	if err := s.store.UpsertCommunity(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// SummarizeLevel summarises every community at one hierarchy level
// (negative for all levels). Failures are logged and skipped so one bad
// community cannot block the sweep; the count of successes is returned.
func (s *Summarizer) SummarizeLevel(ctx context.Context, level int, force bool) (int, error) {
	communities, err := s.store.Communities(ctx, level)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, c := range communities {
		if _, err := s.Summarize(ctx, c, force); err != nil {
			log.Warn("community: summarise %s: %v", c.ID, err)
			continue
		}
		done++
	}
	return done, nil
}

// memberListing renders member entities as prompt lines. Members that are
// child communities (or otherwise missing) fall back to their raw ID.
func (s *Summarizer) memberListing(ctx context.Context, c *kg.Community) (string, error) {
	var b strings.Builder
	for _, id := range c.MemberIDs {
		e, err := s.store.GetEntity(ctx, id)
		switch {
		case err == nil:
			fmt.Fprintf(&b, "- %s (%s)", e.Name, e.Type)
			if e.Description != "" {
				b.WriteString(": " + e.Description)
			}
			b.WriteString("\n")
		case kg.IsKind(err, kg.KindNotFound):
			fmt.Fprintf(&b, "- %s\n", id)
		default:
			return "", err
		}
	}
	return b.String(), nil
}

// stripCodeFence removes a surrounding markdown code fence from a model
// reply.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

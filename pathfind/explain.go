package pathfind

import (
	"context"
	"fmt"
	"strings"

	"github.com/yagokoro-dev/yagokoro/kg"
	"github.com/yagokoro-dev/yagokoro/llm"
	"github.com/yagokoro-dev/yagokoro/log"
)

// Locale codes the explainer ships phrase maps for.
const (
	LocaleEN = "en"
	LocaleJA = "ja"
)

// phraseMaps renders one relation type as a connecting phrase per locale.
// The template reads "<source> <phrase> <target>".
var phraseMaps = map[string]map[kg.RelationType]string{
	LocaleEN: {
		kg.RelDevelopedBy:   "was developed by",
		kg.RelUsesTechnique: "uses the technique",
		kg.RelBasedOn:       "is based on",
		kg.RelEmployedAt:    "is employed at",
		kg.RelEvaluatedOn:   "was evaluated on",
		kg.RelAuthored:      "authored",
		kg.RelMemberOf:      "is a member of",
		kg.RelImproves:      "improves on",
		kg.RelDerivedFrom:   "is derived from",
		kg.RelBelongsTo:     "belongs to",
		kg.RelCites:         "cites",
		kg.RelRelatedTo:     "is related to",
	},
	LocaleJA: {
		kg.RelDevelopedBy:   "は次の組織によって開発された:",
		kg.RelUsesTechnique: "は次の技術を使用する:",
		kg.RelBasedOn:       "は次に基づく:",
		kg.RelEmployedAt:    "は次に所属する:",
		kg.RelEvaluatedOn:   "は次で評価された:",
		kg.RelAuthored:      "は次を執筆した:",
		kg.RelMemberOf:      "は次のメンバーである:",
		kg.RelImproves:      "は次を改善する:",
		kg.RelDerivedFrom:   "は次から派生した:",
		kg.RelBelongsTo:     "は次に属する:",
		kg.RelCites:         "は次を引用する:",
		kg.RelRelatedTo:     "は次と関連する:",
	},
}

// KeyRelation pairs the endpoint names of one hop with its rendered phrase.
type KeyRelation struct {
	Source      string          `json:"source"`
	Target      string          `json:"target"`
	Type        kg.RelationType `json:"type"`
	Description string          `json:"description"`
}

// Explanation is the natural-language rendering of one path.
type Explanation struct {
	Text         string        `json:"text"`
	KeyRelations []KeyRelation `json:"key_relations"`
	// Polished reports that an LLM refined the template text.
	Polished bool `json:"polished,omitempty"`
}

// Explainer renders paths into prose. The client is optional; without one
// (or on any model failure) the template rendering is the result.
type Explainer struct {
	client llm.Client
	locale string
}

// NewExplainer creates an explainer for the locale, falling back to English
// for locales without a phrase map. client may be nil.
func NewExplainer(client llm.Client, locale string) *Explainer {
	if _, ok := phraseMaps[locale]; !ok {
		locale = LocaleEN
	}
	return &Explainer{client: client, locale: locale}
}

// Explain renders the path. Each hop contributes one sentence and one
// KeyRelation; with an LLM available the joined sentences are polished into
// flowing prose, and the template text survives as the fallback.
func (x *Explainer) Explain(ctx context.Context, p *kg.Path) (*Explanation, error) {
	if p == nil || len(p.Entities) == 0 {
		return nil, kg.NewValidation("path", "path has no entities")
	}

	phrases := phraseMaps[x.locale]
	explanation := &Explanation{}

	if len(p.Relations) == 0 {
		explanation.Text = p.Entities[0].Name
		return explanation, nil
	}

	sentences := make([]string, 0, len(p.Relations))
	for i, r := range p.Relations {
		a, b := p.Entities[i], p.Entities[i+1]
		// The walk may traverse an edge against its direction; render from
		// the edge's own source.
		src, dst := a, b
		if r.SourceID == b.ID {
			src, dst = b, a
		}
		phrase, ok := phrases[r.Type]
		if !ok {
			phrase = phraseMaps[LocaleEN][kg.RelRelatedTo]
		}
		sentence := fmt.Sprintf("%s %s %s", src.Name, phrase, dst.Name)
		sentences = append(sentences, sentence)
		explanation.KeyRelations = append(explanation.KeyRelations, KeyRelation{
			Source:      src.Name,
			Target:      dst.Name,
			Type:        r.Type,
			Description: sentence,
		})
	}
	explanation.Text = strings.Join(sentences, ". ") + "."

	if x.client == nil {
		return explanation, nil
	}
	polished, err := x.polish(ctx, explanation.Text)
	if err != nil {
		log.Warn("pathfind: explanation polish failed, using template: %v", err)
		return explanation, nil
	}
	explanation.Text = polished
	explanation.Polished = true
	return explanation, nil
}

func (x *Explainer) polish(ctx context.Context, text string) (string, error) {
	lang := "English"
	if x.locale == LocaleJA {
		lang = "Japanese"
	}
	prompt := fmt.Sprintf(
		"Rewrite this chain of facts as one fluent %s sentence, preserving every entity name exactly:\n\n%s",
		lang, text)
	result, err := x.client.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, nil)
	if err != nil {
		return "", err
	}
	polished := strings.TrimSpace(result.Content)
	if polished == "" {
		return "", kg.NewValidation("response", "empty polish response")
	}
	return polished, nil
}

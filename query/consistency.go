package query

import (
	"regexp"
	"sort"
	"strings"

	"github.com/yagokoro-dev/yagokoro/kg"
)

// ContradictionKind classifies how two claims disagree.
type ContradictionKind string

const (
	// ContradictionTemporal — same statement, different years.
	ContradictionTemporal ContradictionKind = "temporal"
	// ContradictionNumeric — same statement, different quantities.
	ContradictionNumeric ContradictionKind = "numeric"
	// ContradictionNegation — one claim negates the other.
	ContradictionNegation ContradictionKind = "negation"
)

// Contradiction is one detected disagreement between two claims.
type Contradiction struct {
	Kind   ContradictionKind `json:"kind"`
	ClaimA string            `json:"claim_a"`
	ClaimB string            `json:"claim_b"`
}

// ConsistencyResult is the outcome of checking a claim set.
type ConsistencyResult struct {
	IsCoherent     bool            `json:"is_coherent"`
	CoherenceScore float64         `json:"coherence_score"`
	Contradictions []Contradiction `json:"contradictions,omitempty"`
}

var (
	yearPattern    = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	numberPattern  = regexp.MustCompile(`\b\d+(?:[.,]\d+)?%?\b`)
	negationTokens = map[string]bool{"not": true, "no": true, "never": true, "cannot": true}
)

// CheckConsistency inspects every claim pair for temporal, numeric, and
// negation contradictions. The coherence score starts at 1.0 and loses 0.4
// per contradiction, floored at zero, so a single disagreement already marks
// the set incoherent under the usual 0.7 threshold.
func CheckConsistency(claims []string) *ConsistencyResult {
	var contradictions []Contradiction
	for i := 0; i < len(claims); i++ {
		for j := i + 1; j < len(claims); j++ {
			if kind, ok := compareClaims(claims[i], claims[j]); ok {
				contradictions = append(contradictions, Contradiction{
					Kind:   kind,
					ClaimA: claims[i],
					ClaimB: claims[j],
				})
			}
		}
	}

	score := 1.0 - 0.4*float64(len(contradictions))
	if score < 0 {
		score = 0
	}
	return &ConsistencyResult{
		IsCoherent:     len(contradictions) == 0,
		CoherenceScore: score,
		Contradictions: contradictions,
	}
}

// compareClaims reports whether a and b contradict each other, and how.
// Temporal beats numeric when both would fire: a year is a number too.
func compareClaims(a, b string) (ContradictionKind, bool) {
	normA, normB := normaliseClaim(a), normaliseClaim(b)

	if differsOnly(normA, normB, yearPattern) {
		return ContradictionTemporal, true
	}
	if differsOnly(normA, normB, numberPattern) {
		return ContradictionNumeric, true
	}
	if negates(normA, normB) {
		return ContradictionNegation, true
	}
	return "", false
}

// differsOnly reports whether the two claims are identical after masking
// pattern matches, while the masked values themselves differ.
func differsOnly(a, b string, pattern *regexp.Regexp) bool {
	valsA := pattern.FindAllString(a, -1)
	valsB := pattern.FindAllString(b, -1)
	if len(valsA) == 0 || len(valsB) == 0 {
		return false
	}
	maskedA := pattern.ReplaceAllString(a, "#")
	maskedB := pattern.ReplaceAllString(b, "#")
	if maskedA != maskedB {
		return false
	}
	sort.Strings(valsA)
	sort.Strings(valsB)
	return strings.Join(valsA, "|") != strings.Join(valsB, "|")
}

// negates reports whether the claims are identical except for negation
// tokens present on exactly one side.
func negates(a, b string) bool {
	stripA, negA := stripNegation(a)
	stripB, negB := stripNegation(b)
	return negA != negB && stripA == stripB
}

func stripNegation(claim string) (string, bool) {
	words := strings.Fields(claim)
	kept := make([]string, 0, len(words))
	negated := false
	for _, w := range words {
		if negationTokens[w] {
			negated = true
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " "), negated
}

func normaliseClaim(claim string) string {
	claim = strings.ToLower(strings.TrimSpace(claim))
	claim = strings.Trim(claim, ".!?")
	return strings.Join(strings.Fields(claim), " ")
}

// capitalisedPhrase finds candidate proper-noun mentions in an answer.
var capitalisedPhrase = regexp.MustCompile(`\b[A-Z][A-Za-z0-9.+-]*(?:[ ][A-Z][A-Za-z0-9.+-]*)*\b`)

// ValidateAnswer checks the answer-generation invariant: an answer must not
// introduce entity names absent from its retrieval context. It returns the
// proper-noun phrases of the answer with no support in the context's
// entities, summaries, or chunks — an empty result means the answer passed.
func ValidateAnswer(answer string, ctx kg.ContextData) []string {
	known := make(map[string]bool)
	addText := func(text string) {
		for _, phrase := range capitalisedPhrase.FindAllString(text, -1) {
			known[kg.NormalizeName(phrase)] = true
		}
		for _, word := range strings.Fields(text) {
			known[kg.NormalizeName(word)] = true
		}
	}
	for _, e := range ctx.Entities {
		known[kg.NormalizeName(e.Name)] = true
		addText(e.Description)
	}
	for _, s := range ctx.CommunitySummaries {
		addText(s)
	}
	for _, c := range ctx.TextChunks {
		addText(c.Content)
	}

	var unsupported []string
	seen := make(map[string]bool)
	for _, phrase := range capitalisedPhrase.FindAllString(answer, -1) {
		// Capitalised ordinary words at sentence starts are not entity
		// mentions; strip them before the lookup.
		words := strings.Fields(phrase)
		for len(words) > 0 && commonWords[kg.NormalizeName(words[0])] {
			words = words[1:]
		}
		if len(words) == 0 {
			continue
		}
		phrase = strings.Join(words, " ")

		norm := kg.NormalizeName(phrase)
		if norm == "" || known[norm] || seen[norm] {
			continue
		}
		seen[norm] = true
		unsupported = append(unsupported, phrase)
	}
	return unsupported
}

// commonWords are ordinary words that appear capitalised at sentence starts;
// they never count as entity mentions on their own.
var commonWords = map[string]bool{
	"the": true, "a": true, "an": true, "it": true, "its": true,
	"this": true, "these": true, "those": true, "there": true,
	"based": true, "according": true, "in": true, "on": true, "as": true,
	"however": true, "therefore": true, "additionally": true, "while": true,
	"yes": true, "no": true, "both": true, "neither": true, "overall": true,
}

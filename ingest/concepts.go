package ingest

import (
	"sort"
	"strings"
	"unicode"

	"github.com/yagokoro-dev/yagokoro/kg"
)

// ConceptOptions tunes statistical concept extraction.
type ConceptOptions struct {
	// MinFrequency drops phrases seen fewer times across all chunks.
	// Zero means 2.
	MinFrequency int
	// MaxConcepts caps the result, keeping the most frequent. Zero means 200.
	MaxConcepts int
	// MaxPhraseLen is the longest n-gram considered. Zero means 3.
	MaxPhraseLen int
	// IncludeProperNouns lets capitalised tokens through the stop-word
	// filter, so phrases like "The Pile" survive as candidates. Concept
	// text stays lowercase either way.
	IncludeProperNouns bool
	// ExtraStopWords extends the built-in stop-word list.
	ExtraStopWords []string
}

func (o ConceptOptions) minFrequency() int {
	if o.MinFrequency <= 0 {
		return 2
	}
	return o.MinFrequency
}

func (o ConceptOptions) maxConcepts() int {
	if o.MaxConcepts <= 0 {
		return 200
	}
	return o.MaxConcepts
}

func (o ConceptOptions) maxPhraseLen() int {
	if o.MaxPhraseLen <= 0 {
		return 3
	}
	return o.MaxPhraseLen
}

// stopWords is a small language-agnostic-ish function-word list; it is a
// frequency filter, not a parser, so precision matters more than recall.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {}, "of": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "with": {}, "by": {},
	"from": {}, "as": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "being": {}, "it": {}, "its": {}, "this": {},
	"that": {}, "these": {}, "those": {}, "we": {}, "our": {}, "their": {},
	"they": {}, "he": {}, "she": {}, "his": {}, "her": {}, "which": {},
	"who": {}, "whom": {}, "what": {}, "when": {}, "where": {}, "how": {},
	"not": {}, "no": {}, "can": {}, "may": {}, "will": {}, "would": {},
	"could": {}, "should": {}, "has": {}, "have": {}, "had": {}, "do": {},
	"does": {}, "did": {}, "than": {}, "then": {}, "also": {}, "such": {},
	"more": {}, "most": {}, "other": {}, "into": {}, "over": {}, "under": {},
	"between": {}, "both": {}, "each": {}, "using": {}, "used": {},
	"based": {}, "via": {}, "per": {}, "et": {}, "al": {},
}

// ConceptExtractor derives weighted concepts and co-occurrences from chunk
// text by phrase frequency. It needs no model calls, so it runs on every
// ingestion regardless of budget.
type ConceptExtractor struct{}

// NewConceptExtractor creates an extractor.
func NewConceptExtractor() *ConceptExtractor {
	return &ConceptExtractor{}
}

// Extract returns concepts ordered by descending frequency (ties by text)
// with Importance normalised so the most frequent concept scores 1.0, plus
// within-chunk co-occurrence edges with Strength = count/maxCount.
func (x *ConceptExtractor) Extract(chunks []*kg.TextChunk, opts ConceptOptions) ([]*kg.Concept, []*kg.ConceptCooccurrence, error) {
	if len(chunks) == 0 {
		return nil, nil, kg.NewValidation("chunks", "no chunks to extract concepts from")
	}

	stop := make(map[string]struct{}, len(stopWords)+len(opts.ExtraStopWords))
	for w := range stopWords {
		stop[w] = struct{}{}
	}
	for _, w := range opts.ExtraStopWords {
		stop[strings.ToLower(w)] = struct{}{}
	}

	freq := make(map[string]int)
	chunkSets := make([]map[string]struct{}, len(chunks))
	sources := make(map[string][]string)
	for i, chunk := range chunks {
		seen := make(map[string]struct{})
		for _, phrase := range candidatePhrases(chunk.Content, stop, opts.maxPhraseLen(), opts.IncludeProperNouns) {
			freq[phrase]++
			if _, dup := seen[phrase]; !dup {
				seen[phrase] = struct{}{}
				sources[phrase] = append(sources[phrase], chunk.ID)
			}
		}
		chunkSets[i] = seen
	}

	kept := make([]string, 0, len(freq))
	for phrase, n := range freq {
		if n >= opts.minFrequency() {
			kept = append(kept, phrase)
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		if freq[kept[i]] != freq[kept[j]] {
			return freq[kept[i]] > freq[kept[j]]
		}
		return kept[i] < kept[j]
	})
	if len(kept) > opts.maxConcepts() {
		kept = kept[:opts.maxConcepts()]
	}
	if len(kept) == 0 {
		return nil, nil, nil
	}

	maxFreq := freq[kept[0]]
	keptSet := make(map[string]struct{}, len(kept))
	concepts := make([]*kg.Concept, len(kept))
	for i, phrase := range kept {
		keptSet[phrase] = struct{}{}
		concepts[i] = &kg.Concept{
			Text:         phrase,
			Frequency:    freq[phrase],
			Importance:   float64(freq[phrase]) / float64(maxFreq),
			SourceChunks: sources[phrase],
		}
	}

	pairCount := make(map[[2]string]int)
	maxPair := 0
	for _, seen := range chunkSets {
		present := make([]string, 0, len(seen))
		for phrase := range seen {
			if _, ok := keptSet[phrase]; ok {
				present = append(present, phrase)
			}
		}
		sort.Strings(present)
		for i := 0; i < len(present); i++ {
			for j := i + 1; j < len(present); j++ {
				key := [2]string{present[i], present[j]}
				pairCount[key]++
				if pairCount[key] > maxPair {
					maxPair = pairCount[key]
				}
			}
		}
	}

	cooccs := make([]*kg.ConceptCooccurrence, 0, len(pairCount))
	for key, n := range pairCount {
		cooccs = append(cooccs, &kg.ConceptCooccurrence{
			A:        key[0],
			B:        key[1],
			Count:    n,
			Strength: float64(n) / float64(maxPair),
		})
	}
	sort.Slice(cooccs, func(i, j int) bool {
		if cooccs[i].Count != cooccs[j].Count {
			return cooccs[i].Count > cooccs[j].Count
		}
		if cooccs[i].A != cooccs[j].A {
			return cooccs[i].A < cooccs[j].A
		}
		return cooccs[i].B < cooccs[j].B
	})
	return concepts, cooccs, nil
}

// candidatePhrases lists the normalised 1..maxLen-grams inside maximal runs
// of non-stop-word tokens. With properNouns set, a capitalised token is
// never treated as a stop word, so capitalised titles keep their runs.
func candidatePhrases(text string, stop map[string]struct{}, maxLen int, properNouns bool) []string {
	tokens := tokenize(text)

	var phrases []string
	var run []string
	flush := func() {
		for n := 1; n <= maxLen; n++ {
			for i := 0; i+n <= len(run); i++ {
				phrases = append(phrases, strings.Join(run[i:i+n], " "))
			}
		}
		run = run[:0]
	}
	for _, tok := range tokens {
		lower := strings.ToLower(tok)
		_, isStop := stop[lower]
		if isStop && properNouns && isCapitalized(tok) {
			isStop = false
		}
		if isStop || len(lower) < 2 {
			flush()
			continue
		}
		run = append(run, lower)
	}
	flush()
	return phrases
}

func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
}

func isCapitalized(tok string) bool {
	for _, r := range tok {
		return unicode.IsUpper(r)
	}
	return false
}

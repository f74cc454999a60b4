package kg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase", "OpenAI", "openai"},
		{"trim", "  GPT-4  ", "gpt-4"},
		{"collapse whitespace", "large   language\tmodel", "large language model"},
		{"keeps hyphen", "GPT-4", "gpt-4"},
		{"keeps dot and plus", "v2.0 C++", "v2.0 c++"},
		{"strips punctuation", "AlphaGo (Zero)", "alphago zero"},
		{"unicode", "Tōkyō University", "tōkyō university"},
		{"empty", "", ""},
		{"only punctuation", "()!?", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeName(tt.in))
		})
	}
}

func TestNormalizeNameIdempotent(t *testing.T) {
	// Normalising twice must equal normalising once, for every input the
	// merge step and the graph store might exchange.
	inputs := []string{
		"GPT-4", "  OpenAI Inc.  ", "Transformer  (Vaswani et al.)",
		"BERT", "深層学習", "AlphaGo Zero", "c++", "",
	}
	for _, in := range inputs {
		once := NormalizeName(in)
		assert.Equal(t, once, NormalizeName(once), "input %q", in)
	}
}

func TestTypeNameKey(t *testing.T) {
	assert.Equal(t, "AIModel:gpt-4", TypeNameKey(EntityAIModel, " GPT-4 "))
	// Same normalised name under different types must not collide.
	assert.NotEqual(t,
		TypeNameKey(EntityAIModel, "BERT"),
		TypeNameKey(EntityBenchmark, "BERT"))
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "who developed gpt-4?", NormalizeQuery("  Who   developed GPT-4?  "))
}

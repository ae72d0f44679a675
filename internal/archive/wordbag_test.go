package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "case folds and drops short words",
			text: "Deep Attention Networks win at Go",
			want: []string{"attention", "deep", "networks"},
		},
		{
			name: "filters stopwords",
			text: "A novel approach based on the proposed model shows significant results",
			want: []string{},
		},
		{
			name: "deduplicates repeated tokens",
			text: "transformer transformer TRANSFORMER",
			want: []string{"transformer"},
		},
		{
			name: "splits on digits and punctuation",
			text: "gpt4-style fine_tuning, reinforcement!",
			want: []string{"fine", "reinforcement", "style", "tuning"},
		},
		{
			name: "empty input",
			text: "",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bag := Tokenize(tt.text)
			got := make([]string, 0, len(bag))
			for w := range bag {
				got = append(got, w)
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestBagStringRoundTrip(t *testing.T) {
	t.Run("renders sorted space-separated form", func(t *testing.T) {
		bag := Tokenize("zebra quantum attention")
		assert.Equal(t, "attention quantum zebra", BagString(bag))
	})

	t.Run("parse inverts render", func(t *testing.T) {
		bag := Tokenize("sparse mixture experts routing")
		assert.Equal(t, bag, ParseBag(BagString(bag)))
	})

	t.Run("empty bag renders empty string", func(t *testing.T) {
		assert.Equal(t, "", BagString(map[string]struct{}{}))
		assert.Empty(t, ParseBag(""))
	})
}

func TestJaccard(t *testing.T) {
	set := func(words ...string) map[string]struct{} {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			m[w] = struct{}{}
		}
		return m
	}

	tests := []struct {
		name string
		a, b map[string]struct{}
		want float64
	}{
		{
			name: "identical sets score 1",
			a:    set("transformer", "attention"),
			b:    set("transformer", "attention"),
			want: 1.0,
		},
		{
			name: "disjoint sets score 0",
			a:    set("transformer"),
			b:    set("protein"),
			want: 0.0,
		},
		{
			name: "partial overlap",
			a:    set("transformer", "attention", "scaling"),
			b:    set("transformer", "vision"),
			want: 0.25,
		},
		{
			name: "empty query scores 0",
			a:    set(),
			b:    set("transformer"),
			want: 0.0,
		},
		{
			name: "empty candidate scores 0",
			a:    set("transformer"),
			b:    set(),
			want: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Jaccard(tt.a, tt.b), 1e-9)
			assert.InDelta(t, tt.want, Jaccard(tt.b, tt.a), 1e-9, "jaccard must be symmetric")
		})
	}
}

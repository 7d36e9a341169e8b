package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleTokenizer_Tokenize(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, types := tok.Tokenize("Launch plan, v2", 8)
	require.Len(t, ids, 8)
	require.Len(t, attn, 8)
	require.Len(t, types, 8)

	assert.Equal(t, int64(clsToken), ids[0])
	assert.Equal(t, int64(sepToken), ids[4])
	assert.Equal(t, []int64{1, 1, 1, 1, 1, 0, 0, 0}, attn)
	for _, id := range ids[1:4] {
		assert.GreaterOrEqual(t, id, int64(firstWordID))
		assert.Less(t, id, int64(vocab))
	}
	assert.Equal(t, make([]int64, 8), types)
}

func TestSimpleTokenizer_TruncatesToWindow(t *testing.T) {
	ids, attn, _ := (&SimpleTokenizer{}).Tokenize("one two three four five six", 4)
	assert.Equal(t, int64(clsToken), ids[0])
	assert.Equal(t, int64(sepToken), ids[3])
	assert.Equal(t, []int64{1, 1, 1, 1}, attn)
}

func TestSimpleTokenizer_DefaultWindow(t *testing.T) {
	ids, _, _ := (&SimpleTokenizer{}).Tokenize("x", 0)
	assert.Len(t, ids, defaultMaxTokens)
}

func TestSimpleTokenizer_PunctuationInsensitive(t *testing.T) {
	tok := &SimpleTokenizer{}
	a, _, _ := tok.Tokenize("Plan, Q3!", 6)
	b, _, _ := tok.Tokenize("plan q3", 6)
	assert.Equal(t, a, b)
}

func TestSplitWords(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"  a  b  c  ", []string{"a", "b", "c"}},
		{"Revenue (2024): 1.5M", []string{"revenue", "2024", "1", "5m"}},
		{"Größe-Tabelle", []string{"größe", "tabelle"}},
		{"", nil},
		{" ,;- ", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SplitWords(tt.in), "SplitWords(%q)", tt.in)
	}
}

func TestHashString(t *testing.T) {
	assert.Equal(t, HashString("abc"), HashString("abc"))
	assert.NotEqual(t, HashString("abc"), HashString("abd"))
	// FNV-1a offset basis
	assert.Equal(t, 2166136261, HashString(""))
	assert.GreaterOrEqual(t, HashString("anything at all"), 0)
}

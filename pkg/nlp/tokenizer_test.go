package nlp

import (
	"reflect"
	"testing"
)

func TestTokenize_Offsets(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Token
	}{
		{
			name: "empty input",
			text: "",
			want: nil,
		},
		{
			name: "single token",
			text: "Alice",
			want: []Token{{Text: "Alice", Index: 0, Start: 0}},
		},
		{
			name: "simple sentence",
			text: "Alice went to London.",
			want: []Token{
				{Text: "Alice", Index: 0, Start: 0},
				{Text: "went", Index: 1, Start: 6},
				{Text: "to", Index: 2, Start: 11},
				{Text: "London.", Index: 3, Start: 14},
			},
		},
		{
			name: "leading and repeated whitespace",
			text: "  a \t b\nc",
			want: []Token{
				{Text: "a", Index: 0, Start: 2},
				{Text: "b", Index: 1, Start: 6},
				{Text: "c", Index: 2, Start: 8},
			},
		},
		{
			name: "non-ascii offsets count runes",
			text: "Zoë saw café",
			want: []Token{
				{Text: "Zoë", Index: 0, Start: 0},
				{Text: "saw", Index: 1, Start: 4},
				{Text: "café", Index: 2, Start: 8},
			},
		},
	}

	tok := NewTokenizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := tok.Tokenize(tt.text)
			if !reflect.DeepEqual(doc.Tokens, tt.want) {
				t.Fatalf("unexpected tokens:\ngot  %+v\nwant %+v", doc.Tokens, tt.want)
			}
		})
	}
}

func TestToken_End(t *testing.T) {
	tok := NewTokenizer()
	doc := tok.Tokenize("Alice went to London.")

	last := doc.Tokens[3]
	if last.End() != 21 {
		t.Fatalf("expected end offset 21 for %q, got %d", last.Text, last.End())
	}
}

func TestTokenize_Sentences(t *testing.T) {
	tok := NewTokenizer()
	doc := tok.Tokenize("Alice went to London. She met Bob there! Was it raining?")

	if len(doc.Sentences) != 3 {
		t.Fatalf("expected 3 sentences, got %d: %+v", len(doc.Sentences), doc.Sentences)
	}

	// "Alice" is in sentence 0, "Bob" in sentence 1, "raining?" in sentence 2.
	cases := []struct {
		tokenText string
		want      int
	}{
		{"Alice", 0},
		{"Bob", 1},
		{"raining?", 2},
	}
	for _, c := range cases {
		idx := -1
		for _, token := range doc.Tokens {
			if token.Text == c.tokenText {
				idx = token.Index
				break
			}
		}
		if idx < 0 {
			t.Fatalf("token %q not found", c.tokenText)
		}
		if got := doc.SentenceIndexOf(idx); got != c.want {
			t.Fatalf("sentence index for %q: got %d, want %d", c.tokenText, got, c.want)
		}
	}
}

func TestSentenceIndexOf_OutOfRange(t *testing.T) {
	tok := NewTokenizer()
	doc := tok.Tokenize("One sentence.")

	if got := doc.SentenceIndexOf(-1); got != -1 {
		t.Fatalf("expected -1 for negative index, got %d", got)
	}
	if got := doc.SentenceIndexOf(99); got != -1 {
		t.Fatalf("expected -1 for out-of-range index, got %d", got)
	}
}

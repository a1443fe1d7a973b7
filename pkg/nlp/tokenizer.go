package nlp

import (
	"unicode"
	"unicode/utf8"
)

// Token is a single whitespace-delimited token with a stable character
// offset into the source text. Offsets count runes, not bytes, so they
// stay valid for non-ASCII chat text.
type Token struct {
	Text  string
	Index int
	Start int
}

// Len returns the token length in characters.
func (t Token) Len() int {
	return utf8.RuneCountInString(t.Text)
}

// End returns the exclusive character offset just past the token.
func (t Token) End() int {
	return t.Start + t.Len()
}

// Sentence marks a half-open character range [Start, End) of the source text.
type Sentence struct {
	Start int
	End   int
}

// Doc is a tokenized document. Token indexes are dense and stable for the
// lifetime of the Doc, which makes them safe to hand to the extraction
// service and map back to character offsets later.
type Doc struct {
	Text      string
	Tokens    []Token
	Sentences []Sentence
}

// SentenceIndexOf returns the index of the sentence containing the given
// token, or -1 if the token index is out of range.
func (d *Doc) SentenceIndexOf(tokenIndex int) int {
	if tokenIndex < 0 || tokenIndex >= len(d.Tokens) {
		return -1
	}
	start := d.Tokens[tokenIndex].Start
	for i, s := range d.Sentences {
		if start >= s.Start && start < s.End {
			return i
		}
	}
	return -1
}

// Tokenizer splits raw text into tokens with character offsets and marks
// sentence boundaries. It is stateless and safe for concurrent use; build
// one at process start and inject it wherever documents are tokenized.
type Tokenizer struct{}

// NewTokenizer creates a Tokenizer.
func NewTokenizer() *Tokenizer {
	return &Tokenizer{}
}

// Tokenize splits text on whitespace. Punctuation stays attached to its
// token, so "London." is one token of length seven.
func (t *Tokenizer) Tokenize(text string) *Doc {
	doc := &Doc{Text: text}

	var (
		tokenStart = -1
		buf        []rune
		pos        int
	)
	flush := func() {
		if tokenStart < 0 {
			return
		}
		doc.Tokens = append(doc.Tokens, Token{
			Text:  string(buf),
			Index: len(doc.Tokens),
			Start: tokenStart,
		})
		tokenStart = -1
		buf = buf[:0]
	}

	for _, r := range text {
		if unicode.IsSpace(r) {
			flush()
		} else {
			if tokenStart < 0 {
				tokenStart = pos
			}
			buf = append(buf, r)
		}
		pos++
	}
	flush()

	doc.Sentences = splitSentences(text)
	return doc
}

// splitSentences marks sentence ranges. A sentence ends at '.', '!' or '?'
// followed by whitespace or end of text. Trailing closing quotes and
// brackets stay with the sentence they terminate.
func splitSentences(text string) []Sentence {
	var sentences []Sentence

	runes := []rune(text)
	start := -1
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if start < 0 {
			if unicode.IsSpace(r) {
				continue
			}
			start = i
		}
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		end := i + 1
		for end < len(runes) && (runes[end] == '"' || runes[end] == '\'' || runes[end] == ')' || runes[end] == ']') {
			end++
		}
		if end < len(runes) && !unicode.IsSpace(runes[end]) {
			continue
		}
		sentences = append(sentences, Sentence{Start: start, End: end})
		i = end - 1
		start = -1
	}
	if start >= 0 {
		sentences = append(sentences, Sentence{Start: start, End: len(runes)})
	}
	return sentences
}

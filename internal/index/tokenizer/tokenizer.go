// Package tokenizer turns document text into the term sequence and field
// extents the index builder stores. Text is lower-cased, split on
// non-alphanumeric boundaries, stripped of stop-words and optionally
// stemmed with a small suffix stemmer.
package tokenizer

import (
	"strings"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/iterator"
)

var defaultStopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Token is a normalised term and its position in the document.
type Token struct {
	Term     string
	Position int
}

// Field is one named piece of document text, such as a title.
type Field struct {
	Name string
	Text string
}

// Tokenized is a document's term sequence with the extent each field
// covers within it.
type Tokenized struct {
	Terms   []string
	Extents map[string]iterator.ExtentArray
}

type Options struct {
	Stem          bool
	KeepStopWords bool
}

type Tokenizer struct {
	opts Options
}

func New(opts Options) *Tokenizer {
	return &Tokenizer{opts: opts}
}

// Tokenize numbers tokens from start.
func (t *Tokenizer) Tokenize(text string, start int) []Token {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]Token, 0, len(words))
	pos := start
	for _, word := range words {
		if !t.opts.KeepStopWords {
			if len(word) < 2 {
				continue
			}
			if _, stop := defaultStopWords[word]; stop {
				continue
			}
		}
		if t.opts.Stem {
			word = stem(word)
		}
		if word == "" {
			continue
		}
		tokens = append(tokens, Token{Term: word, Position: pos})
		pos++
	}
	return tokens
}

// Document tokenizes fields in order into one term sequence. Each
// non-empty field contributes an extent under its name.
func (t *Tokenizer) Document(fields []Field) Tokenized {
	out := Tokenized{Extents: make(map[string]iterator.ExtentArray)}
	for _, f := range fields {
		tokens := t.Tokenize(f.Text, len(out.Terms))
		if len(tokens) == 0 {
			continue
		}
		begin := len(out.Terms)
		for _, tok := range tokens {
			out.Terms = append(out.Terms, tok.Term)
		}
		out.Extents[f.Name] = append(out.Extents[f.Name], iterator.Extent{Begin: begin, End: len(out.Terms)})
	}
	return out
}

var suffixRules = []struct {
	suffix      string
	replacement string
	minLen      int
}{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"eness", "ene", 2},
	{"tion", "t", 3},
	{"sion", "s", 3},
	{"ying", "y", 2},
	{"ling", "l", 3},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"est", "", 3},
	{"ful", "", 3},
	{"ous", "", 3},
	{"ess", "", 3},
	{"ble", "", 3},
	{"ed", "", 3},
	{"er", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}

// stem strips the first matching suffix that leaves a long enough stem.
func stem(word string) string {
	for _, rule := range suffixRules {
		if strings.HasSuffix(word, rule.suffix) {
			stemmed := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(stemmed) >= rule.minLen {
				return stemmed
			}
		}
	}
	return word
}

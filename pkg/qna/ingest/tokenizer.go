package ingest

import (
	"strings"
	"unicode"

	"github.com/cognicore/qnabot/pkg/qna/lexicon"
)

// Tokenizer turns questions and user text into comparable tokens
type Tokenizer struct {
	stopwords map[string]struct{}
	lexicon   *lexicon.Lexicon // optional synonym normalization
}

// NewTokenizer creates a new tokenizer with the given stopword list
func NewTokenizer(stopwords []string) *Tokenizer {
	stops := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		stops[strings.ToLower(w)] = struct{}{}
	}
	return &Tokenizer{stopwords: stops}
}

// SetLexicon assigns a lexicon; tokens are then mapped to canonical forms
// before stopword filtering.
func (t *Tokenizer) SetLexicon(lex *lexicon.Lexicon) {
	t.lexicon = lex
}

// Tokenize splits text into lower-cased tokens, dropping stopwords and
// single-letter words. Digits are kept so "form 1040" still matches.
func (t *Tokenizer) Tokenize(text string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		if word := t.processToken(current.String()); word != "" {
			tokens = append(tokens, word)
		}
		current.Reset()
	}

	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			current.WriteRune(unicode.ToLower(r))
		case r == '-' || r == '\'':
			// "9-5" and "what's" stay one token
			current.WriteRune(r)
		default:
			flush()
		}
	}
	flush()

	return tokens
}

func (t *Tokenizer) processToken(token string) string {
	word := cleanToken(token)
	if word == "" {
		return ""
	}
	if len([]rune(word)) == 1 && !unicode.IsDigit([]rune(word)[0]) {
		return ""
	}

	if t.lexicon != nil {
		word = t.lexicon.Normalize(word)
	}

	if t.isStopword(word) {
		return ""
	}
	return word
}

// cleanToken strips possessives and leading/trailing punctuation kept by
// Tokenize, and collapses repeated hyphens.
func cleanToken(token string) string {
	token = strings.TrimSuffix(token, "'s")
	token = strings.Trim(token, "-'")
	for strings.Contains(token, "--") {
		token = strings.ReplaceAll(token, "--", "-")
	}
	return token
}

func (t *Tokenizer) isStopword(word string) bool {
	_, ok := t.stopwords[word]
	return ok
}

// Bigrams returns adjacent token pairs joined by a space.
func Bigrams(tokens []string) []string {
	if len(tokens) < 2 {
		return nil
	}
	out := make([]string, 0, len(tokens)-1)
	for i := 0; i+1 < len(tokens); i++ {
		out = append(out, tokens[i]+" "+tokens[i+1])
	}
	return out
}

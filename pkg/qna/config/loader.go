package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/qnabot/pkg/qna/ingest"
	"github.com/cognicore/qnabot/pkg/qna/lexicon"
)

// DefaultStopwords are dropped when no stopword file is configured. Question
// words stay out so "when" and "where" questions remain distinguishable.
var DefaultStopwords = []string{
	"a", "an", "the", "is", "are", "am", "was", "were", "be", "been",
	"do", "does", "did", "i", "me", "my", "you", "your", "we", "our", "us",
	"it", "its", "of", "to", "in", "on", "at", "for", "and", "or", "can",
	"could", "would", "should", "please", "there", "this", "that", "what",
}

// Loader loads the text processing files and constructs components
type Loader struct {
	StopwordsPath string
	LexiconPath   string
}

// Components holds all loaded configuration components
type Components struct {
	Tokenizer *ingest.Tokenizer
	Lexicon   *lexicon.Lexicon
}

// NewLoader returns a Loader for the kb section of cfg.
func NewLoader(cfg *Config) Loader {
	return Loader{StopwordsPath: cfg.KB.StopwordsPath, LexiconPath: cfg.KB.LexiconPath}
}

// Load reads all configuration files and returns initialized components
func (l *Loader) Load() (*Components, error) {
	comp := &Components{}

	stopwords := DefaultStopwords
	if l.StopwordsPath != "" {
		sl, err := LoadStopwords(l.StopwordsPath)
		if err != nil {
			return nil, fmt.Errorf("load stopwords: %w", err)
		}
		stopwords = sl.Terms
	}
	comp.Tokenizer = ingest.NewTokenizer(stopwords)

	if l.LexiconPath != "" {
		lex, err := lexicon.LoadFromYAML(l.LexiconPath)
		if err != nil {
			return nil, fmt.Errorf("load lexicon: %w", err)
		}
		comp.Lexicon = lex
		comp.Tokenizer.SetLexicon(lex)
	}

	return comp, nil
}

// Stopwords represents the stopword list configuration
type Stopwords struct {
	Terms []string `yaml:"terms"`
}

// LoadStopwords loads stopwords from a YAML file
func LoadStopwords(path string) (*Stopwords, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var sl Stopwords
	if err := yaml.Unmarshal(data, &sl); err != nil {
		return nil, err
	}

	return &sl, nil
}

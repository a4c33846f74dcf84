package config

import (
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/qnabot/pkg/qna/kb"
)

// KBFile is the on-disk knowledge base format.
//
//	entries:
//	  - id: hours
//	    questions: [what are your hours, when are you open]
//	    answer: We are open 9-5.
//	    follow_ups: [weekend-hours]
type KBFile struct {
	Entries []KBEntry `yaml:"entries"`
}

// KBEntry is one entry in a KBFile
type KBEntry struct {
	ID        string            `yaml:"id"`
	Questions []string          `yaml:"questions"`
	Answer    string            `yaml:"answer"`
	FollowUps []string          `yaml:"follow_ups,omitempty"`
	Metadata  map[string]string `yaml:"metadata,omitempty"`
}

// LoadKnowledgeBase reads and validates a knowledge base file. It can be
// called again at any time to build a replacement for hot swap.
func LoadKnowledgeBase(path string) (*kb.KnowledgeBase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseKnowledgeBase(data)
}

// ParseKnowledgeBase builds a knowledge base from YAML bytes.
func ParseKnowledgeBase(data []byte) (*kb.KnowledgeBase, error) {
	var file KBFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	return kb.Load(file.ToEntries())
}

// ToEntries converts file entries to kb entries.
func (f KBFile) ToEntries() []kb.Entry {
	entries := make([]kb.Entry, len(f.Entries))
	for i, e := range f.Entries {
		entries[i] = kb.Entry{
			ID:        e.ID,
			Questions: e.Questions,
			Answer:    e.Answer,
			FollowUps: e.FollowUps,
			Metadata:  e.Metadata,
		}
	}
	return entries
}

// WriteKBFile encodes f as YAML.
func WriteKBFile(w io.Writer, f KBFile) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return err
	}
	return enc.Close()
}

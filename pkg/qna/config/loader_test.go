package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoaderDefaults(t *testing.T) {
	loader := Loader{}
	comp, err := loader.Load()
	if err != nil {
		t.Fatalf("empty loader should succeed: %v", err)
	}
	if comp.Tokenizer == nil {
		t.Fatal("Tokenizer should be initialized")
	}
	if comp.Lexicon != nil {
		t.Error("Lexicon should be nil without a path")
	}

	tokens := comp.Tokenizer.Tokenize("what are the opening hours")
	if strings.Join(tokens, " ") != "opening hours" {
		t.Errorf("default stopwords not applied: %v", tokens)
	}
}

func TestLoaderValidFiles(t *testing.T) {
	tmpDir := t.TempDir()

	swPath := filepath.Join(tmpDir, "stopwords.yaml")
	os.WriteFile(swPath, []byte("terms:\n  - the\n  - when\n"), 0644)

	lexPath := filepath.Join(tmpDir, "lexicon.yaml")
	os.WriteFile(lexPath, []byte("synonyms:\n  - canonical: hours\n    variants: [schedule, timetable]\n"), 0644)

	loader := Loader{StopwordsPath: swPath, LexiconPath: lexPath}
	comp, err := loader.Load()
	if err != nil {
		t.Fatalf("Valid files should load: %v", err)
	}
	if comp.Lexicon == nil {
		t.Fatal("Lexicon should be loaded")
	}

	tokens := comp.Tokenizer.Tokenize("when is the schedule")
	if strings.Join(tokens, " ") != "is hours" {
		t.Errorf("expected stopwords removed and synonym normalized, got %v", tokens)
	}
}

func TestLoaderNonExistentFiles(t *testing.T) {
	for _, loader := range []Loader{
		{StopwordsPath: "/nonexistent/stopwords.yaml"},
		{LexiconPath: "/nonexistent/lexicon.yaml"},
	} {
		if _, err := loader.Load(); err == nil {
			t.Errorf("Should error on nonexistent file: %+v", loader)
		}
	}
}

func TestLoadKnowledgeBase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.yaml")
	content := `entries:
  - id: hours
    questions: ["What are your HOURS?", "when are you open"]
    answer: 9-5
    follow_ups: [weekend]
    metadata:
      source: faq
  - id: weekend
    questions: [weekend hours]
    answer: closed
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	base, err := LoadKnowledgeBase(path)
	if err != nil {
		t.Fatalf("LoadKnowledgeBase: %v", err)
	}
	if base.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", base.Len())
	}
	e, ok := base.Lookup("hours")
	if !ok {
		t.Fatal("hours entry missing")
	}
	if e.Questions[0] != "what are your hours?" || e.Metadata["source"] != "faq" || e.FollowUps[0] != "weekend" {
		t.Errorf("unexpected entry %+v", e)
	}
}

func TestLoadKnowledgeBaseDanglingFollowUp(t *testing.T) {
	_, err := ParseKnowledgeBase([]byte("entries:\n  - id: a\n    questions: [q]\n    answer: x\n    follow_ups: [missing]\n"))
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestWriteKBFileRoundTrip(t *testing.T) {
	var sb strings.Builder
	file := KBFile{Entries: []KBEntry{
		{ID: "a", Questions: []string{"first question"}, Answer: "first answer"},
	}}
	if err := WriteKBFile(&sb, file); err != nil {
		t.Fatalf("WriteKBFile: %v", err)
	}
	if strings.Contains(sb.String(), "follow_ups") {
		t.Error("empty follow_ups should be omitted")
	}
	base, err := ParseKnowledgeBase([]byte(sb.String()))
	if err != nil {
		t.Fatalf("ParseKnowledgeBase: %v", err)
	}
	if base.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", base.Len())
	}
}

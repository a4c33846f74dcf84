package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/cognicore/qnabot/pkg/qna/config"
)

func repoRoot(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", ".."))
}

func TestImportFAQFile(t *testing.T) {
	path := filepath.Join(repoRoot(t), "testdata", "faq.html")

	file, err := importFAQ(context.Background(), path, "faq.html")
	if err != nil {
		t.Fatalf("importFAQ: %v", err)
	}
	if len(file.Entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(file.Entries))
	}

	first := file.Entries[0]
	if first.ID != "what-are-your-hours" || first.Answer != "We are open 9-5 on weekdays." {
		t.Errorf("unexpected first entry %+v", first)
	}
	if first.Metadata["section"] != "Visiting" || first.Metadata["source"] != "faq.html" {
		t.Errorf("unexpected metadata %v", first.Metadata)
	}
	if file.Entries[3].Questions[0] != "Do you ship abroad?" {
		t.Errorf("expected dt question last, got %+v", file.Entries[3])
	}
}

func TestImportFAQHTTP(t *testing.T) {
	page, err := os.ReadFile(filepath.Join(repoRoot(t), "testdata", "faq.html"))
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/faq" {
			http.NotFound(w, r)
			return
		}
		w.Write(page)
	}))
	defer srv.Close()

	file, err := importFAQ(context.Background(), srv.URL+"/faq", srv.URL+"/faq")
	if err != nil {
		t.Fatalf("importFAQ: %v", err)
	}
	if len(file.Entries) != 4 {
		t.Errorf("expected 4 entries, got %d", len(file.Entries))
	}

	if _, err := importFAQ(context.Background(), srv.URL+"/missing", ""); err == nil {
		t.Error("expected error for 404")
	}
}

func TestImportFAQNoQuestions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.html")
	if err := os.WriteFile(path, []byte("<p>nothing to see</p>"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := importFAQ(context.Background(), path, ""); err == nil {
		t.Error("expected error when no questions are found")
	}
}

func TestWriteOutput(t *testing.T) {
	file, err := importFAQ(context.Background(), filepath.Join(repoRoot(t), "testdata", "faq.html"), "faq.html")
	if err != nil {
		t.Fatalf("importFAQ: %v", err)
	}

	path := filepath.Join(t.TempDir(), "kb.yaml")
	if err := writeOutput(path, file, nil); err != nil {
		t.Fatalf("writeOutput: %v", err)
	}
	base, err := config.LoadKnowledgeBase(path)
	if err != nil {
		t.Fatalf("written file does not load: %v", err)
	}
	if base.Len() != 4 {
		t.Errorf("expected 4 entries, got %d", base.Len())
	}

	var stdout bytes.Buffer
	if err := writeOutput("", file, &stdout); err != nil {
		t.Fatalf("writeOutput to stdout: %v", err)
	}
	if !strings.Contains(stdout.String(), "what-are-your-hours") {
		t.Errorf("stdout output missing entries: %q", stdout.String())
	}

	missing := filepath.Join(t.TempDir(), "no-such-dir", "kb.yaml")
	if err := writeOutput(missing, file, nil); err == nil {
		t.Error("expected error for an unwritable path")
	}
}

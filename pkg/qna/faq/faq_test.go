package faq

import (
	"strings"
	"testing"

	"github.com/cognicore/qnabot/pkg/qna/config"
)

const page = `<!doctype html>
<html>
<head><title>Help</title><style>h2 { color: red }</style></head>
<body>
<nav><h2>Menu?</h2><p>ignored</p></nav>
<h1>Opening times</h1>
<h2>What are your hours?</h2>
<p>We are open 9-5.</p>
<p>Closed on public holidays.</p>
<h3>Do you open on weekends?</h3>
<p>No, we are   closed
on weekends.</p>
<h1>Billing</h1>
<p><strong>How do I pay?</strong> By card or <em>bank transfer</em>.</p>
<dl>
  <dt>Can I get a refund?</dt>
  <dd>Yes, within 30 days.</dd>
</dl>
<h2>Is this question unanswered?</h2>
<h2>Contact</h2>
<script>var x = "Hidden?";</script>
</body>
</html>`

func TestParse(t *testing.T) {
	pairs, err := Parse(strings.NewReader(page))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := []Pair{
		{Question: "What are your hours?", Answer: "We are open 9-5.\n\nClosed on public holidays.", Section: "Opening times"},
		{Question: "Do you open on weekends?", Answer: "No, we are closed on weekends.", Section: "Opening times"},
		{Question: "How do I pay?", Answer: "By card or bank transfer.", Section: "Billing"},
		{Question: "Can I get a refund?", Answer: "Yes, within 30 days.", Section: "Billing"},
	}
	if len(pairs) != len(want) {
		t.Fatalf("expected %d pairs, got %d: %+v", len(want), len(pairs), pairs)
	}
	for i := range want {
		if pairs[i] != want[i] {
			t.Errorf("pair %d: got %+v, want %+v", i, pairs[i], want[i])
		}
	}
}

func TestParseNoQuestions(t *testing.T) {
	pairs, err := Parse(strings.NewReader("<p>Just text.</p>"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(pairs) != 0 {
		t.Errorf("expected no pairs, got %+v", pairs)
	}
}

func TestToKBFileLoads(t *testing.T) {
	pairs := []Pair{
		{Question: "What are your hours?", Answer: "9-5", Section: "Opening"},
		{Question: "What are your hours?", Answer: "Also 9-5"},
		{Question: "???", Answer: "punctuation only"},
	}
	file := ToKBFile(pairs, "https://example.com/faq")

	ids := []string{file.Entries[0].ID, file.Entries[1].ID, file.Entries[2].ID}
	if ids[0] != "what-are-your-hours" || ids[1] != "what-are-your-hours-2" || ids[2] != "entry" {
		t.Errorf("unexpected ids %v", ids)
	}
	if file.Entries[0].Metadata["section"] != "Opening" || file.Entries[0].Metadata["source"] != "https://example.com/faq" {
		t.Errorf("unexpected metadata %v", file.Entries[0].Metadata)
	}

	var sb strings.Builder
	if err := config.WriteKBFile(&sb, file); err != nil {
		t.Fatalf("WriteKBFile: %v", err)
	}
	base, err := config.ParseKnowledgeBase([]byte(sb.String()))
	if err != nil {
		t.Fatalf("generated knowledge base should load: %v", err)
	}
	if base.Len() != 3 {
		t.Errorf("expected 3 entries, got %d", base.Len())
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"What are your hours?", "what-are-your-hours"},
		{"  Café & Wi-Fi?  ", "café-wi-fi"},
		{"Form 1040 deadline?", "form-1040-deadline"},
		{strings.Repeat("ab ", 40), strings.TrimRight(strings.Repeat("ab-", 16), "-")},
	}
	for _, tt := range tests {
		if got := Slug(tt.in); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

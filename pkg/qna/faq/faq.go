// Package faq extracts question/answer pairs from FAQ style HTML pages.
//
// A question is a heading (h1-h6), dt or summary element whose text ends
// with '?', or a paragraph that opens with bold text ending with '?'. The
// text blocks that follow, up to the next heading, form its answer. Headings
// that are not questions start a new section.
package faq

import (
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/elliotchance/pie/v2"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/cognicore/qnabot/pkg/qna/config"
)

const maxIDLength = 48

// Pair is one extracted question and its answer.
type Pair struct {
	Question string
	Answer   string
	Section  string // nearest preceding non-question heading
}

type blockKind int

const (
	headingBlock blockKind = iota
	textBlock
)

type block struct {
	kind blockKind
	text string
}

// Parse reads an HTML document and returns its question/answer pairs in
// document order. Questions without any answer text are dropped.
func Parse(r io.Reader) ([]Pair, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var blocks []block
	collect(doc, &blocks)

	var (
		pairs   []Pair
		current *Pair
		answer  []string
		section string
	)
	flush := func() {
		if current != nil {
			current.Answer = strings.Join(answer, "\n\n")
			pairs = append(pairs, *current)
		}
		current, answer = nil, nil
	}

	for _, b := range blocks {
		switch b.kind {
		case headingBlock:
			flush()
			if isQuestion(b.text) {
				current = &Pair{Question: b.text, Section: section}
			} else {
				section = b.text
			}
		case textBlock:
			if current != nil {
				answer = append(answer, b.text)
			}
		}
	}
	flush()

	return pie.Filter(pairs, func(p Pair) bool { return p.Answer != "" }), nil
}

// collect walks n in document order and appends heading and text blocks.
func collect(n *html.Node, blocks *[]block) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Nav, atom.Footer:
			return
		case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Dt, atom.Summary:
			if text := textOf(n); text != "" {
				*blocks = append(*blocks, block{kind: headingBlock, text: text})
			}
			return
		case atom.P, atom.Li, atom.Dd, atom.Td, atom.Pre, atom.Blockquote:
			if q, rest, ok := boldQuestion(n); ok {
				*blocks = append(*blocks, block{kind: headingBlock, text: q})
				if rest != "" {
					*blocks = append(*blocks, block{kind: textBlock, text: rest})
				}
				return
			}
			if text := textOf(n); text != "" {
				*blocks = append(*blocks, block{kind: textBlock, text: text})
			}
			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collect(c, blocks)
	}
}

// boldQuestion reports whether n opens with a strong or b element whose text
// is a question, returning that question and the remaining text.
func boldQuestion(n *html.Node) (string, string, bool) {
	first := n.FirstChild
	for first != nil && first.Type == html.TextNode && strings.TrimSpace(first.Data) == "" {
		first = first.NextSibling
	}
	if first == nil || first.Type != html.ElementNode {
		return "", "", false
	}
	if first.DataAtom != atom.Strong && first.DataAtom != atom.B {
		return "", "", false
	}

	q := textOf(first)
	if !isQuestion(q) {
		return "", "", false
	}

	var rest strings.Builder
	for c := first.NextSibling; c != nil; c = c.NextSibling {
		writeText(c, &rest)
	}
	return q, collapse(rest.String()), true
}

func textOf(n *html.Node) string {
	var buf strings.Builder
	writeText(n, &buf)
	return collapse(buf.String())
}

func writeText(n *html.Node, buf *strings.Builder) {
	if n.Type == html.TextNode {
		buf.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(c, buf)
	}
	if n.Type == html.ElementNode && breaksText(n.DataAtom) {
		buf.WriteByte(' ')
	}
}

// breaksText reports whether an element separates words, unlike inline
// elements such as em or a.
func breaksText(a atom.Atom) bool {
	switch a {
	case atom.Br, atom.P, atom.Div, atom.Li, atom.Dd, atom.Dt, atom.Td, atom.Th, atom.Tr,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Pre, atom.Blockquote:
		return true
	}
	return false
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isQuestion(s string) bool {
	return strings.HasSuffix(strings.TrimSpace(s), "?")
}

// ToKBFile turns pairs into knowledge base entries with ids derived from the
// question text. source, when set, is recorded in each entry's metadata.
func ToKBFile(pairs []Pair, source string) config.KBFile {
	used := make(map[string]bool, len(pairs))
	file := config.KBFile{Entries: make([]config.KBEntry, 0, len(pairs))}

	for _, p := range pairs {
		base := Slug(p.Question)
		if base == "" {
			base = "entry"
		}
		id := base
		for n := 2; used[id]; n++ {
			id = fmt.Sprintf("%s-%d", base, n)
		}
		used[id] = true

		meta := map[string]string{}
		if source != "" {
			meta["source"] = source
		}
		if p.Section != "" {
			meta["section"] = p.Section
		}
		if len(meta) == 0 {
			meta = nil
		}

		file.Entries = append(file.Entries, config.KBEntry{
			ID:        id,
			Questions: []string{p.Question},
			Answer:    p.Answer,
			Metadata:  meta,
		})
	}
	return file
}

// Slug lower-cases s and joins its letter and digit runs with '-'.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}

	out := []rune(b.String())
	if len(out) > maxIDLength {
		out = out[:maxIDLength]
	}
	return strings.TrimRight(string(out), "-")
}

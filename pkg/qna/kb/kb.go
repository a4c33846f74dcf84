// Package kb holds the immutable question/answer knowledge base the engine
// matches against.
package kb

import (
	"fmt"
	"sort"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/cognicore/qnabot/pkg/qna/internalerr"
)

// Entry is one knowledge item
type Entry struct {
	ID        string
	Questions []string // normalized alternate phrasings
	Answer    string
	FollowUps []string // entry ids offered as next-turn prompts
	Metadata  map[string]string
	Ordinal   int // position in load order
}

// KnowledgeBase is an immutable set of entries keyed by id.
// Reloading means building a new KnowledgeBase and swapping it in a Holder.
type KnowledgeBase struct {
	version string
	entries []Entry
	index   map[string]int
}

// Problem describes one validation failure.
type Problem struct {
	Index   int
	EntryID string
	Reason  string
}

// ValidationError reports every problem found while loading entries.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		p := e.Problems[0]
		return fmt.Sprintf("invalid knowledge base: entry %d (%q): %s", p.Index, p.EntryID, p.Reason)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "invalid knowledge base: %d problems", len(e.Problems))
	for _, p := range e.Problems {
		fmt.Fprintf(&b, "; entry %d (%q): %s", p.Index, p.EntryID, p.Reason)
	}
	return b.String()
}

// Unwrap lets callers match with errors.Is(err, internalerr.ErrInvalidInput).
func (e *ValidationError) Unwrap() error {
	return internalerr.ErrInvalidInput
}

// Load validates entries and builds a KnowledgeBase. Questions are normalized
// and de-duplicated; ordinals follow the input order.
func Load(entries []Entry) (*KnowledgeBase, error) {
	var problems []Problem
	add := func(i int, id, reason string) {
		problems = append(problems, Problem{Index: i, EntryID: id, Reason: reason})
	}

	index := make(map[string]int, len(entries))
	out := make([]Entry, 0, len(entries))

	for i, e := range entries {
		id := strings.TrimSpace(e.ID)
		if id == "" {
			add(i, e.ID, "empty id")
			continue
		}
		if _, dup := index[id]; dup {
			add(i, id, "duplicate id")
			continue
		}

		questions := normalizeQuestions(e.Questions)
		if len(questions) == 0 {
			add(i, id, "no questions")
		}
		answer := strings.TrimSpace(e.Answer)
		if answer == "" {
			add(i, id, "empty answer")
		}

		entry := copyEntry(e)
		entry.ID = id
		entry.Questions = questions
		entry.Answer = answer
		entry.FollowUps = trimAll(e.FollowUps)
		entry.Ordinal = len(out)

		index[id] = len(out)
		out = append(out, entry)
	}

	// Follow-ups are checked once every id is known.
	for i, e := range out {
		for _, ref := range e.FollowUps {
			if _, ok := index[ref]; !ok {
				add(i, e.ID, fmt.Sprintf("follow-up %q does not exist", ref))
			}
		}
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	return &KnowledgeBase{
		version: ulid.Make().String(),
		entries: out,
		index:   index,
	}, nil
}

// Version identifies this load for diagnostics.
func (k *KnowledgeBase) Version() string { return k.version }

// Len returns the number of entries.
func (k *KnowledgeBase) Len() int { return len(k.entries) }

// Lookup returns the entry with the given id.
func (k *KnowledgeBase) Lookup(id string) (Entry, bool) {
	i, ok := k.index[id]
	if !ok {
		return Entry{}, false
	}
	return copyEntry(k.entries[i]), true
}

// All returns every entry in load order.
func (k *KnowledgeBase) All() []Entry {
	out := make([]Entry, len(k.entries))
	for i, e := range k.entries {
		out[i] = copyEntry(e)
	}
	return out
}

// Subset returns the entries for ids in load order. Unknown ids are skipped
// and duplicates collapsed.
func (k *KnowledgeBase) Subset(ids []string) []Entry {
	seen := make(map[int]struct{}, len(ids))
	positions := make([]int, 0, len(ids))
	for _, id := range ids {
		i, ok := k.index[id]
		if !ok {
			continue
		}
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		positions = append(positions, i)
	}
	sort.Ints(positions)

	out := make([]Entry, len(positions))
	for j, i := range positions {
		out[j] = copyEntry(k.entries[i])
	}
	return out
}

// NormalizeQuestion lower-cases s and collapses whitespace.
func NormalizeQuestion(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func normalizeQuestions(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, q := range in {
		n := NormalizeQuestion(q)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func copyEntry(e Entry) Entry {
	copySlice := func(in []string) []string {
		if in == nil {
			return nil
		}
		out := make([]string, len(in))
		copy(out, in)
		return out
	}

	var meta map[string]string
	if e.Metadata != nil {
		meta = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			meta[k] = v
		}
	}

	return Entry{
		ID:        e.ID,
		Questions: copySlice(e.Questions),
		Answer:    e.Answer,
		FollowUps: copySlice(e.FollowUps),
		Metadata:  meta,
		Ordinal:   e.Ordinal,
	}
}

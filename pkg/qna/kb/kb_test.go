package kb

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/cognicore/qnabot/pkg/qna/internalerr"
)

func sampleEntries() []Entry {
	return []Entry{
		{ID: "E1", Questions: []string{"Hours"}, Answer: "9-5", FollowUps: []string{"E2"}},
		{ID: "E2", Questions: []string{"weekend   hours"}, Answer: "closed"},
	}
}

func TestLoadNormalizesAndOrders(t *testing.T) {
	base, err := Load(sampleEntries())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if base.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", base.Len())
	}

	e2, ok := base.Lookup("E2")
	if !ok {
		t.Fatal("E2 should exist")
	}
	if e2.Questions[0] != "weekend hours" {
		t.Errorf("question not normalized: %q", e2.Questions[0])
	}
	if e2.Ordinal != 1 {
		t.Errorf("expected ordinal 1, got %d", e2.Ordinal)
	}

	all := base.All()
	if all[0].ID != "E1" || all[1].ID != "E2" {
		t.Errorf("All should follow load order, got %s,%s", all[0].ID, all[1].ID)
	}
	if base.Version() == "" {
		t.Error("expected a version")
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		reason  string
	}{
		{
			name:    "dangling follow-up",
			entries: []Entry{{ID: "a", Questions: []string{"q"}, Answer: "x", FollowUps: []string{"missing"}}},
			reason:  `follow-up "missing" does not exist`,
		},
		{
			name:    "empty questions",
			entries: []Entry{{ID: "a", Questions: []string{"  "}, Answer: "x"}},
			reason:  "no questions",
		},
		{
			name:    "empty answer",
			entries: []Entry{{ID: "a", Questions: []string{"q"}, Answer: " "}},
			reason:  "empty answer",
		},
		{
			name:    "empty id",
			entries: []Entry{{ID: "", Questions: []string{"q"}, Answer: "x"}},
			reason:  "empty id",
		},
		{
			name: "duplicate id",
			entries: []Entry{
				{ID: "a", Questions: []string{"q"}, Answer: "x"},
				{ID: "a", Questions: []string{"r"}, Answer: "y"},
			},
			reason: "duplicate id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.entries)
			if err == nil {
				t.Fatal("expected validation error")
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if !errors.Is(err, internalerr.ErrInvalidInput) {
				t.Error("validation error should match ErrInvalidInput")
			}
			if !strings.Contains(err.Error(), tt.reason) {
				t.Errorf("error %q should mention %q", err.Error(), tt.reason)
			}
		})
	}
}

func TestLoadReportsAllProblems(t *testing.T) {
	_, err := Load([]Entry{
		{ID: "a", Questions: nil, Answer: ""},
		{ID: "b", Questions: []string{"q"}, Answer: "x", FollowUps: []string{"zzz"}},
	})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if len(verr.Problems) != 3 {
		t.Errorf("expected 3 problems, got %d: %v", len(verr.Problems), verr.Problems)
	}
}

func TestCyclesAreAllowed(t *testing.T) {
	_, err := Load([]Entry{
		{ID: "a", Questions: []string{"a"}, Answer: "x", FollowUps: []string{"b", "a"}},
		{ID: "b", Questions: []string{"b"}, Answer: "y", FollowUps: []string{"a"}},
	})
	if err != nil {
		t.Fatalf("cycles should load: %v", err)
	}
}

func TestSubsetUsesLoadOrder(t *testing.T) {
	base, err := Load([]Entry{
		{ID: "a", Questions: []string{"a"}, Answer: "x"},
		{ID: "b", Questions: []string{"b"}, Answer: "y"},
		{ID: "c", Questions: []string{"c"}, Answer: "z"},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	sub := base.Subset([]string{"c", "missing", "a", "c"})
	if len(sub) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(sub))
	}
	if sub[0].ID != "a" || sub[1].ID != "c" {
		t.Errorf("expected [a c], got [%s %s]", sub[0].ID, sub[1].ID)
	}
}

func TestEntriesAreCopies(t *testing.T) {
	base, err := Load(sampleEntries())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	e1, _ := base.Lookup("E1")
	e1.Questions[0] = "mutated"
	e1.FollowUps[0] = "mutated"

	again, _ := base.Lookup("E1")
	if again.Questions[0] != "hours" || again.FollowUps[0] != "E2" {
		t.Error("mutating a returned entry must not change the knowledge base")
	}
}

func TestHolderSwap(t *testing.T) {
	first, _ := Load(sampleEntries())
	second, _ := Load([]Entry{{ID: "x", Questions: []string{"x"}, Answer: "y"}})

	h := NewHolder(first)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cur := h.Current()
				if cur.Len() != 1 && cur.Len() != 2 {
					t.Errorf("observed partial knowledge base with %d entries", cur.Len())
				}
			}
		}()
	}

	prev := h.Swap(second)
	wg.Wait()

	if prev != first {
		t.Error("Swap should return the previous knowledge base")
	}
	if h.Current() != second {
		t.Error("Current should return the swapped knowledge base")
	}
}

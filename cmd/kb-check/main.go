// kb-check validates a knowledge base file and runs probe questions against it.
//
// Probe files hold one question per line, optionally followed by "=>" and the
// entry id expected to answer it:
//
//	when are you open => hours
//	where can i park
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/elliotchance/pie/v2"

	"github.com/cognicore/qnabot/internal/logging"
	"github.com/cognicore/qnabot/pkg/qna/config"
	"github.com/cognicore/qnabot/pkg/qna/kb"
	"github.com/cognicore/qnabot/pkg/qna/match"
	"github.com/cognicore/qnabot/pkg/qna/rank"
)

func main() {
	var (
		configPath    = flag.String("config", "", "Config file; its kb, lexicon, stopwords and scorer settings are used")
		kbPath        = flag.String("kb", "", "Knowledge base file (overrides the config)")
		lexiconPath   = flag.String("lexicon", "", "Lexicon file (without -config)")
		stopwordsPath = flag.String("stopwords", "", "Stopwords file (without -config)")
		probesPath    = flag.String("probes", "", "Probe questions file")
		minConfidence = flag.Float64("min-confidence", 0.6, "Answer threshold (without -config)")
		topK          = flag.Int("topk", 3, "Results shown per probe")
	)
	flag.Parse()

	logging.Preinit()
	ctx := context.Background()

	opts := options{
		kbPath:        *kbPath,
		minConfidence: *minConfidence,
		topK:          *topK,
		loader:        config.Loader{LexiconPath: *lexiconPath, StopwordsPath: *stopwordsPath},
	}
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			slog.Error("config load failed", "error", err)
			os.Exit(1)
		}
		opts.cfg = cfg
		opts.loader = config.NewLoader(cfg)
		opts.minConfidence = cfg.Match.Threshold()
		if opts.kbPath == "" {
			opts.kbPath = cfg.KB.Path
		}
	}
	if opts.kbPath == "" {
		slog.Error("-kb or -config required")
		os.Exit(2)
	}

	if *probesPath != "" {
		probes, err := loadProbes(*probesPath)
		if err != nil {
			slog.Error("load probes", "error", err)
			os.Exit(1)
		}
		opts.probes = probes
	}

	failures, err := run(ctx, opts, os.Stdout)
	if err != nil {
		slog.Error("check failed", "error", err)
		os.Exit(1)
	}
	if failures > 0 {
		os.Exit(1)
	}
}

type options struct {
	cfg           *config.Config
	loader        config.Loader
	kbPath        string
	probes        []probe
	minConfidence float64
	topK          int
}

type probe struct {
	query  string
	expect string // entry id, empty when any answer is fine
}

// run validates the knowledge base, reports structure warnings and runs the
// probes. It returns the number of failed checks.
func run(ctx context.Context, opts options, w io.Writer) (int, error) {
	base, err := config.LoadKnowledgeBase(opts.kbPath)
	if err != nil {
		var verr *kb.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintf(w, "INVALID %s: %d problem(s)\n", opts.kbPath, len(verr.Problems))
			for _, p := range verr.Problems {
				fmt.Fprintf(w, "  entry %d %q: %s\n", p.Index, p.EntryID, p.Reason)
			}
			return len(verr.Problems), nil
		}
		return 0, err
	}

	entries := base.All()
	questions := 0
	links := 0
	for _, e := range entries {
		questions += len(e.Questions)
		links += len(e.FollowUps)
	}
	fmt.Fprintf(w, "OK %s: %d entries, %d questions, %d follow-up links (version %s)\n",
		opts.kbPath, len(entries), questions, links, base.Version())

	for _, line := range structureWarnings(entries) {
		fmt.Fprintln(w, "WARN", line)
	}

	if len(opts.probes) == 0 {
		return 0, nil
	}

	comp, err := opts.loader.Load()
	if err != nil {
		return 0, err
	}
	var scorer rank.Scorer = rank.NewLexical(comp.Tokenizer, rank.DefaultWeights())
	if opts.cfg != nil {
		if scorer, err = config.NewScorer(ctx, opts.cfg, comp, base); err != nil {
			return 0, err
		}
	}

	engine := match.New(match.Options{Scorer: scorer})
	failures := 0
	for _, p := range opts.probes {
		results, err := engine.Resolve(ctx, p.query, entries, 0)
		if err != nil {
			return failures, err
		}

		answered := pie.Filter(results, func(r match.Result) bool { return r.Score >= opts.minConfidence })
		got := "(no answer)"
		if best, ok := match.Best(answered); ok {
			got = best.EntryID
		}

		status := "  "
		if p.expect != "" {
			if got == p.expect {
				status = "ok"
			} else {
				status = "!!"
				failures++
			}
		}
		fmt.Fprintf(w, "%s %q -> %s", status, p.query, got)
		if p.expect != "" && got != p.expect {
			fmt.Fprintf(w, " (expected %s)", p.expect)
		}
		fmt.Fprintln(w)

		for _, r := range results[:min(opts.topK, len(results))] {
			fmt.Fprintf(w, "     %.3f %s (%q)\n", r.Score, r.EntryID, r.Question)
		}
	}

	fmt.Fprintf(w, "%d probe(s), %d failure(s)\n", len(opts.probes), failures)
	return failures, nil
}

// structureWarnings reports phrasings shared by several entries, where the
// first loaded entry always wins, and self-referencing follow-ups.
func structureWarnings(entries []kb.Entry) []string {
	var warnings []string

	owners := make(map[string][]string)
	for _, e := range entries {
		for _, q := range e.Questions {
			owners[q] = append(owners[q], e.ID)
		}
		if pie.Contains(e.FollowUps, e.ID) {
			warnings = append(warnings, fmt.Sprintf("entry %q offers itself as a follow-up", e.ID))
		}
	}

	shared := pie.Filter(pie.Keys(owners), func(q string) bool { return len(owners[q]) > 1 })
	sort.Strings(shared)
	for _, q := range shared {
		warnings = append(warnings, fmt.Sprintf("question %q appears in %s; %s always wins",
			q, strings.Join(owners[q], ", "), owners[q][0]))
	}
	return warnings
}

func loadProbes(path string) ([]probe, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseProbes(f)
}

func parseProbes(r io.Reader) ([]probe, error) {
	var probes []probe
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		query, expect, _ := strings.Cut(line, "=>")
		probes = append(probes, probe{query: strings.TrimSpace(query), expect: strings.TrimSpace(expect)})
	}
	return probes, scanner.Err()
}

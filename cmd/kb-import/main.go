// kb-import converts an FAQ page into a knowledge base YAML file.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/cognicore/qnabot/internal/logging"
	"github.com/cognicore/qnabot/pkg/qna/config"
	"github.com/cognicore/qnabot/pkg/qna/faq"
	"github.com/cognicore/qnabot/pkg/qna/kb"
)

func main() {
	var (
		in      = flag.String("in", "", "FAQ page: file path or http(s) URL (required)")
		out     = flag.String("out", "", "Output KB file (default stdout)")
		source  = flag.String("source", "", "Source recorded in entry metadata (default: -in)")
		timeout = flag.Duration("timeout", 30*time.Second, "HTTP timeout")
	)
	flag.Parse()

	logging.Preinit()

	if *in == "" {
		slog.Error("-in required")
		os.Exit(2)
	}
	if *source == "" {
		*source = *in
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	file, err := importFAQ(ctx, *in, *source)
	if err != nil {
		slog.Error("import failed", "in", *in, "error", err)
		os.Exit(1)
	}

	if err := writeOutput(*out, file, os.Stdout); err != nil {
		slog.Error("write output", "out", *out, "error", err)
		os.Exit(1)
	}
	slog.Info("imported FAQ", "in", *in, "entries", len(file.Entries))
}

// writeOutput writes file to path, or to stdout when path is empty. The
// output file is closed before returning so a failed flush is reported.
func writeOutput(path string, file config.KBFile, stdout io.Writer) error {
	if path == "" {
		return config.WriteKBFile(stdout, file)
	}

	f, err := os.Create(path)
	if err != nil {
		return oops.In("kb-import").With("out", path).Wrap(err)
	}
	if err := config.WriteKBFile(f, file); err != nil {
		f.Close()
		return oops.In("kb-import").With("out", path).Wrap(err)
	}
	if err := f.Close(); err != nil {
		return oops.In("kb-import").With("out", path).Wrap(err)
	}
	return nil
}

// importFAQ reads the page, extracts pairs and checks that the result loads
// as a knowledge base.
func importFAQ(ctx context.Context, in, source string) (config.KBFile, error) {
	r, err := open(ctx, in)
	if err != nil {
		return config.KBFile{}, err
	}
	defer r.Close()

	pairs, err := faq.Parse(r)
	if err != nil {
		return config.KBFile{}, oops.In("kb-import").With("in", in).Wrap(err)
	}
	if len(pairs) == 0 {
		return config.KBFile{}, oops.In("kb-import").With("in", in).Errorf("no questions found")
	}

	file := faq.ToKBFile(pairs, source)
	if _, err := kb.Load(file.ToEntries()); err != nil {
		return config.KBFile{}, oops.In("kb-import").With("in", in).Wrapf(err, "generated knowledge base is invalid")
	}
	return file, nil
}

func open(ctx context.Context, in string) (io.ReadCloser, error) {
	if !strings.HasPrefix(in, "http://") && !strings.HasPrefix(in, "https://") {
		return os.Open(in)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, in, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return resp.Body, nil
}

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/elliotchance/pie/v2"
	"github.com/oklog/ulid/v2"
	"github.com/samber/do"

	"github.com/cognicore/qnabot/pkg/qna"
	"github.com/cognicore/qnabot/pkg/qna/config"
	"github.com/cognicore/qnabot/pkg/qna/dialog"
	"github.com/cognicore/qnabot/pkg/qna/match"
	"github.com/cognicore/qnabot/pkg/qna/rank"
	"github.com/cognicore/qnabot/pkg/qna/transport"
)

const helpText = `Commands:
  /state   show the stored conversation state
  /reset   start a new conversation
  /reload  reload the knowledge base from disk
  /help    show this help
  /quit    exit`

// chat is the interactive transport: one conversation per session.
type chat struct {
	cfg            *config.Config
	bot            *qna.Bot
	transport      *transport.Transport
	scorer         rank.Scorer
	out            io.Writer
	conversationID string
	verbose        bool
}

func newChat(di *do.Injector, out io.Writer, conversationID string, verbose bool) (*chat, error) {
	tr, err := do.Invoke[*transport.Transport](di)
	if err != nil {
		return nil, err
	}
	if conversationID == "" {
		conversationID = ulid.Make().String()
	}
	return &chat{
		cfg:            do.MustInvoke[*config.Config](di),
		bot:            do.MustInvoke[*qna.Bot](di),
		transport:      tr,
		scorer:         do.MustInvoke[rank.Scorer](di),
		out:            out,
		conversationID: conversationID,
		verbose:        verbose,
	}, nil
}

// run reads lines until EOF or /quit.
func (c *chat) run(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(c.out, "> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if quit := c.handle(ctx, line); quit {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
}

// handle processes one input line and reports whether the session should end.
func (c *chat) handle(ctx context.Context, line string) bool {
	switch line {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(c.out, helpText)
	case "/reset":
		c.conversationID = ulid.Make().String()
		fmt.Fprintf(c.out, "New conversation %s\n", c.conversationID)
	case "/state":
		c.printState(ctx)
	case "/reload":
		if err := c.reload(ctx); err != nil {
			slog.Error("reload failed", "error", err, "telegram", true)
			fmt.Fprintln(c.out, "Reload failed, keeping the current knowledge base:", err)
			break
		}
		base := c.bot.KnowledgeBase()
		fmt.Fprintf(c.out, "Reloaded %d entries (version %s)\n", base.Len(), base.Version())
	default:
		c.ask(ctx, line)
	}
	return false
}

func (c *chat) ask(ctx context.Context, text string) {
	turnCtx, cancel := context.WithTimeout(ctx, c.cfg.Dialog.TurnTimeout)
	defer cancel()

	reply := c.transport.Handle(turnCtx, c.conversationID, text)
	fmt.Fprintln(c.out, reply.Text)
	if reply.Err != nil {
		return
	}

	resp := reply.Response
	if len(resp.Suggestions) > 0 {
		fmt.Fprintln(c.out, "You may also ask:")
		for _, s := range resp.Suggestions {
			fmt.Fprintf(c.out, "  - %s\n", s.Question)
		}
	}
	if c.verbose {
		c.printDetails(resp)
	}
}

func (c *chat) printDetails(resp dialog.Response) {
	fmt.Fprintf(c.out, "[turn %s entry=%q score=%.2f scope=%s mode=%s]\n",
		resp.TurnID, resp.EntryID, resp.Score, resp.Scope, resp.Mode)
	if len(resp.Candidates) > 1 {
		alternatives := pie.Map(resp.Candidates[1:], func(r match.Result) string {
			return fmt.Sprintf("%s (%.2f)", r.EntryID, r.Score)
		})
		fmt.Fprintf(c.out, "[alternatives: %s]\n", strings.Join(alternatives, ", "))
	}
}

func (c *chat) printState(ctx context.Context) {
	st, ok, err := c.bot.State(ctx, c.conversationID)
	if err != nil {
		fmt.Fprintln(c.out, "State unavailable:", err)
		return
	}
	if !ok {
		fmt.Fprintf(c.out, "Conversation %s has no stored state\n", c.conversationID)
		return
	}

	mode := dialog.ModeRoot
	if !st.AtRoot() {
		mode = dialog.ModeInPrompt
	}
	fmt.Fprintf(c.out, "Conversation %s: %s prompts=%v last=%q turns=%d version=%d\n",
		c.conversationID, mode, st.ActivePrompts, st.LastEntryID, st.Turns, st.Version)
}

// reload reads the knowledge base file again and swaps it in. An invalid
// file leaves the current knowledge base in place.
func (c *chat) reload(ctx context.Context) error {
	base, err := config.LoadKnowledgeBase(c.cfg.KB.Path)
	if err != nil {
		return err
	}
	if emb, ok := c.scorer.(*rank.Embedding); ok {
		if err := emb.Warm(ctx, base); err != nil {
			return err
		}
	}
	return c.bot.Reload(base)
}

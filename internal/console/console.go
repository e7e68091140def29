// Package console implements the interactive terminal chat loop.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/flemzord/dschat/internal/agent"
	ctxengine "github.com/flemzord/dschat/internal/context"
	"github.com/flemzord/dschat/internal/memory"
	"github.com/flemzord/dschat/internal/provider"
)

// DefaultStallAfter is how long the console waits for the next chunk
// before printing a progress marker.
const DefaultStallAfter = 3 * time.Second

const stallMarker = "..."

// Picker asks the user to choose a strategy. It returns the chosen name.
type Picker func(current string) (string, error)

// Options configures a Console.
type Options struct {
	Store    *memory.Store
	Executor *agent.Executor

	// SessionID selects the initial session. Empty uses the default one.
	SessionID string

	// Strategy is the initial context strategy.
	Strategy string

	In  io.Reader
	Out io.Writer

	// Interactive enables colour, markdown rendering and the strategy
	// picker. Callers set it when In and Out are a terminal.
	Interactive bool

	// Width wraps rendered markdown. Zero uses 80.
	Width int

	// Picker overrides the interactive strategy picker.
	Picker Picker

	// StallAfter overrides DefaultStallAfter.
	StallAfter time.Duration

	Logger *slog.Logger
}

// Console reads user lines, runs turns and handles slash commands.
type Console struct {
	store    *memory.Store
	executor *agent.Executor
	in       io.Reader
	out      io.Writer
	logger   *slog.Logger
	picker   Picker
	md       markdownRenderer
	stall    time.Duration

	// after is injectable for deterministic stall tests.
	after func(time.Duration) <-chan time.Time

	session  string
	strategy string
	last     *agent.TurnMetrics

	prompt, reply, notice, errc, dim *color.Color
}

// New creates a Console.
func New(opts Options) *Console {
	c := &Console{
		store:    opts.Store,
		executor: opts.Executor,
		in:       opts.In,
		out:      opts.Out,
		logger:   opts.Logger,
		picker:   opts.Picker,
		stall:    opts.StallAfter,
		after:    time.After,
		session:  opts.SessionID,
		strategy: opts.Strategy,
		prompt:   color.New(color.FgGreen, color.Bold),
		reply:    color.New(color.FgCyan, color.Bold),
		notice:   color.New(color.FgYellow),
		errc:     color.New(color.FgRed),
		dim:      color.New(color.Faint),
	}
	if c.logger == nil {
		c.logger = slog.New(nopHandler{})
	}
	if c.stall <= 0 {
		c.stall = DefaultStallAfter
	}
	if c.session == "" {
		c.session = memory.DefaultSessionID
	}
	if c.strategy == "" {
		c.strategy = ctxengine.StrategyDefault
	}
	if opts.Interactive {
		if c.picker == nil {
			c.picker = huhPicker
		}
		c.md = newGlamourRenderer(opts.Width)
	} else {
		for _, col := range []*color.Color{c.prompt, c.reply, c.notice, c.errc, c.dim} {
			col.DisableColor()
		}
	}
	return c
}

// Session returns the active session id.
func (c *Console) Session() string { return c.session }

// Strategy returns the active strategy name.
func (c *Console) Strategy() string { return c.strategy }

// Run prints the banner and processes input until /quit, end of input or
// cancellation of ctx.
func (c *Console) Run(ctx context.Context) error {
	c.printWelcome()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(c.in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		c.prompt.Fprint(c.out, "You: ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out)
			return nil
		case err := <-readErr:
			fmt.Fprintln(c.out)
			if err != nil {
				return fmt.Errorf("console: reading input: %w", err)
			}
			return nil
		case line := <-lines:
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, "/") {
				quit, err := c.command(ctx, line)
				if err != nil {
					c.errc.Fprintf(c.out, "Error: %v\n", err)
				}
				if quit {
					fmt.Fprintln(c.out, "Goodbye!")
					return nil
				}
				continue
			}
			c.turn(ctx, line)
		}
	}
}

// turn runs one conversational turn and prints its reply and stats.
func (c *Console) turn(ctx context.Context, text string) {
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	release := c.store.Lanes().Acquire(c.session)
	defer release()

	sess := c.store.Get(turnCtx, c.session)
	events := c.executor.RunTurn(turnCtx, sess, text, c.strategy, provider.SamplingParams{})

	c.reply.Fprint(c.out, "AI: ")
	stallC := c.after(c.stall)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.handleEvent(ev)
			if ev.Type == agent.EventDelta {
				stallC = c.after(c.stall)
			}
		case <-stallC:
			fmt.Fprint(c.out, stallMarker)
			stallC = nil
		}
	}
}

func (c *Console) handleEvent(ev agent.Event) {
	switch ev.Type {
	case agent.EventNotice:
		c.notice.Fprintln(c.out, strings.TrimSpace(ev.Text))
	case agent.EventDelta:
		fmt.Fprint(c.out, ev.Text)
	case agent.EventStats:
		fmt.Fprintln(c.out)
		if ev.Stats != nil {
			m := *ev.Stats
			c.last = &m
			c.dim.Fprintln(c.out, statsLine(m))
		}
	case agent.EventError:
		msg := agent.ErrorText(ev)
		if errors.Is(ev.Err, context.Canceled) {
			msg = "turn cancelled"
		}
		c.errc.Fprintf(c.out, "Error: %s\n", msg)
	}
}

func (c *Console) printWelcome() {
	line := strings.Repeat("=", 60)
	fmt.Fprintln(c.out, line)
	c.reply.Fprintln(c.out, "dschat console")
	fmt.Fprintln(c.out, line)
	fmt.Fprintf(c.out, "Session: %s  Strategy: %s\n", c.session, c.strategy)
	fmt.Fprintln(c.out, "Type a message, or /help for commands.")
	fmt.Fprintln(c.out, line)
}

// statsLine renders turn metrics on one line.
func statsLine(m agent.TurnMetrics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] tokens: request %d (%s), history %d (%s), response %d (%s)",
		m.Strategy,
		m.Request.Tokens, m.Request.Method,
		m.History.Tokens, m.History.Method,
		m.Response.Tokens, m.Response.Method,
	)
	fmt.Fprintf(&b, " | %.2fs", m.Duration.Seconds())
	if m.Usage != nil {
		fmt.Fprintf(&b, " | usage %d/%d/%d", m.Usage.PromptTokens, m.Usage.CompletionTokens, m.Usage.TotalTokens)
	}
	fmt.Fprintf(&b, " | $%.6f (session $%.6f)", m.CostUSD, m.SessionCostUSD)
	return b.String()
}

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

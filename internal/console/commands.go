package console

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	ctxengine "github.com/flemzord/dschat/internal/context"
	"github.com/flemzord/dschat/internal/memory"
)

var errUsage = errors.New("usage")

const helpText = `Commands:
  /help                 show this help
  /quit, /exit          leave the console
  /clear                erase the current session
  /strategy [name]      show or change the context strategy
  /history              print the current conversation
  /stats                show the metrics of the last turn
  /branch <index> [id]  fork the session up to a message index and switch to it
  /sessions             list sessions
  /switch <id>          change to another session`

// command executes a slash command. It reports whether the console
// should exit.
func (c *Console) command(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]

	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(c.out, helpText)
	case "/clear":
		return false, c.clear(ctx)
	case "/strategy":
		return false, c.setStrategy(args)
	case "/history":
		return false, c.printHistory(ctx)
	case "/stats":
		c.printStats()
	case "/branch":
		return false, c.branch(ctx, args)
	case "/sessions":
		return false, c.listSessions(ctx)
	case "/switch":
		if len(args) != 1 {
			return false, fmt.Errorf("%w: /switch <id>", errUsage)
		}
		if err := memory.ValidateSessionID(args[0]); err != nil {
			return false, err
		}
		c.session = args[0]
		c.last = nil
		c.notice.Fprintf(c.out, "Switched to session %s\n", c.session)
	default:
		return false, fmt.Errorf("unknown command %s (try /help)", name)
	}
	return false, nil
}

func (c *Console) clear(ctx context.Context) error {
	release := c.store.Lanes().Acquire(c.session)
	defer release()

	sess := c.store.Get(ctx, c.session)
	sess.History.Clear()
	sess.ResetCost()
	c.last = nil
	if err := c.store.Save(ctx, c.session); err != nil {
		c.logger.Warn("session save failed after clear", "session", c.session, "error", err)
	}
	c.notice.Fprintln(c.out, "History cleared.")
	return nil
}

func (c *Console) setStrategy(args []string) error {
	var name string
	switch {
	case len(args) == 1:
		name = args[0]
	case len(args) > 1:
		return fmt.Errorf("%w: /strategy [name]", errUsage)
	case c.picker != nil:
		picked, err := c.picker(c.strategy)
		if err != nil {
			return fmt.Errorf("strategy picker: %w", err)
		}
		name = picked
	default:
		fmt.Fprintf(c.out, "Strategy: %s (available: %s)\n", c.strategy, strings.Join(ctxengine.Names(), ", "))
		return nil
	}

	if !ctxengine.Known(name) {
		return fmt.Errorf("unknown strategy %q (available: %s)", name, strings.Join(ctxengine.Names(), ", "))
	}
	c.strategy = name
	c.notice.Fprintf(c.out, "Strategy set to %s\n", name)
	return nil
}

func (c *Console) printHistory(ctx context.Context) error {
	h := c.store.Get(ctx, c.session).History
	text := historyMarkdown(c.session, h.Summary(), h.Facts(), h.Messages())
	if c.md != nil {
		rendered, err := c.md.Render(text)
		if err == nil {
			text = rendered
		} else {
			c.logger.Debug("markdown rendering failed", "error", err)
		}
	}
	fmt.Fprintln(c.out, strings.TrimRight(text, "\n"))
	return nil
}

func (c *Console) printStats() {
	if c.last == nil {
		fmt.Fprintln(c.out, "No turn yet in this session.")
		return
	}
	fmt.Fprintln(c.out, statsLine(*c.last))
}

func (c *Console) branch(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: /branch <index> [id]", errUsage)
	}
	idx, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("%w: message index must be a number", errUsage)
	}
	var newID string
	if len(args) == 2 {
		newID = args[1]
		if err := memory.ValidateSessionID(newID); err != nil {
			return err
		}
	}

	release := c.store.Lanes().Acquire(c.session)
	sess, err := c.store.Branch(ctx, c.session, idx, newID)
	release()
	if err != nil {
		return err
	}

	c.notice.Fprintf(c.out, "Branched %s at message %d into %s\n", c.session, idx, sess.ID)
	c.session = sess.ID
	c.last = nil
	return nil
}

func (c *Console) listSessions(ctx context.Context) error {
	list, err := c.store.List(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(c.out, "No sessions.")
		return nil
	}
	for _, info := range list {
		marker := " "
		if info.ID == c.session {
			marker = "*"
		}
		title := info.Summary
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(c.out, "%s %s  %s  %s\n", marker, info.ID, info.UpdatedAt.Local().Format("2006-01-02 15:04"), title)
	}
	return nil
}

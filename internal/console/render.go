package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/huh"

	ctxengine "github.com/flemzord/dschat/internal/context"
	"github.com/flemzord/dschat/internal/provider"
)

type markdownRenderer interface {
	Render(in string) (string, error)
}

func newGlamourRenderer(width int) markdownRenderer {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return r
}

func huhPicker(current string) (string, error) {
	choice := current
	err := huh.NewSelect[string]().
		Title("Context strategy").
		Options(huh.NewOptions(ctxengine.Names()...)...).
		Value(&choice).
		Run()
	return choice, err
}

// historyMarkdown formats a conversation for display. Messages are
// numbered with the index /branch expects.
func historyMarkdown(id, summary, facts string, msgs []provider.LLMMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Session %s\n\n", id)
	if summary != "" {
		fmt.Fprintf(&b, "> %s\n\n", summary)
	}
	if facts != "" {
		fmt.Fprintf(&b, "## Facts\n\n%s\n\n", facts)
	}
	if len(msgs) == 0 {
		b.WriteString("_No messages._\n")
		return b.String()
	}
	for i, m := range msgs {
		fmt.Fprintf(&b, "**%d. %s**\n\n%s\n\n", i, m.Role, m.Content)
	}
	return b.String()
}

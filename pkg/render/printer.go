package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/killallgit/grapher/pkg/chat"
	"github.com/killallgit/grapher/pkg/controllers"
	"github.com/killallgit/grapher/pkg/process"
)

// Printer writes a streaming conversation to a terminal. It is meant to be
// subscribed to a ChatController and prints only what changed since the
// previous update.
type Printer struct {
	w            io.Writer
	styles       *Styles
	showThoughts bool

	mu       sync.Mutex
	turn     int // index of the assistant turn being printed, -1 when none
	printed  string
	thoughts int
	settled  bool
	midLine  bool
}

func NewPrinter(w io.Writer, showThoughts bool) *Printer {
	return &Printer{
		w:            w,
		styles:       DefaultStyles(w),
		showThoughts: showThoughts,
		turn:         -1,
	}
}

// Observe renders one controller update
func (p *Printer) Observe(u controllers.Update) {
	p.mu.Lock()
	defer p.mu.Unlock()

	last, ok := u.Transcript.LastTurn()
	if !ok || !last.IsAssistant() {
		p.turn = -1
		return
	}

	index := u.Transcript.Len() - 1
	switch {
	case u.State == process.StateSending, u.Streaming && index != p.turn:
		p.turn = index
		p.printed = ""
		p.thoughts = 0
		p.settled = false
		p.midLine = false
	case index != p.turn:
		// A loaded conversation, not a live answer
		p.turn = -1
		return
	}
	if p.settled {
		return
	}

	if p.showThoughts {
		for ; p.thoughts < len(u.LiveThoughts); p.thoughts++ {
			p.breakLine()
			fmt.Fprintln(p.w, p.styles.Thought.Render("  · "+u.LiveThoughts[p.thoughts]))
		}
	}

	p.content(last.Content, u.State)

	if u.State.IsTerminal() {
		p.settle(u.State)
	}
}

// content prints the new suffix of the answer. Replaced content, from a
// backend error or a failed request, is printed whole in the error style.
func (p *Printer) content(content string, state process.State) {
	var out string
	switch {
	case content == p.printed:
		return
	case state == process.StateFailed || !strings.HasPrefix(content, p.printed):
		p.breakLine()
		out = p.styles.ErrorMessage.Render(content)
	default:
		out = p.styles.AssistantMessage.Render(content[len(p.printed):])
	}
	p.printed = content
	p.write(out)
}

func (p *Printer) settle(state process.State) {
	p.settled = true
	if state == process.StateCancelled {
		p.breakLine()
		p.write(p.styles.Muted.Render("[stopped]"))
	}
	p.breakLine()
}

func (p *Printer) write(s string) {
	if s == "" {
		return
	}
	fmt.Fprint(p.w, s)
	p.midLine = !strings.HasSuffix(s, "\n")
}

// breakLine ends a partially printed line
func (p *Printer) breakLine() {
	if p.midLine {
		fmt.Fprintln(p.w)
		p.midLine = false
	}
}

// Transcript prints a whole conversation, e.g. after switching sessions
func (p *Printer) Transcript(t chat.Transcript) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, turn := range t.Turns() {
		if turn.IsUser() {
			fmt.Fprintln(p.w, p.styles.UserMessage.Render("> "+turn.Content))
			continue
		}
		if p.showThoughts {
			for _, th := range turn.Thoughts {
				fmt.Fprintln(p.w, p.styles.Thought.Render("  · "+th.Text))
			}
		}
		fmt.Fprintln(p.w, p.styles.AssistantMessage.Render(turn.Content))
	}
}

// Prompt returns the styled input prompt
func (p *Printer) Prompt(project string) string {
	return p.styles.Prompt.Render(project+" ›") + " "
}

func (p *Printer) Info(format string, args ...any) {
	fmt.Fprintln(p.w, p.styles.InfoMessage.Render(fmt.Sprintf(format, args...)))
}

func (p *Printer) Warn(format string, args ...any) {
	fmt.Fprintln(p.w, p.styles.WarningMessage.Render(fmt.Sprintf(format, args...)))
}

func (p *Printer) Error(format string, args ...any) {
	fmt.Fprintln(p.w, p.styles.ErrorMessage.Render(fmt.Sprintf(format, args...)))
}

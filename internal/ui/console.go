// Package ui renders publish progress on the terminal and prompts the
// operator for a publisher.
package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/HyphaGroup/pubctl/internal/publish"
)

// Symbols prefixed to console rows
const (
	symbolStatus  = "»"
	symbolRunning = "▶"
	symbolDone    = "✔"
	symbolFailed  = "✖"
	symbolWarn    = "!"
)

// Console writes publish progress as one row per update
type Console struct {
	mu       sync.Mutex
	out      io.Writer
	throttle *throttle
	now      func() time.Time

	status  lipgloss.Style
	running lipgloss.Style
	done    lipgloss.Style
	failed  lipgloss.Style
	warn    lipgloss.Style
	faint   lipgloss.Style
}

var _ publish.Reporter = (*Console)(nil)

// NewConsole creates a console writing to out. Running activity rows are
// redrawn at most once per refresh interval per activity.
func NewConsole(out io.Writer, refresh time.Duration) *Console {
	r := lipgloss.NewRenderer(out)
	return &Console{
		out:      out,
		throttle: newThrottle(refresh),
		now:      time.Now,
		status:   r.NewStyle().Bold(true),
		running:  r.NewStyle().Foreground(lipgloss.Color("6")),
		done:     r.NewStyle().Foreground(lipgloss.Color("2")),
		failed:   r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		warn:     r.NewStyle().Foreground(lipgloss.Color("3")),
		faint:    r.NewStyle().Faint(true),
	}
}

// IsTerminal reports whether f is attached to a terminal
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func (c *Console) Status(msg string) {
	c.println(c.status.Render(symbolStatus + " " + msg))
}

func (c *Console) Warn(msg string) {
	c.println(c.warn.Render(symbolWarn + " " + msg))
}

func (c *Console) Failure(msg string) {
	c.println(c.failed.Render(symbolFailed + " " + msg))
}

func (c *Console) Success(msg string) {
	c.println(c.done.Render(symbolDone + " " + msg))
}

// Activity prints an activity row. Terminal states are always printed;
// running updates are throttled and repeated texts are skipped.
func (c *Console) Activity(a publish.TrackedActivity) {
	if a.State == publish.StateRunning {
		if !c.throttle.allow(a.ID, a.StatusText) {
			return
		}
	} else {
		c.throttle.forget(a.ID)
	}

	var row string
	switch a.State {
	case publish.StateSucceeded:
		row = c.done.Render(symbolDone) + " " + a.StatusText + " " + c.faint.Render(formatElapsed(a.Elapsed(c.now())))
	case publish.StateFailed:
		row = c.failed.Render(symbolFailed) + " " + a.StatusText + " " + c.faint.Render(formatElapsed(a.Elapsed(c.now())))
	default:
		row = c.running.Render(symbolRunning) + " " + a.StatusText
	}
	c.println("  " + row)
}

func (c *Console) println(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.out, line)
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("(%.1fs)", d.Seconds())
}

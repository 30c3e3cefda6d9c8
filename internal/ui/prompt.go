package ui

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/HyphaGroup/pubctl/internal/publish"
)

// ErrNotInteractive is returned when a choice is needed but there is no
// terminal to ask on.
var ErrNotInteractive = errors.New("no terminal to prompt on; pass --publisher")

// Picker asks the operator to choose from a list
type Picker struct {
	in          io.Reader
	out         io.Writer
	interactive bool
}

var _ publish.Prompter = (*Picker)(nil)

// NewPicker creates a picker. When interactive is false every Select fails
// with ErrNotInteractive.
func NewPicker(in io.Reader, out io.Writer, interactive bool) *Picker {
	return &Picker{in: in, out: out, interactive: interactive}
}

// Select runs the list until the operator picks an option or leaves.
// Leaving returns context.Canceled.
func (p *Picker) Select(ctx context.Context, title string, options []string) (string, error) {
	if !p.interactive {
		return "", fmt.Errorf("%w (choices: %v)", ErrNotInteractive, options)
	}
	if len(options) == 0 {
		return "", fmt.Errorf("nothing to choose from")
	}

	program := tea.NewProgram(newPickerModel(title, options),
		tea.WithContext(ctx),
		tea.WithInput(p.in),
		tea.WithOutput(p.out),
	)
	final, err := program.Run()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("running prompt: %w", err)
	}

	m := final.(pickerModel)
	if m.choice == "" {
		return "", context.Canceled
	}
	return m.choice, nil
}

type option string

func (o option) Title() string       { return string(o) }
func (o option) Description() string { return "" }
func (o option) FilterValue() string { return string(o) }

type pickerModel struct {
	list   list.Model
	choice string
}

func newPickerModel(title string, options []string) pickerModel {
	items := make([]list.Item, 0, len(options))
	for _, o := range options {
		items = append(items, option(o))
	}

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = false
	delegate.SetSpacing(0)

	height := len(options) + 6
	if height > 18 {
		height = 18
	}
	l := list.New(items, delegate, 40, height)
	l.Title = title
	l.Styles.Title = lipgloss.NewStyle().Bold(true)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	return pickerModel{list: l}
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			if it, ok := m.list.SelectedItem().(option); ok {
				m.choice = string(it)
			}
			return m, tea.Quit
		case "esc", "q", "ctrl+c":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.list.SetWidth(msg.Width)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m pickerModel) View() string {
	if m.choice != "" {
		return ""
	}
	return m.list.View() + "\n"
}

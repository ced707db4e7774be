package main

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/ygunayer/vs2pdf/internal/scrape"
	"github.com/ztrue/tracerr"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			PaddingLeft(2).
			PaddingRight(2).
			MarginBottom(1)

	messageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A49FA5"))
)

// loginModel keeps the run paused while the operator logs in to the reader in
// the browser window.
type loginModel struct {
	message string
	done    bool
	aborted bool
}

func (m loginModel) Init() tea.Cmd {
	return nil
}

func (m loginModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "enter":
			m.done = true
			return m, tea.Quit
		case "ctrl+c", "q":
			m.aborted = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m loginModel) View() string {
	if m.done || m.aborted {
		return ""
	}

	s := titleStyle.Render("vs2pdf - Login Required") + "\n\n"
	s += messageStyle.Render(m.message) + "\n\n"
	s += "Log in to the reader in the browser window, then come back here.\n"
	s += "\n" + infoStyle.Render("Press Enter once you are logged in, q to abort")
	return s
}

type terminalLogin struct{}

func (terminalLogin) WaitForLogin(ctx context.Context, message string) error {
	p := tea.NewProgram(loginModel{message: message}, tea.WithContext(ctx))
	m, err := p.Run()
	if err != nil {
		if ctx.Err() != nil {
			return tracerr.Wrap(ctx.Err())
		}
		if errors.Is(err, tea.ErrProgramKilled) {
			return scrape.ErrLoginAborted
		}
		return tracerr.Wrap(fmt.Errorf("login prompt failed: %w", err))
	}

	if m.(loginModel).aborted {
		return scrape.ErrLoginAborted
	}
	return nil
}

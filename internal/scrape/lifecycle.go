package scrape

import (
	"context"
	"errors"
	"fmt"

	"github.com/ygunayer/vs2pdf/internal/console"
	"github.com/ygunayer/vs2pdf/internal/notify"
	"github.com/ztrue/tracerr"
)

// ErrLoginAborted is returned by a LoginGate when the operator gives up.
var ErrLoginAborted = errors.New("login aborted")

type State int

const (
	Stopped State = iota
	Active
	Paused
	Recreating
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Paused:
		return "paused"
	case Recreating:
		return "recreating"
	default:
		return "stopped"
	}
}

var transitions = map[State][]State{
	Stopped:    {Recreating},
	Active:     {Paused, Stopped},
	Paused:     {Active, Recreating, Stopped},
	Recreating: {Active, Stopped},
}

// Launcher starts a fresh browser.
type Launcher func(ctx context.Context) (Browser, error)

// LoginGate blocks until the operator has logged in to the reader in the
// browser window.
type LoginGate interface {
	WaitForLogin(ctx context.Context, message string) error
}

// Lifecycle brings the browser up and down around the session. A pause longer
// than RecycleThreshold closes the browser, and bringing it back up needs a new
// login.
type Lifecycle struct {
	Session  *Session
	Launch   Launcher
	Login    LoginGate
	Notifier notify.Notifier

	state State
}

func (l *Lifecycle) State() State {
	return l.state
}

func (l *Lifecycle) transition(to State) error {
	for _, allowed := range transitions[l.state] {
		if allowed == to {
			l.state = to
			return nil
		}
	}
	return tracerr.Errorf("invalid browser state transition %s -> %s", l.state, to)
}

// Start launches the browser and waits for the first login.
func (l *Lifecycle) Start(ctx context.Context) error {
	if err := l.transition(Recreating); err != nil {
		return err
	}
	return tracerr.Wrap(l.bringUp(ctx, "Please log in to continue"))
}

func (l *Lifecycle) bringUp(ctx context.Context, message string) error {
	b, err := l.Launch(ctx)
	if err != nil {
		return tracerr.Wrap(err)
	}
	l.Session.Browser = b

	if err := l.Session.OpenHome(ctx); err != nil {
		return tracerr.Wrap(err)
	}

	l.Notifier.Notify("Login Required", message)
	if err := l.Login.WaitForLogin(ctx, message); err != nil {
		return tracerr.Wrap(err)
	}

	return l.transition(Active)
}

// Pause sleeps between batches. A recycling pause closes the browser first and
// reopens the reader at resumePage once the operator has logged in again.
func (l *Lifecycle) Pause(ctx context.Context, p Pause, resumePage int) error {
	if err := l.transition(Paused); err != nil {
		return err
	}

	if !p.Recycle {
		console.Info("Batch complete, sleeping for %s", console.FormatDuration(p.Duration))
		if err := l.Session.Sleep(ctx, p.Duration); err != nil {
			return tracerr.Wrap(err)
		}
		return l.transition(Active)
	}

	console.Info("Pause of %s exceeds %s, closing browser", console.FormatDuration(p.Duration), console.FormatDuration(RecycleThreshold))
	if err := l.closeBrowser(); err != nil {
		console.Warn("Failed to close browser: %v", err)
	}
	l.Notifier.Notify("Browser Closed", fmt.Sprintf("Browser closed for %d minutes. Will reopen automatically.", int(p.Duration.Minutes())))

	if err := l.Session.Sleep(ctx, p.Duration); err != nil {
		return tracerr.Wrap(err)
	}

	if err := l.transition(Recreating); err != nil {
		return err
	}
	console.Info("Reopening browser...")
	if err := l.bringUp(ctx, "Browser reopened, login needed to continue"); err != nil {
		return tracerr.Wrap(err)
	}

	if _, err := l.Session.LoadPage(ctx, resumePage); err != nil {
		return tracerr.Wrap(err)
	}
	return nil
}

func (l *Lifecycle) closeBrowser() error {
	if l.Session.Browser == nil {
		return nil
	}
	err := l.Session.Browser.Close()
	l.Session.Browser = nil
	return tracerr.Wrap(err)
}

// Close shuts the browser down for good.
func (l *Lifecycle) Close() error {
	if l.state == Stopped {
		return nil
	}
	l.state = Stopped
	return l.closeBrowser()
}

// Package notify fires desktop notifications at the run's milestones.
// Delivery is best effort: failures are printed and never returned.
package notify

import (
	"fmt"
	"io"
	"os"

	"github.com/gen2brain/beeep"
)

const AppName = "vs2pdf"

type Notifier interface {
	Notify(title, message string)
}

// Desktop echoes every notification to the console and forwards it to the
// desktop notification service.
type Desktop struct {
	Out  io.Writer
	send func(title, message string) error
}

func NewDesktop() *Desktop {
	beeep.AppName = AppName
	return &Desktop{
		Out: os.Stdout,
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
	}
}

func (d *Desktop) Notify(title, message string) {
	fmt.Fprintf(d.Out, "\n[NOTIFICATION] %s: %s\n\n", title, message)

	if d.send == nil {
		return
	}
	if err := d.send(title, message); err != nil {
		fmt.Fprintf(d.Out, "Desktop notification error: %v\n", err)
	}
}

// Nop drops every notification.
type Nop struct{}

func (Nop) Notify(string, string) {}

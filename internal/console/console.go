// Package console prints the tagged status lines the tool narrates with.
package console

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

var (
	Output io.Writer = os.Stdout

	info    = color.New(color.FgCyan).SprintFunc()
	warning = color.New(color.FgYellow).SprintFunc()
	failure = color.New(color.FgRed).SprintFunc()
	success = color.New(color.FgGreen).SprintFunc()
)

func Info(format string, args ...interface{}) {
	fmt.Fprintf(Output, "%s %s\n", info("INFO:"), fmt.Sprintf(format, args...))
}

func Warn(format string, args ...interface{}) {
	fmt.Fprintf(Output, "%s %s\n", warning("WARN:"), fmt.Sprintf(format, args...))
}

func Error(format string, args ...interface{}) {
	fmt.Fprintf(Output, "%s %s\n", failure("ERROR:"), fmt.Sprintf(format, args...))
}

func Success(format string, args ...interface{}) {
	fmt.Fprintf(Output, "%s %s\n", success("SUCCESS:"), fmt.Sprintf(format, args...))
}

// NewBar builds the progress bar used by every long-running stage.
func NewBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(Output),
		progressbar.OptionSetDescription(description),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(50),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(Output)
		}),
	)
}

// FormatDuration formats a duration as HH:MM:SS, or MM:SS under an hour.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

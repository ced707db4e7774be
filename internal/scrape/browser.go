// Package scrape walks a book in the e-reader, collects the image URL of every
// page and downloads the full resolution images.
package scrape

import (
	"context"
	"time"

	"github.com/ygunayer/vs2pdf/internal/browser"
	"github.com/ztrue/tracerr"
)

// Browser is what a Session needs from the underlying browser. It is
// implemented by *browser.Chrome.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	CurrentUrl(ctx context.Context) (string, error)
	Evaluate(ctx context.Context, script string, res interface{}) error
	NextPage(ctx context.Context) error
	Requests() []browser.Request
	ClearRequests()
	ResponseBody(ctx context.Context, id string) ([]byte, error)
	Close() error
}

var _ Browser = (*browser.Chrome)(nil)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return tracerr.Wrap(ctx.Err())
	case <-timer.C:
		return nil
	}
}

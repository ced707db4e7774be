package scrape

import (
	"context"
	"time"

	"github.com/ygunayer/vs2pdf/internal/book"
	"github.com/ygunayer/vs2pdf/internal/console"
	"github.com/ygunayer/vs2pdf/internal/notify"
	"github.com/ztrue/tracerr"
)

type MetadataOptions struct {
	Passes     int
	RetryDelay time.Duration
}

func DefaultMetadataOptions() MetadataOptions {
	return MetadataOptions{Passes: 5, RetryDelay: 10 * time.Second}
}

// ScrapeMetadata picks the page list, the book info and the table of contents
// out of the responses the reader fetched while opening the book. Missing
// parts are retried by reloading pageId. Whatever was collected is returned
// even when some part never showed up.
func ScrapeMetadata(ctx context.Context, s *Session, pageId int, notifier notify.Notifier, opts MetadataOptions) (*book.Info, error) {
	info := &book.Info{}

	for pass := 0; pass < opts.Passes; pass++ {
		if err := collectMetadata(ctx, s, info); err != nil {
			return info, tracerr.Wrap(err)
		}
		if info.Complete() {
			return info, nil
		}

		console.Warn("Missing some book data, only got: %v", info.Keys())
		if pass == opts.Passes-1 {
			break
		}

		console.Info("Retrying metadata scrape in %s...", console.FormatDuration(opts.RetryDelay))
		notifier.Notify("Metadata Error", "Failed to get complete metadata, retrying")
		if _, err := s.LoadPage(ctx, pageId); err != nil {
			return info, tracerr.Wrap(err)
		}
		if err := s.Sleep(ctx, opts.RetryDelay); err != nil {
			return info, tracerr.Wrap(err)
		}
	}

	return info, nil
}

func collectMetadata(ctx context.Context, s *Session, info *book.Info) error {
	parts := []struct {
		name string
		url  string
		has  func() bool
		set  func([]byte) error
	}{
		{"pages", s.Book.PagesUrl(), info.HasPages, info.SetPages},
		{"book", s.Book.InfoUrl(), info.HasBook, info.SetBook},
		{"toc", s.Book.TocUrl(), info.HasToc, info.SetToc},
	}

	for _, part := range parts {
		if part.has() {
			continue
		}

		body, ok, err := s.WaitResponse(ctx, part.url)
		if err != nil {
			return tracerr.Wrap(err)
		}
		if !ok {
			continue
		}
		if err := part.set(body); err != nil {
			console.Warn("Failed to parse %s information: %v", part.name, err)
		}
	}
	return nil
}

package scrape

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ygunayer/vs2pdf/internal/book"
	"github.com/ygunayer/vs2pdf/internal/browser"
	"github.com/ztrue/tracerr"
)

// ErrNoImage is returned when the request log holds no page image request.
var ErrNoImage = errors.New("no page image request found")

// PageState is what the viewer reports about the page it is showing.
type PageState struct {
	Current string
	Total   int
}

// Session owns the browser tab the book is read in. It is the only thing that
// navigates the tab or touches its request log.
type Session struct {
	Browser Browser
	Book    book.Book
	Sleep   Sleeper
	Now     func() time.Time

	PollInterval time.Duration
	ScanPasses   int
	ScanInterval time.Duration
	TrafficPoll  time.Duration
	ResponseWait time.Duration
}

func NewSession(b Browser, bk book.Book) *Session {
	return &Session{
		Browser:      b,
		Book:         bk,
		Sleep:        Sleep,
		Now:          time.Now,
		PollInterval: time.Second,
		ScanPasses:   3,
		ScanInterval: time.Second,
		TrafficPoll:  500 * time.Millisecond,
		ResponseWait: 30 * time.Second,
	}
}

type pageStateResult struct {
	Total   string `json:"total"`
	Current string `json:"current"`
}

// the total pages element is required, reading it throws until the viewer is up
func (s *Session) pageStateScript() string {
	return fmt.Sprintf(`(() => {
	const total = document.getElementsByClassName(%q)[0].innerHTML;
	const current = document.getElementsByClassName(%q)[0];
	return {total: total, current: current && current.value ? String(current.value) : ""};
})()`, s.Book.Platform.TotalPages, s.Book.Platform.CurrentPage)
}

// PageState polls the viewer until it reports a page count. Script failures
// mean the viewer is still loading and are retried until ctx is done.
func (s *Session) PageState(ctx context.Context) (PageState, error) {
	script := s.pageStateScript()

	for {
		var res pageStateResult
		if err := s.Browser.Evaluate(ctx, script, &res); err == nil {
			if total, err := parseTotalPages(res.Total); err == nil {
				current := strings.TrimSpace(res.Current)
				if current == "" {
					current = "0"
				}
				return PageState{Current: current, Total: total}, nil
			}
		}

		if err := ctx.Err(); err != nil {
			return PageState{}, tracerr.Wrap(err)
		}
		if err := s.Sleep(ctx, s.PollInterval); err != nil {
			return PageState{}, tracerr.Wrap(err)
		}
	}
}

// parseTotalPages reads the page counter markup, e.g. "<span>12</span> / 480".
func parseTotalPages(html string) (int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0, tracerr.Wrap(err)
	}

	parts := strings.Split(doc.Text(), "/")
	total, err := strconv.Atoi(strings.TrimSpace(parts[len(parts)-1]))
	if err != nil {
		return 0, tracerr.Errorf("unexpected page counter %q", html)
	}
	return total, nil
}

// WaitForLoader blocks until the viewer's page loading indicator is gone.
func (s *Session) WaitForLoader(ctx context.Context) error {
	script := fmt.Sprintf(`document.getElementsByClassName(%q).length`, s.Book.Platform.PageLoader)

	for {
		var count int
		if err := s.Browser.Evaluate(ctx, script, &count); err == nil && count == 0 {
			return nil
		}
		if err := s.Sleep(ctx, s.PollInterval); err != nil {
			return tracerr.Wrap(err)
		}
	}
}

// LoadPage opens the reader at the given page id and waits for it to render.
func (s *Session) LoadPage(ctx context.Context, pageId int) (PageState, error) {
	if err := s.Browser.Navigate(ctx, s.Book.ReaderUrl(pageId)); err != nil {
		return PageState{}, tracerr.Wrap(err)
	}

	state, err := s.PageState(ctx)
	if err != nil {
		return PageState{}, tracerr.Wrap(err)
	}

	if err := s.WaitForLoader(ctx); err != nil {
		return PageState{}, tracerr.Wrap(err)
	}
	return state, nil
}

func (s *Session) OpenHome(ctx context.Context) error {
	return tracerr.Wrap(s.Browser.Navigate(ctx, s.Book.Platform.HomeUrl))
}

func (s *Session) isImage(r browser.Request) bool {
	return strings.HasPrefix(r.Url, s.Book.ImagePrefix())
}

func (s *Session) firstImage(finishedOnly bool) (browser.Request, bool) {
	for _, r := range s.Browser.Requests() {
		if !s.isImage(r) {
			continue
		}
		if finishedOnly && (!r.Finished || r.Failed) {
			continue
		}
		return r, true
	}
	return browser.Request{}, false
}

// scan looks for an image request up to ScanPasses times, pausing after every
// pass that finds nothing.
func (s *Session) scan(ctx context.Context, finishedOnly bool) (browser.Request, error) {
	passes := s.ScanPasses
	if passes < 1 {
		passes = 1
	}

	for pass := 0; pass < passes; pass++ {
		if r, ok := s.firstImage(finishedOnly); ok {
			return r, nil
		}
		if err := s.Sleep(ctx, s.ScanInterval); err != nil {
			return browser.Request{}, tracerr.Wrap(err)
		}
	}
	return browser.Request{}, ErrNoImage
}

// ResolveImageUrl returns the base URL of the page image the viewer requested,
// i.e. the image URL without its last path segment (the requested width).
func (s *Session) ResolveImageUrl(ctx context.Context) (string, error) {
	r, err := s.scan(ctx, false)
	if err != nil {
		return "", err
	}
	return BaseUrl(r.Url), nil
}

// ImageBody returns the body of the first finished page image response.
func (s *Session) ImageBody(ctx context.Context) ([]byte, error) {
	r, err := s.scan(ctx, true)
	if err != nil {
		return nil, err
	}

	body, err := s.Browser.ResponseBody(ctx, r.Id)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	if len(body) == 0 {
		return nil, ErrNoImage
	}
	return body, nil
}

// ImageRequestSince polls the request log for up to window, reporting whether
// a page image was requested after since.
func (s *Session) ImageRequestSince(ctx context.Context, since time.Time, window time.Duration) (bool, error) {
	deadline := s.Now().Add(window)

	for {
		for _, r := range s.Browser.Requests() {
			if s.isImage(r) && r.Time.After(since) {
				return true, nil
			}
		}

		if !s.Now().Before(deadline) {
			return false, nil
		}
		if err := s.Sleep(ctx, s.TrafficPoll); err != nil {
			return false, tracerr.Wrap(err)
		}
	}
}

// WaitResponse waits up to ResponseWait for the request with the given URL to
// finish and returns its body.
func (s *Session) WaitResponse(ctx context.Context, url string) ([]byte, bool, error) {
	deadline := s.Now().Add(s.ResponseWait)

	for {
		seen := false
		for _, r := range s.Browser.Requests() {
			if r.Url != url {
				continue
			}
			seen = true
			if r.Finished && !r.Failed {
				body, err := s.Browser.ResponseBody(ctx, r.Id)
				if err != nil || len(body) == 0 {
					return nil, false, nil
				}
				return body, true, nil
			}
		}

		if !seen || !s.Now().Before(deadline) {
			return nil, false, nil
		}
		if err := s.Sleep(ctx, s.PollInterval); err != nil {
			return nil, false, tracerr.Wrap(err)
		}
	}
}

// Advance clears the request log and turns the page.
func (s *Session) Advance(ctx context.Context) error {
	s.Browser.ClearRequests()
	return tracerr.Wrap(s.Browser.NextPage(ctx))
}

func (s *Session) CurrentUrl(ctx context.Context) (string, error) {
	u, err := s.Browser.CurrentUrl(ctx)
	return u, tracerr.Wrap(err)
}

// BaseUrl strips the last path segment of an image URL.
func BaseUrl(imageUrl string) string {
	if i := strings.LastIndex(imageUrl, "/"); i >= 0 {
		return imageUrl[:i]
	}
	return imageUrl
}

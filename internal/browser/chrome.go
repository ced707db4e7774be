// Package browser drives a visible Chrome through chromedp and keeps a log of
// every network request the page makes, so image and metadata responses can
// be picked out of it afterwards.
package browser

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/ztrue/tracerr"
)

const (
	navigateTimeout = 60 * time.Second
	commandTimeout  = 30 * time.Second

	maxResourceBuffer = 64 << 20
	maxTotalBuffer    = 512 << 20
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36 Edg/122.0.0.0",
}

type Options struct {
	ExecPath           string
	DisableWebSecurity bool
	Headless           bool
	UserAgent          string
}

// Request is one entry of the intercepted request log.
type Request struct {
	Id       string
	Url      string
	Time     time.Time
	Finished bool
	Failed   bool
}

type Chrome struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	requests []Request
	index    map[network.RequestID]int
}

// RandomUserAgent picks one of a handful of current desktop user agents.
func RandomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}

// Launch starts a new browser with request interception enabled.
func Launch(ctx context.Context, opts Options) (*Chrome, error) {
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = RandomUserAgent()
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("hide-scrollbars", false),
		chromedp.Flag("mute-audio", false),
		// the reader's HTTP/2 server is slow and sometimes sends truncated data
		chromedp.Flag("disable-http2", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-features", "TranslateUI,BlinkGenPropertyTrees"),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("password-store", "basic"),
		chromedp.Flag("use-mock-keychain", true),
		chromedp.Flag("start-maximized", true),
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(1920, 1080),
	)
	if opts.DisableWebSecurity {
		allocOpts = append(allocOpts, chromedp.Flag("disable-web-security", true))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(
		allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			// chromedp is very chatty about unhandled CDP events
		}),
	)

	c := &Chrome{
		ctx: browserCtx,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
		index: make(map[network.RequestID]int),
	}

	chromedp.ListenTarget(browserCtx, c.onEvent)

	err := chromedp.Run(browserCtx,
		network.Enable().
			WithMaxResourceBufferSize(maxResourceBuffer).
			WithMaxTotalBufferSize(maxTotalBuffer),
		network.SetCacheDisabled(true),
	)
	if err != nil {
		c.cancel()
		return nil, tracerr.Wrap(fmt.Errorf("failed to start browser: %w", err))
	}

	return c, nil
}

// onEvent runs on chromedp's event goroutine and must not block.
func (c *Chrome) onEvent(ev interface{}) {
	switch ev := ev.(type) {
	case *network.EventRequestWillBeSent:
		c.mu.Lock()
		c.index[ev.RequestID] = len(c.requests)
		c.requests = append(c.requests, Request{
			Id:   string(ev.RequestID),
			Url:  ev.Request.URL,
			Time: time.Now(),
		})
		c.mu.Unlock()
	case *network.EventLoadingFinished:
		c.mark(ev.RequestID, false)
	case *network.EventLoadingFailed:
		c.mark(ev.RequestID, true)
	}
}

func (c *Chrome) mark(id network.RequestID, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[id]
	if !ok || i >= len(c.requests) {
		return
	}
	c.requests[i].Finished = true
	c.requests[i].Failed = failed
}

// Requests returns a snapshot of the request log in the order requests were sent.
func (c *Chrome) Requests() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Request, len(c.requests))
	copy(out, c.requests)
	return out
}

func (c *Chrome) ClearRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests = nil
	c.index = make(map[network.RequestID]int)
}

// ResponseBody fetches the body of a finished request from the browser's buffer.
func (c *Chrome) ResponseBody(ctx context.Context, id string) ([]byte, error) {
	var body []byte
	err := c.run(ctx, commandTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		body, err = network.GetResponseBody(network.RequestID(id)).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return body, nil
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	return tracerr.Wrap(c.run(ctx, navigateTimeout, chromedp.Navigate(url)))
}

func (c *Chrome) CurrentUrl(ctx context.Context) (string, error) {
	var location string
	if err := c.run(ctx, commandTimeout, chromedp.Location(&location)); err != nil {
		return "", tracerr.Wrap(err)
	}
	return location, nil
}

func (c *Chrome) Evaluate(ctx context.Context, script string, res interface{}) error {
	return tracerr.Wrap(c.run(ctx, commandTimeout, chromedp.Evaluate(script, res)))
}

// NextPage sends a right arrow key press to the focused document.
func (c *Chrome) NextPage(ctx context.Context) error {
	return tracerr.Wrap(c.run(ctx, commandTimeout, chromedp.KeyEvent(kb.ArrowRight)))
}

func (c *Chrome) Close() error {
	if c.cancel == nil {
		return nil
	}
	err := chromedp.Cancel(c.ctx)
	c.cancel()
	c.cancel = nil
	return tracerr.Wrap(err)
}

// run executes actions on the browser tab, bounded by timeout and by the
// caller's context.
func (c *Chrome) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(c.ctx, timeout)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

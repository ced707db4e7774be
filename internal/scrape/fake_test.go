package scrape

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ygunayer/vs2pdf/internal/book"
	"github.com/ygunayer/vs2pdf/internal/browser"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	return ctx.Err()
}

// fakeReader mimics the e-reader: one image request per page shown, page
// turns with the right arrow until the last page.
type fakeReader struct {
	book   book.Book
	clock  *fakeClock
	labels []string
	total  int

	// page id -> number of visits that produce no image request
	missing map[int]int
	// number of image downloads served at half width
	smallDownloads int
	// metadata endpoints the reader never calls
	noMetadata map[string]bool

	page     int
	url      string
	nextId   int
	requests []browser.Request
	bodies   map[string][]byte

	navigations []string
	closed      bool
}

func newFakeReader(clock *fakeClock, labels []string, total int) *fakeReader {
	return &fakeReader{
		book:       book.New("9781234567897", false),
		clock:      clock,
		labels:     labels,
		total:      total,
		missing:    map[int]int{},
		noMetadata: map[string]bool{},
		bodies:     map[string][]byte{},
	}
}

func (f *fakeReader) emit(url string, body []byte) {
	f.nextId++
	id := strconv.Itoa(f.nextId)
	f.requests = append(f.requests, browser.Request{
		Id:       id,
		Url:      url,
		Time:     f.clock.Now().Add(time.Millisecond),
		Finished: true,
	})
	f.bodies[id] = body
}

func (f *fakeReader) show(page int) {
	f.page = page
	f.url = f.book.ReaderUrl(page)
	if f.missing[page] > 0 {
		f.missing[page]--
		return
	}
	f.emit(fmt.Sprintf("%sp%d/encrypted/800", f.book.ImagePrefix(), page), []byte("thumb"))
}

func (f *fakeReader) Navigate(ctx context.Context, url string) error {
	f.navigations = append(f.navigations, url)

	readerPrefix := f.book.Platform.HomeUrl + "/reader/books/" + f.book.Isbn + "/pageid/"
	switch {
	case strings.HasPrefix(url, readerPrefix):
		page, err := strconv.Atoi(strings.TrimPrefix(url, readerPrefix))
		if err != nil {
			return err
		}
		f.show(page)
		f.emitMetadata()
	case strings.HasPrefix(url, f.book.ImagePrefix()):
		width := 2000
		if f.smallDownloads > 0 {
			f.smallDownloads--
			width = 1000
		}
		f.url = url
		f.emit(url, encodeJpeg(width, 4))
	default:
		f.url = url
	}
	return nil
}

func (f *fakeReader) emitMetadata() {
	endpoints := map[string]string{
		f.book.PagesUrl(): `[{"cfi":"/0"}]`,
		f.book.InfoUrl():  `{"books":[{"title":"Fake Book","author":"A. Writer"}]}`,
		f.book.TocUrl():   `[{"title":"Ch1","cfi":"/3","level":1}]`,
	}
	for _, url := range []string{f.book.PagesUrl(), f.book.InfoUrl(), f.book.TocUrl()} {
		if !f.noMetadata[url] {
			f.emit(url, []byte(endpoints[url]))
		}
	}
}

func (f *fakeReader) CurrentUrl(ctx context.Context) (string, error) {
	return f.url, nil
}

func (f *fakeReader) Evaluate(ctx context.Context, script string, res interface{}) error {
	switch r := res.(type) {
	case *pageStateResult:
		r.Total = fmt.Sprintf(`<span class="x">%s</span> / %d`, f.labels[f.page], f.total)
		r.Current = f.labels[f.page]
	case *int:
		*r = 0
	default:
		return fmt.Errorf("unexpected result type %T", res)
	}
	return nil
}

func (f *fakeReader) NextPage(ctx context.Context) error {
	if f.page < len(f.labels)-1 {
		f.show(f.page + 1)
	}
	return nil
}

func (f *fakeReader) Requests() []browser.Request {
	return append([]browser.Request(nil), f.requests...)
}

func (f *fakeReader) ClearRequests() {
	f.requests = nil
}

func (f *fakeReader) ResponseBody(ctx context.Context, id string) ([]byte, error) {
	body, ok := f.bodies[id]
	if !ok {
		return nil, fmt.Errorf("no body for request %s", id)
	}
	return body, nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

func encodeJpeg(width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.Gray{Y: 200})
		}
	}
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, nil)
	return buf.Bytes()
}

func newTestSession(f *fakeReader) *Session {
	s := NewSession(f, f.book)
	s.Sleep = f.clock.Sleep
	s.Now = f.clock.Now
	return s
}

func noDelayPacer(batch int) *Pacer {
	return NewPacer(PacerConfig{MinBatch: batch, MaxBatch: batch}, rand.New(rand.NewSource(1)))
}

func instantPolicy(attempts uint) Policy {
	return Policy{Attempts: attempts}
}

type recordingNotifier struct {
	titles []string
}

func (n *recordingNotifier) Notify(title, message string) {
	n.titles = append(n.titles, title)
}

type countingGate struct {
	calls int
	err   error
}

func (g *countingGate) WaitForLogin(ctx context.Context, message string) error {
	g.calls++
	return g.err
}

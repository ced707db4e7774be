package scrape

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/ygunayer/vs2pdf/internal/book"
	"github.com/ygunayer/vs2pdf/internal/console"
	"github.com/ygunayer/vs2pdf/internal/pageindex"
	"github.com/ztrue/tracerr"
)

type Config struct {
	StartPage int
	// stop when this page id is reached, -1 for no limit
	EndPage int
	// overrides the page count reported by the viewer when > 0
	Pages int
}

// Result is everything the acquisition produced.
type Result struct {
	Records []book.PageRecord
	// number of pages labelled with something other than a plain number
	NonNumeric int
	// page ids whose image URL could not be found, even on the second pass
	Failed []int
	// labels whose image could not be downloaded
	DownloadFailed []string
}

// Acquirer walks the book page by page in the viewer, recording the image
// base URL of every page, then downloads the images.
type Acquirer struct {
	Session    *Session
	Lifecycle  *Lifecycle
	Pacer      *Pacer
	Detector   Detector
	URLPolicy  Policy
	Downloader *Downloader
	Config     Config
}

// Run expects the lifecycle to be started and the viewer to be showing
// Config.StartPage.
func (a *Acquirer) Run(ctx context.Context) (Result, error) {
	records := book.NewRecordSet()

	nonNumeric, failed, err := a.mainPass(ctx, records)
	if err != nil {
		return Result{}, tracerr.Wrap(err)
	}

	stillFailed, redoNonNumeric, err := a.redoPass(ctx, records, failed)
	if err != nil {
		return Result{}, tracerr.Wrap(err)
	}
	nonNumeric += redoNonNumeric

	if len(stillFailed) > 0 {
		console.Warn("Could not find images for %d page(s): %v", len(stillFailed), stillFailed)
	}

	console.Info("All pages scraped! Now downloading images...")
	ordered := records.Records()
	downloadFailed, err := a.Downloader.DownloadAll(ctx, ordered)
	if err != nil {
		return Result{}, tracerr.Wrap(err)
	}

	return Result{
		Records:        ordered,
		NonNumeric:     nonNumeric,
		Failed:         stillFailed,
		DownloadFailed: downloadFailed,
	}, nil
}

// resolve finds the image base URL of the page on screen. An empty URL with a
// nil error means the page has no image request after every attempt.
func (a *Acquirer) resolve(ctx context.Context, pageNum int) (string, error) {
	var baseUrl string
	err := a.URLPolicy.Do(ctx, func(uint) error {
		var err error
		baseUrl, err = a.Session.ResolveImageUrl(ctx)
		return err
	}, func(attempt uint, err error) {
		console.Warn("Could not find a matching image for page %d, retrying...", pageNum)
	})

	if errors.Is(err, ErrNoImage) {
		return "", nil
	}
	return baseUrl, tracerr.Wrap(err)
}

// record stores the page on screen under its viewer label, reporting whether
// it was a new non-numeric page.
func (a *Acquirer) record(ctx context.Context, records *book.RecordSet, baseUrl string) (bool, error) {
	state, err := a.Session.PageState(ctx)
	if err != nil {
		return false, tracerr.Wrap(err)
	}
	if !records.Add(state.Current, baseUrl) {
		return false, nil
	}
	return !pageindex.Normalize(state.Current).IsNumeric(), nil
}

func (a *Acquirer) pause(ctx context.Context, resumePage int) error {
	p, ok := a.Pacer.Advance()
	if !ok {
		return nil
	}
	return tracerr.Wrap(a.Lifecycle.Pause(ctx, p, resumePage))
}

func (a *Acquirer) mainPass(ctx context.Context, records *book.RecordSet) (int, []int, error) {
	cfg := a.Config
	pageNum := cfg.StartPage

	// the cover is shown right after the book opens, its image is already in the log
	if pageNum == 0 {
		baseUrl, err := a.Session.ResolveImageUrl(ctx)
		switch {
		case errors.Is(err, ErrNoImage):
			console.Warn("Failed to get a URL for cover page")
		case err != nil:
			return 0, nil, tracerr.Wrap(err)
		default:
			records.Add("0", baseUrl)
		}
	}

	state, err := a.Session.PageState(ctx)
	if err != nil {
		return 0, nil, tracerr.Wrap(err)
	}

	total := state.Total
	barTotal := total
	switch {
	case cfg.Pages > 0:
		total = cfg.Pages
		barTotal = total
	case cfg.StartPage > 0:
		// page ids past the start page can't be mapped to the page count
		console.Info("Start page given, ignoring the page count and reading until the book ends")
		total = math.MaxInt32 - 1
		barTotal = -1
	}
	console.Info("Total number of pages: %d", state.Total)

	bar := console.NewBar(barTotal, "Scraping pages")
	if barTotal > 0 {
		_ = bar.Set(pageNum)
	}
	defer bar.Close()

	nonNumeric := 0
	failed := map[int]bool{}

	for pageNum < total+1 {
		if err := a.Session.Sleep(ctx, a.Pacer.PageDelay()); err != nil {
			return 0, nil, tracerr.Wrap(err)
		}

		baseUrl, err := a.resolve(ctx, pageNum)
		if err != nil {
			return 0, nil, tracerr.Wrap(err)
		}

		if baseUrl == "" {
			console.Warn("Failed to get a URL for page %d, retrying later", pageNum)
			failed[pageNum] = true
		} else {
			isNew, err := a.record(ctx, records, baseUrl)
			if err != nil {
				return 0, nil, tracerr.Wrap(err)
			}
			// front matter pages don't count towards the viewer's page total
			if isNew {
				nonNumeric++
				total++
				if barTotal > 0 {
					barTotal++
					bar.ChangeMax(barTotal)
				}
			}
		}

		if pageNum == cfg.EndPage {
			console.Info("Exiting on page %d", pageNum)
			break
		}

		if pageNum > 0 {
			reason, err := a.Detector.Advance(ctx, a.Session, pageNum)
			if err != nil {
				return 0, nil, tracerr.Wrap(err)
			}
			if reason != NotEnded {
				console.Success("Book completed: %s", reason)
				break
			}
		} else if err := a.Session.Advance(ctx); err != nil {
			return 0, nil, tracerr.Wrap(err)
		}

		_ = bar.Add(1)
		pageNum++

		if err := a.pause(ctx, pageNum); err != nil {
			return 0, nil, tracerr.Wrap(err)
		}

		if pageNum == cfg.EndPage {
			console.Info("Exiting on page %d", pageNum)
			break
		}
	}

	ids := make([]int, 0, len(failed))
	for id := range failed {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return nonNumeric, ids, nil
}

// redoPass gives every failed page one more round of the URL policy. Pages
// that fail again are returned and not retried further.
func (a *Acquirer) redoPass(ctx context.Context, records *book.RecordSet, failed []int) ([]int, int, error) {
	if len(failed) == 0 {
		return nil, 0, nil
	}

	console.Info("Re-doing %d failed page(s)...", len(failed))
	bar := console.NewBar(len(failed), "Re-doing failed pages")
	defer bar.Close()

	a.Pacer.Reset()
	nonNumeric := 0
	var stillFailed []int

	for _, pageId := range failed {
		a.Session.Browser.ClearRequests()
		if _, err := a.Session.LoadPage(ctx, pageId); err != nil {
			return nil, 0, tracerr.Wrap(err)
		}
		if err := a.Session.Sleep(ctx, a.Pacer.PageDelay()); err != nil {
			return nil, 0, tracerr.Wrap(err)
		}

		baseUrl, err := a.resolve(ctx, pageId)
		if err != nil {
			return nil, 0, tracerr.Wrap(err)
		}

		if baseUrl == "" {
			console.Warn("Failed to get a URL for page %d, giving up", pageId)
			stillFailed = append(stillFailed, pageId)
		} else {
			isNew, err := a.record(ctx, records, baseUrl)
			if err != nil {
				return nil, 0, tracerr.Wrap(err)
			}
			if isNew {
				nonNumeric++
			}
		}
		_ = bar.Add(1)

		if err := a.pause(ctx, pageId); err != nil {
			return nil, 0, tracerr.Wrap(err)
		}
	}

	return stillFailed, nonNumeric, nil
}

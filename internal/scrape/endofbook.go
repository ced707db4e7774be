package scrape

import (
	"context"
	"strconv"
	"time"

	"github.com/ztrue/tracerr"
)

// Reason tells why the book was considered finished.
type Reason int

const (
	NotEnded Reason = iota
	NoNavigationEffect
	FinalPageReached
	NoImageTraffic
)

func (r Reason) String() string {
	switch r {
	case NoNavigationEffect:
		return "navigation had no effect"
	case FinalPageReached:
		return "reached the final page"
	case NoImageTraffic:
		return "no new images loaded after navigation"
	default:
		return "not ended"
	}
}

// Observation is everything the detector looks at around one page turn.
type Observation struct {
	PageNum      int
	UrlBefore    string
	UrlAfter     string
	PageBefore   string
	PageAfter    string
	TotalBefore  int
	ImageTraffic bool
}

// Detector decides whether a page turn ran past the end of the book. No single
// signal from the viewer is reliable, so three are checked in order.
type Detector struct {
	// no-image-traffic only counts past this page, early pages can load slowly
	MinPage int
	// how long to wait for the viewer to react to the key press
	Settle time.Duration
	// how long to watch for a page image request
	Window time.Duration
}

func NewDetector(minPage int) Detector {
	return Detector{MinPage: minPage, Settle: 3 * time.Second, Window: 5 * time.Second}
}

func (d Detector) Evaluate(o Observation) Reason {
	if o.UrlAfter == o.UrlBefore && o.PageAfter == o.PageBefore {
		return NoNavigationEffect
	}
	if o.PageBefore == strconv.Itoa(o.TotalBefore) {
		return FinalPageReached
	}
	if !o.ImageTraffic && o.PageNum > d.MinPage {
		return NoImageTraffic
	}
	return NotEnded
}

// Advance turns the page and reports whether that went past the end of the
// book. The image traffic window is only waited out when the cheaper signals
// are negative.
func (d Detector) Advance(ctx context.Context, s *Session, pageNum int) (Reason, error) {
	before, err := s.PageState(ctx)
	if err != nil {
		return NotEnded, tracerr.Wrap(err)
	}
	urlBefore, err := s.CurrentUrl(ctx)
	if err != nil {
		return NotEnded, tracerr.Wrap(err)
	}

	turnedAt := s.Now()
	if err := s.Advance(ctx); err != nil {
		return NotEnded, tracerr.Wrap(err)
	}
	if err := s.Sleep(ctx, d.Settle); err != nil {
		return NotEnded, tracerr.Wrap(err)
	}

	o := Observation{
		PageNum:      pageNum,
		UrlBefore:    urlBefore,
		PageBefore:   before.Current,
		TotalBefore:  before.Total,
		ImageTraffic: true,
	}

	if o.UrlAfter, err = s.CurrentUrl(ctx); err != nil {
		return NotEnded, tracerr.Wrap(err)
	}
	if o.UrlAfter == o.UrlBefore {
		after, err := s.PageState(ctx)
		if err != nil {
			return NotEnded, tracerr.Wrap(err)
		}
		o.PageAfter = after.Current
	}

	if reason := d.Evaluate(o); reason != NotEnded {
		return reason, nil
	}

	if o.ImageTraffic, err = s.ImageRequestSince(ctx, turnedAt, d.Window); err != nil {
		return NotEnded, tracerr.Wrap(err)
	}
	return d.Evaluate(o), nil
}

package browser

import (
	"testing"

	"github.com/chromedp/cdproto/network"
)

func newTestChrome() *Chrome {
	return &Chrome{index: make(map[network.RequestID]int)}
}

func sent(id, url string) *network.EventRequestWillBeSent {
	return &network.EventRequestWillBeSent{
		RequestID: network.RequestID(id),
		Request:   &network.Request{URL: url},
	}
}

func TestRequestLog(t *testing.T) {
	c := newTestChrome()

	c.onEvent(sent("1", "https://jigsaw.vitalsource.com/books/1/images/a/encrypted/800"))
	c.onEvent(sent("2", "https://jigsaw.vitalsource.com/books/1/toc"))
	c.onEvent(&network.EventLoadingFinished{RequestID: "1"})
	c.onEvent(&network.EventLoadingFailed{RequestID: "2"})
	// events for requests sent before the log was cleared are ignored
	c.onEvent(&network.EventLoadingFinished{RequestID: "unknown"})

	reqs := c.Requests()
	if len(reqs) != 2 {
		t.Fatalf("got %d requests, want 2", len(reqs))
	}
	if reqs[0].Id != "1" || !reqs[0].Finished || reqs[0].Failed {
		t.Errorf("first request = %+v", reqs[0])
	}
	if reqs[1].Url != "https://jigsaw.vitalsource.com/books/1/toc" || !reqs[1].Finished || !reqs[1].Failed {
		t.Errorf("second request = %+v", reqs[1])
	}

	// the snapshot is a copy
	reqs[0].Url = "changed"
	if c.Requests()[0].Url == "changed" {
		t.Error("Requests returned the live log")
	}

	c.ClearRequests()
	if n := len(c.Requests()); n != 0 {
		t.Errorf("%d requests after clearing", n)
	}

	c.onEvent(&network.EventLoadingFinished{RequestID: "1"})
	c.onEvent(sent("3", "https://example.com"))
	if reqs := c.Requests(); len(reqs) != 1 || reqs[0].Finished {
		t.Errorf("log after clearing = %+v", reqs)
	}
}

func TestRandomUserAgent(t *testing.T) {
	known := make(map[string]bool)
	for _, ua := range userAgents {
		known[ua] = true
	}
	for i := 0; i < 20; i++ {
		if ua := RandomUserAgent(); !known[ua] {
			t.Fatalf("unexpected user agent %q", ua)
		}
	}
}

func TestCloseWithoutLaunch(t *testing.T) {
	if err := newTestChrome().Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
}

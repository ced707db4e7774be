package scrape

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ygunayer/vs2pdf/internal/book"
)

func newTestAcquirer(t *testing.T, f *fakeReader, cfg Config) (*Acquirer, *countingGate) {
	t.Helper()

	s := newTestSession(f)
	pacer := noDelayPacer(1000)
	gate := &countingGate{}
	lifecycle := &Lifecycle{
		Session:  s,
		Launch:   func(context.Context) (Browser, error) { return f, nil },
		Login:    gate,
		Notifier: &recordingNotifier{},
	}

	ctx := context.Background()
	if err := lifecycle.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := s.LoadPage(ctx, cfg.StartPage); err != nil {
		t.Fatalf("load page: %v", err)
	}

	downloader := NewDownloader(s, pacer, t.TempDir(), 2000)
	downloader.Policy = instantPolicy(6)

	return &Acquirer{
		Session:    s,
		Lifecycle:  lifecycle,
		Pacer:      pacer,
		Detector:   NewDetector(5),
		URLPolicy:  instantPolicy(3),
		Downloader: downloader,
		Config:     cfg,
	}, gate
}

func labelsOf(res Result) []string {
	out := make([]string, len(res.Records))
	for i, r := range res.Records {
		out[i] = r.Label
	}
	return out
}

func TestAcquireWholeBook(t *testing.T) {
	clock := newFakeClock()
	f := newFakeReader(clock, []string{"", "i", "ii", "1", "2", "3", "4", "5"}, 5)

	a, gate := newTestAcquirer(t, f, Config{EndPage: -1})
	res, err := a.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if gate.calls != 1 {
		t.Errorf("expected one login, got %d", gate.calls)
	}

	want := []string{"i", "ii", "0", "1", "2", "3", "4", "5"}
	got := labelsOf(res)
	if len(got) != len(want) {
		t.Fatalf("got labels %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got labels %v, want %v", got, want)
		}
	}

	if res.NonNumeric != 2 {
		t.Errorf("NonNumeric = %d, want 2", res.NonNumeric)
	}
	if len(res.Failed) != 0 || len(res.DownloadFailed) != 0 {
		t.Errorf("unexpected failures: %v %v", res.Failed, res.DownloadFailed)
	}

	for _, label := range want {
		if _, err := os.Stat(filepath.Join(a.Downloader.Dir, label+".jpg")); err != nil {
			t.Errorf("missing image for %s: %v", label, err)
		}
	}
}

func TestAcquireRedoesFailedPages(t *testing.T) {
	clock := newFakeClock()
	f := newFakeReader(clock, []string{"", "1", "2", "3", "4", "5"}, 5)
	// page id 3 has no image the first time it is shown
	f.missing[3] = 1

	a, _ := newTestAcquirer(t, f, Config{EndPage: -1})
	res, err := a.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Failed) != 0 {
		t.Errorf("page should have been recovered by the redo pass, still failed: %v", res.Failed)
	}
	got := labelsOf(res)
	want := []string{"0", "1", "2", "3", "4", "5"}
	if len(got) != len(want) {
		t.Fatalf("got labels %v, want %v", got, want)
	}
}

func TestAcquireReportsPermanentFailures(t *testing.T) {
	clock := newFakeClock()
	f := newFakeReader(clock, []string{"", "1", "2", "3", "4", "5"}, 5)
	f.missing[2] = 100

	a, _ := newTestAcquirer(t, f, Config{EndPage: -1})
	res, err := a.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Failed) != 1 || res.Failed[0] != 2 {
		t.Errorf("Failed = %v, want [2]", res.Failed)
	}
	// pages after the failing one are still scraped
	got := labelsOf(res)
	want := []string{"0", "1", "3", "4", "5"}
	if len(got) != len(want) {
		t.Fatalf("got labels %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got labels %v, want %v", got, want)
		}
	}
}

func TestAcquireRecyclesBrowserBetweenBatches(t *testing.T) {
	clock := newFakeClock()
	f := newFakeReader(clock, []string{"", "1", "2", "3", "4", "5"}, 5)

	a, gate := newTestAcquirer(t, f, Config{EndPage: -1})
	a.Pacer = NewPacer(PacerConfig{
		MinBatch: 2,
		MaxBatch: 2,
		MinPause: 20 * time.Minute,
		MaxPause: 20 * time.Minute,
	}, rand.New(rand.NewSource(1)))
	a.Downloader.Pacer = a.Pacer

	res, err := a.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if gate.calls < 2 {
		t.Errorf("expected a new login after the pause, got %d logins", gate.calls)
	}
	if !f.closed {
		t.Error("browser was not closed for the pause")
	}
	if a.Lifecycle.State() != Active {
		t.Errorf("state = %s, want active", a.Lifecycle.State())
	}

	paused := false
	for _, d := range clock.sleeps {
		if d == 20*time.Minute {
			paused = true
		}
	}
	if !paused {
		t.Errorf("no batch pause taken, slept %v", clock.sleeps)
	}

	// the first batch is pages 0 and 1, the reader is reopened at page 2
	resumed := false
	for i, u := range f.navigations {
		if u == f.book.ReaderUrl(2) && i > 0 && f.navigations[i-1] == f.book.Platform.HomeUrl {
			resumed = true
		}
	}
	if !resumed {
		t.Errorf("page 2 not reloaded after logging in again, navigations: %v", f.navigations)
	}

	got := labelsOf(res)
	want := []string{"0", "1", "2", "3", "4", "5"}
	if len(got) != len(want) {
		t.Fatalf("got labels %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got labels %v, want %v", got, want)
		}
	}
}

func TestAcquireStopsAtEndPage(t *testing.T) {
	clock := newFakeClock()
	f := newFakeReader(clock, []string{"", "1", "2", "3", "4", "5"}, 5)

	a, _ := newTestAcquirer(t, f, Config{EndPage: 3})
	res, err := a.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	got := labelsOf(res)
	want := []string{"0", "1", "2"}
	if len(got) != len(want) {
		t.Fatalf("got labels %v, want %v", got, want)
	}
}

func TestDownloadRetriesSmallImages(t *testing.T) {
	clock := newFakeClock()
	f := newFakeReader(clock, []string{"", "1"}, 1)
	f.smallDownloads = 2

	s := newTestSession(f)
	d := NewDownloader(s, noDelayPacer(10), t.TempDir(), 2000)
	d.Policy = instantPolicy(6)

	baseUrl := f.book.ImagePrefix() + "p1/encrypted"
	failed, err := d.DownloadAll(context.Background(), []book.PageRecord{{Label: "1", BaseUrl: baseUrl}})
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 0 {
		t.Fatalf("unexpected failures: %v", failed)
	}

	recoveries := 0
	for _, u := range f.navigations {
		if u == d.RecoveryUrl {
			recoveries++
		}
	}
	if recoveries != 2 {
		t.Errorf("expected 2 recovery navigations, got %d", recoveries)
	}

	waited := time.Duration(0)
	for _, slept := range clock.sleeps {
		waited += slept
	}
	if waited < 4*8*time.Second {
		t.Errorf("recovery waits not applied, slept %s", waited)
	}
}

func TestDownloadGivesUpWithoutWritingFile(t *testing.T) {
	clock := newFakeClock()
	f := newFakeReader(clock, []string{"", "1"}, 1)
	f.smallDownloads = 100

	s := newTestSession(f)
	d := NewDownloader(s, noDelayPacer(10), t.TempDir(), 2000)
	d.Policy = instantPolicy(6)

	baseUrl := f.book.ImagePrefix() + "p1/encrypted"
	failed, err := d.DownloadAll(context.Background(), []book.PageRecord{{Label: "1", BaseUrl: baseUrl}})
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0] != "1" {
		t.Fatalf("failed = %v, want [1]", failed)
	}
	if _, err := os.Stat(d.Path("1")); !os.IsNotExist(err) {
		t.Errorf("no file should be written for a failed page, stat err = %v", err)
	}
}

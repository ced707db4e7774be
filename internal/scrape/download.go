package scrape

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/ygunayer/vs2pdf/internal/book"
	"github.com/ygunayer/vs2pdf/internal/console"
	"github.com/ztrue/tracerr"
	_ "golang.org/x/image/webp"
)

// ErrImageWidth is returned when the reader served a page image at a lower
// resolution than requested.
var ErrImageWidth = errors.New("image has unexpected width")

// Downloader fetches the full resolution image of every scraped page through
// the browser, so the reader's session cookies apply.
type Downloader struct {
	Session *Session
	Pacer   *Pacer
	Policy  Policy

	Dir   string
	Width int

	// the viewer sometimes gets stuck serving small images, a trip to an
	// unrelated page and back to the book fixes it
	RecoveryUrl  string
	RecoveryWait time.Duration
}

func NewDownloader(s *Session, pacer *Pacer, dir string, width int) *Downloader {
	return &Downloader{
		Session:      s,
		Pacer:        pacer,
		Policy:       DownloadPolicy(),
		Dir:          dir,
		Width:        width,
		RecoveryUrl:  "https://google.com",
		RecoveryWait: 8 * time.Second,
	}
}

func (d *Downloader) Path(label string) string {
	return filepath.Join(d.Dir, book.SanitizeFilename(label)+".jpg")
}

// hasImage reports whether a previous run already saved this page at full size.
func (d *Downloader) hasImage(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	return err == nil && cfg.Width == d.Width
}

// DownloadAll downloads every record and returns the labels that could not be
// downloaded.
func (d *Downloader) DownloadAll(ctx context.Context, records []book.PageRecord) ([]string, error) {
	if err := os.MkdirAll(d.Dir, os.ModePerm); err != nil {
		return nil, tracerr.Wrap(err)
	}

	bar := console.NewBar(len(records), "Downloading images")
	startTime := time.Now()

	var failed []string
	for _, rec := range records {
		if err := d.Download(ctx, rec); err != nil {
			if ctx.Err() != nil {
				return failed, tracerr.Wrap(err)
			}
			console.Error("Failed to download image: %s (%v)", rec.BaseUrl, err)
			failed = append(failed, rec.Label)
		}
		_ = bar.Add(1)
	}
	_ = bar.Close()

	console.Info("Downloaded %d of %d images in %s", len(records)-len(failed), len(records), console.FormatDuration(time.Since(startTime)))
	return failed, nil
}

// Download saves one page as a quality 100 JPEG. An image of the wrong width
// is never written.
func (d *Downloader) Download(ctx context.Context, rec book.PageRecord) error {
	path := d.Path(rec.Label)
	if d.hasImage(path) {
		return nil
	}

	imageUrl := fmt.Sprintf("%s/%d", strings.TrimRight(rec.BaseUrl, "/"), d.Width)

	return d.Policy.Do(ctx, func(attempt uint) error {
		d.Session.Browser.ClearRequests()
		if err := d.Session.Sleep(ctx, d.Pacer.PageDelay()/2); err != nil {
			return tracerr.Wrap(err)
		}
		if err := d.Session.Browser.Navigate(ctx, imageUrl); err != nil {
			return tracerr.Wrap(err)
		}
		if err := d.Session.Sleep(ctx, d.Pacer.PageDelay()/2); err != nil {
			return tracerr.Wrap(err)
		}

		body, err := d.Session.ImageBody(ctx)
		if err != nil {
			return err
		}

		img, err := imaging.Decode(bytes.NewReader(body))
		if err != nil {
			return tracerr.Wrap(err)
		}

		if width := img.Bounds().Dx(); width != d.Width {
			console.Warn("Image too small at %dpx wide, retrying: %s", width, rec.BaseUrl)
			if err := d.recover(ctx); err != nil {
				return tracerr.Wrap(err)
			}
			return tracerr.Wrap(fmt.Errorf("%w: got %d, want %d", ErrImageWidth, width, d.Width))
		}

		if err := imaging.Save(img, path, imaging.JPEGQuality(100)); err != nil {
			_ = os.Remove(path)
			return tracerr.Wrap(err)
		}
		return nil
	}, func(attempt uint, err error) {
		console.Warn("Download of page %s failed (attempt %d): %v", rec.Label, attempt+1, err)
	})
}

func (d *Downloader) recover(ctx context.Context) error {
	if err := d.Session.Browser.Navigate(ctx, d.RecoveryUrl); err != nil {
		return tracerr.Wrap(err)
	}
	if err := d.Session.Sleep(ctx, d.RecoveryWait); err != nil {
		return tracerr.Wrap(err)
	}
	if _, err := d.Session.LoadPage(ctx, 0); err != nil {
		return tracerr.Wrap(err)
	}
	return tracerr.Wrap(d.Session.Sleep(ctx, d.RecoveryWait))
}

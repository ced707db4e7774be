// Package gapfill puts blank pages in place of numbered pages the scrape
// skipped, so the page numbers of the PDF match the printed book.
package gapfill

import (
	"context"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/ygunayer/vs2pdf/internal/console"
	"github.com/ygunayer/vs2pdf/internal/pageindex"
	"github.com/ztrue/tracerr"
	"golang.org/x/sync/errgroup"
)

const (
	Width  = 2000
	Height = 2588
)

type Result struct {
	NonNumeric int
	// labels of the placeholder pages written
	Created []string
}

// Stems lists the page labels present in dir, one per .jpg file.
func Stems(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}

	var stems []string
	for _, entry := range entries {
		// pages are always written as <label>.jpg, other spellings are not pages
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jpg" {
			continue
		}
		stems = append(stems, strings.TrimSuffix(entry.Name(), ".jpg"))
	}
	return stems, nil
}

// Missing returns every absent page number below the highest one present.
// Page i is missing when some page j > i is present and i is not, so a run of
// several skipped pages is found in one pass.
func Missing(labels []pageindex.Label) []int {
	present := make(map[int]bool)
	highest := -1
	for _, l := range labels {
		if l.Kind != pageindex.Integer {
			continue
		}
		present[l.Value] = true
		if l.Value > highest {
			highest = l.Value
		}
	}

	var missing []int
	for i := 0; i < highest; i++ {
		if !present[i] {
			missing = append(missing, i)
		}
	}
	return missing
}

// Fill writes a white width x height placeholder for every missing page in
// dir. Running it again on the filled directory writes nothing.
func Fill(ctx context.Context, dir string, width, height int) (Result, error) {
	stems, err := Stems(dir)
	if err != nil {
		return Result{}, tracerr.Wrap(err)
	}

	labels := make([]pageindex.Label, len(stems))
	for i, s := range stems {
		labels[i] = pageindex.Normalize(s)
	}

	res := Result{NonNumeric: pageindex.CountNonNumeric(labels)}
	missing := Missing(labels)
	if len(missing) == 0 {
		return res, nil
	}

	console.Info("Adding %d blank page(s) for pages missing from the book", len(missing))
	blank := imaging.New(width, height, color.White)
	bar := console.NewBar(len(missing), "Adding blank pages")

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.NumCPU())

	for _, page := range missing {
		page := page
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return tracerr.Wrap(err)
			}
			path := filepath.Join(dir, fmt.Sprintf("%d.jpg", page))
			if err := imaging.Save(blank, path, imaging.JPEGQuality(100)); err != nil {
				return tracerr.Wrap(err)
			}
			return tracerr.Wrap(bar.Add(1))
		})
	}

	if err := eg.Wait(); err != nil {
		return res, tracerr.Wrap(err)
	}
	_ = bar.Close()

	for _, page := range missing {
		res.Created = append(res.Created, strconv.Itoa(page))
	}
	return res, nil
}

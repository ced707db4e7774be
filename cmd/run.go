package main

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/ygunayer/vs2pdf/internal/assemble"
	"github.com/ygunayer/vs2pdf/internal/book"
	"github.com/ygunayer/vs2pdf/internal/browser"
	"github.com/ygunayer/vs2pdf/internal/console"
	"github.com/ygunayer/vs2pdf/internal/gapfill"
	"github.com/ygunayer/vs2pdf/internal/notify"
	"github.com/ygunayer/vs2pdf/internal/postprocess"
	"github.com/ygunayer/vs2pdf/internal/scrape"
	"github.com/ztrue/tracerr"
)

// pipeline takes one book from the reader to the finished PDF.
type pipeline struct {
	args     *Args
	notifier notify.Notifier
	login    scrape.LoginGate
	runner   postprocess.Runner
	// launch is nil when no browser should be started
	launch func(ctx context.Context) (scrape.Browser, error)
	// scrapeBook replaces the browser scrape when set
	scrapeBook func(ctx context.Context, bp *bookPaths) (*book.Info, error)
}

func newPipeline(args *Args, notifier notify.Notifier) *pipeline {
	opts := browser.Options{
		ExecPath:           args.ChromeExe,
		DisableWebSecurity: args.DisableWebSecurity,
	}

	return &pipeline{
		args:     args,
		notifier: notifier,
		login:    terminalLogin{},
		runner:   postprocess.ExecRunner{},
		launch: func(ctx context.Context) (scrape.Browser, error) {
			c, err := browser.Launch(ctx, opts)
			if err != nil {
				return nil, tracerr.Wrap(err)
			}
			return c, nil
		},
	}
}

type bookPaths struct {
	isbn      string
	outputDir string
	imageDir  string
	infoPath  string
}

func (p *pipeline) paths(isbnOrUrl string) (*bookPaths, error) {
	isbn, err := book.ParseIsbn(isbnOrUrl)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}

	outputDir, err := filepath.Abs(p.args.Output)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}

	return &bookPaths{
		isbn:      isbn,
		outputDir: outputDir,
		imageDir:  filepath.Join(outputDir, isbn),
		infoPath:  book.InfoPath(outputDir, isbn),
	}, nil
}

// Run scrapes the book unless told not to, fills in the pages the reader
// skipped and builds the PDF out of whatever is on disk.
func (p *pipeline) Run(ctx context.Context, isbnOrUrl string) error {
	start := time.Now()

	bp, err := p.paths(isbnOrUrl)
	if err != nil {
		return tracerr.Wrap(err)
	}
	if err := os.MkdirAll(bp.imageDir, os.ModePerm); err != nil {
		return tracerr.Wrap(err)
	}

	info, err := book.LoadInfo(bp.infoPath)
	if err != nil {
		return tracerr.Wrap(err)
	}

	if !p.args.SkipScrape || p.args.OnlyScrapeMetadata {
		scrapeBook := p.scrapeBook
		if scrapeBook == nil {
			scrapeBook = p.scrape
		}
		scraped, err := scrapeBook(ctx, bp)
		if err != nil {
			return tracerr.Wrap(err)
		}
		info = scraped
	} else {
		console.Info("Page scrape skipped...")
	}

	console.Info("Checking for blank pages...")
	filled, err := gapfill.Fill(ctx, bp.imageDir, gapfill.Width, gapfill.Height)
	if err != nil {
		return tracerr.Wrap(err)
	}

	if p.args.SkipPdf {
		console.Info("Skipping PDF building as requested.")
		p.notifier.Notify("Process Complete", "Skipping PDF building as requested.")
		return nil
	}

	// pages that failed to download or came from an earlier run change the
	// front matter, so the labels follow the files on disk
	if err := p.build(ctx, bp, info, filled.NonNumeric); err != nil {
		return tracerr.Wrap(err)
	}

	console.Success("Finished in %s", console.FormatDuration(time.Since(start)))
	return nil
}

// scrape reads the metadata and, unless only the metadata is wanted, every
// page of the book. The metadata is saved as soon as it is known so later runs
// with --skip-scrape can use it.
func (p *pipeline) scrape(ctx context.Context, bp *bookPaths) (*book.Info, error) {
	if p.launch == nil {
		return nil, tracerr.Errorf("no browser available to scrape %s", bp.isbn)
	}

	bk := book.New(bp.isbn, p.args.Yuzu)
	session := scrape.NewSession(nil, bk)
	lifecycle := &scrape.Lifecycle{
		Session:  session,
		Launch:   p.launch,
		Login:    p.login,
		Notifier: p.notifier,
	}
	defer func() {
		if err := lifecycle.Close(); err != nil {
			console.Warn("Could not close the browser: %v", err)
		}
	}()

	if err := lifecycle.Start(ctx); err != nil {
		return nil, tracerr.Wrap(err)
	}

	console.Info("Loading page %d...", p.args.StartPage)
	if _, err := session.LoadPage(ctx, p.args.StartPage); err != nil {
		return nil, tracerr.Wrap(err)
	}

	console.Info("Scraping metadata...")
	info, err := scrape.ScrapeMetadata(ctx, session, p.args.StartPage, p.notifier, scrape.DefaultMetadataOptions())
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	if err := info.Save(bp.infoPath); err != nil {
		return nil, tracerr.Wrap(err)
	}

	if p.args.OnlyScrapeMetadata {
		return info, nil
	}

	pacer := scrape.NewPacer(scrape.PacerConfig{
		MinDelay: time.Duration(p.args.MinDelay) * time.Second,
		MaxDelay: time.Duration(p.args.MaxDelay) * time.Second,
		MinBatch: p.args.MinBatchSize,
		MaxBatch: p.args.MaxBatchSize,
		MinPause: time.Duration(p.args.MinBatchDelay) * time.Minute,
		MaxPause: time.Duration(p.args.MaxBatchDelay) * time.Minute,
	}, rand.New(rand.NewSource(time.Now().UnixNano())))

	acquirer := &scrape.Acquirer{
		Session:    session,
		Lifecycle:  lifecycle,
		Pacer:      pacer,
		Detector:   scrape.NewDetector(p.args.EndDetectMinPage),
		URLPolicy:  scrape.URLPolicy(),
		Downloader: scrape.NewDownloader(session, pacer, bp.imageDir, p.args.ImageWidth),
		Config: scrape.Config{
			StartPage: p.args.StartPage,
			EndPage:   p.args.EndPage,
			Pages:     p.args.Pages,
		},
	}

	res, err := acquirer.Run(ctx)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}

	console.Info("Scraped %d pages, %d of them front matter", len(res.Records), res.NonNumeric)
	if len(res.DownloadFailed) > 0 {
		console.Warn("Failed to download %d page(s): %v", len(res.DownloadFailed), res.DownloadFailed)
	}
	return info, nil
}

func (p *pipeline) build(ctx context.Context, bp *bookPaths, info *book.Info, nonNumeric int) error {
	console.Info("Building PDF...")
	files, err := assemble.OrderedFiles(bp.imageDir)
	if err != nil {
		return tracerr.Wrap(err)
	}

	raw := assemble.RawPath(bp.outputDir, bp.isbn)
	if err := assemble.BuildRaw(files, raw); err != nil {
		return tracerr.Wrap(err)
	}

	title := info.Title(bp.isbn)
	author := info.Author()
	if info.HasMeta() {
		p.notifier.Notify("Process Complete", "Successfully processed '"+title+"' by "+author)
	} else {
		p.notifier.Notify("Process Complete", "Book "+bp.isbn+" processed, but with limited metadata")
	}

	source := raw
	if !p.args.SkipOcr {
		console.Info("Running OCR...")
		ocrOut := filepath.Join(bp.outputDir, bp.isbn+" OCR.pdf")
		ocr := postprocess.NewOCR(p.runner, p.args.Language)
		if err := ocr.Run(ctx, raw, ocrOut, title); err != nil {
			console.Warn("OCR failed, continuing without it: %v", err)
		} else {
			source = ocrOut
			defer os.Remove(ocrOut)
		}
	} else {
		console.Info("Skipping OCR...")
	}

	var outline []*assemble.Node
	if info.HasToc() {
		outline, err = assemble.BuildOutline(info.Toc)
		if err != nil {
			return tracerr.Wrap(err)
		}
	}

	out := assemble.OutputPath(bp.outputDir, title)
	err = assemble.Finish(source, out, assemble.Meta{
		Title:      title,
		Author:     author,
		Isbn:       bp.isbn,
		Outline:    outline,
		NonNumeric: nonNumeric,
	})
	if err != nil {
		return tracerr.Wrap(err)
	}
	console.Success("Saved %s", out)

	if p.args.Compress {
		console.Info("Applying lossless compression...")
		c := postprocess.NewCompressor(p.runner)
		workDir := filepath.Join(bp.outputDir, postprocess.WorkDirName)
		if _, err := c.Compress(ctx, out, postprocess.CompressedPath(bp.outputDir, title), workDir); err != nil {
			console.Warn("Compression failed, keeping the original file: %v", err)
		}
	}
	return nil
}

// finished reports whether an earlier run already produced the PDF.
func (p *pipeline) finished(isbnOrUrl string) bool {
	bp, err := p.paths(isbnOrUrl)
	if err != nil {
		return false
	}
	info, err := book.LoadInfo(bp.infoPath)
	if err != nil {
		return false
	}
	_, err = os.Stat(assemble.OutputPath(bp.outputDir, info.Title(bp.isbn)))
	return err == nil
}

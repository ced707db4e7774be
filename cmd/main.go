package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	arg "github.com/alexflint/go-arg"
	"github.com/ygunayer/vs2pdf/internal/notify"
	"github.com/ztrue/tracerr"
)

type Args struct {
	Isbn   string `arg:"--isbn,env:VS2PDF_ISBN" help:"ISBN of the book, or the URL of the book in the reader"`
	Batch  string `arg:"--batch,env:VS2PDF_BATCH" help:"(Optional) Folder of .txt files, each holding an ISBN or reader URL on its first line. Books are processed one after the other"`
	Output string `arg:"-o,--output,env:VS2PDF_OUTPUT" help:"(Optional) Output folder" default:"./output/"`
	Yuzu   bool   `arg:"--yuzu,env:VS2PDF_YUZU" help:"(Optional) Read from Yuzu instead of VitalSource"`

	MinBatchSize  int `arg:"--min-batch-size,env:VS2PDF_MIN_BATCH_SIZE" help:"Minimum number of pages read between two breaks" default:"30"`
	MaxBatchSize  int `arg:"--max-batch-size,env:VS2PDF_MAX_BATCH_SIZE" help:"Maximum number of pages read between two breaks" default:"60"`
	MinBatchDelay int `arg:"--min-batch-delay,env:VS2PDF_MIN_BATCH_DELAY" help:"Minimum break between batches, in minutes" default:"5"`
	MaxBatchDelay int `arg:"--max-batch-delay,env:VS2PDF_MAX_BATCH_DELAY" help:"Maximum break between batches, in minutes" default:"12"`
	MinDelay      int `arg:"--min-delay,env:VS2PDF_MIN_DELAY" help:"Minimum wait for a page to load, in seconds" default:"3"`
	MaxDelay      int `arg:"--max-delay,env:VS2PDF_MAX_DELAY" help:"Maximum wait for a page to load, in seconds" default:"8"`

	Pages            int `arg:"--pages,env:VS2PDF_PAGES" help:"(Optional) Override how many pages to save"`
	StartPage        int `arg:"--start-page,env:VS2PDF_START_PAGE" help:"Start on this page. Pages start at zero and include any non-numbered pages" default:"0"`
	EndPage          int `arg:"--end-page,env:VS2PDF_END_PAGE" help:"End on this page, -1 to read to the end of the book" default:"-1"`
	EndDetectMinPage int `arg:"--end-detect-min-page,env:VS2PDF_END_DETECT_MIN_PAGE" help:"Only treat a page without image traffic as the end of the book past this page" default:"5"`
	ImageWidth       int `arg:"--image-width,env:VS2PDF_IMAGE_WIDTH" help:"Width of a full resolution page image" default:"2000"`

	ChromeExe          string `arg:"--chrome-exe,env:VS2PDF_CHROME_EXE" help:"(Optional) Path to the Chrome executable. Leave blank to auto-detect"`
	DisableWebSecurity bool   `arg:"--disable-web-security,env:VS2PDF_DISABLE_WEB_SECURITY" help:"(Optional) Disable CORS protections if pages are not loading"`

	Language           string `arg:"--language,env:VS2PDF_LANGUAGE" help:"OCR language" default:"eng"`
	SkipScrape         bool   `arg:"--skip-scrape" help:"Don't scrape anything, just rebuild the PDF from existing files"`
	OnlyScrapeMetadata bool   `arg:"--only-scrape-metadata" help:"Like --skip-scrape, but scrape the metadata first"`
	SkipOcr            bool   `arg:"--skip-ocr,env:VS2PDF_SKIP_OCR" help:"Don't run OCR"`
	SkipPdf            bool   `arg:"--skip-pdf" help:"Just download the page images, don't build the PDF"`
	Compress           bool   `arg:"--compress,env:VS2PDF_COMPRESS" help:"Run lossless compression on the finished PDF"`

	Force    bool `arg:"-f,--force" help:"(Optional) In batch mode, process books whose PDF already exists"`
	NoNotify bool `arg:"--no-notify,env:VS2PDF_NO_NOTIFY" help:"(Optional) Don't send desktop notifications"`
	Verbose  bool `arg:"-v,--verbose" help:"(Optional) Print stack traces of errors"`
}

func (Args) Description() string {
	return "vs2pdf saves a book you have access to on VitalSource or Yuzu as a PDF.\n"
}

func (a *Args) Validate() error {
	if a.Isbn == "" && a.Batch == "" {
		return tracerr.Errorf("either --isbn or --batch is required")
	}
	if a.Isbn != "" && a.Batch != "" {
		return tracerr.Errorf("--isbn and --batch can't be used together")
	}

	ranges := []struct {
		name     string
		min, max int
	}{
		{"batch size", a.MinBatchSize, a.MaxBatchSize},
		{"batch delay", a.MinBatchDelay, a.MaxBatchDelay},
		{"delay", a.MinDelay, a.MaxDelay},
	}
	for _, r := range ranges {
		if r.min < 0 {
			return tracerr.Errorf("minimum %s can't be negative", r.name)
		}
		if r.min > r.max {
			return tracerr.Errorf("minimum %s (%d) is larger than the maximum (%d)", r.name, r.min, r.max)
		}
	}
	if a.MinBatchSize < 1 {
		return tracerr.Errorf("minimum batch size must be at least 1")
	}

	if a.StartPage < 0 {
		return tracerr.Errorf("start page can't be negative")
	}
	if a.EndPage >= 0 && a.EndPage < a.StartPage {
		return tracerr.Errorf("end page %d is before the start page %d", a.EndPage, a.StartPage)
	}
	if a.Pages < 0 {
		return tracerr.Errorf("page count can't be negative")
	}
	if a.ImageWidth <= 0 {
		return tracerr.Errorf("image width must be positive")
	}
	return nil
}

func mainWithErrors(args *Args) error {
	argP := arg.MustParse(args)

	if err := args.Validate(); err != nil {
		argP.WriteHelp(os.Stderr)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var notifier notify.Notifier = notify.NewDesktop()
	if args.NoNotify {
		notifier = notify.Nop{}
	}

	p := newPipeline(args, notifier)
	if args.Batch != "" {
		return runBatch(ctx, p, args.Batch)
	}
	return p.Run(ctx, args.Isbn)
}

func main() {
	var args Args
	if err := mainWithErrors(&args); err != nil {
		if args.Verbose {
			tracerr.PrintSourceColor(err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

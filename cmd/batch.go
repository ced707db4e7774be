package main

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ygunayer/vs2pdf/internal/book"
	"github.com/ygunayer/vs2pdf/internal/console"
	"github.com/ztrue/tracerr"
)

type batchEntry struct {
	file string
	isbn string
}

// readBatch returns the ISBN on the first line of every .txt file in dir,
// along with the files that could not be used.
func readBatch(dir string) ([]batchEntry, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, tracerr.Wrap(err)
	}

	var books []batchEntry
	var invalid []string
	seen := make(map[string]bool)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}

		line, err := firstLine(filepath.Join(dir, entry.Name()))
		if err != nil {
			console.Error("Cannot read %s: %v", entry.Name(), err)
			invalid = append(invalid, entry.Name())
			continue
		}

		isbn, err := book.ParseIsbn(line)
		if err != nil {
			console.Error("No ISBN in %s: %v", entry.Name(), err)
			invalid = append(invalid, entry.Name())
			continue
		}

		if seen[isbn] {
			console.Warn("Skipping %s, ISBN %s is already in the batch", entry.Name(), isbn)
			continue
		}
		seen[isbn] = true
		books = append(books, batchEntry{file: entry.Name(), isbn: isbn})
	}

	return books, invalid, nil
}

func firstLine(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", tracerr.Wrap(err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", tracerr.Wrap(err)
		}
		return "", tracerr.Errorf("file is empty")
	}
	return strings.TrimSpace(scanner.Text()), nil
}

type batchStats struct {
	successful int
	skipped    int
	failed     int
}

// runBatch processes the books listed in dir one after another. A failing
// book is reported and the batch moves on to the next one.
func runBatch(ctx context.Context, p *pipeline, dir string) error {
	books, invalid, err := readBatch(dir)
	if err != nil {
		return tracerr.Wrap(err)
	}
	if len(books) == 0 {
		return tracerr.Errorf("no book files found in %s", dir)
	}

	stats := batchStats{failed: len(invalid)}
	console.Info("Found %d books to process", len(books))

	startTime := time.Now()
	for i, b := range books {
		if err := ctx.Err(); err != nil {
			return tracerr.Wrap(err)
		}

		if i > 0 {
			perBook := time.Since(startTime) / time.Duration(i)
			console.Info("ETA: %s remaining for the batch (avg: %s per book)",
				console.FormatDuration(perBook*time.Duration(len(books)-i)), console.FormatDuration(perBook))
		}

		if !p.args.Force && p.finished(b.isbn) {
			console.Warn("[%d/%d] Skipping %s (PDF already exists)", i+1, len(books), b.file)
			stats.skipped++
			continue
		}

		console.Info("[%d/%d] Processing %s (ISBN %s)", i+1, len(books), b.file, b.isbn)
		bookStart := time.Now()
		if err := p.Run(ctx, b.isbn); err != nil {
			console.Error("Failed to process %s: %v", b.file, err)
			stats.failed++
			continue
		}
		stats.successful++
		console.Success("Completed %s in %s", b.file, console.FormatDuration(time.Since(bookStart)))
	}

	console.Success("Batch completed in %s", console.FormatDuration(time.Since(startTime)))
	console.Info("Total files: %d", len(books)+len(invalid))
	console.Info("Successful: %d", stats.successful)
	console.Info("Skipped: %d", stats.skipped)
	console.Info("Failed: %d", stats.failed)

	if stats.failed > 0 {
		return tracerr.Errorf("%d book(s) failed", stats.failed)
	}
	return nil
}

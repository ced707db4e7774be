package postprocess

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	pdfcpu_api "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ygunayer/vs2pdf/internal/book"
	"github.com/ygunayer/vs2pdf/internal/console"
	"github.com/ztrue/tracerr"
	"golang.org/x/sync/errgroup"
)

const WorkDirName = "compression_temp"

// CompressedPath is where a smaller copy of the book is written.
func CompressedPath(outputDir, title string) string {
	return filepath.Join(outputDir, book.SanitizeFilename(title)+" compressed.pdf")
}

type Compressor struct {
	Runner Runner
	// Optimize rewrites in to out with optimized content streams.
	Optimize func(in, out string) error
	Jobs     int
}

func NewCompressor(r Runner) *Compressor {
	return &Compressor{
		Runner:   r,
		Optimize: optimizeWithPdfcpu,
		Jobs:     runtime.NumCPU(),
	}
}

func optimizeWithPdfcpu(in, out string) error {
	conf := model.NewDefaultConfiguration()
	return tracerr.Wrap(pdfcpu_api.OptimizeFile(in, out, conf))
}

type CompressResult struct {
	OriginalSize int64
	BestSize     int64
	// BestStage is empty when no stage made the file smaller
	BestStage string
}

func (r CompressResult) Reduction() float64 {
	if r.OriginalSize == 0 {
		return 0
	}
	return (1 - float64(r.BestSize)/float64(r.OriginalSize)) * 100
}

type candidate struct {
	path string
	size int64
}

// Compress runs the lossless stages over input, each one starting from the
// smallest file so far, and copies the smallest result to output. If no
// stage helps, a stale output from an earlier run is removed. A failing stage
// is reported and skipped. workDir is removed before returning.
func (c *Compressor) Compress(ctx context.Context, input, output, workDir string) (*CompressResult, error) {
	stat, err := os.Stat(input)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, tracerr.Wrap(err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			console.Warn("Could not remove %s: %v", workDir, err)
		}
	}()

	original := candidate{path: input, size: stat.Size()}
	best := original
	console.Info("Starting size: %s", megabytes(best.size))

	stages := []struct {
		name string
		out  string
		run  func(ctx context.Context, in, out string) error
	}{
		{"Image optimization", filepath.Join(workDir, "stage1.pdf"), func(ctx context.Context, in, out string) error {
			return c.optimizeImages(ctx, in, out, filepath.Join(workDir, "extracted_images"))
		}},
		{"Content stream optimization", filepath.Join(workDir, "stage2.pdf"), func(_ context.Context, in, out string) error {
			return c.Optimize(in, out)
		}},
		{"Structure optimization", filepath.Join(workDir, "stage3.pdf"), c.recompress},
	}

	result := &CompressResult{OriginalSize: original.size}

	for i, stage := range stages {
		if err := ctx.Err(); err != nil {
			return nil, tracerr.Wrap(err)
		}

		console.Info("Stage %d: %s...", i+1, stage.name)
		if err := stage.run(ctx, best.path, stage.out); err != nil {
			console.Warn("%s failed: %v", stage.name, err)
			continue
		}

		stat, err := os.Stat(stage.out)
		if err != nil {
			continue
		}
		if stat.Size() < best.size {
			console.Info("%s reduced size to %s (%s saved)", stage.name, megabytes(stat.Size()), megabytes(best.size-stat.Size()))
			best = candidate{path: stage.out, size: stat.Size()}
			result.BestStage = stage.name
		} else {
			console.Info("%s didn't reduce the size", stage.name)
		}
	}

	result.BestSize = best.size

	if best.path == original.path {
		console.Info("No size reduction achieved, keeping the original file")
		if err := os.Remove(output); err != nil && !os.IsNotExist(err) {
			return nil, tracerr.Wrap(err)
		}
		return result, nil
	}

	if err := copyFile(best.path, output); err != nil {
		return nil, tracerr.Wrap(err)
	}

	console.Info("Original size:   %s", megabytes(result.OriginalSize))
	console.Info("Compressed size: %s", megabytes(result.BestSize))
	console.Success("Reduction:       %.2f%%", result.Reduction())
	return result, nil
}

// optimizeImages extracts the page images, strips them losslessly and
// rebuilds the file with compressed streams. Nothing is rebuilt if no image
// got smaller.
func (c *Compressor) optimizeImages(ctx context.Context, in, out, extractDir string) error {
	if err := os.MkdirAll(extractDir, 0755); err != nil {
		return tracerr.Wrap(err)
	}
	if _, err := c.Runner.Run(ctx, "pdfimages", "-all", in, filepath.Join(extractDir, "img")); err != nil {
		return tracerr.Wrap(err)
	}

	entries, err := os.ReadDir(extractDir)
	if err != nil {
		return tracerr.Wrap(err)
	}

	var images []string
	for _, entry := range entries {
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png":
			images = append(images, filepath.Join(extractDir, entry.Name()))
		}
	}

	var (
		mu        sync.Mutex
		optimized int
		saved     int64
	)

	bar := console.NewBar(len(images), "Optimizing images")
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.Jobs, 1))

	for _, img := range images {
		img := img
		g.Go(func() error {
			defer bar.Add(1)

			delta, err := c.optimizeImage(gctx, img)
			if err != nil {
				console.Warn("Optimization failed for %s: %v", filepath.Base(img), err)
				return nil
			}
			if delta > 0 {
				mu.Lock()
				optimized++
				saved += delta
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return tracerr.Wrap(err)
	}
	_ = bar.Finish()

	console.Info("Optimized %d images, saved %.1fKB", optimized, float64(saved)/1024)
	if optimized == 0 {
		return nil
	}

	console.Info("Rebuilding PDF with optimized images...")
	_, err = c.Runner.Run(ctx, "qpdf",
		"--stream-data=compress",
		"--compress-streams=y",
		"--compression-level=9",
		"--object-streams=generate",
		in,
		out,
	)
	return tracerr.Wrap(err)
}

// optimizeImage returns how many bytes were saved on path.
func (c *Compressor) optimizeImage(ctx context.Context, path string) (int64, error) {
	before, err := os.Stat(path)
	if err != nil {
		return 0, tracerr.Wrap(err)
	}

	if strings.EqualFold(filepath.Ext(path), ".png") {
		_, err = c.Runner.Run(ctx, "optipng", "-o3", "-strip", "all", path)
	} else {
		_, err = c.Runner.Run(ctx, "jpegoptim", "--strip-all", "--all-progressive", path)
	}
	if err != nil {
		return 0, tracerr.Wrap(err)
	}

	after, err := os.Stat(path)
	if err != nil {
		return 0, tracerr.Wrap(err)
	}
	return before.Size() - after.Size(), nil
}

func (c *Compressor) recompress(ctx context.Context, in, out string) error {
	_, err := c.Runner.Run(ctx, "qpdf",
		"--stream-data=compress",
		"--compress-streams=y",
		"--recompress-flate",
		"--compression-level=9",
		"--decode-level=specialized",
		in,
		out,
	)
	return tracerr.Wrap(err)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return tracerr.Wrap(err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return tracerr.Wrap(err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return tracerr.Wrap(err)
	}
	return tracerr.Wrap(out.Close())
}

func megabytes(n int64) string {
	return fmt.Sprintf("%.2f MB", float64(n)/1024/1024)
}

package postprocess

import (
	"context"
	"os"
	"runtime"
	"strconv"

	"github.com/ztrue/tracerr"
)

type OCR struct {
	Runner   Runner
	Language string
	Jobs     int
}

func NewOCR(r Runner, language string) *OCR {
	return &OCR{Runner: r, Language: language, Jobs: runtime.NumCPU()}
}

// Run writes a text-searchable PDF/A copy of in to out. On failure out is
// removed and in is left untouched, so the caller can carry on with it.
func (o *OCR) Run(ctx context.Context, in, out, title string) error {
	jobs := o.Jobs
	if jobs < 1 {
		jobs = 1
	}

	_, err := o.Runner.Run(ctx, "ocrmypdf",
		"-l", o.Language,
		"--title", title,
		"--jobs", strconv.Itoa(jobs),
		"--output-type", "pdfa",
		in,
		out,
	)
	if err != nil {
		_ = os.Remove(out)
		return tracerr.Wrap(err)
	}

	if _, err := os.Stat(out); err != nil {
		return tracerr.Errorf("ocrmypdf did not create %s: %w", out, err)
	}
	return nil
}

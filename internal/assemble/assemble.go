// Package assemble turns the downloaded page images into the final PDF: one
// page per image in book order, with document info, an outline built from the
// table of contents and page labels for the front matter.
package assemble

import (
	"os"
	"path/filepath"

	pdfcpu_api "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ygunayer/vs2pdf/internal/gapfill"
	"github.com/ygunayer/vs2pdf/internal/pageindex"
	"github.com/ztrue/tracerr"
)

// RawPath is the intermediate PDF holding just the page images.
func RawPath(outputDir, isbn string) string {
	return filepath.Join(outputDir, isbn+" RAW.pdf")
}

// OrderedFiles returns the page images in dir in book order. The order only
// depends on the file names.
func OrderedFiles(dir string) ([]string, error) {
	stems, err := gapfill.Stems(dir)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}

	ordered := pageindex.OrderStems(stems)
	files := make([]string, len(ordered))
	for i, stem := range ordered {
		files[i] = filepath.Join(dir, stem+".jpg")
	}
	return files, nil
}

// BuildRaw writes every image as one page of rawPath, each page sized to its
// image. The images are embedded as they are, without re-encoding.
func BuildRaw(files []string, rawPath string) error {
	if len(files) == 0 {
		return tracerr.Errorf("no page images to build %s from", rawPath)
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return tracerr.Wrap(err)
		}
	}

	// importing into an existing file appends to it
	if err := os.Remove(rawPath); err != nil && !os.IsNotExist(err) {
		return tracerr.Wrap(err)
	}

	pdfConfig := model.NewDefaultConfiguration()
	if err := pdfcpu_api.ImportImagesFile(files, rawPath, nil, pdfConfig); err != nil {
		return tracerr.Wrap(err)
	}
	return nil
}

package assemble

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf16"

	pdfcpu_api "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/ygunayer/vs2pdf/internal/book"
	"github.com/ygunayer/vs2pdf/internal/console"
	"github.com/ztrue/tracerr"
)

type Meta struct {
	Title      string
	Author     string
	Isbn       string
	Outline    []*Node
	NonNumeric int
}

// OutputPath is where the finished book is written.
func OutputPath(outputDir, title string) string {
	return filepath.Join(outputDir, book.SanitizeFilename(title)+".pdf")
}

// Finish copies in to out with the document info, outline and page labels
// applied. out is only replaced once the new file is completely written.
func Finish(in, out string, meta Meta) error {
	ctx, err := pdfcpu_api.ReadContextFile(in)
	if err != nil {
		return tracerr.Wrap(err)
	}

	console.Info("Adding metadata...")
	if err := setInfo(ctx, meta); err != nil {
		return tracerr.Wrap(err)
	}

	if len(meta.Outline) > 0 {
		console.Info("Creating TOC with %d entries...", Count(meta.Outline))
		if err := pdfcpu.AddBookmarks(ctx, Bookmarks(meta.Outline, ctx.PageCount), true); err != nil {
			return tracerr.Wrap(err)
		}
	} else {
		console.Info("Not creating TOC...")
	}

	if ranges := LabelRanges(meta.NonNumeric, ctx.PageCount); len(ranges) > 0 {
		console.Info("Renumbering pages...")
		if err := setPageLabels(ctx, ranges); err != nil {
			return tracerr.Wrap(err)
		}
	}

	tmp := out + ".tmp"
	if err := pdfcpu_api.WriteContextFile(ctx, tmp); err != nil {
		_ = os.Remove(tmp)
		return tracerr.Wrap(err)
	}
	return tracerr.Wrap(os.Rename(tmp, out))
}

func setInfo(ctx *model.Context, meta Meta) error {
	var info types.Dict
	if ctx.Info != nil {
		d, err := ctx.DereferenceDict(*ctx.Info)
		if err != nil {
			return tracerr.Wrap(err)
		}
		info = d
	}
	if info == nil {
		info = types.NewDict()
		ir, err := ctx.IndRefForNewObject(info)
		if err != nil {
			return tracerr.Wrap(err)
		}
		ctx.Info = ir
	}

	info.Update("Title", textString(meta.Title))
	info.Update("Author", textString(meta.Author))
	info.Update("Creator", textString(fmt.Sprintf("ISBN: %s", meta.Isbn)))
	return nil
}

func setPageLabels(ctx *model.Context, ranges []LabelRange) error {
	root, err := ctx.Catalog()
	if err != nil {
		return tracerr.Wrap(err)
	}
	root.Update("PageLabels", pageLabelsDict(ranges))
	return nil
}

// textString encodes s as a UTF-16BE PDF text string so titles outside of
// Latin-1 survive.
func textString(s string) types.HexLiteral {
	units := utf16.Encode([]rune(s))
	buf := make([]byte, 2, 2+2*len(units))
	buf[0], buf[1] = 0xFE, 0xFF
	for _, u := range units {
		buf = append(buf, byte(u>>8), byte(u))
	}
	return types.HexLiteral(hex.EncodeToString(buf))
}

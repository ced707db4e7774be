package book

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ztrue/tracerr"
)

var isbnRegex = regexp.MustCompile(`^[0-9Xx-]{10,17}$`)
var readerPathRegex = regexp.MustCompile(`/books/([0-9Xx-]{10,17})(/|$)`)

// Platform holds the URLs and UI class names of one e-reader deployment.
type Platform struct {
	Name        string
	HomeUrl     string
	JigsawUrl   string
	TotalPages  string
	CurrentPage string
	PageLoader  string
	NextPage    string
}

var VitalSource = Platform{
	Name:        "vitalsource",
	HomeUrl:     "https://bookshelf.vitalsource.com",
	JigsawUrl:   "https://jigsaw.vitalsource.com",
	TotalPages:  "sc-eoHXOn cYtiUg",
	CurrentPage: "InputControl__input-fbzQBk hDtUvs TextField__InputControl-iza-dmV iISUBf",
	PageLoader:  "sc-AjmGg dDNaMw",
	NextPage:    "IconButton__button-bQttMI cSDGGI",
}

var Yuzu = Platform{
	Name:        "yuzu",
	HomeUrl:     "https://reader.yuzu.com",
	JigsawUrl:   "https://jigsaw.yuzu.com",
	TotalPages:  "sc-gFSQbh ognVW",
	CurrentPage: "InputControl__input-fbzQBk hDtUvs TextField__InputControl-iza-dmV iISUBf",
	PageLoader:  "sc-hiwPVj hZlgDU",
	NextPage:    "IconButton__button-bQttMI cSDGGI",
}

type Book struct {
	Isbn     string
	Platform Platform
}

func New(isbn string, yuzu bool) Book {
	p := VitalSource
	if yuzu {
		p = Yuzu
	}
	return Book{Isbn: isbn, Platform: p}
}

// ReaderUrl is the viewer URL of the page with the given page id.
func (b Book) ReaderUrl(pageId int) string {
	return fmt.Sprintf("%s/reader/books/%s/pageid/%d", b.Platform.HomeUrl, b.Isbn, pageId)
}

// ImagePrefix is the URL prefix shared by every page image request of the book.
func (b Book) ImagePrefix() string {
	return fmt.Sprintf("%s/books/%s/images/", b.Platform.JigsawUrl, b.Isbn)
}

func (b Book) PagesUrl() string {
	return fmt.Sprintf("%s/books/%s/pages", b.Platform.JigsawUrl, b.Isbn)
}

func (b Book) InfoUrl() string {
	return fmt.Sprintf("%s/info/books.json?isbns=%s", b.Platform.JigsawUrl, b.Isbn)
}

func (b Book) TocUrl() string {
	return fmt.Sprintf("%s/books/%s/toc", b.Platform.JigsawUrl, b.Isbn)
}

// ParseIsbn accepts either a bare ISBN or a reader URL containing one.
func ParseIsbn(isbnOrUrl string) (string, error) {
	trimmed := strings.TrimSpace(isbnOrUrl)
	if isbnRegex.MatchString(trimmed) {
		return trimmed, nil
	}

	if u, err := url.Parse(trimmed); err == nil && u.Host != "" {
		if matches := readerPathRegex.FindStringSubmatch(u.Path); len(matches) >= 2 {
			return matches[1], nil
		}
	}

	return "", tracerr.Errorf("invalid ISBN or reader URL: %s", isbnOrUrl)
}

// SanitizeFilename removes characters that are invalid in file names.
func SanitizeFilename(filename string) string {
	invalidChars := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	for _, char := range invalidChars {
		filename = strings.ReplaceAll(filename, char, "")
	}
	return strings.TrimSpace(filename)
}

package book

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ztrue/tracerr"
)

type Info struct {
	Pages json.RawMessage `json:"pages,omitempty"`
	Book  *BookList       `json:"book,omitempty"`
	Toc   []TocEntry      `json:"toc,omitempty"`
}

type BookList struct {
	Books []BookMeta `json:"books"`
}

type BookMeta struct {
	Title  string `json:"title"`
	Author string `json:"author"`
}

type TocEntry struct {
	Level int    `json:"level"`
	Cfi   string `json:"cfi"`
	Title string `json:"title"`
	// position in the list as received, used to break ties between entries
	// pointing at the same page
	Index int `json:"-"`
}

// Position parses the cfi into a page position, e.g. "/12" -> 12.
func (e TocEntry) Position() (int, error) {
	trimmed := strings.Trim(strings.TrimSpace(e.Cfi), "/")
	n, err := strconv.Atoi(trimmed)
	if err != nil || n < 0 {
		return 0, tracerr.Errorf("toc entry %q has malformed position %q", e.Title, e.Cfi)
	}
	return n, nil
}

func (i *Info) SetPages(body []byte) error {
	if !json.Valid(body) {
		return tracerr.Errorf("pages response is not valid JSON")
	}
	i.Pages = append(json.RawMessage(nil), body...)
	return nil
}

func (i *Info) SetBook(body []byte) error {
	var list BookList
	if err := json.Unmarshal(body, &list); err != nil {
		return tracerr.Wrap(err)
	}
	i.Book = &list
	return nil
}

func (i *Info) SetToc(body []byte) error {
	var entries []TocEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return tracerr.Wrap(err)
	}
	for idx := range entries {
		entries[idx].Index = idx
		if entries[idx].Level < 1 {
			entries[idx].Level = 1
		}
	}
	i.Toc = entries
	return nil
}

func (i *Info) HasPages() bool { return len(i.Pages) > 0 }
func (i *Info) HasBook() bool  { return i.Book != nil }
func (i *Info) HasToc() bool   { return i.Toc != nil }

func (i *Info) Complete() bool {
	return i.HasPages() && i.HasBook() && i.HasToc()
}

// Keys lists which parts of the metadata have been collected.
func (i *Info) Keys() []string {
	keys := []string{}
	if i.HasPages() {
		keys = append(keys, "pages")
	}
	if i.HasBook() {
		keys = append(keys, "book")
	}
	if i.HasToc() {
		keys = append(keys, "toc")
	}
	return keys
}

func (i *Info) meta() (BookMeta, bool) {
	if i == nil || i.Book == nil || len(i.Book.Books) == 0 {
		return BookMeta{}, false
	}
	return i.Book.Books[0], true
}

// Title falls back to the ISBN when no book metadata was scraped.
func (i *Info) Title(isbn string) string {
	if m, ok := i.meta(); ok && strings.TrimSpace(m.Title) != "" {
		return m.Title
	}
	return isbn
}

func (i *Info) Author() string {
	if m, ok := i.meta(); ok && strings.TrimSpace(m.Author) != "" {
		return m.Author
	}
	return "Unknown"
}

func (i *Info) HasMeta() bool {
	_, ok := i.meta()
	return ok
}

func InfoPath(outputDir, isbn string) string {
	return filepath.Join(outputDir, isbn+".json")
}

func (i *Info) Save(path string) error {
	data, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		return tracerr.Wrap(err)
	}
	return tracerr.Wrap(os.WriteFile(path, data, 0644))
}

// LoadInfo reads metadata persisted by an earlier run. A missing file yields
// empty metadata.
func LoadInfo(path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Info{}, nil
	}
	if err != nil {
		return nil, tracerr.Wrap(err)
	}

	var raw struct {
		Pages json.RawMessage `json:"pages"`
		Book  *BookList       `json:"book"`
		Toc   json.RawMessage `json:"toc"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, tracerr.Wrap(err)
	}

	info := &Info{Book: raw.Book}
	if len(raw.Pages) > 0 && string(raw.Pages) != "null" {
		info.Pages = raw.Pages
	}
	if len(raw.Toc) > 0 && string(raw.Toc) != "null" {
		if err := info.SetToc(raw.Toc); err != nil {
			return nil, tracerr.Wrap(err)
		}
	}
	return info, nil
}

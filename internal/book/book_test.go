package book

import (
	"path/filepath"
	"testing"
)

func TestParseIsbn(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"9781234567897", "9781234567897", false},
		{" 9781234567897 ", "9781234567897", false},
		{"https://bookshelf.vitalsource.com/reader/books/9781234567897/pageid/12", "9781234567897", false},
		{"https://reader.yuzu.com/reader/books/9781234567897", "9781234567897", false},
		{"https://bookshelf.vitalsource.com/home", "", true},
		{"not an isbn", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseIsbn(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUrls(t *testing.T) {
	b := New("123", false)
	if got := b.ReaderUrl(4); got != "https://bookshelf.vitalsource.com/reader/books/123/pageid/4" {
		t.Errorf("ReaderUrl = %q", got)
	}
	if got := b.ImagePrefix(); got != "https://jigsaw.vitalsource.com/books/123/images/" {
		t.Errorf("ImagePrefix = %q", got)
	}

	y := New("123", true)
	if got := y.InfoUrl(); got != "https://jigsaw.yuzu.com/info/books.json?isbns=123" {
		t.Errorf("InfoUrl = %q", got)
	}
	if got := y.TocUrl(); got != "https://jigsaw.yuzu.com/books/123/toc" {
		t.Errorf("TocUrl = %q", got)
	}
}

func TestInfoFallbacks(t *testing.T) {
	info := &Info{}
	if got := info.Title("978"); got != "978" {
		t.Errorf("Title fallback = %q", got)
	}
	if got := info.Author(); got != "Unknown" {
		t.Errorf("Author fallback = %q", got)
	}

	if err := info.SetBook([]byte(`{"books":[{"title":"Go in Practice","author":"M. Butcher"}]}`)); err != nil {
		t.Fatal(err)
	}
	if got := info.Title("978"); got != "Go in Practice" {
		t.Errorf("Title = %q", got)
	}
	if got := info.Author(); got != "M. Butcher" {
		t.Errorf("Author = %q", got)
	}
}

func TestTocParsing(t *testing.T) {
	info := &Info{}
	body := `[{"title":"Ch1","cfi":"/10","level":1},{"title":"S1.1","cfi":"/12"},{"title":"Bad","cfi":"epubcfi(/6/4)","level":2}]`
	if err := info.SetToc([]byte(body)); err != nil {
		t.Fatal(err)
	}
	if len(info.Toc) != 3 {
		t.Fatalf("got %d entries", len(info.Toc))
	}
	if info.Toc[1].Level != 1 {
		t.Errorf("missing level should default to 1, got %d", info.Toc[1].Level)
	}
	if info.Toc[2].Index != 2 {
		t.Errorf("index not recorded: %d", info.Toc[2].Index)
	}

	if pos, err := info.Toc[0].Position(); err != nil || pos != 10 {
		t.Errorf("Position = %d, %v", pos, err)
	}
	if _, err := info.Toc[2].Position(); err == nil {
		t.Error("expected malformed cfi to fail")
	}
}

func TestInfoRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "978.json")

	missing, err := LoadInfo(path)
	if err != nil {
		t.Fatal(err)
	}
	if missing.HasBook() || missing.HasToc() || missing.HasPages() {
		t.Error("missing file should give empty info")
	}

	info := &Info{}
	_ = info.SetPages([]byte(`[{"cfi":"/1"}]`))
	_ = info.SetBook([]byte(`{"books":[{"title":"T","author":"A"}]}`))
	_ = info.SetToc([]byte(`[{"title":"a","cfi":"/1","level":1},{"title":"b","cfi":"/1","level":1}]`))
	if !info.Complete() {
		t.Fatal("expected complete info")
	}
	if err := info.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadInfo(path)
	if err != nil {
		t.Fatal(err)
	}
	if !loaded.Complete() {
		t.Errorf("loaded info incomplete: %v", loaded.Keys())
	}
	if loaded.Toc[1].Index != 1 {
		t.Errorf("toc index lost on reload: %+v", loaded.Toc[1])
	}
}

func TestRecordSet(t *testing.T) {
	s := NewRecordSet()
	if !s.Add("12", "https://a/12") {
		t.Fatal("first add should succeed")
	}
	if s.Add("12", "https://b/12") {
		t.Error("re-discovering a label must be a no-op")
	}
	s.Add("iv", "https://a/iv")
	s.Add("0", "https://a/0")
	s.Add("ii", "https://a/ii")

	records := s.Records()
	want := []string{"ii", "iv", "0", "12"}
	if len(records) != len(want) {
		t.Fatalf("got %d records", len(records))
	}
	for i, r := range records {
		if r.Label != want[i] {
			t.Errorf("record %d = %q, want %q", i, r.Label, want[i])
		}
	}
	if records[3].BaseUrl != "https://a/12" {
		t.Errorf("first url should win, got %q", records[3].BaseUrl)
	}
}

package pages

import "testing"

func TestNumberFromName(t *testing.T) {
	tests := []struct {
		name   string
		want   int
		wantOK bool
	}{
		{"page_0007.png", 7, true},
		{"4x-page_0007.png", 7, true},
		{"2x-page_0042.jpg", 42, true},
		{"PAGE_0001.JPG", 1, true},
		{"page-12.webp", 12, true},
		{"page_1234.jpg", 1234, true},
		{"cover.jpg", 0, false},
		{"page_0000.png", 0, false},
		{"notes.txt", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NumberFromName(tt.name)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("NumberFromName(%q) = (%d, %v), want (%d, %v)", tt.name, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestFileName(t *testing.T) {
	if got := FileName(7, "jpg"); got != "page_0007.jpg" {
		t.Errorf("FileName(7, jpg) = %q", got)
	}
	if got := FileName(1234, ".png"); got != "page_1234.png" {
		t.Errorf("FileName(1234, .png) = %q", got)
	}
}

func TestValidate(t *testing.T) {
	mk := func(nums ...int) []*Record {
		recs := make([]*Record, len(nums))
		for i, n := range nums {
			recs[i] = &Record{PageNumber: n, SourceLocator: FileName(n, "jpg")}
		}
		return recs
	}

	if err := Validate(mk(1, 2, 3)); err != nil {
		t.Errorf("contiguous range: unexpected error %v", err)
	}
	if err := Validate(nil); err != nil {
		t.Errorf("empty set: unexpected error %v", err)
	}
	if err := Validate(mk(1, 2, 2)); err == nil {
		t.Error("duplicate page number: want error")
	}
	if err := Validate(mk(1, 3)); err == nil {
		t.Error("gap in range: want error")
	}

	dup := mk(1, 2)
	dup[1].SourceLocator = dup[0].SourceLocator
	if err := Validate(dup); err == nil {
		t.Error("duplicate locator: want error")
	}

	covers := mk(1, 2)
	covers[0].IsCover = true
	covers[1].IsCover = true
	if err := Validate(covers); err == nil {
		t.Error("two covers: want error")
	}
}

func TestMetaEntryValid(t *testing.T) {
	tests := []struct {
		entry MetaEntry
		want  bool
	}{
		{MetaEntry{Name: "series", Value: "One Piece"}, true},
		{MetaEntry{Name: "calibre:series_index", Value: "3"}, true},
		{MetaEntry{Name: "x", Value: "short name"}, false},
		{MetaEntry{Name: "series", Value: ""}, false},
		{MetaEntry{Name: "bad name", Value: "v"}, false},
		{MetaEntry{Name: "bad<tag>", Value: "v"}, false},
	}

	for _, tt := range tests {
		if got := tt.entry.Valid(); got != tt.want {
			t.Errorf("Valid(%+v) = %v, want %v", tt.entry, got, tt.want)
		}
	}
}

// Package pages defines the page identity model threaded through the
// upscaling pipeline: every extracted image carries a durable
// (page number, cover flag, source locator) triple from extraction
// through batch processing to container assembly.
package pages

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Record tracks one logical page through the pipeline. Records are
// created during extraction, staged for the external tool, and updated
// exactly once during reconciliation when OutputPath is set.
type Record struct {
	// PageNumber is 1-based and dense within a book.
	PageNumber int

	// IsCover marks the book cover. At most one record per book.
	IsCover bool

	// SourceLocator references the image inside the original container
	// (EPUB item path) or the source file itself (PDF page render).
	SourceLocator string

	// StagedPath is where the extracted bytes were written for the
	// external tool to consume.
	StagedPath string

	// Width and Height are the dimensions at extraction time.
	Width  int
	Height int

	// OutputPath is set during reconciliation. Empty means no upscaled
	// result could be matched back to this page (a reconciliation gap).
	OutputPath string
}

// Upscaled reports whether reconciliation matched an output file to
// this page.
func (r *Record) Upscaled() bool {
	return r.OutputPath != ""
}

// FileName returns the canonical staged file name for a page,
// e.g. FileName(7, "jpg") == "page_0007.jpg".
func FileName(pageNum int, ext string) string {
	return fmt.Sprintf("page_%04d.%s", pageNum, strings.TrimPrefix(ext, "."))
}

var pageToken = regexp.MustCompile(`page[_-]?0*(\d+)`)

// NumberFromName recovers the page number embedded in a file name,
// tolerating decoration added by the external tool. "4x-page_0007.png"
// and "page_0007.jpg" both resolve to 7.
func NumberFromName(name string) (int, bool) {
	m := pageToken.FindStringSubmatch(strings.ToLower(name))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// Validate checks the pipeline invariants over a book's records: page
// numbers form the contiguous range [1..N], source locators are unique,
// and at most one record is flagged as cover.
func Validate(records []*Record) error {
	seen := make(map[int]bool, len(records))
	locators := make(map[string]bool, len(records))
	covers := 0

	for _, r := range records {
		if r.PageNumber < 1 || r.PageNumber > len(records) {
			return fmt.Errorf("page number %d out of range [1..%d]", r.PageNumber, len(records))
		}
		if seen[r.PageNumber] {
			return fmt.Errorf("duplicate page number %d", r.PageNumber)
		}
		seen[r.PageNumber] = true

		if locators[r.SourceLocator] {
			return fmt.Errorf("duplicate source locator %q", r.SourceLocator)
		}
		locators[r.SourceLocator] = true

		if r.IsCover {
			covers++
		}
	}

	if covers > 1 {
		return fmt.Errorf("%d pages flagged as cover, want at most 1", covers)
	}
	return nil
}

// Metadata carries book metadata from the source container into the
// output container. Known fields are explicit; everything else rides in
// Extra and is validated entry-by-entry before copy.
type Metadata struct {
	Title      string
	Creator    string
	Language   string
	Identifier string

	// Extra holds namespaced passthrough metadata in source order.
	Extra []MetaEntry
}

// MetaEntry is one passthrough metadata element.
type MetaEntry struct {
	Namespace string
	Name      string
	Value     string
	Attrs     map[string]string
}

// Valid reports whether the entry is well-formed enough to copy into an
// output container. Single-character names and names containing markup
// or whitespace are rejected.
func (e MetaEntry) Valid() bool {
	if len(e.Name) < 2 || e.Value == "" {
		return false
	}
	return !strings.ContainsAny(e.Name, " \t\n<>\"'&")
}

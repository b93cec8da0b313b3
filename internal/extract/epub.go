package extract

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"github.com/inkscale/inkscale/internal/imaging"
	"github.com/inkscale/inkscale/internal/pages"
)

const (
	containerPath = "META-INF/container.xml"
	dcNamespace   = "http://purl.org/dc/elements/1.1/"
	opfNamespace  = "http://www.idpf.org/2007/opf"
)

// FromEPUB extracts content images from an EPUB in document-flow order.
// The cover (if one is marked) is resolved first and takes page 1;
// remaining pages are numbered in the order images are first referenced
// by the spine documents.
func FromEPUB(ctx context.Context, epubPath, imagesDir string, opts Options) (*Result, error) {
	log := opts.logger()

	zr, err := zip.OpenReader(epubPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open EPUB: %w", err)
	}
	defer zr.Close()

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	pkg, opfDir, err := readPackage(files)
	if err != nil {
		return nil, fmt.Errorf("failed to read EPUB package: %w", err)
	}

	result := &Result{Meta: extractMetadata(pkg)}
	log.Debug("read EPUB package", "title", result.Meta.Title, "items", len(pkg.Manifest.Items))

	resources := loadImageResources(files, pkg, opfDir, opts, result)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stage := func(res *imageResource, pageNum int, isCover bool) bool {
		res.claimed = true
		rec, err := stageResource(res, imagesDir, pageNum, isCover, opts)
		if err != nil {
			result.Warnings = append(result.Warnings, Warning{Item: res.href, Reason: err})
			log.Warn("skipping image", "item", res.href, "error", err)
			return false
		}
		result.Records = append(result.Records, rec)
		return true
	}

	pageNum := 1

	// Cover pre-scan: a marked cover takes page 1 before generic
	// numbering begins.
	if cover := findCover(pkg, resources); cover != nil {
		if stage(cover, pageNum, true) {
			log.Debug("extracted cover", "item", cover.href)
			pageNum++
		}
	}

	// Generic scan: walk spine documents in reading order and claim
	// each referenced resource once.
	for _, ref := range documentImageRefs(files, pkg, opfDir, result) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res := claimMatch(resources, ref)
		if res == nil {
			continue
		}
		if stage(res, pageNum, false) {
			pageNum++
		}
	}

	if len(result.Records) == 0 {
		return nil, fmt.Errorf("%s: %w", epubPath, ErrNoContent)
	}

	log.Info("EPUB extraction complete", "pages", len(result.Records), "skipped", len(result.Warnings))
	return result, nil
}

// imageResource is one image entry from the EPUB manifest, loaded and
// size-checked. A resource is claimed at most once.
type imageResource struct {
	href       string // path inside the zip
	id         string
	properties string
	data       []byte
	width      int
	height     int
	claimed    bool
}

// claimMatch finds the first unclaimed resource matching a document
// reference and marks it claimed. Returns nil when nothing matches.
func claimMatch(resources []*imageResource, ref string) *imageResource {
	for _, res := range resources {
		if res.claimed {
			continue
		}
		if MatchReference(ref, res.href) {
			res.claimed = true
			return res
		}
	}
	return nil
}

// stageResource decodes an image resource and writes it to the staging
// directory under its canonical page file name.
func stageResource(res *imageResource, imagesDir string, pageNum int, isCover bool, opts Options) (*pages.Record, error) {
	img, _, err := imaging.Decode(res.data)
	if err != nil {
		return nil, err
	}

	encoded, err := imaging.Encode(img, opts.OutputFormat, opts.OutputQuality)
	if err != nil {
		return nil, err
	}

	staged := filepath.Join(imagesDir, pages.FileName(pageNum, imaging.Extension(opts.OutputFormat)))
	if err := os.WriteFile(staged, encoded, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write staged page: %w", err)
	}

	return &pages.Record{
		PageNumber:    pageNum,
		IsCover:       isCover,
		SourceLocator: res.href,
		StagedPath:    staged,
		Width:         res.width,
		Height:        res.height,
	}, nil
}

// loadImageResources reads every manifest image into memory, recording
// a warning for malformed entries and dropping images below the minimum
// content size.
func loadImageResources(files map[string]*zip.File, pkg *opfPackage, opfDir string, opts Options, result *Result) []*imageResource {
	var resources []*imageResource

	for _, item := range pkg.Manifest.Items {
		if !strings.HasPrefix(item.MediaType, "image/") {
			continue
		}
		href := resolveHref(opfDir, item.Href)

		data, err := readZipFile(files, href)
		if err != nil {
			result.Warnings = append(result.Warnings, Warning{Item: href, Reason: err})
			continue
		}

		w, h, err := imaging.Dimensions(data)
		if err != nil {
			result.Warnings = append(result.Warnings, Warning{Item: href, Reason: err})
			continue
		}
		if w < opts.MinEdge || h < opts.MinEdge {
			continue
		}

		resources = append(resources, &imageResource{
			href:       href,
			id:         item.ID,
			properties: item.Properties,
			data:       data,
			width:      w,
			height:     h,
		})
	}

	return resources
}

// findCover returns the resource marked as the book cover, or nil.
// Recognized markers, in order: the EPUB 3 cover-image manifest
// property, the EPUB 2 <meta name="cover"> item id, and "cover" in the
// item id or file name.
func findCover(pkg *opfPackage, resources []*imageResource) *imageResource {
	coverID := pkg.coverMetaID()

	for _, res := range resources {
		if strings.Contains(res.properties, "cover-image") {
			return res
		}
	}
	if coverID != "" {
		for _, res := range resources {
			if res.id == coverID {
				return res
			}
		}
	}
	for _, res := range resources {
		if strings.Contains(strings.ToLower(res.id), "cover") ||
			strings.Contains(strings.ToLower(path.Base(res.href)), "cover") {
			return res
		}
	}
	return nil
}

// documentImageRefs walks spine documents in reading order and returns
// image references in first-appearance order. Falls back to manifest
// order of documents when the spine is empty.
func documentImageRefs(files map[string]*zip.File, pkg *opfPackage, opfDir string, result *Result) []string {
	items := make(map[string]opfItem, len(pkg.Manifest.Items))
	for _, item := range pkg.Manifest.Items {
		items[item.ID] = item
	}

	var docs []opfItem
	for _, ref := range pkg.Spine.Itemrefs {
		if item, ok := items[ref.IDref]; ok && isDocument(item) {
			docs = append(docs, item)
		}
	}
	if len(docs) == 0 {
		for _, item := range pkg.Manifest.Items {
			if isDocument(item) {
				docs = append(docs, item)
			}
		}
	}

	var refs []string
	for _, doc := range docs {
		href := resolveHref(opfDir, doc.Href)
		data, err := readZipFile(files, href)
		if err != nil {
			result.Warnings = append(result.Warnings, Warning{Item: href, Reason: err})
			continue
		}
		refs = append(refs, scanImageRefs(data)...)
	}
	return refs
}

func isDocument(item opfItem) bool {
	return item.MediaType == "application/xhtml+xml" || item.MediaType == "text/html"
}

// scanImageRefs tokenizes an XHTML document and collects <img src> and
// SVG <image href>/<image xlink:href> references in appearance order.
func scanImageRefs(doc []byte) []string {
	var refs []string
	tz := html.NewTokenizer(strings.NewReader(string(doc)))

	for {
		tt := tz.Next()
		if tt == html.ErrorToken {
			return refs
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}

		tok := tz.Token()
		switch tok.Data {
		case "img":
			for _, attr := range tok.Attr {
				if attr.Key == "src" && attr.Val != "" {
					refs = append(refs, attr.Val)
					break
				}
			}
		case "image":
			// SVG wrapper pages reference the raster via (xlink:)href.
			for _, attr := range tok.Attr {
				if (attr.Key == "href" || attr.Key == "xlink:href") && attr.Val != "" {
					refs = append(refs, attr.Val)
					break
				}
			}
		}
	}
}

// opfPackage mirrors the parts of the OPF package document the
// enumerator needs.
type opfPackage struct {
	XMLName  xml.Name    `xml:"package"`
	Metadata opfMetadata `xml:"metadata"`
	Manifest struct {
		Items []opfItem `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		Itemrefs []struct {
			IDref string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

type opfItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

type opfMetadata struct {
	Elems []opfMetaElem `xml:",any"`
}

type opfMetaElem struct {
	XMLName xml.Name
	Value   string     `xml:",chardata"`
	Attrs   []xml.Attr `xml:",any,attr"`
}

func (e opfMetaElem) attr(name string) string {
	for _, a := range e.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// coverMetaID returns the manifest id named by an EPUB 2 style
// <meta name="cover" content="..."/> entry.
func (p *opfPackage) coverMetaID() string {
	for _, e := range p.Metadata.Elems {
		if e.XMLName.Local == "meta" && e.attr("name") == "cover" {
			return e.attr("content")
		}
	}
	return ""
}

// readPackage locates the OPF via META-INF/container.xml and parses it.
// Returns the package and the directory its hrefs are relative to.
func readPackage(files map[string]*zip.File) (*opfPackage, string, error) {
	containerData, err := readZipFile(files, containerPath)
	if err != nil {
		return nil, "", err
	}

	var container struct {
		Rootfiles []struct {
			FullPath string `xml:"full-path,attr"`
		} `xml:"rootfiles>rootfile"`
	}
	if err := xml.Unmarshal(containerData, &container); err != nil {
		return nil, "", fmt.Errorf("failed to parse container.xml: %w", err)
	}
	if len(container.Rootfiles) == 0 {
		return nil, "", fmt.Errorf("container.xml names no rootfile")
	}

	opfPath := container.Rootfiles[0].FullPath
	opfData, err := readZipFile(files, opfPath)
	if err != nil {
		return nil, "", err
	}

	var pkg opfPackage
	if err := xml.Unmarshal(opfData, &pkg); err != nil {
		return nil, "", fmt.Errorf("failed to parse %s: %w", opfPath, err)
	}

	return &pkg, path.Dir(opfPath), nil
}

// extractMetadata pulls known Dublin Core fields out of the package
// metadata and carries everything else as passthrough entries.
func extractMetadata(pkg *opfPackage) *pages.Metadata {
	meta := &pages.Metadata{Language: "en"}

	for _, e := range pkg.Metadata.Elems {
		value := strings.TrimSpace(e.Value)

		if e.XMLName.Space == dcNamespace {
			switch e.XMLName.Local {
			case "title":
				if meta.Title == "" {
					meta.Title = value
				}
				continue
			case "creator":
				if meta.Creator == "" {
					meta.Creator = value
				}
				continue
			case "language":
				if value != "" {
					meta.Language = value
				}
				continue
			case "identifier":
				if meta.Identifier == "" {
					meta.Identifier = value
				}
				continue
			}
		}

		entry := pages.MetaEntry{
			Namespace: namespaceLabel(e.XMLName.Space),
			Name:      e.XMLName.Local,
			Value:     value,
		}
		if e.XMLName.Local == "meta" {
			if prop := e.attr("property"); prop != "" {
				entry.Name = prop
			} else if name := e.attr("name"); name != "" {
				entry.Name = name
				entry.Value = e.attr("content")
			}
		}
		if len(e.Attrs) > 0 {
			entry.Attrs = make(map[string]string, len(e.Attrs))
			for _, a := range e.Attrs {
				entry.Attrs[a.Name.Local] = a.Value
			}
		}
		meta.Extra = append(meta.Extra, entry)
	}

	return meta
}

func namespaceLabel(space string) string {
	switch space {
	case dcNamespace:
		return "DC"
	case opfNamespace:
		return "OPF"
	default:
		return space
	}
}

func resolveHref(opfDir, href string) string {
	if opfDir == "." || opfDir == "" {
		return path.Clean(href)
	}
	return path.Clean(path.Join(opfDir, href))
}

func readZipFile(files map[string]*zip.File, name string) ([]byte, error) {
	f, ok := files[name]
	if !ok {
		return nil, fmt.Errorf("entry not found in container: %s", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

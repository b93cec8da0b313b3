package epub

import (
	"fmt"
	"strings"
)

// generateNavigation creates the EPUB 3 navigation document. Image
// books get a flat page list; the first entry points at the cover when
// one exists.
func (b *Builder) generateNavigation() string {
	var sb strings.Builder

	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head>
  <title>Navigation</title>
  <meta charset="utf-8"/>
</head>
<body>
  <nav epub:type="toc" id="toc">
    <ol>
`)
	for _, rec := range b.records {
		label := fmt.Sprintf("Page %d", rec.PageNumber)
		href := fmt.Sprintf("page_%04d.xhtml", rec.PageNumber)
		if rec.IsCover {
			label = "Cover"
			href = "cover.xhtml"
		}
		sb.WriteString(fmt.Sprintf("      <li><a href=\"%s\">%s</a></li>\n", href, escapeXML(label)))
	}
	sb.WriteString(`    </ol>
  </nav>
</body>
</html>`)

	return sb.String()
}

// generateNCX creates the legacy NCX table of contents for EPUB 2
// reading systems.
func (b *Builder) generateNCX() string {
	var sb strings.Builder

	title := b.meta.Title
	if title == "" {
		title = "Untitled"
	}

	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <head>
    <meta name="dtb:uid" content="%s"/>
    <meta name="dtb:depth" content="1"/>
  </head>
  <docTitle><text>%s</text></docTitle>
  <navMap>
`, escapeXML(b.identifier()), escapeXML(title)))

	for i, rec := range b.records {
		label := fmt.Sprintf("Page %d", rec.PageNumber)
		href := fmt.Sprintf("page_%04d.xhtml", rec.PageNumber)
		if rec.IsCover {
			label = "Cover"
			href = "cover.xhtml"
		}
		sb.WriteString(fmt.Sprintf(`    <navPoint id="nav_%d" playOrder="%d">
      <navLabel><text>%s</text></navLabel>
      <content src="%s"/>
    </navPoint>
`, i+1, i+1, escapeXML(label), href))
	}

	sb.WriteString("  </navMap>\n</ncx>")
	return sb.String()
}

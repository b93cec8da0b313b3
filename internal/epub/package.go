package epub

import (
	"fmt"
	"strings"
	"time"

	"github.com/inkscale/inkscale/internal/imaging"
)

// generatePackage creates the OPF package document for a synthesized
// container. Passthrough metadata entries from the source survive as
// <meta property="..."> elements when their names validate.
func (b *Builder) generatePackage(rendered []renderedPage) string {
	var sb strings.Builder

	title := b.meta.Title
	if title == "" {
		title = "Untitled"
	}
	lang := b.meta.Language
	if lang == "" {
		lang = "en"
	}

	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="pub-id">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
`)
	sb.WriteString(fmt.Sprintf("    <dc:identifier id=\"pub-id\">%s</dc:identifier>\n", escapeXML(b.identifier())))
	sb.WriteString(fmt.Sprintf("    <dc:title>%s</dc:title>\n", escapeXML(title)))
	sb.WriteString(fmt.Sprintf("    <dc:language>%s</dc:language>\n", escapeXML(lang)))
	if b.meta.Creator != "" {
		sb.WriteString(fmt.Sprintf("    <dc:creator>%s</dc:creator>\n", escapeXML(b.meta.Creator)))
	}
	sb.WriteString(fmt.Sprintf("    <meta property=\"dcterms:modified\">%s</meta>\n",
		time.Now().UTC().Format("2006-01-02T15:04:05Z")))
	for _, entry := range b.meta.Extra {
		if !entry.Valid() {
			b.logger.Warn("dropping invalid metadata entry", "name", entry.Name)
			continue
		}
		sb.WriteString(fmt.Sprintf("    <meta property=\"%s\">%s</meta>\n",
			escapeXML(entry.Name), escapeXML(entry.Value)))
	}
	sb.WriteString("  </metadata>\n  <manifest>\n")

	sb.WriteString("    <item id=\"nav\" href=\"nav.xhtml\" media-type=\"application/xhtml+xml\" properties=\"nav\"/>\n")
	sb.WriteString("    <item id=\"ncx\" href=\"toc.ncx\" media-type=\"application/x-dtbncx+xml\"/>\n")
	sb.WriteString("    <item id=\"css\" href=\"styles/style.css\" media-type=\"text/css\"/>\n")

	mediaType := imaging.MediaType(b.geo.OutputFormat)
	for _, pg := range rendered {
		imgID, docID := pg.ids()
		props := ""
		if pg.isCover {
			props = " properties=\"cover-image\""
		}
		sb.WriteString(fmt.Sprintf("    <item id=\"%s\" href=\"%s\" media-type=\"%s\"%s/>\n",
			imgID, pg.imageHref, mediaType, props))
		sb.WriteString(fmt.Sprintf("    <item id=\"%s\" href=\"%s\" media-type=\"application/xhtml+xml\"/>\n",
			docID, pg.docHref))
	}

	sb.WriteString("  </manifest>\n  <spine toc=\"ncx\">\n")
	for _, pg := range rendered {
		_, docID := pg.ids()
		sb.WriteString(fmt.Sprintf("    <itemref idref=\"%s\"/>\n", docID))
	}
	sb.WriteString("  </spine>\n</package>")

	return sb.String()
}

// ids returns stable manifest identifiers for a page's image and document.
func (pg renderedPage) ids() (imgID, docID string) {
	if pg.isCover {
		return "cover-image", "cover"
	}
	return fmt.Sprintf("img_%04d", pg.record.PageNumber),
		fmt.Sprintf("page_%04d", pg.record.PageNumber)
}

// escapeXML escapes special characters for XML content.
func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	return s
}

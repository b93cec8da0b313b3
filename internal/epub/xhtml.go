package epub

import "fmt"

// pageStylesheet keeps pages edge-to-edge with no reader chrome. The
// fixed black background avoids white flashes on e-ink refreshes.
const pageStylesheet = `html, body {
  margin: 0;
  padding: 0;
  height: 100%;
  background-color: #000000;
}
div.image-container {
  height: 100%;
  text-align: center;
}
div.image-container img {
  max-width: 100%;
  max-height: 100%;
}
`

// generatePageXHTML creates the wrapper document for one page image.
// The viewport meta carries the rendered pixel dimensions so fixed
// layout readers size the page correctly.
func (b *Builder) generatePageXHTML(pg renderedPage) string {
	title := fmt.Sprintf("Page %d", pg.record.PageNumber)
	alt := title
	if pg.isCover {
		title = "Cover"
		alt = "Cover"
	}
	depth := relativePrefix(pg.docHref)

	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml">
<head>
  <title>%s</title>
  <meta charset="utf-8"/>
  <meta name="viewport" content="width=%d, height=%d"/>
  <link rel="stylesheet" type="text/css" href="%sstyles/style.css"/>
</head>
<body>
  <div class="image-container">
    <img src="%s%s" alt="%s"/>
  </div>
</body>
</html>`, escapeXML(title), pg.width, pg.height, depth, depth, pg.imageHref, escapeXML(alt))
}

// relativePrefix returns the ../ chain needed to reach the OEBPS root
// from a document href. Synthesized documents live at the root, so the
// prefix is empty, but hrefs are treated uniformly.
func relativePrefix(href string) string {
	prefix := ""
	for i := 0; i < len(href); i++ {
		if href[i] == '/' {
			prefix += "../"
		}
	}
	return prefix
}

package handler

import (
	"html/template"

	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday"
)

// bioPolicy is applied after rendering; nothing reaches the page unsanitized.
var bioPolicy = bluemonday.UGCPolicy().
	RequireNoFollowOnLinks(true).
	AddTargetBlankToFullyQualifiedLinks(true)

// renderBio turns a bio written in a small subset of markdown (emphasis,
// links, line breaks) into HTML for the public page.
func renderBio(bio string) template.HTML {
	if bio == "" {
		return ""
	}
	extensions := 0 |
		blackfriday.EXTENSION_AUTOLINK |
		blackfriday.EXTENSION_HARD_LINE_BREAK |
		blackfriday.EXTENSION_NO_INTRA_EMPHASIS |
		blackfriday.EXTENSION_STRIKETHROUGH
	flags := 0 |
		blackfriday.HTML_SKIP_HTML |
		blackfriday.HTML_SKIP_IMAGES |
		blackfriday.HTML_SAFELINK

	out := blackfriday.Markdown([]byte(bio), blackfriday.HtmlRenderer(flags, "", ""), extensions)
	return template.HTML(bioPolicy.SanitizeBytes(out))
}

var templateFuncs = template.FuncMap{
	"bio": renderBio,
}

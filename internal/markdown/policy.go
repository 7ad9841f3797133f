package markdown

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

var (
	classPattern  = regexp.MustCompile(`^[A-Za-z0-9\s:_./%+#\[\]-]+$`)
	targetPattern = regexp.MustCompile(`^_blank$`)
)

// subsetPolicy allows exactly the markup the Subset rules emit.
func subsetPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"h1", "h2", "h3", "strong", "em", "pre", "code", "br",
		"table", "thead", "tbody", "tr", "th", "td",
	)
	p.AllowAttrs("class").Matching(classPattern).Globally()
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("target").Matching(targetPattern).OnElements("a")
	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemes("http", "https", "mailto")
	p.AllowRelativeURLs(true)
	p.RequireParseableURLs(true)
	p.RequireNoReferrerOnFullyQualifiedLinks(true)
	return p
}

// commonMarkPolicy extends subsetPolicy with the block elements goldmark produces and the inline
// styles the syntax highlighter writes.
func commonMarkPolicy() *bluemonday.Policy {
	p := subsetPolicy()
	p.AllowElements(
		"p", "h4", "h5", "h6", "blockquote", "hr", "ul", "ol", "li",
		"del", "span", "input",
	)
	p.AllowAttrs("style").OnElements("span", "pre")
	p.AllowAttrs("align").OnElements("th", "td")
	p.AllowAttrs("start").Matching(bluemonday.Integer).OnElements("ol")
	p.AllowAttrs("type").Matching(regexp.MustCompile(`^checkbox$`)).OnElements("input")
	p.AllowAttrs("checked", "disabled").Matching(regexp.MustCompile(`^$`)).OnElements("input")
	return p
}

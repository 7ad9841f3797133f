package markdown

import (
	"bytes"
	"html"
	"html/template"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// CommonMark renders full CommonMark (plus GitHub tables, strikethrough and task lists) with goldmark.
// Fenced code is highlighted with inline styles, so no extra stylesheet is needed.
type CommonMark struct {
	opts   Options
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// NewCommonMark creates a CommonMark renderer with the given options.
func NewCommonMark(opts Options) CommonMark {
	rendererOpts := []goldmark.Option{
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("dracula"),
			),
		),
	}
	htmlOpts := []renderer.Option{gmhtml.WithHardWraps()}
	if opts.AllowRawHTML || opts.Unsafe {
		htmlOpts = append(htmlOpts, gmhtml.WithUnsafe())
	}
	rendererOpts = append(rendererOpts, goldmark.WithRendererOptions(htmlOpts...))

	return CommonMark{
		opts:   opts,
		md:     goldmark.New(rendererOpts...),
		policy: commonMarkPolicy(),
	}
}

// Render converts text and returns it as trusted HTML. If goldmark fails the text is returned escaped
// instead.
func (c CommonMark) Render(text string) template.HTML {
	var buf bytes.Buffer
	if err := c.md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(html.EscapeString(text))
	}
	if c.opts.Unsafe {
		return template.HTML(buf.String())
	}
	return template.HTML(c.policy.SanitizeBytes(buf.Bytes()))
}

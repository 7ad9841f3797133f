// Package markdown turns message text into HTML fragments for the conversation view.
//
// Two renderers are available. Subset implements the small markdown dialect the chat page has always
// understood (headings, emphasis, code, links, images, pipe tables) as an ordered list of pattern
// substitutions. CommonMark renders full CommonMark through goldmark. Both sanitize their output with
// the same allow-list policy unless told otherwise.
package markdown

import (
	"fmt"
	"html/template"
)

// Renderer converts raw message text into an HTML fragment that is safe to embed in a page.
type Renderer interface {
	Render(text string) template.HTML
}

// Options controls how input text is treated before and after formatting.
type Options struct {
	// AllowRawHTML lets HTML written in the input through to the sanitizer instead of escaping it first.
	AllowRawHTML bool
	// Unsafe disables both escaping and sanitizing. The output is exactly what the substitution rules
	// produce, raw HTML in the input included.
	Unsafe bool
}

const (
	// EngineSubset selects the Subset renderer.
	EngineSubset = "subset"
	// EngineCommonMark selects the CommonMark renderer.
	EngineCommonMark = "commonmark"
)

// New returns the renderer registered under name. An empty name selects EngineSubset.
func New(name string, opts Options) (Renderer, error) {
	switch name {
	case "", EngineSubset:
		return NewSubset(opts), nil
	case EngineCommonMark:
		return NewCommonMark(opts), nil
	default:
		return nil, fmt.Errorf("unknown markdown renderer: %s", name)
	}
}

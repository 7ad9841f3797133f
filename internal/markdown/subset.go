package markdown

import (
	"fmt"
	"html"
	"html/template"
	"regexp"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Subset formats the restricted markdown dialect of the chat page. Rules run in a fixed order, each one
// a single global substitution over the output of the previous rule:
//
//	headings (###, ##, #), bold, italic, fenced code, inline code, images, links, tables, line breaks
//
// Fenced code bodies are lifted out before the inline rules run and put back at the end, so their text
// reaches the page verbatim. Link targets and image alt text never span a fence. With Options.Unsafe the rules instead run exactly as the page originally
// ran them: fences in place, links before images, no escaping and no sanitizing.
type Subset struct {
	opts   Options
	policy *bluemonday.Policy
}

type rule struct {
	name string
	re   *regexp.Regexp
	repl func(re *regexp.Regexp, s string) string
}

const (
	h3Markup     = `<h3 class="font-bold text-lg mt-2">$1</h3>`
	h2Markup     = `<h2 class="font-bold text-xl mt-3">$1</h2>`
	h1Markup     = `<h1 class="font-bold text-2xl mt-4">$1</h1>`
	preClass     = "bg-gray-900 p-2 rounded text-sm overflow-x-auto"
	codeMarkup   = `<code class="bg-gray-800 p-1 rounded">$1</code>`
	linkMarkup   = `<a href="$2" target="_blank" class="text-blue-400 underline">$1</a>`
	imageMarkup  = `<img src="$2" alt="$1" class="rounded max-w-full my-2" />`
	tableClass   = "table-auto border-collapse border border-gray-700 my-2"
	cellClass    = "border px-2 py-1"
	placeholderS = "\x00F"
	placeholderE = "\x00"
)

var (
	h3Re      = regexp.MustCompile(`(?im)^### (.*$)`)
	h2Re      = regexp.MustCompile(`(?im)^## (.*$)`)
	h1Re      = regexp.MustCompile(`(?im)^# (.*$)`)
	boldRe    = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicRe  = regexp.MustCompile(`\*(.*?)\*`)
	fenceRe   = regexp.MustCompile("```([\\s\\S]*?)```")
	codeRe    = regexp.MustCompile("`([^`]+)`")
	linkRe    = regexp.MustCompile(`\[([^\]]+)\]\(([^)\x00]+)\)`)
	imageRe   = regexp.MustCompile(`!\[([^\]\x00]*)\]\(([^)\x00]+)\)`)
	tableRe   = regexp.MustCompile(`(?im)^\|(.+)\|\n\|([-:\s|]+)\|\n((\|.*\|\n)*)`)
	newlineRe = regexp.MustCompile(`\n`)
	langRe    = regexp.MustCompile(`^([\w+#.-]+)\n`)
	restoreRe = regexp.MustCompile(`\x00F(\d+)\x00`)
)

// NewSubset creates a Subset formatter with the given options.
func NewSubset(opts Options) Subset {
	return Subset{
		opts:   opts,
		policy: subsetPolicy(),
	}
}

// Render formats text and returns it as trusted HTML. Unless Options.Unsafe is set the result has been
// through the sanitizer, so it is safe to embed as is.
func (s Subset) Render(text string) template.HTML {
	return template.HTML(s.Format(text))
}

// Format applies the rule pipeline to text and returns the HTML fragment as a string.
func (s Subset) Format(text string) string {
	if text == "" {
		return ""
	}
	if s.opts.Unsafe {
		return s.run(text, unsafeRules())
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, placeholderE, "")
	if !s.opts.AllowRawHTML {
		text = html.EscapeString(text)
	}

	// Tables only match rows ending in a newline, so a table on the last line needs one.
	addedNewline := !strings.HasSuffix(text, "\n")
	if addedNewline {
		text += "\n"
	}

	var fences []string
	text = fenceRe.ReplaceAllStringFunc(text, func(match string) string {
		body := fenceRe.FindStringSubmatch(match)[1]
		if s.opts.AllowRawHTML {
			body = html.EscapeString(body)
		}
		fences = append(fences, fencedBlock(body))
		return placeholderS + strconv.Itoa(len(fences)-1) + placeholderE
	})

	out := s.run(text, safeRules())
	if addedNewline {
		out = strings.TrimSuffix(out, "<br>")
	}

	out = restoreRe.ReplaceAllStringFunc(out, func(match string) string {
		i, err := strconv.Atoi(restoreRe.FindStringSubmatch(match)[1])
		if err != nil || i >= len(fences) {
			return ""
		}
		return fences[i]
	})

	return s.policy.Sanitize(out)
}

func (s Subset) run(text string, rules []rule) string {
	for _, r := range rules {
		text = r.repl(r.re, text)
	}
	return text
}

func replaceWith(markup string) func(*regexp.Regexp, string) string {
	return func(re *regexp.Regexp, s string) string {
		return re.ReplaceAllString(s, markup)
	}
}

func headingRules() []rule {
	return []rule{
		{name: "h3", re: h3Re, repl: replaceWith(h3Markup)},
		{name: "h2", re: h2Re, repl: replaceWith(h2Markup)},
		{name: "h1", re: h1Re, repl: replaceWith(h1Markup)},
		{name: "bold", re: boldRe, repl: replaceWith(`<strong>$1</strong>`)},
		{name: "italic", re: italicRe, repl: replaceWith(`<em>$1</em>`)},
	}
}

func safeRules() []rule {
	rules := headingRules()
	return append(rules,
		rule{name: "code", re: codeRe, repl: replaceWith(codeMarkup)},
		rule{name: "image", re: imageRe, repl: replaceWith(imageMarkup)},
		rule{name: "link", re: linkRe, repl: replaceWith(linkMarkup)},
		rule{name: "table", re: tableRe, repl: replaceTables(true)},
		rule{name: "br", re: newlineRe, repl: replaceWith("<br>")},
	)
}

func unsafeRules() []rule {
	rules := headingRules()
	return append(rules,
		rule{name: "fence", re: fenceRe, repl: replaceWith(`<pre class="` + preClass + `"><code>$1</code></pre>`)},
		rule{name: "code", re: codeRe, repl: replaceWith(codeMarkup)},
		rule{name: "link", re: linkRe, repl: replaceWith(linkMarkup)},
		rule{name: "image", re: imageRe, repl: replaceWith(imageMarkup)},
		rule{name: "table", re: tableRe, repl: replaceTables(false)},
		rule{name: "br", re: newlineRe, repl: replaceWith("<br>")},
	)
}

func fencedBlock(body string) string {
	code := "<code>"
	if m := langRe.FindStringSubmatch(body); m != nil {
		code = fmt.Sprintf(`<code class="language-%s">`, m[1])
		body = body[len(m[0]):]
	}
	return `<pre class="` + preClass + `">` + code + body + `</code></pre>`
}

// replaceTables renders pipe tables. With trimRows the outer pipes of body rows are dropped before
// splitting, so rows don't gain empty first and last cells, and blank rows are skipped.
func replaceTables(trimRows bool) func(*regexp.Regexp, string) string {
	return func(re *regexp.Regexp, s string) string {
		return re.ReplaceAllStringFunc(s, func(match string) string {
			m := re.FindStringSubmatch(match)
			header, rows := m[1], m[3]

			var sb strings.Builder
			sb.WriteString(`<table class="` + tableClass + `"><thead><tr>`)
			for _, h := range strings.Split(header, "|") {
				sb.WriteString(`<th class="` + cellClass + `">` + strings.TrimSpace(h) + `</th>`)
			}
			sb.WriteString(`</tr></thead><tbody>`)
			for _, row := range strings.Split(strings.TrimSpace(rows), "\n") {
				if trimRows {
					row = strings.TrimSpace(row)
					if row == "" {
						continue
					}
					row = strings.TrimSuffix(strings.TrimPrefix(row, "|"), "|")
				}
				sb.WriteString(`<tr>`)
				for _, c := range strings.Split(row, "|") {
					sb.WriteString(`<td class="` + cellClass + `">` + strings.TrimSpace(c) + `</td>`)
				}
				sb.WriteString(`</tr>`)
			}
			sb.WriteString(`</tbody></table>`)
			return sb.String()
		})
	}
}

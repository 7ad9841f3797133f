package markdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ruleNames(rules []rule) []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.name
	}
	return names
}

func TestRuleOrder(t *testing.T) {
	assert.Equal(t,
		[]string{"h3", "h2", "h1", "bold", "italic", "code", "image", "link", "table", "br"},
		ruleNames(safeRules()))
	assert.Equal(t,
		[]string{"h3", "h2", "h1", "bold", "italic", "fence", "code", "link", "image", "table", "br"},
		ruleNames(unsafeRules()))
}

func TestSubsetFormat(t *testing.T) {
	s := NewSubset(Options{})

	tests := []struct {
		name  string
		input string
		want  []string
		not   []string
	}{
		{
			name:  "bold",
			input: "**x**",
			want:  []string{"<strong>x</strong>"},
		},
		{
			name:  "italic",
			input: "an *emphasised* word",
			want:  []string{"an <em>emphasised</em> word"},
		},
		{
			name:  "heading levels",
			input: "# One\n## Two\n### Three",
			want: []string{
				`<h1 class="font-bold text-2xl mt-4">One</h1>`,
				`<h2 class="font-bold text-xl mt-3">Two</h2>`,
				`<h3 class="font-bold text-lg mt-2">Three</h3>`,
			},
		},
		{
			name:  "heading only at line start",
			input: "not # a heading",
			want:  []string{"not # a heading"},
			not:   []string{"<h1"},
		},
		{
			name:  "inline code",
			input: "run `ls -la` now",
			want:  []string{`<code class="bg-gray-800 p-1 rounded">ls -la</code>`},
		},
		{
			name:  "link",
			input: "see [docs](https://example.com/docs)",
			want: []string{
				`href="https://example.com/docs"`,
				`target="_blank"`,
				`class="text-blue-400 underline"`,
				`>docs</a>`,
			},
		},
		{
			name:  "image is not turned into a link",
			input: "![cat](https://example.com/cat.png)",
			want:  []string{`<img src="https://example.com/cat.png" alt="cat" class="rounded max-w-full my-2"`},
			not:   []string{"<a ", "!"},
		},
		{
			name:  "line breaks",
			input: "one\ntwo",
			want:  []string{"one<br>two"},
		},
		{
			name:  "no trailing break for final line",
			input: "one",
			not:   []string{"<br>"},
		},
		{
			name:  "unterminated inline code stays literal",
			input: "`open",
			want:  []string{"`open"},
			not:   []string{"<code"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Format(tt.input)
			for _, w := range tt.want {
				assert.Contains(t, got, w)
			}
			for _, n := range tt.not {
				assert.NotContains(t, got, n)
			}
		})
	}
}

func TestSubsetFencedBlockIsVerbatim(t *testing.T) {
	s := NewSubset(Options{})

	got := s.Format("before\n```\nfoo **bar** *baz*\n# not a heading\n```\nafter")

	assert.Contains(t, got, `<pre class="bg-gray-900 p-2 rounded text-sm overflow-x-auto"><code>`)
	assert.Contains(t, got, "\nfoo **bar** *baz*\n# not a heading\n</code></pre>")
	assert.NotContains(t, got, "<strong>")
	assert.NotContains(t, got, "<h1")
	assert.True(t, strings.HasPrefix(got, "before<br>"))
	assert.True(t, strings.HasSuffix(got, "<br>after"))
}

func TestSubsetFencedBlockLanguage(t *testing.T) {
	s := NewSubset(Options{})

	got := s.Format("```go\nfmt.Println(1)\n```")

	assert.Contains(t, got, `<code class="language-go">fmt.Println(1)`+"\n</code>")
}

func TestSubsetFencedBlockLanguageWithSymbols(t *testing.T) {
	s := NewSubset(Options{})

	for _, lang := range []string{"c++", "c#", "objective-c", "vb.net"} {
		got := s.Format("```" + lang + "\nx\n```")
		assert.Contains(t, got, `<code class="language-`+lang+`">x`+"\n</code>", lang)
	}
}

func TestSubsetFenceInsideLinkTarget(t *testing.T) {
	s := NewSubset(Options{})

	got := s.Format("[x](```a```)")

	assert.Equal(t, `[x](<pre class="bg-gray-900 p-2 rounded text-sm overflow-x-auto"><code>a</code></pre>)`, got)
	assert.NotContains(t, got, "target")

	got = s.Format("![```a```](pic.png)")

	assert.NotContains(t, got, "<img")
	assert.Contains(t, got, "<code>a</code></pre>")
}

func TestSubsetCRLF(t *testing.T) {
	s := NewSubset(Options{})

	got := s.Format("# H\r\nline")
	assert.Equal(t, `<h1 class="font-bold text-2xl mt-4">H</h1><br>line`, got)

	got = s.Format("| Name | Age |\r\n|------|-----|\r\n| Ann | 31 |\r\n")
	assert.Contains(t, got, `<tr><td class="border px-2 py-1">Ann</td><td class="border px-2 py-1">31</td></tr>`)
	assert.NotContains(t, got, "\r")
}

func TestSubsetTable(t *testing.T) {
	s := NewSubset(Options{})

	got := s.Format("| Name | Age |\n|------|-----|\n| Ann | 31 |\n| Bob | 42 |")

	require.Contains(t, got, `<table class="table-auto border-collapse border border-gray-700 my-2">`)
	assert.Contains(t, got, `<thead><tr><th class="border px-2 py-1">Name</th><th class="border px-2 py-1">Age</th></tr></thead>`)
	assert.Contains(t, got, `<tr><td class="border px-2 py-1">Ann</td><td class="border px-2 py-1">31</td></tr>`)
	assert.Contains(t, got, `<tr><td class="border px-2 py-1">Bob</td><td class="border px-2 py-1">42</td></tr>`)
	assert.NotContains(t, got, `<td class="border px-2 py-1"></td>`)
}

func TestSubsetTableNeedsDivider(t *testing.T) {
	s := NewSubset(Options{})

	got := s.Format("| a | b |\n| c | d |\n")

	assert.NotContains(t, got, "<table")
}

func TestSubsetEscapesRawHTML(t *testing.T) {
	s := NewSubset(Options{})

	got := s.Format(`<script>alert(1)</script> <b>hi</b>`)

	assert.NotContains(t, got, "<script>")
	assert.NotContains(t, got, "<b>")
	assert.Contains(t, got, "&lt;script&gt;")
}

func TestSubsetDropsDangerousURLs(t *testing.T) {
	s := NewSubset(Options{})

	got := s.Format("[click](javascript:alert(1)) ![x](javascript:alert(2))")

	assert.NotContains(t, got, "javascript:")
}

func TestSubsetAllowRawHTML(t *testing.T) {
	s := NewSubset(Options{AllowRawHTML: true})

	got := s.Format("<em>kept</em><script>alert(1)</script>\n```\n<div>code</div>\n```")

	assert.Contains(t, got, "<em>kept</em>")
	assert.NotContains(t, got, "<script>")
	assert.Contains(t, got, "&lt;div&gt;code&lt;/div&gt;")
}

func TestSubsetUnsafeMatchesLegacyOutput(t *testing.T) {
	s := NewSubset(Options{Unsafe: true})

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "raw html passes through",
			input: "<b>x</b>",
			want:  "<b>x</b>",
		},
		{
			name:  "image rendered as link",
			input: "![a](u)",
			want:  `!<a href="u" target="_blank" class="text-blue-400 underline">a</a>`,
		},
		{
			name:  "fence content is formatted and broken",
			input: "```\n**b**\n```",
			want:  `<pre class="bg-gray-900 p-2 rounded text-sm overflow-x-auto"><code><br><strong>b</strong><br></code></pre>`,
		},
		{
			name:  "table rows keep outer cells",
			input: "|h|\n|-|\n|c|\n",
			want:  `<table class="table-auto border-collapse border border-gray-700 my-2"><thead><tr><th class="border px-2 py-1">h</th></tr></thead><tbody><tr><td class="border px-2 py-1"></td><td class="border px-2 py-1">c</td><td class="border px-2 py-1"></td></tr></tbody></table>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Format(tt.input))
		})
	}
}

func TestSubsetEmpty(t *testing.T) {
	assert.Empty(t, NewSubset(Options{}).Format(""))
	assert.Empty(t, string(NewSubset(Options{}).Render("")))
}

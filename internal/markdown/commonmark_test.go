package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	r, err := New("", Options{})
	require.NoError(t, err)
	assert.IsType(t, Subset{}, r)

	r, err = New(EngineCommonMark, Options{})
	require.NoError(t, err)
	assert.IsType(t, CommonMark{}, r)

	_, err = New("wiki", Options{})
	assert.Error(t, err)
}

func TestCommonMarkRender(t *testing.T) {
	c := NewCommonMark(Options{})

	got := string(c.Render("# Title\n\nSome **bold** text.\n\n- one\n- two\n\n<script>alert(1)</script>"))

	assert.Contains(t, got, "<h1>Title</h1>")
	assert.Contains(t, got, "<strong>bold</strong>")
	assert.Contains(t, got, "<li>one</li>")
	assert.NotContains(t, got, "<script>")
}

func TestCommonMarkHighlightsCode(t *testing.T) {
	c := NewCommonMark(Options{})

	got := string(c.Render("```go\nfunc main() {}\n```"))

	assert.Contains(t, got, "<pre")
	assert.Contains(t, got, "<span")
	assert.Contains(t, got, "main")
}

func TestCommonMarkHardWraps(t *testing.T) {
	c := NewCommonMark(Options{})

	got := string(c.Render("first\nsecond"))

	assert.Contains(t, got, "first<br>")
	assert.Contains(t, got, "second")
}

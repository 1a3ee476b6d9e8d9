package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderBasics(t *testing.T) {
	html := Render("# Heading\n\nSome **bold** text and `code`.")
	assert.Contains(t, html, "<h1>Heading</h1>")
	assert.Contains(t, html, "<strong>bold</strong>")
	assert.Contains(t, html, "<code>code</code>")
}

func TestRenderStripsScript(t *testing.T) {
	html := Render("hello <script>alert(1)</script> world")
	assert.NotContains(t, html, "<script>")
	assert.NotContains(t, html, "alert(1)")
	assert.Contains(t, html, "hello")
}

func TestRenderStripsInlineHandlers(t *testing.T) {
	html := Render(`<img src="x.png" onerror="alert(1)" alt="x">`)
	assert.NotContains(t, html, "onerror")
}

func TestRenderGFMTable(t *testing.T) {
	html := Render("| a | b |\n|---|---|\n| 1 | 2 |")
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "<td>1</td>")
}

func TestRenderLinksHardened(t *testing.T) {
	html := Render("[site](https://example.com)")
	assert.Contains(t, html, `href="https://example.com"`)
	assert.Contains(t, html, "nofollow")
}

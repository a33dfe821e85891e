// internal/document/document_test.go
package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title>  Sample Page </title>
  <meta name="author" content="Jane Doe">
  <meta property="og:title" content="OG Title">
  <meta itemprop="keywords" content="a, b">
  <link rel="stylesheet" href="/css/site.css">
  <link rel="apple-touch-icon" href="/touch.png">
</head>
<body>
  <img src="/a.png">
  <img data-original="/lazy.png">
  <div style="background-image: url('/bg.png'); color: red">Hello</div>
</body>
</html>`

func TestGoqueryParser_Query(t *testing.T) {
	doc, err := NewParser().Parse(samplePage)
	require.NoError(t, err)

	imgs := doc.Query("img")
	require.Len(t, imgs, 2)
	src, ok := imgs[0].Attribute("src")
	assert.True(t, ok)
	assert.Equal(t, "/a.png", src)

	_, ok = imgs[1].Attribute("src")
	assert.False(t, ok)
	lazy, ok := imgs[1].Attribute("data-original")
	assert.True(t, ok)
	assert.Equal(t, "/lazy.png", lazy)

	assert.Empty(t, doc.Query("iframe"))
}

func TestGoqueryParser_FirstAndText(t *testing.T) {
	doc, err := NewParser().Parse(samplePage)
	require.NoError(t, err)

	title := doc.First("title")
	require.NotNil(t, title)
	assert.Equal(t, "  Sample Page ", title.TextContent())

	assert.Nil(t, doc.First("video"))
}

func TestGoqueryParser_MetaContent(t *testing.T) {
	doc, err := NewParser().Parse(samplePage)
	require.NoError(t, err)

	author, ok := doc.MetaContent("author")
	assert.True(t, ok)
	assert.Equal(t, "Jane Doe", author)

	og, ok := doc.MetaContent("og:title")
	assert.True(t, ok)
	assert.Equal(t, "OG Title", og)

	keywords, ok := doc.MetaContent("keywords")
	assert.True(t, ok)
	assert.Equal(t, "a, b", keywords)

	_, ok = doc.MetaContent("description")
	assert.False(t, ok)
}

func TestGoqueryParser_InlineStyle(t *testing.T) {
	doc, err := NewParser().Parse(samplePage)
	require.NoError(t, err)

	divs := doc.Query("div[style]")
	require.Len(t, divs, 1)
	style := divs[0].InlineStyle()
	assert.Equal(t, "url('/bg.png')", style["background-image"])
	assert.Equal(t, "red", style["color"])

	imgs := doc.Query("img")
	assert.Empty(t, imgs[0].InlineStyle())
}

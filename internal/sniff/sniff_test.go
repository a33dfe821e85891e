// internal/sniff/sniff_test.go
package sniff

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected FileType
	}{
		{"PDF", []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n"), PDF},
		{"PNG", append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, 0, 0, 0, 0x0d), PNG},
		{"JPEG with trailing EOI", []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0xff, 0xd9}, JPEG},
		{"JPEG missing EOI", []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x00}, Unknown},
		{"GIF87a", []byte("GIF87a\x01\x00\x01\x00"), GIF},
		{"GIF89a", []byte("GIF89a\x01\x00\x01\x00"), GIF},
		{"ZIP local header", []byte("PK\x03\x04\x14\x00\x00\x00"), ZIP},
		{"ZIP central directory", []byte("PK\x01\x02\x14\x00\x00\x00"), ZIP},
		{"LZF tag", []byte("bvx2\x00\x00\x00\x00"), LZF},
		{"HTML", []byte("<!doctype html><html></html>"), Unknown},
		{"Exactly 8 bytes unknown", []byte("abcdefgh"), Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.input))
		})
	}
}

// Short buffers must never index past their end.
func TestClassify_ShortBuffers(t *testing.T) {
	for _, input := range [][]byte{nil, {}, {0xff, 0xd8, 0xd9}, []byte("%PD"), []byte("GIF89a\x01")} {
		assert.NotPanics(t, func() {
			assert.Equal(t, Unknown, Classify(input))
		})
	}
}

func TestFileTypeHelpers(t *testing.T) {
	assert.True(t, PDF.IsDocument())
	assert.True(t, PNG.IsDocument())
	assert.True(t, JPEG.IsDocument())
	assert.False(t, GIF.IsDocument())
	assert.False(t, Unknown.IsDocument())

	assert.True(t, GIF.IsImage())
	assert.False(t, PDF.IsImage())

	assert.Equal(t, "application/pdf", PDF.MIMEType())
	assert.Equal(t, "image/png", PNG.MIMEType())
	assert.Equal(t, "application/octet-stream", Unknown.MIMEType())
}

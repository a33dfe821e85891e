// internal/sniff/sniff.go
package sniff

// FileType identifies a binary payload family recognized by its magic bytes.
type FileType string

const (
	Unknown FileType = "*"
	GIF     FileType = "gif"
	PNG     FileType = "png"
	JPEG    FileType = "jpeg"
	ZIP     FileType = "zip"
	LZF     FileType = "lzf"
	PDF     FileType = "pdf"
)

// minSniffLength is the shortest buffer we attempt to classify. Anything
// shorter is reported as Unknown without touching the fixed offsets below.
const minSniffLength = 8

var pngSignature = [8]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// Classify inspects fixed-offset magic bytes and reports the payload family.
// It never reads past the end of data.
func Classify(data []byte) FileType {
	if len(data) < minSniffLength {
		return Unknown
	}

	// ZIP local file header (PK\x03\x04) or central directory header (PK\x01\x02).
	if data[0] == 'P' && data[1] == 'K' {
		if (data[2] == 0x03 && data[3] == 0x04) || (data[2] == 0x01 && data[3] == 0x02) {
			return ZIP
		}
	}

	if string(data[:5]) == "%PDF-" {
		return PDF
	}

	// Compressed container tag ("bvx2").
	if string(data[:4]) == "bvx2" {
		return LZF
	}

	if [8]byte(data[:8]) == pngSignature {
		return PNG
	}

	// JPEG needs both the SOI marker at the start and EOI at the very end.
	n := len(data)
	if data[0] == 0xff && data[1] == 0xd8 && data[n-2] == 0xff && data[n-1] == 0xd9 {
		return JPEG
	}

	// GIF87a / GIF89a share the "GIF8" prefix.
	if string(data[:4]) == "GIF8" {
		return GIF
	}

	return Unknown
}

// IsDocument reports whether a root payload of this type stands on its own
// and should be archived verbatim rather than wrapped as HTML.
func (t FileType) IsDocument() bool {
	return t == PDF || t == JPEG || t == PNG
}

// IsImage reports whether the type is a raster image format.
func (t FileType) IsImage() bool {
	return t == PNG || t == JPEG || t == GIF
}

// MIMEType maps the file type to its canonical MIME type. Unknown types map
// to the generic binary type.
func (t FileType) MIMEType() string {
	switch t {
	case PDF:
		return "application/pdf"
	case PNG:
		return "image/png"
	case JPEG:
		return "image/jpeg"
	case GIF:
		return "image/gif"
	case ZIP:
		return "application/zip"
	case LZF:
		return "application/x-lzfse"
	default:
		return "application/octet-stream"
	}
}

func (t FileType) String() string { return string(t) }

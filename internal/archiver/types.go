// internal/archiver/types.go
package archiver

// ResourceType classifies how a resource was discovered.
type ResourceType int

const (
	TypeUnknown ResourceType = iota
	TypeImage
	TypeLink
	TypeFrame
	TypeStylesheet
	TypeVideo
	TypeScript
	TypeEmbed
	TypeThumbnail
)

// discoveryOrder is the order in which a frame extracts resource types. Inline
// style backgrounds and thumbnails are scanned afterward.
var discoveryOrder = []ResourceType{
	TypeImage,
	TypeLink,
	TypeStylesheet,
	TypeFrame,
	TypeScript,
	TypeEmbed,
	TypeVideo,
}

func (t ResourceType) String() string {
	switch t {
	case TypeImage:
		return "image"
	case TypeLink:
		return "link"
	case TypeFrame:
		return "frame"
	case TypeStylesheet:
		return "stylesheet"
	case TypeVideo:
		return "video"
	case TypeScript:
		return "script"
	case TypeEmbed:
		return "embed"
	case TypeThumbnail:
		return "thumbnail"
	default:
		return "unknown"
	}
}

// Tag is the element name queried for this type, or "" when the type is not
// found by tag.
func (t ResourceType) Tag() string {
	switch t {
	case TypeImage:
		return "img"
	case TypeLink:
		return "link"
	case TypeFrame:
		return "iframe"
	case TypeVideo:
		return "video"
	case TypeScript:
		return "script"
	case TypeEmbed:
		return "embed"
	default:
		return ""
	}
}

// sourceAttribute is the attribute holding the resource URL on Tag elements.
func (t ResourceType) sourceAttribute() string {
	if t == TypeLink {
		return "href"
	}
	return "src"
}

// DefaultMIMEType is used when a response does not declare a Content-Type.
func (t ResourceType) DefaultMIMEType() string {
	switch t {
	case TypeImage, TypeThumbnail:
		return "image/data"
	case TypeLink, TypeVideo:
		return "text/text"
	case TypeStylesheet:
		return "text/css"
	case TypeFrame, TypeEmbed:
		return "/"
	case TypeScript:
		return "text/javascript"
	default:
		return "data/data"
	}
}

// class maps a type to its dedup equivalence class. A URL reached both as a
// <link> and as a stylesheet is one resource.
func (t ResourceType) class() ResourceType {
	if t == TypeStylesheet {
		return TypeLink
	}
	return t
}

// SameIdentity reports whether two types dedup as one resource.
func (t ResourceType) SameIdentity(other ResourceType) bool {
	return t.class() == other.class()
}

// resourceKey is a resource's identity within a frame.
type resourceKey struct {
	url   string
	class ResourceType
}

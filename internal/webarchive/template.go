// internal/webarchive/template.go
package webarchive

import (
	"sync"

	"howett.net/plist"
)

// Slots locates the patchable objects inside a response template's $objects
// array. The layout is fixed by the renderer that replays the archive.
type Slots struct {
	URL      int
	Headers  int
	MIMEType int
}

// DefaultSlots is the slot table of DefaultTemplate and of templates captured
// from the renderer.
var DefaultSlots = Slots{URL: 3, Headers: 8, MIMEType: 50}

// minTemplateObjects is the smallest $objects array a usable template has.
const minTemplateObjects = 31

// templateHeaders are the header names pre-seeded into DefaultTemplate, in
// table order. Name i lives at object 9+2i and its value at 10+2i.
var templateHeaders = []string{
	"Content-Type",
	"Content-Length",
	"Content-Encoding",
	"Cache-Control",
	"Date",
	"Expires",
	"Last-Modified",
	"Etag",
	"Server",
	"Vary",
	"Access-Control-Allow-Origin",
	"Accept-Ranges",
	"Age",
	"Connection",
	"Keep-Alive",
	"Strict-Transport-Security",
	"X-Content-Type-Options",
	"Timing-Allow-Origin",
	"Via",
}

const (
	headerTableStart = 9
	classResponse    = 47
	classURL         = 48
	classDictionary  = 49
	timestampSlot    = 51
)

var (
	defaultTemplateOnce sync.Once
	defaultTemplate     []byte
	defaultTemplateErr  error
)

// DefaultTemplate returns the built-in response template as a binary keyed
// archive. Its layout follows DefaultSlots.
func DefaultTemplate() ([]byte, error) {
	defaultTemplateOnce.Do(func() {
		defaultTemplate, defaultTemplateErr = plist.Marshal(defaultTemplateArchive(), plist.BinaryFormat)
	})
	return defaultTemplate, defaultTemplateErr
}

func defaultTemplateArchive() map[string]interface{} {
	objects := make([]interface{}, 52)

	objects[0] = "$null"
	objects[1] = map[string]interface{}{
		"$class": plist.UID(classResponse),
		"$0":     uint64(8),
		"$1":     plist.UID(2),
		"$2":     plist.UID(DefaultSlots.MIMEType),
		"$3":     int64(-1),
		"$4":     plist.UID(6),
		"$5":     uint64(200),
		"$6":     plist.UID(DefaultSlots.Headers),
		"$7":     plist.UID(5),
		"$8":     plist.UID(timestampSlot),
		"$9":     plist.UID(4),
		"$10":    plist.UID(7),
	}
	objects[2] = map[string]interface{}{
		"$class":      plist.UID(classURL),
		"NS.base":     plist.UID(0),
		"NS.relative": plist.UID(DefaultSlots.URL),
	}
	objects[DefaultSlots.URL] = "http://localhost/"
	objects[4] = "HTTP/1.1"
	objects[5] = "index.html"
	objects[6] = "utf-8"
	objects[7] = "no error"

	keys := make([]interface{}, 0, len(templateHeaders))
	values := make([]interface{}, 0, len(templateHeaders))
	for i, name := range templateHeaders {
		k, v := headerTableStart+2*i, headerTableStart+2*i+1
		objects[k] = name
		objects[v] = ""
		keys = append(keys, plist.UID(k))
		values = append(values, plist.UID(v))
	}
	objects[DefaultSlots.Headers] = map[string]interface{}{
		"$class":     plist.UID(classDictionary),
		"NS.keys":    keys,
		"NS.objects": values,
	}

	objects[classResponse] = classDescriptor("NSHTTPURLResponse", "NSURLResponse", "NSObject")
	objects[classURL] = classDescriptor("NSURL", "NSObject")
	objects[classDictionary] = classDescriptor("NSMutableDictionary", "NSDictionary", "NSObject")
	objects[DefaultSlots.MIMEType] = "text/html"
	objects[timestampSlot] = float64(0)

	return map[string]interface{}{
		"$archiver": "NSKeyedArchiver",
		"$version":  uint64(100000),
		"$top":      map[string]interface{}{"WebResourceResponse": plist.UID(1)},
		"$objects":  objects,
	}
}

func classDescriptor(classes ...string) map[string]interface{} {
	list := make([]interface{}, len(classes))
	for i, c := range classes {
		list[i] = c
	}
	return map[string]interface{}{
		"$classname": classes[0],
		"$classes":   list,
	}
}

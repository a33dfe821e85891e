// internal/webarchive/response.go
package webarchive

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"
	"howett.net/plist"
)

// ResponseMeta is the part of a live response that is re-encoded into a
// resource's response record.
type ResponseMeta struct {
	URL        string
	MIMEType   string
	StatusCode int
	Header     http.Header
}

// ResponseCodec encodes response records by patching a keyed archive
// template. It is safe for concurrent use; the template is never mutated.
type ResponseCodec struct {
	template   []byte
	slots      Slots
	logger     *zap.Logger
	onFallback func(error)
}

// CodecOption configures a ResponseCodec.
type CodecOption func(*ResponseCodec)

// WithSlots overrides DefaultSlots for a custom template.
func WithSlots(s Slots) CodecOption {
	return func(c *ResponseCodec) { c.slots = s }
}

// WithFallbackHook registers fn to be called whenever Encode degrades to the
// plain encoding.
func WithFallbackHook(fn func(error)) CodecOption {
	return func(c *ResponseCodec) { c.onFallback = fn }
}

// NewResponseCodec creates a codec over template. A nil template selects
// DefaultTemplate.
func NewResponseCodec(template []byte, logger *zap.Logger, opts ...CodecOption) *ResponseCodec {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &ResponseCodec{template: template, slots: DefaultSlots, logger: logger.Named("response_codec")}
	for _, opt := range opts {
		opt(c)
	}
	if c.template == nil {
		var err error
		if c.template, err = DefaultTemplate(); err != nil {
			c.logger.Error("Built-in response template failed to encode.", zap.Error(err))
		}
	}
	return c
}

// Validate reports whether the codec's template can be patched.
func (c *ResponseCodec) Validate() error {
	_, _, err := openTemplate(c.template, c.slots)
	return err
}

// Encode returns the response record for meta. Template failures degrade to
// the plain encoding and are never fatal; nil is returned only if both fail.
func (c *ResponseCodec) Encode(meta ResponseMeta) []byte {
	data, err := EncodeTemplate(c.template, c.slots, meta)
	if err == nil {
		return data
	}

	c.logger.Warn("Response template unusable, using plain encoding.",
		zap.String("url", meta.URL), zap.Error(err))
	if c.onFallback != nil {
		c.onFallback(err)
	}

	data, err = EncodePlain(meta)
	if err != nil {
		c.logger.Error("Plain response encoding failed.", zap.String("url", meta.URL), zap.Error(err))
		return nil
	}
	return data
}

// EncodeTemplate patches a copy of template with meta. Headers already named
// in the template's header table reuse their slots; others are appended to
// the end of $objects so existing references stay valid. Template headers
// absent from meta are dropped from the table.
func EncodeTemplate(template []byte, slots Slots, meta ResponseMeta) ([]byte, error) {
	archive, objects, err := openTemplate(template, slots)
	if err != nil {
		return nil, err
	}
	table := objects[slots.Headers].(map[string]interface{})
	keys := table["NS.keys"].([]interface{})
	values := table["NS.objects"].([]interface{})

	known := make(map[string]int, len(keys))
	for i, k := range keys {
		name, _ := objects[k.(plist.UID)].(string)
		known[strings.ToLower(name)] = i
	}

	names := make([]string, 0, len(meta.Header))
	for name := range meta.Header {
		names = append(names, name)
	}
	sort.Strings(names)

	newKeys := make([]interface{}, 0, len(names))
	newValues := make([]interface{}, 0, len(names))
	for _, name := range names {
		value := strings.Join(meta.Header[name], ", ")
		if i, ok := known[strings.ToLower(name)]; ok {
			objects[values[i].(plist.UID)] = value
			newKeys = append(newKeys, keys[i])
			newValues = append(newValues, values[i])
			continue
		}
		objects = append(objects, name, value)
		newKeys = append(newKeys, plist.UID(len(objects)-2))
		newValues = append(newValues, plist.UID(len(objects)-1))
	}

	patched := make(map[string]interface{}, len(table))
	for k, v := range table {
		patched[k] = v
	}
	patched["NS.keys"] = newKeys
	patched["NS.objects"] = newValues
	objects[slots.Headers] = patched
	objects[slots.URL] = meta.URL
	objects[slots.MIMEType] = meta.MIMEType
	archive["$objects"] = objects

	data, err := plist.Marshal(archive, plist.BinaryFormat)
	if err != nil {
		return nil, &EncodingError{Slot: "archive", Err: err}
	}
	return data, nil
}

// openTemplate decodes template and checks every slot EncodeTemplate touches.
// The returned objects slice is a fresh copy.
func openTemplate(template []byte, slots Slots) (map[string]interface{}, []interface{}, error) {
	if len(template) == 0 {
		return nil, nil, slotError("archive", "empty template")
	}
	var archive map[string]interface{}
	if _, err := plist.Unmarshal(template, &archive); err != nil {
		return nil, nil, &EncodingError{Slot: "archive", Err: err}
	}

	raw, ok := archive["$objects"].([]interface{})
	if !ok || len(raw) < minTemplateObjects {
		return nil, nil, slotError("$objects", "expected at least %d objects", minTemplateObjects)
	}
	objects := make([]interface{}, len(raw))
	copy(objects, raw)

	inRange := func(i int) bool { return i > 0 && i < len(objects) }
	if !inRange(slots.URL) || !isString(objects[slots.URL]) {
		return nil, nil, slotError("url", "object %d is not a string", slots.URL)
	}
	if !inRange(slots.MIMEType) || !isString(objects[slots.MIMEType]) {
		return nil, nil, slotError("mime type", "object %d is not a string", slots.MIMEType)
	}
	if !inRange(slots.Headers) {
		return nil, nil, slotError("headers", "object %d out of range", slots.Headers)
	}
	table, ok := objects[slots.Headers].(map[string]interface{})
	if !ok {
		return nil, nil, slotError("headers", "object %d is not a dictionary", slots.Headers)
	}
	keys, okKeys := table["NS.keys"].([]interface{})
	values, okValues := table["NS.objects"].([]interface{})
	if !okKeys || !okValues || len(keys) != len(values) {
		return nil, nil, slotError("headers", "mismatched NS.keys/NS.objects")
	}
	for i := range keys {
		k, kok := keys[i].(plist.UID)
		v, vok := values[i].(plist.UID)
		if !kok || !vok || !inRange(int(k)) || !inRange(int(v)) {
			return nil, nil, slotError("headers", "entry %d does not reference $objects", i)
		}
	}
	return archive, objects, nil
}

func isString(v interface{}) bool {
	_, ok := v.(string)
	return ok
}

// plainResponse is the fallback response record: a flat dictionary with no
// object graph.
type plainResponse struct {
	URL        string            `plist:"URL"`
	MIMEType   string            `plist:"MIMEType"`
	StatusCode int               `plist:"StatusCode"`
	Headers    map[string]string `plist:"Headers"`
}

// EncodePlain encodes meta as a flat binary property list.
func EncodePlain(meta ResponseMeta) ([]byte, error) {
	headers := make(map[string]string, len(meta.Header))
	for name, vs := range meta.Header {
		headers[name] = strings.Join(vs, ", ")
	}
	data, err := plist.Marshal(plainResponse{
		URL:        meta.URL,
		MIMEType:   meta.MIMEType,
		StatusCode: meta.StatusCode,
		Headers:    headers,
	}, plist.BinaryFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode plain response record: %w", err)
	}
	return data, nil
}

// DecodeResponse reads a response record produced by either encoding.
func DecodeResponse(data []byte) (*ResponseMeta, error) {
	return DecodeResponseWithSlots(data, DefaultSlots)
}

// DecodeResponseWithSlots reads a response record whose template used slots.
func DecodeResponseWithSlots(data []byte, slots Slots) (*ResponseMeta, error) {
	if _, objects, err := openTemplate(data, slots); err == nil {
		meta := &ResponseMeta{
			URL:      objects[slots.URL].(string),
			MIMEType: objects[slots.MIMEType].(string),
			Header:   http.Header{},
		}
		table := objects[slots.Headers].(map[string]interface{})
		keys := table["NS.keys"].([]interface{})
		values := table["NS.objects"].([]interface{})
		for i := range keys {
			name, _ := objects[keys[i].(plist.UID)].(string)
			value, _ := objects[values[i].(plist.UID)].(string)
			meta.Header.Set(name, value)
		}
		return meta, nil
	}

	var plain plainResponse
	if _, err := plist.Unmarshal(data, &plain); err != nil {
		return nil, fmt.Errorf("failed to decode response record: %w", err)
	}
	meta := &ResponseMeta{
		URL:        plain.URL,
		MIMEType:   plain.MIMEType,
		StatusCode: plain.StatusCode,
		Header:     http.Header{},
	}
	for name, value := range plain.Headers {
		meta.Header.Set(name, value)
	}
	return meta, nil
}

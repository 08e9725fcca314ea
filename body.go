package fluent

import (
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"net/url"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
)

// BodyBuilder constructs request bodies as (content, content-type) pairs.
// A zero value is ready to use; Request.WithBody hands one to its builder
// callback.
type BodyBuilder struct{}

// Body is a shared builder for call sites that prefer fluent.Body.JSON(v)
// over declaring their own BodyBuilder.
var Body BodyBuilder

// FormURLEncoded builds an application/x-www-form-urlencoded body. Field
// order is preserved.
func (BodyBuilder) FormURLEncoded(fields [][2]string) RequestBody {
	var b bytes.Buffer
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(f[0]))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(f[1]))
	}
	return RequestBody{Content: b.Bytes(), ContentType: "application/x-www-form-urlencoded"}
}

// FormURLEncodedMap builds a form body from a map, in sorted key order via
// url.Values encoding.
func (BodyBuilder) FormURLEncodedMap(fields map[string]string) RequestBody {
	values := make(url.Values, len(fields))
	for k, v := range fields {
		values.Set(k, v)
	}
	return RequestBody{Content: []byte(values.Encode()), ContentType: "application/x-www-form-urlencoded"}
}

// JSON serializes a value to an application/json body.
func (BodyBuilder) JSON(v any) (RequestBody, error) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return RequestBody{}, fmt.Errorf("encode json body: %w", err)
	}
	return RequestBody{Content: data, ContentType: "application/json"}, nil
}

// RawJSON wraps an already-serialized JSON string without validation.
func (BodyBuilder) RawJSON(jsonString string) RequestBody {
	return RequestBody{Content: []byte(jsonString), ContentType: "application/json"}
}

// Raw wraps arbitrary bytes with an explicit content type.
func (BodyBuilder) Raw(content []byte, contentType string) RequestBody {
	return RequestBody{Content: content, ContentType: contentType}
}

// FileUpload builds a multipart/form-data body from files on disk, one part
// per path, field names "file", "file1", ... matching addition order.
func (b BodyBuilder) FileUpload(paths ...string) (RequestBody, error) {
	parts := make([]MultipartPart, 0, len(paths))
	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return RequestBody{}, fmt.Errorf("read upload file: %w", err)
		}
		name := "file"
		if i > 0 {
			name = fmt.Sprintf("file%d", i)
		}
		parts = append(parts, MultipartPart{
			Name:        name,
			Filename:    filepath.Base(path),
			ContentType: mimeTypeFor(path),
			Data:        data,
		})
	}
	return b.Multipart(parts)
}

// MultipartPart is one part of a multipart/form-data body.
type MultipartPart struct {
	Name        string
	Filename    string
	ContentType string
	Data        []byte
}

// Multipart assembles parts into a multipart/form-data body with a random
// boundary.
func (BodyBuilder) Multipart(parts []MultipartPart) (RequestBody, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, part := range parts {
		headers := make(map[string][]string, 2)
		disposition := fmt.Sprintf("form-data; name=%q", part.Name)
		if part.Filename != "" {
			disposition = fmt.Sprintf("form-data; name=%q; filename=%q", part.Name, part.Filename)
		}
		headers["Content-Disposition"] = []string{disposition}
		if part.ContentType != "" {
			headers["Content-Type"] = []string{part.ContentType}
		}

		pw, err := w.CreatePart(headers)
		if err != nil {
			return RequestBody{}, fmt.Errorf("create multipart part: %w", err)
		}
		if _, err := pw.Write(part.Data); err != nil {
			return RequestBody{}, fmt.Errorf("write multipart part: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return RequestBody{}, fmt.Errorf("finalize multipart body: %w", err)
	}

	return RequestBody{Content: buf.Bytes(), ContentType: w.FormDataContentType()}, nil
}

func mimeTypeFor(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/octet-stream"
}

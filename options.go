package apiclient

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"sort"
)

// xmlPayload тело, которое кодируется в XML при подготовке запроса.
type xmlPayload struct {
	v any
}

// multipartPayload поля multipart/form-data формы.
type multipartPayload struct {
	fields   map[string]string
	boundary string
}

// WithContentType sets the Content-Type header.
func WithContentType(contentType string) SpecOption {
	return WithHeader("Content-Type", contentType)
}

// WithBearerToken sets the Authorization header for this request only.
// Overrides the token from the client credential store.
func WithBearerToken(token string) SpecOption {
	return WithHeader(HeaderAuthorization, "Bearer "+token)
}

// WithIdempotencyKey sets the Idempotency-Key header.
func WithIdempotencyKey(key string) SpecOption {
	return WithHeader("Idempotency-Key", key)
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) SpecOption {
	return WithHeader("User-Agent", userAgent)
}

// WithAccept sets the Accept header.
func WithAccept(accept string) SpecOption {
	return WithHeader("Accept", accept)
}

// WithJSONBody sets the body to be JSON-encoded.
func WithJSONBody(v any) SpecOption {
	return func(s *RequestSpec) {
		s.Body = v
		WithContentType(DefaultContentType)(s)
	}
}

// WithFormBody sets the body as URL-encoded form data.
func WithFormBody(values url.Values) SpecOption {
	return func(s *RequestSpec) {
		s.Body = values
	}
}

// WithXMLBody sets the body to be XML-encoded.
// Ошибка кодирования возвращается из Execute как SetupError.
func WithXMLBody(v any) SpecOption {
	return func(s *RequestSpec) {
		s.Body = xmlPayload{v: v}
	}
}

// WithTextBody sets a plain text body.
func WithTextBody(text string) SpecOption {
	return func(s *RequestSpec) {
		s.Body = text
		WithContentType("text/plain; charset=utf-8")(s)
	}
}

// WithRawBody sets the body from the reader without setting Content-Type.
// Reader читается один раз; на повторах отправляются те же байты.
func WithRawBody(body io.Reader) SpecOption {
	return func(s *RequestSpec) {
		s.Body = body
	}
}

// WithMultipartFormData builds a multipart/form-data body from fields.
// Пустой boundary означает случайный.
func WithMultipartFormData(fields map[string]string, boundary string) SpecOption {
	return func(s *RequestSpec) {
		s.Body = multipartPayload{fields: fields, boundary: boundary}
	}
}

// encode кодирует XML тело
func (p xmlPayload) encode() (*encodedBody, error) {
	data, err := xml.Marshal(p.v)
	if err != nil {
		return nil, fmt.Errorf("marshal xml body: %w", err)
	}
	return &encodedBody{data: data, contentType: "application/xml"}, nil
}

// encode собирает multipart форму. Поля пишутся в отсортированном порядке.
func (p multipartPayload) encode() (*encodedBody, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if p.boundary != "" {
		if err := w.SetBoundary(p.boundary); err != nil {
			return nil, fmt.Errorf("multipart boundary: %w", err)
		}
	}

	keys := make([]string, 0, len(p.fields))
	for k := range p.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := w.WriteField(k, p.fields[k]); err != nil {
			return nil, fmt.Errorf("multipart field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("multipart close: %w", err)
	}
	return &encodedBody{data: buf.Bytes(), contentType: w.FormDataContentType()}, nil
}

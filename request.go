package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
)

// Request выполняет запрос и декодирует тело ответа в T.
// []byte и string возвращаются без декодирования, пустое тело и 204 дают нулевое значение.
func Request[T any](ctx context.Context, c *Client, spec RequestSpec) (T, error) {
	var out T

	resp, err := c.Execute(ctx, spec)
	if err != nil {
		return out, err
	}

	if err := decodeInto(resp, &out); err != nil {
		return out, &DecodeError{
			Method:     spec.method(),
			URL:        resp.URL,
			StatusCode: resp.StatusCode,
			Body:       resp.Body,
			Err:        err,
		}
	}
	return out, nil
}

// decodeInto раскладывает тело ответа в out
func decodeInto[T any](resp *Response, out *T) error {
	switch p := any(out).(type) {
	case *[]byte:
		*p = resp.Body
		return nil
	case *string:
		*p = string(resp.Body)
		return nil
	case *json.RawMessage:
		*p = json.RawMessage(resp.Body)
		return nil
	}

	if resp.StatusCode == http.StatusNoContent || len(resp.Body) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Body, out)
}

// Get выполняет GET запрос и декодирует ответ в T.
func Get[T any](ctx context.Context, c *Client, url string, opts ...SpecOption) (T, error) {
	return Request[T](ctx, c, NewRequestSpec(http.MethodGet, url, nil, opts...))
}

// Post выполняет POST запрос с телом body.
func Post[T any](ctx context.Context, c *Client, url string, body any, opts ...SpecOption) (T, error) {
	return Request[T](ctx, c, NewRequestSpec(http.MethodPost, url, body, opts...))
}

// Put выполняет PUT запрос с телом body.
func Put[T any](ctx context.Context, c *Client, url string, body any, opts ...SpecOption) (T, error) {
	return Request[T](ctx, c, NewRequestSpec(http.MethodPut, url, body, opts...))
}

// Patch выполняет PATCH запрос с телом body.
func Patch[T any](ctx context.Context, c *Client, url string, body any, opts ...SpecOption) (T, error) {
	return Request[T](ctx, c, NewRequestSpec(http.MethodPatch, url, body, opts...))
}

// Delete выполняет DELETE запрос.
func Delete[T any](ctx context.Context, c *Client, url string, opts ...SpecOption) (T, error) {
	return Request[T](ctx, c, NewRequestSpec(http.MethodDelete, url, nil, opts...))
}

// NewRequestSpec собирает спецификацию из метода, адреса, тела и опций.
// Опции применяются после тела, поэтому WithJSONBody и подобные перекрывают body.
func NewRequestSpec(method, url string, body any, opts ...SpecOption) RequestSpec {
	spec := RequestSpec{
		URL:    url,
		Method: method,
		Body:   body,
	}
	for _, opt := range opts {
		opt(&spec)
	}
	return spec
}

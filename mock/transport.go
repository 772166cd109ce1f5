// Package mock содержит управляемый транспорт и тестовые серверы
// для проверки клиента без реальной сети.
package mock

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"
)

// Step один заранее заданный результат обращения к транспорту.
type Step struct {
	Status int
	Header http.Header
	Body   []byte
	Err    error

	// Delay задержка перед ответом; прерывается контекстом запроса
	Delay time.Duration

	// Hang не отвечать, пока не отменён контекст запроса
	Hang bool
}

// Call запись об одном обращении к транспорту.
type Call struct {
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
	Started time.Time
}

// Transport реализует http.RoundTripper по сценарию из шагов.
// Шаги расходуются по порядку, после их окончания повторяется Default.
type Transport struct {
	mu      sync.Mutex
	steps   []Step
	byURL   map[string][]Step
	calls   []Call
	Default Step
}

// NewTransport создаёт транспорт со сценарием steps. По умолчанию отвечает 200 {}.
func NewTransport(steps ...Step) *Transport {
	return &Transport{
		steps:   steps,
		byURL:   make(map[string][]Step),
		Default: Respond(http.StatusOK, `{}`),
	}
}

// Respond шаг с ответом status и телом body.
func Respond(status int, body string) Step {
	return Step{
		Status: status,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   []byte(body),
	}
}

// Fail шаг с ошибкой транспорта.
func Fail(err error) Step {
	return Step{Err: err}
}

// Hang шаг, который ждёт отмены запроса.
func Hang() Step {
	return Step{Hang: true}
}

// After возвращает копию шага с задержкой d.
func (s Step) After(d time.Duration) Step {
	s.Delay = d
	return s
}

// Enqueue добавляет шаги в конец общего сценария.
func (t *Transport) Enqueue(steps ...Step) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, steps...)
}

// On задаёт сценарий для конкретного URL; имеет приоритет над общим.
func (t *Transport) On(url string, steps ...Step) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byURL[url] = append(t.byURL[url], steps...)
}

// RoundTrip реализует http.RoundTripper
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		req.Body.Close()
	}

	url := req.URL.String()

	t.mu.Lock()
	t.calls = append(t.calls, Call{
		Method:  req.Method,
		URL:     url,
		Header:  req.Header.Clone(),
		Body:    body,
		Started: time.Now(),
	})
	step := t.next(url)
	t.mu.Unlock()

	if err := wait(req.Context(), step); err != nil {
		return nil, err
	}
	if step.Err != nil {
		return nil, step.Err
	}

	header := step.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		StatusCode:    step.Status,
		Status:        http.StatusText(step.Status),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(step.Body)),
		ContentLength: int64(len(step.Body)),
		Request:       req,
	}, nil
}

// next выбирает шаг для url. Вызывается под мьютексом.
func (t *Transport) next(url string) Step {
	if steps := t.byURL[url]; len(steps) > 0 {
		t.byURL[url] = steps[1:]
		return steps[0]
	}
	if len(t.steps) > 0 {
		step := t.steps[0]
		t.steps = t.steps[1:]
		return step
	}
	return t.Default
}

// wait выдерживает задержку шага с учётом отмены запроса
func wait(ctx context.Context, step Step) error {
	if step.Hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if step.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(step.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Calls возвращает копию истории обращений
func (t *Transport) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Call, len(t.calls))
	copy(out, t.calls)
	return out
}

// CallCount возвращает число обращений к транспорту
func (t *Transport) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// StartTimes возвращает моменты начала обращений в порядке поступления
func (t *Transport) StartTimes() []time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]time.Time, len(t.calls))
	for i, c := range t.calls {
		out[i] = c.Started
	}
	return out
}

// Reset очищает сценарий и историю
func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = nil
	t.byURL = make(map[string][]Step)
	t.calls = nil
}

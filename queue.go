package apiclient

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Thunk отложенное выполнение запроса.
type Thunk func() (*Response, error)

// queueResult итог выполнения элемента очереди
type queueResult struct {
	resp *Response
	err  error
}

// queueEntry элемент очереди: thunk и канал для результата.
// Принадлежит очереди, пока его не заберёт цикл разбора.
type queueEntry struct {
	thunk Thunk
	done  chan queueResult
}

// RequestQueue FIFO очередь с единственным потребителем.
// Следующий элемент не начинается, пока не завершился предыдущий.
// Горутина разбора запускается лениво и завершается, когда очередь пуста.
type RequestQueue struct {
	mu       sync.Mutex
	entries  []*queueEntry
	draining bool
	logger   *zap.Logger
	metrics  *Metrics
}

// NewRequestQueue создаёт пустую очередь.
func NewRequestQueue(logger *zap.Logger, metrics *Metrics) *RequestQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewDisabledMetrics("")
	}
	return &RequestQueue{logger: logger, metrics: metrics}
}

// Enqueue ставит thunk в очередь и ждёт его результата.
// Отмена ctx прекращает ожидание, но сам элемент остаётся на своём месте
// и будет выполнен по очереди (thunk, использующий тот же ctx, завершится сразу).
func (q *RequestQueue) Enqueue(ctx context.Context, thunk Thunk) (*Response, error) {
	entry := &queueEntry{
		thunk: thunk,
		done:  make(chan queueResult, 1),
	}

	q.mu.Lock()
	q.entries = append(q.entries, entry)
	// Глубина публикуется под мьютексом, чтобы значения не перемешивались с drain
	q.metrics.SetQueueDepth(ctx, len(q.entries))
	startDrain := !q.draining
	if startDrain {
		q.draining = true
	}
	q.mu.Unlock()

	if startDrain {
		go q.drain()
	}

	select {
	case res := <-entry.done:
		return res.resp, res.err
	case <-ctx.Done():
		return nil, &CanceledError{Cause: ctx.Err()}
	}
}

// Len возвращает количество ожидающих элементов.
func (q *RequestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Draining сообщает, работает ли сейчас цикл разбора.
func (q *RequestQueue) Draining() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.draining
}

// drain выполняет элементы по одному до опустошения очереди.
func (q *RequestQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.entries) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}
		entry := q.entries[0]
		q.entries[0] = nil
		q.entries = q.entries[1:]
		q.metrics.SetQueueDepth(context.Background(), len(q.entries))
		q.mu.Unlock()

		resp, err := q.run(entry.thunk)
		entry.done <- queueResult{resp: resp, err: err}
	}
}

// run выполняет thunk; паника превращается в ошибку только этого элемента.
func (q *RequestQueue) run(thunk Thunk) (resp *Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("queued request panicked", zap.Any("panic", r))
			resp, err = nil, fmt.Errorf("queued request panicked: %v", r)
		}
	}()
	return thunk()
}

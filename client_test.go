package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"gitlab.citydrive.tech/back-end/go/pkg/api-client/mock"
)

// TestNew_Defaults проверяет конфигурацию по умолчанию
func TestNew_Defaults(t *testing.T) {
	t.Setenv(EnvBaseURL, "")

	client, err := New(Config{}, "")
	require.NoError(t, err)
	defer client.Close()

	cfg := client.GetConfig()
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultRateLimitPerSecond, cfg.RateLimitPerSecond)
	assert.Equal(t, DefaultContentType, cfg.Headers["Content-Type"])
	assert.Equal(t, "api-client", client.Name())
	assert.Equal(t, 10, client.Limiter().Capacity())
	assert.NotNil(t, client.Queue())
	assert.Nil(t, client.Credentials())
}

func TestNew_BaseURLFromEnv(t *testing.T) {
	t.Setenv(EnvBaseURL, "http://observatory.local/api")

	client, err := New(Config{}, "env")
	require.NoError(t, err)
	defer client.Close()
	assert.Equal(t, "http://observatory.local/api", client.GetConfig().BaseURL)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Config{RateLimitPerSecond: -1}, "bad")
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "RateLimitPerSecond", cfgErr.Field)

	_, err = New(Config{MetricsBackend: "statsd"}, "bad")
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Field, "MetricsBackend")
}

// TestExecute_Success базовый успешный запрос с разрешением URL и заголовками
func TestExecute_Success(t *testing.T) {
	transport := newMockTransport(mock.Respond(http.StatusOK, `{"id":1}`))
	client := newTestClient(t, transport, func(c *Config) {
		c.Headers = map[string]string{"x-client": "dashboard"}
		c.Credentials = StaticToken("tok")
	})

	resp, err := client.Execute(context.Background(), RequestSpec{
		URL:     "/devices/1?verbose=1",
		Headers: map[string]string{"X-Trace": "abc"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"id":1}`, string(resp.Body))
	assert.Equal(t, 1, resp.Attempts)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, "http://api.test/api/devices/1?verbose=1", resp.URL)

	calls := transport.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodGet, calls[0].Method)
	assert.Equal(t, "http://api.test/api/devices/1?verbose=1", calls[0].URL)
	assert.Equal(t, "dashboard", calls[0].Header.Get("X-Client"))
	assert.Equal(t, "abc", calls[0].Header.Get("X-Trace"))
	assert.Equal(t, "application/json", calls[0].Header.Get("Content-Type"))
	assert.Equal(t, "Bearer tok", calls[0].Header.Get(HeaderAuthorization))
	assert.Equal(t, resp.RequestID, calls[0].Header.Get(HeaderRequestID))
	assert.Equal(t, "1", calls[0].Header.Get(HeaderAttempt))
}

func TestExecute_AbsoluteURL(t *testing.T) {
	transport := newMockTransport()
	client := newTestClient(t, transport)

	_, err := client.Execute(context.Background(), RequestSpec{URL: "http://other.test/status"})
	require.NoError(t, err)
	assert.Equal(t, "http://other.test/status", transport.Calls()[0].URL)
}

// TestExecute_JSONBody тело кодируется один раз и отправляется на каждой попытке
func TestExecute_JSONBody(t *testing.T) {
	transport := newMockTransport(mock.Respond(500, `{}`), mock.Respond(201, `{}`))
	client := newTestClient(t, transport)

	resp, err := client.Execute(context.Background(), RequestSpec{
		URL:    "/devices",
		Method: http.MethodPost,
		Body:   map[string]any{"name": "mount"},
		Retry:  RetryPolicy{MaxRetries: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 201, resp.StatusCode)

	calls := transport.Calls()
	require.Len(t, calls, 2)
	for _, c := range calls {
		assert.JSONEq(t, `{"name":"mount"}`, string(c.Body))
	}
	// Один идентификатор на все попытки, номер попытки растёт
	assert.Equal(t, calls[0].Header.Get(HeaderRequestID), calls[1].Header.Get(HeaderRequestID))
	assert.Equal(t, "1", calls[0].Header.Get(HeaderAttempt))
	assert.Equal(t, "2", calls[1].Header.Get(HeaderAttempt))
}

// TestExecute_RetryBound при N повторах и постоянной ошибке ровно N+1 попыток,
// возвращается ошибка последней
func TestExecute_RetryBound(t *testing.T) {
	transport := newMockTransport(
		mock.Respond(500, `{"n":1}`),
		mock.Respond(502, `{"n":2}`),
		mock.Respond(503, `{"n":3}`),
		mock.Respond(504, `{"n":4}`),
	)
	client := newTestClient(t, transport)

	_, err := client.Execute(context.Background(), RequestSpec{
		URL:   "/flaky",
		Retry: RetryPolicy{MaxRetries: 3},
	})
	require.Error(t, err)
	assert.Equal(t, 4, transport.CallCount())

	var re *ResponseError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 504, re.StatusCode)
	assert.JSONEq(t, `{"n":4}`, string(re.Body))
}

// TestExecute_PredicateGating предикат false на первой ошибке - ровно одна попытка
func TestExecute_PredicateGating(t *testing.T) {
	transport := newMockTransport()
	transport.Default = mock.Respond(404, `{}`)
	client := newTestClient(t, transport)

	_, err := client.Execute(context.Background(), RequestSpec{
		URL: "/missing",
		Retry: RetryPolicy{
			MaxRetries:  5,
			ShouldRetry: RetryOnServerErrors,
		},
	})
	require.Error(t, err)
	assert.Equal(t, 404, StatusCode(err))
	assert.Equal(t, 1, transport.CallCount())
}

// TestExecute_RateLimitSpacing лимит 1/с, три параллельных запроса завершаются на ~0, ~1 и ~2 секунде
func TestExecute_RateLimitSpacing(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	transport := newMockTransport()
	client := newTestClient(t, transport, func(c *Config) { c.RateLimitPerSecond = 1 })

	start := time.Now()
	var (
		mu    sync.Mutex
		times []time.Duration
	)
	var g errgroup.Group
	for i := 0; i < 3; i++ {
		g.Go(func() error {
			_, err := client.Execute(context.Background(), RequestSpec{URL: "/ping"})
			mu.Lock()
			times = append(times, time.Since(start))
			mu.Unlock()
			return err
		})
	}
	require.NoError(t, g.Wait())

	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	require.Len(t, times, 3)
	assert.Less(t, times[0], 500*time.Millisecond)
	assert.GreaterOrEqual(t, times[1], 900*time.Millisecond)
	assert.Less(t, times[1], 1500*time.Millisecond)
	assert.GreaterOrEqual(t, times[2], 1900*time.Millisecond)
	assert.Less(t, times[2], 2600*time.Millisecond)
}

// TestExecute_QueueSerializesDispatch в очереди B не начинается, пока не завершился более медленный A
func TestExecute_QueueSerializesDispatch(t *testing.T) {
	transport := newMockTransport()
	transport.On("http://api.test/api/a", mock.Respond(200, `{"name":"a"}`).After(200*time.Millisecond))
	transport.On("http://api.test/api/b", mock.Respond(200, `{"name":"b"}`).After(50*time.Millisecond))
	client := newTestClient(t, transport)

	var (
		mu       sync.Mutex
		finished []string
	)
	record := func(name string) {
		mu.Lock()
		finished = append(finished, name)
		mu.Unlock()
	}

	var g errgroup.Group
	g.Go(func() error {
		_, err := client.Execute(context.Background(), RequestSpec{URL: "/a", UseQueue: true})
		record("a")
		return err
	})
	require.Eventually(t, func() bool { return transport.CallCount() == 1 }, time.Second, time.Millisecond)

	g.Go(func() error {
		_, err := client.Execute(context.Background(), RequestSpec{URL: "/b", UseQueue: true})
		record("b")
		return err
	})
	require.NoError(t, g.Wait())

	calls := transport.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "http://api.test/api/a", calls[0].URL)
	assert.Equal(t, "http://api.test/api/b", calls[1].URL)
	assert.GreaterOrEqual(t, calls[1].Started.Sub(calls[0].Started), 200*time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, finished)
	assert.Eventually(t, func() bool { return !client.Queue().Draining() }, time.Second, time.Millisecond)
}

// TestExecute_RetryThenSuccess две ошибки, затем успех; две паузы по 100мс
func TestExecute_RetryThenSuccess(t *testing.T) {
	transport := newMockTransport(
		mock.Fail(errors.New("connection reset by peer")),
		mock.Respond(503, `{}`),
		mock.Respond(200, `{"attempt":3}`),
	)
	client := newTestClient(t, transport)

	start := time.Now()
	resp, err := client.Execute(context.Background(), RequestSpec{
		URL:   "/telemetry",
		Retry: RetryPolicy{MaxRetries: 2, Delay: 100 * time.Millisecond},
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.JSONEq(t, `{"attempt":3}`, string(resp.Body))
	assert.Equal(t, 3, resp.Attempts)
	assert.Equal(t, 3, transport.CallCount())
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
}

// TestExecute_CancellationNeverRetried отмена не повторяется даже при retries=5
func TestExecute_CancellationNeverRetried(t *testing.T) {
	transport := newMockTransport(mock.Fail(context.Canceled))
	client := newTestClient(t, transport)

	_, err := client.Execute(context.Background(), RequestSpec{
		URL:   "/slew",
		Retry: RetryPolicy{MaxRetries: 5, ShouldRetry: func(error) bool { return true }},
	})
	require.Error(t, err)
	assert.True(t, IsCanceled(err))
	assert.Equal(t, 1, transport.CallCount())
}

// TestExecute_CallerCancelInFlight отмена вызывающим кодом во время попытки
func TestExecute_CallerCancelInFlight(t *testing.T) {
	transport := newMockTransport(mock.Hang())
	client := newTestClient(t, transport)

	source := NewCancelSource(context.Background())
	go func() {
		assert.Eventually(t, func() bool { return transport.CallCount() == 1 }, time.Second, time.Millisecond)
		source.Cancel("user aborted")
	}()

	_, err := client.Execute(source.Context(), RequestSpec{
		URL:   "/expose",
		Retry: RetryPolicy{MaxRetries: 5},
	})
	require.Error(t, err)
	assert.Equal(t, KindCanceled, Classify(err))
	assert.ErrorIs(t, err, ErrCanceled)
	assert.Equal(t, 1, transport.CallCount())
	assert.Equal(t, "user aborted", source.Reason())
}

// TestExecute_CancelDuringLimiterWait отмена прерывает ожидание токена
func TestExecute_CancelDuringLimiterWait(t *testing.T) {
	transport := newMockTransport()
	limiter, _ := newLimiterWithClock(1, 1)
	client := newTestClient(t, transport, func(c *Config) { c.RateLimiter = limiter })

	_, err := client.Execute(context.Background(), RequestSpec{URL: "/one"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = client.Execute(ctx, RequestSpec{URL: "/two", Retry: RetryPolicy{MaxRetries: 3}})
	require.Error(t, err)
	assert.True(t, IsCanceled(err))
	assert.Equal(t, 1, transport.CallCount())
}

// TestExecute_CancelDuringRetryDelay отмена во время паузы между попытками
func TestExecute_CancelDuringRetryDelay(t *testing.T) {
	transport := newMockTransport()
	transport.Default = mock.Respond(503, `{}`)
	client := newTestClient(t, transport)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		assert.Eventually(t, func() bool { return transport.CallCount() == 1 }, time.Second, time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := client.Execute(ctx, RequestSpec{
		URL:   "/dome",
		Retry: RetryPolicy{MaxRetries: 3, Delay: time.Hour},
	})
	require.Error(t, err)
	assert.True(t, IsCanceled(err))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1, transport.CallCount())
}

// TestExecute_AttemptTimeout таймаут попытки даёт NoResponseError и повторяется
func TestExecute_AttemptTimeout(t *testing.T) {
	transport := newMockTransport(mock.Hang(), mock.Respond(200, `{}`))
	client := newTestClient(t, transport)

	resp, err := client.Execute(context.Background(), RequestSpec{
		URL:     "/focus",
		Timeout: 30 * time.Millisecond,
		Retry:   RetryPolicy{MaxRetries: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Attempts)

	transport.Reset()
	transport.Enqueue(mock.Hang())
	_, err = client.Execute(context.Background(), RequestSpec{URL: "/focus", Timeout: 30 * time.Millisecond})
	require.Error(t, err)
	var nre *NoResponseError
	require.ErrorAs(t, err, &nre)
	assert.True(t, nre.Timedout())
	assert.Equal(t, 30*time.Millisecond, nre.Timeout)
}

// TestExecute_ValidationErrors ошибки валидации не доходят до транспорта
func TestExecute_ValidationErrors(t *testing.T) {
	type exposure struct {
		Seconds float64 `validate:"gt=0"`
	}

	transport := newMockTransport()
	client := newTestClient(t, transport)

	tests := []struct {
		name string
		spec RequestSpec
	}{
		{"empty url", RequestSpec{}},
		{"bad method", RequestSpec{URL: "/x", Method: "TRACE"}},
		{"negative timeout", RequestSpec{URL: "/x", Timeout: -time.Second}},
		{"too many tokens", RequestSpec{URL: "/x", RateLimitTokens: 11}},
		{"negative retries", RequestSpec{URL: "/x", Retry: RetryPolicy{MaxRetries: -1}}},
		{"payload", RequestSpec{URL: "/x", Validate: exposure{Seconds: 0}, Retry: RetryPolicy{MaxRetries: 3}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Execute(context.Background(), tt.spec)
			require.Error(t, err)
			assert.Equal(t, KindValidation, Classify(err))
		})
	}
	assert.Equal(t, 0, transport.CallCount())

	_, err := client.Execute(context.Background(), RequestSpec{URL: "/x", RateLimitTokens: 11})
	assert.ErrorIs(t, err, ErrTokensExceedCapacity)
}

// TestExecute_SetupError тело, которое нельзя закодировать
func TestExecute_SetupError(t *testing.T) {
	transport := newMockTransport()
	client := newTestClient(t, transport)

	_, err := client.Execute(context.Background(), RequestSpec{
		URL:    "/x",
		Method: http.MethodPost,
		Body:   map[string]any{"ch": make(chan int)},
		Retry:  RetryPolicy{MaxRetries: 3},
	})
	require.Error(t, err)
	assert.Equal(t, KindSetup, Classify(err))
	assert.Equal(t, 0, transport.CallCount())
}

// TestExecute_TokensPerAttempt каждая попытка тратит RateLimitTokens
func TestExecute_TokensPerAttempt(t *testing.T) {
	limiter, _ := newLimiterWithClock(10, 10)
	transport := newMockTransport(mock.Respond(500, `{}`), mock.Respond(200, `{}`))
	client := newTestClient(t, transport, func(c *Config) { c.RateLimiter = limiter })

	_, err := client.Execute(context.Background(), RequestSpec{
		URL:             "/x",
		RateLimitTokens: 3,
		Retry:           RetryPolicy{MaxRetries: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 4.0, limiter.Tokens())
}

// TestExecute_QueuedWithRetries очередь охватывает всю последовательность повторов
func TestExecute_QueuedWithRetries(t *testing.T) {
	transport := newMockTransport(mock.Respond(500, `{}`), mock.Respond(200, `{"first":true}`), mock.Respond(200, `{"second":true}`))
	client := newTestClient(t, transport)

	var g errgroup.Group
	var first, second *Response
	g.Go(func() error {
		var err error
		first, err = client.Execute(context.Background(), RequestSpec{
			URL:      "/first",
			UseQueue: true,
			Retry:    RetryPolicy{MaxRetries: 1, Delay: 50 * time.Millisecond},
		})
		return err
	})
	require.Eventually(t, func() bool { return transport.CallCount() == 1 }, time.Second, time.Millisecond)
	g.Go(func() error {
		var err error
		second, err = client.Execute(context.Background(), RequestSpec{URL: "/second", UseQueue: true})
		return err
	})
	require.NoError(t, g.Wait())

	assert.JSONEq(t, `{"first":true}`, string(first.Body))
	assert.JSONEq(t, `{"second":true}`, string(second.Body))
	calls := transport.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "http://api.test/api/first", calls[1].URL)
	assert.Equal(t, "http://api.test/api/second", calls[2].URL)
}

// TestExecute_CredentialsReadPerAttempt токен читается на каждой попытке
func TestExecute_CredentialsReadPerAttempt(t *testing.T) {
	store := NewMemoryCredentialStore("old")
	transport := newMockTransport(mock.Respond(401, `{}`), mock.Respond(200, `{}`))
	client := newTestClient(t, transport, func(c *Config) { c.Credentials = store })

	_, err := client.Execute(context.Background(), RequestSpec{
		URL: "/secure",
		Retry: RetryPolicy{MaxRetries: 1, ShouldRetry: func(err error) bool {
			if StatusCode(err) == http.StatusUnauthorized {
				store.SetToken("new")
				return true
			}
			return false
		}},
	})
	require.NoError(t, err)
	calls := transport.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "Bearer old", calls[0].Header.Get(HeaderAuthorization))
	assert.Equal(t, "Bearer new", calls[1].Header.Get(HeaderAuthorization))
	assert.Same(t, store, client.Credentials())
}

// TestExecute_UserMiddleware пользовательские перехватчики видят каждую попытку
func TestExecute_UserMiddleware(t *testing.T) {
	var seen atomic.Int32
	transport := newMockTransport(mock.Respond(500, `{}`), mock.Respond(200, `{}`))
	client := newTestClient(t, transport, func(c *Config) {
		c.Middlewares = []Middleware{MiddlewareFunc(func(req *http.Request, next func(*http.Request) (*http.Response, error)) (*http.Response, error) {
			seen.Add(1)
			req.Header.Set("X-Station", "north")
			return next(req)
		})}
	})

	_, err := client.Execute(context.Background(), RequestSpec{URL: "/x", Retry: RetryPolicy{MaxRetries: 1}})
	require.NoError(t, err)
	assert.Equal(t, int32(2), seen.Load())
	assert.Equal(t, "north", transport.Calls()[1].Header.Get("X-Station"))
}

// TestExecute_LogsClassifiedErrors ошибки логируются по категориям
func TestExecute_LogsClassifiedErrors(t *testing.T) {
	logger, logs := newObservedLogger()
	transport := newMockTransport(mock.Respond(500, `{"error":"ccd offline"}`), mock.Respond(200, `{}`))
	client := newTestClient(t, transport, withLogger(logger))

	_, err := client.Execute(context.Background(), RequestSpec{URL: "/ccd", Retry: RetryPolicy{MaxRetries: 1}})
	require.NoError(t, err)

	failed := logs.FilterMessage("HTTP request failed with response").All()
	require.Len(t, failed, 1)
	assert.Equal(t, `{"error":"ccd offline"}`, failed[0].ContextMap()["response_body"])
	assert.Equal(t, "test-client", failed[0].ContextMap()["client"])

	retrying := logs.FilterMessage("retrying request").All()
	require.Len(t, retrying, 1)
	assert.Equal(t, RetryReasonStatus, retrying[0].ContextMap()["reason"])

	assert.Len(t, logs.FilterMessage("HTTP request completed").All(), 1)

	// Ошибка валидации логируется вне цепочки
	_, err = client.Execute(context.Background(), RequestSpec{})
	require.Error(t, err)
	assert.Len(t, logs.FilterField(zapStringField("error_kind", string(KindValidation))).All(), 1)
}

// TestExecute_HTTPTestServer сквозной запрос через реальный HTTP сервер
func TestExecute_HTTPTestServer(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			mock.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "warming up"})
			return
		}
		assert.Equal(t, "/api/devices", r.URL.Path)
		mock.WriteJSON(w, http.StatusOK, []map[string]string{{"id": "cam-1"}})
	}))
	defer srv.Close()

	client := newTestClient(t, nil, func(c *Config) { c.BaseURL = srv.URL + "/api" })
	resp, err := client.Execute(context.Background(), RequestSpec{URL: "devices", Retry: RetryPolicy{MaxRetries: 1}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"cam-1"}]`, string(resp.Body))
	assert.Equal(t, int32(2), hits.Load())
}

// TestExecute_ConnectionRefused отсутствие сервера даёт NoResponseError
func TestExecute_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	client := newTestClient(t, nil, func(c *Config) { c.BaseURL = addr })
	_, err := client.Execute(context.Background(), RequestSpec{URL: "/x"})
	require.Error(t, err)
	assert.True(t, IsNoResponseError(err))
	assert.Equal(t, RetryReasonNetwork, retryReason(err))
}

// TestExecute_CanceledBeforeStartKeepsTokens отменённый заранее запрос не тратит токены
func TestExecute_CanceledBeforeStartKeepsTokens(t *testing.T) {
	transport := newMockTransport()
	limiter := NewPerSecondLimiter(1)
	client := newTestClient(t, transport, func(c *Config) { c.RateLimiter = limiter })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Execute(ctx, RequestSpec{URL: "/park", Retry: RetryPolicy{MaxRetries: 2}})
	require.Error(t, err)
	assert.Equal(t, KindCanceled, Classify(err))
	assert.Zero(t, transport.CallCount())
	assert.InDelta(t, 1.0, limiter.Tokens(), 0.01)
}

// TestExecute_AbandonedQueuedRequestsKeepTokens брошенные элементы очереди
// не забирают токены у следующих живых запросов
func TestExecute_AbandonedQueuedRequestsKeepTokens(t *testing.T) {
	transport := newMockTransport()
	transport.On("http://api.test/api/slew", mock.Respond(200, `{}`).After(150*time.Millisecond))
	// Часы не идут: токены не пополняются, а только расходуются
	limiter, _ := newLimiterWithClock(1, 3)
	client := newTestClient(t, transport, func(c *Config) { c.RateLimiter = limiter })

	var first errgroup.Group
	first.Go(func() error {
		_, err := client.Execute(context.Background(), RequestSpec{URL: "/slew", UseQueue: true})
		return err
	})
	require.Eventually(t, func() bool { return transport.CallCount() == 1 }, time.Second, time.Millisecond)

	abandonCtx, abandon := context.WithCancel(context.Background())
	var abandoned errgroup.Group
	for _, url := range []string{"/focus", "/filter"} {
		abandoned.Go(func() error {
			_, err := client.Execute(abandonCtx, RequestSpec{URL: url, UseQueue: true})
			if !IsCanceled(err) {
				return errors.New("expected canceled error")
			}
			return nil
		})
	}
	require.Eventually(t, func() bool { return client.Queue().Len() == 2 }, time.Second, time.Millisecond)
	abandon()
	require.NoError(t, abandoned.Wait())
	require.NoError(t, first.Wait())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	start := time.Now()
	_, err := client.Execute(ctx, RequestSpec{URL: "/expose", UseQueue: true})
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 2, transport.CallCount())
	assert.InDelta(t, 1.0, limiter.Tokens(), 1e-9)
}

// TestExecute_XRateLimiterDeadlineIsCanceled дедлайн вызывающего кода при внешнем
// лимитере классифицируется как отмена, а не как ошибка настройки
func TestExecute_XRateLimiterDeadlineIsCanceled(t *testing.T) {
	transport := newMockTransport()
	client := newTestClient(t, transport, func(c *Config) { c.RateLimiter = NewXRateLimiterPerSecond(1) })

	_, err := client.Execute(context.Background(), RequestSpec{URL: "/one"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = client.Execute(ctx, RequestSpec{URL: "/two", Retry: RetryPolicy{MaxRetries: 3}})
	require.Error(t, err)

	assert.Equal(t, KindCanceled, Classify(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	var ce *CanceledError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "http://api.test/api/two", ce.URL)
	assert.Equal(t, 1, transport.CallCount())
}

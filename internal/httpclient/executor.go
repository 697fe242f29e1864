package httpclient

import (
	"context"
	"io"
	"net/http"
	"time"
)

// maxBody bounds how much of a response is buffered.
const maxBody = 1 << 20

// Response captures the response details and duration.
type Response struct {
	Status   int
	Headers  http.Header
	Body     []byte
	Duration time.Duration
}

// Executor executes HTTP requests with timing.
type Executor struct {
	client  *http.Client
	timeout time.Duration
}

type ExecutorOption func(*Executor)

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = timeout }
}

// WithClient sets a custom HTTP client.
func WithClient(client *http.Client) ExecutorOption {
	return func(e *Executor) {
		if client != nil {
			e.client = client
		}
	}
}

func NewExecutor(opts ...ExecutorOption) *Executor {
	cfg := DefaultConfig()
	e := &Executor{client: New(cfg), timeout: cfg.Timeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do executes req and buffers the body. Non-2xx statuses are not errors.
func (e *Executor) Do(ctx context.Context, req *http.Request) (Response, error) {
	start := time.Now()
	cctx := ctx
	cancel := func() {}
	if e.timeout > 0 {
		cctx, cancel = context.WithTimeout(ctx, e.timeout)
	}
	defer cancel()

	resp, err := e.client.Do(req.WithContext(cctx))
	d := time.Since(start)
	if err != nil {
		return Response{Duration: d}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return Response{Status: resp.StatusCode, Duration: d}, err
	}
	return Response{
		Status:   resp.StatusCode,
		Headers:  resp.Header.Clone(),
		Body:     body,
		Duration: d,
	}, nil
}

package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestExecutorDo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Test", "1")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))
	t.Cleanup(srv.Close)

	e := NewExecutor(WithClient(srv.Client()))
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := e.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if resp.Status != http.StatusTeapot {
		t.Fatalf("status = %d", resp.Status)
	}
	if string(resp.Body) != "short and stout" || resp.Headers.Get("X-Test") != "1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestExecutorTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	e := NewExecutor(WithClient(srv.Client()), WithTimeout(50*time.Millisecond))
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	if _, err := e.Do(context.Background(), req); err == nil {
		t.Fatalf("expected timeout error")
	}
}

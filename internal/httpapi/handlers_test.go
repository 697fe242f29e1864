package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wadispatch/internal/broadcast"
	"wadispatch/internal/delivery"
	"wadispatch/internal/storage"
	"wadispatch/internal/strategy"
	"wadispatch/pkg/logx"
)

type fakeBroadcaster struct {
	err      error
	partial  broadcast.Result
	campaign string
	mt       strategy.MessageType
}

func (f *fakeBroadcaster) Run(_ context.Context, rs []broadcast.Recipient, mt strategy.MessageType, campaign string) (broadcast.Result, error) {
	f.campaign, f.mt = campaign, mt
	if f.err != nil {
		return f.partial, f.err
	}
	var res broadcast.Result
	for _, r := range rs {
		res.Total++
		res.Successful++
		res.PerRecipient = append(res.PerRecipient, broadcast.RecipientResult{Phone: r.Phone, Success: true})
	}
	return res, nil
}

type fakeJobs struct {
	err  error
	last broadcast.Request
	jobs map[string]broadcast.JobStatus
}

func (f *fakeJobs) NewJob(req broadcast.Request) (string, error) {
	f.last = req
	if f.err != nil {
		return "job-x", f.err
	}
	return "job-1", nil
}

func (f *fakeJobs) Status(id string) (broadcast.JobStatus, bool) {
	st, ok := f.jobs[id]
	return st, ok
}

func newTestHandler(t *testing.T, b Broadcaster, j Jobs) (*Handler, *delivery.Logger) {
	t.Helper()
	dl := delivery.NewLogger(storage.NewMemory(), logx.Nop())
	h := New(Options{
		Broadcasts:     b,
		Jobs:           j,
		Deliveries:     dl,
		NormalizePhone: func(s string) string { return "+" + s },
		MaxRecipients:  3,
		Health:         func() map[string]any { return map[string]any{"workers": 2} },
	})
	return h, dl
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateBroadcastSync(t *testing.T) {
	b := &fakeBroadcaster{}
	h, _ := newTestHandler(t, b, nil)
	rec := do(t, h.Router(), http.MethodPost, "/api/broadcasts", map[string]any{
		"campaign_name": "TestCampaign",
		"recipients":    []map[string]string{{"name": "Ann", "phone": "9876543210"}},
		"message":       map[string]string{"type": "custom_text", "body": "Hi"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var res broadcast.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Total != 1 || res.Successful != 1 || res.Failed != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if b.campaign != "TestCampaign" {
		t.Fatalf("campaign=%q", b.campaign)
	}
	if ct, ok := b.mt.(strategy.CustomText); !ok || ct.Body != "Hi" {
		t.Fatalf("message=%#v", b.mt)
	}
}

func TestCreateBroadcastErrors(t *testing.T) {
	valid := map[string]any{
		"campaign_name": "c",
		"recipients":    []map[string]string{{"name": "Ann", "phone": "1"}},
		"message":       map[string]string{"type": "template", "template_name": "welcome"},
	}
	cases := []struct {
		name string
		err  error
		body any
		want int
	}{
		{name: "malformed", body: "{", want: http.StatusBadRequest},
		{name: "unknown field", body: `{"campaign_name":"c","nope":1}`, want: http.StatusBadRequest},
		{name: "no campaign", body: map[string]any{"message": map[string]string{"type": "custom_text", "body": "x"}}, want: http.StatusBadRequest},
		{name: "bad message", body: map[string]any{"campaign_name": "c", "message": map[string]string{"type": "custom_text"}}, want: http.StatusBadRequest},
		{name: "too many", body: map[string]any{
			"campaign_name": "c",
			"recipients":    []map[string]string{{"phone": "1"}, {"phone": "2"}, {"phone": "3"}, {"phone": "4"}},
			"message":       map[string]string{"type": "custom_text", "body": "x"},
		}, want: http.StatusBadRequest},
		{name: "configuration", err: fmt.Errorf("%w: no token", broadcast.ErrConfiguration), body: valid, want: http.StatusServiceUnavailable},
		{name: "invalid input", err: fmt.Errorf("%w: empty", broadcast.ErrInvalidInput), body: valid, want: http.StatusBadRequest},
		{name: "internal", err: errors.New("boom"), body: valid, want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, _ := newTestHandler(t, &fakeBroadcaster{err: tc.err}, nil)
			rec := do(t, h.Router(), http.MethodPost, "/api/broadcasts", tc.body)
			if rec.Code != tc.want {
				t.Fatalf("status=%d want=%d body=%s", rec.Code, tc.want, rec.Body.String())
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == "" {
				t.Fatalf("expected error body, got %s", rec.Body.String())
			}
		})
	}
}

func TestCreateBroadcastCancelledReturnsPartial(t *testing.T) {
	partial := broadcast.Result{Total: 2, Successful: 1, Failed: 1, PerRecipient: []broadcast.RecipientResult{
		{Phone: "911", Success: true},
		{Phone: "922", Error: "broadcast cancelled"},
	}}
	h, _ := newTestHandler(t, &fakeBroadcaster{err: context.DeadlineExceeded, partial: partial}, nil)
	rec := do(t, h.Router(), http.MethodPost, "/api/broadcasts", map[string]any{
		"campaign_name": "c",
		"recipients":    []map[string]string{{"phone": "911"}, {"phone": "922"}},
		"message":       map[string]string{"type": "custom_text", "body": "x"},
	})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var body struct {
		Error  string           `json:"error"`
		Result broadcast.Result `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error == "" || body.Result.Total != 2 || body.Result.Successful != 1 || len(body.Result.PerRecipient) != 2 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestCreateBroadcastAsync(t *testing.T) {
	body := map[string]any{
		"campaign_name": "c",
		"recipients":    []map[string]string{{"name": "Ann", "phone": "1"}},
		"message":       map[string]string{"type": "ai_agent", "agent_id": "a1"},
		"async":         true,
	}

	j := &fakeJobs{}
	h, _ := newTestHandler(t, &fakeBroadcaster{}, j)
	rec := do(t, h.Router(), http.MethodPost, "/api/broadcasts", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var out map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	if out["job_id"] != "job-1" {
		t.Fatalf("job_id=%q", out["job_id"])
	}
	if j.last.Source != "api" || j.last.Campaign != "c" || len(j.last.Recipients) != 1 {
		t.Fatalf("unexpected request: %+v", j.last)
	}

	j.err = broadcast.ErrQueueFull
	rec = do(t, h.Router(), http.MethodPost, "/api/broadcasts", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("queue full status=%d", rec.Code)
	}

	j.err = broadcast.ErrDisabled
	rec = do(t, h.Router(), http.MethodPost, "/api/broadcasts", body)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("disabled status=%d", rec.Code)
	}

	h, _ = newTestHandler(t, &fakeBroadcaster{}, nil)
	rec = do(t, h.Router(), http.MethodPost, "/api/broadcasts", body)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("no jobs status=%d", rec.Code)
	}
}

func TestGetBroadcast(t *testing.T) {
	j := &fakeJobs{jobs: map[string]broadcast.JobStatus{
		"abc": {ID: "abc", Campaign: "c", State: broadcast.JobCompleted, Total: 2, Done: 2},
	}}
	h, _ := newTestHandler(t, &fakeBroadcaster{}, j)

	rec := do(t, h.Router(), http.MethodGet, "/api/broadcasts/abc", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var st broadcast.JobStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.ID != "abc" || st.State != broadcast.JobCompleted {
		t.Fatalf("unexpected status: %+v", st)
	}

	rec = do(t, h.Router(), http.MethodGet, "/api/broadcasts/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing status=%d", rec.Code)
	}
}

func TestListDeliveries(t *testing.T) {
	h, dl := newTestHandler(t, &fakeBroadcaster{}, nil)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []delivery.Entry{
		{CampaignName: "a", RecipientPhone: "+911", Status: delivery.StatusSent, Timestamp: base},
		{CampaignName: "a", RecipientPhone: "+912", Status: delivery.StatusFailed, Timestamp: base.Add(time.Second)},
		{CampaignName: "b", RecipientPhone: "+911", Status: delivery.StatusSent, Timestamp: base.Add(2 * time.Second)},
	}
	for _, e := range rows {
		if _, err := dl.Append(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	get := func(q string) []delivery.Entry {
		t.Helper()
		rec := do(t, h.Router(), http.MethodGet, "/api/deliveries"+q, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status=%d body=%s", q, rec.Code, rec.Body.String())
		}
		var out []delivery.Entry
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatal(err)
		}
		return out
	}

	if got := get(""); len(got) != 3 || got[0].CampaignName != "b" {
		t.Fatalf("all: %+v", got)
	}
	if got := get("?campaign=a&status=failed"); len(got) != 1 || got[0].RecipientPhone != "+912" {
		t.Fatalf("filtered: %+v", got)
	}
	// phone filter goes through NormalizePhone
	if got := get("?phone=911"); len(got) != 2 {
		t.Fatalf("phone: %+v", got)
	}
	if got := get("?limit=1&offset=1"); len(got) != 1 || got[0].RecipientPhone != "+912" {
		t.Fatalf("paged: %+v", got)
	}
	if got := get("?campaign=none"); got == nil || len(got) != 0 {
		t.Fatalf("expected empty array, got %+v", got)
	}

	for _, q := range []string{"?status=bogus", "?limit=x", "?offset=-1"} {
		rec := do(t, h.Router(), http.MethodGet, "/api/deliveries"+q, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d", q, rec.Code)
		}
	}
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t, &fakeBroadcaster{}, nil)
	rec := do(t, h.Router(), http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" || body["workers"] != float64(2) {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestProfilerMount(t *testing.T) {
	h, _ := newTestHandler(t, &fakeBroadcaster{}, nil)
	if rec := do(t, h.Router(), http.MethodGet, "/debug/pprof/", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("profiler should be off by default, status=%d", rec.Code)
	}
	h.opt.Profiler = true
	if rec := do(t, h.Router(), http.MethodGet, "/debug/pprof/", nil); rec.Code != http.StatusOK {
		t.Fatalf("profiler status=%d", rec.Code)
	}
}

package storage

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"wadispatch/internal/delivery"
	"wadispatch/pkg/logx"
)

func seed(t *testing.T, st delivery.Store) time.Time {
	t.Helper()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := []delivery.Entry{
		{CampaignName: "spring", RecipientPhone: "911", MessageType: "custom_text", Status: delivery.StatusFailed, Error: "window"},
		{CampaignName: "spring", RecipientPhone: "911", MessageType: "template", TemplateName: "hello_world", Status: delivery.StatusSent, MessageID: "wamid.1"},
		{CampaignName: "spring", RecipientPhone: "922", MessageType: "custom_text", Status: delivery.StatusSent, MessageID: "wamid.2"},
		{CampaignName: "autumn", RecipientPhone: "911", MessageType: "template", TemplateName: "promo", Status: delivery.StatusSent},
	}
	for i, e := range rows {
		e.ID = fmt.Sprintf("id-%d", i)
		e.Timestamp = base.Add(time.Duration(i) * time.Second)
		if err := st.AppendDelivery(context.Background(), e); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	return base
}

func checkQueries(t *testing.T, st delivery.Store) {
	t.Helper()
	ctx := context.Background()

	all, err := st.QueryDeliveries(ctx, delivery.Filter{}, 50, 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(all) != 4 || all[0].ID != "id-3" || all[3].ID != "id-0" {
		t.Fatalf("expected newest-first, got %v", ids(all))
	}

	spring, _ := st.QueryDeliveries(ctx, delivery.Filter{CampaignName: "spring"}, 50, 0)
	if len(spring) != 3 {
		t.Fatalf("campaign filter: %v", ids(spring))
	}
	if spring[1].TemplateName != "hello_world" || spring[1].MessageID != "wamid.1" {
		t.Fatalf("fields lost: %+v", spring[1])
	}

	failed, _ := st.QueryDeliveries(ctx, delivery.Filter{Status: delivery.StatusFailed}, 50, 0)
	if len(failed) != 1 || failed[0].Error != "window" {
		t.Fatalf("status filter: %+v", failed)
	}

	phone, _ := st.QueryDeliveries(ctx, delivery.Filter{CampaignName: "spring", Phone: "911"}, 50, 0)
	if len(phone) != 2 || phone[0].MessageType != "template" {
		t.Fatalf("phone filter: %+v", phone)
	}

	page, _ := st.QueryDeliveries(ctx, delivery.Filter{}, 2, 1)
	if len(page) != 2 || page[0].ID != "id-2" || page[1].ID != "id-1" {
		t.Fatalf("paging: %v", ids(page))
	}
	empty, _ := st.QueryDeliveries(ctx, delivery.Filter{}, 10, 10)
	if len(empty) != 0 {
		t.Fatalf("offset past end: %v", ids(empty))
	}
	huge, err := st.QueryDeliveries(ctx, delivery.Filter{}, 50, math.MaxInt-10)
	if err != nil || len(huge) != 0 {
		t.Fatalf("huge offset: %v %v", ids(huge), err)
	}
}

func ids(es []delivery.Entry) []string {
	out := make([]string, 0, len(es))
	for _, e := range es {
		out = append(out, e.ID)
	}
	return out
}

func TestMemoryStore(t *testing.T) {
	st, err := Open(Config{}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	seed(t, st)
	checkQueries(t, st)
	_ = st.Close()
	if err := st.AppendDelivery(context.Background(), delivery.Entry{ID: "x"}); err != ErrClosed {
		t.Fatalf("append after close: %v", err)
	}
}

func TestFileStoreReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "deliveries.jsonl")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	seed(t, st)
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// A torn trailing write must not prevent reopening.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("open raw: %v", err)
	}
	_, _ = f.WriteString(`{"id":"torn","campaign`)
	_ = f.Close()

	st, err = Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	checkQueries(t, st)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deliveries.db")
	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	seed(t, st)
	checkQueries(t, st)
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st, err = Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	checkQueries(t, st)
}

func TestSQLiteSameTimestampKeepsInsertOrder(t *testing.T) {
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "d.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ts := time.Now().UTC()
	for _, id := range []string{"first", "second"} {
		if err := st.AppendDelivery(context.Background(), delivery.Entry{ID: id, CampaignName: "c", RecipientPhone: "1", MessageType: "template", Status: delivery.StatusSent, Timestamp: ts}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	got, _ := st.QueryDeliveries(context.Background(), delivery.Filter{}, 10, 0)
	if len(got) != 2 || got[0].ID != "second" {
		t.Fatalf("got %v", ids(got))
	}
}

func TestOpenErrors(t *testing.T) {
	if _, err := Open(Config{Driver: "mongo"}, logx.Nop()); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatalf("expected missing path error")
	}
	if _, err := Open(Config{Driver: "sqlite"}, logx.Nop()); err == nil {
		t.Fatalf("expected missing path error")
	}
}

package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/existflow/hearth/internal/board"
	"github.com/existflow/hearth/internal/model"
	"github.com/existflow/hearth/internal/store"
	"github.com/existflow/hearth/internal/store/sqlstore"
	"github.com/existflow/hearth/server"
)

func TestErrorFor(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"invalid token"}`, ErrUnauthorized},
		{"conflict by status", http.StatusConflict, `{"error":"already exists"}`, store.ErrConflict},
		{"conflict by code", http.StatusBadRequest, `{"error":"x","code":"conflict"}`, store.ErrConflict},
		{"unknown table", http.StatusNotFound, `{"error":"unknown table","code":"unknown_table"}`, store.ErrUnknownTable},
		{"unknown column", http.StatusBadRequest, `{"error":"unknown column","code":"unknown_column"}`, store.ErrUnknownColumn},
		{"invalid value", http.StatusBadRequest, `{"error":"bad","code":"invalid_value"}`, store.ErrInvalidValue},
		{"not found", http.StatusNotFound, `{"error":"user not found"}`, store.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := errorFor(tt.status, []byte(tt.body)); !errors.Is(err, tt.want) {
				t.Errorf("errorFor = %v, want %v", err, tt.want)
			}
		})
	}

	err := errorFor(http.StatusBadGateway, []byte("upstream down"))
	if err == nil || !strings.Contains(err.Error(), "502") || !strings.Contains(err.Error(), "upstream down") {
		t.Errorf("plain body error = %v", err)
	}
}

func TestReadEvents(t *testing.T) {
	stream := strings.Join([]string{
		"event: connected",
		`data: {"table":"cards"}`,
		"",
		": keep-alive comment",
		"event: change",
		`data: {"table":"cards","type":"INSERT","record":{"id":"c1","step_order":2}}`,
		"",
		"event: heartbeat",
		`data: {"timestamp":"2024-06-05T10:00:00Z"}`,
		"",
		"event: change",
		`data: {"table":"cards",`,
		`data: "type":"DELETE","record":{"id":"c2"}}`,
		"",
		"",
	}, "\n")

	out := make(chan store.Event, 8)
	err := readEvents(context.Background(), strings.NewReader(stream), out)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("readEvents = %v, want EOF", err)
	}
	close(out)

	var got []store.Event
	for ev := range out {
		got = append(got, ev)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].Type != store.EventInsert || got[0].Record.ID() != "c1" {
		t.Errorf("first event = %+v", got[0])
	}
	if got[1].Type != store.EventDelete || got[1].Record.ID() != "c2" {
		t.Errorf("second event = %+v", got[1])
	}
}

func TestReadEventsDropsUnterminatedFrame(t *testing.T) {
	stream := strings.Join([]string{
		"event: change",
		`data: {"table":"cards","type":"UPDATE","record":{"id":"c1"}}`,
		"",
		"event: change",
		`data: {"table":"cards","type":"UPDATE","record":{"id":"c2"}}`,
	}, "\n")

	out := make(chan store.Event, 4)
	if err := readEvents(context.Background(), strings.NewReader(stream), out); !errors.Is(err, io.EOF) {
		t.Fatalf("readEvents = %v, want EOF", err)
	}
	close(out)

	var ids []string
	for ev := range out {
		ids = append(ids, ev.Record.ID())
	}
	if len(ids) != 1 || ids[0] != "c1" {
		t.Errorf("delivered %v, want only c1", ids)
	}
}

func TestTableCallsNeedSession(t *testing.T) {
	c, err := New("http://127.0.0.1:1", "", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Select(context.Background(), store.TableCards, store.Query{}); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("Select = %v, want ErrNotLoggedIn", err)
	}
}

type harness struct {
	client *Client
	server *server.Server
	path   string
	url    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	st, err := sqlstore.Open("sqlite://"+filepath.Join(dir, "hearth.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	srv, err := server.New(st, nil, server.Options{MaterializeSpec: "off", Heartbeat: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { srv.Close() })

	path := filepath.Join(dir, "session.json")
	c, err := New(ts.URL+"/", path, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Register(context.Background(), "sam", "sam@example.com", "correct-horse"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return &harness{client: c, server: srv, path: path, url: ts.URL}
}

func TestSessionPersists(t *testing.T) {
	h := newHarness(t)
	if !h.client.IsLoggedIn() || h.client.Username() != "sam" {
		t.Fatalf("not logged in after register")
	}
	if h.client.ServerURL() != h.url {
		t.Errorf("ServerURL = %q, want %q", h.client.ServerURL(), h.url)
	}

	info, err := os.Stat(h.path)
	if err != nil {
		t.Fatalf("session file: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("session mode = %v, want 0600", info.Mode().Perm())
	}

	again, err := New("", h.path, nil)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.UserID() != h.client.UserID() || again.ServerURL() != h.url {
		t.Errorf("reloaded session = %q %q", again.UserID(), again.ServerURL())
	}
	me, err := again.Me(context.Background())
	if err != nil || me.Username != "sam" {
		t.Errorf("Me = (%+v, %v)", me, err)
	}

	if err := again.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if again.IsLoggedIn() {
		t.Error("still logged in after logout")
	}
	if _, err := h.client.Me(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Me with revoked token = %v, want ErrUnauthorized", err)
	}
}

func TestStoreOverHTTP(t *testing.T) {
	h := newHarness(t)
	c := h.client
	ctx := context.Background()

	rows, err := c.Insert(ctx, store.TableCards,
		store.Row{"board_id": "b1", "title": "Trash", "template_id": "t1", "date": "2024-06-05", "step_order": 1},
		store.Row{"board_id": "b1", "title": "Groceries"},
	)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if len(rows) != 2 || rows[0]["created_by"] != c.UserID() {
		t.Fatalf("Insert = %v", rows)
	}

	_, err = c.Insert(ctx, store.TableCards, store.Row{"board_id": "b1", "title": "Trash", "template_id": "t1", "date": "2024-06-05"})
	if !errors.Is(err, store.ErrConflict) {
		t.Errorf("duplicate slot = %v, want ErrConflict", err)
	}

	got, err := c.Select(ctx, store.TableCards, store.Query{
		Where: store.Eq("board_id", "b1"),
		Order: []store.Order{store.Desc("created_at")},
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 2 || got[0]["title"] != "Groceries" {
		t.Errorf("Select = %v", got)
	}

	n, err := c.Update(ctx, store.TableCards, store.Eq("id", rows[0].ID()), store.Row{"status": "done"})
	if err != nil || n != 1 {
		t.Errorf("Update = (%d, %v)", n, err)
	}
	if _, err := c.Update(ctx, store.TableCards, store.Filter{}, store.Row{"status": "done"}); err == nil {
		t.Error("Update without filter succeeded")
	}
	if _, err := c.Select(ctx, "users", store.Query{}); !errors.Is(err, store.ErrUnknownTable) {
		t.Errorf("Select(users) = %v, want ErrUnknownTable", err)
	}

	n, err = c.Delete(ctx, store.TableCards, store.Eq("id", rows[1].ID()))
	if err != nil || n != 1 {
		t.Errorf("Delete = (%d, %v)", n, err)
	}
}

func TestSubscribeAndResync(t *testing.T) {
	h := newHarness(t)
	c := h.client
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := c.Subscribe(ctx, store.TableCards, store.Eq("board_id", "b1"))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := c.Insert(ctx, store.TableCards, store.Row{"board_id": "b1", "title": "Dishes"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	wait := func(typ store.EventType) store.Event {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					t.Fatalf("events closed waiting for %s", typ)
				}
				if ev.Type == typ {
					return ev
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %s", typ)
			}
		}
	}

	if ev := wait(store.EventInsert); ev.Record["title"] != "Dishes" {
		t.Errorf("insert event = %v", ev.Record)
	}

	// ending every stream server-side forces a reconnect
	h.server.Close()
	wait(store.EventResync)

	cancel()
	for range events {
	}
}

func TestBoardOverHTTP(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wed := time.Date(2024, time.June, 5, 10, 0, 0, 0, time.UTC)

	b := board.New(h.client, "b1", board.Options{UserID: h.client.UserID(), Now: func() time.Time { return wed }})
	if _, err := b.Load(ctx, wed); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := b.AddRoutine(ctx, model.Card{Title: "Trash"}, model.NewRule(time.Monday, time.Thursday)); err != nil {
		t.Fatalf("AddRoutine: %v", err)
	}
	snap, err := b.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if snap.Created != 2 || len(b.View().Cards) != 2 {
		t.Errorf("created %d, cards %d, want 2 and 2", snap.Created, len(b.View().Cards))
	}

	card := b.View().Cards[0]
	if err := b.Complete(ctx, card.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := b.Delete(ctx, card.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	snap, err = b.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if snap.Created != 0 || len(b.View().Cards) != 1 {
		t.Errorf("after cancelling one instance: created %d, cards %d", snap.Created, len(b.View().Cards))
	}
}

package board

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/existflow/hearth/internal/model"
	"github.com/existflow/hearth/internal/store"
	"github.com/existflow/hearth/internal/store/memstore"
)

var fixedNow = time.Date(2024, time.June, 5, 18, 30, 0, 0, time.UTC)

func newTestBoard(t *testing.T, rows ...store.Row) (*Board, *memstore.Store) {
	t.Helper()
	ms := memstore.New()
	ms.Seed(store.TableCards, rows...)
	b := New(ms, "b1", Options{
		UserID:   "u1",
		Now:      func() time.Time { return fixedNow },
		Debounce: 10 * time.Millisecond,
	})
	if _, err := b.Load(context.Background(), wed); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return b, ms
}

func backlogRow(id, title string) store.Row {
	return store.Row{"id": id, "board_id": "b1", "title": title, "is_recurring_template": false, "status": "todo", "priority": "normal"}
}

func datedRow(id, title, date string) store.Row {
	r := backlogRow(id, title)
	r["date"] = date
	return r
}

// blockOn makes the first matching store call wait for a value on release
func blockOn(ms *memstore.Store, match func(memstore.Call) bool) (started <-chan struct{}, release chan<- error) {
	s := make(chan struct{})
	r := make(chan error)
	blocked := false
	ms.Hook = func(c memstore.Call) error {
		if blocked || !match(c) {
			return nil
		}
		blocked = true
		close(s)
		return <-r
	}
	return s, r
}

func TestLoadPopulatesLists(t *testing.T) {
	b, _ := newTestBoard(t, trashTemplate(), backlogRow("bl", "Fix shelf"), datedRow("mon", "Groceries", "2024-06-03"))
	v := b.View()
	if len(v.Cards) != 2 || len(v.Backlog) != 1 || len(v.Routines) != 1 {
		t.Fatalf("lists = %d cards, %d backlog, %d routines", len(v.Cards), len(v.Backlog), len(v.Routines))
	}
	if got := v.On(june5); len(got) != 1 || *got[0].TemplateID != "t1" {
		t.Errorf("On(2024-06-05) = %v", got)
	}
	if v.Week.Start != june3 {
		t.Errorf("week = %s", v.Week)
	}
}

func TestLoadFailureKeepsState(t *testing.T) {
	b, ms := newTestBoard(t, backlogRow("bl", "Fix shelf"))
	ms.Hook = func(c memstore.Call) error {
		if c.Op == memstore.OpSelect {
			return errors.New("timeout")
		}
		return nil
	}
	if _, err := b.Load(context.Background(), wed.AddDate(0, 0, 7)); err == nil {
		t.Fatal("Load succeeded despite fetch failure")
	}
	if v := b.View(); len(v.Backlog) != 1 || v.Week.Start != june3 {
		t.Errorf("state changed after failed load: %d backlog, week %s", len(v.Backlog), v.Week)
	}
}

func TestAddRoundTrip(t *testing.T) {
	b, ms := newTestBoard(t)
	started, release := blockOn(ms, func(c memstore.Call) bool { return c.Op == memstore.OpInsert })

	type result struct {
		card model.Card
		err  error
	}
	done := make(chan result)
	go func() {
		c, err := b.Add(context.Background(), model.Card{Title: "Call plumber"})
		done <- result{c, err}
	}()

	<-started
	v := b.View()
	if len(v.Backlog) != 1 || !IsTempID(v.Backlog[0].ID) {
		t.Fatalf("backlog while pending = %+v, want one temp card", v.Backlog)
	}
	release <- nil

	res := <-done
	if res.err != nil {
		t.Fatalf("Add: %v", res.err)
	}
	if IsTempID(res.card.ID) || res.card.CreatedAt == nil {
		t.Errorf("stored card = %+v", res.card)
	}
	v = b.View()
	if len(v.Backlog) != 1 || v.Backlog[0].ID != res.card.ID {
		t.Errorf("backlog after confirm = %+v, want only %s", v.Backlog, res.card.ID)
	}
	if *v.Backlog[0].CreatedBy != "u1" || v.Backlog[0].BoardID != "b1" {
		t.Errorf("provenance not stamped: %+v", v.Backlog[0])
	}
}

func TestAddFailureRemovesTempCard(t *testing.T) {
	b, ms := newTestBoard(t)
	ms.Hook = func(c memstore.Call) error {
		if c.Op == memstore.OpInsert {
			return errors.New("permission denied")
		}
		return nil
	}

	_, err := b.Add(context.Background(), model.Card{Title: "Call plumber"})
	var merr *MutationError
	if !errors.As(err, &merr) || merr.Op != "add" {
		t.Fatalf("Add error = %v, want *MutationError", err)
	}
	if v := b.View(); len(v.Backlog) != 0 {
		t.Errorf("backlog after failed add = %+v", v.Backlog)
	}
}

func TestAddDatedGoesToCards(t *testing.T) {
	b, _ := newTestBoard(t)
	c, err := b.Add(context.Background(), model.Card{Title: "Dentist", Date: june5.Ptr()})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	v := b.View()
	if _, ok := v.Find(c.ID); !ok || len(v.Cards) != 1 || len(v.Backlog) != 0 {
		t.Errorf("dated card not in cards list: %+v", v)
	}
}

func TestUpdateRollbackRestoresWholeRecord(t *testing.T) {
	b, ms := newTestBoard(t, backlogRow("c1", "Original"))
	before, _ := b.View().Find("c1")
	ms.Hook = func(c memstore.Call) error {
		if c.Op == memstore.OpUpdate {
			return errors.New("server error")
		}
		return nil
	}

	err := b.Update(context.Background(), "c1", model.Patch{"title": "Changed", "priority": "high"})
	if err == nil {
		t.Fatal("Update succeeded despite remote failure")
	}
	after, ok := b.View().Find("c1")
	if !ok {
		t.Fatal("card missing after rollback")
	}
	if after.Title != "Original" || after.Priority != before.Priority {
		t.Errorf("after rollback = %q/%s, want %q/%s", after.Title, after.Priority, before.Title, before.Priority)
	}
}

func TestUpdateMovesBetweenLists(t *testing.T) {
	b, ms := newTestBoard(t, backlogRow("c1", "Fix shelf"))
	if err := b.Update(context.Background(), "c1", model.Patch{"date": "2024-06-06"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	v := b.View()
	if len(v.Backlog) != 0 || len(v.On(model.NewDate(2024, time.June, 6))) != 1 {
		t.Errorf("card not moved to thursday: %+v", v)
	}
	if rows := ms.Rows(store.TableCards); rows[0]["date"] != "2024-06-06" {
		t.Errorf("stored date = %v", rows[0]["date"])
	}
}

func TestUnknownCard(t *testing.T) {
	b, ms := newTestBoard(t)
	ctx := context.Background()
	for name, err := range map[string]error{
		"update":   b.Update(ctx, "nope", model.Patch{"title": "x"}),
		"delete":   b.Delete(ctx, "nope"),
		"complete": b.Complete(ctx, "nope"),
		"toggle":   b.ToggleStatus(ctx, "nope", true),
	} {
		if !errors.Is(err, ErrUnknownCard) {
			t.Errorf("%s error = %v, want ErrUnknownCard", name, err)
		}
	}
	if n := len(ms.Calls(memstore.OpUpdate, memstore.OpDelete)); n != 0 {
		t.Errorf("remote writes for unknown ids = %d", n)
	}
}

func TestDeleteBranching(t *testing.T) {
	b, ms := newTestBoard(t, trashTemplate(), datedRow("manual", "Groceries", "2024-06-05"))
	ctx := context.Background()

	var instance string
	for _, c := range b.View().Cards {
		if c.IsFromTemplate() {
			instance = c.ID
		}
	}
	if instance == "" {
		t.Fatal("no materialized instance")
	}

	if err := b.Delete(ctx, instance); err != nil {
		t.Fatalf("Delete instance: %v", err)
	}
	if err := b.Delete(ctx, "manual"); err != nil {
		t.Fatalf("Delete manual: %v", err)
	}

	if v := b.View(); len(v.Cards) != 0 {
		t.Errorf("cards after delete = %+v", v.Cards)
	}
	rows := ms.Rows(store.TableCards)
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want template plus tombstone", len(rows))
	}
	for _, r := range rows {
		if r.ID() == instance && r["status"] != "cancelled" {
			t.Errorf("instance status = %v, want cancelled", r["status"])
		}
		if r.ID() == "manual" {
			t.Error("manual card was not hard deleted")
		}
	}
	if n := len(ms.Calls(memstore.OpDelete)); n != 1 {
		t.Errorf("hard deletes = %d, want 1", n)
	}

	snap, err := b.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if snap.Created != 0 {
		t.Errorf("refresh recreated %d cancelled slots", snap.Created)
	}
}

func TestDeleteFailureRestoresPosition(t *testing.T) {
	b, ms := newTestBoard(t, backlogRow("a", "A"), backlogRow("b", "B"), backlogRow("c", "C"))
	ms.Hook = func(c memstore.Call) error {
		if c.Op == memstore.OpDelete {
			return errors.New("offline")
		}
		return nil
	}
	if err := b.Delete(context.Background(), "b"); err == nil {
		t.Fatal("Delete succeeded despite remote failure")
	}
	var order []string
	for _, c := range b.View().Backlog {
		order = append(order, c.ID)
	}
	if strings.Join(order, ",") != "a,b,c" {
		t.Errorf("backlog after rollback = %v, want a,b,c", order)
	}
}

func TestCompleteAndToggleAreIndependent(t *testing.T) {
	b, _ := newTestBoard(t, datedRow("c1", "Groceries", "2024-06-05"))
	ctx := context.Background()

	if err := b.Complete(ctx, "c1"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	c, _ := b.View().Find("c1")
	if c.CompletedAt == nil || !c.CompletedAt.Equal(fixedNow) || c.IsDone() {
		t.Errorf("after Complete: completed_at %v, status %s", c.CompletedAt, c.Status)
	}

	if err := b.ToggleStatus(ctx, "c1", true); err != nil {
		t.Fatalf("ToggleStatus: %v", err)
	}
	if err := b.Uncomplete(ctx, "c1"); err != nil {
		t.Fatalf("Uncomplete: %v", err)
	}
	c, _ = b.View().Find("c1")
	if c.CompletedAt != nil || !c.IsDone() {
		t.Errorf("after Uncomplete: completed_at %v, status %s", c.CompletedAt, c.Status)
	}
}

func TestCompleteRollback(t *testing.T) {
	b, ms := newTestBoard(t, datedRow("c1", "Groceries", "2024-06-05"))
	ms.Hook = func(c memstore.Call) error {
		if c.Op == memstore.OpUpdate {
			return store.ErrConflict
		}
		return nil
	}
	err := b.Complete(context.Background(), "c1")
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("Complete error = %v, want ErrConflict through MutationError", err)
	}
	if c, _ := b.View().Find("c1"); c.CompletedAt != nil {
		t.Errorf("completed_at survived rollback: %v", c.CompletedAt)
	}
}

func TestStaleResponseDoesNotClobberNewerChange(t *testing.T) {
	b, ms := newTestBoard(t, backlogRow("c1", "Original"))
	started, release := blockOn(ms, func(c memstore.Call) bool {
		return c.Op == memstore.OpUpdate && c.Row["title"] == "First"
	})

	errc := make(chan error)
	go func() {
		errc <- b.Update(context.Background(), "c1", model.Patch{"title": "First"})
	}()
	<-started

	if err := b.Update(context.Background(), "c1", model.Patch{"title": "Second"}); err != nil {
		t.Fatalf("second Update: %v", err)
	}
	release <- errors.New("late failure")
	if err := <-errc; err == nil {
		t.Fatal("first Update reported success")
	}

	if c, _ := b.View().Find("c1"); c.Title != "Second" {
		t.Errorf("title = %q, want Second", c.Title)
	}
}

func TestOverlappingUpdatesSettleOnStoredRecord(t *testing.T) {
	rejected := errors.New("rejected")
	tests := []struct {
		name      string
		firstErr  error
		secondErr error
		want      string
	}{
		{"both fail", rejected, rejected, "Original"},
		{"first fails", rejected, nil, "Second"},
		{"second fails", nil, rejected, "First"},
		{"both succeed", nil, nil, "Second"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, ms := newTestBoard(t, backlogRow("c1", "Original"))
			gates := map[string]chan error{"First": make(chan error), "Second": make(chan error)}
			started := make(chan struct{})
			ms.Hook = func(c memstore.Call) error {
				title, _ := c.Row["title"].(string)
				gate, ok := gates[title]
				if c.Op != memstore.OpUpdate || !ok {
					return nil
				}
				started <- struct{}{}
				return <-gate
			}

			errc := make(chan error)
			for _, title := range []string{"First", "Second"} {
				go func() {
					errc <- b.Update(context.Background(), "c1", model.Patch{"title": title})
				}()
				<-started
			}

			gates["First"] <- tt.firstErr
			<-errc
			if c, _ := b.View().Find("c1"); c.Title != "Second" {
				t.Errorf("title while second is in flight = %q, want Second", c.Title)
			}
			gates["Second"] <- tt.secondErr
			<-errc

			c, _ := b.View().Find("c1")
			if c.Title != tt.want {
				t.Errorf("local title = %q, want %q", c.Title, tt.want)
			}
			if got := ms.Rows(store.TableCards)[0]["title"]; got != tt.want {
				t.Errorf("stored title = %v, want %q", got, tt.want)
			}
		})
	}
}

func TestRollbackLeavesOtherRecordsAlone(t *testing.T) {
	b, ms := newTestBoard(t, backlogRow("c1", "One"), backlogRow("c2", "Two"))
	started, release := blockOn(ms, func(c memstore.Call) bool {
		return c.Op == memstore.OpUpdate && c.Row["title"] == "One!"
	})

	errc := make(chan error)
	go func() {
		errc <- b.Update(context.Background(), "c1", model.Patch{"title": "One!"})
	}()
	<-started
	if err := b.Update(context.Background(), "c2", model.Patch{"title": "Two!"}); err != nil {
		t.Fatalf("Update c2: %v", err)
	}
	release <- errors.New("rejected")
	<-errc

	v := b.View()
	c1, _ := v.Find("c1")
	c2, _ := v.Find("c2")
	if c1.Title != "One" || c2.Title != "Two!" {
		t.Errorf("titles = %q, %q; want One, Two!", c1.Title, c2.Title)
	}
}

func TestReplaceKeepsInflightRecords(t *testing.T) {
	b, ms := newTestBoard(t, backlogRow("c1", "Keep me"))
	started, release := blockOn(ms, func(c memstore.Call) bool { return c.Op == memstore.OpInsert })

	done := make(chan error)
	go func() {
		_, err := b.Add(context.Background(), model.Card{Title: "Pending"})
		done <- err
	}()
	<-started

	// a realtime refresh lands before the insert is confirmed
	if _, err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	v := b.View()
	if len(v.Backlog) != 2 || !IsTempID(v.Backlog[1].ID) {
		t.Fatalf("temp card lost on refresh: %+v", v.Backlog)
	}

	release <- nil
	if err := <-done; err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if v := b.View(); len(v.Backlog) != 2 || IsTempID(v.Backlog[1].ID) {
		t.Errorf("backlog after confirm = %+v", v.Backlog)
	}
}

func TestPendingCardRejectsMutations(t *testing.T) {
	b, ms := newTestBoard(t)
	started, release := blockOn(ms, func(c memstore.Call) bool { return c.Op == memstore.OpInsert })
	done := make(chan error)
	go func() {
		_, err := b.Add(context.Background(), model.Card{Title: "Pending"})
		done <- err
	}()
	<-started

	temp := b.View().Backlog[0].ID
	if err := b.Update(context.Background(), temp, model.Patch{"title": "x"}); !errors.Is(err, ErrPendingCard) {
		t.Errorf("Update on temp card = %v, want ErrPendingCard", err)
	}
	release <- nil
	<-done
}

func TestResolvePrefix(t *testing.T) {
	b, _ := newTestBoard(t, backlogRow("abc1", "One"), backlogRow("abd2", "Two"))
	if c, err := b.Resolve("abc"); err != nil || c.ID != "abc1" {
		t.Errorf("Resolve(abc) = %v, %v", c.ID, err)
	}
	if _, err := b.Resolve("ab"); !errors.Is(err, ErrAmbiguousID) {
		t.Errorf("Resolve(ab) = %v, want ErrAmbiguousID", err)
	}
	if _, err := b.Resolve("zz"); !errors.Is(err, ErrUnknownCard) {
		t.Errorf("Resolve(zz) = %v, want ErrUnknownCard", err)
	}
}

func TestOnChangeFires(t *testing.T) {
	b, _ := newTestBoard(t, backlogRow("c1", "One"))
	var views []View
	b.OnChange(func(v View) { views = append(views, v) })

	if err := b.Update(context.Background(), "c1", model.Patch{"title": "Uno"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(views) == 0 {
		t.Fatal("OnChange not called")
	}
	if last := views[len(views)-1]; last.Backlog[0].Title != "Uno" {
		t.Errorf("last view title = %q", last.Backlog[0].Title)
	}
}

func TestWatchRefreshesOnRemoteChange(t *testing.T) {
	b, ms := newTestBoard(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan View, 16)
	b.OnChange(func(v View) {
		select {
		case changed <- v:
		default:
		}
	})
	if err := b.Watch(ctx); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	// another member adds two cards in quick succession
	if _, err := ms.Insert(ctx, store.TableCards,
		store.Row{"board_id": "b1", "title": "Vacuum", "is_recurring_template": false},
		store.Row{"board_id": "b1", "title": "Mop", "date": "2024-06-07", "is_recurring_template": false},
	); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-changed:
			if len(v.Backlog) == 1 && len(v.Cards) == 1 {
				return
			}
		case <-deadline:
			t.Fatalf("view never caught up: %+v", b.View())
		}
	}
}

package board

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/existflow/hearth/internal/model"
	"github.com/existflow/hearth/internal/store"
	"github.com/existflow/hearth/internal/store/memstore"
)

func TestAddRoutineMaterializesOnRefresh(t *testing.T) {
	b, _ := newTestBoard(t)
	ctx := context.Background()

	r, err := b.AddRoutine(ctx, model.Card{Title: "Water plants", Date: june5.Ptr()}, model.NewRule(time.Monday, time.Thursday))
	if err != nil {
		t.Fatalf("AddRoutine: %v", err)
	}
	if !r.IsRecurringTemplate || r.Date != nil || r.RecurrenceRule == nil || *r.RecurrenceRule != "FREQ=WEEKLY;BYDAY=MO,TH" {
		t.Errorf("stored routine = %+v", r)
	}

	snap, err := b.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if snap.Created != 2 {
		t.Errorf("created %d instances, want 2", snap.Created)
	}
	if v := b.View(); len(v.Routines) != 1 || len(v.Cards) != 2 {
		t.Errorf("view = %d routines, %d cards", len(v.Routines), len(v.Cards))
	}
}

func TestAddRoutineRejectsEmptyRule(t *testing.T) {
	b, _ := newTestBoard(t)
	if _, err := b.AddRoutine(context.Background(), model.Card{Title: "Never"}, model.Rule{}); !errors.Is(err, ErrEmptyRule) {
		t.Errorf("AddRoutine error = %v, want ErrEmptyRule", err)
	}
}

func TestPauseAndResumeRoutine(t *testing.T) {
	b, ms := newTestBoard(t, trashTemplate())
	ctx := context.Background()

	if err := b.SetRoutineActive(ctx, "t1", false); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := b.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if v := b.View(); len(v.Routines) != 0 {
		t.Errorf("paused routine still listed for the week: %+v", v.Routines)
	}
	if v := b.View(); len(v.Cards) != 1 {
		t.Errorf("existing instance should stay, cards = %d", len(v.Cards))
	}

	// the paused routine is no longer in the board state
	if err := b.SetRoutineActive(ctx, "t1", true); err != nil {
		t.Fatalf("resume: %v", err)
	}
	all, err := b.Routines(ctx)
	if err != nil {
		t.Fatalf("Routines: %v", err)
	}
	if len(all) != 1 || !all[0].IsActiveTemplate() {
		t.Errorf("routines after resume = %+v", all)
	}
	for _, r := range ms.Rows(store.TableCards) {
		if r.ID() == "t1" && r["is_active"] != true {
			t.Errorf("stored is_active = %v", r["is_active"])
		}
	}
}

func TestPauseLeavesRoutinesAtOnce(t *testing.T) {
	b, _ := newTestBoard(t, trashTemplate())
	ctx := context.Background()

	if err := b.SetRoutineActive(ctx, "t1", false); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if v := b.View(); len(v.Routines) != 0 {
		t.Errorf("paused routine listed before refresh: %+v", v.Routines)
	}

	b2, ms2 := newTestBoard(t, trashTemplate())
	ms2.Hook = func(c memstore.Call) error {
		if c.Op == memstore.OpUpdate {
			return errors.New("offline")
		}
		return nil
	}
	if err := b2.SetRoutineActive(ctx, "t1", false); err == nil {
		t.Fatal("pause succeeded while the store fails")
	}
	if v := b2.View(); len(v.Routines) != 1 || !v.Routines[0].IsActiveTemplate() {
		t.Errorf("routines after failed pause = %+v", v.Routines)
	}
}

func TestSetRoutineDays(t *testing.T) {
	b, _ := newTestBoard(t, trashTemplate())
	ctx := context.Background()
	if err := b.SetRoutineDays(ctx, "t1", model.NewRule(time.Friday)); err != nil {
		t.Fatalf("SetRoutineDays: %v", err)
	}
	snap, err := b.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if snap.Created != 1 || len(b.View().On(model.NewDate(2024, time.June, 7))) != 1 {
		t.Errorf("friday instance missing, created %d", snap.Created)
	}
	if err := b.SetRoutineDays(ctx, "bl", model.NewRule(time.Friday)); !errors.Is(err, ErrUnknownCard) {
		t.Errorf("SetRoutineDays on unknown id = %v", err)
	}
}

func TestRoutinesNewestFirst(t *testing.T) {
	older := trashTemplate()
	newer := trashTemplate()
	newer["id"], newer["title"] = "t2", "Laundry"
	b, _ := newTestBoard(t, older, newer)

	all, err := b.Routines(context.Background())
	if err != nil {
		t.Fatalf("Routines: %v", err)
	}
	if len(all) != 2 || all[0].ID != "t2" {
		t.Errorf("routines = %+v, want t2 first", all)
	}
}

func TestDeleteRoutineKeepsInstances(t *testing.T) {
	b, ms := newTestBoard(t, trashTemplate())
	if err := b.DeleteRoutine(context.Background(), "t1"); err != nil {
		t.Fatalf("DeleteRoutine: %v", err)
	}
	rows := ms.Rows(store.TableCards)
	if len(rows) != 1 || rows[0]["template_id"] != "t1" {
		t.Errorf("rows after routine delete = %+v", rows)
	}
}

package chain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/existflow/hearth/internal/model"
	"github.com/existflow/hearth/internal/store"
	"github.com/existflow/hearth/internal/store/memstore"
)

func laundry(t *testing.T, svc *Service) model.Chain {
	t.Helper()
	c, err := svc.Create(context.Background(), "Laundry", []StepSpec{
		{Title: "Wash"},
		{Title: "Dry", DelayHours: model.Int(2)},
		{Title: "Fold"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return c
}

func TestCreateNumbersSteps(t *testing.T) {
	svc := New(memstore.New(), "g1", nil)
	c := laundry(t, svc)

	if len(c.Steps) != 3 {
		t.Fatalf("steps = %d, want 3", len(c.Steps))
	}
	for i, st := range c.Steps {
		if st.StepOrder != i+1 || st.ChainID != c.ID {
			t.Errorf("step %d = order %d chain %s", i, st.StepOrder, st.ChainID)
		}
	}
	if c.Steps[1].DefaultDelayHours == nil || *c.Steps[1].DefaultDelayHours != 2 {
		t.Errorf("delay = %v", c.Steps[1].DefaultDelayHours)
	}
}

func TestCreateValidates(t *testing.T) {
	svc := New(memstore.New(), "g1", nil)
	if _, err := svc.Create(context.Background(), "Empty", nil); !errors.Is(err, ErrNoSteps) {
		t.Errorf("Create without steps = %v, want ErrNoSteps", err)
	}
	if _, err := svc.Create(context.Background(), " ", []StepSpec{{Title: "x"}}); err == nil {
		t.Error("Create without name succeeded")
	}
}

func TestListScopedToGroupNewestFirst(t *testing.T) {
	ms := memstore.New()
	svc := New(ms, "g1", nil)
	laundry(t, svc)
	if _, err := svc.Create(context.Background(), "Groceries", []StepSpec{{Title: "List"}, {Title: "Shop"}}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := New(ms, "g2", nil).Create(context.Background(), "Theirs", []StepSpec{{Title: "x"}}); err != nil {
		t.Fatalf("Create other group: %v", err)
	}

	chains, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(chains) != 2 || chains[0].Name != "Groceries" || chains[1].Name != "Laundry" {
		t.Fatalf("List() = %+v", chains)
	}
	if len(chains[1].Steps) != 3 || chains[1].Steps[2].Title != "Fold" {
		t.Errorf("laundry steps = %+v", chains[1].Steps)
	}
}

func TestAddStepAppends(t *testing.T) {
	svc := New(memstore.New(), "g1", nil)
	c := laundry(t, svc)
	st, err := svc.AddStep(context.Background(), c.ID, "Put away", nil)
	if err != nil {
		t.Fatalf("AddStep: %v", err)
	}
	if st.StepOrder != 4 {
		t.Errorf("order = %d, want 4", st.StepOrder)
	}
	if _, err := svc.AddStep(context.Background(), "missing", "x", nil); !errors.Is(err, ErrUnknownChain) {
		t.Errorf("AddStep(missing) = %v", err)
	}
}

func TestNextStepAndAfter(t *testing.T) {
	svc := New(memstore.New(), "g1", nil)
	c := laundry(t, svc)
	ctx := context.Background()

	tests := []struct {
		order    int
		want     string
		wantNext bool
	}{
		{1, "Dry", true},
		{2, "Fold", true},
		{3, "", false},
	}
	for _, tt := range tests {
		next, ok, err := svc.NextStep(ctx, c.ID, tt.order)
		if err != nil {
			t.Fatalf("NextStep(%d): %v", tt.order, err)
		}
		if ok != tt.wantNext || next.Title != tt.want {
			t.Errorf("NextStep(%d) = %q, %v; want %q, %v", tt.order, next.Title, ok, tt.want, tt.wantNext)
		}
	}

	card := model.Card{Title: "Wash", ChainID: model.String(c.ID), StepOrder: model.Int(1)}
	if next, ok, err := svc.After(ctx, card); err != nil || !ok || next.Title != "Dry" {
		t.Errorf("After(wash) = %q, %v, %v", next.Title, ok, err)
	}
	if _, ok, err := svc.After(ctx, model.Card{Title: "plain"}); err != nil || ok {
		t.Errorf("After(plain) = %v, %v", ok, err)
	}
	if err := svc.Delete(ctx, c.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, err := svc.After(ctx, card); err != nil || ok {
		t.Errorf("After on deleted chain = %v, %v", ok, err)
	}
}

func TestDeferAndPending(t *testing.T) {
	ms := memstore.New()
	svc := New(ms, "g1", nil)
	c := laundry(t, svc)
	ctx := context.Background()

	at := time.Date(2024, time.June, 5, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return at }
	if err := svc.Defer(ctx, c.Steps[1].ID); err != nil {
		t.Fatalf("Defer dry: %v", err)
	}
	at = at.Add(time.Hour)
	if err := svc.Defer(ctx, c.Steps[2].ID); err != nil {
		t.Fatalf("Defer fold: %v", err)
	}

	pending, err := svc.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 2 || pending[0].Title != "Fold" || pending[0].ChainName != "Laundry" {
		t.Fatalf("Pending() = %+v", pending)
	}
	if !pending[1].IsPending() {
		t.Error("pending step reports not pending")
	}

	if err := svc.Release(ctx, c.Steps[2].ID); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if pending, _ := svc.Pending(ctx); len(pending) != 1 || pending[0].Title != "Dry" {
		t.Errorf("Pending() after release = %+v", pending)
	}
}

func TestUpdateStepRejectsOtherFields(t *testing.T) {
	svc := New(memstore.New(), "g1", nil)
	c := laundry(t, svc)
	if err := svc.UpdateStep(context.Background(), c.Steps[0].ID, store.Row{"chain_id": "other"}); err == nil {
		t.Error("UpdateStep changed chain_id")
	}
	if err := svc.UpdateStep(context.Background(), c.Steps[0].ID, store.Row{"title": "Soak"}); err != nil {
		t.Errorf("UpdateStep(title): %v", err)
	}
}

func TestDeleteCascadesSteps(t *testing.T) {
	ms := memstore.New()
	svc := New(ms, "g1", nil)
	c := laundry(t, svc)
	if err := svc.Delete(context.Background(), c.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if rows := ms.Rows(store.TableChainSteps); len(rows) != 0 {
		t.Errorf("steps left after delete: %d", len(rows))
	}
	if err := svc.Delete(context.Background(), c.ID); !errors.Is(err, ErrUnknownChain) {
		t.Errorf("second Delete = %v, want ErrUnknownChain", err)
	}
}

func TestFollowUp(t *testing.T) {
	step := model.ChainStep{ChainID: "ch1", StepOrder: 2, Title: "Dry"}
	today := model.NewDate(2024, time.June, 5)

	dated := FollowUp(step, "b1", &today)
	if dated.Kind() != model.KindInstance || dated.Date.String() != "2024-06-05" {
		t.Errorf("dated follow-up = %+v", dated)
	}
	if *dated.ChainID != "ch1" || *dated.StepOrder != 2 || dated.BoardID != "b1" {
		t.Errorf("chain link missing: %+v", dated)
	}
	if backlog := FollowUp(step, "b1", nil); backlog.Kind() != model.KindBacklog {
		t.Errorf("backlog follow-up kind = %s", backlog.Kind())
	}
}

type recordingBoard struct {
	cards []model.Card
}

func (b *recordingBoard) ID() string { return "b1" }

func (b *recordingBoard) Add(_ context.Context, card model.Card) (model.Card, error) {
	card.ID = "card-" + card.Title
	b.cards = append(b.cards, card)
	return card, nil
}

func TestSchedule(t *testing.T) {
	ctx := context.Background()
	svc := New(memstore.New(), "g1", nil)
	at := time.Date(2024, time.June, 5, 18, 0, 0, 0, time.Local)
	svc.now = func() time.Time { return at }
	c := laundry(t, svc)
	dry, fold := c.Steps[1], c.Steps[2]

	b := &recordingBoard{}
	card, err := svc.Schedule(ctx, b, dry, PlaceToday)
	if err != nil {
		t.Fatalf("Schedule today: %v", err)
	}
	if card.Date == nil || card.Date.String() != "2024-06-05" || card.BoardID != "b1" {
		t.Errorf("today card = %+v", card)
	}

	if _, err := svc.Schedule(ctx, b, fold, PlaceLater); err != nil {
		t.Fatalf("Schedule later: %v", err)
	}
	if len(b.cards) != 1 {
		t.Errorf("later added a card: %d cards", len(b.cards))
	}
	pending, err := svc.Pending(ctx)
	if err != nil || len(pending) != 1 {
		t.Fatalf("Pending = %v, %v", pending, err)
	}

	// picking a pending step releases it
	card, err = svc.Schedule(ctx, b, pending[0].ChainStep, PlaceBacklog)
	if err != nil {
		t.Fatalf("Schedule backlog: %v", err)
	}
	if card.Kind() != model.KindBacklog {
		t.Errorf("backlog card kind = %s", card.Kind())
	}
	if pending, _ := svc.Pending(ctx); len(pending) != 0 {
		t.Errorf("step still pending after scheduling: %+v", pending)
	}

	if _, err := svc.Schedule(ctx, b, dry, Placement("tomorrow")); err == nil {
		t.Error("Schedule accepted an unknown placement")
	}
}

package board

import (
	"context"
	"time"

	"github.com/existflow/hearth/internal/logger"
	"github.com/existflow/hearth/internal/store"
)

// Watch subscribes to the board's card changes and refreshes the tracked
// week after each burst of events. It returns once the subscription is
// established; the watcher stops when ctx is done or the feed closes.
func (b *Board) Watch(ctx context.Context) error {
	events, err := b.store.Subscribe(ctx, store.TableCards, store.Eq("board_id", b.id))
	if err != nil {
		return err
	}
	go b.watchLoop(ctx, events)
	return nil
}

func (b *Board) watchLoop(ctx context.Context, events <-chan store.Event) {
	timer := time.NewTimer(b.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	pending := false

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() == nil {
					b.log.Warn("change feed closed")
				}
				return
			}
			b.log.Debug("change received", logger.F("type", ev.Type), logger.F("id", ev.Record.ID()))
			if !pending {
				pending = true
				timer.Reset(b.debounce)
			}
		case <-timer.C:
			pending = false
			if _, err := b.Refresh(ctx); err != nil && ctx.Err() == nil {
				b.log.Error("realtime refresh failed", logger.Err(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

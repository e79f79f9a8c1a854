package stockledger

import (
	"context"
	"time"

	"github.com/xraph/stockledger/projection"
	"github.com/xraph/stockledger/store"
)

type subscriber struct {
	ch chan *projection.View
}

// Project loads a cold snapshot and computes the view once.
func (l *Ledger) Project(ctx context.Context) (*projection.View, error) {
	snap, err := projection.Load(ctx, l.store, l.profiles)
	if err != nil {
		return nil, err
	}
	return projection.Compute(snap, l.projectionOptions()), nil
}

// Latest returns the most recently published view, or nil before the first.
func (l *Ledger) Latest() *projection.View {
	l.subsMu.Lock()
	defer l.subsMu.Unlock()
	return l.latest
}

// Subscribe returns a channel of live views. The newest view is delivered
// first; a subscriber that falls behind skips to the newest view. The
// channel closes when ctx is done or the Ledger stops.
func (l *Ledger) Subscribe(ctx context.Context) (<-chan *projection.View, error) {
	l.subsMu.Lock()
	defer l.subsMu.Unlock()

	if !l.live {
		return nil, ErrNotStarted
	}

	sub := &subscriber{ch: make(chan *projection.View, 1)}
	if l.latest != nil {
		sub.ch <- l.latest
	}
	l.subs[sub] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
		case <-l.stopChan:
		}
		l.unsubscribe(sub)
	}()

	return sub.ch, nil
}

func (l *Ledger) unsubscribe(sub *subscriber) {
	l.subsMu.Lock()
	defer l.subsMu.Unlock()

	if _, ok := l.subs[sub]; !ok {
		return
	}
	delete(l.subs, sub)
	close(sub.ch)
}

func (l *Ledger) closeSubscribers() {
	l.subsMu.Lock()
	defer l.subsMu.Unlock()

	l.live = false
	for sub := range l.subs {
		delete(l.subs, sub)
		close(sub.ch)
	}
}

// startLive subscribes to store changes and launches the projection worker.
func (l *Ledger) startLive(ctx context.Context) error {
	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	changes, err := l.store.Watch(watchCtx)
	if err != nil {
		cancel()
		return err
	}
	l.cancelWatch = cancel

	l.subsMu.Lock()
	l.live = true
	l.subsMu.Unlock()

	l.wg.Add(1)
	go l.projectionWorker(watchCtx, changes)
	return nil
}

// projectionWorker recomputes the view on every change notification.
// Notifications are hints only; each recompute reads everything afresh.
func (l *Ledger) projectionWorker(ctx context.Context, changes <-chan store.Change) {
	defer l.wg.Done()

	l.refresh(ctx)

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-l.stopChan:
			return

		case _, ok := <-changes:
			if !ok {
				return
			}
			if l.debounce <= 0 {
				drain(changes)
				l.refresh(ctx)
				continue
			}
			if timerC == nil {
				timer = time.NewTimer(l.debounce)
				timerC = timer.C
			}

		case <-timerC:
			timerC = nil
			drain(changes)
			l.refresh(ctx)
		}
	}
}

func (l *Ledger) refresh(ctx context.Context) {
	start := time.Now()

	view, err := l.Project(ctx)
	if err != nil {
		l.logger.Warn("projection refresh failed", "error", err)
		return
	}

	l.publish(view)

	elapsed := time.Since(start)
	l.plugins.EmitProjectionUpdated(ctx, view, elapsed)

	l.logger.Debug("projection refreshed",
		"elapsed_ms", elapsed.Milliseconds(),
		"remaining_units", view.Stock.RemainingUnits,
	)
}

// publish replaces any undelivered view with v for every subscriber.
func (l *Ledger) publish(v *projection.View) {
	l.subsMu.Lock()
	defer l.subsMu.Unlock()

	l.latest = v
	for sub := range l.subs {
		select {
		case sub.ch <- v:
			continue
		default:
		}
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- v:
		default:
		}
	}
}

// drain discards notifications already queued.
func drain(changes <-chan store.Change) {
	for {
		select {
		case _, ok := <-changes:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

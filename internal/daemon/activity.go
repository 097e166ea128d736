package daemon

import (
	"sync"
	"sync/atomic"

	"github.com/matheus3301/chatrelay/internal/bus"
	"github.com/matheus3301/chatrelay/internal/status"
	"github.com/matheus3301/chatrelay/internal/store"
	"go.uber.org/zap"
)

// Activity consumes relay events from the bus, logs them, and keeps running
// totals that are reported when the daemon stops.
type Activity struct {
	events <-chan bus.Event
	unsub  func()
	logger *zap.Logger
	done   chan struct{}
	wg     sync.WaitGroup

	online   atomic.Int64
	offline  atomic.Int64
	created  atomic.Int64
	read     atomic.Int64
	stopOnce sync.Once
}

// ActivityCounts is a snapshot of the totals seen so far.
type ActivityCounts struct {
	Online   int64
	Offline  int64
	Messages int64
	Reads    int64
}

// NewActivity subscribes immediately so nothing published after
// construction is missed.
func NewActivity(b *bus.Bus, logger *zap.Logger) *Activity {
	events, unsub := b.Subscribe("", 256)
	return &Activity{
		events: events,
		unsub:  unsub,
		logger: logger.Named("activity"),
		done:   make(chan struct{}),
	}
}

// Start consumes events in the background until Stop.
func (a *Activity) Start() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-a.done:
				return
			case evt := <-a.events:
				a.handle(evt)
			}
		}
	}()
}

// Stop unsubscribes, drains what is already queued, and waits for the loop.
func (a *Activity) Stop() {
	a.stopOnce.Do(func() {
		a.unsub()
		close(a.done)
		a.wg.Wait()
		for {
			select {
			case evt := <-a.events:
				a.handle(evt)
			default:
				return
			}
		}
	})
}

// Counts returns the current totals.
func (a *Activity) Counts() ActivityCounts {
	return ActivityCounts{
		Online:   a.online.Load(),
		Offline:  a.offline.Load(),
		Messages: a.created.Load(),
		Reads:    a.read.Load(),
	}
}

func (a *Activity) handle(evt bus.Event) {
	switch evt.Kind {
	case bus.KindStatusChanged:
		if change, ok := evt.Payload.(status.StatusChange); ok {
			a.logger.Info("lifecycle transition", zap.String("from", string(change.From)), zap.String("to", string(change.To)))
		}
	case bus.KindPresenceOnline:
		a.online.Add(1)
		a.logger.Debug("user online", zap.Any("user_id", evt.Payload))
	case bus.KindPresenceOff:
		a.offline.Add(1)
		a.logger.Debug("user offline", zap.Any("user_id", evt.Payload))
	case bus.KindMessageCreated:
		a.created.Add(1)
		if m, ok := evt.Payload.(*store.Message); ok {
			a.logger.Debug("message created", zap.String("message_id", m.ID), zap.String("chat_id", m.ChatID), zap.String("sender_id", m.SenderID))
		}
	case bus.KindMessageRead:
		a.read.Add(1)
		if m, ok := evt.Payload.(*store.Message); ok {
			a.logger.Debug("message read", zap.String("message_id", m.ID), zap.String("chat_id", m.ChatID))
		}
	}
}

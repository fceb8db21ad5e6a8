package waiter

import (
	"sync"

	"github.com/evanphx/jos/log"
)

type EventType uint64

type Waiter struct {
	mu sync.RWMutex

	waiters []*Event
}

type Event struct {
	Mask     EventType
	Context  interface{}
	Callback func(e *Event, mask EventType)
}

func (w *Waiter) Register(e *Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.waiters = append(w.waiters, e)
}

func triggerChan(e *Event, _ EventType) {
	c := e.Context.(chan struct{})

	select {
	case c <- struct{}{}:
	default:
	}
}

func (w *Waiter) RegisterChannel(mask EventType, c chan struct{}) *Event {
	e := &Event{
		Callback: triggerChan,
		Context:  c,
		Mask:     mask,
	}

	w.Register(e)

	return e
}

func (w *Waiter) RegisterFunc(mask EventType, f func(EventType)) *Event {
	e := &Event{
		Callback: func(_ *Event, m EventType) { f(m) },
		Mask:     mask,
	}

	w.Register(e)

	return e
}

func (w *Waiter) Unregister(e *Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, x := range w.waiters {
		if x == e {
			w.waiters = append(w.waiters[:i], w.waiters[i+1:]...)
			return
		}
	}
}

func (w *Waiter) Count() int {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return len(w.waiters)
}

func (w *Waiter) Notify(mask EventType) {
	w.mu.RLock()
	waiters := append([]*Event(nil), w.waiters...)
	w.mu.RUnlock()

	log.L.Trace("waiters-notify", "count", len(waiters))

	for _, e := range waiters {
		log.L.Trace("waiters-walk", "event-mask", e.Mask, "notify-mask", mask, "match", mask&e.Mask)
		if mask&e.Mask != 0 {
			e.Callback(e, mask)
		}
	}
}

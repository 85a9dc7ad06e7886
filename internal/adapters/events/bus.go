// Package events fans engine events out to in-process subscribers.
package events

import (
	"sort"
	"sync"

	"github.com/bnema/focuscoin/internal/domain"
	"github.com/sirupsen/logrus"
)

// Handler receives events synchronously on the publishing goroutine and must not block.
type Handler func(domain.Event)

type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
}

func NewBus() *Bus {
	return &Bus{handlers: map[int]Handler{}}
}

// Subscribe registers h and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
	}
}

func (b *Bus) Publish(event domain.Event) {
	b.mu.RLock()
	ids := make([]int, 0, len(b.handlers))
	for id := range b.handlers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}

// LogHandler writes every event at debug level.
func LogHandler(log logrus.FieldLogger) Handler {
	return func(event domain.Event) {
		fields := logrus.Fields{"event": event.Type}
		if event.Destination != "" {
			fields["destination"] = event.Destination
		}
		if event.Reason != "" {
			fields["reason"] = event.Reason
		}
		if event.Wallet != nil {
			fields["balance"] = event.Wallet.Balance
		}
		if event.Session != nil {
			fields["mode"] = event.Session.Mode
		}
		log.WithFields(fields).Debug("event published")
	}
}

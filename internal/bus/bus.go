// Package bus is the ephemeral notification channel between the session core
// and whatever renders it. It carries no authoritative state.
package bus

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/skirmish-client/internal/logging"
)

type Topic string

const (
	TopicMatchChanged     Topic = "match.changed"
	TopicMatchError       Topic = "match.error"
	TopicMatchResolving   Topic = "match.resolving"
	TopicMatchClosed      Topic = "match.closed"
	TopicPositionChanged  Topic = "position.changed"
	TopicLogAppended      Topic = "log.appended"
	TopicDeclarationOpen  Topic = "declaration.open"
	TopicDeclarationClose Topic = "declaration.close"
	TopicMatchModalClosed Topic = "match.modal.closed"
	TopicSessionError     Topic = "session.error"
)

type Handler func(payload any)

type subscription struct {
	id      uint64
	handler Handler
}

type Bus struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[Topic][]subscription
	log    *zap.Logger
}

func New(logger *zap.Logger) *Bus {
	return &Bus{
		subs: make(map[Topic][]subscription),
		log:  logging.OrNop(logger).Named("bus"),
	}
}

// On registers h for topic and returns a func that removes it. Calling the
// returned func more than once is harmless.
func (b *Bus) On(topic Topic, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, handler: h})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[topic]
		for i, s := range list {
			if s.id == id {
				b.subs[topic] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// Emit calls every current handler of topic in registration order before
// returning. A panicking handler is logged and skipped.
func (b *Bus) Emit(topic Topic, payload any) {
	b.mu.Lock()
	handlers := append([]subscription(nil), b.subs[topic]...)
	b.mu.Unlock()

	for _, s := range handlers {
		b.dispatch(topic, s.handler, payload)
	}
}

func (b *Bus) dispatch(topic Topic, h Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler failed",
				zap.String("topic", string(topic)),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	h(payload)
}

package transport

import (
	"context"
	"sync"
)

// Mailbox buffers inbound messages per channel until a conversation
// consumes them.
type Mailbox struct {
	mu       sync.Mutex
	capacity int
	queues   map[string]chan Message
}

// NewMailbox returns a Mailbox holding up to capacity messages per channel.
func NewMailbox(capacity int) *Mailbox {
	if capacity <= 0 {
		capacity = 32
	}
	return &Mailbox{capacity: capacity, queues: make(map[string]chan Message)}
}

func (m *Mailbox) queue(channelRef string) chan Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[channelRef]
	if !ok {
		q = make(chan Message, m.capacity)
		m.queues[channelRef] = q
	}
	return q
}

// Deliver enqueues msg without blocking.
func (m *Mailbox) Deliver(channelRef string, msg Message) error {
	msg.ChannelRef = channelRef
	select {
	case m.queue(channelRef) <- msg:
		return nil
	default:
		return ErrMailboxFull
	}
}

// Await returns the next message accepted by predicate.
func (m *Mailbox) Await(ctx context.Context, channelRef string, predicate func(Message) bool) (Message, error) {
	q := m.queue(channelRef)
	for {
		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case msg := <-q:
			if predicate == nil || predicate(msg) {
				return msg, nil
			}
		}
	}
}

// Flush drops every message queued on the channel and reports how many
// were dropped. The queue itself stays in place.
func (m *Mailbox) Flush(channelRef string) int {
	q := m.queue(channelRef)
	dropped := 0
	for {
		select {
		case <-q:
			dropped++
		default:
			return dropped
		}
	}
}

// Discard drops the channel's queue, e.g. after the channel is deleted.
func (m *Mailbox) Discard(channelRef string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.queues, channelRef)
}

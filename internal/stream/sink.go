package stream

import (
	"sync"

	"boltbridge/internal/errors"
	"boltbridge/internal/event"
)

// defaultSinkBuffer is sized so that a subscriber briefly stalled on a slow
// connection does not immediately lose events. A full buffer evicts the
// subscriber rather than blocking producers.
const defaultSinkBuffer = 64

// ChannelSink is a Sink backed by a buffered channel. The owning connection
// handler drains Events and writes each one to the client.
type ChannelSink struct {
	ch     chan event.StreamEvent
	mu     sync.Mutex
	closed bool
}

// NewChannelSink creates a ChannelSink with the default buffer size.
func NewChannelSink() *ChannelSink {
	return &ChannelSink{
		ch: make(chan event.StreamEvent, defaultSinkBuffer),
	}
}

// Send enqueues the event without blocking. It returns ErrSinkClosed after
// Close, and an error when the buffer is full (the hub treats both as a
// dead subscriber).
func (s *ChannelSink) Send(e event.StreamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.ErrSinkClosed
	}
	select {
	case s.ch <- e:
		return nil
	default:
		return errors.New("sink buffer full")
	}
}

// Close closes the event channel, ending the drain loop of the connection
// handler. Safe to call more than once.
func (s *ChannelSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.ch)
	return nil
}

// Events returns the channel the connection handler ranges over. The
// channel is closed when the sink is closed.
func (s *ChannelSink) Events() <-chan event.StreamEvent {
	return s.ch
}

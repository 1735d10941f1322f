package broker

import (
	"cmp"
	"context"
	"slices"
	"strconv"
	"sync"
)

// Memory is an in-process broker. Received messages stay in flight until
// acknowledged, and Connect puts them back at the head of the queue, which
// mirrors the redis backend's recovery.
type Memory struct {
	mu       sync.Mutex
	pending  []Message
	inFlight map[string]Message
	seq      int
	closed   bool
	notify   chan struct{}
}

func NewMemory() *Memory {
	return &Memory{inFlight: make(map[string]Message), notify: make(chan struct{}, 1)}
}

func (m *Memory) Connect(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if len(m.inFlight) == 0 {
		return nil
	}
	requeued := make([]Message, 0, len(m.inFlight)+len(m.pending))
	for _, msg := range m.inFlight {
		requeued = append(requeued, msg)
	}
	slices.SortFunc(requeued, func(a, b Message) int { return cmp.Compare(seqOf(a), seqOf(b)) })
	m.pending = append(requeued, m.pending...)
	clear(m.inFlight)
	m.signal()
	return nil
}

// Receive returns the oldest pending message, or ErrNoMessage when the queue
// is empty. It does not block.
func (m *Memory) Receive(ctx context.Context) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Message{}, ErrClosed
	}
	if len(m.pending) == 0 {
		return Message{}, ErrNoMessage
	}
	msg := m.pending[0]
	m.pending = m.pending[1:]
	m.inFlight[msg.ID] = msg
	return msg, nil
}

func (m *Memory) Ack(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.inFlight[msg.ID]; !ok {
		return ErrUnknownMessage
	}
	delete(m.inFlight, msg.ID)
	return nil
}

// Nack puts an in-flight message back at the head of the queue.
func (m *Memory) Nack(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	held, ok := m.inFlight[msg.ID]
	if !ok {
		return ErrUnknownMessage
	}
	delete(m.inFlight, msg.ID)
	m.pending = append([]Message{held}, m.pending...)
	m.signal()
	return nil
}

func (m *Memory) Publish(_ context.Context, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.seq++
	m.pending = append(m.pending, Message{ID: strconv.Itoa(m.seq), Body: append([]byte(nil), body...)})
	m.signal()
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Len reports pending and in-flight counts.
func (m *Memory) Len() (pending, inFlight int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending), len(m.inFlight)
}

// Published is signalled after every Publish, Nack and Connect that requeued
// work.
func (m *Memory) Published() <-chan struct{} {
	return m.notify
}

func (m *Memory) signal() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func seqOf(m Message) int {
	n, _ := strconv.Atoi(m.ID)
	return n
}

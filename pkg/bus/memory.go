package bus

import "context"

// memoryBroker is the in-process broker used for local development and
// tests. The buffer keeps Publish non-blocking under normal load.
type memoryBroker struct {
	ch chan []byte
}

func newMemoryBroker() *memoryBroker {
	return &memoryBroker{ch: make(chan []byte, 1024)}
}

func (m *memoryBroker) enqueue(ctx context.Context, msg []byte) error {
	select {
	case m.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *memoryBroker) dequeue(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-m.ch:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *memoryBroker) close() error { return nil }

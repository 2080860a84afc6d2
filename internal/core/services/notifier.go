package services

import (
	"sync"

	"livecast/internal/core/domain"
)

// StreamNotifier fans lifecycle events out to in-process subscribers, such
// as the chat gateway tearing down rooms. Callbacks run synchronously on
// the caller's goroutine and must not block.
type StreamNotifier struct {
	mu      sync.RWMutex
	onEnded []func(domain.StreamID)
}

func NewStreamNotifier() *StreamNotifier {
	return &StreamNotifier{}
}

// OnEnded registers a callback invoked after a stream reaches ended or is
// deleted.
func (n *StreamNotifier) OnEnded(fn func(domain.StreamID)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onEnded = append(n.onEnded, fn)
}

// streamEnded is safe on a nil receiver so the lifecycle service can run
// without any subscribers wired up.
func (n *StreamNotifier) streamEnded(id domain.StreamID) {
	if n == nil {
		return
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, fn := range n.onEnded {
		fn(id)
	}
}

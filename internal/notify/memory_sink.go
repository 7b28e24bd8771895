package notify

import (
	"context"
	"sync"
)

// MemorySink stores notifications in memory for demo/test use.
type MemorySink struct {
	mu   sync.RWMutex
	sent []*Notification
}

// NewMemorySink creates an in-memory notification sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Send(ctx context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *n
	s.sent = append(s.sent, &cp)
	return nil
}

// Sent returns a copy of all notifications sent so far.
func (s *MemorySink) Sent() []*Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*Notification, 0, len(s.sent))
	for _, n := range s.sent {
		cp := *n
		result = append(result, &cp)
	}
	return result
}

// ByRecipient returns notifications sent to the given recipient.
func (s *MemorySink) ByRecipient(recipient string) []*Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*Notification
	for _, n := range s.sent {
		if n.Recipient == recipient {
			cp := *n
			result = append(result, &cp)
		}
	}
	return result
}

package collab

import (
	"context"
	"sync"
)

// MemoryProvider is an in-process Provider for tests and offline operation:
// documents open instantly and Send loops frames back into Updates, which is
// enough to exercise handle lifecycles end to end.
type MemoryProvider struct {
	mu       sync.Mutex
	open     map[string]int
	disposed map[string]int
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		open:     make(map[string]int),
		disposed: make(map[string]int),
	}
}

func (p *MemoryProvider) Open(_ context.Context, canonicalKey string) (*Doc, error) {
	p.mu.Lock()
	p.open[canonicalKey]++
	p.mu.Unlock()

	updates := make(chan []byte, 64)
	doc := &Doc{
		Key:     canonicalKey,
		Updates: updates,
		send: func(frame []byte) error {
			updates <- frame
			return nil
		},
		close: func() error {
			p.mu.Lock()
			p.disposed[canonicalKey]++
			p.mu.Unlock()
			close(updates)
			return nil
		},
	}
	return doc, nil
}

func (p *MemoryProvider) Dispose(doc *Doc) error {
	return doc.dispose()
}

// OpenCount reports how many times a key was opened.
func (p *MemoryProvider) OpenCount(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open[key]
}

// DisposedCount reports how many times a key was disposed.
func (p *MemoryProvider) DisposedCount(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disposed[key]
}

// LiveCount reports how many documents are currently open across all keys.
func (p *MemoryProvider) LiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for key, opened := range p.open {
		n += opened - p.disposed[key]
	}
	return n
}

package session

import "sync"

// AuthEvents is the authentication collaborator's surface: a payload-free
// logout signal the controller subscribes to exactly once at construction.
type AuthEvents interface {
	SubscribeLogout(fn func()) (unsubscribe func())
}

// Signal is a minimal AuthEvents implementation for wiring and tests.
type Signal struct {
	mu   sync.Mutex
	next int
	subs map[int]func()
}

func NewSignal() *Signal {
	return &Signal{subs: make(map[int]func())}
}

func (s *Signal) SubscribeLogout(fn func()) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// EmitLogout invokes every subscriber synchronously.
func (s *Signal) EmitLogout() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Package collab opens and disposes live collaborative-document instances.
// The CRDT merge algorithm lives on the other side of the sync connection;
// this package only manages the lifecycle of the pipe and relays opaque
// binary update frames.
package collab

import (
	"context"
	"errors"
	"sync"
)

// Doc is one live collaborative-document instance. Updates carries inbound
// CRDT frames until the document is disposed.
type Doc struct {
	Key     string
	Updates <-chan []byte

	send  func([]byte) error
	close func() error

	mu     sync.Mutex
	closed bool
}

var ErrDisposed = errors.New("collab: document disposed")

// Send pushes one outbound update frame.
func (d *Doc) Send(update []byte) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDisposed
	}
	send := d.send
	d.mu.Unlock()
	return send(update)
}

func (d *Doc) dispose() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()
	if d.close != nil {
		return d.close()
	}
	return nil
}

// Provider opens and disposes documents. The handle registry uses Open as its
// construction factory and Dispose as its teardown hook.
type Provider interface {
	Open(ctx context.Context, canonicalKey string) (*Doc, error)
	Dispose(doc *Doc) error
}

package collab

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

func closeDeadline() time.Time {
	return time.Now().Add(time.Second)
}

// WebsocketProvider dials one sync connection per document at
// <syncURL>/<canonicalKey> and relays binary CRDT frames.
type WebsocketProvider struct {
	syncURL string
	token   string
	dialer  *websocket.Dialer
}

func NewWebsocketProvider(syncURL, token string) *WebsocketProvider {
	return &WebsocketProvider{
		syncURL: syncURL,
		token:   token,
		dialer:  websocket.DefaultDialer,
	}
}

func (p *WebsocketProvider) Open(ctx context.Context, canonicalKey string) (*Doc, error) {
	endpoint := p.syncURL + "/" + url.PathEscape(canonicalKey)

	header := http.Header{}
	if p.token != "" {
		header.Set("Authorization", "Bearer "+p.token)
	}

	conn, _, err := p.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("dial sync endpoint for %s: %w", canonicalKey, err)
	}

	updates := make(chan []byte, 64)
	done := make(chan struct{})

	var writeMu sync.Mutex
	doc := &Doc{
		Key:     canonicalKey,
		Updates: updates,
		send: func(frame []byte) error {
			writeMu.Lock()
			defer writeMu.Unlock()
			return conn.WriteMessage(websocket.BinaryMessage, frame)
		},
		close: func() error {
			close(done)
			writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), closeDeadline())
			writeMu.Unlock()
			return conn.Close()
		},
	}

	// Read pump: inbound frames flow into Updates until the peer or a
	// dispose closes the connection.
	go func() {
		defer close(updates)
		for {
			kind, frame, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind != websocket.BinaryMessage {
				continue
			}
			select {
			case updates <- frame:
			case <-done:
				return
			}
		}
	}()

	return doc, nil
}

func (p *WebsocketProvider) Dispose(doc *Doc) error {
	return doc.dispose()
}

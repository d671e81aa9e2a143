package collab

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestMemoryProviderLifecycle(t *testing.T) {
	p := NewMemoryProvider()
	ctx := context.Background()

	doc, err := p.Open(ctx, "k1")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if p.OpenCount("k1") != 1 || p.LiveCount() != 1 {
		t.Errorf("open=%d live=%d, want 1/1", p.OpenCount("k1"), p.LiveCount())
	}

	if err := doc.Send([]byte("update")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	select {
	case frame := <-doc.Updates:
		if string(frame) != "update" {
			t.Errorf("frame = %q", frame)
		}
	case <-time.After(time.Second):
		t.Fatal("no frame received")
	}

	if err := p.Dispose(doc); err != nil {
		t.Fatalf("Dispose failed: %v", err)
	}
	if p.LiveCount() != 0 {
		t.Errorf("LiveCount = %d after dispose", p.LiveCount())
	}
	if err := doc.Send([]byte("late")); err != ErrDisposed {
		t.Errorf("Send after dispose = %v, want ErrDisposed", err)
	}
	// Dispose is idempotent.
	if err := p.Dispose(doc); err != nil {
		t.Errorf("second Dispose = %v", err)
	}
}

func TestWebsocketProviderRelaysFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/key-1") {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Echo binary frames back, the shape of a sync relay.
		for {
			kind, frame, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(kind, frame); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	p := NewWebsocketProvider(wsURL, "tok")

	doc, err := p.Open(context.Background(), "key-1")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer p.Dispose(doc)

	if err := doc.Send([]byte{0x01, 0x02}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	select {
	case frame := <-doc.Updates:
		if len(frame) != 2 || frame[0] != 0x01 {
			t.Errorf("frame = %v", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no echo frame received")
	}
}

func TestWebsocketProviderDialFailure(t *testing.T) {
	p := NewWebsocketProvider("ws://127.0.0.1:1", "")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := p.Open(ctx, "key-1"); err == nil {
		t.Fatal("expected dial error")
	}
}

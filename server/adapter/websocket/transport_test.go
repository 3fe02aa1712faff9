package adapterwebsocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"ledpong/server/domain"
)

// newPair はhttptestサーバー上でWebSocketを張り、サーバー側のTransportとクライアント接続を返します。
func newPair(t *testing.T) (domain.Transport, *websocket.Conn) {
	t.Helper()
	accepted := make(chan domain.Transport, 1)
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		accepted <- NewTransportFrom(conn)
		<-done
	}))
	t.Cleanup(func() {
		close(done)
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.CloseNow() })

	select {
	case tr := <-accepted:
		return tr, client
	case <-ctx.Done():
		t.Fatal("server did not accept")
		return nil, nil
	}
}

func TestTransport_BinaryRoundTrip(t *testing.T) {
	tr, client := newPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	msg := domain.EncodePingMessage(domain.NewSessionID())
	if err := client.Write(ctx, websocket.MessageBinary, msg); err != nil {
		t.Fatalf("client write: %v", err)
	}
	got, err := tr.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(got) != string(msg) {
		t.Errorf("Read() = %v, want %v", got, msg)
	}

	if err := tr.Write(ctx, []byte{1, 2, 3}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	typ, data, err := client.Read(ctx)
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	if typ != websocket.MessageBinary || len(data) != 3 {
		t.Errorf("client got %s %v, want binary [1 2 3]", typ, data)
	}
}

func TestTransport_RejectsTextMessages(t *testing.T) {
	tr, client := newPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Write(ctx, websocket.MessageText, []byte("hello")); err != nil {
		t.Fatalf("client write: %v", err)
	}
	if _, err := tr.Read(ctx); !errors.Is(err, ErrUnexpectedMessageType) {
		t.Errorf("Read() error = %v, want %v", err, ErrUnexpectedMessageType)
	}
}

func TestTransport_Close(t *testing.T) {
	tr, client := newPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Closeハンドシェイクはクライアントの読み込みで応答する
	readErr := make(chan error, 1)
	go func() {
		_, _, err := client.Read(ctx)
		readErr <- err
	}()

	if err := tr.Close(domain.StatusNormalClosure, "bye"); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	err := <-readErr
	if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		t.Errorf("client close status = %v, want normal closure", websocket.CloseStatus(err))
	}
}

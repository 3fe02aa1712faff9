package adapterwebsocket

import (
	"context"
	"errors"
	"fmt"

	"github.com/coder/websocket"

	"ledpong/server/domain"
)

// ErrUnexpectedMessageType はバイナリ以外のメッセージを受信した場合に返されるエラーです。
var ErrUnexpectedMessageType = errors.New("unexpected websocket message type")

// readLimit は1メッセージの最大サイズです。
const readLimit = 4096

type wsTransport struct {
	conn *websocket.Conn
}

var _ domain.Transport = (*wsTransport)(nil)

func NewTransportFrom(conn *websocket.Conn) domain.Transport {
	conn.SetReadLimit(readLimit)
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	typ, data, err := t.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	if typ != websocket.MessageBinary {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedMessageType, typ)
	}
	return data, nil
}

func (t *wsTransport) Write(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageBinary, data)
}

func (t *wsTransport) Close(code int32, reason string) error {
	return t.conn.Close(websocket.StatusCode(code), reason)
}

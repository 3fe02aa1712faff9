package domain

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrBackpressure は書き込みチャネルが満杯の場合に返されるエラーです。
	ErrBackpressure = errors.New("write channel is full, apply backpressure")
	// ErrInitializationFailed はセッションエンドポイントの初期化に失敗した場合に返されるエラーです。
	ErrInitializationFailed = errors.New("failed to initialize session endpoint")
	// ErrEndpointClosed は既に閉じたエンドポイントに送信した場合に返されるエラーです。
	ErrEndpointClosed = errors.New("session endpoint is closed")
)

// EndpointConfig はSessionEndpointの死活監視設定です。
type EndpointConfig struct {
	PingInterval time.Duration // 0以下ならpingを送らない
	IdleTimeout  time.Duration // 0以下ならアイドル切断しない
}

func DefaultEndpointConfig() EndpointConfig {
	return EndpointConfig{
		PingInterval: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
}

type SessionEndpoint struct {
	ctx    context.Context
	cancel context.CancelFunc

	session     *Session
	connection  *Connection
	pubsub      PubSub
	roomManager RoomManager
	config      EndpointConfig

	roomMu sync.Mutex
	roomID RoomID // joinで決定する

	ctrlCh  chan endpointEvent // 制御用チャネル
	writeCh chan []byte        // 書き込み用チャネル

	// lifecycle
	closed atomic.Bool
}

func NewSessionEndpoint(ctx context.Context, session *Session, connection *Connection, pubsub PubSub, roomManager RoomManager, config EndpointConfig) (*SessionEndpoint, error) {
	if session == nil || connection == nil || pubsub == nil || roomManager == nil {
		return nil, ErrInitializationFailed
	}
	ctx, cancel := context.WithCancel(ctx)
	se := &SessionEndpoint{
		ctx:         ctx,
		cancel:      cancel,
		session:     session,
		connection:  connection,
		pubsub:      pubsub,
		roomManager: roomManager,
		config:      config,
		ctrlCh:      make(chan endpointEvent, 16),
		writeCh:     make(chan []byte, 1024),
	}
	return se, nil
}

// Run は接続が閉じるまでブロックします。
func (se *SessionEndpoint) Run() error {
	// 自分宛のメッセージを購読
	sessionTopic := SessionTopic(se.session.ID())
	msgCh := se.pubsub.Subscribe(sessionTopic)
	defer se.pubsub.Unsubscribe(sessionTopic, msgCh)
	defer se.close()

	heartbeat := NewHeartbeatService(se.config.PingInterval, se.session.ID(), se.Send)

	eg, ctx := errgroup.WithContext(se.ctx)
	eg.Go(func() error {
		se.ownerLoop(ctx)
		return nil
	})
	eg.Go(func() error {
		se.readLoop(ctx)
		return nil
	})
	eg.Go(func() error {
		se.writeLoop(ctx)
		return nil
	})
	eg.Go(func() error {
		se.subscribeLoop(ctx, msgCh)
		return nil
	})
	eg.Go(func() error {
		heartbeat.Run(ctx)
		return nil
	})

	// セッションID通知を送信
	if err := se.Send(EncodeAssignMessage(se.session.ID())); err != nil {
		se.close()
		_ = eg.Wait()
		return err
	}

	return eg.Wait()
}

func (se *SessionEndpoint) Session() *Session {
	return se.session
}

// RoomID は参加中のルームを返します。未参加なら空です。
func (se *SessionEndpoint) RoomID() RoomID {
	se.roomMu.Lock()
	defer se.roomMu.Unlock()
	return se.roomID
}

func (se *SessionEndpoint) setRoomID(id RoomID) {
	se.roomMu.Lock()
	se.roomID = id
	se.roomMu.Unlock()
}

func (se *SessionEndpoint) Send(data []byte) error {
	if se.closed.Load() {
		return ErrEndpointClosed
	}
	select {
	case se.writeCh <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (se *SessionEndpoint) Close(ctx context.Context) {
	se.sendCtrlEvent(ctx, endpointEvent{kind: evClose})
}

func (se *SessionEndpoint) ForceClose() {
	se.close()
}

// ownerLoop は論理セッションの状態を監視し、必要に応じて接続の管理を行います。
func (se *SessionEndpoint) ownerLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-se.ctrlCh:
			se.handleControlEvent(ctx, ev)
		case <-ticker.C:
			if ok, reason := se.session.IsIdle(se.config.IdleTimeout); ok {
				se.handleControlEvent(ctx, endpointEvent{
					kind: evClose,
					err:  errors.New(reason.String()),
				})
			}
		}
	}
}

func (se *SessionEndpoint) readLoop(ctx context.Context) {
	for {
		data, err := se.connection.Read(ctx)
		if err != nil {
			se.sendCtrlEvent(ctx, endpointEvent{kind: evReadError, err: err})
			return
		}
		se.session.TouchRead()
		se.handleData(ctx, data)
	}
}

func (se *SessionEndpoint) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-se.writeCh:
			if err := se.connection.Write(ctx, data); err != nil {
				se.sendCtrlEvent(ctx, endpointEvent{kind: evWriteError, err: err})
				return
			}
			se.session.TouchWrite()
		}
	}
}

// subscribeLoop はpubsubからのメッセージをwriteChに転送します。
func (se *SessionEndpoint) subscribeLoop(ctx context.Context, msgCh <-chan Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			select {
			case se.writeCh <- msg.Data:
			default:
				slog.WarnContext(ctx, "subscribeLoop: writeCh full, message dropped", "sessionID", se.session.ID())
			}
		}
	}
}

func (se *SessionEndpoint) close() {
	if !se.closed.CompareAndSwap(false, true) {
		return
	}
	// 異常切断でもRoomから離脱させる
	if roomID := se.RoomID(); !roomID.IsEmpty() {
		se.pubsub.Publish(context.Background(), RoomTopic(roomID), Message{
			SessionID: se.session.ID(),
			Data:      EncodeLeaveMessage(se.session.ID()),
		})
		se.setRoomID("")
	}
	se.cancel()
	se.session.Close()
	se.connection.Close()
}

func (se *SessionEndpoint) handleData(ctx context.Context, data []byte) {
	frame, err := ParseFrame(data)
	if err != nil {
		slog.WarnContext(ctx, "failed to parse frame", "sessionID", se.session.ID(), "err", err)
		return
	}
	if frame.Header.SessionID != se.session.ID().Bytes() {
		slog.WarnContext(ctx, "session ID mismatch", "expected", se.session.ID(), "got", SessionIDFromBytes(frame.Header.SessionID))
		return
	}

	switch frame.PayloadHeader.DataType {
	case DataTypeControl:
		se.handleControlMessage(ctx, ControlSubType(frame.PayloadHeader.SubType), frame.Payload, data)
	case DataTypeInput:
		// 入力をroom topicに転送
		roomID := se.RoomID()
		if roomID.IsEmpty() {
			slog.WarnContext(ctx, "received input before joining a room", "sessionID", se.session.ID())
			return
		}
		se.pubsub.Publish(ctx, RoomTopic(roomID), Message{SessionID: se.session.ID(), Data: data})
	default:
		slog.WarnContext(ctx, "unknown data type", "dataType", frame.PayloadHeader.DataType)
	}
}

func (se *SessionEndpoint) handleControlMessage(ctx context.Context, subType ControlSubType, payload, data []byte) {
	switch subType {
	case ControlSubTypeJoin:
		join, err := ParseJoinPayload(payload)
		if err != nil {
			slog.WarnContext(ctx, "failed to parse join message", "err", err)
			return
		}
		if !se.RoomID().IsEmpty() {
			slog.WarnContext(ctx, "session already in a room", "sessionID", se.session.ID(), "roomID", se.RoomID())
			return
		}
		roomID := join.RoomID
		// RoomIDが空の場合、RoomManagerからデフォルトルームを取得
		if roomID.IsEmpty() {
			roomID, err = se.roomManager.GetRoom(ctx, se.session.ID())
			if err != nil {
				slog.ErrorContext(ctx, "failed to get default room", "err", err)
				return
			}
			slog.DebugContext(ctx, "auto-assigned room", "sessionID", se.session.ID(), "roomID", roomID)
		}
		se.setRoomID(roomID)
		slog.InfoContext(ctx, "session joined room", "sessionID", se.session.ID(), "roomID", roomID)
		// room topicにJoinメッセージをpublish（Roomでsessions追加）
		se.pubsub.Publish(ctx, RoomTopic(roomID), Message{SessionID: se.session.ID(), Data: data})
	case ControlSubTypeLeave:
		roomID := se.RoomID()
		if roomID.IsEmpty() {
			slog.WarnContext(ctx, "session not in any room, cannot leave", "sessionID", se.session.ID())
			return
		}
		se.pubsub.Publish(ctx, RoomTopic(roomID), Message{SessionID: se.session.ID(), Data: data})
		slog.InfoContext(ctx, "session left room", "sessionID", se.session.ID(), "roomID", roomID)
		se.setRoomID("")
	case ControlSubTypePing:
		if err := se.Send(EncodePongMessage(se.session.ID())); err != nil {
			slog.WarnContext(ctx, "failed to send pong", "sessionID", se.session.ID(), "err", err)
		}
	case ControlSubTypePong:
		se.sendCtrlEvent(ctx, endpointEvent{kind: evPong})
	default:
		slog.WarnContext(ctx, "unsupported control message", "subType", subType)
	}
}

// handleControlEvent は制御チャネルからのイベントを処理し論理セッションの状態を更新する唯一の関数です。
func (se *SessionEndpoint) handleControlEvent(ctx context.Context, ev endpointEvent) {
	switch ev.kind {
	case evClose:
		slog.InfoContext(ctx, "session closing", "sessionID", se.session.ID(), "reason", ev.err)
		se.close()
	case evPong:
		se.session.TouchPong()
	case evReadError, evWriteError:
		slog.DebugContext(ctx, "connection error", "sessionID", se.session.ID(), "kind", ev.kind, "err", ev.err)
		se.close()
	default:
		slog.WarnContext(ctx, "unknown endpoint event kind", "kind", ev.kind)
	}
}

func (se *SessionEndpoint) sendCtrlEvent(ctx context.Context, ev endpointEvent) {
	select {
	case se.ctrlCh <- ev:
	case <-ctx.Done():
	}
}

package domain

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

var ErrRoomBusy = errors.New("room send channel is full")

const DefaultTickRate = 60

type roomSendKind uint8

const (
	roomSendBroadcast roomSendKind = iota
	roomSendTo
)

type roomSend struct {
	kind      roomSendKind
	sessionID SessionID
	data      []byte
}

type Room struct {
	ID       RoomID
	sessions map[SessionID]struct{}

	pubsub      PubSub
	application Application // 外部からアプリケーションロジックを注入できる

	sendCh chan roomSend

	tickInterval time.Duration
	ticks        metric.Int64Counter
}

// NewRoom はルームを生成します。tickRate が0以下の場合は DefaultTickRate を使います。
func NewRoom(id RoomID, pubsub PubSub, application Application, tickRate int) *Room {
	if tickRate <= 0 {
		tickRate = DefaultTickRate
	}
	return &Room{
		ID:           id,
		sessions:     make(map[SessionID]struct{}),
		pubsub:       pubsub,
		application:  application,
		sendCh:       make(chan roomSend, 1024),
		tickInterval: time.Second / time.Duration(tickRate),
		ticks:        newTickCounter(),
	}
}

func newTickCounter() metric.Int64Counter {
	counter, err := otel.Meter("ledpong/server/domain").Int64Counter(
		"room.ticks",
		metric.WithDescription("Total room ticks executed"),
	)
	if err != nil {
		slog.Warn("room: tick counter unavailable", "err", err)
		return noop.Int64Counter{}
	}
	return counter
}

// SessionCount は参加中のセッション数を返します。Runのゴルーチン以外から呼ばないでください。
func (r *Room) SessionCount() int {
	return len(r.sessions)
}

func (r *Room) Broadcast(ctx context.Context, data []byte) {
	for sessionID := range r.sessions {
		r.pubsub.Publish(ctx, SessionTopic(sessionID), Message{Data: data})
	}
}

func (r *Room) SendTo(ctx context.Context, sessionID SessionID, data []byte) {
	r.pubsub.Publish(ctx, SessionTopic(sessionID), Message{Data: data})
}

func (r *Room) EnqueueBroadcast(ctx context.Context, data []byte) error {
	return r.enqueueSend(ctx, roomSend{kind: roomSendBroadcast, data: data})
}

func (r *Room) EnqueueSendTo(ctx context.Context, sessionID SessionID, data []byte) error {
	return r.enqueueSend(ctx, roomSend{kind: roomSendTo, sessionID: sessionID, data: data})
}

func (r *Room) enqueueSend(ctx context.Context, msg roomSend) error {
	select {
	case <-ctx.Done():
		return nil
	case r.sendCh <- msg:
		return nil
	default:
		return ErrRoomBusy
	}
}

func (r *Room) Run(ctx context.Context) error {
	// room宛のメッセージを購読
	roomTopic := RoomTopic(r.ID)
	msgCh := r.pubsub.Subscribe(roomTopic)
	defer r.pubsub.Unsubscribe(roomTopic, msgCh)

	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	roomAttr := metric.WithAttributes(attribute.String("room", r.ID.String()))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			// 受信メッセージを処理
		RECEIVE_LOOP:
			for {
				select {
				case msg := <-msgCh:
					r.handleMessage(ctx, msg)
				default:
					break RECEIVE_LOOP
				}
			}
			// キューに積まれた個別送信を処理
		SEND_LOOP:
			for {
				select {
				case msg := <-r.sendCh:
					r.handleSendMessage(ctx, msg)
				default:
					break SEND_LOOP
				}
			}
			// ApplicationのTick()を呼び出し、戻り値があればブロードキャスト
			if data := r.application.Tick(ctx); data != nil {
				r.Broadcast(ctx, data)
			}
			r.ticks.Add(ctx, 1, roomAttr)
		}
	}
}

// handleMessage はjoin/leaveでセッション集合を更新してからアプリケーションに渡します。
func (r *Room) handleMessage(ctx context.Context, msg Message) {
	frame, err := ParseFrame(msg.Data)
	if err != nil {
		slog.WarnContext(ctx, "room: invalid message", "sessionID", msg.SessionID, "err", err)
		return
	}
	if frame.PayloadHeader.DataType == DataTypeControl {
		switch ControlSubType(frame.PayloadHeader.SubType) {
		case ControlSubTypeJoin:
			r.sessions[msg.SessionID] = struct{}{}
			slog.DebugContext(ctx, "room: session joined", "roomID", r.ID, "sessionID", msg.SessionID)
		case ControlSubTypeLeave:
			delete(r.sessions, msg.SessionID)
			slog.DebugContext(ctx, "room: session left", "roomID", r.ID, "sessionID", msg.SessionID)
		}
	}

	// アプリケーションロジックが担当する
	event, err := r.application.Parse(ctx, msg.SessionID, msg.Data)
	if err != nil {
		slog.WarnContext(ctx, "room parse message failed", "err", err)
		return
	}
	if event == nil {
		return
	}
	if err := r.application.Handle(ctx, event); err != nil {
		slog.WarnContext(ctx, "room handle message failed", "err", err)
	}
}

func (r *Room) handleSendMessage(ctx context.Context, msg roomSend) {
	switch msg.kind {
	case roomSendBroadcast:
		r.Broadcast(ctx, msg.data)
	case roomSendTo:
		r.SendTo(ctx, msg.sessionID, msg.data)
	default:
	}
}

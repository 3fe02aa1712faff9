package domain

import (
	"context"
	"log/slog"
	"time"
)

// HeartbeatService は定期的にpingメッセージを送信する死活監視サービスです。
type HeartbeatService struct {
	pingInterval time.Duration
	sessionID    SessionID
	send         func(data []byte) error
}

// NewHeartbeatService は新しいHeartbeatServiceを生成します。
// send には SessionEndpoint.Send のような非ブロッキングの送信関数を渡します。
func NewHeartbeatService(pingInterval time.Duration, sessionID SessionID, send func(data []byte) error) *HeartbeatService {
	return &HeartbeatService{
		pingInterval: pingInterval,
		sessionID:    sessionID,
		send:         send,
	}
}

// Run はpingInterval間隔でpingメッセージを送信します。
// pingIntervalが0以下の場合は何もせずに戻ります。ctxがキャンセルされると終了します。
func (h *HeartbeatService) Run(ctx context.Context) {
	if h.pingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.send(EncodePingMessage(h.sessionID)); err != nil {
				slog.WarnContext(ctx, "heartbeat: ping dropped", "sessionID", h.sessionID, "err", err)
				continue
			}
			slog.DebugContext(ctx, "heartbeat: ping sent", "sessionID", h.sessionID)
		}
	}
}

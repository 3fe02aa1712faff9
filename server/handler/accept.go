package handler

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"ledpong/internal/auth"
	adapterwebsocket "ledpong/server/adapter/websocket"
	"ledpong/server/domain"
)

type AcceptHandler struct {
	pubsub         domain.PubSub
	roomManager    domain.RoomManager
	endpointConfig domain.EndpointConfig
	verifier       *auth.Verifier // nil なら認証しない
	acceptOptions  *websocket.AcceptOptions
}

func NewAcceptHandler(pubsub domain.PubSub, roomManager domain.RoomManager, endpointConfig domain.EndpointConfig, verifier *auth.Verifier) *AcceptHandler {
	return &AcceptHandler{
		pubsub:         pubsub,
		roomManager:    roomManager,
		endpointConfig: endpointConfig,
		verifier:       verifier,
		acceptOptions: &websocket.AcceptOptions{
			InsecureSkipVerify: true, // 開発用: Origin チェックをスキップ
		},
	}
}

func (h *AcceptHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.verifier != nil {
		subject, err := h.verifier.Verify(auth.TokenFromRequest(r))
		if err != nil {
			slog.WarnContext(ctx, "rejected connection", "remote", r.RemoteAddr, "err", err)
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		slog.DebugContext(ctx, "token verified", "subject", subject)
	}

	conn, err := websocket.Accept(w, r, h.acceptOptions)
	if err != nil {
		slog.ErrorContext(ctx, "failed to accept", "err", err)
		return
	}

	session := domain.NewSession()
	transport := adapterwebsocket.NewTransportFrom(conn)
	connection := domain.NewConnection(session.ID(), transport)
	endpoint, err := domain.NewSessionEndpoint(ctx, session, connection, h.pubsub, h.roomManager, h.endpointConfig)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create session endpoint", "err", err)
		conn.CloseNow()
		return
	}
	slog.DebugContext(ctx, "accepted new connection", "sessionID", session.ID(), "remote", r.RemoteAddr)
	if err := endpoint.Run(); err != nil {
		slog.ErrorContext(ctx, "failed to run session endpoint", "sessionID", session.ID(), "err", err)
		return
	}
	slog.DebugContext(ctx, "connection closed", "sessionID", session.ID())
}

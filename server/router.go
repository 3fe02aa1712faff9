package server

import (
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ledpong/internal/auth"
	"ledpong/server/domain"
	"ledpong/server/handler"
)

// Route はHTTPハンドラを組み立てます。verifier が nil なら /ws は認証しません。
func Route(pubsub domain.PubSub, roomManager domain.RoomManager, endpointConfig domain.EndpointConfig, verifier *auth.Verifier) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handler.NewHealthHandler())
	r.Method(http.MethodGet, "/ws", handler.NewAcceptHandler(pubsub, roomManager, endpointConfig, verifier))
	return otelhttp.NewHandler(r, "ledpong")
}

package domain

import "context"

// Event はApplication.Parseが返すアプリケーション固有のイベントです。
type Event any

// Application はRoomのtickループから駆動されるゲームロジックです。
// Parse/Handle/Tick はすべてRoomのゴルーチンから呼ばれます。
type Application interface {
	Parse(ctx context.Context, sessionID SessionID, data []byte) (Event, error)
	Handle(ctx context.Context, event Event) error
	// Tick は1フレーム進め、全セッションにブロードキャストするデータを返します。nilなら送信しません。
	Tick(ctx context.Context) []byte
}

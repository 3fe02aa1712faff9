package domain

import (
	"context"
	"strings"
)

//go:generate go tool mockgen -destination=./mocks/room_manager_mock.go -package=mocks . RoomManager

// RoomIDSize はJoinPayloadに格納できるルーム名の最大バイト数です。
const RoomIDSize = 16

// RoomID はルーム名です。
type RoomID string

func (id RoomID) String() string { return string(id) }

func (id RoomID) IsEmpty() bool { return id == "" }

// Bytes はルーム名を16バイトのゼロ埋め配列に変換します。超過分は切り捨てます。
func (id RoomID) Bytes() [RoomIDSize]byte {
	var b [RoomIDSize]byte
	copy(b[:], id)
	return b
}

func RoomIDFromBytes(b [RoomIDSize]byte) RoomID {
	return RoomID(strings.TrimRight(string(b[:]), "\x00"))
}

// RoomManager はセッションの参加先ルームを決定します。
type RoomManager interface {
	GetRoom(ctx context.Context, sessionID SessionID) (RoomID, error)
}

// SimpleRoomManager は全セッションを同じデフォルトルームに割り当てます。
type SimpleRoomManager struct {
	defaultRoom RoomID
}

var _ RoomManager = (*SimpleRoomManager)(nil)

func NewSimpleRoomManager(defaultRoom RoomID) *SimpleRoomManager {
	return &SimpleRoomManager{defaultRoom: defaultRoom}
}

func (m *SimpleRoomManager) GetRoom(ctx context.Context, sessionID SessionID) (RoomID, error) {
	return m.defaultRoom, nil
}

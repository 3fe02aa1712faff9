package domain

import (
	"errors"
	"math"
)

const (
	Position2DSize   = 8 // 2 * float32
	StateTrailLength = 3
	StatePayloadSize = 6 + 2*Position2DSize + 1 + StateTrailLength*Position2DSize + 2*4
)

var (
	ErrInvalidPosition2DData   = errors.New("invalid position2d data: expected 8 bytes")
	ErrInvalidStatePayloadSize = errors.New("invalid state payload size")
)

// Position2D は2D位置データ (8バイト)
//
//	x, y float32 (8)
type Position2D struct {
	X, Y float32
}

// ParsePosition2D はバイト列からPosition2Dをパースする
func ParsePosition2D(data []byte) (*Position2D, error) {
	if len(data) < Position2DSize {
		return nil, ErrInvalidPosition2DData
	}
	p := decodePosition2D(data)
	return &p, nil
}

// decodePosition2D は長さ検証済みのバイト列を読みます。
func decodePosition2D(data []byte) Position2D {
	return Position2D{
		X: math.Float32frombits(byteOrder.Uint32(data[0:4])),
		Y: math.Float32frombits(byteOrder.Uint32(data[4:8])),
	}
}

// Encode はPosition2Dをバイト列にエンコードする
func (p *Position2D) Encode() []byte {
	return p.appendTo(make([]byte, 0, Position2DSize))
}

func (p *Position2D) appendTo(buf []byte) []byte {
	buf = byteOrder.AppendUint32(buf, math.Float32bits(p.X))
	return byteOrder.AppendUint32(buf, math.Float32bits(p.Y))
}

// StatePayload はサーバーが毎tickブロードキャストするゲーム状態 (55バイト)
//
//	phase        u8            (1)
//	winner       u8            (1)
//	playerScore  u8            (1)
//	aiScore      u8            (1)
//	countdown    i8            (1)
//	cues         u8            (1)  - このtickで発生した効果音のビットマスク
//	ballPos      Position2D    (8)
//	ballVel      Position2D    (8)
//	trailLen     u8            (1)
//	trail        3*Position2D  (24) - 新しい順
//	playerY      f32           (4)
//	aiY          f32           (4)
type StatePayload struct {
	Phase       uint8
	Winner      uint8
	PlayerScore uint8
	AIScore     uint8
	Countdown   int8
	Cues        uint8
	BallPos     Position2D
	BallVel     Position2D
	TrailLen    uint8
	Trail       [StateTrailLength]Position2D
	PlayerY     float32
	AIY         float32
}

// ParseStatePayload はバイト列からStatePayloadをパースする
func ParseStatePayload(data []byte) (*StatePayload, error) {
	if len(data) < StatePayloadSize {
		return nil, ErrInvalidStatePayloadSize
	}

	s := &StatePayload{
		Phase:       data[0],
		Winner:      data[1],
		PlayerScore: data[2],
		AIScore:     data[3],
		Countdown:   int8(data[4]),
		Cues:        data[5],
	}
	offset := 6
	s.BallPos = decodePosition2D(data[offset:])
	offset += Position2DSize
	s.BallVel = decodePosition2D(data[offset:])
	offset += Position2DSize

	s.TrailLen = data[offset]
	if s.TrailLen > StateTrailLength {
		return nil, ErrInvalidStatePayloadSize
	}
	offset++
	for i := range s.Trail {
		s.Trail[i] = decodePosition2D(data[offset:])
		offset += Position2DSize
	}

	s.PlayerY = math.Float32frombits(byteOrder.Uint32(data[offset : offset+4]))
	s.AIY = math.Float32frombits(byteOrder.Uint32(data[offset+4 : offset+8]))
	return s, nil
}

// Encode はStatePayloadをバイト列にエンコードする
func (s *StatePayload) Encode() []byte {
	buf := make([]byte, 0, StatePayloadSize)
	buf = append(buf, s.Phase, s.Winner, s.PlayerScore, s.AIScore, byte(s.Countdown), s.Cues)
	buf = s.BallPos.appendTo(buf)
	buf = s.BallVel.appendTo(buf)
	buf = append(buf, s.TrailLen)
	for i := range s.Trail {
		buf = s.Trail[i].appendTo(buf)
	}
	buf = byteOrder.AppendUint32(buf, math.Float32bits(s.PlayerY))
	return byteOrder.AppendUint32(buf, math.Float32bits(s.AIY))
}

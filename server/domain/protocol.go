package domain

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// バイトオーダー: リトルエンディアン
var byteOrder = binary.LittleEndian

const (
	ProtocolVersion   = 1
	HeaderSize        = 25
	PayloadHeaderSize = 2
	JoinPayloadSize   = RoomIDSize
	InputPayloadSize  = 4
)

// Header はメッセージヘッダー (25バイト)
//
//	version    u8      (1)
//	sessionID  [16]byte (16)
//	seq        u16     (2)
//	length     u16     (2)  - PayloadHeaderを含むペイロード長
//	timestamp  u32     (4)
type Header struct {
	Version   uint8
	SessionID [16]byte
	Seq       uint16
	Length    uint16
	Timestamp uint32
}

// DataType はメッセージの種別
type DataType uint8

const (
	DataTypeInput   DataType = 1 // client -> server
	DataTypeState   DataType = 2 // server -> client
	DataTypeControl DataType = 4
)

// ControlSubType はcontrolメッセージのサブタイプ
type ControlSubType uint8

const (
	ControlSubTypeJoin   ControlSubType = 1
	ControlSubTypeLeave  ControlSubType = 2
	ControlSubTypeKick   ControlSubType = 3
	ControlSubTypePing   ControlSubType = 4
	ControlSubTypePong   ControlSubType = 5
	ControlSubTypeError  ControlSubType = 6
	ControlSubTypeAssign ControlSubType = 7
)

// PayloadHeader はペイロードヘッダー (2バイト)
//
//	datatype  u8 (1)
//	subtype   u8 (1)
type PayloadHeader struct {
	DataType DataType
	SubType  uint8
}

var (
	ErrInvalidHeaderSize       = errors.New("invalid header size")
	ErrInvalidPayloadSize      = errors.New("invalid payload size")
	ErrInvalidJoinPayloadSize  = errors.New("invalid join payload size")
	ErrInvalidInputPayloadSize = errors.New("invalid input payload size")
	ErrUnsupportedVersion      = errors.New("unsupported protocol version")
)

// ParseHeader はバイト列からHeaderをパースする
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, ErrInvalidHeaderSize
	}

	var sessionID [16]byte
	copy(sessionID[:], data[1:17])

	return &Header{
		Version:   data[0],
		SessionID: sessionID,
		Seq:       byteOrder.Uint16(data[17:19]),
		Length:    byteOrder.Uint16(data[19:21]),
		Timestamp: byteOrder.Uint32(data[21:25]),
	}, nil
}

// Encode はHeaderをバイト列にエンコードする
func (h *Header) Encode() []byte {
	data := make([]byte, HeaderSize)
	data[0] = h.Version
	copy(data[1:17], h.SessionID[:])
	byteOrder.PutUint16(data[17:19], h.Seq)
	byteOrder.PutUint16(data[19:21], h.Length)
	byteOrder.PutUint32(data[21:25], h.Timestamp)
	return data
}

// ParsePayloadHeader はバイト列からPayloadHeaderをパースする
func ParsePayloadHeader(data []byte) (*PayloadHeader, error) {
	if len(data) < PayloadHeaderSize {
		return nil, ErrInvalidPayloadSize
	}

	return &PayloadHeader{
		DataType: DataType(data[0]),
		SubType:  data[1],
	}, nil
}

// Encode はPayloadHeaderをバイト列にエンコードする
func (p *PayloadHeader) Encode() []byte {
	return []byte{byte(p.DataType), p.SubType}
}

// Frame はパース済みのメッセージです。
type Frame struct {
	Header        *Header
	PayloadHeader *PayloadHeader
	Payload       []byte
}

// ParseFrame はヘッダーとペイロードヘッダーを検証し、ペイロード本体を切り出す
func ParseFrame(data []byte) (*Frame, error) {
	header, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	if header.Version != ProtocolVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, header.Version)
	}
	body := data[HeaderSize:]
	if header.Length < PayloadHeaderSize || int(header.Length) > len(body) {
		return nil, ErrInvalidPayloadSize
	}
	payloadHeader, err := ParsePayloadHeader(body)
	if err != nil {
		return nil, err
	}
	return &Frame{
		Header:        header,
		PayloadHeader: payloadHeader,
		Payload:       body[PayloadHeaderSize:header.Length],
	}, nil
}

// EncodeMessage はヘッダー・ペイロードヘッダー・ペイロードを連結する
func EncodeMessage(sessionID SessionID, seq uint16, dataType DataType, subType uint8, payload []byte) []byte {
	header := Header{
		Version:   ProtocolVersion,
		SessionID: sessionID.Bytes(),
		Seq:       seq,
		Length:    uint16(PayloadHeaderSize + len(payload)),
		Timestamp: uint32(time.Now().UnixMilli() & 0xFFFFFFFF),
	}
	payloadHeader := PayloadHeader{DataType: dataType, SubType: subType}

	data := make([]byte, 0, HeaderSize+PayloadHeaderSize+len(payload))
	data = append(data, header.Encode()...)
	data = append(data, payloadHeader.Encode()...)
	return append(data, payload...)
}

func encodeControlMessage(sessionID SessionID, subType ControlSubType, payload []byte) []byte {
	return EncodeMessage(sessionID, 0, DataTypeControl, uint8(subType), payload)
}

// EncodeAssignMessage はクライアントに自分のセッションIDを通知するメッセージ
func EncodeAssignMessage(sessionID SessionID) []byte {
	return encodeControlMessage(sessionID, ControlSubTypeAssign, nil)
}

// EncodeJoinMessage はルーム参加メッセージ。roomIDが空ならサーバーがデフォルトルームを割り当てる
func EncodeJoinMessage(sessionID SessionID, roomID RoomID) []byte {
	join := JoinPayload{RoomID: roomID}
	return encodeControlMessage(sessionID, ControlSubTypeJoin, join.Encode())
}

// EncodeLeaveMessage はルーム離脱メッセージ
// 異常切断時にclose()からRoom離脱を通知するためにも使用
func EncodeLeaveMessage(sessionID SessionID) []byte {
	return encodeControlMessage(sessionID, ControlSubTypeLeave, nil)
}

// EncodePingMessage は死活確認のping
func EncodePingMessage(sessionID SessionID) []byte {
	return encodeControlMessage(sessionID, ControlSubTypePing, nil)
}

// EncodePongMessage はpingへの応答
func EncodePongMessage(sessionID SessionID) []byte {
	return encodeControlMessage(sessionID, ControlSubTypePong, nil)
}

// EncodeInputMessage はユーザー入力メッセージ
func EncodeInputMessage(sessionID SessionID, seq uint16, keyMask uint32) []byte {
	input := InputPayload{KeyMask: keyMask}
	return EncodeMessage(sessionID, seq, DataTypeInput, 0, input.Encode())
}

// JoinPayload はルーム参加メッセージのペイロード (16バイト)
//
//	roomID  [16]byte  - ルーム名 (ゼロ埋め)
type JoinPayload struct {
	RoomID RoomID
}

// ParseJoinPayload はバイト列からJoinPayloadをパースする
func ParseJoinPayload(data []byte) (*JoinPayload, error) {
	if len(data) < JoinPayloadSize {
		return nil, ErrInvalidJoinPayloadSize
	}

	var roomID [RoomIDSize]byte
	copy(roomID[:], data[:JoinPayloadSize])

	return &JoinPayload{
		RoomID: RoomIDFromBytes(roomID),
	}, nil
}

// Encode はJoinPayloadをバイト列にエンコードする
func (j *JoinPayload) Encode() []byte {
	b := j.RoomID.Bytes()
	return b[:]
}

// キー入力ビット
const (
	KeyUp    uint32 = 1 << 0
	KeyDown  uint32 = 1 << 1
	KeyStart uint32 = 1 << 2
	KeyPause uint32 = 1 << 3
)

// InputPayload はユーザー入力 (4バイト)
//
//	keyMask uint32 (4) - キー入力ビットマスク
type InputPayload struct {
	KeyMask uint32
}

// Pressed は指定キーが押されているかを返す
func (i *InputPayload) Pressed(key uint32) bool {
	return i.KeyMask&key != 0
}

// ParseInputPayload はバイト列からInputPayloadをパースする
func ParseInputPayload(data []byte) (*InputPayload, error) {
	if len(data) < InputPayloadSize {
		return nil, ErrInvalidInputPayloadSize
	}

	return &InputPayload{
		KeyMask: byteOrder.Uint32(data[0:4]),
	}, nil
}

// Encode はInputPayloadをバイト列にエンコードする
func (i *InputPayload) Encode() []byte {
	data := make([]byte, InputPayloadSize)
	byteOrder.PutUint32(data[0:4], i.KeyMask)
	return data
}

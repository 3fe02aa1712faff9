package domain_test

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "ledpong/server/domain"
	"ledpong/server/domain/mocks"

	"go.uber.org/mock/gomock"
)

type endpointFixture struct {
	session   *domain.Session
	transport *mocks.MockTransport
	pubsub    *domain.SimplePubSub
	rooms     *mocks.MockRoomManager
	endpoint  *domain.SessionEndpoint
	written   chan []byte
}

// newEndpointFixture はreadsを順に返した後、ctxが閉じるまでブロックするTransportを用意します。
func newEndpointFixture(t *testing.T, config domain.EndpointConfig, reads func(id domain.SessionID) [][]byte) *endpointFixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	f := &endpointFixture{
		session:   domain.NewSession(),
		transport: mocks.NewMockTransport(ctrl),
		pubsub:    domain.NewSimplePubSub(),
		rooms:     mocks.NewMockRoomManager(ctrl),
		written:   make(chan []byte, 64),
	}

	for _, data := range reads(f.session.ID()) {
		f.transport.EXPECT().Read(gomock.Any()).Return(data, nil)
	}
	f.transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(ctx context.Context) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}).AnyTimes()
	f.transport.EXPECT().Write(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, data []byte) error {
		select {
		case f.written <- data:
		default:
		}
		return nil
	}).AnyTimes()
	f.transport.EXPECT().Close(domain.StatusNormalClosure, gomock.Any()).Return(nil)

	conn := domain.NewConnection(f.session.ID(), f.transport)
	se, err := domain.NewSessionEndpoint(context.Background(), f.session, conn, f.pubsub, f.rooms, config)
	if err != nil {
		t.Fatalf("NewSessionEndpoint failed: %v", err)
	}
	f.endpoint = se
	return f
}

func (f *endpointFixture) run(t *testing.T) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- f.endpoint.Run()
		close(done)
	}()
	t.Cleanup(func() {
		f.endpoint.ForceClose()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("endpoint did not stop")
		}
	})
	return done
}

// waitControl は指定サブタイプのcontrolメッセージを受信するまで待ちます。
func waitControl(t *testing.T, ch <-chan []byte, subType domain.ControlSubType) []byte {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case data := <-ch:
			frame, err := domain.ParseFrame(data)
			if err != nil {
				t.Fatalf("invalid frame: %v", err)
			}
			if frame.PayloadHeader.DataType == domain.DataTypeControl && domain.ControlSubType(frame.PayloadHeader.SubType) == subType {
				return data
			}
		case <-timeout:
			t.Fatalf("timed out waiting for control subtype %d", subType)
			return nil
		}
	}
}

func waitMessage(t *testing.T, ch <-chan domain.Message, subType domain.ControlSubType) domain.Message {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case msg := <-ch:
			frame, err := domain.ParseFrame(msg.Data)
			if err != nil {
				t.Fatalf("invalid frame: %v", err)
			}
			if domain.ControlSubType(frame.PayloadHeader.SubType) == subType {
				return msg
			}
		case <-timeout:
			t.Fatalf("timed out waiting for room message subtype %d", subType)
			return domain.Message{}
		}
	}
}

func TestNewSessionEndpoint_RejectsNil(t *testing.T) {
	ctrl := gomock.NewController(t)

	s := domain.NewSession()
	c := domain.NewConnection(s.ID(), mocks.NewMockTransport(ctrl))
	ps := mocks.NewMockPubSub(ctrl)
	rm := mocks.NewMockRoomManager(ctrl)

	if _, err := domain.NewSessionEndpoint(context.Background(), nil, c, ps, rm, domain.DefaultEndpointConfig()); !errors.Is(err, domain.ErrInitializationFailed) {
		t.Errorf("nil session: err = %v, want %v", err, domain.ErrInitializationFailed)
	}
	if _, err := domain.NewSessionEndpoint(context.Background(), s, c, nil, rm, domain.DefaultEndpointConfig()); !errors.Is(err, domain.ErrInitializationFailed) {
		t.Errorf("nil pubsub: err = %v, want %v", err, domain.ErrInitializationFailed)
	}
	se, err := domain.NewSessionEndpoint(context.Background(), s, c, ps, rm, domain.DefaultEndpointConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if se.Session() != s {
		t.Errorf("Session() returned a different session")
	}
	if !se.RoomID().IsEmpty() {
		t.Errorf("RoomID() = %q before join, want empty", se.RoomID())
	}
}

func TestSessionEndpoint_AssignsSessionID(t *testing.T) {
	f := newEndpointFixture(t, domain.EndpointConfig{}, func(domain.SessionID) [][]byte { return nil })
	f.run(t)

	assign := waitControl(t, f.written, domain.ControlSubTypeAssign)
	frame, _ := domain.ParseFrame(assign)
	if frame.Header.SessionID != f.session.ID().Bytes() {
		t.Errorf("assign carries wrong session id")
	}
}

func TestSessionEndpoint_JoinDefaultRoomAndLeaveOnClose(t *testing.T) {
	const room = domain.RoomID("lobby")
	f := newEndpointFixture(t, domain.EndpointConfig{}, func(id domain.SessionID) [][]byte {
		return [][]byte{domain.EncodeJoinMessage(id, "")}
	})
	f.rooms.EXPECT().GetRoom(gomock.Any(), f.session.ID()).Return(room, nil)

	roomCh := f.pubsub.Subscribe(domain.RoomTopic(room))
	defer f.pubsub.Unsubscribe(domain.RoomTopic(room), roomCh)

	done := f.run(t)

	join := waitMessage(t, roomCh, domain.ControlSubTypeJoin)
	if join.SessionID != f.session.ID() {
		t.Errorf("join published with session %s, want %s", join.SessionID, f.session.ID())
	}
	if got := f.endpoint.RoomID(); got != room {
		t.Errorf("RoomID() = %q, want %q", got, room)
	}

	f.endpoint.ForceClose()
	leave := waitMessage(t, roomCh, domain.ControlSubTypeLeave)
	if leave.SessionID != f.session.ID() {
		t.Errorf("leave published with session %s, want %s", leave.SessionID, f.session.ID())
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after ForceClose")
	}
	if !f.session.IsClosed() {
		t.Errorf("session should be closed")
	}
}

func TestSessionEndpoint_ForwardsInputToRoom(t *testing.T) {
	const room = domain.RoomID("arcade")
	f := newEndpointFixture(t, domain.EndpointConfig{}, func(id domain.SessionID) [][]byte {
		return [][]byte{
			domain.EncodeJoinMessage(id, room),
			domain.EncodeInputMessage(id, 1, domain.KeyUp),
		}
	})

	roomCh := f.pubsub.Subscribe(domain.RoomTopic(room))
	defer f.pubsub.Unsubscribe(domain.RoomTopic(room), roomCh)

	f.run(t)

	waitMessage(t, roomCh, domain.ControlSubTypeJoin)
	select {
	case msg := <-roomCh:
		frame, err := domain.ParseFrame(msg.Data)
		if err != nil {
			t.Fatalf("invalid frame: %v", err)
		}
		if frame.PayloadHeader.DataType != domain.DataTypeInput {
			t.Errorf("DataType = %d, want input", frame.PayloadHeader.DataType)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("input was not forwarded to the room")
	}
}

func TestSessionEndpoint_RepliesToPing(t *testing.T) {
	f := newEndpointFixture(t, domain.EndpointConfig{}, func(id domain.SessionID) [][]byte {
		return [][]byte{domain.EncodePingMessage(id)}
	})
	f.run(t)

	waitControl(t, f.written, domain.ControlSubTypePong)
}

func TestSessionEndpoint_DropsForeignSessionFrames(t *testing.T) {
	const room = domain.RoomID("arcade")
	f := newEndpointFixture(t, domain.EndpointConfig{}, func(domain.SessionID) [][]byte {
		return [][]byte{domain.EncodeJoinMessage(domain.NewSessionID(), room)}
	})

	roomCh := f.pubsub.Subscribe(domain.RoomTopic(room))
	defer f.pubsub.Unsubscribe(domain.RoomTopic(room), roomCh)

	f.run(t)

	select {
	case <-roomCh:
		t.Fatal("frame with foreign session id must not be forwarded")
	case <-time.After(100 * time.Millisecond):
	}
	if !f.endpoint.RoomID().IsEmpty() {
		t.Errorf("RoomID() = %q, want empty", f.endpoint.RoomID())
	}
}

func TestSessionEndpoint_RelaysSessionTopic(t *testing.T) {
	f := newEndpointFixture(t, domain.EndpointConfig{}, func(domain.SessionID) [][]byte { return nil })
	f.run(t)

	waitControl(t, f.written, domain.ControlSubTypeAssign)

	// Subscribe完了を待ってから送る
	kick := domain.EncodeMessage(f.session.ID(), 0, domain.DataTypeControl, uint8(domain.ControlSubTypeKick), nil)
	deadline := time.After(2 * time.Second)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		f.pubsub.Publish(context.Background(), domain.SessionTopic(f.session.ID()), domain.Message{Data: kick})
		select {
		case data := <-f.written:
			frame, _ := domain.ParseFrame(data)
			if domain.ControlSubType(frame.PayloadHeader.SubType) == domain.ControlSubTypeKick {
				return
			}
		case <-deadline:
			t.Fatal("session topic message was not written")
		case <-ticker.C:
		}
	}
}

func TestSessionEndpoint_ClosesWhenIdle(t *testing.T) {
	f := newEndpointFixture(t, domain.EndpointConfig{IdleTimeout: time.Nanosecond}, func(domain.SessionID) [][]byte { return nil })
	done := f.run(t)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("idle endpoint was not closed")
	}
	if !f.session.IsClosed() {
		t.Errorf("session should be closed")
	}
}

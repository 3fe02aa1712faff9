package application

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"ledpong/server/domain"
	"ledpong/utils"
)

// DefaultMaxDeltaTime はTick間隔の上限（秒）です。
const DefaultMaxDeltaTime = 0.1

// JoinEvent はセッションのルーム参加です。
type JoinEvent struct {
	SessionID domain.SessionID
}

// LeaveEvent はセッションのルーム離脱です。
type LeaveEvent struct {
	SessionID domain.SessionID
}

// InputEvent は1つの入力イベントを表す
type InputEvent struct {
	SessionID domain.SessionID
	Seq       uint16
	KeyMask   uint32
}

// PongConfig はPongApplicationの設定です。
type PongConfig struct {
	MaxDeltaTime float64          // 0以下なら DefaultMaxDeltaTime
	Seed         uint64           // 0ならランダム
	Now          func() time.Time // nilなら time.Now
	RandomSource RandomSource     // 指定時は Seed より優先
	AudioSink    AudioSink        // CueRecorder に加えて配送する
	Logger       *slog.Logger     // nilなら slog.Default
}

// PongApplication はRoomのtickループからGameEngineを駆動する domain.Application です。
// すべてのメソッドはRoomのゴルーチンから呼ばれる前提でロックを持ちません。
type PongApplication struct {
	engine *GameEngine
	cues   *CueRecorder
	logger *slog.Logger

	members []domain.SessionID // 参加順
	pilot   domain.SessionID   // 操作権を持つセッション、ゼロ値なら空席

	keys   uint32 // パイロットの最新のキー入力
	intent Intent

	now          func() time.Time
	lastTick     time.Time
	maxDeltaTime float64
	seq          uint16
}

var _ domain.Application = (*PongApplication)(nil)

func NewPongApplication(cfg PongConfig) *PongApplication {
	if cfg.MaxDeltaTime <= 0 || !utils.IsFinite(cfg.MaxDeltaTime) {
		cfg.MaxDeltaTime = DefaultMaxDeltaTime
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	rng := cfg.RandomSource
	if rng == nil {
		rng = NewRandomSource(cfg.Seed)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cues := NewCueRecorder()
	sinks := []AudioSink{cues, cfg.AudioSink}
	if metrics, err := NewMetricsAudioSink(); err != nil {
		logger.Warn("pong: audio cue metrics unavailable", "err", err)
	} else {
		sinks = append(sinks, metrics)
	}

	engine := NewGameEngine(AudioSinks(sinks...), rng)
	engine.SetLogger(logger.With("component", "engine"))

	return &PongApplication{
		engine:       engine,
		cues:         cues,
		logger:       logger,
		now:          cfg.Now,
		maxDeltaTime: cfg.MaxDeltaTime,
	}
}

// Engine はテストや監視用にエンジンを返します。
func (app *PongApplication) Engine() *GameEngine {
	return app.engine
}

// Pilot は現在のパイロットを返します。空席なら false です。
func (app *PongApplication) Pilot() (domain.SessionID, bool) {
	return app.pilot, !app.pilot.IsZero()
}

func (app *PongApplication) Parse(ctx context.Context, sessionID domain.SessionID, data []byte) (domain.Event, error) {
	frame, err := domain.ParseFrame(data)
	if err != nil {
		return nil, err
	}

	switch frame.PayloadHeader.DataType {
	case domain.DataTypeInput:
		input, err := domain.ParseInputPayload(frame.Payload)
		if err != nil {
			return nil, fmt.Errorf("parse input: %w", err)
		}
		return InputEvent{SessionID: sessionID, Seq: frame.Header.Seq, KeyMask: input.KeyMask}, nil
	case domain.DataTypeControl:
		switch domain.ControlSubType(frame.PayloadHeader.SubType) {
		case domain.ControlSubTypeJoin:
			return JoinEvent{SessionID: sessionID}, nil
		case domain.ControlSubTypeLeave:
			return LeaveEvent{SessionID: sessionID}, nil
		}
		return nil, nil
	default:
		app.logger.WarnContext(ctx, "unknown data type", "dataType", frame.PayloadHeader.DataType)
		return nil, nil
	}
}

func (app *PongApplication) Handle(ctx context.Context, event domain.Event) error {
	switch ev := event.(type) {
	case JoinEvent:
		app.handleJoin(ctx, ev.SessionID)
	case LeaveEvent:
		app.handleLeave(ctx, ev.SessionID)
	case InputEvent:
		app.handleInput(ctx, ev)
	default:
		return fmt.Errorf("pong: unsupported event %T", event)
	}
	return nil
}

func (app *PongApplication) handleJoin(ctx context.Context, sessionID domain.SessionID) {
	if !slices.Contains(app.members, sessionID) {
		app.members = append(app.members, sessionID)
	}
	if _, ok := app.Pilot(); !ok {
		app.assignPilot(ctx, sessionID)
	}
}

func (app *PongApplication) handleLeave(ctx context.Context, sessionID domain.SessionID) {
	app.members = slices.DeleteFunc(app.members, func(id domain.SessionID) bool { return id == sessionID })
	if app.pilot == sessionID {
		app.assignPilot(ctx, domain.SessionID{})
	}
}

func (app *PongApplication) assignPilot(ctx context.Context, sessionID domain.SessionID) {
	app.pilot = sessionID
	app.keys = 0
	app.intent = IntentNone
	if sessionID.IsZero() {
		app.logger.InfoContext(ctx, "pong: pilot slot freed")
		return
	}
	app.logger.InfoContext(ctx, "pong: pilot assigned", "sessionID", sessionID)
}

func (app *PongApplication) handleInput(ctx context.Context, ev InputEvent) {
	if _, ok := app.Pilot(); !ok && slices.Contains(app.members, ev.SessionID) {
		app.assignPilot(ctx, ev.SessionID)
	}
	if ev.SessionID != app.pilot {
		return
	}

	// start / pause は押した瞬間だけ作用する
	rising := ev.KeyMask &^ app.keys
	app.keys = ev.KeyMask
	app.intent = intentFromKeys(ev.KeyMask)

	if rising&domain.KeyStart != 0 {
		app.engine.Start()
		app.logger.DebugContext(ctx, "pong: game started", "sessionID", ev.SessionID)
	}
	if rising&domain.KeyPause != 0 {
		app.engine.TogglePause()
		app.logger.DebugContext(ctx, "pong: pause toggled", "phase", app.engine.Phase())
	}
}

func intentFromKeys(mask uint32) Intent {
	up := mask&domain.KeyUp != 0
	down := mask&domain.KeyDown != 0
	switch {
	case up && !down:
		return IntentUp
	case down && !up:
		return IntentDown
	default:
		return IntentNone
	}
}

// Tick はエンジンを1フレーム進め、状態メッセージを返します。
func (app *PongApplication) Tick(ctx context.Context) []byte {
	now := app.now()
	dt := app.deltaTime(now)
	app.lastTick = now

	app.engine.Update(dt, app.intent)

	payload := EncodeState(app.engine.State(), app.cues.Drain())
	app.seq++
	return domain.EncodeMessage(domain.SessionID{}, app.seq, domain.DataTypeState, 0, payload.Encode())
}

func (app *PongApplication) deltaTime(now time.Time) float64 {
	if app.lastTick.IsZero() {
		return 0
	}
	dt := utils.FiniteOr(now.Sub(app.lastTick).Seconds(), 0)
	return clamp(dt, 0, app.maxDeltaTime)
}

// EncodeState はスナップショットを送信用のStatePayloadに変換します。
func EncodeState(state SimulationState, cues uint8) domain.StatePayload {
	ball := state.Ball
	p := domain.StatePayload{
		Phase:       uint8(state.Phase),
		Winner:      uint8(state.Winner),
		PlayerScore: uint8(state.PlayerScore),
		AIScore:     uint8(state.AIScore),
		Countdown:   int8(state.CountdownRemaining),
		Cues:        cues,
		BallPos:     toPosition2D(ball.Position),
		BallVel:     toPosition2D(ball.Velocity),
		TrailLen:    uint8(ball.TrailLen),
		PlayerY:     float32(state.PlayerPaddle.Y),
		AIY:         float32(state.AIPaddle.Y),
	}
	for i := 0; i < ball.TrailLen; i++ {
		p.Trail[i] = toPosition2D(ball.Trail[i])
	}
	return p
}

// DecodeState はStatePayloadからスナップショットを復元します。精度はfloat32に落ちます。
func DecodeState(p *domain.StatePayload) (SimulationState, uint8) {
	state := SimulationState{
		Phase:              GamePhase(p.Phase),
		Winner:             Side(p.Winner),
		PlayerScore:        int(p.PlayerScore),
		AIScore:            int(p.AIScore),
		CountdownRemaining: int(p.Countdown),
		Ball: Ball{
			Position: fromPosition2D(p.BallPos),
			Velocity: fromPosition2D(p.BallVel),
			TrailLen: int(min(p.TrailLen, TrailLength)),
		},
		PlayerPaddle: Paddle{Y: float64(p.PlayerY), TargetY: float64(p.PlayerY)},
		AIPaddle:     Paddle{Y: float64(p.AIY), TargetY: float64(p.AIY)},
	}
	for i := 0; i < state.Ball.TrailLen; i++ {
		state.Ball.Trail[i] = fromPosition2D(p.Trail[i])
	}
	return state, p.Cues
}

func toPosition2D(v Vector2) domain.Position2D {
	return domain.Position2D{X: float32(v.X), Y: float32(v.Y)}
}

func fromPosition2D(p domain.Position2D) Vector2 {
	return Vector2{X: float64(p.X), Y: float64(p.Y)}
}

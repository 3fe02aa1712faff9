package application

import (
	"log/slog"
	"math"
)

// Intent はプレイヤーの縦方向入力です。上が負、下が正です。
type Intent int8

const (
	IntentUp   Intent = -1
	IntentNone Intent = 0
	IntentDown Intent = 1
)

// normalize は範囲外の値を符号に丸めます。
func (i Intent) normalize() Intent {
	switch {
	case i < 0:
		return IntentUp
	case i > 0:
		return IntentDown
	default:
		return IntentNone
	}
}

type operation uint8

const (
	opStart operation = iota
	opUpdate
	opTogglePause
	opTickCountdown
)

const anyPhase = PhaseTitle | PhaseCountdown | PhasePlaying | PhasePaused | PhaseGameOver

// phaseApplicability は各操作が作用するフェーズの集合です。集合外での呼び出しは何もしません。
var phaseApplicability = [...]GamePhase{
	opStart:         anyPhase,
	opUpdate:        PhasePlaying,
	opTogglePause:   PhasePlaying | PhasePaused,
	opTickCountdown: PhaseCountdown,
}

// GameEngine はPongのシミュレーション状態を所有し、唯一の変更窓口となります。
type GameEngine struct {
	state  SimulationState
	audio  AudioSink
	rng    RandomSource
	logger *slog.Logger
}

// NewGameEngine はタイトル状態のエンジンを生成します。
// audio と rng が nil の場合はそれぞれ NopAudioSink とランダムシードの乱数源を使います。
func NewGameEngine(audio AudioSink, rng RandomSource) *GameEngine {
	if audio == nil {
		audio = NopAudioSink{}
	}
	if rng == nil {
		rng = NewRandomSource(0)
	}
	return &GameEngine{
		state: newSimulationState(PhaseTitle, Vector2{X: InitialSpeed, Y: InitialSpeed * 0.8}),
		audio:  audio,
		rng:    rng,
		logger: slog.Default(),
	}
}

// SetLogger は効果音の失敗を記録するロガーを差し替えます。nil なら slog.Default です。
func (e *GameEngine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// State は現在の状態のコピーを返します。
func (e *GameEngine) State() SimulationState {
	return e.state
}

// Phase は現在のフェーズを返します。
func (e *GameEngine) Phase() GamePhase {
	return e.state.Phase
}

func (e *GameEngine) allows(op operation) bool {
	return phaseApplicability[op]&e.state.Phase != 0
}

// Start は新しいゲームを開始します。どのフェーズからでも呼び出せます。
func (e *GameEngine) Start() {
	if !e.allows(opStart) {
		return
	}
	vx := InitialSpeed
	if e.rng.Float64() < 0.5 {
		vx = -vx
	}
	e.state = newSimulationState(PhasePlaying, Vector2{X: vx, Y: InitialSpeed * 0.8})
	e.play(CueGameStart)
}

// ResetBall はボールを中央に作り直します。towardPlayer が true なら左（プレイヤー側）へ向かいます。
func (e *GameEngine) ResetBall(towardPlayer bool) {
	vx := InitialSpeed
	if towardPlayer {
		vx = -InitialSpeed
	}
	vy := centeredNoise(e.rng) * InitialSpeed * 1.5
	e.state.Ball = newBall(Vector2{X: vx, Y: vy})
}

// TogglePause は Playing と Paused を切り替えます。
func (e *GameEngine) TogglePause() {
	if !e.allows(opTogglePause) {
		return
	}
	switch e.state.Phase {
	case PhasePlaying:
		e.state.Phase = PhasePaused
	case PhasePaused:
		e.state.Phase = PhasePlaying
	}
}

// TickCountdown はカウントダウンを1つ進め、0以下になったら Playing に遷移します。
// エンジン自身は Countdown に遷移しません。
func (e *GameEngine) TickCountdown() {
	if !e.allows(opTickCountdown) {
		return
	}
	e.state.CountdownRemaining--
	if e.state.CountdownRemaining <= 0 {
		e.state.Phase = PhasePlaying
	}
}

// Update は1フレーム分シミュレーションを進めます。Playing 以外では何もしません。
// dt のクランプは呼び出し側の責務です。
func (e *GameEngine) Update(dt float64, intent Intent) {
	if !e.allows(opUpdate) {
		return
	}
	e.updatePaddles(dt, intent.normalize())
	e.integrateBall(dt)
	e.resolveCollisions()
}

func (e *GameEngine) updatePaddles(dt float64, intent Intent) {
	player := &e.state.PlayerPaddle
	if intent != IntentNone {
		player.Y = clampPaddleY(player.Y + float64(intent)*dt*PlayerPaddleSpeed)
		player.TargetY = player.Y
	}

	ai := &e.state.AIPaddle
	ai.TargetY = aiTargetY(e.state.Ball, e.rng)
	ai.Y = clampPaddleY(trackToward(ai.Y, ai.TargetY, AIReactionSpeed*dt*TickNormalization))
}

func (e *GameEngine) integrateBall(dt float64) {
	ball := &e.state.Ball
	ball.pushTrail()
	ball.Position.X += ball.Velocity.X * dt * TickNormalization
	ball.Position.Y += ball.Velocity.Y * dt * TickNormalization
}

func (e *GameEngine) resolveCollisions() {
	ball := &e.state.Ball

	if ball.Position.Y <= WallMargin {
		ball.Position.Y = WallMargin
		ball.Velocity.Y = math.Abs(ball.Velocity.Y)
		e.play(CueWallHit)
	}
	if ball.Position.Y >= FieldHeight-WallMargin {
		ball.Position.Y = FieldHeight - WallMargin
		ball.Velocity.Y = -math.Abs(ball.Velocity.Y)
		e.play(CueWallHit)
	}

	if ball.Velocity.X < 0 && ball.Position.X <= PlayerPaddlePlane && overlaps(ball, e.state.PlayerPaddle) {
		ball.Position.X = PlayerPaddlePlane
		deflect(ball, e.state.PlayerPaddle)
		e.play(CuePaddleHit)
	}
	if ball.Velocity.X > 0 && ball.Position.X >= AIPaddlePlane && overlaps(ball, e.state.AIPaddle) {
		ball.Position.X = AIPaddlePlane
		deflect(ball, e.state.AIPaddle)
		e.play(CuePaddleHit)
	}

	if ball.Position.X < 0 {
		e.score(SideAI)
	} else if ball.Position.X > FieldWidth {
		e.score(SidePlayer)
	}
}

// overlaps はボールがパドル（上下 PaddleReach 拡張）の縦範囲内にあるかを返します。
func overlaps(ball *Ball, paddle Paddle) bool {
	y := ball.Position.Y
	return y >= paddle.Y-PaddleReach && y <= paddle.Y+PaddleHeight+PaddleReach
}

// deflect は横速度を反転・加速し、当たった位置に応じたスピンを加えて最高速度で制限します。
func deflect(ball *Ball, paddle Paddle) {
	half := PaddleHeight / 2
	hitOffsetRatio := clamp((ball.Position.Y-(paddle.Y+half))/half, -1, 1)

	ball.Velocity.X = -ball.Velocity.X * SpeedIncrease
	ball.Velocity.Y += hitOffsetRatio * SpinFactor

	speed := math.Hypot(ball.Velocity.X, ball.Velocity.Y)
	if speed > MaxSpeed {
		scale := MaxSpeed / speed
		ball.Velocity.X *= scale
		ball.Velocity.Y *= scale
	}
}

func (e *GameEngine) score(scorer Side) {
	var total int
	switch scorer {
	case SidePlayer:
		e.state.PlayerScore++
		total = e.state.PlayerScore
	case SideAI:
		e.state.AIScore++
		total = e.state.AIScore
	default:
		return
	}
	e.play(CueScore)

	if total >= WinScore {
		e.state.Phase = PhaseGameOver
		e.state.Winner = scorer
		e.play(CueWin)
		return
	}
	// 左に抜けた場合は右（AI側）へ、右に抜けた場合は左（プレイヤー側）へサーブする
	e.ResetBall(scorer == SidePlayer)
}

// play は AudioSink を呼び出します。失敗やpanicはシミュレーションに影響させません。
func (e *GameEngine) play(cue AudioCue) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Debug("audio sink panicked", "cue", cue, "recovered", r)
		}
	}()
	if err := e.audio.Play(cue); err != nil {
		e.logger.Debug("audio sink failed", "cue", cue, "err", err)
	}
}

package application

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"strings"
	"testing"
)

const frame = 1.0 / 60

// fixedRandom は常に同じ値を返す乱数源です。0.5 ならノイズは 0 になります。
type fixedRandom float64

func (r fixedRandom) Float64() float64 { return float64(r) }

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func newTestEngine(t *testing.T) (*GameEngine, *CueRecorder) {
	t.Helper()
	cues := NewCueRecorder()
	e := NewGameEngine(cues, fixedRandom(0.5))
	e.Start()
	cues.Drain()
	return e, cues
}

// placeBall はPlaying中のボールを任意の位置・速度に置きます。
func placeBall(e *GameEngine, pos, vel Vector2) {
	e.state.Ball = Ball{Position: pos, Velocity: vel}
}

func TestNewGameEngine_StartsOnTitle(t *testing.T) {
	e := NewGameEngine(nil, nil)
	s := e.State()
	if s.Phase != PhaseTitle {
		t.Fatalf("Phase = %s, want %s", s.Phase, PhaseTitle)
	}
	if s.Winner != SideNone {
		t.Errorf("Winner = %s, want none", s.Winner)
	}

	// Title では Update は何もしない
	e.Update(frame, IntentDown)
	if e.State() != s {
		t.Errorf("Update changed state on title")
	}
}

func TestStart_FreshGame(t *testing.T) {
	cues := NewCueRecorder()
	e := NewGameEngine(cues, fixedRandom(0.5))
	e.Start()

	s := e.State()
	if s.Phase != PhasePlaying {
		t.Fatalf("Phase = %s, want %s", s.Phase, PhasePlaying)
	}
	if s.Ball.Position != (Vector2{X: 10.5, Y: 3.5}) {
		t.Errorf("ball position = %+v, want center", s.Ball.Position)
	}
	if s.Ball.Velocity != (Vector2{X: InitialSpeed, Y: InitialSpeed * 0.8}) {
		t.Errorf("ball velocity = %+v", s.Ball.Velocity)
	}
	if s.Ball.TrailLen != 0 {
		t.Errorf("TrailLen = %d, want 0", s.Ball.TrailLen)
	}
	if s.PlayerScore != 0 || s.AIScore != 0 {
		t.Errorf("scores = %d-%d, want 0-0", s.PlayerScore, s.AIScore)
	}
	if s.PlayerPaddle.Y != 2 || s.AIPaddle.Y != 2 {
		t.Errorf("paddles = %v/%v, want centered", s.PlayerPaddle.Y, s.AIPaddle.Y)
	}
	if mask := cues.Drain(); mask != CueGameStart.Mask() {
		t.Errorf("cues = %v, want [gameStart]", CuesFromMask(mask))
	}
}

func TestStart_ServeDirectionFollowsRandomSource(t *testing.T) {
	e := NewGameEngine(nil, fixedRandom(0.1))
	e.Start()
	if vx := e.State().Ball.Velocity.X; vx != -InitialSpeed {
		t.Errorf("vx = %v, want %v", vx, -InitialSpeed)
	}
}

func TestStart_ResetsFinishedGame(t *testing.T) {
	e, _ := newTestEngine(t)
	e.state.Phase = PhaseGameOver
	e.state.Winner = SideAI
	e.state.AIScore = WinScore

	e.Start()
	s := e.State()
	if s.Phase != PhasePlaying || s.Winner != SideNone || s.AIScore != 0 {
		t.Errorf("state after restart = %+v", s)
	}
}

func TestUpdate_TrailKeepsRecentPositions(t *testing.T) {
	e, _ := newTestEngine(t)

	var positions []Vector2
	for range 5 {
		positions = append(positions, e.State().Ball.Position)
		e.Update(frame, IntentNone)
	}

	trail := e.State().Ball.TrailPoints()
	if len(trail) != TrailLength {
		t.Fatalf("trail length = %d, want %d", len(trail), TrailLength)
	}
	for i, p := range trail {
		want := positions[len(positions)-1-i]
		if p != want {
			t.Errorf("trail[%d] = %+v, want %+v", i, p, want)
		}
	}
}

func TestUpdate_MissScoresForAI(t *testing.T) {
	e, cues := newTestEngine(t)
	placeBall(e, Vector2{X: 0.2, Y: 0.6}, Vector2{X: -0.3, Y: 0})

	e.Update(frame, IntentNone)

	s := e.State()
	if s.AIScore != 1 || s.PlayerScore != 0 {
		t.Fatalf("scores = %d-%d, want 0-1", s.PlayerScore, s.AIScore)
	}
	if s.Phase != PhasePlaying {
		t.Errorf("Phase = %s, want %s", s.Phase, PhasePlaying)
	}
	if s.Ball.Position != (Vector2{X: 10.5, Y: 3.5}) {
		t.Errorf("ball not reset to center: %+v", s.Ball.Position)
	}
	if s.Ball.TrailLen != 0 {
		t.Errorf("TrailLen = %d after reset, want 0", s.Ball.TrailLen)
	}
	// AIが得点したので右へサーブ
	if s.Ball.Velocity.X != InitialSpeed {
		t.Errorf("vx = %v, want %v", s.Ball.Velocity.X, InitialSpeed)
	}
	if mask := cues.Drain(); mask != CueScore.Mask() {
		t.Errorf("cues = %v, want [score]", CuesFromMask(mask))
	}
}

func TestUpdate_PlayerWins(t *testing.T) {
	e, cues := newTestEngine(t)
	e.state.PlayerScore = WinScore - 1
	placeBall(e, Vector2{X: 20.9, Y: 0.6}, Vector2{X: 0.3, Y: 0})

	e.Update(frame, IntentNone)

	s := e.State()
	if s.Phase != PhaseGameOver {
		t.Fatalf("Phase = %s, want %s", s.Phase, PhaseGameOver)
	}
	if s.Winner != SidePlayer {
		t.Errorf("Winner = %s, want player", s.Winner)
	}
	if s.PlayerScore != WinScore {
		t.Errorf("PlayerScore = %d, want %d", s.PlayerScore, WinScore)
	}
	if mask := cues.Drain(); mask != CueScore.Mask()|CueWin.Mask() {
		t.Errorf("cues = %v, want [score win]", CuesFromMask(mask))
	}

	// GameOver 後は Update も TogglePause も作用しない
	e.Update(frame, IntentUp)
	e.TogglePause()
	if e.State() != s {
		t.Errorf("state changed after game over")
	}
}

func TestUpdate_PlayerPaddleHit(t *testing.T) {
	tests := []struct {
		name   string
		pos    Vector2
		vel    Vector2
		wantVX float64
		wantVY float64
	}{
		{"center", Vector2{X: 1.2, Y: 3.5}, Vector2{X: -0.3, Y: 0}, 0.324, 0},
		{"lower half adds spin", Vector2{X: 1.2, Y: 4.25}, Vector2{X: -0.3, Y: 0}, 0.324, 0.075},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, cues := newTestEngine(t)
			placeBall(e, tt.pos, tt.vel)

			e.Update(frame, IntentNone)

			ball := e.State().Ball
			if ball.Position.X != PlayerPaddlePlane {
				t.Errorf("x = %v, want %v", ball.Position.X, PlayerPaddlePlane)
			}
			if !approxEqual(ball.Velocity.X, tt.wantVX) || !approxEqual(ball.Velocity.Y, tt.wantVY) {
				t.Errorf("velocity = %+v, want (%v, %v)", ball.Velocity, tt.wantVX, tt.wantVY)
			}
			if mask := cues.Drain(); mask != CuePaddleHit.Mask() {
				t.Errorf("cues = %v, want [paddleHit]", CuesFromMask(mask))
			}
		})
	}
}

func TestUpdate_PaddleHitCapsSpeed(t *testing.T) {
	e, _ := newTestEngine(t)
	placeBall(e, Vector2{X: 1.2, Y: 3.5}, Vector2{X: -0.39, Y: 0})

	e.Update(frame, IntentNone)

	v := e.State().Ball.Velocity
	if speed := math.Hypot(v.X, v.Y); !approxEqual(speed, MaxSpeed) {
		t.Errorf("speed = %v, want %v", speed, MaxSpeed)
	}
	if v.X <= 0 {
		t.Errorf("vx = %v, want positive", v.X)
	}
}

func TestUpdate_AIPaddleHit(t *testing.T) {
	e, cues := newTestEngine(t)
	placeBall(e, Vector2{X: 18.8, Y: 3.5}, Vector2{X: 0.3, Y: 0})

	e.Update(frame, IntentNone)

	ball := e.State().Ball
	if ball.Position.X != AIPaddlePlane {
		t.Errorf("x = %v, want %v", ball.Position.X, AIPaddlePlane)
	}
	if !approxEqual(ball.Velocity.X, -0.324) {
		t.Errorf("vx = %v, want -0.324", ball.Velocity.X)
	}
	if mask := cues.Drain(); mask != CuePaddleHit.Mask() {
		t.Errorf("cues = %v, want [paddleHit]", CuesFromMask(mask))
	}
}

func TestUpdate_WallBounce(t *testing.T) {
	e, cues := newTestEngine(t)
	placeBall(e, Vector2{X: 10, Y: 0.7}, Vector2{X: 0.1, Y: -0.3})

	e.Update(frame, IntentNone)

	ball := e.State().Ball
	if ball.Position.Y != WallMargin {
		t.Errorf("y = %v, want %v", ball.Position.Y, WallMargin)
	}
	if !approxEqual(ball.Velocity.Y, 0.3) {
		t.Errorf("vy = %v, want 0.3", ball.Velocity.Y)
	}
	if mask := cues.Drain(); mask != CueWallHit.Mask() {
		t.Errorf("cues = %v, want [wallHit]", CuesFromMask(mask))
	}
}

func TestUpdate_PlayerPaddleMovesAndClamps(t *testing.T) {
	e, _ := newTestEngine(t)

	e.Update(0.01, IntentDown)
	if y := e.State().PlayerPaddle.Y; !approxEqual(y, 2.5) {
		t.Errorf("Y = %v, want 2.5", y)
	}

	e.Update(0.1, IntentDown)
	if y := e.State().PlayerPaddle.Y; y != maxPaddleY {
		t.Errorf("Y = %v, want %v", y, maxPaddleY)
	}

	// 範囲外の値は符号に丸める
	e.Update(0.1, Intent(-7))
	p := e.State().PlayerPaddle
	if p.Y != 0 || p.TargetY != 0 {
		t.Errorf("paddle = %+v, want top", p)
	}
}

func TestUpdate_AIPaddleRateLimited(t *testing.T) {
	e, _ := newTestEngine(t)
	// 予測位置は上端なのでAIは上へ向かう
	placeBall(e, Vector2{X: 10, Y: 1}, Vector2{X: 0.1, Y: 0})

	e.Update(frame, IntentNone)

	ai := e.State().AIPaddle
	if ai.TargetY != 0 {
		t.Errorf("TargetY = %v, want 0", ai.TargetY)
	}
	if want := 2 - AIReactionSpeed; !approxEqual(ai.Y, want) {
		t.Errorf("Y = %v, want %v", ai.Y, want)
	}
}

func TestTogglePause(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Update(frame, IntentNone)

	e.TogglePause()
	if e.Phase() != PhasePaused {
		t.Fatalf("Phase = %s, want %s", e.Phase(), PhasePaused)
	}
	paused := e.State()
	e.Update(frame, IntentDown)
	if e.State() != paused {
		t.Errorf("Update changed state while paused")
	}

	e.TogglePause()
	if e.Phase() != PhasePlaying {
		t.Errorf("Phase = %s, want %s", e.Phase(), PhasePlaying)
	}

	title := NewGameEngine(nil, fixedRandom(0.5))
	title.TogglePause()
	if title.Phase() != PhaseTitle {
		t.Errorf("TogglePause changed title phase to %s", title.Phase())
	}
}

func TestTickCountdown(t *testing.T) {
	e, _ := newTestEngine(t)

	// Playing では作用しない
	e.TickCountdown()
	if e.State().CountdownRemaining != CountdownStart {
		t.Fatalf("CountdownRemaining = %d, want %d", e.State().CountdownRemaining, CountdownStart)
	}

	e.state.Phase = PhaseCountdown
	for want := CountdownStart - 1; want > 0; want-- {
		e.TickCountdown()
		if got := e.State().CountdownRemaining; got != want {
			t.Fatalf("CountdownRemaining = %d, want %d", got, want)
		}
		if e.Phase() != PhaseCountdown {
			t.Fatalf("Phase = %s, want countdown", e.Phase())
		}
	}
	e.TickCountdown()
	if e.Phase() != PhasePlaying {
		t.Errorf("Phase = %s, want %s", e.Phase(), PhasePlaying)
	}
}

func TestResetBall(t *testing.T) {
	e := NewGameEngine(nil, fixedRandom(0.9))
	e.Start()
	e.Update(frame, IntentNone)

	e.ResetBall(true)
	ball := e.State().Ball
	if ball.Position != (Vector2{X: 10.5, Y: 3.5}) || ball.TrailLen != 0 {
		t.Errorf("ball = %+v, want centered with empty trail", ball)
	}
	if ball.Velocity.X != -InitialSpeed {
		t.Errorf("vx = %v, want %v", ball.Velocity.X, -InitialSpeed)
	}
	if want := 0.4 * InitialSpeed * 1.5; !approxEqual(ball.Velocity.Y, want) {
		t.Errorf("vy = %v, want %v", ball.Velocity.Y, want)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	e, _ := newTestEngine(t)
	s := e.State()
	s.Ball.Position.X = -100
	s.Ball.Trail[0] = Vector2{X: 99}
	if e.State().Ball.Position.X == -100 || e.State().Ball.Trail[0].X == 99 {
		t.Errorf("mutating a snapshot changed the engine state")
	}
}

type panicSink struct{}

func (panicSink) Play(AudioCue) error { panic("speaker unplugged") }

type errorSink struct{}

func (errorSink) Play(AudioCue) error { return errors.New("device busy") }

func TestAudioFailuresDoNotAffectSimulation(t *testing.T) {
	for name, sink := range map[string]AudioSink{"panic": panicSink{}, "error": errorSink{}} {
		t.Run(name, func(t *testing.T) {
			e := NewGameEngine(sink, fixedRandom(0.5))
			e.Start()
			placeBall(e, Vector2{X: 10, Y: 0.7}, Vector2{X: 0.1, Y: -0.3})
			e.Update(frame, IntentNone)

			s := e.State()
			if s.Phase != PhasePlaying || s.Ball.Velocity.Y <= 0 {
				t.Errorf("state = %+v", s)
			}
		})
	}
}

func TestPredictInterceptY(t *testing.T) {
	ball := Ball{Position: Vector2{X: 10, Y: 3}, Velocity: Vector2{X: 0.2, Y: 0.1}}
	if got := PredictInterceptY(ball, 19); !approxEqual(got, 7.5) {
		t.Errorf("PredictInterceptY() = %v, want 7.5", got)
	}

	ball.Velocity.X = 0
	if got := PredictInterceptY(ball, 19); got != 3 {
		t.Errorf("PredictInterceptY() with vx=0 = %v, want 3", got)
	}
}

func TestAudioFailuresAreLoggedToInjectedLogger(t *testing.T) {
	var buf bytes.Buffer
	e := NewGameEngine(errorSink{}, fixedRandom(0.5))
	e.SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	e.Start()

	out := buf.String()
	if !strings.Contains(out, "audio sink failed") || !strings.Contains(out, "cue=gameStart") {
		t.Errorf("log = %q, want audio failure with cue", out)
	}
}

func TestUpdate_NaturalRallyScoresOnce(t *testing.T) {
	const maxTicks = 10000
	for _, seed := range []uint64{1, 2, 3, 42, 99} {
		e := NewGameEngine(nil, NewRandomSource(seed))
		e.Start()

		ticks := 0
		for ; ticks < maxTicks; ticks++ {
			s := e.State()
			if s.PlayerScore+s.AIScore > 0 {
				break
			}
			e.Update(frame, IntentNone)
		}
		if ticks == maxTicks {
			t.Fatalf("seed %d: no score after %d ticks", seed, maxTicks)
		}

		s := e.State()
		if !(s.PlayerScore == 1 && s.AIScore == 0) && !(s.PlayerScore == 0 && s.AIScore == 1) {
			t.Errorf("seed %d: score = %d-%d, want exactly one side at 1", seed, s.PlayerScore, s.AIScore)
		}
		if s.Phase != PhasePlaying {
			t.Errorf("seed %d: phase = %s, want playing", seed, s.Phase)
		}
		if !approxEqual(s.Ball.Position.X, FieldWidth/2) || !approxEqual(s.Ball.Position.Y, FieldHeight/2) {
			t.Errorf("seed %d: ball = %+v, want center", seed, s.Ball.Position)
		}
		if s.Ball.TrailLen != 0 {
			t.Errorf("seed %d: trail length = %d, want 0", seed, s.Ball.TrailLen)
		}
		// 得点した側に向けてサーブする
		if towardPlayer := s.PlayerScore == 1; (s.Ball.Velocity.X < 0) != towardPlayer {
			t.Errorf("seed %d: serve vx = %v after %d-%d", seed, s.Ball.Velocity.X, s.PlayerScore, s.AIScore)
		}
	}
}

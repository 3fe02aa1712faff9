package application

// Vector2 はフィールド上の位置または速度です。
type Vector2 struct {
	X, Y float64
}

// Ball はボールの状態です。Trail は描画用の直近位置（新しい順）で、最大 TrailLength 件を保持します。
type Ball struct {
	Position Vector2
	Velocity Vector2
	Trail    [TrailLength]Vector2
	TrailLen int
}

// newBall は軌跡が空のボールをフィールド中央に生成します。
func newBall(velocity Vector2) Ball {
	return Ball{
		Position: Vector2{X: FieldWidth / 2, Y: FieldHeight / 2},
		Velocity: velocity,
	}
}

// pushTrail は現在位置を軌跡の先頭に追加します。容量を超えた最古の要素は捨てます。
func (b *Ball) pushTrail() {
	copy(b.Trail[1:], b.Trail[:TrailLength-1])
	b.Trail[0] = b.Position
	if b.TrailLen < TrailLength {
		b.TrailLen++
	}
}

// TrailPoints は有効な軌跡を新しい順に返します。
func (b Ball) TrailPoints() []Vector2 {
	points := make([]Vector2, b.TrailLen)
	copy(points, b.Trail[:b.TrailLen])
	return points
}

// Paddle はパドルの状態です。Y はパドル上端の位置です。
type Paddle struct {
	Y       float64
	TargetY float64
}

func centeredPaddle() Paddle {
	y := maxPaddleY / 2
	return Paddle{Y: y, TargetY: y}
}

// GamePhase はゲームのライフサイクルを表します。
// ビットマスクで表現し、操作ごとの適用可能フェーズを集合として宣言できるようにしています。
type GamePhase uint8

const (
	PhaseTitle     GamePhase = 0x01
	PhaseCountdown GamePhase = 0x02
	PhasePlaying   GamePhase = 0x04
	PhasePaused    GamePhase = 0x08
	PhaseGameOver  GamePhase = 0x10
)

func (p GamePhase) String() string {
	switch p {
	case PhaseTitle:
		return "title"
	case PhaseCountdown:
		return "countdown"
	case PhasePlaying:
		return "playing"
	case PhasePaused:
		return "paused"
	case PhaseGameOver:
		return "gameover"
	default:
		return "unknown"
	}
}

// Side は得点・勝者の陣営です。SideNone は勝者未決定を表します。
type Side uint8

const (
	SideNone Side = iota
	SidePlayer
	SideAI
)

func (s Side) String() string {
	switch s {
	case SidePlayer:
		return "player"
	case SideAI:
		return "ai"
	default:
		return "none"
	}
}

// SimulationState はシミュレーションの全状態です。
// 値型のみで構成されているため、代入がそのままスナップショットになります。
type SimulationState struct {
	Phase              GamePhase
	Ball               Ball
	PlayerPaddle       Paddle
	AIPaddle           Paddle
	PlayerScore        int
	AIScore            int
	CountdownRemaining int
	Winner             Side
}

func newSimulationState(phase GamePhase, ballVelocity Vector2) SimulationState {
	return SimulationState{
		Phase:              phase,
		Ball:               newBall(ballVelocity),
		PlayerPaddle:       centeredPaddle(),
		AIPaddle:           centeredPaddle(),
		CountdownRemaining: CountdownStart,
		Winner:             SideNone,
	}
}

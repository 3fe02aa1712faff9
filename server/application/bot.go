package application

import "ledpong/server/domain"

// BotController は最新の状態から送信するキー入力を決めるボットAIです。
type BotController interface {
	Decide(state SimulationState, lastMask uint32) uint32
}

// RuleBotController はルールベースのボットAIです。
// ボットごとに異なる個性パラメータを持ちます。
type RuleBotController struct {
	DeadZone float64 // パドル中央と目標の差がこれ以内なら動かない
	Bias     float64 // 目標位置のずらし量、打ち返す角度の癖になる
}

var _ BotController = (*RuleBotController)(nil)

// NewRuleBotController はランダムな個性を持つボットAIを生成します。
func NewRuleBotController(rng RandomSource) *RuleBotController {
	if rng == nil {
		rng = NewRandomSource(0)
	}
	return &RuleBotController{
		DeadZone: 0.2 + rng.Float64()*0.3,              // 0.2〜0.5
		Bias:     centeredNoise(rng) * PaddleHeight / 2, // ±0.75
	}
}

// Decide はタイトルや終了画面ではstartを押し離しし、プレイ中は予測着地点へパドルを寄せます。
func (r *RuleBotController) Decide(state SimulationState, lastMask uint32) uint32 {
	switch state.Phase {
	case PhaseTitle, PhaseGameOver:
		if lastMask&domain.KeyStart != 0 {
			return 0
		}
		return domain.KeyStart
	case PhasePlaying:
		return r.steer(state)
	default:
		return 0
	}
}

func (r *RuleBotController) steer(state SimulationState) uint32 {
	// 離れていくボールを追わず中央で待つ
	target := FieldHeight / 2
	if state.Ball.Velocity.X < 0 {
		target = PredictInterceptY(state.Ball, PlayerPaddlePlane) + r.Bias
	}
	center := state.PlayerPaddle.Y + PaddleHeight/2
	switch {
	case target < center-r.DeadZone:
		return domain.KeyUp
	case target > center+r.DeadZone:
		return domain.KeyDown
	default:
		return 0
	}
}

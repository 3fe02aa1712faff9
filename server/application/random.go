package application

import "math/rand/v2"

// RandomSource は [0, 1) の一様乱数源です。*rand.Rand はそのまま満たします。
type RandomSource interface {
	Float64() float64
}

// NewRandomSource はシード付きのPCG乱数源を生成します。seed が 0 の場合はランダムに初期化します。
func NewRandomSource(seed uint64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// centeredNoise は [-0.5, 0.5) の一様乱数を返します。
func centeredNoise(rng RandomSource) float64 {
	return rng.Float64() - 0.5
}

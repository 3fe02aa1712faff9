package application

import (
	"math"
	"strings"

	"ledpong/utils"
)

const (
	MatrixColumns = int(FieldWidth)
	MatrixRows    = int(FieldHeight)
)

// 輝度
const (
	BrightnessBall   uint8 = 255
	BrightnessPaddle uint8 = 200
)

// trailBrightness は軌跡の新しい順の輝度です。
var trailBrightness = [TrailLength]uint8{160, 96, 48}

// Matrix はLEDマトリクス1フレーム分の輝度です。
type Matrix [MatrixRows][MatrixColumns]uint8

// RenderMatrix はスナップショットをLEDマトリクスに変換します。
// プレイヤーのパドルは左端、AIのパドルは右端の列に描画します。
func RenderMatrix(state SimulationState) Matrix {
	var m Matrix
	m.paddle(0, state.PlayerPaddle)
	m.paddle(MatrixColumns-1, state.AIPaddle)

	// 古い軌跡から描いて新しいもので上書きする
	for i := state.Ball.TrailLen - 1; i >= 0; i-- {
		m.light(state.Ball.Trail[i], trailBrightness[i])
	}
	m.light(state.Ball.Position, BrightnessBall)
	return m
}

func (m *Matrix) paddle(col int, p Paddle) {
	if !utils.IsFinite(p.Y) {
		return
	}
	top := int(math.Round(clamp(p.Y, -PaddleHeight, FieldHeight)))
	for row := top; row < top+int(PaddleHeight); row++ {
		if row >= 0 && row < MatrixRows {
			m[row][col] = BrightnessPaddle
		}
	}
}

func (m *Matrix) light(pos Vector2, brightness uint8) {
	col := cellIndex(pos.X, MatrixColumns)
	row := cellIndex(pos.Y, MatrixRows)
	if brightness > m[row][col] {
		m[row][col] = brightness
	}
}

// cellIndex は座標を含むセルを返します。フィールド外は端のセルに寄せます。
func cellIndex(v float64, n int) int {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v >= float64(n):
		return n - 1
	}
	return int(math.Floor(v))
}

// Lit は指定セルが点灯しているかを返します。
func (m *Matrix) Lit(row, col int) bool {
	return m[row][col] > 0
}

// String は輝度に応じた文字でマトリクスを描画します。
func (m *Matrix) String() string {
	var sb strings.Builder
	sb.Grow((MatrixColumns + 1) * MatrixRows)
	for row := range m {
		for _, b := range m[row] {
			sb.WriteByte(glyph(b))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func glyph(b uint8) byte {
	switch {
	case b >= BrightnessBall:
		return '#'
	case b >= BrightnessPaddle:
		return '|'
	case b >= 128:
		return '+'
	case b >= 64:
		return '-'
	case b > 0:
		return '.'
	default:
		return ' '
	}
}

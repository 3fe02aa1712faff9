package application

import "math"

// PredictInterceptY はボールの縦位置を planeX まで線形外挿します。
// 壁での反射は考慮しません。横速度が 0 の場合は現在の縦位置を返します。
func PredictInterceptY(ball Ball, planeX float64) float64 {
	vx := math.Abs(ball.Velocity.X)
	if vx == 0 {
		return ball.Position.Y
	}
	return ball.Position.Y + (ball.Velocity.Y/vx)*(planeX-ball.Position.X)
}

// aiTargetY は予測位置にノイズを加え、パドル中央が来るように上端位置へ変換します。
func aiTargetY(ball Ball, rng RandomSource) float64 {
	predictedY := PredictInterceptY(ball, AIPaddlePlane) + centeredNoise(rng)*AIPredictionError
	return clampPaddleY(predictedY - PaddleHeight/2)
}

// trackToward は current を target へ最大 maxStep だけ近づけます。
func trackToward(current, target, maxStep float64) float64 {
	diff := target - current
	if math.Abs(diff) <= maxStep {
		return target
	}
	if diff > 0 {
		return current + maxStep
	}
	return current - maxStep
}

func clampPaddleY(y float64) float64 {
	return clamp(y, 0, maxPaddleY)
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

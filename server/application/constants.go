package application

// フィールド単位（ピクセルではない）
const (
	FieldWidth   float64 = 21
	FieldHeight  float64 = 7
	PaddleHeight float64 = 3
)

// ボールとAIのパラメータ
const (
	InitialSpeed      float64 = 0.15
	MaxSpeed          float64 = 0.4
	SpeedIncrease     float64 = 1.08
	WinScore                  = 3
	AIReactionSpeed   float64 = 0.14
	AIPredictionError float64 = 1.2
)

const (
	TrailLength = 3

	PlayerPaddleSpeed float64 = 50 // units/sec
	TickNormalization float64 = 60 // 速度は 60FPS 1tick あたりの移動量

	WallMargin  float64 = 0.5
	PaddleReach float64 = 0.5 // パドル上下に広げる当たり判定
	SpinFactor  float64 = 0.15

	// ボールがパドルに届くX座標
	PlayerPaddlePlane float64 = 1
	AIPaddlePlane             = FieldWidth - 2

	CountdownStart = 3
)

// maxPaddleY はパドル上端の最大値です。
const maxPaddleY = FieldHeight - PaddleHeight

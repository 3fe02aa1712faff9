package application

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "ledpong/server/application"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// MetricsAudioSink は効果音キューの発生回数をOpenTelemetryのカウンタに記録します。
// グローバルのMeterProviderが未設定の場合はno-opになります。
type MetricsAudioSink struct {
	cues metric.Int64Counter
}

func NewMetricsAudioSink() (*MetricsAudioSink, error) {
	cues, err := meter().Int64Counter(
		"pong.audio.cues",
		metric.WithDescription("Total audio cues emitted by the engine"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating audio cue counter: %w", err)
	}
	return &MetricsAudioSink{cues: cues}, nil
}

func (m *MetricsAudioSink) Play(cue AudioCue) error {
	m.cues.Add(context.Background(), 1, metric.WithAttributes(attribute.String("cue", cue.String())))
	return nil
}

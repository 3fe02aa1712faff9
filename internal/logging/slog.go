package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	otellog "go.opentelemetry.io/otel/log"
)

// otelScope はOTLPに送るログの計装スコープ名です。
const otelScope = "ledpong"

var ErrUnknownLevel = errors.New("unknown log level")

// ParseLevel は debug/info/warn/error を slog.Level に変換します。大文字小文字は区別しません。
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
}

// Options はロガーの出力設定です。
type Options struct {
	Level  string
	Format string    // text または json
	Output io.Writer // nil なら os.Stdout
	File   io.Writer // nil でなければ同じレコードを追記する
	// Provider が nil でなければ otelslog ブリッジ経由でも送る
	Provider otellog.LoggerProvider
}

func newHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// NewLogger は Options からロガーを組み立てます。
func NewLogger(o Options) (*slog.Logger, error) {
	level, err := ParseLevel(o.Level)
	if err != nil {
		return nil, err
	}
	out := o.Output
	if out == nil {
		out = os.Stdout
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	handlers := []slog.Handler{newHandler(out, o.Format, handlerOpts)}
	if o.File != nil {
		// ファイルは常にJSON
		handlers = append(handlers, slog.NewJSONHandler(o.File, handlerOpts))
	}
	if o.Provider != nil {
		handlers = append(handlers, leveled(level, otelslog.NewHandler(otelScope, otelslog.WithLoggerProvider(o.Provider))))
	}
	if len(handlers) == 1 {
		return slog.New(handlers[0]), nil
	}
	return slog.New(NewMultiHandler(handlers...)), nil
}

// Setup はデフォルトロガーを設定します。logFile が空でなければ追記モードで開き、
// 返り値の close で閉じます。provider は nil でもかまいません。
func Setup(level, format, logFile string, provider otellog.LoggerProvider) (close func() error, err error) {
	o := Options{Level: level, Format: format, Provider: provider}
	close = func() error { return nil }

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		o.File = f
		close = f.Close
	}

	logger, err := NewLogger(o)
	if err != nil {
		_ = close()
		return nil, err
	}
	slog.SetDefault(logger)
	return close, nil
}

// levelHandler はラップしたハンドラに level 未満のレコードを渡しません。
type levelHandler struct {
	level   slog.Leveler
	handler slog.Handler
}

func leveled(level slog.Leveler, h slog.Handler) slog.Handler {
	return &levelHandler{level: level, handler: h}
}

func (h *levelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level() && h.handler.Enabled(ctx, level)
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithGroup(name)}
}

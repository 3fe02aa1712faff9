package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"ledpong/internal/auth"
	"ledpong/internal/config"
	"ledpong/internal/logging"
	"ledpong/server/application"
	"ledpong/server/domain"
)

const (
	reconnectDelay = 2 * time.Second
	// matrixLogInterval ごとにLEDマトリクスをdebugログに出す
	matrixLogInterval = 60
)

func main() {
	configFile := flag.String("config", "", "path to config file (json, yaml or toml)")
	flag.Parse()

	if err := config.LoadEnvFile(); err != nil {
		slog.Error("failed to load .env", "err", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	closeLog, err := logging.Setup(cfg.LogLevel, cfg.LogFormat, cfg.LogFile, nil)
	if err != nil {
		slog.Error("failed to set up logging", "err", err)
		os.Exit(1)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var issuer *auth.Verifier
	if cfg.AuthSecret != "" {
		issuer, err = auth.NewVerifier(cfg.AuthSecret, cfg.TokenTTL)
		if err != nil {
			slog.Error("failed to set up auth", "err", err)
			os.Exit(1)
		}
	}

	serverURL := cfg.WebSocketURL()
	slog.Info("starting bots", "count", cfg.BotCount, "server", serverURL)

	var wg sync.WaitGroup
	for i := range cfg.BotCount {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			runBot(ctx, serverURL, id, issuer, application.NewRuleBotController(botRandom(cfg.Seed, id)))
		}(i)
	}

	wg.Wait()
	slog.Info("all bots stopped")
}

// botRandom はボットごとの乱数源を返します。seed が 0 ならランダムです。
func botRandom(seed uint64, id int) application.RandomSource {
	if seed == 0 {
		return application.NewRandomSource(0)
	}
	return application.NewRandomSource(seed + uint64(id) + 1)
}

func runBot(ctx context.Context, serverURL string, id int, issuer *auth.Verifier, bot application.BotController) {
	logger := slog.With("botID", id)

	for {
		if ctx.Err() != nil {
			return
		}
		opts, err := dialOptions(issuer, id)
		if err == nil {
			err = botSession(ctx, serverURL, opts, bot, logger)
		}
		if err != nil && ctx.Err() == nil {
			logger.Warn("bot session ended, reconnecting", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
		}
	}
}

// botState は受信ループと判断ループで共有する状態です。
type botState struct {
	mu        sync.Mutex
	sessionID domain.SessionID
	game      application.SimulationState
	hasGame   bool
	frames    int
}

func (s *botState) setSession(id domain.SessionID) {
	s.mu.Lock()
	s.sessionID = id
	s.mu.Unlock()
}

func (s *botState) setGame(game application.SimulationState) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.game = game
	s.hasGame = true
	s.frames++
	return s.frames
}

func (s *botState) snapshot() (domain.SessionID, application.SimulationState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID, s.game, s.hasGame
}

// dialOptions は issuer があれば接続ごとに新しいトークンを付けます。
func dialOptions(issuer *auth.Verifier, id int) (*websocket.DialOptions, error) {
	if issuer == nil {
		return nil, nil
	}
	token, err := issuer.Issue(fmt.Sprintf("bot-%d", id))
	if err != nil {
		return nil, err
	}
	return &websocket.DialOptions{HTTPHeader: auth.BearerHeader(token)}, nil
}

func botSession(ctx context.Context, serverURL string, opts *websocket.DialOptions, bot application.BotController, logger *slog.Logger) error {
	conn, _, err := websocket.Dial(ctx, serverURL, opts)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow()

	logger.Info("connected")

	state := &botState{}
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return receiveLoop(ctx, conn, state, logger)
	})
	eg.Go(func() error {
		return decideLoop(ctx, conn, state, bot)
	})

	err = eg.Wait()
	if errors.Is(err, context.Canceled) {
		conn.Close(websocket.StatusNormalClosure, "shutdown")
		return nil
	}
	return err
}

func receiveLoop(ctx context.Context, conn *websocket.Conn, state *botState, logger *slog.Logger) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}

		frame, err := domain.ParseFrame(data)
		if err != nil {
			logger.Debug("invalid frame", "err", err)
			continue
		}

		switch frame.PayloadHeader.DataType {
		case domain.DataTypeControl:
			switch domain.ControlSubType(frame.PayloadHeader.SubType) {
			case domain.ControlSubTypeAssign:
				sessionID := domain.SessionIDFromBytes(frame.Header.SessionID)
				state.setSession(sessionID)
				logger.Info("session assigned", "sessionID", sessionID)

				// 空のルーム名でサーバーにデフォルトルームを割り当てさせる
				if err := conn.Write(ctx, websocket.MessageBinary, domain.EncodeJoinMessage(sessionID, "")); err != nil {
					return fmt.Errorf("send join: %w", err)
				}
				logger.Info("joined room")
			case domain.ControlSubTypePing:
				sessionID, _, _ := state.snapshot()
				if err := conn.Write(ctx, websocket.MessageBinary, domain.EncodePongMessage(sessionID)); err != nil {
					return fmt.Errorf("send pong: %w", err)
				}
			}
		case domain.DataTypeState:
			payload, err := domain.ParseStatePayload(frame.Payload)
			if err != nil {
				logger.Debug("invalid state payload", "err", err)
				continue
			}
			game, cues := application.DecodeState(payload)
			n := state.setGame(game)
			if cues != 0 {
				logger.Debug("audio cues", "cues", application.CuesFromMask(cues))
			}
			if n%matrixLogInterval == 0 && logger.Enabled(ctx, slog.LevelDebug) {
				m := application.RenderMatrix(game)
				logger.Debug("frame", "phase", game.Phase, "score", fmt.Sprintf("%d-%d", game.PlayerScore, game.AIScore), "matrix", "\n"+m.String())
			}
		}
	}
}

// decideLoop は60FPS相当で最新の状態からキー入力を決め、変化したときだけ送信します。
func decideLoop(ctx context.Context, conn *websocket.Conn, state *botState, bot application.BotController) error {
	ticker := time.NewTicker(time.Second / 60)
	defer ticker.Stop()

	var seq uint16
	var lastMask uint32
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sessionID, game, ok := state.snapshot()
			if sessionID.IsZero() || !ok {
				continue
			}

			mask := bot.Decide(game, lastMask)
			if mask == lastMask {
				continue
			}
			lastMask = mask
			seq++
			if err := conn.Write(ctx, websocket.MessageBinary, domain.EncodeInputMessage(sessionID, seq, mask)); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		}
	}
}

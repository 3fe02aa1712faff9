package application

import (
	"errors"
	"fmt"
	"sync"
)

//go:generate go tool mockgen -destination=./mocks/audio_sink_mock.go -package=mocks . AudioSink

var ErrAudioSinkPanic = errors.New("audio sink panicked")

// AudioCue はエンジンが通知する効果音イベントです。
type AudioCue uint8

const (
	CueWallHit AudioCue = iota
	CuePaddleHit
	CueScore
	CueGameStart
	CueWin
)

var cueNames = [...]string{
	CueWallHit:   "wallHit",
	CuePaddleHit: "paddleHit",
	CueScore:     "score",
	CueGameStart: "gameStart",
	CueWin:       "win",
}

func (c AudioCue) String() string {
	if int(c) < len(cueNames) {
		return cueNames[c]
	}
	return "unknown"
}

// Mask はキューをビットマスクに変換します。
func (c AudioCue) Mask() uint8 {
	return 1 << c
}

// AudioSink は効果音の通知先です。エラーはエンジンに伝播しません。
type AudioSink interface {
	Play(cue AudioCue) error
}

// NopAudioSink は何もしない AudioSink です。
type NopAudioSink struct{}

func (NopAudioSink) Play(AudioCue) error { return nil }

// CueRecorder は Drain されるまでに発生したキューをビットマスクで蓄積します。
type CueRecorder struct {
	mu   sync.Mutex
	mask uint8
}

func NewCueRecorder() *CueRecorder {
	return &CueRecorder{}
}

func (r *CueRecorder) Play(cue AudioCue) error {
	r.mu.Lock()
	r.mask |= cue.Mask()
	r.mu.Unlock()
	return nil
}

// Drain は蓄積したビットマスクを返してクリアします。
func (r *CueRecorder) Drain() uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	mask := r.mask
	r.mask = 0
	return mask
}

// CuesFromMask はビットマスクに含まれるキューを列挙します。
func CuesFromMask(mask uint8) []AudioCue {
	cues := make([]AudioCue, 0, len(cueNames))
	for i := range cueNames {
		cue := AudioCue(i)
		if mask&cue.Mask() != 0 {
			cues = append(cues, cue)
		}
	}
	return cues
}

type multiAudioSink []AudioSink

// AudioSinks は複数の AudioSink に同じキューを配送します。
// 途中のシンクが失敗やpanicしても残りには配送します。
func AudioSinks(sinks ...AudioSink) AudioSink {
	valid := make(multiAudioSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			valid = append(valid, s)
		}
	}
	return valid
}

func (m multiAudioSink) Play(cue AudioCue) error {
	var errs []error
	for _, s := range m {
		if err := playSafely(s, cue); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// playSafely はシンクのpanicをエラーに変換します。
func playSafely(s AudioSink, cue AudioCue) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrAudioSinkPanic, r)
		}
	}()
	return s.Play(cue)
}

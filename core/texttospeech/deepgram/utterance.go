package deepgram

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/texttospeech"
)

const writeTimeout = 5 * time.Second

type controlMessage struct {
	Type string `json:"type"`
}

type speakMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// utterance is one Speak call. Audio is forwarded to the sink until the
// service confirms the flush and the sink has played everything before it.
type utterance struct {
	name    string
	conn    *websocket.Conn
	writeMu sync.Mutex

	sink    audio.Sink
	audioMu sync.Mutex
	options texttospeech.SpeakOptions

	started    atomic.Bool
	flushed    atomic.Bool
	ended      atomic.Bool
	endOnce    sync.Once
	onFinished func(*utterance)
}

func newUtterance(conn *websocket.Conn, sink audio.Sink, options texttospeech.SpeakOptions, name string) *utterance {
	return &utterance{
		name:       name,
		conn:       conn,
		sink:       sink,
		options:    options,
		onFinished: func(*utterance) {},
	}
}

func (u *utterance) run() {
	for {
		msgType, msg, err := u.conn.ReadMessage()
		if err != nil {
			if u.ended.Load() {
				return
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Warn("deepgram speak connection failed", "utterance", u.name, "error", err)
			}
			if !u.flushed.Load() {
				u.finish()
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if len(msg) > 0 {
				u.playAudio(msg)
			}
		case websocket.TextMessage:
			u.processMessage(msg)
		}
	}
}

func (u *utterance) processMessage(msg []byte) {
	var parsedMsg struct {
		Type        string `json:"type"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Debug("failed to unmarshal deepgram message", "error", err)
		return
	}

	switch parsedMsg.Type {
	case "Flushed":
		u.flushed.Store(true)
		u.audioMu.Lock()
		ended := u.ended.Load()
		var err error
		if !ended {
			err = u.sink.Mark(u.name, func(string) { u.finish() })
		}
		u.audioMu.Unlock()
		if err != nil {
			logger.Warn("failed to mark end of utterance", "utterance", u.name, "error", err)
			u.finish()
		}
	case "Warning", "Error":
		logger.Warn("deepgram speak reported a problem", "utterance", u.name, "type", parsedMsg.Type, "description", parsedMsg.Description)
	}
}

func (u *utterance) playAudio(frame []byte) {
	u.audioMu.Lock()
	if u.ended.Load() {
		u.audioMu.Unlock()
		return
	}
	err := u.sink.SendAudio(frame)
	if err == nil && u.started.CompareAndSwap(false, true) {
		u.options.SpeechStartedCallback()
	}
	u.audioMu.Unlock()

	if err != nil {
		logger.Warn("failed to play audio", "utterance", u.name, "error", err)
		u.stop()
	}
}

func (u *utterance) send(msg any) error {
	u.writeMu.Lock()
	defer u.writeMu.Unlock()
	_ = u.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return u.conn.WriteJSON(msg)
}

// stop drops everything that was not played yet and ends the utterance.
func (u *utterance) stop() {
	if u.ended.Load() {
		return
	}

	if err := u.send(controlMessage{Type: "Clear"}); err != nil {
		logger.Debug("failed to clear deepgram buffer", "utterance", u.name, "error", err)
	}

	u.audioMu.Lock()
	u.ended.Store(true)
	u.sink.ClearBuffer()
	u.audioMu.Unlock()

	u.finish()
}

// discard tears the utterance down without reporting it as ended.
func (u *utterance) discard() {
	u.endOnce.Do(func() {
		u.ended.Store(true)
		_ = u.conn.Close()
	})
}

func (u *utterance) finish() {
	u.endOnce.Do(func() {
		u.ended.Store(true)
		if err := u.send(controlMessage{Type: "Close"}); err != nil {
			logger.Debug("failed to close deepgram stream", "utterance", u.name, "error", err)
		}
		_ = u.conn.Close()
		u.onFinished(u)
		u.options.SpeechEndedCallback()
	})
}

package deepgram

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/speechtotext"
)

const writeTimeout = 5 * time.Second

type captureSession struct {
	ctx    context.Context
	cancel context.CancelFunc

	conn    *websocket.Conn
	writeMu sync.Mutex

	source  audio.Source
	options speechtotext.CaptureOptions

	mu            sync.Mutex
	finalSegments []string
	interim       string

	heard      atomic.Bool
	ended      atomic.Bool
	endOnce    sync.Once
	onFinished func(*captureSession)
}

func newCaptureSession(ctx context.Context, conn *websocket.Conn, source audio.Source, options speechtotext.CaptureOptions) *captureSession {
	ctx, cancel := context.WithCancel(ctx)
	return &captureSession{
		ctx:        ctx,
		cancel:     cancel,
		conn:       conn,
		source:     source,
		options:    options,
		onFinished: func(*captureSession) {},
	}
}

func (s *captureSession) run(noSpeechTimeout time.Duration) {
	if noSpeechTimeout > 0 {
		timer := time.AfterFunc(noSpeechTimeout, func() {
			if !s.heard.Load() {
				logger.Debug("no speech detected, ending capture session")
				s.end("")
			}
		})
		defer timer.Stop()
	}

	for {
		msgType, msg, err := s.conn.ReadMessage()
		if err != nil {
			if !s.ended.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Warn("deepgram listen connection failed", "error", err)
			}
			s.end("")
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		s.processMessage(msg)
	}
}

func (s *captureSession) processMessage(msg []byte) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Debug("failed to unmarshal deepgram message", "error", err)
		return
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.Debug("failed to unmarshal deepgram results", "error", err)
			return
		}

		segment := ""
		if len(msgResp.Channel.Alternatives) > 0 {
			segment = strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
		}
		if segment != "" {
			s.heard.Store(true)
		}

		s.mu.Lock()
		if msgResp.IsFinal {
			if segment != "" {
				s.finalSegments = append(s.finalSegments, segment)
			}
			s.interim = ""
		} else {
			s.interim = segment
		}
		transcript := s.transcriptLocked()
		s.mu.Unlock()

		if s.ended.Load() {
			return
		}
		s.options.TranscriptCallback(transcript)

		if msgResp.IsFinal && msgResp.SpeechFinal && transcript.Final != "" {
			s.end(transcript.Final)
		}

	case api.TypeUtteranceEndResponse:
		if final := s.finalText(); final != "" {
			s.end(final)
		}

	case api.TypeSpeechStartedResponse:
		s.heard.Store(true)
	}
}

func (s *captureSession) transcriptLocked() speechtotext.Transcript {
	return speechtotext.Transcript{
		Final:   strings.Join(s.finalSegments, " "),
		Interim: s.interim,
	}
}

func (s *captureSession) finalText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.finalSegments, " ")
}

func (s *captureSession) sendAudio(frame []byte) {
	if s.ended.Load() {
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		logger.Debug("failed to write audio to deepgram", "error", err)
	}
}

// stop ends the session with the final text buffered so far and asks the
// service to close the stream. Audio still in flight is discarded.
func (s *captureSession) stop() {
	if s.ended.Load() {
		return
	}

	s.writeMu.Lock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
		logger.Debug("failed to send close stream to deepgram", "error", err)
	}
	s.writeMu.Unlock()

	s.end(s.finalText())
}

// discard tears the session down without reporting it as ended.
func (s *captureSession) discard() {
	s.endOnce.Do(func() {
		s.ended.Store(true)
		s.cancel()
		_ = s.conn.Close()
	})
}

func (s *captureSession) end(transcript string) {
	s.endOnce.Do(func() {
		s.ended.Store(true)
		if err := s.source.StopCapture(); err != nil {
			logger.Warn("failed to stop audio capture", "error", err)
		}
		s.cancel()
		_ = s.conn.Close()
		s.onFinished(s)
		s.options.CaptureEndedCallback(transcript)
	})
}

package main

import (
	"fmt"

	orchestration "github.com/koscakluka/ema-voice/core"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/audio/miniaudio"
	"github.com/koscakluka/ema-voice/core/audio/portaudio"
	"github.com/koscakluka/ema-voice/core/chatchannel"
	"github.com/koscakluka/ema-voice/core/conversations/httpstore"
	speechtotext "github.com/koscakluka/ema-voice/core/speechtotext/deepgram"
	texttospeech "github.com/koscakluka/ema-voice/core/texttospeech/deepgram"
)

const portaudioBufferSize = 1024

type audioDevice interface {
	audio.Source
	audio.Sink
	Close()
}

func openAudioDevice(backend string) (audioDevice, error) {
	if backend == audioBackendPortaudio {
		device, err := portaudio.NewClient(portaudioBufferSize)
		if err != nil {
			return nil, err
		}
		return device, nil
	}

	device, err := miniaudio.NewClient()
	if err != nil {
		return nil, err
	}
	return device, nil
}

func newStore(cfg config) (*httpstore.Client, error) {
	baseURL, err := cfg.restBaseURL()
	if err != nil {
		return nil, err
	}
	return httpstore.NewClient(baseURL, cfg.Credential)
}

// app owns the orchestrator and everything it was built from.
type app struct {
	orchestrator *orchestration.Orchestrator
	closers      []func()
}

func newApp(cfg config) (*app, error) {
	store, err := newStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation store: %w", err)
	}

	a := &app{}
	opts := []orchestration.OrchestratorOption{
		orchestration.WithChatChannel(chatchannel.New(cfg.Server, cfg.Credential)),
		orchestration.WithConversationStore(store),
		orchestration.WithLanguage(cfg.Language),
		orchestration.WithMuted(cfg.Muted),
	}
	if cfg.Conversation != "" {
		opts = append(opts, orchestration.WithConversationID(cfg.Conversation))
	}

	// Without a device or key the orchestrator reports speech as unsupported
	// and the app keeps working with typed messages.
	if cfg.DeepgramAPIKey != "" {
		device, err := openAudioDevice(cfg.AudioBackend)
		if err != nil {
			logger.Warn("audio device unavailable, continuing without speech", "backend", cfg.AudioBackend, "error", err)
		} else {
			capture := speechtotext.NewCaptureClient(cfg.DeepgramAPIKey, device)
			playback := texttospeech.NewPlaybackClient(cfg.DeepgramAPIKey, device)
			a.closers = append(a.closers, capture.Close, playback.Close, device.Close)
			opts = append(opts,
				orchestration.WithSpeechCapture(capture),
				orchestration.WithSpeechPlayback(playback),
			)
		}
	}

	a.orchestrator = orchestration.NewOrchestrator(opts...)
	return a, nil
}

// Close stops the orchestrator before releasing the devices it drives.
func (a *app) Close() {
	a.orchestrator.Close()
	for _, closeFn := range a.closers {
		closeFn()
	}
}

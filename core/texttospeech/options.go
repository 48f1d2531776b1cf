package texttospeech

import "errors"

// ErrUnsupported is returned when playback is not available, for example
// when no output device or no synthesis service is configured.
var ErrUnsupported = errors.New("speech playback is not supported")

const DefaultLanguage = "en-US"

type SpeakOptions struct {
	// Language is a BCP 47 tag selecting the synthesis locale.
	Language string

	// SpeechStartedCallback is called when the first audio of the utterance
	// is handed to the output device.
	SpeechStartedCallback func()
	// SpeechEndedCallback is called exactly once per accepted Speak call,
	// whether the utterance completed, was stopped or failed.
	SpeechEndedCallback func()
}

type SpeakOption func(*SpeakOptions)

// NewSpeakOptions applies opts over the defaults. Unset callbacks are
// replaced with no-ops.
func NewSpeakOptions(opts ...SpeakOption) SpeakOptions {
	options := SpeakOptions{
		Language:              DefaultLanguage,
		SpeechStartedCallback: func() {},
		SpeechEndedCallback:   func() {},
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

func WithLanguage(tag string) SpeakOption {
	return func(o *SpeakOptions) {
		if tag != "" {
			o.Language = tag
		}
	}
}

func WithSpeechStartedCallback(callback func()) SpeakOption {
	return func(o *SpeakOptions) {
		if callback != nil {
			o.SpeechStartedCallback = callback
		}
	}
}

func WithSpeechEndedCallback(callback func()) SpeakOption {
	return func(o *SpeakOptions) {
		if callback != nil {
			o.SpeechEndedCallback = callback
		}
	}
}

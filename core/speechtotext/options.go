package speechtotext

import (
	"errors"
	"strings"
)

// ErrUnsupported is returned when capture is not available, for example when
// no input device or no recognition service is configured.
var ErrUnsupported = errors.New("speech capture is not supported")

const DefaultLanguage = "en-US"

// Transcript is the live result of a capture session. Final is the
// concatenation of all recognized final segments, Interim the best guess for
// audio still in progress. Interim is advisory only.
type Transcript struct {
	Final   string
	Interim string
}

func (t Transcript) String() string {
	return strings.TrimSpace(strings.Join([]string{t.Final, t.Interim}, " "))
}

func (t Transcript) IsEmpty() bool {
	return strings.TrimSpace(t.Final) == "" && strings.TrimSpace(t.Interim) == ""
}

type CaptureOptions struct {
	// Language is a BCP 47 tag selecting the recognition locale.
	Language string

	// TranscriptCallback is called every time the live transcript changes.
	TranscriptCallback func(Transcript)
	// CaptureEndedCallback is called exactly once per started session with
	// the final transcript. It is empty when nothing was recognized or the
	// session failed.
	CaptureEndedCallback func(transcript string)
}

type CaptureOption func(*CaptureOptions)

// NewCaptureOptions applies opts over the defaults. Unset callbacks are
// replaced with no-ops.
func NewCaptureOptions(opts ...CaptureOption) CaptureOptions {
	options := CaptureOptions{
		Language:             DefaultLanguage,
		TranscriptCallback:   func(Transcript) {},
		CaptureEndedCallback: func(string) {},
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

func WithLanguage(tag string) CaptureOption {
	return func(o *CaptureOptions) {
		if tag != "" {
			o.Language = tag
		}
	}
}

func WithTranscriptCallback(callback func(Transcript)) CaptureOption {
	return func(o *CaptureOptions) {
		if callback != nil {
			o.TranscriptCallback = callback
		}
	}
}

func WithCaptureEndedCallback(callback func(transcript string)) CaptureOption {
	return func(o *CaptureOptions) {
		if callback != nil {
			o.CaptureEndedCallback = callback
		}
	}
}

package audio

import "context"

const (
	DefaultSampleRate = 16000
	DefaultFormat     = "linear16"
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: EncodingLinear16}
}

type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

// BytesPerSecond is the amount of encoded audio produced for one second of
// mono audio.
func (e EncodingInfo) BytesPerSecond() int {
	if e.IsZero() || e.Format.ByteSize() < 0 {
		return 0
	}
	return e.SampleRate * e.Format.ByteSize()
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case EncodingMulaw, EncodingALaw:
		return 1
	case EncodingLinear16:
		return 2
	}
	return -1
}

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
)

// Source is a microphone-like device that pushes captured audio frames to
// onAudio until StopCapture is called.
type Source interface {
	EncodingInfo() EncodingInfo
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
}

// Sink is a speaker-like device that plays audio in the order it was sent.
//
// Mark registers a callback that is called once all audio sent before the
// mark has been played. ClearBuffer drops buffered audio together with any
// pending marks; their callbacks are never called.
type Sink interface {
	EncodingInfo() EncodingInfo
	SendAudio(audio []byte) error
	Mark(name string, callback func(string)) error
	ClearBuffer()
}

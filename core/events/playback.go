package events

const (
	// KindPlaybackStarted identifies the start of audio for an utterance.
	KindPlaybackStarted Kind = "playback.started"
	// KindPlaybackEnded identifies the end of an utterance.
	KindPlaybackEnded Kind = "playback.ended"
)

type PlaybackStarted struct {
	Base
	Utterance uint64
}

func NewPlaybackStarted(utterance uint64) PlaybackStarted {
	return PlaybackStarted{Base: NewBase(KindPlaybackStarted), Utterance: utterance}
}

type PlaybackEnded struct {
	Base
	Utterance uint64
}

func NewPlaybackEnded(utterance uint64) PlaybackEnded {
	return PlaybackEnded{Base: NewBase(KindPlaybackEnded), Utterance: utterance}
}

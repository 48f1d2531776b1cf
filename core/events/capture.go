package events

const (
	// KindCaptureTranscriptUpdated identifies live transcript updates of a capture session.
	KindCaptureTranscriptUpdated Kind = "capture.transcript_updated"
	// KindCaptureEnded identifies the end of a capture session.
	KindCaptureEnded Kind = "capture.ended"
)

// CaptureTranscriptUpdated carries the live transcript of a capture session.
type CaptureTranscriptUpdated struct {
	Base
	Session uint64
	Final   string
	Interim string
}

func NewCaptureTranscriptUpdated(session uint64, final, interim string) CaptureTranscriptUpdated {
	return CaptureTranscriptUpdated{
		Base:    NewBase(KindCaptureTranscriptUpdated),
		Session: session,
		Final:   final,
		Interim: interim,
	}
}

// CaptureEnded carries the final transcript of a capture session.
type CaptureEnded struct {
	Base
	Session    uint64
	Transcript string
}

func NewCaptureEnded(session uint64, transcript string) CaptureEnded {
	return CaptureEnded{Base: NewBase(KindCaptureEnded), Session: session, Transcript: transcript}
}

package orchestration

// Phase is the current phase of the conversation. Exactly one phase is
// active at a time.
type Phase string

const (
	PhaseIdle      Phase = "IDLE"
	PhaseListening Phase = "LISTENING"
	PhaseThinking  Phase = "THINKING"
	PhaseSpeaking  Phase = "SPEAKING"
)

func (p Phase) String() string { return string(p) }

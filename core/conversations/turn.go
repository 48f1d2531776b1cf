package conversations

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// InterruptedSuffix is appended to the display text of replies the user
// stopped before they were complete.
const InterruptedSuffix = " [Stopped]"

// Turn is one committed message of the conversation. Text is final once the
// turn is committed.
type Turn struct {
	ID        string
	Role      Role
	Text      string
	Timestamp time.Time

	// Interrupted is set on assistant turns committed before the reply was
	// fully received.
	Interrupted bool
}

func NewUserTurn(text string) Turn {
	return Turn{ID: uuid.NewString(), Role: RoleUser, Text: text, Timestamp: time.Now()}
}

func NewAssistantTurn(text string, interrupted bool) Turn {
	return Turn{
		ID:          uuid.NewString(),
		Role:        RoleAssistant,
		Text:        text,
		Timestamp:   time.Now(),
		Interrupted: interrupted,
	}
}

// DisplayText is the text shown to the user, with interrupted replies marked.
func (t Turn) DisplayText() string {
	if t.Interrupted {
		return t.Text + InterruptedSuffix
	}
	return t.Text
}

// TurnsFromMessages maps stored history 1:1 onto committed turns, keeping the
// store's oldest-first order.
func TurnsFromMessages(messages []Message) []Turn {
	turns := make([]Turn, 0, len(messages))
	for _, message := range messages {
		turns = append(turns, Turn{
			ID:        uuid.NewString(),
			Role:      message.Role,
			Text:      message.Text,
			Timestamp: message.CreatedAt,
		})
	}
	return turns
}

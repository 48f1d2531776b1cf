// Package conversations holds the committed turn model and the contract of
// the durable conversation store.
package conversations

import (
	"cmp"
	"context"
	"slices"
	"time"
)

// Store is the durable side of conversations. The orchestrator only consults
// it when a conversation is created or opened.
type Store interface {
	ListConversations(ctx context.Context) ([]Summary, error)
	CreateConversation(ctx context.Context) (string, error)
	// GetMessages returns the history of a conversation, oldest first.
	GetMessages(ctx context.Context, conversationID string) ([]Message, error)
}

type Summary struct {
	ID           string
	CreatedAt    time.Time
	LastActivity time.Time
}

// RecentActivity is the last activity, falling back to creation time for
// conversations that never had any.
func (s Summary) RecentActivity() time.Time {
	if s.LastActivity.IsZero() {
		return s.CreatedAt
	}
	return s.LastActivity
}

type Message struct {
	Role      Role
	Text      string
	CreatedAt time.Time
}

// SortByRecentActivity orders summaries most recently active first.
func SortByRecentActivity(summaries []Summary) {
	slices.SortStableFunc(summaries, func(a, b Summary) int {
		return cmp.Compare(b.RecentActivity().UnixNano(), a.RecentActivity().UnixNano())
	})
}

package conversations

import (
	"testing"
	"time"
)

func TestDisplayTextMarksInterruptedReplies(t *testing.T) {
	if got := NewAssistantTurn("partial", true).DisplayText(); got != "partial [Stopped]" {
		t.Fatalf("expected interrupted marker, got %q", got)
	}
	if got := NewAssistantTurn("", true).DisplayText(); got != " [Stopped]" {
		t.Fatalf("expected marker on empty reply, got %q", got)
	}
	if got := NewAssistantTurn("done", false).DisplayText(); got != "done" {
		t.Fatalf("expected plain text, got %q", got)
	}
	if got := NewUserTurn("hello").DisplayText(); got != "hello" {
		t.Fatalf("expected plain text, got %q", got)
	}
}

func TestTurnsFromMessagesKeepsOrder(t *testing.T) {
	base := time.Date(2025, time.October, 1, 10, 0, 0, 0, time.UTC)
	turns := TurnsFromMessages([]Message{
		{Role: RoleUser, Text: "first", CreatedAt: base},
		{Role: RoleAssistant, Text: "second", CreatedAt: base.Add(time.Second)},
	})

	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Text != "first" || turns[0].Role != RoleUser || !turns[0].Timestamp.Equal(base) {
		t.Fatalf("unexpected first turn: %+v", turns[0])
	}
	if turns[1].Text != "second" || turns[1].Role != RoleAssistant {
		t.Fatalf("unexpected second turn: %+v", turns[1])
	}
	if turns[0].ID == "" || turns[0].ID == turns[1].ID {
		t.Fatalf("expected unique turn ids, got %q and %q", turns[0].ID, turns[1].ID)
	}
}

func TestSortByRecentActivity(t *testing.T) {
	base := time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC)
	summaries := []Summary{
		{ID: "a", CreatedAt: base},
		{ID: "b", CreatedAt: base, LastActivity: base.Add(3 * time.Hour)},
		{ID: "c", CreatedAt: base.Add(2 * time.Hour)},
		{ID: "d", CreatedAt: base},
	}

	SortByRecentActivity(summaries)

	want := []string{"b", "c", "a", "d"}
	for i, id := range want {
		if summaries[i].ID != id {
			t.Fatalf("expected %q at position %d, got %q", id, i, summaries[i].ID)
		}
	}
}

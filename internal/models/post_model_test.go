package models

import (
	"testing"
	"time"
)

func TestDeriveStatusPublishedWins(t *testing.T) {
	now := time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)
	for _, scheduled := range []time.Time{now.Add(-time.Hour), now, now.Add(time.Hour)} {
		if got := DeriveStatus(PostStatusPublished, scheduled, now); got != PostStatusPublished {
			t.Fatalf("scheduled %s: expected published, got %s", scheduled, got)
		}
	}
}

func TestDeriveStatusDueOnceTimeHasCome(t *testing.T) {
	now := time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)
	for _, stored := range []PostStatus{PostStatusPending, PostStatusFailed} {
		for _, scheduled := range []time.Time{now.Add(-24 * time.Hour), now} {
			if got := DeriveStatus(stored, scheduled, now); got != PostStatusDue {
				t.Fatalf("stored %s at %s: expected due, got %s", stored, scheduled, got)
			}
		}
	}
}

func TestDeriveStatusKeepsStoredValueInFuture(t *testing.T) {
	now := time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)
	future := now.Add(time.Minute)
	if got := DeriveStatus(PostStatusPending, future, now); got != PostStatusPending {
		t.Fatalf("expected pending, got %s", got)
	}
	if got := DeriveStatus(PostStatusFailed, future, now); got != PostStatusFailed {
		t.Fatalf("expected failed, got %s", got)
	}
}

func TestDeriveStatusScenarioPendingBecomesDue(t *testing.T) {
	scheduled := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)
	if got := DeriveStatus(PostStatusPending, scheduled, now); got != PostStatusDue {
		t.Fatalf("expected due, got %s", got)
	}
}

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]PostStatus{
		"published":   PostStatusPublished,
		" Published ": PostStatusPublished,
		"FAILED":      PostStatusFailed,
		"pending":     PostStatusPending,
		"":            PostStatusPending,
		"draft":       PostStatusPending,
		"due":         PostStatusPending,
	}
	for raw, want := range cases {
		if got := NormalizeStatus(raw); got != want {
			t.Fatalf("NormalizeStatus(%q) = %s, want %s", raw, got, want)
		}
	}
}

package session

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/chatviz/chatviz/internal/log"
)

func TestNormalizeListLimit(t *testing.T) {
	cases := []struct {
		in, want int32
	}{
		{0, DefaultListLimit},
		{-5, DefaultListLimit},
		{50, 50},
		{MaxListLimit + 1, MaxListLimit},
	}
	for _, tc := range cases {
		if got := NormalizeListLimit(tc.in); got != tc.want {
			t.Errorf("NormalizeListLimit(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestAddMessageRejectsUnknownRole(t *testing.T) {
	// The role check runs before any database work, so a nil DB suffices.
	store := NewStore(nil, log.NewNop())
	_, err := store.AddMessage(context.Background(), &Message{
		SessionID: uuid.New(),
		Role:      "system",
		Content:   "nope",
	})
	if !errors.Is(err, ErrInvalidRole) {
		t.Errorf("err = %v, want ErrInvalidRole", err)
	}
}

func TestCurrentSessionState(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	t.Run("missing file yields nil", func(t *testing.T) {
		id, err := LoadCurrentSessionID()
		if err != nil || id != nil {
			t.Errorf("LoadCurrentSessionID() = %v, %v, want nil, nil", id, err)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		want := uuid.New()
		if err := SaveCurrentSessionID(want); err != nil {
			t.Fatal(err)
		}
		got, err := LoadCurrentSessionID()
		if err != nil {
			t.Fatal(err)
		}
		if got == nil || *got != want {
			t.Errorf("loaded %v, want %v", got, want)
		}
	})

	t.Run("clear is idempotent", func(t *testing.T) {
		if err := ClearCurrentSessionID(); err != nil {
			t.Fatal(err)
		}
		if err := ClearCurrentSessionID(); err != nil {
			t.Fatal(err)
		}
		id, err := LoadCurrentSessionID()
		if err != nil || id != nil {
			t.Errorf("LoadCurrentSessionID() after clear = %v, %v", id, err)
		}
	})
}

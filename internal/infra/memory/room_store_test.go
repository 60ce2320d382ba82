package memory

import (
	"context"
	"testing"
	"time"

	"aksara-duel-service/internal/app"
	"aksara-duel-service/internal/domain"
)

type stubPeer string

func (p stubPeer) ID() string                 { return string(p) }
func (p stubPeer) Send(_ domain.Message) bool { return true }

func TestRoomStoreLifecycle(t *testing.T) {
	store := NewRoomStore()
	ctx := context.Background()
	now := time.Now()

	room := app.NewRoom("room-1", sampleQuiz(), stubPeer("a"), stubPeer("b"), 120, now, func() time.Time { return now })
	store.Save(ctx, room)
	got, ok := store.Get("room-1")
	if !ok || got != room {
		t.Fatalf("expected stored room")
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 room, got %d", store.Len())
	}

	store.Delete(ctx, "room-1")
	if _, ok := store.Get("room-1"); ok {
		t.Fatalf("expected room removed")
	}
}

package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"aksara-duel-service/internal/app"
	"aksara-duel-service/internal/domain"
)

// RoomStore is a Redis-aware implementation of app.RoomRepository.
// Live rooms stay in a local map because they hold peer connections; Redis
// carries a JSON snapshot per room with a TTL so other tooling can see which
// duels are running and how far along they are.
type RoomStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger

	mu    sync.RWMutex
	rooms map[string]*app.Room
}

func NewRoomStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RoomStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoomStore{
		client: client,
		ttl:    ttl,
		logger: logger,
		rooms:  make(map[string]*app.Room),
	}
}

func (s *RoomStore) Save(ctx context.Context, room *app.Room) {
	s.mu.Lock()
	s.rooms[room.ID()] = room
	s.mu.Unlock()

	// best-effort snapshot
	data, err := json.Marshal(room.Snapshot())
	if err != nil {
		s.logger.Warn("encode room snapshot", zap.String("room", room.ID()), zap.Error(err))
		return
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(room.ID()), data, s.ttl)
	pipe.SAdd(ctx, activeRoomsKey, room.ID())
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("store room snapshot", zap.String("room", room.ID()), zap.Error(err))
	}
}

func (s *RoomStore) Get(roomID string) (*app.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	return room, ok
}

func (s *RoomStore) Delete(ctx context.Context, roomID string) {
	s.mu.Lock()
	delete(s.rooms, roomID)
	s.mu.Unlock()

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(roomID))
	pipe.SRem(ctx, activeRoomsKey, roomID)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("clear room snapshot", zap.String("room", roomID), zap.Error(err))
	}
}

// Snapshot reads the last stored state of a room from Redis.
func (s *RoomStore) Snapshot(ctx context.Context, roomID string) (domain.RoomState, error) {
	data, err := s.client.Get(ctx, s.key(roomID)).Bytes()
	if err == redis.Nil {
		return domain.RoomState{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.RoomState{}, fmt.Errorf("get room snapshot: %w", err)
	}
	var state domain.RoomState
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.RoomState{}, fmt.Errorf("decode room snapshot: %w", err)
	}
	return state, nil
}

// ActiveRoomIDs lists rooms with a snapshot registered in Redis.
func (s *RoomStore) ActiveRoomIDs(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, activeRoomsKey).Result()
}

const activeRoomsKey = "duel:rooms"

func (s *RoomStore) key(roomID string) string {
	return "duel:room:" + roomID
}

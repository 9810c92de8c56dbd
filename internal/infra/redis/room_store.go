package redis

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"arena-quiz-service/internal/app"
	"arena-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

const roomIndexKey = "quiz:rooms"

// RoomStore is a Redis-aware implementation of app.RoomRepository.
// Notes:
//   - Live rooms stay in a local map; their mutexes and subscribers cannot
//     leave the process.
//   - Redis holds a summary per room plus an index set so other instances and
//     operators can see what is open.
type RoomStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
	rooms  map[string]*app.Room
}

func NewRoomStore(client *redis.Client, ttl time.Duration) *RoomStore {
	return &RoomStore{
		client: client,
		ttl:    ttl,
		rooms:  make(map[string]*app.Room),
	}
}

// Add, Delete and DeleteIfEmpty change the local map under the lock and talk
// to Redis after releasing it, so a slow Redis never stalls room lookups.
func (s *RoomStore) Add(room *app.Room) error {
	s.mu.Lock()
	if _, ok := s.rooms[room.ID()]; ok {
		s.mu.Unlock()
		return domain.NewError(domain.CodeRoomExists, "roomId", room.ID())
	}
	s.rooms[room.ID()] = room
	s.mu.Unlock()

	s.publish(context.Background(), room)
	return nil
}

func (s *RoomStore) Get(roomID string) (*app.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	return room, ok
}

func (s *RoomStore) Delete(roomID string) bool {
	s.mu.Lock()
	_, ok := s.rooms[roomID]
	delete(s.rooms, roomID)
	s.mu.Unlock()

	if ok {
		s.forget(context.Background(), roomID)
	}
	return ok
}

func (s *RoomStore) DeleteIfEmpty(roomID string) bool {
	s.mu.Lock()
	room, ok := s.rooms[roomID]
	removed := ok && room.IsEmpty()
	if removed {
		delete(s.rooms, roomID)
	}
	s.mu.Unlock()

	if removed {
		s.forget(context.Background(), roomID)
	}
	return removed
}

func (s *RoomStore) List() []*app.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		out = append(out, room)
	}
	return out
}

// Refresh rewrites the Redis summary of a room, e.g. after its roster changed.
func (s *RoomStore) Refresh(ctx context.Context, roomID string) {
	s.mu.RLock()
	room, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if ok {
		s.publish(ctx, room)
	}
}

// Summaries reads the room summaries visible in Redis, including rooms owned
// by other instances.
func (s *RoomStore) Summaries(ctx context.Context) ([]domain.RoomSummary, error) {
	ids, err := s.client.SMembers(ctx, roomIndexKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.RoomSummary, 0, len(ids))
	for _, id := range ids {
		raw, err := s.client.Get(ctx, s.key(id)).Bytes()
		if err == redis.Nil {
			// expired; drop the dangling index entry
			_ = s.client.SRem(ctx, roomIndexKey, id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		var summary domain.RoomSummary
		if err := json.Unmarshal(raw, &summary); err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, nil
}

// best-effort, the local map stays authoritative
func (s *RoomStore) publish(ctx context.Context, room *app.Room) {
	raw, err := json.Marshal(room.Summary())
	if err != nil {
		return
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(room.ID()), raw, s.ttl)
	pipe.SAdd(ctx, roomIndexKey, room.ID())
	_, _ = pipe.Exec(ctx)
}

func (s *RoomStore) forget(ctx context.Context, roomID string) {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(roomID))
	pipe.SRem(ctx, roomIndexKey, roomID)
	_, _ = pipe.Exec(ctx)
}

func (s *RoomStore) key(roomID string) string {
	return "quiz:room:" + roomID
}

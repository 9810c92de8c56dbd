package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"arena-quiz-service/internal/domain"
	"github.com/google/uuid"
)

const maxIDAttempts = 5

// RoomRegistry creates and looks up rooms on top of a RoomRepository.
type RoomRegistry struct {
	rooms RoomRepository
	newID func() string
	now   func() time.Time
}

func NewRoomRegistry(rooms RoomRepository) *RoomRegistry {
	return &RoomRegistry{rooms: rooms, newID: uuid.NewString, now: time.Now}
}

// NewRoomRegistryWithIDs is test-only for deterministic ids and timestamps.
func NewRoomRegistryWithIDs(rooms RoomRepository, newID func() string, now func() time.Time) *RoomRegistry {
	return &RoomRegistry{rooms: rooms, newID: newID, now: now}
}

// Create registers a WAITING room with the creator as host. Id collisions are
// retried here and never reach the caller.
func (g *RoomRegistry) Create(hostID, hostname string, spec domain.RoomSpec) (*Room, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		room := NewRoomWithClock(g.newID(), hostID, hostname, spec, g.now)
		err := g.rooms.Add(room)
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, domain.ErrRoomExists) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("allocate room id after %d attempts: %w", maxIDAttempts, domain.ErrRoomExists)
}

// Find returns the room or ErrRoomNotFound.
func (g *RoomRegistry) Find(roomID string) (*Room, error) {
	room, ok := g.rooms.Get(roomID)
	if !ok {
		return nil, domain.NewError(domain.CodeRoomNotFound, "roomId", roomID)
	}
	return room, nil
}

// List projects every room, oldest first.
func (g *RoomRegistry) List() []domain.RoomSummary {
	rooms := g.rooms.List()
	sort.Slice(rooms, func(i, j int) bool {
		if !rooms[i].CreatedAt().Equal(rooms[j].CreatedAt()) {
			return rooms[i].CreatedAt().Before(rooms[j].CreatedAt())
		}
		return rooms[i].ID() < rooms[j].ID()
	})
	out := make([]domain.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, room.Summary())
	}
	return out
}

// ListShared is List plus the rooms other instances have published to a shared
// directory. Local rooms come first; remote ones follow ordered by id.
func (g *RoomRegistry) ListShared(ctx context.Context) ([]domain.RoomSummary, error) {
	local := g.List()
	dir, ok := g.rooms.(RoomDirectory)
	if !ok {
		return local, nil
	}
	shared, err := dir.Summaries(ctx)
	if err != nil {
		return local, err
	}
	seen := make(map[string]struct{}, len(local))
	for _, summary := range local {
		seen[summary.RoomID] = struct{}{}
	}
	var remote []domain.RoomSummary
	for _, summary := range shared {
		if _, ok := seen[summary.RoomID]; ok {
			continue
		}
		remote = append(remote, summary)
	}
	sort.Slice(remote, func(i, j int) bool { return remote[i].RoomID < remote[j].RoomID })
	return append(local, remote...), nil
}

// Delete removes a room permanently and ends its event subscriptions.
func (g *RoomRegistry) Delete(roomID string) error {
	room, ok := g.rooms.Get(roomID)
	if !ok || !g.rooms.Delete(roomID) {
		return domain.NewError(domain.CodeRoomNotFound, "roomId", roomID)
	}
	room.closeSubscribers()
	return nil
}

// DeleteIfEmpty drops a room whose roster emptied out.
func (g *RoomRegistry) DeleteIfEmpty(roomID string) bool {
	room, ok := g.rooms.Get(roomID)
	if !ok {
		return false
	}
	if g.rooms.DeleteIfEmpty(roomID) {
		room.closeSubscribers()
		return true
	}
	return false
}

// SweepFinished removes rooms that finished before the cutoff.
func (g *RoomRegistry) SweepFinished(cutoff time.Time) int {
	removed := 0
	for _, room := range g.rooms.List() {
		if room.FinishedBefore(cutoff) && g.rooms.Delete(room.ID()) {
			room.closeSubscribers()
			removed++
		}
	}
	return removed
}

// Touch tells a mirroring repository that a room changed.
func (g *RoomRegistry) Touch(ctx context.Context, roomID string) {
	if r, ok := g.rooms.(RoomRefresher); ok {
		r.Refresh(ctx, roomID)
	}
}

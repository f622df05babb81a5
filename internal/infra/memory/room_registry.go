package memory

import (
	"sort"
	"sync"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
)

// RoomRegistry is an in-memory implementation of app.RoomRegistry.
type RoomRegistry struct {
	mu     sync.RWMutex
	rooms  map[string]*app.Room
	byCode map[string]string
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms:  make(map[string]*app.Room),
		byCode: make(map[string]string),
	}
}

func (r *RoomRegistry) Insert(room *app.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byCode[room.InviteCode()]; ok {
		return domain.ErrInviteCodeTaken
	}
	r.rooms[room.ID()] = room
	r.byCode[room.InviteCode()] = room.ID()
	return nil
}

func (r *RoomRegistry) Get(roomID string) (*app.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	return room, ok
}

func (r *RoomRegistry) GetByInviteCode(code string) (*app.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byCode[app.NormalizeInviteCode(code)]
	if !ok {
		return nil, false
	}
	room, ok := r.rooms[id]
	return room, ok
}

func (r *RoomRegistry) Delete(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(r.rooms, roomID)
	if r.byCode[room.InviteCode()] == roomID {
		delete(r.byCode, room.InviteCode())
	}
}

// List returns live rooms ordered by id.
func (r *RoomRegistry) List() []*app.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := make([]*app.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID() < rooms[j].ID() })
	return rooms
}

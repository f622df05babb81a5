package redis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
)

// RoomRegistry is a Redis-aware implementation of app.RoomRegistry.
// Notes:
//   - Rooms live in a local map; the Room state machine is in-process only.
//   - Invite codes are claimed with SETNX so two instances never hand out the same code.
//   - A liveness key per room expires with ttl and is refreshed by Touch.
type RoomRegistry struct {
	client *redis.Client
	ttl    time.Duration

	mu     sync.RWMutex
	rooms  map[string]*app.Room
	byCode map[string]string
}

func NewRoomRegistry(client *redis.Client, ttl time.Duration) *RoomRegistry {
	return &RoomRegistry{
		client: client,
		ttl:    ttl,
		rooms:  make(map[string]*app.Room),
		byCode: make(map[string]string),
	}
}

func (r *RoomRegistry) Insert(room *app.Room) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	r.mu.RLock()
	_, taken := r.byCode[room.InviteCode()]
	r.mu.RUnlock()
	if taken {
		return domain.ErrInviteCodeTaken
	}

	// Redis round-trips stay outside r.mu so lookups for other rooms never wait on them.
	claimed, err := r.client.SetNX(ctx, inviteKey(room.InviteCode()), room.ID(), r.ttl).Result()
	if err != nil {
		return fmt.Errorf("claim invite code: %w", err)
	}
	if !claimed {
		return domain.ErrInviteCodeTaken
	}

	r.mu.Lock()
	_, taken = r.byCode[room.InviteCode()]
	if !taken {
		r.rooms[room.ID()] = room
		r.byCode[room.InviteCode()] = room.ID()
	}
	r.mu.Unlock()
	if taken {
		r.release(ctx, room)
		return domain.ErrInviteCodeTaken
	}

	if err := r.client.Set(ctx, roomKey(room.ID()), room.InviteCode(), r.ttl).Err(); err != nil {
		log.Printf("redis: mark room %s live: %v", room.ID(), err)
	}
	return nil
}

// release drops an invite claim, but only while it still points at room.
func (r *RoomRegistry) release(ctx context.Context, room *app.Room) {
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		owner, err := tx.Get(ctx, inviteKey(room.InviteCode())).Result()
		if err != nil || owner != room.ID() {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, inviteKey(room.InviteCode()))
			return nil
		})
		return err
	}, inviteKey(room.InviteCode()))
	if err != nil && !errors.Is(err, redis.Nil) {
		log.Printf("redis: release invite code for room %s: %v", room.ID(), err)
	}
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
	room, ok := r.rooms[roomID]
	if ok {
		delete(r.rooms, roomID)
		delete(r.byCode, room.InviteCode())
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.client.Del(ctx, inviteKey(room.InviteCode()), roomKey(roomID)).Err(); err != nil {
		log.Printf("redis: release room %s: %v", roomID, err)
	}
}

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

// Touch extends the invite claim and liveness key of every local room.
func (r *RoomRegistry) Touch(ctx context.Context) error {
	if r.ttl <= 0 {
		return nil
	}
	pipe := r.client.Pipeline()
	for _, room := range r.List() {
		pipe.Expire(ctx, inviteKey(room.InviteCode()), r.ttl)
		pipe.Expire(ctx, roomKey(room.ID()), r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func inviteKey(code string) string {
	return "quizroom:invite:" + code
}

func roomKey(roomID string) string {
	return "quizroom:room:" + roomID
}

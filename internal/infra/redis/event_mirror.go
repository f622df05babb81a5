package redis

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"quizroom-service/internal/domain"
)

// EventMirror republishes room events on Redis pub/sub so other processes
// (dashboards, other instances) can follow a room.
type EventMirror struct {
	client *redis.Client
}

func NewEventMirror(client *redis.Client) *EventMirror {
	return &EventMirror{client: client}
}

// Run forwards events until ctx is done or events is closed.
func (m *EventMirror) Run(ctx context.Context, events <-chan domain.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			m.publish(ctx, ev)
		}
	}
}

func (m *EventMirror) publish(ctx context.Context, ev domain.Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		log.Printf("mirror: encode %s event: %v", ev.Type, err)
		return
	}
	if err := m.client.Publish(ctx, EventChannel(ev.RoomID), raw).Err(); err != nil {
		log.Printf("mirror: publish room %s: %v", ev.RoomID, err)
	}
}

// EventChannel is the pub/sub channel carrying a room's events.
func EventChannel(roomID string) string {
	return "quizroom:room:" + roomID + ":events"
}

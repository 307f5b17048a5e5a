package realtime

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
)

const bridgeChannel = "blupi:realtime"

const (
	kindPresence = "presence"
	kindRelay    = "relay"
)

// envelope is the wire format frames take across the Redis bridge.
// Presence envelopes carry the origin instance's full local user list for
// the board; an empty list clears that origin's contribution.
type envelope struct {
	Origin  string          `json:"origin"`
	BoardID string          `json:"boardId"`
	Kind    string          `json:"kind"`
	Users   []User          `json:"users,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Bridge fans frames out to other instances over Redis pub/sub. Without a
// bridge the hub is single-instance, which is the default deployment.
type Bridge struct {
	rdb *redis.Client
	hub *Hub
}

// NewBridge creates a bridge and attaches it to the hub.
func NewBridge(rdb *redis.Client, hub *Hub) *Bridge {
	b := &Bridge{rdb: rdb, hub: hub}
	hub.AttachBridge(b)
	return b
}

// Run subscribes to the bridge channel and forwards remote envelopes to the
// hub until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) {
	sub := b.rdb.Subscribe(ctx, bridgeChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("realtime: bridge payload: %v", err)
				continue
			}
			select {
			case b.hub.remote <- env:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (b *Bridge) publishPresence(boardID string, users []User) {
	b.publish(envelope{
		Origin:  b.hub.id,
		BoardID: boardID,
		Kind:    kindPresence,
		Users:   users,
	})
}

func (b *Bridge) publishRelay(boardID string, data []byte) {
	b.publish(envelope{
		Origin:  b.hub.id,
		BoardID: boardID,
		Kind:    kindRelay,
		Data:    data,
	})
}

func (b *Bridge) publish(env envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		log.Printf("realtime: bridge marshal: %v", err)
		return
	}
	if err := b.rdb.Publish(context.Background(), bridgeChannel, payload).Err(); err != nil {
		log.Printf("realtime: bridge publish: %v", err)
	}
}

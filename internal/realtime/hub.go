// Package realtime implements the collaborative board channel: presence
// tracking per board and opaque relay of client frames to co-subscribers.
package realtime

import (
	"encoding/json"
	"log"

	"github.com/google/uuid"
)

// User is one connected participant as reported in users_update frames.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Message is the minimal shape the hub decodes from inbound frames. Frames
// that are not subscriptions are relayed byte for byte; the hub only needs
// the type and board routing fields.
type Message struct {
	Type     string `json:"type"`
	BoardID  string `json:"boardId,omitempty"`
	UserName string `json:"userName,omitempty"`
	Users    []User `json:"users,omitempty"`
}

type frame struct {
	conn *Conn
	data []byte
}

// Hub maintains the set of active connections and their board
// subscriptions. All state is owned by the Run loop; other goroutines
// interact with it through channels only.
type Hub struct {
	id string // instance identity, used to drop our own bridge echoes

	register   chan *Conn
	unregister chan *Conn
	frames     chan frame
	remote     chan envelope

	conns  map[*Conn]bool
	boards map[string]map[*Conn]bool

	// peers holds board presence reported by other instances via the
	// bridge, keyed by board id then origin instance id.
	peers map[string]map[string][]User

	bridge *Bridge
}

// NewHub creates a hub. Call Run in a goroutine before serving connections.
func NewHub() *Hub {
	return &Hub{
		id:         uuid.NewString(),
		register:   make(chan *Conn),
		unregister: make(chan *Conn),
		frames:     make(chan frame, 64),
		remote:     make(chan envelope, 64),
		conns:      make(map[*Conn]bool),
		boards:     make(map[string]map[*Conn]bool),
		peers:      make(map[string]map[string][]User),
	}
}

// AttachBridge wires a pub/sub bridge for multi-instance fan-out.
// Must be called before Run.
func (h *Hub) AttachBridge(b *Bridge) {
	h.bridge = b
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.conns[c] = true
		case c := <-h.unregister:
			h.drop(c)
		case f := <-h.frames:
			h.handleFrame(f)
		case env := <-h.remote:
			h.handleRemote(env)
		}
	}
}

func (h *Hub) drop(c *Conn) {
	if _, ok := h.conns[c]; !ok {
		return
	}
	delete(h.conns, c)
	close(c.send)
	if c.boardID != "" {
		boardID := c.boardID
		delete(h.boards[boardID], c)
		if len(h.boards[boardID]) == 0 {
			delete(h.boards, boardID)
		}
		h.broadcastUsers(boardID)
	}
}

func (h *Hub) handleFrame(f frame) {
	var msg Message
	if err := json.Unmarshal(f.data, &msg); err != nil {
		log.Printf("realtime: malformed frame from %s: %v", f.conn.id, err)
		return
	}

	if msg.Type == "subscribe" {
		h.subscribe(f.conn, msg.BoardID, msg.UserName)
		return
	}

	// Opaque relay to co-subscribers; the hub does not interpret the
	// payload beyond its board routing.
	if f.conn.boardID == "" {
		return
	}
	h.relay(f.conn.boardID, f.data, f.conn)
	if h.bridge != nil {
		h.bridge.publishRelay(f.conn.boardID, f.data)
	}
}

// subscribe moves the connection onto a board. A connection subscribes to
// one board at a time; re-subscribing switches boards.
func (h *Hub) subscribe(c *Conn, boardID, userName string) {
	if boardID == "" {
		return
	}
	if c.boardID != "" && c.boardID != boardID {
		prev := c.boardID
		delete(h.boards[prev], c)
		if len(h.boards[prev]) == 0 {
			delete(h.boards, prev)
		}
		h.broadcastUsers(prev)
	}

	c.boardID = boardID
	c.user = User{ID: c.id, Name: userName}
	if h.boards[boardID] == nil {
		h.boards[boardID] = make(map[*Conn]bool)
	}
	h.boards[boardID][c] = true
	h.broadcastUsers(boardID)
}

// boardUsers merges local subscribers with presence reported by peer
// instances.
func (h *Hub) boardUsers(boardID string) []User {
	users := make([]User, 0)
	for c := range h.boards[boardID] {
		users = append(users, c.user)
	}
	for _, remote := range h.peers[boardID] {
		users = append(users, remote...)
	}
	return users
}

func (h *Hub) broadcastUsers(boardID string) {
	users := h.boardUsers(boardID)
	data, err := json.Marshal(Message{Type: "users_update", Users: users})
	if err != nil {
		log.Printf("realtime: marshal users_update: %v", err)
		return
	}
	h.relay(boardID, data, nil)

	if h.bridge != nil {
		local := make([]User, 0)
		for c := range h.boards[boardID] {
			local = append(local, c.user)
		}
		h.bridge.publishPresence(boardID, local)
	}
}

// relay sends data to every subscriber of boardID except sender. Slow
// consumers are dropped rather than allowed to stall the loop; dropping
// one shrinks the subscriber set, so the survivors get a fresh
// users_update afterwards.
func (h *Hub) relay(boardID string, data []byte, sender *Conn) {
	dropped := false
	for c := range h.boards[boardID] {
		if c == sender {
			continue
		}
		select {
		case c.send <- data:
		default:
			log.Printf("realtime: send buffer full, dropping connection %s", c.id)
			delete(h.conns, c)
			delete(h.boards[boardID], c)
			close(c.send)
			dropped = true
		}
	}
	if dropped {
		if len(h.boards[boardID]) == 0 {
			delete(h.boards, boardID)
		}
		h.broadcastUsers(boardID)
	}
}

func (h *Hub) handleRemote(env envelope) {
	if env.Origin == h.id {
		return
	}
	switch env.Kind {
	case kindPresence:
		if h.peers[env.BoardID] == nil {
			h.peers[env.BoardID] = make(map[string][]User)
		}
		if len(env.Users) == 0 {
			delete(h.peers[env.BoardID], env.Origin)
			if len(h.peers[env.BoardID]) == 0 {
				delete(h.peers, env.BoardID)
			}
		} else {
			h.peers[env.BoardID][env.Origin] = env.Users
		}
		// Locally connected subscribers get the merged list.
		users := h.boardUsers(env.BoardID)
		data, err := json.Marshal(Message{Type: "users_update", Users: users})
		if err != nil {
			return
		}
		h.relay(env.BoardID, data, nil)
	case kindRelay:
		h.relay(env.BoardID, env.Data, nil)
	}
}

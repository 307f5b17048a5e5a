package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub()
	go hub.Run()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(hub, w, r)
	}))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func subscribe(t *testing.T, conn *websocket.Conn, boardID, name string) {
	t.Helper()
	msg := Message{Type: "subscribe", BoardID: boardID, UserName: name}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return data
}

// readUsersUpdate reads frames until a users_update with want participants
// arrives.
func readUsersUpdate(t *testing.T, conn *websocket.Conn, want int) []User {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		var msg Message
		if err := json.Unmarshal(readFrame(t, conn), &msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if msg.Type == "users_update" && len(msg.Users) == want {
			return msg.Users
		}
	}
	t.Fatalf("no users_update with %d users", want)
	return nil
}

func TestSubscribePresence(t *testing.T) {
	_, url := startHub(t)

	a := dial(t, url)
	subscribe(t, a, "brd_1", "Ada")
	users := readUsersUpdate(t, a, 1)
	if users[0].Name != "Ada" {
		t.Fatalf("expected Ada, got %+v", users)
	}

	b := dial(t, url)
	subscribe(t, b, "brd_1", "Grace")
	readUsersUpdate(t, b, 2)
	users = readUsersUpdate(t, a, 2)

	names := map[string]bool{}
	for _, u := range users {
		names[u.Name] = true
	}
	if !names["Ada"] || !names["Grace"] {
		t.Fatalf("expected both participants, got %+v", users)
	}
}

func TestDisconnectShrinksPresence(t *testing.T) {
	_, url := startHub(t)

	a := dial(t, url)
	subscribe(t, a, "brd_1", "Ada")
	readUsersUpdate(t, a, 1)

	b := dial(t, url)
	subscribe(t, b, "brd_1", "Grace")
	readUsersUpdate(t, a, 2)

	b.Close()
	users := readUsersUpdate(t, a, 1)
	if users[0].Name != "Ada" {
		t.Fatalf("expected only Ada after disconnect, got %+v", users)
	}
}

func TestOpaqueRelay(t *testing.T) {
	_, url := startHub(t)

	a := dial(t, url)
	subscribe(t, a, "brd_1", "Ada")
	readUsersUpdate(t, a, 1)

	b := dial(t, url)
	subscribe(t, b, "brd_1", "Grace")
	readUsersUpdate(t, a, 2)
	readUsersUpdate(t, b, 2)

	// A third connection on another board must not see the frame.
	c := dial(t, url)
	subscribe(t, c, "brd_2", "Linus")
	readUsersUpdate(t, c, 1)

	raw := `{"type":"block_moved","boardId":"brd_1","blockId":"blk_1","placement":{"phaseId":"p","columnId":"c"}}`
	if err := b.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("write: %v", err)
	}

	got := readFrame(t, a)
	if string(got) != raw {
		t.Fatalf("relay should be byte-for-byte, got %s", got)
	}

	// The sender does not receive its own frame; the other board sees
	// nothing. Verify by sending a sentinel users_update trigger.
	c.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, data, err := c.ReadMessage(); err == nil {
		t.Fatalf("unrelated board received frame: %s", data)
	}
}

// awaitUsers reads a connection's send channel until a users_update with
// want participants arrives.
func awaitUsers(t *testing.T, ch chan []byte, want int) []User {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case data, ok := <-ch:
			if !ok {
				t.Fatalf("send channel closed while waiting for users_update")
			}
			var msg Message
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if msg.Type == "users_update" && len(msg.Users) == want {
				return msg.Users
			}
		case <-deadline:
			t.Fatalf("no users_update with %d users", want)
		}
	}
}

func TestSlowConsumerDropShrinksPresence(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	// The slow connection's buffer holds the three subscription
	// broadcasts plus one relayed frame; the next frame overflows it.
	slow := &Conn{hub: hub, send: make(chan []byte, 4), id: "conn-slow"}
	fast := &Conn{hub: hub, send: make(chan []byte, 64), id: "conn-fast"}
	sender := &Conn{hub: hub, send: make(chan []byte, 64), id: "conn-sender"}

	for _, c := range []struct {
		conn *Conn
		name string
	}{{slow, "Slow"}, {fast, "Fast"}, {sender, "Sender"}} {
		hub.register <- c.conn
		hub.frames <- frame{conn: c.conn, data: []byte(`{"type":"subscribe","boardId":"brd_1","userName":"` + c.name + `"}`)}
	}
	awaitUsers(t, fast.send, 3)

	flood := []byte(`{"type":"cursor","boardId":"brd_1"}`)
	hub.frames <- frame{conn: sender, data: flood}
	hub.frames <- frame{conn: sender, data: flood}

	users := awaitUsers(t, fast.send, 2)
	names := map[string]bool{}
	for _, u := range users {
		names[u.Name] = true
	}
	if names["Slow"] || !names["Fast"] || !names["Sender"] {
		t.Fatalf("expected presence without the dropped connection, got %+v", users)
	}

	// The dropped connection's channel must be closed so its write pump
	// terminates.
	closed := false
	for !closed {
		select {
		case _, ok := <-slow.send:
			if !ok {
				closed = true
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("dropped connection's send channel was not closed")
		}
	}
}

func TestBridgeFansOutAcrossHubs(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb1 := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rdb2 := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb1.Close(); rdb2.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub1, url1 := startHub(t)
	hub2, url2 := startHub(t)
	go NewBridge(rdb1, hub1).Run(ctx)
	go NewBridge(rdb2, hub2).Run(ctx)

	// Give both subscriptions a moment to establish.
	time.Sleep(100 * time.Millisecond)

	a := dial(t, url1)
	subscribe(t, a, "brd_9", "Ada")
	readUsersUpdate(t, a, 1)

	b := dial(t, url2)
	subscribe(t, b, "brd_9", "Grace")
	readUsersUpdate(t, b, 1)

	// Presence merges across instances.
	readUsersUpdate(t, a, 2)
	readUsersUpdate(t, b, 2)

	// Frames relay across instances.
	raw := `{"type":"block_moved","boardId":"brd_9","blockId":"blk_1"}`
	if err := a.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("write: %v", err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		data := readFrame(t, b)
		if string(data) == raw {
			return
		}
	}
	t.Fatal("frame did not cross the bridge")
}

func TestClientReconnectsAndResubscribes(t *testing.T) {
	subs := make(chan Message, 4)
	connCount := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connCount++
		first := connCount == 1
		var msg Message
		if err := ws.ReadJSON(&msg); err == nil {
			subs <- msg
		}
		if first {
			ws.Close()
			return
		}
		// Keep the second connection open.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	client := NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	defer client.Close()
	client.Subscribe(context.Background(), "brd_1", "Ada")

	waitSub := func() Message {
		select {
		case m := <-subs:
			return m
		case <-time.After(3 * time.Second):
			t.Fatal("no subscribe frame")
			return Message{}
		}
	}

	first := waitSub()
	if first.Type != "subscribe" || first.BoardID != "brd_1" || first.UserName != "Ada" {
		t.Fatalf("unexpected subscribe frame: %+v", first)
	}

	// The server dropped the first connection; skip the backoff wait.
	client.WakeUp()
	second := waitSub()
	if second.BoardID != "brd_1" {
		t.Fatalf("expected re-subscribe to same board, got %+v", second)
	}
}

func TestReconnectBackoffDoublesAndCaps(t *testing.T) {
	d := reconnectBase
	var seen []time.Duration
	for i := 0; i < 7; i++ {
		d = nextDelay(d)
		seen = append(seen, d)
	}
	want := []time.Duration{
		2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
		30 * time.Second, 30 * time.Second, 30 * time.Second,
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("delay %d: want %v, got %v", i, want[i], seen[i])
		}
	}
}

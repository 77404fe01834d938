package ws

import (
	"encoding/json"
	"testing"
	"time"

	"whatsapp-clone-demo/backend/internal/events"
	"whatsapp-clone-demo/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub() *Hub {
	hub := NewHub(logger.New(logger.DefaultConfig()))
	go hub.Run()
	return hub
}

func newTestClient(hub *Hub, userID uint, buffer int) *Client {
	return &Client{
		id:     "test-client",
		userID: userID,
		send:   make(chan []byte, buffer),
		hub:    hub,
	}
}

func register(t *testing.T, hub *Hub, client *Client) {
	t.Helper()
	hub.register <- client
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for _, c := range hub.clients[client.userID] {
			if c == client {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestPublishReachesOnlyTargetUser(t *testing.T) {
	hub := newTestHub()
	sender := newTestClient(hub, 1, 8)
	receiver := newTestClient(hub, 2, 8)
	register(t, hub, sender)
	register(t, hub, receiver)

	hub.Publish(2, events.UserTyping{SenderID: 1})

	select {
	case payload := <-receiver.send:
		var decoded struct {
			Event string `json:"event"`
		}
		require.NoError(t, json.Unmarshal(payload, &decoded))
		assert.Equal(t, "user.typing", decoded.Event)
	case <-time.After(time.Second):
		t.Fatal("receiver never got the event")
	}

	select {
	case <-sender.send:
		t.Fatal("event leaked to another user's channel")
	default:
	}
}

func TestPublishFansOutToAllConnectionsOfUser(t *testing.T) {
	hub := newTestHub()
	first := newTestClient(hub, 5, 8)
	second := newTestClient(hub, 5, 8)
	register(t, hub, first)
	register(t, hub, second)

	hub.Publish(5, events.MessageDeleted{MessageID: 1})

	for _, c := range []*Client{first, second} {
		select {
		case <-c.send:
		case <-time.After(time.Second):
			t.Fatal("connection missed the event")
		}
	}
}

func TestPublishToAbsentUserIsNoop(t *testing.T) {
	hub := newTestHub()
	// Must return immediately with nobody attached
	done := make(chan struct{})
	go func() {
		hub.Publish(42, events.MessageDeleted{MessageID: 1})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked with no clients attached")
	}
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	hub := newTestHub()
	client := newTestClient(hub, 3, 1)
	register(t, hub, client)

	// Fill the buffer, then publish again; the second event is dropped
	// rather than blocking the pipeline.
	hub.Publish(3, events.MessageDeleted{MessageID: 1})

	done := make(chan struct{})
	go func() {
		hub.Publish(3, events.MessageDeleted{MessageID: 2})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full client buffer")
	}
	assert.Len(t, client.send, 1)
}

func TestUnregisterRemovesClient(t *testing.T) {
	hub := newTestHub()
	client := newTestClient(hub, 7, 8)
	register(t, hub, client)

	hub.unregister <- client
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.clients[7]) == 0
	}, time.Second, 5*time.Millisecond)

	// Channel closed by the hub
	_, open := <-client.send
	assert.False(t, open)
}

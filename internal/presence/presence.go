package presence

import (
	"context"
	"fmt"
	"time"

	"whatsapp-clone-demo/backend/internal/events"
	"whatsapp-clone-demo/backend/pkg/logger"
	"whatsapp-clone-demo/backend/shared/observability"
)

// Store is the ephemeral key store backing typing state. Keys carry a TTL so
// typing state expires on its own; nothing is ever persisted.
type Store interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Broadcaster relays the typing event to the receiver's private channel.
type Broadcaster interface {
	Publish(userID uint, event events.Event)
}

// Tracker relays typing signals. Fire-and-forget: no acknowledgement, no
// ordering guarantee, and a store failure never reaches the caller.
type Tracker struct {
	store       Store
	broadcaster Broadcaster
	ttl         time.Duration
	log         *logger.Logger
}

func NewTracker(store Store, broadcaster Broadcaster, ttl time.Duration, log *logger.Logger) *Tracker {
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &Tracker{store: store, broadcaster: broadcaster, ttl: ttl, log: log}
}

func typingKey(senderID, receiverID uint) string {
	return fmt.Sprintf("typing:%d:%d", senderID, receiverID)
}

// NotifyTyping marks the sender as typing towards the receiver and relays a
// user.typing event. The receiving client clears the indicator on its own
// after the TTL; there is no explicit stopped-typing signal.
func (t *Tracker) NotifyTyping(ctx context.Context, senderID, receiverID uint) {
	if err := t.store.Set(ctx, typingKey(senderID, receiverID), time.Now().Unix(), t.ttl); err != nil {
		t.log.Warn("failed to record typing state", "error", err.Error(), "sender_id", senderID)
	}

	observability.TypingSignals.Inc()
	t.broadcaster.Publish(receiverID, events.UserTyping{SenderID: senderID})
}

// IsTyping reports whether the sender has signalled typing towards the
// receiver within the TTL window.
func (t *Tracker) IsTyping(ctx context.Context, senderID, receiverID uint) bool {
	ok, err := t.store.Exists(ctx, typingKey(senderID, receiverID))
	if err != nil {
		t.log.Warn("failed to read typing state", "error", err.Error(), "sender_id", senderID)
		return false
	}
	return ok
}

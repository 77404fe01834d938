package events

import (
	"encoding/json"
	"time"

	"whatsapp-clone-demo/backend/internal/models"
)

// Event names as they appear on the wire. Clients switch on these; they are
// part of the protocol and must not change.
const (
	NameMessageNew       = "message.new"
	NameMessageDelivered = "message.delivered"
	NameMessageSeen      = "message.seen"
	NameMessageUpdated   = "message.updated"
	NameMessageDeleted   = "message.deleted"
	NameUserTyping       = "user.typing"
)

// Event is one variant of the closed set of broadcast payloads. Each variant
// carries exactly the fields a client needs to update its local view without
// a re-fetch.
type Event interface {
	Name() string
}

// MessageNew carries the full message body so the receiver can render it
// immediately. DeliveredAt/SeenAt are still nil at this point.
type MessageNew struct {
	Message *models.Message `json:"message"`
}

func (MessageNew) Name() string { return NameMessageNew }

// MessageDelivered notifies the original sender of a delivery transition.
type MessageDelivered struct {
	MessageID   uint      `json:"message_id"`
	DeliveredAt time.Time `json:"delivered_at"`
}

func (MessageDelivered) Name() string { return NameMessageDelivered }

// MessageSeen notifies the original sender of a seen transition. One event
// is emitted per transitioned message.
type MessageSeen struct {
	MessageID uint      `json:"message_id"`
	SeenAt    time.Time `json:"seen_at"`
}

func (MessageSeen) Name() string { return NameMessageSeen }

// MessageUpdated notifies the other participant of a content revision.
type MessageUpdated struct {
	MessageID uint   `json:"message_id"`
	Content   string `json:"content"`
	Edited    bool   `json:"edited"`
}

func (MessageUpdated) Name() string { return NameMessageUpdated }

// MessageDeleted notifies the other participant of a hard delete.
type MessageDeleted struct {
	MessageID uint `json:"message_id"`
}

func (MessageDeleted) Name() string { return NameMessageDeleted }

// UserTyping is the ephemeral typing signal. It is never persisted; the
// receiving client clears it on its own after a short window.
type UserTyping struct {
	SenderID uint `json:"sender_id"`
}

func (UserTyping) Name() string { return NameUserTyping }

type envelope struct {
	Event string `json:"event"`
	Data  Event  `json:"data"`
}

// Marshal wraps an event in the wire envelope {"event": ..., "data": ...}.
func Marshal(e Event) ([]byte, error) {
	return json.Marshal(envelope{Event: e.Name(), Data: e})
}

package models

import (
	"time"
)

// Message type discriminator values
const (
	MessageTypeText = "text"
	MessageTypeFile = "file"
)

// Message represents a direct message between two users. DeliveredAt and
// SeenAt are nil until the corresponding status transition happens; each is
// set at most once.
type Message struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	SenderID    uint       `json:"sender_id" gorm:"index:idx_messages_pair"`
	ReceiverID  uint       `json:"receiver_id" gorm:"index:idx_messages_pair"`
	Content     string     `json:"content"`
	MessageType string     `json:"message_type" gorm:"default:text"`
	FileURL     string     `json:"file_url,omitempty"`
	FileName    string     `json:"file_name,omitempty"`
	FileSize    int64      `json:"file_size,omitempty"`
	Edited      bool       `json:"edited"`
	CreatedAt   time.Time  `json:"created_at"`
	DeliveredAt *time.Time `json:"delivered_at"`
	SeenAt      *time.Time `json:"seen_at"`

	Sender *User `json:"sender,omitempty" gorm:"foreignKey:SenderID"`
}

// Attachment is a reference to an already-uploaded file. The blob itself
// lives in external storage; only this metadata is persisted on the message.
type Attachment struct {
	URL          string `json:"url"`
	OriginalName string `json:"original_name"`
	SizeBytes    int64  `json:"size_bytes"`
}

// IsParticipant reports whether userID is the sender or the receiver.
func (m *Message) IsParticipant(userID uint) bool {
	return userID == m.SenderID || userID == m.ReceiverID
}

// OtherParticipant returns the participant that is not userID.
func (m *Message) OtherParticipant(userID uint) uint {
	if userID == m.SenderID {
		return m.ReceiverID
	}
	return m.SenderID
}

package service

import (
	"errors"
	"time"

	"whatsapp-clone-demo/backend/internal/events"
	"whatsapp-clone-demo/backend/internal/models"
	"whatsapp-clone-demo/backend/internal/repository"
	apperrors "whatsapp-clone-demo/backend/pkg/errors"
	"whatsapp-clone-demo/backend/shared/observability"

	"gorm.io/gorm"
)

// Broadcaster publishes an event to one participant's private channel.
// Publishes are best-effort and must never block the caller; the store, not
// the event stream, is the source of truth.
type Broadcaster interface {
	Publish(userID uint, event events.Event)
}

// Options bounds message payloads.
type Options struct {
	MaxContentLength  int
	MaxAttachmentSize int64
}

func DefaultOptions() Options {
	return Options{
		MaxContentLength:  1000,
		MaxAttachmentSize: 20 << 20,
	}
}

// MessageService orchestrates the message delivery pipeline: persisting
// messages, applying the created -> delivered -> seen state machine, and
// fanning out events to the other participant.
type MessageService struct {
	repo        repository.MessageRepository
	broadcaster Broadcaster
	opts        Options
}

func NewMessageService(repo repository.MessageRepository, broadcaster Broadcaster, opts Options) *MessageService {
	if opts.MaxContentLength == 0 {
		opts.MaxContentLength = DefaultOptions().MaxContentLength
	}
	if opts.MaxAttachmentSize == 0 {
		opts.MaxAttachmentSize = DefaultOptions().MaxAttachmentSize
	}
	return &MessageService{repo: repo, broadcaster: broadcaster, opts: opts}
}

// SendInput is a request to create a message. Content and Attachment are
// optional individually but at least one must be present.
type SendInput struct {
	SenderID   uint
	ReceiverID uint
	Content    string
	Attachment *models.Attachment
}

// Send validates, persists and fans out a new message. The receiver gets a
// message.new event with the full body; the sender's channel stays silent.
func (s *MessageService) Send(in SendInput) (*models.Message, error) {
	if in.SenderID == 0 || in.ReceiverID == 0 {
		return nil, apperrors.NewValidationError("sender and receiver are required")
	}
	if in.SenderID == in.ReceiverID {
		return nil, apperrors.NewValidationError("cannot send a message to yourself")
	}
	if in.Content == "" && in.Attachment == nil {
		return nil, apperrors.NewValidationError("message requires content or an attachment")
	}
	if len(in.Content) > s.opts.MaxContentLength {
		return nil, apperrors.NewValidationError("content exceeds maximum length")
	}

	message := &models.Message{
		SenderID:    in.SenderID,
		ReceiverID:  in.ReceiverID,
		Content:     in.Content,
		MessageType: models.MessageTypeText,
	}

	if in.Attachment != nil {
		if in.Attachment.URL == "" {
			return nil, apperrors.NewValidationError("attachment requires a url")
		}
		if in.Attachment.SizeBytes > s.opts.MaxAttachmentSize {
			return nil, apperrors.NewValidationError("attachment exceeds maximum size")
		}
		message.MessageType = models.MessageTypeFile
		message.FileURL = in.Attachment.URL
		message.FileName = in.Attachment.OriginalName
		message.FileSize = in.Attachment.SizeBytes
	}

	if err := s.repo.Create(message); err != nil {
		return nil, apperrors.FromError(err)
	}

	observability.MessagesSent.Inc()
	s.broadcaster.Publish(message.ReceiverID, events.MessageNew{Message: message})
	return message, nil
}

// Get returns a single message by id.
func (s *MessageService) Get(id uint) (*models.Message, error) {
	message, err := s.repo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("message not found")
		}
		return nil, apperrors.FromError(err)
	}
	return message, nil
}

// Conversation returns all messages between userA and userB ordered by
// creation time. The requester must be one of the two participants.
func (s *MessageService) Conversation(requesterID, userA, userB uint) ([]models.Message, error) {
	if requesterID != userA && requesterID != userB {
		return nil, apperrors.NewUnauthorizedError("not a participant in this conversation")
	}
	messages, err := s.repo.Conversation(userA, userB)
	if err != nil {
		return nil, apperrors.FromError(err)
	}
	return messages, nil
}

// ConversationPage is the paginated variant of Conversation.
func (s *MessageService) ConversationPage(requesterID, userA, userB uint, limit, offset int) ([]models.Message, error) {
	if requesterID != userA && requesterID != userB {
		return nil, apperrors.NewUnauthorizedError("not a participant in this conversation")
	}
	messages, err := s.repo.ConversationPage(userA, userB, limit, offset)
	if err != nil {
		return nil, apperrors.FromError(err)
	}
	return messages, nil
}

// MarkDelivered records the receiver's delivery acknowledgement. The update
// is conditional on delivered_at still being null, so a redundant ack is a
// no-op: no timestamp change and no second broadcast.
func (s *MessageService) MarkDelivered(messageID uint) (*models.Message, error) {
	message, err := s.Get(messageID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	changed, err := s.repo.MarkDelivered(messageID, now)
	if err != nil {
		return nil, apperrors.FromError(err)
	}
	if !changed {
		return message, nil
	}

	message.DeliveredAt = &now
	observability.MessagesDelivered.Inc()
	s.broadcaster.Publish(message.SenderID, events.MessageDelivered{
		MessageID:   message.ID,
		DeliveredAt: now,
	})
	return message, nil
}

// MarkSeen transitions every unseen message from senderID to receiverID in
// one step and emits one message.seen event per transitioned message to the
// sender. Messages never delivered get delivered_at backfilled to the seen
// timestamp, preserving delivered <= seen. A second call for the same pair
// observes an empty set.
func (s *MessageService) MarkSeen(receiverID, senderID uint) ([]models.Message, error) {
	now := time.Now().UTC()
	transitioned, err := s.repo.MarkSeen(receiverID, senderID, now)
	if err != nil {
		return nil, apperrors.FromError(err)
	}

	for i := range transitioned {
		m := &transitioned[i]
		observability.MessagesSeen.Inc()
		s.broadcaster.Publish(m.SenderID, events.MessageSeen{
			MessageID: m.ID,
			SeenAt:    *m.SeenAt,
		})
	}
	return transitioned, nil
}

// EditContent revises a message's content. Only the sender may edit, and
// delivery status is untouched: edit is orthogonal to delivered/seen.
func (s *MessageService) EditContent(id, editorID uint, content string) (*models.Message, error) {
	if content == "" {
		return nil, apperrors.NewValidationError("content is required")
	}
	if len(content) > s.opts.MaxContentLength {
		return nil, apperrors.NewValidationError("content exceeds maximum length")
	}

	message, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if message.SenderID != editorID {
		return nil, apperrors.NewUnauthorizedError("only the sender can edit a message")
	}

	if err := s.repo.UpdateContent(id, content); err != nil {
		return nil, apperrors.FromError(err)
	}
	message.Content = content
	message.Edited = true

	s.broadcaster.Publish(message.ReceiverID, events.MessageUpdated{
		MessageID: message.ID,
		Content:   content,
		Edited:    true,
	})
	return message, nil
}

// Delete removes a message. Either participant may delete; the other one is
// notified so their view drops the entry without a re-fetch.
func (s *MessageService) Delete(id, requesterID uint) error {
	message, err := s.Get(id)
	if err != nil {
		return err
	}
	if !message.IsParticipant(requesterID) {
		return apperrors.NewUnauthorizedError("only a participant can delete a message")
	}

	if err := s.repo.Delete(id); err != nil {
		return apperrors.FromError(err)
	}

	s.broadcaster.Publish(message.OtherParticipant(requesterID), events.MessageDeleted{
		MessageID: message.ID,
	})
	return nil
}

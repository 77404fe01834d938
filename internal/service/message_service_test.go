package service

import (
	"sort"
	"sync"
	"testing"
	"time"

	"whatsapp-clone-demo/backend/internal/events"
	"whatsapp-clone-demo/backend/internal/models"
	apperrors "whatsapp-clone-demo/backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeRepo is an in-memory MessageRepository with the same conditional
// update semantics as the gorm implementation.
type fakeRepo struct {
	mu       sync.Mutex
	nextID   uint
	messages map[uint]*models.Message
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{nextID: 1, messages: make(map[uint]*models.Message)}
}

func (r *fakeRepo) Create(message *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	message.ID = r.nextID
	r.nextID++
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	stored := *message
	r.messages[message.ID] = &stored
	return nil
}

func (r *fakeRepo) GetByID(id uint) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	message, ok := r.messages[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *message
	return &copied, nil
}

func (r *fakeRepo) Conversation(userA, userB uint) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Message
	for _, m := range r.messages {
		if (m.SenderID == userA && m.ReceiverID == userB) ||
			(m.SenderID == userB && m.ReceiverID == userA) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *fakeRepo) ConversationPage(userA, userB uint, limit, offset int) ([]models.Message, error) {
	all, err := r.Conversation(userA, userB)
	if err != nil {
		return nil, err
	}
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (r *fakeRepo) UpdateContent(id uint, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.messages[id]; ok {
		m.Content = content
		m.Edited = true
	}
	return nil
}

func (r *fakeRepo) Delete(id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.messages, id)
	return nil
}

func (r *fakeRepo) MarkDelivered(id uint, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok || m.DeliveredAt != nil {
		return false, nil
	}
	delivered := at
	m.DeliveredAt = &delivered
	return true, nil
}

func (r *fakeRepo) MarkSeen(receiverID, senderID uint, at time.Time) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var transitioned []models.Message
	for _, m := range r.messages {
		if m.ReceiverID == receiverID && m.SenderID == senderID && m.SeenAt == nil {
			seen := at
			m.SeenAt = &seen
			if m.DeliveredAt == nil {
				delivered := at
				m.DeliveredAt = &delivered
			}
			transitioned = append(transitioned, *m)
		}
	}
	sort.Slice(transitioned, func(i, j int) bool { return transitioned[i].ID < transitioned[j].ID })
	return transitioned, nil
}

type recordedEvent struct {
	userID uint
	event  events.Event
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (b *fakeBroadcaster) Publish(userID uint, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{userID: userID, event: event})
}

func (b *fakeBroadcaster) eventsFor(userID uint) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Event
	for _, e := range b.events {
		if e.userID == userID {
			out = append(out, e.event)
		}
	}
	return out
}

func (b *fakeBroadcaster) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}

func newTestService() (*MessageService, *fakeRepo, *fakeBroadcaster) {
	repo := newFakeRepo()
	broadcaster := &fakeBroadcaster{}
	return NewMessageService(repo, broadcaster, DefaultOptions()), repo, broadcaster
}

const (
	alice = uint(1)
	bob   = uint(2)
	carol = uint(3)
)

func TestSendRequiresContentOrAttachment(t *testing.T) {
	svc, _, broadcaster := newTestService()

	_, err := svc.Send(SendInput{SenderID: alice, ReceiverID: bob})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
	assert.Empty(t, broadcaster.events, "rejected send must not broadcast")
}

func TestSendBroadcastsToReceiverOnly(t *testing.T) {
	svc, _, broadcaster := newTestService()

	message, err := svc.Send(SendInput{SenderID: alice, ReceiverID: bob, Content: "hi"})
	require.NoError(t, err)
	assert.Nil(t, message.DeliveredAt)
	assert.Nil(t, message.SeenAt)

	assert.Empty(t, broadcaster.eventsFor(alice), "sender's own channel must stay silent")

	received := broadcaster.eventsFor(bob)
	require.Len(t, received, 1)
	newEvent, ok := received[0].(events.MessageNew)
	require.True(t, ok)
	assert.Equal(t, "hi", newEvent.Message.Content)
	assert.Nil(t, newEvent.Message.DeliveredAt)
}

func TestSendWithAttachment(t *testing.T) {
	svc, _, _ := newTestService()

	message, err := svc.Send(SendInput{
		SenderID:   alice,
		ReceiverID: bob,
		Attachment: &models.Attachment{URL: "/storage/chat_files/report.pdf", OriginalName: "report.pdf", SizeBytes: 1024},
	})
	require.NoError(t, err)
	assert.Equal(t, models.MessageTypeFile, message.MessageType)
	assert.Equal(t, "/storage/chat_files/report.pdf", message.FileURL)
	assert.Equal(t, "report.pdf", message.FileName)
}

func TestSendRejectsOversizedAttachment(t *testing.T) {
	svc, _, broadcaster := newTestService()

	_, err := svc.Send(SendInput{
		SenderID:   alice,
		ReceiverID: bob,
		Attachment: &models.Attachment{URL: "/storage/big.bin", SizeBytes: 21 << 20},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
	assert.Empty(t, broadcaster.events)
}

func TestSendRejectsSelfMessage(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Send(SendInput{SenderID: alice, ReceiverID: alice, Content: "me"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
}

func TestMarkDeliveredIdempotent(t *testing.T) {
	svc, _, broadcaster := newTestService()

	message, err := svc.Send(SendInput{SenderID: alice, ReceiverID: bob, Content: "hi"})
	require.NoError(t, err)
	broadcaster.reset()

	first, err := svc.MarkDelivered(message.ID)
	require.NoError(t, err)
	require.NotNil(t, first.DeliveredAt)
	firstAt := *first.DeliveredAt

	second, err := svc.MarkDelivered(message.ID)
	require.NoError(t, err)
	require.NotNil(t, second.DeliveredAt)
	assert.Equal(t, firstAt, *second.DeliveredAt, "timestamp must not move on redundant ack")

	senderEvents := broadcaster.eventsFor(alice)
	require.Len(t, senderEvents, 1, "only the transition broadcasts")
	delivered, ok := senderEvents[0].(events.MessageDelivered)
	require.True(t, ok)
	assert.Equal(t, message.ID, delivered.MessageID)
}

func TestMarkDeliveredNotFound(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.MarkDelivered(99)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestMarkSeenBackfillsDelivered(t *testing.T) {
	svc, _, broadcaster := newTestService()

	message, err := svc.Send(SendInput{SenderID: alice, ReceiverID: bob, Content: "hi"})
	require.NoError(t, err)
	broadcaster.reset()

	// Seen without a prior delivered ack
	transitioned, err := svc.MarkSeen(bob, alice)
	require.NoError(t, err)
	require.Len(t, transitioned, 1)

	m := transitioned[0]
	require.NotNil(t, m.SeenAt)
	require.NotNil(t, m.DeliveredAt, "seen implies delivered")
	assert.Equal(t, *m.SeenAt, *m.DeliveredAt)
	assert.Equal(t, message.ID, m.ID)
}

func TestMarkSeenSecondRunIsEmpty(t *testing.T) {
	svc, _, broadcaster := newTestService()

	_, err := svc.Send(SendInput{SenderID: alice, ReceiverID: bob, Content: "hi"})
	require.NoError(t, err)

	first, err := svc.MarkSeen(bob, alice)
	require.NoError(t, err)
	assert.Len(t, first, 1)
	broadcaster.reset()

	second, err := svc.MarkSeen(bob, alice)
	require.NoError(t, err)
	assert.Empty(t, second, "second run transitions nothing")
	assert.Empty(t, broadcaster.events, "second run broadcasts nothing")
}

func TestMarkSeenBulk(t *testing.T) {
	svc, _, broadcaster := newTestService()

	// Two messages in quick succession, no delivered ack in between
	_, err := svc.Send(SendInput{SenderID: alice, ReceiverID: bob, Content: "one"})
	require.NoError(t, err)
	_, err = svc.Send(SendInput{SenderID: alice, ReceiverID: bob, Content: "two"})
	require.NoError(t, err)
	broadcaster.reset()

	transitioned, err := svc.MarkSeen(bob, alice)
	require.NoError(t, err)
	require.Len(t, transitioned, 2)

	for _, m := range transitioned {
		require.NotNil(t, m.SeenAt)
		require.NotNil(t, m.DeliveredAt)
		assert.Equal(t, *m.SeenAt, *m.DeliveredAt)
	}
	assert.Equal(t, *transitioned[0].SeenAt, *transitioned[1].SeenAt, "bulk transition shares one timestamp")

	senderEvents := broadcaster.eventsFor(alice)
	assert.Len(t, senderEvents, 2, "one seen event per transitioned message")
	assert.Empty(t, broadcaster.eventsFor(bob))
}

func TestMarkSeenOnlyAffectsPair(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Send(SendInput{SenderID: alice, ReceiverID: bob, Content: "for bob"})
	require.NoError(t, err)
	_, err = svc.Send(SendInput{SenderID: carol, ReceiverID: bob, Content: "from carol"})
	require.NoError(t, err)

	transitioned, err := svc.MarkSeen(bob, alice)
	require.NoError(t, err)
	require.Len(t, transitioned, 1)
	assert.Equal(t, alice, transitioned[0].SenderID)
}

func TestConversationOrdering(t *testing.T) {
	svc, repo, _ := newTestService()

	base := time.Now().UTC()
	// Insert out of chronological order
	for _, m := range []*models.Message{
		{SenderID: alice, ReceiverID: bob, Content: "second", CreatedAt: base.Add(2 * time.Second)},
		{SenderID: bob, ReceiverID: alice, Content: "first", CreatedAt: base.Add(1 * time.Second)},
		{SenderID: alice, ReceiverID: bob, Content: "third", CreatedAt: base.Add(3 * time.Second)},
	} {
		require.NoError(t, repo.Create(m))
	}

	messages, err := svc.Conversation(alice, alice, bob)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "first", messages[0].Content)
	assert.Equal(t, "second", messages[1].Content)
	assert.Equal(t, "third", messages[2].Content)
}

func TestConversationTieBreakOnID(t *testing.T) {
	svc, repo, _ := newTestService()

	at := time.Now().UTC()
	require.NoError(t, repo.Create(&models.Message{SenderID: alice, ReceiverID: bob, Content: "a", CreatedAt: at}))
	require.NoError(t, repo.Create(&models.Message{SenderID: bob, ReceiverID: alice, Content: "b", CreatedAt: at}))

	messages, err := svc.Conversation(bob, alice, bob)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Less(t, messages[0].ID, messages[1].ID)
}

func TestConversationRequiresParticipant(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Conversation(carol, alice, bob)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUnauthorized))
}

func TestEditByNonSenderFails(t *testing.T) {
	svc, repo, broadcaster := newTestService()

	message, err := svc.Send(SendInput{SenderID: alice, ReceiverID: bob, Content: "original"})
	require.NoError(t, err)
	broadcaster.reset()

	_, err = svc.EditContent(message.ID, bob, "tampered")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUnauthorized))

	stored, err := repo.GetByID(message.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", stored.Content, "content must be unchanged")
	assert.False(t, stored.Edited)
	assert.Empty(t, broadcaster.events)
}

func TestEditMarksEditedAndNotifiesReceiver(t *testing.T) {
	svc, _, broadcaster := newTestService()

	message, err := svc.Send(SendInput{SenderID: alice, ReceiverID: bob, Content: "original"})
	require.NoError(t, err)
	deliveredBefore := message.DeliveredAt
	broadcaster.reset()

	edited, err := svc.EditContent(message.ID, alice, "revised")
	require.NoError(t, err)
	assert.True(t, edited.Edited)
	assert.Equal(t, "revised", edited.Content)
	assert.Equal(t, deliveredBefore, edited.DeliveredAt, "edit leaves delivery status alone")

	receiverEvents := broadcaster.eventsFor(bob)
	require.Len(t, receiverEvents, 1)
	updated, ok := receiverEvents[0].(events.MessageUpdated)
	require.True(t, ok)
	assert.Equal(t, "revised", updated.Content)
	assert.Empty(t, broadcaster.eventsFor(alice))
}

func TestDeleteByNonParticipantFails(t *testing.T) {
	svc, repo, _ := newTestService()

	message, err := svc.Send(SendInput{SenderID: alice, ReceiverID: bob, Content: "hi"})
	require.NoError(t, err)

	err = svc.Delete(message.ID, carol)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUnauthorized))

	_, err = repo.GetByID(message.ID)
	assert.NoError(t, err, "message must still exist")
}

func TestDeleteNotifiesOtherParticipant(t *testing.T) {
	svc, repo, broadcaster := newTestService()

	message, err := svc.Send(SendInput{SenderID: alice, ReceiverID: bob, Content: "hi"})
	require.NoError(t, err)
	broadcaster.reset()

	// The receiver deletes; the sender gets notified
	require.NoError(t, svc.Delete(message.ID, bob))

	_, err = repo.GetByID(message.ID)
	assert.Error(t, err)

	senderEvents := broadcaster.eventsFor(alice)
	require.Len(t, senderEvents, 1)
	deleted, ok := senderEvents[0].(events.MessageDeleted)
	require.True(t, ok)
	assert.Equal(t, message.ID, deleted.MessageID)
	assert.Empty(t, broadcaster.eventsFor(bob))
}

func TestDeliveryLifecycleScenario(t *testing.T) {
	svc, _, broadcaster := newTestService()

	// A sends "hi" to B
	message, err := svc.Send(SendInput{SenderID: alice, ReceiverID: bob, Content: "hi"})
	require.NoError(t, err)

	bobEvents := broadcaster.eventsFor(bob)
	require.Len(t, bobEvents, 1)
	newEvent := bobEvents[0].(events.MessageNew)
	assert.Equal(t, "hi", newEvent.Message.Content)
	assert.Nil(t, newEvent.Message.DeliveredAt)

	// B's client acknowledges delivery
	_, err = svc.MarkDelivered(message.ID)
	require.NoError(t, err)

	aliceEvents := broadcaster.eventsFor(alice)
	require.Len(t, aliceEvents, 1)
	_, ok := aliceEvents[0].(events.MessageDelivered)
	require.True(t, ok)

	// B opens the conversation
	transitioned, err := svc.MarkSeen(bob, alice)
	require.NoError(t, err)
	require.Len(t, transitioned, 1)
	require.NotNil(t, transitioned[0].SeenAt)
	require.NotNil(t, transitioned[0].DeliveredAt)
	assert.True(t, !transitioned[0].SeenAt.Before(*transitioned[0].DeliveredAt))

	aliceEvents = broadcaster.eventsFor(alice)
	require.Len(t, aliceEvents, 2)
	seen, ok := aliceEvents[1].(events.MessageSeen)
	require.True(t, ok)
	assert.Equal(t, message.ID, seen.MessageID)
}

func TestConcurrentMarkSeenSingleBroadcastSet(t *testing.T) {
	svc, _, broadcaster := newTestService()

	for i := 0; i < 5; i++ {
		_, err := svc.Send(SendInput{SenderID: alice, ReceiverID: bob, Content: "msg"})
		require.NoError(t, err)
	}
	broadcaster.reset()

	var wg sync.WaitGroup
	results := make([][]models.Message, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			transitioned, err := svc.MarkSeen(bob, alice)
			assert.NoError(t, err)
			results[i] = transitioned
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, len(results[0])+len(results[1]), "each message transitions exactly once")
	assert.Len(t, broadcaster.eventsFor(alice), 5, "no double broadcast")
}

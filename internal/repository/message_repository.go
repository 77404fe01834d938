package repository

import (
	"time"

	"whatsapp-clone-demo/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepository is the durable message store. Status transitions are
// conditional updates so that concurrent callers cannot overwrite an
// already-set timestamp.
type MessageRepository interface {
	Create(message *models.Message) error
	GetByID(id uint) (*models.Message, error)
	Conversation(userA, userB uint) ([]models.Message, error)
	ConversationPage(userA, userB uint, limit, offset int) ([]models.Message, error)
	UpdateContent(id uint, content string) error
	Delete(id uint) error
	// MarkDelivered sets delivered_at only if it is still null and reports
	// whether this call made the transition.
	MarkDelivered(id uint, at time.Time) (bool, error)
	// MarkSeen transitions every unseen message from senderID to receiverID
	// in one step, backfilling delivered_at where still null, and returns
	// the transitioned messages.
	MarkSeen(receiverID, senderID uint, at time.Time) ([]models.Message, error)
}

type GormMessageRepository struct {
	db *gorm.DB
}

func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

func (r *GormMessageRepository) Create(message *models.Message) error {
	return r.db.Create(message).Error
}

func (r *GormMessageRepository) GetByID(id uint) (*models.Message, error) {
	var message models.Message
	err := r.db.First(&message, id).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// senderFields limits the preloaded participant info to what the client
// renders next to a message.
func senderFields(db *gorm.DB) *gorm.DB {
	return db.Select("id", "name", "email", "profile_picture")
}

func (r *GormMessageRepository) Conversation(userA, userB uint) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			userA, userB, userB, userA).
		Order("created_at ASC, id ASC").
		Preload("Sender", senderFields).
		Find(&messages).Error
	return messages, err
}

func (r *GormMessageRepository) ConversationPage(userA, userB uint, limit, offset int) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			userA, userB, userB, userA).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Offset(offset).
		Preload("Sender", senderFields).
		Find(&messages).Error
	return messages, err
}

func (r *GormMessageRepository) UpdateContent(id uint, content string) error {
	return r.db.Model(&models.Message{}).
		Where("id = ?", id).
		Updates(map[string]any{"content": content, "edited": true}).Error
}

func (r *GormMessageRepository) Delete(id uint) error {
	return r.db.Delete(&models.Message{}, id).Error
}

func (r *GormMessageRepository) MarkDelivered(id uint, at time.Time) (bool, error) {
	res := r.db.Model(&models.Message{}).
		Where("id = ? AND delivered_at IS NULL", id).
		Update("delivered_at", at)
	return res.RowsAffected == 1, res.Error
}

func (r *GormMessageRepository) MarkSeen(receiverID, senderID uint, at time.Time) ([]models.Message, error) {
	var transitioned []models.Message
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var pending []models.Message
		// Lock the qualifying rows so a concurrent MarkSeen for the same
		// pair observes an empty set instead of transitioning twice.
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("receiver_id = ? AND sender_id = ? AND seen_at IS NULL", receiverID, senderID).
			Find(&pending).Error; err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}

		ids := make([]uint, len(pending))
		for i, m := range pending {
			ids[i] = m.ID
		}
		if err := tx.Model(&models.Message{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"seen_at":      at,
				"delivered_at": gorm.Expr("COALESCE(delivered_at, ?)", at),
			}).Error; err != nil {
			return err
		}

		for i := range pending {
			seen := at
			pending[i].SeenAt = &seen
			if pending[i].DeliveredAt == nil {
				delivered := at
				pending[i].DeliveredAt = &delivered
			}
		}
		transitioned = pending
		return nil
	})
	return transitioned, err
}

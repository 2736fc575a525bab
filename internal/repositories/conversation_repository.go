package repositories

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/anonto42/shelfstream/internal/models"
)

// ConversationRepository reads conversation membership
type ConversationRepository interface {
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
}

// PostgresConversationRepository implements ConversationRepository
type PostgresConversationRepository struct {
	db *gorm.DB
}

func NewPostgresConversationRepository(db *gorm.DB) *PostgresConversationRepository {
	return &PostgresConversationRepository{db: db}
}

// IsParticipant reports whether userID belongs to the conversation
func (r *PostgresConversationRepository) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&n).Error
	if err != nil {
		return false, errors.Wrap(err, "failed to look up conversation participant")
	}
	return n > 0, nil
}

package repositories

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/anonto42/shelfstream/internal/models"
)

// ReactionRepository defines the interface for reaction data operations
type ReactionRepository interface {
	// Toggle adds the user's emoji on the target, or removes it when present
	Toggle(ctx context.Context, userID string, target models.ReactionTarget, targetID, emoji string) (added bool, err error)
	// Aggregate counts every emoji on the target; UserReacted is relative to viewerID
	Aggregate(ctx context.Context, target models.ReactionTarget, targetID, viewerID string) ([]models.Reaction, error)
	// ViewerReactions returns the rows userID left on any of targetIDs
	ViewerReactions(ctx context.Context, userID string, targetIDs []string) ([]models.ReactionRow, error)
}

// PostgresReactionRepository implements ReactionRepository for PostgreSQL
type PostgresReactionRepository struct {
	db *gorm.DB
}

// NewPostgresReactionRepository creates a new PostgresReactionRepository
func NewPostgresReactionRepository(db *gorm.DB) *PostgresReactionRepository {
	return &PostgresReactionRepository{db: db}
}

// Toggle flips one user's reaction inside a transaction so a double submit
// cannot leave two rows.
func (r *PostgresReactionRepository) Toggle(ctx context.Context, userID string, target models.ReactionTarget, targetID, emoji string) (bool, error) {
	added := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND target_id = ? AND target_type = ? AND emoji = ?", userID, targetID, target, emoji).
			Delete(&models.ReactionRow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		added = true
		return tx.Create(&models.ReactionRow{
			UserID:     userID,
			TargetID:   targetID,
			TargetType: target,
			Emoji:      emoji,
		}).Error
	})
	if err != nil {
		return false, errors.Wrap(err, "failed to toggle reaction")
	}
	return added, nil
}

type reactionAggregate struct {
	Emoji       string
	Count       int
	UserReacted int
}

// Aggregate groups the target's reactions by emoji in order of first use
func (r *PostgresReactionRepository) Aggregate(ctx context.Context, target models.ReactionTarget, targetID, viewerID string) ([]models.Reaction, error) {
	var rows []reactionAggregate
	err := r.db.WithContext(ctx).Model(&models.ReactionRow{}).
		Select("emoji, COUNT(*) AS count, MAX(CASE WHEN user_id = ? THEN 1 ELSE 0 END) AS user_reacted", viewerID).
		Where("target_id = ? AND target_type = ?", targetID, target).
		Group("emoji").
		Order("MIN(id)").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to aggregate reactions")
	}
	return toReactions(rows), nil
}

func (r *PostgresReactionRepository) ViewerReactions(ctx context.Context, userID string, targetIDs []string) ([]models.ReactionRow, error) {
	if userID == "" || len(targetIDs) == 0 {
		return nil, nil
	}
	var rows []models.ReactionRow
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND target_id IN ?", userID, targetIDs).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to load viewer reactions")
	}
	return rows, nil
}

func toReactions(rows []reactionAggregate) []models.Reaction {
	out := make([]models.Reaction, 0, len(rows))
	for _, row := range rows {
		if row.Count <= 0 {
			continue
		}
		out = append(out, models.Reaction{
			Emoji:       row.Emoji,
			Count:       row.Count,
			UserReacted: row.UserReacted > 0,
		})
	}
	return out
}

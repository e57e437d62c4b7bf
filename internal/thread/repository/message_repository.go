package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"gomodmail/internal/dbmysql"
)

// MessageRepository is the append-only transcript store.
type MessageRepository interface {
	Append(ctx context.Context, msg *dbmysql.ThreadMessage) error
	ListByThread(ctx context.Context, threadID string, limit, offset int) ([]*dbmysql.ThreadMessage, error)
	UpdateChatMessage(ctx context.Context, threadID, dmMessageID, body, threadMessageID string) error
}

type messageRepo struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepo{db: db}
}

func (r *messageRepo) Append(ctx context.Context, msg *dbmysql.ThreadMessage) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("failed to append thread message: %w", err)
	}
	return nil
}

// ListByThread returns the transcript ordered by (created_at, id).
func (r *messageRepo) ListByThread(ctx context.Context, threadID string, limit, offset int) ([]*dbmysql.ThreadMessage, error) {
	var messages []*dbmysql.ThreadMessage

	query := r.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at ASC").
		Order("id ASC")

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to list thread messages: %w", err)
	}
	return messages, nil
}

// UpdateChatMessage corrects a chat row after its relay channel message was edited.
// Rows of any other type are never touched.
func (r *messageRepo) UpdateChatMessage(ctx context.Context, threadID, dmMessageID, body, threadMessageID string) error {
	result := r.db.WithContext(ctx).
		Model(&dbmysql.ThreadMessage{}).
		Where("thread_id = ? AND dm_message_id = ? AND message_type = ?", threadID, dmMessageID, dbmysql.MessageChat).
		Updates(map[string]interface{}{
			"body":              body,
			"thread_message_id": threadMessageID,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update chat message: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("chat message %s in thread %s: %w", dmMessageID, threadID, ErrNotFound)
	}
	return nil
}

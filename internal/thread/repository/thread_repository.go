package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"gomodmail/internal/dbmysql"
)

var ErrNotFound = errors.New("record not found")

// ScheduledClose is the actor and time of a pending close.
type ScheduledClose struct {
	At            time.Time
	ActorID       string
	ActorName     string
	Discriminator string
	Silent        bool
}

// CloseStamp records who closed a thread and when.
type CloseStamp struct {
	At        time.Time
	ActorID   string
	ActorName string
}

type ThreadRepository interface {
	Create(ctx context.Context, thread *dbmysql.Thread) error
	ByID(ctx context.Context, id string) (*dbmysql.Thread, error)
	ByChannelID(ctx context.Context, channelID string) (*dbmysql.Thread, error)
	ActiveByUserID(ctx context.Context, userID string) (*dbmysql.Thread, error)
	DueForClose(ctx context.Context, before time.Time) ([]*dbmysql.Thread, error)

	SetStatus(ctx context.Context, id string, status dbmysql.ThreadStatus) error
	SetScheduledClose(ctx context.Context, id string, sc ScheduledClose) error
	ClearScheduledClose(ctx context.Context, id string) error
	SetAlertUsers(ctx context.Context, id string, users datatypes.JSON) error
	SetRoleOverrides(ctx context.Context, id string, overrides datatypes.JSON) error
	MarkClosed(ctx context.Context, id string, stamp CloseStamp) error
}

type threadRepo struct {
	db *gorm.DB
}

func NewThreadRepository(db *gorm.DB) ThreadRepository {
	return &threadRepo{db: db}
}

func (r *threadRepo) Create(ctx context.Context, thread *dbmysql.Thread) error {
	if err := r.db.WithContext(ctx).Create(thread).Error; err != nil {
		return fmt.Errorf("failed to create thread: %w", err)
	}
	return nil
}

func (r *threadRepo) ByID(ctx context.Context, id string) (*dbmysql.Thread, error) {
	return r.first(ctx, "thread "+id, r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *threadRepo) ByChannelID(ctx context.Context, channelID string) (*dbmysql.Thread, error) {
	return r.first(ctx, "thread for channel "+channelID,
		r.db.WithContext(ctx).Where("channel_id = ?", channelID).Order("created_at DESC"))
}

// ActiveByUserID returns the user's open or suspended thread.
func (r *threadRepo) ActiveByUserID(ctx context.Context, userID string) (*dbmysql.Thread, error) {
	return r.first(ctx, "active thread for user "+userID,
		r.db.WithContext(ctx).
			Where("user_id = ? AND status IN ?", userID, []dbmysql.ThreadStatus{dbmysql.ThreadOpen, dbmysql.ThreadSuspended}).
			Order("created_at DESC"))
}

func (r *threadRepo) first(ctx context.Context, what string, query *gorm.DB) (*dbmysql.Thread, error) {
	var thread dbmysql.Thread
	if err := query.First(&thread).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%s: %w", what, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get %s: %w", what, err)
	}
	return &thread, nil
}

// DueForClose lists open threads whose scheduled close is at or before the given time.
func (r *threadRepo) DueForClose(ctx context.Context, before time.Time) ([]*dbmysql.Thread, error) {
	var threads []*dbmysql.Thread
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_close_at IS NOT NULL AND scheduled_close_at <= ?", dbmysql.ThreadOpen, before).
		Order("scheduled_close_at ASC").
		Find(&threads).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get threads due for close: %w", err)
	}
	return threads, nil
}

func (r *threadRepo) SetStatus(ctx context.Context, id string, status dbmysql.ThreadStatus) error {
	return r.update(ctx, id, map[string]interface{}{
		"status": status,
		"closed": status == dbmysql.ThreadClosed,
	})
}

func (r *threadRepo) SetScheduledClose(ctx context.Context, id string, sc ScheduledClose) error {
	return r.update(ctx, id, map[string]interface{}{
		"scheduled_close_at":            sc.At,
		"scheduled_close_id":            sc.ActorID,
		"scheduled_close_name":          sc.ActorName,
		"scheduled_close_discriminator": sc.Discriminator,
		"scheduled_close_silent":        sc.Silent,
	})
}

func (r *threadRepo) ClearScheduledClose(ctx context.Context, id string) error {
	return r.update(ctx, id, clearedSchedule())
}

func (r *threadRepo) SetAlertUsers(ctx context.Context, id string, users datatypes.JSON) error {
	return r.update(ctx, id, map[string]interface{}{"alert_users": users})
}

func (r *threadRepo) SetRoleOverrides(ctx context.Context, id string, overrides datatypes.JSON) error {
	return r.update(ctx, id, map[string]interface{}{"staff_role_overrides": overrides})
}

// MarkClosed sets the terminal status and drops alert, override and schedule state in one update.
func (r *threadRepo) MarkClosed(ctx context.Context, id string, stamp CloseStamp) error {
	fields := clearedSchedule()
	fields["status"] = dbmysql.ThreadClosed
	fields["closed"] = true
	fields["closed_at"] = stamp.At
	fields["closed_by_id"] = stamp.ActorID
	fields["closed_by_name"] = stamp.ActorName
	fields["alert_users"] = datatypes.JSON(nil)
	fields["staff_role_overrides"] = datatypes.JSON(nil)
	return r.update(ctx, id, fields)
}

func clearedSchedule() map[string]interface{} {
	return map[string]interface{}{
		"scheduled_close_at":            nil,
		"scheduled_close_id":            nil,
		"scheduled_close_name":          nil,
		"scheduled_close_discriminator": nil,
		"scheduled_close_silent":        false,
	}
}

func (r *threadRepo) update(ctx context.Context, id string, fields map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&dbmysql.Thread{}).
		Where("id = ?", id).
		Updates(fields)

	if result.Error != nil {
		return fmt.Errorf("failed to update thread %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("thread %s: %w", id, ErrNotFound)
	}
	return nil
}

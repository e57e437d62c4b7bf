package dbmysql

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

type ThreadStatus string

const (
	ThreadOpen      ThreadStatus = "open"
	ThreadClosed    ThreadStatus = "closed"
	ThreadSuspended ThreadStatus = "suspended"
)

// Thread is one relay session between a remote user and a staff channel.
// The scheduled close columns are either all NULL or all set.
type Thread struct {
	ID        string       `gorm:"primaryKey;size:36" json:"id"`
	ChannelID string       `gorm:"column:channel_id;size:32;index" json:"channel_id"`
	UserID    string       `gorm:"column:user_id;size:32;index" json:"user_id"`
	UserName  string       `gorm:"column:user_name;size:128" json:"user_name"`
	Status    ThreadStatus `gorm:"column:status;size:16;not null;index" json:"status"`
	Closed    bool         `gorm:"column:closed;not null" json:"closed"`

	ScheduledCloseAt            *time.Time `gorm:"column:scheduled_close_at;index" json:"scheduled_close_at,omitempty"`
	ScheduledCloseID            *string    `gorm:"column:scheduled_close_id;size:32" json:"scheduled_close_id,omitempty"`
	ScheduledCloseName          *string    `gorm:"column:scheduled_close_name;size:128" json:"scheduled_close_name,omitempty"`
	ScheduledCloseDiscriminator *string    `gorm:"column:scheduled_close_discriminator;size:8" json:"scheduled_close_discriminator,omitempty"`
	ScheduledCloseSilent        bool       `gorm:"column:scheduled_close_silent;not null" json:"scheduled_close_silent"`

	AlertUsers         datatypes.JSON `gorm:"column:alert_users" json:"alert_users,omitempty"`
	StaffRoleOverrides datatypes.JSON `gorm:"column:staff_role_overrides" json:"staff_role_overrides,omitempty"`

	ClosedAt     *time.Time `gorm:"column:closed_at" json:"closed_at,omitempty"`
	ClosedByID   *string    `gorm:"column:closed_by_id;size:32" json:"closed_by_id,omitempty"`
	ClosedByName *string    `gorm:"column:closed_by_name;size:128" json:"closed_by_name,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Thread) TableName() string {
	return "threads"
}

// SetStatus keeps Closed in step with Status.
func (t *Thread) SetStatus(status ThreadStatus) {
	t.Status = status
	t.Closed = status == ThreadClosed
}

func (t *Thread) IsOpen() bool      { return t.Status == ThreadOpen }
func (t *Thread) IsSuspended() bool { return t.Status == ThreadSuspended }
func (t *Thread) IsClosed() bool    { return t.Status == ThreadClosed }

// HasScheduledClose is only meaningful while the thread is open.
func (t *Thread) HasScheduledClose() bool {
	return t.IsOpen() && t.ScheduledCloseAt != nil
}

func (t *Thread) AlertUserIDs() ([]string, error) {
	var ids []string
	if len(t.AlertUsers) == 0 {
		return ids, nil
	}
	if err := json.Unmarshal(t.AlertUsers, &ids); err != nil {
		return nil, fmt.Errorf("invalid alert_users for thread %s: %w", t.ID, err)
	}
	return ids, nil
}

func (t *Thread) RoleOverrides() (map[string]string, error) {
	overrides := map[string]string{}
	if len(t.StaffRoleOverrides) == 0 {
		return overrides, nil
	}
	if err := json.Unmarshal(t.StaffRoleOverrides, &overrides); err != nil {
		return nil, fmt.Errorf("invalid staff_role_overrides for thread %s: %w", t.ID, err)
	}
	return overrides, nil
}

// EncodeAlertUsers returns nil for an empty set so the column is stored as NULL.
func EncodeAlertUsers(ids []string) (datatypes.JSON, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// EncodeRoleOverrides returns nil for an empty map so the column is stored as NULL.
func EncodeRoleOverrides(overrides map[string]string) (datatypes.JSON, error) {
	if len(overrides) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(overrides)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

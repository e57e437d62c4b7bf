package dbmysql

import "time"

type MessageType string

const (
	MessageFromUser MessageType = "from_user"
	MessageToUser   MessageType = "to_user"
	MessageSystem   MessageType = "system"
	MessageChat     MessageType = "chat"
	MessageCommand  MessageType = "command"
)

// ThreadMessage is one append-only transcript row, ordered by (created_at, id).
type ThreadMessage struct {
	ID              uint64      `gorm:"primaryKey;autoIncrement" json:"id"`
	ThreadID        string      `gorm:"column:thread_id;size:36;not null;index:idx_thread_messages_order,priority:1;index:idx_thread_messages_dm,priority:1" json:"thread_id"`
	MessageType     MessageType `gorm:"column:message_type;size:16;not null" json:"message_type"`
	UserID          string      `gorm:"column:user_id;size:32" json:"user_id"`
	UserName        string      `gorm:"column:user_name;size:160" json:"user_name"`
	Body            string      `gorm:"column:body;type:text" json:"body"`
	IsAnonymous     bool        `gorm:"column:is_anonymous;not null" json:"is_anonymous"`
	DMMessageID     string      `gorm:"column:dm_message_id;size:32;index:idx_thread_messages_dm,priority:2" json:"dm_message_id,omitempty"`
	ThreadMessageID string      `gorm:"column:thread_message_id;size:32" json:"thread_message_id,omitempty"`
	CreatedAt       time.Time   `gorm:"column:created_at;index:idx_thread_messages_order,priority:2" json:"created_at"`
}

func (ThreadMessage) TableName() string {
	return "thread_messages"
}

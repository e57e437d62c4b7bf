// Package events fans thread events out to observers such as the websocket hub.
package events

import (
	"time"

	"gomodmail/internal/dbmysql"
)

type Type string

const (
	ThreadMessageType Type = "thread_message"
	ThreadClosedType  Type = "thread_closed"
)

type Event struct {
	Type          Type                   `json:"type"`
	ThreadID      string                 `json:"thread_id"`
	ThreadMessage *dbmysql.ThreadMessage `json:"thread_message,omitempty"`
	Thread        *dbmysql.Thread        `json:"thread,omitempty"`
	At            time.Time              `json:"at"`
}

type Observer interface {
	Update(event Event) error
	Name() string
}

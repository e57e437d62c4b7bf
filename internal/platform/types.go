// Package platform describes the chat platform the relay engine talks to.
package platform

//go:generate mockgen -destination=mocks/mock_gateway.go -package=mocks gomodmail/internal/platform Gateway

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrChannelNotFound is returned when a channel no longer exists.
	ErrChannelNotFound = errors.New("platform: channel not found")
	// ErrUserUnreachable is returned when a direct message cannot be opened or delivered.
	ErrUserUnreachable = errors.New("platform: user unreachable")
)

type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator,omitempty"`
}

// Tag renders name#discriminator, or just the name for accounts without one.
func (u User) Tag() string {
	if u.Discriminator == "" || u.Discriminator == "0" {
		return u.Username
	}
	return u.Username + "#" + u.Discriminator
}

// Member is a user as seen inside the staff guild.
type Member struct {
	User
	Nickname string   `json:"nickname,omitempty"`
	RoleIDs  []string `json:"role_ids,omitempty"`
}

func (m Member) HasRole(roleID string) bool {
	for _, id := range m.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

type Role struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

type Attachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	URL         string `json:"url"`
	Size        uint64 `json:"size"`
}

type Embed struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
}

type Message struct {
	ID          string       `json:"id"`
	ChannelID   string       `json:"channel_id"`
	Author      User         `json:"author"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Embeds      []Embed      `json:"embeds,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

type File struct {
	Name        string
	ContentType string
	Reader      io.Reader
}

// MessageSend is an outgoing payload.
type MessageSend struct {
	Content string
	Embed   *Embed
	Files   []File
}

// Gateway is the subset of the chat platform the engine depends on.
type Gateway interface {
	OpenDirectChannel(ctx context.Context, userID string) (string, error)
	Send(ctx context.Context, channelID string, msg MessageSend) (*Message, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	CreateChannel(ctx context.Context, name string) (string, error)
	DeleteChannel(ctx context.Context, channelID string) error
	GuildRoles(ctx context.Context) ([]Role, error)
	FetchAttachment(ctx context.Context, att Attachment) (io.ReadCloser, error)
}

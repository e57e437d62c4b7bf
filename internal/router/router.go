// Package router turns platform events into relay engine calls.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"gomodmail/internal/dbmysql"
	"gomodmail/internal/platform"
	"gomodmail/internal/thread/compose"
	"gomodmail/internal/thread/identity"
	"gomodmail/internal/thread/service"
)

// Engine is the part of the relay engine the router drives.
type Engine interface {
	OpenThread(ctx context.Context, user platform.User) (*dbmysql.Thread, bool, error)
	FindByChannelID(ctx context.Context, channelID string) (*dbmysql.Thread, error)

	RelayInbound(ctx context.Context, threadID string, msg platform.Message) (*service.RelayResult, error)
	RelayOutbound(ctx context.Context, threadID string, operator platform.Member, text string, attachments []platform.Attachment, anonymous bool) (*service.RelayResult, error)
	PostSystemNotice(ctx context.Context, threadID string, content compose.SystemContent) (*platform.Message, error)

	SaveChatMessage(ctx context.Context, threadID string, msg platform.Message) error
	SaveCommandMessage(ctx context.Context, threadID string, msg platform.Message) error
	UpdateChatMessage(ctx context.Context, threadID string, msg platform.Message) error

	Close(ctx context.Context, threadID string, closer *platform.User, silent bool) error
	ScheduleClose(ctx context.Context, threadID string, at time.Time, actor platform.User, silent bool) error
	CancelScheduledClose(ctx context.Context, threadID string) error
	Suspend(ctx context.Context, threadID string) error
	Unsuspend(ctx context.Context, threadID string) error

	SetAlert(ctx context.Context, threadID, userID string, enabled bool) error
	SetStaffRoleOverride(ctx context.Context, threadID, operatorID, roleID string) error
	DeleteStaffRoleOverride(ctx context.Context, threadID, operatorID string) error
	GetStaffRoleOverride(ctx context.Context, threadID, operatorID string) (string, bool, error)
}

type Router struct {
	engine Engine
	prefix string
	log    logrus.FieldLogger
	now    func() time.Time
}

func New(engine Engine, prefix string, log logrus.FieldLogger) *Router {
	return &Router{engine: engine, prefix: prefix, log: log, now: time.Now}
}

func (r *Router) OnDirectMessage(ctx context.Context, msg platform.Message) {
	log := r.log.WithField("user_id", msg.Author.ID)

	thread, created, err := r.engine.OpenThread(ctx, msg.Author)
	if err != nil {
		log.WithError(err).Error("Failed to open thread")
		return
	}
	if created {
		notice := fmt.Sprintf("New thread from **%s** (<@%s>).", msg.Author.Tag(), msg.Author.ID)
		if _, err := r.engine.PostSystemNotice(ctx, thread.ID, compose.PlainText(notice)); err != nil {
			log.WithError(err).Warn("Failed to post thread header")
		}
	}

	if _, err := r.engine.RelayInbound(ctx, thread.ID, msg); err != nil && !errors.Is(err, service.ErrRelayChannelGone) {
		log.WithError(err).WithField("thread_id", thread.ID).Error("Failed to relay inbound message")
	}
}

func (r *Router) OnChannelMessage(ctx context.Context, msg platform.Message, author platform.Member) {
	thread, ok := r.threadFor(ctx, msg.ChannelID)
	if !ok {
		return
	}

	name, args, isCommand := r.parse(msg.Content)
	if !isCommand {
		r.saveChat(ctx, thread, msg)
		return
	}

	handler, known := commands[name]
	if !known {
		r.saveChat(ctx, thread, msg)
		return
	}

	if !relaysMessage(name) {
		if err := r.engine.SaveCommandMessage(ctx, thread.ID, msg); err != nil && !errors.Is(err, service.ErrThreadNotOpen) {
			r.log.WithError(err).WithField("thread_id", thread.ID).Warn("Failed to save command message")
		}
	}

	cmd := &command{name: name, args: args, msg: msg, author: author, thread: thread}
	if err := handler(ctx, r, cmd); err != nil {
		r.reportError(ctx, cmd, err)
	}
}

func (r *Router) OnChannelMessageEdit(ctx context.Context, msg platform.Message) {
	thread, ok := r.threadFor(ctx, msg.ChannelID)
	if !ok {
		return
	}
	err := r.engine.UpdateChatMessage(ctx, thread.ID, msg)
	switch {
	case errors.Is(err, service.ErrThreadNotOpen):
		r.log.WithField("thread_id", thread.ID).Debug("Ignoring edit in closed thread")
	case err != nil:
		r.log.WithError(err).WithField("thread_id", thread.ID).Warn("Failed to update chat message")
	}
}

// saveChat logs staff chatter. A relay channel can outlive its closed thread, and
// chatter there is dropped.
func (r *Router) saveChat(ctx context.Context, thread *dbmysql.Thread, msg platform.Message) {
	err := r.engine.SaveChatMessage(ctx, thread.ID, msg)
	switch {
	case errors.Is(err, service.ErrThreadNotOpen):
		r.log.WithField("thread_id", thread.ID).Debug("Ignoring chat in closed thread")
	case err != nil:
		r.log.WithError(err).WithField("thread_id", thread.ID).Error("Failed to save chat message")
	}
}

func (r *Router) threadFor(ctx context.Context, channelID string) (*dbmysql.Thread, bool) {
	thread, err := r.engine.FindByChannelID(ctx, channelID)
	if errors.Is(err, service.ErrThreadNotFound) {
		return nil, false
	}
	if err != nil {
		r.log.WithError(err).WithField("channel_id", channelID).Error("Thread lookup failed")
		return nil, false
	}
	return thread, true
}

// parse splits "!name rest" into the lowercased name and the untouched remainder.
func (r *Router) parse(content string) (string, string, bool) {
	if r.prefix == "" || !strings.HasPrefix(content, r.prefix) {
		return "", "", false
	}
	body := strings.TrimPrefix(content, r.prefix)
	if body == "" || strings.HasPrefix(body, " ") {
		return "", "", false
	}
	name, args, _ := strings.Cut(body, " ")
	return strings.ToLower(name), strings.TrimSpace(args), true
}

func (r *Router) reportError(ctx context.Context, cmd *command, err error) {
	log := r.log.WithError(err).WithFields(logrus.Fields{"thread_id": cmd.thread.ID, "command": cmd.name})

	var text string
	switch {
	case errors.Is(err, service.ErrDeliveryUnreachable), errors.Is(err, service.ErrRelayChannelGone):
		// the engine has already told the channel or closed the thread
		log.Debug("Command ended by delivery failure")
		return
	case errors.Is(err, errUsage):
		text = err.Error()
	case errors.Is(err, service.ErrThreadNotOpen):
		text = "This thread is not open."
	case errors.Is(err, service.ErrInvalidTransition):
		text = fmt.Sprintf("Can't %s a thread that is %s.", cmd.name, cmd.thread.Status)
	case errors.Is(err, identity.ErrUnknownRole):
		text = "That role does not exist."
	default:
		log.Error("Command failed")
		text = "Something went wrong while running that command."
	}

	if _, err := r.engine.PostSystemNotice(ctx, cmd.thread.ID, compose.PlainText(text)); err != nil {
		log.WithError(err).Warn("Failed to report command error")
	}
}

func humanDuration(d time.Duration, now time.Time) string {
	return humanize.RelTime(now.Add(d), now, "ago", "from now")
}

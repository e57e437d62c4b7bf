package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gomodmail/internal/dbmysql"
	"gomodmail/internal/platform"
	"gomodmail/internal/thread/compose"
	"gomodmail/internal/thread/repository"
)

const (
	systemName = "System"

	unreachableNotice = "Could not deliver the message to the user. They may have blocked the bot or disabled direct messages."
	autoClosedNotice  = "Your previous thread was closed because its relay channel no longer exists. Send a new message to open a new thread."
)

// outbound is a message leaving the relay channel for the remote user.
type outbound struct {
	kind      dbmysql.MessageType
	userID    string
	userName  string
	anonymous bool
	direction string
	composed  compose.Composed
}

// RelayOutbound sends an operator reply to the remote user and mirrors it in the relay channel.
func (e *Engine) RelayOutbound(ctx context.Context, threadID string, operator platform.Member, text string, attachments []platform.Attachment, anonymous bool) (*RelayResult, error) {
	var result *RelayResult
	err := e.withLock(ctx, threadID, func(thread *dbmysql.Thread) error {
		if !thread.IsOpen() {
			return fmt.Errorf("reply to thread %s: %w", thread.ID, ErrThreadNotOpen)
		}

		who, err := e.resolver.Resolve(ctx, operator, thread, anonymous)
		if err != nil {
			return err
		}

		composed := e.composer.Outbound(who.DisplayName, text, e.storeAttachments(ctx, attachments), e.now())
		composed.DMFiles = fromSource(composed.DMFiles, attachments)
		composed.ChannelFiles = fromSource(composed.ChannelFiles, attachments)

		result, err = e.deliver(ctx, thread, outbound{
			kind:      dbmysql.MessageToUser,
			userID:    operator.ID,
			userName:  who.LogName,
			anonymous: anonymous,
			direction: directionOutbound,
			composed:  composed,
		})
		if err != nil {
			return err
		}
		return e.onActivity(ctx, thread)
	})
	return result, err
}

// RelayCommandHelp sends a pre-built help payload to the remote user on behalf of an operator.
func (e *Engine) RelayCommandHelp(ctx context.Context, threadID string, operator platform.Member, command string, payload platform.MessageSend, anonymous bool) (*RelayResult, error) {
	var result *RelayResult
	err := e.withLock(ctx, threadID, func(thread *dbmysql.Thread) error {
		if !thread.IsOpen() {
			return fmt.Errorf("send help to thread %s: %w", thread.ID, ErrThreadNotOpen)
		}

		who, err := e.resolver.Resolve(ctx, operator, thread, anonymous)
		if err != nil {
			return err
		}

		result, err = e.deliver(ctx, thread, outbound{
			kind:      dbmysql.MessageToUser,
			userID:    operator.ID,
			userName:  who.LogName,
			anonymous: anonymous,
			direction: directionOutbound,
			composed:  e.composer.CommandHelp(who.DisplayName, command, payload, e.now()),
		})
		if err != nil {
			return err
		}
		return e.onActivity(ctx, thread)
	})
	return result, err
}

// SendSystemMessageToUser delivers a bot message to the remote user and the relay channel.
func (e *Engine) SendSystemMessageToUser(ctx context.Context, threadID string, content compose.SystemContent) (*RelayResult, error) {
	var result *RelayResult
	err := e.withLock(ctx, threadID, func(thread *dbmysql.Thread) error {
		if thread.IsClosed() {
			return fmt.Errorf("message thread %s: %w", thread.ID, ErrThreadNotOpen)
		}

		var err error
		result, err = e.deliver(ctx, thread, outbound{
			kind:      dbmysql.MessageSystem,
			userName:  systemName,
			direction: directionSystem,
			composed:  e.composer.System(content),
		})
		return err
	})
	return result, err
}

// deliver sends to the remote user first and to the relay channel second, then logs
// one transcript row. Nothing reaches the relay channel or the transcript when the
// direct message fails. A missing relay channel closes the thread silently and the
// already delivered direct message stands.
func (e *Engine) deliver(ctx context.Context, thread *dbmysql.Thread, out outbound) (*RelayResult, error) {
	log := e.logger(thread)
	c := out.composed

	dm, err := e.sendDM(ctx, thread.UserID, platform.MessageSend{Content: c.DMText, Embed: c.Embed}, c.DMFiles)
	if err != nil {
		if !unreachable(err) {
			return nil, fmt.Errorf("failed to send direct message: %w", err)
		}
		e.recorder.RelayFailed(failureUnreachable)
		log.WithError(err).Warn("Direct message could not be delivered")
		if _, noticeErr := e.post(ctx, thread, compose.PlainText(unreachableNotice), false, 0); noticeErr != nil {
			log.WithError(noticeErr).Warn("Failed to report delivery failure")
		}
		return nil, fmt.Errorf("thread %s: %w", thread.ID, ErrDeliveryUnreachable)
	}

	result := &RelayResult{DMMessage: dm}

	relayed, err := e.send(ctx, thread.ChannelID, platform.MessageSend{Content: c.ChannelText, Embed: c.Embed}, c.ChannelFiles, true)
	if err != nil {
		if errors.Is(err, platform.ErrChannelNotFound) {
			return result, e.channelGone(ctx, thread)
		}
		return result, fmt.Errorf("failed to send to relay channel: %w", err)
	}
	result.ChannelMessage = relayed

	result.Entry = &dbmysql.ThreadMessage{
		ThreadID:        thread.ID,
		MessageType:     out.kind,
		UserID:          out.userID,
		UserName:        out.userName,
		Body:            c.LogBody,
		IsAnonymous:     out.anonymous,
		DMMessageID:     dm.ID,
		ThreadMessageID: relayed.ID,
	}
	if err := e.append(ctx, result.Entry); err != nil {
		return result, err
	}

	e.recorder.RelayDelivered(out.direction)
	return result, nil
}

// RelayInbound posts a message from the remote user in the relay channel.
func (e *Engine) RelayInbound(ctx context.Context, threadID string, msg platform.Message) (*RelayResult, error) {
	var result *RelayResult
	err := e.withLock(ctx, threadID, func(thread *dbmysql.Thread) error {
		if thread.IsClosed() {
			return fmt.Errorf("relay to thread %s: %w", thread.ID, ErrThreadNotOpen)
		}
		log := e.logger(thread)

		source := msg.Attachments
		msg.Attachments = e.storeAttachments(ctx, source)
		c := e.composer.Inbound(msg.Author.Username, msg, e.now())
		c.ChannelFiles = fromSource(c.ChannelFiles, source)

		relayed, err := e.send(ctx, thread.ChannelID, platform.MessageSend{Content: c.ChannelText}, c.ChannelFiles, true)
		if err != nil {
			if !errors.Is(err, platform.ErrChannelNotFound) {
				return fmt.Errorf("failed to send to relay channel: %w", err)
			}
			if _, dmErr := e.sendDM(ctx, thread.UserID, platform.MessageSend{Content: autoClosedNotice}, nil); dmErr != nil {
				log.WithError(dmErr).Warn("Failed to tell user the thread was closed")
			}
			return e.channelGone(ctx, thread)
		}

		result = &RelayResult{
			ChannelMessage: relayed,
			Entry: &dbmysql.ThreadMessage{
				ThreadID:        thread.ID,
				MessageType:     dbmysql.MessageFromUser,
				UserID:          msg.Author.ID,
				UserName:        msg.Author.Username,
				Body:            c.LogBody,
				DMMessageID:     msg.ID,
				ThreadMessageID: relayed.ID,
			},
		}
		if err := e.append(ctx, result.Entry); err != nil {
			return err
		}
		e.recorder.RelayDelivered(directionInbound)

		e.alert(ctx, thread, msg.Author)
		return e.onActivity(ctx, thread)
	})
	return result, err
}

// PostSystemNotice sends a notice to the relay channel only and logs it. The returned
// message may be passed to DeleteAfter.
func (e *Engine) PostSystemNotice(ctx context.Context, threadID string, content compose.SystemContent) (*platform.Message, error) {
	var sent *platform.Message
	err := e.withLock(ctx, threadID, func(thread *dbmysql.Thread) error {
		var err error
		sent, err = e.post(ctx, thread, content, true, 0)
		if errors.Is(err, platform.ErrChannelNotFound) {
			return e.channelGone(ctx, thread)
		}
		return err
	})
	return sent, err
}

// post sends a system notice to the relay channel. Logged notices get a System row;
// a positive ttl deletes the notice later, best-effort.
func (e *Engine) post(ctx context.Context, thread *dbmysql.Thread, content compose.SystemContent, logged bool, ttl time.Duration) (*platform.Message, error) {
	c := e.composer.System(content)
	sent, err := e.send(ctx, thread.ChannelID, platform.MessageSend{Content: c.ChannelText, Embed: c.Embed}, nil, false)
	if err != nil {
		return nil, fmt.Errorf("failed to post notice: %w", err)
	}

	if logged {
		err := e.append(ctx, &dbmysql.ThreadMessage{
			ThreadID:        thread.ID,
			MessageType:     dbmysql.MessageSystem,
			UserName:        systemName,
			Body:            c.LogBody,
			ThreadMessageID: sent.ID,
		})
		if err != nil {
			return sent, err
		}
	}

	if ttl > 0 {
		e.DeleteAfter(sent.ChannelID, sent.ID, ttl)
	}
	return sent, nil
}

// DeleteAfter removes a message once delay has passed. Failures are only logged.
func (e *Engine) DeleteAfter(channelID, messageID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.sendTimeout)
		defer cancel()
		if err := e.gateway.DeleteMessage(ctx, channelID, messageID); err != nil {
			e.log.WithError(err).WithField("message_id", messageID).Warn("Failed to delete transient notice")
		}
	})
}

// SaveChatMessage logs staff chatter in the relay channel that is not sent to the user.
func (e *Engine) SaveChatMessage(ctx context.Context, threadID string, msg platform.Message) error {
	return e.saveIncidental(ctx, threadID, dbmysql.MessageChat, msg)
}

// SaveCommandMessage logs a command invocation typed in the relay channel.
func (e *Engine) SaveCommandMessage(ctx context.Context, threadID string, msg platform.Message) error {
	return e.saveIncidental(ctx, threadID, dbmysql.MessageCommand, msg)
}

func (e *Engine) saveIncidental(ctx context.Context, threadID string, kind dbmysql.MessageType, msg platform.Message) error {
	return e.withLock(ctx, threadID, func(thread *dbmysql.Thread) error {
		if thread.IsClosed() {
			return fmt.Errorf("log %s message in thread %s: %w", kind, thread.ID, ErrThreadNotOpen)
		}
		return e.append(ctx, &dbmysql.ThreadMessage{
			ThreadID:        thread.ID,
			MessageType:     kind,
			UserID:          msg.Author.ID,
			UserName:        msg.Author.Username,
			Body:            incidentalBody(msg),
			DMMessageID:     msg.ID,
			ThreadMessageID: msg.ID,
		})
	})
}

// UpdateChatMessage rewrites a chat row after its relay channel message was edited.
// Edits of messages that were never logged as chat are ignored. The transcript of a
// closed thread is never rewritten.
func (e *Engine) UpdateChatMessage(ctx context.Context, threadID string, msg platform.Message) error {
	return e.withLock(ctx, threadID, func(thread *dbmysql.Thread) error {
		if thread.IsClosed() {
			return fmt.Errorf("update chat message in thread %s: %w", thread.ID, ErrThreadNotOpen)
		}

		err := e.messages.UpdateChatMessage(ctx, thread.ID, msg.ID, incidentalBody(msg), msg.ID)
		if errors.Is(err, repository.ErrNotFound) {
			e.logger(thread).WithField("message_id", msg.ID).Debug("Edited message is not a chat row")
			return nil
		}
		if err != nil {
			return storeError("update chat message", err)
		}
		return nil
	})
}

func incidentalBody(msg platform.Message) string {
	lines := compose.AttachmentLines(msg.Attachments)
	switch {
	case lines == "":
		return msg.Content
	case msg.Content == "":
		return lines
	default:
		return msg.Content + "\n\n" + lines
	}
}

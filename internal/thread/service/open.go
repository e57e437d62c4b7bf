package service

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"gomodmail/internal/dbmysql"
	"gomodmail/internal/platform"
	"gomodmail/internal/thread/repository"
)

var channelNameInvalid = regexp.MustCompile(`[^a-z0-9_-]+`)

// OpenThread returns the user's open or suspended thread, creating a relay channel
// and a new thread when there is none.
func (e *Engine) OpenThread(ctx context.Context, user platform.User) (*dbmysql.Thread, bool, error) {
	unlock := e.locks.Lock("user:" + user.ID)
	defer unlock()

	existing, err := e.threads.ActiveByUserID(ctx, user.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, storeError("find active thread", err)
	}

	createCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	channelID, err := e.gateway.CreateChannel(createCtx, ChannelName(user))
	cancel()
	if err != nil {
		return nil, false, err
	}

	thread := &dbmysql.Thread{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		UserID:    user.ID,
		UserName:  user.Tag(),
		CreatedAt: e.now().UTC(),
	}
	thread.SetStatus(dbmysql.ThreadOpen)

	if err := e.threads.Create(ctx, thread); err != nil {
		deleteCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
		defer cancel()
		if delErr := e.gateway.DeleteChannel(deleteCtx, channelID); delErr != nil {
			e.log.WithError(delErr).WithField("channel_id", channelID).Warn("Failed to remove channel of unsaved thread")
		}
		return nil, false, storeError("create thread", err)
	}

	e.logger(thread).Info("Thread opened")
	return thread, true, nil
}

// ChannelName derives a relay channel name from the user, e.g. "alice-0042".
func ChannelName(user platform.User) string {
	name := channelNameInvalid.ReplaceAllString(strings.ToLower(user.Username), "")
	if name == "" {
		name = "unknown"
	}
	suffix := user.Discriminator
	if suffix == "" || suffix == "0" {
		suffix = user.ID
		if len(suffix) > 4 {
			suffix = suffix[len(suffix)-4:]
		}
	}
	return name + "-" + suffix
}

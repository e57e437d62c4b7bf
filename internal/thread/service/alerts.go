package service

import (
	"context"
	"fmt"
	"strings"

	"gomodmail/internal/dbmysql"
	"gomodmail/internal/platform"
	"gomodmail/internal/thread/compose"
)

// SetAlert adds or removes an operator from the thread's watchers.
func (e *Engine) SetAlert(ctx context.Context, threadID, userID string, enabled bool) error {
	return e.withLock(ctx, threadID, func(thread *dbmysql.Thread) error {
		if thread.IsClosed() {
			return fmt.Errorf("set alert on thread %s: %w", thread.ID, ErrThreadNotOpen)
		}
		ids, err := thread.AlertUserIDs()
		if err != nil {
			return err
		}

		next := make([]string, 0, len(ids)+1)
		for _, id := range ids {
			if id != userID {
				next = append(next, id)
			}
		}
		if enabled {
			next = append(next, userID)
		}

		raw, err := dbmysql.EncodeAlertUsers(next)
		if err != nil {
			return err
		}
		if err := e.threads.SetAlertUsers(ctx, thread.ID, raw); err != nil {
			return storeError("set alert", err)
		}
		return nil
	})
}

func (e *Engine) GetAlertUsers(ctx context.Context, threadID string) ([]string, error) {
	thread, err := e.FindByID(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return thread.AlertUserIDs()
}

// alert pings the watchers about a new inbound message. Failures are only logged.
func (e *Engine) alert(ctx context.Context, thread *dbmysql.Thread, author platform.User) {
	log := e.logger(thread)

	ids, err := thread.AlertUserIDs()
	if err != nil {
		log.WithError(err).Warn("Unreadable alert users")
		return
	}

	exclude := ""
	if thread.ScheduledCloseID != nil {
		exclude = *thread.ScheduledCloseID
	}
	mentions := FormatMentions(ids, exclude)
	if mentions == "" {
		return
	}

	text := fmt.Sprintf("%s New message from %s", mentions, author.Username)
	if _, err := e.post(ctx, thread, compose.PlainText(text), false, 0); err != nil {
		log.WithError(err).Warn("Failed to alert watchers")
	}
}

// FormatMentions joins user mentions as "a, b and c", leaving out exclude.
func FormatMentions(ids []string, exclude string) string {
	mentions := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || id == exclude {
			continue
		}
		mentions = append(mentions, "<@"+id+">")
	}

	switch len(mentions) {
	case 0:
		return ""
	case 1:
		return mentions[0]
	default:
		return strings.Join(mentions[:len(mentions)-1], ", ") + " and " + mentions[len(mentions)-1]
	}
}

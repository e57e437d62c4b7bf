package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"gomodmail/internal/dbmysql"
	"gomodmail/internal/platform"
	"gomodmail/internal/thread/compose"
	"gomodmail/internal/thread/repository"
)

const closingNotice = "Closing thread..."

// systemActor closes threads when no operator is known.
var systemActor = platform.User{Username: systemName}

// Close moves an open or suspended thread to Closed. Closing a closed thread is a no-op.
// A nil closer is rebuilt from the persisted scheduled close.
func (e *Engine) Close(ctx context.Context, threadID string, closer *platform.User, silent bool) error {
	return e.withLock(ctx, threadID, func(thread *dbmysql.Thread) error {
		return e.close(ctx, thread, closer, silent, triggerManual)
	})
}

func (e *Engine) close(ctx context.Context, thread *dbmysql.Thread, closer *platform.User, silent bool, trigger string) error {
	if thread.IsClosed() {
		return nil
	}
	log := e.logger(thread)

	actor := scheduledActor(thread)
	if closer != nil {
		actor = *closer
	}

	if !silent {
		if _, err := e.post(ctx, thread, compose.PlainText(closingNotice), true, 0); err != nil {
			log.WithError(err).Warn("Failed to post closing notice")
		}
	}

	stamp := repository.CloseStamp{At: e.now().UTC(), ActorID: actor.ID, ActorName: actor.Tag()}
	if err := e.threads.MarkClosed(ctx, thread.ID, stamp); err != nil {
		e.recorder.RelayFailed(failureStore)
		return storeError("close thread", err)
	}
	markClosed(thread, stamp)
	e.stopTimer(thread.ID)

	deleteCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	defer cancel()
	if err := e.gateway.DeleteChannel(deleteCtx, thread.ChannelID); err != nil && !errors.Is(err, platform.ErrChannelNotFound) {
		log.WithError(err).Warn("Failed to delete relay channel of closed thread")
	}

	e.sink.ThreadClosed(thread)
	e.recorder.ThreadClosed(trigger)
	log.WithField("closed_by", stamp.ActorName).Info("Thread closed")
	return nil
}

// channelGone closes a thread whose relay channel disappeared.
func (e *Engine) channelGone(ctx context.Context, thread *dbmysql.Thread) error {
	e.recorder.RelayFailed(failureChannelGone)
	e.logger(thread).Warn("Relay channel is gone, closing thread")
	if err := e.close(ctx, thread, &systemActor, true, triggerChannelGone); err != nil {
		return err
	}
	return fmt.Errorf("thread %s: %w", thread.ID, ErrRelayChannelGone)
}

// scheduledActor returns who scheduled the close, or the system actor.
func scheduledActor(thread *dbmysql.Thread) platform.User {
	if thread.ScheduledCloseID == nil {
		return systemActor
	}
	actor := platform.User{ID: *thread.ScheduledCloseID}
	if thread.ScheduledCloseName != nil {
		actor.Username = *thread.ScheduledCloseName
	}
	if thread.ScheduledCloseDiscriminator != nil {
		actor.Discriminator = *thread.ScheduledCloseDiscriminator
	}
	return actor
}

func markClosed(thread *dbmysql.Thread, stamp repository.CloseStamp) {
	thread.SetStatus(dbmysql.ThreadClosed)
	clearSchedule(thread)
	thread.AlertUsers = nil
	thread.StaffRoleOverrides = nil
	thread.ClosedAt = &stamp.At
	thread.ClosedByID = &stamp.ActorID
	thread.ClosedByName = &stamp.ActorName
}

func clearSchedule(thread *dbmysql.Thread) {
	thread.ScheduledCloseAt = nil
	thread.ScheduledCloseID = nil
	thread.ScheduledCloseName = nil
	thread.ScheduledCloseDiscriminator = nil
	thread.ScheduledCloseSilent = false
}

// ScheduleClose arms a close at the given time, replacing any earlier schedule.
// Times are kept to the second so the stored value compares equal after a round trip.
func (e *Engine) ScheduleClose(ctx context.Context, threadID string, at time.Time, actor platform.User, silent bool) error {
	at = at.UTC().Truncate(time.Second)
	return e.withLock(ctx, threadID, func(thread *dbmysql.Thread) error {
		if !thread.IsOpen() {
			return fmt.Errorf("schedule close of thread %s: %w", thread.ID, ErrThreadNotOpen)
		}

		sc := repository.ScheduledClose{
			At:            at,
			ActorID:       actor.ID,
			ActorName:     actor.Username,
			Discriminator: actor.Discriminator,
			Silent:        silent,
		}
		if err := e.threads.SetScheduledClose(ctx, thread.ID, sc); err != nil {
			return storeError("schedule close", err)
		}

		e.armTimer(thread.ID, at)
		e.logger(thread).WithField("close_at", at).Info("Thread close scheduled")
		return nil
	})
}

// CancelScheduledClose clears the pending close. It is a no-op when none is pending.
func (e *Engine) CancelScheduledClose(ctx context.Context, threadID string) error {
	return e.withLock(ctx, threadID, func(thread *dbmysql.Thread) error {
		return e.cancelSchedule(ctx, thread)
	})
}

func (e *Engine) cancelSchedule(ctx context.Context, thread *dbmysql.Thread) error {
	e.stopTimer(thread.ID)
	if thread.ScheduledCloseAt == nil {
		return nil
	}
	if err := e.threads.ClearScheduledClose(ctx, thread.ID); err != nil {
		return storeError("cancel scheduled close", err)
	}
	clearSchedule(thread)
	return nil
}

// onActivity reacts to new messages while a close is pending. A close due within the
// guard window is cancelled; a later one only triggers a reminder.
func (e *Engine) onActivity(ctx context.Context, thread *dbmysql.Thread) error {
	if !thread.HasScheduledClose() {
		return nil
	}
	log := e.logger(thread)
	at := *thread.ScheduledCloseAt

	if delta := at.Sub(e.now()); delta <= e.guardWindow && delta >= -e.guardWindow {
		if err := e.cancelSchedule(ctx, thread); err != nil {
			return err
		}
		if _, err := e.post(ctx, thread, compose.PlainText("Thread close cancelled because of new activity."), false, e.noticeTTL); err != nil {
			log.WithError(err).Warn("Failed to post close cancellation notice")
		}
		return nil
	}

	reminder := fmt.Sprintf("This thread is scheduled to close %s. Use `%sclose cancel` to cancel.", humanize.RelTime(at, e.now(), "ago", "from now"), e.prefix)
	if _, err := e.post(ctx, thread, compose.PlainText(reminder), false, e.noticeTTL); err != nil {
		log.WithError(err).Warn("Failed to post scheduled close reminder")
	}
	return nil
}

// closeIfDue is the single transition used by both the timer and the sweeper. It does
// nothing unless the thread is still open with the same schedule and that time has come.
func (e *Engine) closeIfDue(ctx context.Context, threadID string, expectedAt time.Time) (bool, error) {
	closed := false
	err := e.withLock(ctx, threadID, func(thread *dbmysql.Thread) error {
		if !thread.HasScheduledClose() || !thread.ScheduledCloseAt.Equal(expectedAt) {
			return nil
		}
		if e.now().Before(expectedAt) {
			return nil
		}
		if err := e.close(ctx, thread, nil, thread.ScheduledCloseSilent, triggerScheduled); err != nil {
			return err
		}
		closed = true
		return nil
	})
	return closed, err
}

// Suspend pauses an open thread. A pending close is kept but will not fire until the
// thread is open again.
func (e *Engine) Suspend(ctx context.Context, threadID string) error {
	return e.withLock(ctx, threadID, func(thread *dbmysql.Thread) error {
		if !thread.IsOpen() {
			return fmt.Errorf("suspend thread %s in status %s: %w", thread.ID, thread.Status, ErrInvalidTransition)
		}
		if err := e.threads.SetStatus(ctx, thread.ID, dbmysql.ThreadSuspended); err != nil {
			return storeError("suspend thread", err)
		}
		thread.SetStatus(dbmysql.ThreadSuspended)
		e.stopTimer(thread.ID)
		e.logger(thread).Info("Thread suspended")
		return nil
	})
}

func (e *Engine) Unsuspend(ctx context.Context, threadID string) error {
	return e.withLock(ctx, threadID, func(thread *dbmysql.Thread) error {
		if !thread.IsSuspended() {
			return fmt.Errorf("unsuspend thread %s in status %s: %w", thread.ID, thread.Status, ErrInvalidTransition)
		}
		if err := e.threads.SetStatus(ctx, thread.ID, dbmysql.ThreadOpen); err != nil {
			return storeError("unsuspend thread", err)
		}
		thread.SetStatus(dbmysql.ThreadOpen)
		if thread.ScheduledCloseAt != nil {
			e.armTimer(thread.ID, *thread.ScheduledCloseAt)
		}
		e.logger(thread).Info("Thread unsuspended")
		return nil
	})
}

func (e *Engine) armTimer(threadID string, at time.Time) {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()

	if timer, ok := e.timers[threadID]; ok {
		timer.Stop()
	}
	delay := at.Sub(e.now())
	if delay < 0 {
		delay = 0
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		e.timersMu.Lock()
		if e.timers[threadID] == timer {
			delete(e.timers, threadID)
		}
		e.timersMu.Unlock()

		if _, err := e.closeIfDue(context.Background(), threadID, at); err != nil {
			e.log.WithError(err).WithField("thread_id", threadID).Error("Scheduled close failed")
		}
	})
	e.timers[threadID] = timer
}

func (e *Engine) stopTimer(threadID string) {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()
	if timer, ok := e.timers[threadID]; ok {
		timer.Stop()
		delete(e.timers, threadID)
	}
}

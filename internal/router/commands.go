package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gomodmail/internal/dbmysql"
	"gomodmail/internal/platform"
	"gomodmail/internal/thread/compose"
)

var errUsage = errors.New("usage")

type usageError string

func (u usageError) Error() string { return "Usage: `" + string(u) + "`" }
func (u usageError) Is(target error) bool { return target == errUsage }

type command struct {
	name   string
	args   string
	msg    platform.Message
	author platform.Member
	thread *dbmysql.Thread
}

type commandFunc func(ctx context.Context, r *Router, cmd *command) error

var commands = map[string]commandFunc{
	"reply":     reply(false),
	"r":         reply(false),
	"anonreply": reply(true),
	"ar":        reply(true),
	"close":     closeThread,
	"suspend":   suspend,
	"unsuspend": unsuspend,
	"alert":     alert,
	"role":      role,
}

// relaysMessage reports whether the command's own message becomes a transcript row through the relay.
func relaysMessage(name string) bool {
	switch name {
	case "reply", "r", "anonreply", "ar":
		return true
	}
	return false
}

func reply(anonymous bool) commandFunc {
	return func(ctx context.Context, r *Router, cmd *command) error {
		if cmd.args == "" && len(cmd.msg.Attachments) == 0 {
			return usageError(r.prefix + cmd.name + " <text>")
		}
		_, err := r.engine.RelayOutbound(ctx, cmd.thread.ID, cmd.author, cmd.args, cmd.msg.Attachments, anonymous)
		return err
	}
}

// closeThread handles "close", "close silent", "close cancel" and "close <duration> [silent]".
func closeThread(ctx context.Context, r *Router, cmd *command) error {
	fields := strings.Fields(strings.ToLower(cmd.args))
	usage := usageError(r.prefix + "close [silent|cancel|<duration> [silent]]")

	switch {
	case len(fields) == 0:
		return r.engine.Close(ctx, cmd.thread.ID, &cmd.author.User, false)
	case len(fields) == 1 && fields[0] == "silent":
		return r.engine.Close(ctx, cmd.thread.ID, &cmd.author.User, true)
	case len(fields) == 1 && fields[0] == "cancel":
		if !cmd.thread.HasScheduledClose() {
			return notice(ctx, r, cmd, "This thread is not scheduled to close.")
		}
		if err := r.engine.CancelScheduledClose(ctx, cmd.thread.ID); err != nil {
			return err
		}
		return notice(ctx, r, cmd, "Cancelled scheduled closing.")
	case len(fields) <= 2:
		delay, err := time.ParseDuration(fields[0])
		if err != nil || delay <= 0 {
			return usage
		}
		silent := false
		if len(fields) == 2 {
			if fields[1] != "silent" {
				return usage
			}
			silent = true
		}
		now := r.now()
		if err := r.engine.ScheduleClose(ctx, cmd.thread.ID, now.Add(delay), cmd.author.User, silent); err != nil {
			return err
		}
		return notice(ctx, r, cmd, fmt.Sprintf("Thread is now scheduled to close %s. Use `%sclose cancel` to cancel.",
			humanDuration(delay, now), r.prefix))
	default:
		return usage
	}
}

func suspend(ctx context.Context, r *Router, cmd *command) error {
	if err := r.engine.Suspend(ctx, cmd.thread.ID); err != nil {
		return err
	}
	return notice(ctx, r, cmd, "**Thread suspended!** Replies are disabled until the thread is unsuspended. Messages from the user are still relayed here.")
}

func unsuspend(ctx context.Context, r *Router, cmd *command) error {
	if err := r.engine.Unsuspend(ctx, cmd.thread.ID); err != nil {
		return err
	}
	return notice(ctx, r, cmd, "**Thread unsuspended!**")
}

func alert(ctx context.Context, r *Router, cmd *command) error {
	switch strings.ToLower(cmd.args) {
	case "":
		if err := r.engine.SetAlert(ctx, cmd.thread.ID, cmd.author.ID, true); err != nil {
			return err
		}
		return notice(ctx, r, cmd, fmt.Sprintf("Pinging <@%s> when this thread gets a new reply.", cmd.author.ID))
	case "cancel":
		if err := r.engine.SetAlert(ctx, cmd.thread.ID, cmd.author.ID, false); err != nil {
			return err
		}
		return notice(ctx, r, cmd, fmt.Sprintf("Cancelled new message alert for <@%s>.", cmd.author.ID))
	default:
		return usageError(r.prefix + "alert [cancel]")
	}
}

func role(ctx context.Context, r *Router, cmd *command) error {
	switch arg := strings.TrimSpace(cmd.args); strings.ToLower(arg) {
	case "":
		roleID, ok, err := r.engine.GetStaffRoleOverride(ctx, cmd.thread.ID, cmd.author.ID)
		if err != nil {
			return err
		}
		if !ok {
			return notice(ctx, r, cmd, "You are using your default display role in this thread.")
		}
		return notice(ctx, r, cmd, fmt.Sprintf("Your display role in this thread is <@&%s>.", roleID))
	case "reset":
		if err := r.engine.DeleteStaffRoleOverride(ctx, cmd.thread.ID, cmd.author.ID); err != nil {
			return err
		}
		return notice(ctx, r, cmd, "Your display role for this thread has been reset.")
	default:
		roleID := strings.TrimSuffix(strings.TrimPrefix(arg, "<@&"), ">")
		if err := r.engine.SetStaffRoleOverride(ctx, cmd.thread.ID, cmd.author.ID, roleID); err != nil {
			return err
		}
		return notice(ctx, r, cmd, fmt.Sprintf("Your display role for this thread is now <@&%s>.", roleID))
	}
}

func notice(ctx context.Context, r *Router, cmd *command, text string) error {
	_, err := r.engine.PostSystemNotice(ctx, cmd.thread.ID, compose.PlainText(text))
	return err
}

// Package service is the thread relay engine: it relays messages between a remote
// user and a relay channel, keeps the transcript and drives the thread lifecycle.
package service

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"gomodmail/internal/config"
	"gomodmail/internal/dbmysql"
	"gomodmail/internal/platform"
	"gomodmail/internal/thread/compose"
	"gomodmail/internal/thread/identity"
	"gomodmail/internal/thread/locks"
	"gomodmail/internal/thread/repository"
)

// EventSink receives best-effort real-time events.
type EventSink interface {
	ThreadMessageAppended(msg *dbmysql.ThreadMessage)
	ThreadClosed(thread *dbmysql.Thread)
}

// AttachmentStore keeps a copy of an attachment and returns its stable URL.
type AttachmentStore interface {
	StoreAttachment(ctx context.Context, att platform.Attachment, r io.Reader) (string, error)
}

// Recorder counts relay and lifecycle outcomes.
type Recorder interface {
	RelayDelivered(direction string)
	RelayFailed(kind string)
	ThreadClosed(trigger string)
}

const (
	directionOutbound = "outbound"
	directionInbound  = "inbound"
	directionSystem   = "system"

	failureUnreachable = "delivery_unreachable"
	failureChannelGone = "relay_channel_gone"
	failureStore       = "store"

	triggerManual      = "manual"
	triggerScheduled   = "scheduled"
	triggerChannelGone = "channel_gone"
)

// RelayResult describes one relayed message.
type RelayResult struct {
	Entry          *dbmysql.ThreadMessage
	DMMessage      *platform.Message
	ChannelMessage *platform.Message
}

type Engine struct {
	threads  repository.ThreadRepository
	messages repository.MessageRepository
	gateway  platform.Gateway
	resolver *identity.Resolver
	composer *compose.Composer
	locks    *locks.Registry

	sink        EventSink
	attachments AttachmentStore
	recorder    Recorder
	log         logrus.FieldLogger

	prefix      string
	guardWindow time.Duration
	noticeTTL   time.Duration
	sendTimeout time.Duration
	now         func() time.Time

	timersMu sync.Mutex
	timers   map[string]*time.Timer
}

type Option func(*Engine)

func WithEventSink(sink EventSink) Option {
	return func(e *Engine) {
		if sink != nil {
			e.sink = sink
		}
	}
}

func WithAttachmentStore(store AttachmentStore) Option {
	return func(e *Engine) { e.attachments = store }
}

func WithRecorder(recorder Recorder) Option {
	return func(e *Engine) {
		if recorder != nil {
			e.recorder = recorder
		}
	}
}

func NewEngine(
	threads repository.ThreadRepository,
	messages repository.MessageRepository,
	gateway platform.Gateway,
	resolver *identity.Resolver,
	composer *compose.Composer,
	cfg *config.Config,
	logger logrus.FieldLogger,
	opts ...Option,
) *Engine {
	e := &Engine{
		threads:     threads,
		messages:    messages,
		gateway:     gateway,
		resolver:    resolver,
		composer:    composer,
		locks:       locks.New(),
		sink:        nopSink{},
		recorder:    nopRecorder{},
		log:         logger,
		prefix:      cfg.Discord.CommandPrefix,
		guardWindow: cfg.Relay.CloseGuardWindow,
		noticeTTL:   cfg.Relay.NoticeTTL,
		sendTimeout: cfg.Relay.SendTimeout,
		now:         time.Now,
		timers:      make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Shutdown stops pending scheduled close timers. Persisted schedules are picked up
// again by the sweeper.
func (e *Engine) Shutdown() {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()
	for id, timer := range e.timers {
		timer.Stop()
		delete(e.timers, id)
	}
}

func (e *Engine) FindByID(ctx context.Context, id string) (*dbmysql.Thread, error) {
	thread, err := e.threads.ByID(ctx, id)
	if err != nil {
		return nil, storeError("find thread", err)
	}
	return thread, nil
}

// FindByChannelID resolves the thread that owns a relay channel.
func (e *Engine) FindByChannelID(ctx context.Context, channelID string) (*dbmysql.Thread, error) {
	thread, err := e.threads.ByChannelID(ctx, channelID)
	if err != nil {
		return nil, storeError("find thread by channel", err)
	}
	return thread, nil
}

func (e *Engine) FindActiveByUserID(ctx context.Context, userID string) (*dbmysql.Thread, error) {
	thread, err := e.threads.ActiveByUserID(ctx, userID)
	if err != nil {
		return nil, storeError("find active thread", err)
	}
	return thread, nil
}

// ListMessages returns the transcript ordered by (created_at, id).
func (e *Engine) ListMessages(ctx context.Context, threadID string, limit, offset int) ([]*dbmysql.ThreadMessage, error) {
	messages, err := e.messages.ListByThread(ctx, threadID, limit, offset)
	if err != nil {
		return nil, storeError("list messages", err)
	}
	return messages, nil
}

func (e *Engine) logger(thread *dbmysql.Thread) logrus.FieldLogger {
	return e.log.WithFields(logrus.Fields{
		"thread_id":  thread.ID,
		"channel_id": thread.ChannelID,
		"user_id":    thread.UserID,
	})
}

// withLock loads the thread while holding its lock.
func (e *Engine) withLock(ctx context.Context, threadID string, fn func(thread *dbmysql.Thread) error) error {
	unlock := e.locks.Lock(threadID)
	defer unlock()

	thread, err := e.FindByID(ctx, threadID)
	if err != nil {
		return err
	}
	return fn(thread)
}

func (e *Engine) append(ctx context.Context, msg *dbmysql.ThreadMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = e.now().UTC()
	}
	if err := e.messages.Append(ctx, msg); err != nil {
		e.recorder.RelayFailed(failureStore)
		return storeError("append thread message", err)
	}
	e.sink.ThreadMessageAppended(msg)
	return nil
}

// send delivers a payload with the configured timeout. Attachment files are fetched
// first; skipFailedFiles drops files that cannot be fetched instead of failing.
func (e *Engine) send(ctx context.Context, channelID string, payload platform.MessageSend, files []platform.Attachment, skipFailedFiles bool) (*platform.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	defer cancel()

	fetched, readers, err := e.fetch(ctx, files, skipFailedFiles)
	defer closeAll(readers)
	if err != nil {
		return nil, err
	}
	payload.Files = append(payload.Files, fetched...)

	return e.gateway.Send(ctx, channelID, payload)
}

func (e *Engine) sendDM(ctx context.Context, userID string, payload platform.MessageSend, files []platform.Attachment) (*platform.Message, error) {
	dmCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	defer cancel()

	channelID, err := e.gateway.OpenDirectChannel(dmCtx, userID)
	if err != nil {
		return nil, err
	}
	return e.send(ctx, channelID, payload, files, false)
}

func (e *Engine) fetch(ctx context.Context, atts []platform.Attachment, skipFailed bool) ([]platform.File, []io.ReadCloser, error) {
	files := make([]platform.File, 0, len(atts))
	readers := make([]io.ReadCloser, 0, len(atts))
	for _, att := range atts {
		r, err := e.gateway.FetchAttachment(ctx, att)
		if err != nil {
			if skipFailed {
				e.log.WithError(err).WithField("attachment", att.Filename).Warn("Skipping attachment that could not be fetched")
				continue
			}
			return nil, readers, err
		}
		readers = append(readers, r)
		files = append(files, platform.File{Name: att.Filename, ContentType: att.ContentType, Reader: r})
	}
	return files, readers, nil
}

// storeAttachments swaps platform URLs for stable ones when an attachment store is configured.
func (e *Engine) storeAttachments(ctx context.Context, atts []platform.Attachment) []platform.Attachment {
	if e.attachments == nil || len(atts) == 0 {
		return atts
	}

	out := make([]platform.Attachment, len(atts))
	copy(out, atts)
	for i := range out {
		url, err := e.storeAttachment(ctx, out[i])
		if err != nil {
			e.log.WithError(err).WithField("attachment", out[i].Filename).Warn("Failed to store attachment, keeping platform URL")
			continue
		}
		out[i].URL = url
	}
	return out
}

func (e *Engine) storeAttachment(ctx context.Context, att platform.Attachment) (string, error) {
	r, err := e.gateway.FetchAttachment(ctx, att)
	if err != nil {
		return "", err
	}
	defer r.Close()
	return e.attachments.StoreAttachment(ctx, att, r)
}

// fromSource points files back at the platform URLs they were archived from, so
// uploads are fetched from the platform rather than from the archive.
func fromSource(files, source []platform.Attachment) []platform.Attachment {
	if len(files) == 0 {
		return files
	}
	urls := make(map[string]string, len(source))
	for _, att := range source {
		if att.ID != "" {
			urls[att.ID] = att.URL
		}
	}
	out := make([]platform.Attachment, len(files))
	for i, f := range files {
		if url, ok := urls[f.ID]; ok {
			f.URL = url
		}
		out[i] = f
	}
	return out
}

func closeAll(readers []io.ReadCloser) {
	for _, r := range readers {
		r.Close()
	}
}

type nopSink struct{}

func (nopSink) ThreadMessageAppended(*dbmysql.ThreadMessage) {}
func (nopSink) ThreadClosed(*dbmysql.Thread)                 {}

type nopRecorder struct{}

func (nopRecorder) RelayDelivered(string) {}
func (nopRecorder) RelayFailed(string)    {}
func (nopRecorder) ThreadClosed(string)   {}

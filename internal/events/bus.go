package events

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"gomodmail/internal/dbmysql"
)

// Bus delivers events to subscribed observers from a fixed worker pool.
type Bus struct {
	observers    map[string]Observer
	eventChannel chan Event
	workerPool   int
	ctx          context.Context
	cancel       context.CancelFunc
	mu           sync.RWMutex
	wg           sync.WaitGroup
	log          logrus.FieldLogger
}

func NewBus(workerPoolSize, bufferSize int, log logrus.FieldLogger) *Bus {
	if workerPoolSize < 1 {
		workerPoolSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	b := &Bus{
		observers:    make(map[string]Observer),
		eventChannel: make(chan Event, bufferSize),
		workerPool:   workerPoolSize,
		ctx:          ctx,
		cancel:       cancel,
		log:          log,
	}

	for i := 0; i < workerPoolSize; i++ {
		b.wg.Add(1)
		go b.processEvents()
	}

	return b
}

func (b *Bus) Subscribe(observer Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers[observer.Name()] = observer
	b.log.Infof("Observer %s subscribed", observer.Name())
}

func (b *Bus) Unsubscribe(observer Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.observers, observer.Name())
	b.log.Infof("Observer %s unsubscribed", observer.Name())
}

// Publish delivers the event on the caller's goroutine.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	observers := make([]Observer, 0, len(b.observers))
	for _, obs := range b.observers {
		observers = append(observers, obs)
	}
	b.mu.RUnlock()

	for _, observer := range observers {
		if err := observer.Update(event); err != nil {
			b.log.WithError(err).Warnf("Observer %s update failed", observer.Name())
		}
	}
}

// PublishAsync queues the event and drops it when the queue is full.
func (b *Bus) PublishAsync(event Event) {
	select {
	case <-b.ctx.Done():
		return
	default:
	}

	select {
	case b.eventChannel <- event:
	case <-b.ctx.Done():
	default:
		b.log.Warnf("Event channel full, dropping event: %s", event.Type)
	}
}

func (b *Bus) processEvents() {
	defer b.wg.Done()

	for {
		select {
		case event := <-b.eventChannel:
			b.Publish(event)
		case <-b.ctx.Done():
			return
		}
	}
}

// Shutdown stops the workers. Queued events that were not picked up are dropped.
func (b *Bus) Shutdown() {
	b.cancel()
	b.wg.Wait()
	b.log.Info("Event bus shutdown complete")
}

func (b *Bus) ThreadMessageAppended(msg *dbmysql.ThreadMessage) {
	snapshot := *msg
	b.PublishAsync(Event{
		Type:          ThreadMessageType,
		ThreadID:      msg.ThreadID,
		ThreadMessage: &snapshot,
		At:            time.Now().UTC(),
	})
}

func (b *Bus) ThreadClosed(thread *dbmysql.Thread) {
	snapshot := *thread
	b.PublishAsync(Event{
		Type:     ThreadClosedType,
		ThreadID: thread.ID,
		Thread:   &snapshot,
		At:       time.Now().UTC(),
	})
}

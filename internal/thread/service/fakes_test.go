package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gomodmail/internal/config"
	"gomodmail/internal/dbmysql"
	"gomodmail/internal/platform"
	"gomodmail/internal/thread/compose"
	"gomodmail/internal/thread/identity"
	"gomodmail/internal/thread/repository"
)

type sentMessage struct {
	ChannelID string
	Payload   platform.MessageSend
	ID        string
}

type fakeGateway struct {
	mu              sync.Mutex
	nextID          int
	sent            []sentMessage
	dmErr           error
	gone            map[string]bool
	deleteErr       error
	deletedChannels []string
	deletedMessages []string
	roles           []platform.Role
	fetched         []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		gone:  map[string]bool{},
		roles: []platform.Role{{ID: "r-mod", Name: "Moderator", Position: 3}, {ID: "r-admin", Name: "Admin", Position: 9}},
	}
}

func (g *fakeGateway) OpenDirectChannel(_ context.Context, userID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.dmErr != nil {
		return "", g.dmErr
	}
	return "dm-" + userID, nil
}

func (g *fakeGateway) Send(_ context.Context, channelID string, msg platform.MessageSend) (*platform.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gone[channelID] {
		return nil, fmt.Errorf("send: %w", platform.ErrChannelNotFound)
	}
	for _, f := range msg.Files {
		io.Copy(io.Discard, f.Reader)
	}
	g.nextID++
	id := fmt.Sprintf("m%d", g.nextID)
	g.sent = append(g.sent, sentMessage{ChannelID: channelID, Payload: msg, ID: id})
	return &platform.Message{ID: id, ChannelID: channelID, Content: msg.Content, Timestamp: time.Now()}, nil
}

func (g *fakeGateway) DeleteMessage(_ context.Context, _ string, messageID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deletedMessages = append(g.deletedMessages, messageID)
	return nil
}

func (g *fakeGateway) CreateChannel(_ context.Context, name string) (string, error) {
	return "chan-" + name, nil
}

func (g *fakeGateway) DeleteChannel(_ context.Context, channelID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.deleteErr != nil {
		return g.deleteErr
	}
	g.deletedChannels = append(g.deletedChannels, channelID)
	g.gone[channelID] = true
	return nil
}

func (g *fakeGateway) GuildRoles(context.Context) ([]platform.Role, error) {
	return g.roles, nil
}

func (g *fakeGateway) FetchAttachment(_ context.Context, att platform.Attachment) (io.ReadCloser, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetched = append(g.fetched, att.URL)
	return io.NopCloser(strings.NewReader(att.Filename)), nil
}

func (g *fakeGateway) setGone(channelID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gone[channelID] = true
}

func (g *fakeGateway) setDMErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dmErr = err
}

// sentTo lists the contents sent to one channel.
func (g *fakeGateway) sentTo(channelID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, s := range g.sent {
		if s.ChannelID == channelID {
			out = append(out, s.Payload.Content)
		}
	}
	return out
}

func (g *fakeGateway) deleted() ([]string, []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.deletedChannels...), append([]string(nil), g.deletedMessages...)
}

type recordingSink struct {
	mu       sync.Mutex
	appended []*dbmysql.ThreadMessage
	closed   []string
}

func (s *recordingSink) ThreadMessageAppended(msg *dbmysql.ThreadMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appended = append(s.appended, msg)
}

func (s *recordingSink) ThreadClosed(thread *dbmysql.Thread) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, thread.ID)
}

func (s *recordingSink) closedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.closed)
}

type harness struct {
	engine  *Engine
	gateway *fakeGateway
	sink    *recordingSink
	logs    *logtest.Hook
	cfg     *config.Config
	threads repository.ThreadRepository
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Discord.CommandPrefix = "!"
	cfg.Relay.Timestamps = false
	cfg.Relay.UseNicknames = true
	cfg.Relay.InlineAttachmentMax = 1024
	cfg.Relay.CloseGuardWindow = 30 * time.Second
	cfg.Relay.SendTimeout = time.Second
	return cfg
}

func openTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, dbmysql.Migrate(db))
	return db
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithGateway(t, newFakeGateway())
}

func newHarnessWithGateway(t *testing.T, gw platform.Gateway) *harness {
	db := openTestDB(t)
	cfg := testConfig()
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	threads := repository.NewThreadRepository(db)
	sink := &recordingSink{}
	engine := NewEngine(
		threads,
		repository.NewMessageRepository(db),
		gw,
		identity.NewResolver(gw, cfg),
		compose.NewComposer(cfg),
		cfg,
		log,
		WithEventSink(sink),
	)
	t.Cleanup(engine.Shutdown)

	fake, _ := gw.(*fakeGateway)
	return &harness{engine: engine, gateway: fake, sink: sink, logs: hook, cfg: cfg, threads: threads}
}

var (
	remoteUser = platform.User{ID: "100200", Username: "bob"}
	moderator  = platform.Member{
		User:     platform.User{ID: "7", Username: "alice", Discriminator: "0001"},
		Nickname: "Alice",
		RoleIDs:  []string{"r-mod"},
	}
)

func (h *harness) open(t *testing.T) *dbmysql.Thread {
	thread, created, err := h.engine.OpenThread(context.Background(), remoteUser)
	require.NoError(t, err)
	require.True(t, created)
	return thread
}

func (h *harness) reload(t *testing.T, id string) *dbmysql.Thread {
	thread, err := h.engine.FindByID(context.Background(), id)
	require.NoError(t, err)
	return thread
}

func (h *harness) transcript(t *testing.T, id string) []*dbmysql.ThreadMessage {
	messages, err := h.engine.ListMessages(context.Background(), id, 0, 0)
	require.NoError(t, err)
	return messages
}

func inbound(content string) platform.Message {
	return platform.Message{ID: "dm-msg-" + content, Author: remoteUser, Content: content}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gomodmail/internal/config"
	"gomodmail/internal/dbmysql"
	"gomodmail/internal/thread/service"
)

type stubThreads struct {
	threads  map[string]*dbmysql.Thread
	messages map[string][]*dbmysql.ThreadMessage
	err      error
}

func (s *stubThreads) FindByID(_ context.Context, id string) (*dbmysql.Thread, error) {
	if s.err != nil {
		return nil, s.err
	}
	if thread, ok := s.threads[id]; ok {
		return thread, nil
	}
	return nil, fmt.Errorf("thread %s: %w", id, service.ErrThreadNotFound)
}

func (s *stubThreads) FindByChannelID(_ context.Context, channelID string) (*dbmysql.Thread, error) {
	for _, thread := range s.threads {
		if thread.ChannelID == channelID {
			return thread, nil
		}
	}
	return nil, service.ErrThreadNotFound
}

func (s *stubThreads) ListMessages(_ context.Context, threadID string, limit, offset int) ([]*dbmysql.ThreadMessage, error) {
	all := s.messages[threadID]
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

type routerFixture struct {
	handler http.Handler
	issuer  *TokenIssuer
	threads *stubThreads
}

func newRouterFixture(t *testing.T, burst int) *routerFixture {
	t.Helper()
	cfg := &config.Config{Auth: config.AuthConfig{JWTSecret: "s3cret", TokenTTL: time.Hour, RPS: 1, Burst: burst}}
	log, _ := test.NewNullLogger()

	threads := &stubThreads{
		threads: map[string]*dbmysql.Thread{
			"t1": {ID: "t1", ChannelID: "c1", UserID: "100", Status: dbmysql.ThreadOpen},
		},
		messages: map[string][]*dbmysql.ThreadMessage{
			"t1": {
				{ID: 1, ThreadID: "t1", MessageType: dbmysql.MessageFromUser, Body: "hello"},
				{ID: 2, ThreadID: "t1", MessageType: dbmysql.MessageToUser, Body: "hi"},
				{ID: 3, ThreadID: "t1", MessageType: dbmysql.MessageChat, Body: "internal"},
			},
		},
	}
	issuer := NewTokenIssuer(cfg)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# metrics"))
	})

	router := NewRouter(cfg, Routes{Handler: NewHandler(threads, log), Metrics: metrics}, issuer, log)
	return &routerFixture{handler: router, issuer: issuer, threads: threads}
}

func (f *routerFixture) get(t *testing.T, path string, authorized bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorized {
		token, err := f.issuer.GenerateToken("7", "alice")
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth_IsPublic(t *testing.T) {
	f := newRouterFixture(t, 10)
	rec := f.get(t, "/api/v1/health", false)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestThreads_RequireAuth(t *testing.T) {
	f := newRouterFixture(t, 10)

	assert.Equal(t, http.StatusUnauthorized, f.get(t, "/api/v1/threads/t1", false).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/threads/t1", nil)
	req.Header.Set("Authorization", "Token abc")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestThreads_QueryToken(t *testing.T) {
	f := newRouterFixture(t, 10)
	token, err := f.issuer.GenerateToken("7", "alice")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/threads/t1?token="+token, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetThread(t *testing.T) {
	f := newRouterFixture(t, 10)

	rec := f.get(t, "/api/v1/threads/t1", true)
	require.Equal(t, http.StatusOK, rec.Code)
	var thread dbmysql.Thread
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &thread))
	assert.Equal(t, "c1", thread.ChannelID)

	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/v1/threads/nope", true).Code)

	byChannel := f.get(t, "/api/v1/threads/by-channel/c1", true)
	assert.Equal(t, http.StatusOK, byChannel.Code)
	assert.Contains(t, byChannel.Body.String(), `"id":"t1"`)
}

func TestGetThread_StoreError(t *testing.T) {
	f := newRouterFixture(t, 10)
	f.threads.err = errors.New("db down")

	assert.Equal(t, http.StatusInternalServerError, f.get(t, "/api/v1/threads/t1", true).Code)
}

func TestListMessages_Pagination(t *testing.T) {
	f := newRouterFixture(t, 10)

	rec := f.get(t, "/api/v1/threads/t1/messages?limit=2&offset=1", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var body messagesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Limit)
	assert.Equal(t, 1, body.Offset)
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "hi", body.Messages[0].Body)
	assert.Equal(t, "internal", body.Messages[1].Body)

	empty := f.get(t, "/api/v1/threads/t1/messages?offset=10", true)
	assert.Contains(t, empty.Body.String(), `"messages":[]`)
}

func TestListMessages_BadInput(t *testing.T) {
	f := newRouterFixture(t, 10)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/threads/t1/messages?limit=abc", true).Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/threads/t1/messages?limit=0", true).Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/threads/t1/messages?offset=-1", true).Code)
	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/v1/threads/nope/messages", true).Code)
}

func TestRateLimit(t *testing.T) {
	f := newRouterFixture(t, 2)

	assert.Equal(t, http.StatusOK, f.get(t, "/api/v1/threads/t1", true).Code)
	assert.Equal(t, http.StatusOK, f.get(t, "/api/v1/threads/t1", true).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.get(t, "/api/v1/threads/t1", true).Code)
}

func TestMetricsRoute(t *testing.T) {
	f := newRouterFixture(t, 10)
	rec := f.get(t, "/metrics", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics", rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	f := newRouterFixture(t, 10)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

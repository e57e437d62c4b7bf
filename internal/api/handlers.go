package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"gomodmail/internal/dbmysql"
	"gomodmail/internal/thread/service"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// ThreadReader is the read side of the relay engine.
type ThreadReader interface {
	FindByID(ctx context.Context, id string) (*dbmysql.Thread, error)
	FindByChannelID(ctx context.Context, channelID string) (*dbmysql.Thread, error)
	ListMessages(ctx context.Context, threadID string, limit, offset int) ([]*dbmysql.ThreadMessage, error)
}

type Handler struct {
	threads ThreadReader
	log     logrus.FieldLogger
	started time.Time
}

func NewHandler(threads ThreadReader, log logrus.FieldLogger) *Handler {
	return &Handler{threads: threads, log: log, started: time.Now()}
}

type messagesResponse struct {
	ThreadID string                   `json:"thread_id"`
	Limit    int                      `json:"limit"`
	Offset   int                      `json:"offset"`
	Messages []*dbmysql.ThreadMessage `json:"messages"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "modmail",
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	})
}

func (h *Handler) getThread(w http.ResponseWriter, r *http.Request) {
	thread, err := h.threads.FindByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

func (h *Handler) getThreadByChannel(w http.ResponseWriter, r *http.Request) {
	thread, err := h.threads.FindByChannelID(r.Context(), mux.Vars(r)["channelId"])
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	threadID := mux.Vars(r)["id"]

	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	if _, err := h.threads.FindByID(r.Context(), threadID); err != nil {
		h.writeLookupError(w, err)
		return
	}

	messages, err := h.threads.ListMessages(r.Context(), threadID, limit, offset)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	if messages == nil {
		messages = []*dbmysql.ThreadMessage{}
	}

	writeJSON(w, http.StatusOK, messagesResponse{
		ThreadID: threadID,
		Limit:    limit,
		Offset:   offset,
		Messages: messages,
	})
}

func (h *Handler) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrThreadNotFound) {
		writeError(w, http.StatusNotFound, "thread not found")
		return
	}
	h.log.WithError(err).Error("Transcript lookup failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

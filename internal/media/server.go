package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"gomodmail/internal/dbmongo"
)

// Opener reads stored attachments back out.
type Opener interface {
	OpenAttachment(ctx context.Context, fileID string) (io.ReadCloser, *dbmongo.StoredAttachment, error)
}

// HTTPServer streams archived attachments that transcript links point at.
type HTTPServer struct {
	storage Opener
	log     logrus.FieldLogger
}

func NewHTTPServer(storage Opener, log logrus.FieldLogger) *HTTPServer {
	return &HTTPServer{storage: storage, log: log}
}

func (s *HTTPServer) Register(router *mux.Router) {
	router.HandleFunc("/media/{fileId}", s.serveFile).Methods(http.MethodGet)
}

func (s *HTTPServer) serveFile(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["fileId"]

	reader, stored, err := s.storage.OpenAttachment(r.Context(), fileID)
	if errors.Is(err, dbmongo.ErrAttachmentNotFound) {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.WithError(err).WithField("file_id", fileID).Error("Failed to open attachment")
		http.Error(w, "Failed to open file", http.StatusInternalServerError)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", contentType(stored))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", stored.Size))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", stored.Filename))

	if _, err := io.Copy(w, reader); err != nil {
		s.log.WithError(err).WithField("file_id", fileID).Warn("Error streaming attachment")
	}
}

// contentType prefers what the platform reported and falls back to the extension.
func contentType(stored *dbmongo.StoredAttachment) string {
	if stored.ContentType != "" {
		return stored.ContentType
	}
	switch strings.ToLower(filepath.Ext(stored.Filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".txt", ".log":
		return "text/plain; charset=utf-8"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

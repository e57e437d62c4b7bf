package dbmongo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gomodmail/internal/platform"
)

var ErrAttachmentNotFound = errors.New("attachment not found")

// StoredAttachment describes one GridFS file.
type StoredAttachment struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	SourceID    string    `json:"source_id"`
	StoredAt    time.Time `json:"stored_at"`
}

// AttachmentStorage copies relayed attachments into GridFS so transcript links
// outlive the platform's CDN.
type AttachmentStorage struct {
	gridFS  *gridfs.Bucket
	baseURL string
}

func NewAttachmentStorage(mongoClient *MongoClient, baseURL string) *AttachmentStorage {
	return &AttachmentStorage{
		gridFS:  mongoClient.GridFS,
		baseURL: baseURL,
	}
}

// StoreAttachment uploads the content and returns the URL it is served from.
func (s *AttachmentStorage) StoreAttachment(ctx context.Context, att platform.Attachment, content io.Reader) (string, error) {
	metadata := bson.M{
		"content_type": att.ContentType,
		"source_id":    att.ID,
		"source_url":   att.URL,
		"stored_at":    time.Now().UTC(),
	}

	opts := options.GridFSUpload().SetMetadata(metadata)
	stream, err := s.gridFS.OpenUploadStream(att.Filename, opts)
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	defer stream.Close()

	if err := stream.SetWriteDeadline(deadline(ctx)); err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	if _, err := io.Copy(stream, content); err != nil {
		stream.Abort()
		return "", fmt.Errorf("file copy failed: %w", err)
	}

	return s.FileURL(stream.FileID.(primitive.ObjectID).Hex()), nil
}

// OpenAttachment streams a stored attachment. The caller closes the reader.
func (s *AttachmentStorage) OpenAttachment(ctx context.Context, fileID string) (io.ReadCloser, *StoredAttachment, error) {
	objectID, err := primitive.ObjectIDFromHex(fileID)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid file ID %q: %w", fileID, ErrAttachmentNotFound)
	}

	stream, err := s.gridFS.OpenDownloadStream(objectID)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, nil, fmt.Errorf("file %s: %w", fileID, ErrAttachmentNotFound)
		}
		return nil, nil, fmt.Errorf("download failed: %w", err)
	}
	if err := stream.SetReadDeadline(deadline(ctx)); err != nil {
		stream.Close()
		return nil, nil, fmt.Errorf("download failed: %w", err)
	}

	file := stream.GetFile()
	var metadata bson.M
	if file.Metadata != nil {
		bson.Unmarshal(file.Metadata, &metadata)
	}

	return stream, &StoredAttachment{
		ID:          fileID,
		Filename:    file.Name,
		ContentType: getStringFromMap(metadata, "content_type"),
		Size:        file.Length,
		SourceID:    getStringFromMap(metadata, "source_id"),
		StoredAt:    file.UploadDate,
	}, nil
}

func (s *AttachmentStorage) DeleteAttachment(ctx context.Context, fileID string) error {
	objectID, err := primitive.ObjectIDFromHex(fileID)
	if err != nil {
		return fmt.Errorf("invalid file ID %q: %w", fileID, ErrAttachmentNotFound)
	}
	return s.gridFS.DeleteContext(ctx, objectID)
}

// FileURL joins the media base URL and a file id.
func (s *AttachmentStorage) FileURL(fileID string) string {
	return strings.TrimRight(s.baseURL, "/") + "/" + fileID
}

// deadline maps the context deadline onto GridFS stream deadlines; zero means none.
func deadline(ctx context.Context) time.Time {
	d, _ := ctx.Deadline()
	return d
}

func getStringFromMap(m bson.M, key string) string {
	if m == nil {
		return ""
	}
	if val, ok := m[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

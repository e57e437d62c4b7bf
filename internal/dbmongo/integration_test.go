package dbmongo

import (
	"context"
	"io"
	"os"
	"path"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gomodmail/internal/config"
	"gomodmail/internal/platform"
)

// Runs against a live MongoDB when MONGO_INTEGRATION=1.
func TestAttachmentStorage_Integration(t *testing.T) {
	if os.Getenv("MONGO_INTEGRATION") != "1" {
		t.Skip("set MONGO_INTEGRATION=1 to run against MongoDB")
	}

	cfg := config.LoadConfig()
	cfg.MongoDB.Database = "modmail_test"

	client, err := NewMongoConnection(cfg)
	require.NoError(t, err)
	ctx := context.Background()
	defer client.Close(ctx)

	storage := NewAttachmentStorage(client, "http://localhost:8080/media/")
	content := "attachment body"

	url, err := storage.StoreAttachment(ctx, platform.Attachment{
		ID: "att-1", Filename: "note.txt", ContentType: "text/plain",
	}, strings.NewReader(content))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://localhost:8080/media/"))

	fileID := path.Base(url)
	reader, info, err := storage.OpenAttachment(ctx, fileID)
	require.NoError(t, err)
	body, err := io.ReadAll(reader)
	reader.Close()
	require.NoError(t, err)

	assert.Equal(t, content, string(body))
	assert.Equal(t, "note.txt", info.Filename)
	assert.Equal(t, "text/plain", info.ContentType)
	assert.Equal(t, "att-1", info.SourceID)
	assert.Equal(t, int64(len(content)), info.Size)

	require.NoError(t, storage.DeleteAttachment(ctx, fileID))
	_, _, err = storage.OpenAttachment(ctx, fileID)
	assert.ErrorIs(t, err, ErrAttachmentNotFound)
}

package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gomodmail/internal/dbmysql"
)

func TestWriteTranscript(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	thread := &dbmysql.Thread{ID: "t1", UserID: "100", UserName: "bob", Status: dbmysql.ThreadClosed}
	messages := []*dbmysql.ThreadMessage{
		{ID: 1, MessageType: dbmysql.MessageFromUser, UserName: "bob", Body: "hello\nagain", CreatedAt: at},
		{ID: 2, MessageType: dbmysql.MessageToUser, UserName: "Moderator (alice)", Body: "hi", IsAnonymous: true, CreatedAt: at},
		{ID: 3, MessageType: dbmysql.MessageSystem, Body: "Closing thread...", CreatedAt: at},
	}

	var text bytes.Buffer
	require.NoError(t, writeTranscript(&text, "text", thread, messages))
	assert.Equal(t,
		"# Thread t1 with bob (100), closed\n"+
			"[2024-05-01 12:30:00] [FROM_USER] bob: hello\n    again\n"+
			"[2024-05-01 12:30:00] [TO_USER] Moderator (alice) (anonymous): hi\n"+
			"[2024-05-01 12:30:00] [SYSTEM] System: Closing thread...\n",
		text.String())

	var raw bytes.Buffer
	require.NoError(t, writeTranscript(&raw, "json", thread, messages))
	var decoded struct {
		Thread   dbmysql.Thread           `json:"thread"`
		Messages []dbmysql.ThreadMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(raw.Bytes(), &decoded))
	assert.Equal(t, "t1", decoded.Thread.ID)
	assert.Len(t, decoded.Messages, 3)

	assert.Error(t, writeTranscript(&raw, "yaml", thread, messages))
}

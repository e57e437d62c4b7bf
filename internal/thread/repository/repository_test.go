package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gomodmail/internal/dbmysql"
)

func setupTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
	}

	return gormDB, mock, cleanup
}

func TestMessageRepository_Append(t *testing.T) {
	tests := []struct {
		name        string
		mockSetup   func(sqlmock.Sqlmock)
		expectError bool
	}{
		{
			name: "successful append",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `thread_messages`")).
					WillReturnResult(sqlmock.NewResult(7, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "database error",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `thread_messages`")).
					WillReturnError(assert.AnError)
				mock.ExpectRollback()
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, cleanup := setupTestDB(t)
			defer cleanup()

			tt.mockSetup(mock)

			msg := &dbmysql.ThreadMessage{
				ThreadID:    "thread-1",
				MessageType: dbmysql.MessageFromUser,
				UserID:      "42",
				UserName:    "alice",
				Body:        "hello",
				CreatedAt:   time.Now().UTC(),
			}
			err := NewMessageRepository(db).Append(context.Background(), msg)

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, uint64(7), msg.ID)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestMessageRepository_ListByThread(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	base := time.Now().Add(-time.Hour)
	rows := sqlmock.NewRows([]string{"id", "thread_id", "message_type", "user_id", "user_name", "body", "created_at"}).
		AddRow(1, "thread-1", "from_user", "42", "alice", "First", base).
		AddRow(2, "thread-1", "to_user", "7", "(Mod) bob", "Second", base.Add(time.Minute))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `thread_messages` WHERE thread_id = ? ORDER BY created_at ASC,id ASC")).
		WithArgs("thread-1").
		WillReturnRows(rows)

	messages, err := NewMessageRepository(db).ListByThread(context.Background(), "thread-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "First", messages[0].Body)
	assert.Equal(t, dbmysql.MessageToUser, messages[1].MessageType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepository_UpdateChatMessage_NotFound(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `thread_messages` SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := NewMessageRepository(db).UpdateChatMessage(context.Background(), "thread-1", "m-1", "edited", "m-2")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestThreadRepository_ByID(t *testing.T) {
	tests := []struct {
		name      string
		mockSetup func(sqlmock.Sqlmock)
		wantErr   error
	}{
		{
			name: "found",
			mockSetup: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"id", "channel_id", "user_id", "status", "closed"}).
					AddRow("thread-1", "c-1", "42", "open", false)
				mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `threads` WHERE id = ?")).
					WillReturnRows(rows)
			},
		},
		{
			name: "missing",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `threads` WHERE id = ?")).
					WillReturnRows(sqlmock.NewRows([]string{"id"}))
			},
			wantErr: ErrNotFound,
		},
		{
			name: "database error",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `threads`")).
					WillReturnError(assert.AnError)
			},
			wantErr: assert.AnError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, cleanup := setupTestDB(t)
			defer cleanup()
			tt.mockSetup(mock)

			thread, err := NewThreadRepository(db).ByID(context.Background(), "thread-1")
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.Nil(t, thread)
			} else {
				require.NoError(t, err)
				assert.Equal(t, dbmysql.ThreadOpen, thread.Status)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestThreadRepository_SetStatus_Missing(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `threads` SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := NewThreadRepository(db).SetStatus(context.Background(), "nope", dbmysql.ThreadSuspended)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

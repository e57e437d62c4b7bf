package dbmysql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestThread_SetStatus(t *testing.T) {
	thread := &Thread{}

	thread.SetStatus(ThreadOpen)
	assert.True(t, thread.IsOpen())
	assert.False(t, thread.Closed)

	thread.SetStatus(ThreadSuspended)
	assert.True(t, thread.IsSuspended())
	assert.False(t, thread.Closed)

	thread.SetStatus(ThreadClosed)
	assert.True(t, thread.IsClosed())
	assert.True(t, thread.Closed)
}

func TestThread_HasScheduledClose(t *testing.T) {
	at := time.Now()
	thread := &Thread{Status: ThreadOpen}
	assert.False(t, thread.HasScheduledClose())

	thread.ScheduledCloseAt = &at
	assert.True(t, thread.HasScheduledClose())

	thread.Status = ThreadSuspended
	assert.False(t, thread.HasScheduledClose())
}

func TestAlertUsers_Encoding(t *testing.T) {
	empty, err := EncodeAlertUsers(nil)
	require.NoError(t, err)
	assert.Nil(t, empty)

	raw, err := EncodeAlertUsers([]string{"1", "2"})
	require.NoError(t, err)

	thread := &Thread{ID: "t", AlertUsers: raw}
	ids, err := thread.AlertUserIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids)

	broken := &Thread{ID: "t", AlertUsers: datatypes.JSON(`{`)}
	_, err = broken.AlertUserIDs()
	assert.Error(t, err)
}

func TestRoleOverrides_Encoding(t *testing.T) {
	empty, err := EncodeRoleOverrides(map[string]string{})
	require.NoError(t, err)
	assert.Nil(t, empty)

	overrides, err := (&Thread{}).RoleOverrides()
	require.NoError(t, err)
	assert.Empty(t, overrides)

	raw, err := EncodeRoleOverrides(map[string]string{"7": "r-admin"})
	require.NoError(t, err)
	overrides, err = (&Thread{StaffRoleOverrides: raw}).RoleOverrides()
	require.NoError(t, err)
	assert.Equal(t, "r-admin", overrides["7"])
}

package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUser_Tag(t *testing.T) {
	tests := []struct {
		name string
		user User
		want string
	}{
		{name: "legacy discriminator", user: User{Username: "alice", Discriminator: "0420"}, want: "alice#0420"},
		{name: "migrated username", user: User{Username: "alice", Discriminator: "0"}, want: "alice"},
		{name: "no discriminator", user: User{Username: "bob"}, want: "bob"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.Tag())
		})
	}
}

func TestMember_HasRole(t *testing.T) {
	m := Member{RoleIDs: []string{"1", "2"}}
	assert.True(t, m.HasRole("2"))
	assert.False(t, m.HasRole("3"))
}

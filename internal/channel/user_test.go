package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUser(t *testing.T) {
	u := NewUser("alice")
	assert.Equal(t, "alice", u.Name)
	assert.Equal(t, float64(-1), u.Rank, "rank is unknown until the server reports it")
}

func TestUserListAddRemove(t *testing.T) {
	ul := NewUserList()
	ul.Add(NewUser("alice"))
	ul.Add(NewUser("bob"))

	assert.Equal(t, 2, ul.Len())
	assert.True(t, ul.Contains("alice"))
	assert.False(t, ul.Contains("Alice"), "names are case-sensitive")

	u, err := ul.Get("bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", u.Name)

	_, err = ul.Get("carol")
	assert.Error(t, err)

	ul.Remove("alice")
	assert.Equal(t, 1, ul.Len())

	// Unknown removals are tolerated; leave events can race the roster
	// snapshot.
	ul.Remove("carol")
	assert.Equal(t, 1, ul.Len())
}

func TestUserListAddReplaces(t *testing.T) {
	ul := NewUserList()
	ul.Add(NewUser("alice"))

	fresh := NewUser("alice")
	fresh.Rank = 3
	ul.Add(fresh)

	assert.Equal(t, 1, ul.Len())
	u, err := ul.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, float64(3), u.Rank)
}

func TestUserListLeader(t *testing.T) {
	ul := NewUserList()
	ul.Add(NewUser("alice"))

	t.Run("unknown leader", func(t *testing.T) {
		assert.Error(t, ul.SetLeader("bob"))
		assert.Nil(t, ul.Leader())
	})

	t.Run("assign and clear", func(t *testing.T) {
		require.NoError(t, ul.SetLeader("alice"))
		require.NotNil(t, ul.Leader())
		assert.Equal(t, "alice", ul.Leader().Name)

		require.NoError(t, ul.SetLeader(""))
		assert.Nil(t, ul.Leader())
	})

	t.Run("removing the leader clears leadership", func(t *testing.T) {
		require.NoError(t, ul.SetLeader("alice"))
		ul.Remove("alice")
		assert.Nil(t, ul.Leader())
	})
}

func TestUserListCount(t *testing.T) {
	ul := NewUserList()
	ul.Add(NewUser("alice"))
	ul.SetCount(10)

	assert.Equal(t, 1, ul.Len())
	assert.Equal(t, 10, ul.Count(), "connection count includes anonymous viewers")

	ul.Clear()
	assert.Zero(t, ul.Len())
	assert.Equal(t, 10, ul.Count(), "count arrives on its own event and survives a roster clear")
}

func TestUserListNames(t *testing.T) {
	ul := NewUserList()
	ul.Add(NewUser("zed"))
	ul.Add(NewUser("alice"))
	assert.Equal(t, []string{"alice", "zed"}, ul.Names())
}

package channel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckPermission(t *testing.T) {
	c := New("testroom", "")
	c.SetPermissions(map[string]float64{
		"playlistadd": 1,
		"chat":        0,
	})

	user := func(rank float64) *User {
		u := NewUser("alice")
		u.Rank = rank
		return u
	}

	t.Run("rank meets minimum", func(t *testing.T) {
		assert.NoError(t, c.CheckPermission("playlistadd", user(1)))
		assert.NoError(t, c.CheckPermission("playlistadd", user(2)))
	})

	t.Run("rank within precision passes", func(t *testing.T) {
		assert.NoError(t, c.CheckPermission("playlistadd", user(0.9999)))
	})

	t.Run("rank below precision fails", func(t *testing.T) {
		err := c.CheckPermission("playlistadd", user(0.9998))
		require.Error(t, err)
		assert.True(t, IsPermissionDenied(err))
		assert.True(t, errors.Is(err, ErrChannel))
		assert.Contains(t, err.Error(), `user "alice"`)
	})

	t.Run("unknown action is not a denial", func(t *testing.T) {
		err := c.CheckPermission("teleport", user(255))
		require.Error(t, err)
		assert.False(t, IsPermissionDenied(err))
	})
}

func TestHasPermission(t *testing.T) {
	c := New("testroom", "")
	c.SetPermissions(map[string]float64{"chat": 1.5})

	u := NewUser("bob")

	u.Rank = 2
	ok, err := c.HasPermission("chat", u)
	require.NoError(t, err)
	assert.True(t, ok)

	u.Rank = 1
	ok, err = c.HasPermission("chat", u)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.HasPermission("teleport", u)
	assert.Error(t, err)
}

func TestChannelMetadata(t *testing.T) {
	c := New("testroom", "hunter2")
	assert.Equal(t, "testroom", c.Name)
	assert.Equal(t, "hunter2", c.Password)

	c.SetMOTD("welcome")
	assert.Equal(t, "welcome", c.MOTD())

	c.SetCSSJS("body{}", "init()")
	css, js := c.CSSJS()
	assert.Equal(t, "body{}", css)
	assert.Equal(t, "init()", js)

	c.SetOptions(map[string]any{"pagetitle": "Test"})
	v, ok := c.Option("pagetitle")
	require.True(t, ok)
	assert.Equal(t, "Test", v)

	c.SetEmotes([]Emote{{Name: ":x:", Image: "x.png"}})
	assert.Len(t, c.Emotes(), 1)

	c.SetDrinkCount(3)
	assert.Equal(t, 3, c.DrinkCount())

	c.SetVoteskip(2, 5)
	count, need := c.Voteskip()
	assert.Equal(t, 2, count)
	assert.Equal(t, 5, need)
}

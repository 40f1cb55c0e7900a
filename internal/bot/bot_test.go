package bot

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cynwrig/synctube/internal/channel"
	"github.com/cynwrig/synctube/internal/media"
	"github.com/cynwrig/synctube/internal/transport"
)

type emitCall struct {
	name    string
	payload any
}

// fakeConn scripts Emit confirmations: each emit consumes one batch of
// candidate events and returns the first one the matcher accepts, or
// nil (timeout) when none does.
type fakeConn struct {
	mu        sync.Mutex
	emits     []emitCall
	responses [][]transport.Event
	closed    bool
}

func (c *fakeConn) respondWith(events ...transport.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, events)
}

func (c *fakeConn) Emit(ctx context.Context, name string, payload any, match transport.Matcher, timeout time.Duration) (*transport.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emits = append(c.emits, emitCall{name: name, payload: payload})
	if match == nil {
		return nil, nil
	}
	if len(c.responses) == 0 {
		return nil, nil
	}
	candidates := c.responses[0]
	c.responses = c.responses[1:]
	for _, ev := range candidates {
		if match(ev) {
			ev := ev
			return &ev, nil
		}
	}
	return nil, nil
}

func (c *fakeConn) Receive(ctx context.Context) (transport.Event, error) {
	<-ctx.Done()
	return transport.Event{}, ctx.Err()
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) emitted() []emitCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]emitCall(nil), c.emits...)
}

func ev(name, data string) transport.Event {
	return transport.Event{Name: name, Data: json.RawMessage(data)}
}

// newTestBot builds a connected bot with a permissive permission table
// and its own roster entry at rank 3.
func newTestBot(t *testing.T) (*Bot, *fakeConn) {
	t.Helper()
	b := New(Config{
		Domain:  "example.com",
		Channel: "testroom",
		User:    "bot",
		Logger:  zerolog.Nop(),
	})
	conn := &fakeConn{}
	b.conn = conn
	b.user.Rank = 3
	b.channel.Userlist.Add(b.user)
	b.channel.SetPermissions(map[string]float64{
		"chat":            0,
		"chatclear":       2,
		"kick":            2,
		"leaderctl":       2,
		"addnontemp":      2,
		"oplaylistadd":    1,
		"oplaylistnext":   1.5,
		"oplaylistdelete": 2,
		"oplaylistmove":   1.5,
		"oplaylistjump":   1.5,
		"playlistadd":     3,
	})
	return b, conn
}

func TestChat(t *testing.T) {
	ctx := context.Background()

	t.Run("success returns own echo", func(t *testing.T) {
		b, conn := newTestBot(t)
		conn.respondWith(
			ev("chatMsg", `{"username":"someone","msg":"hi","time":1}`),
			ev("chatMsg", `{"username":"bot","msg":"hi","time":2}`),
		)

		echo, err := b.Chat(ctx, "hi", nil)
		require.NoError(t, err)
		assert.Equal(t, "bot", echo.Username)
		assert.Equal(t, "hi", echo.Msg)

		emits := conn.emitted()
		require.Len(t, emits, 1)
		assert.Equal(t, "chatMsg", emits[0].name)
	})

	t.Run("timeout is a channel error", func(t *testing.T) {
		b, _ := newTestBot(t)

		_, err := b.Chat(ctx, "hi", nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, channel.ErrChannel)
		assert.False(t, channel.IsPermissionDenied(err))
	})

	t.Run("flood control is a permission error", func(t *testing.T) {
		b, conn := newTestBot(t)
		conn.respondWith(ev("noflood", `{"msg":"slow down"}`))

		_, err := b.Chat(ctx, "hi", nil)
		require.Error(t, err)
		assert.True(t, channel.IsPermissionDenied(err))
		assert.Contains(t, err.Error(), "slow down")
	})

	t.Run("muted fails before emitting", func(t *testing.T) {
		b, conn := newTestBot(t)
		b.user.Muted = true

		_, err := b.Chat(ctx, "hi", nil)
		require.Error(t, err)
		assert.True(t, channel.IsPermissionDenied(err))
		assert.Empty(t, conn.emitted())
	})

	t.Run("insufficient rank", func(t *testing.T) {
		b, conn := newTestBot(t)
		b.channel.SetPermissions(map[string]float64{"chat": 5})

		_, err := b.Chat(ctx, "hi", nil)
		require.Error(t, err)
		assert.True(t, channel.IsPermissionDenied(err))
		assert.Empty(t, conn.emitted())
	})
}

func TestKick(t *testing.T) {
	ctx := context.Background()

	addTarget := func(b *Bot, rank float64) {
		u := channel.NewUser("troll")
		u.Rank = rank
		b.channel.Userlist.Add(u)
	}

	t.Run("lower ranked target", func(t *testing.T) {
		b, conn := newTestBot(t)
		addTarget(b, 1)
		conn.respondWith(ev("userLeave", `{"name":"troll"}`))

		require.NoError(t, b.Kick(ctx, "troll", "spam"))
	})

	t.Run("equal rank fails locally", func(t *testing.T) {
		b, conn := newTestBot(t)
		addTarget(b, 3)

		err := b.Kick(ctx, "troll", "spam")
		require.Error(t, err)
		assert.True(t, channel.IsPermissionDenied(err))
		assert.Empty(t, conn.emitted())
	})

	t.Run("unknown target", func(t *testing.T) {
		b, _ := newTestBot(t)
		assert.Error(t, b.Kick(ctx, "ghost", "spam"))
	})

	t.Run("server rejection", func(t *testing.T) {
		b, conn := newTestBot(t)
		addTarget(b, 1)
		conn.respondWith(ev("errorMsg", `{"msg":"no kicking today"}`))

		err := b.Kick(ctx, "troll", "spam")
		require.Error(t, err)
		assert.True(t, channel.IsPermissionDenied(err))
		assert.Contains(t, err.Error(), "no kicking today")
	})
}

func TestAddMedia(t *testing.T) {
	ctx := context.Background()
	link := media.Link{Type: "yt", ID: "dQw4w9WgXcQ"}

	t.Run("success", func(t *testing.T) {
		b, conn := newTestBot(t)
		conn.respondWith(ev("queue",
			`{"item":{"uid":7,"temp":true,"queueby":"bot","media":{"type":"yt","id":"dQw4w9WgXcQ","title":"A Song","seconds":212}},"after":"append"}`))

		item, err := b.AddMedia(ctx, link, true, true)
		require.NoError(t, err)
		assert.Equal(t, 7, item.UID)
		assert.Equal(t, "A Song", item.Title)
		assert.Equal(t, 212, item.Duration)
		assert.Equal(t, link, item.Link)

		// Local state only changes when the confirmation flows back
		// through the event loop.
		assert.Zero(t, b.channel.Playlist.Len())
	})

	t.Run("ignores other users queueing the same media", func(t *testing.T) {
		b, conn := newTestBot(t)
		conn.respondWith(ev("queue",
			`{"item":{"uid":8,"queueby":"someone","media":{"type":"yt","id":"dQw4w9WgXcQ"}}}`))

		_, err := b.AddMedia(ctx, link, true, true)
		require.Error(t, err)
		assert.ErrorIs(t, err, channel.ErrChannel)
	})

	t.Run("queue failure", func(t *testing.T) {
		b, conn := newTestBot(t)
		conn.respondWith(ev("queueFail", `{"msg":"This item is already on the playlist"}`))

		_, err := b.AddMedia(ctx, link, true, true)
		require.Error(t, err)
		assert.ErrorIs(t, err, channel.ErrChannel)
		assert.Contains(t, err.Error(), "already on the playlist")
	})

	t.Run("locked playlist needs the stricter action", func(t *testing.T) {
		b, conn := newTestBot(t)
		b.channel.Playlist.SetLocked(true)
		b.channel.SetPermissions(map[string]float64{"playlistadd": 5})

		_, err := b.AddMedia(ctx, link, true, true)
		require.Error(t, err)
		assert.True(t, channel.IsPermissionDenied(err))
		assert.Empty(t, conn.emitted())
	})

	t.Run("non-temporary needs addnontemp", func(t *testing.T) {
		b, conn := newTestBot(t)
		b.channel.SetPermissions(map[string]float64{"oplaylistadd": 0, "addnontemp": 5})

		_, err := b.AddMedia(ctx, link, true, false)
		require.Error(t, err)
		assert.True(t, channel.IsPermissionDenied(err))
		assert.Empty(t, conn.emitted())
	})
}

func TestPause(t *testing.T) {
	ctx := context.Background()

	t.Run("not the leader", func(t *testing.T) {
		b, _ := newTestBot(t)
		err := b.Pause(ctx)
		require.Error(t, err)
		assert.True(t, channel.IsPermissionDenied(err))
	})

	t.Run("nothing playing is a no-op", func(t *testing.T) {
		b, conn := newTestBot(t)
		require.NoError(t, b.channel.Userlist.SetLeader("bot"))

		require.NoError(t, b.Pause(ctx))
		assert.Empty(t, conn.emitted())
	})

	t.Run("pauses the current item", func(t *testing.T) {
		b, conn := newTestBot(t)
		require.NoError(t, b.channel.Userlist.SetLeader("bot"))
		require.NoError(t, b.channel.Playlist.Add(nil, &channel.PlaylistItem{
			UID: 1, Link: media.Link{Type: "yt", ID: "x"},
		}))
		require.NoError(t, b.channel.Playlist.SetCurrent(1))

		require.NoError(t, b.Pause(ctx))
		emits := conn.emitted()
		require.Len(t, emits, 1)
		assert.Equal(t, "mediaUpdate", emits[0].name)
	})
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("guest rate limit sleeps and retries", func(t *testing.T) {
		b, conn := newTestBot(t)
		var slept []time.Duration
		b.sleep = func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}
		conn.respondWith(ev("login", `{"success":false,"error":"guest logins are restricted to one per 300 seconds."}`))
		conn.respondWith(ev("login", `{"success":true,"name":"bot"}`))

		require.NoError(t, b.authenticate(ctx))
		assert.Equal(t, []time.Duration{300 * time.Second}, slept)
	})

	t.Run("rate limit phrase mid-message is fatal", func(t *testing.T) {
		b, conn := newTestBot(t)
		var slept []time.Duration
		b.sleep = func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}
		conn.respondWith(ev("login", `{"success":false,"error":"Sorry, guest logins are restricted to one per 300 seconds."}`))

		err := b.authenticate(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrLogin)
		assert.Empty(t, slept, "only messages starting with the rate limit phrase trigger a retry")
	})

	t.Run("other rejections are fatal", func(t *testing.T) {
		b, conn := newTestBot(t)
		conn.respondWith(ev("login", `{"success":false,"error":"Invalid username"}`))

		err := b.authenticate(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrLogin)
	})

	t.Run("server assigned name is adopted", func(t *testing.T) {
		b, conn := newTestBot(t)
		conn.respondWith(ev("login", `{"success":true,"name":"bot2"}`))

		require.NoError(t, b.authenticate(ctx))
		assert.Equal(t, "bot2", b.user.Name)
	})
}

func TestLoginNeedPassword(t *testing.T) {
	conn := &fakeConn{}
	conn.respondWith(ev("needPassword", `true`))

	b := New(Config{
		Domain:  "example.com",
		Channel: "testroom",
		User:    "bot",
		Logger:  zerolog.Nop(),
		Dialer: func(ctx context.Context, serverURL string) (transport.Conn, error) {
			return conn, nil
		},
	})
	b.server = "wss://fake/socket.io/"

	err := b.login(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLogin)
}

func TestBuiltinHandlers(t *testing.T) {
	ctx := context.Background()

	t.Run("own rank", func(t *testing.T) {
		b, _ := newTestBot(t)
		require.NoError(t, b.Trigger(ctx, ev("rank", `2.5`)))
		assert.Equal(t, 2.5, b.user.Rank)
	})

	t.Run("kick is fatal", func(t *testing.T) {
		b, _ := newTestBot(t)
		err := b.Trigger(ctx, ev("kick", `{"reason":"bye"}`))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrKicked)
	})

	t.Run("roster events", func(t *testing.T) {
		b, _ := newTestBot(t)
		require.NoError(t, b.Trigger(ctx, ev("addUser",
			`{"name":"alice","rank":1,"meta":{"afk":false}}`)))
		require.NoError(t, b.Trigger(ctx, ev("setUserRank", `{"name":"alice","rank":2}`)))
		require.NoError(t, b.Trigger(ctx, ev("setAFK", `{"name":"alice","afk":true}`)))

		u, err := b.channel.Userlist.Get("alice")
		require.NoError(t, err)
		assert.Equal(t, float64(2), u.Rank)
		assert.True(t, u.AFK)

		require.NoError(t, b.Trigger(ctx, ev("userLeave", `{"name":"alice"}`)))
		assert.False(t, b.channel.Userlist.Contains("alice"))
	})

	t.Run("own record routes onto the bot user", func(t *testing.T) {
		b, _ := newTestBot(t)
		require.NoError(t, b.Trigger(ctx, ev("addUser",
			`{"name":"bot","rank":4,"meta":{"muted":true}}`)))
		assert.Equal(t, float64(4), b.user.Rank)
		assert.True(t, b.user.Muted)
	})

	t.Run("playlist events", func(t *testing.T) {
		b, _ := newTestBot(t)
		require.NoError(t, b.Trigger(ctx, ev("playlist",
			`[{"uid":1,"media":{"title":"one"}},{"uid":2,"media":{"title":"two"}}]`)))
		assert.Equal(t, 2, b.channel.Playlist.Len())

		require.NoError(t, b.Trigger(ctx, ev("queue",
			`{"item":{"uid":3,"media":{"title":"three"}},"after":1}`)))
		queue := b.channel.Playlist.Queue()
		require.Len(t, queue, 3)
		assert.Equal(t, 3, queue[1].UID)

		require.NoError(t, b.Trigger(ctx, ev("setCurrent", `3`)))
		require.NotNil(t, b.channel.Playlist.Current())

		require.NoError(t, b.Trigger(ctx, ev("delete", `{"uid":3}`)))
		assert.Equal(t, 2, b.channel.Playlist.Len())
		assert.Nil(t, b.channel.Playlist.Current(), "deleting the current item resets playback")

		require.NoError(t, b.Trigger(ctx, ev("setPlaylistLocked", `true`)))
		assert.True(t, b.channel.Playlist.Locked())
	})

	t.Run("media update", func(t *testing.T) {
		b, _ := newTestBot(t)
		require.NoError(t, b.Trigger(ctx, ev("mediaUpdate", `{"currentTime":12.5,"paused":false}`)))
		assert.Equal(t, 12.5, b.channel.Playlist.CurrentTime())
		assert.False(t, b.channel.Playlist.Paused())
	})

	t.Run("usercount", func(t *testing.T) {
		b, _ := newTestBot(t)
		require.NoError(t, b.Trigger(ctx, ev("usercount", `17`)))
		assert.Equal(t, 17, b.channel.Userlist.Count())
	})
}

func TestRecoverRestartPolicy(t *testing.T) {
	ctx := context.Background()
	cause := transport.ErrPingTimeout

	t.Run("unset delay defaults to five seconds", func(t *testing.T) {
		b, _ := newTestBot(t)
		var slept []time.Duration
		b.sleep = func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}

		cont, err := b.recover(ctx, cause)
		require.NoError(t, err)
		assert.True(t, cont)
		assert.Equal(t, []time.Duration{DefaultRestartDelay}, slept)
	})

	t.Run("zero delay reconnects immediately", func(t *testing.T) {
		b, _ := newTestBot(t)
		zero := time.Duration(0)
		b.cfg.RestartDelay = &zero
		var slept []time.Duration
		b.sleep = func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}

		cont, err := b.recover(ctx, cause)
		require.NoError(t, err)
		assert.True(t, cont)
		assert.Equal(t, []time.Duration{0}, slept)
	})

	t.Run("negative delay disables reconnecting", func(t *testing.T) {
		b, _ := newTestBot(t)
		never := -time.Second
		b.cfg.RestartDelay = &never
		b.sleep = func(ctx context.Context, d time.Duration) error {
			t.Fatal("recover slept with reconnecting disabled")
			return nil
		}

		cont, err := b.recover(ctx, cause)
		require.NoError(t, err)
		assert.False(t, cont)
	})
}

func TestRunStopsOnCancel(t *testing.T) {
	b, conn := newTestBot(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err, "cancellation is a clean stop")
	case <-time.After(time.Second):
		t.Fatal("run did not stop on cancellation")
	}
	assert.True(t, conn.closed)
}

package bot

import (
	"context"
	"fmt"

	"github.com/cynwrig/synctube/internal/channel"
	"github.com/cynwrig/synctube/internal/media"
	"github.com/cynwrig/synctube/internal/transport"
)

// The command surface. Every mutating command checks the relevant
// permission locally, emits its request with a predicate describing the
// confirming (or rejecting) echo, and fails with a typed error on
// timeout or rejection. Local channel state is never mutated here; the
// confirmation event flows through the built-in handlers like any other
// inbound event.

// serverMessage extracts the human-readable message from a rejection
// payload.
func serverMessage(ev *transport.Event, fallback string) string {
	var data serverMessageData
	if err := decode(ev.Data, &data); err != nil || data.Msg == "" {
		return fallback
	}
	return data.Msg
}

func (b *Bot) checkMuted() error {
	if b.user.Muted || b.user.ShadowMuted {
		return channel.PermissionErrorf("muted")
	}
	return nil
}

// Chat sends a chat message and waits for the server's echo. A flood
// control rejection fails with a permission-kind error carrying the
// server's message.
func (b *Bot) Chat(ctx context.Context, msg string, meta map[string]any) (*ChatMessage, error) {
	b.log.Info().Str("msg", msg).Msg("chat")
	if err := b.channel.CheckPermission("chat", b.user); err != nil {
		return nil, err
	}
	if err := b.checkMuted(); err != nil {
		return nil, err
	}
	if meta == nil {
		meta = map[string]any{}
	}

	res, err := b.emit(ctx, "chatMsg", map[string]any{"msg": msg, "meta": meta},
		func(ev transport.Event) bool {
			if ev.Name == "noflood" {
				return true
			}
			if ev.Name != "chatMsg" {
				return false
			}
			var echo ChatMessage
			return decode(ev.Data, &echo) == nil && echo.Username == b.user.Name
		}, b.cfg.ResponseTimeout)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, channel.Errorf("could not send chat message")
	}
	if res.Name == "noflood" {
		return nil, channel.PermissionErrorf("%s", serverMessage(res, "noflood"))
	}
	var echo ChatMessage
	if err := decode(res.Data, &echo); err != nil {
		return nil, err
	}
	return &echo, nil
}

// PM sends a private message to the named user and waits for the echo.
func (b *Bot) PM(ctx context.Context, to, msg string, meta map[string]any) (*PrivateMessage, error) {
	b.log.Info().Str("to", to).Str("msg", msg).Msg("pm")
	if err := b.channel.CheckPermission("chat", b.user); err != nil {
		return nil, err
	}
	if err := b.checkMuted(); err != nil {
		return nil, err
	}
	if meta == nil {
		meta = map[string]any{}
	}

	res, err := b.emit(ctx, "pm", map[string]any{"msg": msg, "to": to, "meta": meta},
		func(ev transport.Event) bool {
			if ev.Name == "errorMsg" {
				return true
			}
			if ev.Name != "pm" {
				return false
			}
			var echo PrivateMessage
			return decode(ev.Data, &echo) == nil && echo.Username == b.user.Name && echo.To == to
		}, b.cfg.ResponseTimeout)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, channel.Errorf("could not send private message")
	}
	if res.Name == "errorMsg" {
		return nil, channel.Errorf("%s", serverMessage(res, "<no message>"))
	}
	var echo PrivateMessage
	if err := decode(res.Data, &echo); err != nil {
		return nil, err
	}
	return &echo, nil
}

// SetAFK toggles the bot's AFK flag via the /afk chat command. Already
// being in the desired state is a no-op.
func (b *Bot) SetAFK(ctx context.Context, afk bool) error {
	if b.user.AFK == afk {
		return nil
	}
	_, err := b.emit(ctx, "chatMsg", map[string]any{"msg": "/afk"}, nil, 0)
	return err
}

// ClearChat clears the channel's chat buffer.
func (b *Bot) ClearChat(ctx context.Context) error {
	if err := b.channel.CheckPermission("chatclear", b.user); err != nil {
		return err
	}
	_, err := b.emit(ctx, "chatMsg", map[string]any{"msg": "/clear"}, nil, 0)
	return err
}

// Kick removes the named user from the channel. Kicking someone of
// equal or higher rank fails locally.
func (b *Bot) Kick(ctx context.Context, name, reason string) error {
	if err := b.channel.CheckPermission("kick", b.user); err != nil {
		return err
	}
	target, err := b.channel.Userlist.Get(name)
	if err != nil {
		return err
	}
	if b.user.Rank <= target.Rank {
		return channel.PermissionErrorf("cannot kick %s", target.Name)
	}

	res, err := b.emit(ctx, "chatMsg", map[string]any{
		"msg":  fmt.Sprintf("/kick %s %s", target.Name, reason),
		"meta": map[string]any{},
	}, func(ev transport.Event) bool {
		if ev.Name == "errorMsg" {
			return true
		}
		if ev.Name != "userLeave" {
			return false
		}
		var leave userLeaveData
		return decode(ev.Data, &leave) == nil && leave.Name == target.Name
	}, b.cfg.ResponseTimeout)
	if err != nil {
		return err
	}
	if res == nil {
		return channel.Errorf("kick response timeout")
	}
	if res.Name == "errorMsg" {
		return channel.PermissionErrorf("%s", serverMessage(res, "<no message>"))
	}
	return nil
}

// playlistAction prefixes a playlist permission action depending on the
// lock state: locked playlists use the stricter "playlist*" actions,
// unlocked ones "oplaylist*".
func (b *Bot) playlistAction(suffix string) string {
	if b.channel.Playlist.Locked() {
		return "playlist" + suffix
	}
	return "oplaylist" + suffix
}

// AddMedia queues a media link. With appendEnd false the item goes right
// after the current one, which needs the corresponding "next"
// permission; non-temporary items need "addnontemp".
func (b *Bot) AddMedia(ctx context.Context, link media.Link, appendEnd, temp bool) (*channel.PlaylistItem, error) {
	b.log.Info().Stringer("link", link).Msg("add media")
	if err := b.channel.CheckPermission(b.playlistAction("add"), b.user); err != nil {
		return nil, err
	}
	if !appendEnd {
		if err := b.channel.CheckPermission(b.playlistAction("next"), b.user); err != nil {
			return nil, err
		}
	}
	if !temp {
		if err := b.channel.CheckPermission("addnontemp", b.user); err != nil {
			return nil, err
		}
	}

	pos := "end"
	if !appendEnd {
		pos = "next"
	}
	res, err := b.emit(ctx, "queue", map[string]any{
		"type": link.Type,
		"id":   link.ID,
		"pos":  pos,
		"temp": temp,
	}, func(ev transport.Event) bool {
		if ev.Name == "queueFail" {
			return true
		}
		if ev.Name != "queue" {
			return false
		}
		var data queueData
		return decode(ev.Data, &data) == nil &&
			data.Item.QueueBy == b.user.Name &&
			data.Item.Media.Type == link.Type &&
			data.Item.Media.ID == link.ID
	}, b.cfg.ResponseTimeout)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, channel.Errorf("add media response timeout")
	}
	if res.Name == "queueFail" {
		return nil, channel.Errorf("%s", serverMessage(res, "<no message>"))
	}
	var data queueData
	if err := decode(res.Data, &data); err != nil {
		return nil, err
	}
	return itemFromData(data.Item), nil
}

// AddMediaURL parses a URL and queues it.
func (b *Bot) AddMediaURL(ctx context.Context, rawURL string, appendEnd, temp bool) (*channel.PlaylistItem, error) {
	link, err := media.FromURL(rawURL)
	if err != nil {
		return nil, err
	}
	return b.AddMedia(ctx, link, appendEnd, temp)
}

// RemoveMedia deletes the playlist item with the given uid.
func (b *Bot) RemoveMedia(ctx context.Context, uid int) error {
	if err := b.channel.CheckPermission(b.playlistAction("delete"), b.user); err != nil {
		return err
	}
	item, err := b.channel.Playlist.Get(uid)
	if err != nil {
		return err
	}

	res, err := b.emit(ctx, "delete", item.UID, func(ev transport.Event) bool {
		if ev.Name != "delete" {
			return false
		}
		var data deleteData
		return decode(ev.Data, &data) == nil && data.UID == item.UID
	}, b.cfg.ResponseTimeout)
	if err != nil {
		return err
	}
	if res == nil {
		return channel.Errorf("remove media response timeout")
	}
	return nil
}

// MoveMedia relocates the item with uid from to just after the item
// with uid after.
func (b *Bot) MoveMedia(ctx context.Context, from, after int) error {
	if err := b.channel.CheckPermission(b.playlistAction("move"), b.user); err != nil {
		return err
	}
	if _, err := b.channel.Playlist.Get(from); err != nil {
		return err
	}
	if _, err := b.channel.Playlist.Get(after); err != nil {
		return err
	}

	res, err := b.emit(ctx, "moveMedia", map[string]any{"from": from, "after": after},
		func(ev transport.Event) bool {
			if ev.Name != "moveVideo" {
				return false
			}
			var data moveVideoData
			return decode(ev.Data, &data) == nil && data.From == from && data.After == after
		}, b.cfg.ResponseTimeout)
	if err != nil {
		return err
	}
	if res == nil {
		return channel.Errorf("move media response timeout")
	}
	return nil
}

// SetCurrentMedia jumps playback to the item with the given uid.
func (b *Bot) SetCurrentMedia(ctx context.Context, uid int) error {
	if err := b.channel.CheckPermission(b.playlistAction("jump"), b.user); err != nil {
		return err
	}
	item, err := b.channel.Playlist.Get(uid)
	if err != nil {
		return err
	}

	res, err := b.emit(ctx, "jumpTo", item.UID, func(ev transport.Event) bool {
		if ev.Name != "setCurrent" {
			return false
		}
		var echoed int
		return decode(ev.Data, &echoed) == nil && echoed == item.UID
	}, b.cfg.ResponseTimeout)
	if err != nil {
		return err
	}
	if res == nil {
		return channel.Errorf("set current response timeout")
	}
	return nil
}

// SetLeader grants playback control to the named user; an empty name
// removes the leader.
func (b *Bot) SetLeader(ctx context.Context, name string) error {
	if err := b.channel.CheckPermission("leaderctl", b.user); err != nil {
		return err
	}
	if name != "" {
		u, err := b.channel.Userlist.Get(name)
		if err != nil {
			return err
		}
		name = u.Name
	}

	res, err := b.emit(ctx, "assignLeader", map[string]any{"name": name},
		func(ev transport.Event) bool {
			if ev.Name != "setLeader" {
				return false
			}
			var echoed string
			return decode(ev.Data, &echoed) == nil && echoed == name
		}, b.cfg.ResponseTimeout)
	if err != nil {
		return err
	}
	if res == nil {
		return channel.Errorf("set leader response timeout")
	}
	return nil
}

// RemoveLeader revokes playback control.
func (b *Bot) RemoveLeader(ctx context.Context) error {
	return b.SetLeader(ctx, "")
}

// Pause pauses the current media. Only the leader may drive playback;
// with nothing playing this is a no-op.
func (b *Bot) Pause(ctx context.Context) error {
	if b.channel.Userlist.Leader() != b.user {
		return channel.PermissionErrorf("cannot pause: not a leader")
	}
	current := b.channel.Playlist.Current()
	if current == nil {
		return nil
	}
	_, err := b.emit(ctx, "mediaUpdate", map[string]any{
		"currentTime": b.channel.Playlist.CurrentTime(),
		"paused":      true,
		"id":          current.Link.ID,
		"type":        current.Link.Type,
	}, nil, 0)
	return err
}

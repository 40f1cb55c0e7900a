package bot

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cynwrig/synctube/internal/channel"
	"github.com/cynwrig/synctube/internal/media"
	"github.com/cynwrig/synctube/internal/transport"
)

func decode(data json.RawMessage, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// registerBuiltins wires one handler per inbound event kind. These are
// the only code paths that mutate channel state.
func (b *Bot) registerBuiltins() {
	builtins := []struct {
		event   string
		handler Handler
	}{
		{"rank", b.onRank},
		{"needPassword", b.onNeedPassword},
		{"kick", b.onKick},
		{"setMotd", b.onSetMotd},
		{"channelCSSJS", b.onChannelCSSJS},
		{"channelOpts", b.onChannelOpts},
		{"setPermissions", b.onSetPermissions},
		{"emoteList", b.onEmoteList},
		{"drinkCount", b.onDrinkCount},
		{"usercount", b.onUsercount},
		{"noflood", b.onNoflood},
		{"errorMsg", b.onErrorMsg},
		{"queueFail", b.onQueueFail},
		{"userlist", b.onUserlist},
		{"addUser", b.onAddUser},
		{"userLeave", b.onUserLeave},
		{"setUserMeta", b.onSetUserMeta},
		{"setUserRank", b.onSetUserRank},
		{"setAFK", b.onSetAFK},
		{"setLeader", b.onSetLeader},
		{"setPlaylistMeta", b.onSetPlaylistMeta},
		{"mediaUpdate", b.onMediaUpdate},
		{"voteskip", b.onVoteskip},
		{"setCurrent", b.onSetCurrent},
		{"queue", b.onQueue},
		{"delete", b.onDelete},
		{"setTemp", b.onSetTemp},
		{"moveVideo", b.onMoveVideo},
		{"playlist", b.onPlaylist},
		{"setPlaylistLocked", b.onSetPlaylistLocked},
		{"chatMsg", b.onChatMsg},
	}
	for _, reg := range builtins {
		b.On(reg.event, reg.handler)
	}
}

func (b *Bot) onRank(_ context.Context, ev transport.Event) (bool, error) {
	var rank float64
	if err := decode(ev.Data, &rank); err != nil {
		return false, err
	}
	b.user.Rank = rank
	return false, nil
}

func (b *Bot) onNeedPassword(_ context.Context, ev transport.Event) (bool, error) {
	var need bool
	if err := decode(ev.Data, &need); err != nil {
		return false, err
	}
	if need {
		return false, loginErrorf("invalid channel password")
	}
	return false, nil
}

func (b *Bot) onKick(_ context.Context, ev transport.Event) (bool, error) {
	return false, kickedErrorf("%s", string(nonEmpty(ev.Data)))
}

func (b *Bot) onSetMotd(_ context.Context, ev transport.Event) (bool, error) {
	var motd string
	if err := decode(ev.Data, &motd); err != nil {
		return false, err
	}
	b.channel.SetMOTD(motd)
	return false, nil
}

func (b *Bot) onChannelCSSJS(_ context.Context, ev transport.Event) (bool, error) {
	var data cssJSData
	if err := decode(ev.Data, &data); err != nil {
		return false, err
	}
	b.channel.SetCSSJS(data.CSS, data.JS)
	return false, nil
}

func (b *Bot) onChannelOpts(_ context.Context, ev transport.Event) (bool, error) {
	var opts map[string]any
	if err := decode(ev.Data, &opts); err != nil {
		return false, err
	}
	b.channel.SetOptions(opts)
	return false, nil
}

func (b *Bot) onSetPermissions(_ context.Context, ev transport.Event) (bool, error) {
	var perms map[string]float64
	if err := decode(ev.Data, &perms); err != nil {
		return false, err
	}
	b.channel.SetPermissions(perms)
	return false, nil
}

func (b *Bot) onEmoteList(_ context.Context, ev transport.Event) (bool, error) {
	var emotes []channel.Emote
	if err := decode(ev.Data, &emotes); err != nil {
		return false, err
	}
	b.channel.SetEmotes(emotes)
	return false, nil
}

func (b *Bot) onDrinkCount(_ context.Context, ev transport.Event) (bool, error) {
	var n int
	if err := decode(ev.Data, &n); err != nil {
		return false, err
	}
	b.channel.SetDrinkCount(n)
	return false, nil
}

func (b *Bot) onUsercount(_ context.Context, ev transport.Event) (bool, error) {
	var n int
	if err := decode(ev.Data, &n); err != nil {
		return false, err
	}
	b.channel.Userlist.SetCount(n)
	if b.store != nil {
		if err := b.store.UpdateHighWaterMark(b.channel.Userlist.Len(), n); err != nil {
			b.log.Error().Err(err).Msg("update high water mark")
		}
	}
	return false, nil
}

func (b *Bot) onNoflood(_ context.Context, ev transport.Event) (bool, error) {
	b.log.Error().RawJSON("data", nonEmpty(ev.Data)).Msg("noflood")
	return false, nil
}

func (b *Bot) onErrorMsg(_ context.Context, ev transport.Event) (bool, error) {
	b.log.Error().RawJSON("data", nonEmpty(ev.Data)).Msg("server error")
	return false, nil
}

func (b *Bot) onQueueFail(_ context.Context, ev transport.Event) (bool, error) {
	b.log.Error().RawJSON("data", nonEmpty(ev.Data)).Msg("playlist error")
	return false, nil
}

// applyUserData fills a roster entry from an event record.
func applyUserData(u *channel.User, data userData) {
	u.Name = data.Name
	u.Rank = data.Rank
	u.Profile = data.Profile
	applyUserMeta(u, data.Meta)
}

func applyUserMeta(u *channel.User, meta userMetaData) {
	u.AFK = meta.AFK
	u.Muted = meta.Muted
	u.ShadowMuted = meta.SMuted
	if meta.IP != "" {
		u.IP = meta.IP
	}
	if meta.UncloakedIP != "" {
		u.UncloakedIP = meta.UncloakedIP
	}
	if meta.Aliases != nil {
		u.Aliases = meta.Aliases
	}
}

// addUser routes the bot's own record onto b.user so rank and flag
// updates for ourselves are visible to the command permission gates.
func (b *Bot) addUser(data userData) {
	if data.Name == b.user.Name {
		applyUserData(b.user, data)
		b.channel.Userlist.Add(b.user)
		return
	}
	u := channel.NewUser(data.Name)
	applyUserData(u, data)
	b.channel.Userlist.Add(u)
}

func (b *Bot) onUserlist(_ context.Context, ev transport.Event) (bool, error) {
	var users []userData
	if err := decode(ev.Data, &users); err != nil {
		return false, err
	}
	b.channel.Userlist.Clear()
	for _, data := range users {
		b.addUser(data)
	}
	b.log.Info().Strs("users", b.channel.Userlist.Names()).Msg("userlist")
	return false, nil
}

func (b *Bot) onAddUser(_ context.Context, ev transport.Event) (bool, error) {
	var data userData
	if err := decode(ev.Data, &data); err != nil {
		return false, err
	}
	b.addUser(data)
	b.log.Info().Str("user", data.Name).Msg("user joined")
	if b.store != nil && data.Name != "" {
		if err := b.store.UserJoined(data.Name); err != nil {
			b.log.Error().Err(err).Msg("record user join")
		}
		if err := b.store.UpdateHighWaterMark(b.channel.Userlist.Len(), b.channel.Userlist.Count()); err != nil {
			b.log.Error().Err(err).Msg("update high water mark")
		}
	}
	return false, nil
}

func (b *Bot) onUserLeave(_ context.Context, ev transport.Event) (bool, error) {
	var data userLeaveData
	if err := decode(ev.Data, &data); err != nil {
		return false, err
	}
	if b.store != nil && data.Name != "" {
		if err := b.store.UserLeft(data.Name); err != nil {
			b.log.Error().Err(err).Msg("record user leave")
		}
	}
	b.channel.Userlist.Remove(data.Name)
	b.log.Info().Str("user", data.Name).Msg("user left")
	return false, nil
}

func (b *Bot) onSetUserMeta(_ context.Context, ev transport.Event) (bool, error) {
	var data setUserMetaData
	if err := decode(ev.Data, &data); err != nil {
		return false, err
	}
	// The server occasionally sends blank names; ignore them.
	if data.Name == "" {
		return false, nil
	}
	u, err := b.channel.Userlist.Get(data.Name)
	if err != nil {
		b.log.Warn().Str("user", data.Name).Msg("setUserMeta: user not in list yet")
		return false, nil
	}
	applyUserMeta(u, data.Meta)
	return false, nil
}

func (b *Bot) onSetUserRank(_ context.Context, ev transport.Event) (bool, error) {
	var data setUserRankData
	if err := decode(ev.Data, &data); err != nil {
		return false, err
	}
	if data.Name == "" {
		return false, nil
	}
	u, err := b.channel.Userlist.Get(data.Name)
	if err != nil {
		b.log.Warn().Str("user", data.Name).Msg("setUserRank: user not in list yet")
		return false, nil
	}
	u.Rank = data.Rank
	return false, nil
}

func (b *Bot) onSetAFK(_ context.Context, ev transport.Event) (bool, error) {
	var data setAFKData
	if err := decode(ev.Data, &data); err != nil {
		return false, err
	}
	if data.Name == "" {
		return false, nil
	}
	u, err := b.channel.Userlist.Get(data.Name)
	if err != nil {
		b.log.Warn().Str("user", data.Name).Msg("setAFK: user not in list yet")
		return false, nil
	}
	u.AFK = data.AFK
	return false, nil
}

func (b *Bot) onSetLeader(_ context.Context, ev transport.Event) (bool, error) {
	var name string
	if err := decode(ev.Data, &name); err != nil {
		return false, err
	}
	if err := b.channel.Userlist.SetLeader(name); err != nil {
		return false, err
	}
	b.log.Info().Str("leader", name).Msg("leader changed")
	return false, nil
}

func (b *Bot) onSetPlaylistMeta(_ context.Context, ev transport.Event) (bool, error) {
	var data playlistMetaData
	if err := decode(ev.Data, &data); err != nil {
		return false, err
	}
	b.channel.Playlist.SetTime(data.RawTime)
	return false, nil
}

func (b *Bot) onMediaUpdate(_ context.Context, ev transport.Event) (bool, error) {
	var data mediaUpdateData
	if err := decode(ev.Data, &data); err != nil {
		return false, err
	}
	paused := true
	if data.Paused != nil {
		paused = *data.Paused
	}
	b.channel.Playlist.UpdatePlayback(data.CurrentTime, paused)
	return false, nil
}

func (b *Bot) onVoteskip(_ context.Context, ev transport.Event) (bool, error) {
	var data voteskipData
	if err := decode(ev.Data, &data); err != nil {
		return false, err
	}
	b.channel.SetVoteskip(data.Count, data.Need)
	b.log.Info().Int("count", data.Count).Int("need", data.Need).Msg("voteskip")
	return false, nil
}

func (b *Bot) onSetCurrent(_ context.Context, ev transport.Event) (bool, error) {
	var uid int
	if err := decode(ev.Data, &uid); err != nil {
		return false, err
	}
	if err := b.channel.Playlist.SetCurrent(uid); err != nil {
		return false, err
	}
	b.log.Info().Int("uid", uid).Msg("setCurrent")
	return false, nil
}

func itemFromData(data itemData) *channel.PlaylistItem {
	return &channel.PlaylistItem{
		UID:      data.UID,
		Temp:     data.Temp,
		QueuedBy: data.QueueBy,
		Title:    data.Media.Title,
		Duration: int(data.Media.Seconds),
		Link:     media.Link{Type: data.Media.Type, ID: data.Media.ID},
	}
}

func (b *Bot) onQueue(_ context.Context, ev transport.Event) (bool, error) {
	var data queueData
	if err := decode(ev.Data, &data); err != nil {
		return false, err
	}
	if err := b.channel.Playlist.Add(parseAfter(data.After), itemFromData(data.Item)); err != nil {
		return false, err
	}
	b.log.Info().Int("uid", data.Item.UID).Str("title", data.Item.Media.Title).Msg("queued")
	return false, nil
}

func (b *Bot) onDelete(_ context.Context, ev transport.Event) (bool, error) {
	var data deleteData
	if err := decode(ev.Data, &data); err != nil {
		return false, err
	}
	if err := b.channel.Playlist.Remove(data.UID); err != nil {
		return false, err
	}
	b.log.Info().Int("uid", data.UID).Msg("deleted")
	return false, nil
}

func (b *Bot) onSetTemp(_ context.Context, ev transport.Event) (bool, error) {
	var data setTempData
	if err := decode(ev.Data, &data); err != nil {
		return false, err
	}
	item, err := b.channel.Playlist.Get(data.UID)
	if err != nil {
		return false, err
	}
	item.Temp = data.Temp
	return false, nil
}

func (b *Bot) onMoveVideo(_ context.Context, ev transport.Event) (bool, error) {
	var data moveVideoData
	if err := decode(ev.Data, &data); err != nil {
		return false, err
	}
	if err := b.channel.Playlist.Move(data.From, data.After); err != nil {
		return false, err
	}
	b.log.Info().Int("from", data.From).Int("after", data.After).Msg("moved")
	return false, nil
}

func (b *Bot) onPlaylist(_ context.Context, ev transport.Event) (bool, error) {
	var items []itemData
	if err := decode(ev.Data, &items); err != nil {
		return false, err
	}
	b.channel.Playlist.Clear()
	for _, data := range items {
		if err := b.channel.Playlist.Add(nil, itemFromData(data)); err != nil {
			return false, err
		}
	}
	b.log.Info().Int("items", len(items)).Msg("playlist replaced")
	return false, nil
}

func (b *Bot) onSetPlaylistLocked(_ context.Context, ev transport.Event) (bool, error) {
	var locked bool
	if err := decode(ev.Data, &locked); err != nil {
		return false, err
	}
	b.channel.Playlist.SetLocked(locked)
	b.log.Info().Bool("locked", locked).Msg("playlist lock")
	return false, nil
}

func (b *Bot) onChatMsg(_ context.Context, ev transport.Event) (bool, error) {
	if b.store == nil {
		return false, nil
	}
	var msg ChatMessage
	if err := decode(ev.Data, &msg); err != nil {
		return false, err
	}
	if msg.Username == "" {
		return false, nil
	}
	if err := b.store.UserChatMessage(msg.Username, msg.Msg); err != nil {
		b.log.Error().Err(err).Msg("record chat message")
	}
	return false, nil
}

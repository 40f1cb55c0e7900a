// Package channel holds the local mirror of a synchronized media room:
// the roster, the play queue, the permission table and assorted channel
// metadata. Nothing in this package talks to the network; state is only
// mutated by the bot's inbound-event handlers.
package channel

import (
	"fmt"
	"sync"
)

// RankPrecision absorbs floating-point drift in ranks that have been
// through repeated arithmetic on the server side.
const RankPrecision = 1e-4

// Emote is one channel emote definition.
type Emote struct {
	Name   string `json:"name"`
	Image  string `json:"image"`
	Source string `json:"source,omitempty"`
}

// Channel aggregates everything the server pushes about one room.
type Channel struct {
	Name     string
	Password string

	Userlist *UserList
	Playlist *Playlist

	mu            sync.RWMutex
	permissions   map[string]float64
	options       map[string]any
	css           string
	js            string
	emotes        []Emote
	motd          string
	drinkCount    int
	voteskipCount int
	voteskipNeed  int
}

// New creates a channel mirror with an empty roster and playlist.
func New(name, password string) *Channel {
	return &Channel{
		Name:        name,
		Password:    password,
		Userlist:    NewUserList(),
		Playlist:    NewPlaylist(),
		permissions: make(map[string]float64),
		options:     make(map[string]any),
	}
}

func (c *Channel) String() string {
	return fmt.Sprintf("<channel %q>", c.Name)
}

// CheckPermission verifies that the user's rank meets the channel's
// minimum for the action. An action missing from the permission table is
// a configuration error, not a denial.
func (c *Channel) CheckPermission(action string, u *User) error {
	c.mu.RLock()
	minRank, ok := c.permissions[action]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown action %q", action)
	}
	if u.Rank+RankPrecision < minRank {
		return PermissionErrorf(
			"%s: user %q has rank %.2f, %.2f required",
			action, u.Name, u.Rank, minRank,
		)
	}
	return nil
}

// HasPermission is CheckPermission without the denial error: it returns
// false on insufficient rank. Unknown actions still fail.
func (c *Channel) HasPermission(action string, u *User) (bool, error) {
	err := c.CheckPermission(action, u)
	if err == nil {
		return true, nil
	}
	if IsPermissionDenied(err) {
		return false, nil
	}
	return false, err
}

// SetPermissions replaces the permission table.
func (c *Channel) SetPermissions(perms map[string]float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.permissions = perms
}

// Permission returns the minimum rank for an action.
func (c *Channel) Permission(action string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rank, ok := c.permissions[action]
	return rank, ok
}

// SetOptions replaces the channel options map.
func (c *Channel) SetOptions(opts map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.options = opts
}

// Option returns one channel option by key.
func (c *Channel) Option(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.options[key]
	return v, ok
}

// SetCSSJS records the channel stylesheet and script payloads.
func (c *Channel) SetCSSJS(css, js string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.css = css
	c.js = js
}

// CSSJS returns the channel stylesheet and script payloads.
func (c *Channel) CSSJS() (string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.css, c.js
}

// SetEmotes replaces the emote set.
func (c *Channel) SetEmotes(emotes []Emote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emotes = emotes
}

// Emotes returns the emote set.
func (c *Channel) Emotes() []Emote {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.emotes
}

// SetMOTD records the message of the day.
func (c *Channel) SetMOTD(motd string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.motd = motd
}

// MOTD returns the message of the day.
func (c *Channel) MOTD() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.motd
}

// SetDrinkCount records the drink counter.
func (c *Channel) SetDrinkCount(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drinkCount = n
}

// DrinkCount returns the drink counter.
func (c *Channel) DrinkCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.drinkCount
}

// SetVoteskip records the voteskip tally.
func (c *Channel) SetVoteskip(count, need int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.voteskipCount = count
	c.voteskipNeed = need
}

// Voteskip returns the voteskip tally as (count, need).
func (c *Channel) Voteskip() (int, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.voteskipCount, c.voteskipNeed
}

package channel

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// User is one named member of a channel. Identity is by exact-case name.
type User struct {
	Name        string
	Rank        float64
	AFK         bool
	Muted       bool
	ShadowMuted bool
	IP          string
	UncloakedIP string
	Aliases     []string
	Profile     map[string]any
	Meta        map[string]any
}

// NewUser creates a user with the given name and an unknown rank.
func NewUser(name string) *User {
	return &User{Name: name, Rank: -1}
}

func (u *User) String() string {
	return fmt.Sprintf("<user %q (%.2f)>", u.Name, u.Rank)
}

// UserList is the live roster of named users plus a separate count of
// total connections (anonymous viewers included). Leadership is tracked
// by reference to a user already in the list.
type UserList struct {
	mu     sync.RWMutex
	users  map[string]*User
	leader *User
	count  int
}

// NewUserList creates an empty roster.
func NewUserList() *UserList {
	return &UserList{users: make(map[string]*User)}
}

// Add inserts or replaces a user, keyed by name.
func (ul *UserList) Add(u *User) {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	ul.users[u.Name] = u
}

// Remove deletes a user by name. Removing an unknown name is tolerated
// and logged; the server occasionally races leave events against the
// initial roster snapshot.
func (ul *UserList) Remove(name string) {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	if _, ok := ul.users[name]; !ok {
		log.Error().Str("user", name).Msg("remove: user not in list")
		return
	}
	if ul.leader != nil && ul.leader.Name == name {
		ul.leader = nil
	}
	delete(ul.users, name)
}

// Get returns the named user or an error if absent.
func (ul *UserList) Get(name string) (*User, error) {
	ul.mu.RLock()
	defer ul.mu.RUnlock()
	u, ok := ul.users[name]
	if !ok {
		return nil, fmt.Errorf("user %q not in list", name)
	}
	return u, nil
}

// Contains reports whether the named user is present.
func (ul *UserList) Contains(name string) bool {
	ul.mu.RLock()
	defer ul.mu.RUnlock()
	_, ok := ul.users[name]
	return ok
}

// Len returns the number of named users.
func (ul *UserList) Len() int {
	ul.mu.RLock()
	defer ul.mu.RUnlock()
	return len(ul.users)
}

// Clear removes every user and the leader. The connection count is left
// alone; it arrives on its own event.
func (ul *UserList) Clear() {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	ul.users = make(map[string]*User)
	ul.leader = nil
}

// SetLeader assigns leadership by name. An empty name clears the leader.
func (ul *UserList) SetLeader(name string) error {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	if name == "" {
		ul.leader = nil
		return nil
	}
	u, ok := ul.users[name]
	if !ok {
		return fmt.Errorf("leader %q not in list", name)
	}
	ul.leader = u
	return nil
}

// Leader returns the current leader, or nil.
func (ul *UserList) Leader() *User {
	ul.mu.RLock()
	defer ul.mu.RUnlock()
	return ul.leader
}

// Count returns the total connection count reported by the server.
func (ul *UserList) Count() int {
	ul.mu.RLock()
	defer ul.mu.RUnlock()
	return ul.count
}

// SetCount records the total connection count. It is independent of the
// named-user count and includes anonymous viewers.
func (ul *UserList) SetCount(n int) {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	ul.count = n
}

// Names returns the sorted user names, for logging.
func (ul *UserList) Names() []string {
	ul.mu.RLock()
	defer ul.mu.RUnlock()
	names := make([]string, 0, len(ul.users))
	for name := range ul.users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (ul *UserList) String() string {
	return fmt.Sprintf("<userlist [%s] (%d connected)>", strings.Join(ul.Names(), ", "), ul.Count())
}

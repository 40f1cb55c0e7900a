package bot

import "time"

// OutboundMessage is one chat line queued for delivery by an external
// producer (e.g. a web dashboard) and drained by the outbound loop.
type OutboundMessage struct {
	ID         int64
	Message    string
	RetryCount int
}

// Status is the periodic live-status snapshot written for external
// display.
type Status struct {
	BotName         string
	BotRank         float64
	BotAFK          bool
	Channel         string
	ChatUsers       int
	ConnectedUsers  int
	PlaylistItems   int
	CurrentTitle    string
	CurrentDuration int
	StartTime       time.Time
	Connected       bool
}

// Store is the persistence collaborator consumed by the background
// loops and the roster/chat handlers. All methods must be safe for
// concurrent use.
type Store interface {
	UserJoined(name string) error
	UserLeft(name string) error
	UserChatMessage(name, message string) error
	UpdateHighWaterMark(chatUsers, connectedUsers int) error
	LogUserCount(chatUsers, connectedUsers int) error
	UpdateCurrentStatus(s Status) error

	// UnsentOutboundMessages returns queued messages eligible for a
	// send attempt, respecting per-message retry backoff.
	UnsentOutboundMessages(limit, maxRetries int) ([]OutboundMessage, error)
	MarkOutboundSent(id int64) error
	MarkOutboundFailed(id int64, errMsg string, permanent bool) error

	// PerformMaintenance prunes old rows and compacts storage,
	// returning a human-readable log of what it did.
	PerformMaintenance() ([]string, error)
}

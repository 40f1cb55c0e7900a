// Package store persists channel statistics, the outbound message queue
// and API tokens in a single SQLite file. It implements the bot.Store
// contract; everything here is best-effort bookkeeping the bot can run
// without.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/cynwrig/synctube/internal/bot"
)

// outboundBackoffBase is doubled per retry to compute the next attempt
// time for transiently failed messages.
const outboundBackoffBase = 30 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS user_stats (
	username      TEXT PRIMARY KEY,
	first_seen    TIMESTAMP NOT NULL,
	last_seen     TIMESTAMP NOT NULL,
	join_count    INTEGER NOT NULL DEFAULT 0,
	message_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS channel_stats (
	id                   INTEGER PRIMARY KEY CHECK (id = 1),
	high_water_users     INTEGER NOT NULL DEFAULT 0,
	high_water_connected INTEGER NOT NULL DEFAULT 0,
	updated_at           TIMESTAMP
);

CREATE TABLE IF NOT EXISTS user_count_history (
	ts              TIMESTAMP NOT NULL,
	chat_users      INTEGER NOT NULL,
	connected_users INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_user_count_history_ts ON user_count_history(ts);

CREATE TABLE IF NOT EXISTS recent_chat (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	ts       TIMESTAMP NOT NULL,
	username TEXT NOT NULL,
	message  TEXT
);

CREATE TABLE IF NOT EXISTS outbound_messages (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	message           TEXT NOT NULL,
	created_at        TIMESTAMP NOT NULL,
	sent              INTEGER NOT NULL DEFAULT 0,
	sent_at           TIMESTAMP,
	permanent_failure INTEGER NOT NULL DEFAULT 0,
	retry_count       INTEGER NOT NULL DEFAULT 0,
	next_retry_at     TIMESTAMP,
	last_error        TEXT
);

CREATE TABLE IF NOT EXISTS current_status (
	id               INTEGER PRIMARY KEY CHECK (id = 1),
	bot_name         TEXT,
	bot_rank         REAL,
	bot_afk          INTEGER,
	channel_name     TEXT,
	chat_users       INTEGER,
	connected_users  INTEGER,
	playlist_items   INTEGER,
	current_title    TEXT,
	current_duration INTEGER,
	start_time       TIMESTAMP,
	connected        INTEGER,
	updated_at       TIMESTAMP
);

CREATE TABLE IF NOT EXISTS api_tokens (
	token       TEXT PRIMARY KEY,
	description TEXT,
	created_at  TIMESTAMP NOT NULL,
	revoked     INTEGER NOT NULL DEFAULT 0,
	last_used   TIMESTAMP
);
`

// Store is a SQLite-backed implementation of the bot's persistence
// contract.
type Store struct {
	db *sql.DB
}

var _ bot.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// UserJoined records a join, creating the user's stats row on first
// sight.
func (s *Store) UserJoined(name string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO user_stats (username, first_seen, last_seen, join_count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(username) DO UPDATE SET
			last_seen = excluded.last_seen,
			join_count = join_count + 1`,
		name, now, now)
	if err != nil {
		return fmt.Errorf("record join for %s: %w", name, err)
	}
	return nil
}

// UserLeft stamps the user's last-seen time.
func (s *Store) UserLeft(name string) error {
	_, err := s.db.Exec(`UPDATE user_stats SET last_seen = ? WHERE username = ?`,
		time.Now().UTC(), name)
	if err != nil {
		return fmt.Errorf("record leave for %s: %w", name, err)
	}
	return nil
}

// UserChatMessage bumps the user's message count and appends to the
// recent-chat ring.
func (s *Store) UserChatMessage(name, message string) error {
	now := time.Now().UTC()
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO user_stats (username, first_seen, last_seen, message_count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(username) DO UPDATE SET
			last_seen = excluded.last_seen,
			message_count = message_count + 1`,
		name, now, now); err != nil {
		return fmt.Errorf("count chat message for %s: %w", name, err)
	}
	if _, err := tx.Exec(`INSERT INTO recent_chat (ts, username, message) VALUES (?, ?, ?)`,
		now, name, message); err != nil {
		return fmt.Errorf("store chat message: %w", err)
	}
	return tx.Commit()
}

// UpdateHighWaterMark raises the stored maxima when exceeded.
func (s *Store) UpdateHighWaterMark(chatUsers, connectedUsers int) error {
	_, err := s.db.Exec(`
		INSERT INTO channel_stats (id, high_water_users, high_water_connected, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			high_water_users = MAX(high_water_users, excluded.high_water_users),
			high_water_connected = MAX(high_water_connected, excluded.high_water_connected),
			updated_at = excluded.updated_at`,
		chatUsers, connectedUsers, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update high water mark: %w", err)
	}
	return nil
}

// HighWaterMark returns the recorded maxima as (chat, connected).
func (s *Store) HighWaterMark() (int, int, error) {
	var users, connected int
	err := s.db.QueryRow(
		`SELECT high_water_users, high_water_connected FROM channel_stats WHERE id = 1`,
	).Scan(&users, &connected)
	if err == sql.ErrNoRows {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("query high water mark: %w", err)
	}
	return users, connected, nil
}

// LogUserCount appends one historical user-count sample.
func (s *Store) LogUserCount(chatUsers, connectedUsers int) error {
	_, err := s.db.Exec(`INSERT INTO user_count_history (ts, chat_users, connected_users) VALUES (?, ?, ?)`,
		time.Now().UTC(), chatUsers, connectedUsers)
	if err != nil {
		return fmt.Errorf("log user count: %w", err)
	}
	return nil
}

// UpdateCurrentStatus overwrites the single live-status row.
func (s *Store) UpdateCurrentStatus(st bot.Status) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO current_status (
			id, bot_name, bot_rank, bot_afk, channel_name, chat_users,
			connected_users, playlist_items, current_title,
			current_duration, start_time, connected, updated_at
		) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.BotName, st.BotRank, st.BotAFK, st.Channel, st.ChatUsers,
		st.ConnectedUsers, st.PlaylistItems, st.CurrentTitle,
		st.CurrentDuration, st.StartTime, st.Connected, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update current status: %w", err)
	}
	return nil
}

// EnqueueOutboundMessage queues a chat line for the outbound drain loop.
func (s *Store) EnqueueOutboundMessage(message string) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO outbound_messages (message, created_at) VALUES (?, ?)`,
		message, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("enqueue outbound message: %w", err)
	}
	return res.LastInsertId()
}

// UnsentOutboundMessages returns queued messages eligible for a send
// attempt: not sent, not permanently failed, under the retry cap, and
// past their backoff time.
func (s *Store) UnsentOutboundMessages(limit, maxRetries int) ([]bot.OutboundMessage, error) {
	rows, err := s.db.Query(`
		SELECT id, message, retry_count
		FROM outbound_messages
		WHERE sent = 0
		  AND permanent_failure = 0
		  AND retry_count < ?
		  AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY id
		LIMIT ?`,
		maxRetries, time.Now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query outbound messages: %w", err)
	}
	defer rows.Close()

	var out []bot.OutboundMessage
	for rows.Next() {
		var m bot.OutboundMessage
		if err := rows.Scan(&m.ID, &m.Message, &m.RetryCount); err != nil {
			return nil, fmt.Errorf("scan outbound message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkOutboundSent flags a message as delivered.
func (s *Store) MarkOutboundSent(id int64) error {
	_, err := s.db.Exec(`UPDATE outbound_messages SET sent = 1, sent_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark outbound %d sent: %w", id, err)
	}
	return nil
}

// MarkOutboundFailed records a delivery failure. Transient failures bump
// the retry counter and push next_retry_at out exponentially; permanent
// ones stop retries immediately.
func (s *Store) MarkOutboundFailed(id int64, errMsg string, permanent bool) error {
	if permanent {
		_, err := s.db.Exec(`
			UPDATE outbound_messages
			SET permanent_failure = 1, last_error = ?
			WHERE id = ?`,
			errMsg, id)
		if err != nil {
			return fmt.Errorf("mark outbound %d failed: %w", id, err)
		}
		return nil
	}

	var retries int
	if err := s.db.QueryRow(`SELECT retry_count FROM outbound_messages WHERE id = ?`, id).Scan(&retries); err != nil {
		return fmt.Errorf("mark outbound %d failed: %w", id, err)
	}
	backoff := outboundBackoffBase * time.Duration(1<<retries)
	_, err := s.db.Exec(`
		UPDATE outbound_messages
		SET retry_count = retry_count + 1, last_error = ?, next_retry_at = ?
		WHERE id = ?`,
		errMsg, time.Now().UTC().Add(backoff), id)
	if err != nil {
		return fmt.Errorf("mark outbound %d failed: %w", id, err)
	}
	return nil
}

// GenerateAPIToken mints and stores a new opaque token.
func (s *Store) GenerateAPIToken(description string) (string, error) {
	token := uuid.New().String()
	_, err := s.db.Exec(`INSERT INTO api_tokens (token, description, created_at) VALUES (?, ?, ?)`,
		token, description, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("generate api token: %w", err)
	}
	return token, nil
}

// ValidateAPIToken reports whether the token exists and is not revoked,
// stamping its last use.
func (s *Store) ValidateAPIToken(token string) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE api_tokens SET last_used = ?
		WHERE token = ? AND revoked = 0`,
		time.Now().UTC(), token)
	if err != nil {
		return false, fmt.Errorf("validate api token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("validate api token: %w", err)
	}
	return n > 0, nil
}

// RevokeAPIToken marks a token unusable.
func (s *Store) RevokeAPIToken(token string) error {
	_, err := s.db.Exec(`UPDATE api_tokens SET revoked = 1 WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("revoke api token: %w", err)
	}
	return nil
}

// PerformMaintenance prunes old history, sent outbound messages and the
// recent-chat ring, then compacts the database.
func (s *Store) PerformMaintenance() ([]string, error) {
	var log []string
	cutoff := time.Now().UTC().AddDate(0, 0, -30)

	steps := []struct {
		desc  string
		query string
		args  []any
	}{
		{"pruned user count history", `DELETE FROM user_count_history WHERE ts < ?`, []any{cutoff}},
		{"pruned sent outbound messages", `DELETE FROM outbound_messages WHERE sent = 1 AND sent_at < ?`, []any{cutoff}},
		{"pruned failed outbound messages", `DELETE FROM outbound_messages WHERE permanent_failure = 1 AND created_at < ?`, []any{cutoff}},
		{"trimmed recent chat", `DELETE FROM recent_chat WHERE id NOT IN (SELECT id FROM recent_chat ORDER BY id DESC LIMIT 1000)`, nil},
	}
	for _, step := range steps {
		res, err := s.db.Exec(step.query, step.args...)
		if err != nil {
			return log, fmt.Errorf("%s: %w", step.desc, err)
		}
		n, _ := res.RowsAffected()
		log = append(log, fmt.Sprintf("%s (%d rows)", step.desc, n))
	}

	if _, err := s.db.Exec(`VACUUM`); err != nil {
		return log, fmt.Errorf("vacuum: %w", err)
	}
	log = append(log, "vacuumed")
	if _, err := s.db.Exec(`ANALYZE`); err != nil {
		return log, fmt.Errorf("analyze: %w", err)
	}
	log = append(log, "analyzed")
	return log, nil
}

// UserStats is aggregate activity for one user.
type UserStats struct {
	Username     string
	FirstSeen    time.Time
	LastSeen     time.Time
	JoinCount    int
	MessageCount int
}

// GetUserStats returns the stats row for one user, or nil if unseen.
func (s *Store) GetUserStats(name string) (*UserStats, error) {
	var st UserStats
	err := s.db.QueryRow(`
		SELECT username, first_seen, last_seen, join_count, message_count
		FROM user_stats WHERE username = ?`, name).
		Scan(&st.Username, &st.FirstSeen, &st.LastSeen, &st.JoinCount, &st.MessageCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user stats: %w", err)
	}
	return &st, nil
}

// TopChatters returns up to limit users ordered by message count.
func (s *Store) TopChatters(limit int) ([]UserStats, error) {
	rows, err := s.db.Query(`
		SELECT username, first_seen, last_seen, join_count, message_count
		FROM user_stats
		ORDER BY message_count DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top chatters: %w", err)
	}
	defer rows.Close()

	var out []UserStats
	for rows.Next() {
		var st UserStats
		if err := rows.Scan(&st.Username, &st.FirstSeen, &st.LastSeen, &st.JoinCount, &st.MessageCount); err != nil {
			return nil, fmt.Errorf("scan user stats: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

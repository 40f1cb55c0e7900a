// Package bot implements the event-driven synchronization and
// command-correlation engine for one channel: it mirrors server-pushed
// state into a channel.Channel and issues commands whose effects only
// count once the server echoes a matching confirmation.
package bot

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cynwrig/synctube/internal/channel"
	"github.com/cynwrig/synctube/internal/transport"
)

const (
	// DefaultResponseTimeout bounds the wait for a command's
	// confirmation echo.
	DefaultResponseTimeout = 10 * time.Second
	// DefaultRestartDelay is the pause before reconnecting after a
	// transport fault.
	DefaultRestartDelay = 5 * time.Second
)

var guestLoginLimitRe = regexp.MustCompile(`(?i)^guest logins .* ([0-9]+) seconds\.`)

// Config describes one bot instance.
type Config struct {
	// Domain hosts the socket config, e.g. "cytu.be".
	Domain          string
	Channel         string
	ChannelPassword string
	// User is empty for anonymous mode, a name for guest login, or a
	// name with UserPassword for a registered account.
	User         string
	UserPassword string

	// ResponseTimeout bounds each command's confirmation wait. Zero
	// selects DefaultResponseTimeout.
	ResponseTimeout time.Duration
	// RestartDelay is the reconnect pause after a transport fault. Nil
	// selects DefaultRestartDelay, zero reconnects immediately and a
	// negative value disables reconnecting.
	RestartDelay *time.Duration

	// Dialer opens event connections; defaults to transport.Dial.
	Dialer transport.Dialer
	// HTTPClient fetches the socket config; defaults to a 10s-timeout
	// client.
	HTTPClient *http.Client
	// Store, when set, enables chat/roster tracking and the background
	// maintenance loops.
	Store Store

	Logger zerolog.Logger
}

// Bot owns the channel mirror, the dispatcher and the connection.
type Bot struct {
	*Dispatcher

	cfg       Config
	log       zerolog.Logger
	channel   *channel.Channel
	user      *channel.User
	store     Store
	startTime time.Time

	connMu sync.Mutex
	conn   transport.Conn
	server string

	// sleep is swappable so login-retry tests do not wait wall-clock
	// seconds.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a bot and registers the built-in handlers for every
// inbound event kind.
func New(cfg Config) *Bot {
	if cfg.ResponseTimeout == 0 {
		cfg.ResponseTimeout = DefaultResponseTimeout
	}
	if cfg.RestartDelay == nil {
		d := DefaultRestartDelay
		cfg.RestartDelay = &d
	}
	if cfg.Dialer == nil {
		cfg.Dialer = transport.Dial
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}

	b := &Bot{
		Dispatcher: NewDispatcher(cfg.Logger),
		cfg:        cfg,
		log:        cfg.Logger,
		channel:    channel.New(cfg.Channel, cfg.ChannelPassword),
		user:       channel.NewUser(cfg.User),
		store:      cfg.Store,
		startTime:  time.Now(),
		sleep:      sleepCtx,
	}
	b.registerBuiltins()
	return b
}

// Channel returns the local channel mirror.
func (b *Bot) Channel() *channel.Channel { return b.channel }

// User returns the bot's own roster entry.
func (b *Bot) User() *channel.User { return b.user }

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bot) connection() transport.Conn {
	b.connMu.Lock()
	defer b.connMu.Unlock()
	return b.conn
}

// emit sends an event through the current connection.
func (b *Bot) emit(ctx context.Context, name string, payload any, match transport.Matcher, timeout time.Duration) (*transport.Event, error) {
	conn := b.connection()
	if conn == nil {
		return nil, fmt.Errorf("%w: not connected", transport.ErrConnectionClosed)
	}
	return conn.Emit(ctx, name, payload, match, timeout)
}

// disconnect drops the current connection, if any. The bot's own rank
// resets; the server re-sends it on the next login.
func (b *Bot) disconnect() {
	b.connMu.Lock()
	conn := b.conn
	b.conn = nil
	b.connMu.Unlock()
	if conn == nil {
		return
	}
	b.log.Info().Str("server", b.server).Msg("disconnect")
	if err := conn.Close(); err != nil {
		b.log.Error().Err(err).Msg("close connection")
	}
	b.user.Rank = -1
}

// connect resolves the server endpoint (once) and dials it, dropping
// any stale connection first.
func (b *Bot) connect(ctx context.Context) error {
	b.disconnect()
	if b.server == "" {
		server, err := transport.FetchServerURL(ctx, b.cfg.HTTPClient, b.cfg.Domain, b.cfg.Channel)
		if err != nil {
			return err
		}
		b.server = server + "/socket.io/"
	}
	b.log.Info().Str("server", b.server).Msg("connect")
	conn, err := b.cfg.Dialer(ctx, b.server)
	if err != nil {
		return err
	}
	b.connMu.Lock()
	b.conn = conn
	b.connMu.Unlock()
	return nil
}

// login connects, joins the channel and authenticates. A password
// rejection is fatal; a guest rate-limit response sleeps out the
// advertised cooldown and retries indefinitely. Success fires the
// synthetic "login" event.
func (b *Bot) login(ctx context.Context) error {
	if err := b.connect(ctx); err != nil {
		return err
	}

	b.log.Info().Str("channel", b.channel.Name).Msg("joining channel")
	res, err := b.emit(ctx, "joinChannel", map[string]any{
		"name": b.channel.Name,
		"pw":   b.channel.Password,
	}, func(ev transport.Event) bool {
		return ev.Name == "needPassword" || ev.Name == ""
	}, b.cfg.ResponseTimeout)
	if err != nil {
		return err
	}
	if res == nil {
		return fmt.Errorf("%w: joinChannel response timeout", transport.ErrConnectionClosed)
	}
	if res.Name == "needPassword" {
		return loginErrorf("invalid channel password")
	}

	if b.user.Name == "" {
		b.log.Warn().Msg("no user, staying anonymous")
	} else {
		if err := b.authenticate(ctx); err != nil {
			return err
		}
	}

	payload := fmt.Sprintf(`{"name":%q}`, b.user.Name)
	return b.Trigger(ctx, transport.Event{Name: "login", Data: []byte(payload)})
}

func (b *Bot) authenticate(ctx context.Context) error {
	for {
		b.log.Info().Str("user", b.user.Name).Msg("login")
		res, err := b.emit(ctx, "login", map[string]any{
			"name": b.user.Name,
			"pw":   b.cfg.UserPassword,
		}, func(ev transport.Event) bool {
			return ev.Name == "login"
		}, b.cfg.ResponseTimeout)
		if err != nil {
			return err
		}
		if res == nil {
			return fmt.Errorf("%w: login response timeout", transport.ErrConnectionClosed)
		}

		var result loginResultData
		if err := decode(res.Data, &result); err != nil {
			return err
		}
		if result.Success {
			if result.Name != "" {
				b.user.Name = result.Name
			}
			return nil
		}

		b.log.Error().Str("error", result.Error).Msg("login rejected")
		m := guestLoginLimitRe.FindStringSubmatch(result.Error)
		if m == nil {
			return loginErrorf("%s", result.Error)
		}
		delay, err := strconv.Atoi(m[1])
		if err != nil {
			return loginErrorf("%s", result.Error)
		}
		if delay < 1 {
			delay = 1
		}
		b.log.Warn().Int("seconds", delay).Msg("guest login rate limited, sleeping")
		if err := b.sleep(ctx, time.Duration(delay)*time.Second); err != nil {
			return err
		}
	}
}

// Run is the main loop: log in when disconnected, otherwise read one
// inbound event and dispatch it fully before reading the next. Transport
// faults reconnect after RestartDelay (negative disables). Cancellation
// exits cleanly. Fatal signals (login failure, kick) are returned.
func (b *Bot) Run(ctx context.Context) error {
	loopCtx, cancelLoops := context.WithCancel(ctx)
	var wg sync.WaitGroup
	if b.store != nil {
		b.startLoops(loopCtx, &wg)
	}
	defer func() {
		cancelLoops()
		wg.Wait()
		b.disconnect()
	}()

	for {
		if ctx.Err() != nil {
			b.log.Info().Msg("cancelled")
			return nil
		}

		if b.connection() == nil {
			err := b.login(ctx)
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				b.log.Info().Msg("cancelled")
				return nil
			}
			if !isTransportError(err) {
				return err
			}
			if cont, rerr := b.recover(ctx, err); !cont {
				return rerr
			}
			continue
		}

		ev, err := b.connection().Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				b.log.Info().Msg("cancelled")
				return nil
			}
			if cont, rerr := b.recover(ctx, err); !cont {
				return rerr
			}
			continue
		}

		if err := b.Trigger(ctx, ev); err != nil {
			if ctx.Err() != nil {
				b.log.Info().Msg("cancelled")
				return nil
			}
			return err
		}
	}
}

// recover handles a transport fault: disconnect and, when the restart
// policy allows, wait out the delay. It returns false when the run loop
// must stop.
func (b *Bot) recover(ctx context.Context, cause error) (bool, error) {
	b.log.Error().Err(cause).Msg("network error")
	b.disconnect()
	delay := *b.cfg.RestartDelay
	if delay < 0 {
		return false, nil
	}
	b.log.Info().Dur("delay", delay).Msg("restarting")
	if err := b.sleep(ctx, delay); err != nil {
		return false, nil
	}
	return true, nil
}

package bot

import (
	"context"
	"sync"
	"time"
)

// Background maintenance loop periods.
const (
	userCountPeriod   = 5 * time.Minute
	statusPeriod      = 10 * time.Second
	outboundPeriod    = 2 * time.Second
	maintenancePeriod = 24 * time.Hour

	outboundBatchSize  = 20
	outboundMaxRetries = 3
)

// startLoops launches the store-backed background loops. Each loop logs
// per-iteration failures and keeps going; only cancellation stops it.
func (b *Bot) startLoops(ctx context.Context, wg *sync.WaitGroup) {
	loops := []struct {
		name string
		run  func(ctx context.Context)
	}{
		{"usercount", b.userCountLoop},
		{"status", b.statusLoop},
		{"outbound", b.outboundLoop},
		{"maintenance", b.maintenanceLoop},
	}
	for _, loop := range loops {
		wg.Add(1)
		go func(name string, run func(ctx context.Context)) {
			defer wg.Done()
			run(ctx)
			b.log.Debug().Str("loop", name).Msg("background loop stopped")
		}(loop.name, loop.run)
	}
}

// userCountLoop records a roster-size sample every five minutes to feed
// historical graphs.
func (b *Bot) userCountLoop(ctx context.Context) {
	ticker := time.NewTicker(userCountPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		chatUsers := b.channel.Userlist.Len()
		connected := b.channel.Userlist.Count()
		if connected == 0 {
			connected = chatUsers
		}
		if err := b.store.LogUserCount(chatUsers, connected); err != nil {
			b.log.Error().Err(err).Msg("log user counts")
		}
	}
}

// statusLoop refreshes the live-status snapshot every ten seconds.
func (b *Bot) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(statusPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		connected := b.channel.Userlist.Count()
		if connected == 0 {
			connected = b.channel.Userlist.Len()
		}
		status := Status{
			BotName:        b.user.Name,
			BotRank:        b.user.Rank,
			BotAFK:         b.user.AFK,
			Channel:        b.channel.Name,
			ChatUsers:      b.channel.Userlist.Len(),
			ConnectedUsers: connected,
			PlaylistItems:  b.channel.Playlist.Len(),
			StartTime:      b.startTime,
			Connected:      b.connection() != nil,
		}
		if current := b.channel.Playlist.Current(); current != nil {
			status.CurrentTitle = current.Title
			status.CurrentDuration = current.Duration
		}
		if err := b.store.UpdateCurrentStatus(status); err != nil {
			b.log.Error().Err(err).Msg("update status")
		}
	}
}

// outboundLoop drains externally queued chat messages. Permission and
// channel rejections are permanent and stop retries for that message;
// anything else is transient and bumps the retry counter so the store
// can back off.
func (b *Bot) outboundLoop(ctx context.Context) {
	ticker := time.NewTicker(outboundPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if b.connection() == nil {
			continue
		}

		messages, err := b.store.UnsentOutboundMessages(outboundBatchSize, outboundMaxRetries)
		if err != nil {
			b.log.Error().Err(err).Msg("fetch outbound messages")
			continue
		}
		for _, m := range messages {
			if ctx.Err() != nil {
				return
			}
			b.sendOutbound(ctx, m)
		}
	}
}

func (b *Bot) sendOutbound(ctx context.Context, m OutboundMessage) {
	_, err := b.Chat(ctx, m.Message, nil)
	if err == nil {
		if merr := b.store.MarkOutboundSent(m.ID); merr != nil {
			b.log.Error().Err(merr).Int64("id", m.ID).Msg("mark outbound sent")
		}
		b.log.Info().Int64("id", m.ID).Int("retries", m.RetryCount).Msg("sent outbound message")
		return
	}

	permanent := isPermanentSendError(err)
	if merr := b.store.MarkOutboundFailed(m.ID, err.Error(), permanent); merr != nil {
		b.log.Error().Err(merr).Int64("id", m.ID).Msg("mark outbound failed")
	}
	if permanent {
		b.log.Error().Err(err).Int64("id", m.ID).Msg("permanent outbound failure")
	} else {
		b.log.Warn().Err(err).Int64("id", m.ID).Int("retry", m.RetryCount+1).Msg("transient outbound failure")
	}
}

// maintenanceLoop runs the store's cleanup sweep at startup and then
// daily.
func (b *Bot) maintenanceLoop(ctx context.Context) {
	for {
		b.log.Info().Msg("starting store maintenance")
		if done, err := b.store.PerformMaintenance(); err != nil {
			b.log.Error().Err(err).Msg("store maintenance failed")
		} else {
			b.log.Info().Strs("steps", done).Msg("store maintenance complete")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(maintenancePeriod):
		}
	}
}

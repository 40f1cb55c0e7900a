package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cynwrig/synctube/internal/bot"
	"github.com/cynwrig/synctube/internal/config"
	"github.com/cynwrig/synctube/internal/store"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to the channel and run until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flagConfig)
			if err != nil {
				return err
			}
			log := newLogger(cfg)

			botCfg := bot.Config{
				Domain:          cfg.Domain,
				Channel:         cfg.Channel,
				ChannelPassword: cfg.ChannelPassword,
				User:            cfg.User,
				UserPassword:    cfg.UserPassword,
				ResponseTimeout: cfg.ResponseTimeout,
				RestartDelay:    &cfg.RestartDelay,
				Logger:          log,
			}

			if cfg.DBPath != "" {
				db, err := store.Open(cfg.DBPath)
				if err != nil {
					return err
				}
				defer db.Close()
				botCfg.Store = db
				log.Info().Str("path", cfg.DBPath).Msg("database open")
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			b := bot.New(botCfg)
			if err := b.Run(ctx); err != nil {
				return fmt.Errorf("bot stopped: %w", err)
			}
			return nil
		},
	}
}

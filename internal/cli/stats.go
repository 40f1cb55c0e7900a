package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cynwrig/synctube/internal/config"
	"github.com/cynwrig/synctube/internal/store"
)

func newStatsCmd() *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "stats [user]",
		Short: "Show stored channel statistics",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			if len(args) == 1 {
				st, err := db.GetUserStats(args[0])
				if err != nil {
					return err
				}
				if st == nil {
					return fmt.Errorf("no record of user %q", args[0])
				}
				fmt.Printf("%s: %d messages, %d joins, first seen %s, last seen %s\n",
					st.Username, st.MessageCount, st.JoinCount,
					st.FirstSeen.Format("2006-01-02"), st.LastSeen.Format("2006-01-02"))
				return nil
			}

			chatUsers, connected, err := db.HighWaterMark()
			if err != nil {
				return err
			}
			fmt.Printf("high water mark: %d chat users, %d connected\n", chatUsers, connected)

			chatters, err := db.TopChatters(top)
			if err != nil {
				return err
			}
			for i, st := range chatters {
				fmt.Printf("%2d. %-20s %d messages\n", i+1, st.Username, st.MessageCount)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&top, "top", 10, "number of top chatters to list")
	return cmd
}

// openStore loads the config and opens its database, which must be
// configured.
func openStore() (*store.Store, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("no db_path configured")
	}
	return store.Open(cfg.DBPath)
}

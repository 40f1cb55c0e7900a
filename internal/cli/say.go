package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "say <message>...",
		Short: "Queue a chat message for the running bot to deliver",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			id, err := db.EnqueueOutboundMessage(strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Printf("queued message %d\n", id)
			return nil
		},
	}
}

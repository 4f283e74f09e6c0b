package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func purgeCommand() *cli.Command {
	var (
		cfg        config
		olderHours int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "older-than-hours",
			Usage:       "Only purge chats and messages older than this many hours (0 purges everything)",
			Value:       0,
			Destination: &olderHours,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, storageFlags(&cfg)...)

	return &cli.Command{
		Name:  "purge",
		Usage: "Delete old chats and messages from the local database",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg.setupLogging()

			repo, err := cfg.newChatRepo()
			if err != nil {
				return err
			}
			defer repo.Close()

			var olderThan *time.Duration
			if olderHours > 0 {
				d := time.Duration(olderHours) * time.Hour
				olderThan = &d
			}

			chats, messages, err := repo.Purge(ctx, olderThan)
			if err != nil {
				return goerr.Wrap(err, "failed to purge history")
			}

			fmt.Fprintf(c.Root().Writer, "Purged %d chats and %d messages\n", chats, messages)
			return nil
		},
	}
}

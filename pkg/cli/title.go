package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/marketmind/marketmind/pkg/model"
	"github.com/urfave/cli/v3"
)

// titleHistorySize bounds how much of the transcript feeds the title model.
const titleHistorySize = 12

func titleCommand() *cli.Command {
	var (
		cfg    config
		chatID model.ChatID
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "chat-id",
			Aliases:     []string{"id"},
			Usage:       "Chat ID to retitle",
			Destination: (*string)(&chatID),
			Required:    true,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, storageFlags(&cfg)...)

	return &cli.Command{
		Name:  "title",
		Usage: "Generate a title for an existing chat from its history",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg.setupLogging()

			repo, err := cfg.newChatRepo()
			if err != nil {
				return err
			}
			defer repo.Close()

			chat, err := repo.GetSession(ctx, chatID)
			if err != nil {
				return goerr.Wrap(err, "failed to load chat")
			}
			if chat == nil {
				return goerr.New("chat not found", goerr.V("chat_id", chatID))
			}

			messages, err := repo.ListMessages(ctx, chatID)
			if err != nil {
				return goerr.Wrap(err, "failed to load history")
			}
			if len(messages) == 0 {
				return goerr.New("cannot generate a title without conversation history")
			}
			if len(messages) > titleHistorySize {
				messages = messages[len(messages)-titleHistorySize:]
			}

			pipeline, err := cfg.newAgent(ctx)
			if err != nil {
				return err
			}

			title := pipeline.SuggestTitle(ctx, transcript(messages))
			if _, err := repo.UpdateSessionTitle(ctx, chatID, title); err != nil {
				return goerr.Wrap(err, "failed to update chat title")
			}

			fmt.Fprintf(c.Root().Writer, "%s\n", title)
			return nil
		},
	}
}

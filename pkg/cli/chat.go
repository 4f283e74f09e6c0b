package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/m-mizutani/goerr/v2"
	"github.com/marketmind/marketmind/pkg/model"
	"github.com/marketmind/marketmind/pkg/usecase/agent"
	"github.com/urfave/cli/v3"
)

func chatCommand() *cli.Command {
	var (
		cfg   config
		title string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "title",
			Aliases:     []string{"t"},
			Usage:       "Title for the new chat session",
			Destination: &title,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, searchFlags(&cfg)...)
	flags = append(flags, storageFlags(&cfg)...)
	flags = append(flags, quotaFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive market Q&A session",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg.setupLogging()

			repo, err := cfg.newChatRepo()
			if err != nil {
				return err
			}
			defer repo.Close()

			pipeline, err := cfg.newAgent(ctx)
			if err != nil {
				return err
			}

			chat, err := repo.CreateSession(ctx, title)
			if err != nil {
				return goerr.Wrap(err, "failed to create chat session")
			}
			limiter := cfg.newLimiter()

			scanner := bufio.NewScanner(os.Stdin)
			fmt.Fprintf(c.Root().Writer, "Chat session started (%s). Type 'exit' to quit.\n", chat.ID)

			for {
				fmt.Fprintf(c.Root().Writer, "> ")
				if !scanner.Scan() {
					break
				}

				message := scanner.Text()
				if message == "exit" {
					break
				}

				if message == "" {
					continue
				}

				if _, err := limiter.Check(string(chat.ID)); err != nil {
					if errors.Is(err, model.ErrQuotaExceeded) {
						fmt.Fprintf(c.Root().Writer, "Rate limit exceeded. Please wait before sending more requests.\n")
						continue
					}
					return err
				}

				if _, err := repo.AddMessage(ctx, chat.ID, "user", message, nil); err != nil {
					return goerr.Wrap(err, "failed to save message")
				}
				pipeline.PersistMemory(ctx, chat.ID, "user", message)

				messages, err := repo.ListMessages(ctx, chat.ID)
				if err != nil {
					return goerr.Wrap(err, "failed to load history")
				}

				sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
				sp.Suffix = " thinking..."
				sp.Start()
				result := pipeline.GenerateResponse(ctx, agent.GenerateInput{
					Identity: string(chat.ID),
					History:  transcript(messages),
					Prompt:   message,
				})
				sp.Stop()

				if _, err := repo.AddMessage(ctx, chat.ID, "assistant", result.Answer, &model.MessageMetadata{
					SearchResults: result.SearchResults,
					VectorContext: result.VectorContext,
				}); err != nil {
					return goerr.Wrap(err, "failed to save response")
				}
				pipeline.PersistMemory(ctx, chat.ID, "assistant", result.Answer)

				fmt.Fprintf(c.Root().Writer, "%s\n", result.Answer)
			}

			fmt.Fprintf(c.Root().Writer, "\nChat session completed\n")
			return nil
		},
	}
}

// transcript flattens stored messages into "role: content" lines.
func transcript(messages []*model.Message) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		lines = append(lines, msg.Role+": "+msg.Content)
	}
	return strings.Join(lines, "\n")
}

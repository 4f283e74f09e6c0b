package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/marketmind/marketmind/pkg/server"
	"github.com/marketmind/marketmind/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var (
		cfg  config
		addr string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Listen address",
			Value:       ":8000",
			Sources:     cli.EnvVars("MARKETMIND_ADDR"),
			Destination: &addr,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, searchFlags(&cfg)...)
	flags = append(flags, storageFlags(&cfg)...)
	flags = append(flags, quotaFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run the chat API server",
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

			srv := &http.Server{
				Addr:              addr,
				Handler:           server.New(repo, pipeline, cfg.newLimiter()).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			logging.Default().Info("starting server", "addr", addr, "offline", cfg.offline)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return goerr.Wrap(err, "server failed", goerr.V("addr", addr))
			}
			return nil
		},
	}
}

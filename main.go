package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/marketmind/marketmind/pkg/cli"
)

func main() {
	// Local env files take the same precedence as the original deployment setup
	_ = godotenv.Load(".env.local", ".env")

	ctx := context.Background()
	if err := cli.Run(ctx, os.Args); err != nil {
		os.Exit(err.Code)
	}
}

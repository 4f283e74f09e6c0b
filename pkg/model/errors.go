package model

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrQuotaExceeded rejects a request before any external call is made.
	// The HTTP layer maps it to 429.
	ErrQuotaExceeded = goerr.New("rate limit exceeded")

	// ErrSourceUnavailable indicates the market search provider could not be
	// reached or returned an unparseable payload.
	ErrSourceUnavailable = goerr.New("market signal source unavailable")

	// ErrStoreUnavailable indicates a vector store operation failed.
	ErrStoreUnavailable = goerr.New("memory store unavailable")

	// ErrCompletionFailed indicates the language model call itself failed.
	ErrCompletionFailed = goerr.New("completion failed")
)

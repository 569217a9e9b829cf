package client

import "errors"

var (
	// ErrUnavailable means the server could not be reached at all.
	ErrUnavailable = errors.New("tipbot server unavailable")
	// ErrUnauthorized means the server refused the minted access token,
	// usually because the CLI and server secrets differ.
	ErrUnauthorized = errors.New("access token rejected")
)

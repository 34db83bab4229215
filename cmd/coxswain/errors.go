package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/quayside/coxswain/src/app"
	"github.com/quayside/coxswain/src/conversation"
	"github.com/quayside/coxswain/src/relayclient"
)

// Exit codes following standard conventions
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error
	ExitUsage       = 2 // Usage error
	ExitConfig      = 3 // Configuration error
	ExitAuth        = 4 // Authentication error
	ExitPermission  = 5 // Permission error
	ExitNetwork     = 6 // Network error
	ExitTimeout     = 7 // Timeout error
	ExitInterrupted = 8 // Interrupted by user
	ExitInternal    = 9 // Internal error
)

// errConfig marks configuration failures so they map to ExitConfig.
var errConfig = errors.New("configuration")

// configErr wraps a configuration failure with the errConfig marker.
func configErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", errConfig, err)
}

// exitCode determines the appropriate exit code for an error
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var apiErr *relayclient.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusForbidden:
			return ExitPermission
		case apiErr.IsAuthError():
			return ExitAuth
		case apiErr.StatusCode == http.StatusNotFound,
			apiErr.StatusCode == http.StatusConflict,
			apiErr.StatusCode == http.StatusGone:
			return ExitUsage
		case apiErr.IsRetryable():
			return ExitNetwork
		}
		return ExitError
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ExitTimeout
		}
		return ExitNetwork
	}

	switch {
	case errors.Is(err, errConfig):
		return ExitConfig
	case errors.Is(err, relayclient.ErrNoBaseURL):
		return ExitConfig
	case errors.Is(err, relayclient.ErrUnauthorized):
		return ExitAuth
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeout
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, app.ErrNoDefaultSession),
		errors.Is(err, conversation.ErrNoSession),
		errors.Is(err, conversation.ErrNoTurn),
		errors.Is(err, conversation.ErrNotPending),
		errors.Is(err, relayclient.ErrNoActiveTurn),
		errors.Is(err, relayclient.ErrNotFound),
		errors.Is(err, relayclient.ErrSessionGone):
		return ExitUsage
	}

	return ExitError
}

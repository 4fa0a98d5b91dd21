package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *ClientConfig) Validate() error {
	if c.API.RestURL == "" {
		return errors.New("api.rest_url is required")
	}
	if c.API.WSURL == "" {
		return errors.New("api.ws_url is required")
	}
	if !strings.HasPrefix(c.API.WSURL, "ws://") && !strings.HasPrefix(c.API.WSURL, "wss://") {
		return fmt.Errorf("api.ws_url must use ws:// or wss://, got %q", c.API.WSURL)
	}
	if c.API.Token == "" {
		return errors.New("api.token is required")
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}

	if c.Stream.BufferSize < 1 {
		return errors.New("stream.buffer_size must be >= 1")
	}

	if c.Reconnect.MaxAttempts < 0 {
		return errors.New("reconnect.max_attempts must be >= 0")
	}
	if c.Reconnect.Delay <= 0 {
		return errors.New("reconnect.delay must be positive")
	}

	if c.History.PerPage < 1 || c.History.PerPage > 100 {
		return fmt.Errorf("history.per_page must be between 1 and 100, got %d", c.History.PerPage)
	}

	return nil
}

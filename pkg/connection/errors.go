package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"
)

// ConfigurationError reports an invalid connection setting. It is returned
// from New and is always fatal.
type ConfigurationError struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid connection setting %s: %s: %v", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("invalid connection setting %s: %s", e.Field, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// authErrorPrefixes are Redis replies that mean the credentials were refused.
var authErrorPrefixes = []string{"NOAUTH", "WRONGPASS"}

// IsConnectivityError reports whether err means Redis could not be reached
// or refused the connection credentials.
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, redis.ErrClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		msg := redisErr.Error()
		for _, prefix := range authErrorPrefixes {
			if strings.HasPrefix(msg, prefix) {
				return true
			}
		}
	}

	return false
}

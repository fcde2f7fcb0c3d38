// Package slogx holds slog attribute helpers shared by the errand packages.
package slogx

import (
	"fmt"
	"log/slog"
)

const (
	// KeyLoggerName is the attribute key naming the component that logged.
	KeyLoggerName = "logger"
	KeyAgent      = "agent"
	KeyOp         = "op"
	KeyCallID     = "call_id"
)

// Error returns an "error" attribute carrying err's message.
// A nil error produces an empty string rather than a panic.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// ByteString creates a string attribute from a byte slice.
func ByteString(key string, value []byte) slog.Attr {
	return slog.String(key, string(value))
}

// Stringer creates a string attribute from value.String().
func Stringer(key string, value fmt.Stringer) slog.Attr {
	return slog.String(key, value.String())
}

// LoggerName returns the attribute naming a logger, e.g. "errand.agent".
func LoggerName(name string) slog.Attr {
	return slog.String(KeyLoggerName, name)
}

// Agent identifies the agent a log line belongs to.
func Agent(id string) slog.Attr {
	return slog.String(KeyAgent, id)
}

// Op names the operation a log line belongs to.
func Op(name string) slog.Attr {
	return slog.String(KeyOp, name)
}

// CallID carries the correlation id of a remote call.
func CallID(id uint64) slog.Attr {
	return slog.Uint64(KeyCallID, id)
}

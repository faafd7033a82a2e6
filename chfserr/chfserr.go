// Package chfserr defines the RPC-surface error taxonomy and the single
// boundary layer that maps POSIX errno values onto it. Every chunkstore and
// rpcserver operation returns a Code; errors.Is/errors.As are not used here
// because the taxonomy must also cross the wire (an RPC response carries an
// int32 err field), so Code itself is what travels, not a Go error chain.
package chfserr

import (
	"errors"
	"os"
	"syscall"
)

// Code is the RPC-surface error taxonomy. Its zero value is
// Success.
type Code int32

const (
	Success       Code = 0
	NoEntry       Code = 1
	Exist         Code = 2
	NoMemory      Code = 3
	NoBackendPath Code = 4
	NotSupported  Code = 5
	ServerDown    Code = 6
	PartialRead   Code = 7
	Unknown       Code = 8
)

func (c Code) String() string {
	switch c {
	case Success:
		return "SUCCESS"
	case NoEntry:
		return "NO_ENTRY"
	case Exist:
		return "EXIST"
	case NoMemory:
		return "NO_MEMORY"
	case NoBackendPath:
		return "NO_BACKEND_PATH"
	case NotSupported:
		return "NOT_SUPPORTED"
	case ServerDown:
		return "SERVER_DOWN"
	case PartialRead:
		return "PARTIAL_READ"
	default:
		return "UNKNOWN"
	}
}

// Error implements the error interface so a Code can be returned directly
// from any Go function signature that expects an error, while still being
// the thing marshaled onto the wire.
func (c Code) Error() string { return c.String() }

// IsAdvisory reports whether c should be logged at INFO rather than ERROR:
// NO_ENTRY and SUCCESS are advisory, everything else is an operational error.
func (c Code) IsAdvisory() bool { return c == Success || c == NoEntry }

// FromErrno maps a syscall-layer error to a taxonomy Code. This is the one
// place in the codebase permitted to inspect errno directly.
// Every chunkstore function that wraps a syscall must funnel its error
// through FromErrno before returning.
func FromErrno(err error) Code {
	if err == nil {
		return Success
	}
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOENT) {
		return NoEntry
	}
	if errors.Is(err, os.ErrExist) || errors.Is(err, syscall.EEXIST) {
		return Exist
	}
	if errors.Is(err, syscall.ENOMEM) || errors.Is(err, syscall.ENOSPC) {
		return NoMemory
	}
	if errors.Is(err, syscall.ENOTSUP) || errors.Is(err, syscall.EOPNOTSUPP) {
		return NotSupported
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ENOENT:
			return NoEntry
		case syscall.EEXIST:
			return Exist
		case syscall.ENOMEM, syscall.ENOSPC:
			return NoMemory
		case syscall.ENOTSUP:
			return NotSupported
		}
	}
	return Unknown
}

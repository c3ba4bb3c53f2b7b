// Package vpnerr provides the categorized error taxonomy used throughout the
// tunnel core, generalizing the category/unwrap pattern used by the
// project's own daemon error handling into the full set of kinds a VPN
// session can fail with.
package vpnerr

import (
	"errors"
	"fmt"
)

// Kind identifies why an operation failed, independent of the specific
// Go error value. Each Kind maps to a distinct process exit code so a
// caller (script mode or the CLI) can report a stable signal to whatever
// invoked it.
type Kind int

const (
	OK Kind = iota
	ConfigInvalid
	AuthFailed
	NicUnavailable
	NicConfig
	TlsHandshake
	SetupFailed
	FrameError
	IoError
	RouteInstall
	DnsQueryFailed
	StatePersist
	Cancelled
	Unknown
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "ok"
	case ConfigInvalid:
		return "config-invalid"
	case AuthFailed:
		return "auth-failed"
	case NicUnavailable:
		return "nic-unavailable"
	case NicConfig:
		return "nic-config"
	case TlsHandshake:
		return "tls-handshake"
	case SetupFailed:
		return "setup-failed"
	case FrameError:
		return "frame-error"
	case IoError:
		return "io-error"
	case RouteInstall:
		return "route-install"
	case DnsQueryFailed:
		return "dns-query-failed"
	case StatePersist:
		return "state-persist"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ExitCode returns the process exit code associated with a Kind. Codes are
// stable across releases since external callers (script mode parents) may
// branch on them.
func (k Kind) ExitCode() int {
	switch k {
	case OK:
		return 0
	case ConfigInvalid:
		return 2
	case AuthFailed:
		return 3
	case NicUnavailable:
		return 4
	case NicConfig:
		return 5
	case TlsHandshake:
		return 6
	case SetupFailed:
		return 7
	case FrameError:
		return 8
	case IoError:
		return 9
	case RouteInstall:
		return 10
	case DnsQueryFailed:
		return 11
	case StatePersist:
		return 12
	case Cancelled:
		return 13
	default:
		return 1
	}
}

// AuthSub further categorizes an AuthFailed error, mirroring spec's
// AuthFailed{sub} shape (http, tls, xml, missing-field, server-status).
type AuthSub int

const (
	AuthSubNone AuthSub = iota
	AuthSubHTTP
	AuthSubTLS
	AuthSubXML
	AuthSubMissingField
	AuthSubServerStatus
)

func (s AuthSub) String() string {
	switch s {
	case AuthSubHTTP:
		return "http"
	case AuthSubTLS:
		return "tls"
	case AuthSubXML:
		return "xml"
	case AuthSubMissingField:
		return "missing-field"
	case AuthSubServerStatus:
		return "server-status"
	default:
		return "none"
	}
}

type categorized struct {
	error
	kind   Kind
	sub    AuthSub
	detail string
}

// Unwrap lets errors.Is / errors.As / errors.Unwrap walk through to the
// wrapped cause.
func (ce *categorized) Unwrap() error {
	return ce.error
}

// New creates a categorized error of the given Kind from an error, a
// string, or anything with a useful %v representation.
func (k Kind) New(v interface{}) error {
	return k.newWithSub(v, AuthSubNone, "")
}

// Newf creates a categorized error of the given Kind using a format string;
// %w works as with fmt.Errorf.
func (k Kind) Newf(format string, a ...interface{}) error {
	return &categorized{error: fmt.Errorf(format, a...), kind: k}
}

// NewAuth creates an AuthFailed error with the given sub-category and a
// human-readable detail, e.g. vpnerr.NewAuth(vpnerr.AuthSubMissingField, "auth-cookie").
func NewAuth(sub AuthSub, detail string) error {
	return AuthFailed.newWithSub(fmt.Sprintf("auth failed (%s): %s", sub, detail), sub, detail)
}

func (k Kind) newWithSub(v interface{}, sub AuthSub, detail string) error {
	var err error
	switch v := v.(type) {
	case nil:
		return nil
	case error:
		err = v
	case string:
		err = errors.New(v)
	default:
		err = fmt.Errorf("%v", v)
	}
	return &categorized{error: err, kind: k, sub: sub, detail: detail}
}

// GetKind returns the Kind for a categorized error, OK for nil, and Unknown
// for any other error value, walking the Unwrap chain the way the
// project's own errcat.GetCategory does.
func GetKind(err error) Kind {
	if err == nil {
		return OK
	}
	for {
		if ce, ok := err.(*categorized); ok {
			return ce.kind
		}
		if err = errors.Unwrap(err); err == nil {
			return Unknown
		}
	}
}

// GetAuthSub returns the AuthSub attached to an AuthFailed error, or
// AuthSubNone if the error isn't a categorized AuthFailed error.
func GetAuthSub(err error) AuthSub {
	for {
		if ce, ok := err.(*categorized); ok {
			return ce.sub
		}
		if err == nil {
			return AuthSubNone
		}
		unwrapped := errors.Unwrap(err)
		if unwrapped == nil {
			return AuthSubNone
		}
		err = unwrapped
	}
}

// Reason renders a one-line human-readable reason for exit, as required by
// the error handling design: a distinct exit code per kind plus a message
// suitable for direct display.
func Reason(err error) string {
	if err == nil {
		return "success"
	}
	k := GetKind(err)
	if k == AuthFailed {
		if sub := GetAuthSub(err); sub != AuthSubNone {
			return fmt.Sprintf("%s (%s): %v", k, sub, errors.Unwrap(err))
		}
	}
	return fmt.Sprintf("%s: %v", k, err)
}

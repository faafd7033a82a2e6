package modules

import (
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"
)

// A NetAddress is a transport endpoint string, of the form "host:port" — the
// address field advertised by a ring node. It may name an IP address or
// a DNS hostname; ring hashing treats it as an opaque byte string.
type NetAddress string

var (
	errBadHostname    = errors.New("invalid hostname")
	errEmptyPort      = errors.New("port is empty")
	errInvalidPort    = errors.New("port number has an invalid format")
	errUnqualifiedHost = errors.New("hostname is not fully qualified and is not localhost")
	errUnspecifiedIP  = errors.New("cannot use the unspecified address")
)

// labelRE matches a single DNS label: 1-63 characters, alphanumeric, with
// internal (not leading/trailing) hyphens allowed.
var labelRE = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)

// Host returns the host part of the NetAddress, or "" if it cannot be split.
func (na NetAddress) Host() string {
	host, _, err := net.SplitHostPort(string(na))
	if err != nil {
		return ""
	}
	return host
}

// Port returns the port part of the NetAddress, or "" if it cannot be split.
func (na NetAddress) Port() string {
	_, port, err := net.SplitHostPort(string(na))
	if err != nil {
		return ""
	}
	return port
}

// IsLoopback returns true if the NetAddress names a loopback address (or
// "localhost") and carries an explicit port.
func (na NetAddress) IsLoopback() bool {
	host, _, err := net.SplitHostPort(string(na))
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// IsValid returns nil if na is a well-formed "host:port" NetAddress, and an
// explanatory error otherwise. A node whose advertised address fails this
// check should never be accepted into the ring.
func (na NetAddress) IsValid() error {
	host, port, err := net.SplitHostPort(string(na))
	if err != nil {
		return err
	}
	if err := validatePort(port); err != nil {
		return err
	}
	return validateHost(host)
}

func validatePort(port string) error {
	if port == "" {
		return errEmptyPort
	}
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return errInvalidPort
	}
	if p == 0 {
		return errInvalidPort
	}
	return nil
}

func validateHost(host string) error {
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsUnspecified() {
			return errUnspecifiedIP
		}
		return nil
	}
	if host == "localhost" {
		return nil
	}
	trimmed := strings.TrimSuffix(host, ".")
	if trimmed == "" || len(trimmed) > 253 {
		return errBadHostname
	}
	labels := strings.Split(trimmed, ".")
	if len(labels) < 2 {
		return errUnqualifiedHost
	}
	for _, label := range labels {
		if len(label) == 0 || len(label) > 63 || !labelRE.MatchString(label) {
			return errBadHostname
		}
	}
	return nil
}

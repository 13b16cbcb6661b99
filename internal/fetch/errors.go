// internal/fetch/errors.go
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind classifies fetch failures so the resilience layer can
// react differently to timeouts, blocking and plain network trouble.
type ErrorKind string

const (
	KindTimeout    ErrorKind = "timeout"
	KindBlocked    ErrorKind = "blocked"
	KindNetwork    ErrorKind = "network"
	KindHTTPStatus ErrorKind = "http_status"
	KindParse      ErrorKind = "parse"
)

// Error is a classified fetch failure.
type Error struct {
	Kind   ErrorKind
	URL    string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: %s (status %d): %v", e.URL, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Classify wraps err as a fetch Error, inferring the kind from the
// underlying cause. An http status of 403 or 429 is treated as
// blocking; other 4xx/5xx are plain status failures.
func Classify(url string, status int, err error) *Error {
	kind := KindNetwork

	switch {
	case status == 403 || status == 429:
		kind = KindBlocked
	case status >= 400:
		kind = KindHTTPStatus
	case err != nil:
		if errors.Is(err, context.DeadlineExceeded) {
			kind = KindTimeout
		} else {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				kind = KindTimeout
			} else if isBlockedMessage(err.Error()) {
				kind = KindBlocked
			}
		}
	}

	if err == nil {
		err = fmt.Errorf("status %d", status)
	}
	return &Error{Kind: kind, URL: url, Status: status, Err: err}
}

// isBlockedMessage recognizes challenge and bot-wall phrasing in
// error text from lower layers.
func isBlockedMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, marker := range []string{"forbidden", "captcha", "access denied", "blocked"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// KindOf returns the kind of a classified fetch error, or KindNetwork
// for anything else.
func KindOf(err error) ErrorKind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindNetwork
}

// IsTimeout reports whether err is a timeout-class fetch failure.
func IsTimeout(err error) bool { return KindOf(err) == KindTimeout }

// IsBlocked reports whether err indicates the target refused us.
func IsBlocked(err error) bool { return KindOf(err) == KindBlocked }

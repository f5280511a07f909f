// internal/errors/kinds.go
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Kind classifies a failure by how far it is allowed to propagate.
type Kind int

const (
	// KindUnknown is used for errors that were never classified.
	KindUnknown Kind = iota
	// KindTransient covers timeouts, refused connections and bad HTTP statuses.
	// The URL is skipped and the run continues.
	KindTransient
	// KindParse covers malformed numbers, missing selectors and bad markup.
	// The affected field stays unset.
	KindParse
	// KindStructural means the page legitimately holds nothing useful:
	// no inventory, zero candidates.
	KindStructural
	// KindResource means a render session or similar resource could not be
	// acquired. Fatal for the dealer unit only.
	KindResource
	// KindPersistence means the store rejected or could not take a write.
	// Fatal for the whole run.
	KindPersistence
	// KindConfig is an invalid configuration.
	KindConfig
)

var kindNames = map[Kind]string{
	KindUnknown:     "unknown",
	KindTransient:   "transient",
	KindParse:       "parse",
	KindStructural:  "structural",
	KindResource:    "resource",
	KindPersistence: "persistence",
	KindConfig:      "config",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Kinds lists every kind in a stable order, for summaries and metrics.
func Kinds() []Kind {
	return []Kind{KindTransient, KindParse, KindStructural, KindResource, KindPersistence, KindConfig, KindUnknown}
}

// Error is a classified failure of one operation on one URL.
type Error struct {
	Kind Kind
	Op   string
	URL  string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	if e.URL != "" {
		b.WriteString(" ")
		b.WriteString(e.URL)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error.
func New(kind Kind, op, url string, err error) *Error {
	return &Error{Kind: kind, Op: op, URL: url, Err: err}
}

// Transient wraps a network-level failure.
func Transient(op, url string, err error) *Error {
	return New(KindTransient, op, url, err)
}

// Parse wraps a format failure.
func Parse(op, url string, err error) *Error {
	return New(KindParse, op, url, err)
}

// Structural wraps an empty-result condition.
func Structural(op, url string, err error) *Error {
	return New(KindStructural, op, url, err)
}

// Resource wraps a resource-acquisition failure.
func Resource(op, url string, err error) *Error {
	return New(KindResource, op, url, err)
}

// Persistence wraps a store failure.
func Persistence(op, url string, err error) *Error {
	return New(KindPersistence, op, url, err)
}

// Config wraps a configuration failure.
func Config(op string, err error) *Error {
	return New(KindConfig, op, "", err)
}

// StatusError reports a non-success HTTP status.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	switch {
	case e.StatusCode == 429:
		return true
	case e.StatusCode >= 500 && e.StatusCode <= 504:
		return true
	case e.StatusCode >= 520 && e.StatusCode <= 524:
		return true
	}
	return false
}

// KindOf classifies any error. Classified errors keep their kind; context
// deadlines, network errors and HTTP statuses count as transient.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var classified *Error
	if stderrors.As(err, &classified) {
		return classified.Kind
	}
	var status *StatusError
	if stderrors.As(err, &status) {
		return KindTransient
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return KindTransient
	}
	var urlErr *url.Error
	if stderrors.As(err, &urlErr) {
		return KindTransient
	}
	return KindUnknown
}

// IsRetryable reports whether another attempt could succeed.
func IsRetryable(err error) bool {
	if err == nil || stderrors.Is(err, context.Canceled) {
		return false
	}
	var status *StatusError
	if stderrors.As(err, &status) {
		return status.Retryable()
	}
	return KindOf(err) == KindTransient
}

// IsFatalForRun reports whether the whole run must stop.
func IsFatalForRun(err error) bool {
	return KindOf(err) == KindPersistence
}

// IsFatalForDealer reports whether the current dealer unit must stop.
func IsFatalForDealer(err error) bool {
	k := KindOf(err)
	return k == KindResource || k == KindPersistence
}

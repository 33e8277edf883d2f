// Package crawlerr classifies pipeline failures so they can be logged with an error type.
package crawlerr

import (
	"errors"
	"fmt"

	"NewsIngest/internal/domain"
)

// Error attaches a taxonomy type and the failing operation to an underlying error.
type Error struct {
	Type domain.ErrorType
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Type, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Type, e.Op, e.Err)
}

// Unwrap exposes the wrapped error to errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a typed error.
func New(t domain.ErrorType, op string, err error) *Error {
	return &Error{Type: t, Op: op, Err: err}
}

func Network(op string, err error) error  { return New(domain.ErrorNetwork, op, err) }
func Parse(op string, err error) error    { return New(domain.ErrorParse, op, err) }
func IO(op string, err error) error       { return New(domain.ErrorIO, op, err) }
func Database(op string, err error) error { return New(domain.ErrorDatabase, op, err) }
func AI(op string, err error) error       { return New(domain.ErrorAI, op, err) }
func Crawl(op string, err error) error    { return New(domain.ErrorCrawl, op, err) }

// TypeOf returns the type of the outermost classified error in the chain.
func TypeOf(err error) domain.ErrorType {
	if err == nil {
		return domain.ErrorNone
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Type
	}
	return domain.ErrorUnknown
}

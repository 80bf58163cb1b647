package hostbridge

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"

	"github.com/flutterbridge/hostbridge/instance"
)

const (
	CodeNotFound      = "NOT_FOUND"
	CodeUnavailable   = "UNAVAILABLE"
	CodeAlreadyActive = "ALREADY_ACTIVE"
	// CodeInvalidArgument marks identifiers the instance manager refuses.
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeChannelError    = "channel-error"
)

// Error is the structured failure delivered to the UI side.
type Error struct {
	Code    string
	Message string
	Details any
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func NotFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func Unavailable(format string, args ...any) *Error {
	return &Error{Code: CodeUnavailable, Message: fmt.Sprintf(format, args...)}
}

func AlreadyActive(format string, args ...any) *Error {
	return &Error{Code: CodeAlreadyActive, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrNotFound      = &Error{Code: CodeNotFound}
	ErrUnavailable   = &Error{Code: CodeUnavailable}
	ErrAlreadyActive = &Error{Code: CodeAlreadyActive}
)

// PanicError carries a value recovered from a handler.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// ArgumentError reports an argument of the wrong type or a missing one.
type ArgumentError struct {
	Channel string
	Index   int
	Want    string
	Got     any
}

func (e *ArgumentError) Error() string {
	if e.Got == nil {
		return fmt.Sprintf("%s: argument %d: want %s, got nothing", e.Channel, e.Index, e.Want)
	}
	return fmt.Sprintf("%s: argument %d: want %s, got %T", e.Channel, e.Index, e.Want, e.Got)
}

// WrapError turns any error into the structure sent to the UI side. An
// *Error anywhere in the chain is passed through. Anything else is coded
// by the type name of its root cause, so the UI side can branch on known
// failure kinds without knowing host types.
func WrapError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{
		Code:    typeName(rootCause(err)),
		Message: err.Error(),
		Details: fmt.Sprintf("%+v", err),
	}
}

// instanceError turns instance manager refusals into bridge errors.
func instanceError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, instance.ErrClosed):
		return &Error{Code: CodeUnavailable, Message: err.Error()}
	case errors.Is(err, instance.ErrIdentifierInUse),
		errors.Is(err, instance.ErrInstanceInUse),
		errors.Is(err, instance.ErrInvalidIdentifier),
		errors.Is(err, instance.ErrNilInstance):
		return &Error{Code: CodeInvalidArgument, Message: err.Error()}
	}
	return err
}

// rootCause follows both Cause and Unwrap links to the error that started
// the chain.
func rootCause(err error) error {
	for {
		if c, ok := err.(interface{ Cause() error }); ok && c.Cause() != nil {
			err = c.Cause()
			continue
		}
		if next := errors.Unwrap(err); next != nil {
			err = next
			continue
		}
		return err
	}
}

func typeName(v any) string {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return t.String()
	}
	return t.Name()
}

func (e *Error) envelope() []any {
	return []any{e.Code, e.Message, e.Details}
}

// decodeReply unpacks a [result] or [code, message, details] reply.
func decodeReply(channel string, v any) (any, error) {
	list, ok := v.([]any)
	switch {
	case v == nil:
		return nil, &Error{Code: CodeChannelError, Message: fmt.Sprintf("unable to establish connection on channel %q", channel)}
	case !ok:
		return nil, errors.Errorf("hostbridge: reply on %q is %T, not a list", channel, v)
	case len(list) == 1:
		return list[0], nil
	case len(list) == 3:
		e := &Error{Details: list[2]}
		e.Code, _ = list[0].(string)
		e.Message, _ = list[1].(string)
		return nil, e
	}
	return nil, errors.Errorf("hostbridge: reply on %q has %d elements", channel, len(list))
}

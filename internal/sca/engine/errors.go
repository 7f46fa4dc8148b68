package engine

import (
	"errors"
	"fmt"

	"github.com/aussiebroadwan/scagate/internal/sca/spi"
)

// Kind classifies an engine error. The HTTP layer maps kinds to status codes.
type Kind string

const (
	KindNotFound             Kind = "NOT_FOUND"
	KindStatusInvalid        Kind = "STATUS_INVALID"
	KindPluginError          Kind = "PLUGIN_ERROR"
	KindScaMethodUnknown     Kind = "SCA_METHOD_UNKNOWN"
	KindRedirectExpired      Kind = "REDIRECT_EXPIRED"
	KindAuthorisationExpired Kind = "AUTHORISATION_EXPIRED"
	KindFormatError          Kind = "FORMAT_ERROR"
	KindConflict             Kind = "CONFLICT"
	KindInternal             Kind = "INTERNAL"
)

// Sentinels for errors.Is. They match any Error of the same kind.
var (
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrStatusInvalid        = &Error{Kind: KindStatusInvalid}
	ErrPluginError          = &Error{Kind: KindPluginError}
	ErrScaMethodUnknown     = &Error{Kind: KindScaMethodUnknown}
	ErrRedirectExpired      = &Error{Kind: KindRedirectExpired}
	ErrAuthorisationExpired = &Error{Kind: KindAuthorisationExpired}
	ErrFormatError          = &Error{Kind: KindFormatError}
	ErrConflict             = &Error{Kind: KindConflict}
	ErrInternal             = &Error{Kind: KindInternal}
)

// Message is one user facing error line, code plus text.
type Message struct {
	Code string
	Text string
}

// Error is returned by every engine and service operation that fails for a
// reason the caller should see.
type Error struct {
	Kind     Kind
	Messages []Message

	// NokRedirectURI is set for the expiry kinds so the PSU can be sent back.
	NokRedirectURI string

	err error
}

func (e *Error) Error() string {
	if len(e.Messages) == 0 {
		return string(e.Kind)
	}
	m := e.Messages[0]
	if m.Text == "" {
		return fmt.Sprintf("%s: %s", e.Kind, m.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, m.Code, m.Text)
}

func (e *Error) Unwrap() error { return e.err }

// Is matches by kind so callers can write errors.Is(err, engine.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Code is the first message code, or the kind when there is none.
func (e *Error) Code() string {
	if len(e.Messages) > 0 {
		return e.Messages[0].Code
	}
	return string(e.Kind)
}

// NewError builds an Error with a single message.
func NewError(kind Kind, code, text string) *Error {
	return &Error{Kind: kind, Messages: []Message{{Code: code, Text: text}}}
}

// Internal wraps an unexpected failure. The cause stays out of the message.
func Internal(err error) *Error {
	return &Error{
		Kind:     KindInternal,
		Messages: []Message{{Code: "INTERNAL_SERVER_ERROR", Text: "internal error"}},
		err:      err,
	}
}

// PluginError surfaces a bank reported failure with its code and text intact.
func PluginError(pe *spi.Error) *Error {
	return &Error{
		Kind:     KindPluginError,
		Messages: []Message{{Code: pe.Code, Text: pe.Text}},
		err:      pe,
	}
}

// Expired builds one of the two expiry errors.
func Expired(kind Kind, nokRedirectURI string) *Error {
	text := "authorisation has expired"
	if kind == KindRedirectExpired {
		text = "redirect link has expired"
	}
	e := NewError(kind, "TIMESTAMP_INVALID", text)
	e.NokRedirectURI = nokRedirectURI
	return e
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err is an engine error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func notFound(code, text string) *Error { return NewError(KindNotFound, code, text) }
func formatError(text string) *Error    { return NewError(KindFormatError, spi.CodeFormatError, text) }
func statusInvalid(text string) *Error  { return NewError(KindStatusInvalid, "STATUS_INVALID", text) }
func methodUnknown(text string) *Error {
	return NewError(KindScaMethodUnknown, spi.CodeScaMethodUnknown, text)
}
func credentialsInvalid(text string) *Error {
	return NewError(KindPluginError, spi.CodePsuCredentialsInvalid, text)
}

package scasdk

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/scagate/pkg/httpx"
)

// CategoryError is the only tppMessages category the service emits.
const CategoryError = "ERROR"

// Message codes the service uses in tppMessages.
const (
	CodeFormatError           = "FORMAT_ERROR"
	CodeResourceUnknown       = "RESOURCE_UNKNOWN"
	CodeConsentUnknown        = "CONSENT_UNKNOWN"
	CodeStatusInvalid         = "STATUS_INVALID"
	CodeServiceInvalid        = "SERVICE_INVALID"
	CodeScaMethodUnknown      = "SCA_METHOD_UNKNOWN"
	CodeScaInvalid            = "SCA_INVALID"
	CodePsuCredentialsInvalid = "PSU_CREDENTIALS_INVALID"
	CodeServiceBlocked        = "SERVICE_BLOCKED"
	CodeTimestampInvalid      = "TIMESTAMP_INVALID"
	CodeCancellationInvalid   = "CANCELLATION_INVALID"
	CodeConflict              = "CONFLICT"
	CodeAccessExceeded        = "ACCESS_EXCEEDED"
	CodeTokenInvalid          = "TOKEN_INVALID"
	CodeInternalServerError   = "INTERNAL_SERVER_ERROR"
)

// TppMessage is one entry of the tppMessages array.
type TppMessage struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Path     string `json:"path,omitempty"`
	Text     string `json:"text,omitempty"`
}

// ErrorResponse is the error body of every failed call. It implements error
// for the client and WriteError for the server.
type ErrorResponse struct {
	// StatusCode is the HTTP status the body travelled with.
	StatusCode int `json:"-"`

	TppMessages []TppMessage `json:"tppMessages"`

	// NokRedirectURI is where the PSU should be sent after an expiry.
	NokRedirectURI string `json:"nokRedirectUri,omitempty"`

	// ScaStatus is the status the authorisation was left in, when known.
	ScaStatus string `json:"scaStatus,omitempty"`
}

// NewErrorResponse builds an ErrorResponse with a single ERROR message.
func NewErrorResponse(statusCode int, code, text string) *ErrorResponse {
	return &ErrorResponse{
		StatusCode:  statusCode,
		TppMessages: []TppMessage{{Category: CategoryError, Code: code, Text: text}},
	}
}

// Error implements the error interface.
func (e *ErrorResponse) Error() string {
	if len(e.TppMessages) == 0 {
		return fmt.Sprintf("scasdk: HTTP %d", e.StatusCode)
	}
	m := e.TppMessages[0]
	return fmt.Sprintf("scasdk: HTTP %d: %s: %s", e.StatusCode, m.Code, m.Text)
}

// Code returns the first message code, or "" when there is none.
func (e *ErrorResponse) Code() string {
	if len(e.TppMessages) == 0 {
		return ""
	}
	return e.TppMessages[0].Code
}

// WriteError writes e to an HTTP response writer.
func (e *ErrorResponse) WriteError(w http.ResponseWriter) {
	status := e.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	httpx.WriteJSON(w, status, e)
}

// parseErrorResponse turns a non success answer into an *ErrorResponse. A
// body that is not a tppMessages document still yields one, coded from the
// status.
func parseErrorResponse(resp *http.Response, body []byte) error {
	errResp := &ErrorResponse{}
	if err := json.Unmarshal(body, errResp); err == nil && len(errResp.TppMessages) > 0 {
		errResp.StatusCode = resp.StatusCode
		return errResp
	}

	code := CodeInternalServerError
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		code = CodeTokenInvalid
	case http.StatusTooManyRequests:
		code = CodeAccessExceeded
	case http.StatusNotFound:
		code = CodeResourceUnknown
	}
	return NewErrorResponse(resp.StatusCode, code,
		fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
}

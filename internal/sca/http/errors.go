package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/scagate/internal/sca/domain"
	"github.com/aussiebroadwan/scagate/internal/sca/engine"
	"github.com/aussiebroadwan/scagate/pkg/scasdk"
	"github.com/aussiebroadwan/scagate/pkg/slogx"
)

// statusFor maps an engine error to the HTTP status it travels with.
func statusFor(e *engine.Error) int {
	switch e.Kind {
	case engine.KindNotFound:
		if e.Code() == scasdk.CodeConsentUnknown {
			return http.StatusForbidden
		}
		return http.StatusNotFound
	case engine.KindStatusInvalid, engine.KindConflict:
		return http.StatusConflict
	case engine.KindPluginError:
		switch e.Code() {
		case scasdk.CodePsuCredentialsInvalid:
			return http.StatusUnauthorized
		case scasdk.CodeServiceBlocked:
			return http.StatusForbidden
		}
		return http.StatusBadRequest
	case engine.KindScaMethodUnknown, engine.KindFormatError:
		return http.StatusBadRequest
	case engine.KindRedirectExpired, engine.KindAuthorisationExpired:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with the tppMessages body for err. status is the SCA
// status the record was left in, empty when the call failed before any
// stage ran.
func writeError(w http.ResponseWriter, r *http.Request, err error, status domain.ScaStatus) {
	var e *engine.Error
	if !errors.As(err, &e) {
		e = engine.Internal(err)
	}

	code := statusFor(e)
	if code == http.StatusInternalServerError {
		slogx.FromContext(r.Context()).Error("request failed", "error", err)
	}

	resp := &scasdk.ErrorResponse{
		StatusCode:     code,
		NokRedirectURI: e.NokRedirectURI,
		ScaStatus:      string(status),
	}
	for _, m := range e.Messages {
		resp.TppMessages = append(resp.TppMessages, scasdk.TppMessage{
			Category: scasdk.CategoryError,
			Code:     m.Code,
			Text:     m.Text,
		})
	}
	if len(resp.TppMessages) == 0 {
		resp.TppMessages = []scasdk.TppMessage{{Category: scasdk.CategoryError, Code: string(e.Kind)}}
	}
	resp.WriteError(w)
}

func writeFormatError(w http.ResponseWriter, text string) {
	scasdk.NewErrorResponse(http.StatusBadRequest, scasdk.CodeFormatError, text).WriteError(w)
}

package http

import (
	"net/http"

	"github.com/aussiebroadwan/scagate/internal/sca/domain"
	"github.com/aussiebroadwan/scagate/internal/sca/service"
	"github.com/aussiebroadwan/scagate/pkg/httpx"
	"github.com/aussiebroadwan/scagate/pkg/scasdk"
)

// RedirectHandler serves the bank hosted PSU pages of the REDIRECT approach.
type RedirectHandler struct {
	RedirectService *service.RedirectService
}

// HandleResolve handles GET /psu-api/v1/redirect/{redirectId}
//
//	@Summary		Resolve a redirect link
//	@Description	Looks up the authorisation behind a redirect link. An expired link answers 408 with the NOK redirect URI.
//	@Tags			PSU
//	@Produce		json
//	@Param			redirectId	path		string					true	"Redirect id from the scaRedirect link"
//	@Success		200			{object}	scasdk.RedirectResponse	"Authorisation behind the link"
//	@Failure		404			{object}	scasdk.ErrorResponse	"Unknown redirect id"
//	@Failure		408			{object}	scasdk.ErrorResponse	"Redirect link expired"
//	@Router			/psu-api/v1/redirect/{redirectId} [get].
func (h *RedirectHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	a, err := h.RedirectService.ResolveRedirect(r.Context(), r.PathValue("redirectId"))
	if err != nil {
		writeError(w, r, err, "")
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, scasdk.RedirectResponse{
		AuthorisationID:   a.ID,
		ParentID:          a.ParentID,
		AuthorisationType: string(a.Type),
		ScaStatus:         string(a.Status),
		PsuData:           toSDKPsu(a.PsuData),
		NokRedirectURI:    a.NokRedirectURI,
		ExpiresAt:         a.RedirectExpiresAt,
	})
}

// HandleStatusUpdate handles PUT /psu-api/v1/authorisations/{authorisationId}/status/{status}
//
//	@Summary		Push an SCA status
//	@Description	Applies the status the bank pushes once the PSU is done. Only REDIRECT and DECOUPLED authorisations accept a push.
//	@Tags			PSU
//	@Produce		json
//	@Param			authorisationId	path		string						true	"Authorisation id"
//	@Param			status			path		string						true	"New SCA status"	Enums(PSU_IDENTIFIED, PSU_AUTHENTICATED, SCA_METHOD_SELECTED, FINALISED, FAILED, EXEMPTED)
//	@Success		200				{object}	scasdk.ScaStatusResponse	"Status applied"
//	@Failure		400				{object}	scasdk.ErrorResponse		"Unknown status"
//	@Failure		404				{object}	scasdk.ErrorResponse		"Unknown authorisation"
//	@Failure		408				{object}	scasdk.ErrorResponse		"Authorisation expired"
//	@Failure		409				{object}	scasdk.ErrorResponse		"Approach or status does not allow the push"
//	@Failure		429				{object}	scasdk.ErrorResponse		"Rate limit exceeded"
//	@Router			/psu-api/v1/authorisations/{authorisationId}/status/{status} [put].
func (h *RedirectHandler) HandleStatusUpdate(w http.ResponseWriter, r *http.Request) {
	status, err := domain.ParseScaStatus(r.PathValue("status"))
	if err != nil {
		writeFormatError(w, "unknown scaStatus "+r.PathValue("status"))
		return
	}

	a, err := h.RedirectService.UpdateStatus(r.Context(), r.PathValue("authorisationId"), status)
	if err != nil {
		writeError(w, r, err, "")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, scasdk.ScaStatusResponse{ScaStatus: string(a.Status)})
}

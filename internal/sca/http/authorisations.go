package http

import (
	"net/http"

	"github.com/aussiebroadwan/scagate/internal/sca/domain"
	"github.com/aussiebroadwan/scagate/internal/sca/engine"
	"github.com/aussiebroadwan/scagate/internal/sca/service"
	"github.com/aussiebroadwan/scagate/pkg/httpx"
	"github.com/aussiebroadwan/scagate/pkg/scasdk"
	"github.com/aussiebroadwan/scagate/pkg/slogx"
)

// AuthorisationHandler serves the TPP facing authorisation resources of
// consents and payments.
type AuthorisationHandler struct {
	Dispatcher           *engine.Dispatcher
	AuthorisationService *service.AuthorisationService
}

// target resolves {service} and {objectId}. It writes the error itself and
// returns false when the service is unknown.
func target(w http.ResponseWriter, r *http.Request) (string, string, domain.AuthorisationType, bool) {
	svc := r.PathValue("service")
	t, ok := serviceTypes[scasdk.Service(svc)]
	if !ok {
		scasdk.NewErrorResponse(http.StatusNotFound, scasdk.CodeResourceUnknown, "unknown service "+svc).WriteError(w)
		return "", "", "", false
	}
	return svc, r.PathValue("objectId"), t, true
}

// HandleStart handles POST /v1/{service}/{objectId}/authorisations
//
//	@Summary		Start an authorisation
//	@Description	Opens a new SCA authorisation for a consent or payment. The bank profile and TPP preference pick the approach.
//	@Tags			Authorisations
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			service						path		string								true	"Business object kind"	Enums(consents, payments, cancellations, funds-confirmations)
//	@Param			objectId					path		string								true	"Consent or payment id"
//	@Param			PSU-ID						header		string								false	"PSU id when there is no psuData body"
//	@Param			TPP-Redirect-Preferred		header		bool								false	"Prefer the REDIRECT approach"
//	@Param			TPP-Decoupled-Preferred		header		bool								false	"Prefer the DECOUPLED approach"
//	@Param			request						body		scasdk.StartAuthorisationRequest	false	"PSU data and approach preference"
//	@Success		201							{object}	scasdk.AuthorisationResponse		"Authorisation created"
//	@Failure		400							{object}	scasdk.ErrorResponse				"Malformed request or service not offered"
//	@Failure		404							{object}	scasdk.ErrorResponse				"Unknown service or business object"
//	@Failure		429							{object}	scasdk.ErrorResponse				"Rate limit exceeded"
//	@Router			/v1/{service}/{objectId}/authorisations [post].
func (h *AuthorisationHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	svc, objectID, t, ok := target(w, r)
	if !ok {
		return
	}

	var req scasdk.StartAuthorisationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		log.Debug("invalid start authorisation body", "error", err)
		writeFormatError(w, "request body is not valid JSON")
		return
	}

	approach, ok := preferredApproach(r, req.PreferredScaApproach)
	if !ok {
		writeFormatError(w, "unknown preferredScaApproach "+req.PreferredScaApproach)
		return
	}

	nok := req.TppNokRedirectURI
	if nok == "" {
		nok = r.Header.Get(headerNokRedirectURI)
	}

	a, err := h.AuthorisationService.StartAuthorisation(ctx, service.StartRequest{
		ParentID:          objectID,
		Type:              t,
		Psu:               psuFromRequest(r, req.PsuData),
		PreferredApproach: approach,
		TppNokRedirectURI: nok,
	})
	if err != nil {
		writeError(w, r, err, "")
		return
	}

	w.Header().Set("Location", authorisationPath(svc, objectID, a.ID))
	httpx.WriteJSON(w, http.StatusCreated, toStartResponse(svc, a))
}

// HandleUpdate handles PUT /v1/{service}/{objectId}/authorisations/{authorisationId}
//
//	@Summary		Update PSU data
//	@Description	Advances the authorisation one stage with a password, a chosen SCA method, a TAN or a redirect confirmation code.
//	@Tags			Authorisations
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			service			path		string							true	"Business object kind"	Enums(consents, payments, cancellations, funds-confirmations)
//	@Param			objectId		path		string							true	"Consent or payment id"
//	@Param			authorisationId	path		string							true	"Authorisation id"
//	@Param			request			body		scasdk.UpdatePsuDataRequest		true	"Data for the current stage"
//	@Success		200				{object}	scasdk.AuthorisationResponse	"Authorisation advanced"
//	@Failure		400				{object}	scasdk.ErrorResponse			"Malformed request or wrong TAN"
//	@Failure		401				{object}	scasdk.ErrorResponse			"PSU credentials invalid"
//	@Failure		403				{object}	scasdk.ErrorResponse			"PSU blocked"
//	@Failure		404				{object}	scasdk.ErrorResponse			"Unknown authorisation"
//	@Failure		408				{object}	scasdk.ErrorResponse			"Authorisation expired"
//	@Failure		409				{object}	scasdk.ErrorResponse			"Status does not allow this update"
//	@Failure		429				{object}	scasdk.ErrorResponse			"Rate limit exceeded"
//	@Router			/v1/{service}/{objectId}/authorisations/{authorisationId} [put].
func (h *AuthorisationHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	svc, objectID, t, ok := target(w, r)
	if !ok {
		return
	}

	var req scasdk.UpdatePsuDataRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeFormatError(w, "request body is not valid JSON")
		return
	}

	u := engine.Update{
		BusinessObjectID: objectID,
		Type:             t,
		Psu:              psuFromRequest(r, req.PsuData),
		MethodID:         req.AuthenticationMethodID,
		AuthCode:         req.ScaAuthenticationData,
		ConfirmationCode: req.ConfirmationCode,
		TokenPsuID:       httpx.PsuIDFromContext(ctx),
	}
	if req.PsuAuthentication != nil {
		u.Password = req.PsuAuthentication.Password
	}

	resp, err := h.Dispatcher.Dispatch(ctx, r.PathValue("authorisationId"), u)
	if err != nil {
		writeError(w, r, err, resp.Status)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, toAuthorisationResponse(svc, objectID, resp))
}

// HandleStatus handles GET /v1/{service}/{objectId}/authorisations/{authorisationId}
//
//	@Summary		Get SCA status
//	@Tags			Authorisations
//	@Security		BearerAuth
//	@Produce		json
//	@Param			service			path		string						true	"Business object kind"	Enums(consents, payments, cancellations, funds-confirmations)
//	@Param			objectId		path		string						true	"Consent or payment id"
//	@Param			authorisationId	path		string						true	"Authorisation id"
//	@Success		200				{object}	scasdk.ScaStatusResponse	"Current status"
//	@Failure		404				{object}	scasdk.ErrorResponse		"Unknown authorisation"
//	@Router			/v1/{service}/{objectId}/authorisations/{authorisationId} [get].
func (h *AuthorisationHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	_, objectID, t, ok := target(w, r)
	if !ok {
		return
	}

	id := r.PathValue("authorisationId")
	a, err := h.AuthorisationService.GetAuthorisation(ctx, objectID, id)
	if err == nil && a.Type != t {
		err = engine.NewError(engine.KindNotFound, scasdk.CodeResourceUnknown, "authorisation "+id+" does not exist")
	}
	if err != nil {
		writeError(w, r, err, "")
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, scasdk.ScaStatusResponse{ScaStatus: string(a.Status)})
}

// HandleList handles GET /v1/{service}/{objectId}/authorisations
//
//	@Summary		List authorisations
//	@Description	Returns the ids of every authorisation of this kind started for the business object.
//	@Tags			Authorisations
//	@Security		BearerAuth
//	@Produce		json
//	@Param			service		path		string								true	"Business object kind"	Enums(consents, payments, cancellations, funds-confirmations)
//	@Param			objectId	path		string								true	"Consent or payment id"
//	@Success		200			{object}	scasdk.AuthorisationListResponse	"Authorisation ids"
//	@Failure		404			{object}	scasdk.ErrorResponse				"Unknown service"
//	@Router			/v1/{service}/{objectId}/authorisations [get].
func (h *AuthorisationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	_, objectID, t, ok := target(w, r)
	if !ok {
		return
	}

	ids, err := h.AuthorisationService.ListAuthorisations(ctx, objectID, t)
	if err != nil {
		writeError(w, r, err, "")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, scasdk.AuthorisationListResponse{AuthorisationIDs: ids})
}

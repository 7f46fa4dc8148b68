package scasdk

import (
	"context"
	"net/http"
)

// StartAuthorisation opens a new authorisation on a consent or payment.
func (c *SDKClient) StartAuthorisation(
	ctx context.Context,
	svc Service,
	objectID string,
	req StartAuthorisationRequest,
) (*AuthorisationResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, authorisationsPath(svc, objectID), req)
	if err != nil {
		return nil, err
	}

	var out AuthorisationResponse
	if err := decodeJSON(resp, &out, http.StatusCreated); err != nil {
		return nil, err
	}

	return &out, nil
}

// UpdatePsuData sends the next piece of PSU input to an authorisation.
func (c *SDKClient) UpdatePsuData(
	ctx context.Context,
	svc Service,
	objectID, authorisationID string,
	req UpdatePsuDataRequest,
) (*AuthorisationResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPut, authorisationPath(svc, objectID, authorisationID), req)
	if err != nil {
		return nil, err
	}

	var out AuthorisationResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}

	return &out, nil
}

// GetScaStatus reads the current SCA status of an authorisation.
func (c *SDKClient) GetScaStatus(
	ctx context.Context,
	svc Service,
	objectID, authorisationID string,
) (*ScaStatusResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, authorisationPath(svc, objectID, authorisationID), nil)
	if err != nil {
		return nil, err
	}

	var out ScaStatusResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}

	return &out, nil
}

// ListAuthorisations returns the authorisation ids started on a business
// object for the given service.
func (c *SDKClient) ListAuthorisations(
	ctx context.Context,
	svc Service,
	objectID string,
) (*AuthorisationListResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, authorisationsPath(svc, objectID), nil)
	if err != nil {
		return nil, err
	}

	var out AuthorisationListResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}

	return &out, nil
}

package scasdk

import (
	"context"
	"net/http"
	"net/url"
)

// ResolveRedirect looks up the authorisation behind a redirect id. Expired
// links come back as an *ErrorResponse with NokRedirectURI set.
func (c *SDKClient) ResolveRedirect(ctx context.Context, redirectID string) (*RedirectResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/psu-api/v1/redirect/"+url.PathEscape(redirectID), nil)
	if err != nil {
		return nil, err
	}

	var out RedirectResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}

	return &out, nil
}

// UpdateStatus pushes the outcome of a bank hosted SCA.
func (c *SDKClient) UpdateStatus(ctx context.Context, authorisationID, status string) (*ScaStatusResponse, error) {
	path := "/psu-api/v1/authorisations/" + url.PathEscape(authorisationID) + "/status/" + url.PathEscape(status)
	resp, err := c.doRequest(ctx, http.MethodPut, path, nil)
	if err != nil {
		return nil, err
	}

	var out ScaStatusResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}

	return &out, nil
}

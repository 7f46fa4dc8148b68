/*
Package scasdk provides a client SDK for the scagate SCA authorisation API.

# Overview

A TPP starts an authorisation for a consent or payment, then feeds PSU data
into it until it reaches a final SCA status:

	client := scasdk.NewSDKClient("https://sca.example.com")

	auth, err := client.StartAuthorisation(ctx, scasdk.ServiceConsents, consentID,
		scasdk.StartAuthorisationRequest{PreferredScaApproach: "EMBEDDED"})

	auth, err = client.UpdatePsuData(ctx, scasdk.ServiceConsents, consentID, auth.AuthorisationID,
		scasdk.UpdatePsuDataRequest{
			PsuData:           &scasdk.PsuData{PsuID: "alice"},
			PsuAuthentication: &scasdk.PsuAuthentication{Password: "secret"},
		})

	// scaStatus is now PSU_AUTHENTICATED, pick one of auth.ScaMethods
	auth, err = client.UpdatePsuData(ctx, scasdk.ServiceConsents, consentID, auth.AuthorisationID,
		scasdk.UpdatePsuDataRequest{AuthenticationMethodID: auth.ScaMethods[0].AuthenticationMethodID})

	auth, err = client.UpdatePsuData(ctx, scasdk.ServiceConsents, consentID, auth.AuthorisationID,
		scasdk.UpdatePsuDataRequest{ScaAuthenticationData: "123456"})

For the OAUTH approach set AccessToken on the client; the bearer token subject
identifies the PSU and the password step is skipped.

# Redirect

The bank hosted page resolves a redirect id and pushes the outcome back:

	r, err := client.ResolveRedirect(ctx, redirectID)
	st, err := client.UpdateStatus(ctx, r.AuthorisationID, "FINALISED")

# Error Handling

Every non 2xx answer is returned as *ErrorResponse carrying the HTTP status,
the tppMessages and, for expiry errors, the nokRedirectUri:

	var apiErr *scasdk.ErrorResponse
	if errors.As(err, &apiErr) && apiErr.Code() == scasdk.CodeTimestampInvalid {
		http.Redirect(w, r, apiErr.NokRedirectURI, http.StatusFound)
	}

ErrorResponse.WriteError is used by the server to produce the same body.
*/
package scasdk

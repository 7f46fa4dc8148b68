package sca_test

import (
	"context"
	"net/http"
	"path"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/scagate/internal/sca/domain"
	"github.com/aussiebroadwan/scagate/pkg/scasdk"
)

func TestHealth(t *testing.T) {
	gw := setupGateway(t, false)
	ctx := context.Background()

	live, err := gw.client.GetLiveness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", live.Status)

	ready, err := gw.client.GetReadiness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Status)
	require.Equal(t, "ok", ready.Checks["database"])
	require.Equal(t, "ok", ready.Checks["cache"])
}

func TestEmbeddedPaymentWithAuthenticatorApp(t *testing.T) {
	gw := setupGateway(t, false)
	ctx := context.Background()
	paymentID := gw.seedPayment(t, "sepa-credit-transfers", "250.00")

	started, err := gw.client.StartAuthorisation(ctx, scasdk.ServicePayments, paymentID, scasdk.StartAuthorisationRequest{
		PsuData:              &scasdk.PsuData{PsuID: "alice"},
		PreferredScaApproach: "EMBEDDED",
	})
	require.NoError(t, err)
	require.Equal(t, "RECEIVED", started.ScaStatus)
	require.Equal(t, "EMBEDDED", started.ScaApproach)
	id := started.AuthorisationID

	resp, err := gw.client.UpdatePsuData(ctx, scasdk.ServicePayments, paymentID, id, scasdk.UpdatePsuDataRequest{
		PsuAuthentication: &scasdk.PsuAuthentication{Password: "alice-secret"},
	})
	require.NoError(t, err)
	require.Equal(t, "PSU_AUTHENTICATED", resp.ScaStatus)
	require.Len(t, resp.ScaMethods, 3)

	resp, err = gw.client.UpdatePsuData(ctx, scasdk.ServicePayments, paymentID, id, scasdk.UpdatePsuDataRequest{
		AuthenticationMethodID: "app",
	})
	require.NoError(t, err)
	require.Equal(t, "SCA_METHOD_SELECTED", resp.ScaStatus)
	require.Equal(t, "app", resp.ChosenScaMethod.AuthenticationMethodID)

	// A wrong code is an attempt failure, the status holds
	_, err = gw.client.UpdatePsuData(ctx, scasdk.ServicePayments, paymentID, id, scasdk.UpdatePsuDataRequest{
		ScaAuthenticationData: "000000x",
	})
	e := requireSDKError(t, err, http.StatusBadRequest)
	require.Equal(t, scasdk.CodeScaInvalid, e.Code())
	require.Equal(t, "SCA_METHOD_SELECTED", e.ScaStatus)

	code, err := totp.GenerateCode("JBSWY3DPEHPK3PXP", time.Now())
	require.NoError(t, err)
	resp, err = gw.client.UpdatePsuData(ctx, scasdk.ServicePayments, paymentID, id, scasdk.UpdatePsuDataRequest{
		ScaAuthenticationData: code,
	})
	require.NoError(t, err)
	require.Equal(t, "FINALISED", resp.ScaStatus)

	payment, err := gw.store.Payments().GetPayment(ctx, paymentID)
	require.NoError(t, err)
	require.Equal(t, domain.TransactionSettlementIP, payment.Status)

	a, err := gw.store.Authorisations().GetAuthorisation(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFinalised, a.Status)
	require.Equal(t, "alice", a.PsuData.PsuID)
}

func TestLowValuePaymentIsExempted(t *testing.T) {
	gw := setupGateway(t, false)
	ctx := context.Background()
	paymentID := gw.seedPayment(t, "instant-sepa-credit-transfers", "25.00")

	started, err := gw.client.StartAuthorisation(ctx, scasdk.ServicePayments, paymentID, scasdk.StartAuthorisationRequest{
		PsuData:              &scasdk.PsuData{PsuID: "bob"},
		PreferredScaApproach: "EMBEDDED",
	})
	require.NoError(t, err)

	resp, err := gw.client.UpdatePsuData(ctx, scasdk.ServicePayments, paymentID, started.AuthorisationID, scasdk.UpdatePsuDataRequest{
		PsuAuthentication: &scasdk.PsuAuthentication{Password: "bob-secret"},
	})
	require.NoError(t, err)
	require.Equal(t, "EXEMPTED", resp.ScaStatus)

	payment, err := gw.store.Payments().GetPayment(ctx, paymentID)
	require.NoError(t, err)
	require.Equal(t, domain.TransactionSettled, payment.Status)
}

func TestBlockedPsu(t *testing.T) {
	gw := setupGateway(t, false)
	ctx := context.Background()
	consentID := gw.seedConsent(t)

	started, err := gw.client.StartAuthorisation(ctx, scasdk.ServiceConsents, consentID, scasdk.StartAuthorisationRequest{
		PsuData:              &scasdk.PsuData{PsuID: "mallory"},
		PreferredScaApproach: "EMBEDDED",
	})
	require.NoError(t, err)

	_, err = gw.client.UpdatePsuData(ctx, scasdk.ServiceConsents, consentID, started.AuthorisationID, scasdk.UpdatePsuDataRequest{
		PsuAuthentication: &scasdk.PsuAuthentication{Password: "mallory-secret"},
	})
	e := requireSDKError(t, err, http.StatusForbidden)
	require.Equal(t, scasdk.CodeServiceBlocked, e.Code())
}

func TestRedirectCancellation(t *testing.T) {
	gw := setupGateway(t, false)
	ctx := context.Background()
	paymentID := gw.seedPayment(t, "sepa-credit-transfers", "99.00")

	started, err := gw.client.StartAuthorisation(ctx, scasdk.ServiceCancellations, paymentID, scasdk.StartAuthorisationRequest{
		PsuData:           &scasdk.PsuData{PsuID: "alice"},
		TppNokRedirectURI: "https://tpp.example/nok",
	})
	require.NoError(t, err)
	require.Equal(t, "REDIRECT", started.ScaApproach)
	link, ok := started.Links[scasdk.LinkScaRedirect]
	require.True(t, ok)

	// The redirect id is served from redis
	resolved, err := gw.client.ResolveRedirect(ctx, path.Base(link.Href))
	require.NoError(t, err)
	require.Equal(t, started.AuthorisationID, resolved.AuthorisationID)
	require.Equal(t, paymentID, resolved.ParentID)
	require.Equal(t, "PAYMENT_CANCELLATION", resolved.AuthorisationType)
	require.Equal(t, "https://tpp.example/nok", resolved.NokRedirectURI)

	pushed, err := gw.client.UpdateStatus(ctx, started.AuthorisationID, "FINALISED")
	require.NoError(t, err)
	require.Equal(t, "FINALISED", pushed.ScaStatus)

	payment, err := gw.store.Payments().GetPayment(ctx, paymentID)
	require.NoError(t, err)
	require.Equal(t, domain.TransactionRevokedByPsu, payment.Status)

	// Cancellation authorisations are not visible under the payment service
	_, err = gw.client.GetScaStatus(ctx, scasdk.ServicePayments, paymentID, started.AuthorisationID)
	requireSDKError(t, err, http.StatusNotFound)

	status, err := gw.client.GetScaStatus(ctx, scasdk.ServiceCancellations, paymentID, started.AuthorisationID)
	require.NoError(t, err)
	require.Equal(t, "FINALISED", status.ScaStatus)
}

func TestDecoupledConsent(t *testing.T) {
	gw := setupGateway(t, false)
	ctx := context.Background()
	consentID := gw.seedConsent(t)

	started, err := gw.client.StartAuthorisation(ctx, scasdk.ServiceConsents, consentID, scasdk.StartAuthorisationRequest{
		PsuData:              &scasdk.PsuData{PsuID: "alice"},
		PreferredScaApproach: "EMBEDDED",
	})
	require.NoError(t, err)
	id := started.AuthorisationID

	_, err = gw.client.UpdatePsuData(ctx, scasdk.ServiceConsents, consentID, id, scasdk.UpdatePsuDataRequest{
		PsuAuthentication: &scasdk.PsuAuthentication{Password: "alice-secret"},
	})
	require.NoError(t, err)

	resp, err := gw.client.UpdatePsuData(ctx, scasdk.ServiceConsents, consentID, id, scasdk.UpdatePsuDataRequest{
		AuthenticationMethodID: "push",
	})
	require.NoError(t, err)
	require.Equal(t, "SCA_METHOD_SELECTED", resp.ScaStatus)
	require.Equal(t, "DECOUPLED", resp.ScaApproach)
	require.Nil(t, resp.ChosenScaMethod)
	require.Nil(t, resp.ChallengeData)
	require.NotEmpty(t, resp.PsuMessage)
	require.NotContains(t, resp.Links, scasdk.LinkAuthoriseTxn)

	// The banking app reports back once the PSU confirmed
	pushed, err := gw.client.UpdateStatus(ctx, id, "FINALISED")
	require.NoError(t, err)
	require.Equal(t, "FINALISED", pushed.ScaStatus)

	consent, err := gw.store.Consents().GetConsent(ctx, consentID)
	require.NoError(t, err)
	require.Equal(t, domain.ConsentValid, consent.Status)
}

func TestOAuthConsent(t *testing.T) {
	gw := setupGateway(t, true)
	ctx := context.Background()
	consentID := gw.seedConsent(t)

	authed := gw.client.WithAccessToken(gw.token(t, "bob"))

	started, err := authed.StartAuthorisation(ctx, scasdk.ServiceConsents, consentID, scasdk.StartAuthorisationRequest{})
	require.NoError(t, err)
	require.Equal(t, "OAUTH", started.ScaApproach)
	require.Equal(t, "bob", started.PsuData.PsuID)
	id := started.AuthorisationID

	resp, err := authed.UpdatePsuData(ctx, scasdk.ServiceConsents, consentID, id, scasdk.UpdatePsuDataRequest{})
	require.NoError(t, err)
	require.Equal(t, "SCA_METHOD_SELECTED", resp.ScaStatus)
	require.Equal(t, "sms", resp.ChosenScaMethod.AuthenticationMethodID)

	resp, err = authed.UpdatePsuData(ctx, scasdk.ServiceConsents, consentID, id, scasdk.UpdatePsuDataRequest{
		ScaAuthenticationData: "654321",
	})
	require.NoError(t, err)
	require.Equal(t, "FINALISED", resp.ScaStatus)

	consent, err := gw.store.Consents().GetConsent(ctx, consentID)
	require.NoError(t, err)
	require.Equal(t, domain.ConsentValid, consent.Status)
}

func TestListAuthorisations(t *testing.T) {
	gw := setupGateway(t, false)
	ctx := context.Background()
	consentID := gw.seedConsent(t)

	var ids []string
	for range 2 {
		started, err := gw.client.StartAuthorisation(ctx, scasdk.ServiceConsents, consentID, scasdk.StartAuthorisationRequest{
			PsuData: &scasdk.PsuData{PsuID: "alice"},
		})
		require.NoError(t, err)
		ids = append(ids, started.AuthorisationID)
	}

	list, err := gw.client.ListAuthorisations(ctx, scasdk.ServiceConsents, consentID)
	require.NoError(t, err)
	require.ElementsMatch(t, ids, list.AuthorisationIDs)

	// Other services don't see them
	list, err = gw.client.ListAuthorisations(ctx, scasdk.ServiceFundsConfirmations, consentID)
	require.NoError(t, err)
	require.Empty(t, list.AuthorisationIDs)
}

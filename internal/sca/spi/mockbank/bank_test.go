package mockbank

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/scagate/internal/sca/domain"
	"github.com/aussiebroadwan/scagate/internal/sca/spi"
	"github.com/aussiebroadwan/scagate/pkg/cryptox"
)

const aliceTOTPSecret = "JBSWY3DPEHPK3PXP"

func newTestBank(t *testing.T) *Bank {
	t.Helper()
	b, err := Load("")
	require.NoError(t, err)
	return b
}

func consentRequest(psuID string, blob []byte) spi.Request {
	return spi.Request{
		AuthorisationID: "auth-1",
		Type:            domain.TypeConsent,
		Approach:        domain.ApproachEmbedded,
		Psu:             domain.PsuData{PsuID: psuID},
		Subject:         spi.Subject{Consent: &domain.Consent{ID: "consent-1", Kind: domain.ConsentKindAIS}},
		Blob:            blob,
	}
}

func paymentRequest(amount string, blob []byte) spi.Request {
	return spi.Request{
		AuthorisationID: "auth-2",
		Type:            domain.TypePaymentCreation,
		Approach:        domain.ApproachEmbedded,
		Psu:             domain.PsuData{PsuID: "alice"},
		Subject: spi.Subject{Payment: &domain.Payment{
			ID:       "payment-1",
			Product:  "sepa-credit-transfers",
			Amount:   decimal.RequireFromString(amount),
			Currency: "EUR",
			Status:   domain.TransactionReceived,
		}},
		Blob: blob,
	}
}

func readSession(t *testing.T, blob []byte) session {
	t.Helper()
	var s session
	require.NoError(t, json.Unmarshal(blob, &s))
	return s
}

func TestParseFixtures(t *testing.T) {
	t.Parallel()

	f, err := ParseFixtures(defaultFixtures)
	require.NoError(t, err)
	require.Equal(t, 3, f.MaxAttempts)
	require.Len(t, f.Psus, 4)

	_, err = New(Fixtures{Psus: []PsuFixture{{ID: "x"}}})
	require.ErrorContains(t, err, "no password")

	_, err = New(Fixtures{Psus: []PsuFixture{{ID: "x", Password: "p"}, {ID: "x", Password: "p"}}})
	require.ErrorContains(t, err, "duplicate")

	_, err = New(Fixtures{Psus: []PsuFixture{{ID: "x", Password: "p", Methods: []MethodFixture{{ID: "sms"}}}}})
	require.ErrorContains(t, err, "needs a tan")

	_, err = New(Fixtures{Psus: []PsuFixture{{ID: "x", PasswordHash: "$bcrypt$not-argon"}}})
	require.ErrorIs(t, err, cryptox.ErrInvalidHash)

	hash, err := cryptox.HashPassword("p")
	require.NoError(t, err)
	_, err = New(Fixtures{Psus: []PsuFixture{{ID: "x", PasswordHash: hash}}})
	require.NoError(t, err)

	_, err = New(Fixtures{LowValueLimit: "cheap"})
	require.ErrorContains(t, err, "lowValueLimit")
}

func TestAuthorisePsu(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBank(t)
	alice := domain.PsuData{PsuID: "alice"}

	r := b.AuthorisePsu(ctx, consentRequest("alice", nil), alice, "alice-secret")
	require.False(t, r.HasError())
	require.Equal(t, spi.AuthorisationSuccess, r.Payload.Status)
	require.False(t, r.Payload.ScaExempted)
	s := readSession(t, r.Blob)
	require.Equal(t, "alice", s.PsuID)
	require.True(t, s.Authenticated)

	// Wrong password counts down, the last try is final
	var blob []byte
	for i, want := range []spi.AuthorisationStatus{
		spi.AuthorisationAttemptFailure,
		spi.AuthorisationAttemptFailure,
		spi.AuthorisationFailure,
	} {
		r = b.AuthorisePsu(ctx, consentRequest("alice", blob), alice, "nope")
		require.False(t, r.HasError())
		require.Equal(t, want, r.Payload.Status, "try %d", i+1)
		blob = r.Blob
	}
	require.Equal(t, 3, readSession(t, blob).Attempts)

	r = b.AuthorisePsu(ctx, consentRequest("mallory", nil), domain.PsuData{PsuID: "mallory"}, "mallory-secret")
	require.True(t, r.HasError())
	require.Equal(t, spi.CodeServiceBlocked, r.Err.Code)

	r = b.AuthorisePsu(ctx, consentRequest("eve", nil), domain.PsuData{PsuID: "eve"}, "x")
	require.Equal(t, spi.AuthorisationAttemptFailure, r.Payload.Status)
}

func TestAvailableMethods(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBank(t)

	cases := map[string]int{"alice": 3, "bob": 1, "carol": 0}
	for psuID, want := range cases {
		r := b.RequestAvailableScaMethods(ctx, consentRequest(psuID, nil))
		require.False(t, r.HasError(), psuID)
		require.Len(t, r.Payload.Methods, want, psuID)
		require.Equal(t, psuID, readSession(t, r.Blob).PsuID)
	}

	r := b.RequestAvailableScaMethods(ctx, consentRequest("eve", nil))
	require.True(t, r.HasError())
	require.Equal(t, spi.CodePsuCredentialsInvalid, r.Err.Code)
}

func TestLowValueExemption(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBank(t)
	alice := domain.PsuData{PsuID: "alice"}

	r := b.AuthorisePsu(ctx, paymentRequest("29.99", nil), alice, "alice-secret")
	require.True(t, r.Payload.ScaExempted)

	r = b.AuthorisePsu(ctx, paymentRequest("30.00", nil), alice, "alice-secret")
	require.True(t, r.Payload.ScaExempted)

	r = b.AuthorisePsu(ctx, paymentRequest("30.01", nil), alice, "alice-secret")
	require.False(t, r.Payload.ScaExempted)

	cancel := paymentRequest("1.00", nil)
	cancel.Type = domain.TypePaymentCancellation
	r = b.AuthorisePsu(ctx, cancel, alice, "alice-secret")
	require.False(t, r.Payload.ScaExempted)
}

func TestStaticTan(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBank(t)

	code := b.RequestAuthorisationCode(ctx, consentRequest("alice", nil), "sms")
	require.False(t, code.HasError())
	require.NotNil(t, code.Payload.Challenge)
	require.Equal(t, "sms", code.Payload.SelectedMethod.ID)
	require.Equal(t, 6, code.Payload.Challenge.OTPMaxLength)

	r := b.VerifyScaAuthorisation(ctx, consentRequest("alice", code.Blob), spi.Confirmation{MethodID: "sms", AuthCode: "000000"})
	require.True(t, r.HasError())
	require.True(t, r.Err.AttemptFailure)
	require.Equal(t, spi.CodeScaInvalid, r.Err.Code)
	require.Contains(t, r.Err.Text, "2 attempt(s) left")

	r = b.VerifyScaAuthorisation(ctx, consentRequest("alice", r.Blob), spi.Confirmation{MethodID: "sms", AuthCode: "123456"})
	require.False(t, r.HasError())
	require.Equal(t, domain.ConsentValid, r.Payload.ConsentStatus)
	require.True(t, readSession(t, r.Blob).Executed)
}

func TestStaticTanAttemptsRunOut(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBank(t)

	blob := b.RequestAuthorisationCode(ctx, consentRequest("bob", nil), "sms").Blob
	var last spi.Response[spi.Execution]
	for range 3 {
		last = b.VerifyScaAuthorisation(ctx, consentRequest("bob", blob), spi.Confirmation{AuthCode: "111111"})
		require.True(t, last.HasError())
		blob = last.Blob
	}
	require.False(t, last.Err.AttemptFailure)
}

func TestTOTP(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBank(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b.Now = func() time.Time { return now }

	code := b.RequestAuthorisationCode(ctx, consentRequest("alice", nil), "app")
	require.False(t, code.HasError())

	otp, err := totp.GenerateCode(aliceTOTPSecret, now)
	require.NoError(t, err)

	r := b.VerifyScaAuthorisation(ctx, consentRequest("alice", code.Blob), spi.Confirmation{MethodID: "app", AuthCode: otp})
	require.False(t, r.HasError())

	stale, err := totp.GenerateCode(aliceTOTPSecret, now.Add(-5*time.Minute))
	require.NoError(t, err)
	r = b.VerifyScaAuthorisation(ctx, consentRequest("alice", code.Blob), spi.Confirmation{MethodID: "app", AuthCode: stale})
	require.True(t, r.HasError())
}

func TestDecoupledPush(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBank(t)

	r := b.RequestAuthorisationCode(ctx, consentRequest("alice", nil), "push")
	require.Equal(t, spi.CodeScaMethodUnknown, r.Err.Code)

	start := b.StartDecoupled(ctx, consentRequest("alice", nil), "push")
	require.False(t, start.HasError())
	require.Contains(t, start.Payload.PsuMessage, "Banking app")

	s := readSession(t, start.Blob)
	require.NotEmpty(t, s.PushID)
	require.Equal(t, "push", s.MethodID)

	v := b.VerifyScaAuthorisation(ctx, consentRequest("alice", start.Blob), spi.Confirmation{AuthCode: s.PushID})
	require.False(t, v.HasError())

	d := b.StartDecoupled(ctx, consentRequest("alice", nil), "sms")
	require.Equal(t, spi.CodeScaMethodUnknown, d.Err.Code)
}

func TestRedirectConfirmationCode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBank(t)

	r := b.VerifyScaAuthorisation(ctx, consentRequest("alice", nil), spi.Confirmation{ConfirmationCode: "redirect-ok"})
	require.False(t, r.HasError())

	r = b.VerifyScaAuthorisation(ctx, consentRequest("alice", nil), spi.Confirmation{ConfirmationCode: "forged"})
	require.True(t, r.Err.AttemptFailure)
}

func TestPaymentExecution(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBank(t)

	r := b.ExecutePaymentWithoutSca(ctx, paymentRequest("10.00", nil))
	require.False(t, r.HasError())
	require.Equal(t, domain.TransactionSettlementIP, r.Payload.TransactionStatus)

	instant := paymentRequest("10.00", nil)
	instant.Subject.Payment.Product = instantProduct
	r = b.ExecutePaymentWithoutSca(ctx, instant)
	require.Equal(t, domain.TransactionSettled, r.Payload.TransactionStatus)

	code := b.RequestAuthorisationCode(ctx, paymentRequest("500.00", nil), "sms")
	r = b.VerifyScaAuthorisationAndExecutePayment(ctx, paymentRequest("500.00", code.Blob), spi.Confirmation{AuthCode: "123456"})
	require.False(t, r.HasError())
}

func TestCancellation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBank(t)

	req := paymentRequest("10.00", nil)
	req.Type = domain.TypePaymentCancellation
	r := b.CancelPaymentWithoutSca(ctx, req)
	require.False(t, r.HasError())
	require.Equal(t, domain.TransactionRevokedByPsu, r.Payload.TransactionStatus)

	req.Subject.Payment.Status = domain.TransactionSettled
	r = b.CancelPaymentWithoutSca(ctx, req)
	require.True(t, r.HasError())
	require.Equal(t, CodeCancellationInvalid, r.Err.Code)

	code := b.RequestAuthorisationCode(ctx, paymentRequest("10.00", nil), "sms")
	req = paymentRequest("10.00", code.Blob)
	req.Type = domain.TypePaymentCancellation
	r = b.VerifyScaAuthorisationAndCancelPayment(ctx, req, spi.Confirmation{AuthCode: "123456"})
	require.False(t, r.HasError())
	require.Equal(t, domain.TransactionRevokedByPsu, r.Payload.TransactionStatus)
}

func TestCorruptBlob(t *testing.T) {
	t.Parallel()
	b := newTestBank(t)

	r := b.RequestAvailableScaMethods(context.Background(), consentRequest("alice", []byte("{not json")))
	require.True(t, r.HasError())
	require.Equal(t, spi.CodeInternalServerError, r.Err.Code)
	require.Nil(t, r.Blob)
}

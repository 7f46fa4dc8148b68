// Package mockbank is an in-process bank plugin backed by YAML fixtures. It
// is good enough to drive every flow end to end without a real core banking
// system behind it.
package mockbank

import (
	"context"
	"fmt"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/shopspring/decimal"

	"github.com/aussiebroadwan/scagate/internal/sca/domain"
	"github.com/aussiebroadwan/scagate/internal/sca/spi"
	"github.com/aussiebroadwan/scagate/pkg/cryptox"
	"github.com/aussiebroadwan/scagate/pkg/slogx"
)

const (
	defaultMaxAttempts = 3
	pushIDBytes        = 16

	// CodeCancellationInvalid is reported when the payment can no longer be
	// cancelled.
	CodeCancellationInvalid = "CANCELLATION_INVALID"

	instantProduct = "instant-sepa-credit-transfers"
)

// Bank implements every spi plugin interface.
type Bank struct {
	psus             map[string]psu
	maxAttempts      int
	lowValueLimit    decimal.Decimal
	confirmationCode string

	// Now is used for TOTP validation.
	Now func() time.Time
}

var (
	_ spi.AccountConsent           = (*Bank)(nil)
	_ spi.FundsConfirmationConsent = (*Bank)(nil)
	_ spi.Payment                  = (*Bank)(nil)
	_ spi.PaymentCancellation      = (*Bank)(nil)
)

// New builds a bank from parsed fixtures.
func New(f Fixtures) (*Bank, error) {
	psus, limit, err := f.compile()
	if err != nil {
		return nil, err
	}
	maxAttempts := f.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Bank{
		psus:             psus,
		maxAttempts:      maxAttempts,
		lowValueLimit:    limit,
		confirmationCode: f.ConfirmationCode,
		Now:              time.Now,
	}, nil
}

// Plugins hands the bank out for all four authorisation types.
func (b *Bank) Plugins() spi.Plugins {
	return spi.Plugins{
		AccountConsent:      b,
		Payment:             b,
		PaymentCancellation: b,
		FundsConfirmation:   b,
	}
}

func fail[T any](code, text string, s session) spi.Response[T] {
	return spi.Fail[T](&spi.Error{Code: code, Text: text}, s.encode())
}

// attemptFailed counts a wrong guess. The PSU may retry until the budget is
// spent, after which the failure is final.
func attemptFailed[T any](b *Bank, code, text string, s session) spi.Response[T] {
	s.Attempts++
	if left := b.maxAttempts - s.Attempts; left > 0 {
		return spi.Fail[T](&spi.Error{
			Code:           code,
			Text:           fmt.Sprintf("%s, %d attempt(s) left", text, left),
			AttemptFailure: true,
		}, s.encode())
	}
	return fail[T](code, text+", no attempts left", s)
}

func (b *Bank) lookup(req spi.Request, s session) (psu, bool) {
	id := s.PsuID
	if id == "" {
		id = req.Psu.PsuID
	}
	p, ok := b.psus[id]
	return p, ok
}

// exempt applies the low value exemption to payments. Cancellations and
// consents always need SCA.
func (b *Bank) exempt(req spi.Request) bool {
	if req.Type != domain.TypePaymentCreation || req.Subject.Payment == nil || b.lowValueLimit.IsZero() {
		return false
	}
	return req.Subject.Payment.Amount.LessThanOrEqual(b.lowValueLimit)
}

func (b *Bank) AuthorisePsu(ctx context.Context, req spi.Request, psuData domain.PsuData, password string) spi.Response[spi.PsuAuthorisation] {
	s, perr := decodeSession(req.Blob)
	if perr != nil {
		return spi.Fail[spi.PsuAuthorisation](perr, nil)
	}

	p, ok := b.psus[psuData.PsuID]
	if ok && p.blocked {
		return fail[spi.PsuAuthorisation](spi.CodeServiceBlocked, "PSU is blocked", s)
	}
	if !ok || cryptox.VerifyPassword(password, p.passwordHash) != nil {
		s.Attempts++
		status := spi.AuthorisationAttemptFailure
		if s.Attempts >= b.maxAttempts {
			status = spi.AuthorisationFailure
		}
		slogx.FromContext(ctx).Debug("mock bank rejected PSU credentials", "attempts", s.Attempts)
		return spi.OK(spi.PsuAuthorisation{Status: status}, s.encode())
	}

	s.PsuID = p.id
	s.Authenticated = true
	s.Attempts = 0
	return spi.OK(spi.PsuAuthorisation{
		Status:      spi.AuthorisationSuccess,
		ScaExempted: b.exempt(req),
	}, s.encode())
}

func (b *Bank) RequestAvailableScaMethods(_ context.Context, req spi.Request) spi.Response[spi.AvailableScaMethods] {
	s, perr := decodeSession(req.Blob)
	if perr != nil {
		return spi.Fail[spi.AvailableScaMethods](perr, nil)
	}

	p, ok := b.lookup(req, s)
	if !ok {
		return fail[spi.AvailableScaMethods](spi.CodePsuCredentialsInvalid, "PSU is unknown", s)
	}
	if p.blocked {
		return fail[spi.AvailableScaMethods](spi.CodeServiceBlocked, "PSU is blocked", s)
	}
	// OAuth skips AuthorisePsu, so remember who this is.
	s.PsuID = p.id

	methods := make([]domain.ScaMethod, 0, len(p.methods))
	for _, m := range p.methods {
		methods = append(methods, m.scaMethod())
	}
	return spi.OK(spi.AvailableScaMethods{Methods: methods, ScaExempted: b.exempt(req)}, s.encode())
}

func (b *Bank) RequestAuthorisationCode(_ context.Context, req spi.Request, methodID string) spi.Response[spi.AuthorisationCode] {
	s, perr := decodeSession(req.Blob)
	if perr != nil {
		return spi.Fail[spi.AuthorisationCode](perr, nil)
	}

	p, ok := b.lookup(req, s)
	if !ok {
		return fail[spi.AuthorisationCode](spi.CodePsuCredentialsInvalid, "PSU is unknown", s)
	}
	m, ok := p.method(methodID)
	if !ok || m.Decoupled {
		return fail[spi.AuthorisationCode](spi.CodeScaMethodUnknown, "method "+methodID+" cannot send a code", s)
	}

	s.MethodID = m.ID
	s.Attempts = 0

	challenge := &domain.ChallengeData{OTPMaxLength: 6, OTPFormat: "integer"}
	if m.TOTPSecret != "" {
		challenge.AdditionalInformation = "Enter the code shown in your authenticator app"
	} else {
		challenge.AdditionalInformation = "A TAN was sent to " + m.Name
	}

	selected := m.scaMethod()
	return spi.OK(spi.AuthorisationCode{SelectedMethod: &selected, Challenge: challenge}, s.encode())
}

func (b *Bank) StartDecoupled(_ context.Context, req spi.Request, methodID string) spi.Response[spi.DecoupledStart] {
	s, perr := decodeSession(req.Blob)
	if perr != nil {
		return spi.Fail[spi.DecoupledStart](perr, nil)
	}

	p, ok := b.lookup(req, s)
	if !ok {
		return fail[spi.DecoupledStart](spi.CodePsuCredentialsInvalid, "PSU is unknown", s)
	}
	m, ok := p.method(methodID)
	if !ok || !m.Decoupled {
		return fail[spi.DecoupledStart](spi.CodeScaMethodUnknown, "method "+methodID+" is not decoupled", s)
	}

	pushID, err := newPushID()
	if err != nil {
		return fail[spi.DecoupledStart](spi.CodeInternalServerError, "could not start push", s)
	}
	s.MethodID = m.ID
	s.PushID = pushID
	s.Attempts = 0

	return spi.OK(spi.DecoupledStart{
		PsuMessage: "Please confirm the request in " + m.Name,
	}, s.encode())
}

// checkCode validates what the PSU typed in against the method in use.
func (b *Bank) checkCode(req spi.Request, s session, c spi.Confirmation) (session, *spi.Error, bool) {
	// Redirect flows finish with the confirmation code from the bank's page.
	if c.AuthCode == "" && c.ConfirmationCode != "" {
		if b.confirmationCode != "" && c.ConfirmationCode == b.confirmationCode {
			return s, nil, true
		}
		return s, nil, false
	}

	p, ok := b.lookup(req, s)
	if !ok {
		return s, &spi.Error{Code: spi.CodePsuCredentialsInvalid, Text: "PSU is unknown"}, false
	}
	methodID := c.MethodID
	if methodID == "" {
		methodID = s.MethodID
	}
	m, ok := p.method(methodID)
	if !ok {
		return s, &spi.Error{Code: spi.CodeScaMethodUnknown, Text: "no SCA method in progress"}, false
	}

	code := c.Code()
	switch {
	case m.Decoupled:
		return s, nil, s.PushID != "" && code == s.PushID
	case m.TOTPSecret != "":
		valid, err := totp.ValidateCustom(code, m.TOTPSecret, b.Now().UTC(), totpOpts)
		return s, nil, err == nil && valid
	default:
		return s, nil, code == m.TAN
	}
}

func (b *Bank) verify(ctx context.Context, req spi.Request, c spi.Confirmation, exec func(session) spi.Response[spi.Execution]) spi.Response[spi.Execution] {
	s, perr := decodeSession(req.Blob)
	if perr != nil {
		return spi.Fail[spi.Execution](perr, nil)
	}

	s, perr, ok := b.checkCode(req, s, c)
	if perr != nil {
		return spi.Fail[spi.Execution](perr, s.encode())
	}
	if !ok {
		slogx.FromContext(ctx).Debug("mock bank rejected SCA code", "attempts", s.Attempts+1)
		return attemptFailed[spi.Execution](b, spi.CodeScaInvalid, "authentication code is wrong", s)
	}
	return exec(s)
}

func (b *Bank) executed(s session, e spi.Execution) spi.Response[spi.Execution] {
	s.Executed = true
	s.Attempts = 0
	return spi.OK(e, s.encode())
}

func (b *Bank) activateConsent() func(session) spi.Response[spi.Execution] {
	return func(s session) spi.Response[spi.Execution] {
		return b.executed(s, spi.Execution{ConsentStatus: domain.ConsentValid})
	}
}

func (b *Bank) executePayment(req spi.Request) func(session) spi.Response[spi.Execution] {
	return func(s session) spi.Response[spi.Execution] {
		status := domain.TransactionSettlementIP
		if p := req.Subject.Payment; p != nil && p.Product == instantProduct {
			status = domain.TransactionSettled
		}
		return b.executed(s, spi.Execution{TransactionStatus: status})
	}
}

func (b *Bank) cancelPayment(req spi.Request) func(session) spi.Response[spi.Execution] {
	return func(s session) spi.Response[spi.Execution] {
		if p := req.Subject.Payment; p != nil {
			switch p.Status {
			case domain.TransactionSettled, domain.TransactionRejected, domain.TransactionCancelled, domain.TransactionRevokedByPsu:
				return fail[spi.Execution](CodeCancellationInvalid, "payment is already "+string(p.Status), s)
			}
		}
		return b.executed(s, spi.Execution{TransactionStatus: domain.TransactionRevokedByPsu})
	}
}

func (b *Bank) ActivateConsentWithoutSca(_ context.Context, req spi.Request) spi.Response[spi.Execution] {
	s, perr := decodeSession(req.Blob)
	if perr != nil {
		return spi.Fail[spi.Execution](perr, nil)
	}
	return b.activateConsent()(s)
}

func (b *Bank) VerifyScaAuthorisation(ctx context.Context, req spi.Request, c spi.Confirmation) spi.Response[spi.Execution] {
	return b.verify(ctx, req, c, b.activateConsent())
}

func (b *Bank) ExecutePaymentWithoutSca(_ context.Context, req spi.Request) spi.Response[spi.Execution] {
	s, perr := decodeSession(req.Blob)
	if perr != nil {
		return spi.Fail[spi.Execution](perr, nil)
	}
	return b.executePayment(req)(s)
}

func (b *Bank) VerifyScaAuthorisationAndExecutePayment(ctx context.Context, req spi.Request, c spi.Confirmation) spi.Response[spi.Execution] {
	return b.verify(ctx, req, c, b.executePayment(req))
}

func (b *Bank) CancelPaymentWithoutSca(_ context.Context, req spi.Request) spi.Response[spi.Execution] {
	s, perr := decodeSession(req.Blob)
	if perr != nil {
		return spi.Fail[spi.Execution](perr, nil)
	}
	return b.cancelPayment(req)(s)
}

func (b *Bank) VerifyScaAuthorisationAndCancelPayment(ctx context.Context, req spi.Request, c spi.Confirmation) spi.Response[spi.Execution] {
	return b.verify(ctx, req, c, b.cancelPayment(req))
}

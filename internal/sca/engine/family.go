package engine

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/scagate/internal/sca/domain"
	"github.com/aussiebroadwan/scagate/internal/sca/spi"
	"github.com/aussiebroadwan/scagate/internal/sca/store"
)

// family is everything that differs between the four authorisation types.
// The stage algorithm in flow.go is written once against it.
type family interface {
	authorisationType() domain.AuthorisationType
	plugin() spi.Authorisation
	loadSubject(ctx context.Context, parentID string) (spi.Subject, *Error)
	executeWithoutSca(ctx context.Context, req spi.Request) spi.Response[spi.Execution]
	verifyAndExecute(ctx context.Context, req spi.Request, c spi.Confirmation) spi.Response[spi.Execution]

	// finish maps what the bank reported to the business object update.
	finish(parentID string, exec spi.Execution) BusinessUpdate

	// exemptStatus is where a bank granted exemption lands.
	exemptStatus() domain.ScaStatus
}

// families builds one family per plugin present. Types without a plugin get
// no stages, which the dispatcher reports as a configuration gap.
func families(p spi.Plugins, st store.Store) []family {
	var out []family
	if p.AccountConsent != nil {
		out = append(out, &consentFamily{typ: domain.TypeConsent, kind: domain.ConsentKindAIS, p: p.AccountConsent, st: st})
	}
	if p.FundsConfirmation != nil {
		out = append(out, &consentFamily{typ: domain.TypeFundsConfirmation, kind: domain.ConsentKindPIIS, p: p.FundsConfirmation, st: st})
	}
	if p.Payment != nil {
		out = append(out, &paymentFamily{p: p.Payment, st: st})
	}
	if p.PaymentCancellation != nil {
		out = append(out, &cancellationFamily{p: p.PaymentCancellation, st: st})
	}
	return out
}

// consentActivation is the part AccountConsent and FundsConfirmationConsent
// have in common beyond SCA.
type consentActivation interface {
	spi.Authorisation
	ActivateConsentWithoutSca(ctx context.Context, req spi.Request) spi.Response[spi.Execution]
	VerifyScaAuthorisation(ctx context.Context, req spi.Request, c spi.Confirmation) spi.Response[spi.Execution]
}

type consentFamily struct {
	typ  domain.AuthorisationType
	kind domain.ConsentKind
	p    consentActivation
	st   store.Store
}

func (f *consentFamily) authorisationType() domain.AuthorisationType { return f.typ }
func (f *consentFamily) plugin() spi.Authorisation                   { return f.p }
func (f *consentFamily) exemptStatus() domain.ScaStatus              { return domain.StatusFinalised }

func (f *consentFamily) loadSubject(ctx context.Context, parentID string) (spi.Subject, *Error) {
	c, err := f.st.Consents().GetConsent(ctx, parentID)
	if errors.Is(err, store.ErrNotFound) {
		return spi.Subject{}, notFound("CONSENT_UNKNOWN", "consent "+parentID+" does not exist")
	}
	if err != nil {
		return spi.Subject{}, Internal(err)
	}
	if c.Kind != f.kind {
		return spi.Subject{}, notFound("CONSENT_UNKNOWN", "consent "+parentID+" is not a "+string(f.kind)+" consent")
	}
	return spi.Subject{Consent: &c}, nil
}

func (f *consentFamily) executeWithoutSca(ctx context.Context, req spi.Request) spi.Response[spi.Execution] {
	return f.p.ActivateConsentWithoutSca(ctx, req)
}

func (f *consentFamily) verifyAndExecute(ctx context.Context, req spi.Request, c spi.Confirmation) spi.Response[spi.Execution] {
	return f.p.VerifyScaAuthorisation(ctx, req, c)
}

func (f *consentFamily) finish(parentID string, exec spi.Execution) BusinessUpdate {
	status := exec.ConsentStatus
	if status == "" {
		status = domain.ConsentValid
	}
	return BusinessUpdate{ParentID: parentID, ConsentStatus: status}
}

type paymentFamily struct {
	p  spi.Payment
	st store.Store
}

func (f *paymentFamily) authorisationType() domain.AuthorisationType {
	return domain.TypePaymentCreation
}
func (f *paymentFamily) plugin() spi.Authorisation      { return f.p }
func (f *paymentFamily) exemptStatus() domain.ScaStatus { return domain.StatusExempted }

func (f *paymentFamily) loadSubject(ctx context.Context, parentID string) (spi.Subject, *Error) {
	return loadPayment(ctx, f.st, parentID)
}

func (f *paymentFamily) executeWithoutSca(ctx context.Context, req spi.Request) spi.Response[spi.Execution] {
	return f.p.ExecutePaymentWithoutSca(ctx, req)
}

func (f *paymentFamily) verifyAndExecute(ctx context.Context, req spi.Request, c spi.Confirmation) spi.Response[spi.Execution] {
	return f.p.VerifyScaAuthorisationAndExecutePayment(ctx, req, c)
}

func (f *paymentFamily) finish(parentID string, exec spi.Execution) BusinessUpdate {
	status := exec.TransactionStatus
	if status == "" {
		status = domain.TransactionSettlementIP
	}
	return BusinessUpdate{ParentID: parentID, TransactionStatus: status}
}

type cancellationFamily struct {
	p  spi.PaymentCancellation
	st store.Store
}

func (f *cancellationFamily) authorisationType() domain.AuthorisationType {
	return domain.TypePaymentCancellation
}
func (f *cancellationFamily) plugin() spi.Authorisation      { return f.p }
func (f *cancellationFamily) exemptStatus() domain.ScaStatus { return domain.StatusExempted }

func (f *cancellationFamily) loadSubject(ctx context.Context, parentID string) (spi.Subject, *Error) {
	return loadPayment(ctx, f.st, parentID)
}

func (f *cancellationFamily) executeWithoutSca(ctx context.Context, req spi.Request) spi.Response[spi.Execution] {
	return f.p.CancelPaymentWithoutSca(ctx, req)
}

func (f *cancellationFamily) verifyAndExecute(ctx context.Context, req spi.Request, c spi.Confirmation) spi.Response[spi.Execution] {
	return f.p.VerifyScaAuthorisationAndCancelPayment(ctx, req, c)
}

func (f *cancellationFamily) finish(parentID string, exec spi.Execution) BusinessUpdate {
	status := exec.TransactionStatus
	if status == "" {
		status = domain.TransactionRevokedByPsu
	}
	return BusinessUpdate{ParentID: parentID, TransactionStatus: status}
}

func loadPayment(ctx context.Context, st store.Store, parentID string) (spi.Subject, *Error) {
	p, err := st.Payments().GetPayment(ctx, parentID)
	if errors.Is(err, store.ErrNotFound) {
		return spi.Subject{}, notFound("RESOURCE_UNKNOWN", "payment "+parentID+" does not exist")
	}
	if err != nil {
		return spi.Subject{}, Internal(err)
	}
	return spi.Subject{Payment: &p}, nil
}

// DefaultBusinessUpdate is what a successful authorisation of type t does to
// its business object when the bank reports nothing more specific. Used when
// the bank pushes a final status from outside the engine.
func DefaultBusinessUpdate(t domain.AuthorisationType, parentID string) BusinessUpdate {
	switch t {
	case domain.TypePaymentCreation:
		return (&paymentFamily{}).finish(parentID, spi.Execution{})
	case domain.TypePaymentCancellation:
		return (&cancellationFamily{}).finish(parentID, spi.Execution{})
	default:
		return (&consentFamily{}).finish(parentID, spi.Execution{})
	}
}

// MarkBusinessObject applies u through the given store, normally a Tx.
func MarkBusinessObject(ctx context.Context, st store.Store, u BusinessUpdate) error {
	if u.ConsentStatus != "" {
		if err := st.Consents().MarkConsentStatus(ctx, u.ParentID, u.ConsentStatus); err != nil {
			return err
		}
	}
	if u.TransactionStatus != "" {
		if err := st.Payments().MarkPaymentStatus(ctx, u.ParentID, u.TransactionStatus); err != nil {
			return err
		}
	}
	return nil
}

// Package spi is the boundary between the SCA engine and a bank's own
// systems. A bank plugs in by implementing the per-type interfaces below.
//
// Every call receives the opaque blob the previous call returned and gives
// back a new one. The engine never looks inside it; it only stores it.
// Returning a nil Blob leaves the stored blob untouched, an empty non-nil
// slice clears it.
package spi

import (
	"context"
	"fmt"

	"github.com/aussiebroadwan/scagate/internal/sca/domain"
)

// Well known error codes a plugin may report.
const (
	CodePsuCredentialsInvalid = "PSU_CREDENTIALS_INVALID"
	CodeScaInvalid            = "SCA_INVALID"
	CodeScaMethodUnknown      = "SCA_METHOD_UNKNOWN"
	CodeFormatError           = "FORMAT_ERROR"
	CodeServiceBlocked        = "SERVICE_BLOCKED"
	CodeInternalServerError   = "INTERNAL_SERVER_ERROR"
)

// Error is a failure reported by the bank.
type Error struct {
	Code string
	Text string

	// AttemptFailure marks a recoverable failure, the PSU may try again
	// without the authorisation moving to FAILED.
	AttemptFailure bool
}

func (e *Error) Error() string {
	if e.Text == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Text)
}

// Response wraps every plugin result.
type Response[T any] struct {
	Payload T
	Err     *Error
	Blob    []byte
}

// HasError reports whether the bank reported a failure.
func (r Response[T]) HasError() bool { return r.Err != nil }

// OK builds a successful response.
func OK[T any](payload T, blob []byte) Response[T] {
	return Response[T]{Payload: payload, Blob: blob}
}

// Fail builds a failed response.
func Fail[T any](err *Error, blob []byte) Response[T] {
	return Response[T]{Err: err, Blob: blob}
}

// Subject is the business object an authorisation is for. Exactly one of
// the fields is set.
type Subject struct {
	Consent *domain.Consent
	Payment *domain.Payment
}

// Request is what the engine hands to every plugin call.
type Request struct {
	AuthorisationID string
	Type            domain.AuthorisationType
	Approach        domain.ScaApproach
	Psu             domain.PsuData
	Subject         Subject
	Blob            []byte
}

// AuthorisationStatus is the outcome of a PSU credential check.
type AuthorisationStatus string

const (
	AuthorisationSuccess        AuthorisationStatus = "SUCCESS"
	AuthorisationFailure        AuthorisationStatus = "FAILURE"
	AuthorisationAttemptFailure AuthorisationStatus = "ATTEMPT_FAILURE"
)

// PsuAuthorisation is the result of AuthorisePsu.
type PsuAuthorisation struct {
	Status      AuthorisationStatus
	ScaExempted bool
}

// AvailableScaMethods is the result of RequestAvailableScaMethods.
type AvailableScaMethods struct {
	Methods     []domain.ScaMethod
	ScaExempted bool
}

// AuthorisationCode is the result of RequestAuthorisationCode.
type AuthorisationCode struct {
	SelectedMethod *domain.ScaMethod
	Challenge      *domain.ChallengeData
	ScaExempted    bool
}

// IsEmpty reports a success that carries nothing usable.
func (c AuthorisationCode) IsEmpty() bool {
	return c.SelectedMethod == nil && c.Challenge == nil && !c.ScaExempted
}

// DecoupledStart is the result of StartDecoupled.
type DecoupledStart struct {
	PsuMessage string
}

// Confirmation carries what the PSU typed in to finish SCA.
type Confirmation struct {
	MethodID         string
	AuthCode         string // scaAuthenticationData
	ConfirmationCode string // redirect confirmation flow
}

// Code returns whichever code the PSU provided.
func (c Confirmation) Code() string {
	if c.AuthCode != "" {
		return c.AuthCode
	}
	return c.ConfirmationCode
}

// Execution is what the bank reports after executing or activating the
// business object. Empty fields let the engine fall back to its defaults.
type Execution struct {
	ConsentStatus     domain.ConsentStatus
	TransactionStatus domain.TransactionStatus
}

// Authorisation is the SCA half shared by every plugin.
type Authorisation interface {
	AuthorisePsu(ctx context.Context, req Request, psu domain.PsuData, password string) Response[PsuAuthorisation]
	RequestAvailableScaMethods(ctx context.Context, req Request) Response[AvailableScaMethods]
	RequestAuthorisationCode(ctx context.Context, req Request, methodID string) Response[AuthorisationCode]
	StartDecoupled(ctx context.Context, req Request, methodID string) Response[DecoupledStart]
}

// AccountConsent authorises account information consents.
type AccountConsent interface {
	Authorisation
	ActivateConsentWithoutSca(ctx context.Context, req Request) Response[Execution]
	VerifyScaAuthorisation(ctx context.Context, req Request, c Confirmation) Response[Execution]
}

// FundsConfirmationConsent authorises PIIS consents. The calls match
// AccountConsent so one bank adapter can serve both.
type FundsConfirmationConsent interface {
	Authorisation
	ActivateConsentWithoutSca(ctx context.Context, req Request) Response[Execution]
	VerifyScaAuthorisation(ctx context.Context, req Request, c Confirmation) Response[Execution]
}

// Payment authorises payment initiation.
type Payment interface {
	Authorisation
	ExecutePaymentWithoutSca(ctx context.Context, req Request) Response[Execution]
	VerifyScaAuthorisationAndExecutePayment(ctx context.Context, req Request, c Confirmation) Response[Execution]
}

// PaymentCancellation authorises the cancellation of a payment.
type PaymentCancellation interface {
	Authorisation
	CancelPaymentWithoutSca(ctx context.Context, req Request) Response[Execution]
	VerifyScaAuthorisationAndCancelPayment(ctx context.Context, req Request, c Confirmation) Response[Execution]
}

// Plugins bundles one implementation per authorisation type.
type Plugins struct {
	AccountConsent      AccountConsent
	Payment             Payment
	PaymentCancellation PaymentCancellation
	FundsConfirmation   FundsConfirmationConsent
}

package domain

import (
	"fmt"
	"strings"
)

// ScaStatus is the lifecycle state of a single authorisation.
type ScaStatus string

const (
	StatusReceived          ScaStatus = "RECEIVED"
	StatusStarted           ScaStatus = "STARTED" // cancellation flows start here instead of RECEIVED
	StatusPsuIdentified     ScaStatus = "PSU_IDENTIFIED"
	StatusPsuAuthenticated  ScaStatus = "PSU_AUTHENTICATED"
	StatusScaMethodSelected ScaStatus = "SCA_METHOD_SELECTED"
	StatusFinalised         ScaStatus = "FINALISED"
	StatusFailed            ScaStatus = "FAILED"
	StatusExempted          ScaStatus = "EXEMPTED"
)

// AllowedTransitions lists, per status, every status an update may move the
// authorisation to. Staying put is listed explicitly since attempt failures
// and identification-only updates do exactly that.
var AllowedTransitions = map[ScaStatus][]ScaStatus{
	StatusReceived: {
		StatusReceived,
		StatusPsuIdentified,
		StatusPsuAuthenticated,
		StatusScaMethodSelected,
		StatusFinalised,
		StatusExempted,
		StatusFailed,
	},
	StatusStarted: {
		StatusStarted,
		StatusPsuIdentified,
		StatusPsuAuthenticated,
		StatusScaMethodSelected,
		StatusFinalised,
		StatusExempted,
		StatusFailed,
	},
	StatusPsuIdentified: {
		StatusPsuIdentified,
		StatusPsuAuthenticated,
		StatusScaMethodSelected,
		StatusFinalised,
		StatusExempted,
		StatusFailed,
	},
	StatusPsuAuthenticated: {
		StatusPsuAuthenticated,
		StatusScaMethodSelected,
		StatusFinalised,
		StatusExempted,
		StatusFailed,
	},
	StatusScaMethodSelected: {
		StatusScaMethodSelected,
		StatusFinalised,
		StatusFailed,
	},
	StatusFinalised: {}, // Terminal
	StatusFailed:    {}, // Terminal
	StatusExempted:  {}, // Terminal
}

// CanTransition reports whether moving from one status to another is allowed.
func CanTransition(from, to ScaStatus) bool {
	allowed, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further update may change the status.
func (s ScaStatus) IsTerminal() bool {
	switch s {
	case StatusFinalised, StatusFailed, StatusExempted:
		return true
	}
	return false
}

// IsKnown reports whether s is one of the defined statuses.
func (s ScaStatus) IsKnown() bool {
	_, ok := AllowedTransitions[s]
	return ok
}

// ParseScaStatus accepts the canonical upper case names as well as the
// lower case variants some banks push back on the status endpoint.
func ParseScaStatus(raw string) (ScaStatus, error) {
	s := ScaStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.IsKnown() {
		return "", fmt.Errorf("domain: unknown sca status %q", raw)
	}
	return s, nil
}

// ScaApproach is how the PSU performs strong customer authentication.
type ScaApproach string

const (
	ApproachEmbedded  ScaApproach = "EMBEDDED"
	ApproachDecoupled ScaApproach = "DECOUPLED"
	ApproachRedirect  ScaApproach = "REDIRECT"
	ApproachOAuth     ScaApproach = "OAUTH"
)

// IsKnown reports whether a is one of the defined approaches.
func (a ScaApproach) IsKnown() bool {
	switch a {
	case ApproachEmbedded, ApproachDecoupled, ApproachRedirect, ApproachOAuth:
		return true
	}
	return false
}

// AuthorisationType identifies the business process an authorisation belongs to.
type AuthorisationType string

const (
	TypeConsent             AuthorisationType = "CONSENT"
	TypePaymentCreation     AuthorisationType = "PAYMENT_CREATION"
	TypePaymentCancellation AuthorisationType = "PAYMENT_CANCELLATION"
	TypeFundsConfirmation   AuthorisationType = "FUNDS_CONFIRMATION_CONSENT"
)

// AuthorisationTypes in a stable order, mostly for wiring and tests.
var AuthorisationTypes = []AuthorisationType{
	TypeConsent,
	TypePaymentCreation,
	TypePaymentCancellation,
	TypeFundsConfirmation,
}

// IsKnown reports whether t is one of the defined authorisation types.
func (t AuthorisationType) IsKnown() bool {
	switch t {
	case TypeConsent, TypePaymentCreation, TypePaymentCancellation, TypeFundsConfirmation:
		return true
	}
	return false
}

// InitialStatus is the status a freshly started authorisation of this type
// is created with.
func (t AuthorisationType) InitialStatus() ScaStatus {
	if t == TypePaymentCancellation {
		return StatusStarted
	}
	return StatusReceived
}

// TargetsPayment reports whether the business object behind this type is a
// payment rather than a consent.
func (t AuthorisationType) TargetsPayment() bool {
	return t == TypePaymentCreation || t == TypePaymentCancellation
}

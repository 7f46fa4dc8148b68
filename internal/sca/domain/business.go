package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConsentStatus mirrors the Berlin Group consent status codes.
type ConsentStatus string

const (
	ConsentReceived            ConsentStatus = "RECEIVED"
	ConsentValid               ConsentStatus = "VALID"
	ConsentPartiallyAuthorised ConsentStatus = "PARTIALLY_AUTHORISED"
	ConsentRejected            ConsentStatus = "REJECTED"
	ConsentRevokedByPsu        ConsentStatus = "REVOKED_BY_PSU"
	ConsentExpired             ConsentStatus = "EXPIRED"
	ConsentTerminatedByTpp     ConsentStatus = "TERMINATED_BY_TPP"
)

// ConsentKind separates account information from funds confirmation consents.
type ConsentKind string

const (
	ConsentKindAIS  ConsentKind = "AIS"
	ConsentKindPIIS ConsentKind = "PIIS"
)

// Consent is the slice of a consent the engine needs to drive SCA.
type Consent struct {
	ID        string
	Kind      ConsentKind
	Status    ConsentStatus
	PsuData   PsuData
	Recurring bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TransactionStatus mirrors the ISO 20022 payment status codes. RevokedByPsu
// is what a successful cancellation leaves behind.
type TransactionStatus string

const (
	TransactionReceived     TransactionStatus = "RCVD"
	TransactionPending      TransactionStatus = "PDNG"
	TransactionAccepted     TransactionStatus = "ACTC"
	TransactionSettlementIP TransactionStatus = "ACSP"
	TransactionSettled      TransactionStatus = "ACSC"
	TransactionPartAccepted TransactionStatus = "PATC"
	TransactionRejected     TransactionStatus = "RJCT"
	TransactionCancelled    TransactionStatus = "CANC"
	TransactionRevokedByPsu TransactionStatus = "REVOKED_BY_PSU"
)

// Payment is the slice of a payment the engine needs to drive SCA.
type Payment struct {
	ID           string
	Product      string // sepa-credit-transfers, instant-sepa-credit-transfers, ...
	Amount       decimal.Decimal
	Currency     string
	DebtorIBAN   string
	CreditorIBAN string
	CreditorName string
	Status       TransactionStatus
	PsuData      PsuData
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

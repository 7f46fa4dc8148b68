package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/scagate/internal/sca/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrConflict is returned when a save loses an optimistic version race.
	ErrConflict = errors.New("store: version conflict")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this and hand out sub-repositories so transactions can't be
// nested by accident.
type Store interface {
	Authorisations() Authorisations
	Consents() Consents
	Payments() Payments

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn inside a transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Authorisations interface {
	// CreateAuthorisation inserts a new authorisation at version 1.
	CreateAuthorisation(ctx context.Context, a domain.Authorisation) error

	// GetAuthorisation returns an authorisation by id.
	GetAuthorisation(ctx context.Context, id string) (domain.Authorisation, error)

	// GetAuthorisationByRedirectID resolves the id embedded in a redirect link.
	GetAuthorisationByRedirectID(ctx context.Context, redirectID string) (domain.Authorisation, error)

	// ListAuthorisations returns every authorisation of type t for a business object.
	ListAuthorisations(ctx context.Context, parentID string, t domain.AuthorisationType) ([]domain.Authorisation, error)

	// SaveAuthorisation writes a only if the stored version still equals
	// a.Version, and returns the record with its bumped version. A lost race
	// gives ErrConflict.
	SaveAuthorisation(ctx context.Context, a domain.Authorisation) (domain.Authorisation, error)

	// DeleteTerminalAuthorisations removes finished authorisations whose
	// status last changed before the cutoff.
	DeleteTerminalAuthorisations(ctx context.Context, before time.Time) (int64, error)

	// ListRedirectsExpiredBefore returns redirect ids whose link lapsed
	// before the cutoff, on authorisations that are still open.
	ListRedirectsExpiredBefore(ctx context.Context, before time.Time) ([]string, error)
}

type Consents interface {
	// CreateConsent inserts a consent.
	CreateConsent(ctx context.Context, c domain.Consent) error

	// GetConsent returns a consent by id.
	GetConsent(ctx context.Context, id string) (domain.Consent, error)

	// MarkConsentStatus sets the consent status and bumps updated_at.
	MarkConsentStatus(ctx context.Context, id string, status domain.ConsentStatus) error
}

type Payments interface {
	// CreatePayment inserts a payment.
	CreatePayment(ctx context.Context, p domain.Payment) error

	// GetPayment returns a payment by id.
	GetPayment(ctx context.Context, id string) (domain.Payment, error)

	// MarkPaymentStatus sets the transaction status and bumps updated_at.
	MarkPaymentStatus(ctx context.Context, id string, status domain.TransactionStatus) error
}

// TerminalStatuses is the set DeleteTerminalAuthorisations sweeps.
var TerminalStatuses = []domain.ScaStatus{
	domain.StatusFinalised,
	domain.StatusFailed,
	domain.StatusExempted,
}

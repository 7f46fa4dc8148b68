package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aussiebroadwan/scagate/internal/sca/cache"
	"github.com/aussiebroadwan/scagate/internal/sca/domain"
	"github.com/aussiebroadwan/scagate/internal/sca/engine"
	"github.com/aussiebroadwan/scagate/internal/sca/store"
	"github.com/aussiebroadwan/scagate/pkg/idx"
	"github.com/aussiebroadwan/scagate/pkg/slogx"
)

// redirectKey is the cache key mapping a redirect id to its authorisation.
func redirectKey(redirectID string) string { return "redirect:" + redirectID }

// StartRequest is what a TPP sends to open a new authorisation.
type StartRequest struct {
	ParentID string
	Type     domain.AuthorisationType
	Psu      domain.PsuData

	// PreferredApproach is the TPP-Redirect-Preferred / Decoupled hint,
	// honoured when the bank supports it.
	PreferredApproach domain.ScaApproach

	// TppNokRedirectURI overrides the profile's NOK page.
	TppNokRedirectURI string
}

type AuthorisationService struct {
	Store   store.Store
	Cache   cache.Client
	Profile domain.AspspProfile
	Now     func() time.Time
}

func (s *AuthorisationService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// StartAuthorisation creates a fresh authorisation for a consent or payment.
func (s *AuthorisationService) StartAuthorisation(ctx context.Context, req StartRequest) (domain.Authorisation, error) {
	log := slogx.FromContext(ctx)

	if !req.Type.IsKnown() {
		return domain.Authorisation{}, engine.NewError(engine.KindFormatError, "FORMAT_ERROR", "unknown authorisation type")
	}
	if !s.Profile.Enabled(req.Type) {
		log.Warn("attempted to start a disabled authorisation type", slog.String("type", string(req.Type)))
		return domain.Authorisation{}, engine.NewError(engine.KindFormatError, "SERVICE_INVALID", string(req.Type)+" authorisations are not offered")
	}
	if err := s.checkParent(ctx, req.Type, req.ParentID); err != nil {
		return domain.Authorisation{}, err
	}

	now := s.now()
	a := domain.Authorisation{
		ID:                 idx.NewAt(now).String(),
		ParentID:           req.ParentID,
		Type:               req.Type,
		Status:             req.Type.InitialStatus(),
		PsuData:            req.Psu,
		ScaApproach:        s.Profile.ChooseApproach(req.PreferredApproach),
		ExpiresAt:          now.Add(s.Profile.AuthorisationExpiry),
		CreatedAt:          now,
		LastStatusChangeAt: now,
	}

	if a.ScaApproach == domain.ApproachRedirect {
		a.RedirectID = uuid.NewString()
		a.RedirectURI = s.Profile.RedirectLink(a.RedirectID)
		a.NokRedirectURI = req.TppNokRedirectURI
		if a.NokRedirectURI == "" {
			a.NokRedirectURI = s.Profile.NokRedirectURL
		}
		a.RedirectExpiresAt = now.Add(s.Profile.RedirectURLExpiry)
	}

	if err := s.Store.Authorisations().CreateAuthorisation(ctx, a); err != nil {
		log.Error("failed to create authorisation", slog.Any("error", err))
		return domain.Authorisation{}, engine.Internal(fmt.Errorf("create authorisation: %w", err))
	}
	a.Version = 1

	if a.RedirectID != "" && s.Cache != nil {
		// The store is the fallback, a cache miss only costs a query.
		if err := s.Cache.Set(ctx, redirectKey(a.RedirectID), a.ID, s.Profile.RedirectURLExpiry); err != nil {
			log.Warn("failed to cache redirect id", slog.Any("error", err))
		}
	}

	log.Info("authorisation started",
		slog.String("authorisation_id", a.ID),
		slog.String("parent_id", a.ParentID),
		slog.String("type", string(a.Type)),
		slog.String("approach", string(a.ScaApproach)),
	)
	return a, nil
}

// checkParent makes sure the business object exists and is of the right
// kind for t.
func (s *AuthorisationService) checkParent(ctx context.Context, t domain.AuthorisationType, parentID string) error {
	if t.TargetsPayment() {
		p, err := s.Store.Payments().GetPayment(ctx, parentID)
		if errors.Is(err, store.ErrNotFound) {
			return engine.NewError(engine.KindNotFound, "RESOURCE_UNKNOWN", "payment "+parentID+" does not exist")
		}
		if err != nil {
			return engine.Internal(err)
		}
		if t == domain.TypePaymentCancellation && isFinalTransaction(p.Status) {
			return engine.NewError(engine.KindStatusInvalid, "CANCELLATION_INVALID", "payment is already "+string(p.Status))
		}
		return nil
	}

	c, err := s.Store.Consents().GetConsent(ctx, parentID)
	if errors.Is(err, store.ErrNotFound) {
		return engine.NewError(engine.KindNotFound, "CONSENT_UNKNOWN", "consent "+parentID+" does not exist")
	}
	if err != nil {
		return engine.Internal(err)
	}
	want := domain.ConsentKindAIS
	if t == domain.TypeFundsConfirmation {
		want = domain.ConsentKindPIIS
	}
	if c.Kind != want {
		return engine.NewError(engine.KindNotFound, "CONSENT_UNKNOWN", "consent "+parentID+" is not a "+string(want)+" consent")
	}
	return nil
}

func isFinalTransaction(s domain.TransactionStatus) bool {
	switch s {
	case domain.TransactionSettled, domain.TransactionRejected, domain.TransactionCancelled, domain.TransactionRevokedByPsu:
		return true
	}
	return false
}

// GetAuthorisation returns an authorisation, checking it belongs to parentID.
func (s *AuthorisationService) GetAuthorisation(ctx context.Context, parentID, authorisationID string) (domain.Authorisation, error) {
	a, err := s.Store.Authorisations().GetAuthorisation(ctx, authorisationID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && a.ParentID != parentID) {
		return domain.Authorisation{}, engine.NewError(engine.KindNotFound, "RESOURCE_UNKNOWN", "authorisation "+authorisationID+" does not exist")
	}
	if err != nil {
		return domain.Authorisation{}, engine.Internal(err)
	}
	return a, nil
}

// GetStatus returns the current SCA status of an authorisation.
func (s *AuthorisationService) GetStatus(ctx context.Context, parentID, authorisationID string) (domain.ScaStatus, error) {
	a, err := s.GetAuthorisation(ctx, parentID, authorisationID)
	if err != nil {
		return "", err
	}
	return a.Status, nil
}

// ListAuthorisations returns the ids of every authorisation of type t
// started for parentID, oldest first.
func (s *AuthorisationService) ListAuthorisations(ctx context.Context, parentID string, t domain.AuthorisationType) ([]string, error) {
	list, err := s.Store.Authorisations().ListAuthorisations(ctx, parentID, t)
	if err != nil {
		return nil, engine.Internal(err)
	}
	ids := make([]string, 0, len(list))
	for _, a := range list {
		ids = append(ids, a.ID)
	}
	return ids, nil
}

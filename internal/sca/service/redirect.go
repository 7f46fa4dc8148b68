package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/scagate/internal/sca/cache"
	"github.com/aussiebroadwan/scagate/internal/sca/domain"
	"github.com/aussiebroadwan/scagate/internal/sca/engine"
	"github.com/aussiebroadwan/scagate/internal/sca/store"
	"github.com/aussiebroadwan/scagate/pkg/slogx"
)

// RedirectService backs the bank hosted PSU pages of the REDIRECT approach.
type RedirectService struct {
	Store store.Store
	Cache cache.Client
	Now   func() time.Time
}

func (s *RedirectService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// ResolveRedirect finds the authorisation behind a redirect id. Expired
// links fail with REDIRECT_EXPIRED carrying the NOK redirect URI, never with
// a plain not found.
func (s *RedirectService) ResolveRedirect(ctx context.Context, redirectID string) (domain.Authorisation, error) {
	a, err := s.lookup(ctx, redirectID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Authorisation{}, engine.NewError(engine.KindNotFound, "RESOURCE_UNKNOWN", "redirect "+redirectID+" does not exist")
	}
	if err != nil {
		return domain.Authorisation{}, engine.Internal(err)
	}

	now := s.now()
	if a.IsRedirectExpired(now) {
		slogx.FromContext(ctx).Info("redirect link expired",
			slog.String("authorisation_id", a.ID),
			slog.Time("expired_at", a.RedirectExpiresAt),
		)
		return domain.Authorisation{}, engine.Expired(engine.KindRedirectExpired, a.NokRedirectURI)
	}
	if a.IsExpired(now) {
		return domain.Authorisation{}, engine.Expired(engine.KindAuthorisationExpired, a.NokRedirectURI)
	}
	return a, nil
}

func (s *RedirectService) lookup(ctx context.Context, redirectID string) (domain.Authorisation, error) {
	if s.Cache != nil {
		id, err := s.Cache.Get(ctx, redirectKey(redirectID))
		switch {
		case err == nil:
			a, err := s.Store.Authorisations().GetAuthorisation(ctx, id)
			// A stale entry whose record is gone falls through to the store.
			if !errors.Is(err, store.ErrNotFound) {
				return a, err
			}
		case !errors.Is(err, cache.ErrNotFound):
			slogx.FromContext(ctx).Warn("redirect cache lookup failed", slog.Any("error", err))
		}
	}
	return s.Store.Authorisations().GetAuthorisationByRedirectID(ctx, redirectID)
}

// UpdateStatus applies a status pushed by the bank once the PSU finished on
// its own pages or in its app. Only REDIRECT and DECOUPLED authorisations
// accept a push; the others must go through the stage processors. A successful final status marks the business object the
// same way an embedded flow would.
func (s *RedirectService) UpdateStatus(ctx context.Context, authorisationID string, status domain.ScaStatus) (domain.Authorisation, error) {
	a, err := s.Store.Authorisations().GetAuthorisation(ctx, authorisationID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Authorisation{}, engine.NewError(engine.KindNotFound, "RESOURCE_UNKNOWN", "authorisation "+authorisationID+" does not exist")
	}
	if err != nil {
		return domain.Authorisation{}, engine.Internal(err)
	}

	ctx = slogx.WithAuthorisation(ctx, a.ID, string(a.Type))
	log := slogx.FromContext(ctx)

	now := s.now()
	if a.IsExpired(now) {
		return domain.Authorisation{}, engine.Expired(engine.KindAuthorisationExpired, a.NokRedirectURI)
	}
	if a.ScaApproach != domain.ApproachRedirect && a.ScaApproach != domain.ApproachDecoupled {
		return domain.Authorisation{}, engine.NewError(engine.KindStatusInvalid, "STATUS_INVALID",
			"status can only be pushed for REDIRECT or DECOUPLED authorisations, this one is "+string(a.ScaApproach))
	}
	if a.Status.IsTerminal() {
		return domain.Authorisation{}, engine.NewError(engine.KindStatusInvalid, "STATUS_INVALID", "authorisation is already "+string(a.Status))
	}
	if !domain.CanTransition(a.Status, status) {
		return domain.Authorisation{}, engine.NewError(engine.KindStatusInvalid, "STATUS_INVALID",
			fmt.Sprintf("cannot move from %s to %s", a.Status, status))
	}

	from := a.Status
	if status != a.Status {
		a.Status = status
		a.LastStatusChangeAt = now
	}

	var saved domain.Authorisation
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		if saved, err = tx.Authorisations().SaveAuthorisation(ctx, a); err != nil {
			return err
		}
		if status == domain.StatusFinalised || status == domain.StatusExempted {
			return engine.MarkBusinessObject(ctx, tx, engine.DefaultBusinessUpdate(a.Type, a.ParentID))
		}
		return nil
	})
	if errors.Is(err, store.ErrConflict) {
		return domain.Authorisation{}, engine.NewError(engine.KindConflict, "CONFLICT", "authorisation was updated concurrently, reload and retry")
	}
	if err != nil {
		log.Error("failed to apply pushed status", slog.Any("error", err))
		return domain.Authorisation{}, engine.Internal(err)
	}

	if saved.Status.IsTerminal() && saved.RedirectID != "" && s.Cache != nil {
		if err := s.Cache.Delete(ctx, redirectKey(saved.RedirectID)); err != nil {
			log.Warn("failed to drop redirect from cache", slog.Any("error", err))
		}
	}

	log.Info("bank pushed authorisation status", slog.String("from", string(from)), slog.String("to", string(saved.Status)))
	return saved, nil
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/scagate/internal/sca/domain"
	"github.com/aussiebroadwan/scagate/internal/sca/store"
	"github.com/aussiebroadwan/scagate/pkg/slogx"
)

// Dispatcher is the single entry point for advancing an authorisation.
type Dispatcher struct {
	Store    store.Store
	Resolver *Resolver
	Metrics  *Metrics
	Now      func() time.Time
}

// NewDispatcher wires a dispatcher using the wall clock.
func NewDispatcher(st store.Store, r *Resolver, m *Metrics) *Dispatcher {
	return &Dispatcher{
		Store:    st,
		Resolver: r,
		Metrics:  m,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch loads the authorisation, runs the stage registered for its
// (type, status), persists the result and returns it.
//
// When the stage reports an error the returned Response is still filled in
// with the persisted state and the error is returned alongside it. Errors
// raised before any stage ran come back with a zero Response.
func (d *Dispatcher) Dispatch(ctx context.Context, authorisationID string, u Update) (Response, error) {
	a, err := d.Store.Authorisations().GetAuthorisation(ctx, authorisationID)
	if errors.Is(err, store.ErrNotFound) {
		return Response{}, notFound("RESOURCE_UNKNOWN", "authorisation "+authorisationID+" does not exist")
	}
	if err != nil {
		return Response{}, Internal(fmt.Errorf("load authorisation: %w", err))
	}

	ctx = slogx.WithAuthorisation(ctx, a.ID, string(a.Type))
	log := slogx.FromContext(ctx)

	if (u.BusinessObjectID != "" && u.BusinessObjectID != a.ParentID) || (u.Type != "" && u.Type != a.Type) {
		// Don't tell the caller the authorisation exists under another object
		return Response{}, notFound("RESOURCE_UNKNOWN", "authorisation "+authorisationID+" does not exist")
	}

	if a.Status.IsTerminal() {
		d.Metrics.observeDispatch(a.Type, a.Status, a.Status, string(KindStatusInvalid))
		return Response{}, statusInvalid("authorisation is already " + string(a.Status))
	}

	if a.IsExpired(d.Now()) {
		d.Metrics.observeDispatch(a.Type, a.Status, a.Status, string(KindAuthorisationExpired))
		return Response{}, Expired(KindAuthorisationExpired, a.NokRedirectURI)
	}

	// Redirect PSUs talk to the bank directly. The only thing left for this
	// path is the confirmation code some banks require afterwards.
	if a.ScaApproach == domain.ApproachRedirect &&
		(a.Status != domain.StatusScaMethodSelected || u.ConfirmationCode == "") {
		d.Metrics.observeDispatch(a.Type, a.Status, a.Status, string(KindStatusInvalid))
		return Response{}, statusInvalid("authorisation is handled by redirect")
	}

	p, ok := d.Resolver.Lookup(a.Type, a.Status)
	if !ok {
		log.Error("no stage processor registered", "status", a.Status)
		d.Metrics.observeDispatch(a.Type, a.Status, a.Status, string(KindInternal))
		return Response{}, Internal(fmt.Errorf("no stage processor for %s/%s", a.Type, a.Status))
	}

	out := p.Process(ctx, u, a)

	next, err := apply(a, out, d.Now())
	if err != nil {
		// A stage asked for something the state machine forbids. Keep the
		// status but don't lose the bank's blob.
		log.Error("stage produced an illegal transition", "err", err)
		out.Err = Internal(err)
		out.Business = nil
	}

	saved, err := d.persist(ctx, next, out)
	if err != nil {
		d.Metrics.observeDispatch(a.Type, a.Status, next.Status, string(KindOf(err)))
		return Response{}, err
	}

	outcome := "ok"
	if out.Err != nil {
		outcome = string(out.Err.Kind)
	}
	d.Metrics.observeDispatch(a.Type, a.Status, saved.Status, outcome)

	if saved.Status != a.Status {
		log.Info("authorisation advanced", "from", a.Status, "to", saved.Status)
	}

	resp := buildResponse(saved, out)
	if out.Err != nil {
		return resp, out.Err
	}
	return resp, nil
}

// persist saves the record and, on success only, marks the business object
// in the same transaction.
func (d *Dispatcher) persist(ctx context.Context, next domain.Authorisation, out Outcome) (domain.Authorisation, error) {
	var saved domain.Authorisation
	err := d.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		saved, err = tx.Authorisations().SaveAuthorisation(ctx, next)
		if err != nil {
			return err
		}
		if out.Business != nil && out.Err == nil {
			return MarkBusinessObject(ctx, tx, *out.Business)
		}
		return nil
	})

	switch {
	case err == nil:
		return saved, nil
	case errors.Is(err, store.ErrConflict):
		return domain.Authorisation{}, NewError(KindConflict, "CONFLICT", "authorisation was updated concurrently, reload and retry")
	default:
		slogx.FromContext(ctx).Error("failed to persist authorisation", "err", err)
		return domain.Authorisation{}, Internal(fmt.Errorf("persist authorisation: %w", err))
	}
}

// apply folds an outcome into the record. The blob and PSU identity are
// always taken; everything else only when the transition is legal.
func apply(a domain.Authorisation, out Outcome, now time.Time) (domain.Authorisation, error) {
	next := a
	if out.Blob != nil {
		next.BankBlob = out.Blob
	}
	if !out.Psu.IsEmpty() {
		next.PsuData = out.Psu
	}

	if !domain.CanTransition(a.Status, out.Status) {
		return next, fmt.Errorf("illegal transition %s -> %s", a.Status, out.Status)
	}

	if out.Approach != "" {
		next.ScaApproach = out.Approach
	}
	if out.AvailableMethods != nil {
		next.AvailableScaMethods = out.AvailableMethods
	}
	if out.ChosenMethod != nil {
		next.ChosenScaMethod = out.ChosenMethod
	}
	if out.Status != a.Status {
		next.Status = out.Status
		next.LastStatusChangeAt = now
	}
	return next, nil
}

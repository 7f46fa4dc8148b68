package postgres

import (
	"context"
	"time"

	"github.com/aussiebroadwan/scagate/internal/sca/domain"
	"github.com/aussiebroadwan/scagate/internal/sca/store"
)

type consentsRepo struct {
	q querier
}

func (r *consentsRepo) CreateConsent(ctx context.Context, c domain.Consent) error {
	_, err := r.q.Exec(ctx, `INSERT INTO consents
		(id, kind, status, psu_id, psu_id_type, recurring, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, string(c.Kind), string(c.Status), c.PsuData.PsuID, c.PsuData.PsuIDType,
		c.Recurring, c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	)
	return mapConstraint(err)
}

func (r *consentsRepo) GetConsent(ctx context.Context, id string) (domain.Consent, error) {
	var (
		c            domain.Consent
		kind, status string
	)
	err := r.q.QueryRow(ctx, `SELECT id, kind, status, psu_id, psu_id_type, recurring, created_at, updated_at
		FROM consents WHERE id = $1`, id).
		Scan(&c.ID, &kind, &status, &c.PsuData.PsuID, &c.PsuData.PsuIDType, &c.Recurring, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return domain.Consent{}, mapNotFound(err)
	}

	c.Kind = domain.ConsentKind(kind)
	c.Status = domain.ConsentStatus(status)
	return c, nil
}

func (r *consentsRepo) MarkConsentStatus(ctx context.Context, id string, status domain.ConsentStatus) error {
	tag, err := r.q.Exec(ctx, `UPDATE consents SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

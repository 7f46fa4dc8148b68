package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/scagate/internal/sca/domain"
	"github.com/aussiebroadwan/scagate/internal/sca/store"
)

type consentsRepo struct {
	db dbtx
}

func (r *consentsRepo) CreateConsent(ctx context.Context, c domain.Consent) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO consents
		(id, kind, status, psu_id, psu_id_type, recurring, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
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
	err := r.db.QueryRowContext(ctx, `SELECT id, kind, status, psu_id, psu_id_type, recurring, created_at, updated_at
		FROM consents WHERE id = ?`, id).
		Scan(&c.ID, &kind, &status, &c.PsuData.PsuID, &c.PsuData.PsuIDType, &c.Recurring, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return domain.Consent{}, mapNotFound(err)
	}

	c.Kind = domain.ConsentKind(kind)
	c.Status = domain.ConsentStatus(status)
	return c, nil
}

func (r *consentsRepo) MarkConsentStatus(ctx context.Context, id string, status domain.ConsentStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE consents SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

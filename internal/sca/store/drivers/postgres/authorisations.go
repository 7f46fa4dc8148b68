package postgres

import (
	"context"
	"time"

	"github.com/aussiebroadwan/scagate/internal/sca/domain"
	"github.com/aussiebroadwan/scagate/internal/sca/store"
)

type authorisationsRepo struct {
	q querier
}

const authorisationColumns = `id, parent_id, type, status, psu_id, psu_id_type, psu_corporate_id,
	psu_corporate_id_type, sca_approach, chosen_sca_method, available_sca_methods, redirect_id,
	redirect_uri, nok_redirect_uri, redirect_expires_at, expires_at, bank_blob, version,
	created_at, last_status_change_at`

func (r *authorisationsRepo) CreateAuthorisation(ctx context.Context, a domain.Authorisation) error {
	chosen, err := store.EncodeMethod(a.ChosenScaMethod)
	if err != nil {
		return err
	}
	available, err := store.EncodeMethods(a.AvailableScaMethods)
	if err != nil {
		return err
	}

	_, err = r.q.Exec(ctx, `INSERT INTO authorisations (`+authorisationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, 1, $18, $19)`,
		a.ID, a.ParentID, string(a.Type), string(a.Status),
		a.PsuData.PsuID, a.PsuData.PsuIDType, a.PsuData.PsuCorporateID, a.PsuData.PsuCorporateIDType,
		string(a.ScaApproach), chosen, available, mapStringNull(a.RedirectID),
		a.RedirectURI, a.NokRedirectURI, mapTimeNull(a.RedirectExpiresAt), mapTimeNull(a.ExpiresAt),
		a.BankBlob, a.CreatedAt.UTC(), a.LastStatusChangeAt.UTC(),
	)
	return mapConstraint(err)
}

func (r *authorisationsRepo) GetAuthorisation(ctx context.Context, id string) (domain.Authorisation, error) {
	row := r.q.QueryRow(ctx, `SELECT `+authorisationColumns+` FROM authorisations WHERE id = $1`, id)
	a, err := scanAuthorisation(row)
	if err != nil {
		return domain.Authorisation{}, mapNotFound(err)
	}
	return a, nil
}

func (r *authorisationsRepo) GetAuthorisationByRedirectID(ctx context.Context, redirectID string) (domain.Authorisation, error) {
	row := r.q.QueryRow(ctx, `SELECT `+authorisationColumns+` FROM authorisations WHERE redirect_id = $1`, redirectID)
	a, err := scanAuthorisation(row)
	if err != nil {
		return domain.Authorisation{}, mapNotFound(err)
	}
	return a, nil
}

func (r *authorisationsRepo) ListAuthorisations(ctx context.Context, parentID string, t domain.AuthorisationType) ([]domain.Authorisation, error) {
	rows, err := r.q.Query(ctx, `SELECT `+authorisationColumns+` FROM authorisations
		WHERE parent_id = $1 AND type = $2 ORDER BY created_at, id`, parentID, string(t))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Authorisation
	for rows.Next() {
		a, err := scanAuthorisation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *authorisationsRepo) SaveAuthorisation(ctx context.Context, a domain.Authorisation) (domain.Authorisation, error) {
	chosen, err := store.EncodeMethod(a.ChosenScaMethod)
	if err != nil {
		return domain.Authorisation{}, err
	}
	available, err := store.EncodeMethods(a.AvailableScaMethods)
	if err != nil {
		return domain.Authorisation{}, err
	}

	tag, err := r.q.Exec(ctx, `UPDATE authorisations SET
			status = $1, psu_id = $2, psu_id_type = $3, psu_corporate_id = $4, psu_corporate_id_type = $5,
			sca_approach = $6, chosen_sca_method = $7, available_sca_methods = $8,
			redirect_uri = $9, nok_redirect_uri = $10, redirect_expires_at = $11, expires_at = $12,
			bank_blob = $13, last_status_change_at = $14, version = version + 1
		WHERE id = $15 AND version = $16`,
		string(a.Status), a.PsuData.PsuID, a.PsuData.PsuIDType, a.PsuData.PsuCorporateID, a.PsuData.PsuCorporateIDType,
		string(a.ScaApproach), chosen, available,
		a.RedirectURI, a.NokRedirectURI, mapTimeNull(a.RedirectExpiresAt), mapTimeNull(a.ExpiresAt),
		a.BankBlob, a.LastStatusChangeAt.UTC(),
		a.ID, a.Version,
	)
	if err != nil {
		return domain.Authorisation{}, err
	}

	if tag.RowsAffected() == 0 {
		if _, err := r.GetAuthorisation(ctx, a.ID); err != nil {
			return domain.Authorisation{}, err
		}
		return domain.Authorisation{}, store.ErrConflict
	}

	a.Version++
	return a, nil
}

func (r *authorisationsRepo) DeleteTerminalAuthorisations(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM authorisations
		WHERE status = ANY($1) AND last_status_change_at < $2`,
		terminalStatuses(), before.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *authorisationsRepo) ListRedirectsExpiredBefore(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := r.q.Query(ctx, `SELECT redirect_id FROM authorisations
		WHERE redirect_id IS NOT NULL AND redirect_expires_at < $1
		AND NOT (status = ANY($2))`,
		before.UTC(), terminalStatuses(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func terminalStatuses() []string {
	out := make([]string, 0, len(store.TerminalStatuses))
	for _, s := range store.TerminalStatuses {
		out = append(out, string(s))
	}
	return out
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAuthorisation(s scanner) (domain.Authorisation, error) {
	var (
		a                    domain.Authorisation
		typ, status, appr    string
		chosen, available    string
		redirectID           *string
		redirectExp, expires *time.Time
	)

	err := s.Scan(
		&a.ID, &a.ParentID, &typ, &status,
		&a.PsuData.PsuID, &a.PsuData.PsuIDType, &a.PsuData.PsuCorporateID, &a.PsuData.PsuCorporateIDType,
		&appr, &chosen, &available, &redirectID,
		&a.RedirectURI, &a.NokRedirectURI, &redirectExp, &expires,
		&a.BankBlob, &a.Version, &a.CreatedAt, &a.LastStatusChangeAt,
	)
	if err != nil {
		return domain.Authorisation{}, err
	}

	a.Type = domain.AuthorisationType(typ)
	a.Status = domain.ScaStatus(status)
	a.ScaApproach = domain.ScaApproach(appr)
	a.RedirectID = mapNullString(redirectID)
	a.RedirectExpiresAt = mapNullTime(redirectExp)
	a.ExpiresAt = mapNullTime(expires)
	a.CreatedAt = a.CreatedAt.UTC()
	a.LastStatusChangeAt = a.LastStatusChangeAt.UTC()

	if a.ChosenScaMethod, err = store.DecodeMethod(chosen); err != nil {
		return domain.Authorisation{}, err
	}
	if a.AvailableScaMethods, err = store.DecodeMethods(available); err != nil {
		return domain.Authorisation{}, err
	}
	return a, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/scagate/internal/sca/domain"
	"github.com/aussiebroadwan/scagate/internal/sca/store"
)

type authorisationsRepo struct {
	db dbtx
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

	_, err = r.db.ExecContext(ctx, `INSERT INTO authorisations (`+authorisationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		a.ID, a.ParentID, string(a.Type), string(a.Status),
		a.PsuData.PsuID, a.PsuData.PsuIDType, a.PsuData.PsuCorporateID, a.PsuData.PsuCorporateIDType,
		string(a.ScaApproach), chosen, available, mapStringNull(a.RedirectID),
		a.RedirectURI, a.NokRedirectURI, mapTimeNull(a.RedirectExpiresAt), mapTimeNull(a.ExpiresAt),
		a.BankBlob, a.CreatedAt.UTC(), a.LastStatusChangeAt.UTC(),
	)
	return mapConstraint(err)
}

func (r *authorisationsRepo) GetAuthorisation(ctx context.Context, id string) (domain.Authorisation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+authorisationColumns+` FROM authorisations WHERE id = ?`, id)
	a, err := scanAuthorisation(row)
	if err != nil {
		return domain.Authorisation{}, mapNotFound(err)
	}
	return a, nil
}

func (r *authorisationsRepo) GetAuthorisationByRedirectID(ctx context.Context, redirectID string) (domain.Authorisation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+authorisationColumns+` FROM authorisations WHERE redirect_id = ?`, redirectID)
	a, err := scanAuthorisation(row)
	if err != nil {
		return domain.Authorisation{}, mapNotFound(err)
	}
	return a, nil
}

func (r *authorisationsRepo) ListAuthorisations(ctx context.Context, parentID string, t domain.AuthorisationType) ([]domain.Authorisation, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+authorisationColumns+` FROM authorisations
		WHERE parent_id = ? AND type = ? ORDER BY created_at, id`, parentID, string(t))
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

	res, err := r.db.ExecContext(ctx, `UPDATE authorisations SET
			status = ?, psu_id = ?, psu_id_type = ?, psu_corporate_id = ?, psu_corporate_id_type = ?,
			sca_approach = ?, chosen_sca_method = ?, available_sca_methods = ?,
			redirect_uri = ?, nok_redirect_uri = ?, redirect_expires_at = ?, expires_at = ?,
			bank_blob = ?, last_status_change_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		string(a.Status), a.PsuData.PsuID, a.PsuData.PsuIDType, a.PsuData.PsuCorporateID, a.PsuData.PsuCorporateIDType,
		string(a.ScaApproach), chosen, available,
		a.RedirectURI, a.NokRedirectURI, mapTimeNull(a.RedirectExpiresAt), mapTimeNull(a.ExpiresAt),
		a.BankBlob, a.LastStatusChangeAt.UTC(),
		a.ID, a.Version,
	)
	if err != nil {
		return domain.Authorisation{}, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return domain.Authorisation{}, err
	}
	if n == 0 {
		// Either it vanished or someone else saved first
		if _, err := r.GetAuthorisation(ctx, a.ID); err != nil {
			return domain.Authorisation{}, err
		}
		return domain.Authorisation{}, store.ErrConflict
	}

	a.Version++
	return a, nil
}

func (r *authorisationsRepo) DeleteTerminalAuthorisations(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM authorisations
		WHERE status IN (?, ?, ?) AND last_status_change_at < ?`,
		string(store.TerminalStatuses[0]), string(store.TerminalStatuses[1]), string(store.TerminalStatuses[2]),
		before.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *authorisationsRepo) ListRedirectsExpiredBefore(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT redirect_id FROM authorisations
		WHERE redirect_id IS NOT NULL AND redirect_expires_at < ?
		AND status NOT IN (?, ?, ?)`,
		before.UTC(),
		string(store.TerminalStatuses[0]), string(store.TerminalStatuses[1]), string(store.TerminalStatuses[2]),
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

type scanner interface {
	Scan(dest ...any) error
}

func scanAuthorisation(s scanner) (domain.Authorisation, error) {
	var (
		a                    domain.Authorisation
		typ, status, appr    string
		chosen, available    string
		redirectID           sql.NullString
		redirectExp, expires sql.NullTime
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

package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/scagate/internal/sca/domain"
	"github.com/aussiebroadwan/scagate/internal/sca/store"
	"github.com/shopspring/decimal"
)

type paymentsRepo struct {
	db dbtx
}

func (r *paymentsRepo) CreatePayment(ctx context.Context, p domain.Payment) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO payments
		(id, product, amount, currency, debtor_iban, creditor_iban, creditor_name, status, psu_id, psu_id_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Product, p.Amount.String(), p.Currency, p.DebtorIBAN, p.CreditorIBAN, p.CreditorName,
		string(p.Status), p.PsuData.PsuID, p.PsuData.PsuIDType, p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	)
	return mapConstraint(err)
}

func (r *paymentsRepo) GetPayment(ctx context.Context, id string) (domain.Payment, error) {
	var (
		p              domain.Payment
		amount, status string
	)
	err := r.db.QueryRowContext(ctx, `SELECT id, product, amount, currency, debtor_iban, creditor_iban,
		creditor_name, status, psu_id, psu_id_type, created_at, updated_at
		FROM payments WHERE id = ?`, id).
		Scan(&p.ID, &p.Product, &amount, &p.Currency, &p.DebtorIBAN, &p.CreditorIBAN,
			&p.CreditorName, &status, &p.PsuData.PsuID, &p.PsuData.PsuIDType, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Payment{}, mapNotFound(err)
	}

	p.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("payment %s: bad amount %q: %w", id, amount, err)
	}
	p.Status = domain.TransactionStatus(status)
	return p, nil
}

func (r *paymentsRepo) MarkPaymentStatus(ctx context.Context, id string, status domain.TransactionStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE payments SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

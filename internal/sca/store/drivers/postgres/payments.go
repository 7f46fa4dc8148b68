package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/scagate/internal/sca/domain"
	"github.com/aussiebroadwan/scagate/internal/sca/store"
	"github.com/shopspring/decimal"
)

type paymentsRepo struct {
	q querier
}

func (r *paymentsRepo) CreatePayment(ctx context.Context, p domain.Payment) error {
	_, err := r.q.Exec(ctx, `INSERT INTO payments
		(id, product, amount, currency, debtor_iban, creditor_iban, creditor_name, status, psu_id, psu_id_type, created_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
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
	err := r.q.QueryRow(ctx, `SELECT id, product, amount::text, currency, debtor_iban, creditor_iban,
		creditor_name, status, psu_id, psu_id_type, created_at, updated_at
		FROM payments WHERE id = $1`, id).
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
	tag, err := r.q.Exec(ctx, `UPDATE payments SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

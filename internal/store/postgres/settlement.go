package postgres

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"livrocaixa/backend/internal/domain"
)

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, cost_price
		FROM products
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		var costPrice decimal.NullDecimal
		if err := rows.Scan(&p.ID, &p.Name, &costPrice); err != nil {
			return nil, err
		}
		if costPrice.Valid {
			c := costPrice.Decimal
			p.CostPrice = &c
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	recipeRows, err := s.db.QueryContext(ctx, `
		SELECT product_id, ingredient_id, portions
		FROM product_recipes
		WHERE product_id = ANY($1)
		ORDER BY product_id, ingredient_id
	`, ids)
	if err != nil {
		return nil, err
	}
	defer recipeRows.Close()

	for recipeRows.Next() {
		var productID string
		var portion domain.RecipePortion
		if err := recipeRows.Scan(&productID, &portion.IngredientID, &portion.Portions); err != nil {
			return nil, err
		}
		p, ok := result[productID]
		if !ok {
			continue
		}
		p.Recipe = append(p.Recipe, portion)
		result[productID] = p
	}
	if err := recipeRows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) GetPaymentFeeSettings(ctx context.Context) (domain.PaymentFeeSettings, error) {
	var settings domain.PaymentFeeSettings
	err := s.db.QueryRowContext(ctx, `
		SELECT credit_fee_percent, debit_fee_percent, pix_fee_percent,
		       ifood_fee_percent, uber_eats_fee_percent
		FROM payment_fee_settings
		ORDER BY updated_at DESC
		LIMIT 1
	`).Scan(&settings.CreditFeePercent, &settings.DebitFeePercent, &settings.PixFeePercent,
		&settings.IfoodFeePercent, &settings.UberEatsFeePercent)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.PaymentFeeSettings{}, nil
		}
		return domain.PaymentFeeSettings{}, err
	}
	return settings, nil
}

// SettleOrder books the revenue, cost-of-goods and gateway-fee lines of
// a completed order in one transaction.
func (s *Store) SettleOrder(ctx context.Context, revenue domain.FinancialMovement, cmv *domain.FinancialMovement, fee *domain.FinancialMovement) (*domain.OrderSettlementResult, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	result := &domain.OrderSettlementResult{TotalCmv: decimal.Zero, FeeAmount: decimal.Zero}

	created, err := insertMovement(ctx, tx, revenue)
	if err != nil {
		return nil, err
	}
	result.RevenueMovementID = created.ID

	if cmv != nil {
		created, err := insertMovement(ctx, tx, *cmv)
		if err != nil {
			return nil, err
		}
		result.CmvMovementID = &created.ID
		result.TotalCmv = created.Value
	}
	if fee != nil {
		created, err := insertMovement(ctx, tx, *fee)
		if err != nil {
			return nil, err
		}
		result.FeeMovementID = &created.ID
		result.FeeAmount = created.Value
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return result, nil
}

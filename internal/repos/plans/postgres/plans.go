package plans

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/topupledger/internal/repos/plans"
)

var _ plans.Plans = (*plansRepo)(nil)

type plansRepo struct{ db *sql.DB }

func New(db *sql.DB) *plansRepo {
	return &plansRepo{db: db}
}

// Get returns an active plan by code.
func (r *plansRepo) Get(ctx context.Context, code string) (plans.Plan, error) {
	var p plans.Plan

	err := r.db.QueryRowContext(ctx, `
		SELECT plan_code, network, name, provider_plan_code, selling_price, is_active
		FROM data_plans
		WHERE plan_code = $1
		  AND is_active
	`, code).Scan(&p.Code, &p.Network, &p.Name, &p.ProviderPlanCode, &p.SellingPrice, &p.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return plans.Plan{}, plans.ErrPlanNotFound
		}

		return plans.Plan{}, fmt.Errorf("get plan: %w", err)
	}

	return p, nil
}

// ListActive returns active plans, optionally filtered by network, cheapest first.
func (r *plansRepo) ListActive(ctx context.Context, network string) ([]plans.Plan, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT plan_code, network, name, provider_plan_code, selling_price, is_active
		FROM data_plans
		WHERE is_active
		  AND ($1 = '' OR network = $1)
		ORDER BY network, selling_price, plan_code
	`, network)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var out []plans.Plan

	for rows.Next() {
		var p plans.Plan

		err = rows.Scan(&p.Code, &p.Network, &p.Name, &p.ProviderPlanCode, &p.SellingPrice, &p.Active)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}

		out = append(out, p)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate plans: %w", err)
	}

	return out, nil
}

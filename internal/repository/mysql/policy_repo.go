package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"ztuff-backend/internal/model"
	"ztuff-backend/internal/util"

	"go.uber.org/zap"
)

type policyRepository struct {
	q querier
}

// ListCandidates 一次查询取出商品、分类和全局三个层级的有效政策
func (r *policyRepository) ListCandidates(ctx context.Context, productID int64, categoryID *int64) ([]*model.ReturnPolicy, error) {
	query := `SELECT id, name, scope, scope_id, return_window_days, restocking_fee_percentage,
			  allowed_reasons, excluded_reasons, requires_approval, requires_quality_check,
			  auto_restock, is_returnable, is_active, priority
			  FROM return_policies
			  WHERE is_active = TRUE AND (
				  (scope = 'product' AND scope_id = ?) OR
				  (scope = 'category' AND scope_id = ?) OR
				  scope = 'global'
			  )
			  ORDER BY priority DESC, id ASC`
	rows, err := r.q.QueryContext(ctx, query, productID, categoryID)
	if err != nil {
		util.Logger.Error("查询退货政策失败", zap.Int64("product_id", productID), zap.Error(err))
		return nil, translateError(err)
	}
	defer rows.Close()

	var policies []*model.ReturnPolicy
	for rows.Next() {
		var (
			p                 model.ReturnPolicy
			scopeID           sql.NullInt64
			allowed, excluded []byte
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Scope, &scopeID, &p.ReturnWindowDays, &p.RestockingFeePercentage,
			&allowed, &excluded, &p.RequiresApproval, &p.RequiresQualityCheck,
			&p.AutoRestock, &p.IsReturnable, &p.IsActive, &p.Priority); err != nil {
			return nil, err
		}
		p.ScopeID = int64Ptr(scopeID)
		if p.AllowedReasons, err = decodeReasons(allowed); err != nil {
			return nil, fmt.Errorf("policy %d: %w", p.ID, err)
		}
		if p.ExcludedReasons, err = decodeReasons(excluded); err != nil {
			return nil, fmt.Errorf("policy %d: %w", p.ID, err)
		}
		policies = append(policies, &p)
	}
	return policies, rows.Err()
}

func decodeReasons(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var reasons []string
	if err := json.Unmarshal(raw, &reasons); err != nil {
		return nil, fmt.Errorf("invalid reason list: %w", err)
	}
	return reasons, nil
}

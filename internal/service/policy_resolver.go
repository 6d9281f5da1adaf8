package service

import (
	"context"
	"ztuff-backend/internal/model"
	"ztuff-backend/internal/repository/interfaces"
)

// SelectPolicy 商品级 > 分类级 > 全局，同一层级取优先级最高的，优先级相同取 ID 较小的
func SelectPolicy(candidates []*model.ReturnPolicy, productID int64, categoryID *int64) *model.ReturnPolicy {
	var product, category, global *model.ReturnPolicy
	for _, p := range candidates {
		if p == nil || !p.IsActive {
			continue
		}
		switch p.Scope {
		case model.ScopeProduct:
			if p.ScopeID != nil && *p.ScopeID == productID {
				product = better(product, p)
			}
		case model.ScopeCategory:
			if p.ScopeID != nil && categoryID != nil && *p.ScopeID == *categoryID {
				category = better(category, p)
			}
		case model.ScopeGlobal:
			global = better(global, p)
		}
	}
	switch {
	case product != nil:
		return product
	case category != nil:
		return category
	default:
		return global
	}
}

func better(current, candidate *model.ReturnPolicy) *model.ReturnPolicy {
	if current == nil ||
		candidate.Priority > current.Priority ||
		(candidate.Priority == current.Priority && candidate.ID < current.ID) {
		return candidate
	}
	return current
}

// ResolvePolicy 返回适用的政策；没有政策时返回 nil
func ResolvePolicy(ctx context.Context, repo interfaces.PolicyRepository, productID int64, categoryID *int64) (*model.ReturnPolicy, error) {
	candidates, err := repo.ListCandidates(ctx, productID, categoryID)
	if err != nil {
		return nil, err
	}
	return SelectPolicy(candidates, productID, categoryID), nil
}

// returnable 政策存在且允许退货
func returnable(policy *model.ReturnPolicy) bool {
	return policy != nil && policy.IsReturnable
}

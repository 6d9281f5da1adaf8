package mysql

import (
	"context"
	"database/sql"
	"sort"
	"time"
	"ztuff-backend/internal/model"
	"ztuff-backend/internal/repository/interfaces"
	"ztuff-backend/internal/util"

	"go.uber.org/zap"
)

type inventoryRepository struct {
	q querier
}

// LockUnits 逐行 SELECT ... FOR UPDATE，加锁顺序固定为 (product_id, variation_id) 升序
func (r *inventoryRepository) LockUnits(ctx context.Context, skus []model.SKU) (map[model.SKU]*model.InventoryUnit, error) {
	ordered := make([]model.SKU, len(skus))
	copy(ordered, skus)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Less(ordered[j]) })

	query := `SELECT product_id, variation_id, available_quantity, is_active, updated_at
			  FROM inventory_units WHERE product_id = ? AND variation_id = ? FOR UPDATE`

	units := make(map[model.SKU]*model.InventoryUnit, len(ordered))
	for _, sku := range ordered {
		if _, seen := units[sku]; seen {
			continue
		}
		var unit model.InventoryUnit
		err := r.q.QueryRowContext(ctx, query, sku.ProductID, sku.VariationID).Scan(
			&unit.SKU.ProductID, &unit.SKU.VariationID, &unit.AvailableQuantity, &unit.IsActive, &unit.UpdatedAt)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			util.Logger.Error("锁定库存失败", zap.String("sku", sku.String()), zap.Error(err))
			return nil, translateError(err)
		}
		units[sku] = &unit
	}
	return units, nil
}

func (r *inventoryRepository) Decrement(ctx context.Context, sku model.SKU, quantity int) error {
	query := `UPDATE inventory_units SET available_quantity = available_quantity - ?, updated_at = ?
			  WHERE product_id = ? AND variation_id = ? AND available_quantity >= ?`
	result, err := r.q.ExecContext(ctx, query, quantity, time.Now(), sku.ProductID, sku.VariationID, quantity)
	if err != nil {
		util.Logger.Error("扣减库存失败", zap.String("sku", sku.String()), zap.Error(err))
		return translateError(err)
	}
	return requireAffected(result)
}

func (r *inventoryRepository) Increment(ctx context.Context, sku model.SKU, quantity int) error {
	query := `UPDATE inventory_units SET available_quantity = available_quantity + ?, updated_at = ?
			  WHERE product_id = ? AND variation_id = ?`
	result, err := r.q.ExecContext(ctx, query, quantity, time.Now(), sku.ProductID, sku.VariationID)
	if err != nil {
		util.Logger.Error("恢复库存失败", zap.String("sku", sku.String()), zap.Error(err))
		return translateError(err)
	}
	return requireAffected(result)
}

func (r *inventoryRepository) GetUnit(ctx context.Context, sku model.SKU) (*model.InventoryUnit, error) {
	query := `SELECT product_id, variation_id, available_quantity, is_active, updated_at
			  FROM inventory_units WHERE product_id = ? AND variation_id = ?`
	var unit model.InventoryUnit
	err := r.q.QueryRowContext(ctx, query, sku.ProductID, sku.VariationID).Scan(
		&unit.SKU.ProductID, &unit.SKU.VariationID, &unit.AvailableQuantity, &unit.IsActive, &unit.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &unit, nil
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return interfaces.ErrNoRowsAffected
	}
	return nil
}

type catalogRepository struct {
	q querier
}

// GetSKU 规格价格为空时使用商品价格，商品和规格都上架才算可售
func (r *catalogRepository) GetSKU(ctx context.Context, sku model.SKU) (*model.CatalogSKU, error) {
	var (
		item       = model.CatalogSKU{SKU: sku}
		categoryID sql.NullInt64
		err        error
	)
	if sku.VariationID == 0 {
		query := `SELECT price, is_active, category_id FROM products WHERE id = ?`
		err = r.q.QueryRowContext(ctx, query, sku.ProductID).Scan(&item.Price, &item.Active, &categoryID)
	} else {
		query := `SELECT COALESCE(v.price, p.price), p.is_active AND v.is_active, p.category_id
				  FROM product_variations v JOIN products p ON p.id = v.product_id
				  WHERE v.id = ? AND v.product_id = ?`
		err = r.q.QueryRowContext(ctx, query, sku.VariationID, sku.ProductID).Scan(&item.Price, &item.Active, &categoryID)
	}
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		util.Logger.Error("查询商品目录失败", zap.String("sku", sku.String()), zap.Error(err))
		return nil, translateError(err)
	}
	item.CategoryID = int64Ptr(categoryID)
	return &item, nil
}

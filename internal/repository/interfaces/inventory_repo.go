package interfaces

import (
	"context"
	"ztuff-backend/internal/model"
)

type InventoryRepository interface {
	// LockUnits 按 SKU 顺序对库存行加排他锁，不存在的 SKU 不出现在结果中
	LockUnits(ctx context.Context, skus []model.SKU) (map[model.SKU]*model.InventoryUnit, error)
	Decrement(ctx context.Context, sku model.SKU, quantity int) error
	Increment(ctx context.Context, sku model.SKU, quantity int) error
	GetUnit(ctx context.Context, sku model.SKU) (*model.InventoryUnit, error)
}

// CatalogProvider 商品目录，下单时提供权威价格
type CatalogProvider interface {
	GetSKU(ctx context.Context, sku model.SKU) (*model.CatalogSKU, error)
}
